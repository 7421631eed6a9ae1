package domain

import (
	"fmt"
	"strings"

	"github.com/uber/h3-go/v4"
)

// CellResolution is the H3 resolution hotspots are bucketed at.
const CellResolution = 6

// DecodeCell returns the center of an H3 cell given as a hexadecimal string.
func DecodeCell(cellID string) (Geo, error) {
	s := strings.TrimSpace(cellID)
	if s == "" {
		return Geo{}, fmt.Errorf("%w: empty cell id", ErrInvalidCell)
	}
	cell := h3.Cell(h3.IndexFromString(s))
	if !cell.IsValid() {
		return Geo{}, fmt.Errorf("%w: %q", ErrInvalidCell, cellID)
	}
	ll := cell.LatLng()
	return Geo{Lat: ll.Lat, Lon: ll.Lng}, nil
}

// EncodeCell returns the H3 cell id containing a point at the given resolution.
func EncodeCell(lat, lon float64, resolution int) (string, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", fmt.Errorf("%w: point %.5f,%.5f out of range", ErrInvalidCell, lat, lon)
	}
	cell := h3.LatLngToCell(h3.NewLatLng(lat, lon), resolution)
	if !cell.IsValid() {
		return "", fmt.Errorf("%w: no cell for %.5f,%.5f", ErrInvalidCell, lat, lon)
	}
	return cell.String(), nil
}
