package firms

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/wildfire-dashboard-service/internal/domain"
)

// BucketWidth is the observation time granularity of a hotspot record.
const BucketWidth = 30 * time.Minute

var requiredColumns = []string{"latitude", "longitude", "acq_date", "acq_time", "frp"}

// ParseCSV converts a FIRMS area CSV into raw hotspot records, newest first.
// Each point becomes the H3 cell containing it, and its acquisition time is
// floored to BucketWidth. Rows with unreadable coordinates or power are kept
// with an invalid cell id or NaN power so the refresh counts them as dropped;
// rows with an unreadable acquisition date are skipped.
func ParseCSV(r io.Reader, logger *slog.Logger) ([]domain.RawFireRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("csv missing column %q", name)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []domain.RawFireRecord
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		observed, err := parseAcquisition(field(row, "acq_date"), field(row, "acq_time"))
		if err != nil {
			logger.Warn("skipping FIRMS row", "line", line, "error", err)
			continue
		}

		records = append(records, domain.RawFireRecord{
			CellID:         cellFor(field(row, "latitude"), field(row, "longitude")),
			RadiativePower: parsePower(field(row, "frp")),
			ObservedAt:     observed.Truncate(BucketWidth),
			Confidence:     field(row, "confidence"),
			DayNight:       field(row, "daynight"),
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ObservedAt.After(records[j].ObservedAt)
	})
	return records, nil
}

// cellFor returns the resolution-6 cell of a point, or the raw coordinates when
// they cannot be encoded so the record fails cell decoding downstream.
func cellFor(latStr, lonStr string) string {
	lat, errLat := strconv.ParseFloat(latStr, 64)
	lon, errLon := strconv.ParseFloat(lonStr, 64)
	if errLat != nil || errLon != nil {
		return latStr + "," + lonStr
	}
	cell, err := domain.EncodeCell(lat, lon, domain.CellResolution)
	if err != nil {
		return latStr + "," + lonStr
	}
	return cell
}

func parsePower(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// parseAcquisition combines a YYYY-MM-DD date with an HHMM (or HMM) UTC time.
func parseAcquisition(date, hhmm string) (time.Time, error) {
	base, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse acq_date %q: %w", date, err)
	}
	return parseHHMM(base, hhmm), nil
}

// parseHHMM applies an HHMM time of day to baseDate. Unparseable values leave
// baseDate at midnight.
func parseHHMM(baseDate time.Time, hhmm string) time.Time {
	hhmm = strings.TrimSpace(hhmm)
	if hhmm == "" || len(hhmm) > 4 {
		return baseDate
	}
	hhmm = strings.Repeat("0", 4-len(hhmm)) + hhmm

	hour, errH := strconv.Atoi(hhmm[:2])
	mins, errM := strconv.Atoi(hhmm[2:])
	if errH != nil || errM != nil || hour < 0 || hour > 23 || mins < 0 || mins > 59 {
		return baseDate
	}

	return time.Date(
		baseDate.Year(), baseDate.Month(), baseDate.Day(),
		hour, mins, 0, 0, time.UTC,
	)
}
