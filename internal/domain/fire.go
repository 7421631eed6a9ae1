package domain

import "time"

// RawFireRecord is one hotspot as delivered by a data source.
type RawFireRecord struct {
	CellID         string    `json:"h3_cell"`
	RadiativePower float64   `json:"frp"`
	ObservedAt     time.Time `json:"time_bucket"`
	Confidence     string    `json:"confidence,omitempty"` // "l", "n", "h" for VIIRS
	DayNight       string    `json:"daynight,omitempty"`   // "D" or "N"
}

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// FireDetection is the map-renderable form of a RawFireRecord.
type FireDetection struct {
	CellID         string       `json:"cell_id"`
	Geo            Geo          `json:"geo"`
	RadiativePower float64      `json:"frp"`
	Severity       SeverityTier `json:"severity"`
	Color          string       `json:"color"`
	MarkerRadius   float64      `json:"marker_radius"`
	ObservedAt     time.Time    `json:"observed_at"`
	Confidence     string       `json:"confidence,omitempty"`
	DayNight       string       `json:"daynight,omitempty"`
}

// Snapshot is one complete refresh generation of detections. Collapsed counts
// records folded into a newer observation of the same cell.
type Snapshot struct {
	Generation  uint64          `json:"generation"`
	Detections  []FireDetection `json:"detections"`
	Dropped     int             `json:"dropped"`
	Collapsed   int             `json:"collapsed"`
	RefreshedAt time.Time       `json:"refreshed_at"`
}

// NewSnapshot stamps a generation with the current time.
func NewSnapshot(generation uint64, detections []FireDetection, dropped int) Snapshot {
	return Snapshot{
		Generation:  generation,
		Detections:  detections,
		Dropped:     dropped,
		RefreshedAt: clock.Now().UTC(),
	}
}

// BuildDetection classifies a raw record whose cell has already been decoded.
func BuildDetection(rec RawFireRecord, center Geo) (FireDetection, error) {
	c, err := Classify(rec.RadiativePower)
	if err != nil {
		return FireDetection{}, err
	}
	return FireDetection{
		CellID:         rec.CellID,
		Geo:            center,
		RadiativePower: rec.RadiativePower,
		Severity:       c.Tier,
		Color:          c.Color,
		MarkerRadius:   c.MarkerRadius,
		ObservedAt:     rec.ObservedAt,
		Confidence:     rec.Confidence,
		DayNight:       rec.DayNight,
	}, nil
}
