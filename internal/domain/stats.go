package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Windows measured back from the newest observation.
const (
	RecentWindow     = 24 * time.Hour
	ConfidenceWindow = 72 * time.Hour
)

// Unsigned decimals only: "87", "87.5", ".5". Class letters and exponents are rejected.
var confidencePattern = regexp.MustCompile(`^[0-9]*\.?[0-9]+$`)

// Stats aggregates a set of detections for the dashboard overview.
type Stats struct {
	Total          int                  `json:"total_fires"`
	Recent24h      int                  `json:"recent_fires_24h"`
	BySeverity     map[SeverityTier]int `json:"by_severity"`
	MaxPower       float64              `json:"max_frp"`
	MeanPower      float64              `json:"mean_frp"`
	MeanConfidence float64              `json:"avg_confidence"` // over ConfidenceWindow
	Earliest       *time.Time           `json:"earliest,omitempty"`
	Latest         *time.Time           `json:"latest,omitempty"`
}

// Summarize computes Stats. Total counts detections, i.e. distinct cells. The
// recent count and mean confidence are measured back from the newest
// observation rather than wall-clock time, so stale feeds still report.
func Summarize(detections []FireDetection) Stats {
	s := Stats{BySeverity: make(map[SeverityTier]int, len(severityBands))}
	for _, t := range SeverityTiers() {
		s.BySeverity[t] = 0
	}
	if len(detections) == 0 {
		return s
	}

	var earliest, latest time.Time
	var powerSum float64
	for i := range detections {
		d := &detections[i]
		s.Total++
		s.BySeverity[d.Severity]++
		powerSum += d.RadiativePower
		if d.RadiativePower > s.MaxPower {
			s.MaxPower = d.RadiativePower
		}
		if earliest.IsZero() || d.ObservedAt.Before(earliest) {
			earliest = d.ObservedAt
		}
		if latest.IsZero() || d.ObservedAt.After(latest) {
			latest = d.ObservedAt
		}
	}

	recentCutoff := latest.Add(-RecentWindow)
	confCutoff := latest.Add(-ConfidenceWindow)
	var confSum float64
	var confCount int
	for i := range detections {
		d := &detections[i]
		if !d.ObservedAt.Before(recentCutoff) {
			s.Recent24h++
		}
		if d.ObservedAt.Before(confCutoff) {
			continue
		}
		if c, ok := numericConfidence(d.Confidence); ok {
			confSum += c
			confCount++
		}
	}

	s.MeanPower = powerSum / float64(s.Total)
	if confCount > 0 {
		s.MeanConfidence = confSum / float64(confCount)
	}
	s.Earliest = &earliest
	s.Latest = &latest
	return s
}

// NumericConfidence reports the detection's confidence as a number when the
// source gave one.
func (d FireDetection) NumericConfidence() (float64, bool) {
	return numericConfidence(d.Confidence)
}

// numericConfidence reads MODIS-style percentage confidences ("87"). VIIRS
// class letters ("l", "n", "h") are not numeric and are skipped.
func numericConfidence(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if !confidencePattern.MatchString(raw) {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
