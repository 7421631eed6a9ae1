package domain

import (
	"fmt"
	"math"
	"sort"
)

// SeverityTier is the discrete severity derived from fire radiative power.
type SeverityTier string

const (
	SeverityLow     SeverityTier = "low"
	SeverityMedium  SeverityTier = "medium"
	SeverityHigh    SeverityTier = "high"
	SeverityExtreme SeverityTier = "extreme"
)

// Lower bounds (inclusive, in MW) of each tier above low.
const (
	MediumPowerThreshold  = 100.0
	HighPowerThreshold    = 150.0
	ExtremePowerThreshold = 200.0
)

// Classification is the severity tier of a power value and its marker style.
type Classification struct {
	Tier         SeverityTier
	Color        string
	MarkerRadius float64
}

type severityBand struct {
	lower float64
	Classification
}

// severityBands is sorted by lower bound; a value belongs to the last band
// whose lower bound it reaches.
var severityBands = []severityBand{
	{lower: 0, Classification: Classification{Tier: SeverityLow, Color: "#FFC107", MarkerRadius: 4}},
	{lower: MediumPowerThreshold, Classification: Classification{Tier: SeverityMedium, Color: "#FF9800", MarkerRadius: 6}},
	{lower: HighPowerThreshold, Classification: Classification{Tier: SeverityHigh, Color: "#F4511E", MarkerRadius: 8}},
	{lower: ExtremePowerThreshold, Classification: Classification{Tier: SeverityExtreme, Color: "#B71C1C", MarkerRadius: 11}},
}

// Classify maps a radiative power value (MW) to its severity tier, color, and
// marker radius.
func Classify(power float64) (Classification, error) {
	if math.IsNaN(power) || power < 0 {
		return Classification{}, fmt.Errorf("%w: radiative power %v", ErrInvalidIntensity, power)
	}
	i := sort.Search(len(severityBands), func(i int) bool {
		return severityBands[i].lower > power
	})
	return severityBands[i-1].Classification, nil
}

// Rank orders tiers from low (0) to extreme (3). Unknown tiers rank -1.
func (t SeverityTier) Rank() int {
	for i := range severityBands {
		if severityBands[i].Tier == t {
			return i
		}
	}
	return -1
}

// SeverityTiers lists every tier from low to extreme.
func SeverityTiers() []SeverityTier {
	tiers := make([]SeverityTier, len(severityBands))
	for i := range severityBands {
		tiers[i] = severityBands[i].Tier
	}
	return tiers
}
