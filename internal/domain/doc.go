// Package domain models NASA FIRMS active-fire hotspot data as it is shown on
// the wildfire dashboard map.
//
// # Data Source
//
// Hotspots originate from the VIIRS NOAA-20 near-real-time product published by
// NASA FIRMS (https://firms.modaps.eosdis.nasa.gov/api/area/). Each CSV row is a
// single thermal anomaly: a point, an acquisition date/time, a confidence class,
// a day/night flag, and the fire radiative power (FRP) in megawatts.
//
// # Cell Keys
//
// Points are bucketed into H3 cells at resolution 6 (roughly 36 km² hexagons),
// which is the key the rest of the system uses:
//
//	"8629a1d67ffffff"  →  center 34.05, -118.24 (approximate)
//
// A cell id is a 15-character hexadecimal H3 index. Anything that does not parse
// to a valid index is rejected with [ErrInvalidCell]. Decoding is pure, so the
// pipeline decodes each distinct cell once per refresh.
//
// # Observation Time
//
// acq_date + acq_time (HHMM, UTC) are floored to a 30-minute bucket. That bucket
// is the record's ObservedAt.
//
// # Severity classification
//
// FRP is the only input to the severity tier. Bands are closed on the left:
//
//	[0,100) MW low | [100,150) MW medium | [150,200) MW high | ≥200 MW extreme
//
// Negative or NaN power is rejected with [ErrInvalidIntensity]. Color and marker
// radius are fixed per tier; see [Classify].
package domain
