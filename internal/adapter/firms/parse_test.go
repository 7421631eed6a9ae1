package firms

import (
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-dashboard-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseCSV_Sample(t *testing.T) {
	f, err := os.Open("testdata/viirs_sample.csv")
	require.NoError(t, err)
	defer f.Close()

	records, err := ParseCSV(f, discardLogger())
	require.NoError(t, err)
	require.Len(t, records, 5, "row with unreadable date is skipped")

	// Newest bucket first.
	assert.Equal(t, time.Date(2025, time.August, 14, 20, 30, 0, 0, time.UTC), records[0].ObservedAt)
	assert.Equal(t, 120.0, records[0].RadiativePower)
	assert.Equal(t, "h", records[0].Confidence)
	assert.Equal(t, "D", records[0].DayNight)

	assert.Equal(t, time.Date(2025, time.August, 14, 20, 0, 0, 0, time.UTC), records[1].ObservedAt)
	want, err := domain.EncodeCell(34.05123, -118.24321, domain.CellResolution)
	require.NoError(t, err)
	assert.Equal(t, want, records[1].CellID)

	// Unreadable latitude keeps the row with an undecodable cell id.
	_, err = domain.DecodeCell(records[2].CellID)
	assert.ErrorIs(t, err, domain.ErrInvalidCell)

	// Unreadable power keeps the row with NaN power.
	assert.True(t, math.IsNaN(records[3].RadiativePower))

	last := records[4]
	assert.Equal(t, time.Date(2025, time.August, 14, 9, 0, 0, 0, time.UTC), last.ObservedAt)
	assert.Equal(t, "N", last.DayNight)
}

func TestParseCSV_MissingColumn(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("latitude,longitude,acq_date\n1,2,2025-01-01\n"), discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acq_time")
}

func TestParseCSV_Empty(t *testing.T) {
	records, err := ParseCSV(strings.NewReader(""), discardLogger())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseHHMM(t *testing.T) {
	base := time.Date(2025, time.August, 14, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2047", time.Date(2025, time.August, 14, 20, 47, 0, 0, time.UTC)},
		{"912", time.Date(2025, time.August, 14, 9, 12, 0, 0, time.UTC)},
		{"5", time.Date(2025, time.August, 14, 0, 5, 0, 0, time.UTC)},
		{" 0030 ", time.Date(2025, time.August, 14, 0, 30, 0, 0, time.UTC)},
		{"2460", base},
		{"abcd", base},
		{"", base},
		{"12345", base},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseHHMM(base, tt.in))
		})
	}
}
