//go:build mapbox

package mapbox

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-dashboard-service/internal/domain"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Live Mapbox checks. Needs MAPBOX_TOKEN.
// go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func liveClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Skip("MAPBOX_TOKEN not set")
	}
	return NewClient(token, 10*time.Second, observability.NewMetricsForTesting(), discardLogger())
}

func TestLive_ReverseGeocodeHotspotCell(t *testing.T) {
	c := liveClient(t)

	// Resolution-6 cell over the Sierra foothills east of Sacramento.
	cell, err := domain.EncodeCell(38.75, -120.75, domain.CellResolution)
	require.NoError(t, err)
	center, err := domain.DecodeCell(cell)
	require.NoError(t, err)

	result, err := c.ReverseGeocode(context.Background(), center.Lat, center.Lon)
	require.NoError(t, err)

	assert.Contains(t, result.FormattedAddress, "California")
	assert.NotEmpty(t, result.PlaceName)
}

func TestLive_OpenOceanLookupSucceeds(t *testing.T) {
	c := liveClient(t)

	got := domain.DescribePlace(context.Background(), c, domain.Geo{Lat: -48.8767, Lon: -123.3933}, discardLogger())
	// No place-type feature covers Point Nemo; the lookup itself must still succeed.
	assert.NotEqual(t, domain.LocationUnavailable, got)
}

func TestLive_CachedLookupServesRepeatSelection(t *testing.T) {
	c := liveClient(t)
	cached, err := NewCachedLookup(c, 10, observability.NewMetricsForTesting())
	require.NoError(t, err)

	first, err := cached.ReverseGeocode(context.Background(), 36.7378, -119.7871)
	require.NoError(t, err)
	second, err := cached.ReverseGeocode(context.Background(), 36.7378, -119.7871)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, cached.Len())
}
