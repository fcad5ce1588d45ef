//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/locate-annotation-service/internal/observability"
)

// Live lookups against api.mapbox.com. Needs MAPBOX_TOKEN:
//
//	go test -tags=mapbox -count=1 ./internal/adapter/mapbox/

func liveClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Skip("MAPBOX_TOKEN not set")
	}
	return NewClient(token, 10*time.Second, observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLive_KnownPlaces(t *testing.T) {
	c := liveClient(t)

	tests := []struct {
		name     string
		lat, lon float64
		place    string
		country  string
	}{
		{"chicago loop", 41.8781, -87.6298, "Chicago", "US"},
		{"toronto", 43.6532, -79.3832, "Toronto", "CA"},
		{"berlin mitte", 52.5200, 13.4050, "Berlin", "DE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ReverseGeocode(context.Background(), tt.lat, tt.lon)
			require.NoError(t, err)
			assert.Contains(t, got.FormattedAddress, tt.place)
			assert.Equal(t, tt.country, got.CountryCode)
			assert.NotEmpty(t, got.Region)
		})
	}
}

func TestLive_NoEnclosingPlace(t *testing.T) {
	got, err := liveClient(t).ReverseGeocode(context.Background(), -48.8767, -123.3933)
	require.NoError(t, err)
	assert.Empty(t, got.FormattedAddress)
}

func TestLive_CacheServesRepeatLookups(t *testing.T) {
	c := liveClient(t)
	cached := NewCachedGeocoder(c, 4, observability.NewMetricsForTesting())

	first, err := cached.ReverseGeocode(context.Background(), 29.7604, -95.3698)
	require.NoError(t, err)
	require.NotEmpty(t, first.FormattedAddress)

	again, err := cached.ReverseGeocode(context.Background(), 29.76041, -95.36982)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, cached.Len())
}
