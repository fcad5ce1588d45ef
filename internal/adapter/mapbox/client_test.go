package mapbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/locate-annotation-service/internal/domain"
	"github.com/couchcryptid/locate-annotation-service/internal/observability"
)

const testToken = "pk.test"

const brooklynJSON = `{
  "type": "FeatureCollection",
  "features": [{
    "id": "place.4212",
    "text": "Brooklyn",
    "place_name": "Brooklyn, New York, United States",
    "relevance": 1,
    "center": [-73.9496, 40.6501],
    "context": [
      {"id": "district.1234", "text": "Kings County"},
      {"id": "region.5678", "text": "New York", "short_code": "US-NY"},
      {"id": "country.9012", "text": "United States", "short_code": "us"}
    ]
  }]
}`

func newTestClient(baseURL string) *Client {
	return &Client{
		token:      testToken,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// serve answers every request with status and body and records the last
// request URL it saw.
func serve(t *testing.T, status int, body string) (*httptest.Server, *url.URL) {
	t.Helper()
	var seen url.URL
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = *r.URL
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func outcomes(c *Client, outcome string) float64 {
	return testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues(outcome))
}

func TestReverseGeocode_Place(t *testing.T) {
	srv, seen := serve(t, http.StatusOK, brooklynJSON)
	c := newTestClient(srv.URL)

	got, err := c.ReverseGeocode(context.Background(), 40.6501, -73.9496)
	require.NoError(t, err)

	assert.Equal(t, domain.GeocodingResult{
		Lat:              40.6501,
		Lon:              -73.9496,
		FormattedAddress: "Brooklyn, New York, United States",
		PlaceName:        "Brooklyn",
		Region:           "New York",
		CountryCode:      "US",
		Confidence:       1,
	}, got)
	assert.Equal(t, 1.0, outcomes(c, "success"))

	assert.Equal(t, "/-73.949600,40.650100.json", seen.Path)
	q := seen.Query()
	assert.Equal(t, testToken, q.Get("access_token"))
	assert.Equal(t, "place", q.Get("types"))
	assert.Equal(t, "1", q.Get("limit"))
}

func TestReverseGeocode_NoPlace(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, `{"type":"FeatureCollection","features":[]}`)
	c := newTestClient(srv.URL)

	got, err := c.ReverseGeocode(context.Background(), 0, -160)
	require.NoError(t, err)
	assert.Zero(t, got)
	assert.Equal(t, 1.0, outcomes(c, "empty"))
}

func TestReverseGeocode_MissingContext(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, `{"features":[{"text":"Nowhere","place_name":"Nowhere","center":[1,2]}]}`)

	got, err := newTestClient(srv.URL).ReverseGeocode(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, "Nowhere", got.PlaceName)
	assert.Empty(t, got.Region)
	assert.Empty(t, got.CountryCode)
}

func TestReverseGeocode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		contains string
		upstream bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message":"Not Authorized - Invalid Token"}`, "mapbox status 401", true},
		{"rate limited", http.StatusTooManyRequests, `{"message":"Too Many Requests"}`, "mapbox status 429", true},
		{"truncated body", http.StatusOK, `{"features":[`, "decode mapbox response", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := serve(t, tt.status, tt.body)
			c := newTestClient(srv.URL)

			_, err := c.ReverseGeocode(context.Background(), 40.6501, -73.9496)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Equal(t, tt.upstream, errors.Is(err, domain.ErrUpstreamUnavailable))
			assert.Equal(t, 1.0, outcomes(c, "error"))
		})
	}
}

func TestReverseGeocode_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := newTestClient(srv.URL)
	c.httpClient.Timeout = 50 * time.Millisecond

	_, err := c.ReverseGeocode(context.Background(), 40.6501, -73.9496)
	require.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}
