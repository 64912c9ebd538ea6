package adsb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/skyfeed/pkg/coordinates"
)

var testBox = coordinates.BoundingBox{LonMin: -125.974, LatMin: 30.038, LonMax: 68.748, LatMax: 52.214}

const twoStatesBody = `{
  "time": 1700000000,
  "states": [
    ["a12345", "UAL123  ", "United States", 1699999990, 1699999995, -80.5, 35.5, 10668.0, false, 230.5, 90.0, 0.0, null, 10900.0, "1200", false, 0],
    ["3c6444", null, "Germany", null, 1699999999, null, null, null, true, 0.0, null, null, [12, 34], null, null, false, 2]
  ]
}`

// TestNewOpenSkyClient tests client construction.
func TestNewOpenSkyClient(t *testing.T) {
	client := NewOpenSkyClient("https://api.test.com/")

	require.NotNil(t, client)
	assert.Equal(t, "https://api.test.com", client.baseURL)
	require.NotNil(t, client.httpClient)
	assert.Zero(t, client.httpClient.Timeout, "no explicit timeout by default")

	timed := NewOpenSkyClient("https://api.test.com", WithTimeout(5*time.Second))
	assert.Equal(t, 5*time.Second, timed.httpClient.Timeout)

	hc := &http.Client{}
	custom := NewOpenSkyClient("https://api.test.com", WithHTTPClient(hc))
	assert.Same(t, hc, custom.httpClient)
}

// TestStatesURL tests bounding box query construction.
func TestStatesURL(t *testing.T) {
	client := NewOpenSkyClient(DefaultOpenSkyURL)
	assert.Equal(t,
		"https://opensky-network.org/api/states/all?lamin=30.038&lomin=-125.974&lamax=52.214&lomax=68.748",
		client.StatesURL(testBox))
}

// TestGetStates tests fetching state vectors for a bounding box.
func TestGetStates(t *testing.T) {
	t.Run("Successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/states/all", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "30.038", q.Get("lamin"))
			assert.Equal(t, "-125.974", q.Get("lomin"))
			assert.Equal(t, "52.214", q.Get("lamax"))
			assert.Equal(t, "68.748", q.Get("lomax"))
			assert.Empty(t, r.Header.Get("Authorization"), "requests must be anonymous")
			fmt.Fprint(w, twoStatesBody)
		}))
		defer server.Close()

		client := NewOpenSkyClient(server.URL)
		snapshot, err := client.GetStates(context.Background(), testBox)
		require.NoError(t, err)
		require.Len(t, snapshot.States, 2)
		assert.Equal(t, int64(1700000000), snapshot.Time)

		first := snapshot.States[0]
		assert.Equal(t, "a12345", *first.ICAO24)
		assert.Equal(t, "UAL123  ", *first.Callsign)
		assert.Equal(t, "United States", *first.OriginCountry)
		assert.Equal(t, int64(1699999990), *first.TimePosition)
		assert.Equal(t, -80.5, *first.Longitude)
		assert.Equal(t, 35.5, *first.Latitude)
		assert.Equal(t, 10668.0, *first.BaroAltitude)
		assert.False(t, *first.OnGround)
		assert.Equal(t, 90.0, *first.TrueTrack)
		assert.Nil(t, first.Sensors)
		assert.Equal(t, "1200", *first.Squawk)
		assert.Equal(t, 0, *first.PositionSource)

		pos, ok := first.Position()
		require.True(t, ok)
		assert.Equal(t, coordinates.GeoPoint{Longitude: -80.5, Latitude: 35.5}, pos)

		second := snapshot.States[1]
		assert.Nil(t, second.Callsign)
		assert.Nil(t, second.TimePosition)
		assert.Nil(t, second.TrueTrack)
		assert.Equal(t, []int{12, 34}, second.Sensors)
		assert.Equal(t, 2, *second.PositionSource)
		_, ok = second.Position()
		assert.False(t, ok)
	})

	t.Run("Null states is an empty batch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"time": 1700000000, "states": null}`)
		}))
		defer server.Close()

		snapshot, err := NewOpenSkyClient(server.URL).GetStates(context.Background(), testBox)
		require.NoError(t, err)
		assert.Empty(t, snapshot.States)
	})

	t.Run("Handles rate limit error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Rate-Limit-Retry-After-Seconds", "30")
			w.Header().Set("X-Rate-Limit-Remaining", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("Too many requests"))
		}))
		defer server.Close()

		_, err := NewOpenSkyClient(server.URL).GetStates(context.Background(), testBox)
		require.Error(t, err)

		rle, ok := IsRateLimitError(err)
		require.True(t, ok, "expected RateLimitError, got %T", err)
		assert.Equal(t, http.StatusTooManyRequests, rle.StatusCode)
		assert.Equal(t, 30*time.Second, rle.RetryAfter)
		assert.Equal(t, 0, rle.Headers.Remaining)
	})

	t.Run("Handles HTTP error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Internal error"))
		}))
		defer server.Close()

		_, err := NewOpenSkyClient(server.URL).GetStates(context.Background(), testBox)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
		assert.Equal(t, "Internal error", se.Body)
	})

	t.Run("Handles transport error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		_, err := NewOpenSkyClient(url).GetStates(context.Background(), testBox)
		assert.Error(t, err)
	})

	t.Run("Honors context cancellation", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer server.Close()
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := NewOpenSkyClient(server.URL).GetStates(ctx, testBox)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

// TestDecodeStatesMalformed tests rejection of bodies that cannot be shaped.
func TestDecodeStatesMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"Invalid JSON", `{"states": [`},
		{"Missing states key", `{"time": 1700000000}`},
		{"States not a list", `{"states": "nope"}`},
		{"Row not an array", `{"states": [42]}`},
		{"Wrong arity", `{"states": [["a12345", "UAL123"]]}`},
		{"Wrong column type", `{"states": [["a12345", "UAL123", "US", 1, 1, "west", 35.5, null, false, null, null, null, null, null, null, false, 0]]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeStates(strings.NewReader(tt.body))
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

// TestParseStateVector tests the fixed column mapping.
func TestParseStateVector(t *testing.T) {
	row := []interface{}{
		"abc123", "TEST123 ", "France", 100.0, 200.0, 2.35, 48.85, 1000.0, true,
		50.5, 270.0, -3.5, []interface{}{1.0, 2.0}, 1050.0, "7000", true, 3.0,
	}

	s, err := parseStateVector(row)
	require.NoError(t, err)
	assert.Equal(t, "abc123", *s.ICAO24)
	assert.Equal(t, "France", *s.OriginCountry)
	assert.Equal(t, int64(100), *s.TimePosition)
	assert.Equal(t, int64(200), *s.LastContact)
	assert.Equal(t, 2.35, *s.Longitude)
	assert.Equal(t, 48.85, *s.Latitude)
	assert.True(t, *s.OnGround)
	assert.Equal(t, 50.5, *s.Velocity)
	assert.Equal(t, -3.5, *s.VerticalRate)
	assert.Equal(t, []int{1, 2}, s.Sensors)
	assert.Equal(t, 1050.0, *s.GeoAltitude)
	assert.True(t, *s.SPI)
	assert.Equal(t, 3, *s.PositionSource)

	bad := append([]interface{}(nil), row...)
	bad[12] = []interface{}{"x"}
	_, err = parseStateVector(bad)
	assert.ErrorContains(t, err, "sensors")
}

// TestClose tests the Close method.
func TestClose(t *testing.T) {
	client := NewOpenSkyClient("https://api.test.com")
	assert.NoError(t, client.Close())
}

// TestParseRetryAfter tests retry header parsing.
func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected time.Duration
	}{
		{"Empty header", nil, 0},
		{"OpenSky seconds", map[string]string{"X-Rate-Limit-Retry-After-Seconds": "12"}, 12 * time.Second},
		{"Delay seconds", map[string]string{"Retry-After": "30"}, 30 * time.Second},
		{"Zero seconds", map[string]string{"Retry-After": "0"}, 0},
		{"Negative (invalid)", map[string]string{"Retry-After": "-10"}, 0},
		{"HTTP date in the past", map[string]string{"Retry-After": "Wed, 21 Oct 2015 07:28:00 GMT"}, 0},
		{"Invalid string", map[string]string{"Retry-After": "invalid"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			for k, v := range tt.headers {
				headers.Set(k, v)
			}
			assert.Equal(t, tt.expected, parseRetryAfter(headers))
		})
	}
}

// TestExtractRateLimitHeaders tests rate limit header extraction.
func TestExtractRateLimitHeaders(t *testing.T) {
	t.Run("Standard headers", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("X-Rate-Limit-Limit", "100")
		headers.Set("X-Rate-Limit-Remaining", "25")
		headers.Set("X-Rate-Limit-Reset", "1609459200")

		result := extractRateLimitHeaders(headers)
		assert.Equal(t, 100, result.Limit)
		assert.Equal(t, 25, result.Remaining)
		assert.True(t, result.Reset.Equal(time.Unix(1609459200, 0)))
	})

	t.Run("Alternative header names", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("X-RateLimit-Limit", "200")
		headers.Set("X-RateLimit-Remaining", "50")

		result := extractRateLimitHeaders(headers)
		assert.Equal(t, 200, result.Limit)
		assert.Equal(t, 50, result.Remaining)
	})

	t.Run("Missing headers", func(t *testing.T) {
		result := extractRateLimitHeaders(http.Header{})
		assert.Equal(t, -1, result.Limit)
		assert.Equal(t, -1, result.Remaining)
		assert.True(t, result.Reset.IsZero())
	})
}

// TestRateLimitError tests rate limit error handling.
func TestRateLimitError(t *testing.T) {
	withDelay := &RateLimitError{StatusCode: 429, RetryAfter: 30 * time.Second, Message: "Rate limit exceeded"}
	assert.Equal(t, "Rate limit exceeded (retry after 30s)", withDelay.Error())

	plain := &RateLimitError{StatusCode: 429, Message: "Rate limit exceeded"}
	assert.Equal(t, "Rate limit exceeded", plain.Error())

	wrapped := fmt.Errorf("cycle: %w", plain)
	rle, ok := IsRateLimitError(wrapped)
	require.True(t, ok)
	assert.Equal(t, 429, rle.StatusCode)

	_, ok = IsRateLimitError(errors.New("normal error"))
	assert.False(t, ok)
}
