package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/skyfeed/internal/feed"
	"github.com/unklstewy/skyfeed/pkg/adsb"
	"github.com/unklstewy/skyfeed/pkg/config"
	"github.com/unklstewy/skyfeed/pkg/coordinates"
)

var box = coordinates.BoundingBox{LonMin: -125.974, LatMin: 30.038, LonMax: 68.748, LatMax: 52.214}

func upstream(t *testing.T, status int, body string) *adsb.OpenSkyClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status == http.StatusTooManyRequests {
			w.Header().Set("X-Rate-Limit-Retry-After-Seconds", "30")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return adsb.NewOpenSkyClient(srv.URL)
}

const body = `{"time": 1700000000, "states": [
	["a12345", "UAL123  ", "United States", 1700000000, 1700000001, -80.5, 35.5, 10000.0, false, 230.0, 90.0, 0.0, null, 10100.0, "1200", false, 0],
	["b67890", null, "Canada", null, 1700000001, null, null, null, true, null, null, null, null, null, null, false, 0]
]}`

func TestCheckOnceSummary(t *testing.T) {
	var out bytes.Buffer
	err := checkOnce(context.Background(), upstream(t, http.StatusOK, body), box, "", formatSummary, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "time: 1700000000")
	assert.Contains(t, out.String(), "aircraft: 2 (1 with position, 1 inside box)")
	assert.Contains(t, out.String(), "a12345")
	assert.Contains(t, out.String(), feed.MissingValue)
}

func TestCheckOnceJSON(t *testing.T) {
	var out bytes.Buffer
	err := checkOnce(context.Background(), upstream(t, http.StatusOK, body), box, "icon.svg", formatJSON, &out)
	require.NoError(t, err)

	var got struct {
		Time    int64                    `json:"time"`
		Count   int                      `json:"count"`
		Columns map[string][]interface{} `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, int64(1700000000), got.Time)
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, []interface{}{"icon.svg", "icon.svg"}, got.Columns["url"])
	assert.Equal(t, []interface{}{-90.0, feed.MissingValue}, got.Columns["rot_angle"])
}

func TestCheckOnceRateLimited(t *testing.T) {
	var out bytes.Buffer
	err := checkOnce(context.Background(), upstream(t, http.StatusTooManyRequests, "Too many requests"), box, "", formatSummary, &out)
	require.Error(t, err)

	var rle *adsb.RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 30.0, rle.RetryAfter.Seconds())
	assert.Empty(t, out.String())
}

func TestCheckOnceUnknownFormat(t *testing.T) {
	err := checkOnce(context.Background(), upstream(t, http.StatusOK, body), box, "", "xml", &bytes.Buffer{})
	assert.ErrorContains(t, err, "unknown format")
}

func TestRunExitCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		format string
		want   int
	}{
		{"Success", http.StatusOK, body, formatSummary, 0},
		{"Rate limited", http.StatusTooManyRequests, "Too many requests", formatSummary, 2},
		{"Server error", http.StatusInternalServerError, "boom", formatSummary, 1},
		{"Bad format", http.StatusOK, body, "xml", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			cfg := config.DefaultConfig()
			cfg.OpenSky.BaseURL = srv.URL

			var out bytes.Buffer
			assert.Equal(t, tt.want, run(cfg, tt.format, &out))
		})
	}
}

func TestCheckOnceSummaryOutsideBox(t *testing.T) {
	narrow := coordinates.BoundingBox{LonMin: -80, LatMin: 30, LonMax: -70, LatMax: 40}

	var out bytes.Buffer
	err := checkOnce(context.Background(), upstream(t, http.StatusOK, body), narrow, "", formatSummary, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "aircraft: 2 (1 with position, 0 inside box)")
}
