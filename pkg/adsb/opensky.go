package adsb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/unklstewy/skyfeed/pkg/coordinates"
)

// DefaultOpenSkyURL is the public OpenSky Network REST API.
const DefaultOpenSkyURL = "https://opensky-network.org/api"

// OpenSkyClient implements the DataSource interface for the OpenSky Network API.
// API Documentation: https://openskynetwork.github.io/opensky-api/rest.html
// Requests are anonymous; the API thins responses and throttles to one
// fresh state every 10 seconds for unauthenticated callers.
type OpenSkyClient struct {
	// baseURL is the API base URL (default: https://opensky-network.org/api)
	baseURL string

	// httpClient is the HTTP client used for API requests
	httpClient *http.Client
}

// ClientOption customizes an OpenSkyClient.
type ClientOption func(*OpenSkyClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *OpenSkyClient) {
		c.httpClient = hc
	}
}

// WithTimeout sets an overall request timeout. Zero leaves requests bounded
// only by the caller's context.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *OpenSkyClient) {
		c.httpClient.Timeout = d
	}
}

// NewOpenSkyClient creates a new OpenSky API client.
// baseURL should be "https://opensky-network.org/api" (or custom for testing)
func NewOpenSkyClient(baseURL string, opts ...ClientOption) *OpenSkyClient {
	c := &OpenSkyClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatesURL builds the states/all request URL for a bounding box.
func (c *OpenSkyClient) StatesURL(box coordinates.BoundingBox) string {
	return fmt.Sprintf("%s/states/all?lamin=%s&lomin=%s&lamax=%s&lomax=%s",
		c.baseURL,
		formatDegrees(box.LatMin),
		formatDegrees(box.LonMin),
		formatDegrees(box.LatMax),
		formatDegrees(box.LonMax),
	)
}

// GetStates returns the state vectors of all aircraft within box.
// Uses the /states/all endpoint with a bounding box filter.
func (c *OpenSkyClient) GetStates(ctx context.Context, box coordinates.BoundingBox) (*StatesSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.StatesURL(box), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch state vectors: %w", err)
	}
	defer resp.Body.Close()

	// Check for rate limit (HTTP 429)
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header),
			Message:    "Rate limit exceeded",
			Headers:    extractRateLimitHeaders(resp.Header),
		}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	snapshot, err := decodeStates(resp.Body)
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Close cleanly shuts down the client.
func (c *OpenSkyClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// statesResponse represents the JSON response from the states/all endpoint.
// States stays untyped because each entry is a positional array of mixed types.
type statesResponse struct {
	Time   int64         `json:"time"`
	States []interface{} `json:"states"`
}

// decodeStates parses a states/all body. A missing "states" key is malformed;
// "states": null is an empty result.
func decodeStates(r io.Reader) (*StatesSnapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if _, ok := raw["states"]; !ok {
		return nil, fmt.Errorf("%w: missing \"states\" key", ErrMalformedResponse)
	}

	var body statesResponse
	if t, ok := raw["time"]; ok {
		if err := json.Unmarshal(t, &body.Time); err != nil {
			return nil, fmt.Errorf("%w: time: %v", ErrMalformedResponse, err)
		}
	}
	if err := json.Unmarshal(raw["states"], &body.States); err != nil {
		return nil, fmt.Errorf("%w: states: %v", ErrMalformedResponse, err)
	}

	snapshot := &StatesSnapshot{
		Time:   body.Time,
		States: make([]AircraftState, 0, len(body.States)),
	}
	for i, entry := range body.States {
		row, ok := entry.([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: state %d is not an array", ErrMalformedResponse, i)
		}
		state, err := parseStateVector(row)
		if err != nil {
			return nil, fmt.Errorf("%w: state %d: %v", ErrMalformedResponse, i, err)
		}
		snapshot.States = append(snapshot.States, state)
	}
	return snapshot, nil
}

// parseStateVector maps one positional record onto AircraftState by column order.
func parseStateVector(row []interface{}) (AircraftState, error) {
	if len(row) != StateVectorWidth {
		return AircraftState{}, fmt.Errorf("expected %d fields, got %d", StateVectorWidth, len(row))
	}

	var s AircraftState
	var err error
	col := func(i int, fn func(interface{}) error) {
		if err != nil {
			return
		}
		if e := fn(row[i]); e != nil {
			err = fmt.Errorf("%s: %w", StateColumns[i], e)
		}
	}

	col(0, func(v interface{}) (e error) { s.ICAO24, e = parseString(v); return })
	col(1, func(v interface{}) (e error) { s.Callsign, e = parseString(v); return })
	col(2, func(v interface{}) (e error) { s.OriginCountry, e = parseString(v); return })
	col(3, func(v interface{}) (e error) { s.TimePosition, e = parseInt(v); return })
	col(4, func(v interface{}) (e error) { s.LastContact, e = parseInt(v); return })
	col(5, func(v interface{}) (e error) { s.Longitude, e = parseFloat(v); return })
	col(6, func(v interface{}) (e error) { s.Latitude, e = parseFloat(v); return })
	col(7, func(v interface{}) (e error) { s.BaroAltitude, e = parseFloat(v); return })
	col(8, func(v interface{}) (e error) { s.OnGround, e = parseBool(v); return })
	col(9, func(v interface{}) (e error) { s.Velocity, e = parseFloat(v); return })
	col(10, func(v interface{}) (e error) { s.TrueTrack, e = parseFloat(v); return })
	col(11, func(v interface{}) (e error) { s.VerticalRate, e = parseFloat(v); return })
	col(12, func(v interface{}) (e error) { s.Sensors, e = parseSensors(v); return })
	col(13, func(v interface{}) (e error) { s.GeoAltitude, e = parseFloat(v); return })
	col(14, func(v interface{}) (e error) { s.Squawk, e = parseString(v); return })
	col(15, func(v interface{}) (e error) { s.SPI, e = parseBool(v); return })
	col(16, func(v interface{}) (e error) {
		n, e := parseInt(v)
		if n != nil {
			p := int(*n)
			s.PositionSource = &p
		}
		return e
	})

	return s, err
}

func parseString(v interface{}) (*string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return &val, nil
	default:
		return nil, fmt.Errorf("expected string, got %T", v)
	}
}

func parseFloat(v interface{}) (*float64, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return &val, nil
	default:
		return nil, fmt.Errorf("expected number, got %T", v)
	}
}

func parseInt(v interface{}) (*int64, error) {
	f, err := parseFloat(v)
	if f == nil || err != nil {
		return nil, err
	}
	n := int64(*f)
	return &n, nil
}

func parseBool(v interface{}) (*bool, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return &val, nil
	default:
		return nil, fmt.Errorf("expected bool, got %T", v)
	}
}

func parseSensors(v interface{}) ([]int, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		ids := make([]int, 0, len(val))
		for _, item := range val {
			f, ok := item.(float64)
			if !ok {
				return nil, fmt.Errorf("expected sensor id, got %T", item)
			}
			ids = append(ids, int(f))
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("expected array, got %T", v)
	}
}

// formatDegrees renders a coordinate with the shortest exact decimal form.
func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
