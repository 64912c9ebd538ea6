// Package config loads skyfeed configuration from built-in defaults, an
// optional YAML file and SKYFEED_* environment variables, in that order of
// precedence (env wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/unklstewy/skyfeed/pkg/coordinates"
)

// EnvPrefix prefixes every environment override, e.g. SKYFEED_FEED_INTERVAL=5s.
const EnvPrefix = "SKYFEED_"

// ConfigPathEnvVar can point at the YAML config file when no path is given.
const ConfigPathEnvVar = "SKYFEED_CONFIG"

// Config represents the complete application configuration.
type Config struct {
	OpenSky OpenSkyConfig     `koanf:"opensky"`
	Feed    FeedConfig        `koanf:"feed"`
	BBox    BoundingBoxConfig `koanf:"bbox"`
	Display DisplayConfig     `koanf:"display"`
	Server  ServerConfig      `koanf:"server"`
	Logging LoggingConfig     `koanf:"logging"`
}

// OpenSkyConfig contains state vector API settings.
type OpenSkyConfig struct {
	// BaseURL is the API base URL (default: https://opensky-network.org/api)
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// RequestTimeout bounds each states/all call. 0 = no explicit timeout.
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gte=0"`
}

// FeedConfig controls the refresh cycle.
type FeedConfig struct {
	// Interval is the fixed refresh period (default: 10s, the anonymous API cadence)
	Interval time.Duration `koanf:"interval" validate:"gt=0"`

	// FetchOnStart runs one cycle immediately instead of waiting a full interval
	FetchOnStart bool `koanf:"fetch_on_start"`
}

// BoundingBoxConfig is the geographic region to poll, in decimal degrees.
// Range and ordering are checked by coordinates.BoundingBox.Validate.
type BoundingBoxConfig struct {
	LonMin float64 `koanf:"lon_min"`
	LatMin float64 `koanf:"lat_min"`
	LonMax float64 `koanf:"lon_max"`
	LatMax float64 `koanf:"lat_max"`
}

// Box converts the configuration to a coordinates.BoundingBox.
func (b BoundingBoxConfig) Box() coordinates.BoundingBox {
	return coordinates.BoundingBox{LonMin: b.LonMin, LatMin: b.LatMin, LonMax: b.LonMax, LatMax: b.LatMax}
}

// Tooltip binds a hover label to a dataset column.
type Tooltip struct {
	Label string `koanf:"label" json:"label" validate:"required"`
	Field string `koanf:"field" json:"field" validate:"required"`
}

// DisplayConfig is static configuration handed to the map client as is.
type DisplayConfig struct {
	// Title is the page title
	Title string `koanf:"title"`

	// IconURL is the aircraft icon image, rotated by rot_angle on the map
	IconURL string `koanf:"icon_url" validate:"omitempty,url"`

	// Tooltips lists the hover fields, in display order
	Tooltips []Tooltip `koanf:"tooltips" validate:"dive"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the server bind address (default: "0.0.0.0")
	Host string `koanf:"host"`

	// Port is the HTTP server port (default: 8084)
	Port int `koanf:"port" validate:"gte=1,lte=65535"`

	// CORSOrigins lists allowed browser origins (default: all)
	CORSOrigins []string `koanf:"cors_origins"`

	// RequestsPerMinute caps API requests per client IP. 0 disables the limit.
	RequestsPerMinute int `koanf:"requests_per_minute" validate:"gte=0"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig selects log verbosity and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OpenSky: OpenSkyConfig{
			BaseURL:        "https://opensky-network.org/api",
			RequestTimeout: 0,
		},
		Feed: FeedConfig{
			Interval:     10 * time.Second, // unregistered users get one fresh state per 10s
			FetchOnStart: true,
		},
		BBox: BoundingBoxConfig{
			LonMin: -125.974,
			LatMin: 30.038,
			LonMax: 68.748,
			LatMax: 52.214,
		},
		Display: DisplayConfig{
			Title:   "Near Real Time Flight Tracking",
			IconURL: "https://image.flaticon.com/icons/svg/984/984233.svg",
			Tooltips: []Tooltip{
				{Label: "Call sign", Field: "callsign"},
				{Label: "Origin Country", Field: "origin_country"},
				{Label: "velocity(m/s)", Field: "velocity"},
				{Label: "Altitude(m)", Field: "baro_altitude"},
			},
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8084,
			CORSOrigins:       []string{"*"},
			RequestsPerMinute: 120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration layered as defaults < YAML file < environment.
// An empty path falls back to $SKYFEED_CONFIG; a path that does not exist
// is skipped and the defaults are used.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if origins, ok := k.Get("server.cors_origins").(string); ok {
		if err := k.Set("server.cors_origins", splitList(origins)); err != nil {
			return nil, fmt.Errorf("failed to set server.cors_origins: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and the bounding box ordering.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.BBox.Box().Validate(); err != nil {
		return fmt.Errorf("invalid configuration: bbox: %w", err)
	}
	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(c, "koanf"), nil); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data, err := k.Marshal(yaml.Parser())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// envKey maps SKYFEED_FEED_FETCH_ON_START to feed.fetch_on_start: the first
// segment after the prefix names the section, the rest is the key.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok || rest == "" || section == "config" {
		return ""
	}
	return section + "." + rest
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
