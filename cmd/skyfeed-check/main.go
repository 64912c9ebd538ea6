// skyfeed-check runs a single refresh cycle against the configured source
// and prints the sanitized batch. Useful for checking connectivity, the
// bounding box and the current rate-limit budget.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"

	"github.com/unklstewy/skyfeed/internal/feed"
	"github.com/unklstewy/skyfeed/internal/logging"
	"github.com/unklstewy/skyfeed/pkg/adsb"
	"github.com/unklstewy/skyfeed/pkg/config"
	"github.com/unklstewy/skyfeed/pkg/coordinates"
)

const (
	formatJSON    = "json"
	formatSummary = "summary"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file (default: $SKYFEED_CONFIG)")
	format := flag.String("format", formatSummary, "Output format: summary or json")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: "console"})

	os.Exit(run(cfg, *format, os.Stdout))
}

// run fetches once and returns the process exit code: 0 on success, 2 when
// rate limited, 1 on any other failure.
func run(cfg *config.Config, format string, w io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := adsb.NewOpenSkyClient(cfg.OpenSky.BaseURL, adsb.WithTimeout(cfg.OpenSky.RequestTimeout))
	defer client.Close()

	logging.Info().Str("url", client.StatesURL(cfg.BBox.Box())).Msg("fetching states")

	err := checkOnce(ctx, client, cfg.BBox.Box(), cfg.Display.IconURL, format, w)
	if err == nil {
		return 0
	}

	var rle *adsb.RateLimitError
	if errors.As(err, &rle) {
		logging.Error().
			Dur("retry_after", rle.RetryAfter).
			Int("remaining", rle.Headers.Remaining).
			Msg("rate limited")
		return 2
	}
	logging.Error().Err(err).Msg("check failed")
	return 1
}

// checkOnce fetches one batch, runs it through the same augment and sanitize
// steps as the feed and writes it to w.
func checkOnce(ctx context.Context, source adsb.DataSource, box coordinates.BoundingBox, iconURL, format string, w io.Writer) error {
	if format != formatJSON && format != formatSummary {
		return fmt.Errorf("unknown format %q", format)
	}

	snapshot, err := source.GetStates(ctx, box)
	if err != nil {
		return fmt.Errorf("fetch states: %w", err)
	}
	records := feed.SanitizeAll(feed.Augment(snapshot.States, iconURL))

	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"time":    snapshot.Time,
			"count":   len(records),
			"columns": feed.ToColumns(records),
		})
	}

	positioned, inside := 0, 0
	for _, s := range snapshot.States {
		p, ok := s.Position()
		if !ok {
			continue
		}
		positioned++
		if box.Contains(p) {
			inside++
		}
	}
	fmt.Fprintf(w, "time: %d\n", snapshot.Time)
	fmt.Fprintf(w, "aircraft: %d (%d with position, %d inside box)\n", len(records), positioned, inside)
	for _, r := range records {
		fmt.Fprintf(w, "  %-8v %-10v %-24v x=%v y=%v\n",
			r["icao24"], r["callsign"], r["origin_country"], r[feed.ColumnX], r[feed.ColumnY])
	}
	return nil
}
