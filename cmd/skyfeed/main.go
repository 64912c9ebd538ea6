// skyfeed polls OpenSky for aircraft inside a bounding box and serves the
// projected positions to map clients over HTTP and websocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unklstewy/skyfeed/internal/feed"
	"github.com/unklstewy/skyfeed/internal/logging"
	"github.com/unklstewy/skyfeed/internal/metrics"
	"github.com/unklstewy/skyfeed/internal/stream"
	"github.com/unklstewy/skyfeed/internal/supervisor"
	"github.com/unklstewy/skyfeed/pkg/adsb"
	"github.com/unklstewy/skyfeed/pkg/config"
)

var (
	configPath  = flag.String("config", "", "Path to YAML configuration file (default: $SKYFEED_CONFIG)")
	writeConfig = flag.String("write-config", "", "Write the effective configuration to this path and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *writeConfig != "" {
		if err := cfg.Save(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal().Err(err).Msg("skyfeed stopped with error")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()

	source := adsb.NewOpenSkyClient(cfg.OpenSky.BaseURL, adsb.WithTimeout(cfg.OpenSky.RequestTimeout))
	defer source.Close()

	dataset := feed.NewRollingDataset()
	f := feed.New(source, dataset, feed.Config{
		Box:          cfg.BBox.Box(),
		Interval:     cfg.Feed.Interval,
		FetchOnStart: cfg.Feed.FetchOnStart,
		IconURL:      cfg.Display.IconURL,
		Metrics:      m,
	})

	hub := stream.NewHub(dataset, m, cfg.Server.CORSOrigins)
	f.AddSink(hub)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           NewServer(cfg, f, hub, m),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sup := supervisor.New("skyfeed", supervisor.DefaultConfig())
	sup.Add(hub)
	sup.Add(f)
	sup.Add(supervisor.NewHTTPService(httpServer, 10*time.Second))

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("source", cfg.OpenSky.BaseURL).
		Dur("interval", f.Interval()).
		Msg("skyfeed starting")

	err := sup.Serve(ctx)
	if err != nil && ctx.Err() != nil {
		err = nil
	}
	logging.Info().Msg("skyfeed stopped")
	return err
}
