// skyfeed-tui runs the flight feed in-process and shows the current
// batch as a live terminal table.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/unklstewy/skyfeed/internal/feed"
	"github.com/unklstewy/skyfeed/internal/logging"
	"github.com/unklstewy/skyfeed/pkg/adsb"
	"github.com/unklstewy/skyfeed/pkg/config"
)

var (
	configPath = flag.String("config", "", "Path to YAML configuration file (default: $SKYFEED_CONFIG)")
	logPath    = flag.String("log", "", "Write logs to this file (default: discarded)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// the terminal belongs to the UI
	var out io.Writer = io.Discard
	if *logPath != "" {
		file, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer file.Close()
		out = file
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: out})

	source := adsb.NewOpenSkyClient(cfg.OpenSky.BaseURL, adsb.WithTimeout(cfg.OpenSky.RequestTimeout))
	defer source.Close()

	f := feed.New(source, feed.NewRollingDataset(), feed.Config{
		Box:          cfg.BBox.Box(),
		Interval:     cfg.Feed.Interval,
		FetchOnStart: cfg.Feed.FetchOnStart,
		IconURL:      cfg.Display.IconURL,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = f.Run(ctx)
	}()

	p := tea.NewProgram(newModel(f, cfg.Display.Title), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
