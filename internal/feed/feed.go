// Package feed keeps a near real time view of the aircraft inside a bounding
// box. On a fixed interval it fetches state vectors, augments them with map
// coordinates and icon rotation, sanitizes missing values and publishes the
// batch into a RollingDataset that holds only the newest batch.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/unklstewy/skyfeed/internal/logging"
	"github.com/unklstewy/skyfeed/internal/metrics"
	"github.com/unklstewy/skyfeed/pkg/adsb"
	"github.com/unklstewy/skyfeed/pkg/coordinates"
)

// DefaultInterval is the refresh period used when Config.Interval is zero.
const DefaultInterval = 10 * time.Second

// ErrCycleInProgress is returned by Refresh when another cycle is running.
var ErrCycleInProgress = errors.New("refresh cycle already in progress")

// Config holds the feed settings.
type Config struct {
	// Box is the polled region
	Box coordinates.BoundingBox

	// Interval is the refresh period (default: 10s)
	Interval time.Duration

	// FetchOnStart runs a cycle as soon as Run starts
	FetchOnStart bool

	// IconURL is attached to every record as the "url" column
	IconURL string

	// Metrics is optional
	Metrics *metrics.Metrics
}

// Status describes the most recent refresh cycle.
type Status struct {
	Cycles    int
	Failures  int
	Skipped   int
	LastRun   time.Time
	LastCount int
	LastError string
}

// Feed drives refresh cycles into a RollingDataset.
type Feed struct {
	source  adsb.DataSource
	dataset *RollingDataset
	cfg     Config
	log     zerolog.Logger

	// cycle is held for the whole of a refresh; at most one is active.
	cycle sync.Mutex
	// limiter keeps tick-driven cycles at least ~one interval apart.
	limiter *rate.Limiter

	mu     sync.RWMutex
	sinks  []Sink
	status Status
}

// New creates a Feed reading from source and publishing into dataset.
func New(source adsb.DataSource, dataset *RollingDataset, cfg Config) *Feed {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	// Ticks may be delivered a little late and the next one a little early;
	// allow 10% jitter so an on-schedule tick is never refused.
	spacing := cfg.Interval - cfg.Interval/10

	return &Feed{
		source:  source,
		dataset: dataset,
		cfg:     cfg,
		log:     logging.Component("feed"),
		limiter: rate.NewLimiter(rate.Every(spacing), 1),
	}
}

// AddSink registers a sink notified after every successful publish.
func (f *Feed) AddSink(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Dataset returns the dataset the feed publishes into.
func (f *Feed) Dataset() *RollingDataset {
	return f.dataset
}

// Interval returns the effective refresh period.
func (f *Feed) Interval() time.Duration {
	return f.cfg.Interval
}

// Status returns a copy of the cycle statistics.
func (f *Feed) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

// Serve implements suture.Service.
func (f *Feed) Serve(ctx context.Context) error {
	return f.Run(ctx)
}

// String names the service in supervisor logs.
func (f *Feed) String() string {
	return "feed"
}

// Run fires a refresh cycle every interval until ctx is cancelled. Failed
// cycles are logged and the next tick is the only retry. A tick that arrives
// while a cycle is still running is skipped, not queued.
func (f *Feed) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	f.log.Info().
		Dur("interval", f.cfg.Interval).
		Float64("lon_min", f.cfg.Box.LonMin).
		Float64("lat_min", f.cfg.Box.LatMin).
		Float64("lon_max", f.cfg.Box.LonMax).
		Float64("lat_max", f.cfg.Box.LatMax).
		Msg("feed started")

	if f.cfg.FetchOnStart {
		f.tick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			f.log.Info().Msg("feed stopped")
			return ctx.Err()
		case <-ticker.C:
			f.tick(ctx)
		}
	}
}

// tick starts a cycle unless one is running or the last one started too recently.
func (f *Feed) tick(ctx context.Context) {
	if !f.limiter.Allow() {
		f.skip("tick too early")
		return
	}

	err := f.Refresh(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrCycleInProgress):
		f.skip("previous cycle still running")
	case ctx.Err() != nil:
		// shutting down
	default:
		f.log.Warn().Err(err).Msg("refresh failed, dataset unchanged")
	}
}

func (f *Feed) skip(reason string) {
	f.mu.Lock()
	f.status.Skipped++
	f.mu.Unlock()
	f.cfg.Metrics.SkippedCycle()
	f.log.Debug().Str("reason", reason).Msg("tick skipped")
}

// Refresh runs one Fetch, Shape, Augment, Sanitize, Publish cycle. On any
// fetch error the dataset and sinks are left untouched.
func (f *Feed) Refresh(ctx context.Context) error {
	if !f.cycle.TryLock() {
		return ErrCycleInProgress
	}
	defer f.cycle.Unlock()

	start := time.Now()

	snapshot, err := f.source.GetStates(ctx, f.cfg.Box)
	if err != nil {
		err = fmt.Errorf("fetch states: %w", err)
		f.finish(start, 0, err)
		return err
	}

	records := SanitizeAll(Augment(snapshot.States, f.cfg.IconURL))
	f.publish(records)
	f.finish(start, len(records), nil)
	return nil
}

// publish replaces the visible batch: rollover equals the batch size.
func (f *Feed) publish(records []Record) {
	rollover := len(records)
	f.dataset.Stream(records, rollover)

	f.mu.RLock()
	sinks := append([]Sink(nil), f.sinks...)
	f.mu.RUnlock()

	if len(sinks) == 0 {
		return
	}
	cols := ToColumns(records)
	for _, s := range sinks {
		s.Stream(cols, rollover)
	}
}

func (f *Feed) finish(start time.Time, count int, err error) {
	elapsed := time.Since(start)

	f.mu.Lock()
	f.status.Cycles++
	f.status.LastRun = start
	if err != nil {
		f.status.Failures++
		f.status.LastError = err.Error()
	} else {
		f.status.LastCount = count
		f.status.LastError = ""
	}
	f.mu.Unlock()

	f.cfg.Metrics.ObserveCycle(elapsed, err, count)
	if err == nil {
		f.log.Info().Int("aircraft", count).Dur("took", elapsed).Msg("refresh complete")
	}
}
