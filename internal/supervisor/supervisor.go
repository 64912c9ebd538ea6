// Package supervisor runs the long-lived skyfeed services (feed, stream hub,
// HTTP server) under a suture supervisor that restarts failed services and
// stops them all when the root context is cancelled.
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/unklstewy/skyfeed/internal/logging"
)

// Config tunes restart behavior.
type Config struct {
	// FailureThreshold is the number of failures before entering backoff (default: 5)
	FailureThreshold float64

	// FailureDecay is the failure decay rate in seconds (default: 30)
	FailureDecay float64

	// FailureBackoff is the pause once the threshold is exceeded (default: 15s)
	FailureBackoff time.Duration

	// ShutdownTimeout bounds how long each service may take to stop (default: 10s)
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the production restart settings.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Supervisor is the root of the service tree.
type Supervisor struct {
	root *suture.Supervisor
}

// New creates a root supervisor named name. Zero config fields take defaults.
func New(name string, cfg Config) *Supervisor {
	def := DefaultConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = def.FailureDecay
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = def.FailureBackoff
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	return &Supervisor{
		root: suture.New(name, suture.Spec{
			EventHook:        EventHook(logging.Component("supervisor")),
			FailureThreshold: cfg.FailureThreshold,
			FailureDecay:     cfg.FailureDecay,
			FailureBackoff:   cfg.FailureBackoff,
			Timeout:          cfg.ShutdownTimeout,
		}),
	}
}

// Add registers a service; it starts immediately if the tree is running.
func (s *Supervisor) Add(svc suture.Service) suture.ServiceToken {
	return s.root.Add(svc)
}

// Serve runs the tree until ctx is cancelled.
func (s *Supervisor) Serve(ctx context.Context) error {
	return s.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine. The channel receives the
// result of Serve.
func (s *Supervisor) ServeBackground(ctx context.Context) <-chan error {
	return s.root.ServeBackground(ctx)
}

// EventHook logs supervisor events through zerolog. Panics are errors,
// everything else is a warning.
func EventHook(log zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		ev := log.Warn()
		if e.Type() == suture.EventTypeServicePanic {
			ev = log.Error()
		}
		ev.Fields(e.Map()).Msg(e.String())
	}
}
