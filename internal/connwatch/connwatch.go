// Package connwatch monitors broker reachability with exponential
// backoff. The poll loop itself never blocks on the broker — autopaho
// reconnects in the background and a down broker just skips cycles —
// so the watcher's job is observability: it logs the exact moment the
// broker connection is lost and recovered, and exposes the current
// state as a [Status] snapshot.
//
// Probing runs in two phases:
//  1. Startup: exponential backoff (2s, 4s, 8s, ... capped at 60s)
//  2. Background: periodic polling with state-transition callbacks
package connwatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ProbeFunc checks whether the broker is reachable. Return nil if
// healthy. Must be safe for concurrent use.
type ProbeFunc func(ctx context.Context) error

// Backoff controls the probe retry schedule.
type Backoff struct {
	// InitialDelay is the delay before the first retry (default: 2s).
	InitialDelay time.Duration

	// MaxDelay is the ceiling for backoff growth (default: 60s).
	MaxDelay time.Duration

	// Multiplier scales the delay after each retry (default: 2.0).
	Multiplier float64

	// MaxRetries is the maximum number of startup probe attempts
	// before falling back to background polling (default: 10).
	MaxRetries int

	// PollInterval is the background check interval (default: 60s).
	PollInterval time.Duration

	// ProbeTimeout limits each individual probe call (default: 10s).
	ProbeTimeout time.Duration
}

// DefaultBackoff returns the standard schedule: 2s, 4s, 8s, 16s, 32s,
// 60s (capped), 10 startup retries, then 60-second polling.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		MaxRetries:   10,
		PollInterval: 60 * time.Second,
		ProbeTimeout: 10 * time.Second,
	}
}

// Status is the broker health snapshot, suitable for JSON output.
type Status struct {
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// Watcher monitors a single broker connection.
type Watcher struct {
	probe   ProbeFunc
	backoff Backoff
	onReady func()
	onDown  func(err error)
	logger  *slog.Logger

	ready  atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	lastErr   error
	lastCheck time.Time
}

// Watch starts a broker watcher in a background goroutine. onReady and
// onDown fire on state transitions and may be nil; they are called in
// their own goroutine and must not block indefinitely. Zero-value
// backoff fields are replaced with defaults. Panics if probe is nil.
func Watch(ctx context.Context, probe ProbeFunc, backoff Backoff, onReady func(), onDown func(error), logger *slog.Logger) *Watcher {
	if probe == nil {
		panic("connwatch: probe must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultBackoff()
	if backoff.InitialDelay <= 0 {
		backoff.InitialDelay = defaults.InitialDelay
	}
	if backoff.MaxDelay <= 0 {
		backoff.MaxDelay = defaults.MaxDelay
	}
	if backoff.Multiplier <= 0 {
		backoff.Multiplier = defaults.Multiplier
	}
	if backoff.MaxRetries <= 0 {
		backoff.MaxRetries = defaults.MaxRetries
	}
	if backoff.PollInterval <= 0 {
		backoff.PollInterval = defaults.PollInterval
	}
	if backoff.ProbeTimeout <= 0 {
		backoff.ProbeTimeout = defaults.ProbeTimeout
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		probe:   probe,
		backoff: backoff,
		onReady: onReady,
		onDown:  onDown,
		logger:  logger,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go w.run(watchCtx)
	return w
}

// IsReady reports whether the broker is currently reachable.
func (w *Watcher) IsReady() bool {
	return w.ready.Load()
}

// Status returns the current health snapshot.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Status{
		Ready:     w.ready.Load(),
		LastCheck: w.lastCheck,
	}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// Stop cancels the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

// run drives both phases: startup backoff, then background polling.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	delay := w.backoff.InitialDelay
	for attempt := 1; attempt <= w.backoff.MaxRetries; attempt++ {
		err := w.doProbe(ctx)
		w.record(err)

		if err == nil {
			w.ready.Store(true)
			w.logger.Info("broker connected", "after_attempts", attempt)
			if w.onReady != nil {
				go w.onReady()
			}
			break
		}

		if attempt == w.backoff.MaxRetries {
			w.logger.Info("broker unreachable at startup, entering background polling",
				"attempts", attempt, "error", err)
			break
		}

		w.logger.Debug("broker probe failed, retrying",
			"attempt", attempt, "next_delay", delay.String(), "error", err)

		if !sleepCtx(ctx, delay) {
			return
		}

		delay = time.Duration(float64(delay) * w.backoff.Multiplier)
		if delay > w.backoff.MaxDelay {
			delay = w.backoff.MaxDelay
		}
	}

	ticker := time.NewTicker(w.backoff.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.doProbe(ctx)
			w.record(err)
			wasReady := w.ready.Load()

			switch {
			case wasReady && err != nil:
				w.ready.Store(false)
				w.logger.Warn("broker connection lost", "error", err)
				if w.onDown != nil {
					go w.onDown(err)
				}
			case !wasReady && err == nil:
				w.ready.Store(true)
				w.logger.Info("broker connection recovered")
				if w.onReady != nil {
					go w.onReady()
				}
			case !wasReady && err != nil:
				w.logger.Debug("broker still unreachable", "error", err)
			}
		}
	}
}

func (w *Watcher) doProbe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, w.backoff.ProbeTimeout)
	defer cancel()
	return w.probe(probeCtx)
}

func (w *Watcher) record(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.lastCheck = time.Now()
	w.mu.Unlock()
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false if
// cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
