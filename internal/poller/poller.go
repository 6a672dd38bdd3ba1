// Package poller runs the fetch → parse → map → publish cycle on a
// fixed interval. One goroutine, one cycle at a time: a cycle runs to
// completion before the next tick is considered, so slow tool
// invocations can never overlap. Every steady-state failure is logged
// and the cycle skipped — the process only ever exits on context
// cancellation.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/hdsentinel-bridge/internal/sensor"
	"github.com/nugget/hdsentinel-bridge/internal/sentinel"
)

// Fetcher obtains the raw XML report. *sentinel.Source satisfies this.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Publisher pushes one cycle's worth of readings. *mqtt.Publisher
// satisfies this.
type Publisher interface {
	PublishCycle(ctx context.Context, records []sentinel.DiskRecord, readings []sensor.Reading) error
}

// Recorder persists last-published values. *history.Store satisfies
// this; a nil Recorder disables persistence.
type Recorder interface {
	Record(disk, sensor, value string) error
}

// Poller owns the cycle loop. All collaborators are injected so the
// loop can be driven entirely by fakes in tests.
type Poller struct {
	source   Fetcher
	schema   *sensor.Schema
	pub      Publisher
	recorder Recorder
	interval time.Duration
	logger   *slog.Logger
}

// New creates a poller. recorder may be nil. If logger is nil,
// slog.Default() is used.
func New(source Fetcher, schema *sensor.Schema, pub Publisher, recorder Recorder, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:   source,
		schema:   schema,
		pub:      pub,
		recorder: recorder,
		interval: interval,
		logger:   logger,
	}
}

// Run executes an immediate first cycle and then one cycle per
// interval until ctx is cancelled. Cycle errors are already logged by
// Cycle; Run never returns them.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if err := p.Cycle(ctx); err != nil {
		p.logger.Warn("poll cycle skipped", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poll loop stopped")
			return
		case <-ticker.C:
			if err := p.Cycle(ctx); err != nil {
				p.logger.Warn("poll cycle skipped", "error", err)
			}
		}
	}
}

// Cycle runs one fetch → parse → map → publish pass. Any failure
// aborts the cycle and is returned for logging; nothing here is fatal
// to the process.
func (p *Poller) Cycle(ctx context.Context) error {
	start := time.Now()

	data, err := p.source.Fetch(ctx)
	if err != nil {
		return p.classify(err)
	}

	records, err := sentinel.Parse(data, p.logger)
	if err != nil {
		p.logger.Debug("unparsable report", "bytes", len(data), "snippet", snippet(data))
		return fmt.Errorf("parse: %w", err)
	}

	if len(records) == 0 {
		p.logger.Warn("report contained no disks, nothing to publish")
		return nil
	}

	readings := sensor.Map(records, p.schema)

	if err := p.pub.PublishCycle(ctx, records, readings); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	p.persist(readings)

	p.logger.Info("poll cycle complete",
		"disks", len(records),
		"readings", len(readings),
		"elapsed", time.Since(start).Truncate(time.Millisecond).String(),
	)
	return nil
}

// classify wraps source errors with a stable prefix per failure class
// so log lines stay greppable.
func (p *Poller) classify(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrToolFailed):
		return fmt.Errorf("tool execution: %w", err)
	case errors.Is(err, sentinel.ErrNotRegularFile):
		return fmt.Errorf("source path: %w", err)
	default:
		return fmt.Errorf("fetch: %w", err)
	}
}

// persist writes last values after a successful publish. Persistence
// failures are logged but never fail the cycle.
func (p *Poller) persist(readings []sensor.Reading) {
	if p.recorder == nil {
		return
	}
	for _, r := range readings {
		if err := p.recorder.Record(r.DiskAlias, r.Definition.Key, r.State()); err != nil {
			p.logger.Warn("last-value record failed",
				"disk", r.DiskAlias, "sensor", r.Definition.Key, "error", err)
			return
		}
	}
}

// snippet truncates raw XML for debug logging.
func snippet(data []byte) string {
	const max = 200
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
