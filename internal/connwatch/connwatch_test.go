package connwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastBackoff keeps the tests snappy: millisecond retries and polling.
func fastBackoff() Backoff {
	return Backoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		MaxRetries:   3,
		PollInterval: 5 * time.Millisecond,
		ProbeTimeout: time.Second,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestWatch_ReadyAfterSuccessfulProbe(t *testing.T) {
	var readyCalls atomic.Int32
	w := Watch(context.Background(),
		func(ctx context.Context) error { return nil },
		fastBackoff(),
		func() { readyCalls.Add(1) },
		nil,
		discardLogger(),
	)
	defer w.Stop()

	waitFor(t, w.IsReady, "watcher never became ready")
	waitFor(t, func() bool { return readyCalls.Load() >= 1 }, "onReady never fired")

	s := w.Status()
	if !s.Ready {
		t.Error("Status().Ready = false")
	}
	if s.LastError != "" {
		t.Errorf("Status().LastError = %q, want empty", s.LastError)
	}
	if s.LastCheck.IsZero() {
		t.Error("Status().LastCheck is zero")
	}
}

func TestWatch_FailingProbe(t *testing.T) {
	probeErr := errors.New("connection refused")
	var probes atomic.Int32
	w := Watch(context.Background(),
		func(ctx context.Context) error {
			probes.Add(1)
			return probeErr
		},
		fastBackoff(),
		nil, nil,
		discardLogger(),
	)
	defer w.Stop()

	// All startup retries exhausted, then background polling continues.
	waitFor(t, func() bool { return probes.Load() > 3 }, "background polling never started")

	if w.IsReady() {
		t.Error("IsReady() = true with a failing probe")
	}
	s := w.Status()
	if s.Ready {
		t.Error("Status().Ready = true")
	}
	if s.LastError != "connection refused" {
		t.Errorf("Status().LastError = %q", s.LastError)
	}
}

func TestWatch_RecoversAfterOutage(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	var readyCalls, downCalls atomic.Int32

	w := Watch(context.Background(),
		func(ctx context.Context) error {
			if healthy.Load() {
				return nil
			}
			return errors.New("broker down")
		},
		fastBackoff(),
		func() { readyCalls.Add(1) },
		func(error) { downCalls.Add(1) },
		discardLogger(),
	)
	defer w.Stop()

	waitFor(t, w.IsReady, "watcher never became ready")

	healthy.Store(false)
	waitFor(t, func() bool { return !w.IsReady() }, "watcher never noticed the outage")
	waitFor(t, func() bool { return downCalls.Load() >= 1 }, "onDown never fired")

	healthy.Store(true)
	waitFor(t, w.IsReady, "watcher never recovered")
	waitFor(t, func() bool { return readyCalls.Load() >= 2 }, "onReady not fired on recovery")
}

func TestWatch_DefaultsApplied(t *testing.T) {
	w := Watch(context.Background(),
		func(ctx context.Context) error { return nil },
		Backoff{},
		nil, nil,
		discardLogger(),
	)
	defer w.Stop()

	defaults := DefaultBackoff()
	if w.backoff != defaults {
		t.Errorf("backoff = %+v, want defaults %+v", w.backoff, defaults)
	}
}

func TestWatch_Stop(t *testing.T) {
	w := Watch(context.Background(),
		func(ctx context.Context) error { return nil },
		fastBackoff(),
		nil, nil,
		discardLogger(),
	)

	waitFor(t, w.IsReady, "watcher never became ready")

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return")
	}
}

func TestWatch_NilProbePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Watch(nil probe) did not panic")
		}
	}()
	Watch(context.Background(), nil, Backoff{}, nil, nil, discardLogger())
}
