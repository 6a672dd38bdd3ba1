package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nugget/hdsentinel-bridge/internal/sensor"
	"github.com/nugget/hdsentinel-bridge/internal/sentinel"
)

const reportXML = `<?xml version="1.0" encoding="UTF-8"?>
<Hard_Disk_Sentinel>
  <Hard_Disk_Summary>
    <Hard_Disk_Serial_Number>S4EWNF0M123456</Hard_Disk_Serial_Number>
    <Hard_Disk_Model_ID>Samsung SSD 970</Hard_Disk_Model_ID>
    <Temperature>38 C</Temperature>
    <Health>100 %</Health>
  </Hard_Disk_Summary>
</Hard_Disk_Sentinel>`

type fakeFetcher struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

type fakePublisher struct {
	err error

	mu       sync.Mutex
	calls    int
	records  []sentinel.DiskRecord
	readings []sensor.Reading
}

func (f *fakePublisher) PublishCycle(_ context.Context, records []sentinel.DiskRecord, readings []sensor.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.records = records
	f.readings = readings
	return f.err
}

func (f *fakePublisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRecorder struct {
	err     error
	records map[string]string
}

func (f *fakeRecorder) Record(disk, sensor, value string) error {
	if f.err != nil {
		return f.err
	}
	if f.records == nil {
		f.records = make(map[string]string)
	}
	f.records[disk+"."+sensor] = value
	return nil
}

func testSchema() *sensor.Schema {
	return &sensor.Schema{Sensors: []sensor.Definition{
		{Key: "temperature", Name: "Temperature", Transform: sensor.TransformFirstInt},
		{Key: "health", Name: "Health", Transform: sensor.TransformFirstInt},
	}}
}

func testPoller(f *fakeFetcher, pub *fakePublisher, rec Recorder) *Poller {
	return New(f, testSchema(), pub, rec, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCycle_Success(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte(reportXML)}
	pub := &fakePublisher{}
	rec := &fakeRecorder{}

	p := testPoller(fetcher, pub, rec)
	if err := p.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}

	if pub.calls != 1 {
		t.Fatalf("PublishCycle calls = %d, want 1", pub.calls)
	}
	if len(pub.records) != 1 {
		t.Fatalf("published %d records, want 1", len(pub.records))
	}
	if pub.records[0].Serial != "S4EWNF0M123456" {
		t.Errorf("record serial = %q", pub.records[0].Serial)
	}
	if len(pub.readings) != 2 {
		t.Errorf("published %d readings, want 2", len(pub.readings))
	}

	alias := pub.records[0].Alias
	if got := rec.records[alias+".temperature"]; got != "38" {
		t.Errorf("recorded temperature = %q, want %q", got, "38")
	}
}

func TestCycle_FetchErrorSkipsPublish(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"tool failure", sentinel.ErrToolFailed, "tool execution"},
		{"directory source", sentinel.ErrNotRegularFile, "source path"},
		{"generic", errors.New("boom"), "fetch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{err: tt.err}
			pub := &fakePublisher{}

			p := testPoller(fetcher, pub, nil)
			err := p.Cycle(context.Background())
			if err == nil {
				t.Fatal("Cycle() = nil, want error")
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("error = %v, want chain to %v", err, tt.err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want prefix %q", err, tt.want)
			}
			if pub.calls != 0 {
				t.Errorf("PublishCycle called %d times on fetch failure", pub.calls)
			}
		})
	}
}

func TestCycle_ParseErrorSkipsPublish(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("<unclosed")}
	pub := &fakePublisher{}

	p := testPoller(fetcher, pub, nil)
	err := p.Cycle(context.Background())
	if !errors.Is(err, sentinel.ErrMalformedXML) {
		t.Errorf("error = %v, want ErrMalformedXML", err)
	}
	if pub.calls != 0 {
		t.Errorf("PublishCycle called %d times on parse failure", pub.calls)
	}
}

func TestCycle_EmptyReport(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("<Hard_Disk_Sentinel></Hard_Disk_Sentinel>")}
	pub := &fakePublisher{}

	p := testPoller(fetcher, pub, nil)
	if err := p.Cycle(context.Background()); err != nil {
		t.Errorf("Cycle() error = %v, want nil for empty report", err)
	}
	if pub.calls != 0 {
		t.Errorf("PublishCycle called %d times for empty report", pub.calls)
	}
}

func TestCycle_PublishErrorSkipsPersist(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte(reportXML)}
	pub := &fakePublisher{err: errors.New("broker down")}
	rec := &fakeRecorder{}

	p := testPoller(fetcher, pub, rec)
	err := p.Cycle(context.Background())
	if err == nil {
		t.Fatal("Cycle() = nil, want publish error")
	}
	if len(rec.records) != 0 {
		t.Errorf("recorded %d values after failed publish, want 0", len(rec.records))
	}
}

func TestCycle_RecorderErrorNotFatal(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte(reportXML)}
	pub := &fakePublisher{}
	rec := &fakeRecorder{err: errors.New("disk full")}

	p := testPoller(fetcher, pub, rec)
	if err := p.Cycle(context.Background()); err != nil {
		t.Errorf("Cycle() error = %v, want nil despite recorder failure", err)
	}
}

func TestCycle_NilRecorder(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte(reportXML)}
	pub := &fakePublisher{}

	p := testPoller(fetcher, pub, nil)
	if err := p.Cycle(context.Background()); err != nil {
		t.Errorf("Cycle() error = %v", err)
	}
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte(reportXML)}
	pub := &fakePublisher{}

	p := New(fetcher, testSchema(), pub, nil, 10*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for pub.callCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if got := pub.callCount(); got < 3 {
		t.Errorf("PublishCycle calls = %d, want at least 3", got)
	}
}
