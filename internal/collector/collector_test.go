package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"skymind-collector/internal/weather"
)

// captureHandler records log records for assertion in tests.
type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *captureHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(_ string) slog.Handler { return h }

func (h *captureHandler) count(level slog.Level, msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Level == level && r.Message == msg {
			n++
		}
	}
	return n
}

type fetchResult struct {
	reading weather.Reading
	err     error
}

type fakeFetcher struct {
	results []fetchResult // consumed in order; the last one repeats
	calls   int
	lat     float64
	lon     float64
}

func (f *fakeFetcher) FetchCurrent(_ context.Context, lat, lon float64) (weather.Reading, error) {
	f.lat, f.lon = lat, lon
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	return f.results[i].reading, f.results[i].err
}

type fakePublisher struct {
	err       error
	published []weather.Reading
	attempts  int
	onPublish func(attempt int)
}

func (p *fakePublisher) Publish(_ context.Context, r weather.Reading) error {
	p.attempts++
	if p.onPublish != nil {
		defer p.onPublish(p.attempts)
	}
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, r)
	return nil
}

var sampleReading = weather.Reading{
	Latitude:      -23.5,
	Longitude:     -46.625,
	Temperature:   24.5,
	Humidity:      70,
	WindSpeed:     12.3,
	ConditionCode: 1,
	Timestamp:     "2024-01-01T12:00",
}

func TestCycle_PublishesFetchedReading(t *testing.T) {
	h := &captureHandler{}
	f := &fakeFetcher{results: []fetchResult{{reading: sampleReading}}}
	p := &fakePublisher{}
	c := New(f, p, Options{Latitude: -23.56, Longitude: -46.65}, slog.New(h))

	if ok := c.Cycle(context.Background()); !ok {
		t.Fatal("Cycle() = false, want true")
	}
	if f.lat != -23.56 || f.lon != -46.65 {
		t.Errorf("fetch coordinates = (%v, %v), want configured (-23.56, -46.65)", f.lat, f.lon)
	}
	if len(p.published) != 1 || p.published[0] != sampleReading {
		t.Errorf("published = %+v, want exactly [%+v]", p.published, sampleReading)
	}
	if n := h.count(slog.LevelInfo, "fetching current weather"); n != 1 {
		t.Errorf("fetch attempt log lines = %d, want 1", n)
	}
	if n := h.count(slog.LevelInfo, "reading published"); n != 1 {
		t.Errorf("success log lines = %d, want 1", n)
	}
}

func TestCycle_FetchFailureSkipsPublish(t *testing.T) {
	h := &captureHandler{}
	f := &fakeFetcher{results: []fetchResult{{err: errors.New("fetch returned status 503")}}}
	p := &fakePublisher{}
	c := New(f, p, Options{}, slog.New(h))

	if ok := c.Cycle(context.Background()); ok {
		t.Fatal("Cycle() = true, want false")
	}
	if p.attempts != 0 {
		t.Errorf("publish attempts = %d, want 0", p.attempts)
	}
	if n := h.count(slog.LevelError, "weather fetch failed, skipping cycle"); n != 1 {
		t.Errorf("fetch error log lines = %d, want 1", n)
	}
}

func TestCycle_PublishFailureDropsReading(t *testing.T) {
	h := &captureHandler{}
	f := &fakeFetcher{results: []fetchResult{{reading: sampleReading}}}
	p := &fakePublisher{err: errors.New("rabbitmq connect: Exception (403) Reason: \"ACCESS_REFUSED\"")}
	c := New(f, p, Options{}, slog.New(h))

	if ok := c.Cycle(context.Background()); ok {
		t.Fatal("Cycle() = true, want false")
	}
	if p.attempts != 1 {
		t.Errorf("publish attempts = %d, want 1 (no retry)", p.attempts)
	}
	if n := h.count(slog.LevelError, "publish failed, reading dropped"); n != 1 {
		t.Errorf("publish error log lines = %d, want 1", n)
	}
}

func TestRun_ContinuesAfterFetchTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeFetcher{results: []fetchResult{
		{err: context.DeadlineExceeded},
		{reading: sampleReading},
	}}
	p := &fakePublisher{onPublish: func(attempt int) {
		if attempt == 2 {
			cancel()
		}
	}}
	c := New(f, p, Options{Interval: 10 * time.Millisecond}, slog.New(&captureHandler{}))

	err := c.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if f.calls != 3 {
		t.Errorf("fetch calls = %d, want 3 (failed, ok, ok)", f.calls)
	}
	if len(p.published) != 2 {
		t.Errorf("published = %d, want 2", len(p.published))
	}
}

func TestRun_ContinuesAfterPublishFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeFetcher{results: []fetchResult{{reading: sampleReading}}}
	p := &fakePublisher{
		err: errors.New("connection refused"),
		onPublish: func(attempt int) {
			if attempt == 3 {
				cancel()
			}
		},
	}
	c := New(f, p, Options{Interval: 10 * time.Millisecond}, slog.New(&captureHandler{}))

	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if p.attempts != 3 {
		t.Errorf("publish attempts = %d, want 3", p.attempts)
	}
	if f.calls != 3 {
		t.Errorf("fetch calls = %d, want 3", f.calls)
	}
}

func TestRun_FirstCycleRightAfterWarmup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var firstAt time.Time
	f := &fakeFetcher{results: []fetchResult{{reading: sampleReading}}}
	p := &fakePublisher{onPublish: func(int) {
		firstAt = time.Now()
		cancel()
	}}
	c := New(f, p, Options{WarmupDelay: 50 * time.Millisecond, Interval: time.Hour}, slog.New(&captureHandler{}))

	start := time.Now()
	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}

	elapsed := firstAt.Sub(start)
	if elapsed < 50*time.Millisecond {
		t.Errorf("first cycle after %v, want it to wait for the 50ms warm-up", elapsed)
	}
	if elapsed > 5*time.Second {
		t.Errorf("first cycle after %v, want it right after warm-up, not after an interval", elapsed)
	}
}

func TestRun_CanceledDuringWarmup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	h := &captureHandler{}
	f := &fakeFetcher{results: []fetchResult{{reading: sampleReading}}}
	p := &fakePublisher{}
	c := New(f, p, Options{WarmupDelay: time.Hour, Interval: time.Hour}, slog.New(h))

	if err := c.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want context.DeadlineExceeded", err)
	}
	if f.calls != 0 {
		t.Errorf("fetch calls = %d, want 0", f.calls)
	}
	if n := h.count(slog.LevelInfo, "collector started"); n != 1 {
		t.Errorf("startup log lines = %d, want 1 before the warm-up", n)
	}
	if n := h.count(slog.LevelInfo, "fetching current weather"); n != 0 {
		t.Errorf("fetch attempt log lines = %d, want 0 during warm-up", n)
	}
}
