package collector

import (
	"context"
	"log/slog"
	"time"

	"skymind-collector/internal/weather"
)

// Fetcher retrieves current conditions for a coordinate.
type Fetcher interface {
	FetchCurrent(ctx context.Context, latitude, longitude float64) (weather.Reading, error)
}

// Publisher hands a reading to the message broker.
type Publisher interface {
	Publish(ctx context.Context, r weather.Reading) error
}

type Options struct {
	Latitude  float64
	Longitude float64
	// WarmupDelay is waited once before the first cycle so the broker can come up.
	WarmupDelay time.Duration
	Interval    time.Duration
}

// Collector runs fetch-then-publish cycles on a single goroutine. A failed
// fetch skips the cycle; a failed publish drops the reading. Neither stops
// the loop.
type Collector struct {
	fetcher   Fetcher
	publisher Publisher
	opts      Options
	logger    *slog.Logger
}

func New(fetcher Fetcher, publisher Publisher, opts Options, logger *slog.Logger) *Collector {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		fetcher:   fetcher,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
	}
}

// Run waits out the warm-up delay, runs one cycle straight away and then one
// per interval until ctx is canceled. It always returns ctx.Err().
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Info("collector started",
		"latitude", c.opts.Latitude,
		"longitude", c.opts.Longitude,
		"warmup", c.opts.WarmupDelay,
		"interval", c.opts.Interval,
	)

	if c.opts.WarmupDelay > 0 {
		timer := time.NewTimer(c.opts.WarmupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	c.Cycle(ctx)

	// Ticker drops ticks while a slow cycle runs, so cycles never overlap or pile up.
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Cycle(ctx)
		}
	}
}

// Cycle performs one fetch and, if that produced a reading, one publish.
// It reports whether a reading reached the broker.
func (c *Collector) Cycle(ctx context.Context) bool {
	// A tick can race shutdown; don't start work that would only log a cancellation.
	if ctx.Err() != nil {
		return false
	}

	reading, ok := c.fetch(ctx)
	if !ok {
		return false
	}
	return c.publish(ctx, reading)
}

func (c *Collector) fetch(ctx context.Context) (weather.Reading, bool) {
	c.logger.Info("fetching current weather",
		"latitude", c.opts.Latitude,
		"longitude", c.opts.Longitude,
	)

	reading, err := c.fetcher.FetchCurrent(ctx, c.opts.Latitude, c.opts.Longitude)
	if err != nil {
		c.logger.Error("weather fetch failed, skipping cycle", "error", err)
		return weather.Reading{}, false
	}
	return reading, true
}

func (c *Collector) publish(ctx context.Context, r weather.Reading) bool {
	if err := c.publisher.Publish(ctx, r); err != nil {
		c.logger.Error("publish failed, reading dropped",
			"error", err,
			"timestamp", r.Timestamp,
		)
		return false
	}

	c.logger.Info("reading published",
		"temperature_c", r.Temperature,
		"humidity_pct", r.Humidity,
		"wind_speed_kmh", r.WindSpeed,
		"condition_code", r.ConditionCode,
		"timestamp", r.Timestamp,
	)
	return true
}
