package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"skymind-collector/internal/weather"
)

// API Docs: https://open-meteo.com/en/docs
// Sample request: https://api.open-meteo.com/v1/forecast?latitude=-23.56&longitude=-46.65&current=temperature_2m,relative_humidity_2m,wind_speed_10m,weather_code
const (
	baseForecastURL = "https://api.open-meteo.com/v1/forecast"
	defaultTimeout  = 10 * time.Second

	// maxErrorBody caps how much of a failed response ends up in the error.
	maxErrorBody = 512
)

var currentVars = []string{
	"temperature_2m",
	"relative_humidity_2m",
	"wind_speed_10m",
	"weather_code",
}

// ErrMissingField is wrapped by FetchCurrent when a required key is absent or null.
var ErrMissingField = errors.New("missing field in response")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch returned status %d: %s", e.StatusCode, e.Body)
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	// MinSpacing is the minimum time between two upstream calls. Zero disables the guard.
	MinSpacing time.Duration
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = baseForecastURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if opts.MinSpacing > 0 {
		limit = rate.Every(opts.MinSpacing)
	}

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    opts.BaseURL,
		timeout:    opts.Timeout,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// FetchCurrent fetches current conditions for the given coordinates.
// The returned reading carries the coordinates the API echoes back, which may
// be snapped to its grid.
func (c *Client) FetchCurrent(ctx context.Context, latitude, longitude float64) (weather.Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return weather.Reading{}, fmt.Errorf("rate limit wait canceled: %w", err)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return weather.Reading{}, fmt.Errorf("failed to parse base URL: %w", err)
	}
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(longitude, 'f', -1, 64))
	q.Set("current", strings.Join(currentVars, ","))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return weather.Reading{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("open-meteo request", "url", u.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return weather.Reading{}, fmt.Errorf("failed to fetch: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return weather.Reading{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var apiResp CurrentAPIResponse
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&apiResp); err != nil {
		return weather.Reading{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return weather.Reading{}, errors.New("failed to decode response: trailing data after JSON object")
	}

	return apiResp.toReading()
}
