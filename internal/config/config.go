package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProtocolAMQP = "amqp"
	ProtocolMQTT = "mqtt"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	BrokerProtocol string
	RabbitMQHost   string
	RabbitMQPort   int
	RabbitMQUser   string
	RabbitMQPass   string
	RabbitMQVHost  string
	RabbitMQQueue  string
	PublishTimeout time.Duration

	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string

	// Latitude and Longitude are the request coordinates. Published readings
	// carry the grid point the API answers with instead.
	Latitude        float64
	Longitude       float64
	OpenMeteoURL    string
	FetchTimeout    time.Duration
	FetchMinSpacing time.Duration

	WarmupDelay  time.Duration
	PollInterval time.Duration
}

func LoadFromEnv() (Config, error) {
	appEnv := getenv("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(getenv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	protocol := strings.ToLower(getenv("BROKER_PROTOCOL", ProtocolAMQP))
	switch protocol {
	case ProtocolAMQP, ProtocolMQTT:
	default:
		return Config{}, fmt.Errorf("invalid BROKER_PROTOCOL %q (allowed: amqp, mqtt)", protocol)
	}

	rabbitPort, err := parsePort("RABBITMQ_PORT", "5672")
	if err != nil {
		return Config{}, err
	}
	mqttPort, err := parsePort("MQTT_PORT", "1883")
	if err != nil {
		return Config{}, err
	}

	latStr := getenv("CITY_LAT", "-23.56")
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid CITY_LAT %q: %w", latStr, err)
	}
	if lat < -90 || lat > 90 {
		return Config{}, fmt.Errorf("CITY_LAT must be within [-90, 90], got %v", lat)
	}

	lonStr := getenv("CITY_LON", "-46.65")
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid CITY_LON %q: %w", lonStr, err)
	}
	if lon < -180 || lon > 180 {
		return Config{}, fmt.Errorf("CITY_LON must be within [-180, 180], got %v", lon)
	}

	fetchTimeout, err := parsePositiveDuration("FETCH_TIMEOUT", "10s")
	if err != nil {
		return Config{}, err
	}
	publishTimeout, err := parsePositiveDuration("PUBLISH_TIMEOUT", "10s")
	if err != nil {
		return Config{}, err
	}
	pollInterval, err := parsePositiveDuration("POLL_INTERVAL", "1m")
	if err != nil {
		return Config{}, err
	}

	fetchMinSpacing, err := parseDuration("FETCH_MIN_SPACING", "1s")
	if err != nil {
		return Config{}, err
	}
	warmupDelay, err := parseDuration("WARMUP_DELAY", "10s")
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:          appEnv,
		LogLevel:        level,
		BrokerProtocol:  protocol,
		RabbitMQHost:    getenv("RABBITMQ_HOST", "rabbitmq"),
		RabbitMQPort:    rabbitPort,
		RabbitMQUser:    getenv("RABBITMQ_USER", "user"),
		RabbitMQPass:    getenv("RABBITMQ_PASS", "password"),
		RabbitMQVHost:   getenv("RABBITMQ_VHOST", "/"),
		RabbitMQQueue:   getenv("RABBITMQ_QUEUE", "weather_queue"),
		PublishTimeout:  publishTimeout,
		MQTTPort:        mqttPort,
		MQTTClientID:    getenv("MQTT_CLIENT_ID", "skymind-collector"),
		MQTTTopic:       getenv("MQTT_TOPIC", "weather/current"),
		Latitude:        lat,
		Longitude:       lon,
		OpenMeteoURL:    getenv("OPEN_METEO_URL", "https://api.open-meteo.com/v1/forecast"),
		FetchTimeout:    fetchTimeout,
		FetchMinSpacing: fetchMinSpacing,
		WarmupDelay:     warmupDelay,
		PollInterval:    pollInterval,
	}, nil
}

// getenv returns the trimmed value of key, or def when it is unset or blank.
func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func parsePort(key, def string) (int, error) {
	s := getenv(key, def)
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%s must be within [1, 65535], got %d", key, port)
	}
	return port, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	s := getenv(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %v", key, d)
	}
	return d, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := parseDuration(key, def)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
