package app

import (
	"context"
	"fmt"
	"log/slog"

	"skymind-collector/internal/collector"
	"skymind-collector/internal/config"
	"skymind-collector/internal/mqtt"
	"skymind-collector/internal/openmeteo"
	"skymind-collector/internal/rabbitmq"
)

type publisher interface {
	collector.Publisher
	Target() string
}

func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()

	pub, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}

	slog.Info("initializing collector",
		"broker_protocol", cfg.BrokerProtocol,
		"broker_target", pub.Target(),
		"open_meteo_url", cfg.OpenMeteoURL,
		"fetch_timeout", cfg.FetchTimeout,
		"publish_timeout", cfg.PublishTimeout,
	)

	fetcher := openmeteo.NewClient(openmeteo.Options{
		BaseURL:    cfg.OpenMeteoURL,
		Timeout:    cfg.FetchTimeout,
		MinSpacing: cfg.FetchMinSpacing,
	}, logger)

	c := collector.New(fetcher, pub, collector.Options{
		Latitude:    cfg.Latitude,
		Longitude:   cfg.Longitude,
		WarmupDelay: cfg.WarmupDelay,
		Interval:    cfg.PollInterval,
	}, logger)

	err = c.Run(ctx)
	slog.Info("collector stopped")
	return err
}

func newPublisher(cfg config.Config, logger *slog.Logger) (publisher, error) {
	switch cfg.BrokerProtocol {
	case config.ProtocolAMQP:
		return rabbitmq.NewPublisher(rabbitmq.Options{
			Host:     cfg.RabbitMQHost,
			Port:     cfg.RabbitMQPort,
			User:     cfg.RabbitMQUser,
			Password: cfg.RabbitMQPass,
			VHost:    cfg.RabbitMQVHost,
			Queue:    cfg.RabbitMQQueue,
			Timeout:  cfg.PublishTimeout,
		}, logger), nil
	case config.ProtocolMQTT:
		return mqtt.NewClient(mqtt.Options{
			Host:     cfg.RabbitMQHost,
			Port:     cfg.MQTTPort,
			ClientID: cfg.MQTTClientID,
			Username: cfg.RabbitMQUser,
			Password: cfg.RabbitMQPass,
			Topic:    cfg.MQTTTopic,
			Timeout:  cfg.PublishTimeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported broker protocol %q", cfg.BrokerProtocol)
	}
}
