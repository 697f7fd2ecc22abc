package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"skymind-collector/internal/weather"
)

const defaultTimeout = 10 * time.Second

type Options struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
	Topic    string
	Timeout  time.Duration
}

// Client publishes readings over MQTT. It connects for each publish and
// disconnects afterwards, so nothing is shared between cycles.
type Client struct {
	opts    *mqtt.ClientOptions
	topic   string
	broker  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewClient(o Options, logger *slog.Logger) *Client {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	broker := fmt.Sprintf("tcp://%s:%d", o.Host, o.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(o.ClientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	// Session settings
	opts.SetCleanSession(true)

	// One attempt per publish; a failed cycle is simply skipped.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(o.Timeout)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetWriteTimeout(o.Timeout)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Debug("mqtt connected", "broker", broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	return &Client{
		opts:    opts,
		topic:   o.Topic,
		broker:  broker,
		timeout: o.Timeout,
		logger:  logger,
	}
}

// Publish sends r as JSON with QoS 1 and waits for the broker's PUBACK.
func (c *Client) Publish(ctx context.Context, r weather.Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client := mqtt.NewClient(c.opts)
	if err := waitToken(ctx, client.Connect()); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect %s: %w", c.broker, err)
	}
	defer client.Disconnect(250)

	if err := waitToken(ctx, client.Publish(c.topic, 1, false, data)); err != nil {
		return fmt.Errorf("publish reading to %s: %w", c.topic, err)
	}

	c.logger.Debug("published reading", "topic", c.topic, "bytes", len(data))
	return nil
}

// Target describes where Publish delivers.
func (c *Client) Target() string {
	return c.broker + " topic=" + c.topic
}

// waitToken blocks until token completes or ctx ends.
func waitToken(ctx context.Context, token mqtt.Token) error {
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			return token.Error()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
