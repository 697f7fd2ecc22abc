package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"skymind-collector/internal/weather"
)

const defaultTimeout = 10 * time.Second

type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
	Queue    string
	// Timeout bounds the whole connect, declare, publish and confirm round trip.
	// When it expires the socket is closed so no broker RPC can outlive it.
	Timeout time.Duration
}

// Publisher delivers readings to a durable queue. Each Publish call uses its
// own connection, which is closed before returning.
type Publisher struct {
	uri     amqp.URI
	queue   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewPublisher(opts Options, logger *slog.Logger) *Publisher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.VHost == "" {
		opts.VHost = "/"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		uri: amqp.URI{
			Scheme:   "amqp",
			Host:     opts.Host,
			Port:     opts.Port,
			Username: opts.User,
			Password: opts.Password,
			Vhost:    opts.VHost,
		},
		queue:   opts.Queue,
		timeout: opts.Timeout,
		logger:  logger,
	}
}

// Publish sends r as one persistent JSON message and waits for the broker to
// confirm it. An error means the broker did not take the message.
func (p *Publisher) Publish(ctx context.Context, r weather.Reading) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// amqp091 RPCs such as channel.open and queue.declare take no context.
	// Closing the socket on ctx expiry fails them with ErrClosed instead.
	var raw net.Conn
	dial := amqp.DefaultDial(p.timeout)
	conn, err := amqp.DialConfig(p.uri.String(), amqp.Config{
		Dial: func(network, addr string) (net.Conn, error) {
			c, err := dial(network, addr)
			raw = c
			return c, err
		},
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": "skymind-collector",
		},
	})
	if err != nil {
		return fmt.Errorf("rabbitmq connect: %w", err)
	}
	stopAbort := context.AfterFunc(ctx, func() {
		_ = raw.Close()
	})
	defer stopAbort()
	defer func() {
		if closeErr := conn.Close(); closeErr != nil && !errors.Is(closeErr, amqp.ErrClosed) {
			p.logger.Debug("rabbitmq connection close", "error", closeErr)
		}
	}()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel open: %w", abortCause(ctx, err))
	}
	defer func() {
		_ = ch.Close()
	}()

	q, err := ch.QueueDeclare(
		p.queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("rabbitmq queue declare %s: %w", p.queue, abortCause(ctx, err))
	}

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("rabbitmq confirm mode: %w", abortCause(ctx, err))
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(
		ctx,
		"",     // default exchange routes by queue name
		q.Name, // routing key
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", abortCause(ctx, err))
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("rabbitmq publish confirm: %w", abortCause(ctx, err))
	}
	if !acked {
		return fmt.Errorf("rabbitmq publish to %s: broker nacked message", q.Name)
	}

	p.logger.Debug("published reading", "queue", q.Name, "bytes", len(body))
	return nil
}

// abortCause reports ctx's error in place of the ErrClosed left behind when
// the socket was closed on expiry.
func abortCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w (%v)", ctxErr, err)
	}
	return err
}

// Target describes where Publish delivers, with the password redacted.
func (p *Publisher) Target() string {
	u := p.uri
	if u.Password != "" {
		u.Password = "xxxxx"
	}
	return u.String() + " queue=" + p.queue
}
