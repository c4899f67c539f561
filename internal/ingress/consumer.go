package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/autosend/internal/config"
	"github.com/harunnryd/autosend/internal/errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer reads envelopes from a durable queue bound to a topic exchange and
// reconnects after the broker drops the connection.
type Consumer struct {
	handler        *Handler
	mapper         *errors.DefaultErrorMapper
	url            string
	exchange       string
	queue          string
	bindingKey     string
	prefetch       int
	reconnectDelay time.Duration

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	connected atomic.Bool
}

func NewConsumer(handler *Handler, cfg config.AMQPConfig) (*Consumer, error) {
	if cfg.URL == "" {
		return nil, errors.InvalidInput("ingress.amqp.url is required")
	}
	delay, err := config.DurationOrDefault(cfg.ReconnectDelay, config.DefaultAMQPReconnectDelay)
	if err != nil {
		return nil, fmt.Errorf("parse amqp reconnect delay: %w", err)
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = config.DefaultAMQPPrefetch
	}

	return &Consumer{
		handler:        handler,
		mapper:         errors.NewDefaultErrorMapper(),
		url:            cfg.URL,
		exchange:       firstNonEmpty(cfg.Exchange, config.DefaultAMQPExchange),
		queue:          firstNonEmpty(cfg.Queue, config.DefaultAMQPQueue),
		bindingKey:     firstNonEmpty(cfg.BindingKey, config.DefaultAMQPBindingKey),
		prefetch:       prefetch,
		reconnectDelay: delay,
	}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx)

	slog.Info("AMQP consumer started", "exchange", c.exchange, "queue", c.queue, "binding_key", c.bindingKey)
	return nil
}

func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		slog.Info("AMQP consumer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) Health(ctx context.Context) error {
	if !c.connected.Load() {
		return errors.Transient("amqp connection down")
	}
	return nil
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)
	for {
		err := c.consume(ctx)
		c.connected.Store(false)
		if ctx.Err() != nil {
			return
		}
		slog.Error("AMQP consumer disconnected, reconnecting", "error", err, "retry_in", c.reconnectDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

// consume runs one connection until it closes or ctx ends.
func (c *Consumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := c.declare(ch); err != nil {
		return err
	}

	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
	c.connected.Store(true)

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closeCh:
			return fmt.Errorf("connection closed: %v", amqpErr)
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.deliver(ctx, d)
		}
	}
}

func (c *Consumer) declare(ch *amqp.Channel) error {
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(c.queue, c.bindingKey, c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// deliver acks handled and malformed events and requeues those that failed
// for a retryable reason.
func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	var env Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		slog.Warn("Dropping malformed event", "delivery_tag", d.DeliveryTag, "error", err)
		_ = d.Ack(false)
		return
	}
	if env.ID == "" {
		env.ID = d.MessageId
	}

	_, err := c.handler.Handle(ctx, env)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case c.mapper.IsRetryable(err):
		slog.Warn("Requeueing event", "event_id", env.ID, "error", err)
		_ = d.Nack(false, true)
	default:
		slog.Warn("Dropping event", "event_id", env.ID, "category", c.mapper.Category(err), "error", err)
		_ = d.Ack(false)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
