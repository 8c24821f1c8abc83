// internal/events/consumer.go
package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"pulss-notifications/internal/common/config"
	commonerrors "pulss-notifications/internal/common/errors"
	"pulss-notifications/internal/common/logger"
	"pulss-notifications/internal/models"
	"pulss-notifications/internal/notify/enqueue"
)

// Enqueuer is the pipeline entry point the consumer feeds.
type Enqueuer interface {
	Enqueue(ctx context.Context, req enqueue.Request) (*enqueue.Result, error)
}

// envelope is the wire shape published by upstream services (order, payment,
// admin) on notification.requested.* routing keys.
type envelope struct {
	TenantID      string            `json:"tenant_id"`
	RecipientID   string            `json:"recipient_id"`
	RecipientType string            `json:"recipient_type"`
	TypeCode      string            `json:"type_code"`
	Channel       string            `json:"channel,omitempty"`
	Variables     map[string]string `json:"variables,omitempty"`
}

// Consumer bridges the message bus into the enqueue pipeline. Messages are
// acked only after the job row is persisted; malformed or invalid payloads
// are dropped (nack without requeue) since redelivery cannot fix them.
type Consumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	pipeline Enqueuer
	cfg      config.EventsConfig
	log      logger.Logger
}

func NewConsumer(cfg config.EventsConfig, pipeline Enqueuer, log logger.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := channel.QueueBind(queue.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	if err := channel.Qos(10, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		conn:     conn,
		channel:  channel,
		pipeline: pipeline,
		cfg:      cfg,
		log:      log,
	}, nil
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consume: %w", err)
	}

	c.log.Info("event consumer started", map[string]interface{}{
		"queue":       c.cfg.Queue,
		"exchange":    c.cfg.Exchange,
		"routing_key": c.cfg.RoutingKey,
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	req, err := parseEnvelope(d.Body)
	if err != nil {
		c.log.Warn("dropping malformed event", map[string]interface{}{
			"routing_key": d.RoutingKey,
			"error":       err.Error(),
		})
		d.Nack(false, false)
		return
	}

	result, err := c.pipeline.Enqueue(ctx, req)
	if err != nil {
		if commonerrors.CodeOf(err) == commonerrors.ErrCodeInvalidRequest {
			c.log.Warn("dropping invalid event", map[string]interface{}{
				"tenant_id": req.TenantID,
				"type_code": req.TypeCode,
				"error":     err.Error(),
			})
			d.Nack(false, false)
			return
		}
		// Infrastructure failure: requeue for another consumer.
		c.log.Error("enqueue from event failed", map[string]interface{}{
			"tenant_id": req.TenantID,
			"type_code": req.TypeCode,
			"error":     err.Error(),
		})
		d.Nack(false, true)
		return
	}

	c.log.Info("event enqueued", map[string]interface{}{
		"tenant_id": req.TenantID,
		"job_id":    result.JobID,
		"status":    string(result.Status),
	})
	d.Ack(false)
}

func parseEnvelope(body []byte) (enqueue.Request, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return enqueue.Request{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.TenantID == "" {
		return enqueue.Request{}, fmt.Errorf("envelope missing tenant_id")
	}
	return enqueue.Request{
		TenantID:      env.TenantID,
		RecipientID:   env.RecipientID,
		RecipientType: env.RecipientType,
		TypeCode:      env.TypeCode,
		Channel:       models.Channel(env.Channel),
		Variables:     env.Variables,
	}, nil
}

// Close tears down the channel and connection.
func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
