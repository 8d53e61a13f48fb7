package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"github.com/vhvplatform/go-esign-delivery-service/internal/metrics"
	"github.com/vhvplatform/go-esign-delivery-service/internal/queue"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/logger"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/rabbitmq"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	consumerTag        = "esign-delivery"
	defaultType        = "esign_notification"
	defaultRestartWait = 5 * time.Second
)

// Broker is the subset of the RabbitMQ client the consumer needs
type Broker interface {
	DeclareExchange(name, kind string) error
	DeclareQueue(name string) error
	BindQueue(queue, routingKey, exchange string) error
	Consume(queue, consumerTag string) (<-chan rabbitmq.Message, error)
	Reconnect() error
}

// Message is an inbound delivery that can be settled
type Message interface {
	Ack() error
	Nack(requeue bool) error
}

// EventConsumer turns e-sign events from RabbitMQ into queued jobs
type EventConsumer struct {
	broker        Broker
	exchange      string
	queueName     string
	notifications queue.JobQueue[*domain.NotificationJob]
	pdfs          queue.JobQueue[*domain.PDFJob]
	restartWait   time.Duration
	log           *logger.Logger
}

// NewEventConsumer creates a new event consumer. pdfs may be nil, in which
// case signed-document events are acknowledged and left to the PDF scan.
func NewEventConsumer(
	broker Broker,
	exchange, queueName string,
	notifications queue.JobQueue[*domain.NotificationJob],
	pdfs queue.JobQueue[*domain.PDFJob],
	log *logger.Logger,
) *EventConsumer {
	return &EventConsumer{
		broker:        broker,
		exchange:      exchange,
		queueName:     queueName,
		notifications: notifications,
		pdfs:          pdfs,
		restartWait:   defaultRestartWait,
		log:           log.With("component", "event_consumer", "queue", queueName),
	}
}

// Start consumes events until ctx is cancelled, reconnecting whenever the
// delivery channel closes
func (c *EventConsumer) Start(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		metrics.ConsumerRestarts.Inc()
		c.log.Error("Event consumer interrupted, restarting", "error", err, "wait", c.restartWait)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.restartWait):
		}
		if err := c.broker.Reconnect(); err != nil {
			c.log.Error("Failed to reconnect to RabbitMQ", "error", err)
		}
	}
}

func (c *EventConsumer) consume(ctx context.Context) error {
	if err := c.declare(); err != nil {
		return err
	}

	messages, err := c.broker.Consume(c.queueName, consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	c.log.Info("Event consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.Handle(ctx, msg.Body, &msg)
		}
	}
}

func (c *EventConsumer) declare() error {
	if err := c.broker.DeclareExchange(c.exchange, "topic"); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := c.broker.DeclareQueue(c.queueName); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	for _, key := range []domain.EventType{domain.EventNotificationRequested, domain.EventDocumentSigned} {
		if err := c.broker.BindQueue(c.queueName, string(key), c.exchange); err != nil {
			return fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
	}
	return nil
}

// Handle processes one event body and settles msg. Malformed events are
// rejected without requeue; enqueue failures are requeued.
func (c *EventConsumer) Handle(ctx context.Context, body []byte, msg Message) {
	var event domain.Event
	if err := json.Unmarshal(body, &event); err != nil {
		c.log.Error("Failed to unmarshal event", "error", err)
		c.settle(msg, false, false)
		return
	}

	log := c.log.With("type", event.Type, "company_id", event.CompanyID)

	var err error
	switch event.Type {
	case domain.EventNotificationRequested:
		err = c.enqueueNotifications(ctx, &event)
	case domain.EventDocumentSigned:
		err = c.enqueuePDF(ctx, &event)
	default:
		log.Warn("Unknown event type")
		c.settle(msg, false, false)
		return
	}

	if err != nil {
		var invalid invalidEvent
		if errors.As(err, &invalid) {
			log.Error("Rejecting invalid event", "error", err)
			c.settle(msg, false, false)
			return
		}
		log.Error("Failed to enqueue event jobs", "error", err)
		c.settle(msg, false, true)
		return
	}

	c.settle(msg, true, false)
	log.Debug("Event processed successfully")
}

func (c *EventConsumer) settle(msg Message, ack, requeue bool) {
	var err error
	if ack {
		err = msg.Ack()
	} else {
		err = msg.Nack(requeue)
	}
	if err != nil {
		c.log.Error("Failed to settle message", "ack", ack, "requeue", requeue, "error", err)
	}
}

func (c *EventConsumer) enqueueNotifications(ctx context.Context, event *domain.Event) error {
	if err := validateTenant(event); err != nil {
		return err
	}
	if len(event.Notifications) == 0 {
		return invalidEvent("event carries no notifications")
	}

	batch := make([]*domain.NotificationJob, 0, len(event.Notifications))
	for i, n := range event.Notifications {
		if n.Recipient == "" {
			return invalidEvent(fmt.Sprintf("notification %d has no recipient", i))
		}
		channel := n.Channel
		if channel == "" {
			channel = domain.ChannelEmail
		}
		if channel != domain.ChannelEmail && channel != domain.ChannelSMS {
			return invalidEvent(fmt.Sprintf("notification %d has unknown channel %q", i, channel))
		}
		notificationType := n.NotificationType
		if notificationType == "" {
			notificationType = defaultType
		}
		batch = append(batch, &domain.NotificationJob{
			NotificationType: notificationType,
			Recipient:        n.Recipient,
			Channel:          channel,
			Subject:          n.Subject,
			Message:          n.Message,
			HTMLMessage:      n.HTMLMessage,
			CompanyID:        event.CompanyID,
			CompanyDBName:    event.CompanyDBName,
			DocumentID:       event.DocumentID,
		})
	}

	if err := c.notifications.EnqueueBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to enqueue notifications: %w", err)
	}
	c.log.Info("Queued notifications from event", "company_id", event.CompanyID, "count", len(batch))
	return nil
}

func (c *EventConsumer) enqueuePDF(ctx context.Context, event *domain.Event) error {
	if err := validateTenant(event); err != nil {
		return err
	}
	if _, err := primitive.ObjectIDFromHex(event.DocumentID); err != nil {
		return invalidEvent("invalid document_id")
	}
	if c.pdfs == nil {
		c.log.Debug("No PDF queue configured, leaving document to the scan", "document_id", event.DocumentID)
		return nil
	}

	err := c.pdfs.Enqueue(ctx, &domain.PDFJob{
		CompanyID:     event.CompanyID,
		CompanyDBName: event.CompanyDBName,
		DocumentID:    event.DocumentID,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue pdf job: %w", err)
	}
	return nil
}

func validateTenant(event *domain.Event) error {
	if event.CompanyID == "" || event.CompanyDBName == "" {
		return invalidEvent("company_id and company_db_name are required")
	}
	return nil
}

// invalidEvent marks events that can never be processed
type invalidEvent string

func (e invalidEvent) Error() string { return string(e) }
