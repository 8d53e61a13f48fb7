package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"github.com/vhvplatform/go-esign-delivery-service/internal/queue"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/rabbitmq"
	"github.com/vhvplatform/go-esign-delivery-service/internal/testutil"
)

const docID = "65f0c0ffee0000000000abcd"

type settled struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue bool
}

func (s *settled) Ack() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks++
	return nil
}

func (s *settled) Nack(requeue bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nacks++
	s.requeue = requeue
	return nil
}

type failingQueue[T queue.Job] struct {
	*queue.MemoryQueue[T]
}

func (failingQueue[T]) Enqueue(context.Context, T) error        { return errors.New("queue unavailable") }
func (failingQueue[T]) EnqueueBatch(context.Context, []T) error { return errors.New("queue unavailable") }

func newConsumer(t *testing.T) (*EventConsumer, *queue.MemoryQueue[*domain.NotificationJob], *queue.MemoryQueue[*domain.PDFJob]) {
	notifications := queue.NewMemoryQueue[*domain.NotificationJob]("notifications")
	pdfs := queue.NewMemoryQueue[*domain.PDFJob]("pdf")
	c := NewEventConsumer(nil, "esign", "esign_delivery_events", notifications, pdfs, testutil.NewLogger(t))
	return c, notifications, pdfs
}

func body(t *testing.T, event domain.Event) []byte {
	b, err := json.Marshal(event)
	require.NoError(t, err)
	return b
}

func TestHandle_NotificationRequested(t *testing.T) {
	c, notifications, _ := newConsumer(t)
	msg := &settled{}

	c.Handle(context.Background(), body(t, domain.Event{
		Type:          domain.EventNotificationRequested,
		CompanyID:     "c1",
		CompanyDBName: "acme",
		DocumentID:    docID,
		Notifications: []domain.NotificationSpec{
			{Recipient: "a@x.com", Subject: "Please sign", Message: "hi"},
			{Recipient: "+84900000000", Channel: domain.ChannelSMS, NotificationType: "document_distributed", Message: "sign now"},
		},
	}), msg)

	assert.Equal(t, 1, msg.acks)
	depth, _ := notifications.Depth(context.Background())
	require.Equal(t, 2, depth)

	got, err := notifications.ReceiveBatch(context.Background(), 10)
	require.NoError(t, err)
	first := got[0].Job
	assert.Equal(t, "a@x.com", first.Recipient)
	assert.Equal(t, domain.ChannelEmail, first.Channel)
	assert.Equal(t, defaultType, first.NotificationType)
	assert.Equal(t, "acme", first.CompanyDBName)
	assert.Equal(t, docID, first.DocumentID)
	assert.Zero(t, first.Attempts)
	assert.Equal(t, domain.ChannelSMS, got[1].Job.Channel)
	assert.Equal(t, "document_distributed", got[1].Job.NotificationType)
}

func TestHandle_DocumentSigned(t *testing.T) {
	c, _, pdfs := newConsumer(t)
	msg := &settled{}

	c.Handle(context.Background(), body(t, domain.Event{
		Type:          domain.EventDocumentSigned,
		CompanyID:     "c1",
		CompanyDBName: "acme",
		DocumentID:    docID,
	}), msg)

	assert.Equal(t, 1, msg.acks)
	got, err := pdfs.ReceiveBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, docID, got[0].Job.DocumentID)
}

func TestHandle_DocumentSignedWithoutPDFQueue(t *testing.T) {
	notifications := queue.NewMemoryQueue[*domain.NotificationJob]("notifications")
	c := NewEventConsumer(nil, "esign", "events", notifications, nil, testutil.NewLogger(t))
	msg := &settled{}

	c.Handle(context.Background(), body(t, domain.Event{
		Type: domain.EventDocumentSigned, CompanyID: "c1", CompanyDBName: "acme", DocumentID: docID,
	}), msg)

	assert.Equal(t, 1, msg.acks)
}

func TestHandle_RejectsInvalidEvents(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{name: "not json", body: []byte("{oops")},
		{name: "unknown type", body: []byte(`{"type":"esign.document.viewed","company_id":"c1","company_db_name":"acme"}`)},
		{name: "missing tenant", body: []byte(`{"type":"esign.notification.requested","notifications":[{"recipient":"a@x.com"}]}`)},
		{name: "no notifications", body: []byte(`{"type":"esign.notification.requested","company_id":"c1","company_db_name":"acme"}`)},
		{name: "missing recipient", body: []byte(`{"type":"esign.notification.requested","company_id":"c1","company_db_name":"acme","notifications":[{"message":"x"}]}`)},
		{name: "unknown channel", body: []byte(`{"type":"esign.notification.requested","company_id":"c1","company_db_name":"acme","notifications":[{"recipient":"a","channel":"fax"}]}`)},
		{name: "bad document id", body: []byte(`{"type":"esign.document.signed","company_id":"c1","company_db_name":"acme","document_id":"42"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, notifications, pdfs := newConsumer(t)
			msg := &settled{}

			c.Handle(context.Background(), tt.body, msg)

			assert.Zero(t, msg.acks)
			assert.Equal(t, 1, msg.nacks)
			assert.False(t, msg.requeue, "invalid events are not requeued")
			n, _ := notifications.Depth(context.Background())
			p, _ := pdfs.Depth(context.Background())
			assert.Zero(t, n+p)
		})
	}
}

func TestHandle_EnqueueFailureRequeues(t *testing.T) {
	notifications := failingQueue[*domain.NotificationJob]{queue.NewMemoryQueue[*domain.NotificationJob]("n")}
	c := NewEventConsumer(nil, "esign", "events", notifications, nil, testutil.NewLogger(t))
	msg := &settled{}

	c.Handle(context.Background(), body(t, domain.Event{
		Type: domain.EventNotificationRequested, CompanyID: "c1", CompanyDBName: "acme",
		Notifications: []domain.NotificationSpec{{Recipient: "a@x.com"}},
	}), msg)

	assert.Equal(t, 1, msg.nacks)
	assert.True(t, msg.requeue)
}

type fakeAcknowledger struct{ settled }

func (a *fakeAcknowledger) Ack(uint64, bool) error { return a.settled.Ack() }

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	return a.settled.Nack(requeue)
}

func (a *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	return a.settled.Nack(requeue)
}

type fakeBroker struct {
	mu         sync.Mutex
	bindings   []string
	streams    []chan rabbitmq.Message
	consumes   int
	reconnects int
}

func (b *fakeBroker) DeclareExchange(string, string) error { return nil }
func (b *fakeBroker) DeclareQueue(string) error            { return nil }

func (b *fakeBroker) BindQueue(_, routingKey, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bindings = append(b.bindings, routingKey)
	return nil
}

func (b *fakeBroker) Consume(string, string) (<-chan rabbitmq.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := b.streams[b.consumes]
	b.consumes++
	return ch, nil
}

func (b *fakeBroker) Reconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reconnects++
	return nil
}

func (b *fakeBroker) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consumes, b.reconnects
}

func TestStart_ConsumesAndReconnects(t *testing.T) {
	first := make(chan rabbitmq.Message, 1)
	second := make(chan rabbitmq.Message, 1)
	broker := &fakeBroker{streams: []chan rabbitmq.Message{first, second}}

	notifications := queue.NewMemoryQueue[*domain.NotificationJob]("notifications")
	c := NewEventConsumer(broker, "esign", "events", notifications, nil, testutil.NewLogger(t))
	c.restartWait = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	ack := &fakeAcknowledger{}
	first <- rabbitmq.NewMessage(amqp091.Delivery{
		Acknowledger: ack,
		RoutingKey:   string(domain.EventNotificationRequested),
		Body: body(t, domain.Event{
			Type: domain.EventNotificationRequested, CompanyID: "c1", CompanyDBName: "acme",
			Notifications: []domain.NotificationSpec{{Recipient: "a@x.com"}},
		}),
	})
	require.Eventually(t, func() bool {
		n, _ := notifications.Depth(context.Background())
		return n == 1
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		ack.mu.Lock()
		defer ack.mu.Unlock()
		return ack.acks == 1
	}, time.Second, 5*time.Millisecond)

	close(first)
	require.Eventually(t, func() bool {
		consumes, reconnects := broker.counts()
		return consumes == 2 && reconnects == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	broker.mu.Lock()
	defer broker.mu.Unlock()
	assert.Equal(t, []string{
		string(domain.EventNotificationRequested), string(domain.EventDocumentSigned),
		string(domain.EventNotificationRequested), string(domain.EventDocumentSigned),
	}, broker.bindings)
}
