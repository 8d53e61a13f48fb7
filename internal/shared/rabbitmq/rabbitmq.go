package rabbitmq

import (
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"
)

// RabbitMQClient wraps the RabbitMQ connection used for inbound e-sign events
type RabbitMQClient struct {
	url      string
	prefetch int

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// Message represents a RabbitMQ message
type Message struct {
	Body        []byte
	RoutingKey  string
	Redelivered bool
	delivery    amqp091.Delivery
}

// NewMessage wraps a raw delivery
func NewMessage(d amqp091.Delivery) Message {
	return Message{
		Body:        d.Body,
		RoutingKey:  d.RoutingKey,
		Redelivered: d.Redelivered,
		delivery:    d,
	}
}

// Ack acknowledges a message
func (m *Message) Ack() error {
	return m.delivery.Ack(false)
}

// Nack negative acknowledges a message
func (m *Message) Nack(requeue bool) error {
	return m.delivery.Nack(false, requeue)
}

// NewRabbitMQClient creates a new RabbitMQ client. prefetch bounds the
// number of unacknowledged messages delivered to this consumer.
func NewRabbitMQClient(url string, prefetch int) (*RabbitMQClient, error) {
	c := &RabbitMQClient{url: url, prefetch: prefetch}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *RabbitMQClient) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if c.prefetch > 0 {
		if err := channel.Qos(c.prefetch, 0, false); err != nil {
			channel.Close()
			conn.Close()
			return fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()
	return nil
}

func (c *RabbitMQClient) ch() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// Reconnect drops the current connection and dials again
func (c *RabbitMQClient) Reconnect() error {
	_ = c.Close()
	return c.connect()
}

// DeclareExchange declares an exchange
func (c *RabbitMQClient) DeclareExchange(name, kind string) error {
	return c.ch().ExchangeDeclare(
		name,
		kind,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
}

// DeclareQueue declares a queue
func (c *RabbitMQClient) DeclareQueue(name string) error {
	_, err := c.ch().QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return err
}

// BindQueue binds a queue to an exchange
func (c *RabbitMQClient) BindQueue(queue, routingKey, exchange string) error {
	return c.ch().QueueBind(
		queue,
		routingKey,
		exchange,
		false, // no-wait
		nil,   // arguments
	)
}

// Consume starts consuming messages from a queue. The returned channel is
// closed when the underlying channel or connection goes away.
func (c *RabbitMQClient) Consume(queue, consumerTag string) (<-chan Message, error) {
	msgs, err := c.ch().Consume(
		queue,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, err
	}

	messageChan := make(chan Message)
	go func() {
		for d := range msgs {
			messageChan <- NewMessage(d)
		}
		close(messageChan)
	}()

	return messageChan, nil
}

// Close closes the RabbitMQ connection
func (c *RabbitMQClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
