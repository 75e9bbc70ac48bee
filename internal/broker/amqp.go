package broker

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection and Channel cover the slice of the AMQP client the publisher
// touches, so tests can stand in a fake broker.
type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

type Channel interface {
	Confirm(noWait bool) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a broker connection.
type Dialer func(url string) (Connection, error)

// Dial is the production dialer over amqp091.
func Dial(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &liveConnection{conn: conn}, nil
}

type liveConnection struct {
	conn *amqp.Connection
}

func (c *liveConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *liveConnection) IsClosed() bool { return c.conn.IsClosed() }
func (c *liveConnection) Close() error   { return c.conn.Close() }
