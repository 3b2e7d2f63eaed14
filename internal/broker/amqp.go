package broker

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"go-smslog/pkg/models"
)

// connection and channel narrow the amqp091 client to the surface the
// supervisor drives, so connect and consume outcomes can be simulated in
// tests through the dial factory.
type connection interface {
	Channel() (channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

type channel interface {
	ExchangeDeclare(name, kind string) error
	QueueDeclare(name string) error
	QueueBind(queue, key, exchange string) error
	Consume(queue, consumerTag string) (<-chan amqp.Delivery, error)
	Cancel(consumerTag string) error
	Close() error
}

func dialAMQP(url string, cfg amqp.Config) (connection, error) {
	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, err
	}
	return &liveConnection{conn}, nil
}

type liveConnection struct {
	*amqp.Connection
}

func (c *liveConnection) Channel() (channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return &liveChannel{ch}, nil
}

type liveChannel struct {
	*amqp.Channel
}

func (c *liveChannel) ExchangeDeclare(name, kind string) error {
	return c.Channel.ExchangeDeclare(name, kind, true, false, false, false, nil)
}

func (c *liveChannel) QueueDeclare(name string) error {
	_, err := c.Channel.QueueDeclare(name, true, false, false, false, nil)
	return err
}

func (c *liveChannel) QueueBind(queue, key, exchange string) error {
	return c.Channel.QueueBind(queue, key, exchange, false, nil)
}

func (c *liveChannel) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	// Manual acknowledgement mode: the pipeline acks after the storage
	// write attempt completes, never before.
	return c.Channel.Consume(queue, consumerTag, false, false, false, false, nil)
}

func (c *liveChannel) Cancel(consumerTag string) error {
	return c.Channel.Cancel(consumerTag, false)
}

func eventFromDelivery(d amqp.Delivery) *models.InboundEvent {
	return &models.InboundEvent{
		RoutingKey: d.RoutingKey,
		MessageID:  d.MessageId,
		Priority:   int(d.Priority),
		Headers:    normalizeTable(d.Headers),
		Body:       d.Body,
	}
}

// normalizeTable flattens AMQP header values into plain Go values so the
// pipeline never sees wire types.
func normalizeTable(t amqp.Table) map[string]any {
	headers := make(map[string]any, len(t))
	for k, v := range t {
		headers[k] = normalizeValue(v)
	}
	return headers
}

func normalizeValue(v any) any {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case amqp.Table:
		return normalizeTable(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}
