package mq

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"NPSEngine/config"
)

// 队列拓扑：webhook 投递入站消息，worker 消费
const (
	InboundExchange = "chat.inbound"
	InboundQueue    = "chat.inbound.messages"
	InboundRouting  = "chat.inbound.message"
)

var (
	conn     *amqp.Connection
	connOnce sync.Once
	connErr  error
)

func Init() error {
	connOnce.Do(func() {
		url := config.Cfg.GetRabbitMQURL()
		conn, connErr = amqp.Dial(url)
		if connErr != nil {
			return
		}

		var ch *amqp.Channel
		ch, connErr = conn.Channel()
		if connErr != nil {
			return
		}
		defer ch.Close()

		connErr = declareTopology(ch)
	})

	return connErr
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(InboundExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(InboundQueue, true, false, false, false, nil); err != nil {
		return err
	}

	return ch.QueueBind(InboundQueue, InboundRouting, InboundExchange, false, nil)
}

func Connection() *amqp.Connection {
	return conn
}

func Close(ctx context.Context) error {
	if conn == nil {
		return nil
	}
	return conn.Close()
}
