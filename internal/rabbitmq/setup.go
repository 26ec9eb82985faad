package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

// Топология обмена сообщениями о регистрации.
const (
	ExchangeName              = "registration"
	QueueActivationEmail      = "registration.activation-email"
	RoutingKeyActivationEmail = "activation-email"
)

// SetupChannel открывает канал, объявляет обменник и очередь писем активации
// и связывает их. Возвращает готовый к работе канал.
func SetupChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ch.Qos(10, 0, false); err != nil {
		return nil, fmt.Errorf("%s: failed to set QoS: %w", op, err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = ch.QueueDeclare(
		QueueActivationEmail,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, QueueActivationEmail, err)
	}

	err = ch.QueueBind(
		QueueActivationEmail,
		RoutingKeyActivationEmail,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to bind queue %s: %w", op, QueueActivationEmail, err)
	}

	return ch, nil
}
