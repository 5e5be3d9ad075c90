package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeclareTopology declares every exchange, queue and binding the service
// relies on.  All declarations are idempotent and re-run after each
// reconnect.
func DeclareTopology(ch Channel) error {
	exchanges := []struct{ name, kind string }{
		{UserServiceExchange, amqp.ExchangeTopic},
		{AuthServiceExchange, amqp.ExchangeTopic},
		{DeadLetterExchange, amqp.ExchangeDirect},
	}
	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	for _, event := range InboundEvents {
		dlq := DeadLetterQueueName(event)
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, dlq, DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", dlq, err)
		}

		q := QueueName(event)
		args := amqp.Table{
			"x-dead-letter-exchange":    DeadLetterExchange,
			"x-dead-letter-routing-key": dlq,
		}
		if _, err := ch.QueueDeclare(q, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		if err := ch.QueueBind(q, event, UserServiceExchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}
	return nil
}
