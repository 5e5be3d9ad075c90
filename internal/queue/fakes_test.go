package queue

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type binding struct{ queue, key, exchange string }

type declaredQueue struct {
	name    string
	durable bool
	args    amqp.Table
}

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

// fakeChannel records every call made through the Channel interface.
type fakeChannel struct {
	mu         sync.Mutex
	qos        int
	confirm    bool
	exchanges  map[string]string
	queues     []declaredQueue
	bindings   []binding
	consumers  map[string]chan amqp.Delivery
	published  []published
	notify     chan *amqp.Error
	closed     bool
	consumeErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{exchanges: map[string]string{}, consumers: map[string]chan amqp.Delivery{}}
}

func (c *fakeChannel) Qos(n, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qos = n
	return nil
}

func (c *fakeChannel) Confirm(bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirm = true
	return nil
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if durable {
		c.exchanges[name] = kind
	}
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues = append(c.queues, declaredQueue{name: name, durable: durable, args: args})
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = append(c.bindings, binding{name, key, exchange})
	return nil
}

func (c *fakeChannel) Consume(queue, _ string, autoAck, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consumeErr != nil {
		return nil, c.consumeErr
	}
	if autoAck {
		panic("consumers must use manual acknowledgement")
	}
	ch := make(chan amqp.Delivery, 16)
	c.consumers[queue] = ch
	return ch, nil
}

func (c *fakeChannel) consumer(queue string) chan amqp.Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumers[queue]
}

func (c *fakeChannel) PublishWithDeferredConfirmWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{exchange, key, msg})
	return nil, nil
}

func (c *fakeChannel) NotifyClose(n chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = n
	return n
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		for _, d := range c.consumers {
			close(d)
		}
	}
	return nil
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeConnection hands out one channel and lets tests drop the connection.
type fakeConnection struct {
	mu     sync.Mutex
	ch     *fakeChannel
	notify chan *amqp.Error
	closed bool
}

func newFakeConnection() *fakeConnection { return &fakeConnection{ch: newFakeChannel()} }

func (c *fakeConnection) Channel() (Channel, error) { return c.ch, nil }

func (c *fakeConnection) NotifyClose(n chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = n
	return n
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConnection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// drop simulates the broker closing the connection.
func (c *fakeConnection) drop() {
	c.mu.Lock()
	n := c.notify
	c.mu.Unlock()
	n <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "CONNECTION_FORCED"}
}

// fakeAck records how a delivery was settled.
type fakeAck struct {
	mu       sync.Mutex
	acks     int
	nacks    int
	requeues int
	settled  chan struct{}
}

func newFakeAck() *fakeAck { return &fakeAck{settled: make(chan struct{}, 16)} }

func (a *fakeAck) Ack(uint64, bool) error {
	a.mu.Lock()
	a.acks++
	a.mu.Unlock()
	a.settled <- struct{}{}
	return nil
}

func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	if requeue {
		a.requeues++
	} else {
		a.nacks++
	}
	a.mu.Unlock()
	a.settled <- struct{}{}
	return nil
}

func (a *fakeAck) Reject(_ uint64, requeue bool) error { return a.Nack(0, false, requeue) }

func (a *fakeAck) counts() (acks, nacks, requeues int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks, a.nacks, a.requeues
}

// fakePublisher captures outbound messages.
type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, exchange, key string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{exchange, key, msg})
	return nil
}

func (p *fakePublisher) sent() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}
