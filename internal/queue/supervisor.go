package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/directory-auth/internal/metrics"
)

// ErrNotConnected is returned by Publish while no channel is open.
var ErrNotConnected = errors.New("broker not connected")

// ErrPublishNacked is returned when the broker refuses a confirmed publish.
var ErrPublishNacked = errors.New("broker nacked publish")

// Channel is the subset of *amqp.Channel the service uses.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Confirm(noWait bool) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Connection is the subset of *amqp.Connection the service uses.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Dialer opens a broker connection.
type Dialer func(url string) (Connection, error)

type amqpConnection struct{ *amqp.Connection }

func (c amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// DialAMQP is the production Dialer.
func DialAMQP(url string) (Connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat:  10 * time.Second,
		Locale:     "en_US",
		Properties: amqp.Table{"connection_name": "directory-auth"},
	})
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

// State is the supervisor's connection state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// SupervisorConfig tunes the broker connection.
type SupervisorConfig struct {
	URL             string
	Prefetch        int
	RetryBase       time.Duration
	RetryMax        time.Duration
	PublishConfirms bool
}

// OnConnected runs after every successful (re)connect with the fresh
// channel; it declares topology and starts consumers.  The context is
// cancelled when that connection is lost.
type OnConnected func(ctx context.Context, ch Channel) error

// Supervisor owns the broker connection.  Run keeps it alive with capped
// exponential backoff; Publish uses whatever channel is current.
type Supervisor struct {
	cfg         SupervisorConfig
	dial        Dialer
	onConnected OnConnected
	log         *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error

	mu    sync.RWMutex
	state State
	conn  Connection
	ch    Channel
}

// NewSupervisor builds a supervisor; call Run to start it.
func NewSupervisor(cfg SupervisorConfig, dial Dialer, onConnected OnConnected, log *zap.Logger) *Supervisor {
	if dial == nil {
		dial = DialAMQP
	}
	return &Supervisor{
		cfg:         cfg,
		dial:        dial,
		onConnected: onConnected,
		log:         log,
		sleep:       sleepContext,
	}
}

// State reports the current connection state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	if st == Connected {
		metrics.BrokerConnected.Set(1)
	} else {
		metrics.BrokerConnected.Set(0)
	}
}

// newBackOff yields min(base·2^attempt, max) without jitter and never gives up.
func newBackOff(base, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = max
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run connects and reconnects until ctx is cancelled.  It only returns
// after ctx is done, with the connection closed.
func (s *Supervisor) Run(ctx context.Context) error {
	b := newBackOff(s.cfg.RetryBase, s.cfg.RetryMax)
	defer s.Close()

	for {
		if ctx.Err() != nil {
			return nil
		}
		s.setState(Connecting)
		connLost, chLost, cancelSession, err := s.connect(ctx)
		if err != nil {
			s.teardown()
			metrics.BrokerConnectFailures.Inc()
			delay := b.NextBackOff()
			s.log.Warn("broker connect failed", zap.Error(err), zap.Duration("retry_in", delay))
			if err := s.sleep(ctx, delay); err != nil {
				return nil
			}
			continue
		}
		b.Reset()
		s.setState(Connected)
		s.log.Info("broker connected")

		var reason *amqp.Error
		select {
		case <-ctx.Done():
			cancelSession()
			return nil
		case reason = <-connLost:
		case reason = <-chLost:
		}
		cancelSession()
		metrics.BrokerDisconnects.Inc()
		if reason != nil {
			s.log.Warn("broker connection lost", zap.Int("code", reason.Code), zap.String("reason", reason.Reason))
		} else {
			s.log.Warn("broker connection lost")
		}
		s.teardown()
	}
}

func (s *Supervisor) connect(ctx context.Context) (connLost, chLost <-chan *amqp.Error, cancel context.CancelFunc, err error) {
	conn, err := s.dial(s.cfg.URL)
	if err != nil {
		return nil, nil, nil, err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, nil, err
	}
	s.mu.Lock()
	s.ch = ch
	s.mu.Unlock()

	if err := ch.Qos(s.cfg.Prefetch, 0, false); err != nil {
		return nil, nil, nil, err
	}
	if s.cfg.PublishConfirms {
		if err := ch.Confirm(false); err != nil {
			return nil, nil, nil, err
		}
	}
	connLost = conn.NotifyClose(make(chan *amqp.Error, 1))
	chLost = ch.NotifyClose(make(chan *amqp.Error, 1))

	session, cancel := context.WithCancel(ctx)
	if s.onConnected != nil {
		if err := s.onConnected(session, ch); err != nil {
			cancel()
			return nil, nil, nil, err
		}
	}
	return connLost, chLost, cancel, nil
}

// teardown drops the current channel and connection, ignoring close errors.
func (s *Supervisor) teardown() {
	s.mu.Lock()
	ch, conn := s.ch, s.conn
	s.ch, s.conn = nil, nil
	s.state = Disconnected
	s.mu.Unlock()
	metrics.BrokerConnected.Set(0)

	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

// Close closes the channel and then the connection.  Errors are discarded
// and calling it more than once is safe.
func (s *Supervisor) Close() { s.teardown() }

// Publish sends msg on the current channel.  With publisher confirms enabled
// it waits for the broker's ack.
func (s *Supervisor) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	s.mu.RLock()
	ch := s.ch
	s.mu.RUnlock()
	if ch == nil {
		return ErrNotConnected
	}

	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return err
	}
	if dc == nil {
		return nil
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return ErrPublishNacked
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
