package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/directory-auth/internal/metrics"
	"github.com/iliyamo/directory-auth/internal/service"
)

// Publisher sends one message to an exchange.  *Supervisor implements it.
type Publisher interface {
	Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error
}

// InvitePublisher emits auth.invite_token_generated.  Errors are logged and
// returned so the caller can choose to ignore them; messages are persistent.
type InvitePublisher struct {
	pub     Publisher
	log     *zap.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewInvitePublisher wraps pub.
func NewInvitePublisher(pub Publisher, log *zap.Logger) *InvitePublisher {
	return &InvitePublisher{pub: pub, log: log, now: time.Now, timeout: 5 * time.Second}
}

// Publish announces a freshly issued invite.  An empty correlation id is
// replaced by a new one so the outbound event is always traceable.
func (p *InvitePublisher) Publish(ctx context.Context, inv service.Invite, correlationID string) error {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	now := p.now().UTC()
	body, err := json.Marshal(Envelope[InviteTokenGeneratedData]{
		Event: EventInviteTokenGenerated,
		Data: InviteTokenGeneratedData{
			UserID:      inv.UserID,
			Email:       inv.Email,
			InviteToken: inv.Token,
			ExpiresAt:   inv.ExpiresAt.UTC().Format(time.RFC3339Nano),
		},
		Metadata: Metadata{Timestamp: now.Format(time.RFC3339Nano), CorrelationID: correlationID},
	})
	if err != nil {
		p.log.Error("rabbitmq: marshal event failed", zap.String("event", EventInviteTokenGenerated), zap.Error(err))
		metrics.EventsPublished.WithLabelValues(EventInviteTokenGenerated, "error").Inc()
		return err
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent, // store on disk
		Timestamp:     now,
		MessageId:     uuid.NewString(),
		CorrelationId: correlationID,
		Type:          EventInviteTokenGenerated,
		Body:          body,
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.pub.Publish(ctx, AuthServiceExchange, EventInviteTokenGenerated, msg); err != nil {
		p.log.Error("rabbitmq: publish failed",
			zap.String("event", EventInviteTokenGenerated),
			zap.String("user_id", inv.UserID),
			zap.String("correlation_id", correlationID),
			zap.Error(err))
		metrics.EventsPublished.WithLabelValues(EventInviteTokenGenerated, "error").Inc()
		return err
	}
	metrics.EventsPublished.WithLabelValues(EventInviteTokenGenerated, "ok").Inc()
	return nil
}
