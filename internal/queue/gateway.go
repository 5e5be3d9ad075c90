package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/directory-auth/internal/metrics"
	"github.com/iliyamo/directory-auth/internal/model"
	"github.com/iliyamo/directory-auth/internal/repository"
	"github.com/iliyamo/directory-auth/internal/service"
)

// Outcome is the settlement decision for one delivery.
type Outcome int

const (
	Ack     Outcome = iota // processed (or harmlessly redundant)
	Requeue                // not processed; let the broker redeliver
	Reject                 // dead-letter, never redeliver
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	default:
		return "reject"
	}
}

// EventApplier is the part of the auth service driven by directory events.
type EventApplier interface {
	CreateFromEvent(ctx context.Context, ev service.UserCreated) (service.Invite, error)
	ResendInviteFromEvent(ctx context.Context, userID string) (service.Invite, error)
	UpdateRoleFromEvent(ctx context.Context, userID string, role model.Role) error
	DeleteFromEvent(ctx context.Context, userID string) error
}

// Gateway turns raw event bodies into service calls and decides how each
// delivery is settled.  It never touches the broker delivery itself.
type Gateway struct {
	svc     EventApplier
	invites *InvitePublisher
	log     *zap.Logger
}

// NewGateway wires the gateway.
func NewGateway(svc EventApplier, invites *InvitePublisher, log *zap.Logger) *Gateway {
	return &Gateway{svc: svc, invites: invites, log: log}
}

// Handle processes one message of the given inbound event.
func (g *Gateway) Handle(ctx context.Context, event string, body []byte) Outcome {
	start := time.Now()
	var out Outcome
	switch event {
	case EventUserCreated:
		out = g.userCreated(ctx, body)
	case EventUserRoleUpdated:
		out = g.userRoleUpdated(ctx, body)
	case EventUserDeleted:
		out = g.userDeleted(ctx, body)
	case EventUserInviteResent:
		out = g.userInviteResent(ctx, body)
	default:
		g.log.Error("no handler for event, sending to DLQ", zap.String("event", event))
		out = Reject
	}
	metrics.EventsHandled.WithLabelValues(event, out.String()).Inc()
	metrics.EventDuration.WithLabelValues(event).Observe(time.Since(start).Seconds())
	return out
}

func (g *Gateway) userCreated(ctx context.Context, body []byte) Outcome {
	env, err := decode[UserCreatedData](body)
	if err != nil {
		return g.malformed(EventUserCreated, err)
	}
	d := env.Data
	inv, err := g.svc.CreateFromEvent(ctx, service.UserCreated{UserID: d.UserID, Email: d.Email, Role: d.Role})
	if errors.Is(err, repository.ErrDuplicate) {
		g.log.Warn("user.created: duplicate event for user, acknowledging",
			zap.String("user_id", d.UserID), zap.String("correlation_id", env.Metadata.CorrelationID))
		return Ack
	}
	if err != nil {
		return g.failed(ctx, EventUserCreated, env.Metadata, err)
	}
	// logged by the publisher; the credential is committed either way
	_ = g.invites.Publish(ctx, inv, env.Metadata.CorrelationID)
	return Ack
}

func (g *Gateway) userInviteResent(ctx context.Context, body []byte) Outcome {
	env, err := decode[UserInviteResentData](body)
	if err != nil {
		return g.malformed(EventUserInviteResent, err)
	}
	inv, err := g.svc.ResendInviteFromEvent(ctx, env.Data.UserID)
	if err != nil {
		return g.failed(ctx, EventUserInviteResent, env.Metadata, err)
	}
	if env.Data.Email != "" {
		inv.Email = env.Data.Email
	}
	_ = g.invites.Publish(ctx, inv, env.Metadata.CorrelationID)
	return Ack
}

func (g *Gateway) userRoleUpdated(ctx context.Context, body []byte) Outcome {
	env, err := decode[UserRoleUpdatedData](body)
	if err != nil {
		return g.malformed(EventUserRoleUpdated, err)
	}
	if err := g.svc.UpdateRoleFromEvent(ctx, env.Data.UserID, env.Data.Role); err != nil {
		return g.failed(ctx, EventUserRoleUpdated, env.Metadata, err)
	}
	return Ack
}

func (g *Gateway) userDeleted(ctx context.Context, body []byte) Outcome {
	env, err := decode[UserDeletedData](body)
	if err != nil {
		return g.malformed(EventUserDeleted, err)
	}
	if err := g.svc.DeleteFromEvent(ctx, env.Data.UserID); err != nil {
		return g.failed(ctx, EventUserDeleted, env.Metadata, err)
	}
	return Ack
}

func (g *Gateway) malformed(event string, err error) Outcome {
	g.log.Error(event+": failed to parse message, sending to DLQ", zap.Error(err))
	return Reject
}

func (g *Gateway) failed(ctx context.Context, event string, md Metadata, err error) Outcome {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		g.log.Info(event+": interrupted, returning message to queue",
			zap.String("correlation_id", md.CorrelationID), zap.Error(err))
		return Requeue
	}
	g.log.Error(event+": unexpected error, sending to DLQ",
		zap.String("correlation_id", md.CorrelationID), zap.Error(err))
	return Reject
}

type validator interface{ validate() error }

// decode parses an envelope and validates its data.
func decode[T validator](body []byte) (Envelope[T], error) {
	var env Envelope[T]
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if err := env.Data.validate(); err != nil {
		return env, fmt.Errorf("invalid data: %w", err)
	}
	return env, nil
}
