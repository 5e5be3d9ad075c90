// Package queue defines message payloads exchanged over the message broker
// and the machinery that consumes and publishes them.
package queue

import (
	"errors"
	"fmt"

	"github.com/iliyamo/directory-auth/internal/model"
)

// Exchanges.
const (
	UserServiceExchange = "user-service.events"
	AuthServiceExchange = "auth-service.events"
	DeadLetterExchange  = "dlx.auth-service"
)

// Inbound events (routing keys on UserServiceExchange).
const (
	EventUserCreated      = "user.created"
	EventUserRoleUpdated  = "user.role_updated"
	EventUserDeleted      = "user.deleted"
	EventUserInviteResent = "user.invite_resent"
)

// EventInviteTokenGenerated is the only event this service publishes.
const EventInviteTokenGenerated = "auth.invite_token_generated"

// InboundEvents lists every consumed event in declaration order.
var InboundEvents = []string{
	EventUserCreated,
	EventUserRoleUpdated,
	EventUserDeleted,
	EventUserInviteResent,
}

// QueueName is the durable work queue for an inbound event.
func QueueName(event string) string { return "auth-service." + event }

// DeadLetterQueueName is where rejected messages of an event end up; it is
// also the routing key used on DeadLetterExchange.
func DeadLetterQueueName(event string) string { return DeadLetterExchange + "." + event }

// Metadata travels with every event.
type Metadata struct {
	Timestamp     string `json:"timestamp"`
	CorrelationID string `json:"correlation_id"`
}

// Envelope is the wire shape of every event.
type Envelope[T any] struct {
	Event    string   `json:"event"`
	Data     T        `json:"data"`
	Metadata Metadata `json:"metadata"`
}

var errMissingField = errors.New("missing required field")

// UserCreatedData is the payload of user.created.
type UserCreatedData struct {
	UserID string     `json:"user_id"`
	Email  string     `json:"email"`
	Role   model.Role `json:"role"`
}

func (d UserCreatedData) validate() error {
	if d.UserID == "" {
		return fmt.Errorf("%w: user_id", errMissingField)
	}
	if d.Email == "" {
		return fmt.Errorf("%w: email", errMissingField)
	}
	if !d.Role.Valid() {
		return fmt.Errorf("unknown role %q", d.Role)
	}
	return nil
}

// UserRoleUpdatedData is the payload of user.role_updated.
type UserRoleUpdatedData struct {
	UserID string     `json:"user_id"`
	Role   model.Role `json:"role"`
}

func (d UserRoleUpdatedData) validate() error {
	if d.UserID == "" {
		return fmt.Errorf("%w: user_id", errMissingField)
	}
	if !d.Role.Valid() {
		return fmt.Errorf("unknown role %q", d.Role)
	}
	return nil
}

// UserDeletedData is the payload of user.deleted.
type UserDeletedData struct {
	UserID string `json:"user_id"`
}

func (d UserDeletedData) validate() error {
	if d.UserID == "" {
		return fmt.Errorf("%w: user_id", errMissingField)
	}
	return nil
}

// UserInviteResentData is the payload of user.invite_resent.  Email is
// optional; the stored address is used when it is absent.
type UserInviteResentData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

func (d UserInviteResentData) validate() error {
	if d.UserID == "" {
		return fmt.Errorf("%w: user_id", errMissingField)
	}
	return nil
}

// InviteTokenGeneratedData is the payload of auth.invite_token_generated.
// It carries the raw invite secret to the notification pipeline.
type InviteTokenGeneratedData struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	InviteToken string `json:"invite_token"`
	ExpiresAt   string `json:"expires_at"`
}
