// Package bus provides the event-notification side channel the runtime
// publishes turn/replan/audit-flush events onto, for external
// observers. This is observability only — the core's control flow
// never awaits a bus reply.
package bus

import (
	"context"
	"errors"
)

// ErrClosed is returned when operating on a closed bus or subscription.
var ErrClosed = errors.New("bus or subscription closed")

// Message is a notification published to a subject.
type Message struct {
	Subject string
	Data    []byte
}

// Handler processes an incoming notification.
type Handler func(msg *Message)

// Subscription is an active subscription that can be cancelled.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the fire-and-forget publish/subscribe contract the runtime
// uses for observability events (§9: audit is structured in memory, the
// bus is a separate notification side channel, not the audit store
// itself).
type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, handler Handler) (Subscription, error)
	Close() error
}

// Subjects used by the runtime.
const (
	SubjectTurn       = "agentrun.%s.turn"
	SubjectReplan     = "agentrun.%s.replan"
	SubjectAuditFlush = "agentrun.%s.audit"
)
