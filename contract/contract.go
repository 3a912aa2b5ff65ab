//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"github.com/google/uuid"

	"chat-relay/domain"
	"chat-relay/domain/event"
)

// EventSink is one live connection's outbound side. Consume must not block
// the caller: delivery to a connection is at-most-once and fire-and-forget,
// reconciliation repairs whatever a dead or saturated sink misses.
type EventSink interface {
	Consume(ctx context.Context, e event.Outbound) error
}

// IRegistry maps an identity to its current live connection.
// At most one connection per identity; registration is last-write-wins and
// unregistration is compare-and-delete so a stale close cannot evict a
// successor connection.
type IRegistry interface {
	Register(identity string, sink EventSink) (previous EventSink)
	Lookup(identity string) (EventSink, bool)
	Unregister(identity string, sink EventSink) bool
	ListOnline() []string
	Sinks() []EventSink
}

// IMessageStore persists messages and their delivery/seen fields.
// Mutate applies fn atomically per message id: fn returns whether it changed
// the message, and only an actual change is written back.
type IMessageStore interface {
	Create(ctx context.Context, msg domain.Message) error
	FindByID(ctx context.Context, id uuid.UUID) (domain.Message, error)
	FindPendingFor(ctx context.Context, identity string) ([]domain.Message, error)
	Mutate(ctx context.Context, id uuid.UUID, fn func(*domain.Message) bool) (domain.Message, bool, error)
}

// ITracker owns the sent → delivered → seen state machine.
type ITracker interface {
	OnSend(ctx context.Context, msg domain.Message) (domain.Message, error)
	OnDeliveredAck(ctx context.Context, id uuid.UUID, identity string) error
	OnSeenAck(ctx context.Context, id uuid.UUID, identity string) error
	OnEdit(ctx context.Context, id uuid.UUID, callerID, newBody string) (domain.Message, error)
	OnDelete(ctx context.Context, id uuid.UUID, callerID string) error
}

// IVerifier is the auth collaborator: it turns a self-asserted token into a
// verified identity. The core never registers a connection without it.
type IVerifier interface {
	Verify(token string) (identity string, err error)
}

// IBlobStore stores an uploaded attachment and returns an opaque URL.
type IBlobStore interface {
	Store(data []byte) (url string, err error)
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
