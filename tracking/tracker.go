// Package tracking owns the per-message delivery state machine:
// Sent → Delivered → Seen, monotonic, no regression. Delivered and Seen are
// reachable independently; a seen-ack arriving before any delivered-ack is
// treated as implying delivery.
package tracking

import (
	"context"
	goerrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
)

type Tracker struct {
	store     contract.IMessageStore
	registry  contract.IRegistry
	moderator *moderation.Moderator
	log       *slog.Logger
}

// NewTracker wires the state machine to its collaborators. moderator may be
// nil, in which case bodies are persisted as sent.
func NewTracker(store contract.IMessageStore, registry contract.IRegistry,
	moderator *moderation.Moderator, log *slog.Logger) *Tracker {
	return &Tracker{store: store, registry: registry, moderator: moderator, log: log}
}

// OnSend persists msg and fans it out. When the receiver is registered at
// send time, the delivered transition is part of the same persisted write:
// no reader can ever observe the receiver in DeliveredTo before that state
// is durable. The message is only acknowledged to the caller once Create
// has committed.
func (t *Tracker) OnSend(ctx context.Context, msg domain.Message) (domain.Message, error) {
	msg.Body = t.censor(msg.Body)
	if _, online := t.registry.Lookup(msg.ReceiverID); online {
		msg.MarkDelivered(msg.ReceiverID)
	}
	if err := t.store.Create(ctx, msg); err != nil {
		return domain.Message{}, err
	}

	// Live notifications are fire-and-forget; a receiver that connected (or
	// vanished) in between is repaired by the reconciliation pass.
	if sink, ok := t.registry.Lookup(msg.ReceiverID); ok {
		t.notify(ctx, sink, event.NewMessage{Message: msg})
	}
	if msg.DeliveredToContains(msg.ReceiverID) {
		t.notifySender(ctx, msg.SenderID, event.MessageDelivered{
			MessageID: msg.ID.String(),
			Identity:  msg.ReceiverID,
		})
	}
	return msg, nil
}

// OnDeliveredAck idempotently records delivery of id to identity. Unknown
// or deleted messages and acks from a non-receiver are silently ignored;
// only an actual transition notifies the sender.
func (t *Tracker) OnDeliveredAck(ctx context.Context, id uuid.UUID, identity string) error {
	msg, applied, err := t.store.Mutate(ctx, id, func(m *domain.Message) bool {
		if m.Deleted {
			return false
		}
		return m.MarkDelivered(identity)
	})
	if goerrors.Is(err, errors.ErrUnknownMessage) {
		return nil
	}
	if err != nil {
		return err
	}
	if applied {
		t.notifySender(ctx, msg.SenderID, event.MessageDelivered{
			MessageID: id.String(),
			Identity:  identity,
		})
	}
	return nil
}

// OnSeenAck idempotently records that identity observed id. Rejected unless
// identity is the message's receiver. Because seen implies delivered, the
// transition also upserts DeliveredTo, and SeenAt is written exactly once.
func (t *Tracker) OnSeenAck(ctx context.Context, id uuid.UUID, identity string) error {
	now := time.Now().UTC()
	msg, applied, err := t.store.Mutate(ctx, id, func(m *domain.Message) bool {
		if m.Deleted {
			return false
		}
		return m.MarkSeen(identity, now)
	})
	if goerrors.Is(err, errors.ErrUnknownMessage) {
		return nil
	}
	if err != nil {
		return err
	}
	if applied {
		t.notifySender(ctx, msg.SenderID, event.MessageSeen{
			MessageID: id.String(),
			SeenBy:    identity,
			SeenAt:    lo.FromPtr(msg.SeenAt),
		})
	}
	return nil
}

// OnEdit replaces the body in place. Sender-only; the delivery/seen state is
// untouched and Edited is set.
func (t *Tracker) OnEdit(ctx context.Context, id uuid.UUID, callerID, newBody string) (domain.Message, error) {
	if err := t.authorize(ctx, id, callerID); err != nil {
		return domain.Message{}, err
	}
	body := t.censor(newBody)
	msg, applied, err := t.store.Mutate(ctx, id, func(m *domain.Message) bool {
		if m.Deleted || m.SenderID != callerID {
			return false
		}
		m.Body = body
		m.Edited = true
		return true
	})
	if err != nil {
		return domain.Message{}, err
	}
	if !applied {
		// Deleted between the authorization read and the write.
		return domain.Message{}, errors.ErrUnknownMessage
	}
	if sink, ok := t.registry.Lookup(msg.ReceiverID); ok {
		t.notify(ctx, sink, event.MessageEdited{MessageID: id.String(), Body: msg.Body})
	}
	return msg, nil
}

// OnDelete soft-deletes the message. Sender-only; the record is never
// physically removed.
func (t *Tracker) OnDelete(ctx context.Context, id uuid.UUID, callerID string) error {
	if err := t.authorize(ctx, id, callerID); err != nil {
		return err
	}
	msg, applied, err := t.store.Mutate(ctx, id, func(m *domain.Message) bool {
		if m.Deleted || m.SenderID != callerID {
			return false
		}
		m.Deleted = true
		return true
	})
	if err != nil {
		return err
	}
	if applied {
		if sink, ok := t.registry.Lookup(msg.ReceiverID); ok {
			t.notify(ctx, sink, event.MessageDeleted{MessageID: id.String()})
		}
	}
	return nil
}

// authorize distinguishes NotFound from Unauthorized for the caller-facing
// edit/delete operations. The subsequent Mutate re-checks under the write
// lock, so a race only ever downgrades to a no-op.
func (t *Tracker) authorize(ctx context.Context, id uuid.UUID, callerID string) error {
	msg, err := t.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if msg.Deleted {
		return errors.ErrUnknownMessage
	}
	if msg.SenderID != callerID {
		return errors.ErrUnauthorized
	}
	return nil
}

func (t *Tracker) censor(body string) string {
	if t.moderator == nil || body == "" {
		return body
	}
	return t.moderator.Censor(body)
}

func (t *Tracker) notifySender(ctx context.Context, senderID string, e event.Outbound) {
	if sink, ok := t.registry.Lookup(senderID); ok {
		t.notify(ctx, sink, e)
	}
}

func (t *Tracker) notify(ctx context.Context, sink contract.EventSink, e event.Outbound) {
	if err := sink.Consume(ctx, e); err != nil {
		t.log.Debug("Live notification dropped", "event", e.EventType(), "error", err)
	}
}
