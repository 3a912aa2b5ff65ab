// Package domain contains core concepts of the messaging system.
// This file defines the Message record and its delivery/seen transitions.
// Transitions are monotonic: once an identity is recorded in DeliveredTo or
// SeenBy it is never removed, and SeenAt is written exactly once.
package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Message is a direct message between two identities. Delivery state is only
// mutated through the transition methods below, which the store applies inside
// an atomic read-modify-write per message id.
type Message struct {
	ID          uuid.UUID  `json:"id"`
	SenderID    string     `json:"senderId"`
	ReceiverID  string     `json:"receiverId"`
	Body        string     `json:"body,omitempty"`
	Attachment  string     `json:"attachment,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	DeliveredTo []string   `json:"deliveredTo"`
	SeenBy      []string   `json:"seenBy"`
	SeenAt      *time.Time `json:"seenAt,omitempty"`
	Edited      bool       `json:"edited"`
	Deleted     bool       `json:"deleted"`
}

func (m *Message) DeliveredToContains(identity string) bool {
	return slices.Contains(m.DeliveredTo, identity)
}

func (m *Message) SeenByContains(identity string) bool {
	return slices.Contains(m.SeenBy, identity)
}

// MarkDelivered records that the message has been handed to identity.
// Only the addressed receiver can appear in DeliveredTo; anything else is a
// no-op. Returns true when the set actually changed.
func (m *Message) MarkDelivered(identity string) bool {
	if identity != m.ReceiverID || m.DeliveredToContains(identity) {
		return false
	}
	m.DeliveredTo = append(m.DeliveredTo, identity)
	return true
}

// MarkSeen records that identity observed the message. A seen-ack implies
// delivery, so DeliveredTo is upserted first: the invariant
// seenBy ⊆ deliveredTo must hold even when the acks arrive out of order.
// SeenAt is set on the first effective ack and kept on later ones.
// Returns true when anything changed.
func (m *Message) MarkSeen(identity string, at time.Time) bool {
	if identity != m.ReceiverID {
		return false
	}
	changed := m.MarkDelivered(identity)
	if !m.SeenByContains(identity) {
		m.SeenBy = append(m.SeenBy, identity)
		changed = true
	}
	if m.SeenAt == nil {
		m.SeenAt = &at
		changed = true
	}
	return changed
}
