package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newMessage() Message {
	return Message{
		ID:         uuid.New(),
		SenderID:   "alice",
		ReceiverID: "bob",
		Body:       "hi",
		CreatedAt:  time.Now().UTC(),
	}
}

// seenSubsetOfDelivered is the core invariant: a message can never be seen by
// a party it was not delivered to.
func seenSubsetOfDelivered(t *testing.T, m Message) {
	t.Helper()
	for _, identity := range m.SeenBy {
		require.Contains(t, m.DeliveredTo, identity)
	}
}

func TestMessage_MarkDelivered_Idempotent(t *testing.T) {
	req := require.New(t)
	msg := newMessage()

	// First transition changes the set
	req.True(msg.MarkDelivered("bob"))
	req.Equal([]string{"bob"}, msg.DeliveredTo)

	// Second one is a no-op
	req.False(msg.MarkDelivered("bob"))
	req.Equal([]string{"bob"}, msg.DeliveredTo)
	seenSubsetOfDelivered(t, msg)
}

func TestMessage_MarkDelivered_RejectsNonReceiver(t *testing.T) {
	req := require.New(t)
	msg := newMessage()

	req.False(msg.MarkDelivered("mallory"))
	req.False(msg.MarkDelivered("alice"))
	req.Empty(msg.DeliveredTo)
}

func TestMessage_MarkSeen_ImpliesDelivered(t *testing.T) {
	req := require.New(t)
	msg := newMessage()
	at := time.Now().UTC()

	// Seen-ack arrives before any delivered-ack
	req.True(msg.MarkSeen("bob", at))

	req.Equal([]string{"bob"}, msg.DeliveredTo)
	req.Equal([]string{"bob"}, msg.SeenBy)
	req.Equal(at, *msg.SeenAt)
	seenSubsetOfDelivered(t, msg)
}

func TestMessage_MarkSeen_SeenAtSetOnce(t *testing.T) {
	req := require.New(t)
	msg := newMessage()
	first := time.Now().UTC()
	later := first.Add(1 * time.Hour)

	req.True(msg.MarkSeen("bob", first))

	// A repeated ack neither changes the sets nor overwrites the timestamp
	req.False(msg.MarkSeen("bob", later))
	req.Equal(first, *msg.SeenAt)
	req.Equal([]string{"bob"}, msg.SeenBy)
}

func TestMessage_MarkSeen_RejectsNonReceiver(t *testing.T) {
	req := require.New(t)
	msg := newMessage()

	req.False(msg.MarkSeen("mallory", time.Now().UTC()))
	req.Empty(msg.SeenBy)
	req.Empty(msg.DeliveredTo)
	req.Nil(msg.SeenAt)
}

func TestMessage_DeliveredThenSeen(t *testing.T) {
	req := require.New(t)
	msg := newMessage()
	at := time.Now().UTC()

	req.True(msg.MarkDelivered("bob"))
	req.True(msg.MarkSeen("bob", at))

	// Delivered set stays single-entry, monotonic
	req.Equal([]string{"bob"}, msg.DeliveredTo)
	req.Equal([]string{"bob"}, msg.SeenBy)
	seenSubsetOfDelivered(t, msg)
}
