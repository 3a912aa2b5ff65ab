package tracking

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
)

// recordSink collects the events a connection would have received. Consume is
// always invoked synchronously from the operation under test, so no locking.
type recordSink struct {
	events []event.Outbound
}

func (s *recordSink) Consume(_ context.Context, e event.Outbound) error {
	s.events = append(s.events, e)
	return nil
}

func (s *recordSink) last(t *testing.T) event.Outbound {
	t.Helper()
	require.NotEmpty(t, s.events)
	return s.events[len(s.events)-1]
}

type fixture struct {
	store    repositories.MessageStore
	registry *runtime.Registry
	tracker  *Tracker
}

func newFixture(t *testing.T, moderator *moderation.Moderator) fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := repositories.NewMessageStore(db, slog.Default())
	registry := runtime.NewRegistry()
	return fixture{
		store:    store,
		registry: registry,
		tracker:  NewTracker(store, registry, moderator, slog.Default()),
	}
}

func sentMessage(sender, receiver, body string) domain.Message {
	return domain.Message{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestTracker_OnSend_ReceiverOffline_StaysPending(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	// When alice messages an offline bob
	msg, err := f.tracker.OnSend(ctx, sentMessage("alice", "bob", "hi"))
	req.NoError(err)

	// Then nothing is marked delivered and the message awaits reconnection
	req.Empty(msg.DeliveredTo)
	pending, err := f.store.FindPendingFor(ctx, "bob")
	req.NoError(err)
	req.Len(pending, 1)
	req.Equal(msg.ID, pending[0].ID)
}

func TestTracker_OnSend_ReceiverOnline_DeliversImmediately(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	alice := &recordSink{}
	bob := &recordSink{}
	f.registry.Register("alice", alice)
	f.registry.Register("bob", bob)

	msg, err := f.tracker.OnSend(ctx, sentMessage("alice", "bob", "hi"))
	req.NoError(err)

	// Delivered state is part of the persisted write
	req.Equal([]string{"bob"}, msg.DeliveredTo)
	stored, err := f.store.FindByID(ctx, msg.ID)
	req.NoError(err)
	req.Equal([]string{"bob"}, stored.DeliveredTo)

	// Bob got the message, alice got the delivery receipt
	newMsg := bob.last(t).(event.NewMessage)
	req.Equal(msg.ID, newMsg.Message.ID)
	receipt := alice.last(t).(event.MessageDelivered)
	req.Equal(msg.ID.String(), receipt.MessageID)
	req.Equal("bob", receipt.Identity)

	// And there is nothing to reconcile
	pending, err := f.store.FindPendingFor(ctx, "bob")
	req.NoError(err)
	req.Empty(pending)
}

func TestTracker_OnSend_CensorsBody(t *testing.T) {
	req := require.New(t)
	moderator, err := moderation.NewModerator([]string{"badger"}, '*')
	req.NoError(err)
	f := newFixture(t, moderator)

	msg, err := f.tracker.OnSend(context.Background(), sentMessage("alice", "bob", "honey badger"))
	req.NoError(err)
	req.Equal("honey ******", msg.Body)
}

func TestTracker_SeenAckBeforeDeliveredAck(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	alice := &recordSink{}
	f.registry.Register("alice", alice)

	msg, err := f.tracker.OnSend(ctx, sentMessage("alice", "bob", "hi"))
	req.NoError(err)

	// When the seen-ack arrives first
	req.NoError(f.tracker.OnSeenAck(ctx, msg.ID, "bob"))

	// Then delivery is implied, SeenAt is set and alice hears about it
	stored, err := f.store.FindByID(ctx, msg.ID)
	req.NoError(err)
	req.Equal([]string{"bob"}, stored.DeliveredTo)
	req.Equal([]string{"bob"}, stored.SeenBy)
	req.NotNil(stored.SeenAt)

	seen := alice.last(t).(event.MessageSeen)
	req.Equal(msg.ID.String(), seen.MessageID)
	req.Equal("bob", seen.SeenBy)
	req.Equal(*stored.SeenAt, seen.SeenAt)

	// The late delivered-ack is a silent no-op
	notified := len(alice.events)
	req.NoError(f.tracker.OnDeliveredAck(ctx, msg.ID, "bob"))
	req.Len(alice.events, notified)

	// And a repeated seen-ack never moves the timestamp
	firstSeenAt := *stored.SeenAt
	req.NoError(f.tracker.OnSeenAck(ctx, msg.ID, "bob"))
	stored, err = f.store.FindByID(ctx, msg.ID)
	req.NoError(err)
	req.Equal(firstSeenAt, *stored.SeenAt)
	req.Len(alice.events, notified)
}

func TestTracker_OnDeliveredAck_UnknownMessage_IsNoOp(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)

	req.NoError(f.tracker.OnDeliveredAck(context.Background(), uuid.New(), "bob"))
	req.NoError(f.tracker.OnSeenAck(context.Background(), uuid.New(), "bob"))
}

func TestTracker_Acks_FromNonReceiver_AreIgnored(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	alice := &recordSink{}
	f.registry.Register("alice", alice)

	msg, err := f.tracker.OnSend(ctx, sentMessage("alice", "bob", "hi"))
	req.NoError(err)

	req.NoError(f.tracker.OnDeliveredAck(ctx, msg.ID, "mallory"))
	req.NoError(f.tracker.OnSeenAck(ctx, msg.ID, "mallory"))

	stored, err := f.store.FindByID(ctx, msg.ID)
	req.NoError(err)
	req.Empty(stored.DeliveredTo)
	req.Empty(stored.SeenBy)
	req.Empty(alice.events)
}

func TestTracker_OnEdit(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	bob := &recordSink{}
	f.registry.Register("bob", bob)

	msg, err := f.tracker.OnSend(ctx, sentMessage("alice", "bob", "helo"))
	req.NoError(err)

	// Only the sender may edit
	_, err = f.tracker.OnEdit(ctx, msg.ID, "bob", "hijacked")
	req.ErrorIs(err, errors.ErrUnauthorized)

	_, err = f.tracker.OnEdit(ctx, uuid.New(), "alice", "hello")
	req.ErrorIs(err, errors.ErrUnknownMessage)

	edited, err := f.tracker.OnEdit(ctx, msg.ID, "alice", "hello")
	req.NoError(err)
	req.Equal("hello", edited.Body)
	req.True(edited.Edited)

	notification := bob.last(t).(event.MessageEdited)
	req.Equal(msg.ID.String(), notification.MessageID)
	req.Equal("hello", notification.Body)
}

func TestTracker_OnDelete(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	bob := &recordSink{}
	f.registry.Register("bob", bob)

	msg, err := f.tracker.OnSend(ctx, sentMessage("alice", "bob", "oops"))
	req.NoError(err)

	req.ErrorIs(f.tracker.OnDelete(ctx, msg.ID, "bob"), errors.ErrUnauthorized)
	req.NoError(f.tracker.OnDelete(ctx, msg.ID, "alice"))

	notification := bob.last(t).(event.MessageDeleted)
	req.Equal(msg.ID.String(), notification.MessageID)

	// A deleted message behaves like an unknown one from then on
	_, err = f.tracker.OnEdit(ctx, msg.ID, "alice", "resurrect")
	req.ErrorIs(err, errors.ErrUnknownMessage)
	req.ErrorIs(f.tracker.OnDelete(ctx, msg.ID, "alice"), errors.ErrUnknownMessage)

	// Late acks on a deleted message are swallowed
	req.NoError(f.tracker.OnSeenAck(ctx, msg.ID, "bob"))
	stored, err := f.store.FindByID(ctx, msg.ID)
	req.NoError(err)
	req.Empty(stored.SeenBy)
}

func TestTracker_OnDeliveredAck_StoreUnavailable(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	storeMock := mocks.NewMockIMessageStore(ctrl)
	storeMock.EXPECT().
		Mutate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.Message{}, false, errors.ErrStoreUnavailable)

	tracker := NewTracker(storeMock, runtime.NewRegistry(), nil, slog.Default())

	err := tracker.OnDeliveredAck(context.Background(), uuid.New(), "bob")
	req.ErrorIs(err, errors.ErrStoreUnavailable)
}
