package runtime

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"chat-relay/domain/event"
)

type chanSink struct {
	events chan event.Outbound
}

func newChanSink() *chanSink {
	return &chanSink{events: make(chan event.Outbound, 16)}
}

func (s *chanSink) Consume(ctx context.Context, e event.Outbound) error {
	select {
	case s.events <- e:
	default:
	}
	return nil
}

// waitForSnapshot drains the sink until an onlineUsers snapshot matches the
// expected set. Broadcasts coalesce, so intermediate snapshots may be skipped.
func (s *chanSink) waitForSnapshot(t *testing.T, expected []string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-s.events:
			if snapshot, ok := e.(event.OnlineUsers); ok && slices.Equal(snapshot.Identities, expected) {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot %v", expected)
		}
	}
}

func TestPresenceWorker_BroadcastsFullSnapshotOnChange(t *testing.T) {
	log := logs.GetLoggerFromString("DEBUG")
	registry := NewRegistry()
	worker := NewPresenceWorker(registry, registry.Changes(), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	// When alice connects, she receives a snapshot containing herself
	alice := newChanSink()
	registry.Register("alice", alice)
	alice.waitForSnapshot(t, []string{"alice"})

	// When bob connects, everyone converges on the new snapshot
	bob := newChanSink()
	registry.Register("bob", bob)
	alice.waitForSnapshot(t, []string{"alice", "bob"})
	bob.waitForSnapshot(t, []string{"alice", "bob"})

	// When bob disconnects, alice sees him leave
	registry.Unregister("bob", bob)
	alice.waitForSnapshot(t, []string{"alice"})
}

func TestPresenceWorker_StopsOnContextCancel(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	worker := NewPresenceWorker(registry, registry.Changes(), logs.GetLoggerFromString("ERROR"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		req.ErrorIs(err, context.Canceled)
	case <-time.After(2 * time.Second):
		req.Fail("worker should stop when the context is canceled")
	}
}
