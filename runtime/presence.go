package runtime

import (
	"context"
	"log/slog"
	"sort"

	"chat-relay/contract"
	"chat-relay/domain/event"
)

// PresenceWorker broadcasts the full online-user snapshot to every open
// connection whenever the registry mutates. Full snapshot, not a diff: the
// set is small at this scale and a snapshot is self-healing for clients that
// missed an update.
type PresenceWorker struct {
	registry contract.IRegistry
	changes  <-chan struct{}
	log      *slog.Logger
}

func NewPresenceWorker(registry contract.IRegistry, changes <-chan struct{}, log *slog.Logger) PresenceWorker {
	return PresenceWorker{registry: registry, changes: changes, log: log}
}

func (w PresenceWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping presence worker")
			return ctx.Err()
		case _, ok := <-w.changes:
			if !ok {
				return nil
			}
			w.broadcast(ctx)
		}
	}
}

func (w PresenceWorker) broadcast(ctx context.Context) {
	online := w.registry.ListOnline()
	sort.Strings(online)
	snapshot := event.OnlineUsers{Identities: online}

	for _, sink := range w.registry.Sinks() {
		if err := sink.Consume(ctx, snapshot); err != nil {
			w.log.Debug("presence push skipped", "error", err)
		}
	}
	w.log.Debug("presence broadcast", "online", len(online))
}
