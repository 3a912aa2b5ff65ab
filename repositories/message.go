package repositories

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chat-relay/domain"
	"chat-relay/errors"
)

const maxMutateRetries = 3

// MessageStore persists messages in BadgerDB.
//
// Keys:
//   - "msg:{uuid}" holds the JSON-encoded message.
//   - "pending:{receiver}:{timestamp_padded}:{uuid}" is a secondary index of
//     messages not yet delivered to their receiver. The 19-digit zero padding
//     keeps the index in chronological order under a prefix scan, and the
//     index is maintained inside the same transaction as the message write so
//     no reader ever observes the two out of sync.
type MessageStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageStore(db *badger.DB, log *slog.Logger) MessageStore {
	return MessageStore{db: db, log: log}
}

func msgKey(id uuid.UUID) []byte {
	return []byte("msg:" + id.String())
}

func pendingKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("pending:%s:%019d:%s",
		m.ReceiverID,
		m.CreatedAt.UnixNano(),
		m.ID,
	))
}

func pendingPrefix(identity string) []byte {
	return []byte(fmt.Sprintf("pending:%s:", identity))
}

// isPending reports whether the message should appear in the pending index.
func isPending(m domain.Message) bool {
	return !m.Deleted && !m.DeliveredToContains(m.ReceiverID)
}

// Create persists a new message and, when it is not already delivered, its
// pending index entry, in one transaction.
func (s MessageStore) Create(_ context.Context, msg domain.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(msgKey(msg.ID), value); err != nil {
			return err
		}
		if isPending(msg) {
			return txn.Set(pendingKey(msg), nil)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", errors.ErrStoreUnavailable, msg.ID, err)
	}
	return nil
}

func (s MessageStore) FindByID(_ context.Context, id uuid.UUID) (domain.Message, error) {
	var msg domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		return readMessage(txn, id, &msg)
	})
	return msg, err
}

// FindPendingFor returns the non-deleted messages addressed to identity that
// it has not been delivered to, oldest first.
func (s MessageStore) FindPendingFor(_ context.Context, identity string) ([]domain.Message, error) {
	var pending []domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := pendingPrefix(identity)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			id, err := uuid.Parse(string(key[len(key)-36:]))
			if err != nil {
				s.log.Warn("Skipping malformed pending key", "key", string(key))
				continue
			}
			var msg domain.Message
			if err := readMessage(txn, id, &msg); err != nil {
				if goerrors.Is(err, errors.ErrUnknownMessage) {
					// Dangling index entry, the message is gone.
					continue
				}
				return err
			}
			if isPending(msg) {
				pending = append(pending, msg)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: pending for %s: %v", errors.ErrStoreUnavailable, identity, err)
	}
	return pending, nil
}

// Mutate applies fn to the message under a serializable read-modify-write.
// fn reports whether it changed the message; only a change is written back,
// together with any pending-index maintenance it entails. Concurrent mutations
// of the same id conflict at commit and are retried, which gives acks from
// racing connections compare-and-swap semantics.
func (s MessageStore) Mutate(_ context.Context, id uuid.UUID, fn func(*domain.Message) bool) (domain.Message, bool, error) {
	var (
		msg     domain.Message
		applied bool
	)
	for attempt := 0; ; attempt++ {
		err := s.db.Update(func(txn *badger.Txn) error {
			msg = domain.Message{}
			if err := readMessage(txn, id, &msg); err != nil {
				return err
			}
			before := isPending(msg)

			applied = fn(&msg)
			if !applied {
				return nil
			}

			value, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			if err := txn.Set(msgKey(id), value); err != nil {
				return err
			}
			if before && !isPending(msg) {
				return txn.Delete(pendingKey(msg))
			}
			return nil
		})
		switch {
		case err == nil:
			return msg, applied, nil
		case goerrors.Is(err, errors.ErrUnknownMessage):
			return domain.Message{}, false, err
		case goerrors.Is(err, badger.ErrConflict) && attempt < maxMutateRetries:
			s.log.Debug("Mutate conflict, retrying", "id", id, "attempt", attempt+1)
		default:
			return domain.Message{}, false, fmt.Errorf("%w: mutate %s: %v", errors.ErrStoreUnavailable, id, err)
		}
	}
}

func readMessage(txn *badger.Txn, id uuid.UUID, out *domain.Message) error {
	item, err := txn.Get(msgKey(id))
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", errors.ErrUnknownMessage, id)
	}
	if err != nil {
		return err
	}
	return item.Value(func(value []byte) error {
		return json.Unmarshal(value, out)
	})
}
