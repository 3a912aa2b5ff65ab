package runtime

import (
	"sync"

	"chat-relay/contract"
)

// Registry is the single source of truth for presence: identity → live sink.
// All operations serialize on one lock so that concurrent register/unregister
// for the same identity can never interleave into a lost update.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]contract.EventSink
	changes chan struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]contract.EventSink),
		// Capacity 1: a pending nudge already covers any number of
		// mutations, the broadcaster always reads a fresh snapshot.
		changes: make(chan struct{}, 1),
	}
}

// Register installs sink as the current connection for identity and returns
// the sink it replaced, if any. Last-write-wins: the caller may close the
// returned stale sink.
func (r *Registry) Register(identity string, sink contract.EventSink) contract.EventSink {
	r.mu.Lock()
	previous := r.conns[identity]
	r.conns[identity] = sink
	r.mu.Unlock()

	r.nudge()
	return previous
}

func (r *Registry) Lookup(identity string) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.conns[identity]
	return sink, ok
}

// Unregister removes the mapping only if it still points at sink. A stale
// close event arriving after the identity reconnected on a new sink is a
// no-op, not an error.
func (r *Registry) Unregister(identity string, sink contract.EventSink) bool {
	r.mu.Lock()
	current, ok := r.conns[identity]
	if !ok || current != sink {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, identity)
	r.mu.Unlock()

	r.nudge()
	return true
}

// ListOnline snapshots the current presence set.
func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	online := make([]string, 0, len(r.conns))
	for identity := range r.conns {
		online = append(online, identity)
	}
	return online
}

// Sinks snapshots every open connection, for presence fan-out.
func (r *Registry) Sinks() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sinks := make([]contract.EventSink, 0, len(r.conns))
	for _, sink := range r.conns {
		sinks = append(sinks, sink)
	}
	return sinks
}

// Changes signals that the presence set mutated. Coalesced: one pending
// signal stands for any number of mutations.
func (r *Registry) Changes() <-chan struct{} {
	return r.changes
}

func (r *Registry) nudge() {
	select {
	case r.changes <- struct{}{}:
	default:
	}
}
