package transport

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/tracking"
)

type state int

const (
	stateConnecting state = iota
	stateOpen
)

// Router drives one connection's ordered inbound loop: handshake, typing
// passthrough, acks, disconnect. Events of a single connection are processed
// in arrival order; different connections run concurrently and meet in the
// registry and the tracker.
type Router struct {
	registry   contract.IRegistry
	tracker    contract.ITracker
	reconciler tracking.Reconciler
	verifier   contract.IVerifier
	bufferSize int
	validate   *validator.Validate
	log        *slog.Logger
}

func NewRouter(registry contract.IRegistry, tracker contract.ITracker,
	reconciler tracking.Reconciler, verifier contract.IVerifier,
	bufferSize int, log *slog.Logger) *Router {
	return &Router{
		registry:   registry,
		tracker:    tracker,
		reconciler: reconciler,
		verifier:   verifier,
		bufferSize: bufferSize,
		validate:   validator.New(),
		log:        log,
	}
}

// Serve blocks until the connection closes. Before a valid handshake the
// connection is an anonymous spectator: it is never registered, sends
// nothing directed and receives nothing directed.
func (r *Router) Serve(ctx context.Context, conn Conn) {
	client := NewClient(conn, r.bufferSize, r.log)
	go client.WritePump()
	defer client.Close()

	st := stateConnecting
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var env event.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		if st == stateConnecting {
			if env.Type != event.TypeHandshake {
				continue
			}
			if err := r.handshake(ctx, client, env.Payload); err != nil {
				r.log.Debug("Handshake rejected", "error", err)
				continue
			}
			st = stateOpen
			continue
		}
		r.route(ctx, client, env)
	}

	if st == stateOpen {
		// Compare-and-delete: if the identity already reconnected on a newer
		// client this is a no-op and presence is untouched.
		r.registry.Unregister(client.identity, client)
		r.log.Info("Disconnected", "identity", client.identity)
	}
}

func (r *Router) handshake(ctx context.Context, client *Client, payload json.RawMessage) error {
	var p event.HandshakePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	if err := r.validate.Struct(p); err != nil {
		return err
	}
	identity, err := r.verifier.Verify(p.Token)
	if err != nil {
		return err
	}

	client.identity = identity
	if previous := r.registry.Register(identity, client); previous != nil {
		// Last connection wins; close the superseded channel.
		if pc, ok := previous.(*Client); ok {
			pc.Close()
		}
	}
	r.log.Info("Connected", "identity", identity)

	go func() {
		if err := r.reconciler.Run(ctx, identity); err != nil {
			r.log.Warn("Reconciliation failed", "identity", identity, "error", err)
		}
	}()
	return nil
}

func (r *Router) route(ctx context.Context, client *Client, env event.Envelope) {
	switch env.Type {
	case event.TypeTyping, event.TypeStopTyping:
		var p event.TypingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || r.validate.Struct(p) != nil {
			return
		}
		// Fire-and-forget, no persistence, dropped when the peer is offline.
		sink, ok := r.registry.Lookup(p.To)
		if !ok {
			return
		}
		if env.Type == event.TypeTyping {
			_ = sink.Consume(ctx, event.Typing{From: client.identity})
		} else {
			_ = sink.Consume(ctx, event.StopTyping{From: client.identity})
		}

	case event.TypeDeliveredAck, event.TypeSeenAck:
		var p event.AckPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || r.validate.Struct(p) != nil {
			return
		}
		id, err := uuid.Parse(p.MessageID)
		if err != nil {
			return
		}
		// The wire payload's identity field is ignored in favor of the
		// connection's verified identity.
		if env.Type == event.TypeDeliveredAck {
			err = r.tracker.OnDeliveredAck(ctx, id, client.identity)
		} else {
			err = r.tracker.OnSeenAck(ctx, id, client.identity)
		}
		if err != nil {
			r.log.Warn("Ack failed", "type", env.Type, "message", id, "error", err)
		}

	default:
		// Unknown or repeated handshake: inert.
	}
}
