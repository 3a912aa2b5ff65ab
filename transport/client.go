package transport

import (
	"context"
	goerrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"chat-relay/domain/event"
)

var errClosed = goerrors.New("connection closed")

// Conn is the slice of the websocket connection the transport needs,
// kept narrow so tests can drive a connection without a network.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one live channel bound to a verified identity. Its outbound side
// is a buffered queue drained by WritePump; Consume never blocks the caller
// and drops on overflow, the reconciliation pass repairs what a saturated
// connection misses.
type Client struct {
	id        uuid.UUID
	identity  string
	conn      Conn
	send      chan []byte
	done      chan struct{}
	openedAt  time.Time
	closeOnce sync.Once
	log       *slog.Logger
}

func NewClient(conn Conn, bufferSize int, log *slog.Logger) *Client {
	return &Client{
		id:       uuid.New(),
		conn:     conn,
		send:     make(chan []byte, bufferSize),
		done:     make(chan struct{}),
		openedAt: time.Now().UTC(),
		log:      log,
	}
}

// Consume implements contract.EventSink.
func (c *Client) Consume(ctx context.Context, e event.Outbound) error {
	data, err := event.Encode(e)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errClosed
	case <-ctx.Done():
		return ctx.Err()
	case c.send <- data:
		return nil
	default:
		// Queue full: at-most-once, drop.
		c.log.Debug("Outbound queue full, dropping event",
			"identity", c.identity, "event", e.EventType())
		return nil
	}
}

// WritePump drains the outbound queue onto the wire until the client closes.
func (c *Client) WritePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Close tears the channel down. Closed is terminal: a reconnect is a new
// Client, never a reopened one.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
