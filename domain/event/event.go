// Package event defines the JSON payloads exchanged over a live channel.
// Every frame is an Envelope carrying a type tag and a raw payload; the
// transport decodes the payload according to the tag.
package event

import (
	"encoding/json"
	"time"

	"chat-relay/domain"
)

const (
	// Inbound
	TypeHandshake    = "handshake"
	TypeTyping       = "typing"
	TypeStopTyping   = "stopTyping"
	TypeDeliveredAck = "deliveredAck"
	TypeSeenAck      = "seenAck"

	// Outbound
	TypeOnlineUsers      = "onlineUsers"
	TypeNewMessage       = "newMessage"
	TypeMessageDelivered = "messageDelivered"
	TypeMessageSeen      = "messageSeen"
	TypeMessageDeleted   = "messageDeleted"
	TypeMessageEdited    = "messageEdited"
)

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is implemented by every event the server pushes to a connection.
type Outbound interface {
	EventType() string
}

type OnlineUsers struct {
	Identities []string `json:"identities"`
}

func (OnlineUsers) EventType() string { return TypeOnlineUsers }

type NewMessage struct {
	Message domain.Message `json:"message"`
}

func (NewMessage) EventType() string { return TypeNewMessage }

type MessageDelivered struct {
	MessageID string `json:"messageId"`
	Identity  string `json:"identity"`
}

func (MessageDelivered) EventType() string { return TypeMessageDelivered }

type MessageSeen struct {
	MessageID string    `json:"messageId"`
	SeenBy    string    `json:"seenBy"`
	SeenAt    time.Time `json:"seenAt"`
}

func (MessageSeen) EventType() string { return TypeMessageSeen }

type Typing struct {
	From string `json:"from"`
}

func (Typing) EventType() string { return TypeTyping }

type StopTyping struct {
	From string `json:"from"`
}

func (StopTyping) EventType() string { return TypeStopTyping }

type MessageDeleted struct {
	MessageID string `json:"messageId"`
}

func (MessageDeleted) EventType() string { return TypeMessageDeleted }

type MessageEdited struct {
	MessageID string `json:"messageId"`
	Body      string `json:"body"`
}

func (MessageEdited) EventType() string { return TypeMessageEdited }

// Encode wraps an outbound event in its envelope, ready for the wire.
func Encode(e Outbound) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: e.EventType(), Payload: payload})
}

// Inbound payloads. The identity fields are what the client asserts; the
// router substitutes the connection's verified identity before acting on them.

type HandshakePayload struct {
	Token string `json:"token" validate:"required"`
}

type TypingPayload struct {
	From string `json:"from"`
	To   string `json:"to" validate:"required"`
}

type AckPayload struct {
	MessageID string `json:"messageId" validate:"required,uuid"`
	Identity  string `json:"identity"`
}
