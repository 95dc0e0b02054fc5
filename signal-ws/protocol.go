package signalws

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies a signaling message. The relay only special-cases
// join; every other kind is forwarded to the addressed participant.
type MessageType string

const (
	MsgJoin            MessageType = "join"
	MsgOffer           MessageType = "offer"
	MsgAnswer          MessageType = "answer"
	MsgICECandidate    MessageType = "ice-candidate"
	MsgPlayerConnected MessageType = "player-connected"
	MsgError           MessageType = "error"
)

// Known reports whether t is one of the kinds the poker clients exchange.
func (t MessageType) Known() bool {
	switch t {
	case MsgJoin, MsgOffer, MsgAnswer, MsgICECandidate, MsgPlayerConnected, MsgError:
		return true
	}
	return false
}

// Error codes carried in error envelopes.
const (
	CodeHostNotFound = "HOST_NOT_FOUND"
	CodeInvalidJoin  = "INVALID_JOIN"
)

// Inbound is a message received from a client.
type Inbound struct {
	Type     MessageType     `json:"type"`
	TargetID string          `json:"targetId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Envelope is a message pushed to a client. Payload is passed through untouched
// and serializes as null when the sender omitted it.
type Envelope struct {
	Type     MessageType     `json:"type"`
	SenderID string          `json:"senderId,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// ErrorPayload is the payload of an error envelope.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseMessage parses a signaling message from a WebSocket frame body.
func ParseMessage(body string) (*Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, fmt.Errorf("invalid signaling message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("missing message type")
	}
	return &msg, nil
}

// Forward builds the envelope relayed to the target of msg.
func Forward(msg Inbound, senderID string) Envelope {
	return Envelope{
		Type:     msg.Type,
		SenderID: senderID,
		Payload:  msg.Payload,
	}
}

// ErrorEnvelope builds an error envelope addressed back to a sender.
func ErrorEnvelope(code, message string) Envelope {
	payload, _ := json.Marshal(ErrorPayload{Code: code, Message: message})
	return Envelope{
		Type:    MsgError,
		Payload: payload,
	}
}

func HostNotFoundEnvelope() Envelope {
	return ErrorEnvelope(CodeHostNotFound, "No host found for this game code. Please check the code and try again.")
}

func InvalidJoinEnvelope() Envelope {
	return ErrorEnvelope(CodeInvalidJoin, "Host cannot join their own game.")
}

func (e Envelope) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshalling %v envelope: %w", e.Type, err)
	}
	return b, nil
}
