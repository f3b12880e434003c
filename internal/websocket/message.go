package websocket

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	TypeRecordsChanged MessageType = "records_changed"
	TypeHello          MessageType = "hello"
	TypePing           MessageType = "ping"
	TypePong           MessageType = "pong"
	TypeError          MessageType = "error"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// RecordsChangedPayload tells other editors their bulk document may be stale.
type RecordsChangedPayload struct {
	Kind    string   `json:"kind"`
	Actor   string   `json:"actor"`
	Saved   []string `json:"saved,omitempty"`
	Deleted []string `json:"deleted,omitempty"`
}

type HelloPayload struct {
	ClientID string `json:"client_id"`
	Identity string `json:"identity"`
	Editors  int    `json:"editors"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

func NewMessage(msgType MessageType, payload any) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v any) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
