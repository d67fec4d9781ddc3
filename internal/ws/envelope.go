package ws

import (
	"encoding/json"
)

const (
	EventMessageSend = "message:send"
	EventMessageNew  = "message:new"
	EventError       = "error"
)

// Envelope is the frame layout in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendEvent is the payload of message:send. Kind is optional.
type SendEvent struct {
	To      string `json:"to"`
	Content string `json:"content"`
	Kind    string `json:"kind,omitempty"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// decodeSendEvent reads a message:send payload field by field. A field of the
// wrong JSON type reads as empty instead of failing the whole event.
func decodeSendEvent(data json.RawMessage) (SendEvent, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return SendEvent{}, false
	}
	return SendEvent{
		To:      stringField(fields["to"]),
		Content: stringField(fields["content"]),
		Kind:    stringField(fields["kind"]),
	}, true
}

func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
