// Package hub is a websocket broadcast hub using the channel-based fan-out
// pattern. It streams activities and engine state to connected dashboards.
package hub

import "encoding/json"

// MessageType indicates the websocket message format.
type MessageType int

const (
	// JSONMessage is a JSON-encoded message
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data
	BinaryMessage
)

// Message is one frame to be broadcast to clients. Kind is the envelope
// type, empty for frames built outside Encode.
type Message struct {
	Type MessageType
	Kind string
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// Event kinds carried in an Envelope.
const (
	KindActivity = "activity"
	KindState    = "state"
	KindHello    = "hello"
)

// Envelope is the JSON shape of every text frame: {"type": ..., "data": ...}.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode wraps v in an envelope of the given kind.
func Encode(kind string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	frame, err := json.Marshal(Envelope{Type: kind, Data: data})
	if err != nil {
		return Message{}, err
	}
	return Message{Type: JSONMessage, Kind: kind, Data: frame}, nil
}
