package engine

import (
	"encoding/json"
	"time"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeTick              // Frame summary
	EventTypeFieldAdd
	EventTypeFieldUpdate
	EventTypeFieldRemove
	EventTypeViewer
)

// EventVersion is bumped when payload layouts change.
const EventVersion uint8 = 1

// Event is the core event structure for the event log
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`  // Monotonic sequence
	TickNum   uint64          `json:"tickNum"`   // Frame this occurred in
	Payload   json.RawMessage `json:"payload"`
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeTick:
		return "tick"
	case EventTypeFieldAdd:
		return "field_add"
	case EventTypeFieldUpdate:
		return "field_update"
	case EventTypeFieldRemove:
		return "field_remove"
	case EventTypeViewer:
		return "viewer"
	default:
		return "unknown"
	}
}

// MarshalText writes the type by name so logs stay readable.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Typed payloads for different event types

// TickPayload summarises one frame.
type TickPayload struct {
	Chunks     int   `json:"chunks"`
	Visible    int   `json:"visible"`
	Backlog    int   `json:"backlog"`
	Removing   int   `json:"removing"`
	DurationNs int64 `json:"durationNs"`
}

// FieldPayload describes a field mutation.
type FieldPayload struct {
	FieldID  int        `json:"fieldId"`
	Shape    string     `json:"shape,omitempty"`
	Position [3]float64 `json:"position"`
	Rotation [4]float64 `json:"rotation"`
}

// ViewerPayload carries a staged viewer position.
type ViewerPayload struct {
	Position [3]float64 `json:"position"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload interface{}) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, tickNum uint64, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		TickNum:   tickNum,
		Payload:   EncodePayload(payload),
	}
}
