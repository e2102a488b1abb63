package stream

import (
	"encoding/json"
	"fmt"
)

// EventType is the closed set of event kinds the client understands. The
// wire `type` field is decoded once, here at the parser boundary, so the
// dispatcher can switch exhaustively. Wire types the client does not know
// decode to EventUnknown and are ignored downstream, which keeps the client
// forward compatible with future event kinds.
type EventType string

const (
	EventStart      EventType = "start"
	EventToolStatus EventType = "tool_status"
	EventChunk      EventType = "chunk"
	EventComplete   EventType = "complete"
	EventError      EventType = "error"
	EventUnknown    EventType = "unknown"
)

// toolEventTypes are the wire `type` values that announce a tool invocation.
// Each produces an EventToolStatus with Tool set to the wire value.
var toolEventTypes = map[string]struct{}{
	"web_search": {},
}

// Event is one decoded frame of the assistant stream.
type Event struct {
	Type EventType

	// Tool is the tool identifier for EventToolStatus events.
	Tool string

	// Content carries the text delta for EventChunk and the human-readable
	// message for EventError.
	Content string

	// Message is the human-readable status label for EventToolStatus.
	Message string

	// ToolsUsed is set on EventComplete.
	ToolsUsed []string
}

// wireEvent mirrors the JSON payload of a single frame.
type wireEvent struct {
	Type      string   `json:"type"`
	Content   string   `json:"content,omitempty"`
	Message   string   `json:"message,omitempty"`
	ToolsUsed []string `json:"toolsUsed,omitempty"`
}

// decodeEvent parses one frame payload into an Event.
func decodeEvent(payload []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return Event{}, fmt.Errorf("could not decode event payload: %w", err)
	}
	if w.Type == "" {
		return Event{}, fmt.Errorf("event payload has no type field")
	}

	switch w.Type {
	case "start":
		return Event{Type: EventStart}, nil
	case "chunk":
		return Event{Type: EventChunk, Content: w.Content}, nil
	case "complete":
		return Event{Type: EventComplete, ToolsUsed: w.ToolsUsed}, nil
	case "error":
		return Event{Type: EventError, Content: w.Content}, nil
	}

	if _, ok := toolEventTypes[w.Type]; ok {
		return Event{Type: EventToolStatus, Tool: w.Type, Message: w.Message}, nil
	}
	return Event{Type: EventUnknown}, nil
}
