package reader

import "context"

// EventKind is the structural kind of a parse event.
type EventKind int

const (
	EventStartObject EventKind = iota
	EventEndObject
	EventStartArray
	EventEndArray
	EventValue
)

func (k EventKind) String() string {
	switch k {
	case EventStartObject:
		return "start_object"
	case EventEndObject:
		return "end_object"
	case EventStartArray:
		return "start_array"
	case EventEndArray:
		return "end_array"
	case EventValue:
		return "value"
	default:
		return "unknown"
	}
}

// Event is one step of a decoded JSON document.
//
// Key is the object key the value or container sits under, empty for array
// elements and the document root. Value is only set for EventValue and holds
// a string, json.Number, bool or nil.
type Event struct {
	Kind  EventKind
	Key   string
	Value any
}

// StreamHandler consumes the parse events of one response.
type StreamHandler interface {
	// Begin is called before the first event of a response.
	Begin(ctx context.Context) error
	// Handle processes one event. Returning false stops the stream early
	// without it being an error.
	Handle(ctx context.Context, ev Event) (bool, error)
	// End is called once the document has been fully consumed. It is not
	// called when the stream was stopped or failed.
	End(ctx context.Context) error
}
