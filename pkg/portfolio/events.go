package portfolio

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventStateChanged  EventType = "state_changed"
	EventLoadDiscarded EventType = "load_discarded"
)

// Event carries the snapshot that caused it.
type Event struct {
	Type EventType `json:"type"`
	Data Snapshot  `json:"data"`
}

// Subscriber is a channel that receives events.
type Subscriber chan Event
