package core

// EventOp names the write that produced a change event.
type EventOp string

const (
	EventCreated EventOp = "created"
	EventUpdated EventOp = "updated"
)
