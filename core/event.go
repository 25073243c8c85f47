package core

import (
	"time"

	"github.com/google/uuid"
)

// Lifecycle topics published by the decision pipeline.
const (
	TopicReceived  = "decision.received"
	TopicExecuting = "decision.executing"
	TopicCompleted = "decision.completed"
	TopicFailed    = "decision.failed"
	TopicRejected  = "decision.rejected"
	TopicDeferred  = "decision.deferred"

	// TopicAllDecisions matches every lifecycle topic.
	TopicAllDecisions = "decision.*"
)

// TerminalTopic maps a terminal status to the topic announcing it. Executed
// decisions are announced as completed. Non-terminal statuses map to
// TopicFailed.
func TerminalTopic(s Status) string {
	switch s {
	case StatusExecuted:
		return TopicCompleted
	case StatusRejected:
		return TopicRejected
	case StatusDeferred:
		return TopicDeferred
	default:
		return TopicFailed
	}
}

// IsTerminalTopic reports whether topic announces a finished decision.
func IsTerminalTopic(topic string) bool {
	switch topic {
	case TopicCompleted, TopicFailed, TopicRejected, TopicDeferred:
		return true
	default:
		return false
	}
}

// Event is a single message delivered by the bus. It is ephemeral; the bus
// itself stores nothing. Decision lifecycle events carry a Summary as Data.
type Event struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NewEvent creates an event with a fresh id and UTC timestamp.
func NewEvent(topic string, data any) Event {
	return Event{
		ID:        NewID(),
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Summary returns the decision snapshot carried by the event, if any.
func (e Event) Summary() (Summary, bool) {
	switch s := e.Data.(type) {
	case Summary:
		return s, true
	case *Summary:
		if s == nil {
			return Summary{}, false
		}
		return *s, true
	default:
		return Summary{}, false
	}
}

// NewID returns a random UUID (v4) string used for trace and event ids.
func NewID() string {
	return uuid.NewString()
}
