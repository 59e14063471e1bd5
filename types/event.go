package types

import "time"

// EventType names a domain event published to the message broker.
type EventType string

const (
	EventUserRegistered EventType = "user.registered"
	EventTaskCreated    EventType = "task.created"
	EventTaskUpdated    EventType = "task.updated"
	EventTaskDeleted    EventType = "task.deleted"
)

// Event is the JSON payload published for every state change.
type Event struct {
	Type       EventType `json:"type"`
	UserID     int       `json:"user_id"`
	TaskID     int       `json:"task_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
