package types

import "time"

// Task is a to-do item owned by exactly one user for its whole lifetime.
type Task struct {
	// ID is the unique identifier of the task.
	ID int `json:"id" db:"id"`

	// Title is a short, optional label. Empty when not provided.
	Title string `json:"title" db:"title"`

	// Description is optional free-form text.
	Description string `json:"description" db:"description"`

	// IsCompleted is freely toggled by the owner.
	IsCompleted bool `json:"is_completed" db:"is_completed"`

	// UserID identifies the owner. It is set from the caller on create
	// and never changes afterwards.
	UserID int `json:"user_id" db:"user_id"`

	// CreatedAt is the timestamp at which the task was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the task.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TaskInput carries the client-settable fields of a task.
type TaskInput struct {
	Title       string
	Description string
	IsCompleted bool
}
