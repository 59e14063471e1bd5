package types

import "time"

// DefaultRole is assigned to every account at registration.
const DefaultRole = "User"

// User represents an account in the system.
type User struct {
	// ID is the unique, stable identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name. Comparison is exact and case-sensitive.
	Username string `json:"username" db:"username"`

	// Role is a tag recorded at registration. Nothing enforces it yet.
	Role string `json:"role" db:"role"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
