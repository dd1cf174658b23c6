package model

import (
	"time"

	"github.com/google/uuid"
)

// User is a directory record owned by the platform's CRUD layer; the
// messaging core reads it for display fields and owns only the presence
// columns.
type User struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	AvatarURL  string    `json:"avatar_url"`
	Email      string    `json:"email"`
	IsActive   bool      `json:"is_active"`
	IsOnline   bool      `json:"is_online"`
	LastActive time.Time `json:"last_active"`
}

// DisplayName prefers "First Last" and falls back to the username.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}

type Presence struct {
	UserID     uuid.UUID `json:"user_id"`
	IsOnline   bool      `json:"is_online"`
	LastActive time.Time `json:"last_active"`
}
