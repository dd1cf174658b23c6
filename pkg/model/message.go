package model

import (
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageImage  MessageKind = "image"
	MessageFile   MessageKind = "file"
	MessageSystem MessageKind = "system"
)

type Message struct {
	// ID is a snowflake: time-ordered, so clustering by ID gives creation
	// order with deterministic ties.
	ID          int64       `json:"id"`
	ChannelID   uuid.UUID   `json:"channel_id"`
	SenderID    uuid.UUID   `json:"sender_id"`
	Kind        MessageKind `json:"kind"`
	Body        string      `json:"body"`
	Attachments []string    `json:"attachments,omitempty"`
	IsDeleted   bool        `json:"-"`
	EditedAt    *time.Time  `json:"edited_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`

	// Enrichment fields resolved from the user directory on read, never
	// stored with the message.
	SenderName   string `json:"sender_name,omitempty"`
	SenderAvatar string `json:"sender_avatar,omitempty"`

	ReadBy []ReadReceipt `json:"read_by,omitempty"`
}

type ReadReceipt struct {
	UserID uuid.UUID `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

type Reaction struct {
	Emoji  string    `json:"emoji"`
	UserID uuid.UUID `json:"user_id"`
}

// Revision is one superseded body of an edited message, newest first.
type Revision struct {
	RevisedAt time.Time `json:"revised_at"`
	Body      string    `json:"body"`
}
