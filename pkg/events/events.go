// Package events carries the fan-out bus between store writes and connected
// clients. Every envelope on the bus describes state that is already
// persisted (or ephemeral by design, like typing); gateways only ever
// broadcast what they consume here, which is what keeps delivery ordered
// after persistence.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/hivedesk/messaging/pkg/model"
)

type Type string

const (
	TypeNewMessage        Type = "new_message"
	TypeNotificationsRead Type = "notifications_read"
	TypeUserPresence      Type = "user_presence"
	TypeTyping            Type = "typing"
)

// Envelope is the wire format on the bus and, unchanged, the server-to-client
// frame body the gateway emits.
type Envelope struct {
	Event     Type      `json:"event"`
	ChannelID uuid.UUID `json:"channel_id,omitempty"`
	UserID    uuid.UUID `json:"user_id,omitempty"`
	At        time.Time `json:"at"`

	Message  *model.Message  `json:"message,omitempty"`
	Presence *model.Presence `json:"presence,omitempty"`

	// notifications_read
	ReadCount  int     `json:"read_count,omitempty"`
	MessageIDs []int64 `json:"message_ids,omitempty"`

	// typing
	Name     string `json:"name,omitempty"`
	IsTyping bool   `json:"is_typing,omitempty"`
}

func NewMessage(m *model.Message) Envelope {
	return Envelope{
		Event:     TypeNewMessage,
		ChannelID: m.ChannelID,
		UserID:    m.SenderID,
		At:        time.Now().UTC(),
		Message:   m,
	}
}

func NotificationsRead(channelID, readerID uuid.UUID, ids []int64) Envelope {
	return Envelope{
		Event:      TypeNotificationsRead,
		ChannelID:  channelID,
		UserID:     readerID,
		At:         time.Now().UTC(),
		ReadCount:  len(ids),
		MessageIDs: ids,
	}
}

func UserPresence(p *model.Presence) Envelope {
	return Envelope{
		Event:    TypeUserPresence,
		UserID:   p.UserID,
		At:       time.Now().UTC(),
		Presence: p,
	}
}

func Typing(channelID, userID uuid.UUID, name string, isTyping bool) Envelope {
	return Envelope{
		Event:     TypeTyping,
		ChannelID: channelID,
		UserID:    userID,
		At:        time.Now().UTC(),
		Name:      name,
		IsTyping:  isTyping,
	}
}
