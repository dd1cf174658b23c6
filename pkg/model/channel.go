package model

import (
	"time"

	"github.com/google/uuid"
)

type ChannelKind string

const (
	KindPublic      ChannelKind = "public"
	KindPrivate     ChannelKind = "private"
	KindDirect      ChannelKind = "direct"
	KindAIAssistant ChannelKind = "ai_assistant"
)

func (k ChannelKind) Valid() bool {
	switch k {
	case KindPublic, KindPrivate, KindDirect, KindAIAssistant:
		return true
	}
	return false
}

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// ChannelSettings are per-channel knobs. MaxMembers <= 0 means unlimited.
type ChannelSettings struct {
	AllowUploads    bool `json:"allow_uploads"`
	AllowReactions  bool `json:"allow_reactions"`
	SlowModeSeconds int  `json:"slow_mode_seconds"`
	RequireApproval bool `json:"require_approval"`
	ReadOnly        bool `json:"read_only"`
	MaxMembers      int  `json:"max_members"`
}

func DefaultSettings() ChannelSettings {
	return ChannelSettings{
		AllowUploads:   true,
		AllowReactions: true,
	}
}

type Channel struct {
	ID           uuid.UUID       `json:"id"`
	Slug         string          `json:"slug"`
	Name         string          `json:"name"`
	Kind         ChannelKind     `json:"kind"`
	CreatedBy    uuid.UUID       `json:"created_by"`
	Settings     ChannelSettings `json:"settings"`
	MessageCount int64           `json:"message_count"`
	LastActivity time.Time       `json:"last_activity"`
	IsDeleted    bool            `json:"-"`
	IsArchived   bool            `json:"is_archived"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Active reports whether the channel should appear in listings and accept
// traffic.
func (c *Channel) Active() bool {
	return c != nil && !c.IsDeleted && !c.IsArchived
}

type MemberPerms struct {
	CanWrite          bool `json:"can_write"`
	CanAddMembers     bool `json:"can_add_members"`
	CanDeleteMessages bool `json:"can_delete_messages"`
	CanModerate       bool `json:"can_moderate"`
}

// MemberDefaults returns the permission set granted on a plain join.
func MemberDefaults() MemberPerms {
	return MemberPerms{CanWrite: true}
}

// AdminPerms returns the full permission set granted to channel admins.
func AdminPerms() MemberPerms {
	return MemberPerms{
		CanWrite:          true,
		CanAddMembers:     true,
		CanDeleteMessages: true,
		CanModerate:       true,
	}
}

type Member struct {
	ChannelID uuid.UUID   `json:"channel_id"`
	UserID    uuid.UUID   `json:"user_id"`
	Role      Role        `json:"role"`
	JoinedAt  time.Time   `json:"joined_at"`
	Muted     bool        `json:"muted"`
	Perms     MemberPerms `json:"perms"`
}

// ChannelSummary is a channel annotated for one viewer: DM channels carry the
// other member's name, and unread counts are derived at query time.
type ChannelSummary struct {
	Channel
	DisplayName string `json:"display_name"`
	UnreadCount int    `json:"unread_count"`
}

// DirectPairKey builds the unordered-pair key that makes DM channels unique.
// The lexicographically smaller ID always comes first.
func DirectPairKey(a, b uuid.UUID) string {
	as, bs := a.String(), b.String()
	if as > bs {
		as, bs = bs, as
	}
	return as + ":" + bs
}
