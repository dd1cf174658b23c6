// Package chat is the policy layer over the stores: membership checks,
// permission flags, input validation, and the persist-then-publish ordering
// every mutation follows. Both the HTTP handlers and the gateway call
// through here, so the two transports cannot disagree on the rules.
package chat

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hivedesk/messaging/pkg/apperr"
	"github.com/hivedesk/messaging/pkg/events"
	"github.com/hivedesk/messaging/pkg/metrics"
	"github.com/hivedesk/messaging/pkg/model"
	"github.com/hivedesk/messaging/pkg/snowflake"
)

type ChannelStore interface {
	Create(ctx context.Context, ch *model.Channel) error
	Get(ctx context.Context, id uuid.UUID) (*model.Channel, error)
	LookupDirect(ctx context.Context, a, b uuid.UUID) (uuid.UUID, error)
	ClaimDirectPair(ctx context.Context, a, b uuid.UUID, channelID uuid.UUID) (uuid.UUID, bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Archive(ctx context.Context, id uuid.UUID) error
	UpdateSettings(ctx context.Context, id uuid.UUID, set model.ChannelSettings) error
	TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) error
	BumpMessageCount(ctx context.Context, id uuid.UUID) error
	AddMember(ctx context.Context, m model.Member) (bool, error)
	RemoveMember(ctx context.Context, channelID, userID uuid.UUID) error
	Member(ctx context.Context, channelID, userID uuid.UUID) (*model.Member, error)
	Members(ctx context.Context, channelID uuid.UUID) ([]model.Member, error)
	ChannelIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type MessageStore interface {
	Insert(ctx context.Context, m *model.Message) error
	Get(ctx context.Context, channelID uuid.UUID, id int64) (*model.Message, error)
	List(ctx context.Context, channelID uuid.UUID, limit int, beforeID int64) ([]model.Message, error)
	ListIDs(ctx context.Context, channelID uuid.UUID) ([]int64, error)
	UpdateBody(ctx context.Context, channelID uuid.UUID, id int64, body string, editedAt time.Time) error
	AddRevision(ctx context.Context, channelID uuid.UUID, id int64, body string, at time.Time) error
	Revisions(ctx context.Context, channelID uuid.UUID, id int64) ([]model.Revision, error)
	Tombstone(ctx context.Context, channelID uuid.UUID, id int64) error
	ToggleReaction(ctx context.Context, channelID uuid.UUID, id int64, emoji string, userID uuid.UUID) (bool, error)
	Reactions(ctx context.Context, channelID uuid.UUID, id int64) ([]model.Reaction, error)
	MarkRead(ctx context.Context, channelID uuid.UUID, readerID uuid.UUID, ids []int64, at time.Time) error
	ReadIDs(ctx context.Context, channelID, readerID uuid.UUID) (map[int64]bool, error)
	Readers(ctx context.Context, channelID uuid.UUID, id int64) ([]model.ReadReceipt, error)
}

// Directory resolves user identities and display fields. Provided by the
// platform's user-management layer.
type Directory interface {
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type Service struct {
	channels ChannelStore
	messages MessageStore
	users    Directory
	node     *snowflake.Node
	pub      events.Publisher
	logger   zerolog.Logger
}

func NewService(channels ChannelStore, messages MessageStore, users Directory, node *snowflake.Node, pub events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		channels: channels,
		messages: messages,
		users:    users,
		node:     node,
		pub:      pub,
		logger:   logger,
	}
}

// requireChannel loads a channel and hides deleted ones.
func (s *Service) requireChannel(ctx context.Context, id uuid.UUID) (*model.Channel, error) {
	ch, err := s.channels.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch.IsDeleted {
		return nil, apperr.NotFound("channel not found")
	}
	return ch, nil
}

// requireMember translates "no membership row" into Forbidden: the caller is
// authenticated, just not allowed here.
func (s *Service) requireMember(ctx context.Context, channelID, userID uuid.UUID) (*model.Member, error) {
	m, err := s.channels.Member(ctx, channelID, userID)
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			return nil, apperr.Forbidden("not a member of this channel")
		}
		return nil, err
	}
	return m, nil
}

func (s *Service) publish(ctx context.Context, env events.Envelope) {
	if err := s.pub.Publish(ctx, env); err != nil {
		// The mutation is already durable; clients recover via resync.
		metrics.PublishFailures.Inc()
		s.logger.Error().Err(err).
			Str("event", string(env.Event)).
			Stringer("channel_id", env.ChannelID).
			Msg("event publish failed after store write")
	}
}

// CreateChannel creates a group channel with the creator as its first admin.
func (s *Service) CreateChannel(ctx context.Context, creatorID uuid.UUID, name string, kind model.ChannelKind, settings *model.ChannelSettings) (*model.Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.InvalidArg("channel name is required")
	}
	if kind == "" {
		kind = model.KindPublic
	}
	if !kind.Valid() || kind == model.KindDirect {
		return nil, apperr.InvalidArg("invalid channel kind")
	}
	if _, err := s.users.Get(ctx, creatorID); err != nil {
		return nil, err
	}

	set := model.DefaultSettings()
	if settings != nil {
		set = *settings
	}

	now := time.Now().UTC()
	ch := &model.Channel{
		ID:           uuid.New(),
		Slug:         slugify(name),
		Name:         name,
		Kind:         kind,
		CreatedBy:    creatorID,
		Settings:     set,
		LastActivity: now,
		CreatedAt:    now,
	}
	if err := s.channels.Create(ctx, ch); err != nil {
		return nil, err
	}

	creator := model.Member{
		ChannelID: ch.ID,
		UserID:    creatorID,
		Role:      model.RoleAdmin,
		JoinedAt:  now,
		Perms:     model.AdminPerms(),
	}
	if _, err := s.channels.AddMember(ctx, creator); err != nil {
		return nil, err
	}
	return ch, nil
}

// GetOrCreateDirect returns the one DM channel for the pair, creating it on
// first contact. The pair claim is an atomic create-if-absent, so concurrent
// calls from both sides converge on a single channel.
func (s *Service) GetOrCreateDirect(ctx context.Context, a, b uuid.UUID) (*model.Channel, error) {
	if a == b {
		return nil, apperr.InvalidArg("cannot open a direct channel with yourself")
	}

	if existing, err := s.channels.LookupDirect(ctx, a, b); err == nil {
		return s.requireChannel(ctx, existing)
	} else if !apperr.Is(err, apperr.CodeNotFound) {
		return nil, err
	}

	// Both users must resolve before we create anything.
	for _, id := range []uuid.UUID{a, b} {
		if _, err := s.users.Get(ctx, id); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	set := model.DefaultSettings()
	set.MaxMembers = 2
	ch := &model.Channel{
		ID:           uuid.New(),
		Slug:         "dm-" + model.DirectPairKey(a, b)[:8],
		Name:         "Direct message",
		Kind:         model.KindDirect,
		CreatedBy:    a,
		Settings:     set,
		LastActivity: now,
		CreatedAt:    now,
	}
	if err := s.channels.Create(ctx, ch); err != nil {
		return nil, err
	}
	for _, id := range []uuid.UUID{a, b} {
		m := model.Member{
			ChannelID: ch.ID,
			UserID:    id,
			Role:      model.RoleMember,
			JoinedAt:  now,
			Perms:     model.MemberDefaults(),
		}
		if _, err := s.channels.AddMember(ctx, m); err != nil {
			return nil, err
		}
	}

	winner, claimed, err := s.channels.ClaimDirectPair(ctx, a, b, ch.ID)
	if err != nil {
		return nil, err
	}
	if claimed {
		return ch, nil
	}

	// Lost the race: tear down our candidate, use the winner's channel.
	for _, id := range []uuid.UUID{a, b} {
		if err := s.channels.RemoveMember(ctx, ch.ID, id); err != nil {
			s.logger.Warn().Err(err).Stringer("channel_id", ch.ID).Msg("dm race cleanup: remove member")
		}
	}
	if err := s.channels.Delete(ctx, ch.ID); err != nil {
		s.logger.Warn().Err(err).Stringer("channel_id", ch.ID).Msg("dm race cleanup: delete channel")
	}
	return s.requireChannel(ctx, winner)
}

// ListChannels returns the viewer's active channels, newest activity first.
// Direct channels show the other member's name; unread counts are derived
// from receipts at query time, never from a stored counter.
func (s *Service) ListChannels(ctx context.Context, userID uuid.UUID) ([]model.ChannelSummary, error) {
	ids, err := s.channels.ChannelIDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var out []model.ChannelSummary
	for _, id := range ids {
		ch, err := s.channels.Get(ctx, id)
		if err != nil {
			if apperr.Is(err, apperr.CodeNotFound) {
				continue
			}
			return nil, err
		}
		if !ch.Active() {
			continue
		}

		summary := model.ChannelSummary{Channel: *ch, DisplayName: ch.Name}
		if ch.Kind == model.KindDirect {
			name, err := s.otherMemberName(ctx, ch.ID, userID)
			if err != nil {
				return nil, err
			}
			summary.DisplayName = name
		}

		unread, err := s.UnreadIDs(ctx, ch.ID, userID)
		if err != nil {
			return nil, err
		}
		summary.UnreadCount = len(unread)
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

func (s *Service) otherMemberName(ctx context.Context, channelID, viewerID uuid.UUID) (string, error) {
	members, err := s.channels.Members(ctx, channelID)
	if err != nil {
		return "", err
	}
	for _, m := range members {
		if m.UserID == viewerID {
			continue
		}
		u, err := s.users.Get(ctx, m.UserID)
		if err != nil {
			if apperr.Is(err, apperr.CodeNotFound) {
				return "Deleted user", nil
			}
			return "", err
		}
		return u.DisplayName(), nil
	}
	return "Direct message", nil
}

// AddMember adds target to the channel. Requires the can_add_members flag.
func (s *Service) AddMember(ctx context.Context, actorID, channelID, targetID uuid.UUID, role model.Role) error {
	ch, err := s.requireChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.Kind == model.KindDirect {
		return apperr.InvalidArg("direct channels have a fixed member pair")
	}

	actor, err := s.requireMember(ctx, channelID, actorID)
	if err != nil {
		return err
	}
	if !actor.Perms.CanAddMembers {
		return apperr.Forbidden("missing can_add_members permission")
	}

	if _, err := s.users.Get(ctx, targetID); err != nil {
		return err
	}

	if ch.Settings.MaxMembers > 0 {
		members, err := s.channels.Members(ctx, channelID)
		if err != nil {
			return err
		}
		if len(members) >= ch.Settings.MaxMembers {
			return apperr.Conflict("channel is full")
		}
	}

	if role == "" {
		role = model.RoleMember
	}
	perms := model.MemberDefaults()
	if role == model.RoleAdmin {
		perms = model.AdminPerms()
	}

	applied, err := s.channels.AddMember(ctx, model.Member{
		ChannelID: channelID,
		UserID:    targetID,
		Role:      role,
		JoinedAt:  time.Now().UTC(),
		Perms:     perms,
	})
	if err != nil {
		return err
	}
	if !applied {
		return apperr.Conflict("already a member")
	}
	return nil
}

// RemoveMember removes target. Members may remove themselves; removing
// anyone else needs can_moderate.
func (s *Service) RemoveMember(ctx context.Context, actorID, channelID, targetID uuid.UUID) error {
	if _, err := s.requireChannel(ctx, channelID); err != nil {
		return err
	}
	actor, err := s.requireMember(ctx, channelID, actorID)
	if err != nil {
		return err
	}
	if actorID != targetID && !actor.Perms.CanModerate {
		return apperr.Forbidden("missing can_moderate permission")
	}
	if _, err := s.requireMember(ctx, channelID, targetID); err != nil {
		return err
	}
	return s.channels.RemoveMember(ctx, channelID, targetID)
}

func (s *Service) UpdateSettings(ctx context.Context, actorID, channelID uuid.UUID, set model.ChannelSettings) error {
	if _, err := s.requireChannel(ctx, channelID); err != nil {
		return err
	}
	actor, err := s.requireMember(ctx, channelID, actorID)
	if err != nil {
		return err
	}
	if !actor.Perms.CanModerate {
		return apperr.Forbidden("missing can_moderate permission")
	}
	return s.channels.UpdateSettings(ctx, channelID, set)
}

func (s *Service) ArchiveChannel(ctx context.Context, actorID, channelID uuid.UUID) error {
	if _, err := s.requireChannel(ctx, channelID); err != nil {
		return err
	}
	actor, err := s.requireMember(ctx, channelID, actorID)
	if err != nil {
		return err
	}
	if !actor.Perms.CanModerate {
		return apperr.Forbidden("missing can_moderate permission")
	}
	return s.channels.Archive(ctx, channelID)
}

// DeleteChannel soft-deletes: the channel leaves listings but the record and
// its history stay for audit.
func (s *Service) DeleteChannel(ctx context.Context, actorID, channelID uuid.UUID) error {
	if _, err := s.requireChannel(ctx, channelID); err != nil {
		return err
	}
	actor, err := s.requireMember(ctx, channelID, actorID)
	if err != nil {
		return err
	}
	if !actor.Perms.CanModerate {
		return apperr.Forbidden("missing can_moderate permission")
	}
	return s.channels.SoftDelete(ctx, channelID)
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
