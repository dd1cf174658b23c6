// Package store implements persistence for channels, messages and users on
// ScyllaDB. Stores translate "no rows" into apperr.NotFound and wrap driver
// failures with context; all policy (membership, permissions, validation)
// lives in pkg/chat.
package store

import (
	"context"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hivedesk/messaging/pkg/apperr"
	"github.com/hivedesk/messaging/pkg/db"
	"github.com/hivedesk/messaging/pkg/model"
)

type ChannelStore struct {
	db *db.Session
}

func NewChannelStore(session *db.Session) *ChannelStore {
	return &ChannelStore{db: session}
}

func (s *ChannelStore) Create(ctx context.Context, ch *model.Channel) error {
	err := s.db.Query(`INSERT INTO channels
		(id, slug, name, kind, created_by, created_at, last_activity, is_deleted, is_archived,
		 allow_uploads, allow_reactions, slow_mode_seconds, require_approval, read_only, max_members)
		VALUES (?, ?, ?, ?, ?, ?, ?, false, false, ?, ?, ?, ?, ?, ?)`,
		gocql.UUID(ch.ID), ch.Slug, ch.Name, string(ch.Kind), gocql.UUID(ch.CreatedBy),
		ch.CreatedAt, ch.LastActivity,
		ch.Settings.AllowUploads, ch.Settings.AllowReactions, ch.Settings.SlowModeSeconds,
		ch.Settings.RequireApproval, ch.Settings.ReadOnly, ch.Settings.MaxMembers,
	).WithContext(ctx).Exec()
	if err != nil {
		return errors.Wrap(err, "channelStore.Create")
	}
	return nil
}

func (s *ChannelStore) Get(ctx context.Context, id uuid.UUID) (*model.Channel, error) {
	ch := &model.Channel{ID: id}
	var gid, createdBy gocql.UUID
	var kind string
	err := s.db.Query(`SELECT id, slug, name, kind, created_by, created_at, last_activity,
		is_deleted, is_archived, allow_uploads, allow_reactions, slow_mode_seconds,
		require_approval, read_only, max_members
		FROM channels WHERE id = ?`, gocql.UUID(id)).WithContext(ctx).Scan(
		&gid, &ch.Slug, &ch.Name, &kind, &createdBy, &ch.CreatedAt, &ch.LastActivity,
		&ch.IsDeleted, &ch.IsArchived,
		&ch.Settings.AllowUploads, &ch.Settings.AllowReactions, &ch.Settings.SlowModeSeconds,
		&ch.Settings.RequireApproval, &ch.Settings.ReadOnly, &ch.Settings.MaxMembers,
	)
	if err == gocql.ErrNotFound {
		return nil, apperr.NotFound("channel not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "channelStore.Get")
	}
	ch.Kind = model.ChannelKind(kind)
	ch.CreatedBy = uuid.UUID(createdBy)

	count, err := s.MessageCount(ctx, id)
	if err != nil {
		return nil, err
	}
	ch.MessageCount = count
	return ch, nil
}

// LookupDirect returns the channel ID recorded for the unordered user pair,
// or NotFound.
func (s *ChannelStore) LookupDirect(ctx context.Context, a, b uuid.UUID) (uuid.UUID, error) {
	var cid gocql.UUID
	err := s.db.Query(`SELECT channel_id FROM dm_pairs WHERE pair_key = ?`,
		model.DirectPairKey(a, b)).WithContext(ctx).Scan(&cid)
	if err == gocql.ErrNotFound {
		return uuid.Nil, apperr.NotFound("direct channel not found")
	}
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "channelStore.LookupDirect")
	}
	return uuid.UUID(cid), nil
}

// ClaimDirectPair atomically records channelID for the pair using a
// lightweight transaction. When another writer got there first the existing
// channel ID is returned with claimed=false. This is the create-if-absent
// primitive that keeps DM channels unique under concurrent first contact.
func (s *ChannelStore) ClaimDirectPair(ctx context.Context, a, b uuid.UUID, channelID uuid.UUID) (uuid.UUID, bool, error) {
	prev := map[string]interface{}{}
	applied, err := s.db.Query(`INSERT INTO dm_pairs (pair_key, channel_id) VALUES (?, ?) IF NOT EXISTS`,
		model.DirectPairKey(a, b), gocql.UUID(channelID)).WithContext(ctx).MapScanCAS(prev)
	if err != nil {
		return uuid.Nil, false, errors.Wrap(err, "channelStore.ClaimDirectPair")
	}
	if applied {
		return channelID, true, nil
	}
	existing, ok := prev["channel_id"].(gocql.UUID)
	if !ok {
		return uuid.Nil, false, errors.New("channelStore.ClaimDirectPair: missing channel_id in CAS result")
	}
	return uuid.UUID(existing), false, nil
}

// Delete removes a channel row outright. Only used to clean up the loser of
// a direct-pair claim race; user-facing deletion is SoftDelete.
func (s *ChannelStore) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.db.Query(`DELETE FROM channels WHERE id = ?`, gocql.UUID(id)).WithContext(ctx).Exec()
	return errors.Wrap(err, "channelStore.Delete")
}

func (s *ChannelStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	err := s.db.Query(`UPDATE channels SET is_deleted = true WHERE id = ?`,
		gocql.UUID(id)).WithContext(ctx).Exec()
	return errors.Wrap(err, "channelStore.SoftDelete")
}

func (s *ChannelStore) Archive(ctx context.Context, id uuid.UUID) error {
	err := s.db.Query(`UPDATE channels SET is_archived = true WHERE id = ?`,
		gocql.UUID(id)).WithContext(ctx).Exec()
	return errors.Wrap(err, "channelStore.Archive")
}

func (s *ChannelStore) UpdateSettings(ctx context.Context, id uuid.UUID, set model.ChannelSettings) error {
	err := s.db.Query(`UPDATE channels SET allow_uploads = ?, allow_reactions = ?,
		slow_mode_seconds = ?, require_approval = ?, read_only = ?, max_members = ?
		WHERE id = ?`,
		set.AllowUploads, set.AllowReactions, set.SlowModeSeconds,
		set.RequireApproval, set.ReadOnly, set.MaxMembers,
		gocql.UUID(id)).WithContext(ctx).Exec()
	return errors.Wrap(err, "channelStore.UpdateSettings")
}

func (s *ChannelStore) TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := s.db.Query(`UPDATE channels SET last_activity = ? WHERE id = ?`,
		at, gocql.UUID(id)).WithContext(ctx).Exec()
	return errors.Wrap(err, "channelStore.TouchActivity")
}

func (s *ChannelStore) BumpMessageCount(ctx context.Context, id uuid.UUID) error {
	err := s.db.Query(`UPDATE channel_counters SET message_count = message_count + 1 WHERE channel_id = ?`,
		gocql.UUID(id)).WithContext(ctx).Exec()
	return errors.Wrap(err, "channelStore.BumpMessageCount")
}

func (s *ChannelStore) MessageCount(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	err := s.db.Query(`SELECT message_count FROM channel_counters WHERE channel_id = ?`,
		gocql.UUID(id)).WithContext(ctx).Scan(&count)
	if err == gocql.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "channelStore.MessageCount")
	}
	return count, nil
}

// AddMember inserts the membership row if absent. Returns false without
// error when the user is already a member.
func (s *ChannelStore) AddMember(ctx context.Context, m model.Member) (bool, error) {
	prev := map[string]interface{}{}
	applied, err := s.db.Query(`INSERT INTO channel_members
		(channel_id, user_id, role, joined_at, muted, can_write, can_add_members, can_delete_messages, can_moderate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
		gocql.UUID(m.ChannelID), gocql.UUID(m.UserID), string(m.Role), m.JoinedAt, m.Muted,
		m.Perms.CanWrite, m.Perms.CanAddMembers, m.Perms.CanDeleteMessages, m.Perms.CanModerate,
	).WithContext(ctx).MapScanCAS(prev)
	if err != nil {
		return false, errors.Wrap(err, "channelStore.AddMember")
	}
	if !applied {
		return false, nil
	}

	err = s.db.Query(`INSERT INTO user_channels (user_id, channel_id) VALUES (?, ?)`,
		gocql.UUID(m.UserID), gocql.UUID(m.ChannelID)).WithContext(ctx).Exec()
	if err != nil {
		return false, errors.Wrap(err, "channelStore.AddMember: reverse index")
	}
	return true, nil
}

func (s *ChannelStore) RemoveMember(ctx context.Context, channelID, userID uuid.UUID) error {
	err := s.db.Query(`DELETE FROM channel_members WHERE channel_id = ? AND user_id = ?`,
		gocql.UUID(channelID), gocql.UUID(userID)).WithContext(ctx).Exec()
	if err != nil {
		return errors.Wrap(err, "channelStore.RemoveMember")
	}
	err = s.db.Query(`DELETE FROM user_channels WHERE user_id = ? AND channel_id = ?`,
		gocql.UUID(userID), gocql.UUID(channelID)).WithContext(ctx).Exec()
	return errors.Wrap(err, "channelStore.RemoveMember: reverse index")
}

func (s *ChannelStore) Member(ctx context.Context, channelID, userID uuid.UUID) (*model.Member, error) {
	m := &model.Member{ChannelID: channelID, UserID: userID}
	var role string
	err := s.db.Query(`SELECT role, joined_at, muted, can_write, can_add_members, can_delete_messages, can_moderate
		FROM channel_members WHERE channel_id = ? AND user_id = ?`,
		gocql.UUID(channelID), gocql.UUID(userID)).WithContext(ctx).Scan(
		&role, &m.JoinedAt, &m.Muted,
		&m.Perms.CanWrite, &m.Perms.CanAddMembers, &m.Perms.CanDeleteMessages, &m.Perms.CanModerate,
	)
	if err == gocql.ErrNotFound {
		return nil, apperr.NotFound("not a member")
	}
	if err != nil {
		return nil, errors.Wrap(err, "channelStore.Member")
	}
	m.Role = model.Role(role)
	return m, nil
}

func (s *ChannelStore) Members(ctx context.Context, channelID uuid.UUID) ([]model.Member, error) {
	iter := s.db.Query(`SELECT user_id, role, joined_at, muted, can_write, can_add_members, can_delete_messages, can_moderate
		FROM channel_members WHERE channel_id = ?`, gocql.UUID(channelID)).WithContext(ctx).Iter()

	var out []model.Member
	var uid gocql.UUID
	var role string
	m := model.Member{ChannelID: channelID}
	for iter.Scan(&uid, &role, &m.JoinedAt, &m.Muted,
		&m.Perms.CanWrite, &m.Perms.CanAddMembers, &m.Perms.CanDeleteMessages, &m.Perms.CanModerate) {
		m.UserID = uuid.UUID(uid)
		m.Role = model.Role(role)
		out = append(out, m)
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "channelStore.Members")
	}
	return out, nil
}

// ChannelIDsForUser reads the reverse index.
func (s *ChannelStore) ChannelIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	iter := s.db.Query(`SELECT channel_id FROM user_channels WHERE user_id = ?`,
		gocql.UUID(userID)).WithContext(ctx).Iter()

	var out []uuid.UUID
	var cid gocql.UUID
	for iter.Scan(&cid) {
		out = append(out, uuid.UUID(cid))
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "channelStore.ChannelIDsForUser")
	}
	return out, nil
}
