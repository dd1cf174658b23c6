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
	"github.com/hivedesk/messaging/pkg/snowflake"
)

type MessageStore struct {
	db *db.Session
}

func NewMessageStore(session *db.Session) *MessageStore {
	return &MessageStore{db: session}
}

func (s *MessageStore) Insert(ctx context.Context, m *model.Message) error {
	err := s.db.Query(`INSERT INTO messages (channel_id, id, sender_id, kind, body, attachments, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, false)`,
		gocql.UUID(m.ChannelID), m.ID, gocql.UUID(m.SenderID), string(m.Kind), m.Body, m.Attachments,
	).WithContext(ctx).Exec()
	return errors.Wrap(err, "messageStore.Insert")
}

func (s *MessageStore) Get(ctx context.Context, channelID uuid.UUID, id int64) (*model.Message, error) {
	m := &model.Message{ID: id, ChannelID: channelID}
	var sender gocql.UUID
	var kind string
	var editedAt time.Time
	err := s.db.Query(`SELECT sender_id, kind, body, attachments, is_deleted, edited_at
		FROM messages WHERE channel_id = ? AND id = ?`,
		gocql.UUID(channelID), id).WithContext(ctx).Scan(
		&sender, &kind, &m.Body, &m.Attachments, &m.IsDeleted, &editedAt,
	)
	if err == gocql.ErrNotFound {
		return nil, apperr.NotFound("message not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "messageStore.Get")
	}
	m.SenderID = uuid.UUID(sender)
	m.Kind = model.MessageKind(kind)
	m.CreatedAt = snowflake.Time(id)
	if !editedAt.IsZero() {
		t := editedAt
		m.EditedAt = &t
	}
	return m, nil
}

// List returns up to limit messages in ascending creation order, excluding
// tombstones. beforeID > 0 pages backwards: only messages older than that ID
// are returned.
func (s *MessageStore) List(ctx context.Context, channelID uuid.UUID, limit int, beforeID int64) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var iter *gocql.Iter
	if beforeID > 0 {
		iter = s.db.Query(`SELECT id, sender_id, kind, body, attachments, is_deleted, edited_at
			FROM messages WHERE channel_id = ? AND id < ? ORDER BY id DESC LIMIT ?`,
			gocql.UUID(channelID), beforeID, limit).WithContext(ctx).Iter()
	} else {
		iter = s.db.Query(`SELECT id, sender_id, kind, body, attachments, is_deleted, edited_at
			FROM messages WHERE channel_id = ? ORDER BY id DESC LIMIT ?`,
			gocql.UUID(channelID), limit).WithContext(ctx).Iter()
	}

	var newest []model.Message
	var sender gocql.UUID
	var kind string
	var editedAt time.Time
	var m model.Message
	for iter.Scan(&m.ID, &sender, &kind, &m.Body, &m.Attachments, &m.IsDeleted, &editedAt) {
		if m.IsDeleted {
			m = model.Message{}
			continue
		}
		m.ChannelID = channelID
		m.SenderID = uuid.UUID(sender)
		m.Kind = model.MessageKind(kind)
		m.CreatedAt = snowflake.Time(m.ID)
		if !editedAt.IsZero() {
			t := editedAt
			m.EditedAt = &t
		}
		newest = append(newest, m)
		m = model.Message{}
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "messageStore.List")
	}

	// The query walks newest-first; flip to the ascending order callers rely on.
	for i, j := 0, len(newest)-1; i < j; i, j = i+1, j-1 {
		newest[i], newest[j] = newest[j], newest[i]
	}
	return newest, nil
}

// ListIDs returns every non-deleted message ID in the channel, ascending.
func (s *MessageStore) ListIDs(ctx context.Context, channelID uuid.UUID) ([]int64, error) {
	iter := s.db.Query(`SELECT id, is_deleted FROM messages WHERE channel_id = ?`,
		gocql.UUID(channelID)).WithContext(ctx).Iter()

	var out []int64
	var id int64
	var deleted bool
	for iter.Scan(&id, &deleted) {
		if !deleted {
			out = append(out, id)
		}
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "messageStore.ListIDs")
	}
	return out, nil
}

func (s *MessageStore) UpdateBody(ctx context.Context, channelID uuid.UUID, id int64, body string, editedAt time.Time) error {
	err := s.db.Query(`UPDATE messages SET body = ?, edited_at = ? WHERE channel_id = ? AND id = ?`,
		body, editedAt, gocql.UUID(channelID), id).WithContext(ctx).Exec()
	return errors.Wrap(err, "messageStore.UpdateBody")
}

func (s *MessageStore) AddRevision(ctx context.Context, channelID uuid.UUID, id int64, body string, at time.Time) error {
	err := s.db.Query(`INSERT INTO message_revisions (channel_id, message_id, revised_at, body) VALUES (?, ?, ?, ?)`,
		gocql.UUID(channelID), id, at, body).WithContext(ctx).Exec()
	return errors.Wrap(err, "messageStore.AddRevision")
}

func (s *MessageStore) Revisions(ctx context.Context, channelID uuid.UUID, id int64) ([]model.Revision, error) {
	iter := s.db.Query(`SELECT revised_at, body FROM message_revisions WHERE channel_id = ? AND message_id = ?`,
		gocql.UUID(channelID), id).WithContext(ctx).Iter()

	var out []model.Revision
	var r model.Revision
	for iter.Scan(&r.RevisedAt, &r.Body) {
		out = append(out, r)
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "messageStore.Revisions")
	}
	return out, nil
}

// Tombstone soft-deletes: the row survives for audit but default listings
// skip it.
func (s *MessageStore) Tombstone(ctx context.Context, channelID uuid.UUID, id int64) error {
	err := s.db.Query(`UPDATE messages SET is_deleted = true WHERE channel_id = ? AND id = ?`,
		gocql.UUID(channelID), id).WithContext(ctx).Exec()
	return errors.Wrap(err, "messageStore.Tombstone")
}

// ToggleReaction adds the (emoji, user) pair if absent or removes it if
// present, reporting whether it is now set.
func (s *MessageStore) ToggleReaction(ctx context.Context, channelID uuid.UUID, id int64, emoji string, userID uuid.UUID) (bool, error) {
	prev := map[string]interface{}{}
	applied, err := s.db.Query(`INSERT INTO message_reactions (channel_id, message_id, emoji, user_id)
		VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		gocql.UUID(channelID), id, emoji, gocql.UUID(userID)).WithContext(ctx).MapScanCAS(prev)
	if err != nil {
		return false, errors.Wrap(err, "messageStore.ToggleReaction: add")
	}
	if applied {
		return true, nil
	}

	err = s.db.Query(`DELETE FROM message_reactions WHERE channel_id = ? AND message_id = ? AND emoji = ? AND user_id = ?`,
		gocql.UUID(channelID), id, emoji, gocql.UUID(userID)).WithContext(ctx).Exec()
	if err != nil {
		return false, errors.Wrap(err, "messageStore.ToggleReaction: remove")
	}
	return false, nil
}

func (s *MessageStore) Reactions(ctx context.Context, channelID uuid.UUID, id int64) ([]model.Reaction, error) {
	iter := s.db.Query(`SELECT emoji, user_id FROM message_reactions WHERE channel_id = ? AND message_id = ?`,
		gocql.UUID(channelID), id).WithContext(ctx).Iter()

	var out []model.Reaction
	var emoji string
	var uid gocql.UUID
	for iter.Scan(&emoji, &uid) {
		out = append(out, model.Reaction{Emoji: emoji, UserID: uuid.UUID(uid)})
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "messageStore.Reactions")
	}
	return out, nil
}

// MarkRead records the receipts in both read tables. The primary keys make
// re-marking the same (reader, message) pair a no-op upsert, so the call is
// idempotent by construction.
func (s *MessageStore) MarkRead(ctx context.Context, channelID uuid.UUID, readerID uuid.UUID, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	batch := s.db.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, id := range ids {
		batch.Query(`INSERT INTO message_reads (channel_id, message_id, user_id, read_at) VALUES (?, ?, ?, ?)`,
			gocql.UUID(channelID), id, gocql.UUID(readerID), at)
		batch.Query(`INSERT INTO user_reads (channel_id, user_id, message_id) VALUES (?, ?, ?)`,
			gocql.UUID(channelID), gocql.UUID(readerID), id)
	}
	err := s.db.ExecuteBatch(batch)
	return errors.Wrap(err, "messageStore.MarkRead")
}

// ReadIDs returns the set of message IDs the reader has receipts for.
func (s *MessageStore) ReadIDs(ctx context.Context, channelID, readerID uuid.UUID) (map[int64]bool, error) {
	iter := s.db.Query(`SELECT message_id FROM user_reads WHERE channel_id = ? AND user_id = ?`,
		gocql.UUID(channelID), gocql.UUID(readerID)).WithContext(ctx).Iter()

	out := make(map[int64]bool)
	var id int64
	for iter.Scan(&id) {
		out[id] = true
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "messageStore.ReadIDs")
	}
	return out, nil
}

// Readers returns the receipts recorded for one message.
func (s *MessageStore) Readers(ctx context.Context, channelID uuid.UUID, id int64) ([]model.ReadReceipt, error) {
	iter := s.db.Query(`SELECT user_id, read_at FROM message_reads WHERE channel_id = ? AND message_id = ?`,
		gocql.UUID(channelID), id).WithContext(ctx).Iter()

	var out []model.ReadReceipt
	var uid gocql.UUID
	var at time.Time
	for iter.Scan(&uid, &at) {
		out = append(out, model.ReadReceipt{UserID: uuid.UUID(uid), ReadAt: at})
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "messageStore.Readers")
	}
	return out, nil
}
