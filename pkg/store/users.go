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

// UserStore reads the platform user directory and owns the presence columns.
type UserStore struct {
	db *db.Session
}

func NewUserStore(session *db.Session) *UserStore {
	return &UserStore{db: session}
}

func (s *UserStore) Upsert(ctx context.Context, u *model.User) error {
	err := s.db.Query(`INSERT INTO users (id, username, first_name, last_name, avatar_url, email, is_active, is_online, last_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gocql.UUID(u.ID), u.Username, u.FirstName, u.LastName, u.AvatarURL, u.Email,
		u.IsActive, u.IsOnline, u.LastActive,
	).WithContext(ctx).Exec()
	return errors.Wrap(err, "userStore.Upsert")
}

func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u := &model.User{ID: id}
	var gid gocql.UUID
	err := s.db.Query(`SELECT id, username, first_name, last_name, avatar_url, email, is_active, is_online, last_active
		FROM users WHERE id = ?`, gocql.UUID(id)).WithContext(ctx).Scan(
		&gid, &u.Username, &u.FirstName, &u.LastName, &u.AvatarURL, &u.Email,
		&u.IsActive, &u.IsOnline, &u.LastActive,
	)
	if err == gocql.ErrNotFound {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "userStore.Get")
	}
	return u, nil
}

func (s *UserStore) GetPresence(ctx context.Context, id uuid.UUID) (*model.Presence, error) {
	p := &model.Presence{UserID: id}
	err := s.db.Query(`SELECT is_online, last_active FROM users WHERE id = ?`,
		gocql.UUID(id)).WithContext(ctx).Scan(&p.IsOnline, &p.LastActive)
	if err == gocql.ErrNotFound {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "userStore.GetPresence")
	}
	return p, nil
}

func (s *UserStore) SetPresence(ctx context.Context, id uuid.UUID, online bool, at time.Time) error {
	err := s.db.Query(`UPDATE users SET is_online = ?, last_active = ? WHERE id = ?`,
		online, at, gocql.UUID(id)).WithContext(ctx).Exec()
	return errors.Wrap(err, "userStore.SetPresence")
}

// Heartbeat bumps last_active without touching the online flag.
func (s *UserStore) Heartbeat(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := s.db.Query(`UPDATE users SET last_active = ? WHERE id = ?`,
		at, gocql.UUID(id)).WithContext(ctx).Exec()
	return errors.Wrap(err, "userStore.Heartbeat")
}

// StaleOnline lists users flagged online whose last_active predates the
// cutoff. Served by the secondary index on is_online; the sweeper uses this
// to self-correct presence after unclean disconnects.
func (s *UserStore) StaleOnline(ctx context.Context, cutoff time.Time) ([]model.Presence, error) {
	iter := s.db.Query(`SELECT id, last_active FROM users WHERE is_online = true`).
		WithContext(ctx).Iter()

	var out []model.Presence
	var uid gocql.UUID
	var lastActive time.Time
	for iter.Scan(&uid, &lastActive) {
		if lastActive.Before(cutoff) {
			out = append(out, model.Presence{UserID: uuid.UUID(uid), IsOnline: true, LastActive: lastActive})
		}
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "userStore.StaleOnline")
	}
	return out, nil
}
