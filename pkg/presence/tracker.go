// Package presence tracks per-user online state. The record of truth lives
// in the user store; a short-TTL redis cache in front of it bounds read load
// from polling clients. Redis is shared by all instances, so pushed (gateway)
// and pulled (HTTP) updates agree on one invalidation key.
package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hivedesk/messaging/pkg/events"
	"github.com/hivedesk/messaging/pkg/model"
)

type Store interface {
	GetPresence(ctx context.Context, id uuid.UUID) (*model.Presence, error)
	SetPresence(ctx context.Context, id uuid.UUID, online bool, at time.Time) error
	Heartbeat(ctx context.Context, id uuid.UUID, at time.Time) error
}

type Tracker struct {
	store  Store
	cache  *redis.Client
	pub    events.Publisher
	ttl    time.Duration
	logger zerolog.Logger
}

func NewTracker(store Store, cache *redis.Client, pub events.Publisher, ttl time.Duration, logger zerolog.Logger) *Tracker {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &Tracker{store: store, cache: cache, pub: pub, ttl: ttl, logger: logger}
}

func cacheKey(id uuid.UUID) string {
	return "presence:" + id.String()
}

// Set writes the store first, then drops the cache entry. Deleting rather
// than overwriting guarantees no reader can be served a value older than
// this write.
func (t *Tracker) Set(ctx context.Context, userID uuid.UUID, online bool) error {
	now := time.Now().UTC()
	if err := t.store.SetPresence(ctx, userID, online, now); err != nil {
		return err
	}

	if err := t.cache.Del(ctx, cacheKey(userID)).Err(); err != nil {
		t.logger.Warn().Err(err).Stringer("user_id", userID).Msg("presence cache invalidation failed")
	}

	p := &model.Presence{UserID: userID, IsOnline: online, LastActive: now}
	if err := t.pub.Publish(ctx, events.UserPresence(p)); err != nil {
		t.logger.Error().Err(err).Stringer("user_id", userID).Msg("presence publish failed")
	}
	return nil
}

// Get serves from the cache when fresh, otherwise reads the store and
// refills the cache.
func (t *Tracker) Get(ctx context.Context, userID uuid.UUID) (*model.Presence, error) {
	key := cacheKey(userID)

	if raw, err := t.cache.Get(ctx, key).Result(); err == nil {
		var p model.Presence
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			return &p, nil
		}
	} else if err != redis.Nil {
		t.logger.Warn().Err(err).Stringer("user_id", userID).Msg("presence cache read failed")
	}

	p, err := t.store.GetPresence(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		if err := t.cache.Set(ctx, key, data, t.ttl).Err(); err != nil {
			t.logger.Warn().Err(err).Stringer("user_id", userID).Msg("presence cache fill failed")
		}
	}
	return p, nil
}

// Heartbeat refreshes last_active so the liveness sweep keeps treating the
// user as alive. The cached snapshot stays valid; only the timestamp moved.
func (t *Tracker) Heartbeat(ctx context.Context, userID uuid.UUID) error {
	return t.store.Heartbeat(ctx, userID, time.Now().UTC())
}
