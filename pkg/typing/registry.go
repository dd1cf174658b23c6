// Package typing keeps the ephemeral "is composing" flags. State lives in a
// redis sorted set per channel scored by unix-ms, so every gateway instance
// sees the same indicators and nothing survives a flush — which is fine,
// indicators are advisory UI hints, not data of record.
package typing

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Registry struct {
	redis  *redis.Client
	window time.Duration
}

func NewRegistry(client *redis.Client, window time.Duration) *Registry {
	if window <= 0 {
		window = 5 * time.Second
	}
	return &Registry{redis: client, window: window}
}

func channelKey(channelID uuid.UUID) string {
	return "typing:" + channelID.String()
}

// Members encode as "<userID>|<displayName>" so one sorted set carries both.
func encodeMember(userID uuid.UUID, name string) string {
	return userID.String() + "|" + name
}

func decodeMember(member string) (string, string) {
	parts := strings.SplitN(member, "|", 2)
	if len(parts) != 2 {
		return member, ""
	}
	return parts[0], parts[1]
}

// Set upserts the indicator when typing and removes it otherwise. The key
// itself expires a little after the freshness window, so abandoned channels
// clean up without a sweep.
func (r *Registry) Set(ctx context.Context, channelID, userID uuid.UUID, name string, isTyping bool) error {
	key := channelKey(channelID)

	if !isTyping {
		// Clearing needs a scan: the stored member embeds the display name.
		members, err := r.redis.ZRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		prefix := userID.String() + "|"
		for _, m := range members {
			if strings.HasPrefix(m, prefix) {
				if err := r.redis.ZRem(ctx, key, m).Err(); err != nil {
					return err
				}
			}
		}
		return nil
	}

	now := time.Now()
	if err := r.redis.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: encodeMember(userID, name),
	}).Err(); err != nil {
		return err
	}
	return r.redis.Expire(ctx, key, r.window*2).Err()
}

// Active prunes entries older than the freshness window, then returns the
// display names of everyone still typing, excluding the requester.
func (r *Registry) Active(ctx context.Context, channelID, excludeUser uuid.UUID) ([]string, error) {
	key := channelKey(channelID)
	cutoff := time.Now().Add(-r.window).UnixMilli()

	if err := r.redis.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return nil, err
	}

	members, err := r.redis.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	var names []string
	exclude := excludeUser.String()
	for _, m := range members {
		id, name := decodeMember(m)
		if id == exclude {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
