package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hivedesk/messaging/pkg/metrics"
	"github.com/hivedesk/messaging/pkg/model"
)

type staleLister interface {
	StaleOnline(ctx context.Context, cutoff time.Time) ([]model.Presence, error)
}

type presenceSetter interface {
	Set(ctx context.Context, userID uuid.UUID, online bool) error
}

// Sweeper flips users offline when their heartbeats stop. Gateways write
// presence on connect, disconnect, and pong, but an unclean disconnect (kill,
// netsplit, crashed gateway) leaves the flag stuck online; the sweep is the
// record's self-correction.
type Sweeper struct {
	users    staleLister
	presence presenceSetter
	timeout  time.Duration
	interval time.Duration
	logger   zerolog.Logger
}

func NewSweeper(users staleLister, presence presenceSetter, timeout, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		users:    users,
		presence: presence,
		timeout:  timeout,
		interval: interval,
		logger:   logger,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweep failed")
			} else if n > 0 {
				s.logger.Info().Int("marked_offline", n).Msg("swept stale presence")
			}
		}
	}
}

// Sweep marks every stale-online user offline and returns how many it
// flipped. Each flip publishes a presence event through the tracker so
// connected clients see the change.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := s.users.StaleOnline(ctx, time.Now().UTC().Add(-s.timeout))
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, p := range stale {
		if err := s.presence.Set(ctx, p.UserID, false); err != nil {
			s.logger.Warn().Err(err).Str("user_id", p.UserID.String()).Msg("offline flip failed")
			continue
		}
		marked++
		metrics.SweepsMarkedOffline.Inc()
	}
	return marked, nil
}
