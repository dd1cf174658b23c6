package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hivedesk/messaging/pkg/config"
	"github.com/hivedesk/messaging/pkg/db"
	"github.com/hivedesk/messaging/pkg/events"
	"github.com/hivedesk/messaging/pkg/presence"
	"github.com/hivedesk/messaging/pkg/store"
)

func main() {
	cfg := config.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "sweeper").Logger()
	if cfg.IsDevelopment() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
	if err != nil {
		logger.Fatal().Err(err).Msg("scylla connect failed")
	}
	defer session.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	bus := events.NewBus(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	defer bus.Close()

	users := store.NewUserStore(session)
	tracker := presence.NewTracker(users, rdb, bus, cfg.PresenceCacheTTL, logger)

	sweeper := NewSweeper(users, tracker, cfg.HeartbeatTimeout, cfg.SweepInterval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":8082", mux); err != nil {
			logger.Error().Err(err).Msg("metrics server exited")
		}
	}()

	logger.Info().
		Dur("interval", cfg.SweepInterval).
		Dur("timeout", cfg.HeartbeatTimeout).
		Msg("sweeper starting")
	sweeper.Run(ctx)
}
