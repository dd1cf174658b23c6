package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hivedesk/messaging/pkg/auth"
	"github.com/hivedesk/messaging/pkg/chat"
	"github.com/hivedesk/messaging/pkg/config"
	"github.com/hivedesk/messaging/pkg/db"
	"github.com/hivedesk/messaging/pkg/events"
	"github.com/hivedesk/messaging/pkg/presence"
	"github.com/hivedesk/messaging/pkg/snowflake"
	"github.com/hivedesk/messaging/pkg/store"
	"github.com/hivedesk/messaging/pkg/typing"
)

func main() {
	cfg := config.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "gateway").Logger()
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

	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		logger.Fatal().Err(err).Msg("snowflake init failed")
	}

	bus := events.NewBus(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	defer bus.Close()

	channels := store.NewChannelStore(session)
	messages := store.NewMessageStore(session)
	users := store.NewUserStore(session)

	svc := chat.NewService(channels, messages, users, node, bus, logger)
	tracker := presence.NewTracker(users, rdb, bus, cfg.PresenceCacheTTL, logger)
	registry := typing.NewRegistry(rdb, cfg.TypingWindow)
	tokens := auth.NewManager(cfg.JWTSecret, 24*time.Hour)

	hub := NewHub(logger)
	go hub.Run()

	// Every gateway instance consumes the full event stream under its own
	// group so each one can serve its local connections.
	instanceID := uuid.NewString()
	go bus.Consume(context.Background(), cfg.KafkaBrokers, cfg.KafkaTopic, instanceID, hub.Route)

	gw := &Gateway{
		hub:      hub,
		svc:      svc,
		tracker:  tracker,
		registry: registry,
		tokens:   tokens,
		pub:      bus,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.ServeWS)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	logger.Info().Str("addr", cfg.GatewayAddr).Str("instance", instanceID).Msg("gateway starting")
	if err := http.ListenAndServe(cfg.GatewayAddr, mux); err != nil {
		logger.Fatal().Err(err).Msg("gateway exited")
	}
}
