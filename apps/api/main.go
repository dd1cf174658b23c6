package main

import (
	"net/http"
	"os"
	"time"

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

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api").Logger()
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

	h := &Handler{
		svc:      svc,
		presence: tracker,
		typing:   registry,
		tokens:   tokens,
		users:    users,
		logger:   logger,
	}

	logger.Info().Str("addr", cfg.APIAddr).Msg("api service starting")
	if err := http.ListenAndServe(cfg.APIAddr, NewRouter(h, tokens, logger)); err != nil {
		logger.Fatal().Err(err).Msg("api server exited")
	}
}
