package main

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hivedesk/messaging/pkg/events"
	"github.com/hivedesk/messaging/pkg/metrics"
)

// Hub tracks local connections and their room subscriptions. It is purely a
// fan-out surface: every frame it broadcasts was consumed from the bus, and
// everything on the bus is already persisted. The hub never originates state.
type Hub struct {
	mu    sync.RWMutex
	conns map[*Client]bool
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		conns:      make(map[*Client]bool),
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.conns[client] = true
			h.mu.Unlock()
			metrics.WSConnections.Inc()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.conns[client]; ok {
				delete(h.conns, client)
				for channelID := range client.rooms {
					h.dropLocked(channelID, client)
				}
				close(client.send)
				metrics.WSConnections.Dec()
			}
			h.mu.Unlock()
		}
	}
}

// Join subscribes an authenticated client to a room. Membership is verified
// by the caller before this is reached.
func (h *Hub) Join(client *Client, channelID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[channelID] == nil {
		h.rooms[channelID] = make(map[*Client]bool)
	}
	h.rooms[channelID][client] = true
	client.rooms[channelID] = true
}

func (h *Hub) Leave(client *Client, channelID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(channelID, client)
}

func (h *Hub) dropLocked(channelID uuid.UUID, client *Client) {
	if room, ok := h.rooms[channelID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, channelID)
		}
	}
	delete(client.rooms, channelID)
}

// Route delivers a consumed bus envelope to the local connections that should
// see it. Channel-scoped events go to the room; presence goes to every
// connection, since any client may be rendering the user's status.
func (h *Hub) Route(env events.Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(env.Event)).Msg("marshal envelope")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	metrics.Broadcasts.WithLabelValues(string(env.Event)).Inc()

	if env.Event == events.TypeUserPresence {
		for client := range h.conns {
			client.deliver(frame)
		}
		return
	}

	for client := range h.rooms[env.ChannelID] {
		client.deliver(frame)
	}
}
