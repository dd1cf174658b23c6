package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hivedesk/messaging/pkg/apperr"
	"github.com/hivedesk/messaging/pkg/auth"
	"github.com/hivedesk/messaging/pkg/chat"
	"github.com/hivedesk/messaging/pkg/events"
	"github.com/hivedesk/messaging/pkg/metrics"
	"github.com/hivedesk/messaging/pkg/model"
	"github.com/hivedesk/messaging/pkg/presence"
	"github.com/hivedesk/messaging/pkg/typing"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// An unauthenticated connection gets this long to present a token.
	authDeadline = 10 * time.Second

	// Maximum frame size allowed from peer.
	maxFrameSize = 16 * 1024

	historyLimit = 50
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Gateway holds everything a connection needs to serve the frame protocol.
type Gateway struct {
	hub      *Hub
	svc      *chat.Service
	tracker  *presence.Tracker
	registry *typing.Registry
	tokens   *auth.Manager
	pub      events.Publisher
	logger   zerolog.Logger
}

// clientFrame is the single inbound shape; Event selects which fields matter.
type clientFrame struct {
	Event       string    `json:"event"`
	Token       string    `json:"token,omitempty"`
	ChannelID   uuid.UUID `json:"channel_id,omitempty"`
	Body        string    `json:"body,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
	MessageIDs  []int64   `json:"message_ids,omitempty"`
	IsTyping    bool      `json:"is_typing,omitempty"`
}

type authedFrame struct {
	Event  string    `json:"event"`
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
}

type historyFrame struct {
	Event     string          `json:"event"`
	ChannelID uuid.UUID       `json:"channel_id"`
	Messages  []model.Message `json:"messages"`
}

type errorFrame struct {
	Event   string      `json:"event"`
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	gw   *Gateway
	conn *websocket.Conn
	send chan []byte

	userID uuid.UUID
	name   string
	authed bool

	// Subscribed rooms; guarded by the hub's mutex.
	rooms map[uuid.UUID]bool
}

// deliver queues a frame without blocking the hub. A client that cannot keep
// up loses frames rather than stalling the broadcast path; history on rejoin
// recovers anything missed.
func (c *Client) deliver(frame []byte) {
	select {
	case c.send <- frame:
	default:
	}
}

func (c *Client) sendJSON(v interface{}) {
	frame, err := json.Marshal(v)
	if err != nil {
		c.gw.logger.Error().Err(err).Msg("marshal outbound frame")
		return
	}
	c.deliver(frame)
}

func (c *Client) sendError(err error) {
	c.sendJSON(errorFrame{Event: "error", Code: apperr.CodeOf(err), Message: err.Error()})
}

func (c *Client) readPump() {
	defer func() {
		c.gw.hub.unregister <- c
		c.conn.Close()
		if c.authed {
			// Best effort; the sweeper self-corrects if this write is lost.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.gw.tracker.Set(ctx, c.userID, false); err != nil {
				c.gw.logger.Warn().Err(err).Str("user_id", c.userID.String()).Msg("offline presence write failed")
			}
		}
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(authDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if c.authed {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := c.gw.tracker.Heartbeat(ctx, c.userID); err != nil {
				c.gw.logger.Warn().Err(err).Msg("heartbeat write failed")
			}
		}
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.gw.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.sendError(apperr.InvalidArg("invalid frame"))
			continue
		}
		metrics.WSEvents.WithLabelValues(frame.Event).Inc()

		if !c.authed && frame.Event != "authenticate" {
			c.sendError(apperr.Unauthenticated("authenticate first"))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		c.handle(ctx, frame)
		cancel()
	}
}

func (c *Client) handle(ctx context.Context, frame clientFrame) {
	switch frame.Event {
	case "authenticate":
		c.authenticate(ctx, frame.Token)

	case "join_channel":
		ok, err := c.gw.svc.IsMember(ctx, frame.ChannelID, c.userID)
		if err != nil {
			c.sendError(err)
			return
		}
		if !ok {
			c.sendError(apperr.Forbidden("not a channel member"))
			return
		}
		c.gw.hub.Join(c, frame.ChannelID)

		msgs, err := c.gw.svc.History(ctx, frame.ChannelID, c.userID, historyLimit, 0)
		if err != nil {
			c.sendError(err)
			return
		}
		c.sendJSON(historyFrame{Event: "channel_history", ChannelID: frame.ChannelID, Messages: msgs})

	case "leave_channel":
		c.gw.hub.Leave(c, frame.ChannelID)

	case "send_message":
		if _, err := c.gw.svc.Send(ctx, frame.ChannelID, c.userID, frame.Body, frame.Attachments, model.MessageText); err != nil {
			c.sendError(err)
		}

	case "mark_read":
		if _, err := c.gw.svc.MarkRead(ctx, frame.ChannelID, c.userID, frame.MessageIDs); err != nil {
			c.sendError(err)
		}

	case "typing":
		ok, err := c.gw.svc.IsMember(ctx, frame.ChannelID, c.userID)
		if err != nil || !ok {
			return
		}
		if err := c.gw.registry.Set(ctx, frame.ChannelID, c.userID, c.name, frame.IsTyping); err != nil {
			c.gw.logger.Warn().Err(err).Msg("typing registry write failed")
		}
		env := events.Typing(frame.ChannelID, c.userID, c.name, frame.IsTyping)
		if err := c.gw.pub.Publish(ctx, env); err != nil {
			c.gw.logger.Warn().Err(err).Msg("typing publish failed")
		}

	default:
		c.sendError(apperr.InvalidArg("unknown event: " + frame.Event))
	}
}

func (c *Client) authenticate(ctx context.Context, token string) {
	if c.authed {
		return
	}
	claims, err := c.gw.tokens.Validate(auth.StripBearer(token))
	if err != nil {
		c.sendError(apperr.Unauthenticated("invalid token"))
		return
	}

	c.userID = claims.UserID
	c.name = claims.Name
	c.authed = true
	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	if err := c.gw.tracker.Set(ctx, c.userID, true); err != nil {
		c.gw.logger.Warn().Err(err).Str("user_id", c.userID.String()).Msg("online presence write failed")
	}

	c.sendJSON(authedFrame{Event: "authenticated", UserID: c.userID, Name: c.name})
}

// writePump drains the send channel to the peer and keeps the connection
// alive with pings. One writer per connection; gorilla allows at most one
// concurrent writer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades the connection and starts the pumps. Authentication
// happens over the socket itself via the first frame, so browser clients
// that cannot set headers on websocket dials still work.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		gw:    g,
		conn:  conn,
		send:  make(chan []byte, 256),
		rooms: make(map[uuid.UUID]bool),
	}
	g.hub.register <- client

	go client.writePump()
	go client.readPump()
}
