// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/moodlog/internal/logging"
)

// clientIDCounter gives clients a monotonically increasing id so fan-out
// order does not depend on map iteration.
var clientIDCounter atomic.Uint64

// ClientInfo identifies the authenticated owner of a connection.
type ClientInfo struct {
	UserID string
	Role   string
	// SessionKey is stable across reconnects of the same client session. An
	// empty key gets a fresh random one, so nothing is deduplicated across
	// reconnects.
	SessionKey string
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	id         uint64
	hub        *Hub
	conn       *websocket.Conn
	send       chan Message
	userID     string
	role       string
	sessionKey string
	limiter    *rate.Limiter

	evicting  atomic.Bool
	closeOnce sync.Once
}

// NewClient creates a client for an upgraded connection. Call Register and
// then Start.
func NewClient(hub *Hub, conn *websocket.Conn, info ClientInfo) *Client {
	if info.SessionKey == "" {
		info.SessionKey = uuid.NewString()
	}
	opts := hub.opts
	return &Client{
		id:         clientIDCounter.Add(1),
		hub:        hub,
		conn:       conn,
		send:       make(chan Message, opts.SendBuffer),
		userID:     info.UserID,
		role:       info.Role,
		sessionKey: info.SessionKey,
		limiter:    rate.NewLimiter(rate.Limit(opts.InboundRate), opts.InboundBurst),
	}
}

// ID returns the client's ordering id.
func (c *Client) ID() uint64 { return c.id }

// UserID returns the connection owner.
func (c *Client) UserID() string { return c.userID }

// SessionKey returns the delivery ledger key of this connection.
func (c *Client) SessionKey() string { return c.sessionKey }

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// readPump handles inbound frames. Only ping is understood; anything else
// is ignored. Clients exceeding the inbound rate are disconnected.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	opts := c.hub.opts
	c.conn.SetReadLimit(opts.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(opts.PongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Warn().Err(err).Str("user_id", c.userID).Msg("unexpected websocket close error")
			}
			return
		}

		if !c.limiter.Allow() {
			logging.Warn().Str("user_id", c.userID).Msg("websocket client exceeded inbound rate, disconnecting")
			return
		}

		if msg.Type == MessageTypePing {
			c.hub.reply(c, Message{Type: MessageTypePong})
		}
	}
}

func (c *Client) writePump() {
	opts := c.hub.opts
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait)); err != nil {
				return
			}
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				logging.Debug().Err(err).Str("user_id", c.userID).Msg("failed to write websocket message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
