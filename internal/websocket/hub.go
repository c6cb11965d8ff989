// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/moodlog/internal/logging"
	"github.com/tomtom215/moodlog/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Event names owned by the hub.
const (
	EventUserOnline  = "user:online"
	EventUserOffline = "user:offline"
	MessageTypePing  = "ping"
	MessageTypePong  = "pong"
)

// RoleAdmin receives presence events.
const RoleAdmin = "admin"

// Message is the envelope of every frame sent to a client.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// PresenceEvent is the payload of user:online and user:offline.
type PresenceEvent struct {
	UserID string    `json:"userId"`
	At     time.Time `json:"at"`
}

// Backlog returns the messages a freshly connected session should catch up
// on, typically the user's unread notifications. Messages whose Data
// implements Deduper pass through the ledger like any other push.
type Backlog func(ctx context.Context, userID string) ([]Message, error)

// Options tune client connections.
type Options struct {
	SendBuffer     int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	InboundRate    float64
	InboundBurst   int
	Backlog        Backlog
}

// DefaultOptions returns production connection settings.
func DefaultOptions() Options {
	return Options{
		SendBuffer:     256,
		PingInterval:   54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
		InboundRate:    10,
		InboundBurst:   20,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = (o.PongWait * 9) / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.InboundRate <= 0 {
		o.InboundRate = d.InboundRate
	}
	if o.InboundBurst <= 0 {
		o.InboundBurst = d.InboundBurst
	}
	return o
}

// Hub is the session registry. Register and Unregister are queued and
// applied by RunWithContext; sends fan out immediately to the clients
// registered at that moment.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	users   map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	doneOnce   sync.Once

	ledger DeliveryLedger
	opts   Options
	now    func() time.Time

	// runCtx is the context of the running loop, used for backlog reads.
	runCtx context.Context
}

// NewHub creates a hub. A nil ledger disables at-most-once tracking.
func NewHub(ledger DeliveryLedger, opts Options) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		users:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 256),
		done:       make(chan struct{}),
		ledger:     ledger,
		opts:       opts.withDefaults(),
		now:        time.Now,
		runCtx:     context.Background(),
	}
}

// Register queues a client for registration.
func (h *Hub) Register(c *Client) {
	select {
	case <-h.done:
		c.closeSend()
		return
	default:
	}
	select {
	case h.register <- c:
	case <-h.done:
		c.closeSend()
	}
}

// Unregister queues a client for removal. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// RunWithContext applies registrations until ctx is canceled, then closes
// every client. Designed for suture supervision.
func (h *Hub) RunWithContext(ctx context.Context) error {
	h.mu.Lock()
	h.runCtx = ctx
	h.mu.Unlock()

	sweep := time.NewTicker(time.Minute)
	defer sweep.Stop()

	for {
		// Shutdown first, then lifecycle events, then anything.
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.register:
			h.add(c)
			continue
		case c := <-h.unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case <-sweep.C:
			if s, ok := h.ledger.(interface{ Sweep() int }); ok {
				if n := s.Sweep(); n > 0 {
					logging.Debug().Int("expired", n).Msg("Swept delivery ledger")
				}
			}
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	if original, dup := h.sessionInUse(c); dup {
		c.sessionKey = original + "#" + uuid.NewString()[:8]
		logging.Warn().
			Str("user_id", c.userID).
			Str("session", original).
			Str("rekeyed_session", c.sessionKey).
			Msg("websocket session key already live, rekeyed new connection")
	}
	h.clients[c] = struct{}{}
	set, ok := h.users[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.users[c.userID] = set
	}
	set[c] = struct{}{}
	firstForUser := len(set) == 1
	h.updateGauges()
	ctx := h.runCtx
	h.mu.Unlock()

	logging.Info().
		Str("user_id", c.userID).
		Str("session", c.sessionKey).
		Int("user_connections", len(set)).
		Msg("websocket client connected")

	if firstForUser {
		h.SendToRole(RoleAdmin, EventUserOnline, PresenceEvent{UserID: c.userID, At: h.now().UTC()})
	}
	if h.opts.Backlog != nil {
		go h.replay(ctx, c)
	}
}

// sessionInUse reports whether another live connection already owns c's
// session key. Two live connections never share ledger records. Must be
// called with mu held.
func (h *Hub) sessionInUse(c *Client) (string, bool) {
	for other := range h.clients {
		if other != c && other.sessionKey == c.sessionKey {
			return c.sessionKey, true
		}
	}
	return "", false
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	lastForUser := false
	if set, ok := h.users[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.userID)
			lastForUser = true
		}
	}
	c.closeSend()
	h.updateGauges()
	h.mu.Unlock()

	logging.Info().Str("user_id", c.userID).Str("session", c.sessionKey).Msg("websocket client disconnected")

	if lastForUser {
		h.SendToRole(RoleAdmin, EventUserOffline, PresenceEvent{UserID: c.userID, At: h.now().UTC()})
	}
}

// updateGauges must be called with mu held.
func (h *Hub) updateGauges() {
	metrics.WebSocketConnections.Set(float64(len(h.clients)))
	metrics.WebSocketUsers.Set(float64(len(h.users)))
}

func (h *Hub) replay(ctx context.Context, c *Client) {
	msgs, err := h.opts.Backlog(ctx, c.userID)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", c.userID).Msg("Failed to load websocket backlog")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for _, m := range msgs {
		h.deliver(c, m)
	}
}

// SendToUser pushes an event to every live session of userID.
// It implements notification.Pusher.
func (h *Hub) SendToUser(userID, event string, payload any) {
	msg := Message{Type: event, Data: payload}
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.users[userID]
	if len(set) == 0 {
		metrics.RecordPush(event, "no_session")
		return
	}
	for _, c := range sortedClients(set) {
		h.deliver(c, msg)
	}
}

// SendToRole pushes an event to every live session whose role matches.
// It implements notification.Pusher.
func (h *Hub) SendToRole(role, event string, payload any) {
	msg := Message{Type: event, Data: payload}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range sortedClients(h.clients) {
		if c.role == role {
			h.deliver(c, msg)
		}
	}
}

// deliver must be called with mu held for reading. It never blocks.
func (h *Hub) deliver(c *Client, msg Message) {
	if d, ok := msg.Data.(Deduper); ok && h.ledger != nil {
		first, err := h.ledger.CheckAndRecord(c.sessionKey, d.DedupKey())
		if err != nil {
			logging.Warn().Err(err).Str("session", c.sessionKey).Msg("Delivery ledger unavailable, skipping push")
			metrics.RecordPush(msg.Type, "dropped")
			return
		}
		if !first {
			metrics.RecordPush(msg.Type, "duplicate")
			return
		}
	}

	select {
	case c.send <- msg:
		metrics.RecordPush(msg.Type, "sent")
	default:
		metrics.RecordPush(msg.Type, "dropped")
		logging.Warn().
			Str("user_id", c.userID).
			Str("session", c.sessionKey).
			Str("event", msg.Type).
			Msg("websocket send buffer full, disconnecting slow client")
		h.evict(c)
	}
}

// reply sends a control message to one registered client, dropping it
// when the buffer is full or the client is gone.
func (h *Hub) reply(c *Client, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// evict schedules removal of a slow client without blocking the sender.
func (h *Hub) evict(c *Client) {
	if c.evicting.CompareAndSwap(false, true) {
		go h.Unregister(c)
	}
}

// UserConnectionCount returns the number of live sessions of userID.
func (h *Hub) UserConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// ClientCount returns the number of live sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnlineUsers returns the ids of users with at least one session, sorted.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.users))
	for id := range h.users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Options returns the effective connection options.
func (h *Hub) Options() Options {
	return h.opts
}

func (h *Hub) shutdown(ctx context.Context) {
	h.doneOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	count := len(h.clients)
	for _, c := range sortedClients(h.clients) {
		c.closeSend()
	}
	h.clients = make(map[*Client]struct{})
	h.users = make(map[string]map[*Client]struct{})
	h.updateGauges()
	h.mu.Unlock()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(shutdownReason(ctx))).
		Int("clients_closed", count).
		Msg("websocket hub stopped")
}

func shutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// sortedClients orders clients by id so fan-out order is stable.
func sortedClients(set map[*Client]struct{}) []*Client {
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
