package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Backend is the REST side of the chat service as the controller sees it.
type Backend interface {
	// History returns the ordered message history of a room.
	History(ctx context.Context, room string) ([]Message, error)

	// DeleteRoom removes a room on the server.
	DeleteRoom(ctx context.Context, room string) error

	// DeleteMessage removes the message at the given index in a room.
	DeleteMessage(ctx context.Context, room string, index int) error
}

// Channel is the real-time side: room subscription and message broadcast.
type Channel interface {
	// Join scopes push delivery to the given room.
	Join(ctx context.Context, room string) error

	// Leave drops the subscription for the given room.
	Leave(ctx context.Context, room string) error

	// Send dispatches a message for broadcast. Delivery is fire-and-forget;
	// the channel echoes the message back to the sender.
	Send(ctx context.Context, msg Message) error
}

// CacheStore is the durable local message cache. It is best-effort and never
// authoritative; the server owns message history.
type CacheStore interface {
	// Load reads the whole cache, called once at startup.
	Load(ctx context.Context) (map[string][]Message, error)

	// Replace overwrites the cached sequence for a room.
	Replace(ctx context.Context, room string, msgs []Message) error

	// Append adds one message to a room's cached sequence.
	Append(ctx context.Context, msg Message) error

	// DeleteRoom drops a room's cache entry.
	DeleteRoom(ctx context.Context, room string) error
}

// Renderer is the display layer. It only ever reads controller state handed
// to it; it never mutates the cache. The controller invokes it under its state
// lock so renders land in state order; a Renderer must not call back into the
// controller.
type Renderer interface {
	// RenderRoom replaces the visible message list with the given sequence.
	RenderRoom(room Room, msgs []Message)

	// RenderMessage appends one message to the visible list.
	RenderMessage(room Room, msg Message)
}

// Notifier surfaces transient user-visible notices for errors the controller
// swallows (async completions with nobody left to return to).
type Notifier interface {
	Notify(code, text string)
}

// ControllerConfig carries the controller's collaborators and tunables.
type ControllerConfig struct {
	Nickname     string
	Cooldown     time.Duration // public room send cooldown
	MaxPublicLen int           // public room message length cap, in runes

	Backend  Backend
	Channel  Channel
	Cache    CacheStore
	Renderer Renderer
	Notifier Notifier
	Logger   *zerolog.Logger

	// Now is the clock, replaceable in tests. Defaults to time.Now.
	Now func() time.Time
}

// Defaults matching the backend's public room policy.
const (
	DefaultCooldown     = 1500 * time.Millisecond
	DefaultMaxPublicLen = 500
)

// Controller keeps the visible message list consistent with the active room,
// the local cache and asynchronous push delivery. It reconciles three message
// origins: historical fetch on join, optimistic local echo, and pushes (which
// may echo the sender's own message back).
//
// All state is owned exclusively by the controller. User operations, fetch
// completions and push deliveries may interleave, but each handler runs to
// completion under the state lock.
type Controller struct {
	nickname     string
	cooldown     time.Duration
	maxPublicLen int

	backend  Backend
	channel  Channel
	cache    CacheStore
	renderer Renderer
	notifier Notifier
	log      *zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	current  string // empty until the first join
	history  map[string][]Message
	lastSend time.Time // last accepted public room send
	fetchSeq uint64    // invalidates in-flight history fetches
}

// NewController builds a controller. The durable cache is not read until
// Start.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.MaxPublicLen <= 0 {
		cfg.MaxPublicLen = DefaultMaxPublicLen
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		nickname:     cfg.Nickname,
		cooldown:     cfg.Cooldown,
		maxPublicLen: cfg.MaxPublicLen,
		backend:      cfg.Backend,
		channel:      cfg.Channel,
		cache:        cfg.Cache,
		renderer:     cfg.Renderer,
		notifier:     cfg.Notifier,
		log:          cfg.Logger,
		now:          cfg.Now,
		history:      make(map[string][]Message),
	}
}

// SetChannel installs the real-time channel. The channel needs the
// controller as its push sink, so it is wired after construction.
func (c *Controller) SetChannel(ch Channel) {
	c.channel = ch
}

// Start loads the durable cache into memory. The cache is best-effort, so a
// broken store degrades to an empty history instead of failing startup.
func (c *Controller) Start(ctx context.Context) {
	cached, err := c.cache.Load(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to load local message cache")
		return
	}

	c.mu.Lock()
	for room, msgs := range cached {
		c.history[room] = msgs
	}
	c.mu.Unlock()

	c.log.Debug().Int("rooms", len(cached)).Msg("local message cache loaded")
}

// Nickname returns the session's immutable local nickname.
func (c *Controller) Nickname() string {
	return c.nickname
}

// CurrentRoom returns the active room id, or empty before the first join.
func (c *Controller) CurrentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// History returns a copy of the cached message sequence for a room.
func (c *Controller) History(room string) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.history[room]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// JoinRoom makes roomID the active room. The cached sequence is rendered
// immediately when present; otherwise history is fetched asynchronously and
// rendered on completion, unless the user has moved on to another room by
// then. The real-time channel is told to scope push delivery to the room.
//
// Joining the already-active room is legal and re-renders from cache.
func (c *Controller) JoinRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return invalidOperation("room id is required")
	}
	room := ParseRoom(roomID)

	c.mu.Lock()
	c.current = roomID
	var seq uint64
	msgs, ok := c.history[roomID]
	if ok {
		cached := make([]Message, len(msgs))
		copy(cached, msgs)
		c.renderer.RenderRoom(room, cached)
	} else {
		c.fetchSeq++
		seq = c.fetchSeq
	}
	c.mu.Unlock()

	if !ok {
		go c.fetchHistory(ctx, room, seq)
	}

	if err := c.channel.Join(ctx, roomID); err != nil {
		c.log.Warn().Err(err).Str("room", roomID).Msg("room subscription failed")
		return networkFailure("failed to subscribe to "+room.DisplayName(c.nickname), err)
	}
	return nil
}

// fetchHistory resolves a history fetch started by JoinRoom or Refresh. A
// result for a room that is no longer current, or that a newer fetch has
// superseded, is discarded unrendered. The staleness check and the render
// happen under the same lock hold, so a fetch that resolves late cannot
// overwrite the view of a room joined after it.
func (c *Controller) fetchHistory(ctx context.Context, room Room, seq uint64) {
	msgs, err := c.backend.History(ctx, room.ID)

	c.mu.Lock()
	if c.current != room.ID || seq != c.fetchSeq {
		c.mu.Unlock()
		c.log.Debug().Str("room", room.ID).Msg("stale history fetch discarded")
		return
	}
	if err != nil {
		c.notifier.Notify(ErrCodeNetworkFailure, "failed to load messages for "+room.DisplayName(c.nickname))
		c.renderer.RenderRoom(room, nil)
		c.mu.Unlock()
		c.log.Warn().Err(err).Str("room", room.ID).Msg("history fetch failed")
		return
	}
	c.history[room.ID] = msgs
	c.renderer.RenderRoom(room, msgs)
	c.mu.Unlock()

	if err := c.cache.Replace(ctx, room.ID, msgs); err != nil {
		c.log.Warn().Err(err).Str("room", room.ID).Msg("cache write-through failed")
	}
}

// Refresh re-fetches history for the active room, replacing the cached
// sequence on completion. Used after server-side message deletion.
func (c *Controller) Refresh(ctx context.Context) {
	c.mu.Lock()
	roomID := c.current
	if roomID == "" {
		c.mu.Unlock()
		return
	}
	c.fetchSeq++
	seq := c.fetchSeq
	c.mu.Unlock()

	go c.fetchHistory(ctx, ParseRoom(roomID), seq)
}

// SendMessage appends an optimistic local echo for the active room and
// dispatches the message to the real-time channel. The echo is kept even when
// dispatch fails; there is no rollback and no automatic retry.
//
// Public room sends are rejected while the cooldown since the last accepted
// public send has not elapsed, and when the text exceeds the length cap.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return invalidOperation("message is empty")
	}

	c.mu.Lock()
	roomID := c.current
	if roomID == "" {
		c.mu.Unlock()
		return invalidOperation("no active room")
	}
	now := c.now()
	if roomID == PublicRoom {
		if len([]rune(text)) > c.maxPublicLen {
			c.mu.Unlock()
			return invalidOperation("message too long")
		}
		if !c.lastSend.IsZero() && now.Sub(c.lastSend) < c.cooldown {
			c.mu.Unlock()
			return rateLimited("slow down, the public room has a send cooldown")
		}
		c.lastSend = now
	}
	msg := Message{
		ID:        uuid.NewString(),
		Room:      roomID,
		Sender:    c.nickname,
		Text:      text,
		Timestamp: now.Unix(),
	}
	c.history[roomID] = append(c.history[roomID], msg)
	c.renderer.RenderMessage(ParseRoom(roomID), msg)
	c.mu.Unlock()

	if err := c.cache.Append(ctx, msg); err != nil {
		c.log.Warn().Err(err).Str("room", roomID).Msg("cache write-through failed")
	}

	if err := c.channel.Send(ctx, msg); err != nil {
		// Send and hope: the optimistic echo stays visible.
		c.log.Warn().Err(err).Str("room", roomID).Msg("message dispatch failed")
		return networkFailure("failed to send message", err)
	}
	return nil
}

// ReceivePush handles a room-scoped message pushed by the real-time channel.
// Pushes for inactive rooms are cached but not rendered. A push carrying the
// local nickname for the active room is the echo of an already-rendered
// optimistic send and is discarded.
func (c *Controller) ReceivePush(ctx context.Context, roomID, sender, text string, timestamp int64) {
	if roomID == "" {
		return
	}

	c.mu.Lock()
	if roomID == c.current && sender == c.nickname {
		c.mu.Unlock()
		return
	}
	msg := Message{
		ID:        uuid.NewString(),
		Room:      roomID,
		Sender:    sender,
		Text:      text,
		Timestamp: timestamp,
	}
	c.history[roomID] = append(c.history[roomID], msg)
	if roomID == c.current {
		c.renderer.RenderMessage(ParseRoom(roomID), msg)
	}
	c.mu.Unlock()

	if err := c.cache.Append(ctx, msg); err != nil {
		c.log.Warn().Err(err).Str("room", roomID).Msg("cache write-through failed")
	}
}

// DeleteRoom deletes a room on the server and evicts it locally. Deleting the
// public room is forbidden. When the active room is deleted, the client falls
// back to the public room.
func (c *Controller) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == PublicRoom {
		return invalidOperation("the public room cannot be deleted")
	}
	if roomID == "" {
		return invalidOperation("room id is required")
	}
	if err := c.backend.DeleteRoom(ctx, roomID); err != nil {
		return networkFailure("failed to delete room", err)
	}
	c.evictRoom(ctx, roomID)
	return nil
}

// RoomDeleted handles a room-deleted push from the real-time channel.
func (c *Controller) RoomDeleted(ctx context.Context, roomID string) {
	if roomID == "" || roomID == PublicRoom {
		return
	}
	c.notifier.Notify(ErrCodeInvalidOperation, "room "+ParseRoom(roomID).DisplayName(c.nickname)+" was deleted")
	c.evictRoom(ctx, roomID)
}

func (c *Controller) evictRoom(ctx context.Context, roomID string) {
	c.mu.Lock()
	delete(c.history, roomID)
	wasCurrent := c.current == roomID
	c.mu.Unlock()

	if err := c.cache.DeleteRoom(ctx, roomID); err != nil {
		c.log.Warn().Err(err).Str("room", roomID).Msg("cache eviction failed")
	}
	if wasCurrent {
		if err := c.JoinRoom(ctx, PublicRoom); err != nil {
			c.notifier.Notify(ErrCode(err), err.Error())
		}
	}
}

// DeleteMessage removes the message at index in the active room on the
// server, then re-fetches history so the visible list reflects the removal.
// The public room does not allow message deletion.
func (c *Controller) DeleteMessage(ctx context.Context, index int) error {
	c.mu.Lock()
	roomID := c.current
	c.mu.Unlock()

	if roomID == "" {
		return invalidOperation("no active room")
	}
	if roomID == PublicRoom {
		return invalidOperation("public room messages cannot be deleted")
	}
	if index < 0 {
		return invalidOperation("invalid message index")
	}
	if err := c.backend.DeleteMessage(ctx, roomID, index); err != nil {
		return networkFailure("failed to delete message", err)
	}
	c.Refresh(ctx)
	return nil
}

// UserBanned handles a ban push. A ban naming the local user forces the
// client back to the public room.
func (c *Controller) UserBanned(ctx context.Context, user, reason string) {
	if user != c.nickname {
		return
	}
	text := "you have been banned"
	if reason != "" {
		text += ": " + reason
	}
	c.notifier.Notify(ErrCodeInvalidOperation, text)

	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur != PublicRoom {
		if err := c.JoinRoom(ctx, PublicRoom); err != nil {
			c.notifier.Notify(ErrCode(err), err.Error())
		}
	}
}

// ChannelReconnected re-issues the current-room subscription after the
// underlying channel reconnects. Reconnection itself is the channel's
// concern; the controller has no disconnected state.
func (c *Controller) ChannelReconnected(ctx context.Context) {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur == "" {
		return
	}
	if err := c.channel.Join(ctx, cur); err != nil {
		c.log.Warn().Err(err).Str("room", cur).Msg("resubscribe after reconnect failed")
		c.notifier.Notify(ErrCodeNetworkFailure, "failed to rejoin "+ParseRoom(cur).DisplayName(c.nickname))
	}
}

// LeaveRoom clears the active room. The controller owns no external resources
// beyond the room subscription, so teardown is just ceasing to render.
func (c *Controller) LeaveRoom(ctx context.Context) {
	c.mu.Lock()
	roomID := c.current
	c.current = ""
	c.mu.Unlock()

	if roomID != "" {
		if err := c.channel.Leave(ctx, roomID); err != nil {
			c.log.Debug().Err(err).Str("room", roomID).Msg("leave notification failed")
		}
	}
}
