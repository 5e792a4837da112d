package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	commonlog "social_server/server/common/log"
	"social_server/server/realtime/domain"
)

// Conn is the write half of a live client session. *websocket.Conn
// satisfies it; tests supply an in-memory sink.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type client struct {
	connID string
	userID string
	conn   Conn
	rooms  map[string]struct{}
	mu     sync.Mutex
}

// writeJSON is the only path that touches the connection; every writer,
// fan-out or ack, goes through this lock.
func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(v)
}

func (c *client) push(frame pushFrame) {
	if err := c.writeJSON(frame); err != nil {
		// Delivery is best-effort; a dead connection is reaped by its
		// own read loop, not here.
		commonlog.Warnf("event=hub action=push status=failed conn_id=%s event_name=%s error=%v", c.connID, frame.Event, err)
	}
}

type pushFrame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

type hubEvent struct {
	Kind   string `json:"kind"`
	RoomID string `json:"room_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	// Except holds the originating connection id for relays; connection
	// ids are instance-local, so other instances simply find no match.
	Except  string          `json:"except_conn_id,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const fanoutChannel = "realtime:events"

// Hub is both the presence registry and the room router: it tracks which
// users are reachable over which connections, which connections joined
// which rooms, and delivers events to rooms, users, or everyone. With a
// redis client attached, publishes travel through one pub/sub channel so
// every server instance dispatches them to its local connections in a
// single ordered stream; with no redis (single instance, tests) dispatch
// is local only.
type Hub struct {
	mu        sync.RWMutex
	conns     map[string]*client
	presence  map[string]map[string]struct{}
	rooms     map[string]map[string]struct{}
	redis     *redis.Client
	redisSub  *redis.PubSub
	subCancel context.CancelFunc
}

func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		conns:    map[string]*client{},
		presence: map[string]map[string]struct{}{},
		rooms:    map[string]map[string]struct{}{},
		redis:    redisClient,
	}
}

func (h *Hub) StartSubscriber(ctx context.Context) error {
	h.mu.Lock()
	if h.redis == nil {
		h.mu.Unlock()
		return errors.New("redis client is nil")
	}
	if h.redisSub != nil {
		h.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := h.redis.Subscribe(subCtx, fanoutChannel)
	h.redisSub = sub
	h.subCancel = cancel
	h.mu.Unlock()

	go h.consumeEvents(subCtx, sub)
	return nil
}

func (h *Hub) StopSubscriber() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subCancel != nil {
		h.subCancel()
		h.subCancel = nil
	}
	if h.redisSub != nil {
		_ = h.redisSub.Close()
		h.redisSub = nil
	}
}

// Connect registers a fresh, not yet identified connection.
func (h *Hub) Connect(conn Conn) string {
	c := &client{connID: uuid.NewString(), conn: conn, rooms: map[string]struct{}{}}
	h.mu.Lock()
	h.conns[c.connID] = c
	h.mu.Unlock()
	return c.connID
}

// Send writes to a single connection under its write lock. Request acks
// share the socket with fan-out pushes and must serialize with them.
func (h *Hub) Send(connID string, v any) {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := c.writeJSON(v); err != nil {
		commonlog.Warnf("event=hub action=send status=failed conn_id=%s error=%v", connID, err)
	}
}

// Identify binds a connection to a user. The first connection of a user
// broadcasts user_online.
func (h *Hub) Identify(connID, userID string) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	if !ok || userID == "" {
		h.mu.Unlock()
		return
	}
	if c.userID == userID {
		h.mu.Unlock()
		return
	}
	var prevWentOffline bool
	prevUserID := c.userID
	if prevUserID != "" {
		prevWentOffline = h.removePresenceLocked(c)
	}
	c.userID = userID
	set, ok := h.presence[userID]
	if !ok {
		set = map[string]struct{}{}
		h.presence[userID] = set
	}
	wasOffline := len(set) == 0
	set[connID] = struct{}{}
	h.mu.Unlock()

	if prevWentOffline {
		h.Broadcast(domain.EventUserOffline, domain.PresenceEvent{UserID: prevUserID})
	}
	if wasOffline {
		h.Broadcast(domain.EventUserOnline, domain.PresenceEvent{UserID: userID})
	}
}

// Disconnect removes the connection from its user's presence set and from
// every room it joined. Unknown connection ids are a no-op.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, connID)
	for roomID := range c.rooms {
		h.removeFromRoomLocked(roomID, connID)
	}
	wentOffline := h.removePresenceLocked(c)
	userID := c.userID
	h.mu.Unlock()

	_ = c.conn.Close()
	if wentOffline {
		h.Broadcast(domain.EventUserOffline, domain.PresenceEvent{UserID: userID})
	}
}

func (h *Hub) removePresenceLocked(c *client) bool {
	if c.userID == "" {
		return false
	}
	set, ok := h.presence[c.userID]
	if !ok {
		return false
	}
	delete(set, c.connID)
	if len(set) == 0 {
		delete(h.presence, c.userID)
		return true
	}
	return false
}

// ConnectionsFor resolves per-user delivery independent of room membership.
func (h *Hub) ConnectionsFor(userID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.presence[userID]
	ids := make([]string, 0, len(set))
	for connID := range set {
		ids = append(ids, connID)
	}
	return ids
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.presence[userID]) > 0
}

// Join assumes the caller already verified room membership; authorization
// lives outside the hub.
func (h *Hub) Join(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	c.rooms[roomID] = struct{}{}
	set, ok := h.rooms[roomID]
	if !ok {
		set = map[string]struct{}{}
		h.rooms[roomID] = set
	}
	set[connID] = struct{}{}
}

func (h *Hub) Leave(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[connID]; ok {
		delete(c.rooms, roomID)
	}
	h.removeFromRoomLocked(roomID, connID)
}

func (h *Hub) removeFromRoomLocked(roomID, connID string) {
	if set, ok := h.rooms[roomID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// PublishToRoom delivers to every connection joined to the room. Zero
// subscribers is fine; persistence happened before this call.
func (h *Hub) PublishToRoom(roomID, event string, payload any) {
	if h.publishRemote(hubEvent{Kind: "room", RoomID: roomID, Event: event}, payload) {
		return
	}
	count := h.dispatchRoomLocal(roomID, event, payload, "")
	commonlog.Debugf("event=hub action=dispatch kind=room event_name=%s room_id=%s fanout_count=%d", event, roomID, count)
}

// RelayToRoom delivers to the room excluding the originating connection;
// typing indicators go to the other members, not back to the typist.
func (h *Hub) RelayToRoom(roomID, exceptConnID, event string, payload any) {
	if h.publishRemote(hubEvent{Kind: "room", RoomID: roomID, Except: exceptConnID, Event: event}, payload) {
		return
	}
	h.dispatchRoomLocal(roomID, event, payload, exceptConnID)
}

// PublishToUser delivers to all of the user's connections so every open
// device receives the update.
func (h *Hub) PublishToUser(userID, event string, payload any) {
	if h.publishRemote(hubEvent{Kind: "user", UserID: userID, Event: event}, payload) {
		return
	}
	count := h.dispatchUserLocal(userID, event, payload)
	commonlog.Debugf("event=hub action=dispatch kind=user event_name=%s user_id=%s fanout_count=%d", event, userID, count)
}

// Broadcast delivers to every identified connection, room-independent.
func (h *Hub) Broadcast(event string, payload any) {
	if h.publishRemote(hubEvent{Kind: "broadcast", Event: event}, payload) {
		return
	}
	count := h.dispatchBroadcastLocal(event, payload)
	commonlog.Debugf("event=hub action=dispatch kind=broadcast event_name=%s fanout_count=%d", event, count)
}

func (h *Hub) publishRemote(event hubEvent, payload any) bool {
	h.mu.RLock()
	redisClient := h.redis
	h.mu.RUnlock()
	if redisClient == nil {
		return false
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	event.Payload = raw
	b, err := json.Marshal(event)
	if err != nil {
		return false
	}
	if err := redisClient.Publish(context.Background(), fanoutChannel, b).Err(); err != nil {
		commonlog.Errorf("event=hub action=publish status=failed kind=%s event_name=%s error=%v", event.Kind, event.Event, err)
		return false
	}
	return true
}

func (h *Hub) consumeEvents(ctx context.Context, sub *redis.PubSub) {
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return
		}
		var event hubEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			continue
		}
		var payload any
		if len(event.Payload) > 0 {
			if err := json.Unmarshal(event.Payload, &payload); err != nil {
				continue
			}
		}
		switch event.Kind {
		case "room":
			h.dispatchRoomLocal(event.RoomID, event.Event, payload, event.Except)
		case "user":
			h.dispatchUserLocal(event.UserID, event.Event, payload)
		case "broadcast":
			h.dispatchBroadcastLocal(event.Event, payload)
		}
	}
}

func (h *Hub) dispatchRoomLocal(roomID, event string, payload any, exceptConnID string) int {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[roomID]))
	for connID := range h.rooms[roomID] {
		if connID == exceptConnID {
			continue
		}
		if c, ok := h.conns[connID]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	frame := pushFrame{Event: event, Payload: payload}
	for _, c := range targets {
		c.push(frame)
	}
	return len(targets)
}

func (h *Hub) dispatchUserLocal(userID, event string, payload any) int {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.presence[userID]))
	for connID := range h.presence[userID] {
		if c, ok := h.conns[connID]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	frame := pushFrame{Event: event, Payload: payload}
	for _, c := range targets {
		c.push(frame)
	}
	return len(targets)
}

func (h *Hub) dispatchBroadcastLocal(event string, payload any) int {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		if c.userID != "" {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	frame := pushFrame{Event: event, Payload: payload}
	for _, c := range targets {
		c.push(frame)
	}
	return len(targets)
}
