package brackets

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/chessarena/tournament-service/metrics"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 512
	sendBufferSize = 256
)

// Broadcaster is what the services need from the hub. Kept narrow so tests
// can substitute a recorder.
type Broadcaster interface {
	BroadcastToRoom(roomID string, message interface{})
}

// Conn wraps one websocket connection. The hub only ever touches the send
// channel and the closed flag; the pumps own the socket itself.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte
	room string

	mu     sync.Mutex
	closed bool
}

func NewConn(ws *websocket.Conn, room string) *Conn {
	return &Conn{
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		room: room,
	}
}

func (c *Conn) Room() string { return c.room }

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// enqueue hands the message to the write pump. Returns false when the
// connection is closed or its buffer is full; callers treat both as dead.
func (c *Conn) enqueue(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *Conn) ping() error {
	if c.ws == nil {
		return nil
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

type membership struct {
	participantID int
	rooms         map[string]bool
}

// Hub maps room ids to live connections, plus a reverse map from connection
// to its rooms so a dead connection is removed from everywhere in O(1).
// All three maps share one mutex; the hub is local to the process and rooms
// do not synchronize across instances.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Conn]bool
	conns map[*Conn]*membership
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*Conn]bool),
		conns: make(map[*Conn]*membership),
	}
}

// Join registers bidirectional membership.
func (h *Hub) Join(roomID string, conn *Conn, participantID int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Conn]bool)
	}
	h.rooms[roomID][conn] = true

	m, ok := h.conns[conn]
	if !ok {
		m = &membership{participantID: participantID, rooms: make(map[string]bool)}
		h.conns[conn] = m
		metrics.ConnectionsActive.Inc()
	}
	m.rooms[roomID] = true
	log.Printf("connection joined room %s (participant %d, %d in room)", roomID, participantID, len(h.rooms[roomID]))
}

// Leave removes bidirectional membership and deletes the room when it
// becomes empty. The connection stays alive; it may belong to other rooms.
func (h *Hub) Leave(roomID string, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(roomID, conn)
}

func (h *Hub) leaveLocked(roomID string, conn *Conn) {
	if roomConns, ok := h.rooms[roomID]; ok {
		delete(roomConns, conn)
		if len(roomConns) == 0 {
			delete(h.rooms, roomID)
			log.Printf("room %s closed, last connection left", roomID)
		}
	}
	if m, ok := h.conns[conn]; ok {
		delete(m.rooms, roomID)
		if len(m.rooms) == 0 {
			delete(h.conns, conn)
			metrics.ConnectionsActive.Dec()
		}
	}
}

// Remove drops the connection from every room it belongs to.
func (h *Hub) Remove(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(conn)
}

func (h *Hub) removeLocked(conn *Conn) {
	m, ok := h.conns[conn]
	if !ok {
		return
	}
	for roomID := range m.rooms {
		if roomConns, exists := h.rooms[roomID]; exists {
			delete(roomConns, conn)
			if len(roomConns) == 0 {
				delete(h.rooms, roomID)
				log.Printf("room %s closed, last connection purged", roomID)
			}
		}
	}
	delete(h.conns, conn)
	metrics.ConnectionsActive.Dec()
}

// BroadcastToRoom serializes the message once and fans it out to every live
// connection in the room. Connections whose transport is gone are purged
// lazily, from this room and every other one they belonged to. Delivery is
// best-effort and non-persistent: a reconnecting client must re-fetch
// authoritative state through a query.
func (h *Hub) BroadcastToRoom(roomID string, message interface{}) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("error marshalling message for room %s: %v", roomID, err)
		return
	}

	h.mu.RLock()
	roomConns, ok := h.rooms[roomID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	var dead []*Conn
	for conn := range roomConns {
		if !conn.enqueue(messageBytes) {
			dead = append(dead, conn)
		}
	}
	h.mu.RUnlock()

	metrics.BroadcastsSent.Inc()

	if len(dead) > 0 {
		h.mu.Lock()
		for _, conn := range dead {
			h.removeLocked(conn)
		}
		h.mu.Unlock()
	}
}

// RelayToGameRoom forwards a player's move to the other connections in the
// game room, never echoing it back to the sender. One narrow exception: when
// the room holds exactly one connection, the relay delivers to that same
// connection, so a single test client can drive both sides of a game. Do not
// widen this exception.
func (h *Hub) RelayToGameRoom(roomID string, sender *Conn, message []byte) {
	h.mu.RLock()
	roomConns, ok := h.rooms[roomID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	var dead []*Conn
	if len(roomConns) == 1 {
		for conn := range roomConns {
			if !conn.enqueue(message) {
				dead = append(dead, conn)
			}
		}
	} else {
		for conn := range roomConns {
			if conn == sender {
				continue
			}
			if !conn.enqueue(message) {
				dead = append(dead, conn)
			}
		}
	}
	h.mu.RUnlock()

	if len(dead) > 0 {
		h.mu.Lock()
		for _, conn := range dead {
			h.removeLocked(conn)
		}
		h.mu.Unlock()
	}
}

// RunHeartbeat probes every known connection on a fixed period and purges
// the ones that fail. This is the only proactive cleanup path; everything
// else is lazy. Stops when the context is cancelled.
func (h *Hub) RunHeartbeat(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.HeartbeatSweep()
		}
	}
}

// HeartbeatSweep runs one heartbeat pass.
func (h *Hub) HeartbeatSweep() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	var dead []*Conn
	for _, conn := range conns {
		if conn.isClosed() || conn.ping() != nil {
			dead = append(dead, conn)
		}
	}
	if len(dead) == 0 {
		return
	}

	h.mu.Lock()
	for _, conn := range dead {
		h.removeLocked(conn)
	}
	h.mu.Unlock()
	log.Printf("heartbeat purged %d dead connections", len(dead))
}

// RoomSize reports the current number of connections in a room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// ReadPump consumes incoming frames until the connection drops. Frames
// arriving on a game room are relayed as moves; frames on tournament rooms
// are ignored, those rooms are broadcast-only.
func (c *Conn) ReadPump(h *Hub) {
	defer func() {
		h.Remove(c)
		c.markClosed()
		if c.ws != nil {
			c.ws.Close()
		}
	}()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("unexpected close in room %s: %v", c.room, err)
			}
			break
		}
		if _, isGame := ParseGameRoom(c.room); isGame {
			h.RelayToGameRoom(c.room, c, message)
		}
	}
}

// WritePump drains the send channel onto the socket. Pings come from the
// hub heartbeat, not from here.
func (c *Conn) WritePump() {
	defer func() {
		c.markClosed()
		if c.ws != nil {
			c.ws.Close()
		}
	}()
	for message := range c.send {
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		w, err := c.ws.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)

		// Flush whatever queued up behind the first message.
		n := len(c.send)
		for i := 0; i < n; i++ {
			w.Write(<-c.send)
		}
		if err := w.Close(); err != nil {
			return
		}
	}
	if c.ws != nil {
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		c.ws.WriteMessage(websocket.CloseMessage, []byte{})
	}
}
