// Package chat implements per-room real-time messaging between a trainer and
// a client. Each room is a single-writer actor: one Room instance exists per
// room key (convention "trainer_{t}_client_{c}"), it exclusively owns its
// persisted message log and in-memory session table, and every entry point
// serializes through the room lock. Nothing outside this package may mutate
// room state.
//
// The message log is persisted as one KV entry per room and truncated to the
// most recent retention-cap messages on every append. Sessions are ephemeral:
// created on WebSocket connect, removed on disconnect or on the first failed
// write (dead connections are only detected reactively).
package chat

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// timeNow is a test seam for message ids and timestamps.
var timeNow = time.Now

// MessageStore is the slice of the KV store rooms persist through.
type MessageStore interface {
	GetJSON(key string, v any) (bool, error)
	PutJSON(key string, v any, ttl time.Duration) error
}

// Conn is the writable half of a chat connection. *websocket.Conn satisfies
// it; tests substitute failing stubs.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// textMessage mirrors websocket.TextMessage without importing gorilla here.
const textMessage = 1

// Message is one chat utterance. Ids derive from send time and are strictly
// increasing within a room; ReadBy always contains the sender.
type Message struct {
	ID        int64    `json:"id"`
	UserID    string   `json:"userId"`
	UserName  string   `json:"userName"`
	Content   string   `json:"content"`
	Timestamp int64    `json:"timestamp"`
	ReadBy    []string `json:"readBy"`
}

// SessionInfo is the connected-user projection returned by Status.
type SessionInfo struct {
	UserName string `json:"userName"`
	LastSeen int64  `json:"lastSeen"`
}

// RoomStatus summarizes a room for the status endpoint.
type RoomStatus struct {
	TotalMessages  int           `json:"totalMessages"`
	ActiveSessions int           `json:"activeSessions"`
	ConnectedUsers []SessionInfo `json:"connectedUsers"`
}

// session is one live connection. Owned by the room; only touched under the
// room lock.
type session struct {
	conn     Conn
	userName string
	lastSeen int64
}

// Room is the actor owning one conversation.
type Room struct {
	name      string
	store     MessageStore
	log       zerolog.Logger
	retention int

	mu       sync.Mutex
	loaded   bool
	messages []Message
	lastID   int64
	sessions map[string]*session
}

func newRoom(name string, store MessageStore, log zerolog.Logger, retention int) *Room {
	return &Room{
		name:      name,
		store:     store,
		log:       log.With().Str("room", name).Logger(),
		retention: retention,
		sessions:  make(map[string]*session),
	}
}

func (r *Room) storageKey() string { return "chatroom:" + r.name + ":messages" }

// ensureLoaded lazily reads the persisted log. Must hold r.mu.
func (r *Room) ensureLoaded() error {
	if r.loaded {
		return nil
	}
	var msgs []Message
	if _, err := r.store.GetJSON(r.storageKey(), &msgs); err != nil {
		return err
	}
	r.messages = msgs
	if n := len(msgs); n > 0 {
		r.lastID = msgs[n-1].ID
	}
	r.loaded = true
	return nil
}

// persist writes the current log. Must hold r.mu.
func (r *Room) persist() error {
	return r.store.PutJSON(r.storageKey(), r.messages, 0)
}

// nextID derives a message id from send time, bumped past the previous id so
// ids stay strictly increasing even within one millisecond.
func (r *Room) nextID(now int64) int64 {
	if now <= r.lastID {
		now = r.lastID + 1
	}
	r.lastID = now
	return now
}

// Messages returns the full persisted log in append order.
func (r *Room) Messages() ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out, nil
}

// HistoryBefore returns the most recent messages strictly older than before,
// capped at limit, still in chronological order.
func (r *Room) HistoryBefore(before int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}
	older := make([]Message, 0, limit)
	for _, m := range r.messages {
		if m.Timestamp < before {
			older = append(older, m)
		}
	}
	if len(older) > limit {
		older = older[len(older)-limit:]
	}
	return older, nil
}

// Append stores a new message, trims the log to the retention cap, and
// broadcasts it to every live session (sender included).
func (r *Room) Append(userID, userName, content string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(); err != nil {
		return Message{}, err
	}

	now := timeNow().UnixMilli()
	msg := Message{
		ID:        r.nextID(now),
		UserID:    userID,
		UserName:  userName,
		Content:   content,
		Timestamp: now,
		ReadBy:    []string{userID},
	}
	r.messages = append(r.messages, msg)
	if len(r.messages) > r.retention {
		r.messages = r.messages[len(r.messages)-r.retention:]
	}
	if err := r.persist(); err != nil {
		return Message{}, err
	}

	r.broadcast(map[string]any{
		"type":      "message",
		"id":        msg.ID,
		"userId":    msg.UserID,
		"userName":  msg.UserName,
		"content":   msg.Content,
		"timestamp": msg.Timestamp,
		"readBy":    msg.ReadBy,
	})
	return msg, nil
}

// Delete removes a message by id (a no-op when absent), persists, and
// broadcasts the deletion.
func (r *Room) Delete(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(); err != nil {
		return err
	}
	kept := r.messages[:0]
	for _, m := range r.messages {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	r.messages = kept
	if err := r.persist(); err != nil {
		return err
	}
	r.broadcast(map[string]any{
		"type":      "message_deleted",
		"messageId": id,
		"timestamp": timeNow().UnixMilli(),
	})
	return nil
}

// MarkRead adds userID to the readBy set of every message at or before ts.
// Idempotent: re-marking changes nothing and skips the persistence write.
// Other sessions are notified; the marker already knows.
func (r *Room) MarkRead(userID string, ts int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed, err := r.markReadLocked(userID, ts)
	if err != nil {
		return false, err
	}
	r.broadcast(map[string]any{
		"type":      "read_receipt",
		"userId":    userID,
		"timestamp": ts,
	}, userID)
	return changed, nil
}

// markReadLocked is MarkRead without the broadcast. Must hold r.mu.
func (r *Room) markReadLocked(userID string, ts int64) (bool, error) {
	if err := r.ensureLoaded(); err != nil {
		return false, err
	}
	changed := false
	for i := range r.messages {
		m := &r.messages[i]
		if m.Timestamp > ts {
			continue
		}
		if containsString(m.ReadBy, userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, userID)
		changed = true
	}
	if !changed {
		return false, nil
	}
	return true, r.persist()
}

// Status reports message and session counts plus who is connected.
func (r *Room) Status() (RoomStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(); err != nil {
		return RoomStatus{}, err
	}
	users := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		users = append(users, SessionInfo{UserName: s.userName, LastSeen: s.lastSeen})
	}
	return RoomStatus{
		TotalMessages:  len(r.messages),
		ActiveSessions: len(users),
		ConnectedUsers: users,
	}, nil
}

// Connect registers a live session, pushes the most recent historyLimit
// messages to it as a history event, and tells everyone else the user joined.
func (r *Room) Connect(userID, userName string, c Conn, historyLimit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(); err != nil {
		return err
	}

	now := timeNow().UnixMilli()
	r.sessions[userID] = &session{conn: c, userName: userName, lastSeen: now}

	recent := r.messages
	if len(recent) > historyLimit {
		recent = recent[len(recent)-historyLimit:]
	}
	payload, err := json.Marshal(map[string]any{
		"type":     "history",
		"messages": recent,
	})
	if err == nil {
		err = c.WriteMessage(textMessage, payload)
	}
	if err != nil {
		delete(r.sessions, userID)
		return err
	}

	r.broadcast(map[string]any{
		"type":      "user_joined",
		"userId":    userID,
		"userName":  userName,
		"timestamp": now,
	}, userID)
	return nil
}

// Disconnect drops the session and tells the remaining sessions.
func (r *Room) Disconnect(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok {
		return
	}
	delete(r.sessions, userID)
	r.broadcast(map[string]any{
		"type":      "user_left",
		"userId":    userID,
		"userName":  s.userName,
		"timestamp": timeNow().UnixMilli(),
	})
}

// inboundEvent is a client-sent WebSocket frame.
type inboundEvent struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	IsTyping  bool   `json:"isTyping"`
	Timestamp int64  `json:"timestamp"`
}

// HandleEvent processes one client frame. Unknown types are logged and
// ignored; storage failures are reported back to the sender as an error
// event rather than tearing the room down.
func (r *Room) HandleEvent(userID, userName string, data []byte) {
	var ev inboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		r.sendError(userID, fmt.Sprintf("malformed event: %v", err))
		return
	}

	var err error
	switch ev.Type {
	case "message":
		_, err = r.Append(userID, userName, ev.Content)
	case "typing":
		r.mu.Lock()
		r.broadcast(map[string]any{
			"type":     "typing",
			"userId":   userID,
			"userName": userName,
			"isTyping": ev.IsTyping,
		}, userID)
		r.mu.Unlock()
	case "read_receipt":
		_, err = r.MarkRead(userID, ev.Timestamp)
	default:
		r.log.Warn().Str("type", ev.Type).Msg("chat: unknown event type")
	}

	r.mu.Lock()
	if s, ok := r.sessions[userID]; ok {
		s.lastSeen = timeNow().UnixMilli()
	}
	r.mu.Unlock()

	if err != nil {
		r.log.Error().Err(err).Str("type", ev.Type).Msg("chat: event failed")
		r.sendError(userID, err.Error())
	}
}

// sendError delivers an error event to one user, if still connected.
func (r *Room) sendError(userID, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok {
		return
	}
	payload, err := json.Marshal(map[string]any{"type": "error", "message": msg})
	if err != nil {
		return
	}
	if err := s.conn.WriteMessage(textMessage, payload); err != nil {
		delete(r.sessions, userID)
	}
}

// broadcast fans a payload out to every session except the excluded users.
// A failed write evicts that session and the fan-out continues; broadcast
// itself never fails. Must hold r.mu.
func (r *Room) broadcast(event map[string]any, exclude ...string) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.log.Error().Err(err).Msg("chat: marshal broadcast")
		return
	}

	var dead []string
	for userID, s := range r.sessions {
		if containsString(exclude, userID) {
			continue
		}
		if err := s.conn.WriteMessage(textMessage, payload); err != nil {
			r.log.Debug().Err(err).Str("user_id", userID).Msg("chat: evicting dead session")
			dead = append(dead, userID)
		}
	}
	for _, userID := range dead {
		delete(r.sessions, userID)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
