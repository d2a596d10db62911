package chat

import (
	"sync"

	"github.com/rs/zerolog"
)

// Hub hands out the single Room instance for each room key, creating rooms
// lazily on first access. Rooms are never evicted; an idle room is just a
// small struct whose message log lives in the KV store.
type Hub struct {
	store        MessageStore
	log          zerolog.Logger
	retention    int
	historyLimit int

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewHub builds a hub. retention caps the persisted log per room;
// historyLimit is how many recent messages a new connection is pushed.
func NewHub(store MessageStore, log zerolog.Logger, retention, historyLimit int) *Hub {
	if retention <= 0 {
		retention = 1000
	}
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &Hub{
		store:        store,
		log:          log,
		retention:    retention,
		historyLimit: historyLimit,
		rooms:        make(map[string]*Room),
	}
}

// GetRoom returns the room for key, creating it if needed. All callers for
// the same key share one instance, which is what serializes the room.
func (h *Hub) GetRoom(key string) *Room {
	h.mu.RLock()
	r, ok := h.rooms[key]
	h.mu.RUnlock()
	if ok {
		return r
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok = h.rooms[key]; ok {
		return r
	}
	r = newRoom(key, h.store, h.log, h.retention)
	h.rooms[key] = r
	return r
}

// HistoryLimit is the configured history push size, exposed for the handler.
func (h *Hub) HistoryLimit() int { return h.historyLimit }

// RoomCount reports how many rooms have been touched since startup.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
