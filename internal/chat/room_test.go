package chat

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// memStore is an in-memory MessageStore that counts writes, so tests can
// assert when persistence was (and was not) triggered.
type memStore struct {
	data   map[string][]byte
	writes int
	failed bool
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) GetJSON(key string, v any) (bool, error) {
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func (m *memStore) PutJSON(key string, v any, _ time.Duration) error {
	if m.failed {
		return errors.New("store down")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data[key] = raw
	m.writes++
	return nil
}

// fakeConn records everything written to it; failing conns error on write.
type fakeConn struct {
	events  []map[string]any
	failing bool
	closed  bool
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	if f.failing {
		return errors.New("broken pipe")
	}
	var ev map[string]any
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeConn) Close() error { f.closed = true; return nil }

func (f *fakeConn) eventsOfType(typ string) []map[string]any {
	var out []map[string]any
	for _, ev := range f.events {
		if ev["type"] == typ {
			out = append(out, ev)
		}
	}
	return out
}

func newTestRoom(t *testing.T, store MessageStore, retention int) *Room {
	t.Helper()
	return newRoom("trainer_1_client_2", store, zerolog.Nop(), retention)
}

func TestAppendAssignsIncreasingIDs(t *testing.T) {
	defer func() { timeNow = time.Now }()
	frozen := time.UnixMilli(1_700_000_000_000)
	timeNow = func() time.Time { return frozen }

	r := newTestRoom(t, newMemStore(), 100)
	var last int64
	for i := 0; i < 5; i++ {
		msg, err := r.Append("u1", "Pat", "hello")
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if msg.ID <= last {
			t.Fatalf("id %d not greater than previous %d", msg.ID, last)
		}
		last = msg.ID
	}
}

func TestAppendTrimsToRetention(t *testing.T) {
	r := newTestRoom(t, newMemStore(), 5)
	for i := 0; i < 7; i++ {
		if _, err := r.Append("u1", "Pat", "msg"); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	msgs, err := r.Messages()
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("log has %d messages, want retention cap 5", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID <= msgs[i-1].ID {
			t.Errorf("order broken at %d", i)
		}
	}
}

func TestAppendSetsReadBySender(t *testing.T) {
	r := newTestRoom(t, newMemStore(), 100)
	msg, err := r.Append("u1", "Pat", "hi")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(msg.ReadBy) != 1 || msg.ReadBy[0] != "u1" {
		t.Errorf("ReadBy = %v, want sender only", msg.ReadBy)
	}
}

func TestLogSurvivesReload(t *testing.T) {
	store := newMemStore()
	r := newTestRoom(t, store, 100)
	if _, err := r.Append("u1", "Pat", "persisted"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// A fresh room over the same store sees the log.
	r2 := newTestRoom(t, store, 100)
	msgs, err := r2.Messages()
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "persisted" {
		t.Errorf("reloaded log = %+v", msgs)
	}

	// And new ids keep increasing past the reloaded ones.
	msg, err := r2.Append("u1", "Pat", "more")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if msg.ID <= msgs[0].ID {
		t.Errorf("id %d not past reloaded id %d", msg.ID, msgs[0].ID)
	}
}

func TestHistoryBefore(t *testing.T) {
	defer func() { timeNow = time.Now }()
	base := time.UnixMilli(1_000_000)
	n := 0
	timeNow = func() time.Time { n++; return base.Add(time.Duration(n) * time.Second) }

	r := newTestRoom(t, newMemStore(), 100)
	for i := 0; i < 10; i++ {
		if _, err := r.Append("u1", "Pat", "m"); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	all, _ := r.Messages()
	cut := all[6].Timestamp

	got, err := r.HistoryBefore(cut, 3)
	if err != nil {
		t.Fatalf("HistoryBefore: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("history = %d messages, want 3", len(got))
	}
	for _, m := range got {
		if m.Timestamp >= cut {
			t.Errorf("message at %d not strictly older than %d", m.Timestamp, cut)
		}
	}
	// The three returned are the most recent of the older ones.
	if got[2].ID != all[5].ID {
		t.Errorf("last history id = %d, want %d", got[2].ID, all[5].ID)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	store := newMemStore()
	r := newTestRoom(t, store, 100)
	r.Append("u1", "Pat", "one")
	r.Append("u1", "Pat", "two")
	msgs, _ := r.Messages()
	cut := msgs[1].Timestamp

	changed, err := r.MarkRead("u2", cut)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !changed {
		t.Fatal("first MarkRead should change state")
	}
	writesAfterFirst := store.writes

	changed, err = r.MarkRead("u2", cut)
	if err != nil {
		t.Fatalf("second MarkRead: %v", err)
	}
	if changed {
		t.Error("second MarkRead reported a change")
	}
	if store.writes != writesAfterFirst {
		t.Error("idempotent MarkRead should not persist")
	}

	msgs, _ = r.Messages()
	for _, m := range msgs {
		if !containsString(m.ReadBy, "u2") {
			t.Errorf("message %d missing reader", m.ID)
		}
	}
}

func TestDeleteMessage(t *testing.T) {
	r := newTestRoom(t, newMemStore(), 100)
	msg, _ := r.Append("u1", "Pat", "oops")
	r.Append("u1", "Pat", "keep")

	if err := r.Delete(msg.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	msgs, _ := r.Messages()
	if len(msgs) != 1 || msgs[0].Content != "keep" {
		t.Errorf("log after delete = %+v", msgs)
	}

	// Absent ids are a no-op, not an error.
	if err := r.Delete(99999); err != nil {
		t.Errorf("deleting absent id: %v", err)
	}
}

func TestConnectPushesHistoryAndAnnounces(t *testing.T) {
	r := newTestRoom(t, newMemStore(), 100)
	for i := 0; i < 60; i++ {
		r.Append("u1", "Pat", "m")
	}

	first := &fakeConn{}
	if err := r.Connect("u1", "Pat", first, 50); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	hist := first.eventsOfType("history")
	if len(hist) != 1 {
		t.Fatalf("history events = %d, want 1", len(hist))
	}
	pushed := hist[0]["messages"].([]any)
	if len(pushed) != 50 {
		t.Errorf("history pushed %d messages, want 50", len(pushed))
	}

	second := &fakeConn{}
	if err := r.Connect("u2", "Sam", second, 50); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := first.eventsOfType("user_joined"); len(got) != 1 || got[0]["userId"] != "u2" {
		t.Errorf("existing session should see user_joined for u2: %v", got)
	}
	if got := second.eventsOfType("user_joined"); len(got) != 0 {
		t.Error("joining user should not see their own join event")
	}

	st, _ := r.Status()
	if st.ActiveSessions != 2 || st.TotalMessages != 60 {
		t.Errorf("status = %+v", st)
	}
}

func TestBroadcastEvictsDeadSessions(t *testing.T) {
	r := newTestRoom(t, newMemStore(), 100)
	alive := &fakeConn{}
	dead := &fakeConn{failing: true}
	if err := r.Connect("a", "Alice", alive, 10); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	r.mu.Lock()
	r.sessions["d"] = &session{conn: dead, userName: "Dan"}
	r.mu.Unlock()

	if _, err := r.Append("a", "Alice", "ping"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	st, _ := r.Status()
	if st.ActiveSessions != 1 {
		t.Errorf("dead session not evicted: %+v", st)
	}
	if got := alive.eventsOfType("message"); len(got) != 1 {
		t.Errorf("live session missed the broadcast: %v", alive.events)
	}
}

func TestDisconnectAnnouncesLeave(t *testing.T) {
	r := newTestRoom(t, newMemStore(), 100)
	a, b := &fakeConn{}, &fakeConn{}
	r.Connect("a", "Alice", a, 10)
	r.Connect("b", "Bob", b, 10)

	r.Disconnect("b")
	if got := a.eventsOfType("user_left"); len(got) != 1 || got[0]["userName"] != "Bob" {
		t.Errorf("user_left = %v", got)
	}
	// Disconnecting an unknown user is a no-op.
	r.Disconnect("ghost")
}

func TestHandleEvent(t *testing.T) {
	r := newTestRoom(t, newMemStore(), 100)
	a, b := &fakeConn{}, &fakeConn{}
	r.Connect("a", "Alice", a, 10)
	r.Connect("b", "Bob", b, 10)

	r.HandleEvent("a", "Alice", []byte(`{"type":"message","content":"hi"}`))
	if got := b.eventsOfType("message"); len(got) != 1 || got[0]["content"] != "hi" {
		t.Errorf("peer message events = %v", got)
	}
	if got := a.eventsOfType("message"); len(got) != 1 {
		t.Error("sender should receive their own message broadcast")
	}

	r.HandleEvent("a", "Alice", []byte(`{"type":"typing","isTyping":true}`))
	if got := b.eventsOfType("typing"); len(got) != 1 || got[0]["isTyping"] != true {
		t.Errorf("typing events = %v", got)
	}
	if got := a.eventsOfType("typing"); len(got) != 0 {
		t.Error("typing should not echo to the sender")
	}

	// Unknown event types are ignored without touching anyone.
	before := len(b.events)
	r.HandleEvent("a", "Alice", []byte(`{"type":"launch_missiles"}`))
	if len(b.events) != before {
		t.Error("unknown event leaked a broadcast")
	}

	// Malformed frames produce an error event for the sender only.
	r.HandleEvent("a", "Alice", []byte(`{not json`))
	if got := a.eventsOfType("error"); len(got) != 1 {
		t.Errorf("sender error events = %v", got)
	}
	if got := b.eventsOfType("error"); len(got) != 0 {
		t.Error("error event leaked to peers")
	}
}

func TestHandleEventStorageFailure(t *testing.T) {
	store := newMemStore()
	r := newTestRoom(t, store, 100)
	a := &fakeConn{}
	r.Connect("a", "Alice", a, 10)

	store.failed = true
	r.HandleEvent("a", "Alice", []byte(`{"type":"message","content":"doomed"}`))
	if got := a.eventsOfType("error"); len(got) != 1 {
		t.Errorf("storage failure should report an error event, got %v", a.events)
	}
}

func TestHubSharesRoomInstances(t *testing.T) {
	hub := NewHub(newMemStore(), zerolog.Nop(), 100, 50)
	r1 := hub.GetRoom("trainer_1_client_2")
	r2 := hub.GetRoom("trainer_1_client_2")
	if r1 != r2 {
		t.Error("same key produced different room instances")
	}
	if hub.GetRoom("other") == r1 {
		t.Error("different keys share an instance")
	}
	if hub.RoomCount() != 2 {
		t.Errorf("RoomCount = %d, want 2", hub.RoomCount())
	}
	if hub.HistoryLimit() != 50 {
		t.Errorf("HistoryLimit = %d", hub.HistoryLimit())
	}
}
