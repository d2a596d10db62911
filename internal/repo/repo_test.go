package repo

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "edge.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func TestProfileCacheRoundtrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	doc := json.RawMessage(`{"id":42,"name":"Jamie"}`)

	if _, err := GetCachedProfile(ctx, db, "tok-1", time.Now()); err != ErrNotFound {
		t.Fatalf("empty cache: err = %v, want ErrNotFound", err)
	}

	if err := PutCachedProfile(ctx, db, "tok-1", doc, time.Hour); err != nil {
		t.Fatalf("PutCachedProfile: %v", err)
	}
	got, err := GetCachedProfile(ctx, db, "tok-1", time.Now())
	if err != nil {
		t.Fatalf("GetCachedProfile: %v", err)
	}
	if string(got) != string(doc) {
		t.Errorf("profile = %s, want %s", got, doc)
	}
}

func TestProfileCacheExpiry(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := PutCachedProfile(ctx, db, "tok-2", json.RawMessage(`{}`), time.Minute); err != nil {
		t.Fatalf("PutCachedProfile: %v", err)
	}

	// Within TTL: a hit.
	if _, err := GetCachedProfile(ctx, db, "tok-2", time.Now()); err != nil {
		t.Fatalf("fresh read: %v", err)
	}
	// Evaluated with a clock past the TTL: a miss.
	if _, err := GetCachedProfile(ctx, db, "tok-2", time.Now().Add(2*time.Minute)); err != ErrNotFound {
		t.Errorf("expired read: err = %v, want ErrNotFound", err)
	}
}

func TestPutCachedProfileReplaces(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := PutCachedProfile(ctx, db, "tok-3", json.RawMessage(`{"v":1}`), time.Hour); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := PutCachedProfile(ctx, db, "tok-3", json.RawMessage(`{"v":2}`), time.Hour); err != nil {
		t.Fatalf("second put: %v", err)
	}
	got, err := GetCachedProfile(ctx, db, "tok-3", time.Now())
	if err != nil {
		t.Fatalf("GetCachedProfile: %v", err)
	}
	if string(got) != `{"v":2}` {
		t.Errorf("profile = %s, want replacement", got)
	}
}

func TestShareLinks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := ResolveClientName(ctx, db, "jamie"); err != ErrNotFound {
		t.Fatalf("unknown name: err = %v, want ErrNotFound", err)
	}
	if err := PutShareLink(ctx, db, "  Jamie ", "tok-9"); err != nil {
		t.Fatalf("PutShareLink: %v", err)
	}

	// Lookup is case-insensitive and trims whitespace.
	for _, name := range []string{"jamie", "JAMIE", " Jamie "} {
		tok, err := ResolveClientName(ctx, db, name)
		if err != nil {
			t.Fatalf("ResolveClientName(%q): %v", name, err)
		}
		if tok != "tok-9" {
			t.Errorf("token for %q = %q", name, tok)
		}
	}

	// Re-registering replaces the token.
	if err := PutShareLink(ctx, db, "jamie", "tok-10"); err != nil {
		t.Fatalf("PutShareLink replace: %v", err)
	}
	if tok, _ := ResolveClientName(ctx, db, "jamie"); tok != "tok-10" {
		t.Errorf("token after replace = %q, want tok-10", tok)
	}
}

func TestAnalyticsDashboard(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := InsertAnalyticsEvent(ctx, db, "api_request", 7, "{}"); err != nil {
			t.Fatalf("InsertAnalyticsEvent: %v", err)
		}
	}
	if err := InsertAnalyticsEvent(ctx, db, "profile_view", 7, "{}"); err != nil {
		t.Fatalf("InsertAnalyticsEvent: %v", err)
	}
	// A different trainer's events must not leak in.
	if err := InsertAnalyticsEvent(ctx, db, "api_request", 8, "{}"); err != nil {
		t.Fatalf("InsertAnalyticsEvent: %v", err)
	}

	stats, err := TrainerDashboard(ctx, db, 7)
	if err != nil {
		t.Fatalf("TrainerDashboard: %v", err)
	}
	if stats.Period != "last_7_days" {
		t.Errorf("Period = %q", stats.Period)
	}
	if stats.TotalEvents != 4 {
		t.Errorf("TotalEvents = %d, want 4", stats.TotalEvents)
	}
	if len(stats.EventsByType) != 2 {
		t.Fatalf("EventsByType has %d entries, want 2", len(stats.EventsByType))
	}
	if stats.EventsByType[0].EventType != "api_request" || stats.EventsByType[0].Count != 3 {
		t.Errorf("top event = %+v, want api_request x3", stats.EventsByType[0])
	}
}

func TestAnalyticsDashboardEmpty(t *testing.T) {
	db := newTestDB(t)

	stats, err := TrainerDashboard(context.Background(), db, 99)
	if err != nil {
		t.Fatalf("TrainerDashboard: %v", err)
	}
	if stats.TotalEvents != 0 {
		t.Errorf("TotalEvents = %d", stats.TotalEvents)
	}
	if stats.EventsByType == nil || len(stats.EventsByType) != 0 {
		t.Errorf("EventsByType = %#v, want empty non-nil slice", stats.EventsByType)
	}
}

func TestUploads(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := GetUpload(ctx, db, "photos/1.jpg"); err != ErrNotFound {
		t.Fatalf("missing object: err = %v, want ErrNotFound", err)
	}

	data := []byte{0xff, 0xd8, 0x00, 0x10}
	if err := PutUpload(ctx, db, "photos/1.jpg", "image/jpeg", data); err != nil {
		t.Fatalf("PutUpload: %v", err)
	}
	if err := PutUpload(ctx, db, "docs/plan.pdf", "application/pdf", []byte("pdf")); err != nil {
		t.Fatalf("PutUpload: %v", err)
	}

	obj, err := GetUpload(ctx, db, "photos/1.jpg")
	if err != nil {
		t.Fatalf("GetUpload: %v", err)
	}
	if obj.ContentType != "image/jpeg" || obj.Size != int64(len(data)) {
		t.Errorf("object meta = %q/%d", obj.ContentType, obj.Size)
	}

	list, err := ListUploads(ctx, db, "photos/", 10)
	if err != nil {
		t.Fatalf("ListUploads: %v", err)
	}
	if len(list) != 1 || list[0].Key != "photos/1.jpg" {
		t.Errorf("prefix listing = %+v", list)
	}

	all, err := ListUploads(ctx, db, "", 10)
	if err != nil {
		t.Fatalf("ListUploads all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("full listing has %d entries, want 2", len(all))
	}

	if err := DeleteUpload(ctx, db, "photos/1.jpg"); err != nil {
		t.Fatalf("DeleteUpload: %v", err)
	}
	if _, err := GetUpload(ctx, db, "photos/1.jpg"); err != ErrNotFound {
		t.Errorf("object survived delete: %v", err)
	}
	if err := DeleteUpload(ctx, db, "photos/1.jpg"); err != nil {
		t.Errorf("deleting a missing object: %v", err)
	}
}
