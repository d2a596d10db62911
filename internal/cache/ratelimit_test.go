package cache

import (
	"testing"
	"time"
)

func TestCheckRateLimitCountsDown(t *testing.T) {
	s := newTestStore(t)

	limit := 3
	for i := 0; i < limit; i++ {
		res := CheckRateLimit(s, "ai", "user-1", limit, time.Hour)
		if res.Limited {
			t.Fatalf("request %d limited early", i+1)
		}
		if want := limit - i - 1; res.Remaining != want {
			t.Errorf("request %d: Remaining = %d, want %d", i+1, res.Remaining, want)
		}
	}

	res := CheckRateLimit(s, "ai", "user-1", limit, time.Hour)
	if !res.Limited {
		t.Fatal("request over limit not rejected")
	}
	if res.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", res.Remaining)
	}
	if !res.Reset.After(timeNow()) {
		t.Errorf("Reset = %v, should be in the future", res.Reset)
	}
}

func TestCheckRateLimitIsolatesIdentities(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 2; i++ {
		if res := CheckRateLimit(s, "ai", "alice", 2, time.Hour); res.Limited {
			t.Fatal("alice limited early")
		}
	}
	if res := CheckRateLimit(s, "ai", "alice", 2, time.Hour); !res.Limited {
		t.Fatal("alice should be limited")
	}
	if res := CheckRateLimit(s, "ai", "bob", 2, time.Hour); res.Limited {
		t.Error("bob should not share alice's bucket")
	}
	if res := CheckRateLimit(s, "other", "alice", 2, time.Hour); res.Limited {
		t.Error("buckets should be independent")
	}
}

func TestCheckRateLimitWindowRollover(t *testing.T) {
	s := newTestStore(t)
	defer func() { timeNow = time.Now }()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return base }

	for i := 0; i < 2; i++ {
		CheckRateLimit(s, "ai", "carol", 2, time.Hour)
	}
	if res := CheckRateLimit(s, "ai", "carol", 2, time.Hour); !res.Limited {
		t.Fatal("carol should be limited in the first window")
	}

	// Advance past the window boundary: the quota starts over.
	timeNow = func() time.Time { return base.Add(2 * time.Hour) }
	res := CheckRateLimit(s, "ai", "carol", 2, time.Hour)
	if res.Limited {
		t.Fatal("new window should reset the quota")
	}
	if res.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1", res.Remaining)
	}
}
