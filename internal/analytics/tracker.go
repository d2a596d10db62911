// Package analytics records request events into the relational store for the
// trainer dashboard. Tracking is strictly best-effort: it runs detached from
// the request path and a failed insert costs nothing but a debug log line.
package analytics

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/fittrackpro/go-fitness-edge/internal/repo"
)

// Tracker writes analytics events. A zero-value Tracker (nil DB) is a no-op,
// which lets the server run with analytics disabled.
type Tracker struct {
	DB      *gorm.DB
	Log     zerolog.Logger
	Timeout time.Duration

	// Background runs the detached insert; defaults to `go fn()`. Tests
	// substitute a synchronous runner.
	Background func(fn func())
}

// Enabled reports whether events will actually be recorded.
func (t *Tracker) Enabled() bool { return t != nil && t.DB != nil }

// Track records one event without blocking the caller. userID doubles as the
// trainer id for dashboard grouping; path and method land in the metadata
// document.
func (t *Tracker) Track(eventType, userID, path, method string) {
	if !t.Enabled() {
		return
	}
	// Anonymous or non-numeric callers land under trainer 0.
	trainerID, _ := strconv.ParseInt(userID, 10, 64)
	meta, _ := json.Marshal(map[string]string{"path": path, "method": method})

	run := t.Background
	if run == nil {
		run = func(fn func()) { go fn() }
	}
	run(func() {
		timeout := t.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := repo.InsertAnalyticsEvent(ctx, t.DB, eventType, trainerID, string(meta)); err != nil {
			t.Log.Debug().Err(err).Str("event", eventType).Msg("analytics: insert failed")
		}
	})
}
