// Fixed-window quota counters on top of the KV store.
//
// This is deliberately a best-effort limiter: the increment is a plain read
// followed by a write (set-if-under), so concurrent requests under contention
// can under-count, and any storage error fails open. Both trade strictness
// for availability; do not "fix" them without changing the product
// requirement they encode.
package cache

import (
	"fmt"
	"time"
)

// timeNow is a test seam for window arithmetic.
var timeNow = time.Now

// counterSlack keeps a window's counter readable slightly past the window
// edge so a request racing the rollover still sees it.
const counterSlack = 5 * time.Minute

// RateLimitResult reports the outcome of a quota check.
type RateLimitResult struct {
	// Limited is true when the request must be rejected (429).
	Limited bool
	// Remaining is the number of requests left in the current window.
	// Unknown (reported as the full limit) when the store misbehaved.
	Remaining int
	// Reset is when the current window closes.
	Reset time.Time
}

// CheckRateLimit enforces a fixed-window quota of limit requests per window
// for (bucket, identity). At or over the limit it reports Limited without
// incrementing; otherwise it increments and reports the new remainder.
// Storage errors fail open: availability beats strict enforcement here.
func CheckRateLimit(store *Store, bucket, identity string, limit int, window time.Duration) RateLimitResult {
	now := timeNow()
	windowIdx := now.Unix() / int64(window.Seconds())
	reset := time.Unix((windowIdx+1)*int64(window.Seconds()), 0)
	key := fmt.Sprintf("ratelimit:%s:%s:%d", bucket, identity, windowIdx)

	current, err := store.GetCounter(key)
	if err != nil {
		store.log.Warn().Err(err).Str("key", key).Msg("ratelimit: counter read failed, failing open")
		return RateLimitResult{Limited: false, Remaining: limit, Reset: reset}
	}

	if current >= int64(limit) {
		return RateLimitResult{Limited: true, Remaining: 0, Reset: reset}
	}

	if err := store.PutCounter(key, current+1, window+counterSlack); err != nil {
		store.log.Warn().Err(err).Str("key", key).Msg("ratelimit: counter write failed, failing open")
		return RateLimitResult{Limited: false, Remaining: limit, Reset: reset}
	}

	return RateLimitResult{
		Limited:   false,
		Remaining: limit - int(current) - 1,
		Reset:     reset,
	}
}
