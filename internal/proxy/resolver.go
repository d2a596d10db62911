// Package proxy implements the gateway's origin-facing paths: the tiered
// public-profile resolver and the caching pass-through for the rest of the
// backend API.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/fittrackpro/go-fitness-edge/internal/cache"
	"github.com/fittrackpro/go-fitness-edge/internal/repo"
)

// ErrProfileNotFound reports an unknown or revoked share token.
var ErrProfileNotFound = errors.New("profile not found")

// Cache tier tags surfaced to clients in the X-Cache header.
const (
	TagD1Hit = "D1-HIT"
	TagKVHit = "KV-HIT"
	TagMiss  = "MISS"
	TagHit   = "HIT"
	TagStale = "STALE"
)

// Resolver answers public-profile lookups through three tiers in order:
// relational cache, KV cache, origin. Lower tiers are backfilled
// asynchronously on a hit in a higher-latency tier, so repeat lookups
// converge on the fastest tier.
type Resolver struct {
	DB     *gorm.DB
	KV     *cache.Store
	Origin string
	Client *http.Client
	TTL    time.Duration
	Log    zerolog.Logger

	// Background runs fire-and-forget work. Defaults to `go fn()`; tests
	// substitute a synchronous runner.
	Background func(fn func())
}

func (r *Resolver) background(fn func()) {
	if r.Background != nil {
		r.Background(fn)
		return
	}
	go fn()
}

// Resolve returns the profile document for token plus the tier tag that
// served it. Any non-OK origin response maps to ErrProfileNotFound.
func (r *Resolver) Resolve(ctx context.Context, token string) ([]byte, string, error) {
	now := time.Now()

	// Tier 1: relational cache. Errors fall through; a broken cache tier
	// must not take profile pages down.
	data, err := repo.GetCachedProfile(ctx, r.DB, token, now)
	if err == nil {
		return data, TagD1Hit, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		r.Log.Warn().Err(err).Msg("proxy: profile cache read failed")
	}

	// Tier 2: KV.
	kvKey := "profile:" + token
	raw, found, err := r.KV.Get(kvKey)
	if err != nil {
		r.Log.Warn().Err(err).Msg("proxy: profile kv read failed")
	}
	if found {
		doc := append([]byte(nil), raw...)
		r.background(func() {
			bctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := repo.PutCachedProfile(bctx, r.DB, token, doc, r.TTL); err != nil {
				r.Log.Debug().Err(err).Msg("proxy: profile backfill failed")
			}
		})
		return raw, TagKVHit, nil
	}

	// Tier 3: origin. Without one, a double cache miss is a missing profile.
	if r.Origin == "" {
		return nil, "", ErrProfileNotFound
	}
	doc, err := r.fetchOrigin(ctx, token)
	if err != nil {
		return nil, "", err
	}

	stored := append([]byte(nil), doc...)
	r.background(func() {
		bctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.KV.Put(kvKey, stored, r.TTL); err != nil {
			r.Log.Debug().Err(err).Msg("proxy: profile kv write failed")
		}
		if err := repo.PutCachedProfile(bctx, r.DB, token, stored, r.TTL); err != nil {
			r.Log.Debug().Err(err).Msg("proxy: profile cache write failed")
		}
	})
	return doc, TagMiss, nil
}

func (r *Resolver) fetchOrigin(ctx context.Context, token string) ([]byte, error) {
	url := r.Origin + "/public/profile/" + token
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy: origin fetch: %w", err)
	}
	defer resp.Body.Close()

	// Any non-OK answer reads as a missing profile; backend status codes
	// never leak through the browser-facing page.
	if resp.StatusCode != http.StatusOK {
		return nil, ErrProfileNotFound
	}
	return io.ReadAll(resp.Body)
}
