// Package repo implements the data persistence layer for the relational edge
// store, backed by GORM. This file provides the profile-cache tier consulted
// first by the tiered resolver, and the friendly-name share-link lookup.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fittrackpro/go-fitness-edge/internal/domain"
)

// normalizeClientName canonicalizes a friendly name for lookup: Unicode
// NFKC folding, trimming, and lowercasing, so "Café" and "Café" map
// to the same share link.
func normalizeClientName(name string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(name)))
}

// ErrNotFound indicates the requested row does not exist (or has expired,
// for TTL-bearing rows).
var ErrNotFound = errors.New("not found")

// profileKey builds the cache_key column value for a share token. The prefix
// matches the KV tier so both tiers address the same logical entry.
func profileKey(token string) string { return "profile:" + token }

// GetCachedProfile returns the non-expired cached profile for token, or
// ErrNotFound. Expiry is evaluated against now so callers (and tests) control
// the clock.
func GetCachedProfile(ctx context.Context, db *gorm.DB, token string, now time.Time) (json.RawMessage, error) {
	var row domain.ProfileCache
	err := db.WithContext(ctx).
		Where("cache_key = ? AND expires_at > ?", profileKey(token), now.Unix()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(row.ProfileData), nil
}

// PutCachedProfile stores (or wholesale replaces) the cached profile for
// token with the given TTL. The client id is extracted from the document when
// present, mirroring what the origin emits.
func PutCachedProfile(ctx context.Context, db *gorm.DB, token string, profile json.RawMessage, ttl time.Duration) error {
	var probe struct {
		ID int64 `json:"id"`
	}
	_ = json.Unmarshal(profile, &probe) // best-effort; 0 when absent

	row := domain.ProfileCache{
		CacheKey:    profileKey(token),
		ClientID:    probe.ID,
		ProfileData: string(profile),
		ExpiresAt:   time.Now().Add(ttl).Unix(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}

// ResolveClientName maps a friendly client name to its share token, or
// returns ErrNotFound. Names are matched case-insensitively after Unicode
// normalization.
func ResolveClientName(ctx context.Context, db *gorm.DB, name string) (string, error) {
	name = normalizeClientName(name)
	if name == "" {
		return "", ErrNotFound
	}
	var row domain.ShareLink
	err := db.WithContext(ctx).
		Where("client_name = ?", name).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return row.Token, nil
}

// PutShareLink records (or replaces) the friendly-name mapping for a token.
func PutShareLink(ctx context.Context, db *gorm.DB, name, token string) error {
	row := domain.ShareLink{
		ClientName: normalizeClientName(name),
		Token:      token,
		CreatedAt:  time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_name"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}
