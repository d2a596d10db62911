// Package domain defines the persistence models for the relational edge
// store: cached profile snapshots, analytics events, uploaded objects, and
// friendly-name share links. These types are mapped with GORM and form the
// durable data layer the edge gateway owns (business data stays with the
// origin backend).
package domain

import "time"

// ProfileCache is a cached public-profile snapshot keyed by its share token.
// Rows are written wholesale on cache miss and expire by wall-clock check at
// read time (expires_at is a Unix timestamp, matching the KV tier's TTL).
//
// Fields:
//   - CacheKey: "profile:<token>" (primary key).
//   - ClientID: numeric id of the client the snapshot belongs to, when known.
//   - ProfileData: the full JSON document, stored verbatim.
//   - ExpiresAt: Unix seconds after which a read must behave as a miss.
type ProfileCache struct {
	CacheKey    string `json:"cache_key"    gorm:"type:varchar(128);primaryKey"`
	ClientID    int64  `json:"client_id"    gorm:"index"`
	ProfileData string `json:"profile_data" gorm:"type:text;not null"`
	ExpiresAt   int64  `json:"expires_at"   gorm:"not null;index"`
}

// TableName returns the database table name for ProfileCache.
func (ProfileCache) TableName() string { return "profile_cache" }

// AnalyticsEvent is one append-only usage event. Writes are best-effort and
// must never block or fail the request that produced them.
//
// Fields:
//   - EventType: stable event name (e.g. "profile_view", "api_request").
//   - TrainerID: numeric actor id parsed from X-User-ID, 0 when anonymous.
//   - Metadata: small JSON blob ({path, method}).
//   - Timestamp: Unix seconds at write time (indexed for range scans).
type AnalyticsEvent struct {
	ID        uint   `json:"id"         gorm:"primaryKey;autoIncrement"`
	EventType string `json:"event_type" gorm:"type:varchar(64);not null;index:idx_trainer_events,priority:2"`
	TrainerID int64  `json:"trainer_id" gorm:"not null;index:idx_trainer_events,priority:1"`
	Metadata  string `json:"metadata"   gorm:"type:text"`
	Timestamp int64  `json:"timestamp"  gorm:"not null;index"`
}

// TableName returns the database table name for AnalyticsEvent.
func (AnalyticsEvent) TableName() string { return "analytics_events" }

// Upload is an object stored by the uploads endpoint: raw bytes plus the
// content type they were received with. Keys are caller-chosen paths.
type Upload struct {
	Key         string    `json:"key"          gorm:"type:varchar(512);primaryKey"`
	ContentType string    `json:"content_type" gorm:"type:varchar(128);not null"`
	Size        int64     `json:"size"         gorm:"not null"`
	Data        []byte    `json:"-"            gorm:"type:blob;not null"`
	CreatedAt   time.Time `json:"uploaded"`
}

// TableName returns the database table name for Upload.
func (Upload) TableName() string { return "uploads" }

// ShareLink maps a friendly client name (as used in /client/{name} URLs) to
// the opaque share token that actually addresses the profile snapshot.
type ShareLink struct {
	ClientName string    `json:"client_name" gorm:"type:varchar(128);primaryKey"`
	Token      string    `json:"token"       gorm:"type:varchar(128);not null;index"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for ShareLink.
func (ShareLink) TableName() string { return "share_links" }
