// Package repo implements the data persistence layer for the relational edge
// store, backed by GORM. This file provides the append-only analytics log and
// the aggregate queries behind the trainer dashboard.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fittrackpro/go-fitness-edge/internal/domain"
)

// EventCount is one row of the per-type aggregation.
type EventCount struct {
	EventType string `json:"event_type"`
	Count     int64  `json:"count"`
}

// DashboardStats is the analytics summary returned to trainers.
type DashboardStats struct {
	Period       string       `json:"period"`
	TotalEvents  int64        `json:"total_events"`
	EventsByType []EventCount `json:"events_by_type"`
}

// InsertAnalyticsEvent appends one usage event. Callers treat failures as
// best-effort (log and drop); this function just reports them.
func InsertAnalyticsEvent(ctx context.Context, db *gorm.DB, eventType string, trainerID int64, metadata string) error {
	row := domain.AnalyticsEvent{
		EventType: eventType,
		TrainerID: trainerID,
		Metadata:  metadata,
		Timestamp: time.Now().Unix(),
	}
	return db.WithContext(ctx).Create(&row).Error
}

// TrainerDashboard aggregates the last seven days of events for a trainer:
// the total count plus per-type counts ordered most-frequent first.
func TrainerDashboard(ctx context.Context, db *gorm.DB, trainerID int64) (*DashboardStats, error) {
	since := time.Now().Add(-7 * 24 * time.Hour).Unix()
	base := db.WithContext(ctx).Model(&domain.AnalyticsEvent{}).
		Where("trainer_id = ? AND timestamp > ?", trainerID, since)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, err
	}

	var byType []EventCount
	err := db.WithContext(ctx).Model(&domain.AnalyticsEvent{}).
		Select("event_type, COUNT(*) as count").
		Where("trainer_id = ? AND timestamp > ?", trainerID, since).
		Group("event_type").
		Order("count DESC").
		Scan(&byType).Error
	if err != nil {
		return nil, err
	}
	if byType == nil {
		byType = []EventCount{}
	}

	return &DashboardStats{
		Period:       "last_7_days",
		TotalEvents:  total,
		EventsByType: byType,
	}, nil
}
