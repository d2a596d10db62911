// Package repo implements the data persistence layer for the relational edge
// store, backed by GORM. This file provides the uploads object store: raw
// bytes with a content type, addressed by caller-chosen keys.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fittrackpro/go-fitness-edge/internal/domain"
)

// UploadInfo is the listing projection: metadata without the blob itself.
type UploadInfo struct {
	Key      string    `json:"key"`
	Size     int64     `json:"size"`
	Uploaded time.Time `json:"uploaded"`
}

// ListUploads returns up to limit objects whose key starts with prefix,
// ordered by key. An empty prefix lists everything.
func ListUploads(ctx context.Context, db *gorm.DB, prefix string, limit int) ([]UploadInfo, error) {
	if limit <= 0 {
		limit = 100
	}
	q := db.WithContext(ctx).Model(&domain.Upload{}).
		Select("key, size, created_at as uploaded").
		Order("key ASC").
		Limit(limit)
	if prefix != "" {
		q = q.Where("key LIKE ?", prefix+"%")
	}

	var rows []UploadInfo
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []UploadInfo{}
	}
	return rows, nil
}

// GetUpload fetches one object by key, or ErrNotFound.
func GetUpload(ctx context.Context, db *gorm.DB, key string) (*domain.Upload, error) {
	var row domain.Upload
	err := db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// PutUpload stores (or replaces) an object.
func PutUpload(ctx context.Context, db *gorm.DB, key, contentType string, data []byte) error {
	row := domain.Upload{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}

// DeleteUpload removes an object by key. Deleting a missing key is not an
// error, matching the object-store contract.
func DeleteUpload(ctx context.Context, db *gorm.DB, key string) error {
	return db.WithContext(ctx).Where("key = ?", key).Delete(&domain.Upload{}).Error
}
