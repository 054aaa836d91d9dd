// Package catalog implements the Video catalog (C4): the store of
// video_id -> status/storage key/template, where video_id == job_id. C4
// exclusively owns this store's write path; a Video row is created exactly
// once and never mutated thereafter.
package catalog

import (
	"context"
	"fmt"

	"jobreel-server/internal/models"

	"gorm.io/gorm"
)

// Catalog wraps the GORM connection backing the Video table.
type Catalog struct {
	db *gorm.DB
}

// New builds a Catalog over an already-migrated GORM connection.
func New(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// Create inserts a ready Video row. Idempotent under retry: if a row with
// this video_id already exists, that is treated as success rather than an
// error, since the worker may re-run step 4 after a crash between upload
// and insert.
func (c *Catalog) Create(ctx context.Context, v models.Video) error {
	err := c.db.WithContext(ctx).Create(&v).Error
	if err == nil {
		return nil
	}
	if existing, getErr := c.Get(ctx, v.VideoID); getErr == nil && existing.VideoID == v.VideoID {
		return nil
	}
	return fmt.Errorf("catalog: create %s: %w", v.VideoID, err)
}

// Get reads a single video by id, or gorm.ErrRecordNotFound.
func (c *Catalog) Get(ctx context.Context, videoID string) (models.Video, error) {
	var v models.Video
	err := c.db.WithContext(ctx).First(&v, "video_id = ?", videoID).Error
	if err != nil {
		return v, err
	}
	return v, nil
}

// Exists reports whether a ready Video exists for videoID.
func (c *Catalog) Exists(ctx context.Context, videoID string) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(&models.Video{}).
		Where("video_id = ? AND status = ?", videoID, models.VideoStatusReady).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("catalog: exists(%s): %w", videoID, err)
	}
	return count > 0, nil
}

// ReadyStatusByID reports, for every id in videoIDs, whether a ready Video
// row exists. Used by the coordinator to partition vector-search candidates
// into A/B/C (§4.6 step 6).
func (c *Catalog) ReadyStatusByID(ctx context.Context, videoIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(videoIDs))
	for _, id := range videoIDs {
		result[id] = false
	}
	if len(videoIDs) == 0 {
		return result, nil
	}

	var rows []models.Video
	err := c.db.WithContext(ctx).
		Where("video_id IN ? AND status = ?", videoIDs, models.VideoStatusReady).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("catalog: ready_status_by_id: %w", err)
	}
	for _, r := range rows {
		result[r.VideoID] = true
	}
	return result, nil
}

// ArbitraryReady returns up to limit ready videos, used by the coordinator's
// available-empty recovery path (§4.6 step 7) when no candidate at all has
// a ready video.
func (c *Catalog) ArbitraryReady(ctx context.Context, limit int) ([]string, error) {
	var rows []models.Video
	err := c.db.WithContext(ctx).
		Where("status = ?", models.VideoStatusReady).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("catalog: arbitrary_ready: %w", err)
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.VideoID
	}
	return ids, nil
}
