// Package views implements the View ledger (C3): the store of
// (user, job) -> seen facts. C3 exclusively owns this store's write path.
package views

import (
	"context"
	"fmt"

	"jobreel-server/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger wraps the GORM connection to provide mark_seen/check/bulk_check/
// list_seen/reset.
type Ledger struct {
	db *gorm.DB
}

// New builds a Ledger over an already-migrated GORM connection.
func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// MarkSeen upserts (user, job) with seen=true. Idempotent: duplicate
// concurrent calls collapse onto the same row via the unique constraint on
// (user_id, job_id).
func (l *Ledger) MarkSeen(ctx context.Context, userID, jobID string) error {
	v := models.View{UserID: userID, JobID: jobID, Seen: true}
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"seen"}),
	}).Create(&v).Error
	if err != nil {
		return fmt.Errorf("views: mark_seen(%s,%s): %w", userID, jobID, err)
	}
	return nil
}

// Check reports whether (user, job) has been marked seen.
func (l *Ledger) Check(ctx context.Context, userID, jobID string) (bool, error) {
	var v models.View
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND job_id = ? AND seen = true", userID, jobID).
		First(&v).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, fmt.Errorf("views: check(%s,%s): %w", userID, jobID, err)
	}
	return true, nil
}

// BulkCheck returns job -> seen for every id in jobIDs, in a single scan.
func (l *Ledger) BulkCheck(ctx context.Context, userID string, jobIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(jobIDs))
	for _, id := range jobIDs {
		result[id] = false
	}
	if len(jobIDs) == 0 {
		return result, nil
	}

	var rows []models.View
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND job_id IN ? AND seen = true", userID, jobIDs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("views: bulk_check(%s): %w", userID, err)
	}
	for _, r := range rows {
		result[r.JobID] = true
	}
	return result, nil
}

// SeenJobIDs returns the full unpaginated seen-set for a user, used by the
// coordinator to build the exclusion filter for vector search.
func (l *Ledger) SeenJobIDs(ctx context.Context, userID string) ([]string, error) {
	var rows []models.View
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND seen = true", userID).
		Order("updated_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("views: seen_job_ids(%s): %w", userID, err)
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.JobID
	}
	return ids, nil
}

// ListSeen returns a page of seen job ids in stable insertion order, plus
// the total count.
func (l *Ledger) ListSeen(ctx context.Context, userID string, limit, skip int) ([]string, int64, error) {
	var total int64
	if err := l.db.WithContext(ctx).Model(&models.View{}).
		Where("user_id = ? AND seen = true", userID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("views: list_seen count(%s): %w", userID, err)
	}

	var rows []models.View
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND seen = true", userID).
		Order("updated_at ASC").
		Limit(limit).Offset(skip).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("views: list_seen(%s): %w", userID, err)
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.JobID
	}
	return ids, total, nil
}

// Reset deletes every view row for a user, returning the number removed.
// Used both by the explicit reset operation and the coordinator's
// auto-reset recovery paths.
func (l *Ledger) Reset(ctx context.Context, userID string) (int64, error) {
	res := l.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.View{})
	if res.Error != nil {
		return 0, fmt.Errorf("views: reset(%s): %w", userID, res.Error)
	}
	return res.RowsAffected, nil
}
