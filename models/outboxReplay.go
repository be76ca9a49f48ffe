package models

import (
	"context"

	"gorm.io/gorm"
)

// ReplayOutbox puts DEAD and FAILED events back in the dispatch queue. An empty batchId
// replays every event. It returns the number of rows re-queued.
func ReplayOutbox(ctx context.Context, db *gorm.DB, batchId string) (int64, error) {
	q := db.WithContext(ctx).
		Model(&OutboxEvent{}).
		Where("publish_status IN ?", []string{OutboxPublishStatusDead, OutboxPublishStatusFailed})
	if batchId != "" {
		q = q.Where("batch_id = ?", batchId)
	}
	res := q.Updates(map[string]interface{}{
		"locked_at":          nil,
		"locked_by":          nil,
		"publish_status":     OutboxPublishStatusPending,
		"publish_attempts":   0,
		"next_attempt_at":    nil,
		"last_publish_error": nil,
	})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 && batchId != "" {
		return 0, gorm.ErrRecordNotFound
	}
	return res.RowsAffected, nil
}
