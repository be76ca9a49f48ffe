package models

import "time"

type DispatchIntentStatus string

const (
	DispatchIntentStarted   DispatchIntentStatus = "STARTED"
	DispatchIntentSucceeded DispatchIntentStatus = "SUCCEEDED"
	DispatchIntentFailed    DispatchIntentStatus = "FAILED"
)

// DispatchIntent records that an ETL run is being requested for a batch.
// Unique constraint: (batch_id).
type DispatchIntent struct {
	ID        int                  `gorm:"primary_key" json:"id"`
	BatchId   string               `gorm:"size:36;not null;uniqueIndex" json:"batch_id"`
	ClientId  string               `gorm:"size:36;not null;index" json:"client_id"`
	Status    DispatchIntentStatus `gorm:"size:20;not null;index" json:"status"`
	DagRunId  *string              `gorm:"size:255" json:"dag_run_id"`
	Attempts  int                  `gorm:"not null;default:1" json:"attempts"`
	LastError *string              `gorm:"type:text" json:"last_error"`
	CreatedAt time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}
