package models

import (
	"time"

	"github.com/AngeKano/repfi/config"
)

// Outbox publish statuses for OutboxEvent.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

const (
	OutboxEventBatchUploaded = "BATCH_UPLOADED"
	OutboxEventETLTriggered  = "ETL_TRIGGERED"
)

// OutboxEvent is written in the same transaction as the period change it describes and
// published to Pub/Sub after commit by the outbox dispatcher.
type OutboxEvent struct {
	ID               int        `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	CompanyId        string     `gorm:"size:36;not null;index" json:"company_id"`
	ClientId         string     `gorm:"size:36;not null;index" json:"client_id"`
	BatchId          string     `gorm:"size:36;not null;index" json:"batch_id"`
	EventType        string     `gorm:"size:30;not null" json:"event_type"`
	OccurredAt       time.Time  `gorm:"not null" json:"occurred_at"`
	Payload          []byte     `gorm:"type:blob" json:"payload"`
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToPeriodEventMessage(record OutboxEvent) config.PeriodEventMessage {
	return config.PeriodEventMessage{
		ID:            record.ID,
		CompanyId:     record.CompanyId,
		ClientId:      record.ClientId,
		BatchId:       record.BatchId,
		EventType:     record.EventType,
		OccurredAt:    record.OccurredAt,
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}
