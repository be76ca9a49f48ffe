package models

import (
	"time"

	"github.com/AngeKano/repfi/ledger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ComptablePeriod is one accounting period submitted for a client, created PENDING by the
// batch upload and moved to PROCESSING by the ETL trigger. COMPLETED and ERROR are written by
// the pipeline, never here.
type ComptablePeriod struct {
	ID          string           `gorm:"primary_key;size:36" json:"id"`
	ClientId    string           `gorm:"size:36;not null;index:idx_period_client_status,priority:1" json:"client_id"`
	CompanyId   string           `gorm:"size:36;not null;index" json:"company_id"`
	PeriodStart time.Time        `gorm:"not null;index:idx_period_client_status,priority:3" json:"period_start"`
	PeriodEnd   time.Time        `gorm:"not null" json:"period_end"`
	Year        int              `gorm:"not null;index" json:"year"`
	BatchId     string           `gorm:"size:36;not null;uniqueIndex" json:"batch_id"`
	Status      ProcessingStatus `gorm:"size:20;not null;default:'PENDING';index:idx_period_client_status,priority:2" json:"status"`
	Client      *Client          `gorm:"foreignKey:ClientId" json:"client,omitempty"`
	CreatedAt   time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *ComptablePeriod) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (p *ComptablePeriod) Interval() ledger.Period {
	return ledger.Period{Start: p.PeriodStart, End: p.PeriodEnd}
}
