package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// File is a stored upload. Comptable uploads carry a FileType, a batch and the period bounds;
// the same table is meant to hold other categories of uploads.
type File struct {
	ID               string           `gorm:"primary_key;size:36" json:"id"`
	FileName         string           `gorm:"size:255;not null" json:"file_name"`
	FileType         FileType         `gorm:"size:30;index" json:"file_type"`
	FileYear         int              `gorm:"index" json:"file_year"`
	Category         FileCategory     `gorm:"size:20;not null;default:'COMPTABLE'" json:"category"`
	StorageKey       string           `gorm:"size:1024;not null" json:"storage_key"`
	StorageURL       string           `gorm:"size:2048" json:"storage_url"`
	FileSize         int64            `gorm:"not null;default:0" json:"file_size"`
	MimeType         string           `gorm:"size:128" json:"mime_type"`
	Status           FileStatus       `gorm:"size:20;not null;index" json:"status"`
	ProcessingStatus ProcessingStatus `gorm:"size:20;not null;default:'PENDING'" json:"processing_status"`
	ErrorMessage     *string          `gorm:"type:text" json:"error_message"`
	BatchId          string           `gorm:"size:36;index" json:"batch_id"`
	PeriodStart      *time.Time       `json:"period_start"`
	PeriodEnd        *time.Time       `json:"period_end"`
	ClientId         string           `gorm:"size:36;not null;index" json:"client_id"`
	CompanyId        string           `gorm:"size:36;not null;index" json:"company_id"`
	UploadedById     string           `gorm:"size:36" json:"uploaded_by_id"`
	ProcessedAt      *time.Time       `json:"processed_at"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (f *File) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}
