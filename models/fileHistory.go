package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrHistoryImmutable = errors.New("file history is append-only")

// FileHistory is the audit trail of one file. Rows are inserted, never changed.
type FileHistory struct {
	ID            int       `gorm:"primary_key" json:"id"`
	FileId        string    `gorm:"size:36;index;not null" json:"file_id"`
	FileName      string    `gorm:"size:255;not null" json:"file_name"`
	Action        string    `gorm:"size:50;not null;index" json:"action"`
	Details       string    `gorm:"type:text" json:"details"`
	UserId        string    `gorm:"size:36;index" json:"user_id"`
	UserEmail     string    `gorm:"size:255" json:"user_email"`
	CorrelationId string    `gorm:"size:64" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (h *FileHistory) BeforeUpdate(tx *gorm.DB) error {
	return ErrHistoryImmutable
}

func (h *FileHistory) BeforeDelete(tx *gorm.DB) error {
	return ErrHistoryImmutable
}
