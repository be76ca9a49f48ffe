package models

import (
	"encoding/json"
	"errors"
)

type ProcessingStatus string

const (
	ProcessingStatusPending    ProcessingStatus = "PENDING"
	ProcessingStatusValidating ProcessingStatus = "VALIDATING"
	ProcessingStatusProcessing ProcessingStatus = "PROCESSING"
	ProcessingStatusCompleted  ProcessingStatus = "COMPLETED"
	ProcessingStatusError      ProcessingStatus = "ERROR"
)

// ActiveProcessingStatuses are the statuses listed as "in processing" to users.
var ActiveProcessingStatuses = []ProcessingStatus{
	ProcessingStatusPending,
	ProcessingStatusProcessing,
	ProcessingStatusValidating,
}

// TriggerableStatuses may move to PROCESSING.
var TriggerableStatuses = []ProcessingStatus{
	ProcessingStatusPending,
	ProcessingStatusValidating,
	ProcessingStatusError,
}

func (s ProcessingStatus) IsValid() bool {
	switch s {
	case ProcessingStatusPending, ProcessingStatusValidating, ProcessingStatusProcessing,
		ProcessingStatusCompleted, ProcessingStatusError:
		return true
	}
	return false
}

// convert input to enum type
func (s *ProcessingStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("processing status must be string")
	}
	if !ProcessingStatus(str).IsValid() {
		return errors.New("invalid processing status")
	}
	*s = ProcessingStatus(str)
	return nil
}

// FileType is the accounting category of a comptable upload.
type FileType string

const (
	FileTypeGrandLivreComptes FileType = "GRAND_LIVRE_COMPTES"
	FileTypeGrandLivreTiers   FileType = "GRAND_LIVRE_TIERS"
	FileTypePlanComptes       FileType = "PLAN_COMPTES"
	FileTypePlanTiers         FileType = "PLAN_TIERS"
	FileTypeCodeJournal       FileType = "CODE_JOURNAL"
)

// RequiredFileTypes is the full batch, in upload order.
var RequiredFileTypes = []FileType{
	FileTypeGrandLivreComptes,
	FileTypeGrandLivreTiers,
	FileTypePlanComptes,
	FileTypePlanTiers,
	FileTypeCodeJournal,
}

func (t FileType) IsValid() bool {
	for _, r := range RequiredFileTypes {
		if t == r {
			return true
		}
	}
	return false
}

// convert input to enum type
func (t *FileType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("file type must be string")
	}
	if !FileType(str).IsValid() {
		return errors.New("invalid file type")
	}
	*t = FileType(str)
	return nil
}

// FileStatus tracks the storage side of a file, independently of ETL processing.
type FileStatus string

const (
	FileStatusInProgress FileStatus = "IN_PROGRESS"
	FileStatusSuccess    FileStatus = "SUCCESS"
	FileStatusError      FileStatus = "ERROR"
)

type FileCategory string

const (
	FileCategoryComptable FileCategory = "COMPTABLE"
)

// Audit action codes.
const (
	FileActionUploadComptable = "UPLOAD_COMPTABLE"
	FileActionUploadFailed    = "UPLOAD_FAILED"
	FileActionETLTriggered    = "ETL_TRIGGERED"
	FileActionRetrySuccess    = "RETRY_SUCCESS"
	FileActionRetryFailed     = "RETRY_FAILED"
)
