package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/AngeKano/repfi/models"
	"github.com/AngeKano/repfi/utils"
	"gorm.io/gorm"
)

// GormStore is the Store backed by the shared gorm pool.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorRecordNotFound
	}
	return err
}

func (s *GormStore) FindClient(ctx context.Context, companyId, clientId string) (*models.Client, error) {
	var client models.Client
	err := s.DB.WithContext(ctx).
		Where("id = ? AND company_id = ?", clientId, companyId).
		First(&client).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &client, nil
}

func overlapScope(q OverlapQuery) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("client_id = ? AND status IN ? AND period_start <= ? AND period_end >= ?",
			q.ClientId, q.Statuses, q.Period.End, q.Period.Start)
		if q.ExcludeId != "" {
			db = db.Where("id <> ?", q.ExcludeId)
		}
		return db.Order("period_start ASC")
	}
}

func (s *GormStore) FindOverlappingPeriod(ctx context.Context, q OverlapQuery) (*models.ComptablePeriod, error) {
	if len(q.Statuses) == 0 {
		return nil, nil
	}
	var existing models.ComptablePeriod
	err := s.DB.WithContext(ctx).Scopes(overlapScope(q)).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func (s *GormStore) CreateFile(ctx context.Context, file *models.File, entry *models.FileHistory) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(file).Error; err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		entry.FileId = file.ID
		return tx.Create(entry).Error
	})
}

func (s *GormStore) CreatePeriod(ctx context.Context, period *models.ComptablePeriod, event *models.OutboxEvent) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Client").Create(period).Error; err != nil {
			return err
		}
		if event == nil {
			return nil
		}
		return tx.Create(event).Error
	})
}

// FindPeriodByBatchId looks across companies so the caller can tell forbidden from missing.
func (s *GormStore) FindPeriodByBatchId(ctx context.Context, batchId string) (*models.ComptablePeriod, error) {
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	var period models.ComptablePeriod
	err := s.DB.WithContext(ctx).
		Preload("Client").
		Where("batch_id = ?", batchId).
		First(&period).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &period, nil
}

func (s *GormStore) ListFilesByBatch(ctx context.Context, batchId string) ([]models.File, error) {
	var files []models.File
	err := s.DB.WithContext(ctx).
		Where("batch_id = ?", batchId).
		Order("created_at ASC").
		Find(&files).Error
	return files, err
}

func (s *GormStore) BeginDispatch(ctx context.Context, batchId, clientId string) error {
	return BeginDispatchIntent(s.DB.WithContext(ctx), batchId, clientId)
}

func (s *GormStore) FailDispatch(ctx context.Context, batchId string, cause error) error {
	return MarkDispatchFailed(s.DB.WithContext(ctx), batchId, cause)
}

// CommitProcessing runs the PENDING->PROCESSING transition. On MySQL the transaction holds the
// client's advisory lock so the overlap re-check and the status swap see no concurrent writer.
func (s *GormStore) CommitProcessing(ctx context.Context, t ProcessingTransition) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if supportsAdvisoryLocks(tx) {
			if err := AcquireClientPeriodLock(tx, t.ClientId); err != nil {
				return err
			}
			defer ReleaseClientPeriodLock(tx, t.ClientId)
		}

		var conflict models.ComptablePeriod
		err := tx.Scopes(overlapScope(OverlapQuery{
			ClientId:  t.ClientId,
			Period:    t.Interval,
			Statuses:  []models.ProcessingStatus{models.ProcessingStatusProcessing},
			ExcludeId: t.PeriodId,
		})).Take(&conflict).Error
		if err == nil {
			return overlapError(t.Interval, &conflict)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		res := tx.Model(&models.ComptablePeriod{}).
			Where("id = ? AND status IN ?", t.PeriodId, t.FromStatus).
			Update("status", models.ProcessingStatusProcessing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflictError(CodeAlreadyProcessing, "this period is already being processed",
				map[string]any{"batchId": t.BatchId})
		}

		if len(t.FileIds) > 0 {
			if err := tx.Model(&models.File{}).
				Where("id IN ?", t.FileIds).
				Update("processing_status", models.ProcessingStatusProcessing).Error; err != nil {
				return err
			}
		}
		if len(t.History) > 0 {
			if err := tx.Create(&t.History).Error; err != nil {
				return err
			}
		}
		if t.Event != nil {
			if err := tx.Create(t.Event).Error; err != nil {
				return err
			}
		}
		return MarkDispatchSucceeded(tx, t.BatchId, t.DagRunId)
	})
}

func (s *GormStore) FindFile(ctx context.Context, companyId, fileId string) (*models.File, error) {
	var file models.File
	err := s.DB.WithContext(ctx).
		Where("id = ? AND company_id = ?", fileId, companyId).
		First(&file).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &file, nil
}

// BeginFileRetry moves an ERROR file to IN_PROGRESS; false means it was not in ERROR anymore.
func (s *GormStore) BeginFileRetry(ctx context.Context, fileId string) (bool, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.File{}).
		Where("id = ? AND status = ?", fileId, models.FileStatusError).
		Updates(map[string]interface{}{
			"status":        models.FileStatusInProgress,
			"error_message": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) FinishFileRetry(ctx context.Context, fileId string, status models.FileStatus, errorMessage *string, processedAt *time.Time, entry *models.FileHistory) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":        status,
			"error_message": errorMessage,
		}
		if processedAt != nil {
			updates["processed_at"] = processedAt
		}
		if err := tx.Model(&models.File{}).Where("id = ?", fileId).Updates(updates).Error; err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		entry.FileId = fileId
		return tx.Create(entry).Error
	})
}

func (s *GormStore) ListPeriods(ctx context.Context, f PeriodFilter) ([]models.ComptablePeriod, error) {
	q := s.DB.WithContext(ctx).
		Preload("Client").
		Where("company_id = ?", f.CompanyId)
	if f.ClientId != "" {
		q = q.Where("client_id = ?", f.ClientId)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	var periods []models.ComptablePeriod
	err := q.Order("created_at DESC").Find(&periods).Error
	return periods, err
}
