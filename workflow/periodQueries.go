package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/AngeKano/repfi/models"
	"github.com/AngeKano/repfi/utils"
)

// ListProcessingPeriods returns the company's PENDING, PROCESSING and VALIDATING periods,
// newest first, optionally for one client.
func (s *Service) ListProcessingPeriods(ctx context.Context, caller utils.Caller, clientId string) ([]models.ComptablePeriod, error) {
	return s.listPeriods(ctx, PeriodFilter{
		CompanyId: caller.CompanyId,
		ClientId:  clientId,
		Statuses:  models.ActiveProcessingStatuses,
	})
}

// ListPeriods returns every period of the company, newest first.
func (s *Service) ListPeriods(ctx context.Context, caller utils.Caller, clientId string) ([]models.ComptablePeriod, error) {
	return s.listPeriods(ctx, PeriodFilter{CompanyId: caller.CompanyId, ClientId: clientId})
}

func (s *Service) listPeriods(ctx context.Context, f PeriodFilter) ([]models.ComptablePeriod, error) {
	if f.CompanyId == "" {
		return nil, forbiddenError("no company in session")
	}
	periods, err := s.Store.ListPeriods(ctx, f)
	if err != nil {
		return nil, dependencyError(CodeDatabase, "cannot list periods", err)
	}
	if periods == nil {
		periods = []models.ComptablePeriod{}
	}
	return periods, nil
}

type DownloadLink struct {
	URL       string    `json:"url"`
	FileName  string    `json:"fileName"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DownloadURL signs a short-lived GET URL for one of the company's files.
func (s *Service) DownloadURL(ctx context.Context, caller utils.Caller, fileId string) (*DownloadLink, error) {
	file, err := s.Store.FindFile(ctx, caller.CompanyId, fileId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, notFoundError("file not found")
		}
		return nil, dependencyError(CodeDatabase, "file lookup failed", err)
	}
	if file.StorageKey == "" {
		return nil, validationError(CodeInvalidRequest, "file has no stored object", map[string]any{"fileId": file.ID})
	}
	signed, err := s.Objects.SignDownload(ctx, file.StorageKey, s.DownloadURLTTL)
	if err != nil {
		return nil, dependencyError(CodeStorage, "cannot sign download url", err)
	}
	return &DownloadLink{URL: signed.URL, FileName: file.FileName, ExpiresAt: signed.ExpiresAt}, nil
}
