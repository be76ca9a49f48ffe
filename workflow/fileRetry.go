package workflow

import (
	"context"
	"errors"

	"github.com/AngeKano/repfi/models"
	"github.com/AngeKano/repfi/utils"
	"go.opentelemetry.io/otel/attribute"
)

const retryStorageErrorMessage = "storage verification failed"

type RetryRequest struct {
	FileId        string
	Caller        utils.Caller
	CorrelationId string
}

// RetryFile re-verifies that an ERROR file exists in storage and flips it to SUCCESS or back to ERROR.
func (s *Service) RetryFile(ctx context.Context, req RetryRequest) (file *models.File, err error) {
	ctx, span := tracer.Start(ctx, "workflow.RetryFile")
	span.SetAttributes(attribute.String("file_id", req.FileId))
	defer func() { endSpan(span, err) }()

	file, err = s.Store.FindFile(ctx, req.Caller.CompanyId, req.FileId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, notFoundError("file not found")
		}
		return nil, dependencyError(CodeDatabase, "file lookup failed", err)
	}
	if file.Status != models.FileStatusError {
		return nil, validationError(CodeInvalidRequest, "only files in error can be retried",
			map[string]any{"fileId": file.ID, "status": file.Status})
	}

	claimed, err := s.Store.BeginFileRetry(ctx, file.ID)
	if err != nil {
		return nil, dependencyError(CodeDatabase, "cannot start retry", err)
	}
	if !claimed {
		return nil, validationError(CodeInvalidRequest, "only files in error can be retried",
			map[string]any{"fileId": file.ID})
	}

	entry := &models.FileHistory{
		FileId:        file.ID,
		FileName:      file.FileName,
		UserId:        req.Caller.UserId,
		UserEmail:     req.Caller.Email,
		CorrelationId: req.CorrelationId,
	}

	if _, headErr := s.Objects.Head(ctx, file.StorageKey); headErr != nil {
		msg := retryStorageErrorMessage
		entry.Action = models.FileActionRetryFailed
		entry.Details = "Échec de la relance"
		if err := s.Store.FinishFileRetry(ctx, file.ID, models.FileStatusError, &msg, nil, entry); err != nil {
			s.logError("RetryFile", "cannot record failed retry", file.ID, err)
		}
		file.Status = models.FileStatusError
		file.ErrorMessage = &msg
		e := dependencyError(CodeStorage, "retry failed", headErr)
		e.Details = map[string]any{"fileId": file.ID}
		return nil, e
	}

	now := s.now()
	entry.Action = models.FileActionRetrySuccess
	entry.Details = "Fichier récupéré avec succès"
	if err := s.Store.FinishFileRetry(ctx, file.ID, models.FileStatusSuccess, nil, &now, entry); err != nil {
		return nil, dependencyError(CodeDatabase, "cannot record retry", err)
	}
	file.Status = models.FileStatusSuccess
	file.ErrorMessage = nil
	file.ProcessedAt = &now
	return file, nil
}
