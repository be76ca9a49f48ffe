package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/AngeKano/repfi/ledger"
	"github.com/AngeKano/repfi/models"
	"github.com/AngeKano/repfi/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type TriggerRequest struct {
	BatchId       string
	Caller        utils.Caller
	CorrelationId string
}

type TriggerResult struct {
	DagRunId      string                  `json:"dagRunId"`
	StoragePrefix string                  `json:"storagePrefix"`
	Period        *models.ComptablePeriod `json:"period"`
	FilesCount    int                     `json:"filesCount"`
}

// TriggerETL hands a PENDING batch to the orchestrator and moves it to PROCESSING.
// State is only written after the orchestrator acknowledged the run.
func (s *Service) TriggerETL(ctx context.Context, req TriggerRequest) (result *TriggerResult, err error) {
	ctx, span := tracer.Start(ctx, "workflow.TriggerETL")
	span.SetAttributes(attribute.String("batch_id", req.BatchId))
	defer func() { endSpan(span, err) }()

	if req.BatchId == "" {
		return nil, validationError(CodeInvalidRequest, "batchId is required", nil)
	}
	period, err := s.loadTriggerablePeriod(ctx, req)
	if err != nil {
		return nil, err
	}

	release, err := s.Locker.Lock(ctx, period.ClientId)
	if err != nil {
		return nil, err
	}
	defer release()

	// fresh read under the client lock
	period, err = s.loadTriggerablePeriod(ctx, req)
	if err != nil {
		return nil, err
	}
	interval := period.Interval()

	existing, err := s.FindOverlap(ctx, period.ClientId, interval, []models.ProcessingStatus{models.ProcessingStatusProcessing}, period.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, overlapError(interval, existing)
	}

	files, err := s.Store.ListFilesByBatch(ctx, period.BatchId)
	if err != nil {
		return nil, dependencyError(CodeDatabase, "cannot list batch files", err)
	}
	if err := checkBatchComplete(files); err != nil {
		return nil, err
	}

	prefix := StoragePrefix(period.ClientId, interval)
	logger := s.Logger.WithFields(logrus.Fields{
		"batch_id":       period.BatchId,
		"client_id":      period.ClientId,
		"correlation_id": req.CorrelationId,
	})

	if err := s.Store.BeginDispatch(ctx, period.BatchId, period.ClientId); err != nil {
		if errors.Is(err, ErrDispatchInProgress) {
			return nil, conflictError(CodeAlreadyProcessing, "an ETL run is already being started for this batch",
				map[string]any{"batchId": period.BatchId, "status": period.Status})
		}
		return nil, dependencyError(CodeDatabase, "cannot record dispatch intent", err)
	}

	clientName := ""
	if period.Client != nil {
		clientName = period.Client.Name
	}
	dagRunId, err := s.Dispatcher.Dispatch(ctx, DispatchRequest{
		BatchId:       period.BatchId,
		ClientId:      period.ClientId,
		ClientName:    clientName,
		StoragePrefix: prefix,
		Bucket:        s.Objects.Bucket(),
	})
	if err != nil {
		if ferr := s.Store.FailDispatch(ctx, period.BatchId, err); ferr != nil {
			s.logError("TriggerETL", "cannot mark dispatch intent failed", period.BatchId, ferr)
		}
		logger.Error("etl dispatch failed: " + err.Error())
		e := dependencyError(CodeETLDispatch, "cannot start the ETL run", err)
		e.Details = map[string]any{"batchId": period.BatchId}
		return nil, e
	}

	event, err := s.newOutboxEvent(period, models.OutboxEventETLTriggered, req.CorrelationId, batchEventPayload{
		BatchId:       period.BatchId,
		StoragePrefix: prefix,
		PeriodStart:   ledger.FormatCompact(interval.Start),
		PeriodEnd:     ledger.FormatCompact(interval.End),
		FileIds:       fileIds(files),
		DagRunId:      dagRunId,
	})
	if err != nil {
		return nil, dependencyError(CodeDatabase, "cannot encode trigger event", err)
	}

	history := make([]models.FileHistory, 0, len(files))
	for _, f := range files {
		history = append(history, models.FileHistory{
			FileId:        f.ID,
			FileName:      f.FileName,
			Action:        models.FileActionETLTriggered,
			Details:       "Traitement ETL déclenché - DAG Run ID: " + dagRunId,
			UserId:        req.Caller.UserId,
			UserEmail:     req.Caller.Email,
			CorrelationId: req.CorrelationId,
		})
	}

	err = s.Store.CommitProcessing(ctx, ProcessingTransition{
		PeriodId:   period.ID,
		ClientId:   period.ClientId,
		BatchId:    period.BatchId,
		Interval:   interval,
		FileIds:    fileIds(files),
		DagRunId:   dagRunId,
		History:    history,
		Event:      event,
		FromStatus: models.TriggerableStatuses,
	})
	if err != nil {
		// the orchestrator already accepted the run; the dispatch intent stays STARTED
		logger.WithField("dag_run_id", dagRunId).Error("etl run started but state commit failed: " + err.Error())
		var werr *Error
		if errors.As(err, &werr) {
			return nil, werr
		}
		return nil, dependencyError(CodeDatabase, "cannot record processing state", err)
	}

	period.Status = models.ProcessingStatusProcessing
	logger.WithField("dag_run_id", dagRunId).Info("etl triggered")
	return &TriggerResult{DagRunId: dagRunId, StoragePrefix: prefix, Period: period, FilesCount: len(files)}, nil
}

// loadTriggerablePeriod runs the read-only guards: existence, tenant, status.
func (s *Service) loadTriggerablePeriod(ctx context.Context, req TriggerRequest) (*models.ComptablePeriod, error) {
	period, err := s.Store.FindPeriodByBatchId(ctx, req.BatchId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, notFoundError("comptable period not found")
		}
		return nil, dependencyError(CodeDatabase, "period lookup failed", err)
	}
	owner := period.CompanyId
	if period.Client != nil {
		owner = period.Client.CompanyId
	}
	if owner != req.Caller.CompanyId {
		return nil, forbiddenError("access to this period is not allowed")
	}
	switch period.Status {
	case models.ProcessingStatusProcessing:
		return nil, conflictError(CodeAlreadyProcessing, "this period is already being processed",
			map[string]any{"batchId": period.BatchId, "status": period.Status})
	case models.ProcessingStatusCompleted:
		return nil, conflictError(CodeAlreadyCompleted, "this period has already been processed",
			map[string]any{"batchId": period.BatchId, "status": period.Status})
	}
	return period, nil
}

// checkBatchComplete requires five stored files covering every category.
func checkBatchComplete(files []models.File) error {
	stored := map[models.FileType]bool{}
	for _, f := range files {
		if f.Status == models.FileStatusSuccess {
			stored[f.FileType] = true
		}
	}
	var missing []string
	for _, t := range models.RequiredFileTypes {
		if !stored[t] {
			missing = append(missing, string(t))
		}
	}
	if len(files) != len(models.RequiredFileTypes) || len(missing) > 0 {
		return conflictError(CodeIncompleteBatch,
			fmt.Sprintf("invalid number of files: %d/%d", len(stored), len(models.RequiredFileTypes)),
			map[string]any{"filesCount": len(files), "missing": nonNil(missing)})
	}
	return nil
}
