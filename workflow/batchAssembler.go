package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/AngeKano/repfi/ledger"
	"github.com/AngeKano/repfi/models"
	"github.com/AngeKano/repfi/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var acceptedMimeTypes = map[string]bool{
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
}

func IsAcceptedMimeType(contentType string) bool {
	return acceptedMimeTypes[contentType]
}

type UploadedFile struct {
	FileType    models.FileType
	FileName    string
	ContentType string
	Data        []byte
}

type AssembleRequest struct {
	ClientId      string
	Caller        utils.Caller
	CorrelationId string
	Files         []UploadedFile
}

type BatchResult struct {
	BatchId       string                  `json:"batchId"`
	StoragePrefix string                  `json:"storagePrefix"`
	Period        *models.ComptablePeriod `json:"period"`
	Files         []models.File           `json:"files"`
}

type batchEventPayload struct {
	BatchId       string   `json:"batch_id"`
	StoragePrefix string   `json:"storage_prefix"`
	PeriodStart   string   `json:"period_start"`
	PeriodEnd     string   `json:"period_end"`
	FileIds       []string `json:"file_ids"`
	DagRunId      string   `json:"dag_run_id,omitempty"`
}

// AssembleBatch validates five category-tagged uploads, stores them under the period prefix and
// records one PENDING period. Nothing is written until every validation step has passed.
func (s *Service) AssembleBatch(ctx context.Context, req AssembleRequest) (result *BatchResult, err error) {
	ctx, span := tracer.Start(ctx, "workflow.AssembleBatch")
	span.SetAttributes(attribute.String("client_id", req.ClientId))
	defer func() { endSpan(span, err) }()

	if req.ClientId == "" {
		return nil, validationError(CodeInvalidRequest, "clientId is required", nil)
	}
	client, err := s.Store.FindClient(ctx, req.Caller.CompanyId, req.ClientId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, notFoundError("client not found")
		}
		return nil, dependencyError(CodeDatabase, "client lookup failed", err)
	}

	byType, err := s.checkBatchFiles(req.Files)
	if err != nil {
		return nil, err
	}

	period, err := reconcileLedgers(byType[models.FileTypeGrandLivreComptes], byType[models.FileTypeGrandLivreTiers])
	if err != nil {
		return nil, err
	}

	release, err := s.Locker.Lock(ctx, client.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := s.FindOverlap(ctx, client.ID, period, []models.ProcessingStatus{models.ProcessingStatusCompleted}, "")
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, overlapError(period, existing)
	}

	prefix := StoragePrefix(client.ID, period)
	s.backupExisting(ctx, prefix)

	batchId := uuid.NewString()
	logger := s.Logger.WithFields(logrus.Fields{
		"batch_id":       batchId,
		"client_id":      client.ID,
		"correlation_id": req.CorrelationId,
	})

	files := make([]models.File, 0, len(models.RequiredFileTypes))
	for _, fileType := range models.RequiredFileTypes {
		f, err := s.storeBatchFile(ctx, req, client, period, prefix, batchId, byType[fileType])
		if err != nil {
			logger.WithField("file_type", fileType).Error("batch upload aborted: " + err.Error())
			return nil, err
		}
		files = append(files, *f)
	}

	record := &models.ComptablePeriod{
		ClientId:    client.ID,
		CompanyId:   client.CompanyId,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		Year:        period.Year(),
		BatchId:     batchId,
		Status:      models.ProcessingStatusPending,
	}
	event, err := s.newOutboxEvent(record, models.OutboxEventBatchUploaded, req.CorrelationId, batchEventPayload{
		BatchId:       batchId,
		StoragePrefix: prefix,
		PeriodStart:   ledger.FormatCompact(period.Start),
		PeriodEnd:     ledger.FormatCompact(period.End),
		FileIds:       fileIds(files),
	})
	if err != nil {
		return nil, dependencyError(CodeDatabase, "cannot encode batch event", err)
	}
	if err := s.Store.CreatePeriod(ctx, record, event); err != nil {
		return nil, dependencyError(CodeDatabase, "cannot record period", err)
	}
	logger.Info("comptable batch uploaded")

	return &BatchResult{BatchId: batchId, StoragePrefix: prefix, Period: record, Files: files}, nil
}

// checkBatchFiles covers the pure checks: category coverage, size and content type.
func (s *Service) checkBatchFiles(files []UploadedFile) (map[models.FileType]UploadedFile, error) {
	byType := make(map[models.FileType]UploadedFile, len(files))
	var duplicated []string
	for _, f := range files {
		if !f.FileType.IsValid() {
			return nil, validationError(CodeInvalidRequest, fmt.Sprintf("unknown file category %q", f.FileType), map[string]any{"fileName": f.FileName})
		}
		if _, seen := byType[f.FileType]; seen {
			duplicated = append(duplicated, string(f.FileType))
			continue
		}
		byType[f.FileType] = f
	}
	var missing []string
	for _, t := range models.RequiredFileTypes {
		if _, ok := byType[t]; !ok {
			missing = append(missing, string(t))
		}
	}
	if len(missing) > 0 || len(duplicated) > 0 {
		sort.Strings(duplicated)
		return nil, conflictError(CodeIncompleteBatch, "a batch needs exactly one file of each required category",
			map[string]any{"missing": nonNil(missing), "duplicated": nonNil(duplicated)})
	}

	for _, t := range models.RequiredFileTypes {
		f := byType[t]
		if len(f.Data) == 0 {
			return nil, validationError(CodeInvalidRequest, "file "+f.FileName+" is empty", map[string]any{"fileName": f.FileName, "fileType": t})
		}
		if s.MaxFileBytes > 0 && int64(len(f.Data)) > s.MaxFileBytes {
			return nil, validationError(CodeFileTooLarge, "file "+f.FileName+" exceeds the upload size limit",
				map[string]any{"fileName": f.FileName, "fileType": t, "size": len(f.Data), "maxSize": s.MaxFileBytes})
		}
		if !IsAcceptedMimeType(f.ContentType) {
			return nil, validationError(CodeInvalidFileType, "file "+f.FileName+" is not an Excel spreadsheet",
				map[string]any{"fileName": f.FileName, "fileType": t, "contentType": f.ContentType})
		}
	}
	return byType, nil
}

// reconcileLedgers extracts the period from both grand livre files and requires them to agree.
func reconcileLedgers(accounts, thirdParties UploadedFile) (ledger.Period, error) {
	a, err := ledger.ExtractPeriodFromBytes(accounts.Data)
	if err != nil {
		return ledger.Period{}, extractionError(accounts, err)
	}
	b, err := ledger.ExtractPeriodFromBytes(thirdParties.Data)
	if err != nil {
		return ledger.Period{}, extractionError(thirdParties, err)
	}
	if !ledger.Reconcile(a, b) {
		return ledger.Period{}, conflictError(CodePeriodMismatch,
			fmt.Sprintf("ledger periods differ: %s vs %s", a, b),
			map[string]any{
				string(accounts.FileType):     periodDetails(a),
				string(thirdParties.FileType): periodDetails(b),
			})
	}
	return a, nil
}

func extractionError(f UploadedFile, err error) *Error {
	e := validationError(CodePeriodExtraction, "cannot extract period from "+f.FileName,
		map[string]any{"fileName": f.FileName, "fileType": f.FileType})
	e.Err = err
	return e
}

// backupExisting copies objects already under prefix into a timestamped backup folder.
// Failures are logged only.
func (s *Service) backupExisting(ctx context.Context, prefix string) {
	objects, err := s.Objects.List(ctx, prefix)
	if err != nil {
		s.logError("backupExisting", "cannot list existing objects", prefix, err)
		return
	}
	at := s.now()
	for _, obj := range objects {
		if !isBackupCandidate(obj.Key) {
			continue
		}
		dest := backupKey(prefix, obj.Key, at)
		if err := s.Objects.Copy(ctx, obj.Key, dest); err != nil {
			s.logError("backupExisting", "cannot back up object", map[string]string{"source": obj.Key, "dest": dest}, err)
		}
	}
}

// storeBatchFile uploads one payload and records it. A failed upload is recorded as an ERROR file
// so it can be retried, then reported as a storage dependency failure.
func (s *Service) storeBatchFile(ctx context.Context, req AssembleRequest, client *models.Client, period ledger.Period, prefix, batchId string, in UploadedFile) (*models.File, error) {
	name := StorageFileName(period, in.FileType, client.Name, in.FileName)
	key := prefix + name
	start, end := period.Start, period.End
	now := s.now()

	f := &models.File{
		FileName:         name,
		FileType:         in.FileType,
		FileYear:         period.Year(),
		Category:         models.FileCategoryComptable,
		StorageKey:       key,
		StorageURL:       utils.BuildObjectAccessURL(s.Objects.Bucket(), key),
		FileSize:         int64(len(in.Data)),
		MimeType:         in.ContentType,
		Status:           models.FileStatusSuccess,
		ProcessingStatus: models.ProcessingStatusPending,
		BatchId:          batchId,
		PeriodStart:      &start,
		PeriodEnd:        &end,
		ClientId:         client.ID,
		CompanyId:        client.CompanyId,
		UploadedById:     req.Caller.UserId,
		ProcessedAt:      &now,
	}
	entry := &models.FileHistory{
		FileName:      name,
		Action:        models.FileActionUploadComptable,
		Details:       fmt.Sprintf("Fichier comptable uploadé - Période: %s au %s", ledger.FormatCompact(start), ledger.FormatCompact(end)),
		UserId:        req.Caller.UserId,
		UserEmail:     req.Caller.Email,
		CorrelationId: req.CorrelationId,
	}

	uploadErr := s.Objects.Put(ctx, key, in.Data, in.ContentType)
	if uploadErr != nil {
		msg := uploadErr.Error()
		f.Status = models.FileStatusError
		f.ErrorMessage = &msg
		f.ProcessedAt = nil
		entry.Action = models.FileActionUploadFailed
		entry.Details = "Échec de l'upload: " + msg
	}
	if err := s.Store.CreateFile(ctx, f, entry); err != nil {
		if uploadErr != nil {
			s.logError("storeBatchFile", "cannot record failed upload", key, err)
		} else {
			return nil, dependencyError(CodeDatabase, "cannot record uploaded file", err)
		}
	}
	if uploadErr != nil {
		e := dependencyError(CodeStorage, "upload failed for "+in.FileName, uploadErr)
		e.Details = map[string]any{"batchId": batchId, "fileType": in.FileType, "fileId": f.ID}
		return nil, e
	}
	return f, nil
}

func (s *Service) newOutboxEvent(p *models.ComptablePeriod, eventType, correlationId string, payload batchEventPayload) (*models.OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &models.OutboxEvent{
		CompanyId:     p.CompanyId,
		ClientId:      p.ClientId,
		BatchId:       p.BatchId,
		EventType:     eventType,
		OccurredAt:    s.now(),
		Payload:       data,
		PublishStatus: models.OutboxPublishStatusPending,
		CorrelationId: correlationId,
	}, nil
}

func fileIds(files []models.File) []string {
	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	return ids
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
