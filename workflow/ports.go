package workflow

import (
	"context"
	"time"

	"github.com/AngeKano/repfi/ledger"
	"github.com/AngeKano/repfi/models"
	"github.com/AngeKano/repfi/utils"
)

// OverlapQuery selects a client's periods whose interval intersects Period and whose
// status is in Statuses. ExcludeId skips the period being checked.
type OverlapQuery struct {
	ClientId  string
	Period    ledger.Period
	Statuses  []models.ProcessingStatus
	ExcludeId string
}

type PeriodFilter struct {
	CompanyId string
	ClientId  string
	Statuses  []models.ProcessingStatus
}

// ProcessingTransition is everything the PENDING->PROCESSING commit writes in one transaction.
type ProcessingTransition struct {
	PeriodId   string
	ClientId   string
	BatchId    string
	Interval   ledger.Period
	FileIds    []string
	DagRunId   string
	History    []models.FileHistory
	Event      *models.OutboxEvent
	FromStatus []models.ProcessingStatus
}

// Store is the persistence port. Lookups return utils.ErrorRecordNotFound on a miss.
type Store interface {
	FindClient(ctx context.Context, companyId, clientId string) (*models.Client, error)
	FindOverlappingPeriod(ctx context.Context, q OverlapQuery) (*models.ComptablePeriod, error)
	CreateFile(ctx context.Context, file *models.File, entry *models.FileHistory) error
	CreatePeriod(ctx context.Context, period *models.ComptablePeriod, event *models.OutboxEvent) error
	FindPeriodByBatchId(ctx context.Context, batchId string) (*models.ComptablePeriod, error)
	ListFilesByBatch(ctx context.Context, batchId string) ([]models.File, error)
	BeginDispatch(ctx context.Context, batchId, clientId string) error
	FailDispatch(ctx context.Context, batchId string, cause error) error
	// CommitProcessing returns ErrAlreadyProcessing when the status CAS matched no row and
	// a PERIOD_OVERLAP *Error when a processing overlap appeared since the first check.
	CommitProcessing(ctx context.Context, t ProcessingTransition) error
	FindFile(ctx context.Context, companyId, fileId string) (*models.File, error)
	BeginFileRetry(ctx context.Context, fileId string) (bool, error)
	FinishFileRetry(ctx context.Context, fileId string, status models.FileStatus, errorMessage *string, processedAt *time.Time, entry *models.FileHistory) error
	ListPeriods(ctx context.Context, f PeriodFilter) ([]models.ComptablePeriod, error)
}

type ObjectStore interface {
	Bucket() string
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Head(ctx context.Context, key string) (*utils.ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]utils.ObjectInfo, error)
	Copy(ctx context.Context, sourceKey, destKey string) error
	SignDownload(ctx context.Context, key string, expires time.Duration) (*utils.SignedDownload, error)
}

type DispatchRequest struct {
	BatchId       string
	ClientId      string
	ClientName    string
	StoragePrefix string
	Bucket        string
}

// Dispatcher starts one orchestrator run and returns its run id.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (string, error)
}

// ClientLocker serializes period mutations of one client across instances.
type ClientLocker interface {
	Lock(ctx context.Context, clientId string) (release func(), err error)
}
