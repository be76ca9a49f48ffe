package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/AngeKano/repfi/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assembleJanuary(t *testing.T, h *harness) *BatchResult {
	t.Helper()
	res, err := h.svc.AssembleBatch(context.Background(), AssembleRequest{
		ClientId: testClient,
		Caller:   testCaller,
		Files:    batchFiles(t, "01/01/2024", "31/01/2024", "01/01/2024", "31/01/2024"),
	})
	require.NoError(t, err)
	return res
}

func TestTriggerETL_MovesBatchToProcessing(t *testing.T) {
	h := newHarness(t)
	batch := assembleJanuary(t, h)

	res, err := h.svc.TriggerETL(context.Background(), TriggerRequest{BatchId: batch.BatchId, Caller: testCaller})
	require.NoError(t, err)

	assert.Equal(t, "run-123", res.DagRunId)
	assert.Equal(t, models.ProcessingStatusProcessing, res.Period.Status)
	assert.Equal(t, 5, res.FilesCount)

	stored, err := h.store.FindPeriodByBatchId(context.Background(), batch.BatchId)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingStatusProcessing, stored.Status)

	files, err := h.store.ListFilesByBatch(context.Background(), batch.BatchId)
	require.NoError(t, err)
	require.Len(t, files, 5)
	for _, f := range files {
		assert.Equal(t, models.ProcessingStatusProcessing, f.ProcessingStatus)
	}

	triggered := h.store.historyFor(models.FileActionETLTriggered)
	require.Len(t, triggered, 5)
	for _, entry := range triggered {
		assert.True(t, strings.Contains(entry.Details, "run-123"), entry.Details)
	}

	require.Equal(t, 1, h.dispatcher.callCount())
	call := h.dispatcher.calls[0]
	assert.Equal(t, DispatchRequest{
		BatchId:       batch.BatchId,
		ClientId:      testClient,
		ClientName:    "Acme",
		StoragePrefix: januaryPrefix,
		Bucket:        "test-bucket",
	}, call)

	require.Len(t, h.store.events, 2)
	assert.Equal(t, models.OutboxEventETLTriggered, h.store.events[1].EventType)
	assert.Equal(t, models.DispatchIntentSucceeded, h.store.intents[batch.BatchId])
}

func TestTriggerETL_IncompleteBatchKeepsPending(t *testing.T) {
	h := newHarness(t)
	period := h.store.addPeriod(models.ComptablePeriod{
		ClientId: testClient, CompanyId: testCompany, BatchId: "batch-4",
		PeriodStart: day(2024, 1, 1), PeriodEnd: day(2024, 1, 31), Year: 2024,
		Status: models.ProcessingStatusPending,
	})
	for _, ft := range models.RequiredFileTypes[:4] {
		h.store.addFile(models.File{
			FileType: ft, BatchId: "batch-4", ClientId: testClient, CompanyId: testCompany,
			Status: models.FileStatusSuccess, ProcessingStatus: models.ProcessingStatusPending,
		})
	}

	_, err := h.svc.TriggerETL(context.Background(), TriggerRequest{BatchId: "batch-4", Caller: testCaller})
	werr := requireCode(t, err, CodeIncompleteBatch)
	assert.ErrorIs(t, err, ErrIncompleteBatch)
	assert.Equal(t, []string{"CODE_JOURNAL"}, werr.Details["missing"])
	assert.Equal(t, "invalid number of files: 4/5", werr.Message)

	stored, _ := h.store.FindPeriodByBatchId(context.Background(), "batch-4")
	assert.Equal(t, period.ID, stored.ID)
	assert.Equal(t, models.ProcessingStatusPending, stored.Status)
	assert.Zero(t, h.dispatcher.callCount())
}

func TestTriggerETL_FileInErrorBlocksBatch(t *testing.T) {
	h := newHarness(t)
	h.store.addPeriod(models.ComptablePeriod{
		ClientId: testClient, CompanyId: testCompany, BatchId: "batch-err",
		PeriodStart: day(2024, 1, 1), PeriodEnd: day(2024, 1, 31), Year: 2024,
		Status: models.ProcessingStatusPending,
	})
	for i, ft := range models.RequiredFileTypes {
		status := models.FileStatusSuccess
		if i == 2 {
			status = models.FileStatusError
		}
		h.store.addFile(models.File{FileType: ft, BatchId: "batch-err", ClientId: testClient, CompanyId: testCompany, Status: status})
	}

	_, err := h.svc.TriggerETL(context.Background(), TriggerRequest{BatchId: "batch-err", Caller: testCaller})
	werr := requireCode(t, err, CodeIncompleteBatch)
	assert.Equal(t, []string{"PLAN_COMPTES"}, werr.Details["missing"])
}

func TestTriggerETL_SecondCallIsAlreadyProcessing(t *testing.T) {
	h := newHarness(t)
	batch := assembleJanuary(t, h)

	_, err := h.svc.TriggerETL(context.Background(), TriggerRequest{BatchId: batch.BatchId, Caller: testCaller})
	require.NoError(t, err)

	_, err = h.svc.TriggerETL(context.Background(), TriggerRequest{BatchId: batch.BatchId, Caller: testCaller})
	requireCode(t, err, CodeAlreadyProcessing)
	assert.ErrorIs(t, err, ErrAlreadyProcessing)
	assert.Equal(t, 1, h.dispatcher.callCount())
}

func TestTriggerETL_ConcurrentCallsDispatchOnce(t *testing.T) {
	h := newHarness(t)
	batch := assembleJanuary(t, h)

	const callers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.TriggerETL(context.Background(), TriggerRequest{BatchId: batch.BatchId, Caller: testCaller})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrAlreadyProcessing):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
	assert.Equal(t, 1, h.dispatcher.callCount())
}

func TestTriggerETL_Guards(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.TriggerETL(context.Background(), TriggerRequest{BatchId: "nope", Caller: testCaller})
		requireCode(t, err, CodeNotFound)
	})

	t.Run("other company", func(t *testing.T) {
		h := newHarness(t)
		batch := assembleJanuary(t, h)
		caller := testCaller
		caller.CompanyId = "company-2"
		_, err := h.svc.TriggerETL(context.Background(), TriggerRequest{BatchId: batch.BatchId, Caller: caller})
		werr := requireCode(t, err, CodeForbidden)
		assert.Equal(t, 403, werr.HTTPStatus())
	})

	t.Run("completed", func(t *testing.T) {
		h := newHarness(t)
		h.store.addPeriod(models.ComptablePeriod{
			ClientId: testClient, CompanyId: testCompany, BatchId: "done",
			PeriodStart: day(2024, 1, 1), PeriodEnd: day(2024, 1, 31), Status: models.ProcessingStatusCompleted,
		})
		_, err := h.svc.TriggerETL(context.Background(), TriggerRequest{BatchId: "done", Caller: testCaller})
		requireCode(t, err, CodeAlreadyCompleted)
		assert.ErrorIs(t, err, ErrAlreadyCompleted)
	})

	t.Run("missing batch id", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.TriggerETL(context.Background(), TriggerRequest{Caller: testCaller})
		requireCode(t, err, CodeInvalidRequest)
	})
}

func TestTriggerETL_OverlappingProcessingPeriod(t *testing.T) {
	h := newHarness(t)
	batch := assembleJanuary(t, h)
	running := h.store.addPeriod(models.ComptablePeriod{
		ClientId: testClient, CompanyId: testCompany, BatchId: "running",
		PeriodStart: day(2024, 1, 31), PeriodEnd: day(2024, 2, 29), Status: models.ProcessingStatusProcessing,
	})

	_, err := h.svc.TriggerETL(context.Background(), TriggerRequest{BatchId: batch.BatchId, Caller: testCaller})
	werr := requireCode(t, err, CodePeriodOverlap)
	existing := werr.Details["existingPeriod"].(map[string]any)
	assert.Equal(t, running.BatchId, existing["batchId"])
	assert.Zero(t, h.dispatcher.callCount())
}

func TestTriggerETL_OtherClientProcessingDoesNotBlock(t *testing.T) {
	h := newHarness(t)
	batch := assembleJanuary(t, h)
	h.store.addClient(models.Client{ID: "C2", CompanyId: testCompany, Name: "Other"})
	h.store.addPeriod(models.ComptablePeriod{
		ClientId: "C2", CompanyId: testCompany, BatchId: "c2-running",
		PeriodStart: day(2024, 1, 1), PeriodEnd: day(2024, 1, 31), Status: models.ProcessingStatusProcessing,
	})

	_, err := h.svc.TriggerETL(context.Background(), TriggerRequest{BatchId: batch.BatchId, Caller: testCaller})
	require.NoError(t, err)
}

func TestTriggerETL_DispatchFailureLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t)
	batch := assembleJanuary(t, h)
	h.dispatcher.err = errors.New("airflow api error 500: boom")

	_, err := h.svc.TriggerETL(context.Background(), TriggerRequest{BatchId: batch.BatchId, Caller: testCaller})
	werr := requireCode(t, err, CodeETLDispatch)
	assert.ErrorIs(t, err, ErrETLDispatch)
	assert.Equal(t, 500, werr.HTTPStatus())

	stored, _ := h.store.FindPeriodByBatchId(context.Background(), batch.BatchId)
	assert.Equal(t, models.ProcessingStatusPending, stored.Status)
	files, _ := h.store.ListFilesByBatch(context.Background(), batch.BatchId)
	for _, f := range files {
		assert.Equal(t, models.ProcessingStatusPending, f.ProcessingStatus)
	}
	assert.Empty(t, h.store.historyFor(models.FileActionETLTriggered))
	assert.Equal(t, models.DispatchIntentFailed, h.store.intents[batch.BatchId])

	// a fresh trigger re-runs the guards and may succeed
	h.dispatcher.err = nil
	res, err := h.svc.TriggerETL(context.Background(), TriggerRequest{BatchId: batch.BatchId, Caller: testCaller})
	require.NoError(t, err)
	assert.Equal(t, "run-123", res.DagRunId)
}

func TestTriggerETL_DispatchInProgress(t *testing.T) {
	h := newHarness(t)
	batch := assembleJanuary(t, h)
	h.store.intents[batch.BatchId] = models.DispatchIntentStarted

	_, err := h.svc.TriggerETL(context.Background(), TriggerRequest{BatchId: batch.BatchId, Caller: testCaller})
	requireCode(t, err, CodeAlreadyProcessing)
	assert.Zero(t, h.dispatcher.callCount())
}

func TestTriggerETL_ErrorPeriodCanBeTriggeredAgain(t *testing.T) {
	h := newHarness(t)
	batch := assembleJanuary(t, h)
	h.store.mu.Lock()
	for _, p := range h.store.periods {
		p.Status = models.ProcessingStatusError
	}
	h.store.mu.Unlock()

	res, err := h.svc.TriggerETL(context.Background(), TriggerRequest{BatchId: batch.BatchId, Caller: testCaller})
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingStatusProcessing, res.Period.Status)
}
