package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/AngeKano/repfi/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPeriods(h *harness) {
	h.store.addClient(models.Client{ID: "C2", CompanyId: testCompany, Name: "Beta"})
	statuses := []models.ProcessingStatus{
		models.ProcessingStatusPending,
		models.ProcessingStatusCompleted,
		models.ProcessingStatusProcessing,
		models.ProcessingStatusError,
		models.ProcessingStatusValidating,
	}
	for i, st := range statuses {
		clientId := testClient
		if i%2 == 1 {
			clientId = "C2"
		}
		h.store.addPeriod(models.ComptablePeriod{
			ClientId: clientId, CompanyId: testCompany, BatchId: string(st),
			PeriodStart: day(2024, time.Month(i+1), 1), PeriodEnd: day(2024, time.Month(i+1), 28), Status: st,
		})
	}
	h.store.addPeriod(models.ComptablePeriod{
		ClientId: "X", CompanyId: "company-2", BatchId: "foreign",
		PeriodStart: day(2024, 1, 1), PeriodEnd: day(2024, 1, 31), Status: models.ProcessingStatusPending,
	})
}

func batchIds(periods []models.ComptablePeriod) []string {
	out := make([]string, 0, len(periods))
	for _, p := range periods {
		out = append(out, p.BatchId)
	}
	return out
}

func TestListProcessingPeriods(t *testing.T) {
	h := newHarness(t)
	seedPeriods(h)

	all, err := h.svc.ListProcessingPeriods(context.Background(), testCaller, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"VALIDATING", "PROCESSING", "PENDING"}, batchIds(all))

	c1, err := h.svc.ListProcessingPeriods(context.Background(), testCaller, testClient)
	require.NoError(t, err)
	assert.Equal(t, []string{"VALIDATING", "PROCESSING", "PENDING"}, batchIds(c1))

	c2, err := h.svc.ListProcessingPeriods(context.Background(), testCaller, "C2")
	require.NoError(t, err)
	assert.Empty(t, c2)
	assert.NotNil(t, c2)
}

func TestListPeriods(t *testing.T) {
	h := newHarness(t)
	seedPeriods(h)

	all, err := h.svc.ListPeriods(context.Background(), testCaller, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"VALIDATING", "ERROR", "PROCESSING", "COMPLETED", "PENDING"}, batchIds(all))

	noCompany := testCaller
	noCompany.CompanyId = ""
	_, err = h.svc.ListPeriods(context.Background(), noCompany, "")
	requireCode(t, err, CodeForbidden)
}

func TestDownloadURL(t *testing.T) {
	h := newHarness(t)
	batch := assembleJanuary(t, h)

	link, err := h.svc.DownloadURL(context.Background(), testCaller, batch.Files[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/"+batch.Files[0].StorageKey, link.URL)
	assert.Equal(t, batch.Files[0].FileName, link.FileName)
	assert.Equal(t, time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC), link.ExpiresAt)

	other := testCaller
	other.CompanyId = "company-2"
	_, err = h.svc.DownloadURL(context.Background(), other, batch.Files[0].ID)
	requireCode(t, err, CodeNotFound)
}
