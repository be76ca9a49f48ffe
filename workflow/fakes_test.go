package workflow

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AngeKano/repfi/ledger"
	"github.com/AngeKano/repfi/models"
	"github.com/AngeKano/repfi/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// memStore is an in-memory Store with the same guard semantics as GormStore.
type memStore struct {
	mu      sync.Mutex
	clients map[string]models.Client
	periods map[string]*models.ComptablePeriod
	files   map[string]*models.File
	history []models.FileHistory
	events  []models.OutboxEvent
	intents map[string]models.DispatchIntentStatus
	seq     int
}

func newMemStore() *memStore {
	return &memStore{
		clients: map[string]models.Client{},
		periods: map[string]*models.ComptablePeriod{},
		files:   map[string]*models.File{},
		intents: map[string]models.DispatchIntentStatus{},
	}
}

func (m *memStore) addClient(c models.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
}

func (m *memStore) addPeriod(p models.ComptablePeriod) *models.ComptablePeriod {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	m.seq++
	p.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Minute)
	m.periods[p.ID] = &p
	return &p
}

func (m *memStore) addFile(f models.File) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	m.seq++
	f.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Minute)
	m.files[f.ID] = &f
}

func (m *memStore) FindClient(ctx context.Context, companyId, clientId string) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientId]
	if !ok || c.CompanyId != companyId {
		return nil, utils.ErrorRecordNotFound
	}
	return &c, nil
}

func (m *memStore) findOverlap(q OverlapQuery) *models.ComptablePeriod {
	var hits []*models.ComptablePeriod
	for _, p := range m.periods {
		if p.ClientId != q.ClientId || p.ID == q.ExcludeId || !statusIn(p.Status, q.Statuses) {
			continue
		}
		if ledger.Overlaps(p.Interval(), q.Period) {
			hits = append(hits, p)
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].PeriodStart.Before(hits[j].PeriodStart) })
	cp := *hits[0]
	return &cp
}

func (m *memStore) FindOverlappingPeriod(ctx context.Context, q OverlapQuery) (*models.ComptablePeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findOverlap(q), nil
}

func (m *memStore) CreateFile(ctx context.Context, file *models.File, entry *models.FileHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	m.seq++
	file.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Minute)
	cp := *file
	m.files[file.ID] = &cp
	if entry != nil {
		entry.FileId = file.ID
		m.history = append(m.history, *entry)
	}
	return nil
}

func (m *memStore) CreatePeriod(ctx context.Context, period *models.ComptablePeriod, event *models.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	m.seq++
	period.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Minute)
	cp := *period
	m.periods[period.ID] = &cp
	if event != nil {
		m.events = append(m.events, *event)
	}
	return nil
}

func (m *memStore) FindPeriodByBatchId(ctx context.Context, batchId string) (*models.ComptablePeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.periods {
		if p.BatchId == batchId {
			cp := *p
			if c, ok := m.clients[p.ClientId]; ok {
				cp.Client = &c
			}
			return &cp, nil
		}
	}
	return nil, utils.ErrorRecordNotFound
}

func (m *memStore) ListFilesByBatch(ctx context.Context, batchId string) ([]models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.File
	for _, f := range m.files {
		if f.BatchId == batchId {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) BeginDispatch(ctx context.Context, batchId, clientId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.intents[batchId] == models.DispatchIntentStarted {
		return ErrDispatchInProgress
	}
	m.intents[batchId] = models.DispatchIntentStarted
	return nil
}

func (m *memStore) FailDispatch(ctx context.Context, batchId string, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents[batchId] = models.DispatchIntentFailed
	return nil
}

func (m *memStore) CommitProcessing(ctx context.Context, t ProcessingTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conflict := m.findOverlap(OverlapQuery{
		ClientId:  t.ClientId,
		Period:    t.Interval,
		Statuses:  []models.ProcessingStatus{models.ProcessingStatusProcessing},
		ExcludeId: t.PeriodId,
	}); conflict != nil {
		return overlapError(t.Interval, conflict)
	}
	p, ok := m.periods[t.PeriodId]
	if !ok || !statusIn(p.Status, t.FromStatus) {
		return conflictError(CodeAlreadyProcessing, "this period is already being processed", nil)
	}
	p.Status = models.ProcessingStatusProcessing
	for _, id := range t.FileIds {
		if f, ok := m.files[id]; ok {
			f.ProcessingStatus = models.ProcessingStatusProcessing
		}
	}
	m.history = append(m.history, t.History...)
	if t.Event != nil {
		m.events = append(m.events, *t.Event)
	}
	m.intents[t.BatchId] = models.DispatchIntentSucceeded
	return nil
}

func (m *memStore) FindFile(ctx context.Context, companyId, fileId string) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileId]
	if !ok || f.CompanyId != companyId {
		return nil, utils.ErrorRecordNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *memStore) BeginFileRetry(ctx context.Context, fileId string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileId]
	if !ok || f.Status != models.FileStatusError {
		return false, nil
	}
	f.Status = models.FileStatusInProgress
	f.ErrorMessage = nil
	return true, nil
}

func (m *memStore) FinishFileRetry(ctx context.Context, fileId string, status models.FileStatus, errorMessage *string, processedAt *time.Time, entry *models.FileHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.files[fileId]
	f.Status = status
	f.ErrorMessage = errorMessage
	if processedAt != nil {
		f.ProcessedAt = processedAt
	}
	if entry != nil {
		entry.FileId = fileId
		m.history = append(m.history, *entry)
	}
	return nil
}

func (m *memStore) ListPeriods(ctx context.Context, f PeriodFilter) ([]models.ComptablePeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ComptablePeriod
	for _, p := range m.periods {
		if p.CompanyId != f.CompanyId {
			continue
		}
		if f.ClientId != "" && p.ClientId != f.ClientId {
			continue
		}
		if len(f.Statuses) > 0 && !statusIn(p.Status, f.Statuses) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) periodCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.periods)
}

func (m *memStore) fileCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

func (m *memStore) historyFor(action string) []models.FileHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.FileHistory
	for _, h := range m.history {
		if h.Action == action {
			out = append(out, h)
		}
	}
	return out
}

func statusIn(s models.ProcessingStatus, set []models.ProcessingStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// memObjects is an in-memory ObjectStore.
type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut func(key string) bool
	failAll bool
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (o *memObjects) Bucket() string { return "test-bucket" }

func (o *memObjects) Put(ctx context.Context, key string, data []byte, contentType string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failPut != nil && o.failPut(key) {
		return errors.New("put refused")
	}
	o.objects[key] = append([]byte(nil), data...)
	return nil
}

func (o *memObjects) Head(ctx context.Context, key string) (*utils.ObjectInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[key]
	if !ok {
		return nil, utils.ErrObjectNotFound
	}
	return &utils.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (o *memObjects) List(ctx context.Context, prefix string) ([]utils.ObjectInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failAll {
		return nil, errors.New("list refused")
	}
	var out []utils.ObjectInfo
	for k, v := range o.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, utils.ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (o *memObjects) Copy(ctx context.Context, sourceKey, destKey string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[sourceKey]
	if !ok {
		return utils.ErrObjectNotFound
	}
	o.objects[destKey] = data
	return nil
}

func (o *memObjects) SignDownload(ctx context.Context, key string, expires time.Duration) (*utils.SignedDownload, error) {
	return &utils.SignedDownload{
		URL:       "https://signed.example/" + key,
		Method:    "GET",
		ObjectKey: key,
		ExpiresAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(expires),
	}, nil
}

func (o *memObjects) keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.objects))
	for k := range o.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type fakeDispatcher struct {
	mu       sync.Mutex
	runId    string
	err      error
	calls    []DispatchRequest
	onCalled func()
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, req DispatchRequest) (string, error) {
	d.mu.Lock()
	d.calls = append(d.calls, req)
	hook := d.onCalled
	d.mu.Unlock()
	if hook != nil {
		hook()
	}
	if d.err != nil {
		return "", d.err
	}
	return d.runId, nil
}

func (d *fakeDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// mutexLocker serializes per client in-process.
type mutexLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *mutexLocker) Lock(ctx context.Context, clientId string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*sync.Mutex{}
	}
	m := l.locks[clientId]
	if m == nil {
		m = &sync.Mutex{}
		l.locks[clientId] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}

const (
	testCompany = "company-1"
	testClient  = "C1"
	xlsxMime    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var testCaller = utils.Caller{UserId: "user-1", Email: "comptable@example.com", CompanyId: testCompany}

type harness struct {
	store      *memStore
	objects    *memObjects
	dispatcher *fakeDispatcher
	svc        *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	store.addClient(models.Client{ID: testClient, CompanyId: testCompany, Name: "Acme"})
	objects := newMemObjects()
	dispatcher := &fakeDispatcher{runId: "run-123"}
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	svc := NewService(store, objects, dispatcher, &mutexLocker{}, nil, logger)
	svc.Now = func() time.Time { return time.Date(2024, 3, 1, 10, 30, 45, 0, time.UTC) }
	return &harness{store: store, objects: objects, dispatcher: dispatcher, svc: svc}
}

// ledgerWorkbook builds a grand livre export with the period split across rows.
func ledgerWorkbook(t *testing.T, start, end string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Grand livre des comptes"},
		{"Période du " + start},
		{"au"},
		{end},
		{"Compte", "Libellé", "Débit", "Crédit"},
		{"401000", "Fournisseurs", "120,00", ""},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func batchFiles(t *testing.T, comptesStart, comptesEnd, tiersStart, tiersEnd string) []UploadedFile {
	t.Helper()
	plain := []byte("not a ledger")
	return []UploadedFile{
		{FileType: models.FileTypeGrandLivreComptes, FileName: "grand_livre_comptes.xlsx", ContentType: xlsxMime, Data: ledgerWorkbook(t, comptesStart, comptesEnd)},
		{FileType: models.FileTypeGrandLivreTiers, FileName: "grand_livre_tiers.xlsx", ContentType: xlsxMime, Data: ledgerWorkbook(t, tiersStart, tiersEnd)},
		{FileType: models.FileTypePlanComptes, FileName: "plan_comptable.xlsx", ContentType: xlsxMime, Data: plain},
		{FileType: models.FileTypePlanTiers, FileName: "plan_tiers.xlsx", ContentType: xlsxMime, Data: plain},
		{FileType: models.FileTypeCodeJournal, FileName: "journaux.XLSX", ContentType: xlsxMime, Data: plain},
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func requireCode(t *testing.T, err error, code string) *Error {
	t.Helper()
	require.Error(t, err)
	var werr *Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, code, werr.Code, werr.Error())
	return werr
}
