package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAirflow(url string) *AirflowDispatcher {
	return &AirflowDispatcher{
		BaseURL:     url,
		Username:    "airflow",
		Password:    "secret",
		DagID:       "process_comptable_files",
		Timeout:     time.Second,
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		HTTP:        &http.Client{},
	}
}

var sampleDispatch = DispatchRequest{
	BatchId:       "batch-1",
	ClientId:      "C1",
	ClientName:    "Acme",
	StoragePrefix: "C1/comptable/2024/01-01-2024_31-01-2024/",
	Bucket:        "repfi-files",
}

func TestAirflowDispatcher_Success(t *testing.T) {
	var got dagRunRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/dags/process_comptable_files/dagRuns", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "airflow", user)
		assert.Equal(t, "secret", pass)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"dag_run_id":"manual__2024-03-01"}`))
	}))
	defer srv.Close()

	runId, err := testAirflow(srv.URL).Dispatch(context.Background(), sampleDispatch)
	require.NoError(t, err)
	assert.Equal(t, "manual__2024-03-01", runId)
	assert.Equal(t, dagRunConf{
		BatchId:    "batch-1",
		ClientId:   "C1",
		ClientName: "Acme",
		S3Prefix:   sampleDispatch.StoragePrefix,
		S3Bucket:   "repfi-files",
	}, got.Conf)
}

func TestAirflowDispatcher_RetriesUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"dag_run_id":"run-2"}`))
	}))
	defer srv.Close()

	runId, err := testAirflow(srv.URL).Dispatch(context.Background(), sampleDispatch)
	require.NoError(t, err)
	assert.Equal(t, "run-2", runId)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestAirflowDispatcher_ServerErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"dag paused"}`))
	}))
	defer srv.Close()

	_, err := testAirflow(srv.URL).Dispatch(context.Background(), sampleDispatch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "dag paused")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestAirflowDispatcher_MissingRunId(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := testAirflow(srv.URL).Dispatch(context.Background(), sampleDispatch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dag_run_id")
}

func TestAirflowDispatcher_TimeoutIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	d := testAirflow(srv.URL)
	d.Timeout = 50 * time.Millisecond
	_, err := d.Dispatch(context.Background(), sampleDispatch)
	require.Error(t, err)
	var retryable *retryableDispatchError
	assert.False(t, errors.As(err, &retryable))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestAirflowDispatcher_DialFailureIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := testAirflow(url).Dispatch(context.Background(), sampleDispatch)
	require.Error(t, err)
	var retryable *retryableDispatchError
	assert.True(t, errors.As(err, &retryable))
}

func TestAirflowDispatcher_NotConfigured(t *testing.T) {
	d := testAirflow("")
	_, err := d.Dispatch(context.Background(), sampleDispatch)
	assert.ErrorIs(t, err, ErrDispatcherNotConfigured)
}
