package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/AngeKano/repfi/config"
	"github.com/sirupsen/logrus"
)

var ErrDispatcherNotConfigured = errors.New("airflow configuration is missing")

// AirflowDispatcher starts one DAG run per batch through the Airflow REST API.
type AirflowDispatcher struct {
	BaseURL     string
	Username    string
	Password    string
	DagID       string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	HTTP        *http.Client
	Logger      *logrus.Logger
}

func NewAirflowDispatcher(settings *config.Settings, logger *logrus.Logger) *AirflowDispatcher {
	d := &AirflowDispatcher{
		BaseURL:     strings.TrimRight(strings.TrimSpace(settings.AirflowAPIURL), "/"),
		Username:    settings.AirflowUsername,
		Password:    settings.AirflowPassword,
		DagID:       settings.AirflowDagID,
		Timeout:     settings.AirflowTimeout,
		MaxAttempts: settings.AirflowMaxAttempts,
		Backoff:     500 * time.Millisecond,
		HTTP:        &http.Client{},
		Logger:      logger,
	}
	if d.DagID == "" {
		d.DagID = "process_comptable_files"
	}
	if d.Timeout <= 0 {
		d.Timeout = 30 * time.Second
	}
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = 1
	}
	return d
}

type dagRunConf struct {
	BatchId    string `json:"batch_id"`
	ClientId   string `json:"client_id"`
	ClientName string `json:"client_name"`
	S3Prefix   string `json:"s3_prefix"`
	S3Bucket   string `json:"s3_bucket"`
}

type dagRunRequest struct {
	Conf dagRunConf `json:"conf"`
}

type dagRunResponse struct {
	DagRunId string `json:"dag_run_id"`
	Detail   string `json:"detail"`
}

// retryableDispatchError marks failures where Airflow cannot have accepted the run.
type retryableDispatchError struct{ err error }

func (e *retryableDispatchError) Error() string { return e.err.Error() }
func (e *retryableDispatchError) Unwrap() error { return e.err }

func (d *AirflowDispatcher) Dispatch(ctx context.Context, req DispatchRequest) (string, error) {
	if d.BaseURL == "" || d.Username == "" || d.Password == "" {
		return "", ErrDispatcherNotConfigured
	}
	body, err := json.Marshal(dagRunRequest{Conf: dagRunConf{
		BatchId:    req.BatchId,
		ClientId:   req.ClientId,
		ClientName: req.ClientName,
		S3Prefix:   req.StoragePrefix,
		S3Bucket:   req.Bucket,
	}})
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/dags/%s/dagRuns", d.BaseURL, d.DagID)

	var lastErr error
	for attempt := 1; attempt <= d.MaxAttempts; attempt++ {
		runId, err := d.post(ctx, endpoint, body)
		if err == nil {
			return runId, nil
		}
		lastErr = err
		var retryable *retryableDispatchError
		if !errors.As(err, &retryable) || attempt == d.MaxAttempts {
			break
		}
		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":    "AirflowDispatcher",
				"batch_id": req.BatchId,
				"attempt":  attempt,
			}).Warn("airflow dispatch retry: " + err.Error())
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(d.Backoff * time.Duration(1<<(attempt-1))):
		}
	}
	return "", lastErr
}

func (d *AirflowDispatcher) post(ctx context.Context, endpoint string, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.SetBasicAuth(d.Username, d.Password)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := d.HTTP.Do(httpReq)
	if err != nil {
		if isDialFailure(err) {
			return "", &retryableDispatchError{err: err}
		}
		return "", fmt.Errorf("airflow request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var parsed dagRunResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := parsed.Detail
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		err := fmt.Errorf("airflow api error %d: %s", resp.StatusCode, detail)
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return "", &retryableDispatchError{err: err}
		}
		return "", err
	}
	if parsed.DagRunId == "" {
		return "", errors.New("airflow response has no dag_run_id")
	}
	return parsed.DagRunId, nil
}

// isDialFailure is true when the connection was never established. Timeouts are excluded:
// the request may have reached Airflow.
func isDialFailure(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
