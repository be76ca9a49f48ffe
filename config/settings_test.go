package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv("AIRFLOW_DAG_ID", "")
	t.Setenv("UPLOAD_MAX_FILE_BYTES", "")

	s := LoadSettings()

	assert.Equal(t, "process_comptable_files", s.AirflowDagID)
	assert.Equal(t, 30*time.Second, s.AirflowTimeout)
	assert.Equal(t, 3, s.AirflowMaxAttempts)
	assert.Equal(t, int64(2*1024*1024), s.UploadMaxFileBytes)
	assert.Equal(t, time.Hour, s.DownloadURLTTL)
	assert.Equal(t, 500*time.Millisecond, s.OutboxPollInterval)
	assert.False(t, s.RateLimitEnabled)
	assert.Equal(t, time.Minute, s.RateLimitWindow)
}

func TestLoadSettingsFromEnv(t *testing.T) {
	t.Setenv("AIRFLOW_API_URL", "http://airflow:8080/api/v1")
	t.Setenv("AIRFLOW_TIMEOUT_SECONDS", "5")
	t.Setenv("GCS_BUCKET", "ledgers")
	t.Setenv("UPLOAD_MAX_FILE_BYTES", "1024")
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "10")

	s := LoadSettings()

	assert.Equal(t, "http://airflow:8080/api/v1", s.AirflowAPIURL)
	assert.Equal(t, 5*time.Second, s.AirflowTimeout)
	assert.Equal(t, "ledgers", s.StorageBucket)
	assert.Equal(t, int64(1024), s.UploadMaxFileBytes)
	assert.True(t, s.RateLimitEnabled)
	assert.Equal(t, int64(10), s.RateLimitMaxRequests)
}
