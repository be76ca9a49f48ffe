package config

import (
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Settings are the service tunables. Infrastructure connection strings stay in
// the Connect* functions; everything the workflow reads lives here.
type Settings struct {
	AirflowAPIURL      string
	AirflowUsername    string
	AirflowPassword    string
	AirflowDagID       string
	AirflowTimeout     time.Duration
	AirflowMaxAttempts int

	StorageBucket      string
	UploadMaxFileBytes int64
	DownloadURLTTL     time.Duration

	ClientLockTTL time.Duration

	OutboxPollInterval time.Duration
	OutboxMaxAttempts  int

	RateLimitEnabled     bool
	RateLimitMaxRequests int64
	RateLimitWindow      time.Duration
}

var (
	settings     *Settings
	settingsOnce sync.Once
)

func setSettingsDefaults(v *viper.Viper) {
	v.SetDefault("AIRFLOW_DAG_ID", "process_comptable_files")
	v.SetDefault("AIRFLOW_TIMEOUT_SECONDS", 30)
	v.SetDefault("AIRFLOW_MAX_ATTEMPTS", 3)
	v.SetDefault("UPLOAD_MAX_FILE_BYTES", 2*1024*1024)
	v.SetDefault("DOWNLOAD_URL_TTL_MINUTES", 60)
	v.SetDefault("CLIENT_LOCK_TTL_SECONDS", 30)
	v.SetDefault("OUTBOX_POLL_MS", 500)
	v.SetDefault("OUTBOX_MAX_ATTEMPTS", 20)
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_MAX_REQUESTS", 600)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
}

// LoadSettings reads the process environment (after .env was loaded by init).
func LoadSettings() *Settings {
	v := viper.New()
	setSettingsDefaults(v)
	v.AutomaticEnv()

	return &Settings{
		AirflowAPIURL:      v.GetString("AIRFLOW_API_URL"),
		AirflowUsername:    v.GetString("AIRFLOW_USERNAME"),
		AirflowPassword:    v.GetString("AIRFLOW_PASSWORD"),
		AirflowDagID:       v.GetString("AIRFLOW_DAG_ID"),
		AirflowTimeout:     time.Duration(v.GetInt("AIRFLOW_TIMEOUT_SECONDS")) * time.Second,
		AirflowMaxAttempts: v.GetInt("AIRFLOW_MAX_ATTEMPTS"),
		StorageBucket:      v.GetString("GCS_BUCKET"),
		UploadMaxFileBytes: v.GetInt64("UPLOAD_MAX_FILE_BYTES"),
		DownloadURLTTL:     time.Duration(v.GetInt("DOWNLOAD_URL_TTL_MINUTES")) * time.Minute,
		ClientLockTTL:      time.Duration(v.GetInt("CLIENT_LOCK_TTL_SECONDS")) * time.Second,
		OutboxPollInterval: time.Duration(v.GetInt("OUTBOX_POLL_MS")) * time.Millisecond,
		OutboxMaxAttempts:  v.GetInt("OUTBOX_MAX_ATTEMPTS"),

		RateLimitEnabled:     v.GetBool("RATE_LIMIT_ENABLED"),
		RateLimitMaxRequests: v.GetInt64("RATE_LIMIT_MAX_REQUESTS"),
		RateLimitWindow:      time.Duration(v.GetInt("RATE_LIMIT_WINDOW_SECONDS")) * time.Second,
	}
}

func GetSettings() *Settings {
	settingsOnce.Do(func() {
		settings = LoadSettings()
	})
	return settings
}
