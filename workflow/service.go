package workflow

import (
	"context"
	"time"

	"github.com/AngeKano/repfi/config"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/AngeKano/repfi/workflow")

// Service runs the comptable batch workflow. Handles are built once at startup and injected.
type Service struct {
	Store      Store
	Objects    ObjectStore
	Dispatcher Dispatcher
	Locker     ClientLocker
	Logger     *logrus.Logger

	MaxFileBytes   int64
	DownloadURLTTL time.Duration

	Now func() time.Time
}

func NewService(store Store, objects ObjectStore, dispatcher Dispatcher, locker ClientLocker, settings *config.Settings, logger *logrus.Logger) *Service {
	s := &Service{
		Store:          store,
		Objects:        objects,
		Dispatcher:     dispatcher,
		Locker:         locker,
		Logger:         logger,
		MaxFileBytes:   2 * 1024 * 1024,
		DownloadURLTTL: time.Hour,
		Now:            func() time.Time { return time.Now().UTC() },
	}
	if settings != nil {
		if settings.UploadMaxFileBytes > 0 {
			s.MaxFileBytes = settings.UploadMaxFileBytes
		}
		if settings.DownloadURLTTL > 0 {
			s.DownloadURLTTL = settings.DownloadURLTTL
		}
	}
	if s.Logger == nil {
		s.Logger = config.GetLogger()
	}
	if s.Locker == nil {
		s.Locker = noopLocker{}
	}
	return s
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) logError(funcName, message string, data any, err error) {
	config.LogError(s.Logger, "Workflow", funcName, message, data, err)
}

type noopLocker struct{}

func (noopLocker) Lock(ctx context.Context, clientId string) (func(), error) {
	return func() {}, nil
}
