package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/config"
)

// StorageFactory creates the ticket asset store with proper fallback configuration
type StorageFactory struct {
	config *config.Config
	logger *logrus.Logger
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config, logger *logrus.Logger) *StorageFactory {
	return &StorageFactory{config: cfg, logger: logger}
}

// CreateStorageService creates a storage service with R2 primary and local fallback
func (f *StorageFactory) CreateStorageService(ctx context.Context) StorageService {
	fallbackService := NewFallbackStorageService(f.config.Storage.LocalPath, f.config.Storage.LocalBaseURL, f.logger)

	r2Service, err := NewR2Service(ctx, f.config.R2, f.logger)
	if err != nil {
		f.logger.WithError(err).Warn("R2 unavailable, using local ticket asset storage only")
		return fallbackService
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := r2Service.HealthCheck(checkCtx); err != nil {
		f.logger.WithError(err).Warn("R2 health check failed, using local ticket asset storage only")
		return fallbackService
	}

	f.logger.WithField("bucket", f.config.R2.BucketName).Info("R2 ticket asset storage initialized")
	return NewStorageServiceWithFallback(r2Service, fallbackService, f.logger)
}

// Info describes the configured storage for health output
func (f *StorageFactory) Info() map[string]interface{} {
	return map[string]interface{}{
		"r2_configured": f.config.R2.AccessKeyID != "" && f.config.R2.SecretAccessKey != "",
		"bucket_name":   f.config.R2.BucketName,
		"fallback_path": f.config.Storage.LocalPath,
	}
}
