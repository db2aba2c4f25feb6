/**
 * @description
 * Scheduled job implementations for the treasury-service.
 */
package app

import (
	"context"
	"log/slog"
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	service   *Service
	logger    *slog.Logger
	batchSize int
}

// NewJobs creates a new Jobs runner.
func NewJobs(service *Service, logger *slog.Logger, batchSize int) *Jobs {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Jobs{
		service:   service,
		logger:    logger,
		batchSize: batchSize,
	}
}

// ProcessAutoSend runs one bounded auto-send batch. The scheduler may fire
// this again while a run is still in flight; the guarded writes underneath
// make the overlap harmless.
func (j *Jobs) ProcessAutoSend() {
	j.logger.Info("starting auto-send batch job")
	ctx := context.Background()

	report, err := j.service.RunAutoSendBatch(ctx, j.batchSize)
	if err != nil {
		j.logger.Error("auto-send batch run failed", "error", err)
		return
	}

	if report.Failed > 0 {
		j.logger.Warn("auto-send batch finished with failures", "processed", report.Processed, "failed", report.Failed, "errors", report.Errors)
		return
	}
	j.logger.Info("auto-send batch job finished", "processed", report.Processed)
}
