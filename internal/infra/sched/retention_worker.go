package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"meddoc-assistant/internal/domain/ports/repository"
	"meddoc-assistant/internal/infra/metrics"
)

// RetentionWorker periodically deletes chat messages older than the
// configured retention window.
type RetentionWorker struct {
	interval      time.Duration
	retentionDays int
	history       repository.ChatHistoryRepository
	log           *zerolog.Logger
}

func NewRetentionWorker(interval time.Duration, retentionDays int, history repository.ChatHistoryRepository, logger *zerolog.Logger) *RetentionWorker {
	wlog := logger.With().Str("component", "RetentionWorker").Logger()
	return &RetentionWorker{
		interval:      interval,
		retentionDays: retentionDays,
		history:       history,
		log:           &wlog,
	}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	w.log.Info().Int("retention_days", w.retentionDays).Msg("Starting retention worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping retention worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.history.CleanupOldMessages(ctx, w.retentionDays)
			if err != nil {
				w.log.Error().Err(err).Msg("retention worker error")
			}
			if n > 0 {
				metrics.AddHistoryCleaned(n)
				w.log.Info().Int64("count", n).Msg("old chat messages removed")
			}
		}
	}
}
