package repository

import (
	"context"

	"meddoc-assistant/internal/domain/model"
)

// ChatHistoryRepository persists committed messages. The in-memory message
// store remains the source of truth for the live protocol; persistence is
// best-effort and read back only for history views.
type ChatHistoryRepository interface {
	SaveMessage(ctx context.Context, qx any, patientID string, message *model.ChatMessage) error
	FindByPatient(ctx context.Context, qx any, patientID string, limit int) ([]model.ChatMessage, error)
	DeleteByPatient(ctx context.Context, qx any, patientID string) error
	// CleanupOldMessages deletes messages older than the retention window.
	CleanupOldMessages(ctx context.Context, retentionDays int) (int64, error)
}
