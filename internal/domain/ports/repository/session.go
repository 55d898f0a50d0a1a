package repository

import (
	"context"

	"meddoc-assistant/internal/domain/model"
)

// -----------------------------
// Chat Sessions
// -----------------------------

type ChatSessionRepository interface {
	Save(ctx context.Context, qx any, session *model.ChatSession) error
	FindByID(ctx context.Context, qx any, id string) (*model.ChatSession, error)
	FindActiveByUser(ctx context.Context, qx any, userID string) (*model.ChatSession, error)
	UpdateStatus(ctx context.Context, qx any, sessionID string, status model.ChatSessionStatus) error
	Delete(ctx context.Context, qx any, id string) error
}
