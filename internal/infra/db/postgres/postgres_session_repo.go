// File: internal/infra/db/postgres/postgres_session_repo.go
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"meddoc-assistant/internal/domain"
	"meddoc-assistant/internal/domain/model"
	"meddoc-assistant/internal/domain/ports/repository"
)

var _ repository.ChatSessionRepository = (*ChatSessionRepo)(nil)

type ChatSessionRepo struct {
	pool *pgxpool.Pool
}

func NewChatSessionRepo(pool *pgxpool.Pool) *ChatSessionRepo {
	return &ChatSessionRepo{pool: pool}
}

func (r *ChatSessionRepo) Save(ctx context.Context, qx any, s *model.ChatSession) error {
	const q = `
INSERT INTO chat_sessions (id, user_id, document_id, patient_id, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,COALESCE($6,NOW()),COALESCE($7,NOW()))
ON CONFLICT (id) DO UPDATE SET
  document_id = EXCLUDED.document_id,
  patient_id = EXCLUDED.patient_id,
  status = EXCLUDED.status,
  updated_at = EXCLUDED.updated_at;`
	var err error
	switch v := qx.(type) {
	case pgx.Tx:
		_, err = v.Exec(ctx, q, s.ID, s.UserID, s.DocumentID, s.PatientID, string(s.Status), s.CreatedAt, s.UpdatedAt)
	case *pgxpool.Conn:
		_, err = v.Exec(ctx, q, s.ID, s.UserID, s.DocumentID, s.PatientID, string(s.Status), s.CreatedAt, s.UpdatedAt)
	default:
		_, err = r.pool.Exec(ctx, q, s.ID, s.UserID, s.DocumentID, s.PatientID, string(s.Status), s.CreatedAt, s.UpdatedAt)
	}
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *ChatSessionRepo) FindByID(ctx context.Context, qx any, id string) (*model.ChatSession, error) {
	const q = `
SELECT id, user_id, document_id, patient_id, status, created_at, updated_at
FROM chat_sessions WHERE id = $1;`
	return r.scanOne(ctx, q, id)
}

func (r *ChatSessionRepo) FindActiveByUser(ctx context.Context, qx any, userID string) (*model.ChatSession, error) {
	const q = `
SELECT id, user_id, document_id, patient_id, status, created_at, updated_at
FROM chat_sessions
WHERE user_id = $1 AND status = 'active'
ORDER BY created_at DESC LIMIT 1;`
	return r.scanOne(ctx, q, userID)
}

func (r *ChatSessionRepo) scanOne(ctx context.Context, q, arg string) (*model.ChatSession, error) {
	var s model.ChatSession
	var status string
	err := r.pool.QueryRow(ctx, q, arg).Scan(&s.ID, &s.UserID, &s.DocumentID, &s.PatientID, &status, &s.CreatedAt, &s.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	s.Status = model.ChatSessionStatus(status)
	return &s, nil
}

func (r *ChatSessionRepo) UpdateStatus(ctx context.Context, qx any, sessionID string, status model.ChatSessionStatus) error {
	const q = `UPDATE chat_sessions SET status = $2, updated_at = NOW() WHERE id = $1;`
	var err error
	switch v := qx.(type) {
	case pgx.Tx:
		_, err = v.Exec(ctx, q, sessionID, string(status))
	case *pgxpool.Conn:
		_, err = v.Exec(ctx, q, sessionID, string(status))
	default:
		_, err = r.pool.Exec(ctx, q, sessionID, string(status))
	}
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

func (r *ChatSessionRepo) Delete(ctx context.Context, qx any, id string) error {
	const q = `DELETE FROM chat_sessions WHERE id = $1;`
	var err error
	switch v := qx.(type) {
	case pgx.Tx:
		_, err = v.Exec(ctx, q, id)
	case *pgxpool.Conn:
		_, err = v.Exec(ctx, q, id)
	default:
		_, err = r.pool.Exec(ctx, q, id)
	}
	return err
}
