// File: internal/infra/db/postgres/postgres_chat_history_repo.go
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"meddoc-assistant/internal/domain/model"
	"meddoc-assistant/internal/domain/ports/repository"
	"meddoc-assistant/internal/infra/security"
)

// ChatHistoryRepo persists committed messages with encryption-at-rest.
var _ repository.ChatHistoryRepository = (*ChatHistoryRepo)(nil)

type ChatHistoryRepo struct {
	pool          *pgxpool.Pool
	encryptionSvc *security.EncryptionService
}

// NewChatHistoryRepo wires the repo; encryptionSvc may be nil to store
// plaintext (dev mode only).
func NewChatHistoryRepo(pool *pgxpool.Pool, encryptionSvc *security.EncryptionService) *ChatHistoryRepo {
	return &ChatHistoryRepo{pool: pool, encryptionSvc: encryptionSvc}
}

func (r *ChatHistoryRepo) SaveMessage(ctx context.Context, qx any, patientID string, m *model.ChatMessage) error {
	payload := m.Content
	encFlag := false
	if r.encryptionSvc != nil {
		enc, err := r.encryptionSvc.Encrypt(m.Content)
		if err != nil {
			return fmt.Errorf("encrypt msg: %w", err)
		}
		payload = enc
		encFlag = true
	}

	const q = `
INSERT INTO chat_messages (id, session_id, patient_id, role, content, encrypted, created_at)
VALUES ($1,$2,$3,$4,$5,$6,COALESCE($7,NOW()));`
	var err error
	switch v := qx.(type) {
	case pgx.Tx:
		_, err = v.Exec(ctx, q, m.ID, m.SessionID, patientID, string(m.Role), payload, encFlag, m.Timestamp)
	case *pgxpool.Conn:
		_, err = v.Exec(ctx, q, m.ID, m.SessionID, patientID, string(m.Role), payload, encFlag, m.Timestamp)
	default:
		_, err = r.pool.Exec(ctx, q, m.ID, m.SessionID, patientID, string(m.Role), payload, encFlag, m.Timestamp)
	}
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (r *ChatHistoryRepo) FindByPatient(ctx context.Context, qx any, patientID string, limit int) ([]model.ChatMessage, error) {
	const q = `
SELECT id, session_id, role, content, encrypted, created_at
FROM (
  SELECT id, session_id, role, content, encrypted, created_at
  FROM chat_messages WHERE patient_id = $1
  ORDER BY created_at DESC LIMIT $2
) t ORDER BY created_at ASC;`
	rows, err := r.pool.Query(ctx, q, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer rows.Close()

	var out []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		var role string
		var encrypted bool
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &encrypted, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Role = model.MessageRole(role)
		if encrypted && r.encryptionSvc != nil {
			pt, err := r.encryptionSvc.Decrypt(m.Content)
			if err != nil {
				return nil, fmt.Errorf("decrypt msg %s: %w", m.ID, err)
			}
			m.Content = pt
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *ChatHistoryRepo) DeleteByPatient(ctx context.Context, qx any, patientID string) error {
	const q = `DELETE FROM chat_messages WHERE patient_id = $1;`
	var err error
	switch v := qx.(type) {
	case pgx.Tx:
		_, err = v.Exec(ctx, q, patientID)
	case *pgxpool.Conn:
		_, err = v.Exec(ctx, q, patientID)
	default:
		_, err = r.pool.Exec(ctx, q, patientID)
	}
	return err
}

func (r *ChatHistoryRepo) CleanupOldMessages(ctx context.Context, retentionDays int) (int64, error) {
	const q = `DELETE FROM chat_messages WHERE created_at < NOW() - ($1 || ' days')::interval;`
	tag, err := r.pool.Exec(ctx, q, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("cleanup messages: %w", err)
	}
	return tag.RowsAffected(), nil
}
