// File: internal/infra/db/postgres/postgres_document_repo.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"meddoc-assistant/internal/domain"
	"meddoc-assistant/internal/domain/model"
	"meddoc-assistant/internal/domain/ports/repository"
)

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

type DocumentRepo struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

func (r *DocumentRepo) Save(ctx context.Context, qx any, d *model.Document) error {
	const q = `
INSERT INTO documents (id, patient_id, doc_type, title, file_name, storage_path, size_bytes, content_text, uploaded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,COALESCE($9,NOW()));`
	var err error
	switch v := qx.(type) {
	case pgx.Tx:
		_, err = v.Exec(ctx, q, d.ID, d.PatientID, string(d.Type), d.Title, d.FileName, d.StoragePath, d.SizeBytes, d.ContentText, d.UploadedAt)
	case *pgxpool.Conn:
		_, err = v.Exec(ctx, q, d.ID, d.PatientID, string(d.Type), d.Title, d.FileName, d.StoragePath, d.SizeBytes, d.ContentText, d.UploadedAt)
	default:
		_, err = r.pool.Exec(ctx, q, d.ID, d.PatientID, string(d.Type), d.Title, d.FileName, d.StoragePath, d.SizeBytes, d.ContentText, d.UploadedAt)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

const docColumns = `id, patient_id, doc_type, title, file_name, storage_path, size_bytes, content_text, uploaded_at, indexed_at`

func (r *DocumentRepo) FindByID(ctx context.Context, qx any, id string) (*model.Document, error) {
	q := `SELECT ` + docColumns + ` FROM documents WHERE id = $1;`
	d, err := scanDocument(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	return d, nil
}

func (r *DocumentRepo) FindByPatient(ctx context.Context, qx any, patientID string) ([]*model.Document, error) {
	q := `SELECT ` + docColumns + ` FROM documents WHERE patient_id = $1 ORDER BY uploaded_at DESC;`
	rows, err := r.pool.Query(ctx, q, patientID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []*model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DocumentRepo) Delete(ctx context.Context, qx any, id string) error {
	const q = `DELETE FROM documents WHERE id = $1;`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) SetContentText(ctx context.Context, qx any, id, text string) error {
	const q = `UPDATE documents SET content_text = $2, indexed_at = NOW() WHERE id = $1;`
	tag, err := r.pool.Exec(ctx, q, id, text)
	if err != nil {
		return fmt.Errorf("set content text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Search ranks title+content against the query with Postgres full text
// search. ts_rank is unbounded above, so the raw rank is squashed into
// [0,1) with r/(r+1).
func (r *DocumentRepo) Search(ctx context.Context, qx any, sq model.SearchQuery) ([]model.SearchResult, error) {
	const q = `
SELECT ` + docColumns + `,
  ts_rank(to_tsvector('english', title || ' ' || COALESCE(content_text,'')),
          plainto_tsquery('english', $1)) AS rank
FROM documents
WHERE to_tsvector('english', title || ' ' || COALESCE(content_text,'')) @@ plainto_tsquery('english', $1)
  AND ($2 = '' OR patient_id = $2)
  AND ($3 = '' OR doc_type = $3)
ORDER BY rank DESC
LIMIT $4;`
	rows, err := r.pool.Query(ctx, q, sq.Text, sq.PatientID, string(sq.Type), sq.Limit)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var out []model.SearchResult
	for rows.Next() {
		var d model.Document
		var docType string
		var contentText sql.NullString
		var indexedAt sql.NullTime
		var rank float64
		if err := rows.Scan(&d.ID, &d.PatientID, &docType, &d.Title, &d.FileName, &d.StoragePath,
			&d.SizeBytes, &contentText, &d.UploadedAt, &indexedAt, &rank); err != nil {
			return nil, err
		}
		d.Type = model.DocumentType(docType)
		d.ContentText = contentText.String
		if indexedAt.Valid {
			d.IndexedAt = indexedAt.Time
		}
		out = append(out, model.SearchResult{Document: &d, Score: rank / (rank + 1)})
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var d model.Document
	var docType string
	var contentText sql.NullString
	var indexedAt sql.NullTime
	err := row.Scan(&d.ID, &d.PatientID, &docType, &d.Title, &d.FileName, &d.StoragePath,
		&d.SizeBytes, &contentText, &d.UploadedAt, &indexedAt)
	if err != nil {
		return nil, err
	}
	d.Type = model.DocumentType(docType)
	d.ContentText = contentText.String
	if indexedAt.Valid {
		d.IndexedAt = indexedAt.Time
	}
	return &d, nil
}
