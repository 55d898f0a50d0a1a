// File: internal/infra/db/postgres/postgres_patient_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"meddoc-assistant/internal/domain"
	"meddoc-assistant/internal/domain/model"
	"meddoc-assistant/internal/domain/ports/repository"
)

var _ repository.PatientRepository = (*PatientRepo)(nil)

type PatientRepo struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) *PatientRepo {
	return &PatientRepo{pool: pool}
}

func (r *PatientRepo) Save(ctx context.Context, qx any, p *model.Patient) error {
	const q = `
INSERT INTO patients (id, display_name, created_at)
VALUES ($1,$2,COALESCE($3,NOW()))
ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name;`
	var err error
	switch v := qx.(type) {
	case pgx.Tx:
		_, err = v.Exec(ctx, q, p.ID, p.DisplayName, p.CreatedAt)
	case *pgxpool.Conn:
		_, err = v.Exec(ctx, q, p.ID, p.DisplayName, p.CreatedAt)
	default:
		_, err = r.pool.Exec(ctx, q, p.ID, p.DisplayName, p.CreatedAt)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("save patient: %w", err)
	}
	return nil
}

func (r *PatientRepo) FindByID(ctx context.Context, qx any, id string) (*model.Patient, error) {
	const q = `SELECT id, display_name, created_at FROM patients WHERE id = $1;`
	var p model.Patient
	err := r.pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.DisplayName, &p.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find patient: %w", err)
	}
	return &p, nil
}

func (r *PatientRepo) List(ctx context.Context, qx any) ([]*model.Patient, error) {
	const q = `SELECT id, display_name, created_at FROM patients ORDER BY display_name;`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var out []*model.Patient
	for rows.Next() {
		var p model.Patient
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
