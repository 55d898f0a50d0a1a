package repository

import (
	"context"

	"meddoc-assistant/internal/domain/model"
)

type PatientRepository interface {
	Save(ctx context.Context, qx any, patient *model.Patient) error
	FindByID(ctx context.Context, qx any, id string) (*model.Patient, error)
	List(ctx context.Context, qx any) ([]*model.Patient, error)
}
