// File: internal/usecase/patient_uc.go
package usecase

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"meddoc-assistant/internal/domain"
	"meddoc-assistant/internal/domain/model"
	"meddoc-assistant/internal/domain/ports/repository"
)

var _ PatientUseCase = (*patientUC)(nil)

type PatientUseCase interface {
	Create(ctx context.Context, displayName string) (*model.Patient, error)
	Get(ctx context.Context, id string) (*model.Patient, error)
	List(ctx context.Context) ([]*model.Patient, error)
}

type patientUC struct {
	patients repository.PatientRepository
}

func NewPatientUseCase(patients repository.PatientRepository) *patientUC {
	return &patientUC{patients: patients}
}

func (p *patientUC) Create(ctx context.Context, displayName string) (*model.Patient, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, domain.ErrInvalidArgument
	}
	patient := model.NewPatient(uuid.NewString(), displayName)
	if err := p.patients.Save(ctx, nil, patient); err != nil {
		return nil, err
	}
	return patient, nil
}

func (p *patientUC) Get(ctx context.Context, id string) (*model.Patient, error) {
	return p.patients.FindByID(ctx, nil, id)
}

func (p *patientUC) List(ctx context.Context) ([]*model.Patient, error) {
	return p.patients.List(ctx, nil)
}
