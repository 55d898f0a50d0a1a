package repository

import (
	"context"

	"meddoc-assistant/internal/domain/model"
)

type DocumentRepository interface {
	Save(ctx context.Context, qx any, doc *model.Document) error
	FindByID(ctx context.Context, qx any, id string) (*model.Document, error)
	FindByPatient(ctx context.Context, qx any, patientID string) ([]*model.Document, error)
	Delete(ctx context.Context, qx any, id string) error
	// SetContentText stores extracted text and marks the document indexed.
	SetContentText(ctx context.Context, qx any, id, text string) error
	// Search ranks documents against a free-text query; scores are in [0,1].
	Search(ctx context.Context, qx any, q model.SearchQuery) ([]model.SearchResult, error)
}
