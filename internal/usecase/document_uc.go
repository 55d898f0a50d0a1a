// File: internal/usecase/document_uc.go
package usecase

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meddoc-assistant/internal/domain"
	"meddoc-assistant/internal/domain/model"
	"meddoc-assistant/internal/domain/ports/repository"
	"meddoc-assistant/internal/infra/logging"
	"meddoc-assistant/internal/infra/metrics"
	"meddoc-assistant/internal/infra/worker"
)

var _ DocumentUseCase = (*documentUC)(nil)

// JobQueue accepts background tasks (text extraction after upload).
type JobQueue interface {
	Submit(task worker.Task) error
}

type UploadRequest struct {
	PatientID string
	Type      model.DocumentType
	Title     string
	FileName  string
	Size      int64
	Body      io.Reader
}

type DocumentUseCase interface {
	Upload(ctx context.Context, req UploadRequest) (*model.Document, error)
	Get(ctx context.Context, id string) (*model.Document, error)
	ListByPatient(ctx context.Context, patientID string) ([]*model.Document, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, q model.SearchQuery) ([]model.SearchResult, error)
}

type documentUC struct {
	docs     repository.DocumentRepository
	patients repository.PatientRepository
	jobs     JobQueue
	dir      string
	maxBytes int64
	log      *zerolog.Logger
}

func NewDocumentUseCase(
	docs repository.DocumentRepository,
	patients repository.PatientRepository,
	jobs JobQueue,
	uploadDir string,
	maxUploadMB int64,
	logger *zerolog.Logger,
) *documentUC {
	return &documentUC{
		docs:     docs,
		patients: patients,
		jobs:     jobs,
		dir:      uploadDir,
		maxBytes: maxUploadMB * 1024 * 1024,
		log:      logger,
	}
}

func (d *documentUC) Upload(ctx context.Context, req UploadRequest) (*model.Document, error) {
	defer logging.TraceDuration(logging.With(ctx, d.log), "DocumentUC.Upload")()

	req.Title = strings.TrimSpace(req.Title)
	if req.PatientID == "" || req.Title == "" || req.FileName == "" {
		return nil, domain.ErrInvalidArgument
	}
	if req.Type == "" {
		req.Type = model.DocOtherNotes
	}
	if req.Size > d.maxBytes {
		return nil, domain.ErrInvalidArgument
	}
	if !allowedUpload(req.FileName) {
		return nil, domain.ErrUnsupportedMedia
	}
	if _, err := d.patients.FindByID(ctx, nil, req.PatientID); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	path := filepath.Join(d.dir, req.PatientID, id+filepath.Ext(req.FileName))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("storage dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("storage create: %w", err)
	}
	written, err := io.Copy(f, io.LimitReader(req.Body, d.maxBytes+1))
	cerr := f.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("storage write: %w", err)
	}
	if written > d.maxBytes {
		_ = os.Remove(path)
		return nil, domain.ErrInvalidArgument
	}

	doc := &model.Document{
		ID:          id,
		PatientID:   req.PatientID,
		Type:        req.Type,
		Title:       req.Title,
		FileName:    req.FileName,
		StoragePath: path,
		SizeBytes:   written,
	}
	if err := d.docs.Save(ctx, nil, doc); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	metrics.IncDocumentUploaded(string(req.Type))

	d.enqueueExtraction(doc)
	return doc, nil
}

// enqueueExtraction indexes text-like uploads asynchronously. Binary formats
// are searchable by title only until a dedicated extractor handles them.
func (d *documentUC) enqueueExtraction(doc *model.Document) {
	if d.jobs == nil || !textLike(doc.FileName) {
		return
	}
	id, path := doc.ID, doc.StoragePath
	err := d.jobs.Submit(func(ctx context.Context) error {
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("extract read %s: %w", id, err)
		}
		if !utf8.Valid(b) {
			return fmt.Errorf("extract %s: not valid utf-8", id)
		}
		if err := d.docs.SetContentText(ctx, nil, id, string(b)); err != nil {
			return fmt.Errorf("extract index %s: %w", id, err)
		}
		metrics.IncDocumentIndexed()
		return nil
	})
	if err != nil {
		d.log.Warn().Err(err).Str("document_id", id).Msg("extraction not queued")
	}
}

func textLike(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".csv":
		return true
	}
	return false
}

func allowedUpload(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".csv", ".pdf", ".png", ".jpg", ".jpeg", ".dcm":
		return true
	}
	return false
}

func (d *documentUC) Get(ctx context.Context, id string) (*model.Document, error) {
	return d.docs.FindByID(ctx, nil, id)
}

func (d *documentUC) ListByPatient(ctx context.Context, patientID string) ([]*model.Document, error) {
	if patientID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return d.docs.FindByPatient(ctx, nil, patientID)
}

func (d *documentUC) Delete(ctx context.Context, id string) error {
	doc, err := d.docs.FindByID(ctx, nil, id)
	if err != nil {
		return err
	}
	if err := d.docs.Delete(ctx, nil, id); err != nil {
		return err
	}
	if doc.StoragePath != "" {
		if err := os.Remove(doc.StoragePath); err != nil && !os.IsNotExist(err) {
			d.log.Warn().Err(err).Str("document_id", id).Msg("remove stored file")
		}
	}
	return nil
}

func (d *documentUC) Search(ctx context.Context, q model.SearchQuery) ([]model.SearchResult, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, domain.ErrInvalidArgument
	}
	if q.Limit <= 0 || q.Limit > 50 {
		q.Limit = 20
	}
	results, err := d.docs.Search(ctx, nil, q)
	if err != nil {
		return nil, err
	}
	metrics.ObserveSearch(len(results))
	return results, nil
}
