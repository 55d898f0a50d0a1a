//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"meddoc-assistant/internal/domain"
	"meddoc-assistant/internal/domain/model"
)

func savePatient(t *testing.T, id, name string) {
	t.Helper()
	repo := NewPatientRepo(testPool)
	if err := repo.Save(context.Background(), nil, &model.Patient{ID: id, DisplayName: name, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("failed to save patient: %v", err)
	}
}

func saveDoc(t *testing.T, repo *DocumentRepo, patientID, title, content string) *model.Document {
	t.Helper()
	doc := &model.Document{
		ID:          uuid.NewString(),
		PatientID:   patientID,
		Type:        model.DocLabReport,
		Title:       title,
		FileName:    "report.txt",
		StoragePath: "/tmp/" + title,
		UploadedAt:  time.Now(),
	}
	if err := repo.Save(context.Background(), nil, doc); err != nil {
		t.Fatalf("failed to save document: %v", err)
	}
	if content != "" {
		if err := repo.SetContentText(context.Background(), nil, doc.ID, content); err != nil {
			t.Fatalf("failed to set content text: %v", err)
		}
	}
	return doc
}

func TestDocumentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewDocumentRepo(testPool)

	t.Run("save, find and delete round trip", func(t *testing.T) {
		cleanup(t)
		savePatient(t, "p1", "Jane Doe")

		doc := saveDoc(t, repo, "p1", "CBC Panel", "")
		found, err := repo.FindByID(ctx, nil, doc.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if found.Title != "CBC Panel" || found.PatientID != "p1" {
			t.Fatalf("round trip lost fields: %+v", found)
		}
		if !found.IndexedAt.IsZero() {
			t.Fatal("document without content must not be marked indexed")
		}

		if err := repo.Delete(ctx, nil, doc.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.FindByID(ctx, nil, doc.ID); err != domain.ErrNotFound {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("full text search ranks and scopes", func(t *testing.T) {
		cleanup(t)
		savePatient(t, "p1", "Jane Doe")
		savePatient(t, "p2", "John Smith")

		hemo := saveDoc(t, repo, "p1", "CBC Panel", "Hemoglobin 13.5 g/dL within normal range. Hemoglobin stable.")
		saveDoc(t, repo, "p1", "Lipid Panel", "Cholesterol 180 mg/dL")
		saveDoc(t, repo, "p2", "CBC Panel", "Hemoglobin 11.0 g/dL low")

		results, err := repo.Search(ctx, nil, model.SearchQuery{Text: "hemoglobin", PatientID: "p1", Limit: 10})
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("patient filter broken, got %d results", len(results))
		}
		if results[0].Document.ID != hemo.ID {
			t.Fatalf("wrong document returned: %+v", results[0].Document)
		}
		if s := results[0].Score; s <= 0 || s >= 1 {
			t.Fatalf("score must be in (0,1), got %f", s)
		}

		all, err := repo.Search(ctx, nil, model.SearchQuery{Text: "hemoglobin", Limit: 10})
		if err != nil {
			t.Fatalf("unscoped search failed: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("expected both patients' matches, got %d", len(all))
		}
	})
}
