//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"meddoc-assistant/internal/domain/model"
	"meddoc-assistant/internal/infra/security"
)

func TestChatHistoryRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	encSvc, err := security.NewEncryptionService("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("failed to create encryption service: %v", err)
	}
	repo := NewChatHistoryRepo(testPool, encSvc)

	t.Run("messages round trip encrypted", func(t *testing.T) {
		cleanup(t)
		savePatient(t, "p1", "Jane Doe")

		for _, content := range []string{"what does this say?", "It is a normal CBC."} {
			msg := &model.ChatMessage{
				ID:        uuid.NewString(),
				Role:      model.RoleUser,
				Content:   content,
				Timestamp: time.Now(),
			}
			if err := repo.SaveMessage(ctx, nil, "p1", msg); err != nil {
				t.Fatalf("SaveMessage failed: %v", err)
			}
		}

		// Ciphertext at rest, plaintext after read.
		var raw string
		if err := testPool.QueryRow(ctx, `SELECT content FROM chat_messages LIMIT 1`).Scan(&raw); err != nil {
			t.Fatalf("raw read failed: %v", err)
		}
		if raw == "what does this say?" || raw == "It is a normal CBC." {
			t.Fatal("message content stored unencrypted")
		}

		msgs, err := repo.FindByPatient(ctx, nil, "p1", 10)
		if err != nil {
			t.Fatalf("FindByPatient failed: %v", err)
		}
		if len(msgs) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(msgs))
		}
		if msgs[0].Content != "what does this say?" {
			t.Fatalf("oldest first expected, decrypted; got %q", msgs[0].Content)
		}
	})

	t.Run("delete is patient scoped", func(t *testing.T) {
		cleanup(t)
		savePatient(t, "p1", "Jane Doe")
		savePatient(t, "p2", "John Smith")

		for _, pid := range []string{"p1", "p2"} {
			msg := &model.ChatMessage{ID: uuid.NewString(), Role: model.RoleUser, Content: "x", Timestamp: time.Now()}
			if err := repo.SaveMessage(ctx, nil, pid, msg); err != nil {
				t.Fatalf("SaveMessage failed: %v", err)
			}
		}

		if err := repo.DeleteByPatient(ctx, nil, "p1"); err != nil {
			t.Fatalf("DeleteByPatient failed: %v", err)
		}
		if msgs, _ := repo.FindByPatient(ctx, nil, "p1", 10); len(msgs) != 0 {
			t.Fatalf("p1 should be empty, got %d", len(msgs))
		}
		if msgs, _ := repo.FindByPatient(ctx, nil, "p2", 10); len(msgs) != 1 {
			t.Fatalf("p2 should be untouched, got %d", len(msgs))
		}
	})

	t.Run("cleanup removes only old messages", func(t *testing.T) {
		cleanup(t)
		savePatient(t, "p1", "Jane Doe")

		recent := &model.ChatMessage{ID: uuid.NewString(), Role: model.RoleUser, Content: "new", Timestamp: time.Now()}
		if err := repo.SaveMessage(ctx, nil, "p1", recent); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
		// Backdate one row past the retention window.
		old := &model.ChatMessage{ID: uuid.NewString(), Role: model.RoleUser, Content: "old", Timestamp: time.Now()}
		if err := repo.SaveMessage(ctx, nil, "p1", old); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
		if _, err := testPool.Exec(ctx, `UPDATE chat_messages SET created_at = NOW() - INTERVAL '100 days' WHERE id = $1`, old.ID); err != nil {
			t.Fatalf("backdate failed: %v", err)
		}

		n, err := repo.CleanupOldMessages(ctx, 90)
		if err != nil {
			t.Fatalf("CleanupOldMessages failed: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 removed, got %d", n)
		}
		if msgs, _ := repo.FindByPatient(ctx, nil, "p1", 10); len(msgs) != 1 || msgs[0].Content != "new" {
			t.Fatalf("recent message should survive, got %+v", msgs)
		}
	})
}
