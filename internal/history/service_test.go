package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"schoolchat/internal/config"
	"schoolchat/internal/models"
	"schoolchat/internal/storage"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: filepath.Join(t.TempDir(), "test.db")},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestRecordAssignsSequentialMessageIDs(t *testing.T) {
	svc := NewService(newTestDB(t), nil)
	ctx := context.Background()

	for i, want := range []string{"conv1", "conv2", "conv3"} {
		ex, err := svc.Record(ctx, models.Exchange{
			SessionID:     "sess-1",
			UserMessage:   "question",
			AssistantText: "answer",
			QueryType:     "knowledge_base",
			ResponseTime:  1.5,
		})
		if err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
		if ex.MessageID != want {
			t.Fatalf("message id = %q, want %q", ex.MessageID, want)
		}
	}

	// Another session counts from one again.
	ex, err := svc.Record(ctx, models.Exchange{SessionID: "sess-2", UserMessage: "hi", AssistantText: "hello"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if ex.MessageID != "conv1" {
		t.Fatalf("new session should start at conv1, got %q", ex.MessageID)
	}
}

func TestRecordRequiresSession(t *testing.T) {
	svc := NewService(newTestDB(t), nil)
	if _, err := svc.Record(context.Background(), models.Exchange{UserMessage: "hi"}); err == nil {
		t.Fatalf("expected an error without a session id")
	}
}

func TestRecentReturnsChronologicalTail(t *testing.T) {
	svc := NewService(newTestDB(t), nil)
	ctx := context.Background()

	questions := []string{"q1", "q2", "q3", "q4", "q5"}
	for _, q := range questions {
		if _, err := svc.Record(ctx, models.Exchange{SessionID: "sess-1", UserMessage: q, AssistantText: "a-" + q}); err != nil {
			t.Fatalf("Record(%s): %v", q, err)
		}
	}

	recent, err := svc.Recent(ctx, "sess-1", 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 exchanges, got %d", len(recent))
	}
	for i, want := range []string{"q3", "q4", "q5"} {
		if recent[i].UserMessage != want {
			t.Fatalf("recent[%d] = %q, want %q", i, recent[i].UserMessage, want)
		}
	}

	// Default limit kicks in for non-positive values.
	recent, err = svc.Recent(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != DefaultRecentLimit {
		t.Fatalf("expected the default limit of %d, got %d", DefaultRecentLimit, len(recent))
	}
}

func TestRecentEmptySession(t *testing.T) {
	svc := NewService(newTestDB(t), nil)
	recent, err := svc.Recent(context.Background(), "sess-never-seen", 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 0 {
		t.Fatalf("expected no exchanges, got %d", len(recent))
	}
}
