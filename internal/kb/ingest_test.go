package kb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestIngestDir(t *testing.T) {
	dir := t.TempDir()
	writeDoc := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	writeDoc("handbook.md", "School hours are 8:00 AM to 3:00 PM.\n\nAttendance is taken each morning.")
	writeDoc("lunch.txt", "The cafeteria serves lunch from 11:30 AM.")
	writeDoc("image.png", "not a document")

	idx := newTestIndex(t)
	indexed, err := idx.IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("IngestDir: %v", err)
	}
	if indexed != 2 {
		t.Fatalf("expected 2 documents indexed, got %d", indexed)
	}
	if idx.Count() == 0 {
		t.Fatalf("expected indexed chunks")
	}

	results, err := idx.Query(context.Background(), "when does the cafeteria serve lunch", 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected results after ingest")
	}
	if results[0].Filename != "lunch.txt" {
		t.Fatalf("expected the lunch document first, got %+v", results[0])
	}
	info, ok := idx.Source(results[0].SourceID)
	if !ok || filepath.Base(info.Path) != "lunch.txt" {
		t.Fatalf("source registry must point at the ingested file: %+v", info)
	}
}

func TestIngestDirMissing(t *testing.T) {
	idx := newTestIndex(t)
	if _, err := idx.IngestDir(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected an error for a missing directory")
	}
}
