package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"musickit/database"
)

func journalPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "journal.db")
}

// seedJournal records count submissions and closes the journal.
func seedJournal(t *testing.T, path string, count int) {
	t.Helper()
	dm, err := database.NewDatabaseManager(path, nil)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer dm.Close()
	for i := 0; i < count; i++ {
		if err := dm.RecordQueue(context.Background(), []string{"1", "2"}, nil); err != nil {
			t.Fatalf("Failed to record queue: %v", err)
		}
	}
}

func schemaVersion(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	version, err := database.GetSchemaVersion(db)
	if err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	return version
}

func TestRunCreatesSchema(t *testing.T) {
	path := journalPath(t)
	var out bytes.Buffer

	err := run(context.Background(), &out, options{DBPath: path, Down: -1}, zap.NewNop())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if v := schemaVersion(t, path); v != database.SchemaVersion {
		t.Errorf("Expected schema version %d, got %d", database.SchemaVersion, v)
	}
	if !strings.Contains(out.String(), "at schema version 2") {
		t.Errorf("Unexpected output: %q", out.String())
	}
}

func TestRunRollback(t *testing.T) {
	path := journalPath(t)
	var out bytes.Buffer

	err := run(context.Background(), &out, options{DBPath: path, Down: 1}, zap.NewNop())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if v := schemaVersion(t, path); v != 1 {
		t.Errorf("Expected schema version 1 after rollback, got %d", v)
	}
	if !strings.Contains(out.String(), "Rolled back schema to version 1") {
		t.Errorf("Unexpected output: %q", out.String())
	}

	// Rolling back to the current version is rejected
	err = run(context.Background(), &out, options{DBPath: path, Down: database.SchemaVersion}, zap.NewNop())
	if err == nil {
		t.Error("Expected error rolling back to the current version")
	}
}

func TestRunPrune(t *testing.T) {
	path := journalPath(t)
	seedJournal(t, path, 3)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	old := time.Now().UTC().Add(-48 * time.Hour)
	if _, err := db.Exec("UPDATE queue_submissions SET created_at = ?", old); err != nil {
		t.Fatalf("Failed to backdate submissions: %v", err)
	}
	db.Close()

	var out bytes.Buffer
	opts := options{DBPath: path, Down: -1, Prune: 24 * time.Hour, Vacuum: true, Validate: true}
	if err := run(context.Background(), &out, opts, zap.NewNop()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	tests := []string{
		"Pruned 3 submissions older than 24h0m0s",
		"Vacuum completed",
		"Submissions: 0",
		"Validation completed successfully!",
	}
	for _, want := range tests {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out.String())
		}
	}
}

func TestRunValidate(t *testing.T) {
	path := journalPath(t)
	seedJournal(t, path, 2)

	var out bytes.Buffer
	opts := options{DBPath: path, Down: -1, Validate: true}
	if err := run(context.Background(), &out, opts, zap.NewNop()); err != nil {
		t.Fatalf("run failed: %v\n%s", err, out.String())
	}

	tests := []string{
		"Submissions: 2",
		"Tracks:      4",
		"✓ Track counts match",
		"✓ No orphaned queue tracks",
		"✓ Integrity check passed",
		"  - 1 (2)",
	}
	for _, want := range tests {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out.String())
		}
	}
}

func TestRunValidateMismatch(t *testing.T) {
	path := journalPath(t)
	seedJournal(t, path, 1)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if _, err := db.Exec("UPDATE queue_submissions SET track_count = 5"); err != nil {
		t.Fatalf("Failed to corrupt track count: %v", err)
	}
	db.Close()

	var out bytes.Buffer
	err = run(context.Background(), &out, options{DBPath: path, Down: -1, Validate: true}, zap.NewNop())
	if err == nil {
		t.Fatal("Expected validation to fail")
	}
	if !strings.Contains(err.Error(), "1 mismatched submissions") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestRunDryRun(t *testing.T) {
	path := journalPath(t)
	var out bytes.Buffer

	opts := options{DBPath: path, DryRun: true, Down: 1, Prune: time.Hour}
	if err := run(context.Background(), &out, opts, zap.NewNop()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected dry run to leave no journal, stat returned %v", err)
	}

	tests := []string{
		"Would open journal: " + path,
		"Would migrate schema to version 2",
		"Would roll back schema to version 1",
		"Would prune submissions older than 1h0m0s",
	}
	for _, want := range tests {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out.String())
		}
	}
}
