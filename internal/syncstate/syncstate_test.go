package syncstate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	state, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load on empty store: %v", err)
	}
	if !state.Watermark.IsZero() {
		t.Fatalf("expected zero watermark, got %v", state.Watermark)
	}

	loc, _ := time.LoadLocation("America/Los_Angeles")
	first := time.Date(2026, 10, 19, 8, 15, 30, 123000000, loc)
	if err := store.Save(ctx, domain.SyncState{Watermark: first, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second := first.Add(time.Hour)
	if err := store.Save(ctx, domain.SyncState{Watermark: second, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	state, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !state.Watermark.Equal(second) {
		t.Errorf("watermark = %v, want %v", state.Watermark, second)
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".last_run")
	exerciseStore(t, NewFileStore(path))

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestFileStoreReadsNaiveTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".last_run")
	if err := os.WriteFile(path, []byte("2026-10-12T07:30:00.250000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	state, err := NewFileStore(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := time.Date(2026, 10, 12, 7, 30, 0, 250000000, time.UTC)
	if !state.Watermark.Equal(want) {
		t.Errorf("watermark = %v, want %v", state.Watermark, want)
	}
}

func TestFileStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".last_run")
	if err := os.WriteFile(path, []byte("yesterday"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path).Load(context.Background()); err == nil {
		t.Error("expected an error for an unreadable watermark")
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schoolcal.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()
	exerciseStore(t, store)

	// state survives reopening
	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	state, err := reopened.Load(context.Background())
	if err != nil || state.Watermark.IsZero() {
		t.Errorf("reopened store lost the watermark: %v %v", state, err)
	}
}
