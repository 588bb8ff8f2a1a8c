package syncstate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

// fileStore keeps the watermark as one RFC3339 line, the format of the .last_run file
type fileStore struct {
	path string
}

// NewFileStore creates a Store backed by the file at path
func NewFileStore(path string) Store {
	return &fileStore{path: path}
}

func (s *fileStore) Load(ctx context.Context) (domain.SyncState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.SyncState{}, nil
	}
	if err != nil {
		return domain.SyncState{}, fmt.Errorf("failed to read watermark file: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return domain.SyncState{}, nil
	}
	watermark, err := parseWatermark(raw)
	if err != nil {
		return domain.SyncState{}, fmt.Errorf("invalid watermark in %s: %w", s.path, err)
	}

	state := domain.SyncState{Watermark: watermark}
	if info, err := os.Stat(s.path); err == nil {
		state.UpdatedAt = info.ModTime()
	}
	return state, nil
}

// Save writes a temp file in the same directory and renames it over the old one
func (s *fileStore) Save(ctx context.Context, state domain.SyncState) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp watermark file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(state.Watermark.UTC().Format(time.RFC3339Nano) + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write watermark: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync watermark: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close watermark file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace watermark file: %w", err)
	}
	return nil
}

// parseWatermark accepts RFC3339 timestamps and the naive ISO timestamps older runs
// wrote, which are read as UTC
func parseWatermark(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
