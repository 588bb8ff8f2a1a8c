package syncstate

import (
	"context"
	"errors"

	"github.com/omnific9/SchoolCalEnricher/internal/event/domain"
)

// Store persists the fetch watermark between runs. Save must be all-or-nothing:
// a crash during Save leaves either the previous or the new value readable.
type Store interface {
	// Load returns the stored state, or a zero SyncState when nothing was saved yet
	Load(ctx context.Context) (domain.SyncState, error)

	// Save replaces the stored state
	Save(ctx context.Context, state domain.SyncState) error
}

// Kinds of store selectable with WATERMARK_STORE
const (
	KindFile     = "file"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
)

// ErrUnknownKind is returned for an unsupported WATERMARK_STORE value
var ErrUnknownKind = errors.New("unknown watermark store")
