// Package store defines the persistence capability every archived match is
// written through, generalizing the original's Database trait (List,
// Retrieve, Store commands against a FileSystem or other backend) into a
// plain Go interface with two implementations: fsstore (default) and
// mongostore (optional, backed by the teacher's MongoDB stack).
package store

import (
	"context"
	"errors"

	"colosseum/internal/wire"
)

// ErrNotFound is returned by Retrieve when no archive exists for the given id.
var ErrNotFound = errors.New("store: archive not found")

// Store is the persistence actor's capability surface.
type Store interface {
	// List returns every archived match id.
	List(ctx context.Context) ([]string, error)

	// Retrieve returns one archived match's full record, or ErrNotFound.
	Retrieve(ctx context.Context, id string) (*wire.ArchiveRecord, error)

	// Save persists a finished match's record.
	Save(ctx context.Context, record wire.ArchiveRecord) error

	// Close releases any resources the backend holds (connections, file
	// handles). Safe to call once at process shutdown.
	Close(ctx context.Context) error
}
