// Package fsstore is the default persistence backend: one directory per
// match id under a root directory, holding a single descriptor.json file.
// This is the Go analogue of the original's src/db/filesystem.rs FileSystem
// database, made concrete (the retrieved snapshot of that file was a stub).
package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"colosseum/internal/store"
	"colosseum/internal/validate"
	"colosseum/internal/wire"
)

const descriptorName = "descriptor.json"

// Store persists archives as <root>/<id>/descriptor.json.
type Store struct {
	root string
}

// New returns an fsstore.Store rooted at dir, creating dir if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fsstore: cannot create root %s: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) matchDir(id string) (string, error) {
	if !validate.ArchiveID.MatchString(id) {
		return "", fmt.Errorf("fsstore: invalid match id %q", id)
	}
	return filepath.Join(s.root, id), nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fsstore: list: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && validate.ArchiveID.MatchString(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

func (s *Store) Retrieve(ctx context.Context, id string) (*wire.ArchiveRecord, error) {
	dir, err := s.matchDir(id)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, descriptorName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("fsstore: retrieve %s: %w", id, err)
	}
	var record wire.ArchiveRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("fsstore: corrupt descriptor for %s: %w", id, err)
	}
	return &record, nil
}

func (s *Store) Save(ctx context.Context, record wire.ArchiveRecord) error {
	dir, err := s.matchDir(record.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsstore: save %s: %w", record.ID, err)
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("fsstore: marshal %s: %w", record.ID, err)
	}
	tmp := filepath.Join(dir, descriptorName+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("fsstore: write %s: %w", record.ID, err)
	}
	return os.Rename(tmp, filepath.Join(dir, descriptorName))
}

func (s *Store) Close(ctx context.Context) error { return nil }
