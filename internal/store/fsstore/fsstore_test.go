package fsstore

import (
	"context"
	"errors"
	"testing"

	"colosseum/internal/store"
	"colosseum/internal/wire"
)

func TestSaveRetrieveRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	record := wire.ArchiveRecord{
		ID:        "0123456789abcdef",
		Game:      "roshambo",
		Name:      "test match",
		Args:      map[string]string{"rounds": "3"},
		Players:   []string{"alice", "bob"},
		BotCount:  0,
		History:   []byte("some spectator bytes"),
		CreatedAt: 1700000000,
	}
	if err := s.Save(ctx, record); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Retrieve(ctx, record.ID)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got.Game != record.Game || got.Name != record.Name || string(got.History) != string(record.History) {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	ids, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 1 || ids[0] != record.ID {
		t.Fatalf("unexpected List result: %v", ids)
	}
}

func TestRetrieveMissingReturnsErrNotFound(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = s.Retrieve(context.Background(), "0000000000000000")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInvalidIDRejected(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = s.Save(context.Background(), wire.ArchiveRecord{ID: "not valid!"})
	if err == nil {
		t.Fatal("expected an error for an invalid archive id")
	}
}

func TestListEmptyRoot(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ids, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no archives, got %v", ids)
	}
}
