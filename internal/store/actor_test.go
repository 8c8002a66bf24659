package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"colosseum/internal/wire"
)

// recordingBackend is a Store with no locking of its own, the same shape
// as fsstore/mongostore; it exists to prove the actor serializes access
// to it rather than letting callers race directly against it.
type recordingBackend struct {
	inFlight int32
	maxSeen  int32
	saved    []wire.ArchiveRecord
}

func (b *recordingBackend) enter() func() {
	n := atomic.AddInt32(&b.inFlight, 1)
	for {
		max := atomic.LoadInt32(&b.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&b.maxSeen, max, n) {
			break
		}
	}
	return func() { atomic.AddInt32(&b.inFlight, -1) }
}

func (b *recordingBackend) List(ctx context.Context) ([]string, error) {
	defer b.enter()()
	time.Sleep(time.Millisecond)
	ids := make([]string, len(b.saved))
	for i, r := range b.saved {
		ids[i] = r.ID
	}
	return ids, nil
}

func (b *recordingBackend) Retrieve(ctx context.Context, id string) (*wire.ArchiveRecord, error) {
	defer b.enter()()
	for _, r := range b.saved {
		if r.ID == id {
			rec := r
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

func (b *recordingBackend) Save(ctx context.Context, record wire.ArchiveRecord) error {
	defer b.enter()()
	time.Sleep(time.Millisecond)
	b.saved = append(b.saved, record)
	return nil
}

func (b *recordingBackend) Close(ctx context.Context) error { return nil }

func TestActorSerializesConcurrentCalls(t *testing.T) {
	backend := &recordingBackend{}
	s := NewActor(backend)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Save(context.Background(), wire.ArchiveRecord{ID: "match-id-of-test"})
			s.List(context.Background())
		}(i)
	}
	wg.Wait()

	if backend.maxSeen > 1 {
		t.Fatalf("expected at most one call in flight against the backend at a time, saw %d", backend.maxSeen)
	}
	if len(backend.saved) != 20 {
		t.Fatalf("expected 20 saved records, got %d", len(backend.saved))
	}
}

func TestActorRetrieveAndClose(t *testing.T) {
	backend := &recordingBackend{}
	s := NewActor(backend)

	record := wire.ArchiveRecord{ID: "abc", Game: "roshambo"}
	if err := s.Save(context.Background(), record); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Retrieve(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got.Game != "roshambo" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
