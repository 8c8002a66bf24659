package play

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"colosseum/internal/game"
	"colosseum/internal/store"
	"colosseum/internal/wire"
)

// fakeInstance writes one chunk to the spectator stream and returns
// immediately, as if a very short match had just finished.
type fakeInstance struct{}

func (fakeInstance) Start(ctx context.Context, players map[string]game.Pipe, spectator io.Writer) {
	spectator.Write([]byte("move 1"))
}

// fakeStore records the single record a test coordinator saves.
type fakeStore struct {
	mu     sync.Mutex
	saved  *wire.ArchiveRecord
	saveCh chan struct{}
}

func newFakeStore() *fakeStore { return &fakeStore{saveCh: make(chan struct{}, 1)} }

func (f *fakeStore) List(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeStore) Retrieve(ctx context.Context, id string) (*wire.ArchiveRecord, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) Save(ctx context.Context, record wire.ArchiveRecord) error {
	f.mu.Lock()
	f.saved = &record
	f.mu.Unlock()
	f.saveCh <- struct{}{}
	return nil
}
func (f *fakeStore) Close(ctx context.Context) error { return nil }

func TestCoordinatorJoinRunsAndArchives(t *testing.T) {
	st := newFakeStore()
	stopped := make(chan string, 1)

	coord := Start(context.Background(), Config{
		ID:        "0123456789abcdef",
		Game:      "roshambo",
		Name:      "friendly",
		Instance:  fakeInstance{},
		Params:    game.Params{Players: 1},
		Usernames: []string{"alice"},
		Store:     st,
		OnStopped: func(id string) { stopped <- id },
	})

	conn, err := coord.Join("alice")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if conn == nil {
		t.Fatal("expected a non-nil pipe end")
	}

	if _, err := coord.Join("alice"); err == nil {
		t.Fatal("expected a second Join for the same username to fail")
	}

	select {
	case id := <-stopped:
		if id != "0123456789abcdef" {
			t.Fatalf("unexpected stopped id: %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator never reported stopped")
	}

	<-st.saveCh
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.saved == nil {
		t.Fatal("expected an archive to have been saved")
	}
	if st.saved.Name != "friendly" || string(st.saved.History) != "move 1" {
		t.Fatalf("unexpected saved record: %+v", st.saved)
	}
}

func TestSubscribeReturnsLiveHistory(t *testing.T) {
	st := newFakeStore()
	coord := Start(context.Background(), Config{
		ID:        "fedcba9876543210",
		Game:      "roshambo",
		Instance:  fakeInstance{},
		Params:    game.Params{Players: 1},
		Usernames: []string{"alice"},
		Store:     st,
		OnStopped: func(string) {},
	})

	sub, _ := coord.Subscribe()
	defer sub.Unsubscribe()

	var sawHistory, sawEnded bool
	deadline := time.After(2 * time.Second)
	for !sawEnded {
		select {
		case ev := <-sub.Events:
			if len(ev.SpectatorData) > 0 {
				sawHistory = true
			}
			if ev.Ended {
				sawEnded = true
			}
		case <-deadline:
			t.Fatal("did not observe match end in time")
		}
	}
	if !sawHistory {
		t.Fatal("expected to observe spectator data before the match ended")
	}
}
