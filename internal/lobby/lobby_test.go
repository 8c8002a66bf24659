package lobby

import (
	"context"
	"io"
	"testing"
	"time"

	"colosseum/internal/game"
	"colosseum/internal/wire"
)

func gameParams(players int) wire.GameParams {
	return wire.GameParams{Players: &players}
}

// instantInstance signals on started when the match begins and then blocks
// until the match context is cancelled, so tests don't have to wait on a
// real game's rules.
type instantInstance struct{ started chan struct{} }

func (i instantInstance) Start(ctx context.Context, players map[string]game.Pipe, spectator io.Writer) {
	close(i.started)
	<-ctx.Done()
}

type fakeBuilder struct{ inst instantInstance }

func (fakeBuilder) Name() string        { return "dummy" }
func (fakeBuilder) Description() string { return "a dummy game for tests" }
func (b fakeBuilder) NewInstance(params game.Params, args map[string]string) (game.Instance, game.Params, error) {
	if params.Players == 0 {
		params.Players = 2
	}
	if params.Timeout == 0 {
		params.Timeout = 5
	}
	return b.inst, params, nil
}
func (fakeBuilder) NewBot() game.Bot { return nil }

func newTestLobby(t *testing.T) (*Lobby, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	registry := game.Start([]game.Builder{fakeBuilder{inst: instantInstance{started: make(chan struct{})}}})
	l := Start(ctx, Config{Registry: registry})
	return l, cancel
}

func TestNewGameThenJoinStartsMatch(t *testing.T) {
	l, cancel := newTestLobby(t)
	defer cancel()

	id, err := l.NewGame(NewGameRequest{
		Name:   "a match",
		Game:   "dummy",
		Params: gameParams(2),
	})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}

	info, events, err := l.JoinMatch(id, "alice", "")
	if err != nil {
		t.Fatalf("JoinMatch alice: %v", err)
	}
	if info.Running {
		t.Fatal("expected match to still be waiting after first join")
	}

	_, events2, err := l.JoinMatch(id, "bob", "")
	if err != nil {
		t.Fatalf("JoinMatch bob: %v", err)
	}

	waitForStarted(t, events)
	waitForStarted(t, events2)
}

func TestJoinMatchRejectsDuplicateUsername(t *testing.T) {
	l, cancel := newTestLobby(t)
	defer cancel()

	id, err := l.NewGame(NewGameRequest{Name: "m", Game: "dummy", Params: gameParams(3)})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	if _, _, err := l.JoinMatch(id, "alice", ""); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if _, _, err := l.JoinMatch(id, "alice", ""); err == nil {
		t.Fatal("expected duplicate username join to fail")
	}
}

func TestJoinMatchWrongPasswordRejected(t *testing.T) {
	l, cancel := newTestLobby(t)
	defer cancel()

	id, err := l.NewGame(NewGameRequest{Name: "m", Game: "dummy", Password: "secret", Params: gameParams(2)})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	if _, _, err := l.JoinMatch(id, "alice", "wrong"); err == nil {
		t.Fatal("expected wrong password to be rejected")
	}
	if _, _, err := l.JoinMatch(id, "alice", "secret"); err != nil {
		t.Fatalf("expected correct password to succeed: %v", err)
	}
}

func TestLeaveMatchRemovesPlayer(t *testing.T) {
	l, cancel := newTestLobby(t)
	defer cancel()

	id, err := l.NewGame(NewGameRequest{Name: "m", Game: "dummy", Params: gameParams(3)})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	if _, _, err := l.JoinMatch(id, "alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := l.LeaveMatch(id, "alice"); err != nil {
		t.Fatalf("LeaveMatch: %v", err)
	}
	if _, _, err := l.JoinMatch(id, "alice", ""); err != nil {
		t.Fatalf("rejoin after leave should succeed: %v", err)
	}
}

func TestGetListReportsCreatedMatch(t *testing.T) {
	l, cancel := newTestLobby(t)
	defer cancel()

	id, err := l.NewGame(NewGameRequest{Name: "listed", Game: "dummy", Params: gameParams(2)})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	list := l.GetList()
	found := false
	for _, info := range list {
		if info.ID == id {
			found = true
			if info.Name != "listed" {
				t.Fatalf("unexpected name: %q", info.Name)
			}
		}
	}
	if !found {
		t.Fatal("expected created match in GetList")
	}
}

func waitForStarted(t *testing.T, events chan MatchEvent) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == EventStarted {
				return
			}
		case <-deadline:
			t.Fatal("never observed EventStarted")
		}
	}
}
