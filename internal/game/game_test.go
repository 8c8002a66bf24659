package game

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"
)

type fakeBuilder struct {
	name     string
	block    chan struct{}
	newCount int
	mu       sync.Mutex
}

func (f *fakeBuilder) Name() string        { return f.name }
func (f *fakeBuilder) Description() string { return "fake" }

func (f *fakeBuilder) NewInstance(params Params, args map[string]string) (Instance, Params, error) {
	f.mu.Lock()
	f.newCount++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return &fakeInstance{}, params, nil
}

func (f *fakeBuilder) NewBot() Bot { return &fakeBot{} }

type fakeInstance struct{}

func (*fakeInstance) Start(ctx context.Context, players map[string]Pipe, spectator io.Writer) {}

type fakeBot struct{}

func (*fakeBot) Start(ctx context.Context, conn Pipe) {}

func TestListAndDescription(t *testing.T) {
	reg := Start([]Builder{&fakeBuilder{name: "alpha"}, &fakeBuilder{name: "beta"}})

	names := reg.List()
	if len(names) != 2 {
		t.Fatalf("expected 2 games, got %v", names)
	}

	if d := reg.Description("alpha"); d == nil || *d != "fake" {
		t.Fatalf("unexpected description: %v", d)
	}
	if d := reg.Description("missing"); d != nil {
		t.Fatalf("expected nil description, got %v", *d)
	}
}

func TestNewInstanceRejectsConcurrentCreationOfSameGame(t *testing.T) {
	block := make(chan struct{})
	reg := Start([]Builder{&fakeBuilder{name: "alpha", block: block}})

	done := make(chan NewInstanceResult, 1)
	go func() { done <- reg.NewInstance("alpha", Params{}, nil) }()

	time.Sleep(50 * time.Millisecond) // let the first NewInstance start building

	second := reg.NewInstance("alpha", Params{}, nil)
	if second.Err == nil {
		t.Fatal("expected second concurrent NewInstance to fail")
	}

	close(block)
	first := <-done
	if first.Err != nil {
		t.Fatalf("first NewInstance should have succeeded: %v", first.Err)
	}

	// Once the first creation finishes, the game is available again.
	third := reg.NewInstance("alpha", Params{}, nil)
	if third.Err != nil {
		t.Fatalf("expected creation to succeed after first finished: %v", third.Err)
	}
}

func TestNewInstanceUnknownGame(t *testing.T) {
	reg := Start([]Builder{&fakeBuilder{name: "alpha"}})
	result := reg.NewInstance("missing", Params{}, nil)
	if result.Err == nil {
		t.Fatal("expected error for unknown game")
	}
}
