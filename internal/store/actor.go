package store

import (
	"context"

	"colosseum/internal/tuning"
	"colosseum/internal/wire"
)

// actor serializes every List/Retrieve/Save/Close call against a backend
// Store through one owning goroutine, the same command-channel-actor
// shape internal/lobby and internal/game use for their own mutable state.
// Every running match's play coordinator and every client session call
// into a Store concurrently; the backends themselves (fsstore, mongostore)
// hold no lock of their own, so without this wrapper those calls race.
type actor struct {
	cmds chan any
}

type listCmd struct {
	ctx   context.Context
	reply chan listResult
}
type listResult struct {
	ids []string
	err error
}

type retrieveCmd struct {
	ctx   context.Context
	id    string
	reply chan retrieveResult
}
type retrieveResult struct {
	record *wire.ArchiveRecord
	err    error
}

type saveCmd struct {
	ctx    context.Context
	record wire.ArchiveRecord
	reply  chan error
}

type closeCmd struct {
	ctx   context.Context
	reply chan error
}

// NewActor wraps backend so all access to it is serialized through a
// single goroutine.
func NewActor(backend Store) Store {
	a := &actor{cmds: make(chan any, tuning.QueueBuffer)}
	go a.run(backend)
	return a
}

func (a *actor) run(backend Store) {
	for cmd := range a.cmds {
		switch c := cmd.(type) {
		case listCmd:
			ids, err := backend.List(c.ctx)
			c.reply <- listResult{ids: ids, err: err}

		case retrieveCmd:
			record, err := backend.Retrieve(c.ctx, c.id)
			c.reply <- retrieveResult{record: record, err: err}

		case saveCmd:
			c.reply <- backend.Save(c.ctx, c.record)

		case closeCmd:
			c.reply <- backend.Close(c.ctx)
			return
		}
	}
}

func (a *actor) List(ctx context.Context) ([]string, error) {
	reply := make(chan listResult, 1)
	a.cmds <- listCmd{ctx: ctx, reply: reply}
	r := <-reply
	return r.ids, r.err
}

func (a *actor) Retrieve(ctx context.Context, id string) (*wire.ArchiveRecord, error) {
	reply := make(chan retrieveResult, 1)
	a.cmds <- retrieveCmd{ctx: ctx, id: id, reply: reply}
	r := <-reply
	return r.record, r.err
}

func (a *actor) Save(ctx context.Context, record wire.ArchiveRecord) error {
	reply := make(chan error, 1)
	a.cmds <- saveCmd{ctx: ctx, record: record, reply: reply}
	return <-reply
}

// Close stops backend and then the actor's own goroutine; the actor must
// not be used again afterward.
func (a *actor) Close(ctx context.Context) error {
	reply := make(chan error, 1)
	a.cmds <- closeCmd{ctx: ctx, reply: reply}
	return <-reply
}
