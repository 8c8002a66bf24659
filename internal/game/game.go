// Package game defines the capability interfaces every built-in game module
// implements (Builder/Instance/Bot) and runs the registry actor that the
// lobby consults to list games, fetch descriptions, and spin up instances
// and bots. It generalizes the original's games::Command actor (GetList,
// GetDescription) and adds the instance/bot creation commands the lobby
// needs, following the same single-owner-goroutine-with-a-command-channel
// shape as every other actor in this server.
package game

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Pipe is the byte stream a game.Instance or game.Bot reads/writes. It is
// satisfied by *bytesbuf.Conn (in-process duplex pipes) and, in tests, by
// any io.ReadWriteCloser that also supports a read deadline.
type Pipe interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadDeadline(t time.Time) error
}

// Params is a match's normalized parameters: how many human players, how
// many server-side bots, and the per-move timeout in seconds.
type Params struct {
	Players int
	Bots    int
	Timeout float64
}

// Builder is a game module's factory: it advertises a name and human
// description, validates/normalizes requested Params and free-form args
// into a ready Instance, and can produce a built-in Bot to fill empty
// player slots.
type Builder interface {
	Name() string
	Description() string
	NewInstance(params Params, args map[string]string) (Instance, Params, error)
	NewBot() Bot
}

// Instance runs one match to completion. players maps each human player's
// username to its pipe; spectator receives a copy of everything any player
// or bot should make visible to observers (and, via the play coordinator,
// to the archive). Start returns once the match has ended.
type Instance interface {
	Start(ctx context.Context, players map[string]Pipe, spectator io.Writer)
}

// Bot plays one player slot autonomously over conn.
type Bot interface {
	Start(ctx context.Context, conn Pipe)
}

// Registry is the handle client code uses to talk to the registry actor.
type Registry struct {
	cmds chan any
}

type listCmd struct{ reply chan []string }

type descriptionCmd struct {
	name  string
	reply chan *string
}

// NewInstanceResult is the outcome of a NewInstance command.
type NewInstanceResult struct {
	Instance Instance
	Params   Params
	Err      error
}

type newInstanceCmd struct {
	name    string
	params  Params
	args    map[string]string
	reply   chan NewInstanceResult
	builder Builder
}

type newInstanceDone struct {
	name   string
	result NewInstanceResult
	reply  chan NewInstanceResult
}

// NewBotResult is the outcome of a NewBot command.
type NewBotResult struct {
	Bot Bot
	Err error
}

type newBotCmd struct {
	name  string
	reply chan NewBotResult
}

// Start launches the registry actor over the given builders and returns a
// Registry handle. The builder set is fixed for the process lifetime.
func Start(builders []Builder) *Registry {
	catalog := make(map[string]Builder, len(builders))
	for _, b := range builders {
		catalog[b.Name()] = b
	}
	r := &Registry{cmds: make(chan any, 128)}
	go r.run(catalog)
	return r
}

func (r *Registry) run(catalog map[string]Builder) {
	creating := make(map[string]bool)
	for cmd := range r.cmds {
		switch c := cmd.(type) {
		case listCmd:
			names := make([]string, 0, len(catalog))
			for name := range catalog {
				names = append(names, name)
			}
			c.reply <- names

		case descriptionCmd:
			if b, ok := catalog[c.name]; ok {
				d := b.Description()
				c.reply <- &d
			} else {
				c.reply <- nil
			}

		case newInstanceCmd:
			b, ok := catalog[c.name]
			if !ok {
				c.reply <- NewInstanceResult{Err: fmt.Errorf("unknown game %q", c.name)}
				continue
			}
			if creating[c.name] {
				c.reply <- NewInstanceResult{Err: fmt.Errorf("game %q is busy starting another match, try again", c.name)}
				continue
			}
			creating[c.name] = true
			c.builder = b
			go buildInstance(r.cmds, c)

		case newInstanceDone:
			delete(creating, c.name)
			c.reply <- c.result

		case newBotCmd:
			b, ok := catalog[c.name]
			if !ok {
				c.reply <- NewBotResult{Err: fmt.Errorf("unknown game %q", c.name)}
				continue
			}
			c.reply <- safeNewBot(b)
		}
	}
}

// buildInstance runs a builder's (potentially slow) NewInstance off the
// actor goroutine so other games' commands keep flowing, and feeds the
// result back through the command channel so the actor can clear the
// in-progress flag before replying to the original caller.
func buildInstance(cmds chan any, c newInstanceCmd) {
	result := safeNewInstance(c.builder, c.params, c.args)
	cmds <- newInstanceDone{name: c.name, result: result, reply: c.reply}
}

func safeNewInstance(b Builder, params Params, args map[string]string) (result NewInstanceResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = NewInstanceResult{Err: fmt.Errorf("game panicked while starting: %v", rec)}
		}
	}()
	inst, norm, err := b.NewInstance(params, args)
	return NewInstanceResult{Instance: inst, Params: norm, Err: err}
}

func safeNewBot(b Builder) (result NewBotResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = NewBotResult{Err: fmt.Errorf("game panicked while creating a bot: %v", rec)}
		}
	}()
	return NewBotResult{Bot: b.NewBot()}
}

// List returns every registered game's name.
func (r *Registry) List() []string {
	reply := make(chan []string, 1)
	r.cmds <- listCmd{reply: reply}
	return <-reply
}

// Description returns a game's description, or nil if name is unknown.
func (r *Registry) Description(name string) *string {
	reply := make(chan *string, 1)
	r.cmds <- descriptionCmd{name: name, reply: reply}
	return <-reply
}

// NewInstance asks the named game to validate params/args and build an
// Instance. At most one NewInstance call per game name runs at a time;
// a concurrent call for the same game fails fast instead of queuing.
func (r *Registry) NewInstance(name string, params Params, args map[string]string) NewInstanceResult {
	reply := make(chan NewInstanceResult, 1)
	r.cmds <- newInstanceCmd{name: name, params: params, args: args, reply: reply}
	return <-reply
}

// NewBot asks the named game for a fresh built-in Bot.
func (r *Registry) NewBot(name string) NewBotResult {
	reply := make(chan NewBotResult, 1)
	r.cmds <- newBotCmd{name: name, reply: reply}
	return <-reply
}
