// Package play implements the play coordinator: one actor per running
// match, bridging each player's and bot's bytes into a game.Instance,
// capturing everything written to the spectator pipe into a growing
// history buffer, and fanning that history out live to subscribed
// spectators. It generalizes the original's play::start/Command/MatchEvent
// actor (src/play.rs) from its tokio::sync primitives into the same
// command-channel-actor shape used by internal/game's registry.
package play

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"colosseum/internal/broadcast"
	"colosseum/internal/bytesbuf"
	"colosseum/internal/game"
	"colosseum/internal/store"
	"colosseum/internal/tuning"
	"colosseum/internal/wire"
)

// Event is published to every spectator subscription as the match
// progresses, mirroring the original's MatchEvent enum (Started/
// SpectatorData collapsed here since Join, not Subscribe, hands a player
// its own pipe).
type Event struct {
	SpectatorData []byte
	Started       bool
	Ended         bool
}

// Coordinator is the handle other actors (the lobby, client sessions) use
// to talk to one running match's play actor.
type Coordinator struct {
	cmds chan any
	id   string
}

type joinCmd struct {
	username string
	reply    chan joinResult
}

type joinResult struct {
	conn *bytesbuf.Conn
	err  error
}

type subscribeCmd struct {
	reply chan subscribeResult
}

type subscribeResult struct {
	sub     *broadcast.Subscription[Event]
	history []byte
}

type stopCmd struct{}

type spectatorCountCmd struct{ reply chan int }

// Config is everything the coordinator needs to start one match.
type Config struct {
	ID        string
	Game      string
	Name      string
	GameArgs  map[string]string
	Instance  game.Instance
	Params    game.Params
	Usernames []string // human player slots, in join order
	Bots      int
	Registry  *game.Registry
	Store     store.Store
	OnStopped func(id string)
	Logger    *slog.Logger
}

// Start launches the play coordinator actor for one match and returns
// immediately; the match itself runs on further goroutines.
func Start(ctx context.Context, cfg Config) *Coordinator {
	c := &Coordinator{cmds: make(chan any, tuning.QueueBuffer), id: cfg.ID}
	go c.run(ctx, cfg)
	return c
}

// Join hands back a fresh duplex pipe for the named human player, or an
// error if that username is not one of the match's players or has already
// been handed its pipe.
func (c *Coordinator) Join(username string) (*bytesbuf.Conn, error) {
	reply := make(chan joinResult, 1)
	c.cmds <- joinCmd{username: username, reply: reply}
	r := <-reply
	return r.conn, r.err
}

// Subscribe returns a live spectator feed plus everything broadcast so
// far, so a late joiner can replay history before following new events.
func (c *Coordinator) Subscribe() (*broadcast.Subscription[Event], []byte) {
	reply := make(chan subscribeResult, 1)
	c.cmds <- subscribeCmd{reply: reply}
	r := <-reply
	return r.sub, r.history
}

// SpectatorCount reports the current live spectator subscriber count.
func (c *Coordinator) SpectatorCount() int {
	reply := make(chan int, 1)
	c.cmds <- spectatorCountCmd{reply: reply}
	return <-reply
}

// Stop forces the match to end early: it cancels the game instance's
// context, which every Instance is required to honor by returning from
// Start, and the normal instanceDone/bot-cancellation/archive sequence
// takes it from there. Used by the lobby's reaper once a running match's
// tuning.InstanceLifetime deadline elapses.
func (c *Coordinator) Stop() {
	c.cmds <- stopCmd{}
}

// botHandle names a running bot goroutine and reports when it returns, so
// a stuck bot can be identified and logged instead of silently leaked.
type botHandle struct {
	name string
	done chan struct{}
}

func (c *Coordinator) run(ctx context.Context, cfg Config) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("match", cfg.ID, "game", cfg.Game)

	matchCtx, cancel := context.WithCancel(ctx)

	players := make(map[string]game.Pipe, len(cfg.Usernames))
	theirEnds := make(map[string]*bytesbuf.Conn, len(cfg.Usernames))
	for _, name := range cfg.Usernames {
		ours, theirs := bytesbuf.NewDuplex(tuning.PipeBuffer)
		players[name] = ours
		theirEnds[name] = theirs
	}

	specR, specW := io.Pipe()
	fanout := broadcast.New[Event](tuning.BroadcastBuffer)

	var historyMu sync.Mutex
	history := make([]byte, 0, 4096)

	historyDone := make(chan struct{})
	go func() {
		defer close(historyDone)
		buf := make([]byte, tuning.ChunkSize)
		for {
			n, err := specR.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				historyMu.Lock()
				history = append(history, chunk...)
				historyMu.Unlock()
				fanout.Publish(Event{SpectatorData: chunk})
			}
			if err != nil {
				return
			}
		}
	}()

	var bots []botHandle
	for i := 0; i < cfg.Bots; i++ {
		botResult := cfg.Registry.NewBot(cfg.Game)
		if botResult.Err != nil {
			log.Warn("bot creation failed", "error", botResult.Err)
			continue
		}
		ours, theirs := bytesbuf.NewDuplex(tuning.PipeBuffer)
		botName := syntheticBotName(i)
		players[botName] = ours
		done := make(chan struct{})
		bots = append(bots, botHandle{name: botName, done: done})
		go func(bot game.Bot, conn *bytesbuf.Conn, done chan struct{}) {
			defer close(done)
			bot.Start(matchCtx, conn)
		}(botResult.Bot, theirs, done)
	}

	instanceDone := make(chan struct{})
	go func() {
		defer close(instanceDone)
		cfg.Instance.Start(matchCtx, players, specW)
		specW.Close()
	}()

	unjoined := make(map[string]bool, len(cfg.Usernames))
	for _, name := range cfg.Usernames {
		unjoined[name] = true
	}

	for {
		select {
		case cmd := <-c.cmds:
			switch cc := cmd.(type) {
			case joinCmd:
				if !unjoined[cc.username] {
					cc.reply <- joinResult{err: errAlreadyJoinedOrUnknown(cc.username)}
					continue
				}
				delete(unjoined, cc.username)
				cc.reply <- joinResult{conn: theirEnds[cc.username]}

			case subscribeCmd:
				historyMu.Lock()
				snapshot := append([]byte(nil), history...)
				historyMu.Unlock()
				cc.reply <- subscribeResult{sub: fanout.Subscribe(), history: snapshot}

			case spectatorCountCmd:
				cc.reply <- fanout.Len()

			case stopCmd:
				cancel()
			}

		case <-instanceDone:
			// The game instance has returned; cancel bot tasks right away
			// instead of waiting for them to have already exited on their
			// own, then give them a bounded grace period to notice before
			// moving on regardless.
			cancel()
			waitForBots(log, bots)

			<-historyDone
			historyMu.Lock()
			final := append([]byte(nil), history...)
			historyMu.Unlock()
			fanout.Publish(Event{Ended: true})

			time.Sleep(tuning.EndGracePeriodDuration())
			for _, conn := range theirEnds {
				conn.Close()
			}

			if cfg.Store != nil {
				record := wire.ArchiveRecord{
					ID:        cfg.ID,
					Game:      cfg.Game,
					Name:      cfg.Name,
					Args:      cfg.GameArgs,
					Players:   cfg.Usernames,
					BotCount:  cfg.Bots,
					History:   final,
					CreatedAt: time.Now().Unix(),
				}
				saveCtx, saveCancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := cfg.Store.Save(saveCtx, record); err != nil {
					log.Error("archive save failed", "error", err)
				}
				saveCancel()
			}

			if cfg.OnStopped != nil {
				cfg.OnStopped(cfg.ID)
			}
			return
		}
	}
}

// waitForBots gives every bot task up to tuning.BotShutdownGrace to return
// after its match context was cancelled, logging (but not blocking
// indefinitely on) any that are still running once the grace period
// expires.
func waitForBots(log *slog.Logger, bots []botHandle) {
	if len(bots) == 0 {
		return
	}

	all := make(chan struct{})
	go func() {
		for _, b := range bots {
			<-b.done
		}
		close(all)
	}()

	select {
	case <-all:
		return
	case <-time.After(tuning.BotShutdownGraceDuration()):
	}

	for _, b := range bots {
		select {
		case <-b.done:
		default:
			log.Warn("bot task did not exit within the shutdown grace period", "bot", b.name)
		}
	}
}

// syntheticBotName produces a player-map key for a server-side bot. The '$'
// prefix is reserved: validate.Username excludes it, so a bot slot can
// never collide with a human-chosen username.
func syntheticBotName(i int) string {
	return fmt.Sprintf("$bot%d", i)
}

type joinError struct{ msg string }

func (e joinError) Error() string { return e.msg }

func errAlreadyJoinedOrUnknown(username string) error {
	return joinError{msg: "player slot " + username + " already joined or does not exist"}
}
