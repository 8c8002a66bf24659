// Package lobby implements the match directory actor: the single goroutine
// that owns every match's lifecycle from creation through completion. It
// generalizes the original's lobby actor (src/lobby.rs, reconstructed from
// spec.md since the retrieved snapshot of that file was a stale historical
// version) and, for its periodic deadline sweep, the teacher's
// internal/matchmaking/queue.go polling loop — same "ticker drives a sweep"
// shape, with an in-memory heap of match deadlines standing in for Mongo
// cursor scans.
package lobby

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"time"

	"colosseum/internal/broadcast"
	"colosseum/internal/bytesbuf"
	"colosseum/internal/game"
	"colosseum/internal/play"
	"colosseum/internal/store"
	"colosseum/internal/tuning"
	"colosseum/internal/validate"
	"colosseum/internal/wire"
)

// MatchState is a match's position in its own lifecycle.
type MatchState int

const (
	Waiting MatchState = iota
	Running
)

// EventKind labels a MatchEvent delivered to one joined player.
type EventKind int

const (
	EventUpdate EventKind = iota
	EventExpired
	EventStarted
	EventEnded
)

// MatchEvent is what a joined player's session receives over its private
// event channel, the Go analogue of the original's per-player mpsc sender.
type MatchEvent struct {
	Kind EventKind
	Info wire.MatchInfo
	Conn *bytesbuf.Conn // set only on EventStarted
}

type playerSlot struct {
	username string
	events   chan MatchEvent
}

type match struct {
	id       string
	gameName string
	name     string
	args     map[string]string
	params   game.Params
	password string
	verified bool
	state    MatchState
	deadline time.Time
	heapIdx  int

	players map[string]*playerSlot
	order   []string // join order, for deterministic bot/player pairing

	waitFanout *broadcast.Broadcaster[play.Event] // spectators before the match starts
	coord      *play.Coordinator

	instance game.Instance
}

func (m *match) info(spectators int) wire.MatchInfo {
	connected := make([]string, 0, len(m.players))
	for _, name := range m.order {
		connected = append(connected, name)
	}
	return wire.MatchInfo{
		ID:         m.id,
		Game:       m.gameName,
		Name:       m.name,
		Players:    m.params.Players,
		Bots:       m.params.Bots,
		Timeout:    m.params.Timeout,
		Args:       m.args,
		Running:    m.state == Running,
		Time:       m.deadline.Unix(),
		Connected:  connected,
		Spectators: spectators,
		Password:   m.password != "",
		Verified:   m.verified,
	}
}

// deadlineHeap orders matches by expiry for the reaper sweep.
type deadlineHeap []*match

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].heapIdx = i; h[j].heapIdx = j }
func (h *deadlineHeap) Push(x interface{}) { m := x.(*match); m.heapIdx = len(*h); *h = append(*h, m) }
func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	m := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return m
}

// Config fixes the lobby's dependencies and tunable policy knobs.
type Config struct {
	Registry             *game.Registry
	Store                store.Store
	VerificationPassword string // empty disables verification entirely
	Logger               *slog.Logger
}

// NewGameRequest is the validated input to NewGame.
type NewGameRequest struct {
	Name         string
	Game         string
	Params       wire.GameParams
	Args         map[string]string
	Password     string
	Verification string
}

// Lobby is the handle other actors and the HTTP front door use to talk to
// the match directory actor.
type Lobby struct {
	cmds chan any
}

type newGameCmd struct {
	req   NewGameRequest
	reply chan newGameResult
}
type newGameResult struct {
	id  string
	err error
}

type joinMatchCmd struct {
	id       string
	username string
	password string
	reply    chan joinMatchResult
}
type joinMatchResult struct {
	info   wire.MatchInfo
	events chan MatchEvent
	err    error
}

type leaveMatchCmd struct {
	id       string
	username string
	reply    chan error
}

type spectateMatchCmd struct {
	id    string
	reply chan spectateMatchResult
}
type spectateMatchResult struct {
	// Exactly one of (waitSub, matchSub) is set.
	waitSub  *broadcast.Subscription[play.Event]
	matchSub *broadcast.Subscription[play.Event]
	history  []byte
	err      error
}

type refreshGameCmd struct{ id string }
type deleteGameCmd struct{ id string }

type getListCmd struct {
	reply chan []wire.MatchInfo
}

type subscribeCmd struct {
	reply chan subscribeLobbyResult
}
type subscribeLobbyResult struct {
	sub  *broadcast.Subscription[wire.Reply]
	snap []wire.MatchInfo
}

// Start launches the lobby actor and returns a handle to it.
func Start(ctx context.Context, cfg Config) *Lobby {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	l := &Lobby{cmds: make(chan any, tuning.QueueBuffer)}
	go l.run(ctx, cfg)
	return l
}

func (l *Lobby) run(ctx context.Context, cfg Config) {
	matches := make(map[string]*match)
	dq := &deadlineHeap{}
	heap.Init(dq)
	updates := broadcast.New[wire.Reply](tuning.BroadcastBuffer)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	publishDirectory := func(m *match) {
		spectators := 0
		if m.coord != nil {
			spectators = m.coord.SpectatorCount()
		} else {
			spectators = m.waitFanout.Len()
		}
		info := m.info(spectators)
		updates.Publish(wire.Reply{Type: wire.RepLobbyNew, Info: &info})
	}

	matchUpdate := func(m *match) {
		for {
			spectators := 0
			if m.coord != nil {
				spectators = m.coord.SpectatorCount()
			} else {
				spectators = m.waitFanout.Len()
			}
			info := m.info(spectators)
			dropped := false
			for name, slot := range m.players {
				select {
				case slot.events <- MatchEvent{Kind: EventUpdate, Info: info}:
				default:
					delete(m.players, name)
					dropped = true
				}
			}
			if !dropped {
				break
			}
		}
		spectators := 0
		if m.coord != nil {
			spectators = m.coord.SpectatorCount()
		} else {
			spectators = m.waitFanout.Len()
		}
		info := m.info(spectators)
		updates.Publish(wire.Reply{Type: wire.RepLobbyUpdate, Info: &info})
	}

	startMatch := func(m *match) {
		usernames := append([]string(nil), m.order...)
		id := m.id
		m.coord = play.Start(ctx, play.Config{
			ID:        m.id,
			Game:      m.gameName,
			Name:      m.name,
			GameArgs:  m.args,
			Instance:  m.instance,
			Params:    m.params,
			Usernames: usernames,
			Bots:      m.params.Bots,
			Registry:  cfg.Registry,
			Store:     cfg.Store,
			Logger:    cfg.Logger,
			OnStopped: func(string) {
				l.DeleteGame(id)
			},
		})
		m.state = Running
		m.deadline = time.Now().Add(tuning.InstanceLifetimeDuration())
		heap.Fix(dq, m.heapIdx)
		m.waitFanout.Publish(play.Event{Started: true})

		for _, name := range m.order {
			slot := m.players[name]
			conn, err := m.coord.Join(name)
			if err != nil {
				cfg.Logger.Error("join after start failed", "match", m.id, "player", name, "error", err)
				continue
			}
			select {
			case slot.events <- MatchEvent{Kind: EventStarted, Conn: conn}:
			default:
				cfg.Logger.Warn("player slot full delivering Started event", "match", m.id, "player", name)
			}
		}
	}

	removeMatch := func(id string) {
		m, ok := matches[id]
		if !ok {
			return
		}
		delete(matches, id)
		if m.heapIdx >= 0 && m.heapIdx < dq.Len() && (*dq)[m.heapIdx] == m {
			heap.Remove(dq, m.heapIdx)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			for dq.Len() > 0 && (*dq)[0].deadline.Before(now) {
				m := heap.Pop(dq).(*match)
				if m.state != Waiting {
					// Running past its lifetime: force it to stop via the
					// play coordinator. deleteGameCmd (driven by the
					// coordinator's OnStopped callback) removes it from
					// the directory once it actually winds down.
					cfg.Logger.Info("reaping match that exceeded its running lifetime", "match", m.id)
					m.coord.Stop()
					continue
				}
				delete(matches, m.id)
				for _, slot := range m.players {
					select {
					case slot.events <- MatchEvent{Kind: EventExpired}:
					default:
					}
				}
				updates.Publish(wire.Reply{Type: wire.RepLobbyDelete, ID: m.id})
			}

		case cmd := <-l.cmds:
			switch c := cmd.(type) {

			case getListCmd:
				infos := make([]wire.MatchInfo, 0, len(matches))
				for _, m := range matches {
					spectators := 0
					if m.coord != nil {
						spectators = m.coord.SpectatorCount()
					} else {
						spectators = m.waitFanout.Len()
					}
					infos = append(infos, m.info(spectators))
				}
				c.reply <- infos

			case subscribeCmd:
				infos := make([]wire.MatchInfo, 0, len(matches))
				for _, m := range matches {
					spectators := 0
					if m.coord != nil {
						spectators = m.coord.SpectatorCount()
					} else {
						spectators = m.waitFanout.Len()
					}
					infos = append(infos, m.info(spectators))
				}
				c.reply <- subscribeLobbyResult{sub: updates.Subscribe(), snap: infos}

			case newGameCmd:
				id, err := l.handleNewGame(cfg, matches, dq, c.req)
				c.reply <- newGameResult{id: id, err: err}
				if err == nil {
					publishDirectory(matches[id])
				}

			case joinMatchCmd:
				m, ok := matches[c.id]
				if !ok {
					c.reply <- joinMatchResult{err: fmt.Errorf("no such match %q", c.id)}
					continue
				}
				if m.state != Waiting {
					c.reply <- joinMatchResult{err: fmt.Errorf("match %q already running", c.id)}
					continue
				}
				if !validate.Username.MatchString(c.username) {
					c.reply <- joinMatchResult{err: fmt.Errorf("invalid username")}
					continue
				}
				if _, taken := m.players[c.username]; taken {
					c.reply <- joinMatchResult{err: fmt.Errorf("username %q already taken", c.username)}
					continue
				}
				if m.password != "" && m.password != c.password {
					c.reply <- joinMatchResult{err: fmt.Errorf("wrong password")}
					continue
				}
				slot := &playerSlot{username: c.username, events: make(chan MatchEvent, tuning.QueueBuffer)}
				m.players[c.username] = slot
				m.order = append(m.order, c.username)
				m.deadline = time.Now().Add(tuning.InstanceLifetimeDuration())
				heap.Fix(dq, m.heapIdx)

				c.reply <- joinMatchResult{info: m.info(m.waitFanout.Len()), events: slot.events}

				if len(m.players)+m.params.Bots >= m.params.Players {
					startMatch(m)
				}
				matchUpdate(m)

			case leaveMatchCmd:
				m, ok := matches[c.id]
				if !ok {
					c.reply <- fmt.Errorf("no such match %q", c.id)
					continue
				}
				if m.state != Waiting {
					c.reply <- fmt.Errorf("match %q already running", c.id)
					continue
				}
				delete(m.players, c.username)
				newOrder := m.order[:0]
				for _, name := range m.order {
					if name != c.username {
						newOrder = append(newOrder, name)
					}
				}
				m.order = newOrder
				m.deadline = time.Now().Add(tuning.InstanceLifetimeDuration())
				heap.Fix(dq, m.heapIdx)
				c.reply <- nil
				matchUpdate(m)

			case spectateMatchCmd:
				m, ok := matches[c.id]
				if !ok {
					c.reply <- spectateMatchResult{err: fmt.Errorf("no such match %q", c.id)}
					continue
				}
				if m.state == Running {
					sub, history := m.coord.Subscribe()
					c.reply <- spectateMatchResult{matchSub: sub, history: history}
				} else {
					c.reply <- spectateMatchResult{waitSub: m.waitFanout.Subscribe()}
				}

			case refreshGameCmd:
				if m, ok := matches[c.id]; ok {
					matchUpdate(m)
				}

			case deleteGameCmd:
				if m, ok := matches[c.id]; ok {
					for _, slot := range m.players {
						select {
						case slot.events <- MatchEvent{Kind: EventEnded}:
						default:
						}
					}
					removeMatch(c.id)
					updates.Publish(wire.Reply{Type: wire.RepLobbyDelete, ID: c.id})
				}
			}
		}
	}
}

func (l *Lobby) handleNewGame(cfg Config, matches map[string]*match, dq *deadlineHeap, req NewGameRequest) (string, error) {
	if len(matches) >= tuning.MaxGameInstances {
		return "", fmt.Errorf("too many concurrent matches")
	}
	if !validate.GameName.MatchString(req.Name) {
		return "", fmt.Errorf("invalid match name")
	}
	if req.Password != "" && !validate.Password.MatchString(req.Password) {
		return "", fmt.Errorf("invalid password")
	}

	verified := false
	if req.Verification != "" {
		if cfg.VerificationPassword == "" || req.Verification != cfg.VerificationPassword {
			return "", fmt.Errorf("wrong verification password")
		}
		verified = true
	}

	params := game.Params{Bots: req.Params.Bots}
	if req.Params.Players != nil {
		params.Players = *req.Params.Players
	}
	if req.Params.Timeout != nil {
		params.Timeout = *req.Params.Timeout
	}

	result := cfg.Registry.NewInstance(req.Game, params, req.Args)
	if result.Err != nil {
		return "", result.Err
	}
	norm := result.Params

	if norm.Bots >= norm.Players {
		return "", fmt.Errorf("bots (%d) must be fewer than players (%d)", norm.Bots, norm.Players)
	}
	if norm.Players > tuning.MaxPlayers {
		return "", fmt.Errorf("players (%d) exceeds the cap of %d", norm.Players, tuning.MaxPlayers)
	}
	if norm.Timeout < tuning.MinTimeout || norm.Timeout > tuning.MaxTimeout {
		return "", fmt.Errorf("timeout %g outside [%g, %g]", norm.Timeout, tuning.MinTimeout, tuning.MaxTimeout)
	}

	id, err := wire.NewMatchID()
	if err != nil {
		return "", err
	}

	m := &match{
		id:         id,
		gameName:   req.Game,
		name:       req.Name,
		args:       req.Args,
		params:     norm,
		password:   req.Password,
		verified:   verified,
		state:      Waiting,
		deadline:   time.Now().Add(tuning.InstanceLifetimeDuration()),
		players:    make(map[string]*playerSlot),
		waitFanout: broadcast.New[play.Event](tuning.BroadcastBuffer),
		instance:   result.Instance,
	}
	matches[id] = m
	heap.Push(dq, m)

	return id, nil
}

// GetList returns a snapshot of every current match.
func (l *Lobby) GetList() []wire.MatchInfo {
	reply := make(chan []wire.MatchInfo, 1)
	l.cmds <- getListCmd{reply: reply}
	return <-reply
}

// Subscribe returns the lobby-wide update feed plus a directory snapshot.
func (l *Lobby) Subscribe() (*broadcast.Subscription[wire.Reply], []wire.MatchInfo) {
	reply := make(chan subscribeLobbyResult, 1)
	l.cmds <- subscribeCmd{reply: reply}
	r := <-reply
	return r.sub, r.snap
}

// NewGame validates and creates a new match, returning its id.
func (l *Lobby) NewGame(req NewGameRequest) (string, error) {
	reply := make(chan newGameResult, 1)
	l.cmds <- newGameCmd{req: req, reply: reply}
	r := <-reply
	return r.id, r.err
}

// JoinMatch seats username into match id, returning its private event
// channel; Started events on that channel carry the player's duplex pipe.
func (l *Lobby) JoinMatch(id, username, password string) (wire.MatchInfo, chan MatchEvent, error) {
	reply := make(chan joinMatchResult, 1)
	l.cmds <- joinMatchCmd{id: id, username: username, password: password, reply: reply}
	r := <-reply
	return r.info, r.events, r.err
}

// LeaveMatch removes username from a still-Waiting match.
func (l *Lobby) LeaveMatch(id, username string) error {
	reply := make(chan error, 1)
	l.cmds <- leaveMatchCmd{id: id, username: username, reply: reply}
	return <-reply
}

// SpectateMatch subscribes a spectator either to the pre-start match-level
// channel or, once running, to the play coordinator's feed plus history.
func (l *Lobby) SpectateMatch(id string) (waitSub, matchSub *broadcast.Subscription[play.Event], history []byte, err error) {
	reply := make(chan spectateMatchResult, 1)
	l.cmds <- spectateMatchCmd{id: id, reply: reply}
	r := <-reply
	return r.waitSub, r.matchSub, r.history, r.err
}

// RefreshGame forces an Update broadcast, used when a player's connection
// drops without a formal LeaveMatch.
func (l *Lobby) RefreshGame(id string) {
	l.cmds <- refreshGameCmd{id: id}
}

// DeleteGame is called by the play coordinator once a match has ended.
func (l *Lobby) DeleteGame(id string) {
	l.cmds <- deleteGameCmd{id: id}
}
