// Package session implements the per-connection client state machine:
// handshake, then one of several sub-loops (lobby-subscribed, joined/play,
// spectate) multiplexing a WebSocket connection with lobby and play
// coordinator events. Keepalive (read deadline + pong handler + ping
// ticker) and per-message write deadlines generalize the teacher's
// readPump/writePump pair (internal/handlers/websocket.go) from a
// per-game-session client into this spec's single per-connection client.
//
// A single background goroutine owns conn.ReadMessage (gorilla/websocket
// forbids concurrent reads); every sub-loop below consumes decoded frames
// from the shared s.incoming channel instead of reading the socket itself.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"colosseum/internal/broadcast"
	"colosseum/internal/game"
	"colosseum/internal/lobby"
	"colosseum/internal/play"
	"colosseum/internal/store"
	"colosseum/internal/tuning"
	"colosseum/internal/wire"
)

const (
	pingTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	maxTextFrame = 4096
)

// Deps are the actors a session talks to; shared across every connection.
type Deps struct {
	Registry *game.Registry
	Lobby    *lobby.Lobby
	Store    store.Store
	Logger   *slog.Logger
}

type frame struct {
	messageType int
	data        []byte
}

// Session owns one accepted WebSocket connection end to end.
type Session struct {
	conn *websocket.Conn
	deps Deps
	log  *slog.Logger

	writeMu  chan struct{} // 1-buffered mutex: serializes concurrent writers
	incoming chan frame
}

var errSessionClosed = errors.New("session: connection closed")

// Run drives an already-upgraded WebSocket connection until it closes or a
// fatal protocol error occurs.
func Run(ctx context.Context, conn *websocket.Conn, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Session{
		conn:     conn,
		deps:     deps,
		log:      deps.Logger,
		writeMu:  make(chan struct{}, 1),
		incoming: make(chan frame),
	}
	s.writeMu <- struct{}{}
	defer conn.Close()

	if tcpConn, ok := conn.UnderlyingConn().(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			s.log.Warn("failed to set TCP_NODELAY", "error", err)
		}
	}

	conn.SetReadLimit(maxTextFrame)
	conn.SetReadDeadline(time.Now().Add(pingTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pingTimeout))
		return nil
	})

	readerCtx, stopReader := context.WithCancel(ctx)
	defer stopReader()
	go s.readLoop(readerCtx)

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go s.pingLoop(pingCtx)

	if !s.handshake() {
		return
	}
	s.mainLoop(ctx)
}

// readLoop is the connection's sole reader; it forwards every frame onto
// s.incoming until the socket errors, then closes the channel.
func (s *Session) readLoop(ctx context.Context) {
	defer close(s.incoming)
	for {
		messageType, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case s.incoming <- frame{messageType: messageType, data: raw}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeControl(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) writeControl(messageType int, data []byte) error {
	<-s.writeMu
	defer func() { s.writeMu <- struct{}{} }()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(messageType, data)
}

func (s *Session) sendReply(r wire.Reply) error {
	raw, err := wire.Forge(r)
	if err != nil {
		s.log.Error("forge reply failed", "error", err)
		return err
	}
	return s.writeControl(websocket.TextMessage, raw)
}

func (s *Session) sendBinary(data []byte) error {
	return s.writeControl(websocket.BinaryMessage, data)
}

// nextRequest blocks for the next text frame decoded as a wire.Request,
// skipping over nothing: any non-text frame while a text frame is expected
// is a protocol violation and ends the connection.
func (s *Session) nextRequest() (wire.Request, bool) {
	f, ok := <-s.incoming
	if !ok {
		return wire.Request{}, false
	}
	if f.messageType != websocket.TextMessage {
		s.log.Warn("expected text frame for protocol message")
		return wire.Request{}, false
	}
	req, err := wire.Parse(f.data)
	if err != nil {
		s.log.Warn("malformed request", "error", err)
		return wire.Request{}, false
	}
	return req, true
}

func (s *Session) handshake() bool {
	req, ok := s.nextRequest()
	if !ok || req.Type != wire.ReqHandshake {
		return false
	}
	_ = s.sendReply(wire.Reply{Type: wire.RepHandshake, Magic: wire.Magic, Version: wire.Version})
	return req.Magic == wire.Magic && req.Version == wire.Version
}

// mainLoop dispatches one-shot requests and hands off to a sub-loop for
// any request that opens a longer-lived subscription.
func (s *Session) mainLoop(ctx context.Context) {
	for {
		req, ok := s.nextRequest()
		if !ok {
			return
		}
		if !s.dispatchMain(ctx, req) {
			return
		}
	}
}

func (s *Session) dispatchMain(ctx context.Context, req wire.Request) bool {
	switch req.Type {
	case wire.ReqGameList:
		games := s.deps.Registry.List()
		return s.sendReply(wire.Reply{Type: wire.RepGameList, Games: games}) == nil

	case wire.ReqGameDescription:
		desc := s.deps.Registry.Description(req.Game)
		return s.sendReply(wire.Reply{Type: wire.RepGameDescription, Description: desc}) == nil

	case wire.ReqGameNew:
		return s.handleGameNew(req)

	case wire.ReqLobbyList:
		infos := s.deps.Lobby.GetList()
		return s.sendReply(wire.Reply{Type: wire.RepLobbyList, InfoList: infos}) == nil

	case wire.ReqLobbySubscribe:
		s.lobbySubscribedLoop(ctx)
		return true

	case wire.ReqLobbyJoinMatch:
		return s.handleJoinMatch(ctx, req)

	case wire.ReqSpectateJoin:
		s.spectateLoop(ctx, req.ID)
		return true

	case wire.ReqHistoryList:
		return s.handleHistoryList(ctx)

	case wire.ReqHistoryMatch:
		return s.handleHistoryMatch(ctx, req.ID)

	default:
		s.log.Warn("unexpected request in main state", "type", req.Type)
		return false
	}
}

func (s *Session) handleGameNew(req wire.Request) bool {
	id, err := s.deps.Lobby.NewGame(lobby.NewGameRequest{
		Name:         req.Name,
		Game:         req.Game,
		Params:       req.Params,
		Args:         req.Args,
		Password:     valueOr(req.Password, ""),
		Verification: valueOr(req.Verification, ""),
	})
	if err != nil {
		return s.sendReply(wire.Reply{Type: wire.RepGameNew, Error: err.Error()}) == nil
	}
	return s.sendReply(wire.Reply{Type: wire.RepGameNew, ID: id}) == nil
}

func valueOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

func (s *Session) handleHistoryList(ctx context.Context) bool {
	if s.deps.Store == nil {
		return s.sendReply(wire.Reply{Type: wire.RepHistoryList}) == nil
	}
	ids, err := s.deps.Store.List(ctx)
	if err != nil {
		s.log.Error("history list failed", "error", err)
		return s.sendReply(wire.Reply{Type: wire.RepHistoryList}) == nil
	}
	return s.sendReply(wire.Reply{Type: wire.RepHistoryList, Ids: ids}) == nil
}

func (s *Session) handleHistoryMatch(ctx context.Context, id string) bool {
	if s.deps.Store == nil {
		return s.sendReply(wire.Reply{Type: wire.RepHistoryMatch, Error: "no archive backend configured"}) == nil
	}
	record, err := s.deps.Store.Retrieve(ctx, id)
	if err != nil {
		return s.sendReply(wire.Reply{Type: wire.RepHistoryMatch, Error: err.Error()}) == nil
	}
	return s.sendReply(wire.Reply{Type: wire.RepHistoryMatch, Record: record}) == nil
}

// lobbySubscribedLoop forwards lobby-wide updates until the client sends
// LobbyUnsubscribe or disconnects; a Lagged subscriber is fatal, since the
// client cannot cheaply recover lost ordering.
func (s *Session) lobbySubscribedLoop(ctx context.Context) {
	sub, snapshot := s.deps.Lobby.Subscribe()
	defer sub.Unsubscribe()

	if s.sendReply(wire.Reply{Type: wire.RepLobbySubscribed, InfoList: snapshot}) != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Lagged:
			s.conn.Close()
			return
		case reply, ok := <-sub.Events:
			if !ok {
				return
			}
			if s.sendReply(reply) != nil {
				return
			}
		case f, ok := <-s.incoming:
			if !ok {
				return
			}
			req, ok := s.decodeTextFrame(f)
			if !ok {
				return
			}
			if req.Type == wire.ReqLobbyUnsubscribe {
				_ = s.sendReply(wire.Reply{Type: wire.RepLobbyUnsubscribed})
				return
			}
			s.log.Warn("unexpected request while lobby-subscribed", "type", req.Type)
			return
		}
	}
}

func (s *Session) decodeTextFrame(f frame) (wire.Request, bool) {
	if f.messageType != websocket.TextMessage {
		return wire.Request{}, false
	}
	req, err := wire.Parse(f.data)
	if err != nil {
		return wire.Request{}, false
	}
	return req, true
}

func (s *Session) handleJoinMatch(ctx context.Context, req wire.Request) bool {
	info, events, err := s.deps.Lobby.JoinMatch(req.ID, req.Username, valueOr(req.Password, ""))
	if err != nil {
		return s.sendReply(wire.Reply{Type: wire.RepLobbyJoinedMatch, Error: err.Error()}) == nil
	}
	if s.sendReply(wire.Reply{Type: wire.RepLobbyJoinedMatch, Info: &info}) != nil {
		return false
	}
	s.joinedLoop(ctx, req.ID, req.Username, events)
	return true
}

// joinedLoop forwards lobby updates for the joined match until the match
// starts (then hands off to the play sub-loop) or expires, while also
// watching for a LobbyLeaveMatch from the client.
func (s *Session) joinedLoop(ctx context.Context, matchID, username string, events chan lobby.MatchEvent) {
	for {
		select {
		case <-ctx.Done():
			return

		case f, ok := <-s.incoming:
			if !ok {
				return
			}
			req, ok := s.decodeTextFrame(f)
			if !ok {
				return
			}
			if req.Type == wire.ReqLobbyLeaveMatch {
				if err := s.deps.Lobby.LeaveMatch(matchID, username); err != nil {
					_ = s.sendReply(wire.Reply{Type: wire.RepLobbyLeavedMatch, Error: err.Error()})
					return
				}
				_ = s.sendReply(wire.Reply{Type: wire.RepLobbyLeavedMatch})
				return
			}

		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case lobby.EventUpdate:
				if s.sendReply(wire.Reply{Type: wire.RepLobbyUpdate, Info: &ev.Info}) != nil {
					return
				}
			case lobby.EventStarted:
				if s.sendReply(wire.Reply{Type: wire.RepMatchStarted}) != nil {
					return
				}
				s.playLoop(ctx, ev.Conn, events)
				return
			case lobby.EventExpired:
				_ = s.sendReply(wire.Reply{Type: wire.RepLobbyDelete, ID: matchID})
				return
			case lobby.EventEnded:
				return
			}
		}
	}
}

// playLoop bridges WebSocket binary frames to/from the player's duplex
// pipe while still watching for the lobby's Ended event. A private
// goroutine drains the pipe (the only other source of data besides
// s.incoming) and forwards chunks onto pipeToClient.
func (s *Session) playLoop(ctx context.Context, conn io.ReadWriteCloser, events chan lobby.MatchEvent) {
	defer conn.Close()

	pipeToClient := make(chan []byte)
	pipeDone := make(chan struct{})
	go func() {
		defer close(pipeDone)
		buf := make([]byte, tuning.ChunkSize)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case pipeToClient <- chunk:
				case <-pipeDone:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-pipeToClient:
			if !ok {
				return
			}
			if s.sendBinary(chunk) != nil {
				return
			}
		case f, ok := <-s.incoming:
			if !ok {
				return
			}
			if f.messageType != websocket.BinaryMessage {
				continue
			}
			if _, err := conn.Write(f.data); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == lobby.EventEnded {
				_ = s.sendReply(wire.Reply{Type: wire.RepMatchEnded})
				return
			}
		case <-pipeDone:
			return
		}
	}
}

// spectateLoop joins a match as a spectator: replays history as chunked
// binary frames, then streams live spectator data and match-end events.
func (s *Session) spectateLoop(ctx context.Context, matchID string) {
	waitSub, matchSub, history, err := s.deps.Lobby.SpectateMatch(matchID)
	if err != nil {
		_ = s.sendReply(wire.Reply{Type: wire.RepSpectateJoined, Error: err.Error()})
		return
	}
	if s.sendReply(wire.Reply{Type: wire.RepSpectateJoined, ID: matchID}) != nil {
		return
	}

	if waitSub != nil {
		matchSub, history, err = s.awaitMatchStart(ctx, waitSub, matchID)
		if err != nil {
			return
		}
	}

	if s.sendReply(wire.Reply{Type: wire.RepSpectateStarted}) != nil {
		return
	}
	for len(history) > 0 {
		n := tuning.ChunkSize
		if n > len(history) {
			n = len(history)
		}
		if s.sendBinary(history[:n]) != nil {
			return
		}
		history = history[n:]
	}
	if s.sendReply(wire.Reply{Type: wire.RepSpectateSynced}) != nil {
		return
	}
	if matchSub == nil {
		return
	}
	defer matchSub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-matchSub.Lagged:
			_ = s.sendReply(wire.Reply{Type: wire.RepSpectateEnded})
			return
		case ev, ok := <-matchSub.Events:
			if !ok {
				return
			}
			if ev.Ended {
				_ = s.sendReply(wire.Reply{Type: wire.RepSpectateEnded})
				return
			}
			if len(ev.SpectatorData) > 0 {
				if s.sendBinary(ev.SpectatorData) != nil {
					return
				}
			}
		case f, ok := <-s.incoming:
			if !ok {
				return
			}
			req, ok := s.decodeTextFrame(f)
			if !ok {
				return
			}
			if req.Type == wire.ReqSpectateLeave {
				_ = s.sendReply(wire.Reply{Type: wire.RepSpectateLeaved})
				return
			}
		}
	}
}

// awaitMatchStart waits on the pre-start match-level channel until it
// publishes Started, then re-subscribes to the play coordinator's own
// feed so the spectator continues from a properly atomic history
// snapshot (the coordinator guarantees subscribe+snapshot is atomic;
// waitSub only guarantees a Started signal, not a byte-accurate handoff).
func (s *Session) awaitMatchStart(ctx context.Context, waitSub *broadcast.Subscription[play.Event], matchID string) (*broadcast.Subscription[play.Event], []byte, error) {
	defer waitSub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil, nil, errSessionClosed
		case <-waitSub.Lagged:
			return nil, nil, errSessionClosed
		case ev, ok := <-waitSub.Events:
			if !ok {
				return nil, nil, errSessionClosed
			}
			if ev.Started {
				_, matchSub, history, err := s.deps.Lobby.SpectateMatch(matchID)
				return matchSub, history, err
			}
		}
	}
}
