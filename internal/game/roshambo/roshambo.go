// Package roshambo is a built-in two-player rock-paper-scissors-for-N-rounds
// game, ported from the original src/games/roshambo/{builder,instance,bot}.rs.
// Moves travel as newline-terminated ASCII lines over each player's pipe,
// exactly like the original's line protocol — the simplest possible
// game.Instance that still exercises the full pipe/timeout/retire path.
package roshambo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"colosseum/internal/game"
)

const (
	defaultRounds  = 3
	defaultTimeout = 1.0
)

var moves = [3]string{"ROCK", "PAPER", "SCISSORS"}

// Builder builds roshambo instances and bots.
type Builder struct{}

// New returns a game.Builder for roshambo.
func New() game.Builder { return Builder{} }

func (Builder) Name() string { return "roshambo" }

func (Builder) Description() string {
	return "Best-of-N rock-paper-scissors. Two players, each round every " +
		"player sends ROCK, PAPER, or SCISSORS; a player that fails to " +
		"answer within the timeout, or sends garbage, retires."
}

func (Builder) NewInstance(params game.Params, args map[string]string) (game.Instance, game.Params, error) {
	if params.Players != 0 && params.Players != 2 {
		return nil, params, fmt.Errorf("roshambo requires exactly 2 players, got %d", params.Players)
	}
	params.Players = 2
	if params.Timeout == 0 {
		params.Timeout = defaultTimeout
	}
	rounds, err := game.ArgInt(args, "rounds", defaultRounds)
	if err != nil {
		return nil, params, fmt.Errorf("invalid rounds: %w", err)
	}
	if rounds <= 0 {
		return nil, params, fmt.Errorf("rounds must be positive, got %d", rounds)
	}
	return &Instance{rounds: rounds, timeout: params.Timeout}, params, nil
}

func (Builder) NewBot() game.Bot { return &Bot{} }

// Instance plays one roshambo match to completion.
type Instance struct {
	rounds  int
	timeout float64
}

func writeLine(w io.Writer, line string) error {
	_, err := io.WriteString(w, line+"\n")
	return err
}

type playerHandle struct {
	name string
	pipe game.Pipe
	in   *bufio.Reader
}

func (g *Instance) Start(ctx context.Context, players map[string]game.Pipe, spectator io.Writer) {
	if len(players) != 2 {
		return
	}
	names := make([]string, 0, 2)
	for name := range players {
		names = append(names, name)
	}
	rand.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })

	p := [2]playerHandle{}
	for i, name := range names {
		pipe := players[name]
		p[i] = playerHandle{name: name, pipe: pipe, in: bufio.NewReader(pipe)}
	}

	for i := 0; i < 2; i++ {
		_ = writeLine(spectator, p[i].name)
		_ = writeLine(p[i].pipe, p[i].name)
		_ = writeLine(p[i].pipe, p[1-i].name)
		_ = writeLine(p[i].pipe, fmt.Sprintf("%d", g.rounds))
	}
	_ = writeLine(spectator, fmt.Sprintf("%d", g.rounds))

	timeout := time.Duration(g.timeout * float64(time.Second))
	pace := 300 * time.Millisecond

	for round := 0; round < g.rounds; round++ {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		r0 := readMove(&p[0], timeout)
		r1 := readMove(&p[1], timeout)
		time.Sleep(time.Until(start.Add(pace)))

		switch {
		case r0 != "" && r1 != "":
			_ = writeLine(p[1].pipe, r0)
			_ = writeLine(spectator, r0)
			_ = writeLine(p[0].pipe, r1)
			_ = writeLine(spectator, r1)
		case r0 == "" && r1 != "":
			_ = writeLine(p[1].pipe, "RETIRE")
			_ = writeLine(spectator, "RETIRE")
			_ = writeLine(spectator, r1)
			return
		case r0 != "" && r1 == "":
			_ = writeLine(p[0].pipe, "RETIRE")
			_ = writeLine(spectator, r0)
			_ = writeLine(spectator, "RETIRE")
			return
		default:
			_ = writeLine(spectator, "RETIRE")
			_ = writeLine(spectator, "RETIRE")
			return
		}
	}
}

// readMove sets a read deadline for one move and returns the move ("ROCK",
// "PAPER", "SCISSORS") or "" if the player timed out, disconnected, or sent
// something unrecognized.
func readMove(p *playerHandle, timeout time.Duration) string {
	_ = p.pipe.SetReadDeadline(time.Now().Add(timeout))
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	move := strings.TrimSpace(line)
	for _, m := range moves {
		if move == m {
			return m
		}
	}
	return ""
}

// Bot picks a move uniformly at random every round — deliberately simple,
// matching the original's bot, which never adapts to its opponent.
type Bot struct{}

func (*Bot) Start(ctx context.Context, conn game.Pipe) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	r := bufio.NewReader(conn)
	readLine := func() (string, bool) {
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return "", false
		}
		return strings.TrimSpace(line), true
	}
	if _, ok := readLine(); !ok { // my name
		return
	}
	if _, ok := readLine(); !ok { // opponent name
		return
	}
	roundsLine, ok := readLine()
	if !ok {
		return
	}
	var rounds int
	if _, err := fmt.Sscanf(roundsLine, "%d", &rounds); err != nil {
		return
	}
	for i := 0; i < rounds; i++ {
		if ctx.Err() != nil {
			return
		}
		move := moves[rng.Intn(len(moves))]
		if err := writeLine(conn, move); err != nil {
			return
		}
		reply, ok := readLine()
		if !ok || reply == "RETIRE" {
			return
		}
	}
}
