package royalur

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"colosseum/internal/game"
)

const (
	defaultTimeout = 90.0
	defaultPace    = 1.5
	maxPace        = 30.0
)

// Builder builds royalur instances and bots.
type Builder struct{}

// New returns a game.Builder for royalur.
func New() game.Builder { return Builder{} }

func (Builder) Name() string { return "royalur" }

func (Builder) Description() string {
	return "The Royal Game of Ur. Two players race 7 tokens each along a " +
		"shared path using the sum of four binary dice; rosette squares " +
		"grant another turn, and landing on an opponent's token (outside " +
		"the central rosette) sends it back to start."
}

func (Builder) NewInstance(params game.Params, args map[string]string) (game.Instance, game.Params, error) {
	switch params.Players {
	case 0:
		params.Players = 2
	case 2:
	default:
		return nil, params, fmt.Errorf("royalur requires exactly 2 players, got %d", params.Players)
	}
	if params.Timeout == 0 {
		params.Timeout = defaultTimeout
	}
	pace, err := game.ArgFloat(args, "pace", defaultPace)
	if err != nil {
		return nil, params, fmt.Errorf("invalid pace: %w", err)
	}
	if pace < 0 || pace > maxPace {
		return nil, params, fmt.Errorf("pace must be between 0 and %g, got %g", maxPace, pace)
	}
	return &Instance{timeout: params.Timeout, pace: pace}, params, nil
}

func (Builder) NewBot() game.Bot { return &Bot{} }

// Instance plays one royalur match to completion.
type Instance struct {
	timeout float64
	pace    float64
}

func writeLine(w io.Writer, line string) error {
	_, err := io.WriteString(w, line+"\n")
	return err
}

func rollDice(rng *rand.Rand) (string, int) {
	total := 0
	dice := make([]string, 4)
	for i := range dice {
		d := rng.Intn(2)
		total += d
		dice[i] = strconv.Itoa(d)
	}
	return strings.Join(dice, " "), total
}

func (g *Instance) Start(ctx context.Context, players map[string]game.Pipe, spectator io.Writer) {
	if len(players) != 2 {
		return
	}
	names := make([]string, 0, 2)
	for name := range players {
		names = append(names, name)
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })

	ins := [2]*bufio.Reader{
		bufio.NewReader(players[names[0]]),
		bufio.NewReader(players[names[1]]),
	}
	pipes := [2]game.Pipe{players[names[0]], players[names[1]]}

	for i := 0; i < 2; i++ {
		_ = writeLine(pipes[0], names[i])
		_ = writeLine(pipes[1], names[i])
		_ = writeLine(spectator, names[i])
	}
	_ = writeLine(pipes[0], "0")
	_ = writeLine(pipes[1], "1")

	board := NewBoard()
	timeout := time.Duration(g.timeout * float64(time.Second))
	pace := time.Duration(g.pace * float64(time.Second))
	turn := 0

	for !board.Finished() {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		rollLine, roll := rollDice(rng)
		_ = writeLine(pipes[0], rollLine)
		_ = writeLine(pipes[1], rollLine)
		_ = writeLine(spectator, rollLine)

		_ = pipes[turn].SetReadDeadline(time.Now().Add(timeout))
		line, err := ins[turn].ReadString('\n')
		if err != nil && line == "" {
			retire(pipes[1-turn], spectator)
			return
		}
		tok, perr := strconv.Atoi(strings.TrimSpace(line))
		if perr != nil || tok < 0 || tok >= tokensPerPlayer {
			retire(pipes[1-turn], spectator)
			return
		}
		time.Sleep(time.Until(start.Add(pace)))

		start = time.Now()
		again, merr := board.MakeMove(turn, tok, roll)
		if merr != nil {
			retire(pipes[1-turn], spectator)
			return
		}
		move := strconv.Itoa(tok)
		_ = writeLine(pipes[1-turn], move)
		_ = writeLine(spectator, move)
		if !again {
			turn = 1 - turn
		}
		time.Sleep(time.Until(start.Add(pace)))
	}
}

func retire(other game.Pipe, spectator io.Writer) {
	_ = writeLine(other, "RETIRE")
	_ = writeLine(spectator, "RETIRE")
}

// Bot plays a random legal move: it picks uniformly among the tokens it may
// legally move, matching the original's randomized-but-legal bot.
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

	if _, ok := readLine(); !ok { // player 0 name
		return
	}
	if _, ok := readLine(); !ok { // player 1 name
		return
	}
	meLine, ok := readLine()
	if !ok {
		return
	}
	me, err := strconv.Atoi(meLine)
	if err != nil {
		return
	}

	board := NewBoard()
	turn := 0
	for !board.Finished() {
		if ctx.Err() != nil {
			return
		}
		rollLine, ok := readLine()
		if !ok {
			return
		}
		roll := 0
		for _, f := range strings.Fields(rollLine) {
			d, err := strconv.Atoi(f)
			if err != nil {
				return
			}
			roll += d
		}

		if turn == me {
			moves := board.ValidMoves(me, roll)
			if len(moves) > 0 {
				tok := moves[rng.Intn(len(moves))]
				again, err := board.MakeMove(me, tok, roll)
				if err != nil {
					return
				}
				if err := writeLine(conn, strconv.Itoa(tok)); err != nil {
					return
				}
				if again {
					turn = 1 - turn
				}
			}
			// No legal move: the original leaves this round's line
			// unwritten, letting the server's read deadline retire us.
		} else {
			if len(board.ValidMoves(1-me, roll)) > 0 {
				line, ok := readLine()
				if !ok {
					return
				}
				if line == "RETIRE" {
					return
				}
				tok, err := strconv.Atoi(line)
				if err != nil {
					return
				}
				again, err := board.MakeMove(1-me, tok, roll)
				if err != nil {
					return
				}
				if again {
					turn = 1 - turn
				}
			}
		}
		turn = 1 - turn
	}
}
