package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"blockroom.ai/internal/sim/session"
)

const consoleHelp = `commands:
  show                      board, hand and turn
  place SLOT ROW COL        place a hand piece (slots 0-2)
  preview SLOT ROW COL      show what a placement would clear
  pass                      give up the rest of the turn
  skip                      pass on your turn, vote to skip otherwise
  veto                      veto the skip vote against you
  reset                     vote to reset the board
  start [ROUNDS]            host: start the game
  kick ID                   host: remove a player`

type command func(s *session.Session) (string, error)

var errUsage = errors.New("usage")

func parseCommand(line string) (command, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return nil, nil
	}
	ints := func(want int) ([]int, error) {
		if len(f)-1 != want {
			return nil, errUsage
		}
		out := make([]int, want)
		for i := range out {
			n, err := strconv.Atoi(f[i+1])
			if err != nil {
				return nil, errUsage
			}
			out[i] = n
		}
		return out, nil
	}

	switch strings.ToLower(f[0]) {
	case "show", "s":
		return func(s *session.Session) (string, error) { return render(s.View()), nil }, nil
	case "place", "p":
		a, err := ints(3)
		if err != nil {
			return nil, err
		}
		return func(s *session.Session) (string, error) {
			res, err := s.Place(a[0], a[1], a[2])
			if err != nil {
				return "", err
			}
			if res.Empty() {
				return "placed", nil
			}
			return fmt.Sprintf("placed, cleared rows=%v cols=%v combo=%d", res.Rows, res.Cols, s.Combo()), nil
		}, nil
	case "preview":
		a, err := ints(3)
		if err != nil {
			return nil, err
		}
		return func(s *session.Session) (string, error) {
			p, err := s.Preview(a[0], a[1], a[2])
			if err != nil {
				return "", err
			}
			s.ClearPreview()
			if !p.Fits {
				return "does not fit", nil
			}
			return fmt.Sprintf("fits, would clear rows=%v cols=%v", p.Clears.Rows, p.Clears.Cols), nil
		}, nil
	case "pass":
		return simple((*session.Session).Pass, "passed"), nil
	case "skip":
		return func(s *session.Session) (string, error) {
			return "ok", s.SkipAction(s.Scheduler().Now())
		}, nil
	case "veto":
		return simple((*session.Session).VetoSkip, "veto sent"), nil
	case "reset":
		return simple((*session.Session).VoteReset, "reset vote sent"), nil
	case "start":
		rounds := 0
		if len(f) > 1 {
			a, err := ints(1)
			if err != nil {
				return nil, err
			}
			rounds = a[0]
		}
		return func(s *session.Session) (string, error) {
			return "start requested", s.StartGame(rounds)
		}, nil
	case "kick":
		a, err := ints(1)
		if err != nil {
			return nil, err
		}
		return func(s *session.Session) (string, error) {
			return fmt.Sprintf("kick %d requested", a[0]), s.Kick(a[0])
		}, nil
	case "help", "?":
		return func(*session.Session) (string, error) { return consoleHelp, nil }, nil
	}
	return nil, fmt.Errorf("unknown command %q", f[0])
}

func simple(fn func(*session.Session) error, ok string) command {
	return func(s *session.Session) (string, error) {
		if err := fn(s); err != nil {
			return "", err
		}
		return ok, nil
	}
}

func render(v session.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "player %d (%s) %s", v.PlayerID, v.Name, v.Phase)
	if v.Turn.Round != "" {
		fmt.Fprintf(&b, " round %s", v.Turn.Round)
	}
	fmt.Fprintf(&b, " turn=%d combo=%d\n", v.Turn.Holder, v.Combo)
	b.WriteString("  01234567\n")
	for i, row := range v.Board {
		fmt.Fprintf(&b, "%d %s\n", i, row)
	}
	fmt.Fprintf(&b, "hand %v", v.Hand)
	if len(v.Votes.Skip) > 0 {
		fmt.Fprintf(&b, "\nskip votes %v of %d", v.Votes.Skip, v.SkipVotesRequired)
	}
	if v.Result != nil {
		fmt.Fprintf(&b, "\nresult %s rank %d", v.Result.Outcome, v.Result.Rank)
	}
	return b.String()
}

// runConsole executes one command per input line on the runner.
func runConsole(ctx context.Context, in io.Reader, out io.Writer, r *session.Runner, logger zerolog.Logger) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		cmd, err := parseCommand(sc.Text())
		if err != nil {
			if errors.Is(err, errUsage) {
				fmt.Fprintln(out, consoleHelp)
			} else {
				fmt.Fprintln(out, err)
			}
			continue
		}
		if cmd == nil {
			continue
		}
		var msg string
		err = r.Do(ctx, func(s *session.Session) error {
			var err error
			msg, err = cmd(s)
			return err
		})
		switch {
		case errors.Is(err, session.ErrStopped), ctx.Err() != nil:
			return
		case err != nil:
			fmt.Fprintf(out, "refused: %v (%s)\n", err, session.Code(err))
		default:
			fmt.Fprintln(out, msg)
		}
	}
	if err := sc.Err(); err != nil {
		logger.Debug().Err(err).Msg("console closed")
	}
}
