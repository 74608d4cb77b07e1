package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"blockroom.ai/internal/persistence/journal"
	"blockroom.ai/internal/protocol"
	"blockroom.ai/internal/sim/catalogs"
	"blockroom.ai/internal/sim/clock"
	"blockroom.ai/internal/sim/session"
)

func main() {
	var (
		dir       = flag.String("journal", "./data/journal", "journal dir containing frames-*.jsonl.zst")
		sessionID = flag.String("session", "", "replay only this session (optional)")
		pieces    = flag.String("pieces", "", "pieces.yaml override (optional)")
		toSeq     = flag.Uint64("to_seq", 0, "stop each session after this sequence number (optional)")
		verbose   = flag.Bool("v", false, "log every applied frame")
	)
	flag.Parse()

	cat, err := catalogs.Load(*pieces)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load pieces:", err)
		os.Exit(1)
	}
	files, err := journal.Files(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files found in", *dir)
		os.Exit(1)
	}

	level := zerolog.Disabled
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

	r := newReplayer(cat, *sessionID, *toSeq, logger)
	for _, path := range files {
		if err := journal.ReadFile(path, r.apply); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	if err := r.report(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// replay is one journaled session rebuilt from its inbound frames.
type replay struct {
	id      string
	s       *session.Session
	clk     *clock.Manual
	in, out int
	bad     int
	lastSeq uint64
}

type replayer struct {
	cat    *catalogs.Catalog
	filter string
	toSeq  uint64
	log    zerolog.Logger

	sessions map[string]*replay
}

func newReplayer(cat *catalogs.Catalog, filter string, toSeq uint64, logger zerolog.Logger) *replayer {
	return &replayer{cat: cat, filter: filter, toSeq: toSeq, log: logger, sessions: map[string]*replay{}}
}

type fixedRand struct{}

func (fixedRand) Intn(int) int { return 0 }

func (r *replayer) apply(e journal.Entry) error {
	if r.filter != "" && e.Session != r.filter {
		return nil
	}
	if r.toSeq != 0 && e.Seq > r.toSeq {
		return nil
	}
	rp := r.sessions[e.Session]
	if rp == nil {
		clk := clock.NewManual(e.At)
		rp = &replay{
			id:  e.Session,
			clk: clk,
			s: session.New(session.Config{
				Catalog: r.cat,
				Rand:    fixedRand{},
				Clock:   clk,
				Logger:  r.log.With().Str("session", e.Session).Logger(),
			}),
		}
		r.sessions[e.Session] = rp
	}
	if e.Seq <= rp.lastSeq {
		return fmt.Errorf("session %s: sequence went from %d to %d", e.Session, rp.lastSeq, e.Seq)
	}
	rp.lastSeq = e.Seq
	if d := e.At.Sub(rp.clk.Now()); d > 0 {
		rp.clk.Advance(d)
	}

	if e.Dir != journal.DirIn {
		rp.out++
		return nil
	}
	rp.in++
	msg, err := protocol.Decode(e.Frame)
	if err != nil {
		if !errors.Is(err, protocol.ErrUnknownType) {
			rp.bad++
		}
		return nil
	}
	rp.s.Apply(msg)
	return nil
}

func (r *replayer) report(w io.Writer) error {
	if len(r.sessions) == 0 {
		if r.filter != "" {
			return fmt.Errorf("session %s not found", r.filter)
		}
		return fmt.Errorf("journal has no frames")
	}
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rp := r.sessions[id]
		v := rp.s.View()
		fmt.Fprintf(w, "session %s player=%d room=%s frames in=%d out=%d bad=%d last_seq=%d\n",
			id, v.PlayerID, v.RoomID, rp.in, rp.out, rp.bad, rp.lastSeq)
		fmt.Fprintf(w, "phase=%s turn=%d round=%s combo=%d\n", v.Phase, v.Turn.Holder, v.Turn.Round, v.Combo)
		fmt.Fprintln(w, strings.Join(v.Board, "\n"))
		if v.Result != nil {
			fmt.Fprintf(w, "result %s rank %d of %d\n", v.Result.Outcome, v.Result.Rank, len(v.Result.Ranking))
		}
	}
	return nil
}
