package session

import (
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"blockroom.ai/internal/protocol"
	"blockroom.ai/internal/sim/board"
	"blockroom.ai/internal/sim/catalogs"
	"blockroom.ai/internal/sim/clock"
	"blockroom.ai/internal/sim/rules"
	"blockroom.ai/internal/sim/tuning"
)

var (
	mono = catalogs.Default().ByID["mono"]
	o3   = catalogs.Default().ByID["o3"]
	i2h  = catalogs.Default().ByID["i2_h"]
)

type zeroRand struct{}

func (zeroRand) Intn(int) int { return 0 }

type recorder struct {
	mu   sync.Mutex
	msgs []any
}

func (r *recorder) Send(m any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		raw, _ := json.Marshal(m)
		base, _ := protocol.DecodeBase(raw)
		out = append(out, base.Type)
	}
	return out
}

func (r *recorder) last() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return nil
	}
	return r.msgs[len(r.msgs)-1]
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}

var t0 = time.Unix(1_700_000_000, 0)

func newTestSession(t *testing.T) (*Session, *clock.Manual, *recorder) {
	t.Helper()
	clk := clock.NewManual(t0)
	rec := &recorder{}
	s := New(Config{
		Catalog: catalogs.Default(),
		Tuning:  tuning.Defaults(),
		Rand:    zeroRand{},
		Clock:   clk,
		Sender:  rec,
		Logger:  zerolog.Nop(),
	})
	return s, clk, rec
}

func emptyInts() [][]int {
	var b board.Board
	return b.Ints()
}

func welcome(me, host int, playing bool) protocol.Welcome {
	return protocol.Welcome{Type: protocol.TypeWelcome, YourID: me, YourName: "p" + strconv.Itoa(me), Board: emptyInts(), HostID: host, IsPlaying: playing}
}

func state(holder, players int, start time.Time, skip ...int) protocol.GameState {
	g := protocol.GameState{
		Type:          protocol.TypeGameState,
		Count:         players,
		CurrentTurn:   holder,
		TurnStartTime: protocol.TimeToSeconds(start),
		SkipVotes:     skip,
		HostID:        1,
		IsPlaying:     true,
		RoundInfo:     "1/5",
	}
	for id := 1; id <= players; id++ {
		g.Ranking = append(g.Ranking, protocol.Standing{ID: id, Name: "p" + strconv.Itoa(id), Score: 10 * id})
	}
	return g
}

// playing returns a session where player 1 (host) holds the turn in a
// three-player room with the given hand.
func playing(t *testing.T, hand rules.Hand) (*Session, *clock.Manual, *recorder) {
	t.Helper()
	s, clk, rec := newTestSession(t)
	s.ApplyWelcome(welcome(1, 1, true))
	s.hand = hand
	s.ApplyState(state(1, 3, clk.Now()))
	rec.reset()
	return s, clk, rec
}

func checker() board.Board {
	var b board.Board
	for r := 0; r < board.Size; r++ {
		for c := 0; c < board.Size; c++ {
			b[r][c] = (r+c)%2 == 0
		}
	}
	return b
}

func row3MissingCol5() board.Board {
	var b board.Board
	for c := 0; c < board.Size; c++ {
		b[3][c] = c != 5
	}
	return b
}
