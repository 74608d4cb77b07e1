// Package bot plays the local seat without a human: when it is our turn it
// picks the best-scoring placement after a short think delay.
package bot

import (
	"errors"

	"github.com/rs/zerolog"

	"blockroom.ai/internal/sim/board"
	"blockroom.ai/internal/sim/clock"
	"blockroom.ai/internal/sim/rules"
	"blockroom.ai/internal/sim/session"
)

// Move is one candidate placement with the facts scorers look at.
type Move struct {
	Slot   int    `json:"slot"`
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	Shape  string `json:"shape"`
	Size   int    `json:"size"`
	Lines  int    `json:"lines"`
	Filled int    `json:"filled"` // cells filled after the placement resolves
}

type Scorer interface {
	Score(m Move) (float64, error)
}

type ScorerFunc func(Move) (float64, error)

func (f ScorerFunc) Score(m Move) (float64, error) { return f(m) }

// Greedy prefers moves that clear more lines, then larger pieces.
var Greedy Scorer = ScorerFunc(func(m Move) (float64, error) {
	return float64(m.Lines*100 + m.Size), nil
})

// Choose scores every legal placement of every hand piece. Ties keep the
// first move in slot, row, column order. ok is false when nothing fits.
func Choose(b board.Board, h rules.Hand, sc Scorer) (best Move, ok bool, err error) {
	if sc == nil {
		sc = Greedy
	}
	bestScore := 0.0
	for slot, shape := range h {
		if shape == nil {
			continue
		}
		for _, p := range rules.Anchors(&b, shape) {
			res, fits := rules.PreviewClears(&b, shape, p.Row, p.Col)
			if !fits {
				continue
			}
			after := b
			after.ApplyFill(p.Cells())
			after.ClearLines(res.Rows, res.Cols)
			m := Move{
				Slot:   slot,
				Row:    p.Row,
				Col:    p.Col,
				Shape:  shape.ID,
				Size:   shape.Size(),
				Lines:  res.Lines(),
				Filled: after.FilledCount(),
			}
			score, err := sc.Score(m)
			if err != nil {
				return Move{}, false, err
			}
			if !ok || score > bestScore {
				best, bestScore, ok = m, score, true
			}
		}
	}
	return best, ok, nil
}

// Player drives a session. Observe must run on the session's goroutine,
// typically as Runner.AfterEvent.
type Player struct {
	scorer Scorer
	log    zerolog.Logger

	pending clock.Timer
	moves   int
}

func NewPlayer(sc Scorer, logger zerolog.Logger) *Player {
	if sc == nil {
		sc = Greedy
	}
	return &Player{scorer: sc, log: logger.With().Str("component", "bot").Logger()}
}

// Moves is the number of placements made so far.
func (p *Player) Moves() int { return p.moves }

func ready(s *session.Session) bool {
	return s.MyTurn() && !s.AutoPassPending() && !s.Hand().Empty()
}

// Observe schedules a move when the session is waiting on us.
func (p *Player) Observe(s *session.Session) {
	if p.pending != nil || !ready(s) {
		return
	}
	p.pending = s.Scheduler().AfterFunc(s.Tuning().BotThink(), func() {
		p.pending = nil
		p.act(s)
	})
}

func (p *Player) act(s *session.Session) {
	if !ready(s) {
		return
	}
	m, ok, err := Choose(s.Board(), s.Hand(), p.scorer)
	if err != nil {
		p.log.Warn().Err(err).Msg("scorer failed, falling back to greedy")
		m, ok, _ = Choose(s.Board(), s.Hand(), Greedy)
	}
	if !ok {
		// Pieces that only fit after a pending clear keep the auto-pass from
		// arming; give the turn away explicitly.
		if err := s.Pass(); err != nil {
			p.log.Debug().Err(err).Msg("pass refused")
		}
		return
	}
	if _, err := s.Place(m.Slot, m.Row, m.Col); err != nil {
		if !errors.Is(err, rules.ErrRejected) {
			p.log.Debug().Err(err).Str("code", session.Code(err)).Msg("place refused")
		}
		return
	}
	p.moves++
	p.log.Debug().Int("slot", m.Slot).Int("row", m.Row).Int("col", m.Col).Str("shape", m.Shape).Int("lines", m.Lines).Msg("bot placed")
}
