package session

import (
	"fmt"
	"time"

	"blockroom.ai/internal/protocol"
	"blockroom.ai/internal/sim/board"
	"blockroom.ai/internal/sim/catalogs"
	"blockroom.ai/internal/sim/rules"
)

func (s *Session) requirePlaying() error {
	if s.me == 0 || s.phase != InProgress {
		return ErrNotInProgress
	}
	return nil
}

func (s *Session) requireTurn() error {
	if err := s.requirePlaying(); err != nil {
		return err
	}
	if s.turn.Holder != s.me {
		return ErrNotYourTurn
	}
	return nil
}

func (s *Session) slot(i int) (*catalogs.Shape, error) {
	if i < 0 || i >= rules.HandSize || s.hand[i] == nil {
		return nil, fmt.Errorf("slot %d: %w", i, ErrSlotEmpty)
	}
	return s.hand[i], nil
}

// Place commits a piece from the hand to the local board and sends the
// filled cells. Lines completed by the placement are cleared at once.
// Playing the last piece refills the hand and ends the turn; otherwise a
// hand left without a legal move triggers the auto-pass.
func (s *Session) Place(slot, row, col int) (board.ClearResult, error) {
	if err := s.requireTurn(); err != nil {
		return board.ClearResult{}, err
	}
	if s.turn.Clearing {
		return board.ClearResult{}, ErrClearing
	}
	shape, err := s.slot(slot)
	if err != nil {
		return board.ClearResult{}, err
	}
	cells := board.Covered(shape, row, col)
	res, err := rules.AttemptPlacement(&s.board, shape, row, col)
	if err != nil {
		return board.ClearResult{}, err
	}

	updates := make([]protocol.CellUpdate, 0, len(cells))
	for _, c := range cells {
		updates = append(updates, protocol.CellUpdate{Row: c.Row, Col: c.Col, Value: 1})
	}
	s.rememberEcho(updates)
	s.send(protocol.NewBatchUpdate(updates))

	if res.Empty() {
		s.combo.Break()
	} else {
		s.combo.Clear(s.clock.Now())
	}
	s.hand[slot] = nil
	s.preview = nil
	s.log.Info().Int("slot", slot).Int("row", row).Int("col", col).Str("shape", shape.ID).
		Ints("rows", res.Rows).Ints("cols", res.Cols).Int("combo", s.combo.Count).Msg("placed")

	if s.hand.Empty() {
		s.refill()
		s.send(protocol.NewAction(protocol.TypeEndTurn))
		return res, nil
	}
	s.checkDeadlock()
	return res, nil
}

// Preview evaluates a drag position without touching the board.
func (s *Session) Preview(slot, row, col int) (Preview, error) {
	if err := s.requireTurn(); err != nil {
		return Preview{}, err
	}
	if s.turn.Clearing {
		return Preview{}, ErrClearing
	}
	if _, err := s.slot(slot); err != nil {
		return Preview{}, err
	}
	s.preview = &Preview{Slot: slot, Row: row, Col: col}
	s.refreshPreview()
	return *s.preview, nil
}

func (s *Session) refreshPreview() {
	p := s.preview
	shape := s.hand[p.Slot]
	if shape == nil {
		s.preview = nil
		return
	}
	p.Clears, p.Fits = rules.PreviewClears(&s.board, shape, p.Row, p.Col)
}

func (s *Session) ClearPreview() { s.preview = nil }

// Pass gives up the rest of the turn voluntarily.
func (s *Session) Pass() error {
	if err := s.requireTurn(); err != nil {
		return err
	}
	s.hand = rules.Hand{}
	s.preview = nil
	s.send(protocol.NewAction(protocol.TypePassTurn))
	s.log.Info().Int("turn", s.turn.Holder).Msg("pass")
	return nil
}

// SkipAction is the single skip button: a pass on our own turn, a skip
// vote otherwise.
func (s *Session) SkipAction(now time.Time) error {
	if s.me != 0 && s.turn.Holder == s.me {
		return s.Pass()
	}
	return s.VoteSkip(now)
}

// Tick recomputes whether a skip vote may be cast.
func (s *Session) Tick(now time.Time) bool {
	s.skipEnabled = s.skipOpen(now)
	return s.skipEnabled
}

func (s *Session) skipOpen(now time.Time) bool {
	if s.me == 0 || s.phase != InProgress || s.turn.Holder == s.me || s.turn.Players <= 1 || s.turn.Start.IsZero() {
		return false
	}
	return now.Sub(s.turn.Start) > s.tune.SkipVoteAfter()
}

// VoteSkip toggles our vote to skip the current turn holder. The server
// counts the votes; the client only enforces the time gate.
func (s *Session) VoteSkip(now time.Time) error {
	if err := s.requirePlaying(); err != nil {
		return err
	}
	if s.turn.Holder == s.me {
		return fmt.Errorf("cannot vote to skip yourself: %w", ErrBadTarget)
	}
	if !s.skipOpen(now) {
		return fmt.Errorf("turn running for %s: %w", now.Sub(s.turn.Start).Truncate(time.Second), ErrSkipTooEarly)
	}
	s.send(protocol.NewAction(protocol.TypeVoteSkip))
	s.log.Info().Int("turn", s.turn.Holder).Msg("vote skip")
	return nil
}

// VetoSkip cancels a skip vote running against us.
func (s *Session) VetoSkip() error {
	if err := s.requireTurn(); err != nil {
		return err
	}
	if len(s.votes.Skip) == 0 {
		return ErrNoSkipVote
	}
	s.send(protocol.NewAction(protocol.TypeVetoSkip))
	s.log.Info().Int("votes", len(s.votes.Skip)).Msg("veto skip")
	return nil
}

// VoteReset toggles our reset vote. It is refused only after the round ended.
func (s *Session) VoteReset() error {
	if s.me == 0 || s.phase == RoundOver {
		return ErrNotInProgress
	}
	s.send(protocol.NewAction(protocol.TypeVoteReset))
	s.log.Info().Bool("withdraw", s.votes.ResetBy(s.me)).Msg("vote reset")
	return nil
}

// StartGame asks the server to begin a round. Zero rounds means unlimited.
func (s *Session) StartGame(maxRounds int) error {
	if s.me == 0 || s.turn.HostID != s.me {
		return ErrNotHost
	}
	if s.phase == InProgress {
		return ErrInProgress
	}
	if maxRounds < 0 {
		maxRounds = 0
	}
	s.send(protocol.NewStartGame(maxRounds))
	s.log.Info().Int("max_rounds", maxRounds).Msg("start game")
	return nil
}

// Kick asks the server to remove another player from the room.
func (s *Session) Kick(target int) error {
	if s.me == 0 || s.turn.HostID != s.me {
		return ErrNotHost
	}
	if target == s.me || target == 0 {
		return fmt.Errorf("kick %d: %w", target, ErrBadTarget)
	}
	known := false
	for _, st := range s.ranking {
		if st.ID == target {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("kick %d: not in room: %w", target, ErrBadTarget)
	}
	s.send(protocol.NewKickPlayer(target))
	s.log.Info().Int("target", target).Msg("kick")
	return nil
}
