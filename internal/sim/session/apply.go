package session

import (
	"sort"
	"strconv"
	"strings"

	"blockroom.ai/internal/protocol"
	"blockroom.ai/internal/sim/board"
	"blockroom.ai/internal/sim/rules"
)

// Apply routes a decoded inbound message (see protocol.Decode).
func (s *Session) Apply(msg any) {
	switch m := msg.(type) {
	case protocol.Welcome:
		s.ApplyWelcome(m)
	case protocol.Init:
		s.ApplyInit(m)
	case protocol.GameState:
		s.ApplyState(m)
	case protocol.BatchUpdate:
		s.ApplyBatch(m)
	case protocol.GameOver:
		s.ApplyGameOver(m)
	case protocol.GameStart:
		s.ApplyGameStart(m)
	case protocol.ErrorMsg:
		s.ApplyError(m)
	default:
		s.log.Debug().Msgf("ignoring %T", msg)
	}
}

// ApplyWelcome adopts the server-assigned identity and board snapshot.
func (s *Session) ApplyWelcome(m protocol.Welcome) {
	s.me = m.YourID
	s.name = m.YourName
	s.roomID = m.RoomID
	s.restored = m.Restored
	s.board = board.FromInts(m.Board)
	s.turn.HostID = m.HostID
	s.turn.Playing = m.IsPlaying
	if m.IsPlaying {
		s.phase = InProgress
	} else {
		s.phase = WaitingForPlayers
	}
	s.echoes = nil
	s.preview = nil
	s.autoPass = autoPassIdle
	if s.hand.Empty() {
		s.refill()
	}
	s.log.Info().Int("player", s.me).Str("name", s.name).Int("host", m.HostID).Bool("playing", m.IsPlaying).Bool("restored", m.Restored).Msg("welcome")
}

// ApplyInit replaces the board after a reset and deals a fresh hand.
func (s *Session) ApplyInit(m protocol.Init) {
	s.board = board.FromInts(m.Board)
	s.echoes = nil
	s.preview = nil
	s.autoPass = autoPassIdle
	s.refill()
	s.log.Info().Int("filled", s.board.FilledCount()).Msg("board reset")
	s.checkDeadlock()
}

// ApplyState replaces the turn and vote mirror wholesale.
func (s *Session) ApplyState(m protocol.GameState) {
	prev, prevPlayers := s.turn.Holder, s.turn.Players
	if m.Count != prevPlayers && m.Count > s.tune.MaxPlayers {
		s.log.Warn().Int("players", m.Count).Int("max", s.tune.MaxPlayers).Msg("room is over the configured player limit")
	}
	s.turn = TurnState{
		Holder:   m.CurrentTurn,
		Start:    protocol.SecondsToTime(m.TurnStartTime),
		Round:    m.Round(),
		Clearing: m.IsClearing,
		HostID:   m.HostID,
		Players:  m.Count,
		Playing:  m.IsPlaying,
		Final:    m.IsFinal,
	}
	s.votes = VoteTally{Skip: sortedIDs(m.SkipVotes), Reset: sortedIDs(m.ResetVotes)}
	s.ranking = append(s.ranking[:0:0], m.Ranking...)

	switch {
	case m.IsPlaying:
		s.phase = InProgress
	case s.phase != RoundOver:
		s.phase = WaitingForPlayers
	}

	if prev != m.CurrentTurn {
		s.preview = nil
		s.echoes = nil
		s.autoPass = autoPassIdle
		s.log.Debug().Int("turn", m.CurrentTurn).Int("prev", prev).Msg("turn changed")
	} else if s.autoPass == autoPassSent {
		// The pass went out and the turn did not move; look again.
		s.autoPass = autoPassIdle
	}

	if s.hand.Empty() && s.autoPass == autoPassIdle {
		s.refill()
	}
	s.updateVoteNotice()
	s.Tick(s.clock.Now())
	s.checkDeadlock()
}

// ApplyBatch applies per-cell deltas. An exact echo of a batch this client
// sent is skipped, since the placement and its clears are already on the
// board.
func (s *Session) ApplyBatch(m protocol.BatchUpdate) {
	key := batchKey(m.Updates)
	for i, e := range s.echoes {
		if e == key {
			s.echoes = s.echoes[i+1:]
			s.log.Debug().Int("cells", len(m.Updates)).Msg("own batch echoed")
			return
		}
	}

	var anyCleared, anyPlaced bool
	for _, u := range m.Updates {
		cleared, placed := s.board.ApplyDelta(u.Row, u.Col, u.Value != 0)
		anyCleared = anyCleared || cleared
		anyPlaced = anyPlaced || placed
	}
	switch {
	case anyCleared:
		s.combo.Clear(s.clock.Now())
		// The clear has landed; the next broadcast confirms or overrides.
		s.turn.Clearing = false
	case anyPlaced:
		s.combo.Break()
	}
	if s.preview != nil {
		s.refreshPreview()
	}
	s.log.Debug().Int("cells", len(m.Updates)).Bool("cleared", anyCleared).Int("combo", s.combo.Count).Msg("batch")
}

// ApplyGameOver ends the round. Later broadcasts are still applied.
func (s *Session) ApplyGameOver(m protocol.GameOver) {
	s.phase = RoundOver
	s.turn.Playing = false
	s.final = append([]protocol.Standing(nil), m.Ranking...)
	s.preview = nil
	res, _ := s.Result()
	s.log.Info().Str("outcome", string(res.Outcome)).Int("rank", res.Rank).Msg("game over")
}

func (s *Session) ApplyGameStart(protocol.GameStart) {
	s.phase = InProgress
	s.turn.Playing = true
	s.final = nil
	s.log.Info().Msg("game started")
}

// ApplyError records a server-side refusal. The server usually closes the
// socket right after.
func (s *Session) ApplyError(m protocol.ErrorMsg) {
	s.lastError = m.Message
	s.log.Warn().Str("code", protocol.ErrServer).Str("message", m.Message).Msg("server error")
}

func (s *Session) refill() {
	s.hand = rules.RefillHandFraction(s.cat, &s.board, s.rng, s.tune.Hand.TopFraction)
	s.handsGenerated++
	s.log.Debug().Str("hand", s.hand.String()).Int("hands", s.handsGenerated).Msg("hand refilled")
}

// checkDeadlock clears the hand and schedules a pass when it is our turn and
// nothing in the hand can be placed. The pass is sent once per deadlock and
// the timer is never cancelled.
func (s *Session) checkDeadlock() {
	if !s.MyTurn() || s.autoPass != autoPassIdle || s.hand.Empty() {
		return
	}
	if rules.HandHasLegalMove(s.hand, &s.board) {
		return
	}
	s.log.Info().Str("hand", s.hand.String()).Int("turn", s.turn.Holder).Msg("no legal move, auto-pass")
	s.hand = rules.Hand{}
	s.preview = nil
	s.autoPass = autoPassPending
	s.clock.AfterFunc(s.tune.AutoPassDelay(), func() {
		if s.autoPass == autoPassPending {
			s.autoPass = autoPassSent
		}
		s.send(protocol.NewAction(protocol.TypePassTurn))
	})
}

func (s *Session) updateVoteNotice() {
	n := len(s.votes.Skip)
	if n == 0 {
		s.noticeVisible = false
		if s.noticeTimer != nil {
			s.noticeTimer.Stop()
			s.noticeTimer = nil
		}
	} else if n != s.prevSkipVotes {
		s.noticeVisible = true
		if s.noticeTimer != nil {
			s.noticeTimer.Stop()
		}
		s.noticeTimer = s.clock.AfterFunc(s.tune.VoteNotice(), func() {
			s.noticeVisible = false
			s.noticeTimer = nil
		})
	}
	s.prevSkipVotes = n
}

func sortedIDs(ids []int) []int {
	out := append([]int{}, ids...)
	sort.Ints(out)
	return out
}

func batchKey(updates []protocol.CellUpdate) string {
	parts := make([]string, 0, len(updates))
	for _, u := range updates {
		v := 0
		if u.Value != 0 {
			v = 1
		}
		parts = append(parts, strconv.Itoa(u.Row)+","+strconv.Itoa(u.Col)+","+strconv.Itoa(v))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

func (s *Session) rememberEcho(updates []protocol.CellUpdate) {
	s.echoes = append(s.echoes, batchKey(updates))
	if len(s.echoes) > maxEchoes {
		s.echoes = s.echoes[len(s.echoes)-maxEchoes:]
	}
}
