package session

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"blockroom.ai/internal/protocol"
	"blockroom.ai/internal/sim/board"
	"blockroom.ai/internal/sim/clock"
	"blockroom.ai/internal/sim/rules"
	"blockroom.ai/internal/sim/tuning"
)

func TestWelcome_SnapshotAndHand(t *testing.T) {
	s, _, _ := newTestSession(t)
	w := welcome(4, 1, false)
	w.Board[2][3] = 2
	w.Restored = true
	s.ApplyWelcome(w)

	require.Equal(t, 4, s.Me())
	require.Equal(t, WaitingForPlayers, s.Phase())
	b := s.Board()
	require.True(t, b.Filled(2, 3), "non-zero wire values mean filled")
	require.Equal(t, 1, b.FilledCount())
	require.Equal(t, 3, s.Hand().Remaining())
	require.True(t, s.View().Restored)

	s.ApplyWelcome(welcome(4, 1, true))
	require.Equal(t, InProgress, s.Phase())
}

func TestPlace_EmptyBoardResetsCombo(t *testing.T) {
	s, _, rec := playing(t, rules.Hand{mono, mono, mono})
	s.combo.Count = 3

	res, err := s.Place(0, 0, 0)
	require.NoError(t, err)
	require.True(t, res.Empty())
	require.Equal(t, 0, s.Combo())
	b := s.Board()
	require.True(t, b.Filled(0, 0))
	require.Equal(t, 2, s.Hand().Remaining())

	require.Equal(t, []string{protocol.TypeBatchUpdate}, rec.types())
	batch := rec.last().(protocol.BatchUpdate)
	require.Equal(t, []protocol.CellUpdate{{Row: 0, Col: 0, Value: 1}}, batch.Updates)
}

func TestPlace_ClearsRowThree(t *testing.T) {
	s, _, _ := playing(t, rules.Hand{mono, mono, mono})
	s.board = row3MissingCol5()

	res, err := s.Place(1, 3, 5)
	require.NoError(t, err)
	require.Equal(t, []int{3}, res.Rows)
	require.Empty(t, res.Cols)
	require.Equal(t, 0, s.board.FilledCount())
	require.Equal(t, 1, s.Combo())
}

func TestPlace_RejectedLeavesBoard(t *testing.T) {
	s, _, rec := playing(t, rules.Hand{o3, mono, mono})
	s.board[1][1] = true
	before := s.Board()

	_, err := s.Place(0, 0, 0)
	require.ErrorIs(t, err, rules.ErrRejected)
	require.ErrorIs(t, err, rules.ErrOverlap)
	_, err = s.Place(0, 6, 6)
	require.ErrorIs(t, err, rules.ErrOutOfBounds)

	require.Equal(t, before, s.Board())
	require.Equal(t, 3, s.Hand().Remaining())
	require.Empty(t, rec.types())
}

func TestPlace_Gates(t *testing.T) {
	s, _, _ := newTestSession(t)
	_, err := s.Place(0, 0, 0)
	require.ErrorIs(t, err, ErrNotInProgress, "before welcome")

	s.ApplyWelcome(welcome(1, 1, true))
	s.ApplyState(state(2, 3, t0))
	_, err = s.Place(0, 0, 0)
	require.ErrorIs(t, err, ErrNotYourTurn)

	g := state(1, 3, t0)
	g.IsClearing = true
	s.ApplyState(g)
	_, err = s.Place(0, 0, 0)
	require.ErrorIs(t, err, ErrClearing)

	s.ApplyState(state(1, 3, t0))
	s.hand[2] = nil
	_, err = s.Place(2, 0, 0)
	require.ErrorIs(t, err, ErrSlotEmpty)
	_, err = s.Place(7, 0, 0)
	require.ErrorIs(t, err, ErrSlotEmpty)
	require.Equal(t, protocol.ErrSlotEmpty, Code(err))
}

func TestPlace_LastPieceRefillsAndEndsTurn(t *testing.T) {
	s, _, rec := playing(t, rules.Hand{nil, mono, nil})

	_, err := s.Place(1, 4, 4)
	require.NoError(t, err)
	require.Equal(t, []string{protocol.TypeBatchUpdate, protocol.TypeEndTurn}, rec.types())
	require.Equal(t, 3, s.Hand().Remaining())
}

func TestAutoPass_OnBroadcast(t *testing.T) {
	s, clk, rec := newTestSession(t)
	s.ApplyWelcome(welcome(1, 1, true))
	s.board = checker()
	s.hand = rules.Hand{o3, o3, i2h}

	s.ApplyState(state(1, 3, clk.Now()))
	require.True(t, s.Hand().Empty())
	require.True(t, s.AutoPassPending())
	require.Empty(t, rec.types(), "pass waits for the delay")

	// A broadcast inside the window neither refills nor re-triggers.
	s.ApplyState(state(1, 3, clk.Now(), 2))
	require.True(t, s.Hand().Empty())

	clk.Advance(1999 * time.Millisecond)
	require.Empty(t, rec.types())
	clk.Advance(time.Millisecond)
	require.Equal(t, []string{protocol.TypePassTurn}, rec.types())

	clk.Advance(10 * time.Second)
	require.Len(t, rec.types(), 1, "one pass per deadlock")

	s.ApplyState(state(2, 3, clk.Now()))
	require.False(t, s.AutoPassPending())
	require.Equal(t, 3, s.Hand().Remaining(), "refilled after the turn moved on")
}

func TestAutoPass_TimerNotCancelledByTurnChange(t *testing.T) {
	s, clk, rec := newTestSession(t)
	s.ApplyWelcome(welcome(1, 1, true))
	s.board = checker()
	s.hand = rules.Hand{o3, nil, nil}
	s.ApplyState(state(1, 3, clk.Now()))
	require.True(t, s.AutoPassPending())

	s.ApplyState(state(2, 3, clk.Now()))
	clk.Advance(2 * time.Second)
	require.Equal(t, []string{protocol.TypePassTurn}, rec.types())
}

func TestAutoPass_AfterPlacement(t *testing.T) {
	s, clk, rec := newTestSession(t)
	s.ApplyWelcome(welcome(1, 1, true))
	s.board = checker()
	s.hand = rules.Hand{mono, o3, o3}
	s.ApplyState(state(1, 3, clk.Now()))
	require.False(t, s.AutoPassPending(), "mono still fits")

	_, err := s.Place(0, 0, 1)
	require.NoError(t, err)
	require.True(t, s.AutoPassPending())
	require.True(t, s.Hand().Empty())

	clk.Advance(2 * time.Second)
	require.Equal(t, []string{protocol.TypeBatchUpdate, protocol.TypePassTurn}, rec.types())
}

func TestAutoPass_SuppressedWhileClearingOrOthersTurn(t *testing.T) {
	s, clk, _ := newTestSession(t)
	s.ApplyWelcome(welcome(1, 1, true))
	s.board = checker()
	s.hand = rules.Hand{o3, o3, o3}

	g := state(1, 3, clk.Now())
	g.IsClearing = true
	s.ApplyState(g)
	require.False(t, s.AutoPassPending())

	s.ApplyState(state(2, 3, clk.Now()))
	require.False(t, s.AutoPassPending())
	require.Equal(t, 3, s.Hand().Remaining())

	s.ApplyState(state(1, 3, clk.Now()))
	require.True(t, s.AutoPassPending())
}

func TestAutoPass_RetriesWhenTurnDidNotMove(t *testing.T) {
	s, clk, rec := newTestSession(t)
	s.ApplyWelcome(welcome(1, 1, true))
	s.board = checker()
	s.hand = rules.Hand{o3, o3, o3}
	s.ApplyState(state(1, 3, clk.Now()))
	clk.Advance(2 * time.Second)
	require.Equal(t, []string{protocol.TypePassTurn}, rec.types())

	// The server kept us on turn. The hand is refilled and re-evaluated; on
	// a checkerboard the refill holds a fitting diagonal piece.
	s.ApplyState(state(1, 3, clk.Now()))
	require.False(t, s.AutoPassPending())
	require.Equal(t, 3, s.Hand().Remaining())
	require.True(t, rules.HandHasLegalMove(s.Hand(), &s.board))
}

func TestVoteSkip_TimeGate(t *testing.T) {
	s, clk, rec := newTestSession(t)
	s.ApplyWelcome(welcome(1, 1, true))
	now := clk.Now()
	s.ApplyState(state(2, 3, now.Add(-45*time.Second)))

	require.False(t, s.SkipEnabled())
	err := s.VoteSkip(now)
	require.ErrorIs(t, err, ErrSkipTooEarly)
	require.ErrorIs(t, s.VoteSkip(now.Add(15*time.Second)), ErrSkipTooEarly, "exactly 60s is not enough")
	require.Empty(t, rec.types())

	later := now.Add(16 * time.Second)
	require.True(t, s.Tick(later))
	require.NoError(t, s.VoteSkip(later))
	require.Equal(t, []string{protocol.TypeVoteSkip}, rec.types())
}

func TestVoteSkip_OwnTurnAndLonePlayer(t *testing.T) {
	s, clk, _ := newTestSession(t)
	s.ApplyWelcome(welcome(1, 1, true))
	late := clk.Now().Add(2 * time.Minute)

	s.ApplyState(state(1, 3, clk.Now()))
	require.ErrorIs(t, s.VoteSkip(late), ErrBadTarget)

	s.ApplyState(state(2, 1, clk.Now()))
	require.ErrorIs(t, s.VoteSkip(late), ErrSkipTooEarly)
	require.False(t, s.Tick(late))
}

func TestSkipAction(t *testing.T) {
	s, clk, rec := playing(t, rules.Hand{mono, mono, mono})
	require.NoError(t, s.SkipAction(clk.Now()))
	require.Equal(t, []string{protocol.TypePassTurn}, rec.types())
	require.True(t, s.Hand().Empty())

	rec.reset()
	s.ApplyState(state(2, 3, clk.Now()))
	require.ErrorIs(t, s.SkipAction(clk.Now()), ErrSkipTooEarly)
	require.NoError(t, s.SkipAction(clk.Now().Add(61*time.Second)))
	require.Equal(t, []string{protocol.TypeVoteSkip}, rec.types())
}

func TestSkipVotesRequired(t *testing.T) {
	s, _, _ := newTestSession(t)
	for players, want := range map[int]int{0: 1, 1: 1, 2: 1, 3: 2, 5: 4} {
		s.turn.Players = players
		require.Equal(t, want, s.SkipVotesRequired(), "players=%d", players)
	}
}

func TestVetoSkip(t *testing.T) {
	s, clk, rec := playing(t, rules.Hand{mono, mono, mono})
	require.ErrorIs(t, s.VetoSkip(), ErrNoSkipVote)

	s.ApplyState(state(1, 3, clk.Now(), 3, 2))
	require.Equal(t, []int{2, 3}, s.Votes().Skip)
	require.NoError(t, s.VetoSkip())
	require.Equal(t, []string{protocol.TypeVetoSkip}, rec.types())

	s.ApplyState(state(2, 3, clk.Now(), 3))
	require.ErrorIs(t, s.VetoSkip(), ErrNotYourTurn)
}

func TestVoteReset(t *testing.T) {
	s, _, rec := newTestSession(t)
	require.ErrorIs(t, s.VoteReset(), ErrNotInProgress)

	s.ApplyWelcome(welcome(1, 1, false))
	require.NoError(t, s.VoteReset(), "no gate while waiting")
	s.ApplyState(state(2, 3, t0))
	require.NoError(t, s.VoteReset())
	require.Equal(t, []string{protocol.TypeVoteReset, protocol.TypeVoteReset}, rec.types())

	s.ApplyGameOver(protocol.GameOver{Type: protocol.TypeGameOver})
	require.ErrorIs(t, s.VoteReset(), ErrNotInProgress)
}

func TestStartGameAndKick(t *testing.T) {
	s, _, rec := newTestSession(t)
	s.ApplyWelcome(welcome(2, 1, false))
	require.ErrorIs(t, s.StartGame(5), ErrNotHost)
	require.ErrorIs(t, s.Kick(3), ErrNotHost)

	s.ApplyWelcome(welcome(1, 1, false))
	g := state(0, 3, time.Time{})
	g.IsPlaying = false
	s.ApplyState(g)
	require.Equal(t, WaitingForPlayers, s.Phase())

	require.NoError(t, s.StartGame(-3))
	require.Equal(t, protocol.NewStartGame(0), rec.last())

	require.ErrorIs(t, s.Kick(1), ErrBadTarget)
	require.ErrorIs(t, s.Kick(9), ErrBadTarget)
	require.NoError(t, s.Kick(3))
	require.Equal(t, protocol.NewKickPlayer(3), rec.last())

	s.ApplyState(state(1, 3, t0))
	require.ErrorIs(t, s.StartGame(5), ErrInProgress)
	require.Equal(t, protocol.ErrInProgress, Code(s.StartGame(5)))
}

func TestPreview_DoesNotCommit(t *testing.T) {
	s, clk, _ := playing(t, rules.Hand{mono, o3, mono})
	s.board = row3MissingCol5()
	before := s.Board()

	p, err := s.Preview(0, 3, 5)
	require.NoError(t, err)
	require.True(t, p.Fits)
	require.Equal(t, []int{3}, p.Clears.Rows)
	require.Equal(t, before, s.Board())

	p, err = s.Preview(1, 2, 4)
	require.NoError(t, err)
	require.False(t, p.Fits)

	require.NotNil(t, s.View().Preview)
	s.ApplyState(state(2, 3, clk.Now()))
	require.Nil(t, s.View().Preview, "turn change drops the drag")
}

func TestBatch_ComboAndEcho(t *testing.T) {
	s, clk, _ := playing(t, rules.Hand{mono, mono, mono})
	s.board = row3MissingCol5()

	_, err := s.Place(0, 3, 5)
	require.NoError(t, err)
	require.Equal(t, 1, s.Combo())

	// Echo of our own placement: ignored, the clear already happened.
	s.ApplyBatch(protocol.NewBatchUpdate([]protocol.CellUpdate{{Row: 3, Col: 5, Value: 1}}))
	require.False(t, s.board.Filled(3, 5))
	require.Equal(t, 1, s.Combo())

	// The server's clear batch changes nothing locally.
	var clear []protocol.CellUpdate
	for c := 0; c < board.Size; c++ {
		clear = append(clear, protocol.CellUpdate{Row: 3, Col: c, Value: 0})
	}
	s.ApplyBatch(protocol.NewBatchUpdate(clear))
	require.Equal(t, 1, s.Combo())

	// Another player's clear within the window extends the streak.
	for c := 0; c < board.Size; c++ {
		s.board[6][c] = true
	}
	clk.Advance(3 * time.Second)
	six := make([]protocol.CellUpdate, 0, board.Size)
	for c := 0; c < board.Size; c++ {
		six = append(six, protocol.CellUpdate{Row: 6, Col: c, Value: 0})
	}
	s.ApplyBatch(protocol.NewBatchUpdate(six))
	require.Equal(t, 2, s.Combo())

	// A fill breaks it.
	s.ApplyBatch(protocol.NewBatchUpdate([]protocol.CellUpdate{{Row: 0, Col: 0, Value: 1}, {Row: 9, Col: 9, Value: 1}}))
	require.Equal(t, 0, s.Combo())
	require.True(t, s.board.Filled(0, 0))

	// A clear long after the last one starts over.
	clk.Advance(5 * time.Second)
	s.ApplyBatch(protocol.NewBatchUpdate([]protocol.CellUpdate{{Row: 0, Col: 0, Value: 0}}))
	require.Equal(t, 0, s.Combo())
}

func TestBatch_ClearResetsClearingFlag(t *testing.T) {
	s, clk, _ := newTestSession(t)
	s.ApplyWelcome(welcome(1, 1, true))
	s.board[0][0] = true
	g := state(1, 3, clk.Now())
	g.IsClearing = true
	s.ApplyState(g)
	require.True(t, s.Turn().Clearing)

	s.ApplyBatch(protocol.NewBatchUpdate([]protocol.CellUpdate{{Row: 0, Col: 0, Value: 0}}))
	require.False(t, s.Turn().Clearing)
	require.True(t, s.MyTurn())
}

func TestVoteNotice(t *testing.T) {
	s, clk, _ := newTestSession(t)
	s.ApplyWelcome(welcome(1, 1, true))

	s.ApplyState(state(2, 3, clk.Now(), 3))
	require.True(t, s.VoteNoticeVisible())
	clk.Advance(time.Second)
	require.False(t, s.VoteNoticeVisible())

	s.ApplyState(state(2, 3, clk.Now(), 3, 1))
	require.True(t, s.VoteNoticeVisible())
	clk.Advance(500 * time.Millisecond)
	s.ApplyState(state(2, 3, clk.Now(), 3, 1))
	clk.Advance(500 * time.Millisecond)
	require.False(t, s.VoteNoticeVisible(), "an unchanged tally does not re-arm")

	s.ApplyState(state(2, 3, clk.Now(), 3))
	require.True(t, s.VoteNoticeVisible())
	s.ApplyState(state(2, 3, clk.Now()))
	require.False(t, s.VoteNoticeVisible())
	require.Equal(t, 0, clk.Pending())
}

func TestGameOver_ResultAndRecovery(t *testing.T) {
	s, clk, _ := newTestSession(t)
	s.ApplyWelcome(welcome(1, 1, true))
	s.ApplyState(state(1, 2, clk.Now()))

	_, ok := s.Result()
	require.False(t, ok)

	s.ApplyGameOver(protocol.GameOver{Type: protocol.TypeGameOver, Ranking: []protocol.Standing{{ID: 1, Score: 50}, {ID: 2, Score: 10}}})
	require.Equal(t, RoundOver, s.Phase())
	res, ok := s.Result()
	require.True(t, ok)
	require.Equal(t, OutcomeVictory, res.Outcome)
	require.Equal(t, 1, res.Rank)

	_, err := s.Place(0, 0, 0)
	require.ErrorIs(t, err, ErrNotInProgress)

	// Broadcasts still apply; is_playing brings the room back.
	g := state(2, 2, clk.Now())
	g.IsPlaying = false
	s.ApplyState(g)
	require.Equal(t, RoundOver, s.Phase())
	s.ApplyState(state(1, 2, clk.Now()))
	require.Equal(t, InProgress, s.Phase())
}

func TestGameOver_FallsBackToLastRanking(t *testing.T) {
	s, clk, _ := newTestSession(t)
	s.ApplyWelcome(welcome(2, 1, true))
	s.ApplyState(state(1, 3, clk.Now()))

	s.ApplyGameOver(protocol.GameOver{Type: protocol.TypeGameOver})
	res, ok := s.Result()
	require.True(t, ok)
	require.Equal(t, OutcomePlacement, res.Outcome)
	require.Equal(t, 2, res.Rank)
	require.Len(t, res.Ranking, 3)

	s2, _, _ := newTestSession(t)
	s2.ApplyWelcome(welcome(2, 1, true))
	s2.ApplyState(state(1, 2, clk.Now()))
	s2.ApplyGameOver(protocol.GameOver{Type: protocol.TypeGameOver, Ranking: []protocol.Standing{{ID: 1}, {ID: 2}}})
	res, _ = s2.Result()
	require.Equal(t, OutcomeDefeat, res.Outcome)
}

func TestInit_ResetsBoardAndHand(t *testing.T) {
	s, clk, _ := newTestSession(t)
	s.ApplyWelcome(welcome(1, 1, true))
	s.board = checker()
	s.hand = rules.Hand{o3, o3, o3}
	s.ApplyState(state(1, 3, clk.Now()))
	require.True(t, s.AutoPassPending())

	s.ApplyInit(protocol.Init{Type: protocol.TypeInit, Board: emptyInts()})
	require.Equal(t, 0, s.board.FilledCount())
	require.False(t, s.AutoPassPending())
	require.Equal(t, 3, s.Hand().Remaining())
	require.Equal(t, o3, s.Hand()[0], "largest piece first on an empty board")
}

func TestStart_PollEnablesSkip(t *testing.T) {
	s, clk, _ := newTestSession(t)
	s.ApplyWelcome(welcome(1, 1, true))
	s.ApplyState(state(2, 3, clk.Now()))
	s.Start()
	defer s.Stop()

	clk.Advance(60 * time.Second)
	require.False(t, s.SkipEnabled())
	clk.Advance(time.Second)
	require.True(t, s.SkipEnabled())
}

func TestApply_Routes(t *testing.T) {
	s, _, _ := newTestSession(t)
	s.Apply(welcome(3, 3, false))
	s.Apply(protocol.GameStart{Type: protocol.TypeGameStart})
	require.Equal(t, InProgress, s.Phase())
	s.Apply(protocol.ErrorMsg{Type: protocol.TypeError, Message: "kicked by host"})
	require.Equal(t, "kicked by host", s.LastError())
	s.Apply(protocol.BaseMessage{Type: "chat"})
}

func TestCode(t *testing.T) {
	require.Equal(t, "", Code(nil))
	require.Equal(t, protocol.ErrRejected, Code(rules.ErrOverlap))
	require.Equal(t, protocol.ErrInternal, Code(errors.New("boom")))
	require.True(t, protocol.IsKnownCode(Code(ErrBadTarget)))
}

func TestNew_PartialTuningFillsDefaults(t *testing.T) {
	clk := clock.NewManual(t0)
	s := New(Config{
		Tuning: tuning.Tuning{AutoPassDelayMs: 2500},
		Rand:   zeroRand{},
		Clock:  clk,
		Logger: zerolog.Nop(),
	})
	require.Equal(t, 2500*time.Millisecond, s.Tuning().AutoPassDelay())
	require.Equal(t, time.Second, s.Tuning().TimerPoll())
	require.Equal(t, 4*time.Second, s.Tuning().ComboWindow())

	s.Start()
	done := make(chan struct{})
	go func() {
		clk.Advance(3 * time.Second)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Advance(3s) did not return")
	}

	s.combo.Clear(clk.Now())
	s.combo.Clear(clk.Now().Add(100 * time.Millisecond))
	require.Equal(t, 2, s.Combo())
}

func TestNew_InvalidTuningUsesDefaults(t *testing.T) {
	s := New(Config{
		Tuning: tuning.Tuning{TimerPollMs: -5, ComboWindowMs: 1500},
		Clock:  clock.NewManual(t0),
		Logger: zerolog.Nop(),
	})
	require.Equal(t, tuning.Defaults(), s.Tuning())
	require.Equal(t, 4*time.Second, s.combo.Window)
}
