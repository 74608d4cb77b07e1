package session

import (
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"blockroom.ai/internal/protocol"
	"blockroom.ai/internal/sim/board"
	"blockroom.ai/internal/sim/catalogs"
	"blockroom.ai/internal/sim/clock"
	"blockroom.ai/internal/sim/rules"
	"blockroom.ai/internal/sim/tuning"
)

type Phase int

const (
	WaitingForPlayers Phase = iota
	InProgress
	RoundOver
)

func (p Phase) String() string {
	switch p {
	case WaitingForPlayers:
		return "waiting"
	case InProgress:
		return "in_progress"
	case RoundOver:
		return "round_over"
	default:
		return "unknown"
	}
}

// TurnState mirrors the last game_state broadcast.
type TurnState struct {
	Holder   int       `json:"holder"`
	Start    time.Time `json:"start"`
	Round    string    `json:"round"`
	Clearing bool      `json:"clearing"`
	HostID   int       `json:"host_id"`
	Players  int       `json:"players"`
	Playing  bool      `json:"playing"`
	Final    bool      `json:"final"`
}

// VoteTally holds the player ids behind each pending vote, ascending.
type VoteTally struct {
	Skip  []int `json:"skip"`
	Reset []int `json:"reset"`
}

func (v VoteTally) SkipBy(id int) bool  { return contains(v.Skip, id) }
func (v VoteTally) ResetBy(id int) bool { return contains(v.Reset, id) }

func contains(ids []int, id int) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// Preview is a drag in progress. It is never committed to the board.
type Preview struct {
	Slot   int               `json:"slot"`
	Row    int               `json:"row"`
	Col    int               `json:"col"`
	Fits   bool              `json:"fits"`
	Clears board.ClearResult `json:"clears"`
}

// Sender delivers outbound messages. Delivery is fire and forget.
type Sender interface {
	Send(msg any) error
}

type SenderFunc func(msg any) error

func (f SenderFunc) Send(msg any) error { return f(msg) }

type Config struct {
	Catalog *catalogs.Catalog
	Tuning  tuning.Tuning
	Rand    rules.Intn
	Clock   clock.Scheduler
	Sender  Sender
	Logger  zerolog.Logger
}

type autoPassState int

const (
	autoPassIdle autoPassState = iota
	autoPassPending
	autoPassSent
)

// maxEchoes bounds the outbound batches remembered for echo suppression.
const maxEchoes = 8

// Session is the client-side mirror of one room. It is not safe for
// concurrent use; Runner serializes access.
type Session struct {
	cat   *catalogs.Catalog
	tune  tuning.Tuning
	rng   rules.Intn
	clock clock.Scheduler
	out   Sender
	log   zerolog.Logger

	me     int
	name   string
	roomID string

	phase   Phase
	board   board.Board
	hand    rules.Hand
	turn    TurnState
	votes   VoteTally
	ranking []protocol.Standing
	final   []protocol.Standing

	combo       Combo
	preview     *Preview
	skipEnabled bool

	autoPass       autoPassState
	echoes         []string
	restored       bool
	lastError      string
	noticeVisible  bool
	noticeTimer    clock.Timer
	prevSkipVotes  int
	pollTimer      clock.Timer
	handsGenerated int
}

func New(cfg Config) *Session {
	if cfg.Catalog == nil {
		cfg.Catalog = catalogs.Default()
	}
	cfg.Tuning.Fill(tuning.Defaults())
	if err := cfg.Tuning.Validate(); err != nil {
		cfg.Logger.Warn().Err(err).Msg("invalid tuning, using defaults")
		cfg.Tuning = tuning.Defaults()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewManual(time.Now())
	}
	if cfg.Sender == nil {
		cfg.Sender = SenderFunc(func(any) error { return nil })
	}
	return &Session{
		cat:   cfg.Catalog,
		tune:  cfg.Tuning,
		rng:   cfg.Rand,
		clock: cfg.Clock,
		out:   cfg.Sender,
		log:   cfg.Logger.With().Str("component", "session").Logger(),
		combo: Combo{Window: cfg.Tuning.ComboWindow()},
	}
}

func (s *Session) Me() int                    { return s.me }
func (s *Session) Phase() Phase               { return s.phase }
func (s *Session) Board() board.Board         { return s.board }
func (s *Session) Hand() rules.Hand           { return s.hand }
func (s *Session) Turn() TurnState            { return s.turn }
func (s *Session) Votes() VoteTally           { return s.votes }
func (s *Session) Combo() int                 { return s.combo.Count }
func (s *Session) SkipEnabled() bool          { return s.skipEnabled }
func (s *Session) VoteNoticeVisible() bool    { return s.noticeVisible }
func (s *Session) AutoPassPending() bool      { return s.autoPass == autoPassPending }
func (s *Session) Catalog() *catalogs.Catalog { return s.cat }
func (s *Session) Scheduler() clock.Scheduler { return s.clock }
func (s *Session) Tuning() tuning.Tuning      { return s.tune }
func (s *Session) LastError() string          { return s.lastError }

// MyTurn reports whether local placements are currently allowed.
func (s *Session) MyTurn() bool {
	return s.me != 0 && s.phase == InProgress && s.turn.Holder == s.me && !s.turn.Clearing
}

// SkipVotesRequired is the number of skip votes that force a turn change.
func (s *Session) SkipVotesRequired() int {
	if s.turn.Players-1 > 1 {
		return s.turn.Players - 1
	}
	return 1
}

// Start arms the turn-timer poll. Callbacks run through the scheduler.
func (s *Session) Start() {
	if s.pollTimer != nil {
		return
	}
	var poll func()
	poll = func() {
		s.Tick(s.clock.Now())
		s.pollTimer = s.clock.AfterFunc(s.tune.TimerPoll(), poll)
	}
	s.pollTimer = s.clock.AfterFunc(s.tune.TimerPoll(), poll)
}

// Stop cancels the poll and the vote notice. A pending auto-pass still fires.
func (s *Session) Stop() {
	if s.pollTimer != nil {
		s.pollTimer.Stop()
		s.pollTimer = nil
	}
	if s.noticeTimer != nil {
		s.noticeTimer.Stop()
		s.noticeTimer = nil
	}
}

func (s *Session) send(msg any) {
	if err := s.out.Send(msg); err != nil {
		s.log.Warn().Err(err).Msg("send failed")
	}
}

type Outcome string

const (
	OutcomeVictory   Outcome = "victory"
	OutcomeDefeat    Outcome = "defeat"
	OutcomePlacement Outcome = "placement"
)

// Result classifies the finished round for the local player. Two-player
// rooms report victory or defeat, larger rooms a placement. Rank is 1-based
// and 0 when the player is missing from the ranking.
type Result struct {
	Outcome Outcome             `json:"outcome"`
	Rank    int                 `json:"rank"`
	Ranking []protocol.Standing `json:"ranking"`
}

func (s *Session) Result() (Result, bool) {
	if s.phase != RoundOver {
		return Result{}, false
	}
	ranking := s.final
	if len(ranking) == 0 {
		ranking = s.ranking
	}
	res := Result{Outcome: OutcomePlacement, Ranking: append([]protocol.Standing(nil), ranking...)}
	for i, st := range ranking {
		if st.ID == s.me {
			res.Rank = i + 1
			break
		}
	}
	if s.turn.Players == 2 {
		res.Outcome = OutcomeDefeat
		if res.Rank == 1 {
			res.Outcome = OutcomeVictory
		}
	}
	return res, true
}

// View is a JSON-friendly copy of the session for status output.
type View struct {
	PlayerID          int                 `json:"player_id"`
	Name              string              `json:"name"`
	RoomID            string              `json:"room_id,omitempty"`
	Phase             string              `json:"phase"`
	Board             []string            `json:"board"`
	Hand              []string            `json:"hand"`
	Turn              TurnState           `json:"turn"`
	Votes             VoteTally           `json:"votes"`
	SkipVotesRequired int                 `json:"skip_votes_required"`
	SkipEnabled       bool                `json:"skip_enabled"`
	VoteNotice        bool                `json:"vote_notice"`
	Combo             int                 `json:"combo"`
	AutoPassPending   bool                `json:"auto_pass_pending"`
	Restored          bool                `json:"restored,omitempty"`
	Ranking           []protocol.Standing `json:"ranking"`
	Result            *Result             `json:"result,omitempty"`
	Preview           *Preview            `json:"preview,omitempty"`
	LastError         string              `json:"last_error,omitempty"`
}

func (s *Session) View() View {
	v := View{
		PlayerID:          s.me,
		Name:              s.name,
		RoomID:            s.roomID,
		Phase:             s.phase.String(),
		Board:             strings.Split(s.board.String(), "\n"),
		Hand:              s.hand.IDs(),
		Turn:              s.turn,
		Votes:             VoteTally{Skip: append([]int{}, s.votes.Skip...), Reset: append([]int{}, s.votes.Reset...)},
		SkipVotesRequired: s.SkipVotesRequired(),
		SkipEnabled:       s.skipEnabled,
		VoteNotice:        s.noticeVisible,
		Combo:             s.combo.Count,
		AutoPassPending:   s.AutoPassPending(),
		Restored:          s.restored,
		Ranking:           append([]protocol.Standing{}, s.ranking...),
		LastError:         s.lastError,
	}
	if r, ok := s.Result(); ok {
		v.Result = &r
	}
	if s.preview != nil {
		p := *s.preview
		v.Preview = &p
	}
	return v
}
