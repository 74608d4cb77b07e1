package protocol

// Standing is one row of the server's ranking, best first.
type Standing struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// CellUpdate sets one board cell; any non-zero value means filled.
type CellUpdate struct {
	Row   int `json:"row"`
	Col   int `json:"col"`
	Value int `json:"value"`
}

// welcome (server -> client), sent once after the socket opens.
type Welcome struct {
	Type      string  `json:"type"`
	YourID    int     `json:"your_id"`
	YourName  string  `json:"your_name"`
	Board     [][]int `json:"board"`
	RoomID    string  `json:"room_id,omitempty"`
	HostID    int     `json:"host_id"`
	IsPlaying bool    `json:"is_playing"`
	Restored  bool    `json:"restored,omitempty"`
}

// init (server -> client): full board after a reset.
type Init struct {
	Type  string  `json:"type"`
	Board [][]int `json:"board"`
}

// game_state (server -> client): replaces the turn and vote mirror wholesale.
type GameState struct {
	Type          string     `json:"type"`
	Count         int        `json:"count"`
	Ranking       []Standing `json:"ranking"`
	CurrentTurn   int        `json:"current_turn"`
	TurnStartTime float64    `json:"turn_start_time"`
	SkipVotes     []int      `json:"skip_votes"`
	ResetVotes    []int      `json:"reset_votes"`
	HostID        int        `json:"host_id"`
	IsPlaying     bool       `json:"is_playing"`
	IsClearing    bool       `json:"is_clearing,omitempty"`
	RoundInfo     string     `json:"round_info,omitempty"`
	TurnsInfo     string     `json:"turns_info,omitempty"`
	IsFinal       bool       `json:"is_final,omitempty"`
}

// Round returns the round label under either of the names servers use.
func (g GameState) Round() string {
	if g.RoundInfo != "" {
		return g.RoundInfo
	}
	return g.TurnsInfo
}

// batch_update (both directions).
type BatchUpdate struct {
	Type    string       `json:"type"`
	Updates []CellUpdate `json:"updates"`
}

// game_over (server -> client).
type GameOver struct {
	Type    string     `json:"type"`
	Ranking []Standing `json:"ranking"`
}

// game_start (server -> client).
type GameStart struct {
	Type string `json:"type"`
}

// error (server -> client): free-text reason, usually followed by a close.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Action is an outbound message without payload: end_turn, pass_turn,
// vote_skip, vote_reset, veto_skip.
type Action struct {
	Type string `json:"type"`
}

// start_game (client -> server), host only. Zero rounds means unlimited.
type StartGame struct {
	Type      string `json:"type"`
	MaxRounds int    `json:"max_rounds"`
}

// kick_player (client -> server), host only.
type KickPlayer struct {
	Type     string `json:"type"`
	TargetID int    `json:"target_id"`
}

func NewBatchUpdate(updates []CellUpdate) BatchUpdate {
	return BatchUpdate{Type: TypeBatchUpdate, Updates: updates}
}

func NewAction(typ string) Action { return Action{Type: typ} }

func NewStartGame(maxRounds int) StartGame {
	return StartGame{Type: TypeStartGame, MaxRounds: maxRounds}
}

func NewKickPlayer(target int) KickPlayer {
	return KickPlayer{Type: TypeKickPlayer, TargetID: target}
}
