package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Message types. The first group arrives from the room server, the second is
// sent by the client. batch_update travels both ways.
const (
	TypeWelcome     = "welcome"
	TypeInit        = "init"
	TypeGameState   = "game_state"
	TypeBatchUpdate = "batch_update"
	TypeGameOver    = "game_over"
	TypeGameStart   = "game_start"
	TypeError       = "error"

	TypeEndTurn    = "end_turn"
	TypePassTurn   = "pass_turn"
	TypeVoteSkip   = "vote_skip"
	TypeVoteReset  = "vote_reset"
	TypeVetoSkip   = "veto_skip"
	TypeStartGame  = "start_game"
	TypeKickPlayer = "kick_player"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Decode parses an inbound frame into its typed message (a value, not a
// pointer). Unknown types are returned as BaseMessage with ErrUnknownType.
func Decode(b []byte) (any, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return nil, err
	}
	switch base.Type {
	case TypeWelcome:
		return decodeAs[Welcome](b)
	case TypeInit:
		return decodeAs[Init](b)
	case TypeGameState:
		return decodeAs[GameState](b)
	case TypeBatchUpdate:
		return decodeAs[BatchUpdate](b)
	case TypeGameOver:
		return decodeAs[GameOver](b)
	case TypeGameStart:
		return decodeAs[GameStart](b)
	case TypeError:
		return decodeAs[ErrorMsg](b)
	default:
		return base, fmt.Errorf("%w: %q", ErrUnknownType, base.Type)
	}
}

func decodeAs[T any](b []byte) (any, error) {
	var m T
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SecondsToTime converts the server's float epoch seconds. Zero stays zero.
func SecondsToTime(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}

func TimeToSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}
