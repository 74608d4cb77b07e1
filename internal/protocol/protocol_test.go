package protocol

import (
	"errors"
	"testing"
	"time"
)

const sampleState = `{
  "type":"game_state",
  "count":3,
  "ranking":[{"id":2,"name":"bo","score":40},{"id":1,"name":"al","score":10}],
  "current_turn":2,
  "turn_start_time":1700000000.5,
  "skip_votes":[1],
  "reset_votes":[],
  "host_id":1,
  "is_playing":true,
  "turns_info":"3/10"
}`

func emptyBoardJSON() string {
	row := `[0,0,0,0,0,0,0,0]`
	s := "["
	for i := 0; i < 8; i++ {
		if i > 0 {
			s += ","
		}
		s += row
	}
	return s + "]"
}

func TestDecode_Routes(t *testing.T) {
	m, err := Decode([]byte(sampleState))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gs, ok := m.(GameState)
	if !ok {
		t.Fatalf("got %T want GameState", m)
	}
	if gs.CurrentTurn != 2 || gs.Count != 3 || len(gs.SkipVotes) != 1 || gs.Round() != "3/10" {
		t.Fatalf("unexpected state: %+v", gs)
	}
	if got := SecondsToTime(gs.TurnStartTime); !got.Equal(time.Unix(1700000000, 500000000)) {
		t.Fatalf("turn start=%v", got)
	}

	m, err = Decode([]byte(`{"type":"welcome","your_id":7,"your_name":"me","board":` + emptyBoardJSON() + `,"host_id":7,"is_playing":false}`))
	if err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	if w := m.(Welcome); w.YourID != 7 || len(w.Board) != 8 {
		t.Fatalf("unexpected welcome: %+v", w)
	}

	if _, err := Decode([]byte(`{"type":"chat"}`)); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("err=%v want ErrUnknownType", err)
	}
}

func TestSecondsToTime_ZeroAndRoundTrip(t *testing.T) {
	if !SecondsToTime(0).IsZero() {
		t.Fatalf("zero seconds must map to zero time")
	}
	now := time.Unix(1700000123, 250000000)
	if got := SecondsToTime(TimeToSeconds(now)); got.Sub(now).Abs() > time.Microsecond {
		t.Fatalf("round trip drift: %v", got.Sub(now))
	}
}

func TestValidator_Inbound(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	good := []string{
		sampleState,
		`{"type":"init","board":` + emptyBoardJSON() + `}`,
		`{"type":"batch_update","updates":[{"row":0,"col":1,"value":1}]}`,
		`{"type":"game_over","ranking":[]}`,
		`{"type":"game_start"}`,
		`{"type":"error","message":"room is full"}`,
	}
	for _, raw := range good {
		if _, err := v.Inbound([]byte(raw)); err != nil {
			t.Fatalf("validate %s: %v", raw, err)
		}
	}

	bad := []string{
		`{"type":"init","board":[[0,0]]}`,
		`{"type":"batch_update","updates":[{"row":"a","col":1,"value":1}]}`,
		`{"type":"game_state","count":1}`,
		`{"type":"error"}`,
		`[1,2]`,
	}
	for _, raw := range bad {
		if _, err := v.Inbound([]byte(raw)); err == nil {
			t.Fatalf("expected validation error for %s", raw)
		}
	}
	if typ, err := v.Inbound([]byte(`{"type":"chat"}`)); !errors.Is(err, ErrUnknownType) || typ != "chat" {
		t.Fatalf("typ=%q err=%v", typ, err)
	}
}

func TestValidator_Outbound(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	good := []any{
		NewBatchUpdate([]CellUpdate{{Row: 1, Col: 2, Value: 1}}),
		NewAction(TypeEndTurn),
		NewAction(TypePassTurn),
		NewAction(TypeVetoSkip),
		NewStartGame(5),
		NewKickPlayer(3),
	}
	for _, m := range good {
		if err := v.Outbound(m); err != nil {
			t.Fatalf("outbound %+v: %v", m, err)
		}
	}
	if err := v.Outbound(NewAction("dance")); err == nil {
		t.Fatalf("expected unknown outbound type rejected")
	}
	if err := v.Outbound(NewStartGame(-1)); err == nil {
		t.Fatalf("expected negative rounds rejected")
	}
}
