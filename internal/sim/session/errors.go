package session

import (
	"errors"

	"blockroom.ai/internal/protocol"
	"blockroom.ai/internal/sim/rules"
)

// Local refusals. None of them end the session; the caller may simply try
// something else.
var (
	ErrNotYourTurn   = errors.New("not your turn")
	ErrClearing      = errors.New("lines are clearing")
	ErrNotInProgress = errors.New("game not in progress")
	ErrInProgress    = errors.New("game already in progress")
	ErrSlotEmpty     = errors.New("hand slot is empty")
	ErrSkipTooEarly  = errors.New("skip vote not open yet")
	ErrNotHost       = errors.New("host only")
	ErrNoSkipVote    = errors.New("no skip vote to veto")
	ErrBadTarget     = errors.New("bad target")
)

// Code maps a refusal to its protocol error code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotYourTurn):
		return protocol.ErrNotYourTurn
	case errors.Is(err, ErrClearing):
		return protocol.ErrClearing
	case errors.Is(err, ErrNotInProgress):
		return protocol.ErrNotInProgress
	case errors.Is(err, ErrInProgress):
		return protocol.ErrInProgress
	case errors.Is(err, ErrSlotEmpty):
		return protocol.ErrSlotEmpty
	case errors.Is(err, ErrSkipTooEarly):
		return protocol.ErrSkipTooEarly
	case errors.Is(err, ErrNotHost):
		return protocol.ErrNotHost
	case errors.Is(err, ErrNoSkipVote):
		return protocol.ErrNoSkipVote
	case errors.Is(err, ErrBadTarget):
		return protocol.ErrBadTarget
	case errors.Is(err, rules.ErrRejected):
		return protocol.ErrRejected
	default:
		return protocol.ErrInternal
	}
}
