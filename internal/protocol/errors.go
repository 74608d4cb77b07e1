package protocol

import "errors"

var ErrUnknownType = errors.New("unknown message type")

// Codes attached to locally refused actions and dropped frames. They show up
// in logs, the journal and the status endpoint.
const (
	// Frame validation.
	ErrProtoBadFrame = "E_PROTO_BAD_FRAME"
	ErrProtoUnknown  = "E_PROTO_UNKNOWN_TYPE"

	// Turn and phase gates.
	ErrNotYourTurn   = "E_NOT_YOUR_TURN"
	ErrClearing      = "E_CLEARING"
	ErrNotInProgress = "E_NOT_IN_PROGRESS"
	ErrInProgress    = "E_IN_PROGRESS"

	// Rule/action layer.
	ErrRejected     = "E_REJECTED"
	ErrSlotEmpty    = "E_SLOT_EMPTY"
	ErrSkipTooEarly = "E_SKIP_TOO_EARLY"
	ErrNotHost      = "E_NOT_HOST"
	ErrNoSkipVote   = "E_NO_SKIP_VOTE"
	ErrBadTarget    = "E_BAD_TARGET"

	// Reported by the room server.
	ErrServer   = "E_SERVER"
	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadFrame: {},
	ErrProtoUnknown:  {},
	ErrNotYourTurn:   {},
	ErrClearing:      {},
	ErrNotInProgress: {},
	ErrInProgress:    {},
	ErrRejected:      {},
	ErrSlotEmpty:     {},
	ErrSkipTooEarly:  {},
	ErrNotHost:       {},
	ErrNoSkipVote:    {},
	ErrBadTarget:     {},
	ErrServer:        {},
	ErrInternal:      {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
