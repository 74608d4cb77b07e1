package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"blockroom.ai/internal/protocol"
	"blockroom.ai/internal/sim/clock"
)

var ErrStopped = errors.New("session runner stopped")

type commandReq struct {
	Fn   func(*Session) error
	Resp chan error
}

type viewReq struct {
	Resp chan View
}

// Runner owns a Session and serializes every access to it on one goroutine:
// inbound frames, local commands, timer callbacks and status requests.
type Runner struct {
	s   *Session
	log zerolog.Logger

	inbox  chan []byte
	cmds   chan commandReq
	timers chan func()
	views  chan viewReq
	done   chan struct{}

	// AfterEvent, if set, runs on the loop after every frame, command and
	// timer callback.
	AfterEvent func(*Session)
}

// NewRunner builds a runner whose session uses wall-clock timers delivered
// through the loop. cfg.Clock is ignored.
func NewRunner(cfg Config) *Runner {
	r := &Runner{
		log:    cfg.Logger.With().Str("component", "runner").Logger(),
		inbox:  make(chan []byte),
		cmds:   make(chan commandReq),
		timers: make(chan func(), 16),
		views:  make(chan viewReq),
		done:   make(chan struct{}),
	}
	cfg.Clock = clock.NewLoop(r.post)
	r.s = New(cfg)
	return r
}

func (r *Runner) post(fn func()) {
	select {
	case r.timers <- fn:
	case <-r.done:
	}
}

// Deliver hands a raw inbound frame to the loop and returns once the loop has
// taken it. Frames are applied in arrival order.
func (r *Runner) Deliver(ctx context.Context, raw []byte) error {
	select {
	case r.inbox <- raw:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the loop and returns its error.
func (r *Runner) Do(ctx context.Context, fn func(*Session) error) error {
	resp := make(chan error, 1)
	select {
	case r.cmds <- commandReq{Fn: fn, Resp: resp}:
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestView returns a copy of the session state. It is safe to call from
// other goroutines (e.g. HTTP handlers).
func (r *Runner) RequestView(ctx context.Context) (View, error) {
	resp := make(chan View, 1)
	select {
	case r.views <- viewReq{Resp: resp}:
	case <-r.done:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case v := <-resp:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)
	r.s.Start()
	defer r.s.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw := <-r.inbox:
			r.handleFrame(raw)
		case req := <-r.cmds:
			err := req.Fn(r.s)
			if err != nil {
				r.log.Debug().Err(err).Str("code", Code(err)).Msg("command refused")
			}
			req.Resp <- err
		case fn := <-r.timers:
			fn()
		case req := <-r.views:
			select {
			case req.Resp <- r.s.View():
			default:
				// Caller gave up; don't block the loop.
			}
			continue
		}
		if r.AfterEvent != nil {
			r.AfterEvent(r.s)
		}
	}
}

func (r *Runner) handleFrame(raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			r.log.Debug().Err(err).Msg("frame ignored")
			return
		}
		r.log.Warn().Err(err).Str("code", protocol.ErrProtoBadFrame).Msg("frame dropped")
		return
	}
	r.s.Apply(msg)
}
