package status

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"blockroom.ai/internal/persistence/indexdb"
	"blockroom.ai/internal/sim/session"
)

// ViewSource is satisfied by *session.Runner.
type ViewSource interface {
	RequestView(ctx context.Context) (session.View, error)
}

// StatsSource is satisfied by *indexdb.SQLiteIndex.
type StatsSource interface {
	Stats() indexdb.Stats
}

type Options struct {
	Views  ViewSource
	Index  StatsSource
	Logger zerolog.Logger

	// StreamInterval is how often the stream polls for a changed view.
	StreamInterval time.Duration
	// AllowRemote disables the loopback-only guard.
	AllowRemote bool
}

// Server exposes the local client state over HTTP for debugging and tooling.
type Server struct {
	opts     Options
	log      zerolog.Logger
	r        *chi.Mux
	upgrader websocket.Upgrader
}

func New(opts Options) *Server {
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = 250 * time.Millisecond
	}
	s := &Server{
		opts: opts,
		log:  opts.Logger.With().Str("component", "status").Logger(),
		r:    chi.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.Recoverer)
	s.r.Use(s.requestLog)
	if !opts.AllowRemote {
		s.r.Use(loopbackOnly)
	}

	s.r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	s.r.Route("/v1", func(r chi.Router) {
		r.With(chimw.Timeout(5*time.Second)).Get("/session", s.handleSession)
		r.With(chimw.Timeout(5*time.Second)).Get("/index/stats", s.handleIndexStats)
		r.Get("/session/stream", s.handleStream)
	})
	return s
}

func (s *Server) Handler() http.Handler { return s.r }

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.r, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.opts.Views == nil {
		http.Error(w, "no session", http.StatusServiceUnavailable)
		return
	}
	v, err := s.opts.Views.RequestView(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, v)
}

func (s *Server) handleIndexStats(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Index == nil {
		http.Error(w, "index disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, s.opts.Index.Stats())
}

// handleStream pushes the session view whenever it changes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.opts.Views == nil {
		http.Error(w, "no session", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: only watches for the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var last []byte
	tick := time.NewTicker(s.opts.StreamInterval)
	defer tick.Stop()
	for {
		v, err := s.opts.Views.RequestView(ctx)
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session ended"), time.Now().Add(time.Second))
			return
		}
		b, err := json.Marshal(v)
		if err != nil {
			s.log.Error().Err(err).Msg("encode view")
			return
		}
		if !bytes.Equal(b, last) {
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
			last = b
		}
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			return
		case <-tick.C:
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("request")
	})
}

func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
