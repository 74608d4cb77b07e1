package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"blockroom.ai/internal/bot"
	"blockroom.ai/internal/persistence/indexdb"
	"blockroom.ai/internal/persistence/journal"
	"blockroom.ai/internal/protocol"
	"blockroom.ai/internal/sim/catalogs"
	"blockroom.ai/internal/sim/session"
	"blockroom.ai/internal/sim/tuning"
	"blockroom.ai/internal/transport/status"
	"blockroom.ai/internal/transport/ws"
)

type config struct {
	URL        string
	Room       string
	Name       string
	TuningPath string
	PiecesPath string
	DataDir    string
	Index      bool
	Auto       bool
	Script     string
	StatusAddr string
	Console    bool
}

func main() {
	_ = godotenv.Load()

	var cfg config
	flag.StringVar(&cfg.URL, "url", getEnv("BLOCKROOM_URL", "ws://localhost:8000"), "server base url")
	flag.StringVar(&cfg.Room, "room", getEnv("BLOCKROOM_ROOM", ""), "room id")
	flag.StringVar(&cfg.Name, "name", getEnv("BLOCKROOM_NAME", "player"), "nickname")
	flag.StringVar(&cfg.TuningPath, "tuning", getEnv("BLOCKROOM_TUNING", ""), "tuning.yaml (optional)")
	flag.StringVar(&cfg.PiecesPath, "pieces", getEnv("BLOCKROOM_PIECES", ""), "pieces.yaml override (optional)")
	flag.StringVar(&cfg.DataDir, "data", getEnv("BLOCKROOM_DATA", "./data"), "journal and index directory")
	flag.BoolVar(&cfg.Index, "index", getEnvBool("BLOCKROOM_INDEX", true), "index the journal in sqlite")
	flag.BoolVar(&cfg.Auto, "auto", getEnvBool("BLOCKROOM_AUTO", false), "let the bot play")
	flag.StringVar(&cfg.Script, "script", getEnv("BLOCKROOM_SCRIPT", ""), "lua scorer for the bot (optional)")
	flag.StringVar(&cfg.StatusAddr, "status", getEnv("BLOCKROOM_STATUS_ADDR", ""), "status http listen addr, e.g. 127.0.0.1:8090")
	flag.BoolVar(&cfg.Console, "console", getEnvBool("BLOCKROOM_CONSOLE", true), "read commands from stdin")
	flag.Parse()

	logger := newLogger(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "console"))

	if cfg.Room == "" {
		fmt.Fprintln(os.Stderr, "missing -room")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("client exited")
	}
}

func newLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}

func run(ctx context.Context, cfg config, logger zerolog.Logger) error {
	cat, err := catalogs.Load(cfg.PiecesPath)
	if err != nil {
		return fmt.Errorf("load pieces: %w", err)
	}
	tun, err := tuning.Load(cfg.TuningPath)
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	if cfg.Script != "" {
		tun.Bot.Script = cfg.Script
	}
	validator, err := protocol.NewValidator()
	if err != nil {
		return fmt.Errorf("schemas: %w", err)
	}

	var idx *indexdb.SQLiteIndex
	var jIndex journal.Index
	var stats status.StatsSource
	if cfg.Index {
		idx, err = indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index.sqlite"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		jIndex, stats = idx, idx
	}
	jw := journal.New(filepath.Join(cfg.DataDir, "journal"), "", jIndex, logger)
	defer jw.Close()
	logger = logger.With().Str("session", jw.SessionID()).Logger()

	url, err := ws.RoomURL(cfg.URL, cfg.Room, cfg.Name)
	if err != nil {
		return err
	}
	client, err := ws.Dial(ctx, ws.Options{URL: url, Validator: validator, Journal: jw, Logger: logger})
	if err != nil {
		return err
	}
	defer client.Close()
	logger.Info().Str("url", url).Str("catalog", cat.Digest[:12]).Int("pieces", cat.Len()).Msg("connected")

	runner := session.NewRunner(session.Config{
		Catalog: cat,
		Tuning:  tun,
		Sender:  client,
		Logger:  logger,
	})

	var player *bot.Player
	if cfg.Auto {
		scorer := bot.Greedy
		if tun.Bot.Script != "" {
			lua, err := bot.LoadLuaScorer(tun.Bot.Script)
			if err != nil {
				return err
			}
			defer lua.Close()
			scorer = lua
		}
		player = bot.NewPlayer(scorer, logger)
	}
	rec := &recorder{index: idx, session: jw.SessionID(), room: cfg.Room, digest: cat.Digest}
	runner.AfterEvent = func(s *session.Session) {
		rec.observe(s)
		if player != nil {
			player.Observe(s)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runnerDone := make(chan error, 1)
	go func() { runnerDone <- runner.Run(ctx) }()

	if cfg.StatusAddr != "" {
		srv := status.New(status.Options{Views: runner, Index: stats, Logger: logger})
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.StatusAddr); err != nil {
				logger.Error().Err(err).Msg("status server")
			}
		}()
		logger.Info().Str("addr", cfg.StatusAddr).Msg("status server listening")
	}
	if cfg.Console {
		go runConsole(ctx, os.Stdin, os.Stdout, runner, logger)
	}

	err = client.Run(ctx, runner.Deliver)
	interrupted := ctx.Err() != nil
	cancel()
	<-runnerDone
	if err != nil && !interrupted {
		return err
	}
	logger.Info().Msg("disconnected")
	return nil
}

// recorder writes session and result rows to the index as the session
// progresses.
type recorder struct {
	index   *indexdb.SQLiteIndex
	session string
	room    string
	digest  string

	joined    bool
	lastPhase session.Phase
}

func (r *recorder) observe(s *session.Session) {
	if r.index == nil {
		return
	}
	if !r.joined && s.Me() != 0 {
		r.joined = true
		r.index.RecordSession(indexdb.SessionRow{
			Session:       r.session,
			PlayerID:      s.Me(),
			Name:          s.View().Name,
			RoomID:        r.room,
			CatalogDigest: r.digest,
			StartedAt:     s.Scheduler().Now(),
		})
	}
	phase := s.Phase()
	if phase == session.RoundOver && r.lastPhase != session.RoundOver {
		if res, ok := s.Result(); ok {
			r.index.RecordResult(indexdb.ResultRow{
				Session:    r.session,
				RecordedAt: s.Scheduler().Now(),
				Outcome:    string(res.Outcome),
				Rank:       res.Rank,
				Players:    s.Turn().Players,
				Ranking:    res.Ranking,
			})
		}
	}
	r.lastPhase = phase
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvBool(k string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}
