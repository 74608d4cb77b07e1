package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"blockroom.ai/internal/persistence/journal"
)

// SQLiteIndex is a queryable copy of the journal plus per-session results.
// Writes go through a buffered channel to a single writer goroutine and are
// dropped when it falls behind; the journal files stay the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders sends on ch against close(ch).
	mu     sync.RWMutex
	closed bool

	dropMessages atomic.Uint64
	dropSessions atomic.Uint64
	dropResults  atomic.Uint64
}

type reqKind int

const (
	reqMessage reqKind = iota + 1
	reqSession
	reqResult
)

type req struct {
	kind reqKind

	message journal.Entry
	session SessionRow
	result  ResultRow
}

// SessionRow describes one connection to a room.
type SessionRow struct {
	Session       string
	PlayerID      int
	Name          string
	RoomID        string
	CatalogDigest string
	StartedAt     time.Time
}

// ResultRow is the local outcome of a finished round.
type ResultRow struct {
	Session    string
	RecordedAt time.Time
	Outcome    string
	Rank       int
	Players    int
	Ranking    any
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	DropMessages  uint64
	DropSessions  uint64
	DropResults   uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session TEXT PRIMARY KEY,
			player_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			room_id TEXT NOT NULL,
			catalog_digest TEXT NOT NULL,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			session TEXT NOT NULL,
			seq INTEGER NOT NULL,
			at TEXT NOT NULL,
			dir TEXT NOT NULL,
			type TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (session, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_type ON messages(type, session);`,
		`CREATE TABLE IF NOT EXISTS results (
			session TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			outcome TEXT NOT NULL,
			rank INTEGER NOT NULL,
			players INTEGER NOT NULL,
			ranking_json TEXT NOT NULL,
			PRIMARY KEY (session, recorded_at)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

// RecordMessage implements journal.Index.
func (s *SQLiteIndex) RecordMessage(e journal.Entry) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqMessage, message: e}, &s.dropMessages)
}

func (s *SQLiteIndex) RecordSession(row SessionRow) {
	if s == nil || row.Session == "" {
		return
	}
	s.enqueue(req{kind: reqSession, session: row}, &s.dropSessions)
}

func (s *SQLiteIndex) RecordResult(row ResultRow) {
	if s == nil || row.Session == "" {
		return
	}
	s.enqueue(req{kind: reqResult, result: row}, &s.dropResults)
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropMessages:  s.dropMessages.Load(),
		DropSessions:  s.dropSessions.Load(),
		DropResults:   s.dropResults.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertMessage, _ := s.db.Prepare(`INSERT OR REPLACE INTO messages(session,seq,at,dir,type,raw_json) VALUES(?,?,?,?,?,?)`)
	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(session,player_id,name,room_id,catalog_digest,started_at) VALUES(?,?,?,?,?,?)`)
	insertResult, _ := s.db.Prepare(`INSERT OR REPLACE INTO results(session,recorded_at,outcome,rank,players,ranking_json) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertMessage, insertSession, insertResult} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqMessage:
			m := r.message
			exec(insertMessage, m.Session, int64(m.Seq), m.At.UTC().Format(time.RFC3339Nano), m.Dir, m.Type, string(m.Frame))
		case reqSession:
			se := r.session
			exec(insertSession, se.Session, se.PlayerID, se.Name, se.RoomID, se.CatalogDigest, se.StartedAt.UTC().Format(time.RFC3339Nano))
		case reqResult:
			re := r.result
			raw, err := json.Marshal(re.Ranking)
			if err != nil {
				raw = []byte("null")
			}
			exec(insertResult, re.Session, re.RecordedAt.UTC().Format(time.RFC3339Nano), re.Outcome, re.Rank, re.Players, string(raw))
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0) {
			commit()
		}
	}

	commit()
}

// MessageRow is a stored journal entry.
type MessageRow struct {
	Seq  uint64
	At   string
	Dir  string
	Type string
	Raw  string
}

// Messages returns a session's frames in sequence order, optionally filtered
// by type.
func (s *SQLiteIndex) Messages(ctx context.Context, session, typ string) ([]MessageRow, error) {
	q := `SELECT seq, at, dir, type, raw_json FROM messages WHERE session = ?`
	args := []any{session}
	if typ != "" {
		q += ` AND type = ?`
		args = append(args, typ)
	}
	q += ` ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MessageRow
	for rows.Next() {
		var m MessageRow
		var seq int64
		if err := rows.Scan(&seq, &m.At, &m.Dir, &m.Type, &m.Raw); err != nil {
			return nil, err
		}
		m.Seq = uint64(seq)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ResultSummary counts recorded outcomes across all sessions.
func (s *SQLiteIndex) ResultSummary(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM results GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}
