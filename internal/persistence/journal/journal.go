package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"blockroom.ai/internal/protocol"
)

const (
	DirIn  = "in"
	DirOut = "out"

	Prefix = "frames"
)

// Entry is one journaled frame.
type Entry struct {
	Session string          `json:"session"`
	Seq     uint64          `json:"seq"`
	At      time.Time       `json:"at"`
	Dir     string          `json:"dir"`
	Type    string          `json:"type"`
	Frame   json.RawMessage `json:"frame"`
}

// Index receives a copy of every entry, e.g. the sqlite index.
type Index interface {
	RecordMessage(e Entry)
}

// Writer journals the frames of one client session. Journaling is best
// effort: write failures are logged, never returned to the caller.
type Writer struct {
	dir     string
	session string
	now     func() time.Time

	mu  sync.Mutex
	seq uint64
	cur *segment

	index Index
	log   zerolog.Logger
}

// New opens a journal under dir. An empty sessionID gets a fresh UUID.
func New(dir, sessionID string, index Index, logger zerolog.Logger) *Writer {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Writer{
		dir:     dir,
		session: sessionID,
		now:     time.Now,
		index:   index,
		log:     logger.With().Str("component", "journal").Str("session", sessionID).Logger(),
	}
}

func (j *Writer) SessionID() string { return j.session }

// Record journals a raw frame travelling in direction dir.
func (j *Writer) Record(dir string, raw []byte) {
	if j == nil {
		return
	}
	base, _ := protocol.DecodeBase(raw)

	// Sequence numbers follow file order across the reader and writer
	// goroutines.
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq++
	e := Entry{
		Session: j.session,
		Seq:     j.seq,
		At:      j.now().UTC(),
		Dir:     dir,
		Type:    base.Type,
		Frame:   json.RawMessage(append([]byte(nil), raw...)),
	}
	if !json.Valid(e.Frame) {
		b, _ := json.Marshal(string(raw))
		e.Frame = b
	}
	if err := j.write(e); err != nil {
		j.log.Warn().Err(err).Msg("journal write failed")
	}
	if j.index != nil {
		j.index.RecordMessage(e)
	}
}

// write appends e to the file of the hour e.At falls in. Caller holds mu.
func (j *Writer) write(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	hour := e.At.UTC().Format(hourLayout)
	if j.cur == nil || j.cur.hour != hour {
		if err := j.closeSegment(); err != nil {
			return err
		}
		seg, err := openSegment(j.dir, hour)
		if err != nil {
			return err
		}
		j.cur = seg
	}
	return j.cur.appendLine(line)
}

func (j *Writer) closeSegment() error {
	if j.cur == nil {
		return nil
	}
	err := j.cur.close()
	j.cur = nil
	return err
}

func (j *Writer) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closeSegment()
}

// Files lists journal files in dir in chronological order.
func Files(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, Prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadFile calls fn for every entry in a journal file, in order. It stops at
// the first error fn returns.
func ReadFile(path string, fn func(Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}
