package journal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const hourLayout = "2006-01-02-15"

// segment is the open zstd stream of one hour file. Reopening an hour appends
// a new zstd frame to the same file; ReadFile reads them back as one stream.
type segment struct {
	hour string
	f    *os.File
	enc  *zstd.Encoder
}

func segmentPath(dir, hour string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.jsonl.zst", Prefix, hour))
}

func openSegment(dir, hour string) (*segment, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(segmentPath(dir, hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{hour: hour, f: f, enc: enc}, nil
}

// appendLine writes one line and flushes it to the file as a complete block.
func (s *segment) appendLine(line []byte) error {
	if _, err := s.enc.Write(append(line, '\n')); err != nil {
		return err
	}
	return s.enc.Flush()
}

func (s *segment) close() error {
	err := s.enc.Close()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}
