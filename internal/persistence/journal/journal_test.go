package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type memIndex struct{ entries []Entry }

func (m *memIndex) RecordMessage(e Entry) { m.entries = append(m.entries, e) }

func TestWriter_RecordAndRead(t *testing.T) {
	dir := t.TempDir()
	idx := &memIndex{}
	j := New(dir, "", idx, zerolog.Nop())
	require.NotEmpty(t, j.SessionID())

	j.Record(DirIn, []byte(`{"type":"welcome","your_id":1}`))
	j.Record(DirOut, []byte(`{"type":"end_turn"}`))
	j.Record(DirIn, []byte(`not json`))
	require.NoError(t, j.Close())

	files, err := Files(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	var got []Entry
	require.NoError(t, ReadFile(files[0], func(e Entry) error {
		got = append(got, e)
		return nil
	}))
	require.Len(t, got, 3)
	require.Equal(t, uint64(1), got[0].Seq)
	require.Equal(t, "welcome", got[0].Type)
	require.Equal(t, DirOut, got[1].Dir)
	require.Equal(t, "end_turn", got[1].Type)
	require.Equal(t, `"not json"`, string(got[2].Frame))
	require.Equal(t, j.SessionID(), got[2].Session)
	require.Len(t, idx.entries, 3)
}

func TestWriter_FilesFollowEntryHour(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	j := New(dir, "s1", nil, zerolog.Nop())
	j.now = func() time.Time { return now }

	j.Record(DirIn, []byte(`{"type":"welcome"}`))
	now = now.Add(2 * time.Minute)
	j.Record(DirIn, []byte(`{"type":"init"}`))
	// A clock stepping back lands in the earlier hour as a new zstd frame.
	now = now.Add(-5 * time.Minute)
	j.Record(DirOut, []byte(`{"type":"end_turn"}`))
	require.NoError(t, j.Close())

	// Reopening after Close appends to the hour file.
	now = time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)
	j.Record(DirIn, []byte(`{"type":"game_state"}`))
	require.NoError(t, j.Close())

	files, err := Files(dir)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "frames-2026-03-01-10.jsonl.zst"),
		filepath.Join(dir, "frames-2026-03-01-11.jsonl.zst"),
	}, files)

	read := func(path string) (seqs []uint64) {
		require.NoError(t, ReadFile(path, func(e Entry) error {
			seqs = append(seqs, e.Seq)
			return nil
		}))
		return seqs
	}
	require.Equal(t, []uint64{1, 3}, read(files[0]))
	require.Equal(t, []uint64{2, 4}, read(files[1]))
}

func TestFiles_SkipsOtherNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "frames-sub.jsonl.zst"), 0o755))
	files, err := Files(dir)
	require.NoError(t, err)
	require.Empty(t, files)
}
