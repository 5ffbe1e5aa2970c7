package wal

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRecords(t *testing.T, path string, recs ...string) *Writer {
	t.Helper()
	w, err := OpenWrite(path, 0)
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, w.Append([]byte(r)))
	}
	require.NoError(t, w.Flush())
	return w
}

func TestReplay_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmd.wal")
	w := writeRecords(t, path, "a", "bb", "ccc")
	require.NoError(t, w.Close())

	var got []string
	st, err := Replay(path, ReplayOptions{}, func(p []byte) error {
		got = append(got, string(p))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "bb", "ccc"}, got)
	assert.Equal(t, 3, st.Records)
	assert.Equal(t, int64(3*headerSize+6), st.LastGoodOffset)
}

func TestReplay_MissingFileIsEmpty(t *testing.T) {
	st, err := Replay(filepath.Join(t.TempDir(), "nope.wal"), ReplayOptions{}, func([]byte) error {
		t.Fatal("unexpected record")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, st.Records)
}

func TestRecover_TruncatesHalfWrittenTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmd.wal")
	w := writeRecords(t, path, "one", "two")
	good := w.Offset()
	require.NoError(t, w.Close())

	// 模拟崩溃: 只写了半个 header
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte{9, 0, 0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Replay(path, ReplayOptions{}, func([]byte) error { return nil })
	assert.ErrorIs(t, err, ErrCorruptHeader)

	st, err := Recover(path, 0, func([]byte) error { return nil })
	require.NoError(t, err)
	assert.True(t, st.TruncatedTail)
	assert.Equal(t, 2, st.Records)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, good, info.Size())
}

func TestReplay_ChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmd.wal")
	w := writeRecords(t, path, "payload")
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = Replay(path, ReplayOptions{}, func([]byte) error { return nil })
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestReader_TailFollowing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.wal")
	w := writeRecords(t, path, "e1")
	defer w.Close()

	r, err := OpenReader(path, 0, ReaderOptions{AllowTruncatedTail: true})
	require.NoError(t, err)
	defer r.Close()

	p, off, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "e1", string(p))
	assert.Equal(t, int64(headerSize+2), off)

	_, _, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, w.Append([]byte("e2")))
	require.NoError(t, w.Flush())

	p, _, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "e2", string(p))
}

func TestWriter_AppendAfterClose(t *testing.T) {
	w, err := OpenWrite(filepath.Join(t.TempDir(), "x.wal"), 0)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Append([]byte("x")), ErrClosed)
}
