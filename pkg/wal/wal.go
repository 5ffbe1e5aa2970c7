package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

// 记录格式: len(4) | crc32(4) | payload, 小端
const (
	headerSize      = 8
	defaultFilePerm = 0o644
)

// DefaultMaxPayload 防止坏数据把内存吃爆
const DefaultMaxPayload = 4 << 20

var (
	ErrCorruptHeader    = errors.New("wal: corrupt header")
	ErrCorruptPayload   = errors.New("wal: corrupt payload")
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrPayloadTooLarge  = errors.New("wal: payload too large")
	ErrClosed           = errors.New("wal: writer closed")
)

// Writer appends framed records. Appends are buffered until Flush.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	bw     *bufio.Writer
	off    int64 // 逻辑偏移, 包含 bufio 里还没刷下去的数据
	closed bool
}

func OpenWrite(path string, buffSize int) (*Writer, error) {
	if buffSize <= 0 {
		buffSize = 1 << 20
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, defaultFilePerm)
	if err != nil {
		return nil, err
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return &Writer{
		f:   file,
		bw:  bufio.NewWriterSize(file, buffSize),
		off: stat.Size(),
	}, nil
}

func (w *Writer) Append(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(hdr[4:], crc32.ChecksumIEEE(payload))
	if _, err := w.bw.Write(hdr[:]); err != nil {
		return fmt.Errorf("wal: write header: %w", err)
	}
	if _, err := w.bw.Write(payload); err != nil {
		return fmt.Errorf("wal: write payload: %w", err)
	}
	w.off += int64(headerSize + len(payload))
	return nil
}

// Flush pushes buffered records to the file and fsyncs it.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *Writer) Offset() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.off
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.bw.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

type ReplayOptions struct {
	MaxPayload int // <=0 则用 DefaultMaxPayload
	// 最后一条记录半写 (崩溃) 时是否当作正常结束
	AllowTruncatedTail bool
}

type ReplayStats struct {
	Records        int
	LastGoodOffset int64
	TruncatedTail  bool
}

// Replay feeds every intact record to onRecord in order. A missing file is
// an empty log.
func Replay(path string, opts ReplayOptions, onRecord func(payload []byte) error) (ReplayStats, error) {
	var st ReplayStats
	r, err := OpenReader(path, 0, ReaderOptions{
		MaxPayload:         opts.MaxPayload,
		AllowTruncatedTail: opts.AllowTruncatedTail,
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return st, err
	}
	defer r.Close()

	for {
		payload, _, err := r.Next()
		if err != nil {
			st.TruncatedTail = r.TruncatedTail()
			if errors.Is(err, io.EOF) {
				return st, nil
			}
			return st, err
		}
		if err := onRecord(payload); err != nil {
			return st, err
		}
		st.Records++
		st.LastGoodOffset = r.LastGoodOffset()
	}
}

// Recover replays path and cuts a half-written tail so later appends start
// on a record boundary.
func Recover(path string, maxPayload int, onRecord func(payload []byte) error) (ReplayStats, error) {
	st, err := Replay(path, ReplayOptions{MaxPayload: maxPayload, AllowTruncatedTail: true}, onRecord)
	if err != nil {
		return st, err
	}
	if st.TruncatedTail {
		if err := TruncateTo(path, st.LastGoodOffset); err != nil {
			return st, err
		}
	}
	return st, nil
}

// TruncateTo cuts the file at offset. Missing files and offsets past the
// end are no-ops.
func TruncateTo(path string, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("wal: negative truncate offset %d", offset)
	}
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if offset >= st.Size() {
		return nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Truncate(offset); err != nil {
		return err
	}
	_ = f.Sync()
	return nil
}
