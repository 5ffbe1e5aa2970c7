package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"
)

type ReaderOptions struct {
	MaxPayload         int
	AllowTruncatedTail bool
	BufferSize         int
}

// Reader walks a log from an offset. The outbox publisher keeps one open
// and polls Next; io.EOF means "nothing more yet".
type Reader struct {
	f   *os.File
	br  *bufio.Reader
	off int64

	maxPayload int
	allowTail  bool

	truncatedTail  bool
	lastGoodOffset int64
}

func OpenReader(path string, offset int64, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1 << 20
	}
	maxPayload := opts.MaxPayload
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Reader{
		f:              f,
		br:             bufio.NewReaderSize(f, opts.BufferSize),
		off:            offset,
		maxPayload:     maxPayload,
		allowTail:      opts.AllowTruncatedTail,
		lastGoodOffset: offset,
	}, nil
}

func (r *Reader) Close() error { return r.f.Close() }

func (r *Reader) TruncatedTail() bool   { return r.truncatedTail }
func (r *Reader) LastGoodOffset() int64 { return r.lastGoodOffset }

// Next returns the next record and the offset just past it.
func (r *Reader) Next() (payload []byte, nextOffset int64, err error) {
	var hdr [headerSize]byte
	if _, err = io.ReadFull(r.br, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, r.off, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, r.off, r.tail(ErrCorruptHeader)
		}
		return nil, r.off, err
	}

	ln := int(binary.LittleEndian.Uint32(hdr[0:4]))
	crc := binary.LittleEndian.Uint32(hdr[4:8])
	if ln < 0 || ln > r.maxPayload {
		return nil, r.off, ErrPayloadTooLarge
	}

	payload = make([]byte, ln)
	if _, err = io.ReadFull(r.br, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, r.off, r.tail(ErrCorruptPayload)
		}
		return nil, r.off, err
	}
	if crc32.ChecksumIEEE(payload) != crc {
		return nil, r.off, ErrChecksumMismatch
	}

	r.off += int64(headerSize + ln)
	r.lastGoodOffset = r.off
	return payload, r.off, nil
}

// tail 处理半写记录: 允许时当作 EOF, 并把读位置拉回上一条完整记录
func (r *Reader) tail(corrupt error) error {
	r.truncatedTail = true
	if !r.allowTail {
		return corrupt
	}
	if _, err := r.f.Seek(r.lastGoodOffset, io.SeekStart); err == nil {
		r.br.Reset(r.f)
	}
	return io.EOF
}
