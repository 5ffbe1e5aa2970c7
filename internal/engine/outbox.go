package engine

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"

	"ctfex.com/pkg/wal"
	"github.com/ethereum/go-ethereum/common"
)

// EventOutbox 事件 outbox (<market>.ev.wal). 只有 actor 写, publisher 只读
type EventOutbox struct {
	w     *wal.Writer
	codec EvCodec
	buf   []byte
}

func OpenEventOutbox(path string, bufSize int, codec EvCodec) (*EventOutbox, error) {
	wr, err := wal.OpenWrite(path, bufSize)
	if err != nil {
		return nil, err
	}
	return &EventOutbox{w: wr, codec: codec, buf: make([]byte, 0, evRecordLen)}, nil
}

func (o *EventOutbox) Append(ev Event) error {
	payload, err := o.codec.Encode(o.buf[:0], ev)
	if err != nil {
		return err
	}
	// json 编码可能换了底层数组, 留着下次复用
	o.buf = payload[:0]
	return o.w.Append(payload)
}

func (o *EventOutbox) AppendCmdEnd(seq uint64) error {
	return o.Append(Event{Type: EvCmdEnd, Seq: seq})
}

func (o *EventOutbox) Flush() error { return o.w.Flush() }
func (o *EventOutbox) Close() error { return o.w.Close() }

// ScanAndRepairOutbox 找到最后一个完整命令边界, 截掉半写的记录和没有
// CmdEnd 的残留事件. 返回的 seq 之后的事件需要由命令 WAL 回放补齐.
func ScanAndRepairOutbox(path string, codec EvCodec) (lastCompleteSeq uint64, lastCompleteOffset int64, err error) {
	r, err := wal.OpenReader(path, 0, wal.ReaderOptions{AllowTruncatedTail: true})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	defer r.Close()

	for {
		p, nextOff, e := r.Next()
		if e != nil {
			if errors.Is(e, io.EOF) {
				break
			}
			return 0, 0, e
		}
		ev, err := codec.Decode(p)
		if err != nil {
			return 0, 0, err
		}
		if ev.Type == EvCmdEnd {
			lastCompleteSeq = ev.Seq
			lastCompleteOffset = nextOff
		}
	}

	// 截到最后一个 CmdEnd 之后; 包含了半写尾部的情况
	if err := wal.TruncateTo(path, lastCompleteOffset); err != nil {
		return 0, 0, err
	}
	return lastCompleteSeq, lastCompleteOffset, nil
}

func cmdWalPath(dir string, market common.Hash) string {
	return filepath.Join(dir, market.Hex()+".wal")
}

func outboxWalPath(dir string, market common.Hash) string {
	return filepath.Join(dir, market.Hex()+".ev.wal")
}

func outboxCursorPath(dir string, market common.Hash) string {
	return filepath.Join(dir, market.Hex()+".ev.cursor")
}

// cursor 文件: 8 字节小端 offset
func loadCursor(path string) int64 {
	b, err := os.ReadFile(path)
	if err != nil || len(b) < 8 {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b[:8]))
}

func storeCursor(path string, off int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(off))

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b[:], 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
