package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"ctfex.com/pkg/logger"
	"ctfex.com/pkg/wal"
	"go.uber.org/zap"
)

// OutboxPublisher tails one market's outbox into the bus. The cursor only
// advances on command boundaries, so a restart re-delivers at most the
// events of one partially published command.
type OutboxPublisher struct {
	bus        *ChanBus
	evPath     string
	cursorPath string
	notify     <-chan struct{}
	codec      EvCodec
	poll       time.Duration
}

func NewOutboxPublisher(bus *ChanBus, evPath, cursorPath string, notify <-chan struct{}, poll time.Duration, codec EvCodec) *OutboxPublisher {
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	return &OutboxPublisher{
		bus:        bus,
		evPath:     evPath,
		cursorPath: cursorPath,
		notify:     notify,
		poll:       poll,
		codec:      codec,
	}
}

func (p *OutboxPublisher) Run(ctx context.Context) {
	committed := loadCursor(p.cursorPath)
	// outbox 修复截断过的话, cursor 可能比文件还长
	if st, err := os.Stat(p.evPath); err == nil && committed > st.Size() {
		committed = st.Size()
		if err := storeCursor(p.cursorPath, committed); err != nil {
			logger.Error(ctx, "outbox cursor reset failed", zap.String("path", p.cursorPath), zap.Error(err))
			return
		}
	}

	for ctx.Err() == nil {
		r, err := wal.OpenReader(p.evPath, committed, wal.ReaderOptions{AllowTruncatedTail: true})
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logger.Warn(ctx, "outbox open failed", zap.String("path", p.evPath), zap.Error(err))
			}
			p.wait(ctx)
			continue
		}
		committed = p.drain(ctx, r, committed)
		_ = r.Close()
	}
}

// drain 读到出错为止, 返回已提交的 offset; 调用方从这里重新打开
func (p *OutboxPublisher) drain(ctx context.Context, r *wal.Reader, committed int64) int64 {
	for ctx.Err() == nil {
		payload, next, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.wait(ctx)
				continue
			}
			logger.Warn(ctx, "outbox read failed", zap.String("path", p.evPath), zap.Error(err))
			p.wait(ctx)
			return committed
		}

		ev, err := p.codec.Decode(payload)
		if err != nil {
			logger.Error(ctx, "outbox decode failed", zap.Int64("offset", committed), zap.Error(err))
			p.wait(ctx)
			return committed
		}

		// CmdEnd 不发布, 只推进 cursor
		if ev.Type == EvCmdEnd {
			if err := storeCursor(p.cursorPath, next); err != nil {
				logger.Warn(ctx, "outbox cursor store failed", zap.Error(err))
			} else {
				committed = next
			}
			continue
		}

		// publisher 不在撮合线程里, 允许阻塞
		if err := p.bus.Publish(ctx, ev); err != nil {
			return committed
		}
	}
	return committed
}

func (p *OutboxPublisher) wait(ctx context.Context) {
	t := time.NewTimer(p.poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-p.notify:
	case <-t.C:
	}
}
