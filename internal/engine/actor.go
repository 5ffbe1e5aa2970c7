package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"ctfex.com/internal/ledger"
	"ctfex.com/internal/market"
	"ctfex.com/internal/matching"
	"ctfex.com/pkg/logger"
	"ctfex.com/pkg/metrics"
	"ctfex.com/pkg/xerr"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type ActorConfig struct {
	MailboxSize int // mailbox 容量, 满了直接拒
	BatchMax    int // 一轮最多处理多少条
}

// MarketSource is the read side of the market registry.
type MarketSource interface {
	Get(id common.Hash) (*market.Market, error)
	List() []*market.Market
}

type request struct {
	cmd   Command
	read  func(b *matching.OrderBook) response // 非 nil 表示只读查询
	reply chan response                        // buffered=1, actor 永不阻塞
}

type response struct {
	res   matching.PlaceResult
	order matching.Order
	depth matching.Depth
	best  BestQuote
	err   error
}

// 一批里已经 apply 的命令, 等 WAL flush 之后再回复
type pending struct {
	req *request
	rsp response
	seq uint64 // 0: 没有进 WAL (查询或被拒)
	evs []Event
}

// MarketActor owns one market's book. Every command and query for the
// market runs on its goroutine, in mailbox order.
type MarketActor struct {
	market common.Hash
	label  string
	book   *matching.OrderBook
	in     chan *request
	cfg    ActorConfig
	seq    uint64

	wal       walWriter
	outbox    Outbox
	bus       *ChanBus
	pubNotify chan struct{} // buffered=1, outbox flush 后踢一脚 publisher
	cmdCodec  CmdCodec

	ledger   ledger.Store
	markets  MarketSource
	exchange common.Address
	clock    func() int64
	ids      *atomic.Uint64
	index    *orderIndex

	mailboxFull uint64
	done        chan struct{}
}

func (a *MarketActor) TryEnqueue(r *request) error {
	select {
	case <-a.done:
		return ErrEngineStopped
	default:
	}
	select {
	case a.in <- r:
		return nil
	default:
		atomic.AddUint64(&a.mailboxFull, 1)
		return ErrEngineBusy
	}
}

func (a *MarketActor) MailboxFull() uint64 { return atomic.LoadUint64(&a.mailboxFull) }

// Done is closed once the actor stopped taking commands.
func (a *MarketActor) Done() <-chan struct{} { return a.done }

func (a *MarketActor) Run(ctx context.Context) {
	defer a.shutdown(ctx)
	logger.Info(ctx, "market actor started", zap.String("market", a.label), zap.Uint64("seq", a.seq))

	batch := make([]*request, 0, a.cfg.BatchMax)
	out := make([]pending, 0, a.cfg.BatchMax)
	for {
		// 先阻塞拿 1 条, 再尽量多拿几条 (不阻塞)
		select {
		case <-ctx.Done():
			return
		case r := <-a.in:
			batch = append(batch[:0], r)
		}
	drain:
		for len(batch) < a.cfg.BatchMax {
			select {
			case r := <-a.in:
				batch = append(batch, r)
			default:
				break drain
			}
		}
		metrics.MailboxDepth.WithLabelValues(a.label).Set(float64(len(a.in)))

		out = out[:0]
		if err := a.process(ctx, batch, &out); err != nil {
			logger.Error(ctx, "market actor stopped",
				zap.String("market", a.label), zap.Uint64("seq", a.seq), zap.Error(err))
			a.replyAll(out, err)
			for _, r := range batch[len(out):] {
				r.reply <- response{err: ErrEngineStopped}
			}
			return
		}
		if err := a.publish(out); err != nil {
			// 命令已经落盘, 正常回复; 重启时从命令 WAL 补齐 outbox
			logger.Error(ctx, "outbox write failed, stopping actor",
				zap.String("market", a.label), zap.Error(err))
			a.replyAll(out, nil)
			return
		}
		a.replyAll(out, nil)
		a.observeBook()
	}
}

// process 逐条 apply 到暂存账本, 成功的命令写 WAL, 整批 flush 一次 (组提交).
// WAL 落盘之后账本才真正落账; 落账失败就写一条 abort 作废这一批.
func (a *MarketActor) process(ctx context.Context, batch []*request, out *[]pending) error {
	stage := ledger.NewBatch(a.ledger)
	first := a.seq + 1
	appended := false
	for _, r := range batch {
		if r.read != nil {
			*out = append(*out, pending{req: r, rsp: r.read(a.book)})
			continue
		}

		start := time.Now()
		cmd := r.cmd
		cmd.Ts = a.clock()
		if cmd.Type == CmdPlace {
			cmd.OrderID = a.ids.Add(1)
		}
		rsp, evs := a.apply(ctx, cmd, stage)
		metrics.CommandDuration.WithLabelValues(cmd.Type.String()).Observe(time.Since(start).Seconds())
		if rsp.err != nil {
			metrics.RejectsTotal.WithLabelValues(xerr.KindOf(rsp.err).String()).Inc()
			logger.Debug(ctx, "command rejected", zap.String("market", a.label),
				zap.Stringer("type", cmd.Type), zap.Uint64("req_id", cmd.ReqID), zap.Error(rsp.err))
			*out = append(*out, pending{req: r, rsp: rsp})
			continue
		}

		a.seq++
		p := pending{req: r, rsp: rsp, seq: a.seq}
		for i := range evs {
			evs[i].Seq = a.seq
		}
		p.evs = evs
		*out = append(*out, p)

		if a.wal != nil {
			if err := a.appendCmd(a.seq, cmd); err != nil {
				return fmt.Errorf("%w: %v", ErrWALFailed, err)
			}
			appended = true
		}
	}
	if appended {
		start := time.Now()
		if err := a.wal.Flush(); err != nil {
			return fmt.Errorf("%w: %v", ErrWALFailed, err)
		}
		metrics.WALFlushDuration.Observe(time.Since(start).Seconds())
	}
	if err := stage.Flush(ctx); err != nil {
		return a.abort(ctx, first, err)
	}
	for _, p := range *out {
		if p.seq != 0 && p.req.cmd.Type == CmdPlace {
			countPlace(p.rsp.res)
		}
	}
	return nil
}

// abort 作废 [first, a.seq] 的命令: 它们已经在 WAL 里, 但账本没有落账, 回放必须跳过
func (a *MarketActor) abort(ctx context.Context, first uint64, cause error) error {
	err := fmt.Errorf("%w: %v", ErrLedgerCommit, cause)
	if a.wal == nil || a.seq < first {
		return err
	}
	a.seq++
	rec := Command{Type: CmdAbort, Ts: a.clock(), Market: a.market, OrderID: first}
	if werr := a.appendCmd(a.seq, rec); werr != nil {
		logger.Error(ctx, "abort record not written, log and ledger disagree",
			zap.String("market", a.label), zap.Uint64("first", first), zap.Error(werr))
		return err
	}
	if werr := a.wal.Flush(); werr != nil {
		logger.Error(ctx, "abort record not flushed, log and ledger disagree",
			zap.String("market", a.label), zap.Uint64("first", first), zap.Error(werr))
		return err
	}
	logger.Warn(ctx, "batch aborted after ledger commit failure",
		zap.String("market", a.label), zap.Uint64("first", first), zap.Uint64("last", a.seq-1), zap.Error(cause))
	return err
}

func (a *MarketActor) appendCmd(seq uint64, cmd Command) error {
	var rec [cmdRecordLen]byte
	payload, err := a.cmdCodec.Encode(rec[:0], seq, cmd)
	if err != nil {
		return err
	}
	return a.wal.Append(payload)
}

func (a *MarketActor) apply(ctx context.Context, cmd Command, stage *ledger.Batch) (response, []Event) {
	m, err := a.markets.Get(a.market)
	if err != nil && !errors.Is(err, market.ErrMarketNotRegistered) {
		return response{err: err}, nil
	}
	env := matching.Env{
		Ledger:   ledger.NewJournal(ctx, stage, a.exchange),
		Market:   m,
		Exchange: a.exchange,
		Now:      cmd.Ts,
	}

	switch cmd.Type {
	case CmdPlace:
		res, err := a.book.Place(matching.PlaceRequest{
			ID: cmd.OrderID, Trader: cmd.Trader, Intent: cmd.Intent,
			Tick: cmd.Tick, Quantity: cmd.Quantity, TIF: cmd.TIF,
		}, env)
		if err != nil {
			return response{err: err}, nil
		}
		a.index.put(res.Order.ID, a.market)
		return response{res: res, order: res.Order}, placeEvents(0, cmd, res)
	case CmdCancel:
		o, err := a.book.Cancel(cmd.OrderID, cmd.Trader, env)
		if err != nil {
			return response{err: err}, nil
		}
		return response{order: o}, cancelEvents(0, cmd, o)
	default:
		return response{err: ErrBadCommand}, nil
	}
}

// publish 事件进 outbox (每条命令一个 CmdEnd), 整批 flush 后通知 publisher
func (a *MarketActor) publish(out []pending) error {
	var em emitter = busEmitter{bus: a.bus}
	if a.outbox != nil {
		em = outboxEmitter{out: a.outbox}
	}
	wrote := false
	for _, p := range out {
		if p.seq == 0 {
			continue
		}
		if err := emitAll(em, a.outbox, p.seq, p.evs); err != nil {
			return err
		}
		wrote = true
	}
	if a.outbox == nil || !wrote {
		return nil
	}
	if err := a.outbox.Flush(); err != nil {
		return err
	}
	select {
	case a.pubNotify <- struct{}{}:
	default:
	}
	return nil
}

// replyAll: err 非 nil 时覆盖所有已 apply 的命令的结果, 被拒的命令照常回复
func (a *MarketActor) replyAll(out []pending, err error) {
	for _, p := range out {
		rsp := p.rsp
		if err != nil && p.seq != 0 {
			rsp = response{err: err}
		}
		p.req.reply <- rsp
	}
}

func (a *MarketActor) shutdown(ctx context.Context) {
	close(a.done)
	// mailbox 里剩下的都回 stopped
	for {
		select {
		case r := <-a.in:
			r.reply <- response{err: ErrEngineStopped}
		default:
			if a.wal != nil {
				_ = a.wal.Close()
			}
			if a.outbox != nil {
				_ = a.outbox.Close()
			}
			logger.Info(ctx, "market actor stopped", zap.String("market", a.label), zap.Uint64("seq", a.seq))
			return
		}
	}
}

func (a *MarketActor) observeBook() {
	metrics.BookDepth.WithLabelValues(a.label, "bid").Set(float64(a.book.RestingCount(matching.Bid)))
	metrics.BookDepth.WithLabelValues(a.label, "ask").Set(float64(a.book.RestingCount(matching.Ask)))
}

func countPlace(res matching.PlaceResult) {
	o := res.Order
	metrics.OrdersTotal.WithLabelValues(o.Intent.String(), o.TIF.String(), o.Status.String()).Inc()
	for _, f := range res.Fills {
		kind := f.Kind.String()
		metrics.FillsTotal.WithLabelValues(kind).Inc()
		metrics.FilledQtyTotal.WithLabelValues(kind).Add(float64(f.Quantity))
	}
}
