package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ctfex.com/internal/ledger"
	"ctfex.com/internal/market"
	"ctfex.com/internal/matching"
	"ctfex.com/pkg/logger"
	"ctfex.com/pkg/safe"
	"ctfex.com/pkg/wal"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var ErrWALLocked = errors.New("engine: wal directory is held by another process")

// Lease guards a WAL directory against a second writer process.
type Lease interface {
	TryAcquire(ctx context.Context, ttl time.Duration) (bool, error)
	KeepAlive(ctx context.Context, ttl time.Duration, lost func(error))
	Release(ctx context.Context) error
}

type EngineConfig struct {
	EventBusSize    int           // 下游事件 bus 容量
	ActorCfg        ActorConfig   // actor 配置
	WALDir          string        // cmd.wal / ev.wal / cursor 所在目录
	EnableCmdWAL    bool          // 命令 WAL, 关掉就没有重启恢复
	WALBufSize      int           // wal 写缓冲
	EnableOutbox    bool          // 事件 outbox
	OutboxBufSize   int           // outbox 写缓冲
	EnablePublisher bool          // 从 outbox 推到 bus
	PublisherPoll   time.Duration // publisher 轮询间隔
	CmdCodec        CmdCodec
	EvCodec         EvCodec
	Exchange        common.Address // 交易所自己的账户, 铸造时的中转方
	Clock           func() int64   // unix 秒, 测试可替换
	Lease           Lease
	LeaseTTL        time.Duration
}

// Engine routes commands to one actor per market. Safe for concurrent use.
type Engine struct {
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	actors map[common.Hash]*MarketActor
	wg     sync.WaitGroup

	bus     *ChanBus
	cfg     EngineConfig
	ledger  ledger.Store
	markets MarketSource
	ids     atomic.Uint64 // 全局订单号
	index   *orderIndex
}

func NewEngine(cfg EngineConfig, store ledger.Store, markets MarketSource) *Engine {
	if cfg.CmdCodec == nil {
		cfg.CmdCodec = BinaryCmdCodec{}
	}
	if cfg.EvCodec == nil {
		cfg.EvCodec = BinaryEvCodec{}
	}
	if cfg.Clock == nil {
		cfg.Clock = func() int64 { return time.Now().Unix() }
	}
	if cfg.ActorCfg.MailboxSize <= 0 {
		cfg.ActorCfg.MailboxSize = 4096
	}
	if cfg.ActorCfg.BatchMax <= 0 {
		cfg.ActorCfg.BatchMax = 256
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		ctx:     ctx,
		cancel:  cancel,
		actors:  make(map[common.Hash]*MarketActor),
		bus:     NewChanBus(cfg.EventBusSize),
		cfg:     cfg,
		ledger:  store,
		markets: markets,
		index:   newOrderIndex(),
	}
}

// Start takes the WAL lease and rebuilds every market that has a log or
// is registered, so order ids and the id index are complete before the
// first new command.
func (e *Engine) Start(ctx context.Context) error {
	persist := e.cfg.EnableCmdWAL || e.cfg.EnableOutbox || e.cfg.EnablePublisher
	if persist && e.cfg.WALDir == "" {
		return fmt.Errorf("engine: WALDir is empty but persistence is enabled")
	}
	if persist {
		if err := os.MkdirAll(e.cfg.WALDir, 0o755); err != nil {
			return err
		}
	}
	if e.cfg.Lease != nil {
		ok, err := e.cfg.Lease.TryAcquire(ctx, e.cfg.LeaseTTL)
		if err != nil {
			return fmt.Errorf("engine lease: %w", err)
		}
		if !ok {
			return ErrWALLocked
		}
		e.cfg.Lease.KeepAlive(e.ctx, e.cfg.LeaseTTL, func(err error) {
			logger.Error(e.ctx, "engine lease lost, stopping", zap.Error(err))
			e.cancel()
		})
	}

	ids, err := e.logged()
	if err != nil {
		return err
	}
	for _, m := range e.markets.List() {
		ids = append(ids, m.ID)
	}
	for _, id := range ids {
		if _, err := e.getOrCreateActor(id); err != nil {
			return fmt.Errorf("open market %s: %w", id.Hex(), err)
		}
	}
	logger.Info(ctx, "engine started", zap.Int("markets", len(e.actors)), zap.Uint64("last_order_id", e.ids.Load()))
	return nil
}

// logged 列出 WALDir 里已有命令日志的 market
func (e *Engine) logged() ([]common.Hash, error) {
	if !e.cfg.EnableCmdWAL {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(e.cfg.WALDir, "0x*.wal"))
	if err != nil {
		return nil, err
	}
	out := make([]common.Hash, 0, len(files))
	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), ".wal")
		if strings.HasSuffix(name, ".ev") || len(name) != 66 {
			continue
		}
		out = append(out, common.HexToHash(name))
	}
	return out, nil
}

func (e *Engine) Events() <-chan Event  { return e.bus.C() }
func (e *Engine) DroppedEvents() uint64 { return e.bus.Dropped() }

// Stop cancels every actor and publisher and waits for them.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
	if e.cfg.Lease != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.cfg.Lease.Release(ctx)
	}
}

func (e *Engine) PlaceOrder(ctx context.Context, p PlaceOrder) (PlaceReply, error) {
	a, err := e.actorFor(p.Market)
	if err != nil {
		return PlaceReply{}, err
	}
	rsp, err := e.call(ctx, a, &request{cmd: Command{
		Type: CmdPlace, ReqID: p.ReqID, Market: p.Market, Trader: p.Trader,
		Intent: p.Intent, Tick: p.Tick, Quantity: p.Quantity, TIF: p.TIF,
	}})
	if err != nil {
		return PlaceReply{}, err
	}
	return PlaceReply{Order: rsp.res.Order, Fills: rsp.res.Fills}, nil
}

func (e *Engine) CancelOrder(ctx context.Context, orderID uint64, caller common.Address) (matching.Order, error) {
	mkt, ok := e.index.get(orderID)
	if !ok {
		return matching.Order{}, matching.ErrOrderNotFound
	}
	a, err := e.actorFor(mkt)
	if err != nil {
		return matching.Order{}, err
	}
	rsp, err := e.call(ctx, a, &request{cmd: Command{
		Type: CmdCancel, Market: mkt, OrderID: orderID, Trader: caller,
	}})
	if err != nil {
		return matching.Order{}, err
	}
	return rsp.order, nil
}

func (e *Engine) Order(ctx context.Context, orderID uint64) (matching.Order, error) {
	mkt, ok := e.index.get(orderID)
	if !ok {
		return matching.Order{}, matching.ErrOrderNotFound
	}
	rsp, err := e.query(ctx, mkt, func(b *matching.OrderBook) response {
		o, ok := b.Order(orderID)
		if !ok {
			return response{err: matching.ErrOrderNotFound}
		}
		return response{order: o}
	})
	return rsp.order, err
}

func (e *Engine) BestBid(ctx context.Context, mkt common.Hash) (matching.Tick, bool, error) {
	q, err := e.Best(ctx, mkt)
	return q.Bid, q.HasBid, err
}

func (e *Engine) BestAsk(ctx context.Context, mkt common.Hash) (matching.Tick, bool, error) {
	q, err := e.Best(ctx, mkt)
	return q.Ask, q.HasAsk, err
}

// Best reads both sides in one mailbox round trip.
func (e *Engine) Best(ctx context.Context, mkt common.Hash) (BestQuote, error) {
	rsp, err := e.query(ctx, mkt, func(b *matching.OrderBook) response {
		var q BestQuote
		q.Bid, q.HasBid = b.BestBid()
		q.Ask, q.HasAsk = b.BestAsk()
		return response{best: q}
	})
	return rsp.best, err
}

func (e *Engine) Depth(ctx context.Context, mkt common.Hash, levels int) (matching.Depth, error) {
	rsp, err := e.query(ctx, mkt, func(b *matching.OrderBook) response {
		return response{depth: b.Depth(levels)}
	})
	return rsp.depth, err
}

func (e *Engine) query(ctx context.Context, mkt common.Hash, fn func(*matching.OrderBook) response) (response, error) {
	a, err := e.actorFor(mkt)
	if err != nil {
		return response{}, err
	}
	return e.call(ctx, a, &request{read: fn})
}

// call 入队后等回复. ctx 只能放弃等待, 已入队的命令照样执行
func (e *Engine) call(ctx context.Context, a *MarketActor, r *request) (response, error) {
	r.reply = make(chan response, 1)
	if err := a.TryEnqueue(r); err != nil {
		return response{}, err
	}
	select {
	case rsp := <-r.reply:
		return rsp, rsp.err
	case <-ctx.Done():
		return response{}, ctx.Err()
	case <-a.Done():
		select {
		case rsp := <-r.reply:
			return rsp, rsp.err
		default:
			return response{}, ErrEngineStopped
		}
	}
}

// actorFor 只给已有日志或已注册的 market 建 actor
func (e *Engine) actorFor(mkt common.Hash) (*MarketActor, error) {
	if e.ctx.Err() != nil {
		return nil, ErrEngineStopped
	}
	e.mu.RLock()
	a := e.actors[mkt]
	e.mu.RUnlock()
	if a != nil {
		return a, nil
	}
	if _, err := e.markets.Get(mkt); err != nil {
		return nil, err
	}
	return e.getOrCreateActor(mkt)
}

func (e *Engine) getOrCreateActor(mkt common.Hash) (*MarketActor, error) {
	// 1) 快路径: 读锁查
	e.mu.RLock()
	a := e.actors[mkt]
	e.mu.RUnlock()
	if a != nil {
		return a, nil
	}

	// 2) 慢路径: 写锁双检 + 创建
	e.mu.Lock()
	defer e.mu.Unlock()
	if a = e.actors[mkt]; a != nil {
		return a, nil
	}

	book := matching.NewOrderBook(mkt)
	cmdPath := cmdWalPath(e.cfg.WALDir, mkt)
	evPath := outboxWalPath(e.cfg.WALDir, mkt)
	curPath := outboxCursorPath(e.cfg.WALDir, mkt)

	// outbox 里"最后一个完整命令边界"的 seq
	var lastCompleteSeq uint64
	var outbox *EventOutbox
	var err error
	if e.cfg.EnableOutbox {
		lastCompleteSeq, _, err = ScanAndRepairOutbox(evPath, e.cfg.EvCodec)
		if err != nil {
			return nil, err
		}
		outbox, err = OpenEventOutbox(evPath, e.cfg.OutboxBufSize, e.cfg.EvCodec)
		if err != nil {
			return nil, err
		}
	}
	closeOutbox := func() {
		if outbox != nil {
			_ = outbox.Close()
		}
	}

	// 回放命令 WAL 重建簿; outbox 缺的事件 (seq > lastCompleteSeq) 顺手补上
	var lastSeq uint64
	if e.cfg.EnableCmdWAL {
		var ob Outbox
		if outbox != nil {
			ob = outbox
		}
		lastSeq, err = e.replay(cmdPath, book, ob, lastCompleteSeq)
		if err != nil {
			closeOutbox()
			return nil, err
		}
	}
	if outbox != nil {
		if err := outbox.Flush(); err != nil {
			closeOutbox()
			return nil, err
		}
	}

	var cmdWriter walWriter
	if e.cfg.EnableCmdWAL {
		w, err := wal.OpenWrite(cmdPath, e.cfg.WALBufSize)
		if err != nil {
			closeOutbox()
			return nil, err
		}
		cmdWriter = w
	}

	a = &MarketActor{
		market:    mkt,
		label:     mkt.Hex(),
		book:      book,
		in:        make(chan *request, e.cfg.ActorCfg.MailboxSize),
		cfg:       e.cfg.ActorCfg,
		seq:       lastSeq, // 新命令从 lastSeq+1 开始
		wal:       cmdWriter,
		bus:       e.bus,
		pubNotify: make(chan struct{}, 1),
		cmdCodec:  e.cfg.CmdCodec,
		ledger:    e.ledger,
		markets:   e.markets,
		exchange:  e.cfg.Exchange,
		clock:     e.cfg.Clock,
		ids:       &e.ids,
		index:     e.index,
		done:      make(chan struct{}),
	}
	if outbox != nil {
		a.outbox = outbox
	}
	a.observeBook()
	e.actors[mkt] = a

	e.wg.Add(1)
	safe.GoCtx(e.ctx, func(ctx context.Context) {
		defer e.wg.Done()
		a.Run(ctx)
	})

	// publisher tail ev.wal, 读到事件就发到 bus; 读到 CmdEnd 推进 cursor
	if e.cfg.EnablePublisher && outbox != nil {
		pub := NewOutboxPublisher(e.bus, evPath, curPath, a.pubNotify, e.cfg.PublisherPoll, e.cfg.EvCodec)
		e.wg.Add(1)
		safe.GoCtx(e.ctx, func(ctx context.Context) {
			defer e.wg.Done()
			pub.Run(ctx)
		})
	}
	return a, nil
}

// replay 用放行账本重放已提交的命令: 账本里早已结算过, 这里只重建簿和订单表.
// 第一遍只找 abort 记录, 第二遍重放时跳过被作废的命令.
func (e *Engine) replay(path string, book *matching.OrderBook, outbox Outbox, lastCompleteSeq uint64) (uint64, error) {
	// 放行账本不看资产, 但结算路径需要非空 market
	m, err := e.markets.Get(book.Market())
	if err != nil {
		m = &market.Market{ID: book.Market()}
	}

	var voided voidedSeqs
	var lastSeq uint64
	st, err := wal.Recover(path, 0, func(payload []byte) error {
		seq, cmd, err := e.cfg.CmdCodec.Decode(payload)
		if err != nil {
			return err
		}
		if seq <= lastSeq {
			return fmt.Errorf("replay %s: seq %d after %d", path, seq, lastSeq)
		}
		lastSeq = seq
		if cmd.Type == CmdAbort {
			voided.add(cmd.OrderID, seq)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	_, err = wal.Replay(path, wal.ReplayOptions{}, func(payload []byte) error {
		seq, cmd, err := e.cfg.CmdCodec.Decode(payload)
		if err != nil {
			return err
		}
		if cmd.Type == CmdAbort {
			return nil
		}
		if voided.has(seq) {
			// 订单号照样占用, 不复用
			if cmd.Type == CmdPlace {
				e.raiseIDs(cmd.OrderID)
			}
			return nil
		}

		env := matching.Env{Ledger: ledger.Permissive{}, Market: m, Exchange: e.cfg.Exchange, Now: cmd.Ts, Replay: true}
		var evs []Event
		switch cmd.Type {
		case CmdPlace:
			res, err := book.Place(matching.PlaceRequest{
				ID: cmd.OrderID, Trader: cmd.Trader, Intent: cmd.Intent,
				Tick: cmd.Tick, Quantity: cmd.Quantity, TIF: cmd.TIF,
			}, env)
			if err != nil {
				return fmt.Errorf("replay seq %d: %w", seq, err)
			}
			e.index.put(cmd.OrderID, book.Market())
			e.raiseIDs(cmd.OrderID)
			evs = placeEvents(seq, cmd, res)
		case CmdCancel:
			o, err := book.Cancel(cmd.OrderID, cmd.Trader, env)
			if err != nil {
				return fmt.Errorf("replay seq %d: %w", seq, err)
			}
			evs = cancelEvents(seq, cmd, o)
		}

		if outbox == nil || seq <= lastCompleteSeq {
			return nil
		}
		return emitAll(outboxEmitter{out: outbox}, outbox, seq, evs)
	})
	if err != nil {
		return 0, err
	}
	logger.Info(e.ctx, "market replayed", zap.String("wal", path),
		zap.Int("records", st.Records), zap.Bool("truncated_tail", st.TruncatedTail),
		zap.Int("aborted_batches", len(voided)), zap.Uint64("last_seq", lastSeq))
	return lastSeq, nil
}

// voidedSeqs: abort 记录作废的 [from, to) 区间
type voidedSeqs [][2]uint64

func (v *voidedSeqs) add(from, to uint64) { *v = append(*v, [2]uint64{from, to}) }

func (v voidedSeqs) has(seq uint64) bool {
	for _, r := range v {
		if seq >= r[0] && seq < r[1] {
			return true
		}
	}
	return false
}

func (e *Engine) raiseIDs(id uint64) {
	for {
		cur := e.ids.Load()
		if id <= cur || e.ids.CompareAndSwap(cur, id) {
			return
		}
	}
}

// orderIndex: 订单号 -> market, 撤单和查询靠它路由
type orderIndex struct {
	mu sync.RWMutex
	m  map[uint64]common.Hash
}

func newOrderIndex() *orderIndex { return &orderIndex{m: make(map[uint64]common.Hash, 1024)} }

func (x *orderIndex) put(id uint64, mkt common.Hash) {
	x.mu.Lock()
	x.m[id] = mkt
	x.mu.Unlock()
}

func (x *orderIndex) get(id uint64) (common.Hash, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	mkt, ok := x.m[id]
	return mkt, ok
}

var _ MarketSource = (*market.Registry)(nil)
