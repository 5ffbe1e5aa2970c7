package matching

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// OrderBook is the whole matching state of one market. It is not safe for
// concurrent use; the engine gives each market a single owning goroutine.
type OrderBook struct {
	market common.Hash
	book   *TickBook
	orders map[uint64]*Order // 订单只增不删, 终态也保留
}

func NewOrderBook(market common.Hash) *OrderBook {
	return &OrderBook{
		market: market,
		book:   NewTickBook(),
		orders: make(map[uint64]*Order, 1024),
	}
}

func (b *OrderBook) Market() common.Hash { return b.market }

// Place normalizes, validates and executes one order under its time in
// force. On any error the book, the order table and env.Ledger are left
// exactly as they were.
func (b *OrderBook) Place(req PlaceRequest, env Env) (res PlaceResult, err error) {
	if req.Quantity == 0 {
		return res, ErrInvalidQuantity
	}
	if !req.TIF.Valid() {
		return res, ErrInvalidTimeInForce
	}
	isBuy, tick, wantsNo, err := Normalize(req.Intent, req.Tick)
	if err != nil {
		return res, err
	}
	if req.ID == 0 {
		return res, ErrInvalidOrderID
	}
	if _, dup := b.orders[req.ID]; dup {
		return res, ErrInvalidOrderID
	}
	if !env.Replay {
		if err := env.Market.CheckTradable(env.Now); err != nil {
			return res, err
		}
	}

	o := &Order{
		ID:        req.ID,
		Market:    b.market,
		Trader:    req.Trader,
		Intent:    req.Intent,
		Tick:      tick,
		IsBuy:     isBuy,
		WantsNo:   wantsNo,
		Quantity:  req.Quantity,
		TIF:       req.TIF,
		Status:    Active,
		CreatedAt: env.Now,
	}

	tx := &txn{}
	defer func() {
		if err != nil {
			tx.rollback()
			env.Ledger.Discard()
			res = PlaceResult{}
		}
	}()

	b.orders[o.ID] = o
	tx.onUndo(func() { delete(b.orders, o.ID) })

	if o.TIF == PostOnly {
		if b.wouldCross(o) {
			return res, ErrPostOnlyWouldCross
		}
		b.rest(tx, o)
		if err = env.Ledger.Commit(); err != nil {
			return res, err
		}
		return PlaceResult{Order: *o}, nil
	}

	fills, err := b.match(tx, o, env)
	if err != nil {
		return res, err
	}
	more, err := b.mint(tx, o, env)
	if err != nil {
		return res, err
	}
	fills = append(fills, more...)

	if o.Remaining() > 0 {
		switch o.TIF {
		case FOK:
			return res, ErrFOKNotFilled
		case IOC:
			b.setStatus(tx, o, Cancelled)
		case GTC:
			b.rest(tx, o)
		}
	}

	if err = env.Ledger.Commit(); err != nil {
		return res, err
	}
	return PlaceResult{Order: *o, Fills: fills}, nil
}

// Cancel unlinks a live order. Only the owner or an operator the owner
// approved may cancel; there is no partial cancel.
func (b *OrderBook) Cancel(id uint64, caller common.Address, env Env) (o Order, err error) {
	cur, ok := b.orders[id]
	if !ok {
		return o, ErrOrderNotFound
	}
	if !cur.Live() {
		return o, ErrOrderNotCancellable
	}
	if !env.Replay && caller != cur.Trader {
		approved, err := env.Ledger.IsApprovedForAll(cur.Trader, caller)
		if err != nil {
			return o, fmt.Errorf("cancel %d: %w", id, err)
		}
		if !approved {
			return o, ErrUnauthorized
		}
	}

	tx := &txn{}
	defer func() {
		if err != nil {
			tx.rollback()
			env.Ledger.Discard()
		}
	}()
	b.unlink(tx, cur)
	b.setStatus(tx, cur, Cancelled)
	if err = env.Ledger.Commit(); err != nil {
		return o, err
	}
	return *cur, nil
}

// Order returns a copy of any order ever accepted, including terminal ones.
func (b *OrderBook) Order(id uint64) (Order, bool) {
	o, ok := b.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Resting returns copies of the resting orders at (side, t) in FIFO order.
func (b *OrderBook) Resting(side Side, t Tick) []Order {
	var out []Order
	for id := b.book.Head(side, t); id != 0; id = b.book.Next(id) {
		out = append(out, *b.orders[id])
	}
	return out
}

func (b *OrderBook) BestBid() (Tick, bool) { return b.book.BestTick(Bid) }
func (b *OrderBook) BestAsk() (Tick, bool) { return b.book.BestTick(Ask) }

func (b *OrderBook) Depth(levels int) Depth {
	if levels <= 0 {
		levels = 1
	}
	return Depth{
		Bids: b.book.Levels(Bid, levels),
		Asks: b.book.Levels(Ask, levels),
	}
}

// RestingCount is the number of orders currently linked into the book.
func (b *OrderBook) RestingCount(side Side) int {
	n := 0
	for t, ok := b.book.BestTick(side); ok; t, ok = b.book.NextTick(side, t) {
		lv, _ := b.book.Level(side, t)
		n += lv.Count
	}
	return n
}

// wouldCross: the best opposite tick is at or through our own tick.
func (b *OrderBook) wouldCross(o *Order) bool {
	best, ok := b.book.BestTick(o.Side().Opposite())
	return ok && crosses(o, best)
}

// crosses reports whether o's limit reaches the opposite tick t.
func crosses(o *Order, t Tick) bool {
	if o.IsBuy {
		return t <= o.Tick
	}
	return t >= o.Tick
}

func (b *OrderBook) rest(tx *txn, o *Order) {
	b.book.Insert(o)
	tx.onUndo(func() { b.book.Remove(o) })
}

func (b *OrderBook) unlink(tx *txn, o *Order) {
	pos, ok := b.book.Remove(o)
	if !ok {
		return
	}
	tx.onUndo(func() { b.book.restore(o, pos) })
}

func (b *OrderBook) setStatus(tx *txn, o *Order, s Status) {
	prev := o.Status
	o.Status = s
	tx.onUndo(func() { o.Status = prev })
}

// addFill bumps Filled and moves the status forward.
func (b *OrderBook) addFill(tx *txn, o *Order, q uint64) {
	prevFilled, prevStatus := o.Filled, o.Status
	o.Filled += q
	if o.Filled == o.Quantity {
		o.Status = Filled
	} else {
		o.Status = PartiallyFilled
	}
	tx.onUndo(func() { o.Filled, o.Status = prevFilled, prevStatus })
}

// fillMaker applies q to a resting order and unlinks it once it is done.
func (b *OrderBook) fillMaker(tx *txn, maker *Order, q uint64) {
	b.book.Reduce(maker, q)
	tx.onUndo(func() { b.book.grow(maker, q) })
	b.addFill(tx, maker, q)
	if maker.Remaining() == 0 {
		b.unlink(tx, maker)
	}
}
