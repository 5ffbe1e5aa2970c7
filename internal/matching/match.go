package matching

import (
	"fmt"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"
)

// match walks the opposite side from its best tick away from it, draining
// each tick's queue head first, until the taker is filled or the next tick
// no longer crosses the taker's limit. Every fill settles at the maker's
// tick.
func (b *OrderBook) match(tx *txn, taker *Order, env Env) ([]Fill, error) {
	var fills []Fill
	opp := taker.Side().Opposite()

	for t, ok := b.book.BestTick(opp); ok && taker.Remaining() > 0 && crosses(taker, t); t, ok = b.book.NextTick(opp, t) {
		for id := b.book.Head(opp, t); id != 0 && taker.Remaining() > 0; {
			maker := b.orders[id]
			next := b.book.Next(id) // 先取 next, maker 可能被摘链
			if tradable(taker, maker) {
				q := min(taker.Remaining(), maker.Remaining())
				f, err := b.settleTrade(env, taker, maker, t, q)
				if err != nil {
					return nil, err
				}
				b.addFill(tx, taker, q)
				b.fillMaker(tx, maker, q)
				fills = append(fills, f)
			}
			id = next
		}
	}
	return fills, nil
}

// tradable: an ordinary two-party trade needs the same asset on both
// sides and exactly one token holder. Opposite wantsNo is left to mint;
// two holders (merge) is not supported.
func tradable(taker, maker *Order) bool {
	if !maker.Live() || maker.ID == taker.ID {
		return false
	}
	if maker.WantsNo != taker.WantsNo {
		return false
	}
	if maker.TokenHolder() && taker.TokenHolder() {
		return false
	}
	return true
}

// mint pairs a still-open pure-buyer taker with opposite-intent pure
// buyers resting at the same tick, FIFO, and mints fresh YES/NO pairs
// from their pooled cash.
func (b *OrderBook) mint(tx *txn, taker *Order, env Env) ([]Fill, error) {
	if taker.Remaining() == 0 || !taker.PureBuyer() {
		return nil, nil
	}
	var fills []Fill
	opp := taker.Side().Opposite()

	for id := b.book.Head(opp, taker.Tick); id != 0 && taker.Remaining() > 0; {
		maker := b.orders[id]
		next := b.book.Next(id)
		if mintable(taker, maker) {
			q := min(taker.Remaining(), maker.Remaining())
			f, err := b.settleMint(env, taker, maker, q)
			if err != nil {
				return nil, err
			}
			b.addFill(tx, taker, q)
			b.fillMaker(tx, maker, q)
			fills = append(fills, f)
		}
		id = next
	}
	return fills, nil
}

func mintable(taker, maker *Order) bool {
	return maker.Live() && maker.ID != taker.ID &&
		maker.WantsNo != taker.WantsNo && maker.PureBuyer()
}

// settleTrade: token from holder to buyer, cash from buyer to holder, at
// tick t (YES price; NO trades at 100-t). The buyer pays ceil(q*price/100),
// so a fill always carries cash.
func (b *OrderBook) settleTrade(env Env, taker, maker *Order, t Tick, q uint64) (Fill, error) {
	holder, buyer := maker, taker
	if taker.TokenHolder() {
		holder, buyer = taker, maker
	}
	price := t
	if taker.WantsNo {
		price = t.Complement()
	}
	cash := cashCeil(q, price)

	m := env.Market
	if err := env.Ledger.Transfer(m.Token(taker.WantsNo), holder.Trader, buyer.Trader, q); err != nil {
		return Fill{}, fmt.Errorf("trade %d/%d token leg: %w", taker.ID, maker.ID, err)
	}
	if err := env.Ledger.Transfer(m.CashAsset(), buyer.Trader, holder.Trader, cash); err != nil {
		return Fill{}, fmt.Errorf("trade %d/%d cash leg: %w", taker.ID, maker.ID, err)
	}

	f := Fill{
		Kind:         FillTrade,
		TakerOrderID: taker.ID,
		MakerOrderID: maker.ID,
		Taker:        taker.Trader,
		Maker:        maker.Trader,
		Tick:         t,
		Quantity:     q,
		WantsNo:      taker.WantsNo,
	}
	if buyer == taker {
		f.TakerPaid = cash
	} else {
		f.MakerPaid = cash
	}
	return f, nil
}

// settleMint: the YES buyer pays floor(q*tick/100), the NO buyer the rest,
// so together they fund exactly q pairs. The exchange collects the cash,
// mints, and hands each buyer its side.
func (b *OrderBook) settleMint(env Env, taker, maker *Order, q uint64) (Fill, error) {
	yes, no := taker, maker
	if taker.WantsNo {
		yes, no = maker, taker
	}
	yesCash := cashFor(q, taker.Tick)
	noCash := q - yesCash

	m, ex := env.Market, env.Exchange
	steps := []struct {
		name string
		run  func() error
	}{
		{"yes cash", func() error { return transferIfAny(env, m.CashAsset(), yes.Trader, ex, yesCash) }},
		{"no cash", func() error { return transferIfAny(env, m.CashAsset(), no.Trader, ex, noCash) }},
		{"mint", func() error { return env.Ledger.MintPair(m, ex, q) }},
		{"yes delivery", func() error { return env.Ledger.Transfer(m.YesToken, ex, yes.Trader, q) }},
		{"no delivery", func() error { return env.Ledger.Transfer(m.NoToken, ex, no.Trader, q) }},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			return Fill{}, fmt.Errorf("mint %d/%d %s: %w", taker.ID, maker.ID, s.name, err)
		}
	}

	f := Fill{
		Kind:         FillMint,
		TakerOrderID: taker.ID,
		MakerOrderID: maker.ID,
		Taker:        taker.Trader,
		Maker:        maker.Trader,
		Tick:         maker.Tick,
		Quantity:     q,
		WantsNo:      taker.WantsNo,
		TakerPaid:    yesCash,
		MakerPaid:    noCash,
	}
	if taker.WantsNo {
		f.TakerPaid, f.MakerPaid = noCash, yesCash
	}
	return f, nil
}

func transferIfAny(env Env, asset common.Hash, from, to common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	return env.Ledger.Transfer(asset, from, to, amount)
}

// cashFor = floor(q * price / 100) without overflowing 64 bits.
func cashFor(q uint64, price Tick) uint64 {
	hi, lo := bits.Mul64(q, uint64(price))
	quo, _ := bits.Div64(hi, lo, 100)
	return quo
}

// cashCeil rounds up. price < 100, so the result never exceeds q.
func cashCeil(q uint64, price Tick) uint64 {
	hi, lo := bits.Mul64(q, uint64(price))
	quo, rem := bits.Div64(hi, lo, 100)
	if rem != 0 {
		quo++
	}
	return quo
}
