package matching

// TickLevel aggregates one (side, tick). Total is the sum of remaining
// quantity of the linked orders.
type TickLevel struct {
	Tick  Tick
	Total uint64
	Head  uint64
	Tail  uint64
	Count int
}

// 双向链表按 id 存, 不存指针: 撤单 O(1) 摘链
type link struct {
	prev, next uint64
}

type levelKey struct {
	side Side
	tick Tick
}

// position remembers where a removed order sat so a rollback can put it back.
type position struct {
	prev, next uint64
	amount     uint64
}

// TickBook is the tick-indexed book of one market: per side an occupancy
// bitmap and per occupied tick a FIFO of order ids. Order id 0 is "none".
type TickBook struct {
	bits   [2]Bitmap
	levels map[levelKey]*TickLevel
	links  map[uint64]link
}

func NewTickBook() *TickBook {
	return &TickBook{
		levels: make(map[levelKey]*TickLevel, 64),
		links:  make(map[uint64]link, 1024),
	}
}

// Insert appends o to the tail of its level with its remaining quantity.
func (b *TickBook) Insert(o *Order) {
	side := o.Side()
	lv := b.level(side, o.Tick)
	n := link{prev: lv.Tail}
	if lv.Tail != 0 {
		t := b.links[lv.Tail]
		t.next = o.ID
		b.links[lv.Tail] = t
	} else {
		lv.Head = o.ID
	}
	lv.Tail = o.ID
	b.links[o.ID] = n
	lv.Count++
	lv.Total += o.Remaining()
}

// Remove unlinks o and subtracts its remaining quantity. The level and its
// bit go away with the last order.
func (b *TickBook) Remove(o *Order) (position, bool) {
	n, ok := b.links[o.ID]
	if !ok {
		return position{}, false
	}
	side := o.Side()
	lv := b.levels[levelKey{side, o.Tick}]

	if n.prev != 0 {
		p := b.links[n.prev]
		p.next = n.next
		b.links[n.prev] = p
	} else {
		lv.Head = n.next
	}
	if n.next != 0 {
		nx := b.links[n.next]
		nx.prev = n.prev
		b.links[n.next] = nx
	} else {
		lv.Tail = n.prev
	}
	delete(b.links, o.ID)

	amount := o.Remaining()
	lv.Total -= amount
	lv.Count--
	if lv.Count == 0 {
		b.dropLevel(side, o.Tick)
	}
	return position{prev: n.prev, next: n.next, amount: amount}, true
}

// restore is the inverse of Remove; neighbours must be as Remove left them.
func (b *TickBook) restore(o *Order, pos position) {
	lv := b.level(o.Side(), o.Tick)
	if pos.prev != 0 {
		p := b.links[pos.prev]
		p.next = o.ID
		b.links[pos.prev] = p
	} else {
		lv.Head = o.ID
	}
	if pos.next != 0 {
		nx := b.links[pos.next]
		nx.prev = o.ID
		b.links[pos.next] = nx
	} else {
		lv.Tail = o.ID
	}
	b.links[o.ID] = link{prev: pos.prev, next: pos.next}
	lv.Count++
	lv.Total += pos.amount
}

// Reduce takes q off the level total after a partial fill of a resting order.
func (b *TickBook) Reduce(o *Order, q uint64) {
	if lv := b.levels[levelKey{o.Side(), o.Tick}]; lv != nil {
		lv.Total -= q
	}
}

func (b *TickBook) grow(o *Order, q uint64) {
	if lv := b.levels[levelKey{o.Side(), o.Tick}]; lv != nil {
		lv.Total += q
	}
}

func (b *TickBook) Resting(id uint64) bool {
	_, ok := b.links[id]
	return ok
}

func (b *TickBook) Level(side Side, t Tick) (TickLevel, bool) {
	lv, ok := b.levels[levelKey{side, t}]
	if !ok {
		return TickLevel{}, false
	}
	return *lv, true
}

// Head is the oldest order at (side, t), 0 if none.
func (b *TickBook) Head(side Side, t Tick) uint64 {
	if lv := b.levels[levelKey{side, t}]; lv != nil {
		return lv.Head
	}
	return 0
}

// Next is the order queued behind id, 0 at the tail.
func (b *TickBook) Next(id uint64) uint64 { return b.links[id].next }

// BestTick: highest bid, lowest ask.
func (b *TickBook) BestTick(side Side) (Tick, bool) {
	if side == Bid {
		return b.bits[Bid].Highest()
	}
	return b.bits[Ask].Lowest()
}

// NextTick moves away from the best price: down for bids, up for asks.
func (b *TickBook) NextTick(side Side, from Tick) (Tick, bool) {
	if side == Bid {
		return b.bits[Bid].Below(from)
	}
	return b.bits[Ask].Above(from)
}

// PrevTick moves towards the best price.
func (b *TickBook) PrevTick(side Side, from Tick) (Tick, bool) {
	if side == Bid {
		return b.bits[Bid].Above(from)
	}
	return b.bits[Ask].Below(from)
}

func (b *TickBook) Empty(side Side) bool { return b.bits[side].Empty() }

// Levels walks up to n levels from the best price.
func (b *TickBook) Levels(side Side, n int) []LevelView {
	out := make([]LevelView, 0, n)
	for t, ok := b.BestTick(side); ok && len(out) < n; t, ok = b.NextTick(side, t) {
		lv := b.levels[levelKey{side, t}]
		out = append(out, LevelView{Tick: t, Quantity: lv.Total, Orders: lv.Count})
	}
	return out
}

func (b *TickBook) level(side Side, t Tick) *TickLevel {
	k := levelKey{side, t}
	lv := b.levels[k]
	if lv == nil {
		lv = &TickLevel{Tick: t}
		b.levels[k] = lv
		b.bits[side].Set(t)
	}
	return lv
}

func (b *TickBook) dropLevel(side Side, t Tick) {
	delete(b.levels, levelKey{side, t})
	b.bits[side].Clear(t)
}
