package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmap_BestAndScan(t *testing.T) {
	var b Bitmap
	assert.True(t, b.Empty())
	_, ok := b.Highest()
	assert.False(t, ok)

	for _, tk := range []Tick{1, 40, 63, 64, 99} {
		b.Set(tk)
	}
	hi, _ := b.Highest()
	lo, _ := b.Lowest()
	assert.Equal(t, Tick(99), hi)
	assert.Equal(t, Tick(1), lo)

	cases := []struct {
		from         Tick
		above, below Tick
		aOK, bOK     bool
	}{
		{0, 1, 0, true, false},
		{1, 40, 0, true, false},
		{40, 63, 1, true, true},
		{63, 64, 40, true, true},
		{64, 99, 63, true, true},
		{99, 0, 64, false, true},
		{50, 63, 40, true, true},
	}
	for _, c := range cases {
		a, ok := b.Above(c.from)
		assert.Equal(t, c.aOK, ok, "above %d", c.from)
		if ok {
			assert.Equal(t, c.above, a, "above %d", c.from)
		}
		bl, ok := b.Below(c.from)
		assert.Equal(t, c.bOK, ok, "below %d", c.from)
		if ok {
			assert.Equal(t, c.below, bl, "below %d", c.from)
		}
	}

	b.Clear(99)
	b.Clear(64)
	hi, _ = b.Highest()
	assert.Equal(t, Tick(63), hi)
	assert.False(t, b.Has(64))
	assert.True(t, b.Has(63))
	assert.False(t, b.Has(0))
	assert.False(t, b.Has(100))
}

func TestTickBook_InsertRemoveFIFO(t *testing.T) {
	b := NewTickBook()
	mk := func(id uint64, qty uint64) *Order {
		return &Order{ID: id, Tick: 55, IsBuy: false, Quantity: qty, Status: Active}
	}
	o1, o2, o3 := mk(1, 10), mk(2, 20), mk(3, 30)
	b.Insert(o1)
	b.Insert(o2)
	b.Insert(o3)

	lv, ok := b.Level(Ask, 55)
	assert.True(t, ok)
	assert.Equal(t, uint64(60), lv.Total)
	assert.Equal(t, 3, lv.Count)
	assert.Equal(t, uint64(1), b.Head(Ask, 55))

	// 摘中间, 再恢复回原位
	pos, ok := b.Remove(o2)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), b.Next(1))
	b.restore(o2, pos)
	assert.Equal(t, uint64(2), b.Next(1))
	assert.Equal(t, uint64(3), b.Next(2))

	b.Remove(o1)
	b.Remove(o2)
	best, _ := b.BestTick(Ask)
	assert.Equal(t, Tick(55), best)
	b.Remove(o3)
	_, ok = b.BestTick(Ask)
	assert.False(t, ok)
	_, ok = b.Level(Ask, 55)
	assert.False(t, ok)

	_, ok = b.Remove(o3)
	assert.False(t, ok)
}

func TestTickBook_NextPrevDirection(t *testing.T) {
	b := NewTickBook()
	for i, tk := range []Tick{30, 40, 50} {
		b.Insert(&Order{ID: uint64(i + 1), Tick: tk, IsBuy: true, Quantity: 1})
		b.Insert(&Order{ID: uint64(i + 10), Tick: tk + 20, IsBuy: false, Quantity: 1})
	}
	best, _ := b.BestTick(Bid)
	assert.Equal(t, Tick(50), best)
	next, _ := b.NextTick(Bid, best)
	assert.Equal(t, Tick(40), next)
	prev, _ := b.PrevTick(Bid, next)
	assert.Equal(t, Tick(50), prev)

	best, _ = b.BestTick(Ask)
	assert.Equal(t, Tick(50), best)
	next, _ = b.NextTick(Ask, best)
	assert.Equal(t, Tick(60), next)
	prev, _ = b.PrevTick(Ask, next)
	assert.Equal(t, Tick(50), prev)

	assert.Equal(t, []LevelView{{Tick: 50, Quantity: 1, Orders: 1}, {Tick: 40, Quantity: 1, Orders: 1}}, b.Levels(Bid, 2))
}
