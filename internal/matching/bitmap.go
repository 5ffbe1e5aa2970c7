package matching

import "math/bits"

// Bitmap marks occupied ticks of one book side. Ticks 1..99 fit in two
// words; bit t of the 128-bit value is tick t.
type Bitmap [2]uint64

func (b *Bitmap) Set(t Tick)   { b[t>>6] |= 1 << (uint(t) & 63) }
func (b *Bitmap) Clear(t Tick) { b[t>>6] &^= 1 << (uint(t) & 63) }

func (b *Bitmap) Has(t Tick) bool {
	if !t.Valid() {
		return false
	}
	return b[t>>6]&(1<<(uint(t)&63)) != 0
}

func (b *Bitmap) Empty() bool { return b[0]|b[1] == 0 }

// Highest set tick.
func (b *Bitmap) Highest() (Tick, bool) {
	for w := 1; w >= 0; w-- {
		if b[w] != 0 {
			return Tick(w<<6 + 63 - bits.LeadingZeros64(b[w])), true
		}
	}
	return 0, false
}

// Lowest set tick.
func (b *Bitmap) Lowest() (Tick, bool) {
	for w := 0; w < 2; w++ {
		if b[w] != 0 {
			return Tick(w<<6 + bits.TrailingZeros64(b[w])), true
		}
	}
	return 0, false
}

// Above returns the lowest set tick strictly greater than t.
func (b *Bitmap) Above(t Tick) (Tick, bool) {
	if t < 0 {
		return b.Lowest()
	}
	w, i := int(t>>6), uint(t)&63
	for ; w < 2; w++ {
		word := b[w]
		if int(t>>6) == w {
			// 2<<63 溢出为 0, 减一后掩掉整个字, 正好是 "本字内没有更高位"
			word &^= (2 << i) - 1
		}
		if word != 0 {
			return Tick(w<<6 + bits.TrailingZeros64(word)), true
		}
	}
	return 0, false
}

// Below returns the highest set tick strictly less than t.
func (b *Bitmap) Below(t Tick) (Tick, bool) {
	if t > 127 {
		return b.Highest()
	}
	if t <= 0 {
		return 0, false
	}
	w, i := int(t>>6), uint(t)&63
	for ; w >= 0; w-- {
		word := b[w]
		if int(t>>6) == w {
			word &= (1 << i) - 1
		}
		if word != 0 {
			return Tick(w<<6 + 63 - bits.LeadingZeros64(word)), true
		}
	}
	return 0, false
}
