package matching

import (
	"github.com/shopspring/decimal"
)

// Tick is a price in hundredths of one unit of value, always quoted in
// YES-price space inside the book.
type Tick int

const (
	MinTick Tick = 1
	MaxTick Tick = 100 // exclusive
)

var (
	hundred  = decimal.NewFromInt(100)
	tickUnit = decimal.New(1, -2)
)

func (t Tick) Valid() bool { return t >= MinTick && t < MaxTick }

// Complement is the same price seen from the other outcome.
func (t Tick) Complement() Tick { return MaxTick - t }

func TickToPrice(t Tick) (decimal.Decimal, error) {
	if !t.Valid() {
		return decimal.Zero, ErrInvalidTick
	}
	return decimal.NewFromInt(int64(t)).Mul(tickUnit), nil
}

// PriceToTick accepts prices that are exact multiples of 0.01 strictly
// between 0 and 1.
func PriceToTick(p decimal.Decimal) (Tick, error) {
	scaled := p.Mul(hundred)
	if !scaled.IsInteger() {
		return 0, ErrInvalidPrice
	}
	if scaled.LessThan(decimal.NewFromInt(int64(MinTick))) || !scaled.LessThan(decimal.NewFromInt(int64(MaxTick))) {
		return 0, ErrInvalidPrice
	}
	return Tick(scaled.IntPart()), nil
}

// Intent is what the trader asked for, priced in the asset it names.
type Intent uint8

const (
	BuyYes Intent = iota + 1
	SellYes
	BuyNo
	SellNo
)

func (i Intent) Valid() bool { return i >= BuyYes && i <= SellNo }

func (i Intent) String() string {
	switch i {
	case BuyYes:
		return "BUY_YES"
	case SellYes:
		return "SELL_YES"
	case BuyNo:
		return "BUY_NO"
	case SellNo:
		return "SELL_NO"
	default:
		return "UNKNOWN"
	}
}

func ParseIntent(s string) (Intent, error) {
	for i := BuyYes; i <= SellNo; i++ {
		if i.String() == s {
			return i, nil
		}
	}
	return 0, ErrInvalidIntent
}

// Normalize maps an intent and its own-asset tick onto the single YES book:
//
//	BuyYes  @P -> bid P,     wantsNo=false
//	SellYes @P -> ask P,     wantsNo=false
//	BuyNo   @P -> ask 100-P, wantsNo=true
//	SellNo  @P -> bid 100-P, wantsNo=true
func Normalize(intent Intent, t Tick) (isBuy bool, tick Tick, wantsNo bool, err error) {
	if !t.Valid() {
		return false, 0, false, ErrInvalidTick
	}
	switch intent {
	case BuyYes:
		return true, t, false, nil
	case SellYes:
		return false, t, false, nil
	case BuyNo:
		return false, t.Complement(), true, nil
	case SellNo:
		return true, t.Complement(), true, nil
	default:
		return false, 0, false, ErrInvalidIntent
	}
}

// UserTick re-derives the price the trader quoted from the stored tick.
func UserTick(tick Tick, wantsNo bool) Tick {
	if wantsNo {
		return tick.Complement()
	}
	return tick
}
