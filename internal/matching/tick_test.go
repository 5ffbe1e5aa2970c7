package matching

import (
	"math"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickPriceRoundTrip(t *testing.T) {
	for tk := MinTick; tk < MaxTick; tk++ {
		p, err := TickToPrice(tk)
		require.NoError(t, err)
		back, err := PriceToTick(p)
		require.NoError(t, err)
		assert.Equal(t, tk, back)
	}
	p, _ := TickToPrice(60)
	assert.Equal(t, "0.6", p.String())
}

func TestTickToPrice_OutOfRange(t *testing.T) {
	for _, tk := range []Tick{0, -1, 100, 101} {
		_, err := TickToPrice(tk)
		assert.ErrorIs(t, err, ErrInvalidTick, "tick %d", tk)
	}
}

func TestPriceToTick_Rejects(t *testing.T) {
	for _, s := range []string{"0", "1", "0.005", "-0.1", "1.01", "0.999"} {
		_, err := PriceToTick(decimal.RequireFromString(s))
		assert.ErrorIs(t, err, ErrInvalidPrice, s)
	}
	tk, err := PriceToTick(decimal.RequireFromString("0.010"))
	require.NoError(t, err)
	assert.Equal(t, Tick(1), tk)
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		intent  Intent
		in      Tick
		isBuy   bool
		tick    Tick
		wantsNo bool
	}{
		{BuyYes, 60, true, 60, false},
		{SellYes, 60, false, 60, false},
		{BuyNo, 40, false, 60, true},
		{SellNo, 40, true, 60, true},
		{BuyNo, 1, false, 99, true},
	}
	for _, tc := range cases {
		isBuy, tk, wantsNo, err := Normalize(tc.intent, tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.isBuy, isBuy, tc.intent.String())
		assert.Equal(t, tc.tick, tk, tc.intent.String())
		assert.Equal(t, tc.wantsNo, wantsNo, tc.intent.String())
		assert.Equal(t, tc.in, UserTick(tk, wantsNo), "user price must survive normalization")
	}

	_, _, _, err := Normalize(BuyYes, 0)
	assert.ErrorIs(t, err, ErrInvalidTick)
	_, _, _, err = Normalize(BuyYes, MaxTick)
	assert.ErrorIs(t, err, ErrInvalidTick)
	_, _, _, err = Normalize(Intent(9), 50)
	assert.ErrorIs(t, err, ErrInvalidIntent)
}

func TestParseIntentAndTIF(t *testing.T) {
	i, err := ParseIntent("SELL_NO")
	require.NoError(t, err)
	assert.Equal(t, SellNo, i)
	_, err = ParseIntent("HOLD")
	assert.ErrorIs(t, err, ErrInvalidIntent)

	tif, err := ParseTimeInForce("POST_ONLY")
	require.NoError(t, err)
	assert.Equal(t, PostOnly, tif)
	_, err = ParseTimeInForce("GTD")
	assert.ErrorIs(t, err, ErrInvalidTimeInForce)
}

func TestCashFor_NoOverflow(t *testing.T) {
	assert.Equal(t, uint64(600), cashFor(1000, 60))
	assert.Equal(t, uint64(0), cashFor(1, 99))
	assert.Equal(t, uint64(3), cashFor(7, 50))

	want := new(big.Int).Mul(new(big.Int).SetUint64(math.MaxUint64), big.NewInt(99))
	want.Div(want, big.NewInt(100))
	assert.Equal(t, want.Uint64(), cashFor(math.MaxUint64, 99))
}

func TestCashCeil(t *testing.T) {
	assert.Equal(t, uint64(600), cashCeil(1000, 60))
	assert.Equal(t, uint64(1), cashCeil(1, 99))
	assert.Equal(t, uint64(1), cashCeil(1, 1))
	assert.Equal(t, uint64(4), cashCeil(7, 50))
	assert.Equal(t, cashFor(math.MaxUint64, 99)+1, cashCeil(math.MaxUint64, 99))
}
