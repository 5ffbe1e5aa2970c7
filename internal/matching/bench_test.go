package matching

import (
	"testing"

	"ctfex.com/internal/ledger"
	"ctfex.com/internal/market"
	"github.com/ethereum/go-ethereum/common"
)

func benchEnv() (*OrderBook, Env) {
	m := market.New(common.HexToHash("0x01"), usdc, 0)
	m.Registered = true
	return NewOrderBook(m.ID), Env{Ledger: ledger.Permissive{}, Market: m, Exchange: exchange, Now: 1}
}

// 一个超大卖单, 每次用 1 手去吃
func BenchmarkPlace_TakeOne(b *testing.B) {
	ob, env := benchEnv()
	_, _ = ob.Place(PlaceRequest{ID: 1, Trader: alice, Intent: SellYes, Tick: 50, Quantity: 1 << 62, TIF: GTC}, env)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ob.Place(PlaceRequest{ID: uint64(i + 2), Trader: bob, Intent: BuyYes, Tick: 50, Quantity: 1, TIF: IOC}, env)
	}
}

// 同价位 2 万单, 反复撤中间那单再挂回去
func BenchmarkCancel_Middle(b *testing.B) {
	ob, env := benchEnv()
	const n = 20000
	for i := 1; i <= n; i++ {
		_, _ = ob.Place(PlaceRequest{ID: uint64(i), Trader: alice, Intent: SellYes, Tick: 50, Quantity: 1, TIF: GTC}, env)
	}
	next := uint64(n)
	target := uint64(n / 2)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ob.Cancel(target, alice, env)
		next++
		_, _ = ob.Place(PlaceRequest{ID: next, Trader: alice, Intent: SellYes, Tick: 50, Quantity: 1, TIF: GTC}, env)
		target = next
	}
}

func BenchmarkBestTick(b *testing.B) {
	ob, env := benchEnv()
	for i := 1; i < 99; i += 7 {
		_, _ = ob.Place(PlaceRequest{ID: uint64(i), Trader: alice, Intent: BuyYes, Tick: Tick(i), Quantity: 1, TIF: GTC}, env)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ob.BestBid()
	}
}
