package market

import (
	"context"
	"testing"

	"ctfex.com/pkg/orm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	authority  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	stranger   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	usdc       = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	conditionA = common.HexToHash("0x01")
)

func TestNew_DerivesDistinctTokens(t *testing.T) {
	m := New(conditionA, usdc, 0)
	assert.NotEqual(t, m.YesToken, m.NoToken)
	assert.Equal(t, m.YesToken, New(conditionA, usdc, 0).YesToken)
	assert.NotEqual(t, m.YesToken, New(common.HexToHash("0x02"), usdc, 0).YesToken)
	assert.Equal(t, m.NoToken, m.Token(true))
	assert.Equal(t, m.YesToken, m.Token(false))
}

func TestCheckTradable_Order(t *testing.T) {
	m := New(conditionA, usdc, 100)
	assert.ErrorIs(t, m.CheckTradable(0), ErrMarketNotRegistered)

	m.Registered = true
	assert.NoError(t, m.CheckTradable(99))
	assert.ErrorIs(t, m.CheckTradable(100), ErrMarketExpired)

	m.Resolved = true
	assert.ErrorIs(t, m.CheckTradable(100), ErrMarketResolved)

	m.Paused = true
	assert.ErrorIs(t, m.CheckTradable(100), ErrMarketPaused)

	var nilMarket *Market
	assert.ErrorIs(t, nilMarket.CheckTradable(0), ErrMarketNotRegistered)
}

func TestRegistry_AuthorityOnly(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(authority, nil)

	assert.ErrorIs(t, r.Register(ctx, stranger, New(conditionA, usdc, 0)), ErrNotAuthority)
	require.NoError(t, r.Register(ctx, authority, New(conditionA, usdc, 0)))
	assert.ErrorIs(t, r.Register(ctx, authority, New(conditionA, usdc, 0)), ErrMarketExists)

	assert.ErrorIs(t, r.SetPaused(ctx, stranger, conditionA, true), ErrNotAuthority)
	require.NoError(t, r.SetPaused(ctx, authority, conditionA, true))

	m, err := r.Get(conditionA)
	require.NoError(t, err)
	assert.True(t, m.Registered)
	assert.True(t, m.Paused)

	// 快照不影响 registry
	m.Paused = false
	again, _ := r.Get(conditionA)
	assert.True(t, again.Paused)

	require.NoError(t, r.Resolve(ctx, authority, conditionA, false))
	assert.ErrorIs(t, r.Resolve(ctx, authority, conditionA, true), ErrMarketResolved)
	m, _ = r.Get(conditionA)
	assert.Equal(t, OutcomeNo, m.Outcome)

	_, err = r.Get(common.HexToHash("0x99"))
	assert.ErrorIs(t, err, ErrMarketNotRegistered)
	assert.ErrorIs(t, r.SetPaused(ctx, authority, common.HexToHash("0x99"), true), ErrMarketNotRegistered)
}

func TestRegistry_GormStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := orm.Open(&orm.Config{Driver: "sqlite", DSN: "file::memory:", MaxOpen: 1})
	require.NoError(t, err)
	store, err := NewGormStore(db)
	require.NoError(t, err)

	r := NewRegistry(authority, store)
	require.NoError(t, r.Register(ctx, authority, New(conditionA, usdc, 1234)))
	require.NoError(t, r.SetPaused(ctx, authority, conditionA, true))

	reloaded := NewRegistry(authority, store)
	require.NoError(t, reloaded.Load(ctx))
	list := reloaded.List()
	require.Len(t, list, 1)

	want := New(conditionA, usdc, 1234)
	assert.Equal(t, want.YesToken, list[0].YesToken)
	assert.Equal(t, int64(1234), list[0].EndTime)
	assert.True(t, list[0].Registered)
	assert.True(t, list[0].Paused)
}
