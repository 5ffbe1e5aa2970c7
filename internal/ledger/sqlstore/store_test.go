package sqlstore

import (
	"context"
	"testing"

	"ctfex.com/internal/ledger"
	"ctfex.com/pkg/orm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	exchange = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	cash     = common.HexToHash("0xcc")
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := orm.Open(&orm.Config{Driver: "sqlite", DSN: "file::memory:", MaxOpen: 1})
	require.NoError(t, err)
	s, err := New(db)
	require.NoError(t, err)
	return s
}

func TestStore_CreditAndApply(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Credit(ctx, alice, cash, 1000))
	require.NoError(t, s.Apply(ctx, []ledger.Delta{
		{Owner: alice, Asset: cash, Out: 600},
		{Owner: bob, Asset: cash, In: 600},
	}))

	a, err := s.Balance(ctx, alice, cash)
	require.NoError(t, err)
	b, err := s.Balance(ctx, bob, cash)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), a)
	assert.Equal(t, uint64(600), b)
}

func TestStore_ApplyRollsBackOnOverdraft(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Credit(ctx, alice, cash, 10))

	err := s.Apply(ctx, []ledger.Delta{
		{Owner: bob, Asset: cash, In: 11},
		{Owner: alice, Asset: cash, Out: 11},
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	b, _ := s.Balance(ctx, bob, cash)
	a, _ := s.Balance(ctx, alice, cash)
	assert.Zero(t, b)
	assert.Equal(t, uint64(10), a)
}

func TestStore_ApprovalsUpsert(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	ok, err := s.IsApprovedForAll(ctx, alice, exchange)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetApprovalForAll(ctx, alice, exchange, true))
	ok, _ = s.IsApprovedForAll(ctx, alice, exchange)
	assert.True(t, ok)

	require.NoError(t, s.SetApprovalForAll(ctx, alice, exchange, false))
	ok, _ = s.IsApprovedForAll(ctx, alice, exchange)
	assert.False(t, ok)
}

func TestStore_WithJournal(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Credit(ctx, alice, cash, 100))
	require.NoError(t, s.SetApprovalForAll(ctx, alice, exchange, true))

	j := ledger.NewJournal(ctx, s, exchange)
	require.NoError(t, j.Transfer(cash, alice, bob, 30))
	require.NoError(t, j.Commit())

	b, _ := s.Balance(ctx, bob, cash)
	assert.Equal(t, uint64(30), b)
}
