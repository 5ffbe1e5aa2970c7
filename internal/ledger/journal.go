package ledger

import (
	"context"
	"fmt"

	"ctfex.com/internal/market"
	"github.com/ethereum/go-ethereum/common"
)

// Journal stages ledger changes for one engine operation. Reads see the
// store plus everything staged so far; nothing reaches the store until
// Commit. A Journal is single-use and not safe for concurrent use.
//
// Pulling tokens out of any account but the exchange's own requires the
// owner to have approved the exchange as operator.
type Journal struct {
	ctx      context.Context
	store    Store
	exchange common.Address

	deltas   map[balanceKey]*Delta
	order    []balanceKey
	approved map[approvalKey]bool
	closed   bool
}

func NewJournal(ctx context.Context, store Store, exchange common.Address) *Journal {
	return &Journal{
		ctx:      ctx,
		store:    store,
		exchange: exchange,
		deltas:   make(map[balanceKey]*Delta, 8),
		approved: make(map[approvalKey]bool, 4),
	}
}

func (j *Journal) Transfer(asset common.Hash, from, to common.Address, amount uint64) error {
	if err := j.debit(asset, from, amount); err != nil {
		return err
	}
	j.delta(to, asset).In += amount
	return nil
}

// MintPair turns amount of collateral held by to into amount YES + amount NO.
func (j *Journal) MintPair(m *market.Market, to common.Address, amount uint64) error {
	if m == nil {
		return market.ErrMarketNotRegistered
	}
	if err := j.debit(m.CashAsset(), to, amount); err != nil {
		return fmt.Errorf("mint pair: %w", err)
	}
	j.delta(to, m.YesToken).In += amount
	j.delta(to, m.NoToken).In += amount
	return nil
}

func (j *Journal) IsApprovedForAll(owner, operator common.Address) (bool, error) {
	k := approvalKey{owner, operator}
	if v, ok := j.approved[k]; ok {
		return v, nil
	}
	v, err := j.store.IsApprovedForAll(j.ctx, owner, operator)
	if err != nil {
		return false, err
	}
	j.approved[k] = v
	return v, nil
}

// Available is the store balance with staged deltas applied.
func (j *Journal) Available(owner common.Address, asset common.Hash) (uint64, error) {
	bal, err := j.store.Balance(j.ctx, owner, asset)
	if err != nil {
		return 0, err
	}
	if d, ok := j.deltas[balanceKey{owner, asset}]; ok {
		v, ok := applyDelta(bal, *d)
		if !ok {
			return 0, nil
		}
		return v, nil
	}
	return bal, nil
}

// Deltas returns the staged changes in first-touch order.
func (j *Journal) Deltas() []Delta {
	out := make([]Delta, 0, len(j.order))
	for _, k := range j.order {
		if d := j.deltas[k]; d.In != d.Out {
			out = append(out, *d)
		}
	}
	return out
}

func (j *Journal) Commit() error {
	if j.closed {
		return ErrJournalClosed
	}
	j.closed = true
	ds := j.Deltas()
	if len(ds) == 0 {
		return nil
	}
	if err := j.store.Apply(j.ctx, ds); err != nil {
		return fmt.Errorf("ledger commit: %w", err)
	}
	return nil
}

func (j *Journal) Discard() {
	j.closed = true
	j.deltas = map[balanceKey]*Delta{}
	j.order = nil
}

func (j *Journal) debit(asset common.Hash, from common.Address, amount uint64) error {
	if j.closed {
		return ErrJournalClosed
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	if from != j.exchange {
		ok, err := j.IsApprovedForAll(from, j.exchange)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: %w", from.Hex(), ErrNotApproved)
		}
	}
	avail, err := j.Available(from, asset)
	if err != nil {
		return err
	}
	if avail < amount {
		return fmt.Errorf("%s has %d of %s, needs %d: %w", from.Hex(), avail, asset.Hex(), amount, ErrInsufficientBalance)
	}
	j.delta(from, asset).Out += amount
	return nil
}

func (j *Journal) delta(owner common.Address, asset common.Hash) *Delta {
	k := balanceKey{owner, asset}
	d, ok := j.deltas[k]
	if !ok {
		d = &Delta{Owner: owner, Asset: asset}
		j.deltas[k] = d
		j.order = append(j.order, k)
	}
	return d
}

// Permissive accepts every operation and applies nothing. Replaying the
// command log uses it: those commands already settled before the crash.
type Permissive struct{}

func (Permissive) Transfer(common.Hash, common.Address, common.Address, uint64) error { return nil }
func (Permissive) MintPair(*market.Market, common.Address, uint64) error              { return nil }
func (Permissive) IsApprovedForAll(common.Address, common.Address) (bool, error)      { return true, nil }
func (Permissive) Commit() error                                                      { return nil }
func (Permissive) Discard()                                                           {}
