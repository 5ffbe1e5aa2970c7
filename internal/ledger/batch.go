package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Batch is a Store that only stages. Journals committed into it are
// visible to later reads through the Batch, but the underlying store sees
// nothing until Flush, which applies the net deltas in one Apply.
//
// The engine opens one Batch per mailbox drain and flushes it only after
// the command log for that drain is durable.
type Batch struct {
	store  Store
	deltas map[balanceKey]*Delta
	order  []balanceKey
}

func NewBatch(store Store) *Batch {
	return &Batch{store: store, deltas: make(map[balanceKey]*Delta, 16)}
}

func (b *Batch) Balance(ctx context.Context, owner common.Address, asset common.Hash) (uint64, error) {
	bal, err := b.store.Balance(ctx, owner, asset)
	if err != nil {
		return 0, err
	}
	if d, ok := b.deltas[balanceKey{owner, asset}]; ok {
		v, ok := applyDelta(bal, *d)
		if !ok {
			return 0, nil
		}
		return v, nil
	}
	return bal, nil
}

func (b *Batch) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	return b.store.IsApprovedForAll(ctx, owner, operator)
}

// Apply stages deltas, all or none, with the same no-negative check a
// real store performs.
func (b *Batch) Apply(ctx context.Context, deltas []Delta) error {
	for _, d := range deltas {
		cur, err := b.Balance(ctx, d.Owner, d.Asset)
		if err != nil {
			return err
		}
		if _, ok := applyDelta(cur, d); !ok {
			return fmt.Errorf("%s %s: %w", d.Owner.Hex(), d.Asset.Hex(), ErrInsufficientBalance)
		}
	}
	for _, d := range deltas {
		k := balanceKey{d.Owner, d.Asset}
		acc, ok := b.deltas[k]
		if !ok {
			acc = &Delta{Owner: d.Owner, Asset: d.Asset}
			b.deltas[k] = acc
			b.order = append(b.order, k)
		}
		acc.In += d.In
		acc.Out += d.Out
	}
	return nil
}

// Pending returns the staged changes netted per balance, in first-touch order.
func (b *Batch) Pending() []Delta {
	out := make([]Delta, 0, len(b.order))
	for _, k := range b.order {
		d := *b.deltas[k]
		if d.In >= d.Out {
			d.In, d.Out = d.In-d.Out, 0
		} else {
			d.In, d.Out = 0, d.Out-d.In
		}
		if d.In != 0 || d.Out != 0 {
			out = append(out, d)
		}
	}
	return out
}

// Flush applies everything staged to the store and empties the batch.
// On error the store is unchanged and the batch still holds its deltas.
func (b *Batch) Flush(ctx context.Context) error {
	ds := b.Pending()
	if len(ds) > 0 {
		if err := b.store.Apply(ctx, ds); err != nil {
			return fmt.Errorf("ledger flush: %w", err)
		}
	}
	b.Discard()
	return nil
}

func (b *Batch) Discard() {
	b.deltas = make(map[balanceKey]*Delta, 16)
	b.order = nil
}

var _ Store = (*Batch)(nil)
