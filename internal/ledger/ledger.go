package ledger

import (
	"context"

	"ctfex.com/pkg/xerr"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = xerr.New(xerr.InsufficientFund, xerr.KindResource, "insufficient balance")
	ErrNotApproved         = xerr.New(xerr.InsufficientFund, xerr.KindResource, "exchange not approved by owner")
	ErrInvalidAmount       = xerr.New(xerr.InvalidOrder, xerr.KindValidation, "amount must be positive")
	ErrJournalClosed       = xerr.New(xerr.ServerCommonError, xerr.KindInternal, "journal already committed or discarded")
)

// Delta is the net change of one balance inside a commit. Store.Apply
// must apply all deltas or none, re-checking that no balance goes negative.
type Delta struct {
	Owner common.Address
	Asset common.Hash
	In    uint64
	Out   uint64
}

// Store is the token ledger collaborator.
type Store interface {
	Balance(ctx context.Context, owner common.Address, asset common.Hash) (uint64, error)
	IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error)
	Apply(ctx context.Context, deltas []Delta) error
}

// Admin covers the deposit/approval side that lives outside matching.
type Admin interface {
	Credit(ctx context.Context, owner common.Address, asset common.Hash, amount uint64) error
	SetApprovalForAll(ctx context.Context, owner, operator common.Address, approved bool) error
}

type balanceKey struct {
	owner common.Address
	asset common.Hash
}

type approvalKey struct {
	owner    common.Address
	operator common.Address
}

// applyDelta returns bal+in-out, or false when that would be negative.
func applyDelta(bal uint64, d Delta) (uint64, bool) {
	sum := bal + d.In
	if sum < bal || sum < d.Out {
		return 0, false
	}
	return sum - d.Out, true
}
