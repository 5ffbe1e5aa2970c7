package ledger

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type MemStore struct {
	mu        sync.RWMutex
	balances  map[balanceKey]uint64
	approvals map[approvalKey]bool
}

func NewMemStore() *MemStore {
	return &MemStore{
		balances:  make(map[balanceKey]uint64),
		approvals: make(map[approvalKey]bool),
	}
}

func (s *MemStore) Balance(_ context.Context, owner common.Address, asset common.Hash) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[balanceKey{owner, asset}], nil
}

func (s *MemStore) IsApprovedForAll(_ context.Context, owner, operator common.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.approvals[approvalKey{owner, operator}], nil
}

func (s *MemStore) Apply(_ context.Context, deltas []Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[balanceKey]uint64, len(deltas))
	for _, d := range deltas {
		k := balanceKey{d.Owner, d.Asset}
		cur, ok := next[k]
		if !ok {
			cur = s.balances[k]
		}
		v, ok := applyDelta(cur, d)
		if !ok {
			return ErrInsufficientBalance
		}
		next[k] = v
	}
	for k, v := range next {
		if v == 0 {
			delete(s.balances, k)
			continue
		}
		s.balances[k] = v
	}
	return nil
}

func (s *MemStore) Credit(ctx context.Context, owner common.Address, asset common.Hash, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	return s.Apply(ctx, []Delta{{Owner: owner, Asset: asset, In: amount}})
}

func (s *MemStore) SetApprovalForAll(_ context.Context, owner, operator common.Address, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if approved {
		s.approvals[approvalKey{owner, operator}] = true
	} else {
		delete(s.approvals, approvalKey{owner, operator})
	}
	return nil
}
