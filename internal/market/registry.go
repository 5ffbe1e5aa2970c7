package market

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ctfex.com/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Store persists registry records. Nil store keeps the registry in memory.
type Store interface {
	Save(ctx context.Context, m *Market) error
	LoadAll(ctx context.Context) ([]*Market, error)
}

// Registry is the admin surface. Only authority may mutate; reads return
// copies so callers can hold them while the registry changes.
type Registry struct {
	authority common.Address
	store     Store

	mu      sync.RWMutex
	markets map[common.Hash]*Market
}

func NewRegistry(authority common.Address, store Store) *Registry {
	return &Registry{
		authority: authority,
		store:     store,
		markets:   make(map[common.Hash]*Market),
	}
}

// Load pulls persisted markets into memory.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	ms, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load markets: %w", err)
	}
	r.mu.Lock()
	for _, m := range ms {
		r.markets[m.ID] = m
	}
	r.mu.Unlock()
	logger.Info(ctx, "markets loaded", zap.Int("count", len(ms)))
	return nil
}

func (r *Registry) Authority() common.Address { return r.authority }

func (r *Registry) Register(ctx context.Context, caller common.Address, m *Market) error {
	if caller != r.authority {
		return ErrNotAuthority
	}
	if m == nil || m.ID == (common.Hash{}) || m.Collateral == (common.Address{}) {
		return ErrInvalidMarket
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markets[m.ID]; ok {
		return ErrMarketExists
	}
	cp := *m
	cp.Registered = true
	if err := r.save(ctx, &cp); err != nil {
		return err
	}
	r.markets[cp.ID] = &cp
	logger.Info(ctx, "market registered",
		zap.String("market", cp.ID.Hex()), zap.Int64("end_time", cp.EndTime))
	return nil
}

func (r *Registry) SetPaused(ctx context.Context, caller common.Address, id common.Hash, paused bool) error {
	return r.update(ctx, caller, id, func(m *Market) error {
		m.Paused = paused
		return nil
	})
}

// Resolve records the outcome. Resolution is final.
func (r *Registry) Resolve(ctx context.Context, caller common.Address, id common.Hash, yesWins bool) error {
	return r.update(ctx, caller, id, func(m *Market) error {
		if m.Resolved {
			return ErrMarketResolved
		}
		m.Resolved = true
		m.Outcome = OutcomeNo
		if yesWins {
			m.Outcome = OutcomeYes
		}
		return nil
	})
}

func (r *Registry) update(ctx context.Context, caller common.Address, id common.Hash, fn func(m *Market) error) error {
	if caller != r.authority {
		return ErrNotAuthority
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.markets[id]
	if !ok {
		return ErrMarketNotRegistered
	}
	next := *cur
	if err := fn(&next); err != nil {
		return err
	}
	if err := r.save(ctx, &next); err != nil {
		return err
	}
	r.markets[id] = &next
	logger.Info(ctx, "market updated",
		zap.String("market", id.Hex()),
		zap.Bool("paused", next.Paused),
		zap.Bool("resolved", next.Resolved),
		zap.Stringer("outcome", next.Outcome))
	return nil
}

func (r *Registry) save(ctx context.Context, m *Market) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.Save(ctx, m); err != nil {
		return fmt.Errorf("save market %s: %w", m.ID.Hex(), err)
	}
	return nil
}

// Get returns a snapshot, or ErrMarketNotRegistered.
func (r *Registry) Get(id common.Hash) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[id]
	if !ok {
		return nil, ErrMarketNotRegistered
	}
	cp := *m
	return &cp, nil
}

func (r *Registry) List() []*Market {
	r.mu.RLock()
	out := make([]*Market, 0, len(r.markets))
	for _, m := range r.markets {
		cp := *m
		out = append(out, &cp)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out
}
