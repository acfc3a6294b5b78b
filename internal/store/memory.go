package store

import (
	"context"
	"sort"
	"sync"

	"github.com/yllvar/pool-odds/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	markets   map[string]*model.Market
	pools     map[string]*model.Pool
	positions map[positionKey]*model.Position
	liquidity map[liquidityKey]*model.LiquidityPosition
	users     map[string]*model.User
}

type positionKey struct {
	owner    string
	marketID string
	outcome  model.Outcome
}

type liquidityKey struct {
	owner  string
	poolID string
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:   make(map[string]*model.Market),
		pools:     make(map[string]*model.Pool),
		positions: make(map[positionKey]*model.Position),
		liquidity: make(map[liquidityKey]*model.LiquidityPosition),
		users:     make(map[string]*model.User),
	}
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.markets[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *m)
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].CreatedAt > markets[j].CreatedAt
	})
	return markets, nil
}

func (s *MemoryStore) UpdateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; !ok {
		return ErrNotFound
	}
	cp := *m
	s.markets[m.ID] = &cp
	return nil
}

func (s *MemoryStore) CreatePool(_ context.Context, p *model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.pools[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPool(_ context.Context, id string) (*model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetPoolByOutcome(_ context.Context, marketID string, outcome model.Outcome) (*model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.pools {
		if p.MarketID == marketID && p.Outcome == outcome {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdatePool(_ context.Context, p *model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	s.pools[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPosition(_ context.Context, owner, marketID string, outcome model.Outcome) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[positionKey{owner, marketID, outcome}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *pos
	return &cp, nil
}

func (s *MemoryStore) PutPosition(_ context.Context, pos *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *pos
	s.positions[positionKey{pos.Owner, pos.MarketID, pos.Outcome}] = &cp
	return nil
}

func (s *MemoryStore) ListPositionsByOwner(_ context.Context, owner string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Position
	for k, pos := range s.positions {
		if k.owner == owner {
			out = append(out, *pos)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketID != out[j].MarketID {
			return out[i].MarketID < out[j].MarketID
		}
		return out[i].Outcome < out[j].Outcome
	})
	return out, nil
}

func (s *MemoryStore) GetLiquidityPosition(_ context.Context, owner, poolID string) (*model.LiquidityPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lp, ok := s.liquidity[liquidityKey{owner, poolID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *lp
	return &cp, nil
}

func (s *MemoryStore) PutLiquidityPosition(_ context.Context, lp *model.LiquidityPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *lp
	s.liquidity[liquidityKey{lp.Owner, lp.PoolID}] = &cp
	return nil
}

func (s *MemoryStore) ListLiquidityPositionsByOwner(_ context.Context, owner string) ([]model.LiquidityPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.LiquidityPosition
	for k, lp := range s.liquidity {
		if k.owner == owner {
			out = append(out, *lp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PoolID < out[j].PoolID
	})
	return out, nil
}

func (s *MemoryStore) GetUser(_ context.Context, authority string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[authority]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) PutUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.Authority] = &cp
	return nil
}
