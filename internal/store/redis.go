package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yllvar/pool-odds/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot read paths: markets and pools, which every quote and
// price display hits. Writes go to the primary store and invalidate the
// cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

// --- Write-through (write to primary, refresh or invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cache(ctx, marketKey(m.ID), m)
	return nil
}

func (s *CachedStore) UpdateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.UpdateMarket(ctx, m); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, marketKey(m.ID))
	return nil
}

func (s *CachedStore) CreatePool(ctx context.Context, p *model.Pool) error {
	if err := s.primary.CreatePool(ctx, p); err != nil {
		return err
	}
	s.cache(ctx, poolKey(p.ID), p)
	return nil
}

func (s *CachedStore) UpdatePool(ctx context.Context, p *model.Pool) error {
	if err := s.primary.UpdatePool(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, poolKey(p.ID), poolOutcomeKey(p.MarketID, p.Outcome))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	if data, err := s.rdb.Get(ctx, marketKey(id)).Bytes(); err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, marketKey(id), m)
	return m, nil
}

func (s *CachedStore) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	if data, err := s.rdb.Get(ctx, poolKey(id)).Bytes(); err == nil {
		var p model.Pool
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.GetPool(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, poolKey(id), p)
	return p, nil
}

func (s *CachedStore) GetPoolByOutcome(ctx context.Context, marketID string, outcome model.Outcome) (*model.Pool, error) {
	// Indirect lookup via marketID/outcome → poolID mapping.
	if poolID, err := s.rdb.Get(ctx, poolOutcomeKey(marketID, outcome)).Result(); err == nil {
		return s.GetPool(ctx, poolID)
	}

	p, err := s.primary.GetPoolByOutcome(ctx, marketID, outcome)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, poolKey(p.ID), p)
	s.rdb.Set(ctx, poolOutcomeKey(marketID, outcome), p.ID, s.ttl)
	return p, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) GetPosition(ctx context.Context, owner, marketID string, outcome model.Outcome) (*model.Position, error) {
	return s.primary.GetPosition(ctx, owner, marketID, outcome)
}

func (s *CachedStore) PutPosition(ctx context.Context, pos *model.Position) error {
	return s.primary.PutPosition(ctx, pos)
}

func (s *CachedStore) ListPositionsByOwner(ctx context.Context, owner string) ([]model.Position, error) {
	return s.primary.ListPositionsByOwner(ctx, owner)
}

func (s *CachedStore) GetLiquidityPosition(ctx context.Context, owner, poolID string) (*model.LiquidityPosition, error) {
	return s.primary.GetLiquidityPosition(ctx, owner, poolID)
}

func (s *CachedStore) PutLiquidityPosition(ctx context.Context, lp *model.LiquidityPosition) error {
	return s.primary.PutLiquidityPosition(ctx, lp)
}

func (s *CachedStore) ListLiquidityPositionsByOwner(ctx context.Context, owner string) ([]model.LiquidityPosition, error) {
	return s.primary.ListLiquidityPositionsByOwner(ctx, owner)
}

func (s *CachedStore) GetUser(ctx context.Context, authority string) (*model.User, error) {
	return s.primary.GetUser(ctx, authority)
}

func (s *CachedStore) PutUser(ctx context.Context, u *model.User) error {
	return s.primary.PutUser(ctx, u)
}

// --- Cache helpers ---

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func marketKey(id string) string { return fmt.Sprintf("market:%s", id) }
func poolKey(id string) string   { return fmt.Sprintf("pool:%s", id) }

func poolOutcomeKey(marketID string, outcome model.Outcome) string {
	return fmt.Sprintf("pool:%s:%s", marketID, outcome)
}
