// Package store defines the persistence interface for the market engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/yllvar/pool-odds/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. The engine performs one logical
// operation per request under its own lock; implementations only need to
// keep individual reads and writes consistent.
type Store interface {
	// --- Markets ---

	// CreateMarket persists a new market.
	CreateMarket(ctx context.Context, m *model.Market) error

	// GetMarket retrieves a market by ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListMarkets returns all markets, newest first.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// UpdateMarket overwrites a market's mutable state.
	UpdateMarket(ctx context.Context, m *model.Market) error

	// --- Pools ---

	// CreatePool persists a new pool.
	CreatePool(ctx context.Context, p *model.Pool) error

	// GetPool retrieves a pool by ID.
	GetPool(ctx context.Context, id string) (*model.Pool, error)

	// GetPoolByOutcome retrieves the pool for one outcome of a market.
	GetPoolByOutcome(ctx context.Context, marketID string, outcome model.Outcome) (*model.Pool, error)

	// UpdatePool overwrites a pool's reserves and accumulators.
	UpdatePool(ctx context.Context, p *model.Pool) error

	// --- Positions ---

	// GetPosition retrieves a position by its (owner, market, outcome) key.
	GetPosition(ctx context.Context, owner, marketID string, outcome model.Outcome) (*model.Position, error)

	// PutPosition upserts a position.
	PutPosition(ctx context.Context, pos *model.Position) error

	// ListPositionsByOwner returns all of an owner's positions.
	ListPositionsByOwner(ctx context.Context, owner string) ([]model.Position, error)

	// --- Liquidity positions ---

	// GetLiquidityPosition retrieves an LP claim by its (owner, pool) key.
	GetLiquidityPosition(ctx context.Context, owner, poolID string) (*model.LiquidityPosition, error)

	// PutLiquidityPosition upserts an LP claim.
	PutLiquidityPosition(ctx context.Context, lp *model.LiquidityPosition) error

	// ListLiquidityPositionsByOwner returns all of an owner's LP claims.
	ListLiquidityPositionsByOwner(ctx context.Context, owner string) ([]model.LiquidityPosition, error)

	// --- Users ---

	// GetUser retrieves a user rollup by authority.
	GetUser(ctx context.Context, authority string) (*model.User, error)

	// PutUser upserts a user rollup.
	PutUser(ctx context.Context, u *model.User) error
}
