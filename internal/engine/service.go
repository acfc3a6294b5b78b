// Package engine provides the HTTP handlers and per-operation orchestration
// for the prediction market: market creation, pool creation, trading,
// liquidity provision, resolution, and claims.
//
// Each mutating handler is one atomic logical operation: state is loaded,
// quoted, validated, and only then written back, under a single service
// lock so a quote is never applied against a pool another trade touched in
// between. The core packages (model, fixedpoint) are pure; the engine owns
// the clock, the store, and the admission-control policy.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/yllvar/pool-odds/internal/fixedpoint"
	"github.com/yllvar/pool-odds/internal/model"
	"github.com/yllvar/pool-odds/internal/store"
)

// OracleFeed supplies the latest price record for an oracle account. The
// engine only validates what it receives; fetching and caching live
// outside the core.
type OracleFeed interface {
	Latest(ctx context.Context, account string) (*model.OraclePrice, error)
}

// Service handles market operations. Uses a mutex for serialized mutation
// (single-instance). For horizontal scaling, replace with distributed
// locking or database-level optimistic concurrency.
type Service struct {
	store  store.Store
	params model.GlobalParams
	admin  string // authority allowed to resolve/adjust any market
	oracle OracleFeed
	wsHub  *WSHub // optional WebSocket hub for real-time broadcasts

	mu  sync.Mutex
	now func() int64
}

// NewService creates a new engine service. Pass nil for feed if no oracle
// is wired and nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, params model.GlobalParams, admin string, feed OracleFeed, hub *WSHub) *Service {
	return &Service{
		store:  st,
		params: params,
		admin:  admin,
		oracle: feed,
		wsHub:  hub,
		now:    func() int64 { return time.Now().Unix() },
	}
}

// WithClock replaces the service clock. Tests use this to pin time.
func (s *Service) WithClock(now func() int64) *Service {
	s.now = now
	return s
}

// --- Error mapping ---

// httpStatus maps core error kinds to HTTP statuses: validation 400,
// missing records 404, state/liquidity/oracle conflicts 409, arithmetic 422.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidTitle),
		errors.Is(err, model.ErrInvalidDescription),
		errors.Is(err, model.ErrInvalidCategory),
		errors.Is(err, model.ErrInvalidEndTime),
		errors.Is(err, model.ErrInvalidDuration),
		errors.Is(err, model.ErrInvalidFeeRate),
		errors.Is(err, model.ErrBondTooSmall),
		errors.Is(err, model.ErrMissingOracleData),
		errors.Is(err, model.ErrMissingOutcome),
		errors.Is(err, model.ErrInvalidLiquidityAmount):
		return http.StatusBadRequest
	case errors.Is(err, fixedpoint.ErrOverflow),
		errors.Is(err, fixedpoint.ErrDivisionByZero):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrProgramPaused),
		errors.Is(err, model.ErrTooManyMarkets),
		errors.Is(err, model.ErrMarketNotActive),
		errors.Is(err, model.ErrMarketAlreadyResolved),
		errors.Is(err, model.ErrCannotResolve),
		errors.Is(err, model.ErrPoolsAlreadyBound),
		errors.Is(err, model.ErrInvalidPool),
		errors.Is(err, model.ErrInsufficientLiquidity),
		errors.Is(err, model.ErrInsufficientLiquidityMinted),
		errors.Is(err, model.ErrInsufficientLPTokens),
		errors.Is(err, model.ErrInsufficientShares),
		errors.Is(err, model.ErrMissingOracleAccount),
		errors.Is(err, model.ErrInvalidOracleAccount),
		errors.Is(err, model.ErrInvalidOracleData),
		errors.Is(err, model.ErrStalePriceData),
		errors.Is(err, ErrSlippageExceeded),
		errors.Is(err, ErrPriceImpactTooHigh),
		errors.Is(err, ErrNoWinningsToClaim),
		errors.Is(err, ErrUnauthorized):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

var (
	// ErrSlippageExceeded is returned when a quoted output lands below the
	// caller's minimum.
	ErrSlippageExceeded = errors.New("engine: slippage exceeded")

	// ErrPriceImpactTooHigh is returned when a trade's estimated impact
	// exceeds the configured ceiling.
	ErrPriceImpactTooHigh = errors.New("engine: price impact too high")

	// ErrNoWinningsToClaim is returned when a claim finds no winning shares.
	ErrNoWinningsToClaim = errors.New("engine: no winnings to claim")

	// ErrUnauthorized is returned when the caller may not perform the
	// operation on this market.
	ErrUnauthorized = errors.New("engine: unauthorized")
)

// decodeJSON decodes a request body, rejecting unknown fields so typos in
// client payloads fail loudly instead of silently defaulting.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// getOrCreateUser loads a user rollup, creating an empty one on first
// touch.
func (s *Service) getOrCreateUser(ctx context.Context, authority string, now int64) (*model.User, error) {
	u, err := s.store.GetUser(ctx, authority)
	if errors.Is(err, store.ErrNotFound) {
		return model.NewUser(authority, now), nil
	}
	return u, err
}
