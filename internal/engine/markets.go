package engine

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/yllvar/pool-odds/internal/metrics"
	"github.com/yllvar/pool-odds/internal/model"
)

type createMarketRequest struct {
	Creator       string `json:"creator"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	EndTime       int64  `json:"end_time"`
	Resolution    string `json:"resolution_source"`
	OracleAccount string `json:"oracle_account,omitempty"`
	TargetPrice   uint64 `json:"target_price,omitempty"`
	BondAmount    uint64 `json:"bond_amount"`
}

// CreateMarket handles POST /api/v1/markets. The bond amount is validated
// and recorded; custody of the bond itself is the caller's concern.
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Creator == "" {
		writeError(w, "creator is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	ctx := r.Context()

	user, err := s.getOrCreateUser(ctx, req.Creator, now)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	if !user.CanCreateMarket(s.params.MaxMarketsPerCreator) {
		writeError(w, model.ErrTooManyMarkets.Error(), httpStatus(model.ErrTooManyMarkets))
		return
	}

	spec := model.MarketSpec{
		Creator:     req.Creator,
		Title:       req.Title,
		Description: req.Description,
		Category:    model.Category(req.Category),
		EndTime:     req.EndTime,
		Resolution:  model.ResolutionPolicy{Source: model.ResolutionSource(req.Resolution)},
		BondAmount:  req.BondAmount,
	}
	if spec.Resolution.Source == model.ResolutionOracle {
		spec.Resolution.Oracle = &model.OracleBinding{
			Account:     req.OracleAccount,
			TargetPrice: req.TargetPrice,
		}
	}

	market, err := model.NewMarket(uuid.New().String(), spec, s.params, now)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}

	if err := s.store.CreateMarket(ctx, market); err != nil {
		slog.Error("failed to create market", "error", err)
		writeError(w, "failed to create market", http.StatusInternalServerError)
		return
	}
	user.RecordMarketCreated(now)
	if err := s.store.PutUser(ctx, user); err != nil {
		slog.Error("failed to update user rollup", "error", err, "authority", user.Authority)
	}

	metrics.ActiveMarkets.Inc()
	slog.Info("market created",
		"market_id", market.ID,
		"creator", market.Creator,
		"category", market.Category,
		"end_time", market.EndTime)

	writeJSON(w, http.StatusCreated, market)
}

type createPoolsRequest struct {
	Provider         string `json:"provider"`
	InitialLiquidity uint64 `json:"initial_liquidity,omitempty"`
}

// CreatePools handles POST /api/v1/markets/{id}/pools. Both outcome pools
// are created together and bound to the market exactly once. An optional
// initial liquidity amount seeds each pool 1:1 (price 0.50 per side in
// probability terms) and credits the provider's LP positions.
func (s *Service) CreatePools(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "id")
	var req createPoolsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	ctx := r.Context()

	market, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		writeError(w, "market not found", httpStatus(err))
		return
	}
	if !market.IsActive() {
		writeError(w, model.ErrMarketNotActive.Error(), httpStatus(model.ErrMarketNotActive))
		return
	}

	yesPool := model.NewPool(uuid.New().String(), market.ID, model.OutcomeYes, market.FeeRateBp, now)
	noPool := model.NewPool(uuid.New().String(), market.ID, model.OutcomeNo, market.FeeRateBp, now)

	if err := market.BindPools(yesPool.ID, noPool.ID); err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}

	var lps []*model.LiquidityPosition
	if req.InitialLiquidity > 0 {
		if req.Provider == "" {
			writeError(w, "provider is required for initial liquidity", http.StatusBadRequest)
			return
		}
		for _, pool := range []*model.Pool{yesPool, noPool} {
			lp, err := s.seedPool(pool, market, req.Provider, req.InitialLiquidity, now)
			if err != nil {
				writeError(w, err.Error(), httpStatus(err))
				return
			}
			lps = append(lps, lp)
		}
	}

	if err := s.store.CreatePool(ctx, yesPool); err != nil {
		slog.Error("failed to create pool", "error", err, "market_id", market.ID)
		writeError(w, "failed to create pools", http.StatusInternalServerError)
		return
	}
	if err := s.store.CreatePool(ctx, noPool); err != nil {
		slog.Error("failed to create pool", "error", err, "market_id", market.ID)
		writeError(w, "failed to create pools", http.StatusInternalServerError)
		return
	}
	if err := s.store.UpdateMarket(ctx, market); err != nil {
		slog.Error("failed to bind pools", "error", err, "market_id", market.ID)
		writeError(w, "failed to create pools", http.StatusInternalServerError)
		return
	}
	// LP records last: a pool or binding failure must not leave an LP claim
	// against pools that were never stored.
	for _, lp := range lps {
		if err := s.store.PutLiquidityPosition(ctx, lp); err != nil {
			slog.Error("failed to persist seed liquidity", "error", err, "pool_id", lp.PoolID)
			writeError(w, "failed to create pools", http.StatusInternalServerError)
			return
		}
	}

	slog.Info("pools created",
		"market_id", market.ID,
		"yes_pool_id", yesPool.ID,
		"no_pool_id", noPool.ID,
		"initial_liquidity", req.InitialLiquidity)

	writeJSON(w, http.StatusCreated, map[string]any{
		"market":   market,
		"yes_pool": yesPool,
		"no_pool":  noPool,
	})
}

// seedPool applies a symmetric first deposit to a freshly created pool and
// builds the provider's LP position. Pure in-memory mutation; the caller
// persists the pool before the returned LP record.
func (s *Service) seedPool(pool *model.Pool, market *model.Market, provider string, amount uint64, now int64) (*model.LiquidityPosition, error) {
	minted, err := pool.LPTokensForDeposit(amount, amount)
	if err != nil {
		return nil, err
	}
	if err := pool.ApplyDeposit(amount, amount, minted, now); err != nil {
		return nil, err
	}

	lp := model.NewLiquidityPosition(provider, pool.ID, now)
	if err := lp.Deposit(amount, amount, minted, now); err != nil {
		return nil, err
	}

	market.LPCount++
	if err := market.RecordLiquidity(amount); err != nil {
		return nil, err
	}
	metrics.LiquidityEvents.WithLabelValues("seed").Inc()
	return lp, nil
}

type resolveMarketRequest struct {
	Resolver string `json:"resolver"`
	Outcome  string `json:"outcome,omitempty"`

	// OraclePrice overrides the configured feed, mainly for operator
	// tooling. When absent and the market is oracle-resolved, the bound
	// feed is queried.
	OraclePrice *model.OraclePrice `json:"oracle_price,omitempty"`
}

// ResolveMarket handles POST /api/v1/markets/{id}/resolve. Manual markets
// need an explicit outcome from the creator or admin; oracle markets pull
// the latest validated price from the bound feed after expiry.
func (s *Service) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "id")
	var req resolveMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	ctx := r.Context()

	market, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		writeError(w, "market not found", httpStatus(err))
		return
	}
	if req.Resolver != market.Creator && req.Resolver != s.admin {
		writeError(w, ErrUnauthorized.Error(), httpStatus(ErrUnauthorized))
		return
	}

	var oracle *model.OraclePrice
	var manual *model.Outcome
	switch market.Resolution.Source {
	case model.ResolutionOracle:
		oracle = req.OraclePrice
		if oracle == nil {
			if s.oracle == nil {
				writeError(w, model.ErrMissingOracleAccount.Error(), httpStatus(model.ErrMissingOracleAccount))
				return
			}
			oracle, err = s.oracle.Latest(ctx, market.Resolution.Oracle.Account)
			if err != nil {
				slog.Error("oracle feed query failed", "error", err, "market_id", market.ID)
				writeError(w, model.ErrInvalidOracleData.Error(), httpStatus(model.ErrInvalidOracleData))
				return
			}
		}
	case model.ResolutionManual:
		if req.Outcome != "" {
			outcome := model.Outcome(req.Outcome)
			manual = &outcome
		}
	}

	winner, err := market.Resolve(now, oracle, manual)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}

	if err := s.store.UpdateMarket(ctx, market); err != nil {
		slog.Error("failed to persist resolution", "error", err, "market_id", market.ID)
		writeError(w, "failed to resolve market", http.StatusInternalServerError)
		return
	}

	metrics.ActiveMarkets.Dec()
	metrics.MarketsResolved.WithLabelValues(string(winner)).Inc()
	slog.Info("market resolved",
		"market_id", market.ID,
		"winning_outcome", winner,
		"source", market.Resolution.Source,
		"resolver", req.Resolver)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "market_resolved",
			MarketID: market.ID,
			Outcome:  string(winner),
		})
	}

	writeJSON(w, http.StatusOK, market)
}

type updateMarketRequest struct {
	Authority string `json:"authority"`
	FeeRateBp uint16 `json:"fee_rate_bp"`
}

// UpdateMarket handles PATCH /api/v1/markets/{id}. Only the fee rate is
// adjustable, only while the market is active, and only by the creator or
// admin. Existing pools keep the rate they were created with.
func (s *Service) UpdateMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "id")
	var req updateMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := r.Context()

	market, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		writeError(w, "market not found", httpStatus(err))
		return
	}
	if req.Authority != market.Creator && req.Authority != s.admin {
		writeError(w, ErrUnauthorized.Error(), httpStatus(ErrUnauthorized))
		return
	}

	if err := market.AdjustFeeRate(req.FeeRateBp, s.params); err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}

	if err := s.store.UpdateMarket(ctx, market); err != nil {
		slog.Error("failed to update market", "error", err, "market_id", market.ID)
		writeError(w, "failed to update market", http.StatusInternalServerError)
		return
	}

	slog.Info("market fee adjusted", "market_id", market.ID, "fee_rate_bp", req.FeeRateBp)
	writeJSON(w, http.StatusOK, market)
}
