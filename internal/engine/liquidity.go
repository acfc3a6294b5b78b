package engine

import (
	"log/slog"
	"net/http"

	"github.com/yllvar/pool-odds/internal/fixedpoint"
	"github.com/yllvar/pool-odds/internal/metrics"
	"github.com/yllvar/pool-odds/internal/model"
)

type addLiquidityRequest struct {
	UserID      string `json:"user_id"`
	MarketID    string `json:"market_id"`
	Outcome     string `json:"outcome"`
	BaseAmount  uint64 `json:"base_amount"`
	ShareAmount uint64 `json:"share_amount"`
}

// AddLiquidity handles POST /api/v1/liquidity/add. Minting follows the
// standard constant-product rule: geometric mean on the first deposit,
// minimum proportional ratio afterwards.
func (s *Service) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	var req addLiquidityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	outcome := model.Outcome(req.Outcome)
	if req.UserID == "" || req.MarketID == "" || !outcome.Valid() {
		writeError(w, "user_id, market_id, and outcome are required", http.StatusBadRequest)
		return
	}
	if req.BaseAmount == 0 || req.ShareAmount == 0 {
		writeError(w, model.ErrInvalidLiquidityAmount.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	ctx := r.Context()

	market, err := s.store.GetMarket(ctx, req.MarketID)
	if err != nil {
		writeError(w, "market not found", httpStatus(err))
		return
	}
	if !market.CanTrade(now) {
		writeError(w, model.ErrMarketNotActive.Error(), httpStatus(model.ErrMarketNotActive))
		return
	}

	pool, err := s.store.GetPoolByOutcome(ctx, market.ID, outcome)
	if err != nil {
		writeError(w, "pool not found", httpStatus(err))
		return
	}

	minted, err := pool.LPTokensForDeposit(req.BaseAmount, req.ShareAmount)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	if err := pool.ApplyDeposit(req.BaseAmount, req.ShareAmount, minted, now); err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}

	lp, err := s.store.GetLiquidityPosition(ctx, req.UserID, pool.ID)
	newProvider := false
	if err != nil {
		if !isNotFound(err) {
			writeError(w, err.Error(), httpStatus(err))
			return
		}
		lp = model.NewLiquidityPosition(req.UserID, pool.ID, now)
		newProvider = true
	}
	if err := lp.Deposit(req.BaseAmount, req.ShareAmount, minted, now); err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}

	if err := market.RecordLiquidity(req.BaseAmount); err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	if newProvider {
		market.LPCount++
	}

	if err := s.store.UpdatePool(ctx, pool); err != nil {
		slog.Error("failed to persist pool", "error", err, "pool_id", pool.ID)
		writeError(w, "failed to add liquidity", http.StatusInternalServerError)
		return
	}
	if err := s.store.PutLiquidityPosition(ctx, lp); err != nil {
		slog.Error("failed to persist liquidity position", "error", err, "owner", lp.Owner)
		writeError(w, "failed to add liquidity", http.StatusInternalServerError)
		return
	}
	if err := s.store.UpdateMarket(ctx, market); err != nil {
		slog.Error("failed to persist market counters", "error", err, "market_id", market.ID)
	}

	metrics.LiquidityEvents.WithLabelValues("add").Inc()
	slog.Info("liquidity added",
		"market_id", market.ID,
		"pool_id", pool.ID,
		"provider", req.UserID,
		"base_amount", req.BaseAmount,
		"share_amount", req.ShareAmount,
		"lp_tokens_minted", minted)

	writeJSON(w, http.StatusOK, map[string]any{
		"pool":             pool,
		"position":         lp,
		"lp_tokens_minted": minted,
	})
}

type removeLiquidityRequest struct {
	UserID   string `json:"user_id"`
	MarketID string `json:"market_id"`
	Outcome  string `json:"outcome"`
	LPTokens uint64 `json:"lp_tokens"`
}

// RemoveLiquidity handles POST /api/v1/liquidity/remove. The burned tokens
// pay out the proportional share of each reserve. The provider's share of
// fees collected so far is attributed to their rollup; the fees themselves
// are already inside the reserves being paid out.
func (s *Service) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	var req removeLiquidityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	outcome := model.Outcome(req.Outcome)
	if req.UserID == "" || req.MarketID == "" || !outcome.Valid() {
		writeError(w, "user_id, market_id, and outcome are required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	ctx := r.Context()

	pool, err := s.store.GetPoolByOutcome(ctx, req.MarketID, outcome)
	if err != nil {
		writeError(w, "pool not found", httpStatus(err))
		return
	}

	lp, err := s.store.GetLiquidityPosition(ctx, req.UserID, pool.ID)
	if err != nil {
		writeError(w, "liquidity position not found", httpStatus(err))
		return
	}
	if err := lp.Burn(req.LPTokens, now); err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}

	supplyBefore := pool.LPTokenSupply
	baseOut, shareOut, err := pool.Withdraw(req.LPTokens, now)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}

	// Attribute the proportional slice of collected fees. Reporting only;
	// the fees themselves sit in the reserves and were paid out above.
	feeShare := uint64(0)
	if supplyBefore > 0 {
		feeShare, err = fixedpoint.MulDiv(pool.FeesCollected, req.LPTokens, supplyBefore)
		if err != nil {
			writeError(w, err.Error(), httpStatus(err))
			return
		}
	}
	if feeShare > 0 {
		if err := lp.CreditFees(feeShare, now); err != nil {
			writeError(w, err.Error(), httpStatus(err))
			return
		}
	}

	user, err := s.getOrCreateUser(ctx, req.UserID, now)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	if feeShare > 0 {
		if err := user.RecordFeesEarned(feeShare, now); err != nil {
			writeError(w, err.Error(), httpStatus(err))
			return
		}
	}

	if err := s.store.UpdatePool(ctx, pool); err != nil {
		slog.Error("failed to persist pool", "error", err, "pool_id", pool.ID)
		writeError(w, "failed to remove liquidity", http.StatusInternalServerError)
		return
	}
	if err := s.store.PutLiquidityPosition(ctx, lp); err != nil {
		slog.Error("failed to persist liquidity position", "error", err, "owner", lp.Owner)
		writeError(w, "failed to remove liquidity", http.StatusInternalServerError)
		return
	}
	if err := s.store.PutUser(ctx, user); err != nil {
		slog.Error("failed to persist user rollup", "error", err, "authority", user.Authority)
	}

	metrics.LiquidityEvents.WithLabelValues("remove").Inc()
	slog.Info("liquidity removed",
		"pool_id", pool.ID,
		"provider", req.UserID,
		"lp_tokens_burned", req.LPTokens,
		"base_out", baseOut,
		"share_out", shareOut)

	writeJSON(w, http.StatusOK, map[string]any{
		"pool":      pool,
		"position":  lp,
		"base_out":  baseOut,
		"share_out": shareOut,
	})
}

type claimRequest struct {
	UserID   string `json:"user_id"`
	MarketID string `json:"market_id"`
}

// ClaimWinnings handles POST /api/v1/claim. After resolution each winning
// share redeems for one base token; the claim closes the winning position
// and books the payout against its cost basis as realized P&L. Losing
// positions have nothing to claim.
func (s *Service) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.MarketID == "" {
		writeError(w, "user_id and market_id are required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	ctx := r.Context()

	market, err := s.store.GetMarket(ctx, req.MarketID)
	if err != nil {
		writeError(w, "market not found", httpStatus(err))
		return
	}
	if !market.IsResolved() || market.WinningOutcome == nil {
		writeError(w, "market not resolved", http.StatusConflict)
		return
	}

	pos, err := s.store.GetPosition(ctx, req.UserID, market.ID, *market.WinningOutcome)
	if err != nil || pos.Shares == 0 {
		writeError(w, ErrNoWinningsToClaim.Error(), httpStatus(ErrNoWinningsToClaim))
		return
	}

	// Each winning share redeems 1:1 for base tokens.
	payout := pos.Shares
	pnlBefore := pos.RealizedPnL
	if err := pos.ApplyTrade(-int64(pos.Shares), payout, now); err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}

	user, err := s.getOrCreateUser(ctx, req.UserID, now)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	if delta := pos.RealizedPnL - pnlBefore; delta != 0 {
		if err := user.RecordRealizedPnL(delta, now); err != nil {
			writeError(w, err.Error(), httpStatus(err))
			return
		}
	}

	if err := s.store.PutPosition(ctx, pos); err != nil {
		slog.Error("failed to persist claimed position", "error", err, "owner", pos.Owner)
		writeError(w, "failed to claim winnings", http.StatusInternalServerError)
		return
	}
	if err := s.store.PutUser(ctx, user); err != nil {
		slog.Error("failed to persist user rollup", "error", err, "authority", user.Authority)
	}

	slog.Info("winnings claimed",
		"market_id", market.ID,
		"user_id", req.UserID,
		"outcome", *market.WinningOutcome,
		"payout", payout)

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": market.ID,
		"outcome":   *market.WinningOutcome,
		"payout":    payout,
		"position":  pos,
	})
}
