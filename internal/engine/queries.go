package engine

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/yllvar/pool-odds/internal/model"
)

// GetMarket handles GET /api/v1/markets/{id}. The response carries both
// pools (when bound) and the suggested Yes/No liquidity split so a UI can
// render prices and prompts from one round trip.
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "id")
	ctx := r.Context()

	market, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		writeError(w, "market not found", httpStatus(err))
		return
	}

	resp := map[string]any{"market": market}
	if market.YesPoolID != "" {
		yesPool, err := s.store.GetPool(ctx, market.YesPoolID)
		if err != nil {
			writeError(w, err.Error(), httpStatus(err))
			return
		}
		noPool, err := s.store.GetPool(ctx, market.NoPoolID)
		if err != nil {
			writeError(w, err.Error(), httpStatus(err))
			return
		}
		resp["yes_pool"] = yesPool
		resp["no_pool"] = noPool
		resp["yes_price"] = model.ToDecimal(yesPool.CurrentPrice)
		resp["no_price"] = model.ToDecimal(noPool.CurrentPrice)

		yesBp, noBp, err := model.OptimalLiquidityRatio(
			yesPool.Volume, noPool.Volume, market.TimeUntilEnd(s.now()))
		if err == nil {
			resp["suggested_liquidity_bp"] = map[string]uint16{"yes": yesBp, "no": noBp}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListMarkets handles GET /api/v1/markets, newest first.
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarkets(r.Context())
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets, "count": len(markets)})
}

// Quote handles GET /api/v1/markets/{id}/quote?outcome=YES&amount=...&side=buy.
// Pure read: quotes the swap output, fee, and price impact without touching
// any state, so UIs can preview trades.
func (s *Service) Quote(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "id")
	outcome := model.Outcome(r.URL.Query().Get("outcome"))
	if !outcome.Valid() {
		writeError(w, "outcome must be YES or NO", http.StatusBadRequest)
		return
	}
	amount, err := strconv.ParseUint(r.URL.Query().Get("amount"), 10, 64)
	if err != nil || amount == 0 {
		writeError(w, "amount must be a positive integer", http.StatusBadRequest)
		return
	}
	isBuy := r.URL.Query().Get("side") != "sell"

	pool, err := s.store.GetPoolByOutcome(r.Context(), marketID, outcome)
	if err != nil {
		writeError(w, "pool not found", httpStatus(err))
		return
	}

	output, fee, err := pool.SwapOutput(amount, isBuy)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	impact, err := pool.PriceImpact(amount, isBuy)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":     marketID,
		"outcome":       outcome,
		"amount_in":     amount,
		"amount_out":    output,
		"fee":           fee,
		"impact_bp":     impact,
		"current_price": model.ToDecimal(pool.CurrentPrice),
		"accepted":      impact <= s.params.MaxPriceImpactBp,
	})
}

type positionView struct {
	model.Position
	CurrentPrice  decimal.Decimal `json:"current_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
}

type liquidityView struct {
	model.LiquidityPosition
	BaseValue       uint64          `json:"base_value"`
	ShareValue      uint64          `json:"share_value"`
	ImpermanentLoss decimal.Decimal `json:"impermanent_loss"`
}

// GetPositions handles GET /api/v1/positions/{userID}: all share positions
// and liquidity positions for one owner, marked to the current pool prices.
func (s *Service) GetPositions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	ctx := r.Context()

	positions, err := s.store.ListPositionsByOwner(ctx, userID)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	views := make([]positionView, 0, len(positions))
	for _, pos := range positions {
		view := positionView{Position: pos}
		if pool, err := s.store.GetPoolByOutcome(ctx, pos.MarketID, pos.Outcome); err == nil {
			view.CurrentPrice = model.ToDecimal(pool.CurrentPrice)
			if u, err := pos.UnrealizedPnL(pool.CurrentPrice); err == nil {
				view.UnrealizedPnL = model.SignedToDecimal(u)
			}
			if t, err := pos.TotalPnL(pool.CurrentPrice); err == nil {
				view.TotalPnL = model.SignedToDecimal(t)
			}
		}
		views = append(views, view)
	}

	lps, err := s.store.ListLiquidityPositionsByOwner(ctx, userID)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	lpViews := make([]liquidityView, 0, len(lps))
	for _, lp := range lps {
		view := liquidityView{LiquidityPosition: lp}
		if pool, err := s.store.GetPool(ctx, lp.PoolID); err == nil {
			baseValue, shareValue, err := lp.CurrentValue(pool.BaseReserves, pool.ShareReserves, pool.LPTokenSupply)
			if err == nil {
				view.BaseValue = baseValue
				view.ShareValue = shareValue
				if il, err := lp.ImpermanentLoss(baseValue, shareValue, pool.CurrentPrice); err == nil {
					view.ImpermanentLoss = model.SignedToDecimal(il)
				}
			}
		}
		lpViews = append(lpViews, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"positions":           views,
		"liquidity_positions": lpViews,
	})
}

// GetUser handles GET /api/v1/users/{userID}: the aggregate rollup plus the
// derived net P&L.
func (s *Service) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, "user not found", httpStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":    user,
		"net_pnl": model.SignedToDecimal(user.NetPnL()),
	})
}
