package engine

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yllvar/pool-odds/internal/metrics"
	"github.com/yllvar/pool-odds/internal/model"
	"github.com/yllvar/pool-odds/internal/store"
)

type tradeRequest struct {
	UserID       string `json:"user_id"`
	MarketID     string `json:"market_id"`
	Outcome      string `json:"outcome"`
	AmountIn     uint64 `json:"amount_in"`
	MinAmountOut uint64 `json:"min_amount_out"`
	IsBuy        bool   `json:"is_buy"`
}

type tradeResponse struct {
	TradeID   string          `json:"trade_id"`
	MarketID  string          `json:"market_id"`
	Outcome   model.Outcome   `json:"outcome"`
	Side      string          `json:"side"`
	AmountIn  uint64          `json:"amount_in"`
	AmountOut uint64          `json:"amount_out"`
	Fee       uint64          `json:"fee"`
	ImpactBp  uint16          `json:"impact_bp"`
	NewPrice  uint64          `json:"new_price"`
	Position  *model.Position `json:"position"`
}

// ExecuteTrade handles POST /api/v1/trade. Quote, admission control, and
// commit run under the service lock so the applied amounts are exactly the
// quoted ones. A buy spends AmountIn base tokens for outcome shares; a sell
// spends AmountIn shares for base proceeds. MinAmountOut is the caller's
// slippage floor on the output.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req tradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	outcome := model.Outcome(req.Outcome)
	if req.UserID == "" || req.MarketID == "" || !outcome.Valid() || req.AmountIn == 0 {
		writeError(w, "user_id, market_id, outcome, and amount_in are required", http.StatusBadRequest)
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
		metrics.TradeRejections.WithLabelValues("market_closed").Inc()
		writeError(w, model.ErrMarketNotActive.Error(), httpStatus(model.ErrMarketNotActive))
		return
	}

	pool, err := s.store.GetPoolByOutcome(ctx, market.ID, outcome)
	if err != nil {
		writeError(w, "pool not found", httpStatus(err))
		return
	}

	// Quote.
	output, fee, err := pool.SwapOutput(req.AmountIn, req.IsBuy)
	if err != nil {
		metrics.TradeRejections.WithLabelValues("quote_failed").Inc()
		writeError(w, err.Error(), httpStatus(err))
		return
	}

	// Admission control: slippage floor then impact ceiling.
	if output < req.MinAmountOut {
		metrics.TradeRejections.WithLabelValues("slippage").Inc()
		writeError(w, ErrSlippageExceeded.Error(), httpStatus(ErrSlippageExceeded))
		return
	}
	impact, err := pool.PriceImpact(req.AmountIn, req.IsBuy)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	if impact > s.params.MaxPriceImpactBp {
		metrics.TradeRejections.WithLabelValues("price_impact").Inc()
		writeError(w, ErrPriceImpactTooHigh.Error(), httpStatus(ErrPriceImpactTooHigh))
		return
	}

	// Commit the quote to the pool.
	if err := pool.ApplySwap(req.AmountIn, output, fee, req.IsBuy, now); err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}

	// Ledger: position, user rollup, market counters.
	pos, err := s.store.GetPosition(ctx, req.UserID, market.ID, outcome)
	newPosition := false
	if err != nil {
		if !isNotFound(err) {
			writeError(w, err.Error(), httpStatus(err))
			return
		}
		pos = model.NewPosition(req.UserID, market.ID, outcome, now)
		newPosition = true
	}

	sharesDelta := int64(output)
	tradeValue := req.AmountIn
	if !req.IsBuy {
		sharesDelta = -int64(req.AmountIn)
		tradeValue = output
	}
	pnlBefore := pos.RealizedPnL
	if err := pos.ApplyTrade(sharesDelta, tradeValue, now); err != nil {
		metrics.TradeRejections.WithLabelValues("ledger").Inc()
		writeError(w, err.Error(), httpStatus(err))
		return
	}

	user, err := s.getOrCreateUser(ctx, req.UserID, now)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	if err := user.RecordTrade(req.AmountIn, fee, now); err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	if delta := pos.RealizedPnL - pnlBefore; delta != 0 {
		if err := user.RecordRealizedPnL(delta, now); err != nil {
			writeError(w, err.Error(), httpStatus(err))
			return
		}
	}

	if err := market.RecordVolume(req.AmountIn); err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	if newPosition {
		market.TraderCount++
	}

	// Persist. Pool first: it is the state trades quote against.
	if err := s.store.UpdatePool(ctx, pool); err != nil {
		slog.Error("failed to persist pool", "error", err, "pool_id", pool.ID)
		writeError(w, "failed to execute trade", http.StatusInternalServerError)
		return
	}
	if err := s.store.PutPosition(ctx, pos); err != nil {
		slog.Error("failed to persist position", "error", err, "owner", pos.Owner)
		writeError(w, "failed to execute trade", http.StatusInternalServerError)
		return
	}
	if err := s.store.PutUser(ctx, user); err != nil {
		slog.Error("failed to persist user rollup", "error", err, "authority", user.Authority)
	}
	if err := s.store.UpdateMarket(ctx, market); err != nil {
		slog.Error("failed to persist market counters", "error", err, "market_id", market.ID)
	}

	side := "sell"
	if req.IsBuy {
		side = "buy"
	}
	metrics.TradesTotal.WithLabelValues(string(outcome), side).Inc()
	metrics.TradeLatency.WithLabelValues(string(outcome)).Observe(time.Since(start).Seconds())

	tradeID := uuid.New().String()
	slog.Info("trade executed",
		"trade_id", tradeID,
		"market_id", market.ID,
		"user_id", req.UserID,
		"outcome", outcome,
		"side", side,
		"amount_in", req.AmountIn,
		"amount_out", output,
		"fee", fee,
		"impact_bp", impact,
		"price", pool.CurrentPrice)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "price_update",
			MarketID: market.ID,
			PoolID:   pool.ID,
			Outcome:  string(outcome),
			Price:    model.ToDecimal(pool.CurrentPrice),
			Side:     side,
			Amount:   model.ToDecimal(req.AmountIn),
		})
	}

	writeJSON(w, http.StatusOK, tradeResponse{
		TradeID:   tradeID,
		MarketID:  market.ID,
		Outcome:   outcome,
		Side:      side,
		AmountIn:  req.AmountIn,
		AmountOut: output,
		Fee:       fee,
		ImpactBp:  impact,
		NewPrice:  pool.CurrentPrice,
		Position:  pos,
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
