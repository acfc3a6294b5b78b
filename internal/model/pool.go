package model

import (
	"errors"
	"math/bits"

	"github.com/yllvar/pool-odds/internal/fixedpoint"
)

var (
	ErrInsufficientLiquidity       = errors.New("model: insufficient liquidity")
	ErrInsufficientLiquidityMinted = errors.New("model: deposit too small to mint liquidity")
	ErrInsufficientLPTokens        = errors.New("model: insufficient LP tokens")
	ErrInvalidLiquidityAmount      = errors.New("model: invalid liquidity amount")
	ErrInvalidPool                 = errors.New("model: pool does not belong to market/outcome")
)

// Pool is one constant-product market for a single outcome. Each market has
// exactly two, created together. CurrentPrice is always derived from the
// reserves — it is recomputed after every mutation, never stored
// independently.
type Pool struct {
	ID       string  `json:"id" db:"id"`
	MarketID string  `json:"market_id" db:"market_id"`
	Outcome  Outcome `json:"outcome" db:"outcome"`

	BaseReserves  uint64 `json:"base_reserves" db:"base_reserves"`
	ShareReserves uint64 `json:"share_reserves" db:"share_reserves"`
	LPTokenSupply uint64 `json:"lp_token_supply" db:"lp_token_supply"`

	CurrentPrice  uint64 `json:"current_price" db:"current_price"`
	FeeRateBp     uint16 `json:"fee_rate_bp" db:"fee_rate_bp"`
	Volume        uint64 `json:"volume" db:"volume"`
	FeesCollected uint64 `json:"fees_collected" db:"fees_collected"`
	LastUpdate    int64  `json:"last_update" db:"last_update"`
}

// NewPool creates an empty pool for one outcome of a market, inheriting the
// market's fee rate. Price starts at 1.0 until reserves exist.
func NewPool(id string, marketID string, outcome Outcome, feeRateBp uint16, now int64) *Pool {
	return &Pool{
		ID:           id,
		MarketID:     marketID,
		Outcome:      outcome,
		FeeRateBp:    feeRateBp,
		CurrentPrice: fixedpoint.Scale,
		LastUpdate:   now,
	}
}

// CalculatePrice derives the 6-decimal price from the reserves:
// base_reserves * 1e6 / share_reserves, or 1.0 when there are no shares.
func (p *Pool) CalculatePrice() (uint64, error) {
	if p.ShareReserves == 0 {
		return fixedpoint.Scale, nil
	}
	return fixedpoint.MulDiv(p.BaseReserves, fixedpoint.Scale, p.ShareReserves)
}

// SwapOutput quotes a constant-product swap. inputIsBase selects the
// direction: base→shares (buy) or shares→base (sell). The fee is taken
// from the input and retained in the pool, so the product of the reserves
// never decreases across a swap. A quote that truncates to zero output
// fails with ErrInsufficientLiquidity; committing it would take the input
// and hand back nothing.
//
// Returned amounts are a pure quote; ApplySwap commits them.
func (p *Pool) SwapOutput(inputAmount uint64, inputIsBase bool) (output, fee uint64, err error) {
	inputReserve, outputReserve := p.ShareReserves, p.BaseReserves
	if inputIsBase {
		inputReserve, outputReserve = p.BaseReserves, p.ShareReserves
	}
	if inputReserve == 0 || outputReserve == 0 {
		return 0, 0, ErrInsufficientLiquidity
	}

	fee, err = fixedpoint.Percentage(inputAmount, p.FeeRateBp)
	if err != nil {
		return 0, 0, err
	}
	inputAfterFee := inputAmount - fee

	// dy = y * dx / (x + dx), truncating.
	denom, err := fixedpoint.Add(inputReserve, inputAfterFee)
	if err != nil {
		return 0, 0, err
	}
	output, err = fixedpoint.MulDiv(outputReserve, inputAfterFee, denom)
	if err != nil {
		return 0, 0, err
	}
	if output == 0 {
		return 0, 0, ErrInsufficientLiquidity
	}
	return output, fee, nil
}

// ApplySwap commits a quoted swap: input is added to its reserve, output
// subtracted from the other, fee and volume accumulated, and the price
// recomputed. It must be called with the quote it was derived from and no
// intervening mutation of the pool; the engine serializes this.
func (p *Pool) ApplySwap(inputAmount, outputAmount, feeAmount uint64, inputIsBase bool, now int64) error {
	var newBase, newShare uint64
	var err error
	if inputIsBase {
		if newBase, err = fixedpoint.Add(p.BaseReserves, inputAmount); err != nil {
			return err
		}
		if newShare, err = fixedpoint.Sub(p.ShareReserves, outputAmount); err != nil {
			// A valid quote never exceeds the reserve; this guards stale quotes.
			return ErrInsufficientLiquidity
		}
	} else {
		if newShare, err = fixedpoint.Add(p.ShareReserves, inputAmount); err != nil {
			return err
		}
		if newBase, err = fixedpoint.Sub(p.BaseReserves, outputAmount); err != nil {
			return ErrInsufficientLiquidity
		}
	}

	fees, err := fixedpoint.Add(p.FeesCollected, feeAmount)
	if err != nil {
		return err
	}
	volume, err := fixedpoint.Add(p.Volume, inputAmount)
	if err != nil {
		return err
	}

	p.BaseReserves = newBase
	p.ShareReserves = newShare
	p.FeesCollected = fees
	p.Volume = volume

	price, err := p.CalculatePrice()
	if err != nil {
		return err
	}
	p.CurrentPrice = price
	p.LastUpdate = now
	return nil
}

// LPTokensForDeposit quotes the LP tokens minted for a deposit. The first
// deposit mints the integer geometric mean of the two amounts; later
// deposits mint the minimum of the two proportional ratios, so the
// unbalanced remainder of a lopsided deposit accrues to existing LPs.
func (p *Pool) LPTokensForDeposit(baseDeposit, shareDeposit uint64) (uint64, error) {
	if p.LPTokenSupply == 0 {
		hi, lo := bits.Mul64(baseDeposit, shareDeposit)
		minted := fixedpoint.SqrtWide(hi, lo)
		if minted == 0 {
			return 0, ErrInsufficientLiquidityMinted
		}
		return minted, nil
	}

	baseRatio, err := fixedpoint.MulDiv(baseDeposit, p.LPTokenSupply, p.BaseReserves)
	if err != nil {
		return 0, err
	}
	shareRatio, err := fixedpoint.MulDiv(shareDeposit, p.LPTokenSupply, p.ShareReserves)
	if err != nil {
		return 0, err
	}
	if shareRatio < baseRatio {
		return shareRatio, nil
	}
	return baseRatio, nil
}

// ApplyDeposit commits an add-liquidity operation: deposits join the
// reserves, minted tokens join the supply, and the price is recomputed.
func (p *Pool) ApplyDeposit(baseDeposit, shareDeposit, minted uint64, now int64) error {
	newBase, err := fixedpoint.Add(p.BaseReserves, baseDeposit)
	if err != nil {
		return err
	}
	newShare, err := fixedpoint.Add(p.ShareReserves, shareDeposit)
	if err != nil {
		return err
	}
	newSupply, err := fixedpoint.Add(p.LPTokenSupply, minted)
	if err != nil {
		return err
	}

	p.BaseReserves = newBase
	p.ShareReserves = newShare
	p.LPTokenSupply = newSupply

	price, err := p.CalculatePrice()
	if err != nil {
		return err
	}
	p.CurrentPrice = price
	p.LastUpdate = now
	return nil
}

// Withdraw burns LP tokens and pays out the proportional share of each
// reserve: reserve * lp / supply, truncating.
func (p *Pool) Withdraw(lpTokens uint64, now int64) (baseOut, shareOut uint64, err error) {
	if lpTokens == 0 {
		return 0, 0, ErrInvalidLiquidityAmount
	}
	if lpTokens > p.LPTokenSupply {
		return 0, 0, ErrInsufficientLPTokens
	}

	baseOut, err = fixedpoint.MulDiv(p.BaseReserves, lpTokens, p.LPTokenSupply)
	if err != nil {
		return 0, 0, err
	}
	shareOut, err = fixedpoint.MulDiv(p.ShareReserves, lpTokens, p.LPTokenSupply)
	if err != nil {
		return 0, 0, err
	}

	p.BaseReserves -= baseOut
	p.ShareReserves -= shareOut
	p.LPTokenSupply -= lpTokens

	price, err := p.CalculatePrice()
	if err != nil {
		return 0, 0, err
	}
	p.CurrentPrice = price
	p.LastUpdate = now
	return baseOut, shareOut, nil
}

// PriceImpact estimates the basis-point impact of trading tradeAmount
// against the input-side reserve, capped at 100%.
func (p *Pool) PriceImpact(tradeAmount uint64, inputIsBase bool) (uint16, error) {
	reserve := p.ShareReserves
	if inputIsBase {
		reserve = p.BaseReserves
	}
	return fixedpoint.PriceImpact(reserve, tradeAmount)
}

// OptimalLiquidityRatio suggests a Yes/No liquidity split in basis points
// from traded volumes, blended toward 50/50 in proportion to the remaining
// time (capped at one day). Reporting helper; never used in settlement.
func OptimalLiquidityRatio(yesVolume, noVolume uint64, timeToExpiry int64) (yesBp, noBp uint16, err error) {
	total, err := fixedpoint.Add(yesVolume, noVolume)
	if err != nil {
		return 0, 0, err
	}
	if total == 0 {
		return 5000, 5000, nil
	}

	ratio, err := fixedpoint.MulDiv(yesVolume, fixedpoint.BasisPoints, total)
	if err != nil {
		return 0, 0, err
	}
	yes := int64(ratio)

	// Blend toward parity over the final day.
	factor := timeToExpiry
	if factor > 86400 {
		factor = 86400
	}
	if factor < 0 {
		factor = 0
	}
	yes += (5000 - yes) * factor / 86400

	return uint16(yes), uint16(10_000 - yes), nil
}
