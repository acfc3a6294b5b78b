package model

import "github.com/yllvar/pool-odds/internal/fixedpoint"

// LiquidityPosition is one provider's claim on one pool. The first-deposit
// amounts are snapshotted as the baseline for the impermanent-loss
// estimate.
type LiquidityPosition struct {
	Owner  string `json:"owner" db:"owner"`
	PoolID string `json:"pool_id" db:"pool_id"`

	LPTokens            uint64 `json:"lp_tokens" db:"lp_tokens"`
	InitialBaseDeposit  uint64 `json:"initial_base_deposit" db:"initial_base_deposit"`
	InitialShareDeposit uint64 `json:"initial_share_deposit" db:"initial_share_deposit"`
	FeesEarned          uint64 `json:"fees_earned" db:"fees_earned"`

	CreatedAt  int64 `json:"created_at" db:"created_at"`
	LastUpdate int64 `json:"last_update" db:"last_update"`
}

// NewLiquidityPosition creates an empty claim for an (owner, pool) key.
func NewLiquidityPosition(owner, poolID string, now int64) *LiquidityPosition {
	return &LiquidityPosition{
		Owner:     owner,
		PoolID:    poolID,
		CreatedAt: now,
	}
}

// Deposit credits freshly minted LP tokens. The first deposit records the
// amounts as the hold baseline.
func (lp *LiquidityPosition) Deposit(baseDeposit, shareDeposit, minted uint64, now int64) error {
	tokens, err := fixedpoint.Add(lp.LPTokens, minted)
	if err != nil {
		return err
	}
	if lp.InitialBaseDeposit == 0 && lp.InitialShareDeposit == 0 {
		lp.InitialBaseDeposit = baseDeposit
		lp.InitialShareDeposit = shareDeposit
	}
	lp.LPTokens = tokens
	lp.LastUpdate = now
	return nil
}

// Burn removes LP tokens on withdrawal, failing if the position holds
// fewer than requested.
func (lp *LiquidityPosition) Burn(tokens uint64, now int64) error {
	if tokens > lp.LPTokens {
		return ErrInsufficientLPTokens
	}
	lp.LPTokens -= tokens
	lp.LastUpdate = now
	return nil
}

// CreditFees records fee income attributed to this provider.
func (lp *LiquidityPosition) CreditFees(fees uint64, now int64) error {
	total, err := fixedpoint.Add(lp.FeesEarned, fees)
	if err != nil {
		return err
	}
	lp.FeesEarned = total
	lp.LastUpdate = now
	return nil
}

// CurrentValue returns the proportional claim on each reserve:
// reserve * lp_tokens / lp_supply per side, (0,0) when either is zero.
func (lp *LiquidityPosition) CurrentValue(poolBaseReserves, poolShareReserves, poolLPSupply uint64) (baseValue, shareValue uint64, err error) {
	if poolLPSupply == 0 || lp.LPTokens == 0 {
		return 0, 0, nil
	}
	baseValue, err = fixedpoint.MulDiv(poolBaseReserves, lp.LPTokens, poolLPSupply)
	if err != nil {
		return 0, 0, err
	}
	shareValue, err = fixedpoint.MulDiv(poolShareReserves, lp.LPTokens, poolLPSupply)
	if err != nil {
		return 0, 0, err
	}
	return baseValue, shareValue, nil
}

// ImpermanentLoss estimates the signed difference between the redeemable
// LP value and a hold baseline projected from the initial deposit ratio at
// currentPrice. Negative means the pool position is worth less than
// holding. Reporting estimate only, never used in settlement.
func (lp *LiquidityPosition) ImpermanentLoss(currentBaseValue, currentShareValue, currentPrice uint64) (int64, error) {
	initialPrice := fixedpoint.Scale
	if lp.InitialShareDeposit > 0 {
		p, err := fixedpoint.MulDiv(lp.InitialBaseDeposit, fixedpoint.Scale, lp.InitialShareDeposit)
		if err != nil {
			return 0, err
		}
		initialPrice = p
	}

	priceRatio, err := fixedpoint.MulDiv(currentPrice, fixedpoint.Scale, initialPrice)
	if err != nil {
		return 0, err
	}

	// Hold value: the better-performing side of the initial deposit at the
	// current price.
	var holdValue uint64
	if priceRatio >= fixedpoint.Scale {
		holdValue, err = fixedpoint.MulDiv(lp.InitialBaseDeposit, priceRatio, fixedpoint.Scale)
	} else {
		holdValue, err = fixedpoint.MulDiv(lp.InitialShareDeposit, currentPrice, fixedpoint.Scale)
	}
	if err != nil {
		return 0, err
	}

	shareInBase, err := fixedpoint.MulDiv(currentShareValue, currentPrice, fixedpoint.Scale)
	if err != nil {
		return 0, err
	}
	lpValue, err := fixedpoint.Add(currentBaseValue, shareInBase)
	if err != nil {
		return 0, err
	}

	return int64(lpValue) - int64(holdValue), nil
}
