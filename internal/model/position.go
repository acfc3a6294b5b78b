package model

import (
	"errors"

	"github.com/yllvar/pool-odds/internal/fixedpoint"
)

var ErrInsufficientShares = errors.New("model: sell exceeds held shares")

// Position is one trader's share ledger for one outcome of one market.
// AveragePrice is the 6-decimal weighted cost basis per share; it is
// recomputed on buys only. Sells remove cost basis proportionally and book
// the difference against proceeds as realized P&L.
//
// Invariant: Shares == 0 implies TotalInvested == 0.
type Position struct {
	Owner    string  `json:"owner" db:"owner"`
	MarketID string  `json:"market_id" db:"market_id"`
	Outcome  Outcome `json:"outcome" db:"outcome"`

	Shares        uint64 `json:"shares" db:"shares"`
	AveragePrice  uint64 `json:"average_price" db:"average_price"`
	TotalInvested uint64 `json:"total_invested" db:"total_invested"`
	RealizedPnL   int64  `json:"realized_pnl" db:"realized_pnl"`

	CreatedAt  int64 `json:"created_at" db:"created_at"`
	LastUpdate int64 `json:"last_update" db:"last_update"`
}

// NewPosition creates an empty position for an (owner, market, outcome) key.
func NewPosition(owner, marketID string, outcome Outcome, now int64) *Position {
	return &Position{
		Owner:     owner,
		MarketID:  marketID,
		Outcome:   outcome,
		CreatedAt: now,
	}
}

// ApplyTrade updates the ledger after a fill. A positive sharesDelta is a
// buy of that many shares for amount base tokens; a negative delta is a
// sell of -sharesDelta shares for amount proceeds. All-or-nothing: on error
// the position is unchanged.
func (pos *Position) ApplyTrade(sharesDelta int64, amount uint64, now int64) error {
	if sharesDelta >= 0 {
		newShares, err := fixedpoint.Add(pos.Shares, uint64(sharesDelta))
		if err != nil {
			return err
		}
		newInvested, err := fixedpoint.Add(pos.TotalInvested, amount)
		if err != nil {
			return err
		}
		if newShares > 0 {
			avg, err := fixedpoint.MulDiv(newInvested, fixedpoint.Scale, newShares)
			if err != nil {
				return err
			}
			pos.AveragePrice = avg
		}
		pos.Shares = newShares
		pos.TotalInvested = newInvested
	} else {
		sharesToSell := uint64(-sharesDelta)
		if sharesToSell > pos.Shares {
			return ErrInsufficientShares
		}

		costBasis, err := fixedpoint.MulDiv(sharesToSell, pos.AveragePrice, fixedpoint.Scale)
		if err != nil {
			return err
		}
		if sharesToSell == pos.Shares {
			// Final lot carries the full remaining cost basis, so closing a
			// position realizes exactly proceeds minus cost with no
			// truncation remainder left behind.
			costBasis = pos.TotalInvested
		}
		pnlDelta := int64(amount) - int64(costBasis)
		newPnL, err := fixedpoint.AddSigned(pos.RealizedPnL, pnlDelta)
		if err != nil {
			return err
		}
		newInvested, err := fixedpoint.Sub(pos.TotalInvested, costBasis)
		if err != nil {
			return err
		}

		pos.RealizedPnL = newPnL
		pos.Shares -= sharesToSell
		pos.TotalInvested = newInvested
	}

	pos.LastUpdate = now
	return nil
}

// UnrealizedPnL marks the open shares to currentPrice against the recorded
// cost basis. Zero for an empty position.
func (pos *Position) UnrealizedPnL(currentPrice uint64) (int64, error) {
	if pos.Shares == 0 {
		return 0, nil
	}
	currentValue, err := fixedpoint.MulDiv(pos.Shares, currentPrice, fixedpoint.Scale)
	if err != nil {
		return 0, err
	}
	return int64(currentValue) - int64(pos.TotalInvested), nil
}

// TotalPnL is realized plus unrealized P&L at currentPrice.
func (pos *Position) TotalPnL(currentPrice uint64) (int64, error) {
	unrealized, err := pos.UnrealizedPnL(currentPrice)
	if err != nil {
		return 0, err
	}
	return fixedpoint.AddSigned(pos.RealizedPnL, unrealized)
}
