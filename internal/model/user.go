package model

import "github.com/yllvar/pool-odds/internal/fixedpoint"

// User is the aggregate rollup for one trading identity. Pure accumulated
// counters derived from the other ledgers; RealizedPnL may be negative,
// everything else is monotonic.
type User struct {
	Authority string `json:"authority" db:"authority"`

	MarketsCreated  uint32 `json:"markets_created" db:"markets_created"`
	TotalTrades     uint64 `json:"total_trades" db:"total_trades"`
	TotalVolume     uint64 `json:"total_volume" db:"total_volume"`
	TotalFeesPaid   uint64 `json:"total_fees_paid" db:"total_fees_paid"`
	TotalFeesEarned uint64 `json:"total_fees_earned" db:"total_fees_earned"`
	TotalRealizedPnL int64 `json:"total_realized_pnl" db:"total_realized_pnl"`

	CreatedAt    int64 `json:"created_at" db:"created_at"`
	LastActivity int64 `json:"last_activity" db:"last_activity"`
}

// NewUser creates an empty rollup for an authority.
func NewUser(authority string, now int64) *User {
	return &User{Authority: authority, CreatedAt: now, LastActivity: now}
}

// RecordTrade accumulates one trade's volume and fees paid.
func (u *User) RecordTrade(volume, fees uint64, now int64) error {
	trades, err := fixedpoint.Add(u.TotalTrades, 1)
	if err != nil {
		return err
	}
	vol, err := fixedpoint.Add(u.TotalVolume, volume)
	if err != nil {
		return err
	}
	paid, err := fixedpoint.Add(u.TotalFeesPaid, fees)
	if err != nil {
		return err
	}
	u.TotalTrades = trades
	u.TotalVolume = vol
	u.TotalFeesPaid = paid
	u.LastActivity = now
	return nil
}

// RecordRealizedPnL folds a position's realized P&L delta into the rollup.
func (u *User) RecordRealizedPnL(delta int64, now int64) error {
	pnl, err := fixedpoint.AddSigned(u.TotalRealizedPnL, delta)
	if err != nil {
		return err
	}
	u.TotalRealizedPnL = pnl
	u.LastActivity = now
	return nil
}

// RecordMarketCreated bumps the creation counter.
func (u *User) RecordMarketCreated(now int64) error {
	u.MarketsCreated++
	u.LastActivity = now
	return nil
}

// RecordFeesEarned accumulates LP fee income.
func (u *User) RecordFeesEarned(fees uint64, now int64) error {
	earned, err := fixedpoint.Add(u.TotalFeesEarned, fees)
	if err != nil {
		return err
	}
	u.TotalFeesEarned = earned
	u.LastActivity = now
	return nil
}

// CanCreateMarket reports whether the creator is under the per-creator cap.
func (u *User) CanCreateMarket(maxMarkets uint32) bool {
	return u.MarketsCreated < maxMarkets
}

// NetPnL is realized P&L plus fees earned minus fees paid, saturating at
// the int64 bounds rather than failing — it is a display statistic.
func (u *User) NetPnL() int64 {
	net := u.TotalRealizedPnL
	if v, err := fixedpoint.AddSigned(net, clampToInt64(u.TotalFeesEarned)); err == nil {
		net = v
	} else {
		net = maxInt64
	}
	if v, err := fixedpoint.AddSigned(net, -clampToInt64(u.TotalFeesPaid)); err == nil {
		net = v
	} else {
		net = minInt64
	}
	return net
}

const (
	maxInt64 = int64(^uint64(0) >> 1)
	minInt64 = -maxInt64 - 1
)

func clampToInt64(v uint64) int64 {
	if v > uint64(maxInt64) {
		return maxInt64
	}
	return int64(v)
}
