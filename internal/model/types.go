// Package model holds the core domain entities of the prediction market:
// markets, their two constant-product pools, trader positions, liquidity
// positions, and per-user aggregates.
//
// All monetary values are u64 with 6 implied decimals; rates are basis
// points. Every state transition uses checked arithmetic from
// internal/fixedpoint and either commits fully or returns an error leaving
// the receiver untouched. Nothing here reads the wall clock: callers pass
// the current Unix timestamp explicitly so operations stay deterministic
// and reproducible from their recorded inputs.
package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Outcome is one of the two sides of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Valid reports whether o is one of the two defined outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// MarketStatus is the lifecycle state of a market. Resolved and Cancelled
// are terminal.
type MarketStatus string

const (
	StatusActive    MarketStatus = "active"
	StatusResolved  MarketStatus = "resolved"
	StatusCancelled MarketStatus = "cancelled"
)

// ResolutionSource selects how a market determines its winning outcome.
type ResolutionSource string

const (
	ResolutionOracle ResolutionSource = "oracle"
	ResolutionManual ResolutionSource = "manual"
)

// Category is the market topic bucket.
type Category string

const (
	CategoryCrypto   Category = "crypto"
	CategorySports   Category = "sports"
	CategoryPolitics Category = "politics"
	CategoryWeather  Category = "weather"
	CategoryOther    Category = "other"
)

// Valid reports whether c is a defined category.
func (c Category) Valid() bool {
	switch c {
	case CategoryCrypto, CategorySports, CategoryPolitics, CategoryWeather, CategoryOther:
		return true
	}
	return false
}

// ToDecimal renders a u64 6-decimal fixed-point amount as an exact decimal
// for JSON responses. Display only; the core never computes on decimals.
func ToDecimal(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -6)
}

// SignedToDecimal renders a signed 6-decimal fixed-point amount (P&L).
func SignedToDecimal(v int64) decimal.Decimal {
	return decimal.New(v, -6)
}
