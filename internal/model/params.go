package model

import "errors"

// Protocol defaults. GlobalParams is owned by the operator configuration
// outside the core; these seed it when no overrides are supplied.
const (
	DefaultFeeRateBp      uint16 = 30   // 0.3%
	DefaultProtocolFeeBp  uint16 = 10   // 0.1%
	MaxFeeRateBp          uint16 = 1000 // 10%
	DefaultMaxImpactBp    uint16 = 1000 // 10% price-impact ceiling
	MinMarketDuration     int64  = 3600
	MaxMarketDuration     int64  = 31_536_000
	DefaultMinBond        uint64 = 100_000_000
	DefaultMaxPerCreator  uint32 = 100
	MaxTitleLength               = 64
	MaxDescriptionLength         = 128
)

var (
	ErrProgramPaused   = errors.New("model: program is paused")
	ErrInvalidFeeRate  = errors.New("model: fee rate out of bounds")
	ErrInvalidDuration = errors.New("model: market duration out of bounds")
	ErrBondTooSmall    = errors.New("model: bond below minimum")
	ErrTooManyMarkets  = errors.New("model: creator market limit reached")
)

// GlobalParams is the protocol configuration the core validates against.
// It is read-only to the core and passed explicitly per call — never cached
// across operations.
type GlobalParams struct {
	ProtocolFeeRateBp    uint16 `json:"protocol_fee_rate_bp"`
	DefaultMarketFeeBp   uint16 `json:"default_market_fee_bp"`
	MinMarketDuration    int64  `json:"min_market_duration"`
	MaxMarketDuration    int64  `json:"max_market_duration"`
	MinBondAmount        uint64 `json:"min_bond_amount"`
	MaxMarketsPerCreator uint32 `json:"max_markets_per_creator"`
	MaxPriceImpactBp     uint16 `json:"max_price_impact_bp"`
	Paused               bool   `json:"paused"`
}

// DefaultParams returns the protocol defaults.
func DefaultParams() GlobalParams {
	return GlobalParams{
		ProtocolFeeRateBp:    DefaultProtocolFeeBp,
		DefaultMarketFeeBp:   DefaultFeeRateBp,
		MinMarketDuration:    MinMarketDuration,
		MaxMarketDuration:    MaxMarketDuration,
		MinBondAmount:        DefaultMinBond,
		MaxMarketsPerCreator: DefaultMaxPerCreator,
		MaxPriceImpactBp:     DefaultMaxImpactBp,
	}
}

// ValidateDuration checks a proposed market duration against the bounds.
func (p GlobalParams) ValidateDuration(duration int64) error {
	if duration < p.MinMarketDuration || duration > p.MaxMarketDuration {
		return ErrInvalidDuration
	}
	return nil
}

// ValidateBond checks a creator bond against the minimum.
func (p GlobalParams) ValidateBond(amount uint64) error {
	if amount < p.MinBondAmount {
		return ErrBondTooSmall
	}
	return nil
}

// ValidateFeeRate checks a market fee rate against the protocol ceiling.
func (p GlobalParams) ValidateFeeRate(rateBp uint16) error {
	if rateBp > MaxFeeRateBp {
		return ErrInvalidFeeRate
	}
	return nil
}
