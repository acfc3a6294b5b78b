package model

import "errors"

// MaxPriceAge is the oldest oracle publish time accepted at resolution,
// in seconds.
const MaxPriceAge int64 = 300

// Oracle verification levels. Only fully verified records resolve markets.
const (
	VerificationFull    = "full"
	VerificationPartial = "partial"
)

var (
	ErrMissingOracleAccount = errors.New("model: missing oracle account")
	ErrInvalidOracleAccount = errors.New("model: oracle account does not match market")
	ErrInvalidOracleData    = errors.New("model: invalid oracle data")
	ErrStalePriceData       = errors.New("model: stale oracle price data")
)

// OraclePrice is a price record from an external feed. The core validates
// freshness and verification level only; it never fetches or caches the
// record itself.
type OraclePrice struct {
	Account           string `json:"account"`
	Price             int64  `json:"price"`
	Confidence        uint64 `json:"confidence"`
	VerificationLevel string `json:"verification_level"`
	PublishTime       int64  `json:"publish_time"`
}

// Validate checks that the record is usable for resolution at the given
// time: positive price, full verification, tight confidence, and a publish
// time within MaxPriceAge seconds of now.
func (o OraclePrice) Validate(now int64) error {
	if o.Price <= 0 {
		return ErrInvalidOracleData
	}
	if o.VerificationLevel != VerificationFull {
		return ErrInvalidOracleData
	}
	// Confidence wider than 10% of the price means the feed is unusable.
	if o.Confidence >= uint64(o.Price)/10 {
		return ErrInvalidOracleData
	}
	if now-o.PublishTime > MaxPriceAge {
		return ErrStalePriceData
	}
	return nil
}
