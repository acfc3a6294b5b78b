package model

import (
	"errors"
	"unicode"

	"github.com/yllvar/pool-odds/internal/fixedpoint"
)

var (
	ErrInvalidTitle          = errors.New("model: title empty, too long, or non-printable")
	ErrInvalidDescription    = errors.New("model: description empty, too long, or non-printable")
	ErrInvalidCategory       = errors.New("model: unknown category")
	ErrInvalidEndTime        = errors.New("model: end time not in the future")
	ErrMissingOracleData     = errors.New("model: oracle resolution requires account and target price")
	ErrMarketNotActive       = errors.New("model: market not active")
	ErrMarketAlreadyResolved = errors.New("model: market already resolved")
	ErrCannotResolve         = errors.New("model: market cannot be resolved")
	ErrMissingOutcome        = errors.New("model: manual resolution requires an outcome")
	ErrPoolsAlreadyBound     = errors.New("model: pools already bound to market")
)

// OracleBinding names the price feed and target that resolve an
// oracle-sourced market.
type OracleBinding struct {
	Account     string `json:"account"`
	TargetPrice uint64 `json:"target_price"`
}

// ResolutionPolicy is the tagged variant for how a market resolves:
// Source == ResolutionOracle carries a non-nil Oracle binding, Source ==
// ResolutionManual carries none. NewMarket enforces the coupling.
type ResolutionPolicy struct {
	Source ResolutionSource `json:"source"`
	Oracle *OracleBinding   `json:"oracle,omitempty"`
}

// Market is a binary prediction market. It owns the identifiers of its two
// pools (bound once at pool creation) and the aggregate counters the core
// maintains across trades and liquidity events.
type Market struct {
	ID          string           `json:"id" db:"id"`
	Creator     string           `json:"creator" db:"creator"`
	Title       string           `json:"title" db:"title"`
	Description string           `json:"description" db:"description"`
	Category    Category         `json:"category" db:"category"`
	Status      MarketStatus     `json:"status" db:"status"`
	Resolution  ResolutionPolicy `json:"resolution"`

	CreatedAt  int64  `json:"created_at" db:"created_at"`
	EndTime    int64  `json:"end_time" db:"end_time"`
	ResolvedAt *int64 `json:"resolved_at,omitempty" db:"resolved_at"`

	WinningOutcome *Outcome `json:"winning_outcome,omitempty" db:"winning_outcome"`

	YesPoolID string `json:"yes_pool_id" db:"yes_pool_id"`
	NoPoolID  string `json:"no_pool_id" db:"no_pool_id"`

	FeeRateBp      uint16 `json:"fee_rate_bp" db:"fee_rate_bp"`
	BondAmount     uint64 `json:"bond_amount" db:"bond_amount"`
	TotalVolume    uint64 `json:"total_volume" db:"total_volume"`
	TotalLiquidity uint64 `json:"total_liquidity" db:"total_liquidity"`
	TraderCount    uint32 `json:"trader_count" db:"trader_count"`
	LPCount        uint32 `json:"lp_count" db:"lp_count"`
}

// MarketSpec carries the caller-supplied parameters for market creation.
type MarketSpec struct {
	Creator    string
	Title      string
	Description string
	Category   Category
	EndTime    int64
	Resolution ResolutionPolicy
	BondAmount uint64
}

// NewMarket validates a spec against the global parameters and returns the
// initialized market. The fee rate is inherited from the global default;
// pool identifiers stay empty until CreatePools binds them.
func NewMarket(id string, spec MarketSpec, params GlobalParams, now int64) (*Market, error) {
	if params.Paused {
		return nil, ErrProgramPaused
	}
	if err := validateText(spec.Title, MaxTitleLength); err != nil {
		return nil, ErrInvalidTitle
	}
	if err := validateText(spec.Description, MaxDescriptionLength); err != nil {
		return nil, ErrInvalidDescription
	}
	if !spec.Category.Valid() {
		return nil, ErrInvalidCategory
	}
	if spec.EndTime <= now {
		return nil, ErrInvalidEndTime
	}
	if err := params.ValidateDuration(spec.EndTime - now); err != nil {
		return nil, err
	}
	if err := params.ValidateBond(spec.BondAmount); err != nil {
		return nil, err
	}
	switch spec.Resolution.Source {
	case ResolutionOracle:
		if spec.Resolution.Oracle == nil || spec.Resolution.Oracle.Account == "" ||
			spec.Resolution.Oracle.TargetPrice == 0 {
			return nil, ErrMissingOracleData
		}
	case ResolutionManual:
		spec.Resolution.Oracle = nil
	default:
		return nil, ErrMissingOracleData
	}

	return &Market{
		ID:          id,
		Creator:     spec.Creator,
		Title:       spec.Title,
		Description: spec.Description,
		Category:    spec.Category,
		Status:      StatusActive,
		Resolution:  spec.Resolution,
		CreatedAt:   now,
		EndTime:     spec.EndTime,
		FeeRateBp:   params.DefaultMarketFeeBp,
		BondAmount:  spec.BondAmount,
	}, nil
}

func validateText(s string, max int) error {
	if len(s) == 0 || len(s) > max {
		return errors.New("bad length")
	}
	blank := true
	for _, r := range s {
		if r > unicode.MaxASCII || unicode.IsControl(r) {
			return errors.New("non-printable")
		}
		if !unicode.IsSpace(r) {
			blank = false
		}
	}
	if blank {
		return errors.New("blank")
	}
	return nil
}

// IsActive reports whether the market is in the Active state.
func (m *Market) IsActive() bool { return m.Status == StatusActive }

// IsResolved reports whether the market has reached the Resolved state.
func (m *Market) IsResolved() bool { return m.Status == StatusResolved }

// IsExpired reports whether trading time has run out.
func (m *Market) IsExpired(now int64) bool { return now >= m.EndTime }

// CanTrade reports whether trades are currently admissible.
func (m *Market) CanTrade(now int64) bool {
	return m.IsActive() && !m.IsExpired(now)
}

// CanResolve reports whether resolution is currently admissible: manual
// markets any time while active, oracle markets only after expiry.
func (m *Market) CanResolve(now int64) bool {
	return m.IsActive() && (m.IsExpired(now) || m.Resolution.Source == ResolutionManual)
}

// TimeUntilEnd returns the seconds remaining before expiry, floored at zero.
func (m *Market) TimeUntilEnd(now int64) int64 {
	if now >= m.EndTime {
		return 0
	}
	return m.EndTime - now
}

// BindPools records the Yes and No pool identifiers. The binding happens
// exactly once, at pool creation, and is immutable afterwards.
func (m *Market) BindPools(yesPoolID, noPoolID string) error {
	if m.YesPoolID != "" || m.NoPoolID != "" {
		return ErrPoolsAlreadyBound
	}
	m.YesPoolID = yesPoolID
	m.NoPoolID = noPoolID
	return nil
}

// Resolve transitions the market from Active to Resolved and freezes the
// winning outcome. Oracle markets require a validated price record from the
// bound feed; manual markets require an explicit outcome. A second call
// fails because CanResolve is false once the state is terminal.
func (m *Market) Resolve(now int64, oracle *OraclePrice, manual *Outcome) (Outcome, error) {
	if m.IsResolved() {
		return "", ErrMarketAlreadyResolved
	}
	if !m.CanResolve(now) {
		return "", ErrCannotResolve
	}

	var winner Outcome
	switch m.Resolution.Source {
	case ResolutionOracle:
		if oracle == nil {
			return "", ErrMissingOracleAccount
		}
		if oracle.Account != m.Resolution.Oracle.Account {
			return "", ErrInvalidOracleAccount
		}
		if err := oracle.Validate(now); err != nil {
			return "", err
		}
		if uint64(oracle.Price) >= m.Resolution.Oracle.TargetPrice {
			winner = OutcomeYes
		} else {
			winner = OutcomeNo
		}
	case ResolutionManual:
		if manual == nil || !manual.Valid() {
			return "", ErrMissingOutcome
		}
		winner = *manual
	}

	m.Status = StatusResolved
	m.WinningOutcome = &winner
	resolvedAt := now
	m.ResolvedAt = &resolvedAt
	return winner, nil
}

// AdjustFeeRate changes the market fee rate. Legal only while Active and
// within the protocol ceiling; pools created later inherit the new rate,
// existing pools keep theirs.
func (m *Market) AdjustFeeRate(rateBp uint16, params GlobalParams) error {
	if !m.IsActive() {
		return ErrMarketNotActive
	}
	if err := params.ValidateFeeRate(rateBp); err != nil {
		return err
	}
	m.FeeRateBp = rateBp
	return nil
}

// RecordVolume adds a trade's input amount to the market-wide volume.
func (m *Market) RecordVolume(amount uint64) error {
	v, err := fixedpoint.Add(m.TotalVolume, amount)
	if err != nil {
		return err
	}
	m.TotalVolume = v
	return nil
}

// RecordLiquidity adds a base-token deposit to the market-wide liquidity
// counter.
func (m *Market) RecordLiquidity(amount uint64) error {
	v, err := fixedpoint.Add(m.TotalLiquidity, amount)
	if err != nil {
		return err
	}
	m.TotalLiquidity = v
	return nil
}
