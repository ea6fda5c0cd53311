package credit

import (
	"errors"
	"math/big"
)

const (
	// SecondsPerDay is the length of a loan day.
	SecondsPerDay = 86_400
	// SecondsPerYear is the day-count basis for simple interest (365 days).
	SecondsPerYear = 365 * SecondsPerDay
)

var (
	// Unit is one whole unit of value in base units (10^18).
	Unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	basisPoints = big.NewInt(10_000)
	percent     = big.NewInt(100)
)

// RateBracket assigns a base rate to scores at or above MinScore.
type RateBracket struct {
	MinScore uint64 `toml:"MinScore"`
	RateBps  uint64 `toml:"RateBps"`
}

// Params holds the credit pricing and sizing constants.
type Params struct {
	// Brackets are evaluated in order; the first match wins. Scores below
	// every bracket pay BaseRateBps.
	Brackets    []RateBracket `toml:"Brackets"`
	BaseRateBps uint64        `toml:"BaseRateBps"`
	MinRateBps  uint64        `toml:"MinRateBps"`

	TrustDiscountStep       uint64 `toml:"TrustDiscountStep"`
	TrustDiscountPerStepBps uint64 `toml:"TrustDiscountPerStepBps"`
	MaxTrustDiscountBps     uint64 `toml:"MaxTrustDiscountBps"`

	LimitPerPoint      *big.Int `toml:"LimitPerPointWei"`
	TrustMultiplierDiv uint64   `toml:"TrustMultiplierDivisor"`
	MaxMultiplierPct   uint64   `toml:"MaxMultiplierPct"`
	MaxBorrowLimit     *big.Int `toml:"MaxBorrowLimitWei"`
}

// DefaultParams returns the reference pricing table.
func DefaultParams() Params {
	return Params{
		Brackets: []RateBracket{
			{MinScore: 800, RateBps: 300},
			{MinScore: 500, RateBps: 500},
			{MinScore: 200, RateBps: 800},
		},
		BaseRateBps:             1000,
		MinRateBps:              300,
		TrustDiscountStep:       100,
		TrustDiscountPerStepBps: 20,
		MaxTrustDiscountBps:     200,
		LimitPerPoint:           new(big.Int).Div(Unit, big.NewInt(1000)),
		TrustMultiplierDiv:      10,
		MaxMultiplierPct:        200,
		MaxBorrowLimit:          new(big.Int).Mul(big.NewInt(10), Unit),
	}
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := p
	clone.Brackets = append([]RateBracket(nil), p.Brackets...)
	if p.LimitPerPoint != nil {
		clone.LimitPerPoint = new(big.Int).Set(p.LimitPerPoint)
	}
	if p.MaxBorrowLimit != nil {
		clone.MaxBorrowLimit = new(big.Int).Set(p.MaxBorrowLimit)
	}
	return clone
}

// EnsureDefaults fills unset fields from DefaultParams.
func (p *Params) EnsureDefaults() {
	if p == nil {
		return
	}
	defaults := DefaultParams()
	if len(p.Brackets) == 0 {
		p.Brackets = defaults.Brackets
	}
	if p.BaseRateBps == 0 {
		p.BaseRateBps = defaults.BaseRateBps
	}
	if p.MinRateBps == 0 {
		p.MinRateBps = defaults.MinRateBps
	}
	if p.TrustDiscountStep == 0 {
		p.TrustDiscountStep = defaults.TrustDiscountStep
	}
	if p.TrustDiscountPerStepBps == 0 {
		p.TrustDiscountPerStepBps = defaults.TrustDiscountPerStepBps
	}
	if p.MaxTrustDiscountBps == 0 {
		p.MaxTrustDiscountBps = defaults.MaxTrustDiscountBps
	}
	if p.LimitPerPoint == nil || p.LimitPerPoint.Sign() == 0 {
		p.LimitPerPoint = defaults.LimitPerPoint
	}
	if p.TrustMultiplierDiv == 0 {
		p.TrustMultiplierDiv = defaults.TrustMultiplierDiv
	}
	if p.MaxMultiplierPct == 0 {
		p.MaxMultiplierPct = defaults.MaxMultiplierPct
	}
	if p.MaxBorrowLimit == nil || p.MaxBorrowLimit.Sign() == 0 {
		p.MaxBorrowLimit = defaults.MaxBorrowLimit
	}
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	if p.MinRateBps > p.BaseRateBps {
		return errors.New("credit: min rate exceeds base rate")
	}
	for i, b := range p.Brackets {
		if b.RateBps > basisPoints.Uint64() {
			return errors.New("credit: bracket rate exceeds 100%")
		}
		if i > 0 && b.MinScore >= p.Brackets[i-1].MinScore {
			return errors.New("credit: brackets must be ordered by descending score")
		}
	}
	if p.TrustDiscountStep == 0 || p.TrustMultiplierDiv == 0 {
		return errors.New("credit: divisors must be positive")
	}
	if p.MaxMultiplierPct < percent.Uint64() {
		return errors.New("credit: max multiplier below 100%")
	}
	if p.LimitPerPoint == nil || p.LimitPerPoint.Sign() <= 0 {
		return errors.New("credit: limit per point must be positive")
	}
	if p.MaxBorrowLimit == nil || p.MaxBorrowLimit.Sign() <= 0 {
		return errors.New("credit: max borrow limit must be positive")
	}
	return nil
}
