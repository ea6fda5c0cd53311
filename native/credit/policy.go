package credit

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// ErrAmountOverflow marks amounts that do not fit the 256-bit value domain.
var ErrAmountOverflow = errors.New("credit: amount exceeds 256-bit range")

// Policy prices and sizes credit from a reputation score and a trust score.
// It holds no state.
type Policy struct {
	params Params
}

// NewPolicy constructs a policy; unset parameters take their defaults.
func NewPolicy(params Params) *Policy {
	p := params.Clone()
	p.EnsureDefaults()
	return &Policy{params: p}
}

// Params returns a copy of the active parameters.
func (p *Policy) Params() Params { return p.params.Clone() }

// BaseRateBps is the rate charged to accounts without a reputation record.
func (p *Policy) BaseRateBps() uint64 { return p.params.BaseRateBps }

// InterestRateBps selects the bracket rate for score, subtracts the trust
// discount and floors the result at the minimum rate.
func (p *Policy) InterestRateBps(score, trust uint64) uint64 {
	rate := p.params.BaseRateBps
	for _, bracket := range p.params.Brackets {
		if score >= bracket.MinScore {
			rate = bracket.RateBps
			break
		}
	}
	discount := (trust / p.params.TrustDiscountStep) * p.params.TrustDiscountPerStepBps
	if discount > p.params.MaxTrustDiscountBps {
		discount = p.params.MaxTrustDiscountBps
	}
	if discount >= rate || rate-discount < p.params.MinRateBps {
		return p.params.MinRateBps
	}
	return rate - discount
}

// BorrowingLimit scales the score-based limit by the trust multiplier
// (percent, capped) and caps the result at the protocol maximum.
func (p *Policy) BorrowingLimit(score, trust uint64) *big.Int {
	base := new(big.Int).Mul(new(big.Int).SetUint64(score), p.params.LimitPerPoint)
	multiplier := percent.Uint64() + trust/p.params.TrustMultiplierDiv
	if multiplier > p.params.MaxMultiplierPct {
		multiplier = p.params.MaxMultiplierPct
	}
	limit := base.Mul(base, new(big.Int).SetUint64(multiplier))
	limit.Quo(limit, percent)
	if limit.Cmp(p.params.MaxBorrowLimit) > 0 {
		limit.Set(p.params.MaxBorrowLimit)
	}
	return limit
}

// TotalOwed returns principal plus simple interest accrued over the full
// duration: principal + principal*rate*duration / (SecondsPerYear*10000),
// truncated.
func TotalOwed(principal *big.Int, rateBps uint64, durationSeconds uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 {
		return big.NewInt(0)
	}
	interest := new(big.Int).Mul(principal, new(big.Int).SetUint64(rateBps))
	interest.Mul(interest, new(big.Int).SetUint64(durationSeconds))
	denominator := new(big.Int).Mul(big.NewInt(SecondsPerYear), basisPoints)
	interest.Quo(interest, denominator)
	return interest.Add(interest, principal)
}

// CheckAmount verifies that amount is non-negative and fits 256 bits.
func CheckAmount(amount *big.Int) error {
	if amount == nil {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrAmountOverflow
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrAmountOverflow
	}
	return nil
}
