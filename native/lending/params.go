package lending

import (
	"errors"
	"math/big"

	nativecommon "trustlend/native/common"
	"trustlend/native/credit"
)

// Params captures the loan book's bounds and reputation effects.
type Params struct {
	MinLoan            *big.Int `toml:"MinLoanWei"`
	MaxLoan            *big.Int `toml:"MaxLoanWei"`
	MinDurationDays    uint64   `toml:"MinDurationDays"`
	MaxDurationDays    uint64   `toml:"MaxDurationDays"`
	GracePeriodSeconds uint64   `toml:"GracePeriodSeconds"`

	ConservativeBonus int64 `toml:"ConservativeBonus"`
	EarlyRepayBonus   int64 `toml:"EarlyRepayBonus"`
	OnTimeRepayBonus  int64 `toml:"OnTimeRepayBonus"`
	DefaultPenalty    int64 `toml:"DefaultPenalty"`

	BorrowQuota nativecommon.Quota `toml:"BorrowQuota"`
}

// DefaultParams returns the reference loan bounds.
func DefaultParams() Params {
	return Params{
		MinLoan:            new(big.Int).Div(credit.Unit, big.NewInt(100)),
		MaxLoan:            new(big.Int).Mul(credit.Unit, big.NewInt(10)),
		MinDurationDays:    7,
		MaxDurationDays:    365,
		GracePeriodSeconds: 7 * credit.SecondsPerDay,
		ConservativeBonus:  5,
		EarlyRepayBonus:    50,
		OnTimeRepayBonus:   30,
		DefaultPenalty:     200,
	}
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := p
	if p.MinLoan != nil {
		clone.MinLoan = new(big.Int).Set(p.MinLoan)
	}
	if p.MaxLoan != nil {
		clone.MaxLoan = new(big.Int).Set(p.MaxLoan)
	}
	return clone
}

// EnsureDefaults fills unset bounds from DefaultParams. Bonuses are left as
// configured so they can be disabled explicitly.
func (p *Params) EnsureDefaults() {
	if p == nil {
		return
	}
	defaults := DefaultParams()
	if p.MinLoan == nil || p.MinLoan.Sign() == 0 {
		p.MinLoan = defaults.MinLoan
	}
	if p.MaxLoan == nil || p.MaxLoan.Sign() == 0 {
		p.MaxLoan = defaults.MaxLoan
	}
	if p.MinDurationDays == 0 {
		p.MinDurationDays = defaults.MinDurationDays
	}
	if p.MaxDurationDays == 0 {
		p.MaxDurationDays = defaults.MaxDurationDays
	}
	if p.GracePeriodSeconds == 0 {
		p.GracePeriodSeconds = defaults.GracePeriodSeconds
	}
}

// Validate checks the bounds for consistency.
func (p Params) Validate() error {
	if p.MinLoan == nil || p.MaxLoan == nil || p.MinLoan.Sign() <= 0 {
		return errors.New("lending: loan bounds must be positive")
	}
	if p.MinLoan.Cmp(p.MaxLoan) > 0 {
		return errors.New("lending: min loan exceeds max loan")
	}
	if p.MinDurationDays == 0 || p.MinDurationDays > p.MaxDurationDays {
		return errors.New("lending: invalid duration bounds")
	}
	if p.ConservativeBonus < 0 || p.EarlyRepayBonus < 0 || p.OnTimeRepayBonus < 0 || p.DefaultPenalty < 0 {
		return errors.New("lending: reputation effects must not be negative")
	}
	return nil
}
