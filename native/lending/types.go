package lending

import (
	"math/big"

	"trustlend/crypto"
	"trustlend/native/credit"
)

// LoanStatus is the derived lifecycle state of a loan.
type LoanStatus uint8

const (
	LoanStatusActive LoanStatus = iota
	LoanStatusRepaid
	LoanStatusDefaulted
)

func (s LoanStatus) String() string {
	switch s {
	case LoanStatusActive:
		return "active"
	case LoanStatusRepaid:
		return "repaid"
	case LoanStatusDefaulted:
		return "defaulted"
	default:
		return "unknown"
	}
}

// MarshalText renders the status name for JSON payloads.
func (s LoanStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Loan is a single uncollateralized credit line. Terms are fixed at
// origination; only the repayment fields and the terminal flags change.
type Loan struct {
	ID                uint64
	Borrower          crypto.Address
	Principal         *big.Int
	InterestRateBps   uint64
	StartTime         uint64
	Duration          uint64
	AmountRepaid      *big.Int
	PrincipalReleased *big.Int
	Active            bool
	Defaulted         bool
}

// Status derives the loan's lifecycle state.
func (l *Loan) Status() LoanStatus {
	switch {
	case l.Defaulted:
		return LoanStatusDefaulted
	case l.Active:
		return LoanStatusActive
	default:
		return LoanStatusRepaid
	}
}

// TotalOwed is principal plus the full-term simple interest.
func (l *Loan) TotalOwed() *big.Int {
	return credit.TotalOwed(l.Principal, l.InterestRateBps, l.Duration)
}

// Remaining is the amount still owed.
func (l *Loan) Remaining() *big.Int {
	remaining := new(big.Int).Sub(l.TotalOwed(), amountOrZero(l.AmountRepaid))
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}

// DueTime is the unix timestamp at which the term ends.
func (l *Loan) DueTime() uint64 { return l.StartTime + l.Duration }

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Principal = cloneAmount(l.Principal)
	clone.AmountRepaid = cloneAmount(l.AmountRepaid)
	clone.PrincipalReleased = cloneAmount(l.PrincipalReleased)
	return &clone
}

// Pool tracks the global liquidity counters. TotalBorrowed never exceeds
// TotalLiquidity.
type Pool struct {
	TotalLiquidity *big.Int
	TotalBorrowed  *big.Int
	InterestEarned *big.Int
	NextLoanID     uint64
}

// Available is the liquidity that can still be lent or withdrawn.
func (p *Pool) Available() *big.Int {
	available := new(big.Int).Sub(amountOrZero(p.TotalLiquidity), amountOrZero(p.TotalBorrowed))
	if available.Sign() < 0 {
		return big.NewInt(0)
	}
	return available
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	return &Pool{
		TotalLiquidity: cloneAmount(p.TotalLiquidity),
		TotalBorrowed:  cloneAmount(p.TotalBorrowed),
		InterestEarned: cloneAmount(p.InterestEarned),
		NextLoanID:     p.NextLoanID,
	}
}

// Lender captures a liquidity provider's position.
type Lender struct {
	Deposited       *big.Int
	LastDepositTime uint64
}

// Clone returns a deep copy of the lender position.
func (l *Lender) Clone() *Lender {
	if l == nil {
		return nil
	}
	return &Lender{Deposited: cloneAmount(l.Deposited), LastDepositTime: l.LastDepositTime}
}

// RepayResult reports how a payment was applied.
type RepayResult struct {
	Applied   *big.Int
	Refunded  *big.Int
	Remaining *big.Int
	Completed bool
	Early     bool
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func minAmount(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
