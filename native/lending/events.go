package lending

import (
	"math/big"
	"strconv"
	"strings"

	"trustlend/core/types"
	"trustlend/crypto"
)

const (
	TypeDeposited     = "lending.deposited"
	TypeWithdrawn     = "lending.withdrawn"
	TypeLoanRequested = "lending.loan.requested"
	TypeLoanRepaid    = "lending.loan.repaid"
	TypeLoanDefaulted = "lending.loan.defaulted"
	TypeFeesWithdrawn = "lending.fees.withdrawn"
)

type Deposited struct {
	Lender         crypto.Address
	Amount         *big.Int
	TotalLiquidity *big.Int
}

func (Deposited) EventType() string { return TypeDeposited }

func (e Deposited) Event() *types.Event {
	return &types.Event{
		Type: TypeDeposited,
		Attributes: map[string]string{
			"lender":          e.Lender.String(),
			"amount":          amountOrZero(e.Amount).String(),
			"total_liquidity": amountOrZero(e.TotalLiquidity).String(),
		},
	}
}

type Withdrawn struct {
	Lender         crypto.Address
	Amount         *big.Int
	TotalLiquidity *big.Int
}

func (Withdrawn) EventType() string { return TypeWithdrawn }

func (e Withdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdrawn,
		Attributes: map[string]string{
			"lender":          e.Lender.String(),
			"amount":          amountOrZero(e.Amount).String(),
			"total_liquidity": amountOrZero(e.TotalLiquidity).String(),
		},
	}
}

// LoanRequested is emitted when a loan is originated.
type LoanRequested struct {
	LoanID    uint64
	Borrower  crypto.Address
	Amount    *big.Int
	RateBps   uint64
	Duration  uint64
	TotalOwed *big.Int
}

func (LoanRequested) EventType() string { return TypeLoanRequested }

func (e LoanRequested) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanRequested,
		Attributes: map[string]string{
			"loan_id":    strconv.FormatUint(e.LoanID, 10),
			"borrower":   e.Borrower.String(),
			"amount":     amountOrZero(e.Amount).String(),
			"rate_bps":   strconv.FormatUint(e.RateBps, 10),
			"duration":   strconv.FormatUint(e.Duration, 10),
			"total_owed": amountOrZero(e.TotalOwed).String(),
		},
	}
}

// LoanRepaid is emitted for every accepted repayment, partial or final.
type LoanRepaid struct {
	LoanID    uint64
	Borrower  crypto.Address
	Applied   *big.Int
	Refunded  *big.Int
	Remaining *big.Int
	Completed bool
	Early     bool
}

func (LoanRepaid) EventType() string { return TypeLoanRepaid }

func (e LoanRepaid) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanRepaid,
		Attributes: map[string]string{
			"loan_id":   strconv.FormatUint(e.LoanID, 10),
			"borrower":  e.Borrower.String(),
			"applied":   amountOrZero(e.Applied).String(),
			"refunded":  amountOrZero(e.Refunded).String(),
			"remaining": amountOrZero(e.Remaining).String(),
			"completed": strconv.FormatBool(e.Completed),
			"early":     strconv.FormatBool(e.Early),
		},
	}
}

type LoanDefaulted struct {
	LoanID     uint64
	Borrower   crypto.Address
	Caller     crypto.Address
	WrittenOff *big.Int
	Circles    []uint64
}

func (LoanDefaulted) EventType() string { return TypeLoanDefaulted }

func (e LoanDefaulted) Event() *types.Event {
	circles := make([]string, len(e.Circles))
	for i, id := range e.Circles {
		circles[i] = strconv.FormatUint(id, 10)
	}
	return &types.Event{
		Type: TypeLoanDefaulted,
		Attributes: map[string]string{
			"loan_id":     strconv.FormatUint(e.LoanID, 10),
			"borrower":    e.Borrower.String(),
			"caller":      e.Caller.String(),
			"written_off": amountOrZero(e.WrittenOff).String(),
			"circles":     strings.Join(circles, ","),
		},
	}
}

type FeesWithdrawn struct {
	Recipient crypto.Address
	Amount    *big.Int
}

func (FeesWithdrawn) EventType() string { return TypeFeesWithdrawn }

func (e FeesWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeFeesWithdrawn,
		Attributes: map[string]string{
			"recipient": e.Recipient.String(),
			"amount":    amountOrZero(e.Amount).String(),
		},
	}
}
