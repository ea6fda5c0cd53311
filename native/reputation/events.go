package reputation

import (
	"math/big"
	"strconv"

	"trustlend/core/types"
	"trustlend/crypto"
)

const (
	TypeMinted       = "reputation.minted"
	TypeUpdated      = "reputation.updated"
	TypeLoanRecorded = "reputation.loan_recorded"
)

// Minted is emitted once per account when its record is created.
type Minted struct {
	Account crypto.Address
	TokenID uint64
	Score   uint64
}

func (Minted) EventType() string { return TypeMinted }

func (e Minted) Event() *types.Event {
	return &types.Event{
		Type: TypeMinted,
		Attributes: map[string]string{
			"account":  e.Account.String(),
			"token_id": strconv.FormatUint(e.TokenID, 10),
			"score":    strconv.FormatUint(e.Score, 10),
			"tier":     TierForScore(e.Score).String(),
		},
	}
}

// Updated captures a score change and the resulting tier.
type Updated struct {
	Account  crypto.Address
	Delta    int64
	Previous uint64
	Score    uint64
	Tier     Tier
}

func (Updated) EventType() string { return TypeUpdated }

func (e Updated) Event() *types.Event {
	return &types.Event{
		Type: TypeUpdated,
		Attributes: map[string]string{
			"account":      e.Account.String(),
			"delta":        strconv.FormatInt(e.Delta, 10),
			"previous":     strconv.FormatUint(e.Previous, 10),
			"score":        strconv.FormatUint(e.Score, 10),
			"tier":         e.Tier.String(),
			"tier_ordinal": strconv.FormatUint(uint64(e.Tier), 10),
		},
	}
}

// LoanRecorded is emitted when a completed loan is added to the history.
type LoanRecorded struct {
	Account        crypto.Address
	Borrowed       *big.Int
	Repaid         *big.Int
	LoansCompleted uint64
}

func (LoanRecorded) EventType() string { return TypeLoanRecorded }

func (e LoanRecorded) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanRecorded,
		Attributes: map[string]string{
			"account":         e.Account.String(),
			"borrowed":        cloneAmount(e.Borrowed).String(),
			"repaid":          cloneAmount(e.Repaid).String(),
			"loans_completed": strconv.FormatUint(e.LoansCompleted, 10),
		},
	}
}
