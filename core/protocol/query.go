package protocol

import (
	"math/big"
	"sort"

	"trustlend/crypto"
	"trustlend/native/access"
	"trustlend/native/bank"
	"trustlend/native/credit"
	"trustlend/native/lending"
	"trustlend/native/reputation"
	"trustlend/native/trust"
)

func (e *Engine) ReputationScore(account crypto.Address) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reputation.Score(account)
}

// ReputationData returns the full record; reputation.ErrNotFound when absent.
func (e *Engine) ReputationData(account crypto.Address) (*reputation.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reputation.Record(account)
}

func (e *Engine) TrustScore(account crypto.Address) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trust.TrustScore(account)
}

func (e *Engine) BorrowingLimit(account crypto.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lending.BorrowingLimit(account)
}

func (e *Engine) InterestRate(account crypto.Address) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lending.InterestRate(account)
}

func (e *Engine) Loan(loanID uint64) (*lending.Loan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lending.Loan(loanID)
}

func (e *Engine) TotalOwed(loanID uint64) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lending.TotalOwed(loanID)
}

func (e *Engine) BorrowerLoans(account crypto.Address) ([]uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lending.BorrowerLoans(account)
}

// Loans returns a snapshot of every loan in origination order.
func (e *Engine) Loans() ([]*lending.Loan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lending.Loans()
}

func (e *Engine) Pool() (*lending.Pool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lending.Pool()
}

func (e *Engine) Lender(account crypto.Address) (*lending.Lender, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lending.Lender(account)
}

func (e *Engine) Circle(circleID uint64) (*trust.Circle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trust.Circle(circleID)
}

func (e *Engine) CircleMembers(circleID uint64) ([]crypto.Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trust.Members(circleID)
}

func (e *Engine) Vouches(circleID uint64, account crypto.Address) ([]crypto.Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trust.Vouches(circleID, account)
}

func (e *Engine) UserCircles(account crypto.Address) ([]uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trust.UserCircles(account)
}

func (e *Engine) HasInvitation(circleID uint64, account crypto.Address) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trust.HasInvitation(circleID, account)
}

// Balance is the amount the protocol has paid out to account.
func (e *Engine) Balance(account crypto.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank.Balance(account)
}

// Payout looks up a settlement transfer by its reference.
func (e *Engine) Payout(ref [32]byte) (*bank.Payout, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank.Payout(ref)
}

func (e *Engine) Owner() (crypto.Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.access.Owner()
}

func (e *Engine) CapabilityMembers(cap access.Capability) ([]crypto.Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.access.Members(cap)
}

// Pauses returns the pause switch of every module.
func (e *Engine) Pauses() map[string]bool {
	snapshot := e.pauses.Snapshot()
	out := make(map[string]bool, len(Modules))
	for _, module := range Modules {
		out[module] = snapshot[module]
	}
	return out
}

// CreditParams returns the active pricing table.
func (e *Engine) CreditParams() credit.Params { return e.policy.Params() }

// LendingParams returns the active loan book bounds.
func (e *Engine) LendingParams() lending.Params { return e.lending.Params() }

// TopAccounts ranks accounts by score, highest first; ties go to the earlier
// mint. n <= 0 returns every account.
func (e *Engine) TopAccounts(n int) ([]*reputation.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	accounts, err := e.reputation.Accounts()
	if err != nil {
		return nil, err
	}
	records := make([]*reputation.Record, 0, len(accounts))
	for _, account := range accounts {
		record, err := e.reputation.Record(account)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].TokenID < records[j].TokenID
	})
	if n > 0 && n < len(records) {
		records = records[:n]
	}
	return records, nil
}
