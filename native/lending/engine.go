package lending

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"trustlend/core/events"
	"trustlend/crypto"
	"trustlend/native/access"
	nativecommon "trustlend/native/common"
	"trustlend/native/credit"
)

var (
	ErrInvalidAmount         = errors.New("lending engine: invalid amount")
	ErrInvalidDuration       = errors.New("lending engine: invalid duration")
	ErrInsufficientBalance   = errors.New("lending engine: insufficient balance")
	ErrInsufficientLiquidity = errors.New("lending engine: insufficient liquidity")
	ErrNoReputation          = errors.New("lending engine: borrower has no reputation")
	ErrExceedsLimit          = errors.New("lending engine: amount exceeds borrowing limit")
	ErrLoanNotFound          = errors.New("lending engine: loan not found")
	ErrNotActive             = errors.New("lending engine: loan not active")
	ErrWrongBorrower         = errors.New("lending engine: payer is not the borrower")
	ErrZeroPayment           = errors.New("lending engine: payment must be positive")
	ErrAlreadyDefaulted      = errors.New("lending engine: loan already defaulted")
	ErrAlreadyRepaid         = errors.New("lending engine: loan already repaid")
	ErrGracePeriodNotOver    = errors.New("lending engine: grace period not over")
	ErrTransferFailed        = errors.New("lending engine: transfer failed")
	ErrUnauthorized          = errors.New("lending engine: unauthorized")
	errNilState              = errors.New("lending engine: state not configured")
)

const moduleName = "lending"

// ReputationPort is the subset of the reputation store used by the loan book.
type ReputationPort interface {
	Exists(account crypto.Address) (bool, error)
	Score(account crypto.Address) (uint64, error)
	ApplyDelta(caller, account crypto.Address, delta int64) error
	RecordLoanOutcome(caller, account crypto.Address, borrowed, repaid *big.Int) error
}

// TrustPort is the subset of the trust graph used by the loan book.
type TrustPort interface {
	TrustScore(account crypto.Address) (uint64, error)
	UserCircles(account crypto.Address) ([]uint64, error)
	SlashCircle(circleID uint64, defaulter, caller crypto.Address) error
}

// Settlement moves value out of the protocol. Inbound value (deposits and
// repayments) arrives with the call.
type Settlement interface {
	Transfer(ctx context.Context, to crypto.Address, amount *big.Int) error
}

// Engine is the loan book: it owns the liquidity pool, lender positions and
// loans, prices credit through the policy and posts reputation effects.
type Engine struct {
	state      engineState
	policy     *credit.Policy
	reputation ReputationPort
	trust      TrustPort
	settlement Settlement
	auth       access.Authorizer
	self       crypto.Address
	params     Params
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	nowFn      func() int64
	guard      nativecommon.ReentrancyGuard
}

// NewEngine constructs a loan book. self is the module address used when
// posting reputation deltas and slashing circles; it must hold the updater
// and slasher capabilities.
func NewEngine(self crypto.Address, policy *credit.Policy, params Params) *Engine {
	p := params.Clone()
	p.EnsureDefaults()
	if policy == nil {
		policy = credit.NewPolicy(credit.DefaultParams())
	}
	return &Engine{
		self:    self,
		policy:  policy,
		params:  p,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPorts wires the collaborating components.
func (e *Engine) SetPorts(reputation ReputationPort, trust TrustPort, settlement Settlement, auth access.Authorizer) {
	e.reputation = reputation
	e.trust = trust
	e.settlement = settlement
	e.auth = auth
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetNowFunc overrides the wall clock. Primarily used by tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	e.nowFn = now
}

// Params returns a copy of the loan book parameters.
func (e *Engine) Params() Params { return e.params.Clone() }

// Policy exposes the credit policy used for pricing.
func (e *Engine) Policy() *credit.Policy { return e.policy }

func (e *Engine) now() uint64 {
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.reputation == nil || e.trust == nil || e.settlement == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) transfer(ctx context.Context, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := e.settlement.Transfer(ctx, to, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

// Deposit adds liquidity from lender. The value arrives with the call.
func (e *Engine) Deposit(lender crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 || credit.CheckAmount(amount) != nil {
		return ErrInvalidAmount
	}
	pool, err := e.state.GetPool()
	if err != nil {
		return err
	}
	position, err := e.state.GetLender(lender)
	if err != nil {
		return err
	}
	position.Deposited = new(big.Int).Add(position.Deposited, amount)
	position.LastDepositTime = e.now()
	pool.TotalLiquidity = new(big.Int).Add(pool.TotalLiquidity, amount)
	if err := e.state.PutLender(lender, position); err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.emitter.Emit(Deposited{Lender: lender, Amount: cloneAmount(amount), TotalLiquidity: cloneAmount(pool.TotalLiquidity)})
	return nil
}

// Withdraw returns deposited liquidity to lender.
func (e *Engine) Withdraw(ctx context.Context, lender crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	position, err := e.state.GetLender(lender)
	if err != nil {
		return err
	}
	if position.Deposited.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	pool, err := e.state.GetPool()
	if err != nil {
		return err
	}
	if pool.Available().Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}
	position.Deposited = new(big.Int).Sub(position.Deposited, amount)
	pool.TotalLiquidity = new(big.Int).Sub(pool.TotalLiquidity, amount)
	if err := e.state.PutLender(lender, position); err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.emitter.Emit(Withdrawn{Lender: lender, Amount: cloneAmount(amount), TotalLiquidity: cloneAmount(pool.TotalLiquidity)})
	return e.transfer(ctx, lender, amount)
}

// Borrow originates a loan for borrower at the rate and limit derived from
// its reputation and trust, and disburses the principal.
func (e *Engine) Borrow(ctx context.Context, borrower crypto.Address, amount *big.Int, durationDays uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	release, err := e.guard.Enter()
	if err != nil {
		return 0, err
	}
	defer release()

	if amount == nil || amount.Cmp(e.params.MinLoan) < 0 || amount.Cmp(e.params.MaxLoan) > 0 {
		return 0, ErrInvalidAmount
	}
	if durationDays < e.params.MinDurationDays || durationDays > e.params.MaxDurationDays {
		return 0, ErrInvalidDuration
	}
	pool, err := e.state.GetPool()
	if err != nil {
		return 0, err
	}
	if pool.Available().Cmp(amount) < 0 {
		return 0, ErrInsufficientLiquidity
	}
	score, err := e.reputation.Score(borrower)
	if err != nil {
		return 0, err
	}
	if score == 0 {
		return 0, ErrNoReputation
	}
	trustScore, err := e.trust.TrustScore(borrower)
	if err != nil {
		return 0, err
	}
	limit := e.policy.BorrowingLimit(score, trustScore)
	if amount.Cmp(limit) > 0 {
		return 0, ErrExceedsLimit
	}
	if err := e.consumeQuota(borrower, amount); err != nil {
		return 0, err
	}
	rate := e.policy.InterestRateBps(score, trustScore)

	loan := &Loan{
		ID:                pool.NextLoanID,
		Borrower:          borrower,
		Principal:         cloneAmount(amount),
		InterestRateBps:   rate,
		StartTime:         e.now(),
		Duration:          durationDays * credit.SecondsPerDay,
		AmountRepaid:      big.NewInt(0),
		PrincipalReleased: big.NewInt(0),
		Active:            true,
	}
	pool.NextLoanID++
	pool.TotalBorrowed = new(big.Int).Add(pool.TotalBorrowed, amount)
	if err := e.state.PutLoan(loan); err != nil {
		return 0, err
	}
	if err := e.state.AppendBorrowerLoan(borrower, loan.ID); err != nil {
		return 0, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return 0, err
	}

	halfLimit := new(big.Int).Quo(limit, big.NewInt(2))
	if e.params.ConservativeBonus > 0 && amount.Cmp(halfLimit) <= 0 {
		if err := e.reputation.ApplyDelta(e.self, borrower, e.params.ConservativeBonus); err != nil {
			return 0, err
		}
	}
	e.emitter.Emit(LoanRequested{
		LoanID:    loan.ID,
		Borrower:  borrower,
		Amount:    cloneAmount(amount),
		RateBps:   rate,
		Duration:  loan.Duration,
		TotalOwed: loan.TotalOwed(),
	})
	if err := e.transfer(ctx, borrower, amount); err != nil {
		return 0, err
	}
	return loan.ID, nil
}

func (e *Engine) consumeQuota(borrower crypto.Address, amount *big.Int) error {
	quota := e.params.BorrowQuota
	if !quota.Enabled() {
		return nil
	}
	prev, err := e.state.GetQuota(borrower)
	if err != nil {
		return err
	}
	wholeUnits := new(big.Int).Quo(amount, credit.Unit)
	if !wholeUnits.IsUint64() {
		return nativecommon.ErrQuotaCounterOverflow
	}
	next, err := nativecommon.CheckQuota(quota, quota.EpochAt(e.nowFn()), prev, 1, wholeUnits.Uint64())
	if err != nil {
		return err
	}
	return e.state.PutQuota(borrower, next)
}

// Repay applies payment to the loan. Any amount beyond what is owed is
// refunded to the payer.
func (e *Engine) Repay(ctx context.Context, loanID uint64, payer crypto.Address, payment *big.Int) (*RepayResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	release, err := e.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	loan, ok, err := e.state.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	if !loan.Active {
		return nil, ErrNotActive
	}
	if loan.Borrower != payer {
		return nil, ErrWrongBorrower
	}
	if payment == nil || payment.Sign() <= 0 {
		return nil, ErrZeroPayment
	}
	if err := credit.CheckAmount(payment); err != nil {
		return nil, ErrInvalidAmount
	}
	pool, err := e.state.GetPool()
	if err != nil {
		return nil, err
	}

	owed := loan.TotalOwed()
	applied := minAmount(payment, loan.Remaining())
	loan.AmountRepaid = new(big.Int).Add(loan.AmountRepaid, applied)

	outstanding := new(big.Int).Sub(loan.Principal, loan.PrincipalReleased)
	principalPart := minAmount(applied, outstanding)
	interestPart := new(big.Int).Sub(applied, principalPart)
	loan.PrincipalReleased = new(big.Int).Add(loan.PrincipalReleased, principalPart)
	pool.TotalBorrowed = new(big.Int).Sub(pool.TotalBorrowed, principalPart)
	pool.InterestEarned = new(big.Int).Add(pool.InterestEarned, interestPart)

	now := e.now()
	result := &RepayResult{
		Applied:  applied,
		Refunded: new(big.Int).Sub(payment, applied),
	}
	if loan.AmountRepaid.Cmp(owed) >= 0 {
		loan.Active = false
		result.Completed = true
		result.Early = now < loan.DueTime()
	}
	result.Remaining = loan.Remaining()

	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	if result.Completed {
		if err := e.reputation.RecordLoanOutcome(e.self, loan.Borrower, loan.Principal, loan.AmountRepaid); err != nil {
			return nil, err
		}
		bonus := e.params.OnTimeRepayBonus
		if result.Early {
			bonus = e.params.EarlyRepayBonus
		}
		if bonus != 0 {
			if err := e.reputation.ApplyDelta(e.self, loan.Borrower, bonus); err != nil {
				return nil, err
			}
		}
	}
	e.emitter.Emit(LoanRepaid{
		LoanID:    loan.ID,
		Borrower:  loan.Borrower,
		Applied:   cloneAmount(applied),
		Refunded:  cloneAmount(result.Refunded),
		Remaining: cloneAmount(result.Remaining),
		Completed: result.Completed,
		Early:     result.Early,
	})
	if err := e.transfer(ctx, payer, result.Refunded); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkDefaulted closes an overdue loan as defaulted once the grace period has
// elapsed, penalises the borrower and slashes every circle it belongs to.
// Anyone may call it.
func (e *Engine) MarkDefaulted(loanID uint64, caller crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	loan, ok, err := e.state.GetLoan(loanID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLoanNotFound
	}
	if loan.Defaulted {
		return ErrAlreadyDefaulted
	}
	if !loan.Active {
		return ErrNotActive
	}
	if e.now() <= loan.DueTime()+e.params.GracePeriodSeconds {
		return ErrGracePeriodNotOver
	}
	if loan.AmountRepaid.Cmp(loan.TotalOwed()) >= 0 {
		return ErrAlreadyRepaid
	}
	pool, err := e.state.GetPool()
	if err != nil {
		return err
	}

	loan.Active = false
	loan.Defaulted = true
	writeOff := new(big.Int).Sub(loan.Principal, loan.PrincipalReleased)
	pool.TotalBorrowed = new(big.Int).Sub(pool.TotalBorrowed, writeOff)
	pool.TotalLiquidity = new(big.Int).Sub(pool.TotalLiquidity, writeOff)
	if err := e.state.PutLoan(loan); err != nil {
		return err
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	if e.params.DefaultPenalty != 0 {
		if err := e.reputation.ApplyDelta(e.self, loan.Borrower, -e.params.DefaultPenalty); err != nil {
			return err
		}
	}
	circles, err := e.trust.UserCircles(loan.Borrower)
	if err != nil {
		return err
	}
	for _, circleID := range circles {
		if err := e.trust.SlashCircle(circleID, loan.Borrower, e.self); err != nil {
			return err
		}
	}
	e.emitter.Emit(LoanDefaulted{
		LoanID:     loan.ID,
		Borrower:   loan.Borrower,
		Caller:     caller,
		WrittenOff: cloneAmount(writeOff),
		Circles:    append([]uint64(nil), circles...),
	})
	return nil
}

// WithdrawFees pays accrued interest to recipient. Owner only.
func (e *Engine) WithdrawFees(ctx context.Context, caller, recipient crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if e.auth == nil || !e.auth.IsOwner(caller) {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pool, err := e.state.GetPool()
	if err != nil {
		return err
	}
	if pool.InterestEarned.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	pool.InterestEarned = new(big.Int).Sub(pool.InterestEarned, amount)
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.emitter.Emit(FeesWithdrawn{Recipient: recipient, Amount: cloneAmount(amount)})
	return e.transfer(ctx, recipient, amount)
}

// Loan returns a copy of the loan.
func (e *Engine) Loan(loanID uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, ok, err := e.state.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	return loan, nil
}

// TotalOwed returns the loan's full repayment amount.
func (e *Engine) TotalOwed(loanID uint64) (*big.Int, error) {
	loan, err := e.Loan(loanID)
	if err != nil {
		return nil, err
	}
	return loan.TotalOwed(), nil
}

// BorrowerLoans lists the loans originated by account.
func (e *Engine) BorrowerLoans(account crypto.Address) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.BorrowerLoans(account)
}

// Loans returns every loan in origination order.
func (e *Engine) Loans() ([]*Loan, error) {
	pool, err := e.Pool()
	if err != nil {
		return nil, err
	}
	out := make([]*Loan, 0, pool.NextLoanID)
	for id := uint64(1); id < pool.NextLoanID; id++ {
		loan, ok, err := e.state.GetLoan(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, loan)
		}
	}
	return out, nil
}

// Pool returns the liquidity counters.
func (e *Engine) Pool() (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.GetPool()
}

// Lender returns the lender's position.
func (e *Engine) Lender(account crypto.Address) (*Lender, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.GetLender(account)
}

// BorrowingLimit is the account's current limit; zero without a record.
func (e *Engine) BorrowingLimit(account crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	exists, err := e.reputation.Exists(account)
	if err != nil {
		return nil, err
	}
	if !exists {
		return big.NewInt(0), nil
	}
	score, trustScore, err := e.scores(account)
	if err != nil {
		return nil, err
	}
	return e.policy.BorrowingLimit(score, trustScore), nil
}

// InterestRate is the account's current rate; the base rate without a record.
func (e *Engine) InterestRate(account crypto.Address) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	exists, err := e.reputation.Exists(account)
	if err != nil {
		return 0, err
	}
	if !exists {
		return e.policy.BaseRateBps(), nil
	}
	score, trustScore, err := e.scores(account)
	if err != nil {
		return 0, err
	}
	return e.policy.InterestRateBps(score, trustScore), nil
}

func (e *Engine) scores(account crypto.Address) (uint64, uint64, error) {
	score, err := e.reputation.Score(account)
	if err != nil {
		return 0, 0, err
	}
	trustScore, err := e.trust.TrustScore(account)
	if err != nil {
		return 0, 0, err
	}
	return score, trustScore, nil
}
