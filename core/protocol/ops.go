package protocol

import (
	"context"
	"math/big"
	"strings"

	"trustlend/crypto"
	"trustlend/native/access"
	"trustlend/native/lending"
)

// Mint creates the soulbound reputation record for account.
func (e *Engine) Mint(ctx context.Context, account crypto.Address) (uint64, error) {
	var tokenID uint64
	err := e.execute(ctx, "reputation.mint", func(context.Context) error {
		id, err := e.reputation.Mint(account)
		tokenID = id
		return err
	})
	return tokenID, err
}

// ApplyDelta adjusts account's score. caller must be an authorized updater.
func (e *Engine) ApplyDelta(ctx context.Context, caller, account crypto.Address, delta int64) error {
	return e.execute(ctx, "reputation.apply_delta", func(context.Context) error {
		return e.reputation.ApplyDelta(caller, account, delta)
	})
}

// RecordLoanOutcome appends a completed loan to account's history.
func (e *Engine) RecordLoanOutcome(ctx context.Context, caller, account crypto.Address, borrowed, repaid *big.Int) error {
	return e.execute(ctx, "reputation.record_loan", func(context.Context) error {
		return e.reputation.RecordLoanOutcome(caller, account, borrowed, repaid)
	})
}

// SetAuthorizedUpdater toggles account's updater capability. Owner only.
func (e *Engine) SetAuthorizedUpdater(ctx context.Context, caller, account crypto.Address, allowed bool) error {
	return e.execute(ctx, "reputation.set_updater", func(context.Context) error {
		return e.reputation.SetAuthorizedUpdater(caller, account, allowed)
	})
}

// TransferReputation always fails with reputation.ErrSoulbound.
func (e *Engine) TransferReputation(ctx context.Context, from, to crypto.Address) error {
	return e.execute(ctx, "reputation.transfer", func(context.Context) error {
		return e.reputation.Transfer(from, to)
	})
}

func (e *Engine) Grant(ctx context.Context, caller crypto.Address, cap access.Capability, account crypto.Address) error {
	return e.execute(ctx, "access.grant", func(context.Context) error {
		return e.access.Grant(caller, cap, account)
	})
}

func (e *Engine) Revoke(ctx context.Context, caller crypto.Address, cap access.Capability, account crypto.Address) error {
	return e.execute(ctx, "access.revoke", func(context.Context) error {
		return e.access.Revoke(caller, cap, account)
	})
}

// SetOwner hands protocol ownership to newOwner.
func (e *Engine) SetOwner(ctx context.Context, caller, newOwner crypto.Address) error {
	return e.execute(ctx, "access.set_owner", func(context.Context) error {
		return e.access.SetOwner(caller, newOwner)
	})
}

// SetPaused toggles a module's pause switch. caller must hold CapPauser.
func (e *Engine) SetPaused(ctx context.Context, caller crypto.Address, module string, paused bool) error {
	module = strings.ToLower(strings.TrimSpace(module))
	return e.execute(ctx, "access.set_paused", func(context.Context) error {
		if err := e.access.Authorize(access.CapPauser, caller); err != nil {
			return err
		}
		if !IsKnownModule(module) {
			return ErrUnknownModule
		}
		next := e.pauses.Snapshot()
		next[module] = paused
		if err := e.savePauses(next); err != nil {
			return err
		}
		e.afterCommit = append(e.afterCommit, func() { e.pauses.Set(module, paused) })
		return nil
	})
}

func (e *Engine) CreateCircle(ctx context.Context, creator crypto.Address, name string, minReputation uint64) (uint64, error) {
	var circleID uint64
	err := e.execute(ctx, "trust.create_circle", func(context.Context) error {
		id, err := e.trust.CreateCircle(creator, name, minReputation)
		circleID = id
		return err
	})
	return circleID, err
}

func (e *Engine) InviteMember(ctx context.Context, circleID uint64, inviter, invitee crypto.Address) error {
	return e.execute(ctx, "trust.invite", func(context.Context) error {
		return e.trust.InviteMember(circleID, inviter, invitee)
	})
}

func (e *Engine) AcceptInvitation(ctx context.Context, circleID uint64, account crypto.Address) error {
	return e.execute(ctx, "trust.accept", func(context.Context) error {
		return e.trust.AcceptInvitation(circleID, account)
	})
}

func (e *Engine) VouchForMember(ctx context.Context, circleID uint64, voucher, member crypto.Address) error {
	return e.execute(ctx, "trust.vouch", func(context.Context) error {
		return e.trust.VouchForMember(circleID, voucher, member)
	})
}

// SlashCircle lets an external slashing authority penalise a defaulter.
func (e *Engine) SlashCircle(ctx context.Context, caller crypto.Address, circleID uint64, defaulter crypto.Address) error {
	return e.execute(ctx, "trust.slash", func(context.Context) error {
		return e.trust.SlashCircle(circleID, defaulter, caller)
	})
}

func (e *Engine) Deposit(ctx context.Context, lender crypto.Address, amount *big.Int) error {
	return e.execute(ctx, "lending.deposit", func(context.Context) error {
		return e.lending.Deposit(lender, amount)
	})
}

func (e *Engine) Withdraw(ctx context.Context, lender crypto.Address, amount *big.Int) error {
	return e.execute(ctx, "lending.withdraw", func(ctx context.Context) error {
		return e.lending.Withdraw(ctx, lender, amount)
	})
}

func (e *Engine) Borrow(ctx context.Context, borrower crypto.Address, amount *big.Int, durationDays uint64) (uint64, error) {
	var loanID uint64
	err := e.execute(ctx, "lending.borrow", func(ctx context.Context) error {
		id, err := e.lending.Borrow(ctx, borrower, amount, durationDays)
		loanID = id
		return err
	})
	return loanID, err
}

func (e *Engine) Repay(ctx context.Context, loanID uint64, payer crypto.Address, payment *big.Int) (*lending.RepayResult, error) {
	var result *lending.RepayResult
	err := e.execute(ctx, "lending.repay", func(ctx context.Context) error {
		res, err := e.lending.Repay(ctx, loanID, payer, payment)
		result = res
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) MarkDefaulted(ctx context.Context, loanID uint64, caller crypto.Address) error {
	return e.execute(ctx, "lending.mark_defaulted", func(context.Context) error {
		return e.lending.MarkDefaulted(loanID, caller)
	})
}

// WithdrawFees pays accrued protocol interest to recipient. Owner only.
func (e *Engine) WithdrawFees(ctx context.Context, caller, recipient crypto.Address, amount *big.Int) error {
	return e.execute(ctx, "lending.withdraw_fees", func(ctx context.Context) error {
		return e.lending.WithdrawFees(ctx, caller, recipient, amount)
	})
}
