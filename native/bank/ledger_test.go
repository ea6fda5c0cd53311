package bank

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"trustlend/core/events"
	"trustlend/core/state"
	"trustlend/crypto"
	"trustlend/storage"
)

type captureEmitter struct{ last events.Event }

func (c *captureEmitter) Emit(evt events.Event) { c.last = evt }

func TestLedgerTransferCreditsBalance(t *testing.T) {
	ledger := NewLedger(state.NewManager(storage.NewMemDB()))
	capture := &captureEmitter{}
	ledger.SetEmitter(capture)
	ledger.SetNowFunc(func() int64 { return 42 })

	var to crypto.Address
	to[0] = 9
	if err := ledger.Transfer(context.Background(), to, big.NewInt(70)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := ledger.Transfer(context.Background(), to, big.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	balance, err := ledger.Balance(to)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected 100, got %s", balance)
	}
	recorded, ok := capture.last.(PayoutRecorded)
	if !ok {
		t.Fatalf("expected payout event, got %T", capture.last)
	}
	payout, err := ledger.Payout(recorded.Payout.Reference)
	if err != nil {
		t.Fatalf("payout lookup: %v", err)
	}
	if payout.Amount.Cmp(big.NewInt(30)) != 0 || payout.Timestamp != 42 {
		t.Fatalf("unexpected payout %+v", payout)
	}
	parsed, err := ParseReference("0x" + hex.EncodeToString(recorded.Payout.Reference[:]))
	if err != nil || parsed != recorded.Payout.Reference {
		t.Fatalf("reference round trip failed: %v", err)
	}
}

func TestLedgerTransferValidation(t *testing.T) {
	ledger := NewLedger(state.NewManager(storage.NewMemDB()))
	var to crypto.Address
	to[0] = 1
	if err := ledger.Transfer(context.Background(), crypto.Address{}, big.NewInt(1)); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
	if err := ledger.Transfer(context.Background(), to, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ledger.Transfer(ctx, to, big.NewInt(1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if _, err := ledger.Payout([32]byte{1}); !errors.Is(err, ErrPayoutNotFound) {
		t.Fatalf("expected ErrPayoutNotFound, got %v", err)
	}
	if _, err := ParseReference("abc"); err == nil {
		t.Fatalf("expected short reference to fail")
	}
}
