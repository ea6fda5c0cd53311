package bank

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"trustlend/core/events"
	"trustlend/crypto"
)

const referenceHexLength = 64

var (
	ErrInvalidRecipient = errors.New("bank: invalid recipient")
	ErrInvalidAmount    = errors.New("bank: amount must be positive")
	ErrPayoutNotFound   = errors.New("bank: payout not found")
	errNilState         = errors.New("bank: state not configured")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var payoutSeqKey = []byte("bank/payout-seq")

func balanceKey(account crypto.Address) []byte {
	return []byte(fmt.Sprintf("bank/balance/%x", account[:]))
}

func payoutKey(ref [32]byte) []byte {
	return []byte(fmt.Sprintf("bank/payout/%x", ref[:]))
}

// Payout records one outbound transfer made by the protocol.
type Payout struct {
	Reference [32]byte
	To        crypto.Address
	Amount    *big.Int
	Timestamp uint64
}

// Ledger is the settlement backend for protocol outflows. Every transfer is
// credited to the recipient's claimable balance and recorded under a unique
// reference.
type Ledger struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewLedger constructs a ledger over state.
func NewLedger(state engineState) *Ledger {
	return &Ledger{
		state:   state,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

func (l *Ledger) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	l.nowFn = now
}

// Transfer credits amount to the recipient.
func (l *Ledger) Transfer(ctx context.Context, to crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if to.IsZero() {
		return ErrInvalidRecipient
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.Balance(to)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	if err := l.state.KVPut(balanceKey(to), balance); err != nil {
		return err
	}

	var seq uint64
	if _, err := l.state.KVGet(payoutSeqKey, &seq); err != nil {
		return err
	}
	seq++
	if err := l.state.KVPut(payoutSeqKey, seq); err != nil {
		return err
	}
	payout := Payout{
		Reference: payoutReference(seq, to, amount),
		To:        to,
		Amount:    new(big.Int).Set(amount),
		Timestamp: uint64(l.nowFn()),
	}
	if err := l.state.KVPut(payoutKey(payout.Reference), &payout); err != nil {
		return err
	}
	l.emitter.Emit(PayoutRecorded{Payout: payout})
	return nil
}

// Balance returns the recipient's accumulated payouts.
func (l *Ledger) Balance(account crypto.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	balance := new(big.Int)
	if _, err := l.state.KVGet(balanceKey(account), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// Payout looks up a recorded transfer by reference.
func (l *Ledger) Payout(ref [32]byte) (*Payout, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	var payout Payout
	ok, err := l.state.KVGet(payoutKey(ref), &payout)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPayoutNotFound
	}
	return &payout, nil
}

func payoutReference(seq uint64, to crypto.Address, amount *big.Int) [32]byte {
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	var ref [32]byte
	copy(ref[:], ethcrypto.Keccak256(seqBytes[:], to[:], amount.Bytes()))
	return ref
}

// ParseReference normalises and validates a payout reference expressed as a
// hex string.
func ParseReference(ref string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return out, fmt.Errorf("bank: reference required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != referenceHexLength {
		return out, fmt.Errorf("bank: reference must be 32 bytes (got %d hex chars)", len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("bank: decode reference: %w", err)
	}
	copy(out[:], decoded)
	return out, nil
}
