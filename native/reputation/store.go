package reputation

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"trustlend/core/events"
	"trustlend/crypto"
	"trustlend/native/access"
	nativecommon "trustlend/native/common"
)

var (
	ErrAlreadyExists = errors.New("reputation: record already exists")
	ErrNotFound      = errors.New("reputation: record not found")
	ErrUnauthorized  = errors.New("reputation: caller is not an authorized updater")
	ErrSoulbound     = errors.New("reputation: records are non-transferable")
	ErrInvalidAmount = errors.New("reputation: amount must not be negative")
	errNilState      = errors.New("reputation: state not configured")
)

const moduleName = "reputation"

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

var (
	recordPrefix  = []byte("reputation/record/")
	nextTokenKey  = []byte("reputation/next-token")
	accountsIndex = []byte("reputation/accounts")
)

func recordKey(account crypto.Address) []byte {
	return []byte(fmt.Sprintf("%s%x", recordPrefix, account[:]))
}

// Store holds the soulbound reputation records. ApplyDelta is the only path
// that changes a score.
type Store struct {
	state   engineState
	auth    access.Administrator
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
}

// NewStore constructs a reputation store gated by auth.
func NewStore(state engineState, auth access.Administrator) *Store {
	return &Store{
		state:   state,
		auth:    auth,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

func (s *Store) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	s.emitter = emitter
}

func (s *Store) SetPauses(p nativecommon.PauseView) { s.pauses = p }

// SetNowFunc overrides the wall clock. Primarily used by tests.
func (s *Store) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	s.nowFn = now
}

func (s *Store) now() uint64 {
	ts := s.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (s *Store) load(account crypto.Address) (*Record, bool, error) {
	if s == nil || s.state == nil {
		return nil, false, errNilState
	}
	var record Record
	ok, err := s.state.KVGet(recordKey(account), &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	if record.TotalBorrowed == nil {
		record.TotalBorrowed = big.NewInt(0)
	}
	if record.TotalRepaid == nil {
		record.TotalRepaid = big.NewInt(0)
	}
	return &record, true, nil
}

func (s *Store) put(record *Record) error {
	return s.state.KVPut(recordKey(record.Account), record)
}

// Mint creates the account's record with the initial score and returns its
// token identifier. Each account can mint exactly once.
func (s *Store) Mint(account crypto.Address) (uint64, error) {
	if err := nativecommon.Guard(s.pauses, moduleName); err != nil {
		return 0, err
	}
	if account.IsZero() {
		return 0, access.ErrZeroAddress
	}
	_, exists, err := s.load(account)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, ErrAlreadyExists
	}
	var next uint64
	if _, err := s.state.KVGet(nextTokenKey, &next); err != nil {
		return 0, err
	}
	next++
	now := s.now()
	record := &Record{
		TokenID:       next,
		Account:       account,
		Score:         InitialScore,
		TotalBorrowed: big.NewInt(0),
		TotalRepaid:   big.NewInt(0),
		MintedAt:      now,
		LastUpdated:   now,
	}
	if err := s.put(record); err != nil {
		return 0, err
	}
	if err := s.state.KVPut(nextTokenKey, next); err != nil {
		return 0, err
	}
	if err := s.state.KVAppend(accountsIndex, account.Bytes()); err != nil {
		return 0, err
	}
	s.emitter.Emit(Minted{Account: account, TokenID: next, Score: InitialScore})
	return next, nil
}

// ApplyDelta adjusts the account's score by delta, clamped to [0, MaxScore].
func (s *Store) ApplyDelta(caller, account crypto.Address, delta int64) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	record, ok, err := s.load(account)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	previous := record.Score
	record.Score = applyDelta(record.Score, delta)
	record.LastUpdated = s.now()
	if err := s.put(record); err != nil {
		return err
	}
	s.emitter.Emit(Updated{
		Account:  account,
		Delta:    delta,
		Previous: previous,
		Score:    record.Score,
		Tier:     record.Tier(),
	})
	return nil
}

// RecordLoanOutcome bumps the completed loan counter and the cumulative
// borrowed/repaid totals. The score is left untouched.
func (s *Store) RecordLoanOutcome(caller, account crypto.Address, borrowed, repaid *big.Int) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	if (borrowed != nil && borrowed.Sign() < 0) || (repaid != nil && repaid.Sign() < 0) {
		return ErrInvalidAmount
	}
	record, ok, err := s.load(account)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	record.LoansCompleted++
	if borrowed != nil {
		record.TotalBorrowed.Add(record.TotalBorrowed, borrowed)
	}
	if repaid != nil {
		record.TotalRepaid.Add(record.TotalRepaid, repaid)
	}
	record.LastUpdated = s.now()
	if err := s.put(record); err != nil {
		return err
	}
	s.emitter.Emit(LoanRecorded{
		Account:        account,
		Borrowed:       cloneAmount(borrowed),
		Repaid:         cloneAmount(repaid),
		LoansCompleted: record.LoansCompleted,
	})
	return nil
}

func (s *Store) authorize(caller crypto.Address) error {
	if s == nil || s.auth == nil {
		return errNilState
	}
	if err := s.auth.Authorize(access.CapReputationUpdater, caller); err != nil {
		if errors.Is(err, access.ErrUnauthorized) {
			return ErrUnauthorized
		}
		return err
	}
	return nil
}

// SetAuthorizedUpdater grants or revokes the updater capability. Owner only.
func (s *Store) SetAuthorizedUpdater(caller, account crypto.Address, allowed bool) error {
	if s == nil || s.auth == nil {
		return errNilState
	}
	if allowed {
		return s.auth.Grant(caller, access.CapReputationUpdater, account)
	}
	return s.auth.Revoke(caller, access.CapReputationUpdater, account)
}

// Score returns the account's score, or 0 when no record exists.
func (s *Store) Score(account crypto.Address) (uint64, error) {
	record, ok, err := s.load(account)
	if err != nil || !ok {
		return 0, err
	}
	return record.Score, nil
}

// Record returns a copy of the account's record.
func (s *Store) Record(account crypto.Address) (*Record, error) {
	record, ok, err := s.load(account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return record, nil
}

// Exists reports whether the account has minted a record.
func (s *Store) Exists(account crypto.Address) (bool, error) {
	_, ok, err := s.load(account)
	return ok, err
}

// Accounts lists every account holding a record in mint order.
func (s *Store) Accounts() ([]crypto.Address, error) {
	if s == nil || s.state == nil {
		return nil, errNilState
	}
	var raw [][]byte
	if err := s.state.KVGetList(accountsIndex, &raw); err != nil {
		return nil, err
	}
	out := make([]crypto.Address, 0, len(raw))
	for _, entry := range raw {
		addr, err := crypto.BytesToAddress(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// Transfer always fails: reputation records are bound to their account.
func (s *Store) Transfer(from, to crypto.Address) error {
	return ErrSoulbound
}
