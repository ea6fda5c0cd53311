package lending

import (
	"fmt"
	"math/big"

	"trustlend/crypto"
	nativecommon "trustlend/native/common"
)

type engineState interface {
	GetPool() (*Pool, error)
	PutPool(pool *Pool) error
	GetLender(addr crypto.Address) (*Lender, error)
	PutLender(addr crypto.Address, lender *Lender) error
	GetLoan(id uint64) (*Loan, bool, error)
	PutLoan(loan *Loan) error
	BorrowerLoans(addr crypto.Address) ([]uint64, error)
	AppendBorrowerLoan(addr crypto.Address, id uint64) error
	GetQuota(addr crypto.Address) (nativecommon.QuotaNow, error)
	PutQuota(addr crypto.Address, now nativecommon.QuotaNow) error
}

// kvStore is the key/value surface provided by the state manager.
type kvStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// KVState persists the loan book in a key/value state manager.
type KVState struct {
	kv kvStore
}

// NewKVState adapts kv to the loan book's state interface.
func NewKVState(kv kvStore) *KVState {
	return &KVState{kv: kv}
}

var poolKey = []byte("lending/pool")

func lenderKey(addr crypto.Address) []byte {
	return []byte(fmt.Sprintf("lending/lender/%x", addr[:]))
}

func loanKey(id uint64) []byte {
	return []byte(fmt.Sprintf("lending/loan/%d", id))
}

func borrowerKey(addr crypto.Address) []byte {
	return []byte(fmt.Sprintf("lending/borrower/%x", addr[:]))
}

func quotaKey(addr crypto.Address) []byte {
	return []byte(fmt.Sprintf("lending/quota/%x", addr[:]))
}

func (s *KVState) GetPool() (*Pool, error) {
	pool := &Pool{}
	if _, err := s.kv.KVGet(poolKey, pool); err != nil {
		return nil, err
	}
	if pool.TotalLiquidity == nil {
		pool.TotalLiquidity = big.NewInt(0)
	}
	if pool.TotalBorrowed == nil {
		pool.TotalBorrowed = big.NewInt(0)
	}
	if pool.InterestEarned == nil {
		pool.InterestEarned = big.NewInt(0)
	}
	if pool.NextLoanID == 0 {
		pool.NextLoanID = 1
	}
	return pool, nil
}

func (s *KVState) PutPool(pool *Pool) error {
	return s.kv.KVPut(poolKey, pool)
}

func (s *KVState) GetLender(addr crypto.Address) (*Lender, error) {
	lender := &Lender{}
	if _, err := s.kv.KVGet(lenderKey(addr), lender); err != nil {
		return nil, err
	}
	if lender.Deposited == nil {
		lender.Deposited = big.NewInt(0)
	}
	return lender, nil
}

func (s *KVState) PutLender(addr crypto.Address, lender *Lender) error {
	return s.kv.KVPut(lenderKey(addr), lender)
}

func (s *KVState) GetLoan(id uint64) (*Loan, bool, error) {
	loan := &Loan{}
	ok, err := s.kv.KVGet(loanKey(id), loan)
	if err != nil || !ok {
		return nil, ok, err
	}
	loan.Principal = amountOrZero(loan.Principal)
	loan.AmountRepaid = amountOrZero(loan.AmountRepaid)
	loan.PrincipalReleased = amountOrZero(loan.PrincipalReleased)
	return loan, true, nil
}

func (s *KVState) PutLoan(loan *Loan) error {
	return s.kv.KVPut(loanKey(loan.ID), loan)
}

func (s *KVState) BorrowerLoans(addr crypto.Address) ([]uint64, error) {
	var ids []uint64
	if _, err := s.kv.KVGet(borrowerKey(addr), &ids); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

func (s *KVState) AppendBorrowerLoan(addr crypto.Address, id uint64) error {
	ids, err := s.BorrowerLoans(addr)
	if err != nil {
		return err
	}
	return s.kv.KVPut(borrowerKey(addr), append(ids, id))
}

func (s *KVState) GetQuota(addr crypto.Address) (nativecommon.QuotaNow, error) {
	var now nativecommon.QuotaNow
	_, err := s.kv.KVGet(quotaKey(addr), &now)
	return now, err
}

func (s *KVState) PutQuota(addr crypto.Address, now nativecommon.QuotaNow) error {
	return s.kv.KVPut(quotaKey(addr), now)
}
