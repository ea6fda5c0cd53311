package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"trustlend/storage"
)

type sampleRecord struct {
	Name   string
	Amount *big.Int
	Count  uint64
}

func TestKVRoundTripOutsideJournal(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	ok, err := mgr.KVGet([]byte("missing"), new(sampleRecord))
	require.NoError(t, err)
	require.False(t, ok)

	in := sampleRecord{Name: "alice", Amount: big.NewInt(42), Count: 3}
	require.NoError(t, mgr.KVPut([]byte("rec"), in))

	var out sampleRecord
	ok, err = mgr.KVGet([]byte("rec"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", out.Name)
	require.Equal(t, 0, out.Amount.Cmp(big.NewInt(42)))

	require.NoError(t, mgr.KVDelete([]byte("rec")))
	ok, err = mgr.KVGet([]byte("rec"), nil)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = mgr.KVGet(nil, nil)
	require.Error(t, err)
}

func TestJournalCommitIsAtomic(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	require.NoError(t, mgr.Begin())
	require.ErrorIs(t, mgr.Begin(), ErrTxnActive)
	require.NoError(t, mgr.KVPut([]byte("a"), uint64(1)))
	require.NoError(t, mgr.KVPut([]byte("b"), uint64(2)))

	var value uint64
	ok, err := mgr.KVGet([]byte("a"), &value)
	require.NoError(t, err)
	require.True(t, ok, "staged writes must be visible inside the journal")

	fresh := NewManager(db)
	ok, err = fresh.KVGet([]byte("a"), &value)
	require.NoError(t, err)
	require.False(t, ok, "staged writes must not reach the database before commit")

	require.NoError(t, mgr.Commit())
	ok, err = fresh.KVGet([]byte("b"), &value)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), value)
	require.ErrorIs(t, mgr.Commit(), ErrNoTxn)
}

func TestJournalRollbackDiscardsWrites(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	require.NoError(t, mgr.KVPut([]byte("keep"), uint64(7)))

	require.NoError(t, mgr.Begin())
	require.NoError(t, mgr.KVPut([]byte("keep"), uint64(8)))
	require.NoError(t, mgr.KVDelete([]byte("keep")))
	require.NoError(t, mgr.KVPut([]byte("drop"), uint64(9)))
	ok, err := mgr.KVGet([]byte("keep"), nil)
	require.NoError(t, err)
	require.False(t, ok)
	mgr.Rollback()
	require.False(t, mgr.InTxn())

	var value uint64
	ok, err = mgr.KVGet([]byte("keep"), &value)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), value)
	ok, err = mgr.KVGet([]byte("drop"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVAppendDeduplicates(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	var list [][]byte
	require.NoError(t, mgr.KVGetList([]byte("idx"), &list))
	require.NotNil(t, list)
	require.Empty(t, list)

	require.NoError(t, mgr.KVAppend([]byte("idx"), []byte{1}))
	require.NoError(t, mgr.KVAppend([]byte("idx"), []byte{2}))
	require.NoError(t, mgr.KVAppend([]byte("idx"), []byte{1}))
	require.NoError(t, mgr.KVGetList([]byte("idx"), &list))
	require.Equal(t, [][]byte{{1}, {2}}, list)

	var notSlice uint64
	require.Error(t, mgr.KVGetList([]byte("idx"), &notSlice))
}
