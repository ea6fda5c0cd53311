package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"trustlend/storage"
)

var (
	// ErrTxnActive is returned when Begin is called while a journal is open.
	ErrTxnActive = errors.New("state: journal already open")
	// ErrNoTxn is returned when Commit is called without a matching Begin.
	ErrNoTxn = errors.New("state: no open journal")
)

var kvPrefix = []byte("kv/")

type stagedValue struct {
	data    []byte
	deleted bool
}

// Manager exposes RLP-encoded key/value state on top of a storage.Database.
// Writes issued between Begin and Commit are staged in memory and flushed as
// one atomic batch; Rollback discards them. Outside a journal writes go
// straight to the database.
type Manager struct {
	db storage.Database

	mu     sync.Mutex
	staged map[string]stagedValue
	open   bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	hashed := ethcrypto.Keccak256(key)
	out := make([]byte, 0, len(kvPrefix)+len(hashed))
	out = append(out, kvPrefix...)
	return append(out, hashed...)
}

// Begin opens a journal. Journals do not nest.
func (m *Manager) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return ErrTxnActive
	}
	m.open = true
	m.staged = make(map[string]stagedValue)
	return nil
}

// InTxn reports whether a journal is currently open.
func (m *Manager) InTxn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Commit flushes the staged writes in a single batch and closes the journal.
// On a write failure the journal is discarded and nothing is applied.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrNoTxn
	}
	staged := m.staged
	m.staged = nil
	m.open = false
	if len(staged) == 0 {
		return nil
	}
	batch := m.db.NewBatch()
	for key, value := range staged {
		if value.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), value.data)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit journal: %w", err)
	}
	return nil
}

// Rollback discards every staged write. It is a no-op without an open journal.
func (m *Manager) Rollback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged = nil
	m.open = false
}

func (m *Manager) read(hashed []byte) ([]byte, error) {
	m.mu.Lock()
	if m.open {
		if value, ok := m.staged[string(hashed)]; ok {
			m.mu.Unlock()
			if value.deleted {
				return nil, nil
			}
			return value.data, nil
		}
	}
	m.mu.Unlock()
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) write(hashed []byte, data []byte, deleted bool) error {
	m.mu.Lock()
	if m.open {
		m.staged[string(hashed)] = stagedValue{data: data, deleted: deleted}
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	if deleted {
		return m.db.Delete(hashed)
	}
	return m.db.Put(hashed, data)
}

// KVPut stores the RLP encoding of value under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.write(kvKey(key), encoded, false)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.read(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes key from state.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.write(kvKey(key), nil, true)
}

// KVAppend appends value to the byte-slice list stored under key. Duplicate
// values are ignored to keep the index deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	var list [][]byte
	if err := m.KVGetList(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return m.KVPut(key, list)
}

// KVGetList decodes the RLP list stored under key into out, which must point
// to a slice. Missing keys yield an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("kv: destination must be a non-nil pointer")
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Slice {
		return fmt.Errorf("kv: destination must point to a slice")
	}
	data, err := m.read(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
