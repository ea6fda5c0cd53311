package common

import (
	"errors"
	"strings"
	"sync"
)

var (
	ErrModulePaused  = errors.New("module paused")
	ErrReentrantCall = errors.New("reentrant call")
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseTable is an in-memory PauseView toggled by operators.
type PauseTable struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauseTable seeds the table with the given module states.
func NewPauseTable(initial map[string]bool) *PauseTable {
	table := &PauseTable{paused: make(map[string]bool)}
	for module, paused := range initial {
		table.Set(module, paused)
	}
	return table
}

func (t *PauseTable) IsPaused(module string) bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.paused[strings.ToLower(strings.TrimSpace(module))]
}

func (t *PauseTable) Set(module string, paused bool) {
	if t == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(module))
	if key == "" {
		return
	}
	t.mu.Lock()
	t.paused[key] = paused
	t.mu.Unlock()
}

// Snapshot returns a copy of the current pause states.
func (t *PauseTable) Snapshot() map[string]bool {
	out := make(map[string]bool)
	if t == nil {
		return out
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for k, v := range t.paused {
		out[k] = v
	}
	return out
}

// ReentrancyGuard rejects nested entry into value-moving operations.
type ReentrancyGuard struct {
	mu      sync.Mutex
	entered bool
}

// Enter marks the guarded section as active. The returned function releases it.
func (g *ReentrancyGuard) Enter() (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.entered {
		return nil, ErrReentrantCall
	}
	g.entered = true
	return func() {
		g.mu.Lock()
		g.entered = false
		g.mu.Unlock()
	}, nil
}
