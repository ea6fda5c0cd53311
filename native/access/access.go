package access

import (
	"errors"
	"fmt"

	"trustlend/core/events"
	"trustlend/crypto"
)

// Capability names a privileged role within the protocol.
type Capability uint8

const (
	// CapReputationUpdater may apply score deltas and record loan outcomes.
	CapReputationUpdater Capability = iota + 1
	// CapSlasher may slash trust circles after a default.
	CapSlasher
	// CapPauser may toggle module pause switches.
	CapPauser
)

func (c Capability) String() string {
	switch c {
	case CapReputationUpdater:
		return "reputation_updater"
	case CapSlasher:
		return "slasher"
	case CapPauser:
		return "pauser"
	default:
		return fmt.Sprintf("capability(%d)", uint8(c))
	}
}

func (c Capability) valid() bool {
	return c >= CapReputationUpdater && c <= CapPauser
}

// ParseCapability maps the textual capability name back to its value.
func ParseCapability(name string) (Capability, error) {
	for _, c := range []Capability{CapReputationUpdater, CapSlasher, CapPauser} {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, ErrUnknownCapability
}

var (
	ErrUnauthorized      = errors.New("access: unauthorized")
	ErrZeroAddress       = errors.New("access: zero address")
	ErrUnknownCapability = errors.New("access: unknown capability")
	errNilState          = errors.New("access: state not configured")
)

// Authorizer is consumed by the protocol engines to gate privileged calls.
type Authorizer interface {
	Authorize(c Capability, caller crypto.Address) error
	IsOwner(caller crypto.Address) bool
}

// Administrator extends Authorizer with allow-list management.
type Administrator interface {
	Authorizer
	Grant(caller crypto.Address, c Capability, account crypto.Address) error
	Revoke(caller crypto.Address, c Capability, account crypto.Address) error
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	ownerKey      = []byte("access/owner")
	membersPrefix = "access/members/"
)

func membersKey(c Capability) []byte {
	return []byte(fmt.Sprintf("%s%d", membersPrefix, uint8(c)))
}

// Controller stores the protocol owner and the per-capability allow-lists.
// Ownership only administers the lists; the owner exercises a capability
// only when it is a listed member.
type Controller struct {
	state   engineState
	emitter events.Emitter
}

// NewController constructs an access controller backed by state.
func NewController(state engineState) *Controller {
	return &Controller{state: state, emitter: events.NoopEmitter{}}
}

func (c *Controller) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	c.emitter = emitter
}

// Bootstrap records owner when no owner has been stored yet. It is used when
// the protocol is first initialised from configuration.
func (c *Controller) Bootstrap(owner crypto.Address) error {
	if c == nil || c.state == nil {
		return errNilState
	}
	if owner.IsZero() {
		return ErrZeroAddress
	}
	current, err := c.Owner()
	if err != nil {
		return err
	}
	if !current.IsZero() {
		return nil
	}
	return c.state.KVPut(ownerKey, owner)
}

// Owner returns the current owner or the zero address when unset.
func (c *Controller) Owner() (crypto.Address, error) {
	var owner crypto.Address
	if c == nil || c.state == nil {
		return owner, errNilState
	}
	if _, err := c.state.KVGet(ownerKey, &owner); err != nil {
		return crypto.Address{}, err
	}
	return owner, nil
}

// IsOwner reports whether caller is the protocol owner.
func (c *Controller) IsOwner(caller crypto.Address) bool {
	owner, err := c.Owner()
	if err != nil || owner.IsZero() {
		return false
	}
	return owner == caller
}

// SetOwner transfers ownership. Only the current owner may call it.
func (c *Controller) SetOwner(caller, newOwner crypto.Address) error {
	if !c.IsOwner(caller) {
		return ErrUnauthorized
	}
	if newOwner.IsZero() {
		return ErrZeroAddress
	}
	if err := c.state.KVPut(ownerKey, newOwner); err != nil {
		return err
	}
	c.emitter.Emit(OwnerChanged{Previous: caller, Owner: newOwner})
	return nil
}

// Members lists the accounts explicitly granted capability cap.
func (c *Controller) Members(cap Capability) ([]crypto.Address, error) {
	if c == nil || c.state == nil {
		return nil, errNilState
	}
	if !cap.valid() {
		return nil, ErrUnknownCapability
	}
	var members []crypto.Address
	if _, err := c.state.KVGet(membersKey(cap), &members); err != nil {
		return nil, err
	}
	return members, nil
}

// Has reports whether account is on the allow-list of cap.
func (c *Controller) Has(cap Capability, account crypto.Address) (bool, error) {
	members, err := c.Members(cap)
	if err != nil {
		return false, err
	}
	for _, member := range members {
		if member == account {
			return true, nil
		}
	}
	return false, nil
}

// Authorize returns ErrUnauthorized unless caller holds cap.
func (c *Controller) Authorize(cap Capability, caller crypto.Address) error {
	ok, err := c.Has(cap, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// Grant adds account to the allow-list for cap. Owner only.
func (c *Controller) Grant(caller crypto.Address, cap Capability, account crypto.Address) error {
	return c.set(caller, cap, account, true)
}

// Revoke removes account from the allow-list for cap. Owner only.
func (c *Controller) Revoke(caller crypto.Address, cap Capability, account crypto.Address) error {
	return c.set(caller, cap, account, false)
}

func (c *Controller) set(caller crypto.Address, cap Capability, account crypto.Address, allowed bool) error {
	if !c.IsOwner(caller) {
		return ErrUnauthorized
	}
	if account.IsZero() {
		return ErrZeroAddress
	}
	members, err := c.Members(cap)
	if err != nil {
		return err
	}
	next := make([]crypto.Address, 0, len(members)+1)
	present := false
	for _, member := range members {
		if member == account {
			present = true
			if !allowed {
				continue
			}
		}
		next = append(next, member)
	}
	if allowed && present {
		return nil
	}
	if !allowed && !present {
		return nil
	}
	if allowed {
		next = append(next, account)
	}
	if err := c.state.KVPut(membersKey(cap), next); err != nil {
		return err
	}
	c.emitter.Emit(CapabilityChanged{Capability: cap, Account: account, Granted: allowed})
	return nil
}
