package access

import (
	"strconv"

	"trustlend/core/types"
	"trustlend/crypto"
)

const (
	TypeOwnerChanged      = "access.owner.changed"
	TypeCapabilityChanged = "access.capability.changed"
)

// OwnerChanged is emitted when protocol ownership moves.
type OwnerChanged struct {
	Previous crypto.Address
	Owner    crypto.Address
}

func (OwnerChanged) EventType() string { return TypeOwnerChanged }

func (e OwnerChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeOwnerChanged,
		Attributes: map[string]string{
			"previous": e.Previous.String(),
			"owner":    e.Owner.String(),
		},
	}
}

// CapabilityChanged is emitted when an allow-list entry is granted or revoked.
type CapabilityChanged struct {
	Capability Capability
	Account    crypto.Address
	Granted    bool
}

func (CapabilityChanged) EventType() string { return TypeCapabilityChanged }

func (e CapabilityChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeCapabilityChanged,
		Attributes: map[string]string{
			"capability": e.Capability.String(),
			"account":    e.Account.String(),
			"granted":    strconv.FormatBool(e.Granted),
		},
	}
}
