package access

import (
	"errors"
	"testing"

	"trustlend/core/state"
	"trustlend/crypto"
	"trustlend/storage"
)

func addr(b byte) crypto.Address {
	var a crypto.Address
	a[19] = b
	return a
}

func newController(t *testing.T) *Controller {
	t.Helper()
	ctrl := NewController(state.NewManager(storage.NewMemDB()))
	if err := ctrl.Bootstrap(addr(1)); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return ctrl
}

func TestBootstrapKeepsExistingOwner(t *testing.T) {
	ctrl := newController(t)
	if err := ctrl.Bootstrap(addr(2)); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	owner, err := ctrl.Owner()
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != addr(1) {
		t.Fatalf("bootstrap must not replace an existing owner")
	}
	if err := NewController(state.NewManager(storage.NewMemDB())).Bootstrap(crypto.Address{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected zero address error, got %v", err)
	}
}

func TestGrantRevokeRequiresOwner(t *testing.T) {
	ctrl := newController(t)
	updater := addr(5)

	if err := ctrl.Grant(addr(9), CapReputationUpdater, updater); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized grant, got %v", err)
	}
	if err := ctrl.Authorize(CapReputationUpdater, updater); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected updater to be unauthorized before grant, got %v", err)
	}
	if err := ctrl.Grant(addr(1), CapReputationUpdater, updater); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := ctrl.Grant(addr(1), CapReputationUpdater, updater); err != nil {
		t.Fatalf("idempotent grant: %v", err)
	}
	members, err := ctrl.Members(CapReputationUpdater)
	if err != nil || len(members) != 1 {
		t.Fatalf("unexpected members %v err=%v", members, err)
	}
	if err := ctrl.Authorize(CapReputationUpdater, updater); err != nil {
		t.Fatalf("authorize after grant: %v", err)
	}
	if err := ctrl.Authorize(CapSlasher, updater); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("capabilities must be independent, got %v", err)
	}
	if err := ctrl.Revoke(addr(1), CapReputationUpdater, updater); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := ctrl.Authorize(CapReputationUpdater, updater); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected revoked updater to be unauthorized, got %v", err)
	}
}

func TestOwnerNeedsExplicitCapability(t *testing.T) {
	ctrl := newController(t)
	for _, c := range []Capability{CapReputationUpdater, CapSlasher, CapPauser} {
		if err := ctrl.Authorize(c, addr(1)); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("owner off the %s list must be unauthorized, got %v", c, err)
		}
	}
	if err := ctrl.Grant(addr(1), CapSlasher, addr(1)); err != nil {
		t.Fatalf("self grant: %v", err)
	}
	if err := ctrl.Authorize(CapSlasher, addr(1)); err != nil {
		t.Fatalf("owner granted slasher: %v", err)
	}
	if err := ctrl.Authorize(CapReputationUpdater, addr(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("grant must not leak into other capabilities, got %v", err)
	}
	if _, err := ctrl.Members(Capability(42)); !errors.Is(err, ErrUnknownCapability) {
		t.Fatalf("expected unknown capability error, got %v", err)
	}
}

func TestSetOwner(t *testing.T) {
	ctrl := newController(t)
	if err := ctrl.SetOwner(addr(2), addr(3)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized owner change, got %v", err)
	}
	if err := ctrl.SetOwner(addr(1), addr(3)); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	if !ctrl.IsOwner(addr(3)) || ctrl.IsOwner(addr(1)) {
		t.Fatalf("ownership did not move")
	}
}

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability("slasher")
	if err != nil || c != CapSlasher {
		t.Fatalf("parse slasher: %v %v", c, err)
	}
	if _, err := ParseCapability("root"); !errors.Is(err, ErrUnknownCapability) {
		t.Fatalf("expected unknown capability, got %v", err)
	}
}
