package protocol

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"trustlend/crypto"
)

const (
	ModuleReputation = "reputation"
	ModuleTrust      = "trust"
	ModuleLending    = "lending"
)

// Modules lists the pausable module names.
var Modules = []string{ModuleReputation, ModuleTrust, ModuleLending}

// ModuleAddress derives the deterministic account a module acts as when it
// calls into another module.
func ModuleAddress(name string) crypto.Address {
	digest := ethcrypto.Keccak256([]byte("trustlend/module/" + name))
	var addr crypto.Address
	copy(addr[:], digest[12:])
	return addr
}

var (
	// TrustModuleAddress posts the join and vouch bonuses.
	TrustModuleAddress = ModuleAddress(ModuleTrust)
	// LendingModuleAddress posts loan effects and slashes circles.
	LendingModuleAddress = ModuleAddress(ModuleLending)
)

// IsKnownModule reports whether name is a pausable module.
func IsKnownModule(name string) bool {
	for _, m := range Modules {
		if m == name {
			return true
		}
	}
	return false
}
