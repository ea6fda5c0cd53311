package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressHRP is the human-readable bech32 prefix used when rendering accounts.
const AddressHRP = "tl"

// AddressLength is the number of raw bytes in an account address.
const AddressLength = 20

var errInvalidAddressLength = errors.New("crypto: address must be 20 bytes long")

// Address identifies a protocol participant. It is comparable so it can be used
// directly as a map key.
type Address [AddressLength]byte

// BytesToAddress copies the supplied bytes into an Address.
func BytesToAddress(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressLength {
		return addr, errInvalidAddressLength
	}
	copy(addr[:], b)
	return addr, nil
}

// MustAddress is the panicking variant of BytesToAddress, intended for tests
// and constant fixtures.
func MustAddress(b []byte) Address {
	addr, err := BytesToAddress(b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Hex renders the address as a 0x-prefixed checksummed string.
func (a Address) Hex() string {
	return common.BytesToAddress(a[:]).Hex()
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		return "0x" + hex.EncodeToString(a[:])
	}
	encoded, err := bech32.Encode(AddressHRP, conv)
	if err != nil {
		return "0x" + hex.EncodeToString(a[:])
	}
	return encoded
}

// MarshalText renders the bech32 form for JSON and YAML encoders.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts either the bech32 or the 0x-hex representation.
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// DecodeAddress parses a bech32 address with the protocol prefix or a 0x-hex
// encoded address.
func DecodeAddress(addrStr string) (Address, error) {
	trimmed := strings.TrimSpace(addrStr)
	if trimmed == "" {
		return Address{}, errors.New("crypto: empty address")
	}
	if common.IsHexAddress(trimmed) {
		return Address(common.HexToAddress(trimmed)), nil
	}
	prefix, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressHRP {
		return Address{}, fmt.Errorf("crypto: unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return BytesToAddress(conv)
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

func (k *PublicKey) Address() Address {
	return Address(crypto.PubkeyToAddress(*k.PublicKey))
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
