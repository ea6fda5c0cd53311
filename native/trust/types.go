package trust

import (
	"errors"

	"trustlend/crypto"
)

const secondsPerDay = 86_400

// Params captures the tunable circle rules and reputation effects.
type Params struct {
	MinCreatorScore uint64 `toml:"MinCreatorScore"`
	MaxNameLength   int    `toml:"MaxNameLength"`
	MaxMembers      int    `toml:"MaxMembers"`
	MaxThreshold    uint64 `toml:"MaxThreshold"`

	JoinBonus        int64 `toml:"JoinBonus"`
	VouchThreshold   int   `toml:"VouchThreshold"`
	VouchBonus       int64 `toml:"VouchBonus"`
	RepeatVouchBonus bool  `toml:"RepeatVouchBonus"`
	DefaulterPenalty int64 `toml:"DefaulterPenalty"`
	VoucherPenalty   int64 `toml:"VoucherPenalty"`

	CirclePoints       uint64 `toml:"CirclePoints"`
	VouchPoints        uint64 `toml:"VouchPoints"`
	MatureCirclePoints uint64 `toml:"MatureCirclePoints"`
	MatureAfterSeconds int64  `toml:"MatureAfterSeconds"`
}

// DefaultParams returns the protocol's reference circle rules.
func DefaultParams() Params {
	return Params{
		MinCreatorScore:    200,
		MaxNameLength:      50,
		MaxMembers:         15,
		MaxThreshold:       1000,
		JoinBonus:          10,
		VouchThreshold:     2,
		VouchBonus:         20,
		DefaulterPenalty:   150,
		VoucherPenalty:     30,
		CirclePoints:       50,
		VouchPoints:        25,
		MatureCirclePoints: 30,
		MatureAfterSeconds: 30 * secondsPerDay,
	}
}

// Validate checks the circle rules for consistency.
func (p Params) Validate() error {
	if p.MaxMembers < 1 {
		return errors.New("trust: max members must be positive")
	}
	if p.MaxNameLength < 1 {
		return errors.New("trust: max name length must be positive")
	}
	if p.VouchThreshold < 1 {
		return errors.New("trust: vouch threshold must be positive")
	}
	if p.JoinBonus < 0 || p.VouchBonus < 0 || p.DefaulterPenalty < 0 || p.VoucherPenalty < 0 {
		return errors.New("trust: reputation effects must not be negative")
	}
	if p.MatureAfterSeconds < 0 {
		return errors.New("trust: maturity must not be negative")
	}
	return nil
}

// Circle is a bounded group of accounts that vouch for one another.
type Circle struct {
	ID            uint64
	Name          string
	Creator       crypto.Address
	MinReputation uint64
	CreatedAt     uint64
	Active        bool
	Members       []crypto.Address
}

// Clone returns a deep copy of the circle.
func (c *Circle) Clone() *Circle {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Members = append([]crypto.Address(nil), c.Members...)
	return &clone
}

// IsMember reports whether account belongs to the circle.
func (c *Circle) IsMember(account crypto.Address) bool {
	if c == nil {
		return false
	}
	for _, member := range c.Members {
		if member == account {
			return true
		}
	}
	return false
}
