package config

import (
	"fmt"

	"trustlend/crypto"
)

// Validate checks the loaded configuration for consistency.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	owner, err := crypto.DecodeAddress(cfg.Access.Owner)
	if err != nil {
		return fmt.Errorf("access: invalid owner: %w", err)
	}
	if owner.IsZero() {
		return fmt.Errorf("access: owner must not be the zero address")
	}
	for i, raw := range cfg.Access.Updaters {
		if _, err := crypto.DecodeAddress(raw); err != nil {
			return fmt.Errorf("access: invalid updater %d: %w", i, err)
		}
	}
	if err := cfg.Credit.Validate(); err != nil {
		return err
	}
	if err := cfg.Lending.Validate(); err != nil {
		return err
	}
	if err := cfg.Trust.Validate(); err != nil {
		return err
	}
	if cfg.Lending.MaxLoan.Cmp(cfg.Credit.MaxBorrowLimit) > 0 {
		return fmt.Errorf("lending: MaxLoanWei exceeds credit MaxBorrowLimitWei")
	}
	return nil
}
