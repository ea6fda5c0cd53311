package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"trustlend/crypto"
)

const (
	testOwner   = "0x00000000000000000000000000000000000000a1"
	testUpdater = "0x00000000000000000000000000000000000000b2"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadCreatesDefaultWithOwnerKeystore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, filepath.Join(dir, "owner.keystore"), cfg.OwnerKeystorePath)

	key, err := crypto.LoadFromKeystore(cfg.OwnerKeystorePath, "")
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().String(), cfg.Access.Owner)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Access.Owner, reloaded.Access.Owner)
	require.Equal(t, cfg.Lending.MaxLoan.String(), reloaded.Lending.MaxLoan.String())
	require.Equal(t, cfg.Credit.Brackets, reloaded.Credit.Brackets)
}

func TestLoadParsesSections(t *testing.T) {
	path := writeConfig(t, `DataDir = "/var/lib/trustlend"

[Access]
Owner = "`+testOwner+`"
Updaters = ["`+testUpdater+`"]

[Credit]
BaseRateBps = 1200
MaxBorrowLimitWei = "20000000000000000000"

[[Credit.Brackets]]
MinScore = 700
RateBps = 400

[[Credit.Brackets]]
MinScore = 300
RateBps = 900

[Lending]
GracePeriodSeconds = 86400
MaxLoanWei = "15000000000000000000"

[Lending.BorrowQuota]
MaxRequestsPerEpoch = 3
EpochSeconds = 3600

[Trust]
MaxMembers = 10
VouchThreshold = 3
RepeatVouchBonus = true

[Pauses]
Lending = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/trustlend", cfg.DataDir)
	require.EqualValues(t, 1200, cfg.Credit.BaseRateBps)
	require.Len(t, cfg.Credit.Brackets, 2)
	require.EqualValues(t, 400, cfg.Credit.Brackets[0].RateBps)
	require.Equal(t, "20000000000000000000", cfg.Credit.MaxBorrowLimit.String())
	require.EqualValues(t, 300, cfg.Credit.MinRateBps, "unset fields keep defaults")
	require.EqualValues(t, 86400, cfg.Lending.GracePeriodSeconds)
	require.EqualValues(t, 3, cfg.Lending.BorrowQuota.MaxRequestsPerEpoch)
	require.Equal(t, 10, cfg.Trust.MaxMembers)
	require.True(t, cfg.Trust.RepeatVouchBonus)
	require.EqualValues(t, 150, cfg.Trust.DefaulterPenalty)

	protocolCfg, err := cfg.Protocol()
	require.NoError(t, err)
	owner, _ := crypto.DecodeAddress(testOwner)
	require.Equal(t, owner, protocolCfg.Owner)
	require.Len(t, protocolCfg.Updaters, 1)
	require.True(t, protocolCfg.Pauses["lending"])
	require.False(t, protocolCfg.Pauses["trust"])
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `[Access]
Owner = "`+testOwner+`"
Admin = "nobody"
`)
	_, err := Load(path)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "Admin"), err.Error())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing owner", func(c *Config) { c.Access.Owner = "" }},
		{"foreign prefix", func(c *Config) { c.Access.Owner = "cosmos1qqqsyqcyq5rqwzqfpg9scrgwpugpzysnzs23v8" }},
		{"bad updater", func(c *Config) { c.Access.Updaters = []string{"nope"} }},
		{"min above max loan", func(c *Config) { c.Lending.MinLoan.Set(c.Lending.MaxLoan); c.Lending.MinLoan.Add(c.Lending.MinLoan, c.Lending.MinLoan) }},
		{"zero circle size", func(c *Config) { c.Trust.MaxMembers = 0 }},
		{"min rate above base", func(c *Config) { c.Credit.MinRateBps = c.Credit.BaseRateBps + 1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Access.Owner = testOwner
			require.NoError(t, Validate(cfg))
			tc.mutate(cfg)
			require.Error(t, Validate(cfg))
		})
	}
}
