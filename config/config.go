package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"trustlend/core/protocol"
	"trustlend/crypto"
	"trustlend/native/credit"
	"trustlend/native/lending"
	"trustlend/native/trust"
)

// Config holds the protocol parameters loaded from TOML.
type Config struct {
	DataDir           string `toml:"DataDir"`
	OwnerKeystorePath string `toml:"OwnerKeystorePath"`

	Access  Access         `toml:"Access"`
	Credit  credit.Params  `toml:"Credit"`
	Lending lending.Params `toml:"Lending"`
	Trust   trust.Params   `toml:"Trust"`
	Pauses  Pauses         `toml:"Pauses"`
}

// Default returns the reference parameters without an owner.
func Default() *Config {
	return &Config{
		DataDir: "./trustlend-data",
		Access:  Access{Updaters: []string{}},
		Credit:  credit.DefaultParams(),
		Lending: lending.DefaultParams(),
		Trust:   trust.DefaultParams(),
	}
}

// Load loads the configuration from the given path. A missing file is
// replaced by a default one whose owner key is generated into a keystore next
// to it.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
	}
	cfg.Credit.EnsureDefaults()
	cfg.Lending.EnsureDefaults()
	if cfg.Access.Updaters == nil {
		cfg.Access.Updaters = []string{}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.OwnerKeystorePath = keystorePath
	cfg.Access.Owner = key.PubKey().Address().String()

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Protocol converts the file representation into the engine configuration.
func (c *Config) Protocol() (protocol.Config, error) {
	owner, err := crypto.DecodeAddress(c.Access.Owner)
	if err != nil {
		return protocol.Config{}, fmt.Errorf("access.Owner: %w", err)
	}
	updaters := make([]crypto.Address, 0, len(c.Access.Updaters))
	for i, raw := range c.Access.Updaters {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return protocol.Config{}, fmt.Errorf("access.Updaters[%d]: %w", i, err)
		}
		updaters = append(updaters, addr)
	}
	return protocol.Config{
		Owner:    owner,
		Updaters: updaters,
		Credit:   c.Credit.Clone(),
		Lending:  c.Lending.Clone(),
		Trust:    c.Trust,
		Pauses:   c.Pauses.Map(),
	}, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}
