package config

// Access names the protocol owner and the accounts granted the reputation
// updater capability at startup. Addresses use the bech32 or 0x form.
type Access struct {
	Owner    string   `toml:"Owner"`
	Updaters []string `toml:"Updaters"`
}

// Pauses captures the initial module pause switches. Switches toggled at
// runtime are persisted in state and take precedence on restart.
type Pauses struct {
	Reputation bool `toml:"Reputation"`
	Trust      bool `toml:"Trust"`
	Lending    bool `toml:"Lending"`
}

// Map renders the switches keyed by module name.
func (p Pauses) Map() map[string]bool {
	return map[string]bool{
		"reputation": p.Reputation,
		"trust":      p.Trust,
		"lending":    p.Lending,
	}
}
