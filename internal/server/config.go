package server

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/guessnumber/internal/amount"
	"github.com/lox/guessnumber/internal/game"
	"github.com/lox/guessnumber/internal/ledger"
)

// Config represents the complete server configuration
type Config struct {
	Server   *ServerSettings `hcl:"server,block"`
	Ledger   *LedgerSettings `hcl:"ledger,block"`
	Rules    *RulesSettings  `hcl:"rules,block"`
	Accounts []AccountConfig `hcl:"account,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address      string `hcl:"address,optional"`
	Port         int    `hcl:"port,optional"`
	LogLevel     string `hcl:"log_level,optional"`
	ChallengeTTL string `hcl:"challenge_ttl,optional"`
}

// LedgerSettings selects where balances are kept
type LedgerSettings struct {
	Backend string `hcl:"backend,optional"`
	Path    string `hcl:"path,optional"`
}

// RulesSettings are applied to every game the server creates
type RulesSettings struct {
	EnforcePlayerCap bool `hcl:"enforce_player_cap,optional"`
	HostStakeInPool  bool `hcl:"host_stake_in_pool,optional"`
}

// AccountConfig funds an account when the server starts
type AccountConfig struct {
	Address string `hcl:"address,label"`
	Balance string `hcl:"balance"`
}

// envOverrides are read after the file so deployments can adjust a shared
// config without editing it.
type envOverrides struct {
	Address       string `env:"GUESSNUMBER_ADDRESS"`
	Port          int    `env:"GUESSNUMBER_PORT"`
	LogLevel      string `env:"GUESSNUMBER_LOG_LEVEL"`
	LedgerBackend string `env:"GUESSNUMBER_LEDGER_BACKEND"`
	LedgerPath    string `env:"GUESSNUMBER_LEDGER_PATH"`
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Ledger == nil {
		c.Ledger = &LedgerSettings{}
	}
	if c.Rules == nil {
		c.Rules = &RulesSettings{}
	}

	if c.Server.Address == "" {
		c.Server.Address = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ChallengeTTL == "" {
		c.Server.ChallengeTTL = "1m"
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = ledger.BackendMemory
	}
	if c.Ledger.Backend == ledger.BackendLevelDB && c.Ledger.Path == "" {
		c.Ledger.Path = "guessnumber-ledger"
	}
}

// LoadConfig loads configuration from an HCL file. A missing file yields
// the defaults. Environment overrides are applied in both cases.
func LoadConfig(filename string) (*Config, error) {
	config := &Config{}

	if _, err := os.Stat(filename); err == nil {
		parser := hclparse.NewParser()
		file, diags := parser.ParseHCLFile(filename)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
		}

		diags = gohcl.DecodeBody(file.Body, nil, config)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyDefaults()
	return config, nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Ledger == nil {
		c.Ledger = &LedgerSettings{}
	}
	if o.Address != "" {
		c.Server.Address = o.Address
	}
	if o.Port != 0 {
		c.Server.Port = o.Port
	}
	if o.LogLevel != "" {
		c.Server.LogLevel = o.LogLevel
	}
	if o.LedgerBackend != "" {
		c.Ledger.Backend = o.LedgerBackend
	}
	if o.LedgerPath != "" {
		c.Ledger.Path = o.LedgerPath
	}
	return nil
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if _, err := c.ChallengeTTL(); err != nil {
		return err
	}

	switch c.Ledger.Backend {
	case ledger.BackendMemory:
	case ledger.BackendLevelDB:
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger: path is required for the %s backend", c.Ledger.Backend)
		}
	default:
		return fmt.Errorf("ledger: unknown backend %q", c.Ledger.Backend)
	}

	if _, err := c.Genesis(); err != nil {
		return err
	}
	return nil
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() (log.Level, error) {
	level, err := log.ParseLevel(c.Server.LogLevel)
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.Server.LogLevel)
	}
	return level, nil
}

// ChallengeTTL parses how long clients have to answer the auth challenge.
func (c *Config) ChallengeTTL() (time.Duration, error) {
	d, err := time.ParseDuration(c.Server.ChallengeTTL)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid challenge_ttl %q", c.Server.ChallengeTTL)
	}
	return d, nil
}

// GameRules returns the rules applied to new games.
func (c *Config) GameRules() game.Rules {
	return game.Rules{
		EnforcePlayerCap: c.Rules.EnforcePlayerCap,
		HostStakeInPool:  c.Rules.HostStakeInPool,
	}
}

// Genesis returns the starting balances in wei. Repeated addresses are
// summed.
func (c *Config) Genesis() (map[common.Address]*big.Int, error) {
	out := make(map[common.Address]*big.Int, len(c.Accounts))
	for _, acct := range c.Accounts {
		if !common.IsHexAddress(acct.Address) {
			return nil, fmt.Errorf("account %q: invalid address", acct.Address)
		}
		wei, err := amount.Parse(acct.Balance)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", acct.Address, err)
		}

		addr := common.HexToAddress(acct.Address)
		if prev, ok := out[addr]; ok {
			wei.Add(wei, prev)
		}
		out[addr] = wei
	}
	return out, nil
}
