package client

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// ClientConfig represents the complete client configuration
type ClientConfig struct {
	Server  *ServerConnection `hcl:"server,block"`
	Account *AccountSettings  `hcl:"account,block"`
}

// ServerConnection contains server connection settings
type ServerConnection struct {
	URL            string `hcl:"url,optional"            env:"GUESSNUMBER_SERVER_URL"`
	ConnectTimeout int    `hcl:"connect_timeout,optional" env:"GUESSNUMBER_CONNECT_TIMEOUT"`
	RequestTimeout int    `hcl:"request_timeout,optional" env:"GUESSNUMBER_REQUEST_TIMEOUT"`
}

// AccountSettings locates the signing key and the host secrets
type AccountSettings struct {
	KeyFile    string `hcl:"key_file,optional"    env:"GUESSNUMBER_KEY_FILE"`
	SecretsDir string `hcl:"secrets_dir,optional" env:"GUESSNUMBER_SECRETS_DIR"`
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() *ClientConfig {
	c := &ClientConfig{}
	c.applyDefaults()
	return c
}

func (c *ClientConfig) applyDefaults() {
	if c.Server == nil {
		c.Server = &ServerConnection{}
	}
	if c.Account == nil {
		c.Account = &AccountSettings{}
	}
	if c.Server.URL == "" {
		c.Server.URL = "http://localhost:8080"
	}
	if c.Server.ConnectTimeout == 0 {
		c.Server.ConnectTimeout = 10
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 30
	}
	if c.Account.KeyFile == "" {
		c.Account.KeyFile = "guessnumber.key"
	}
	if c.Account.SecretsDir == "" {
		c.Account.SecretsDir = "secrets"
	}
}

// LoadClientConfig loads client configuration from an HCL file, then
// applies GUESSNUMBER_* environment overrides
func LoadClientConfig(filename string) (*ClientConfig, error) {
	config := &ClientConfig{}

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

	if config.Server == nil {
		config.Server = &ServerConnection{}
	}
	if config.Account == nil {
		config.Account = &AccountSettings{}
	}
	if err := env.Parse(config.Server); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := env.Parse(config.Account); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	config.applyDefaults()
	return config, nil
}

// Validate validates the client configuration
func (c *ClientConfig) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server URL is required")
	}
	if c.Server.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	return nil
}

// ConnectTimeout returns the dial timeout
func (c *ClientConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.Server.ConnectTimeout) * time.Second
}

// RequestTimeout returns the per-request timeout
func (c *ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}

// SecretPath returns where the host secret for name is kept
func (c *ClientConfig) SecretPath(name string) string {
	return filepath.Join(c.Account.SecretsDir, name+".json")
}

// LoadKey reads the hex-encoded account key
func LoadKey(path string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.LoadECDSA(path)
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", path, err)
	}
	return key, nil
}

// GenerateKey creates a new account key at path. An existing file is never
// overwritten.
func GenerateKey(path string) (*ecdsa.PrivateKey, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("key file %s already exists", path)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	if err := crypto.SaveECDSA(path, key); err != nil {
		return nil, fmt.Errorf("save key %s: %w", path, err)
	}
	return key, nil
}
