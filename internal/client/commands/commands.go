package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/lox/guessnumber/internal/client"
)

// GlobalFlags holds common configuration for all commands
type GlobalFlags struct {
	Config    string `short:"c" default:"guessnumber-client.hcl" help:"Path to HCL configuration file"`
	ServerURL string `short:"s" name:"server-url" help:"Server URL to connect to (overrides config)"`
	Key       string `short:"k" help:"Account key file (overrides config)"`
	Secrets   string `help:"Directory holding host secrets (overrides config)"`
	LogLevel  string `short:"l" default:"warn" help:"Log level"`

	Out io.Writer `kong:"-"`
}

func (f *GlobalFlags) out() io.Writer {
	if f.Out == nil {
		return os.Stdout
	}
	return f.Out
}

// LoadConfig reads the client configuration and applies command line overrides
func LoadConfig(flags *GlobalFlags) (*client.ClientConfig, error) {
	cfg, err := client.LoadClientConfig(flags.Config)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	if flags.ServerURL != "" {
		cfg.Server.URL = flags.ServerURL
	}
	if flags.Key != "" {
		cfg.Account.KeyFile = flags.Key
	}
	if flags.Secrets != "" {
		cfg.Account.SecretsDir = flags.Secrets
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(flags *GlobalFlags) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "guessnumber"})
	level, err := log.ParseLevel(flags.LogLevel)
	if err != nil {
		level = log.WarnLevel
	}
	logger.SetLevel(level)
	return logger
}

// Session is a connected, authenticated client
type Session struct {
	Client *client.Client
	Config *client.ClientConfig
	Logger *log.Logger
}

// Close disconnects from the server
func (s *Session) Close() {
	_ = s.Client.Disconnect()
}

// Connect loads the account key, dials the server and authenticates
func Connect(ctx context.Context, flags *GlobalFlags) (*Session, error) {
	cfg, err := LoadConfig(flags)
	if err != nil {
		return nil, err
	}

	key, err := client.LoadKey(cfg.Account.KeyFile)
	if err != nil {
		return nil, err
	}

	logger := newLogger(flags)
	wsClient := client.NewClient(cfg.Server.URL, logger)

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout())
	defer cancel()
	if err := wsClient.Connect(dialCtx); err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	if err := wsClient.Auth(dialCtx, key); err != nil {
		_ = wsClient.Disconnect()
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	logger.Debug("Connected", "server", cfg.Server.URL, "address", wsClient.Address().Hex())
	return &Session{Client: wsClient, Config: cfg, Logger: logger}, nil
}

// requestContext bounds a single command by the configured request timeout
func (s *Session) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.Config.RequestTimeout())
}
