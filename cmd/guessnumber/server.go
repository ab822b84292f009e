package main

import (
	"context"
	"fmt"

	"github.com/lox/guessnumber/cmd/guessnumber/shared"
	"github.com/lox/guessnumber/internal/ledger"
	"github.com/lox/guessnumber/internal/server"
)

// ServerCmd runs the game server
type ServerCmd struct {
	Config   string `kong:"name='server-config',default='guessnumber.hcl',help='Server HCL configuration file'"`
	Addr     string `kong:"help='Listen address (overrides config)'"`
	Debug    bool   `kong:"help='Enable debug logging'"`
	LedgerDB string `kong:"name='ledger-path',help='Persist balances in a LevelDB at this path (overrides config)'"`
}

func (c *ServerCmd) Run(ctx context.Context) error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	if c.LedgerDB != "" {
		cfg.Ledger.Backend = ledger.BackendLevelDB
		cfg.Ledger.Path = c.LedgerDB
	}
	if c.Debug {
		cfg.Server.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	logger := shared.SetupLogger(level)

	ttl, err := cfg.ChallengeTTL()
	if err != nil {
		return err
	}
	genesis, err := cfg.Genesis()
	if err != nil {
		return err
	}

	store, err := ledger.Open(cfg.Ledger.Backend, cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close ledger", "error", err)
		}
	}()

	games := server.NewGameService(store, cfg.GameRules(), logger)
	if err := games.Fund(ctx, genesis); err != nil {
		return fmt.Errorf("fund accounts: %w", err)
	}
	restored, err := games.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore games: %w", err)
	}

	addr := cfg.GetServerAddress()
	if c.Addr != "" {
		addr = c.Addr
	}
	s := server.NewServer(addr, games, logger, server.WithChallengeTTL(ttl))

	logger.Info("Starting guessnumber server",
		"address", addr,
		"ledger", cfg.Ledger.Backend,
		"accounts", len(genesis),
		"restored_games", restored,
		"challenge_ttl", ttl,
		"host_stake_in_pool", cfg.GameRules().HostStakeInPool,
		"enforce_player_cap", cfg.GameRules().EnforcePlayerCap,
	)

	return s.Serve(ctx)
}
