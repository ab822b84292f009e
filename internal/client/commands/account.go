package commands

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lox/guessnumber/internal/client"
)

// KeygenCommand creates a new account key
type KeygenCommand struct{}

func (cmd *KeygenCommand) Run(flags *GlobalFlags) error {
	cfg, err := LoadConfig(flags)
	if err != nil {
		return err
	}

	key, err := client.GenerateKey(cfg.Account.KeyFile)
	if err != nil {
		return err
	}

	fmt.Fprintf(flags.out(), "Key written to %s\n", cfg.Account.KeyFile)
	fmt.Fprintf(flags.out(), "Address: %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
	return nil
}

// BalanceCommand shows an account balance
type BalanceCommand struct {
	Address string `arg:"" optional:"" help:"Account to query (defaults to your own)"`
}

func (cmd *BalanceCommand) Run(ctx context.Context, flags *GlobalFlags) error {
	var addr *common.Address
	if cmd.Address != "" {
		if !common.IsHexAddress(cmd.Address) {
			return fmt.Errorf("invalid address %q", cmd.Address)
		}
		a := common.HexToAddress(cmd.Address)
		addr = &a
	}

	session, err := Connect(ctx, flags)
	if err != nil {
		return err
	}
	defer session.Close()

	reqCtx, cancel := session.requestContext(ctx)
	defer cancel()

	data, err := session.Client.Balance(reqCtx, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(flags.out(), "%s: %s\n", data.Address.Hex(), data.Balance)
	return nil
}
