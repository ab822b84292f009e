package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/lox/guessnumber/internal/secret"
)

// CommitCommand generates a host secret and prints its commitment
type CommitCommand struct {
	Name   string `arg:"" help:"Name to store the secret under"`
	Number *int   `help:"Number to commit to (random when omitted)"`
	Nonce  string `help:"Nonce to commit to (random when omitted)"`
}

func (cmd *CommitCommand) Run(flags *GlobalFlags) error {
	cfg, err := LoadConfig(flags)
	if err != nil {
		return err
	}

	path := cfg.SecretPath(cmd.Name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("secret %s already exists", path)
	}

	var s secret.Secret
	if cmd.Nonce != "" {
		if cmd.Number == nil {
			return errors.New("--number is required with --nonce")
		}
		s = secret.New(cmd.Nonce, *cmd.Number)
	} else if s, err = secret.Generate(cmd.Number); err != nil {
		return err
	}

	if err := secret.Save(path, s); err != nil {
		return err
	}

	fmt.Fprintf(flags.out(), "Secret saved to %s\n", path)
	fmt.Fprintf(flags.out(), "Nonce hash:        %s\n", s.NonceHash.Hex())
	fmt.Fprintf(flags.out(), "Nonce+number hash: %s\n", s.NonceNumberHash.Hex())
	return nil
}

// CreateCommand deploys a game from a saved secret
type CreateCommand struct {
	Name      string `arg:"" help:"Secret to create the game from"`
	PlayerCap int    `short:"n" default:"10" help:"Maximum number of players"`
	Stake     string `required:"" help:"Bet amount every participant stakes"`
}

func (cmd *CreateCommand) Run(ctx context.Context, flags *GlobalFlags) error {
	session, err := Connect(ctx, flags)
	if err != nil {
		return err
	}
	defer session.Close()

	path := session.Config.SecretPath(cmd.Name)
	s, err := secret.Load(path)
	if err != nil {
		return err
	}
	if s.GameID != "" {
		return fmt.Errorf("secret %s already backs game %s", cmd.Name, s.GameID)
	}

	reqCtx, cancel := session.requestContext(ctx)
	defer cancel()

	created, err := session.Client.CreateGame(reqCtx, s.Commitment, cmd.PlayerCap, cmd.Stake)
	if err != nil {
		return err
	}

	s.GameID = created.GameID
	if err := secret.Save(path, s); err != nil {
		return fmt.Errorf("game %s created but secret not updated: %w", created.GameID, err)
	}

	fmt.Fprintf(flags.out(), "Game %s created (cap %d, bet %s)\n", created.GameID, created.PlayerCap, created.BetAmount)
	return nil
}

// RevealCommand reveals the secret behind a game and settles it
type RevealCommand struct {
	Name string `arg:"" help:"Secret the game was created from"`
}

func (cmd *RevealCommand) Run(ctx context.Context, flags *GlobalFlags) error {
	session, err := Connect(ctx, flags)
	if err != nil {
		return err
	}
	defer session.Close()

	s, err := secret.Load(session.Config.SecretPath(cmd.Name))
	if err != nil {
		return err
	}
	if s.GameID == "" {
		return fmt.Errorf("secret %s has no game yet", cmd.Name)
	}

	reqCtx, cancel := session.requestContext(ctx)
	defer cancel()

	state, err := session.Client.Reveal(reqCtx, s.GameID, s.Nonce, s.Number)
	if err != nil {
		return err
	}
	printGameState(flags.out(), state)
	return nil
}
