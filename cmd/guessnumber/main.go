package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/lox/guessnumber/cmd/guessnumber/shared"
	"github.com/lox/guessnumber/internal/client/commands"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	commands.GlobalFlags

	Version kong.VersionFlag        `short:"v" help:"Show version"`
	Server  ServerCmd               `cmd:"" help:"Run the game server"`
	Keygen  commands.KeygenCommand  `cmd:"" help:"Create an account key"`
	Commit  commands.CommitCommand  `cmd:"" help:"Generate and store a host secret"`
	Create  commands.CreateCommand  `cmd:"" help:"Create a game from a stored secret"`
	Guess   commands.GuessCommand   `cmd:"" help:"Stake a guess in a game"`
	Reveal  commands.RevealCommand  `cmd:"" help:"Reveal a secret and settle its game"`
	Status  commands.StatusCommand  `cmd:"" help:"Show a game"`
	List    commands.ListCommand    `cmd:"" help:"List games"`
	Balance commands.BalanceCommand `cmd:"" help:"Show an account balance"`
}

func main() {
	runCtx, stop := shared.SignalContext(context.Background())
	defer stop()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("guessnumber"),
		kong.Description("Commit-reveal number guessing wagers over WebSocket"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(runCtx, (*context.Context)(nil)),
	)

	err := ctx.Run(&cli.GlobalFlags)
	ctx.FatalIfErrorf(err)
}
