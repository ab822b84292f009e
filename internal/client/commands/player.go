package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/lox/guessnumber/internal/server"
)

// GuessCommand stakes a guess in a game
type GuessCommand struct {
	GameID string `arg:"" help:"Game to join"`
	Number int    `arg:"" help:"Guess, 0 to 999"`
	Stake  string `help:"Stake to send (defaults to the game's bet)"`
}

func (cmd *GuessCommand) Run(ctx context.Context, flags *GlobalFlags) error {
	session, err := Connect(ctx, flags)
	if err != nil {
		return err
	}
	defer session.Close()

	reqCtx, cancel := session.requestContext(ctx)
	defer cancel()

	stake := cmd.Stake
	if stake == "" {
		state, err := session.Client.GetGame(reqCtx, cmd.GameID)
		if err != nil {
			return err
		}
		stake = state.BetAmount
	}

	if _, err := session.Client.Guess(reqCtx, cmd.GameID, cmd.Number, stake); err != nil {
		return err
	}
	fmt.Fprintf(flags.out(), "Guessed %d in game %s (stake %s)\n", cmd.Number, cmd.GameID, stake)
	return nil
}

// StatusCommand shows a game, optionally following it until it ends
type StatusCommand struct {
	GameID string `arg:"" help:"Game to show"`
	Watch  bool   `short:"w" help:"Follow game events until the game ends"`
}

func (cmd *StatusCommand) Run(ctx context.Context, flags *GlobalFlags) error {
	session, err := Connect(ctx, flags)
	if err != nil {
		return err
	}
	defer session.Close()

	if !cmd.Watch {
		reqCtx, cancel := session.requestContext(ctx)
		defer cancel()

		state, err := session.Client.GetGame(reqCtx, cmd.GameID)
		if err != nil {
			return err
		}
		printGameState(flags.out(), state)
		return nil
	}

	done := make(chan struct{})
	for _, mt := range []server.MessageType{
		server.MessageTypeCommitGuess,
		server.MessageTypeRevealAnswer,
		server.MessageTypeRewardWinner,
		server.MessageTypeGameEnded,
	} {
		session.Client.AddEventHandler(mt, func(msg *server.Message) {
			printEvent(flags.out(), msg)
			if msg.Type == server.MessageTypeGameEnded {
				close(done)
			}
		})
	}

	reqCtx, cancel := session.requestContext(ctx)
	state, err := session.Client.Subscribe(reqCtx, cmd.GameID)
	cancel()
	if err != nil {
		return err
	}
	printGameState(flags.out(), state)
	if state.State == "ended" {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-session.Client.Done():
		return fmt.Errorf("connection closed before game %s ended", cmd.GameID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListCommand lists all games known to the server
type ListCommand struct{}

func (cmd *ListCommand) Run(ctx context.Context, flags *GlobalFlags) error {
	session, err := Connect(ctx, flags)
	if err != nil {
		return err
	}
	defer session.Close()

	reqCtx, cancel := session.requestContext(ctx)
	defer cancel()

	games, err := session.Client.ListGames(reqCtx)
	if err != nil {
		return err
	}

	if len(games) == 0 {
		fmt.Fprintln(flags.out(), "No games available")
		return nil
	}
	fmt.Fprintln(flags.out(), "Available games:")
	for _, g := range games {
		fmt.Fprintf(flags.out(), "  %s: %s, %d/%d players, bet %s, host %s\n",
			g.GameID, g.State, g.PlayerCount, g.PlayerCap, g.BetAmount, g.Host.Hex())
	}
	return nil
}

func printGameState(w io.Writer, state server.GameStateData) {
	fmt.Fprintf(w, "Game %s [%s]\n", state.GameID, state.State)
	fmt.Fprintf(w, "  host:   %s\n", state.Host.Hex())
	fmt.Fprintf(w, "  escrow: %s\n", state.Escrow.Hex())
	fmt.Fprintf(w, "  bet:    %s\n", state.BetAmount)
	fmt.Fprintf(w, "  players %d/%d\n", len(state.Players), state.PlayerCap)
	for _, p := range state.Players {
		fmt.Fprintf(w, "    %s guessed %d\n", p.Address.Hex(), p.Number)
	}

	r := state.Result
	if r == nil {
		return
	}
	if r.OutOfRange {
		fmt.Fprintf(w, "  host number %d was out of range, pot split between all players\n", r.Number)
	} else {
		fmt.Fprintf(w, "  host number %d, winning distance %d\n", r.Number, r.Distance)
	}
	winners := make([]string, len(r.Winners))
	for i, a := range r.Winners {
		winners[i] = a.Hex()
	}
	fmt.Fprintf(w, "  winners: %s\n", strings.Join(winners, ", "))
	fmt.Fprintf(w, "  pot %s, share %s, host refund %s\n", r.Pot, r.Share, r.HostRefund)
}

func printEvent(w io.Writer, msg *server.Message) {
	switch msg.Type {
	case server.MessageTypeCommitGuess:
		var data server.CommitGuessData
		if msg.Decode(&data) == nil {
			fmt.Fprintf(w, "%s guessed %d\n", data.Player.Hex(), data.Number)
		}
	case server.MessageTypeRevealAnswer:
		var data server.RevealAnswerData
		if msg.Decode(&data) == nil {
			fmt.Fprintf(w, "Host revealed %d\n", data.Number)
		}
	case server.MessageTypeRewardWinner:
		var data server.RewardWinnersData
		if msg.Decode(&data) == nil {
			fmt.Fprintf(w, "%s won %s\n", data.Winner.Hex(), data.Amount)
		}
	case server.MessageTypeGameEnded:
		fmt.Fprintln(w, "Game ended")
	}
}
