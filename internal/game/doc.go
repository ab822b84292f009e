// Package game implements a commit-reveal number guessing wager.
//
// A host commits to a secret nonce and a secret number by publishing two
// keccak256 digests and staking the bet. Players then stake the same bet and
// guess a number in [0, 1000). When the host reveals the secret, the players
// closest to the host's number split the pool; if the host's number is itself
// out of range, every player shares it equally.
//
// # Basic Usage
//
//	c := game.NewCommitment("hello", 35)
//	g, err := game.New(ctx, id, game.Config{
//	    NonceHash:       c.NonceHash,
//	    NonceNumberHash: c.NonceNumberHash,
//	    PlayerCap:       2,
//	    BetAmount:       bet,
//	    Host:            host,
//	}, ledger)
//	err = g.Guess(ctx, alice, 25, bet)
//	settlement, err := g.Reveal(ctx, host, "hello", 35)
//
// # Funds
//
// Stakes move through a Ledger: the host's stake at creation, each player's
// stake on a successful guess, and the payouts on reveal. Every ledger call is
// a single atomic batch, so a failed payout leaves the game in StateGuessing
// and the reveal can be retried.
//
// Settle is the pure settlement function; it is exported so that observers can
// recompute a game's outcome from its public record.
package game
