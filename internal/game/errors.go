package game

import "errors"

// Errors returned by game operations. Callers match them with errors.Is; the
// engine adds detail by wrapping.
var (
	ErrConfiguration    = errors.New("invalid game configuration")
	ErrGameEnded        = errors.New("this game has ended")
	ErrOutOfRange       = errors.New("number out of range")
	ErrDuplicateGuess   = errors.New("player has made a guess")
	ErrNumberTaken      = errors.New("this number has been guessed by other player")
	ErrStakeMismatch    = errors.New("player is not sending the same stake as host")
	ErrPlayerCapReached = errors.New("player cap reached")
	ErrUnauthorized     = errors.New("caller is not the host")
	ErrNonceMismatch    = errors.New("nonce doesn't match")
	ErrNumberMismatch   = errors.New("number doesn't match")
	ErrNotRevealable    = errors.New("the game is not revealable")
	ErrTransferFailed   = errors.New("transfer failed")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrConfiguration, "configuration"},
	{ErrGameEnded, "game_ended"},
	{ErrOutOfRange, "out_of_range"},
	{ErrDuplicateGuess, "duplicate_guess"},
	{ErrNumberTaken, "number_taken"},
	{ErrStakeMismatch, "stake_mismatch"},
	{ErrPlayerCapReached, "player_cap_reached"},
	{ErrUnauthorized, "unauthorized"},
	{ErrNonceMismatch, "nonce_mismatch"},
	{ErrNumberMismatch, "number_mismatch"},
	{ErrNotRevealable, "not_revealable"},
	{ErrTransferFailed, "transfer_failed"},
}

// ErrorCode returns the stable wire code for a game error, or "internal" for
// anything the engine did not produce.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}
