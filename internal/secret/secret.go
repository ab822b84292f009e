// Package secret manages the host's side of a game: the nonce and number it
// commits to, kept on disk until reveal.
package secret

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/lox/guessnumber/internal/fileutil"
	"github.com/lox/guessnumber/internal/game"
)

// NonceSize is the number of random bytes in a generated nonce.
const NonceSize = 16

// ErrTampered means a loaded secret no longer matches its stored commitment.
var ErrTampered = errors.New("secret does not match its commitment")

// Secret is a host's commitment preimage.
type Secret struct {
	Nonce  string `json:"nonce"`
	Number int    `json:"number"`
	game.Commitment
	GameID string `json:"gameId,omitempty"`
}

// New builds a secret from a chosen nonce and number.
func New(nonce string, number int) Secret {
	return Secret{
		Nonce:      nonce,
		Number:     number,
		Commitment: game.NewCommitment(nonce, number),
	}
}

// Generate creates a secret with a random nonce. When number is nil a random
// in-range number is drawn too.
func Generate(number *int) (Secret, error) {
	buf := make([]byte, NonceSize)
	if _, err := rand.Read(buf); err != nil {
		return Secret{}, fmt.Errorf("generate nonce: %w", err)
	}

	n := 0
	if number != nil {
		n = *number
	} else {
		v, err := rand.Int(rand.Reader, big.NewInt(game.NumberRange))
		if err != nil {
			return Secret{}, fmt.Errorf("generate number: %w", err)
		}
		n = int(v.Int64())
	}
	return New(hex.EncodeToString(buf), n), nil
}

// Save writes the secret to path readable only by the owner.
func Save(path string, s Secret) error {
	return fileutil.WriteJSON(path, s, 0o600)
}

// Load reads a secret and checks it against its commitment.
func Load(path string) (Secret, error) {
	var s Secret
	if err := fileutil.ReadJSON(path, &s); err != nil {
		return Secret{}, err
	}
	if err := s.Commitment.Verify(s.Nonce, s.Number); err != nil {
		return Secret{}, fmt.Errorf("%w: %s: %w", ErrTampered, path, err)
	}
	return s, nil
}
