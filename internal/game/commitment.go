package game

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Commitment binds the host to a secret nonce and a secret number before any
// player guesses.
type Commitment struct {
	NonceHash       common.Hash `json:"nonceHash"`
	NonceNumberHash common.Hash `json:"nonceNumberHash"`
}

// HashNonce returns keccak256(nonce).
func HashNonce(nonce string) common.Hash {
	return crypto.Keccak256Hash([]byte(nonce))
}

// HashNonceNumber returns keccak256(nonce + decimal(number)).
func HashNonceNumber(nonce string, number int) common.Hash {
	return crypto.Keccak256Hash([]byte(nonce + strconv.Itoa(number)))
}

// NewCommitment computes both commitment digests for a host secret.
func NewCommitment(nonce string, number int) Commitment {
	return Commitment{
		NonceHash:       HashNonce(nonce),
		NonceNumberHash: HashNonceNumber(nonce, number),
	}
}

// Verify checks a revealed secret against the commitment. The nonce is checked
// first so callers can tell which half of the secret was wrong.
func (c Commitment) Verify(nonce string, number int) error {
	if HashNonce(nonce) != c.NonceHash {
		return ErrNonceMismatch
	}
	if HashNonceNumber(nonce, number) != c.NonceNumberHash {
		return ErrNumberMismatch
	}
	return nil
}
