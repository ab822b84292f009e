// Package auth authenticates connections by having the client sign a
// server-issued challenge with its account key.
package auth

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/coder/quartz"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrInvalidSignature indicates the signature could not be decoded or
	// recovered.
	ErrInvalidSignature = errors.New("auth: invalid signature")

	// ErrAddressMismatch indicates the signature is valid but belongs to a
	// different account than the one claimed.
	ErrAddressMismatch = errors.New("auth: signature does not match address")

	// ErrChallengeExpired indicates the client answered too late.
	ErrChallengeExpired = errors.New("auth: challenge expired")
)

const (
	// ChallengeSize is the number of random bytes in a challenge.
	ChallengeSize = 32

	// DefaultChallengeTTL is how long a client has to answer.
	DefaultChallengeTTL = time.Minute
)

// Challenge is a one-time value the client must sign.
type Challenge struct {
	Nonce     []byte
	ExpiresAt time.Time
}

// Issuer creates and checks challenges.
type Issuer struct {
	clock quartz.Clock
	ttl   time.Duration
	rand  io.Reader
}

// NewIssuer returns an issuer whose challenges live for ttl.
func NewIssuer(clock quartz.Clock, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &Issuer{clock: clock, ttl: ttl, rand: rand.Reader}
}

// Issue creates a fresh challenge.
func (i *Issuer) Issue() (Challenge, error) {
	nonce := make([]byte, ChallengeSize)
	if _, err := io.ReadFull(i.rand, nonce); err != nil {
		return Challenge{}, fmt.Errorf("read challenge: %w", err)
	}
	return Challenge{Nonce: nonce, ExpiresAt: i.clock.Now().Add(i.ttl)}, nil
}

// Verify checks that sig is claimed's signature over the challenge and
// returns the authenticated address.
func (i *Issuer) Verify(c Challenge, claimed common.Address, sig []byte) (common.Address, error) {
	if !i.clock.Now().Before(c.ExpiresAt) {
		return common.Address{}, ErrChallengeExpired
	}

	signer, err := Recover(c.Nonce, sig)
	if err != nil {
		return common.Address{}, err
	}
	if signer != claimed {
		return common.Address{}, fmt.Errorf("%w: signed by %s", ErrAddressMismatch, signer.Hex())
	}
	return signer, nil
}

// Digest is the hash that gets signed for a challenge.
func Digest(nonce []byte) []byte {
	return crypto.Keccak256(nonce)
}

// Sign answers a challenge with key.
func Sign(key *ecdsa.PrivateKey, nonce []byte) ([]byte, error) {
	return crypto.Sign(Digest(nonce), key)
}

// Recover returns the address that produced sig over the challenge nonce.
// Both raw (v in {0,1}) and wallet style (v in {27,28}) signatures are
// accepted.
func Recover(nonce, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}

	s := make([]byte, len(sig))
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(Digest(nonce), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
