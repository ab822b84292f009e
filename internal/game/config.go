package game

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NumberRange is the exclusive upper bound for guesses, host numbers and the
// player cap. Valid values lie in [0, NumberRange).
const NumberRange = 1000

// Config is fixed when the game is created.
type Config struct {
	NonceHash       common.Hash    `json:"nonceHash"`
	NonceNumberHash common.Hash    `json:"nonceNumberHash"`
	PlayerCap       int            `json:"playerCap"`
	BetAmount       *big.Int       `json:"betAmount"`
	Host            common.Address `json:"host"`
}

// Commitment returns the host's commitment digests.
func (c Config) Commitment() Commitment {
	return Commitment{NonceHash: c.NonceHash, NonceNumberHash: c.NonceNumberHash}
}

// Validate reports configuration errors wrapped in ErrConfiguration.
func (c Config) Validate() error {
	if c.PlayerCap < 0 || c.PlayerCap >= NumberRange {
		return fmt.Errorf("%w: too many players: cap %d not within [0, %d)", ErrConfiguration, c.PlayerCap, NumberRange)
	}
	if c.BetAmount == nil || c.BetAmount.Sign() < 0 {
		return fmt.Errorf("%w: bet amount must be a non-negative value", ErrConfiguration)
	}
	if c.Host == (common.Address{}) {
		return fmt.Errorf("%w: host address is required", ErrConfiguration)
	}
	return nil
}

// clone returns a copy that shares no mutable state with c.
func (c Config) clone() Config {
	c.BetAmount = new(big.Int).Set(c.BetAmount)
	return c
}

// Rules toggles behaviour that differs between deployments.
type Rules struct {
	// EnforcePlayerCap rejects guesses once PlayerCap players have
	// registered. When false the cap is informational only.
	EnforcePlayerCap bool `json:"enforcePlayerCap"`

	// HostStakeInPool adds the host's own stake to the pool paid to winners.
	// When false the host stake is returned to the host at settlement.
	HostStakeInPool bool `json:"hostStakeInPool"`
}

// InRange reports whether n lies in [0, NumberRange).
func InRange(n int) bool {
	return n >= 0 && n < NumberRange
}
