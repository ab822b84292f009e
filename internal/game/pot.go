package game

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pot is the pooled stake and the accounts eligible to share it.
type Pot struct {
	Amount   *big.Int
	Eligible []common.Address
}

// newPot sizes the pool from the bet and the number of registered players.
// The host stake joins the pool only when includeHost is set.
func newPot(bet *big.Int, players int, includeHost bool) *big.Int {
	stakes := int64(players)
	if includeHost {
		stakes++
	}
	return new(big.Int).Mul(bet, big.NewInt(stakes))
}

// Split divides the pot equally among the eligible accounts. The share is
// floored; the remainder is returned for the caller to place.
func (p Pot) Split() (share, remainder *big.Int) {
	if len(p.Eligible) == 0 {
		return new(big.Int), new(big.Int).Set(p.Amount)
	}
	return new(big.Int).QuoRem(p.Amount, big.NewInt(int64(len(p.Eligible))), new(big.Int))
}
