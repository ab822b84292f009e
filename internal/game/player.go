package game

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PlayerEntry is one registered guess.
type PlayerEntry struct {
	Address common.Address `json:"address"`
	Number  int            `json:"number"`
	Stake   *big.Int       `json:"stake"`
}

// Distance returns |p.Number - target|.
func (p PlayerEntry) Distance(target int) int {
	d := p.Number - target
	if d < 0 {
		return -d
	}
	return d
}

func (p PlayerEntry) clone() PlayerEntry {
	p.Stake = new(big.Int).Set(p.Stake)
	return p
}
