package game

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Payout is an amount owed to one account at settlement.
type Payout struct {
	Address common.Address `json:"address"`
	Amount  *big.Int       `json:"amount"`
}

// Settlement is the outcome of a reveal.
type Settlement struct {
	Number     int
	OutOfRange bool
	// Distance is the winning distance, or -1 when the host number was out of
	// range and the pot was split among everyone.
	Distance  int
	Winners   []common.Address
	Pot       *big.Int
	Share     *big.Int
	Remainder *big.Int
	// HostRefund is what goes back to the host: its own stake when that is
	// not pooled, plus the division remainder.
	HostRefund *big.Int
	Payouts    []Payout
}

// Settle computes winners and payouts for a revealed host number. It does not
// move funds and is deterministic: the same players and number always give the
// same settlement regardless of registration order.
func Settle(cfg Config, rules Rules, players []PlayerEntry, number int) (Settlement, error) {
	if len(players) == 0 {
		return Settlement{}, fmt.Errorf("%w: no players have guessed", ErrNotRevealable)
	}

	s := Settlement{
		Number:     number,
		OutOfRange: !InRange(number),
		Distance:   -1,
	}

	if s.OutOfRange {
		for _, p := range players {
			s.Winners = append(s.Winners, p.Address)
		}
	} else {
		best := -1
		for _, p := range players {
			d := p.Distance(number)
			switch {
			case best == -1 || d < best:
				best = d
				s.Winners = []common.Address{p.Address}
			case d == best:
				s.Winners = append(s.Winners, p.Address)
			}
		}
		s.Distance = best
	}
	sort.Slice(s.Winners, func(i, j int) bool {
		return bytes.Compare(s.Winners[i][:], s.Winners[j][:]) < 0
	})

	pot := Pot{
		Amount:   newPot(cfg.BetAmount, len(players), rules.HostStakeInPool),
		Eligible: s.Winners,
	}
	s.Pot = pot.Amount
	s.Share, s.Remainder = pot.Split()

	s.HostRefund = new(big.Int).Set(s.Remainder)
	if !rules.HostStakeInPool {
		s.HostRefund.Add(s.HostRefund, cfg.BetAmount)
	}

	for _, w := range s.Winners {
		s.Payouts = append(s.Payouts, Payout{Address: w, Amount: new(big.Int).Set(s.Share)})
	}
	if s.HostRefund.Sign() > 0 {
		s.Payouts = append(s.Payouts, Payout{Address: cfg.Host, Amount: new(big.Int).Set(s.HostRefund)})
	}
	return s, nil
}

// Total returns the sum of all payouts.
func (s Settlement) Total() *big.Int {
	total := new(big.Int)
	for _, p := range s.Payouts {
		total.Add(total, p.Amount)
	}
	return total
}

// transfers turns the payouts into ledger transfers out of escrow. Zero
// amounts are dropped.
func (s Settlement) transfers(escrow common.Address) []Transfer {
	out := make([]Transfer, 0, len(s.Payouts))
	for _, p := range s.Payouts {
		if p.Amount.Sign() == 0 {
			continue
		}
		out = append(out, Transfer{From: escrow, To: p.Address, Amount: new(big.Int).Set(p.Amount)})
	}
	return out
}
