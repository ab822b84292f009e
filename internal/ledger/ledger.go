// Package ledger provides account balances and the atomic transfer primitive
// games settle through.
package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/lox/guessnumber/internal/game"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrUnknownBackend    = errors.New("unknown ledger backend")
)

// Backend names accepted by Open.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
)

// Store is a ledger that can also be inspected and funded. It journals game
// records alongside balances so open games survive a restart.
type Store interface {
	game.Journal
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	Credit(ctx context.Context, addr common.Address, amount *big.Int) error

	// ApplyGenesis credits balances once per store. It reports false, and
	// credits nothing, when genesis has already been applied.
	ApplyGenesis(ctx context.Context, balances map[common.Address]*big.Int) (bool, error)

	// Games returns every stored game record ordered by ID.
	Games(ctx context.Context) ([]game.Record, error)
	Close() error
}

// Open returns the store for backend. path is only used by persistent
// backends.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendLevelDB:
		return OpenLevelDB(path)
	default:
		return nil, errors.Wrap(ErrUnknownBackend, backend)
	}
}

// stage applies transfers to a working copy of the balances they touch and
// returns the resulting balances. load is called once per account. Nothing is
// written; callers commit the returned balances in one step.
func stage(transfers []game.Transfer, load func(common.Address) (*big.Int, error)) (map[common.Address]*big.Int, error) {
	working := make(map[common.Address]*big.Int)
	get := func(addr common.Address) (*big.Int, error) {
		if b, ok := working[addr]; ok {
			return b, nil
		}
		b, err := load(addr)
		if err != nil {
			return nil, err
		}
		b = new(big.Int).Set(b)
		working[addr] = b
		return b, nil
	}

	for i, t := range transfers {
		if t.Amount == nil || t.Amount.Sign() < 0 {
			return nil, errors.Wrapf(ErrInvalidAmount, "transfer %d", i)
		}
		from, err := get(t.From)
		if err != nil {
			return nil, err
		}
		if from.Cmp(t.Amount) < 0 {
			return nil, errors.Wrap(ErrInsufficientFunds,
				fmt.Sprintf("%s has %s, needs %s", t.From.Hex(), from, t.Amount))
		}
		to, err := get(t.To)
		if err != nil {
			return nil, err
		}
		from.Sub(from, t.Amount)
		to.Add(to, t.Amount)
	}
	return working, nil
}

// genesisCredits validates genesis balances and stages them as credits.
func genesisCredits(balances map[common.Address]*big.Int, load func(common.Address) (*big.Int, error)) (map[common.Address]*big.Int, error) {
	working := make(map[common.Address]*big.Int, len(balances))
	for addr, amount := range balances {
		if amount == nil || amount.Sign() < 0 {
			return nil, errors.Wrapf(ErrInvalidAmount, "genesis %s", addr.Hex())
		}
		b, err := load(addr)
		if err != nil {
			return nil, err
		}
		working[addr] = new(big.Int).Add(b, amount)
	}
	return working, nil
}
