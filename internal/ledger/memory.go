package ledger

import (
	"context"
	"encoding/json"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/lox/guessnumber/internal/game"
)

// Memory is an in-process ledger. Balances are lost when the process exits.
type Memory struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	games    map[string][]byte
	genesis  bool
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		balances: make(map[common.Address]*big.Int),
		games:    make(map[string][]byte),
	}
}

func (m *Memory) load(addr common.Address) (*big.Int, error) {
	if b, ok := m.balances[addr]; ok {
		return b, nil
	}
	return new(big.Int), nil
}

// Transfer applies all transfers or none.
func (m *Memory) Transfer(ctx context.Context, transfers ...game.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	working, err := stage(transfers, m.load)
	if err != nil {
		return err
	}
	for addr, b := range working {
		m.balances[addr] = b
	}
	return nil
}

// Commit stores rec and applies transfers, or does neither.
func (m *Memory) Commit(ctx context.Context, rec game.Record, transfers ...game.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// stored encoded, like the LevelDB backend
	value, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "encode game %s", rec.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	working, err := stage(transfers, m.load)
	if err != nil {
		return err
	}
	for addr, b := range working {
		m.balances[addr] = b
	}
	m.games[rec.ID] = value
	return nil
}

// Games returns every stored game record ordered by ID.
func (m *Memory) Games(_ context.Context) ([]game.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.games))
	for id := range m.games {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]game.Record, 0, len(ids))
	for _, id := range ids {
		var rec game.Record
		if err := json.Unmarshal(m.games[id], &rec); err != nil {
			return nil, errors.Wrapf(err, "decode game %s", id)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ApplyGenesis credits balances unless genesis was already applied.
func (m *Memory) ApplyGenesis(_ context.Context, balances map[common.Address]*big.Int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.genesis {
		return false, nil
	}
	working, err := genesisCredits(balances, m.load)
	if err != nil {
		return false, err
	}
	for addr, b := range working {
		m.balances[addr] = b
	}
	m.genesis = true
	return true, nil
}

// Balance returns the balance of addr; unknown accounts hold zero.
func (m *Memory) Balance(_ context.Context, addr common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, _ := m.load(addr)
	return new(big.Int).Set(b), nil
}

// Credit mints amount into addr.
func (m *Memory) Credit(_ context.Context, addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.Wrap(ErrInvalidAmount, "credit")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, _ := m.load(addr)
	m.balances[addr] = new(big.Int).Add(b, amount)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
