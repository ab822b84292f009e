package game

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Record is the durable form of a game. It holds everything needed to
// rebuild the game after a restart.
type Record struct {
	ID      string        `json:"id"`
	Config  Config        `json:"config"`
	Rules   Rules         `json:"rules"`
	State   State         `json:"state"`
	Players []PlayerEntry `json:"players"`

	// Revealed is the host's number once the game has been settled.
	Revealed *int `json:"revealed,omitempty"`
}

// Journal is a Ledger that also stores game records. Commit must write rec
// and apply transfers as a single atomic step.
type Journal interface {
	Ledger
	Commit(ctx context.Context, rec Record, transfers ...Transfer) error
}

// apply moves funds and, when the ledger keeps a journal, stores rec in the
// same step.
func apply(ctx context.Context, ledger Ledger, rec Record, transfers []Transfer) error {
	if j, ok := ledger.(Journal); ok {
		return j.Commit(ctx, rec, transfers...)
	}
	if len(transfers) == 0 {
		return nil
	}
	return ledger.Transfer(ctx, transfers...)
}

func (g *Game) record(state State, players []PlayerEntry, revealed *int) Record {
	rec := Record{
		ID:       g.id,
		Config:   g.cfg.clone(),
		Rules:    g.rules,
		State:    state,
		Players:  make([]PlayerEntry, len(players)),
		Revealed: revealed,
	}
	for i, p := range players {
		rec.Players[i] = p.clone()
	}
	return rec
}

// Restore rebuilds a game from its record. No funds move and no events are
// published.
func Restore(rec Record, ledger Ledger, opts ...Option) (*Game, error) {
	if ledger == nil {
		panic("ledger is required to restore a game")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if err := rec.Config.Validate(); err != nil {
		return nil, fmt.Errorf("restore %s: %w", rec.ID, err)
	}

	g := &Game{
		id:     rec.ID,
		cfg:    rec.Config.clone(),
		rules:  rec.Rules,
		state:  rec.State,
		byAddr: make(map[common.Address]int),
		byNum:  make(map[int]common.Address),
		escrow: EscrowAddress(rec.ID),
		ledger: ledger,
		bus:    o.bus,
		clock:  o.clock,
		logger: o.logger.WithPrefix("game").With("game", rec.ID),
	}
	if g.bus == nil {
		g.bus = NewEventBus()
	}

	for _, p := range rec.Players {
		_, dupAddr := g.byAddr[p.Address]
		_, dupNum := g.byNum[p.Number]
		if !InRange(p.Number) || dupAddr || dupNum || p.Stake == nil {
			return nil, fmt.Errorf("%w: restore %s: bad player entry %s", ErrConfiguration, rec.ID, p.Address.Hex())
		}
		g.byAddr[p.Address] = len(g.players)
		g.byNum[p.Number] = p.Address
		g.players = append(g.players, p.clone())
	}

	switch {
	case rec.State == StateGuessing && rec.Revealed == nil:
	case rec.State == StateEnded && rec.Revealed != nil:
		s, err := Settle(g.cfg, g.rules, g.players, *rec.Revealed)
		if err != nil {
			return nil, fmt.Errorf("restore %s: %w", rec.ID, err)
		}
		g.result = &s
	default:
		return nil, fmt.Errorf("%w: restore %s: inconsistent state %s", ErrConfiguration, rec.ID, rec.State)
	}

	g.logger.Debug("Game restored", "state", g.state, "players", len(g.players))
	return g, nil
}
