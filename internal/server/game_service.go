package server

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/ethereum/go-ethereum/common"

	"github.com/lox/guessnumber/internal/game"
	"github.com/lox/guessnumber/internal/gameid"
	"github.com/lox/guessnumber/internal/ledger"
)

var (
	ErrGameNotFound  = errors.New("game not found")
	ErrInvalidGameID = gameid.ErrInvalid
)

// GameService owns the running games and the ledger they settle through
type GameService struct {
	games  map[string]*game.Game // gameID -> Game
	order  []string
	store  ledger.Store
	rules  game.Rules
	bus    *game.SimpleEventBus
	clock  quartz.Clock
	newID  func() (string, error)
	logger *log.Logger
	mu     sync.RWMutex
}

// GameServiceOption configures a GameService
type GameServiceOption func(*GameService)

// WithServiceClock sets the clock games timestamp their events with
func WithServiceClock(clock quartz.Clock) GameServiceOption {
	return func(gs *GameService) { gs.clock = clock }
}

// WithIDGenerator replaces the game ID generator
func WithIDGenerator(gen *gameid.Generator) GameServiceOption {
	return func(gs *GameService) { gs.newID = gen.Generate }
}

// NewGameService creates a new game service
func NewGameService(store ledger.Store, rules game.Rules, logger *log.Logger, opts ...GameServiceOption) *GameService {
	gs := &GameService{
		games:  make(map[string]*game.Game),
		store:  store,
		rules:  rules,
		bus:    game.NewEventBus(),
		clock:  quartz.NewReal(),
		newID:  gameid.NewGenerator(nil).Generate,
		logger: logger.WithPrefix("game-service"),
	}
	for _, opt := range opts {
		opt(gs)
	}
	return gs
}

// Events is the bus every game created by the service publishes on
func (gs *GameService) Events() game.EventBus {
	return gs.bus
}

// Ledger returns the backing store
func (gs *GameService) Ledger() ledger.Store {
	return gs.store
}

// Fund credits genesis balances. A store only ever receives genesis once,
// so restarting against a persistent ledger does not mint again.
func (gs *GameService) Fund(ctx context.Context, balances map[common.Address]*big.Int) error {
	applied, err := gs.store.ApplyGenesis(ctx, balances)
	if err != nil {
		return fmt.Errorf("fund genesis: %w", err)
	}
	if !applied {
		gs.logger.Info("Genesis already applied, skipping", "accounts", len(balances))
		return nil
	}
	for addr, wei := range balances {
		gs.logger.Info("Funded account", "address", addr.Hex(), "wei", wei.String())
	}
	return nil
}

// Restore reloads the games journaled in the store. Games already known to
// the service are left alone. It returns the number of games restored.
func (gs *GameService) Restore(ctx context.Context) (int, error) {
	records, err := gs.store.Games(ctx)
	if err != nil {
		return 0, fmt.Errorf("load games: %w", err)
	}

	gs.mu.Lock()
	defer gs.mu.Unlock()

	restored := 0
	for _, rec := range records {
		if _, ok := gs.games[rec.ID]; ok {
			continue
		}
		g, err := game.Restore(rec, gs.store,
			game.WithEventBus(gs.bus),
			game.WithClock(gs.clock),
			game.WithLogger(gs.logger),
		)
		if err != nil {
			return restored, err
		}
		gs.games[rec.ID] = g
		gs.order = append(gs.order, rec.ID)
		restored++
	}

	gs.logger.Info("Restored games", "count", restored)
	return restored, nil
}

// CreateGame deploys a new game hosted by host
func (gs *GameService) CreateGame(ctx context.Context, host common.Address, commitment game.Commitment, playerCap int, bet *big.Int) (*game.Game, error) {
	id, err := gs.newID()
	if err != nil {
		return nil, fmt.Errorf("generate game id: %w", err)
	}

	cfg := game.Config{
		NonceHash:       commitment.NonceHash,
		NonceNumberHash: commitment.NonceNumberHash,
		PlayerCap:       playerCap,
		BetAmount:       bet,
		Host:            host,
	}

	g, err := game.New(ctx, id, cfg, gs.store,
		game.WithRules(gs.rules),
		game.WithEventBus(gs.bus),
		game.WithClock(gs.clock),
		game.WithLogger(gs.logger),
	)
	if err != nil {
		return nil, err
	}

	gs.mu.Lock()
	gs.games[id] = g
	gs.order = append(gs.order, id)
	gs.mu.Unlock()

	return g, nil
}

// GetGame returns a game by ID
func (gs *GameService) GetGame(id string) (*game.Game, error) {
	if err := gameid.Validate(id); err != nil {
		return nil, err
	}

	gs.mu.RLock()
	defer gs.mu.RUnlock()

	g, ok := gs.games[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, id)
	}
	return g, nil
}

// ListGames returns every game in creation order
func (gs *GameService) ListGames() []*game.Game {
	gs.mu.RLock()
	defer gs.mu.RUnlock()

	out := make([]*game.Game, 0, len(gs.order))
	for _, id := range gs.order {
		out = append(out, gs.games[id])
	}
	return out
}

// Guess registers a guess on a game
func (gs *GameService) Guess(ctx context.Context, id string, player common.Address, number int, stake *big.Int) error {
	g, err := gs.GetGame(id)
	if err != nil {
		return err
	}
	return g.Guess(ctx, player, number, stake)
}

// Reveal settles a game
func (gs *GameService) Reveal(ctx context.Context, id string, host common.Address, nonce string, number int) (game.Settlement, error) {
	g, err := gs.GetGame(id)
	if err != nil {
		return game.Settlement{}, err
	}
	return g.Reveal(ctx, host, nonce, number)
}

// Balance returns an account's balance
func (gs *GameService) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return gs.store.Balance(ctx, addr)
}

// Stats counts games by state
func (gs *GameService) Stats() map[string]int {
	stats := make(map[string]int)
	for _, g := range gs.ListGames() {
		stats[g.State().String()]++
	}
	return stats
}

// errorCode maps service and game errors to wire codes
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidGameID):
		return "invalid_game_id"
	case errors.Is(err, ErrGameNotFound):
		return "game_not_found"
	default:
		return game.ErrorCode(err)
	}
}

// sortedStates returns Stats keys in a stable order for display
func sortedStates(stats map[string]int) []string {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
