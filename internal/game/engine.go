package game

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Game is a single commit-reveal guessing game. All methods are safe for
// concurrent use; mutating calls are serialized and either fully apply or
// return an error without changing anything.
type Game struct {
	mu      sync.Mutex
	id      string
	cfg     Config
	rules   Rules
	state   State
	players []PlayerEntry
	byAddr  map[common.Address]int
	byNum   map[int]common.Address
	escrow  common.Address
	result  *Settlement

	ledger Ledger
	bus    EventBus
	clock  quartz.Clock
	logger *log.Logger
}

// EscrowAddress derives the account that holds a game's stakes.
func EscrowAddress(id string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("guessnumber:" + id))[12:])
}

// New validates cfg, escrows the host's stake through ledger and returns a
// game accepting guesses. The ledger is required.
func New(ctx context.Context, id string, cfg Config, ledger Ledger, opts ...Option) (*Game, error) {
	if ledger == nil {
		panic("ledger is required for game creation")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.clone()

	bus := o.bus
	if bus == nil {
		bus = NewEventBus()
	}

	g := &Game{
		id:     id,
		cfg:    cfg,
		rules:  o.rules,
		state:  StateGuessing,
		byAddr: make(map[common.Address]int),
		byNum:  make(map[int]common.Address),
		escrow: EscrowAddress(id),
		ledger: ledger,
		bus:    bus,
		clock:  o.clock,
		logger: o.logger.WithPrefix("game").With("game", id),
	}

	var transfers []Transfer
	if cfg.BetAmount.Sign() > 0 {
		transfers = append(transfers, Transfer{From: cfg.Host, To: g.escrow, Amount: new(big.Int).Set(cfg.BetAmount)})
	}
	if err := apply(ctx, ledger, g.record(StateGuessing, nil, nil), transfers); err != nil {
		return nil, fmt.Errorf("%w: escrow host stake: %w", ErrTransferFailed, err)
	}

	g.logger.Info("Game created",
		"host", cfg.Host.Hex(),
		"playerCap", cfg.PlayerCap,
		"bet", cfg.BetAmount.String(),
		"escrow", g.escrow.Hex())

	g.bus.Publish(GameCreatedEvent{
		eventHeader:     g.header(),
		Host:            cfg.Host,
		NonceHash:       cfg.NonceHash,
		NonceNumberHash: cfg.NonceNumberHash,
		PlayerCap:       cfg.PlayerCap,
		BetAmount:       new(big.Int).Set(cfg.BetAmount),
	})
	return g, nil
}

func (g *Game) header() eventHeader {
	return eventHeader{gameID: g.id, timestamp: g.clock.Now()}
}

// Guess registers caller's guess, collecting attachedStake into escrow.
func (g *Game) Guess(ctx context.Context, caller common.Address, number int, attachedStake *big.Int) error {
	g.mu.Lock()
	event, err := g.guess(ctx, caller, number, attachedStake)
	g.mu.Unlock()

	if err != nil {
		g.logger.Debug("Guess rejected", "player", caller.Hex(), "number", number, "error", err)
		return err
	}

	g.logger.Info("Guess accepted", "player", caller.Hex(), "number", number)
	g.bus.Publish(event)
	return nil
}

func (g *Game) guess(ctx context.Context, caller common.Address, number int, stake *big.Int) (GameEvent, error) {
	if stake == nil {
		stake = new(big.Int)
	}

	if g.state != StateGuessing {
		return nil, ErrGameEnded
	}
	if !InRange(number) {
		return nil, fmt.Errorf("%w: %d not within [0, %d)", ErrOutOfRange, number, NumberRange)
	}
	if _, ok := g.byAddr[caller]; ok {
		return nil, ErrDuplicateGuess
	}
	if _, ok := g.byNum[number]; ok {
		return nil, fmt.Errorf("%w: %d", ErrNumberTaken, number)
	}
	if stake.Cmp(g.cfg.BetAmount) != 0 {
		return nil, fmt.Errorf("%w: sent %s, bet is %s", ErrStakeMismatch, stake, g.cfg.BetAmount)
	}
	if g.rules.EnforcePlayerCap && len(g.players) >= g.cfg.PlayerCap {
		return nil, fmt.Errorf("%w: %d players", ErrPlayerCapReached, g.cfg.PlayerCap)
	}

	entry := PlayerEntry{
		Address: caller,
		Number:  number,
		Stake:   new(big.Int).Set(stake),
	}
	players := append(g.players[:len(g.players):len(g.players)], entry)

	var transfers []Transfer
	if stake.Sign() > 0 {
		transfers = append(transfers, Transfer{From: caller, To: g.escrow, Amount: new(big.Int).Set(stake)})
	}
	if err := apply(ctx, g.ledger, g.record(StateGuessing, players, nil), transfers); err != nil {
		return nil, fmt.Errorf("%w: collect stake: %w", ErrTransferFailed, err)
	}

	g.byAddr[caller] = len(g.players)
	g.byNum[number] = caller
	g.players = players

	return CommitGuessEvent{
		eventHeader: g.header(),
		NonceHash:   g.cfg.NonceHash,
		Player:      caller,
		Number:      number,
	}, nil
}

// Reveal verifies the host's secret, pays out the pot and ends the game.
// If the payout fails nothing changes and the reveal can be retried.
func (g *Game) Reveal(ctx context.Context, caller common.Address, nonce string, number int) (Settlement, error) {
	g.mu.Lock()
	settlement, err := g.reveal(ctx, caller, nonce, number)
	g.mu.Unlock()

	if err != nil {
		g.logger.Warn("Reveal rejected", "caller", caller.Hex(), "error", err)
		return Settlement{}, err
	}

	g.logger.Info("Game revealed",
		"number", number,
		"winners", len(settlement.Winners),
		"share", settlement.Share.String(),
		"hostRefund", settlement.HostRefund.String())

	g.bus.Publish(RevealAnswerEvent{
		eventHeader:     g.header(),
		NonceHash:       g.cfg.NonceHash,
		NonceNumberHash: g.cfg.NonceNumberHash,
		Number:          number,
	})
	for _, w := range settlement.Winners {
		g.bus.Publish(RewardWinnersEvent{
			eventHeader: g.header(),
			NonceHash:   g.cfg.NonceHash,
			Winner:      w,
			Amount:      new(big.Int).Set(settlement.Share),
		})
	}

	g.mu.Lock()
	err = g.state.transition(StateEnded)
	g.mu.Unlock()
	if err != nil {
		g.logger.Error("Failed to end game", "error", err)
		return settlement, err
	}

	g.bus.Publish(GameEndedEvent{
		eventHeader: g.header(),
		Winners:     append([]common.Address(nil), settlement.Winners...),
		Share:       new(big.Int).Set(settlement.Share),
		HostRefund:  new(big.Int).Set(settlement.HostRefund),
	})
	return settlement, nil
}

func (g *Game) reveal(ctx context.Context, caller common.Address, nonce string, number int) (Settlement, error) {
	if caller != g.cfg.Host {
		return Settlement{}, ErrUnauthorized
	}
	if err := g.cfg.Commitment().Verify(nonce, number); err != nil {
		return Settlement{}, err
	}
	if g.state != StateGuessing {
		return Settlement{}, fmt.Errorf("%w: game is %s", ErrNotRevealable, g.state)
	}

	settlement, err := Settle(g.cfg, g.rules, g.players, number)
	if err != nil {
		return Settlement{}, err
	}

	revealed := number
	rec := g.record(StateEnded, g.players, &revealed)
	if err := apply(ctx, g.ledger, rec, settlement.transfers(g.escrow)); err != nil {
		return Settlement{}, fmt.Errorf("%w: payout: %w", ErrTransferFailed, err)
	}

	if err := g.state.transition(StateRevealed); err != nil {
		return Settlement{}, err
	}
	g.result = &settlement
	return settlement, nil
}

// ID returns the game identifier.
func (g *Game) ID() string { return g.id }

// Escrow returns the account holding the game's stakes.
func (g *Game) Escrow() common.Address { return g.escrow }

// Config returns a copy of the game configuration.
func (g *Game) Config() Config { return g.cfg.clone() }

// Host returns the host identity.
func (g *Game) Host() common.Address { return g.cfg.Host }

// PlayerCap returns the configured player cap.
func (g *Game) PlayerCap() int { return g.cfg.PlayerCap }

// BetAmount returns the stake each participant must supply.
func (g *Game) BetAmount() *big.Int { return new(big.Int).Set(g.cfg.BetAmount) }

// Rules returns the rules the game was created with.
func (g *Game) Rules() Rules { return g.rules }

// State returns the current lifecycle state.
func (g *Game) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Players returns the registered guesses in registration order.
func (g *Game) Players() []PlayerEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]PlayerEntry, len(g.players))
	for i, p := range g.players {
		out[i] = p.clone()
	}
	return out
}

// Result returns the settlement once the game has been revealed.
func (g *Game) Result() (Settlement, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.result == nil {
		return Settlement{}, false
	}
	return *g.result, true
}

// Events returns the bus the game publishes on.
func (g *Game) Events() EventBus { return g.bus }
