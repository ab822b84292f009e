package game

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// GameEvent represents anything observable that happens to a game
type GameEvent interface {
	EventType() EventType
	GameID() string
	Timestamp() time.Time
}

type eventHeader struct {
	gameID    string
	timestamp time.Time
}

func (h eventHeader) GameID() string       { return h.gameID }
func (h eventHeader) Timestamp() time.Time { return h.timestamp }

// GameCreatedEvent is published once the host's stake is escrowed
type GameCreatedEvent struct {
	eventHeader
	Host            common.Address
	NonceHash       common.Hash
	NonceNumberHash common.Hash
	PlayerCap       int
	BetAmount       *big.Int
}

func (e GameCreatedEvent) EventType() EventType { return EventTypeGameCreated }

// CommitGuessEvent is published when a player's guess is accepted
type CommitGuessEvent struct {
	eventHeader
	NonceHash common.Hash
	Player    common.Address
	Number    int
}

func (e CommitGuessEvent) EventType() EventType { return EventTypeCommitGuess }

// RevealAnswerEvent is published when the host's secret has been verified and
// the settlement has been paid
type RevealAnswerEvent struct {
	eventHeader
	NonceHash       common.Hash
	NonceNumberHash common.Hash
	Number          int
}

func (e RevealAnswerEvent) EventType() EventType { return EventTypeRevealAnswer }

// RewardWinnersEvent is published once per winner
type RewardWinnersEvent struct {
	eventHeader
	NonceHash common.Hash
	Winner    common.Address
	Amount    *big.Int
}

func (e RewardWinnersEvent) EventType() EventType { return EventTypeRewardWinners }

// GameEndedEvent is published after the game reaches its terminal state
type GameEndedEvent struct {
	eventHeader
	Winners    []common.Address
	Share      *big.Int
	HostRefund *big.Int
}

func (e GameEndedEvent) EventType() EventType { return EventTypeGameEnded }

// EventSubscriber can subscribe to game events
type EventSubscriber interface {
	OnEvent(event GameEvent)
}

// EventBus manages event publishing and subscription
type EventBus interface {
	Subscribe(subscriber EventSubscriber)
	Unsubscribe(subscriber EventSubscriber)
	Publish(event GameEvent)
}

// SimpleEventBus is a basic in-memory event bus implementation
type SimpleEventBus struct {
	mu          sync.RWMutex
	subscribers []EventSubscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *SimpleEventBus {
	return &SimpleEventBus{}
}

// Subscribe adds a subscriber to receive events
func (bus *SimpleEventBus) Subscribe(subscriber EventSubscriber) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.subscribers = append(bus.subscribers, subscriber)
}

// Unsubscribe removes a subscriber from receiving events
func (bus *SimpleEventBus) Unsubscribe(subscriber EventSubscriber) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for i, sub := range bus.subscribers {
		if sub == subscriber {
			bus.subscribers = append(bus.subscribers[:i:i], bus.subscribers[i+1:]...)
			break
		}
	}
}

// Publish delivers an event to all subscribers synchronously, in
// subscription order
func (bus *SimpleEventBus) Publish(event GameEvent) {
	bus.mu.RLock()
	subs := make([]EventSubscriber, len(bus.subscribers))
	copy(subs, bus.subscribers)
	bus.mu.RUnlock()

	for _, subscriber := range subs {
		subscriber.OnEvent(event)
	}
}
