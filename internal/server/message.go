package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/lox/guessnumber/internal/amount"
	"github.com/lox/guessnumber/internal/game"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Decode unmarshals the message payload into v.
func (m *Message) Decode(v interface{}) error {
	if len(m.Data) == 0 {
		m.Data = json.RawMessage("{}")
	}
	return json.Unmarshal(m.Data, v)
}

// Client → Server Messages

type AuthData struct {
	Address   common.Address `json:"address"`
	Signature hexutil.Bytes  `json:"signature"`
}

// CreateGameData deploys a game. Stake is in units, e.g. "0.5".
type CreateGameData struct {
	NonceHash       common.Hash `json:"nonceHash"`
	NonceNumberHash common.Hash `json:"nonceNumberHash"`
	PlayerCap       int         `json:"playerCap"`
	Stake           string      `json:"stake"`
}

type GuessData struct {
	GameID string `json:"gameId"`
	Number int    `json:"number"`
	Stake  string `json:"stake"`
}

type RevealData struct {
	GameID string `json:"gameId"`
	Nonce  string `json:"nonce"`
	Number int    `json:"number"`
}

// GameRequestData is used by get_game, subscribe and unsubscribe
type GameRequestData struct {
	GameID string `json:"gameId"`
}

// BalanceRequestData queries an account; the caller's own when empty
type BalanceRequestData struct {
	Address *common.Address `json:"address,omitempty"`
}

// Server → Client Messages

type ChallengeData struct {
	Challenge hexutil.Bytes `json:"challenge"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

type AuthResponseData struct {
	Success bool           `json:"success"`
	Address common.Address `json:"address"`
	Error   string         `json:"error,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type GameCreatedData struct {
	GameID          string         `json:"gameId"`
	Host            common.Address `json:"host"`
	NonceHash       common.Hash    `json:"nonceHash"`
	NonceNumberHash common.Hash    `json:"nonceNumberHash"`
	PlayerCap       int            `json:"playerCap"`
	BetAmount       string         `json:"betAmount"`
}

type CommitGuessData struct {
	GameID    string         `json:"gameId"`
	NonceHash common.Hash    `json:"nonceHash"`
	Player    common.Address `json:"player"`
	Number    int            `json:"number"`
}

type RevealAnswerData struct {
	GameID          string      `json:"gameId"`
	NonceHash       common.Hash `json:"nonceHash"`
	NonceNumberHash common.Hash `json:"nonceNumberHash"`
	Number          int         `json:"number"`
}

type RewardWinnersData struct {
	GameID    string         `json:"gameId"`
	NonceHash common.Hash    `json:"nonceHash"`
	Winner    common.Address `json:"winner"`
	Amount    string         `json:"amount"`
}

type GameEndedData struct {
	GameID     string           `json:"gameId"`
	Winners    []common.Address `json:"winners"`
	Share      string           `json:"share"`
	HostRefund string           `json:"hostRefund"`
}

type PlayerState struct {
	Address common.Address `json:"address"`
	Number  int            `json:"number"`
	Stake   string         `json:"stake"`
}

type ResultData struct {
	Number     int              `json:"number"`
	OutOfRange bool             `json:"outOfRange"`
	Distance   int              `json:"distance"`
	Winners    []common.Address `json:"winners"`
	Pot        string           `json:"pot"`
	Share      string           `json:"share"`
	HostRefund string           `json:"hostRefund"`
}

type GameStateData struct {
	GameID          string         `json:"gameId"`
	Host            common.Address `json:"host"`
	Escrow          common.Address `json:"escrow"`
	State           string         `json:"state"`
	StateCode       uint8          `json:"stateCode"`
	NonceHash       common.Hash    `json:"nonceHash"`
	NonceNumberHash common.Hash    `json:"nonceNumberHash"`
	PlayerCap       int            `json:"playerCap"`
	BetAmount       string         `json:"betAmount"`
	Players         []PlayerState  `json:"players"`
	Result          *ResultData    `json:"result,omitempty"`
}

type GameSummary struct {
	GameID      string         `json:"gameId"`
	Host        common.Address `json:"host"`
	State       string         `json:"state"`
	PlayerCount int            `json:"playerCount"`
	PlayerCap   int            `json:"playerCap"`
	BetAmount   string         `json:"betAmount"`
}

type GameListData struct {
	Games []GameSummary `json:"games"`
}

type BalanceData struct {
	Address common.Address `json:"address"`
	Balance string         `json:"balance"`
}

// Helper functions to convert between game types and message types

func GameStateFromGame(g *game.Game) GameStateData {
	cfg := g.Config()
	state := g.State()
	players := g.Players()

	data := GameStateData{
		GameID:          g.ID(),
		Host:            cfg.Host,
		Escrow:          g.Escrow(),
		State:           state.String(),
		StateCode:       uint8(state),
		NonceHash:       cfg.NonceHash,
		NonceNumberHash: cfg.NonceNumberHash,
		PlayerCap:       cfg.PlayerCap,
		BetAmount:       amount.Format(cfg.BetAmount),
		Players:         make([]PlayerState, len(players)),
	}
	for i, p := range players {
		data.Players[i] = PlayerState{Address: p.Address, Number: p.Number, Stake: amount.Format(p.Stake)}
	}
	if s, ok := g.Result(); ok {
		data.Result = ResultFromSettlement(s)
	}
	return data
}

func ResultFromSettlement(s game.Settlement) *ResultData {
	return &ResultData{
		Number:     s.Number,
		OutOfRange: s.OutOfRange,
		Distance:   s.Distance,
		Winners:    s.Winners,
		Pot:        amount.Format(s.Pot),
		Share:      amount.Format(s.Share),
		HostRefund: amount.Format(s.HostRefund),
	}
}

func GameSummaryFromGame(g *game.Game) GameSummary {
	return GameSummary{
		GameID:      g.ID(),
		Host:        g.Host(),
		State:       g.State().String(),
		PlayerCount: len(g.Players()),
		PlayerCap:   g.PlayerCap(),
		BetAmount:   amount.Format(g.BetAmount()),
	}
}

// MessageFromEvent converts a game event into the message broadcast to
// subscribers. The message carries the event's timestamp.
func MessageFromEvent(event game.GameEvent) (*Message, error) {
	var (
		msgType MessageType
		data    interface{}
	)

	switch e := event.(type) {
	case game.GameCreatedEvent:
		msgType = MessageTypeGameCreated
		data = GameCreatedData{
			GameID:          e.GameID(),
			Host:            e.Host,
			NonceHash:       e.NonceHash,
			NonceNumberHash: e.NonceNumberHash,
			PlayerCap:       e.PlayerCap,
			BetAmount:       amount.Format(e.BetAmount),
		}
	case game.CommitGuessEvent:
		msgType = MessageTypeCommitGuess
		data = CommitGuessData{GameID: e.GameID(), NonceHash: e.NonceHash, Player: e.Player, Number: e.Number}
	case game.RevealAnswerEvent:
		msgType = MessageTypeRevealAnswer
		data = RevealAnswerData{
			GameID:          e.GameID(),
			NonceHash:       e.NonceHash,
			NonceNumberHash: e.NonceNumberHash,
			Number:          e.Number,
		}
	case game.RewardWinnersEvent:
		msgType = MessageTypeRewardWinner
		data = RewardWinnersData{
			GameID:    e.GameID(),
			NonceHash: e.NonceHash,
			Winner:    e.Winner,
			Amount:    amount.Format(e.Amount),
		}
	case game.GameEndedEvent:
		msgType = MessageTypeGameEnded
		data = GameEndedData{
			GameID:     e.GameID(),
			Winners:    e.Winners,
			Share:      amount.Format(e.Share),
			HostRefund: amount.Format(e.HostRefund),
		}
	default:
		return nil, fmt.Errorf("unsupported event %s", event.EventType())
	}

	msg, err := NewMessage(msgType, data)
	if err != nil {
		return nil, err
	}
	msg.Timestamp = event.Timestamp()
	return msg, nil
}
