package client

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"

	"github.com/lox/guessnumber/internal/auth"
	"github.com/lox/guessnumber/internal/game"
	"github.com/lox/guessnumber/internal/server" // Reuse message types
)

var (
	ErrNotConnected = errors.New("client: not connected")
	ErrAuthFailed   = errors.New("client: authentication failed")
)

// ServerError is an error message returned by the server
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client represents a WebSocket client for the game server
type Client struct {
	serverURL string
	conn      *websocket.Conn
	send      chan *server.Message
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	connected bool
	address   common.Address
	closeOnce sync.Once
	challenge chan server.ChallengeData
	nextID    uint64
	pending   map[string]chan *server.Message

	// Event handlers
	eventHandlers map[server.MessageType][]EventHandler
}

// EventHandler is a function that handles broadcast messages
type EventHandler func(*server.Message)

// NewClient creates a new WebSocket client
func NewClient(serverURL string, logger *log.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		serverURL:     serverURL,
		send:          make(chan *server.Message, 256),
		logger:        logger.WithPrefix("client"),
		ctx:           ctx,
		cancel:        cancel,
		challenge:     make(chan server.ChallengeData, 1),
		pending:       make(map[string]chan *server.Message),
		eventHandlers: make(map[server.MessageType][]EventHandler),
	}
}

// Connect establishes a WebSocket connection to the server
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Debug("Connecting to server", "url", c.serverURL)

	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	// Convert http/https to ws/wss
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	// Add WebSocket path
	u.Path = "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readPump()
	go c.writePump()

	c.logger.Debug("Connected to server")
	return nil
}

// Disconnect closes the WebSocket connection
func (c *Client) Disconnect() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.conn != nil {
			_ = c.conn.Close() // Ignore close errors during shutdown
			c.connected = false
		}

		c.logger.Debug("Disconnected from server")
	})
	return nil
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Done is closed once the connection is gone, whether the server closed it
// or Disconnect was called
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Address returns the authenticated account
func (c *Client) Address() common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.address
}

// SendMessage sends a message to the server
func (c *Client) SendMessage(msg *server.Message) error {
	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrNotConnected
	default:
		return fmt.Errorf("send buffer full")
	}
}

// readPump handles incoming messages from the server
func (c *Client) readPump() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		c.cancel()
	}()

	for {
		var msg server.Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		c.logger.Debug("Received message", "type", msg.Type, "requestId", msg.RequestID)
		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the server
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second) // Ping interval
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// handleMessage routes responses to their waiting request and everything
// else to registered handlers, in arrival order
func (c *Client) handleMessage(msg *server.Message) {
	if msg.Type == server.MessageTypeChallenge {
		var data server.ChallengeData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.logger.Error("Failed to parse challenge", "error", err)
			return
		}
		select {
		case c.challenge <- data:
		default:
		}
		return
	}

	if msg.RequestID != "" {
		c.mu.Lock()
		ch, ok := c.pending[msg.RequestID]
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
		if ok {
			ch <- msg
			return
		}
	}

	c.mu.RLock()
	handlers := c.eventHandlers[msg.Type]
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.logger.Debug("No handler for message type", "type", msg.Type)
	}
	for _, handler := range handlers {
		handler(msg)
	}
}

// AddEventHandler adds a handler for broadcasts of a message type.
// Handlers run on the read goroutine and must not block.
func (c *Client) AddEventHandler(messageType server.MessageType, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.eventHandlers[messageType] = append(c.eventHandlers[messageType], handler)
}

// request sends a message and waits for the correlated response. Error
// responses are returned as *ServerError.
func (c *Client) request(ctx context.Context, messageType server.MessageType, data interface{}, out interface{}) (*server.Message, error) {
	msg, err := server.NewMessage(messageType, data)
	if err != nil {
		return nil, err
	}

	ch := make(chan *server.Message, 1)
	c.mu.Lock()
	c.nextID++
	msg.RequestID = strconv.FormatUint(c.nextID, 10)
	c.pending[msg.RequestID] = ch
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
	}

	if err := c.SendMessage(msg); err != nil {
		cleanup()
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Type == server.MessageTypeError {
			var e server.ErrorData
			if err := json.Unmarshal(resp.Data, &e); err != nil {
				return nil, fmt.Errorf("decode error response: %w", err)
			}
			return resp, &ServerError{Code: e.Code, Message: e.Message}
		}
		if out != nil {
			if err := json.Unmarshal(resp.Data, out); err != nil {
				return resp, fmt.Errorf("decode %s: %w", resp.Type, err)
			}
		}
		return resp, nil
	case <-ctx.Done():
		cleanup()
		return nil, ctx.Err()
	case <-c.ctx.Done():
		cleanup()
		return nil, ErrNotConnected
	}
}

// Auth answers the server's challenge with key
func (c *Client) Auth(ctx context.Context, key *ecdsa.PrivateKey) error {
	var challenge server.ChallengeData
	select {
	case challenge = <-c.challenge:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrNotConnected
	}

	sig, err := auth.Sign(key, challenge.Challenge)
	if err != nil {
		return err
	}

	addr := crypto.PubkeyToAddress(key.PublicKey)
	var resp server.AuthResponseData
	if _, err := c.request(ctx, server.MessageTypeAuth, server.AuthData{Address: addr, Signature: sig}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrAuthFailed, resp.Error)
	}

	c.mu.Lock()
	c.address = resp.Address
	c.mu.Unlock()
	return nil
}

// CreateGame deploys a game with the given commitment. stake is in units.
func (c *Client) CreateGame(ctx context.Context, commitment game.Commitment, playerCap int, stake string) (server.GameCreatedData, error) {
	var out server.GameCreatedData
	_, err := c.request(ctx, server.MessageTypeCreateGame, server.CreateGameData{
		NonceHash:       commitment.NonceHash,
		NonceNumberHash: commitment.NonceNumberHash,
		PlayerCap:       playerCap,
		Stake:           stake,
	}, &out)
	return out, err
}

// Guess registers a guess. stake is in units.
func (c *Client) Guess(ctx context.Context, gameID string, number int, stake string) (server.CommitGuessData, error) {
	var out server.CommitGuessData
	_, err := c.request(ctx, server.MessageTypeGuess, server.GuessData{
		GameID: gameID,
		Number: number,
		Stake:  stake,
	}, &out)
	return out, err
}

// Reveal publishes the host secret and returns the settled game
func (c *Client) Reveal(ctx context.Context, gameID, nonce string, number int) (server.GameStateData, error) {
	var out server.GameStateData
	_, err := c.request(ctx, server.MessageTypeReveal, server.RevealData{
		GameID: gameID,
		Nonce:  nonce,
		Number: number,
	}, &out)
	return out, err
}

// GetGame fetches a game snapshot
func (c *Client) GetGame(ctx context.Context, gameID string) (server.GameStateData, error) {
	var out server.GameStateData
	_, err := c.request(ctx, server.MessageTypeGetGame, server.GameRequestData{GameID: gameID}, &out)
	return out, err
}

// Subscribe starts receiving a game's events and returns its snapshot
func (c *Client) Subscribe(ctx context.Context, gameID string) (server.GameStateData, error) {
	var out server.GameStateData
	_, err := c.request(ctx, server.MessageTypeSubscribe, server.GameRequestData{GameID: gameID}, &out)
	return out, err
}

// ListGames lists the server's games
func (c *Client) ListGames(ctx context.Context) ([]server.GameSummary, error) {
	var out server.GameListData
	_, err := c.request(ctx, server.MessageTypeListGames, struct{}{}, &out)
	return out.Games, err
}

// Balance returns addr's balance in units, or the caller's own when addr is
// nil
func (c *Client) Balance(ctx context.Context, addr *common.Address) (server.BalanceData, error) {
	var out server.BalanceData
	_, err := c.request(ctx, server.MessageTypeBalance, server.BalanceRequestData{Address: addr}, &out)
	return out, err
}
