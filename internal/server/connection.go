package server

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/lox/guessnumber/internal/amount"
	"github.com/lox/guessnumber/internal/auth"
	"github.com/lox/guessnumber/internal/game"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn          *websocket.Conn
	send          chan *Message
	server        *Server
	logger        *log.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	mu            sync.RWMutex
	closeOnce     sync.Once
	challenge     auth.Challenge
	address       common.Address
	authenticated bool
	subscriptions map[string]bool
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, server *Server, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:          conn,
		send:          make(chan *Message, 256),
		server:        server,
		logger:        logger.WithPrefix("conn"),
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[string]bool),
	}
}

// Start begins handling the connection. The first message the client
// receives is its auth challenge.
func (c *Connection) Start() {
	go c.writePump()

	challenge, err := c.server.issuer.Issue()
	if err != nil {
		c.logger.Error("Failed to issue challenge", "error", err)
		_ = c.Close()
		return
	}
	c.mu.Lock()
	c.challenge = challenge
	c.mu.Unlock()

	msg, err := NewMessage(MessageTypeChallenge, ChallengeData{
		Challenge: challenge.Nonce,
		ExpiresAt: challenge.ExpiresAt,
	})
	if err == nil {
		_ = c.SendMessage(msg) // readPump notices a dead connection
	}

	go c.readPump()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage sends a message to the client
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel was closed, this is expected during shutdown
			c.logger.Debug("Attempted to send message on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close() // Ignore close errors
		return ErrConnectionClosed
	}
}

// Address returns the authenticated account, or the zero address
func (c *Connection) Address() common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.address
}

func (c *Connection) authenticatedAddress() (common.Address, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.address, c.authenticated
}

// Subscribe starts forwarding a game's events to this connection
func (c *Connection) Subscribe(gameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[gameID] = true
}

// Unsubscribe stops forwarding a game's events
func (c *Connection) Unsubscribe(gameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, gameID)
}

// IsSubscribed reports whether the connection receives a game's events
func (c *Connection) IsSubscribed(gameID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions[gameID]
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var (
	ErrConnectionClosed = websocket.ErrCloseSent
)

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }() // Ignore close errors during cleanup

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "address", c.Address().Hex())

	switch msg.Type {
	case MessageTypeAuth:
		var data AuthData
		if err := msg.Decode(&data); err != nil {
			c.sendError(msg.RequestID, "invalid_message", "Failed to parse auth data")
			return
		}
		c.handleAuth(msg.RequestID, data)

	case MessageTypeCreateGame:
		var data CreateGameData
		if err := msg.Decode(&data); err != nil {
			c.sendError(msg.RequestID, "invalid_message", "Failed to parse create game data")
			return
		}
		c.handleCreateGame(msg.RequestID, data)

	case MessageTypeGuess:
		var data GuessData
		if err := msg.Decode(&data); err != nil {
			c.sendError(msg.RequestID, "invalid_message", "Failed to parse guess data")
			return
		}
		c.handleGuess(msg.RequestID, data)

	case MessageTypeReveal:
		var data RevealData
		if err := msg.Decode(&data); err != nil {
			c.sendError(msg.RequestID, "invalid_message", "Failed to parse reveal data")
			return
		}
		c.handleReveal(msg.RequestID, data)

	case MessageTypeGetGame, MessageTypeSubscribe, MessageTypeUnsubscribe:
		var data GameRequestData
		if err := msg.Decode(&data); err != nil {
			c.sendError(msg.RequestID, "invalid_message", "Failed to parse game request")
			return
		}
		c.handleGameRequest(msg.RequestID, msg.Type, data)

	case MessageTypeListGames:
		c.handleListGames(msg.RequestID)

	case MessageTypeBalance:
		var data BalanceRequestData
		if err := msg.Decode(&data); err != nil {
			c.sendError(msg.RequestID, "invalid_message", "Failed to parse balance request")
			return
		}
		c.handleBalance(msg.RequestID, data)

	default:
		c.sendError(msg.RequestID, "unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

// reply sends a response correlated with the client's request
func (c *Connection) reply(requestID string, messageType MessageType, data interface{}) {
	msg, err := NewMessage(messageType, data)
	if err != nil {
		c.logger.Error("Failed to create message", "type", messageType, "error", err)
		return
	}
	msg.RequestID = requestID
	_ = c.SendMessage(msg) // Ignore send errors
}

// sendError sends an error message to the client
func (c *Connection) sendError(requestID, code, message string) {
	c.reply(requestID, MessageTypeError, ErrorData{
		Code:    code,
		Message: message,
	})
}

// sendGameError reports a failed game operation with its stable code
func (c *Connection) sendGameError(requestID string, err error) {
	c.sendError(requestID, errorCode(err), err.Error())
}

func (c *Connection) requireAuth(requestID string) (common.Address, bool) {
	addr, ok := c.authenticatedAddress()
	if !ok {
		c.sendError(requestID, "not_authenticated", "Must authenticate first")
	}
	return addr, ok
}

func (c *Connection) handleAuth(requestID string, data AuthData) {
	c.logger.Info("Auth request", "address", data.Address.Hex())

	c.mu.RLock()
	challenge := c.challenge
	c.mu.RUnlock()

	addr, err := c.server.issuer.Verify(challenge, data.Address, data.Signature)
	if err != nil {
		c.logger.Warn("Auth failed", "address", data.Address.Hex(), "error", err)
		c.reply(requestID, MessageTypeAuthResponse, AuthResponseData{Success: false, Error: err.Error()})
		return
	}

	c.mu.Lock()
	c.address = addr
	c.authenticated = true
	c.mu.Unlock()

	c.reply(requestID, MessageTypeAuthResponse, AuthResponseData{Success: true, Address: addr})
}

func (c *Connection) handleCreateGame(requestID string, data CreateGameData) {
	host, ok := c.requireAuth(requestID)
	if !ok {
		return
	}

	bet, err := amount.Parse(data.Stake)
	if err != nil {
		c.sendError(requestID, "invalid_amount", err.Error())
		return
	}

	commitment := game.Commitment{NonceHash: data.NonceHash, NonceNumberHash: data.NonceNumberHash}
	g, err := c.server.games.CreateGame(c.ctx, host, commitment, data.PlayerCap, bet)
	if err != nil {
		c.sendGameError(requestID, err)
		return
	}
	c.Subscribe(g.ID())

	c.reply(requestID, MessageTypeGameCreated, GameCreatedData{
		GameID:          g.ID(),
		Host:            host,
		NonceHash:       data.NonceHash,
		NonceNumberHash: data.NonceNumberHash,
		PlayerCap:       g.PlayerCap(),
		BetAmount:       amount.Format(g.BetAmount()),
	})
}

func (c *Connection) handleGuess(requestID string, data GuessData) {
	player, ok := c.requireAuth(requestID)
	if !ok {
		return
	}

	stake, err := amount.Parse(data.Stake)
	if err != nil {
		c.sendError(requestID, "invalid_amount", err.Error())
		return
	}

	if err := c.server.games.Guess(c.ctx, data.GameID, player, data.Number, stake); err != nil {
		c.sendGameError(requestID, err)
		return
	}
	c.Subscribe(data.GameID)

	g, err := c.server.games.GetGame(data.GameID)
	if err != nil {
		c.sendGameError(requestID, err)
		return
	}
	c.reply(requestID, MessageTypeCommitGuess, CommitGuessData{
		GameID:    data.GameID,
		NonceHash: g.Config().NonceHash,
		Player:    player,
		Number:    data.Number,
	})
}

func (c *Connection) handleReveal(requestID string, data RevealData) {
	host, ok := c.requireAuth(requestID)
	if !ok {
		return
	}

	if _, err := c.server.games.Reveal(c.ctx, data.GameID, host, data.Nonce, data.Number); err != nil {
		c.sendGameError(requestID, err)
		return
	}

	g, err := c.server.games.GetGame(data.GameID)
	if err != nil {
		c.sendGameError(requestID, err)
		return
	}
	c.reply(requestID, MessageTypeGameState, GameStateFromGame(g))
}

func (c *Connection) handleGameRequest(requestID string, messageType MessageType, data GameRequestData) {
	g, err := c.server.games.GetGame(data.GameID)
	if err != nil {
		c.sendGameError(requestID, err)
		return
	}

	switch messageType {
	case MessageTypeSubscribe:
		c.Subscribe(g.ID())
	case MessageTypeUnsubscribe:
		c.Unsubscribe(g.ID())
	}
	c.reply(requestID, MessageTypeGameState, GameStateFromGame(g))
}

func (c *Connection) handleListGames(requestID string) {
	games := c.server.games.ListGames()
	data := GameListData{Games: make([]GameSummary, 0, len(games))}
	for _, g := range games {
		data.Games = append(data.Games, GameSummaryFromGame(g))
	}
	c.reply(requestID, MessageTypeGameList, data)
}

func (c *Connection) handleBalance(requestID string, data BalanceRequestData) {
	var addr common.Address
	if data.Address != nil {
		addr = *data.Address
	} else {
		own, ok := c.requireAuth(requestID)
		if !ok {
			return
		}
		addr = own
	}

	balance, err := c.server.games.Balance(c.ctx, addr)
	if err != nil {
		c.sendError(requestID, "internal", err.Error())
		return
	}
	c.reply(requestID, MessageTypeBalanceInfo, BalanceData{Address: addr, Balance: amount.Format(balance)})
}
