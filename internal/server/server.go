package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/lox/guessnumber/internal/auth"
	"github.com/lox/guessnumber/internal/game"
)

const shutdownTimeout = 5 * time.Second

// Server represents the WebSocket server
type Server struct {
	addr         string
	upgrader     websocket.Upgrader
	connections  map[*Connection]bool
	games        *GameService
	issuer       *auth.Issuer
	clock        quartz.Clock
	challengeTTL time.Duration
	logger       *log.Logger
	mu           sync.RWMutex
}

// Option configures a Server
type Option func(*Server)

// WithClock sets the clock used for auth challenges
func WithClock(clock quartz.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

// WithChallengeTTL sets how long clients have to answer the auth challenge
func WithChallengeTTL(ttl time.Duration) Option {
	return func(s *Server) { s.challengeTTL = ttl }
}

// NewServer creates a new WebSocket server serving games
func NewServer(addr string, games *GameService, logger *log.Logger, opts ...Option) *Server {
	s := &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Clients prove identity by signature, not origin
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections:  make(map[*Connection]bool),
		games:        games,
		clock:        quartz.NewReal(),
		challengeTTL: auth.DefaultChallengeTTL,
		logger:       logger.WithPrefix("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.issuer = auth.NewIssuer(s.clock, s.challengeTTL)

	games.Events().Subscribe(s)
	return s
}

// Handler returns the HTTP routes served by the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /games", s.handleListGames)
	mux.HandleFunc("GET /games/{id}", s.handleGetGame)
	return mux
}

// Serve listens on the configured address until ctx is cancelled
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Starting WebSocket server", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.Stop()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Stop closes every client connection
func (s *Server) Stop() {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close() // Ignore close errors during shutdown
	}
}

func (s *Server) register(conn *Connection) {
	s.mu.Lock()
	s.connections[conn] = true
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info("Client connected", "total", total)
}

func (s *Server) unregister(conn *Connection) {
	s.mu.Lock()
	delete(s.connections, conn)
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info("Client disconnected", "total", total, "address", conn.Address().Hex())
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s, s.logger)
	s.register(client)
	client.Start()

	// Connection cleanup is handled by the connection itself
	go func() {
		<-client.ctx.Done()
		s.unregister(client)
	}()
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK") // Ignore write errors for health check
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	clients := s.ConnectedClients()
	games := s.games.ListGames()
	stats := s.games.Stats()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "Connected clients: %d\n", clients)
	_, _ = fmt.Fprintf(w, "Games: %d\n", len(games))
	for _, state := range sortedStates(stats) {
		_, _ = fmt.Fprintf(w, "  %s: %d\n", state, stats[state])
	}
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games := s.games.ListGames()
	data := GameListData{Games: make([]GameSummary, 0, len(games))}
	for _, g := range games {
		data.Games = append(data.Games, GameSummaryFromGame(g))
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	g, err := s.games.GetGame(r.PathValue("id"))
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, ErrInvalidGameID) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, ErrorData{Code: errorCode(err), Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, GameStateFromGame(g))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) // Client may have gone away
}

// OnEvent forwards game events to subscribed connections
func (s *Server) OnEvent(event game.GameEvent) {
	msg, err := MessageFromEvent(event)
	if err != nil {
		s.logger.Error("Failed to convert game event", "type", event.EventType(), "error", err)
		return
	}
	s.BroadcastToGame(event.GameID(), msg)
}

// BroadcastToGame sends a message to every connection subscribed to a game
func (s *Server) BroadcastToGame(gameID string, msg *Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for conn := range s.connections {
		if !conn.IsSubscribed(gameID) {
			continue
		}
		if err := conn.SendMessage(msg); err != nil {
			s.logger.Error("Failed to send message to client", "error", err, "address", conn.Address().Hex())
		} else {
			count++
		}
	}

	s.logger.Debug("Broadcasted message to game", "gameId", gameID, "type", msg.Type, "recipients", count)
}

// ConnectedClients returns the number of open connections
func (s *Server) ConnectedClients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}
