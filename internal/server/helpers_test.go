package server

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/lox/guessnumber/internal/amount"
	"github.com/lox/guessnumber/internal/auth"
	"github.com/lox/guessnumber/internal/game"
	"github.com/lox/guessnumber/internal/ledger"
)

// testLogger creates a logger that discards output for tests
func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

type testEnv struct {
	server *Server
	games  *GameService
	store  *ledger.Memory
	http   *httptest.Server
}

func newTestEnv(t *testing.T, rules game.Rules) *testEnv {
	t.Helper()

	store := ledger.NewMemory()
	games := NewGameService(store, rules, testLogger())
	srv := NewServer("", games, testLogger())
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Stop()
		hs.Close()
	})

	return &testEnv{server: srv, games: games, store: store, http: hs}
}

type account struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// newAccount creates a key and funds it with units of currency
func (e *testEnv) newAccount(t *testing.T, units string) account {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)
	require.NoError(t, e.store.Credit(context.Background(), addr, amount.MustParse(units)))
	return account{key: key, addr: addr}
}

func (e *testEnv) balance(t *testing.T, addr common.Address) string {
	t.Helper()
	b, err := e.store.Balance(context.Background(), addr)
	require.NoError(t, err)
	return amount.Format(b)
}

type wsClient struct {
	t         *testing.T
	conn      *websocket.Conn
	challenge ChallengeData
	nextID    int
	pending   []*Message
}

func (e *testEnv) dial(t *testing.T) *wsClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	c := &wsClient{t: t, conn: conn}
	msg := c.read()
	require.Equal(t, MessageTypeChallenge, msg.Type)
	require.NoError(t, json.Unmarshal(msg.Data, &c.challenge))
	return c
}

func (c *wsClient) read() *Message {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(c.t, c.conn.ReadJSON(&msg))
	return &msg
}

// request sends a message and waits for the response carrying its request
// ID. Broadcasts received meanwhile are kept for expect.
func (c *wsClient) request(messageType MessageType, data interface{}) *Message {
	c.t.Helper()

	c.nextID++
	msg, err := NewMessage(messageType, data)
	require.NoError(c.t, err)
	msg.RequestID = strconv.Itoa(c.nextID)
	require.NoError(c.t, c.conn.WriteJSON(msg))

	for {
		resp := c.read()
		if resp.RequestID == msg.RequestID {
			return resp
		}
		c.pending = append(c.pending, resp)
	}
}

// expect returns the next broadcast of the given type
func (c *wsClient) expect(messageType MessageType) *Message {
	c.t.Helper()

	for i, msg := range c.pending {
		if msg.Type == messageType {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return msg
		}
	}
	for {
		msg := c.read()
		if msg.Type == messageType {
			return msg
		}
		c.pending = append(c.pending, msg)
	}
}

func (c *wsClient) authenticate(a account) {
	c.t.Helper()

	sig, err := auth.Sign(a.key, c.challenge.Challenge)
	require.NoError(c.t, err)

	resp := c.request(MessageTypeAuth, AuthData{Address: a.addr, Signature: sig})
	require.Equal(c.t, MessageTypeAuthResponse, resp.Type)

	var data AuthResponseData
	require.NoError(c.t, json.Unmarshal(resp.Data, &data))
	require.True(c.t, data.Success, data.Error)
}

func decode[T any](t *testing.T, msg *Message) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Data, &v))
	return v
}

func requireError(t *testing.T, msg *Message, code string) {
	t.Helper()
	require.Equal(t, MessageTypeError, msg.Type, string(msg.Data))
	require.Equal(t, code, decode[ErrorData](t, msg).Code)
}
