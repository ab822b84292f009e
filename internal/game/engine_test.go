package game_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/guessnumber/internal/game"
	"github.com/lox/guessnumber/internal/ledger"
)

var (
	host    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	player1 = common.HexToAddress("0x2000000000000000000000000000000000000002")
	player2 = common.HexToAddress("0x3000000000000000000000000000000000000003")
	player3 = common.HexToAddress("0x4000000000000000000000000000000000000004")
	player4 = common.HexToAddress("0x5000000000000000000000000000000000000005")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// halfEther returns n.5 ether.
func halfEther(n int64) *big.Int {
	return new(big.Int).Add(ether(n), big.NewInt(5e17))
}

// flakyLedger fails every transfer while fail is set.
type flakyLedger struct {
	*ledger.Memory
	fail bool
}

func (f *flakyLedger) Transfer(ctx context.Context, transfers ...game.Transfer) error {
	if f.fail {
		return errors.New("ledger offline")
	}
	return f.Memory.Transfer(ctx, transfers...)
}

func (f *flakyLedger) Commit(ctx context.Context, rec game.Record, transfers ...game.Transfer) error {
	if f.fail {
		return errors.New("ledger offline")
	}
	return f.Memory.Commit(ctx, rec, transfers...)
}

type eventRecorder struct {
	events []game.GameEvent
	onEvent func(game.GameEvent)
}

func (r *eventRecorder) OnEvent(e game.GameEvent) {
	r.events = append(r.events, e)
	if r.onEvent != nil {
		r.onEvent(e)
	}
}

func (r *eventRecorder) types() []game.EventType {
	out := make([]game.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType()
	}
	return out
}

type fixture struct {
	ledger *flakyLedger
	game   *game.Game
}

func fundedLedger(t *testing.T) *flakyLedger {
	t.Helper()
	l := &flakyLedger{Memory: ledger.NewMemory()}
	for _, addr := range []common.Address{host, player1, player2, player3, player4} {
		require.NoError(t, l.Credit(context.Background(), addr, ether(10)))
	}
	return l
}

func newFixture(t *testing.T, nonce string, number, playerCap int, bet *big.Int, opts ...game.Option) *fixture {
	t.Helper()
	l := fundedLedger(t)
	c := game.NewCommitment(nonce, number)
	g, err := game.New(context.Background(), "test-game", game.Config{
		NonceHash:       c.NonceHash,
		NonceNumberHash: c.NonceNumberHash,
		PlayerCap:       playerCap,
		BetAmount:       bet,
		Host:            host,
	}, l, opts...)
	require.NoError(t, err)
	return &fixture{ledger: l, game: g}
}

func (f *fixture) balance(t *testing.T, addr common.Address) *big.Int {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), addr)
	require.NoError(t, err)
	return b
}

func (f *fixture) guess(t *testing.T, addr common.Address, number int) {
	t.Helper()
	require.NoError(t, f.game.Guess(context.Background(), addr, number, f.game.BetAmount()))
}

func TestDeploy(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "hello", 35, 2, ether(1))

	assert.Equal(t, 2, f.game.PlayerCap())
	assert.Equal(t, 0, f.game.BetAmount().Cmp(ether(1)))
	assert.Equal(t, game.StateGuessing, f.game.State())
	assert.Equal(t, host, f.game.Host())
	assert.Equal(t, game.EscrowAddress("test-game"), f.game.Escrow())

	assert.Equal(t, 0, f.balance(t, f.game.Escrow()).Cmp(ether(1)), "host stake escrowed")
	assert.Equal(t, 0, f.balance(t, host).Cmp(ether(9)))
}

func TestDeployPlayerCapRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cap     int
		wantErr bool
	}{
		{cap: -1, wantErr: true},
		{cap: 0},
		{cap: 1},
		{cap: 2},
		{cap: 999},
		{cap: 1000, wantErr: true},
		{cap: 1001, wantErr: true},
	}

	for _, tt := range tests {
		l := fundedLedger(t)
		c := game.NewCommitment("hello", 35)
		_, err := game.New(context.Background(), "g", game.Config{
			NonceHash:       c.NonceHash,
			NonceNumberHash: c.NonceNumberHash,
			PlayerCap:       tt.cap,
			BetAmount:       ether(1),
			Host:            host,
		}, l)
		if tt.wantErr {
			assert.ErrorIs(t, err, game.ErrConfiguration, "cap %d", tt.cap)
			assert.Equal(t, 0, must(l.Balance(context.Background(), host)).Cmp(ether(10)), "no stake taken for cap %d", tt.cap)
		} else {
			assert.NoError(t, err, "cap %d", tt.cap)
		}
	}
}

func must(b *big.Int, err error) *big.Int {
	if err != nil {
		panic(err)
	}
	return b
}

func TestDeployRejectsBadConfig(t *testing.T) {
	t.Parallel()

	l := fundedLedger(t)
	c := game.NewCommitment("hello", 35)

	_, err := game.New(context.Background(), "g", game.Config{
		NonceHash: c.NonceHash, NonceNumberHash: c.NonceNumberHash, PlayerCap: 2, BetAmount: big.NewInt(-1), Host: host,
	}, l)
	assert.ErrorIs(t, err, game.ErrConfiguration)

	_, err = game.New(context.Background(), "g", game.Config{
		NonceHash: c.NonceHash, NonceNumberHash: c.NonceNumberHash, PlayerCap: 2, BetAmount: ether(1),
	}, l)
	assert.ErrorIs(t, err, game.ErrConfiguration)

	_, err = game.New(context.Background(), "g", game.Config{
		NonceHash: c.NonceHash, NonceNumberHash: c.NonceNumberHash, PlayerCap: 2, BetAmount: ether(100), Host: host,
	}, l)
	assert.ErrorIs(t, err, game.ErrTransferFailed, "host cannot cover the bet")
}

func TestGuessErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("number out of range", func(t *testing.T) {
		f := newFixture(t, "hello", 400, 2, ether(1))
		assert.ErrorIs(t, f.game.Guess(ctx, player1, 2000, ether(1)), game.ErrOutOfRange)
		assert.ErrorIs(t, f.game.Guess(ctx, player1, 1000, ether(1)), game.ErrOutOfRange)
		assert.ErrorIs(t, f.game.Guess(ctx, player1, -1, ether(1)), game.ErrOutOfRange)
		assert.Empty(t, f.game.Players())
	})

	t.Run("player guesses twice", func(t *testing.T) {
		f := newFixture(t, "hello", 400, 2, ether(1))
		f.guess(t, player2, 15)
		assert.ErrorIs(t, f.game.Guess(ctx, player2, 25, ether(1)), game.ErrDuplicateGuess)
		assert.Len(t, f.game.Players(), 1)
	})

	t.Run("number already taken", func(t *testing.T) {
		f := newFixture(t, "hello", 400, 2, ether(1))
		f.guess(t, player2, 15)
		assert.ErrorIs(t, f.game.Guess(ctx, player3, 15, ether(1)), game.ErrNumberTaken)
	})

	t.Run("game has ended", func(t *testing.T) {
		f := newFixture(t, "HELLO", 400, 2, ether(1))
		f.guess(t, player1, 1)
		f.guess(t, player2, 2)
		_, err := f.game.Reveal(ctx, host, "HELLO", 400)
		require.NoError(t, err)

		assert.ErrorIs(t, f.game.Guess(ctx, player3, 15, ether(1)), game.ErrGameEnded)
	})

	t.Run("stake mismatch never mutates", func(t *testing.T) {
		f := newFixture(t, "hello", 400, 2, ether(1))
		for _, stake := range []*big.Int{ether(2), big.NewInt(0), nil, new(big.Int).Sub(ether(1), big.NewInt(1))} {
			assert.ErrorIs(t, f.game.Guess(ctx, player2, 15, stake), game.ErrStakeMismatch)
		}
		assert.Empty(t, f.game.Players())
		assert.Equal(t, 0, f.balance(t, player2).Cmp(ether(10)))
	})

	t.Run("stake cannot be collected", func(t *testing.T) {
		f := newFixture(t, "hello", 400, 2, ether(1))
		poor := common.HexToAddress("0x9000000000000000000000000000000000000009")
		assert.ErrorIs(t, f.game.Guess(ctx, poor, 15, ether(1)), game.ErrTransferFailed)
		assert.Empty(t, f.game.Players())
		// the number stays free
		f.guess(t, player1, 15)
	})
}

func TestGuessCheckOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "hello", 400, 5, ether(1))
	f.guess(t, player1, 10)

	// range is checked before the caller
	assert.ErrorIs(t, f.game.Guess(ctx, player1, 5000, ether(2)), game.ErrOutOfRange)
	// duplicate caller is reported before a taken number and a bad stake
	assert.ErrorIs(t, f.game.Guess(ctx, player1, 10, ether(2)), game.ErrDuplicateGuess)
	// taken number is reported before a bad stake
	assert.ErrorIs(t, f.game.Guess(ctx, player2, 10, ether(2)), game.ErrNumberTaken)

	f.guess(t, player2, 20)
	_, err := f.game.Reveal(ctx, host, "hello", 400)
	require.NoError(t, err)

	// ended is reported before everything else
	assert.ErrorIs(t, f.game.Guess(ctx, player1, 5000, ether(2)), game.ErrGameEnded)
}

func TestPlayerCapEnforcement(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("informational by default", func(t *testing.T) {
		f := newFixture(t, "hello", 400, 2, ether(1))
		f.guess(t, player1, 1)
		f.guess(t, player2, 2)
		f.guess(t, player3, 3)
		assert.Len(t, f.game.Players(), 3)
	})

	t.Run("enforced", func(t *testing.T) {
		f := newFixture(t, "hello", 400, 2, ether(1), game.WithRules(game.Rules{EnforcePlayerCap: true}))
		f.guess(t, player1, 1)
		f.guess(t, player2, 2)
		assert.ErrorIs(t, f.game.Guess(ctx, player3, 3, ether(1)), game.ErrPlayerCapReached)
		assert.Len(t, f.game.Players(), 2)
		assert.Equal(t, 0, f.balance(t, player3).Cmp(ether(10)))
	})
}

func TestUniquenessInvariant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "hello", 400, 10, big.NewInt(1))
	addrs := []common.Address{player1, player2, player3, player4}
	for i := 0; i < 40; i++ {
		_ = f.game.Guess(ctx, addrs[i%len(addrs)], (i*7)%5, big.NewInt(1))
	}

	seenAddr := map[common.Address]bool{}
	seenNum := map[int]bool{}
	for _, p := range f.game.Players() {
		assert.False(t, seenAddr[p.Address], "address %s registered twice", p.Address)
		assert.False(t, seenNum[p.Number], "number %d registered twice", p.Number)
		seenAddr[p.Address] = true
		seenNum[p.Number] = true
	}
}

func TestRevealErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("not called by host", func(t *testing.T) {
		f := newFixture(t, "HELLO", 689, 2, ether(1))
		f.guess(t, player1, 1)
		_, err := f.game.Reveal(ctx, player2, "HELLO", 689)
		assert.ErrorIs(t, err, game.ErrUnauthorized)
		// authorization is checked before the commitment
		_, err = f.game.Reveal(ctx, player2, "WRONG", 1)
		assert.ErrorIs(t, err, game.ErrUnauthorized)
	})

	t.Run("nonce is not correct", func(t *testing.T) {
		f := newFixture(t, "HELLO", 689, 2, ether(1))
		f.guess(t, player1, 1)
		_, err := f.game.Reveal(ctx, host, "HELLOA", 689)
		assert.ErrorIs(t, err, game.ErrNonceMismatch)
	})

	t.Run("number is not correct", func(t *testing.T) {
		f := newFixture(t, "HELLO", 400, 2, ether(1))
		f.guess(t, player1, 1)
		_, err := f.game.Reveal(ctx, host, "HELLO", 300)
		assert.ErrorIs(t, err, game.ErrNumberMismatch)
	})

	t.Run("no players yet", func(t *testing.T) {
		f := newFixture(t, "HELLO", 689, 2, ether(1))
		_, err := f.game.Reveal(ctx, host, "HELLO", 689)
		assert.ErrorIs(t, err, game.ErrNotRevealable)
		assert.Equal(t, game.StateGuessing, f.game.State())
	})

	t.Run("already revealed", func(t *testing.T) {
		f := newFixture(t, "HELLO", 689, 2, ether(1))
		f.guess(t, player1, 1)
		_, err := f.game.Reveal(ctx, host, "HELLO", 689)
		require.NoError(t, err)

		_, err = f.game.Reveal(ctx, host, "HELLO", 689)
		assert.ErrorIs(t, err, game.ErrNotRevealable)
		_, err = f.game.Reveal(ctx, player1, "HELLO", 689)
		assert.ErrorIs(t, err, game.ErrUnauthorized)
	})
}

func TestRewardsToOnePlayer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "HELLO", 500, 2, ether(1))
	f.guess(t, player1, 25)
	f.guess(t, player2, 555)

	s, err := f.game.Reveal(ctx, host, "HELLO", 500)
	require.NoError(t, err)

	assert.Equal(t, []common.Address{player2}, s.Winners)
	assert.Equal(t, 55, s.Distance)
	assert.Equal(t, 0, s.Share.Cmp(ether(2)), "winner takes the players' pool")

	assert.Equal(t, 0, f.balance(t, player1).Cmp(ether(9)))
	assert.Equal(t, 0, f.balance(t, player2).Cmp(ether(11)))
	assert.Equal(t, 0, f.balance(t, host).Cmp(ether(10)), "host stake returned")
	assert.Equal(t, 0, f.balance(t, f.game.Escrow()).Sign(), "escrow drained")
	assert.Equal(t, game.StateEnded, f.game.State())
	assert.EqualValues(t, 2, f.game.State())
}

func TestRewardsToTwoPlayers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "HELLO", 500, 3, ether(1))
	f.guess(t, player1, 25)
	f.guess(t, player2, 550)
	f.guess(t, player3, 450)

	s, err := f.game.Reveal(ctx, host, "HELLO", 500)
	require.NoError(t, err)

	assert.ElementsMatch(t, []common.Address{player2, player3}, s.Winners)
	assert.Equal(t, 50, s.Distance)
	assert.Equal(t, 0, s.Share.Cmp(halfEther(1)))
	assert.Equal(t, 0, f.balance(t, player2).Cmp(halfEther(10)))
	assert.Equal(t, 0, f.balance(t, player3).Cmp(halfEther(10)))
	assert.Equal(t, 0, f.balance(t, player1).Cmp(ether(9)))
	assert.Equal(t, game.StateEnded, f.game.State())
}

func TestHostNumberOutOfRangeSplitsEqually(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "HELLO", 1500, 2, ether(1))
	f.guess(t, player1, 25)
	f.guess(t, player2, 555)

	s, err := f.game.Reveal(ctx, host, "HELLO", 1500)
	require.NoError(t, err)

	assert.True(t, s.OutOfRange)
	assert.Equal(t, -1, s.Distance)
	assert.ElementsMatch(t, []common.Address{player1, player2}, s.Winners)
	assert.Equal(t, 0, s.Share.Cmp(ether(1)))
	assert.Equal(t, 0, f.balance(t, player1).Cmp(ether(10)))
	assert.Equal(t, 0, f.balance(t, player2).Cmp(ether(10)))
	assert.Equal(t, game.StateEnded, f.game.State())
}

func TestHostStakeInPool(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rules := game.WithRules(game.Rules{HostStakeInPool: true})

	t.Run("one winner takes everything", func(t *testing.T) {
		f := newFixture(t, "HELLO", 500, 2, ether(1), rules)
		f.guess(t, player1, 25)
		f.guess(t, player2, 555)
		_, err := f.game.Reveal(ctx, host, "HELLO", 500)
		require.NoError(t, err)

		assert.Equal(t, 0, f.balance(t, player2).Cmp(ether(12)), "3 ether paid out")
		assert.Equal(t, 0, f.balance(t, host).Cmp(ether(9)))
	})

	t.Run("two winners", func(t *testing.T) {
		f := newFixture(t, "HELLO", 500, 3, ether(1), rules)
		f.guess(t, player1, 25)
		f.guess(t, player2, 550)
		f.guess(t, player3, 450)
		_, err := f.game.Reveal(ctx, host, "HELLO", 500)
		require.NoError(t, err)

		assert.Equal(t, 0, f.balance(t, player2).Cmp(ether(11)), "2 ether paid out")
		assert.Equal(t, 0, f.balance(t, player3).Cmp(ether(11)))
	})

	t.Run("out of range", func(t *testing.T) {
		f := newFixture(t, "HELLO", 1500, 2, ether(1), rules)
		f.guess(t, player1, 25)
		f.guess(t, player2, 555)
		_, err := f.game.Reveal(ctx, host, "HELLO", 1500)
		require.NoError(t, err)

		assert.Equal(t, 0, f.balance(t, player1).Cmp(halfEther(10)), "1.5 ether paid out")
		assert.Equal(t, 0, f.balance(t, player2).Cmp(halfEther(10)))
	})
}

func TestRemainderReturnsToHost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "HELLO", 500, 3, big.NewInt(1))
	f.guess(t, player1, 25)
	f.guess(t, player2, 550)
	f.guess(t, player3, 450)

	before := new(big.Int)
	for _, addr := range []common.Address{host, player1, player2, player3} {
		before.Add(before, f.balance(t, addr))
	}
	before.Add(before, f.balance(t, f.game.Escrow()))

	s, err := f.game.Reveal(ctx, host, "HELLO", 500)
	require.NoError(t, err)

	assert.Equal(t, int64(3), s.Pot.Int64())
	assert.Equal(t, int64(1), s.Share.Int64())
	assert.Equal(t, int64(1), s.Remainder.Int64())
	assert.Equal(t, int64(2), s.HostRefund.Int64(), "host stake plus remainder")
	assert.Equal(t, int64(4), s.Total().Int64())

	after := new(big.Int)
	for _, addr := range []common.Address{host, player1, player2, player3} {
		after.Add(after, f.balance(t, addr))
	}
	after.Add(after, f.balance(t, f.game.Escrow()))
	assert.Equal(t, 0, before.Cmp(after), "funds conserved")
	assert.Equal(t, 0, f.balance(t, f.game.Escrow()).Sign())
}

func TestRevealPayoutFailureIsRetryable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "HELLO", 500, 2, ether(1))
	f.guess(t, player1, 25)
	f.guess(t, player2, 555)

	f.ledger.fail = true
	_, err := f.game.Reveal(ctx, host, "HELLO", 500)
	require.ErrorIs(t, err, game.ErrTransferFailed)

	assert.Equal(t, game.StateGuessing, f.game.State())
	assert.Len(t, f.game.Players(), 2)
	_, settled := f.game.Result()
	assert.False(t, settled)
	assert.Equal(t, 0, f.balance(t, f.game.Escrow()).Cmp(ether(3)))

	f.ledger.fail = false
	s, err := f.game.Reveal(ctx, host, "HELLO", 500)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{player2}, s.Winners)
	assert.Equal(t, game.StateEnded, f.game.State())

	result, settled := f.game.Result()
	assert.True(t, settled)
	assert.Equal(t, s.Winners, result.Winners)
}

func TestEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clock := quartz.NewMock(t)
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	clock.Set(start)

	bus := game.NewEventBus()
	rec := &eventRecorder{}
	bus.Subscribe(rec)

	f := newFixture(t, "HELLO", 500, 3, ether(1), game.WithEventBus(bus), game.WithClock(clock))

	var statesDuringReveal []game.State
	rec.onEvent = func(e game.GameEvent) {
		if e.EventType() == game.EventTypeRevealAnswer || e.EventType() == game.EventTypeRewardWinners {
			statesDuringReveal = append(statesDuringReveal, f.game.State())
		}
	}

	f.guess(t, player1, 25)
	f.guess(t, player2, 550)
	f.guess(t, player3, 450)
	_, err := f.game.Reveal(ctx, host, "HELLO", 500)
	require.NoError(t, err)

	assert.Equal(t, []game.EventType{
		game.EventTypeGameCreated,
		game.EventTypeCommitGuess,
		game.EventTypeCommitGuess,
		game.EventTypeCommitGuess,
		game.EventTypeRevealAnswer,
		game.EventTypeRewardWinners,
		game.EventTypeRewardWinners,
		game.EventTypeGameEnded,
	}, rec.types())

	created := rec.events[0].(game.GameCreatedEvent)
	assert.Equal(t, host, created.Host)
	assert.Equal(t, game.HashNonce("HELLO"), created.NonceHash)
	assert.Equal(t, game.HashNonceNumber("HELLO", 500), created.NonceNumberHash)
	assert.Equal(t, 3, created.PlayerCap)
	assert.Equal(t, 0, created.BetAmount.Cmp(ether(1)))
	assert.Equal(t, "test-game", created.GameID())
	assert.Equal(t, start, created.Timestamp())

	commit := rec.events[1].(game.CommitGuessEvent)
	assert.Equal(t, game.HashNonce("HELLO"), commit.NonceHash)
	assert.Equal(t, player1, commit.Player)
	assert.Equal(t, 25, commit.Number)

	reveal := rec.events[4].(game.RevealAnswerEvent)
	assert.Equal(t, game.HashNonceNumber("HELLO", 500), reveal.NonceNumberHash)
	assert.Equal(t, 500, reveal.Number)

	var rewarded []common.Address
	for _, e := range rec.events[5:7] {
		r := e.(game.RewardWinnersEvent)
		assert.Equal(t, 0, r.Amount.Cmp(halfEther(1)))
		assert.Equal(t, game.HashNonce("HELLO"), r.NonceHash)
		rewarded = append(rewarded, r.Winner)
	}
	assert.ElementsMatch(t, []common.Address{player2, player3}, rewarded)

	assert.Equal(t, []game.State{game.StateRevealed, game.StateRevealed, game.StateRevealed}, statesDuringReveal)
}

func TestRejectedCallsPublishNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	bus := game.NewEventBus()
	rec := &eventRecorder{}
	bus.Subscribe(rec)

	f := newFixture(t, "HELLO", 500, 3, ether(1), game.WithEventBus(bus))
	_ = f.game.Guess(ctx, player1, 5000, ether(1))
	_, _ = f.game.Reveal(ctx, player1, "HELLO", 500)

	assert.Equal(t, []game.EventType{game.EventTypeGameCreated}, rec.types())

	bus.Unsubscribe(rec)
	f.guess(t, player1, 1)
	assert.Len(t, rec.events, 1)
}

func restoreAll(t *testing.T, l *flakyLedger, opts ...game.Option) map[string]*game.Game {
	t.Helper()
	records, err := l.Games(context.Background())
	require.NoError(t, err)

	out := make(map[string]*game.Game)
	for _, rec := range records {
		g, err := game.Restore(rec, l, opts...)
		require.NoError(t, err)
		out[rec.ID] = g
	}
	return out
}

func TestRestoreOpenGame(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "HELLO", 500, 3, ether(1), game.WithRules(game.Rules{HostStakeInPool: true}))
	f.guess(t, player1, 25)
	f.guess(t, player2, 555)

	restored := restoreAll(t, f.ledger)
	require.Len(t, restored, 1)
	g := restored["test-game"]
	require.NotNil(t, g)

	assert.Equal(t, game.StateGuessing, g.State())
	assert.Equal(t, f.game.Players(), g.Players())
	assert.Equal(t, f.game.Escrow(), g.Escrow())
	assert.Equal(t, game.Rules{HostStakeInPool: true}, g.Rules())
	assert.Equal(t, 0, g.BetAmount().Cmp(ether(1)))

	// the restored game keeps its uniqueness rules and can be settled
	assert.ErrorIs(t, g.Guess(ctx, player1, 40, ether(1)), game.ErrDuplicateGuess)
	assert.ErrorIs(t, g.Guess(ctx, player3, 25, ether(1)), game.ErrNumberTaken)

	s, err := g.Reveal(ctx, host, "HELLO", 500)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{player2}, s.Winners)
	assert.Equal(t, 0, s.Share.Cmp(ether(3)))
	assert.Equal(t, 0, f.balance(t, g.Escrow()).Sign())
	assert.Equal(t, 0, f.balance(t, player2).Cmp(ether(12)))
}

func TestRestoreEndedGame(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "HELLO", 500, 3, ether(1))
	f.guess(t, player1, 25)
	f.guess(t, player2, 555)
	want, err := f.game.Reveal(ctx, host, "HELLO", 500)
	require.NoError(t, err)

	g := restoreAll(t, f.ledger)["test-game"]
	require.NotNil(t, g)
	assert.Equal(t, game.StateEnded, g.State())

	got, settled := g.Result()
	require.True(t, settled)
	assert.Equal(t, want.Winners, got.Winners)
	assert.Equal(t, 0, want.Share.Cmp(got.Share))

	_, err = g.Reveal(ctx, host, "HELLO", 500)
	assert.ErrorIs(t, err, game.ErrNotRevealable)
	assert.ErrorIs(t, g.Guess(ctx, player3, 7, ether(1)), game.ErrGameEnded)
}

func TestFailedGuessLeavesRecordUnchanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "HELLO", 500, 3, ether(1))
	f.guess(t, player1, 25)

	f.ledger.fail = true
	assert.ErrorIs(t, f.game.Guess(ctx, player2, 30, ether(1)), game.ErrTransferFailed)
	f.ledger.fail = false

	records, err := f.ledger.Games(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, records[0].Players, 1)
	assert.Equal(t, player1, records[0].Players[0].Address)
}

func TestRestoreRejectsInconsistentRecords(t *testing.T) {
	t.Parallel()

	c := game.NewCommitment("HELLO", 500)
	base := game.Record{
		ID: "broken",
		Config: game.Config{
			NonceHash:       c.NonceHash,
			NonceNumberHash: c.NonceNumberHash,
			PlayerCap:       3,
			BetAmount:       ether(1),
			Host:            host,
		},
		State: game.StateGuessing,
	}
	number := 500

	tests := []struct {
		name   string
		modify func(r *game.Record)
	}{
		{"bad config", func(r *game.Record) { r.Config.PlayerCap = 5000 }},
		{"duplicate number", func(r *game.Record) {
			r.Players = []game.PlayerEntry{
				{Address: player1, Number: 1, Stake: ether(1)},
				{Address: player2, Number: 1, Stake: ether(1)},
			}
		}},
		{"ended without answer", func(r *game.Record) { r.State = game.StateEnded }},
		{"guessing with answer", func(r *game.Record) { r.Revealed = &number }},
		{"ended without players", func(r *game.Record) {
			r.State = game.StateEnded
			r.Revealed = &number
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := base
			tt.modify(&rec)
			_, err := game.Restore(rec, ledger.NewMemory())
			assert.Error(t, err)
		})
	}
}

// transferOnly hides the journal so the engine only moves funds.
type transferOnly struct {
	inner *ledger.Memory
}

func (l transferOnly) Transfer(ctx context.Context, transfers ...game.Transfer) error {
	return l.inner.Transfer(ctx, transfers...)
}

func TestGameWithPlainLedger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mem := fundedLedger(t).Memory
	c := game.NewCommitment("HELLO", 500)
	g, err := game.New(ctx, "plain", game.Config{
		NonceHash:       c.NonceHash,
		NonceNumberHash: c.NonceNumberHash,
		PlayerCap:       2,
		BetAmount:       ether(1),
		Host:            host,
	}, transferOnly{inner: mem})
	require.NoError(t, err)

	require.NoError(t, g.Guess(ctx, player1, 499, ether(1)))
	s, err := g.Reveal(ctx, host, "HELLO", 500)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{player1}, s.Winners)

	records, err := mem.Games(ctx)
	require.NoError(t, err)
	assert.Empty(t, records, "nothing journaled through a plain ledger")

	b, err := mem.Balance(ctx, player1)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Cmp(ether(10)))
}
