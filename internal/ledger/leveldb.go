package ledger

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/lox/guessnumber/internal/game"
)

const (
	accountKeyPrefix = "acc-"
	gameKeyPrefix    = "game-"
	genesisKey       = "genesis-applied"
)

// LevelDB keeps balances and game records in a goleveldb database. Each
// Transfer, Commit and ApplyGenesis call is written as a single synced batch.
type LevelDB struct {
	mu sync.Mutex
	db *leveldb.DB
}

// OpenLevelDB opens or creates the database at path, recovering it if the
// manifest is corrupted.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		OpenFilesCacheCapacity: 64,
		BlockCacheCapacity:     8 * opt.MiB,
		WriteBuffer:            4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	})
	if _, corrupted := err.(*lerrors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open ledger %s", path)
	}
	return &LevelDB{db: db}, nil
}

func accountKey(addr common.Address) []byte {
	return append([]byte(accountKeyPrefix), addr.Bytes()...)
}

func (l *LevelDB) load(addr common.Address) (*big.Int, error) {
	value, err := l.db.Get(accountKey(addr), nil)
	if err == leveldb.ErrNotFound {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load balance %s", addr.Hex())
	}
	return new(big.Int).SetBytes(value), nil
}

func gameKey(id string) []byte {
	return []byte(gameKeyPrefix + id)
}

func balanceBatch(working map[common.Address]*big.Int) *leveldb.Batch {
	batch := new(leveldb.Batch)
	for addr, b := range working {
		batch.Put(accountKey(addr), b.Bytes())
	}
	return batch
}

func (l *LevelDB) write(batch *leveldb.Batch) error {
	if err := l.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrap(err, "write ledger batch")
	}
	return nil
}

// Transfer applies all transfers or none.
func (l *LevelDB) Transfer(ctx context.Context, transfers ...game.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	working, err := stage(transfers, l.load)
	if err != nil {
		return err
	}
	return l.write(balanceBatch(working))
}

// Commit stores rec under game-<id> and applies transfers in one batch.
func (l *LevelDB) Commit(ctx context.Context, rec game.Record, transfers ...game.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "encode game %s", rec.ID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	working, err := stage(transfers, l.load)
	if err != nil {
		return err
	}
	batch := balanceBatch(working)
	batch.Put(gameKey(rec.ID), value)
	return l.write(batch)
}

// Games returns every stored game record ordered by ID.
func (l *LevelDB) Games(_ context.Context) ([]game.Record, error) {
	iter := l.db.NewIterator(util.BytesPrefix([]byte(gameKeyPrefix)), nil)
	defer iter.Release()

	var out []game.Record
	for iter.Next() {
		var rec game.Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, errors.Wrapf(err, "decode %s", iter.Key())
		}
		out = append(out, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "iterate games")
	}
	return out, nil
}

// ApplyGenesis credits balances and marks genesis applied in one batch. It
// does nothing once the marker exists.
func (l *LevelDB) ApplyGenesis(_ context.Context, balances map[common.Address]*big.Int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	applied, err := l.db.Has([]byte(genesisKey), nil)
	if err != nil {
		return false, errors.Wrap(err, "check genesis")
	}
	if applied {
		return false, nil
	}

	working, err := genesisCredits(balances, l.load)
	if err != nil {
		return false, err
	}
	batch := balanceBatch(working)
	batch.Put([]byte(genesisKey), []byte{1})
	if err := l.write(batch); err != nil {
		return false, err
	}
	return true, nil
}

// Balance returns the balance of addr; unknown accounts hold zero.
func (l *LevelDB) Balance(_ context.Context, addr common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(addr)
}

// Credit mints amount into addr.
func (l *LevelDB) Credit(_ context.Context, addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.Wrap(ErrInvalidAmount, "credit")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.load(addr)
	if err != nil {
		return err
	}
	return l.write(balanceBatch(map[common.Address]*big.Int{addr: b.Add(b, amount)}))
}

// Close releases the database.
func (l *LevelDB) Close() error {
	return l.db.Close()
}
