// Package keyValStore persists collections, links and object ownership
// in badger.
package keyValStore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("not found")

type StoreConfig struct { // A
	Paths         []string // only the first path is used
	MinimumFreeGB int      // in GB
	InMemory      bool     // Paths is ignored when set
	Compression   string   // "zstd", "lzma" or "none"
	Logger        *logrus.Logger
}

type KeyValStore struct { // A
	config       StoreConfig
	badgerDB     *badger.DB
	codec        *codec
	log          *logrus.Logger
	readCounter  uint64
	writeCounter uint64
}

// Open opens the store described by config.
func Open(config StoreConfig) (*KeyValStore, error) { // A
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log := config.Logger

	if err := config.checkConfig(); err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	c, err := newCodec(config.Compression)
	if err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(config.Paths[0])
		opts.ValueLogFileSize = 1024 * 1024 * 100 // 100MB per value log file
	}
	opts.Logger = nil
	if log.IsLevelEnabled(logrus.DebugLevel) {
		opts.Logger = log
	}
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("open badger: %w", err)
	}

	if !config.InMemory {
		if err := displayDiskUsage(log, config.Paths); err != nil {
			log.WithError(err).Warn("could not report disk usage")
		}
	}

	return &KeyValStore{
		config:   config,
		badgerDB: db,
		codec:    c,
		log:      log,
	}, nil
}

// Stats returns the number of reads and writes since the last call.
func (k *KeyValStore) Stats() (reads, writes uint64) { // A
	return atomic.SwapUint64(&k.readCounter, 0), atomic.SwapUint64(&k.writeCounter, 0)
}

// StartStatsLogger logs operation counts every interval until ctx ends.
func (k *KeyValStore) StartStatsLogger(ctx context.Context, interval time.Duration) { // A
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reads, writes := k.Stats()
				k.log.WithFields(logrus.Fields{
					"reads":  reads,
					"writes": writes,
					"period": interval.String(),
				}).Debug("store operations")
			}
		}
	}()
}

func (k *KeyValStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error { // A
	if err := ctx.Err(); err != nil {
		return err
	}
	atomic.AddUint64(&k.writeCounter, 1)
	err := k.badgerDB.Update(fn)
	if errors.Is(err, badger.ErrConflict) {
		k.log.WithError(err).Warn("concurrent write rejected")
	}
	return err
}

func (k *KeyValStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error { // A
	if err := ctx.Err(); err != nil {
		return err
	}
	atomic.AddUint64(&k.readCounter, 1)
	return k.badgerDB.View(fn)
}

func get(txn *badger.Txn, key []byte) ([]byte, error) { // A
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// keysWithPrefix returns every key starting with prefix, without the
// prefix.
func keysWithPrefix(txn *badger.Txn, prefix []byte) []string { // A
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		out = append(out, string(it.Item().Key()[len(prefix):]))
	}
	return out
}

// valuesWithPrefix returns the values of every key starting with prefix.
func valuesWithPrefix(txn *badger.Txn, prefix []byte) ([][]byte, error) { // A
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var out [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		v, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Close syncs and closes the database.
func (k *KeyValStore) Close() error { // A
	if !k.config.InMemory {
		if err := k.Clean(); err != nil {
			k.log.WithError(err).Warn("clean before close failed")
		}
	}
	k.codec.close()
	return k.badgerDB.Close()
}

// Clean flattens the LSM tree and garbage collects the value log.
func (k *KeyValStore) Clean() error { // A
	if k.config.InMemory {
		return nil
	}
	err := k.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	err = k.badgerDB.Flatten(runtime.NumCPU())
	if err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}
	k.log.Info("DB Flattened")

	err = k.badgerDB.RunValueLogGC(0.1)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}
	return nil
}
