// Copyright (c) 2025 The EDR developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	writeOpt = &opt.WriteOptions{}
	readOpt  = &opt.ReadOptions{}
)

// Options options for creating a level db instance.
type Options struct {
	CacheSize              int
	OpenFilesCacheCapacity int
}

// lvldb implements the Store interface over goleveldb.
type lvldb struct {
	db *leveldb.DB
}

var _ Store = (*lvldb)(nil)

// New creates a persistent level db backed store.
// An empty one is created if the path does not exist yet.
func New(path string, opts Options) (Store, error) {
	stg, err := storage.OpenFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, "new persistent level db")
	}
	return openLevelDB(stg, opts.CacheSize, opts.OpenFilesCacheCapacity)
}

// NewMem creates a level db backed store in memory.
func NewMem() (Store, error) {
	return openLevelDB(storage.NewMemStorage(), 0, 0)
}

func openLevelDB(stg storage.Storage, cacheSize, openFilesCacheCapacity int) (*lvldb, error) {
	if cacheSize < 16 {
		cacheSize = 16
	}
	if openFilesCacheCapacity < 16 {
		openFilesCacheCapacity = 16
	}

	db, err := leveldb.Open(stg, &opt.Options{
		OpenFilesCacheCapacity: openFilesCacheCapacity,
		BlockCacheCapacity:     cacheSize / 2 * opt.MiB,
		WriteBuffer:            cacheSize / 4 * opt.MiB, // Two of these are used internally
		Filter:                 filter.NewBloomFilter(10),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open level db")
	}
	return &lvldb{db: db}, nil
}

func (ldb *lvldb) Get(key []byte) ([]byte, error) {
	return ldb.db.Get(key, readOpt)
}

func (ldb *lvldb) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, readOpt)
}

func (ldb *lvldb) IsNotFound(err error) bool {
	return err == leveldb.ErrNotFound
}

func (ldb *lvldb) Put(key, val []byte) error {
	return ldb.db.Put(key, val, writeOpt)
}

func (ldb *lvldb) Delete(key []byte) error {
	return ldb.db.Delete(key, writeOpt)
}

func (ldb *lvldb) NewBatch() Batch {
	return &lvldbBatch{ldb.db, &leveldb.Batch{}}
}

func (ldb *lvldb) Iterate(r Range) Iterator {
	var ur *util.Range
	if len(r.Start) > 0 || len(r.Limit) > 0 {
		ur = &util.Range{Start: r.Start, Limit: r.Limit}
	}
	return ldb.db.NewIterator(ur, readOpt)
}

func (ldb *lvldb) Close() error {
	return ldb.db.Close()
}

// lvldbBatch implements the Batch interface.
type lvldbBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *lvldbBatch) Put(key, val []byte) error {
	b.batch.Put(key, val)
	return nil
}

func (b *lvldbBatch) Delete(key []byte) error {
	b.batch.Delete(key)
	return nil
}

func (b *lvldbBatch) Len() int {
	return b.batch.Len()
}

func (b *lvldbBatch) Write() error {
	return b.db.Write(b.batch, writeOpt)
}
