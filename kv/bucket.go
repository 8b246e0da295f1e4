// Copyright (c) 2025 The EDR developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import "github.com/syndtr/goleveldb/leveldb/util"

// Bucket provides a logical key space within a store.
// All keys observed through a bucket are relative to the bucket prefix.
type Bucket string

// NewGetter creates a bucket getter from the source getter.
func (b Bucket) NewGetter(src Getter) Getter {
	return &bucketGetter{string(b), src}
}

// NewPutter creates a bucket putter from the source putter.
func (b Bucket) NewPutter(src Putter) Putter {
	return &bucketPutter{string(b), src}
}

// NewStore creates a bucket store from the source store.
func (b Bucket) NewStore(src Store) Store {
	return &bucketStore{
		bucketGetter{string(b), src},
		bucketPutter{string(b), src},
		src,
	}
}

func prefixedKey(prefix string, key []byte) []byte {
	return append([]byte(prefix), key...)
}

type bucketGetter struct {
	prefix string
	src    Getter
}

func (g *bucketGetter) Get(key []byte) ([]byte, error) {
	return g.src.Get(prefixedKey(g.prefix, key))
}

func (g *bucketGetter) Has(key []byte) (bool, error) {
	return g.src.Has(prefixedKey(g.prefix, key))
}

func (g *bucketGetter) IsNotFound(err error) bool {
	return g.src.IsNotFound(err)
}

type bucketPutter struct {
	prefix string
	src    Putter
}

func (p *bucketPutter) Put(key, val []byte) error {
	return p.src.Put(prefixedKey(p.prefix, key), val)
}

func (p *bucketPutter) Delete(key []byte) error {
	return p.src.Delete(prefixedKey(p.prefix, key))
}

type bucketStore struct {
	bucketGetter
	bucketPutter
	src Store
}

func (s *bucketStore) IsNotFound(err error) bool {
	return s.src.IsNotFound(err)
}

func (s *bucketStore) NewBatch() Batch {
	return &bucketBatch{s.bucketGetter.prefix, s.src.NewBatch()}
}

func (s *bucketStore) Iterate(r Range) Iterator {
	prefix := s.bucketGetter.prefix
	r.Start = prefixedKey(prefix, r.Start)
	if len(r.Limit) == 0 {
		r.Limit = util.BytesPrefix([]byte(prefix)).Limit
	} else {
		r.Limit = prefixedKey(prefix, r.Limit)
	}
	return &bucketIterator{len(prefix), s.src.Iterate(r)}
}

func (s *bucketStore) Close() error {
	return s.src.Close()
}

type bucketBatch struct {
	prefix string
	src    Batch
}

func (b *bucketBatch) Put(key, val []byte) error {
	return b.src.Put(prefixedKey(b.prefix, key), val)
}

func (b *bucketBatch) Delete(key []byte) error {
	return b.src.Delete(prefixedKey(b.prefix, key))
}

func (b *bucketBatch) Len() int { return b.src.Len() }

func (b *bucketBatch) Write() error { return b.src.Write() }

// bucketIterator strips the bucket prefix from iterated keys.
type bucketIterator struct {
	prefixLen int
	src       Iterator
}

func (i *bucketIterator) Next() bool    { return i.src.Next() }
func (i *bucketIterator) Key() []byte   { return i.src.Key()[i.prefixLen:] }
func (i *bucketIterator) Value() []byte { return i.src.Value() }
func (i *bucketIterator) Release()      { i.src.Release() }
func (i *bucketIterator) Error() error  { return i.src.Error() }
