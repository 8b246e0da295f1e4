// Copyright (c) 2025 The EDR developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/mezosphere/edr/kv"
)

const (
	accountBucket = kv.Bucket("a")
	storageBucket = kv.Bucket("s")
	codeBucket    = kv.Bucket("c")
)

var codeCache, _ = lru.NewARC(512)

// Error is the error caused by state access failure.
type Error struct {
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("state: %v", e.cause)
}

// storedAccount is the database encoding of a resolved account.
// Code is stored separately, keyed by its hash.
type storedAccount struct {
	Balance  *uint256.Int
	Nonce    uint64
	CodeHash []byte // empty when no code
}

// State manages the resolved world state of the simulated chain.
//
// Mutations are accumulated through StateDiff layers and written through to
// the database after each change. While snapshots are outstanding, database
// writes are deferred so that RevertTo can discard the layers above the
// snapshot point; reads and dumps always observe the pending layers.
//
// State is not safe for concurrent use; the surrounding provider serializes
// all requests against one chain's state.
type State struct {
	store    kv.Store
	accounts kv.Store
	storage  kv.Store
	codes    kv.Store

	layers     []*StateDiff // snapshot layers, oldest first
	diff       *StateDiff   // changes since the last snapshot or commit
	snapshots  map[int]int  // snapshot id -> layer depth
	nextSnapID int
}

// New creates a state over the given database.
func New(store kv.Store) *State {
	return &State{
		store:     store,
		accounts:  accountBucket.NewStore(store),
		storage:   storageBucket.NewStore(store),
		codes:     codeBucket.NewStore(store),
		diff:      NewStateDiff(),
		snapshots: make(map[int]int),
	}
}

// lookupAccount returns the pending account entry for addr, newest layer
// first, or nil if addr has no pending change.
func (s *State) lookupAccount(addr common.Address) *Account {
	if acc, ok := s.diff.inner[addr]; ok {
		return acc
	}
	for i := len(s.layers) - 1; i >= 0; i-- {
		if acc, ok := s.layers[i].inner[addr]; ok {
			return acc
		}
	}
	return nil
}

// getInfo resolves the current account info for addr, including code bytes.
func (s *State) getInfo(addr common.Address) (AccountInfo, error) {
	if acc := s.lookupAccount(addr); acc != nil {
		info := acc.Info
		if info.HasCode() && info.Code == nil {
			code, err := s.getCode(info.CodeHash)
			if err != nil {
				return AccountInfo{}, err
			}
			info.Code = code
		}
		return info, nil
	}

	data, err := s.accounts.Get(addr[:])
	if err != nil {
		if s.accounts.IsNotFound(err) {
			return emptyAccountInfo(), nil
		}
		return AccountInfo{}, err
	}
	var stored storedAccount
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return AccountInfo{}, err
	}

	info := AccountInfo{Balance: *stored.Balance, Nonce: stored.Nonce, CodeHash: EmptyCodeHash}
	if len(stored.CodeHash) > 0 {
		info.CodeHash = common.BytesToHash(stored.CodeHash)
		code, err := s.getCode(info.CodeHash)
		if err != nil {
			return AccountInfo{}, err
		}
		info.Code = code
	}
	return info, nil
}

func (s *State) getCode(hash common.Hash) ([]byte, error) {
	if hash == EmptyCodeHash {
		return nil, nil
	}
	if code, ok := codeCache.Get(hash); ok {
		return code.([]byte), nil
	}
	code, err := s.codes.Get(hash[:])
	if err != nil {
		return nil, err
	}
	codeCache.Add(hash, code)
	return code, nil
}

// GetBalance returns the balance for the given address.
func (s *State) GetBalance(addr common.Address) (*uint256.Int, error) {
	info, err := s.getInfo(addr)
	if err != nil {
		return nil, &Error{err}
	}
	balance := info.Balance
	return &balance, nil
}

// GetNonce returns the nonce for the given address.
func (s *State) GetNonce(addr common.Address) (uint64, error) {
	info, err := s.getInfo(addr)
	if err != nil {
		return 0, &Error{err}
	}
	return info.Nonce, nil
}

// GetCode returns the code for the given address, nil for an EOA.
func (s *State) GetCode(addr common.Address) ([]byte, error) {
	info, err := s.getInfo(addr)
	if err != nil {
		return nil, &Error{err}
	}
	return info.Code, nil
}

// GetCodeHash returns the code hash for the given address.
// EmptyCodeHash is returned for an EOA.
func (s *State) GetCodeHash(addr common.Address) (common.Hash, error) {
	info, err := s.getInfo(addr)
	if err != nil {
		return common.Hash{}, &Error{err}
	}
	return info.CodeHash, nil
}

// GetStorage returns the storage value for the given address and slot index,
// zero for an unset slot.
func (s *State) GetStorage(addr common.Address, index *uint256.Int) (*uint256.Int, error) {
	if slot, ok := s.lookupStorage(addr, index); ok {
		value := slot.Value
		return &value, nil
	}

	data, err := s.storage.Get(storageKey(addr, index))
	if err != nil {
		if s.storage.IsNotFound(err) {
			return new(uint256.Int), nil
		}
		return nil, &Error{err}
	}
	return new(uint256.Int).SetBytes(data), nil
}

func (s *State) lookupStorage(addr common.Address, index *uint256.Int) (StorageSlot, bool) {
	if acc, ok := s.diff.inner[addr]; ok {
		if slot, ok := acc.Storage[*index]; ok {
			return slot, true
		}
	}
	for i := len(s.layers) - 1; i >= 0; i-- {
		if acc, ok := s.layers[i].inner[addr]; ok {
			if slot, ok := acc.Storage[*index]; ok {
				return slot, true
			}
		}
	}
	return StorageSlot{}, false
}

// Exists returns whether the address has ever been touched or resolved.
func (s *State) Exists(addr common.Address) (bool, error) {
	if s.lookupAccount(addr) != nil {
		return true, nil
	}
	has, err := s.accounts.Has(addr[:])
	if err != nil {
		return false, &Error{err}
	}
	return has, nil
}

// SetBalance sets the balance for the given address.
func (s *State) SetBalance(addr common.Address, balance *uint256.Int) error {
	info, err := s.getInfo(addr)
	if err != nil {
		return &Error{err}
	}
	info.Balance = *balance
	s.diff.ApplyAccountChange(addr, info)
	metricMutationCount().AddWithLabel(1, map[string]string{"type": "balance"})
	return s.writeThrough()
}

// SetNonce sets the nonce for the given address.
func (s *State) SetNonce(addr common.Address, nonce uint64) error {
	info, err := s.getInfo(addr)
	if err != nil {
		return &Error{err}
	}
	info.Nonce = nonce
	s.diff.ApplyAccountChange(addr, info)
	metricMutationCount().AddWithLabel(1, map[string]string{"type": "nonce"})
	return s.writeThrough()
}

// SetCode sets the code for the given address. Empty code turns the account
// back into an EOA.
func (s *State) SetCode(addr common.Address, code []byte) error {
	info, err := s.getInfo(addr)
	if err != nil {
		return &Error{err}
	}
	newInfo := NewAccountInfo(&info.Balance, info.Nonce, code)
	s.diff.ApplyAccountChange(addr, newInfo)
	if len(code) > 0 {
		codeCache.Add(newInfo.CodeHash, code)
	}
	metricMutationCount().AddWithLabel(1, map[string]string{"type": "code"})
	return s.writeThrough()
}

// SetStorage sets the storage value for the given address and slot index.
func (s *State) SetStorage(addr common.Address, index, value *uint256.Int) error {
	prev, err := s.GetStorage(addr, index)
	if err != nil {
		return err
	}
	info, err := s.getInfo(addr)
	if err != nil {
		return &Error{err}
	}
	s.diff.ApplyStorageChange(addr, *index, NewChangedStorageSlot(*prev, *value), &info)
	metricMutationCount().AddWithLabel(1, map[string]string{"type": "storage"})
	return s.writeThrough()
}

// Snapshot pushes the pending changes onto the layer stack and returns an id
// to be passed to RevertTo. While any snapshot is outstanding, database
// writes are deferred.
func (s *State) Snapshot() int {
	s.layers = append(s.layers, s.diff)
	s.diff = NewStateDiff()
	s.nextSnapID++
	s.snapshots[s.nextSnapID] = len(s.layers)
	return s.nextSnapID
}

// RevertTo discards every change made after the snapshot with the given id.
// The snapshot itself and all later ones are consumed; reverting to the same
// id twice returns false, as does an unknown id.
func (s *State) RevertTo(id int) bool {
	depth, ok := s.snapshots[id]
	if !ok {
		return false
	}
	s.layers = s.layers[:depth]
	s.diff = NewStateDiff()
	for sid := range s.snapshots {
		if sid >= id {
			delete(s.snapshots, sid)
		}
	}
	if len(s.snapshots) == 0 {
		// no deferral points left, fold the remaining layers back into the
		// live diff so writes hit the database again
		s.diff = s.mergedLayers()
		s.layers = nil
	}
	return true
}

// writeThrough commits pending changes unless snapshots defer them.
func (s *State) writeThrough() error {
	if len(s.layers) > 0 {
		return nil
	}
	return s.Commit()
}

// mergedLayers folds copies of all pending layers, oldest first, into a
// single diff.
func (s *State) mergedLayers() *StateDiff {
	merged := NewStateDiff()
	for _, layer := range s.layers {
		merged.ApplyDiff(layer.Copy().IntoInner())
	}
	merged.ApplyDiff(s.diff.Copy().IntoInner())
	return merged
}

// Commit atomically writes all pending changes to the database and clears
// the layer stack, invalidating outstanding snapshots.
func (s *State) Commit() error {
	merged := s.mergedLayers()
	if merged.Len() == 0 {
		s.layers = nil
		s.snapshots = make(map[int]int)
		return nil
	}

	batch := s.store.NewBatch()
	accounts := accountBucket.NewPutter(batch)
	storage := storageBucket.NewPutter(batch)
	codes := codeBucket.NewPutter(batch)

	for addr, acc := range merged.IntoInner() {
		stored := storedAccount{
			Balance: &acc.Info.Balance,
			Nonce:   acc.Info.Nonce,
		}
		if acc.Info.HasCode() {
			stored.CodeHash = acc.Info.CodeHash.Bytes()
			if len(acc.Info.Code) > 0 {
				if err := codes.Put(acc.Info.CodeHash.Bytes(), acc.Info.Code); err != nil {
					return &Error{err}
				}
				codeCache.Add(acc.Info.CodeHash, acc.Info.Code)
			}
		}
		data, err := rlp.EncodeToBytes(&stored)
		if err != nil {
			return &Error{err}
		}
		if err := accounts.Put(addr[:], data); err != nil {
			return &Error{err}
		}

		for index, slot := range acc.Storage {
			key := storageKey(addr, &index)
			if slot.Value.IsZero() {
				err = storage.Delete(key)
			} else {
				value := slot.Value.Bytes32()
				err = storage.Put(key, value[:])
			}
			if err != nil {
				return &Error{err}
			}
		}
	}

	if err := batch.Write(); err != nil {
		return &Error{err}
	}
	s.layers = nil
	s.diff = NewStateDiff()
	s.snapshots = make(map[int]int)
	return nil
}

// DumpState materializes the resolved state, database contents overlaid with
// pending layers, into a StateDump.
func (s *State) DumpState() (*StateDump, error) {
	dump := NewStateDump()

	iter := s.accounts.Iterate(kv.Range{})
	defer iter.Release()
	for iter.Next() {
		addr := common.BytesToAddress(iter.Key())
		var stored storedAccount
		if err := rlp.DecodeBytes(iter.Value(), &stored); err != nil {
			return nil, &Error{err}
		}
		acc := StateAccount{
			Balance: hexutil.U256(*stored.Balance),
			Nonce:   hexutil.U256(*uint256.NewInt(stored.Nonce)),
		}
		if len(stored.CodeHash) > 0 {
			code, err := s.getCode(common.BytesToHash(stored.CodeHash))
			if err != nil {
				return nil, &Error{err}
			}
			acc.Code = code
		}
		dump.AddAccount(addr, acc)
	}
	if err := iter.Error(); err != nil {
		return nil, &Error{err}
	}

	siter := s.storage.Iterate(kv.Range{})
	defer siter.Release()
	for siter.Next() {
		key := siter.Key()
		addr := common.BytesToAddress(key[:common.AddressLength])

		var index, value uint256.Int
		index.SetBytes(key[common.AddressLength:])
		value.SetBytes(siter.Value())

		acc := dump.Accounts[addr]
		if acc.Storage == nil {
			acc.Storage = make(map[hexutil.U256]hexutil.U256)
		}
		acc.Storage[hexutil.U256(index)] = hexutil.U256(value)
		dump.AddAccount(addr, acc)
	}
	if err := siter.Error(); err != nil {
		return nil, &Error{err}
	}

	for addr, pending := range s.mergedLayers().IntoInner() {
		acc := dump.Accounts[addr]
		acc.Balance = hexutil.U256(pending.Info.Balance)
		acc.Nonce = hexutil.U256(*uint256.NewInt(pending.Info.Nonce))
		acc.Code = nil
		if pending.Info.HasCode() {
			code := pending.Info.Code
			if code == nil {
				var err error
				if code, err = s.getCode(pending.Info.CodeHash); err != nil {
					return nil, &Error{err}
				}
			}
			acc.Code = code
		}
		for index, slot := range pending.Storage {
			if slot.Value.IsZero() {
				delete(acc.Storage, hexutil.U256(index))
				continue
			}
			if acc.Storage == nil {
				acc.Storage = make(map[hexutil.U256]hexutil.U256)
			}
			acc.Storage[hexutil.U256(index)] = hexutil.U256(slot.Value)
		}
		if len(acc.Storage) == 0 {
			acc.Storage = nil
		}
		dump.AddAccount(addr, acc)
	}
	return dump, nil
}

// LoadState absorbs a state dump produced by DumpState or by compatible
// tooling, overlaying its accounts on the current state. Status flags are
// re-derived by replaying every account through the merge engine; the result
// does not depend on the per-address replay order.
func (s *State) LoadState(dump *StateDump) error {
	diff := NewStateDiff()
	for addr, acc := range dump.Accounts {
		nonce := (*uint256.Int)(&acc.Nonce)
		if !nonce.IsUint64() {
			return &Error{errors.Errorf("account %v: nonce out of range", addr)}
		}
		balance := uint256.Int(acc.Balance)
		info := NewAccountInfo(&balance, nonce.Uint64(), acc.Code)

		diff.ApplyAccountChange(addr, info)
		for index, value := range acc.Storage {
			diff.ApplyStorageChange(addr, uint256.Int(index), NewStorageSlot(uint256.Int(value)), &info)
		}
	}

	s.diff.ApplyDiff(diff.IntoInner())
	metricMutationCount().AddWithLabel(1, map[string]string{"type": "load"})
	return s.writeThrough()
}

func storageKey(addr common.Address, index *uint256.Int) []byte {
	key := make([]byte, 0, common.AddressLength+32)
	key = append(key, addr[:]...)
	idx := index.Bytes32()
	return append(key, idx[:]...)
}
