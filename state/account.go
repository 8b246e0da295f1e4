// Copyright (c) 2025 The EDR developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"maps"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// EmptyCodeHash is the hash of empty code. An account whose code hash equals
// it holds no deployed code (an EOA).
var EmptyCodeHash = crypto.Keccak256Hash(nil)

// AccountInfo groups the account-level fields of an account. The fields
// always move together as one unit: balance, nonce, code and code hash.
//
// CodeHash equals EmptyCodeHash iff the account has no code; this equality
// is the sole signal used to tell an EOA from a deployed contract.
type AccountInfo struct {
	Balance  uint256.Int
	Nonce    uint64
	CodeHash common.Hash
	Code     []byte
}

// NewAccountInfo creates an AccountInfo with the code hash derived from code.
func NewAccountInfo(balance *uint256.Int, nonce uint64, code []byte) AccountInfo {
	info := AccountInfo{
		Balance:  *balance,
		Nonce:    nonce,
		CodeHash: EmptyCodeHash,
	}
	if len(code) > 0 {
		info.Code = code
		info.CodeHash = crypto.Keccak256Hash(code)
	}
	return info
}

// emptyAccountInfo returns the info of a fresh EOA with zero balance and nonce.
func emptyAccountInfo() AccountInfo {
	return AccountInfo{CodeHash: EmptyCodeHash}
}

// HasCode returns whether the info carries deployed code.
func (i *AccountInfo) HasCode() bool {
	return i.CodeHash != EmptyCodeHash
}

// StorageSlot is a single 256-bit storage cell. PrevValue keeps the value as
// of the start of the current diff epoch; the merge engine itself only ever
// overwrites Value and treats PrevValue as opaque.
type StorageSlot struct {
	PrevValue uint256.Int
	Value     uint256.Int
}

// NewStorageSlot creates an unchanged slot whose previous and current values
// are equal.
func NewStorageSlot(value uint256.Int) StorageSlot {
	return StorageSlot{PrevValue: value, Value: value}
}

// NewChangedStorageSlot creates a slot that changed from prev to value.
func NewChangedStorageSlot(prev, value uint256.Int) StorageSlot {
	return StorageSlot{PrevValue: prev, Value: value}
}

// AccountStatus is a bit set of per-account flags accumulated within one diff
// epoch. The only mutation allowed on a status is Add; no operation ever
// clears a flag once set.
type AccountStatus uint8

const (
	// StatusTouched marks the account as accessed or mutated during the epoch.
	StatusTouched AccountStatus = 1 << iota
	// StatusCreated marks the account as holding deployed code at some point
	// during the epoch, or as freshly materialized by a storage write.
	StatusCreated
)

// Has returns whether all flags in f are set.
func (s AccountStatus) Has(f AccountStatus) bool {
	return s&f == f
}

// Add sets the flags in f.
func (s *AccountStatus) Add(f AccountStatus) {
	*s |= f
}

// Account is a per-address entry of a StateDiff, exclusively owned by the
// diff that contains it. Storage is never nil for accounts built by the
// merge engine.
type Account struct {
	Info    AccountInfo
	Storage map[uint256.Int]StorageSlot
	Status  AccountStatus

	// TransactionID tags the originating transaction of the change.
	// Kept at its zero value; reserved for merge tie-breaking.
	TransactionID uint64
}

// Copy returns a deep copy of the account.
func (a *Account) Copy() *Account {
	cpy := *a
	cpy.Info.Code = slices.Clone(a.Info.Code)
	cpy.Storage = maps.Clone(a.Storage)
	return &cpy
}
