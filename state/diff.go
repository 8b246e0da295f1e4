// Copyright (c) 2025 The EDR developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// StateDiff accumulates the account and storage changes produced during one
// epoch of simulated execution, e.g. one block or one load-state operation.
// Account and storage mutations may arrive independently and in arbitrary
// sub-order; the final diff reports the same resolved values and status flags
// regardless of that order.
//
// A StateDiff exclusively owns every Account it contains, until the entries
// are transferred out via IntoInner or consumed by another diff's ApplyDiff.
type StateDiff struct {
	inner map[common.Address]*Account
}

// NewStateDiff creates an empty diff.
func NewStateDiff() *StateDiff {
	return &StateDiff{inner: make(map[common.Address]*Account)}
}

// ApplyAccountChange records account-level fields for addr, combining them
// with any existing change. The new info replaces the stored one wholesale;
// StatusCreated is added when code shows up for an account that was not
// already marked created. Flags are only ever added.
func (d *StateDiff) ApplyAccountChange(addr common.Address, info AccountInfo) {
	if acc, ok := d.inner[addr]; ok {
		if info.HasCode() && !acc.Status.Has(StatusCreated) {
			acc.Status.Add(StatusCreated)
		}
		acc.Info = info
		return
	}

	status := StatusTouched
	if info.HasCode() {
		status.Add(StatusCreated)
	}
	d.inner[addr] = &Account{
		Info:    info,
		Storage: make(map[uint256.Int]StorageSlot),
		Status:  status,
	}
}

// ApplyStorageChange records a single storage write for addr, combining it
// with any existing change.
//
// If the account hasn't been modified before, either the info provided in
// infoOpt is used, or alternatively a default account is created. Unlike
// ApplyAccountChange, a storage write to a previously unseen address is
// itself treated as account creation, independent of code presence.
func (d *StateDiff) ApplyStorageChange(addr common.Address, index uint256.Int, slot StorageSlot, infoOpt *AccountInfo) {
	if acc, ok := d.inner[addr]; ok {
		acc.Storage[index] = slot
		return
	}

	info := emptyAccountInfo()
	if infoOpt != nil {
		info = *infoOpt
	}
	d.inner[addr] = &Account{
		Info:    info,
		Storage: map[uint256.Int]StorageSlot{index: slot},
		Status:  StatusTouched | StatusCreated,
	}
}

// ApplyDiff merges a foreign set of account entries into this diff, applying
// it as a later layer on top: the foreign info wins, foreign storage wins per
// key, and status flags union. Ownership of the entries map and all accounts
// in it transfers to this diff.
func (d *StateDiff) ApplyDiff(entries map[common.Address]*Account) {
	for addr, foreign := range entries {
		acc, ok := d.inner[addr]
		if !ok {
			d.inner[addr] = foreign
			continue
		}
		acc.Info = foreign.Info
		acc.Status.Add(foreign.Status)
		for index, slot := range foreign.Storage {
			acc.Storage[index] = slot
		}
	}
}

// Inner returns the underlying address-to-account mapping, still owned by
// the diff.
func (d *StateDiff) Inner() map[common.Address]*Account {
	return d.inner
}

// IntoInner transfers ownership of the mapping to the caller and resets the
// diff to empty.
func (d *StateDiff) IntoInner() map[common.Address]*Account {
	inner := d.inner
	d.inner = make(map[common.Address]*Account)
	return inner
}

// Len returns the number of touched addresses.
func (d *StateDiff) Len() int {
	return len(d.inner)
}

// Copy returns a deep copy of the diff.
func (d *StateDiff) Copy() *StateDiff {
	cpy := NewStateDiff()
	for addr, acc := range d.inner {
		cpy.inner[addr] = acc.Copy()
	}
	return cpy
}
