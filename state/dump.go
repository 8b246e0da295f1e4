// Copyright (c) 2025 The EDR developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// StateAccount is the dump representation of a single account. It carries
// resolved final values only, in the Anvil-compatible interchange format:
// balance and nonce are always emitted, code and storage are omitted when
// empty. Absent code or storage fields decode to empty, not to an error.
type StateAccount struct {
	Balance hexutil.U256                  `json:"balance"`
	Code    hexutil.Bytes                 `json:"code,omitempty"`
	Nonce   hexutil.U256                  `json:"nonce"`
	Storage map[hexutil.U256]hexutil.U256 `json:"storage,omitempty"`
}

// StateDump is a complete, self-contained snapshot of all accounts, keyed by
// address. Ordering is not significant; equality is set-based. Status flags
// are not part of the format: loading a dump re-derives them by feeding the
// accounts back through the merge engine.
type StateDump struct {
	Accounts map[common.Address]StateAccount `json:"accounts"`
}

// NewStateDump creates an empty state dump.
func NewStateDump() *StateDump {
	return &StateDump{Accounts: make(map[common.Address]StateAccount)}
}

// AddAccount inserts or replaces the dump entry for addr.
func (d *StateDump) AddAccount(addr common.Address, acc StateAccount) {
	d.Accounts[addr] = acc
}
