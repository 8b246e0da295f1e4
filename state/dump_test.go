// Copyright (c) 2025 The EDR developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateAccountCompactness(t *testing.T) {
	// an EOA with no storage serializes without code and storage fields
	data, err := json.Marshal(StateAccount{
		Balance: hexutil.U256(*uint256.NewInt(1000)),
		Nonce:   hexutil.U256(*uint256.NewInt(0)),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":"0x3e8","nonce":"0x0"}`, string(data))

	// balance and nonce are emitted even when zero
	data, err = json.Marshal(StateAccount{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":"0x0","nonce":"0x0"}`, string(data))

	data, err = json.Marshal(StateAccount{
		Balance: hexutil.U256(*uint256.NewInt(1)),
		Nonce:   hexutil.U256(*uint256.NewInt(2)),
		Code:    hexutil.Bytes{0x60, 0x00},
		Storage: map[hexutil.U256]hexutil.U256{
			hexutil.U256(*uint256.NewInt(0)): hexutil.U256(*uint256.NewInt(42)),
		},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":"0x1","nonce":"0x2","code":"0x6000","storage":{"0x0":"0x2a"}}`, string(data))
}

func TestStateAccountDecodeDefaults(t *testing.T) {
	// absent code and storage decode to empty, not to an error
	var acc StateAccount
	require.NoError(t, json.Unmarshal([]byte(`{"balance":"0x3e8","nonce":"0x5"}`), &acc))

	assert.Equal(t, hexutil.U256(*uint256.NewInt(1000)), acc.Balance)
	assert.Equal(t, hexutil.U256(*uint256.NewInt(5)), acc.Nonce)
	assert.Empty(t, acc.Code)
	assert.Empty(t, acc.Storage)
}

func TestStateDumpAddAccount(t *testing.T) {
	dump := NewStateDump()
	addr := common.BytesToAddress([]byte("account1"))

	dump.AddAccount(addr, StateAccount{Balance: hexutil.U256(*uint256.NewInt(1))})
	dump.AddAccount(addr, StateAccount{Balance: hexutil.U256(*uint256.NewInt(2))})

	// last write wins within one construction pass
	assert.Len(t, dump.Accounts, 1)
	assert.Equal(t, hexutil.U256(*uint256.NewInt(2)), dump.Accounts[addr].Balance)
}

func TestStateDumpRoundTrip(t *testing.T) {
	dump := NewStateDump()
	dump.AddAccount(common.BytesToAddress([]byte("eoa")), StateAccount{
		Balance: hexutil.U256(*uint256.NewInt(1000)),
		Nonce:   hexutil.U256(*uint256.NewInt(1)),
	})
	dump.AddAccount(common.BytesToAddress([]byte("contract")), StateAccount{
		Balance: hexutil.U256(*uint256.NewInt(0)),
		Nonce:   hexutil.U256(*uint256.NewInt(1)),
		Code:    hexutil.Bytes{0x60, 0x00, 0x60, 0x00, 0xf3},
		Storage: map[hexutil.U256]hexutil.U256{
			hexutil.U256(*uint256.NewInt(0)): hexutil.U256(*uint256.NewInt(42)),
			hexutil.U256(*uint256.NewInt(7)): hexutil.U256(*uint256.NewInt(7)),
		},
	})

	data, err := json.Marshal(dump)
	require.NoError(t, err)

	var decoded StateDump
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, dump.Accounts, decoded.Accounts)
}
