// Copyright (c) 2025 The EDR developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezosphere/edr/kv"
)

func toU256(v uint64) hexutil.U256 {
	return hexutil.U256(*uint256.NewInt(v))
}

func newTestState(t *testing.T) *State {
	db, err := kv.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestStateReadsAndWrites(t *testing.T) {
	st := newTestState(t)
	addr := common.BytesToAddress([]byte("account1"))

	// untouched account resolves to empty defaults
	balance, err := st.GetBalance(addr)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	exists, err := st.Exists(addr)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, st.SetBalance(addr, uint256.NewInt(1000)))
	require.NoError(t, st.SetNonce(addr, 5))

	balance, err = st.GetBalance(addr)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(1000), balance)

	nonce, err := st.GetNonce(addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), nonce)

	exists, err = st.Exists(addr)
	require.NoError(t, err)
	assert.True(t, exists)

	// independent mutations compose: balance survives the nonce write
	balance, err = st.GetBalance(addr)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(1000), balance)
}

func TestStateSetCode(t *testing.T) {
	st := newTestState(t)
	addr := common.BytesToAddress([]byte("contract"))
	code := []byte{0x60, 0x00, 0x60, 0x00, 0xf3}

	require.NoError(t, st.SetBalance(addr, uint256.NewInt(7)))
	require.NoError(t, st.SetCode(addr, code))

	got, err := st.GetCode(addr)
	require.NoError(t, err)
	assert.Equal(t, code, got)

	hash, err := st.GetCodeHash(addr)
	require.NoError(t, err)
	assert.NotEqual(t, EmptyCodeHash, hash)

	// balance preserved across the code write
	balance, err := st.GetBalance(addr)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(7), balance)

	// empty code turns the account back into an EOA
	require.NoError(t, st.SetCode(addr, nil))
	hash, err = st.GetCodeHash(addr)
	require.NoError(t, err)
	assert.Equal(t, EmptyCodeHash, hash)
}

func TestStateStorage(t *testing.T) {
	st := newTestState(t)
	addr := common.BytesToAddress([]byte("contract"))

	value, err := st.GetStorage(addr, uint256.NewInt(0))
	require.NoError(t, err)
	assert.True(t, value.IsZero())

	require.NoError(t, st.SetStorage(addr, uint256.NewInt(0), uint256.NewInt(42)))

	value, err = st.GetStorage(addr, uint256.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(42), value)

	// a storage write materializes the account
	exists, err := st.Exists(addr)
	require.NoError(t, err)
	assert.True(t, exists)

	// writing zero clears the slot
	require.NoError(t, st.SetStorage(addr, uint256.NewInt(0), uint256.NewInt(0)))
	value, err = st.GetStorage(addr, uint256.NewInt(0))
	require.NoError(t, err)
	assert.True(t, value.IsZero())
}

func TestStatePersistence(t *testing.T) {
	db, err := kv.NewMem()
	require.NoError(t, err)
	defer db.Close()

	addr := common.BytesToAddress([]byte("account1"))
	code := []byte{0x60, 0x00}

	st := New(db)
	require.NoError(t, st.SetBalance(addr, uint256.NewInt(12)))
	require.NoError(t, st.SetCode(addr, code))
	require.NoError(t, st.SetStorage(addr, uint256.NewInt(1), uint256.NewInt(2)))

	// a fresh state over the same database sees the committed values
	st = New(db)
	balance, err := st.GetBalance(addr)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(12), balance)

	got, err := st.GetCode(addr)
	require.NoError(t, err)
	assert.Equal(t, code, got)

	value, err := st.GetStorage(addr, uint256.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(2), value)
}

func TestStateSnapshotRevert(t *testing.T) {
	st := newTestState(t)
	addr := common.BytesToAddress([]byte("account1"))

	require.NoError(t, st.SetBalance(addr, uint256.NewInt(100)))

	id := st.Snapshot()
	require.NoError(t, st.SetBalance(addr, uint256.NewInt(200)))
	require.NoError(t, st.SetStorage(addr, uint256.NewInt(0), uint256.NewInt(1)))

	balance, err := st.GetBalance(addr)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(200), balance)

	assert.True(t, st.RevertTo(id))

	balance, err = st.GetBalance(addr)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(100), balance)

	value, err := st.GetStorage(addr, uint256.NewInt(0))
	require.NoError(t, err)
	assert.True(t, value.IsZero())

	// unknown ids are rejected
	assert.False(t, st.RevertTo(99))
	assert.False(t, st.RevertTo(0))
}

func TestStateNestedSnapshots(t *testing.T) {
	st := newTestState(t)
	addr := common.BytesToAddress([]byte("account1"))

	id1 := st.Snapshot()
	require.NoError(t, st.SetBalance(addr, uint256.NewInt(1)))
	id2 := st.Snapshot()
	require.NoError(t, st.SetBalance(addr, uint256.NewInt(2)))

	assert.True(t, st.RevertTo(id2))
	balance, _ := st.GetBalance(addr)
	assert.Equal(t, uint256.NewInt(1), balance)

	assert.True(t, st.RevertTo(id1))
	balance, _ = st.GetBalance(addr)
	assert.True(t, balance.IsZero())

	// reverting to id1 invalidated id2
	assert.False(t, st.RevertTo(id2))
}

func TestStateCommitAfterSnapshot(t *testing.T) {
	db, err := kv.NewMem()
	require.NoError(t, err)
	defer db.Close()

	st := New(db)
	addr := common.BytesToAddress([]byte("account1"))

	st.Snapshot()
	require.NoError(t, st.SetBalance(addr, uint256.NewInt(77)))
	require.NoError(t, st.Commit())

	// committed layers are visible to a fresh state over the same database
	st = New(db)
	balance, err := st.GetBalance(addr)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(77), balance)
}

func TestStateDumpLoadRoundTrip(t *testing.T) {
	st := newTestState(t)

	eoa := common.BytesToAddress([]byte("eoa"))
	contract := common.BytesToAddress([]byte("contract"))
	code := []byte{0x60, 0x00, 0x60, 0x00, 0xf3}

	require.NoError(t, st.SetBalance(eoa, uint256.NewInt(1000)))
	require.NoError(t, st.SetNonce(eoa, 1))
	require.NoError(t, st.SetCode(contract, code))
	require.NoError(t, st.SetStorage(contract, uint256.NewInt(0), uint256.NewInt(42)))
	require.NoError(t, st.SetStorage(contract, uint256.NewInt(5), uint256.NewInt(7)))

	dump, err := st.DumpState()
	require.NoError(t, err)
	require.Len(t, dump.Accounts, 2)

	// reconstruct into a fresh state
	restored := newTestState(t)
	require.NoError(t, restored.LoadState(dump))

	balance, err := restored.GetBalance(eoa)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(1000), balance)
	nonce, err := restored.GetNonce(eoa)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)

	got, err := restored.GetCode(contract)
	require.NoError(t, err)
	assert.Equal(t, code, got)
	value, err := restored.GetStorage(contract, uint256.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(42), value)
	value, err = restored.GetStorage(contract, uint256.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(7), value)

	// dumping the restored state yields a set-equal snapshot
	redump, err := restored.DumpState()
	require.NoError(t, err)
	assert.Equal(t, dump.Accounts, redump.Accounts)
}

func TestStateDumpOmitsEmptyFields(t *testing.T) {
	st := newTestState(t)
	addr := common.BytesToAddress([]byte("eoa"))

	require.NoError(t, st.SetBalance(addr, uint256.NewInt(1)))

	dump, err := st.DumpState()
	require.NoError(t, err)

	acc, ok := dump.Accounts[addr]
	require.True(t, ok)
	assert.Empty(t, acc.Code)
	assert.Nil(t, acc.Storage)
}

func TestStateDumpSeesPendingLayers(t *testing.T) {
	st := newTestState(t)
	addr := common.BytesToAddress([]byte("account1"))

	require.NoError(t, st.SetBalance(addr, uint256.NewInt(1)))
	st.Snapshot()
	require.NoError(t, st.SetBalance(addr, uint256.NewInt(2)))
	require.NoError(t, st.SetStorage(addr, uint256.NewInt(0), uint256.NewInt(3)))

	dump, err := st.DumpState()
	require.NoError(t, err)

	acc := dump.Accounts[addr]
	assert.Equal(t, "0x2", (*uint256.Int)(&acc.Balance).Hex())
	require.NotNil(t, acc.Storage)
}

func TestLoadStateMergesOntoExisting(t *testing.T) {
	st := newTestState(t)
	kept := common.BytesToAddress([]byte("kept"))
	loaded := common.BytesToAddress([]byte("loaded"))

	require.NoError(t, st.SetBalance(kept, uint256.NewInt(9)))

	dump := NewStateDump()
	dump.AddAccount(loaded, StateAccount{
		Balance: toU256(1000),
		Nonce:   toU256(2),
	})
	require.NoError(t, st.LoadState(dump))

	// pre-existing accounts survive a load
	balance, err := st.GetBalance(kept)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(9), balance)

	balance, err = st.GetBalance(loaded)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(1000), balance)
	nonce, err := st.GetNonce(loaded)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), nonce)
}

func TestLoadStateNonceOverflow(t *testing.T) {
	st := newTestState(t)

	var huge uint256.Int
	huge.Lsh(uint256.NewInt(1), 70)

	dump := NewStateDump()
	dump.AddAccount(common.BytesToAddress([]byte("account1")), StateAccount{
		Nonce: hexutil.U256(huge),
	})
	assert.Error(t, st.LoadState(dump))
}
