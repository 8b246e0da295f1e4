// Copyright (c) 2025 The EDR developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Account account summary for the GET endpoint.
type Account struct {
	Balance hexutil.U256 `json:"balance"`
	Nonce   hexutil.U256 `json:"nonce"`
	HasCode bool         `json:"hasCode"`
}

// SetBalance request body of POST /{address}/balance.
type SetBalance struct {
	Balance hexutil.U256 `json:"balance"`
}

// SetNonce request body of POST /{address}/nonce.
type SetNonce struct {
	Nonce hexutil.U256 `json:"nonce"`
}

// SetCode request body of POST /{address}/code.
type SetCode struct {
	Code hexutil.Bytes `json:"code"`
}

// SetStorage request body of POST /{address}/storage/{key}.
type SetStorage struct {
	Value hexutil.U256 `json:"value"`
}

// SnapshotID response body of POST /snapshots.
type SnapshotID struct {
	ID int `json:"id"`
}
