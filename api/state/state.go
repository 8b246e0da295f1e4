// Copyright (c) 2025 The EDR developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/mezosphere/edr/api/utils"
	"github.com/mezosphere/edr/state"
)

// State exposes the account-state store over HTTP. All handlers share one
// lock, so mutations never interleave.
type State struct {
	store *state.State
	mu    sync.Mutex
}

func New(store *state.State) *State {
	return &State{store: store}
}

func parseAddress(hexAddr string) (common.Address, error) {
	if !common.IsHexAddress(hexAddr) {
		return common.Address{}, errors.New("invalid hex address")
	}
	return common.HexToAddress(hexAddr), nil
}

func parseStorageKey(hexKey string) (*uint256.Int, error) {
	return uint256.FromHex(hexKey)
}

func (s *State) handleGetAccount(w http.ResponseWriter, req *http.Request) error {
	addr, err := parseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, err := s.store.GetBalance(addr)
	if err != nil {
		return err
	}
	nonce, err := s.store.GetNonce(addr)
	if err != nil {
		return err
	}
	codeHash, err := s.store.GetCodeHash(addr)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &Account{
		Balance: hexutil.U256(*balance),
		Nonce:   hexutil.U256(*uint256.NewInt(nonce)),
		HasCode: codeHash != state.EmptyCodeHash,
	})
}

func (s *State) handleGetCode(w http.ResponseWriter, req *http.Request) error {
	addr, err := parseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	code, err := s.store.GetCode(addr)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, utils.M{"code": hexutil.Encode(code)})
}

func (s *State) handleGetStorage(w http.ResponseWriter, req *http.Request) error {
	addr, err := parseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	key, err := parseStorageKey(mux.Vars(req)["key"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "key"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	value, err := s.store.GetStorage(addr, key)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, utils.M{"value": value.Hex()})
}

func (s *State) handleSetBalance(w http.ResponseWriter, req *http.Request) error {
	addr, err := parseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	var body SetBalance
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := uint256.Int(body.Balance)
	if err := s.store.SetBalance(addr, &balance); err != nil {
		return err
	}
	return utils.WriteJSON(w, true)
}

func (s *State) handleSetNonce(w http.ResponseWriter, req *http.Request) error {
	addr, err := parseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	var body SetNonce
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	nonce := uint256.Int(body.Nonce)
	if !nonce.IsUint64() {
		return utils.BadRequest(errors.New("nonce: exceeds uint64"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SetNonce(addr, nonce.Uint64()); err != nil {
		return err
	}
	return utils.WriteJSON(w, true)
}

func (s *State) handleSetCode(w http.ResponseWriter, req *http.Request) error {
	addr, err := parseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	var body SetCode
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SetCode(addr, body.Code); err != nil {
		return err
	}
	return utils.WriteJSON(w, true)
}

func (s *State) handleSetStorage(w http.ResponseWriter, req *http.Request) error {
	addr, err := parseAddress(mux.Vars(req)["address"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "address"))
	}
	key, err := parseStorageKey(mux.Vars(req)["key"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "key"))
	}
	var body SetStorage
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	value := uint256.Int(body.Value)
	if err := s.store.SetStorage(addr, key, &value); err != nil {
		return err
	}
	return utils.WriteJSON(w, true)
}

func (s *State) handleDumpState(w http.ResponseWriter, _ *http.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dump, err := s.store.DumpState()
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, dump)
}

func (s *State) handleLoadState(w http.ResponseWriter, req *http.Request) error {
	dump := state.NewStateDump()
	if err := utils.ParseJSON(req.Body, dump); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.LoadState(dump); err != nil {
		return utils.BadRequest(err)
	}
	return utils.WriteJSON(w, true)
}

func (s *State) handleSnapshot(w http.ResponseWriter, _ *http.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return utils.WriteJSON(w, &SnapshotID{ID: s.store.Snapshot()})
}

func (s *State) handleRevert(w http.ResponseWriter, req *http.Request) error {
	id, err := strconv.Atoi(mux.Vars(req)["id"])
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "id"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return utils.WriteJSON(w, s.store.RevertTo(id))
}

func (s *State) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/accounts/{address}").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(s.handleGetAccount))
	sub.Path("/accounts/{address}/code").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(s.handleGetCode))
	sub.Path("/accounts/{address}/storage/{key}").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(s.handleGetStorage))
	sub.Path("/accounts/{address}/balance").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(s.handleSetBalance))
	sub.Path("/accounts/{address}/nonce").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(s.handleSetNonce))
	sub.Path("/accounts/{address}/code").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(s.handleSetCode))
	sub.Path("/accounts/{address}/storage/{key}").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(s.handleSetStorage))
	sub.Path("/dump").Methods(http.MethodGet).HandlerFunc(utils.WrapHandlerFunc(s.handleDumpState))
	sub.Path("/load").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(s.handleLoadState))
	sub.Path("/snapshots").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(s.handleSnapshot))
	sub.Path("/snapshots/{id}/revert").Methods(http.MethodPost).HandlerFunc(utils.WrapHandlerFunc(s.handleRevert))
}
