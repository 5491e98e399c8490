// Copyright 2021 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package native

import (
	"encoding/json"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/ethtrace/debugtrace/eth/tracers"
)

func init() {
	tracers.Register("prestateTracer", newPrestateTracer)
}

// PrestateConfig controls the prestateTracer's output mode.
type PrestateConfig struct {
	DiffMode bool `json:"diffMode"`
}

// ParsePrestateConfig parses the prestateTracer's own config object.
func ParsePrestateConfig(raw json.RawMessage) (PrestateConfig, error) {
	var cfg PrestateConfig
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// accountState is one address' pre- (or post-) state snapshot.
type accountState struct {
	Balance *hexutil.Big                `json:"balance,omitempty"`
	Nonce   uint64                      `json:"nonce,omitempty"`
	Code    hexutil.Bytes               `json:"code,omitempty"`
	Storage map[common.Hash]common.Hash `json:"storage,omitempty"`
}

type prestateResult map[common.Address]*accountState

type diffResult struct {
	Pre  prestateResult `json:"pre"`
	Post prestateResult `json:"post"`
}

// prestateTracer snapshots every account touched by the execution before
// (and, in diff mode, after) it runs, by reading through to statedb the
// moment each address is first seen.
type prestateTracer struct {
	mu          sync.Mutex
	cfg         PrestateConfig
	statedb     *state.StateDB
	pre         prestateResult
	post        prestateResult
	postStorage map[common.Address]map[common.Hash]common.Hash
	touched     map[common.Address]bool
	created     map[common.Address]bool
	interrupt   atomic.Bool
	reason      error
}

func newPrestateTracer(tctx *tracers.Context, cfgRaw json.RawMessage, statedb *state.StateDB, chainConfig *params.ChainConfig) (*tracers.Tracer, error) {
	cfg, err := ParsePrestateConfig(cfgRaw)
	if err != nil {
		return nil, &tracers_InvalidConfigError{Cause: err}
	}
	t := &prestateTracer{
		cfg: cfg, statedb: statedb,
		pre: make(prestateResult), post: make(prestateResult),
		postStorage: make(map[common.Address]map[common.Hash]common.Hash),
		touched:     make(map[common.Address]bool), created: make(map[common.Address]bool),
	}
	return &tracers.Tracer{
		Hooks: &tracing.Hooks{
			OnTxStart:       t.onTxStart,
			OnEnter:         t.onEnter,
			OnTxEnd:         t.onTxEnd,
			OnStorageChange: t.onStorageChange,
		},
		GetResult: t.getResult,
		Stop:      t.stop,
	}, nil
}

func (t *prestateTracer) onTxStart(vmctx *tracing.VMContext, tx *types.Transaction, from common.Address) {
	t.lookup(from)
	if to := tx.To(); to != nil {
		t.lookup(*to)
	}
}

func (t *prestateTracer) onEnter(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
	t.lookup(from)
	t.lookup(to)
}

func (t *prestateTracer) onTxEnd(receipt *types.Receipt, err error) {
	if !t.cfg.DiffMode {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for addr := range t.touched {
		post := &accountState{}
		if t.statedb != nil {
			post = t.snapshot(addr)
		}
		if storage := t.postStorage[addr]; len(storage) > 0 {
			post.Storage = storage
		}
		t.post[addr] = post
	}
}

// onStorageChange records the pre-state value of every storage slot the
// first time it is touched, and (in diff mode) the slot's final value, the
// same SLOAD/SSTORE-driven bookkeeping eth/tracers/logger's StructLogger
// performs for its own per-step storage capture.
func (t *prestateTracer) onStorageChange(addr common.Address, slot common.Hash, prev common.Hash, new common.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.touched[addr] {
		t.touched[addr] = true
		if t.statedb == nil {
			t.pre[addr] = &accountState{}
		} else {
			t.pre[addr] = t.snapshot(addr)
		}
	}
	if t.pre[addr].Storage == nil {
		t.pre[addr].Storage = make(map[common.Hash]common.Hash)
	}
	if _, ok := t.pre[addr].Storage[slot]; !ok {
		t.pre[addr].Storage[slot] = prev
	}
	if t.cfg.DiffMode {
		if t.postStorage[addr] == nil {
			t.postStorage[addr] = make(map[common.Hash]common.Hash)
		}
		t.postStorage[addr][slot] = new
	}
}

func (t *prestateTracer) lookup(addr common.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.touched[addr] {
		return
	}
	t.touched[addr] = true
	if t.statedb == nil {
		t.pre[addr] = &accountState{}
		return
	}
	t.pre[addr] = t.snapshot(addr)
}

func (t *prestateTracer) snapshot(addr common.Address) *accountState {
	balance := t.statedb.GetBalance(addr).ToBig()
	return &accountState{
		Balance: (*hexutil.Big)(balance),
		Nonce:   t.statedb.GetNonce(addr),
		Code:    t.statedb.GetCode(addr),
	}
}

func (t *prestateTracer) getResult() (json.RawMessage, error) {
	if t.interrupt.Load() {
		return nil, t.reason
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cfg.DiffMode {
		return json.Marshal(&diffResult{Pre: t.pre, Post: t.post})
	}
	return json.Marshal(t.pre)
}

func (t *prestateTracer) stop(err error) {
	t.reason = err
	t.interrupt.Store(true)
}
