// Copyright 2024 The go-ethereum Authors
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
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"

	"github.com/ethtrace/debugtrace/eth/tracers"
)

func init() {
	tracers.Register("flatCallTracer", newFlatCallTracer)
}

// FlatCallFrame is one entry of a Parity-style flat call trace: every call
// in a transaction as an independent record addressed by its position in
// the call tree rather than nested inside its parent.
type FlatCallFrame struct {
	Action              flatCallAction `json:"action"`
	BlockHash           *common.Hash   `json:"blockHash,omitempty"`
	BlockNumber         uint64         `json:"blockNumber,omitempty"`
	Error               string         `json:"error,omitempty"`
	Result              *flatCallResult `json:"result,omitempty"`
	Subtraces           int            `json:"subtraces"`
	TraceAddress        []int          `json:"traceAddress"`
	TransactionHash      *common.Hash   `json:"transactionHash,omitempty"`
	TransactionPosition int            `json:"transactionPosition"`
	Type                string         `json:"type"`
}

type flatCallAction struct {
	From     common.Address `json:"from"`
	To       *common.Address `json:"to,omitempty"`
	Gas      hexutil.Uint64 `json:"gas"`
	Input    hexutil.Bytes  `json:"input"`
	Value    *hexutil.Big   `json:"value,omitempty"`
	CallType string         `json:"callType,omitempty"`
}

type flatCallResult struct {
	GasUsed hexutil.Uint64 `json:"gasUsed"`
	Output  hexutil.Bytes  `json:"output"`
}

type flatCallFrame struct {
	call         CallFrame
	traceAddress []int
}

// flatCallTracer reuses callTracer's nested-frame capture and flattens the
// result on GetResult, rather than duplicating the call-stack bookkeeping.
type flatCallTracer struct {
	mu     sync.Mutex
	nested *callTracer
	tctx   *tracers.Context

	interrupt atomic.Bool
	reason    error
}

func newFlatCallTracer(tctx *tracers.Context, cfgRaw json.RawMessage, statedb *state.StateDB, chainConfig *params.ChainConfig) (*tracers.Tracer, error) {
	inner, err := newCallTracerObject(cfgRaw)
	if err != nil {
		return nil, err
	}
	inner.cfg.WithLog = false
	t := &flatCallTracer{nested: inner, tctx: tctx}
	return &tracers.Tracer{
		Hooks: &tracing.Hooks{
			OnTxStart: inner.onTxStart,
			OnEnter:   inner.onEnter,
			OnExit:    inner.onExit,
		},
		GetResult: t.getResult,
		Stop:      t.stop,
	}, nil
}

func (t *flatCallTracer) getResult() (json.RawMessage, error) {
	if t.interrupt.Load() {
		return nil, t.reason
	}
	t.nested.mu.Lock()
	defer t.nested.mu.Unlock()
	if len(t.nested.callstack) == 0 {
		return json.Marshal([]FlatCallFrame{})
	}
	var out []FlatCallFrame
	flatten(&t.nested.callstack[0], nil, t.tctx, &out)
	return json.Marshal(out)
}

func flatten(call *CallFrame, address []int, tctx *tracers.Context, out *[]FlatCallFrame) {
	frame := FlatCallFrame{
		Action: flatCallAction{
			From:     call.From,
			To:       call.To,
			Gas:      call.Gas,
			Input:    call.Input,
			Value:    call.Value,
			CallType: callTypeOf(call.Type),
		},
		Error:        call.Error,
		Subtraces:    len(call.Calls),
		TraceAddress: append([]int{}, address...),
		Type:         frameType(call.Type),
	}
	if tctx != nil {
		frame.BlockHash = &tctx.BlockHash
		frame.BlockNumber = blockNumberUint64(tctx.BlockNumber)
		frame.TransactionHash = &tctx.TxHash
		frame.TransactionPosition = tctx.TxIndex
	}
	if call.Error == "" {
		frame.Result = &flatCallResult{GasUsed: call.GasUsed, Output: call.Output}
	}
	*out = append(*out, frame)
	for i := range call.Calls {
		flatten(&call.Calls[i], append(address, i), tctx, out)
	}
}

func callTypeOf(opType string) string {
	switch vm.StringToOp(opType) {
	case vm.DELEGATECALL:
		return "delegatecall"
	case vm.STATICCALL:
		return "staticcall"
	case vm.CALLCODE:
		return "callcode"
	case vm.CREATE, vm.CREATE2:
		return ""
	default:
		return "call"
	}
}

func frameType(opType string) string {
	switch vm.StringToOp(opType) {
	case vm.CREATE, vm.CREATE2:
		return "create"
	case vm.SELFDESTRUCT:
		return "suicide"
	default:
		return "call"
	}
}

func blockNumberUint64(n *big.Int) uint64 {
	if n == nil {
		return 0
	}
	return n.Uint64()
}

func (t *flatCallTracer) stop(err error) {
	t.reason = err
	t.interrupt.Store(true)
	t.nested.stop(err)
}
