// Copyright 2019 The go-ethereum Authors
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
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"

	"github.com/ethtrace/debugtrace/eth/tracers"
)

func init() {
	tracers.Register("callTracer", newCallTracer)
}

// CallConfig controls the callTracer's shape.
type CallConfig struct {
	OnlyTopCall bool `json:"onlyTopCall"`
	WithLog     bool `json:"withLog"`
}

// CallLog is a LOG opcode emitted during a traced call.
type CallLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

// CallFrame is one level of the call tree callTracer reconstructs.
type CallFrame struct {
	Type         string          `json:"type"`
	From         common.Address  `json:"from"`
	To           *common.Address `json:"to,omitempty"`
	Value        *hexutil.Big    `json:"value,omitempty"`
	Gas          hexutil.Uint64  `json:"gas"`
	GasUsed      hexutil.Uint64  `json:"gasUsed"`
	Input        hexutil.Bytes   `json:"input"`
	Output       hexutil.Bytes   `json:"output,omitempty"`
	Error        string          `json:"error,omitempty"`
	RevertReason string          `json:"revertReason,omitempty"`
	Calls        []CallFrame     `json:"calls,omitempty"`
	Logs         []CallLog       `json:"logs,omitempty"`
}

type callTracer struct {
	mu        sync.Mutex
	cfg       CallConfig
	callstack []CallFrame
	interrupt atomic.Bool
	reason    error
}

func newCallTracer(tctx *tracers.Context, cfgRaw json.RawMessage, statedb *state.StateDB, chainConfig *params.ChainConfig) (*tracers.Tracer, error) {
	t, err := newCallTracerObject(cfgRaw)
	if err != nil {
		return nil, err
	}
	return &tracers.Tracer{
		Hooks: &tracing.Hooks{
			OnTxStart: t.onTxStart,
			OnEnter:   t.onEnter,
			OnExit:    t.onExit,
			OnLog:     t.onLog,
		},
		GetResult: t.getResult,
		Stop:      t.stop,
	}, nil
}

// ParseCallConfig parses the callTracer's own config object.
func ParseCallConfig(raw json.RawMessage) (CallConfig, error) {
	var cfg CallConfig
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newCallTracerObject(cfgRaw json.RawMessage) (*callTracer, error) {
	cfg, err := ParseCallConfig(cfgRaw)
	if err != nil {
		return nil, &tracers_InvalidConfigError{Cause: err}
	}
	return &callTracer{cfg: cfg, callstack: make([]CallFrame, 0, 1)}, nil
}

// tracers_InvalidConfigError wraps a config parse failure without pulling
// in the parent package's error types, avoiding a second import edge back
// to eth/tracers beyond the one already needed for Tracer/Context.
type tracers_InvalidConfigError struct{ Cause error }

func (e *tracers_InvalidConfigError) Error() string { return "invalid callTracer config: " + e.Cause.Error() }
func (e *tracers_InvalidConfigError) Unwrap() error  { return e.Cause }

func (t *callTracer) onTxStart(vmctx *tracing.VMContext, tx *types.Transaction, from common.Address) {
	t.callstack = append(t.callstack, CallFrame{
		Type:  "CALL",
		From:  from,
		To:    tx.To(),
		Value: bigToHex(tx.Value()),
		Gas:   hexutil.Uint64(tx.Gas()),
		Input: tx.Data(),
	})
}

func (t *callTracer) onEnter(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
	if t.interrupt.Load() {
		return
	}
	if t.cfg.OnlyTopCall && depth > 0 {
		return
	}
	if depth == 0 && len(t.callstack) > 0 {
		// onTxStart already opened the root frame; nested frames attach to it.
		return
	}
	call := CallFrame{
		Type:  vm.OpCode(typ).String(),
		From:  from,
		To:    &to,
		Input: common.CopyBytes(input),
		Gas:   hexutil.Uint64(gas),
	}
	if value != nil {
		call.Value = bigToHex(value)
	}
	t.mu.Lock()
	t.callstack = append(t.callstack, call)
	t.mu.Unlock()
}

func (t *callTracer) onExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	if t.interrupt.Load() {
		return
	}
	if depth == 0 {
		t.finalize(output, gasUsed, err, reverted)
		return
	}
	if t.cfg.OnlyTopCall {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	size := len(t.callstack)
	if size <= 1 {
		return
	}
	call := t.callstack[size-1]
	t.callstack = t.callstack[:size-1]
	size--

	call.GasUsed = hexutil.Uint64(gasUsed)
	call.Output = common.CopyBytes(output)
	if err != nil {
		call.Error = err.Error()
		if reverted && len(output) >= 4 {
			call.RevertReason = decodeRevertReason(output)
		}
	}
	t.callstack[size-1].Calls = append(t.callstack[size-1].Calls, call)
}

func (t *callTracer) finalize(output []byte, gasUsed uint64, err error, reverted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.callstack) == 0 {
		return
	}
	top := &t.callstack[0]
	top.GasUsed = hexutil.Uint64(gasUsed)
	top.Output = common.CopyBytes(output)
	if err != nil {
		top.Error = err.Error()
		if reverted && len(output) >= 4 {
			top.RevertReason = decodeRevertReason(output)
		}
	}
}

func (t *callTracer) onLog(log *types.Log) {
	if !t.cfg.WithLog || t.interrupt.Load() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.callstack) == 0 {
		return
	}
	frame := &t.callstack[len(t.callstack)-1]
	frame.Logs = append(frame.Logs, CallLog{Address: log.Address, Topics: log.Topics, Data: log.Data})
}

func (t *callTracer) getResult() (json.RawMessage, error) {
	if t.interrupt.Load() {
		return nil, t.reason
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.callstack) == 0 {
		return json.Marshal(CallFrame{})
	}
	return json.Marshal(t.callstack[0])
}

func (t *callTracer) stop(err error) {
	t.reason = err
	t.interrupt.Store(true)
}

func bigToHex(v *big.Int) *hexutil.Big {
	if v == nil {
		return nil
	}
	b := hexutil.Big(*v)
	return &b
}

// decodeRevertReason extracts the ABI-encoded string out of a standard
// Error(string) revert payload. A payload shorter than 68 bytes yields "";
// any other payload that is not a well-formed Error(string) is reported as
// the raw hex.
func decodeRevertReason(output []byte) string {
	if len(output) < 4+32+32 {
		return ""
	}
	if !strings.HasPrefix(hexutil.Encode(output[:4]), "0x08c379a0") {
		return hexutil.Encode(output)
	}
	length := new(big.Int).SetBytes(output[36:68]).Uint64()
	if uint64(len(output)) < 68+length {
		return hexutil.Encode(output)
	}
	return string(output[68 : 68+length])
}
