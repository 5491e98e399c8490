// Copyright 2016 The go-ethereum Authors
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

// Package logger implements the default structLogger inspector: a
// per-opcode execution trace, used when debug_traceTransaction is called
// with no tracer name (or with "structLogger" explicitly). Unlike the
// native package's inspectors, structLogger is wired in directly by
// eth/tracers rather than through the registry — it has no reason to
// depend on the parent package at all, only on core/tracing's hook types.
package logger

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
)

// Config holds structLogger-specific knobs, the RPC-facing shape embedded
// in TraceConfig and StdTraceConfig.
type Config struct {
	EnableMemory     bool // capture EVM memory
	DisableStack     bool // omit EVM stack capture
	DisableStorage   bool // omit storage slot capture
	EnableReturnData bool // capture the last call's return data
	Limit            int  // maximum number of captured steps, 0 = unbounded
	Overrides        *params.ChainConfig
}

// StructLog is one captured opcode execution step.
type StructLog struct {
	Pc            uint64
	Op            vm.OpCode
	Gas           uint64
	GasCost       uint64
	Memory        []byte
	MemorySize    int
	Stack         []*big.Int
	ReturnData    []byte
	Storage       map[common.Hash]common.Hash
	Depth         int
	RefundCounter uint64
	Err           error
}

// structLogJSON is the wire shape of StructLog: hex stack words, a
// flattened error string, and omitted empty fields.
type structLogJSON struct {
	Pc         uint64                      `json:"pc"`
	Op         string                      `json:"op"`
	Gas        uint64                      `json:"gas"`
	GasCost    uint64                      `json:"gasCost"`
	Memory     hexutil.Bytes               `json:"memory,omitempty"`
	MemorySize int                         `json:"memSize"`
	Stack      []hexutil.Big               `json:"stack"`
	ReturnData hexutil.Bytes               `json:"returnData,omitempty"`
	Storage    map[common.Hash]common.Hash `json:"storage,omitempty"`
	Depth      int                         `json:"depth"`
	Refund     uint64                      `json:"refund,omitempty"`
	Error      string                      `json:"error,omitempty"`
}

// MarshalJSON renders the step the way debug_traceTransaction's default
// result shape expects.
func (s *StructLog) MarshalJSON() ([]byte, error) {
	stack := make([]hexutil.Big, len(s.Stack))
	for i, v := range s.Stack {
		stack[i] = hexutil.Big(*v)
	}
	out := structLogJSON{
		Pc: s.Pc, Op: s.Op.String(), Gas: s.Gas, GasCost: s.GasCost,
		Memory: s.Memory, MemorySize: s.MemorySize, Stack: stack,
		ReturnData: s.ReturnData, Storage: s.Storage, Depth: s.Depth,
		Refund: s.RefundCounter,
	}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return json.Marshal(out)
}

// ExecutionResult is the default debug_traceTransaction result shape:
// gas used, success, return data, and the full per-opcode log.
type ExecutionResult struct {
	Gas         uint64      `json:"gas"`
	Failed      bool        `json:"failed"`
	ReturnValue string      `json:"returnValue"`
	StructLogs  []StructLog `json:"structLogs"`
}

// StructLogger captures every executed opcode into an in-memory slice. Its
// Hooks method adapts it to core/tracing's Hooks struct; StructLogger
// itself is plain Go with no dependency on the EVM's internal types beyond
// what tracing.OpContext already exposes.
type StructLogger struct {
	cfg Config

	storage map[common.Address]map[common.Hash]common.Hash
	logs    []StructLog
	output  []byte
	failed  bool
	err     error
	usedGas uint64

	interrupt atomic.Bool
	reason    error
}

// NewStructLogger returns a new structLogger. A nil cfg uses defaults.
func NewStructLogger(cfg *Config) *StructLogger {
	l := &StructLogger{storage: make(map[common.Address]map[common.Hash]common.Hash)}
	if cfg != nil {
		l.cfg = *cfg
	}
	return l
}

// Hooks returns the tracing.Hooks bound to this logger's capture methods.
func (l *StructLogger) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnTxStart: l.onTxStart,
		OnTxEnd:   l.onTxEnd,
		OnEnter:   l.onEnter,
		OnExit:    l.onExit,
		OnOpcode:  l.onOpcode,
		OnFault:   l.onFault,
	}
}

func (l *StructLogger) onTxStart(vm *tracing.VMContext, tx *types.Transaction, from common.Address) {}

func (l *StructLogger) onEnter(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
}

// onExit captures the outermost call's return data and revert status. This
// is the only reliable signal for a revert: OnTxEnd's err is only non-nil
// on a pre-execution validation failure, never on an EVM-level revert (see
// call.go's onExit, which the same depth==0 pattern is taken from).
func (l *StructLogger) onExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	if depth != 0 {
		return
	}
	l.output = common.CopyBytes(output)
	l.failed = reverted
}

func (l *StructLogger) onTxEnd(receipt *types.Receipt, err error) {
	if err != nil {
		l.err = err
		return
	}
	if receipt != nil {
		l.usedGas = receipt.GasUsed
	}
}

func (l *StructLogger) onOpcode(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	if l.interrupt.Load() {
		return
	}
	if l.cfg.Limit != 0 && len(l.logs) >= l.cfg.Limit {
		return
	}
	stackData := scope.StackData()
	var stack []*big.Int
	if !l.cfg.DisableStack {
		stack = make([]*big.Int, len(stackData))
		for i := range stackData {
			v := stackData[i]
			stack[i] = v.ToBig()
		}
	}
	var mem []byte
	if l.cfg.EnableMemory {
		mem = scope.MemoryData()
	}
	opcode := vm.OpCode(op)
	var storage map[common.Hash]common.Hash
	if !l.cfg.DisableStorage && (opcode == vm.SLOAD || opcode == vm.SSTORE) && len(stackData) >= 1 {
		addr := stackData[len(stackData)-1].Bytes32()
		contractAddr := scope.Address()
		if l.storage[contractAddr] == nil {
			l.storage[contractAddr] = make(map[common.Hash]common.Hash)
		}
		if opcode == vm.SSTORE && len(stackData) >= 2 {
			l.storage[contractAddr][addr] = stackData[len(stackData)-2].Bytes32()
		}
		storage = copyStorage(l.storage[contractAddr])
	}
	var rdata []byte
	if l.cfg.EnableReturnData {
		rdata = rData
	}
	l.logs = append(l.logs, StructLog{
		Pc: pc, Op: opcode, Gas: gas, GasCost: cost,
		Memory: mem, MemorySize: len(mem), Stack: stack,
		ReturnData: rdata, Storage: storage, Depth: depth, Err: err,
	})
}

func (l *StructLogger) onFault(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, depth int, err error) {
	if len(l.logs) > 0 {
		l.logs[len(l.logs)-1].Err = err
	}
}

func copyStorage(in map[common.Hash]common.Hash) map[common.Hash]common.Hash {
	out := make(map[common.Hash]common.Hash, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Stop terminates execution at the next opportunity.
func (l *StructLogger) Stop(err error) {
	l.reason = err
	l.interrupt.Store(true)
}

// GetResult returns the structLogger's ExecutionResult as JSON, or the
// error recorded by Stop if the trace was cancelled mid-flight.
func (l *StructLogger) GetResult() (json.RawMessage, error) {
	if l.interrupt.Load() && l.reason != nil {
		return nil, l.reason
	}
	returnValue := ""
	if l.err == nil {
		returnValue = fmt.Sprintf("%x", l.output)
	}
	logs := l.logs
	if logs == nil {
		logs = []StructLog{}
	}
	return json.Marshal(&ExecutionResult{
		Gas:         l.usedGas,
		Failed:      l.err != nil || l.failed,
		ReturnValue: returnValue,
		StructLogs:  logs,
	})
}

// Storage exposes the per-address storage slots observed during capture.
func (l *StructLogger) Storage() map[common.Address]map[common.Hash]common.Hash {
	return l.storage
}
