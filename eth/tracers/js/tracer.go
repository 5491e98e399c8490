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

// Package js implements the scripted tracer: a user-supplied JavaScript
// object with setup/step/fault/result (and optionally enter/exit) methods,
// run against the live execution via the goja interpreter. This is the
// only inspector family that executes caller-supplied code; the feature
// gate in Config.EnableScriptedTracer exists because of this package, not
// the other way around.
package js

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/dop251/goja"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/ethtrace/debugtrace/eth/tracers"
)

func init() {
	tracers.Register(tracers.ScriptedConstructorName, newScriptedTracer)
}

// scriptedConfig is the envelope dispatch.go wraps a caller's tracer name
// (treated as JS source once it fails the builtin-name lookup) and its raw
// config object in before handing it to the registry.
type scriptedConfig struct {
	Source string          `json:"source"`
	Config json.RawMessage `json:"config"`
}

// newScriptedTracer is the registry-facing constructor: it unwraps the
// envelope dispatch.go builds and delegates to newJsTracer, the lower-level
// constructor that takes JS source directly.
func newScriptedTracer(tctx *tracers.Context, cfgRaw json.RawMessage, statedb *state.StateDB, chainConfig *params.ChainConfig) (*tracers.Tracer, error) {
	var env scriptedConfig
	if err := json.Unmarshal(cfgRaw, &env); err != nil {
		return nil, fmt.Errorf("malformed scripted tracer envelope: %w", err)
	}
	return newJsTracer(env.Source, tctx, env.Config)
}

// jsTracer runs a user-supplied JS object's step/fault/result (and
// optionally enter/exit) methods against the goja VM. Every hook call is
// guarded so a panicking or throwing script surfaces as a GetResult error
// instead of propagating into the EVM's own call stack.
type jsTracer struct {
	vm  *goja.Runtime
	obj *goja.Object
	ctx map[string]interface{}

	traceFrame bool

	interrupt atomic.Bool
	reason    error
	err       error
}

// newJsTracer compiles code into a JS object exposing the tracer protocol
// and binds the host helpers (toHex, toWord, toAddress, isPrecompiled)
// into its global scope.
func newJsTracer(code string, ctx *tracers.Context, cfgRaw json.RawMessage) (*tracers.Tracer, error) {
	vm := goja.New()
	t := &jsTracer{vm: vm, ctx: make(map[string]interface{})}

	must := func(name string, fn func(goja.FunctionCall) goja.Value) {
		if err := vm.Set(name, fn); err != nil {
			panic(err)
		}
	}
	must("toHex", t.toHex)
	must("toWord", t.toWord)
	must("toAddress", t.toAddress)
	must("isPrecompiled", t.isPrecompiled)

	ret, err := vm.RunString("(" + code + ")")
	if err != nil {
		return nil, fmt.Errorf("failed to compile tracer: %v", err)
	}
	obj := ret.ToObject(vm)
	t.obj = obj

	if ctx != nil {
		t.ctx["blockHash"] = ctx.BlockHash
		t.ctx["txIndex"] = ctx.TxIndex
		t.ctx["txHash"] = ctx.TxHash
	}

	if setup := obj.Get("setup"); setup != nil && !goja.IsUndefined(setup) {
		if fn, ok := goja.AssertFunction(setup); ok {
			cfgStr := "{}"
			if len(cfgRaw) > 0 {
				cfgStr = string(cfgRaw)
			}
			if _, err := fn(obj, vm.ToValue(cfgStr)); err != nil {
				return nil, err
			}
		}
	}

	hasEnter, hasExit := hasMethod(obj, "enter"), hasMethod(obj, "exit")
	if hasEnter != hasExit {
		return nil, errors.New("trace object must expose both enter and exit, or neither")
	}
	t.traceFrame = hasEnter && hasExit

	hooks := &tracing.Hooks{
		OnTxStart: t.onTxStart,
		OnTxEnd:   t.onTxEnd,
		OnOpcode:  t.onOpcode,
		OnFault:   t.onFault,
	}
	if t.traceFrame {
		hooks.OnEnter = t.onEnter
		hooks.OnExit = t.onExit
	}
	return &tracers.Tracer{Hooks: hooks, GetResult: t.getResult, Stop: t.stop}, nil
}

func hasMethod(obj *goja.Object, name string) bool {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) {
		return false
	}
	_, ok := goja.AssertFunction(v)
	return ok
}

func (t *jsTracer) call(method string, args ...goja.Value) (goja.Value, error) {
	fn, ok := goja.AssertFunction(t.obj.Get(method))
	if !ok {
		return goja.Undefined(), nil
	}
	return fn(t.obj, args...)
}

func (t *jsTracer) fail(err error) {
	t.err = err
	t.interrupt.Store(true)
}

func (t *jsTracer) onTxStart(env *tracing.VMContext, tx *types.Transaction, from common.Address) {
	t.ctx["type"] = "CALL"
	t.ctx["from"] = from.Hex()
	if to := tx.To(); to != nil {
		t.ctx["to"] = to.Hex()
	}
	t.ctx["gas"] = tx.Gas()
	t.ctx["value"] = tx.Value()
	t.ctx["input"] = hexEncode(tx.Data())
}

func (t *jsTracer) onTxEnd(receipt *types.Receipt, err error) {
	if err != nil {
		t.err = err
		return
	}
	if receipt != nil {
		t.ctx["gasUsed"] = receipt.GasUsed
	}
}

func (t *jsTracer) onOpcode(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	if t.interrupt.Load() {
		return
	}
	log := t.vm.NewObject()
	log.Set("getPC", func(goja.FunctionCall) goja.Value { return t.vm.ToValue(pc) })
	log.Set("getOpcode", func(goja.FunctionCall) goja.Value { return t.vm.ToValue(op) })
	log.Set("getGas", func(goja.FunctionCall) goja.Value { return t.vm.ToValue(gas) })
	log.Set("getCost", func(goja.FunctionCall) goja.Value { return t.vm.ToValue(cost) })
	log.Set("getDepth", func(goja.FunctionCall) goja.Value { return t.vm.ToValue(depth) })
	log.Set("getRefund", func(goja.FunctionCall) goja.Value { return t.vm.ToValue(uint64(0)) })
	log.Set("getError", func(goja.FunctionCall) goja.Value {
		if err != nil {
			return t.vm.ToValue(err.Error())
		}
		return goja.Undefined()
	})
	if _, callErr := t.call("step", log, t.vm.NewObject()); callErr != nil {
		t.fail(callErr)
	}
}

func (t *jsTracer) onFault(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, depth int, err error) {
	if t.interrupt.Load() {
		return
	}
	log := t.vm.NewObject()
	log.Set("getPC", func(goja.FunctionCall) goja.Value { return t.vm.ToValue(pc) })
	log.Set("getError", func(goja.FunctionCall) goja.Value { return t.vm.ToValue(err.Error()) })
	if _, callErr := t.call("fault", log, t.vm.NewObject()); callErr != nil {
		t.fail(callErr)
	}
}

func (t *jsTracer) onEnter(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
	if t.interrupt.Load() || !t.traceFrame {
		return
	}
	frame := t.vm.NewObject()
	frame.Set("getType", func(goja.FunctionCall) goja.Value { return t.vm.ToValue(fmt.Sprintf("%d", typ)) })
	frame.Set("getFrom", func(goja.FunctionCall) goja.Value { return t.vm.ToValue(from.Bytes()) })
	frame.Set("getTo", func(goja.FunctionCall) goja.Value { return t.vm.ToValue(to.Bytes()) })
	frame.Set("getInput", func(goja.FunctionCall) goja.Value { return t.vm.ToValue(input) })
	frame.Set("getGas", func(goja.FunctionCall) goja.Value { return t.vm.ToValue(gas) })
	frame.Set("getValue", func(goja.FunctionCall) goja.Value {
		if value == nil {
			return goja.Undefined()
		}
		return t.vm.ToValue(value)
	})
	if _, err := t.call("enter", frame); err != nil {
		t.fail(err)
	}
}

func (t *jsTracer) onExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	if t.interrupt.Load() || !t.traceFrame {
		return
	}
	res := t.vm.NewObject()
	res.Set("getGasUsed", func(goja.FunctionCall) goja.Value { return t.vm.ToValue(gasUsed) })
	res.Set("getOutput", func(goja.FunctionCall) goja.Value { return t.vm.ToValue(output) })
	res.Set("getError", func(goja.FunctionCall) goja.Value {
		if err != nil {
			return t.vm.ToValue(err.Error())
		}
		return goja.Undefined()
	})
	if _, callErr := t.call("exit", res); callErr != nil {
		t.fail(callErr)
	}
}

func (t *jsTracer) getResult() (json.RawMessage, error) {
	if t.interrupt.Load() {
		if t.reason != nil {
			return nil, t.reason
		}
		if t.err != nil {
			return nil, t.err
		}
	}
	res, err := t.call("result", t.vm.ToValue(t.ctx), t.vm.NewObject())
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func (t *jsTracer) stop(err error) {
	t.reason = err
	t.interrupt.Store(true)
	t.vm.Interrupt(err)
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 2+len(b)*2)
	out[0], out[1] = '0', 'x'
	for i, c := range b {
		out[2+i*2] = hextable[c>>4]
		out[3+i*2] = hextable[c&0x0f]
	}
	return string(out)
}

// toHex, toWord, toAddress and isPrecompiled are the host helpers every
// scripted tracer gets in its global scope.

func (t *jsTracer) toHex(call goja.FunctionCall) goja.Value {
	b := t.bytesArg(call, 0)
	return t.vm.ToValue(hexEncode(b))
}

func (t *jsTracer) toWord(call goja.FunctionCall) goja.Value {
	b := t.bytesArg(call, 0)
	var h common.Hash
	h.SetBytes(b)
	return t.vm.ToValue(h.Bytes())
}

func (t *jsTracer) toAddress(call goja.FunctionCall) goja.Value {
	b := t.bytesArg(call, 0)
	var a common.Address
	a.SetBytes(b)
	return t.vm.ToValue(a.Bytes())
}

// isPrecompiled reports whether addr falls in the canonical precompile
// range (0x1-0x9). It does not gate on the active fork, unlike upstream's
// version — this service traces post-merge mainnet history only, where
// the full 0x1-0x9 range has long been active.
func (t *jsTracer) isPrecompiled(call goja.FunctionCall) goja.Value {
	b := t.bytesArg(call, 0)
	var addr common.Address
	addr.SetBytes(b)
	n := new(big.Int).SetBytes(addr.Bytes())
	isPre := n.Sign() > 0 && n.Cmp(big.NewInt(9)) <= 0
	return t.vm.ToValue(isPre)
}

func (t *jsTracer) bytesArg(call goja.FunctionCall, i int) []byte {
	if i >= len(call.Arguments) {
		return nil
	}
	v := call.Arguments[i]
	if s, ok := v.Export().(string); ok {
		return common.FromHex(s)
	}
	if b, ok := v.Export().([]byte); ok {
		return b
	}
	return nil
}
