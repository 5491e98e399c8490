// Copyright 2023 The go-ethereum Authors
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

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/ethtrace/debugtrace/eth/tracers"
)

func init() {
	tracers.Register("muxTracer", newMuxTracer)
}

// muxConfig maps each requested sub-tracer's name to its own raw config,
// run in parallel over the same execution.
type muxConfig map[string]json.RawMessage

// muxTracer fans a single execution out to N independently-configured
// inspectors and folds their results into one object keyed by name.
// Nesting another muxTracer inside is rejected: Register already binds
// "muxTracer" to this constructor, so recursing into it would just
// reconstruct the same fan-out one level down for no benefit.
type muxTracer struct {
	names   []string
	tracers []*tracers.Tracer
}

func newMuxTracer(tctx *tracers.Context, cfgRaw json.RawMessage, statedb *state.StateDB, chainConfig *params.ChainConfig) (*tracers.Tracer, error) {
	var cfg muxConfig
	if len(cfgRaw) > 0 {
		if err := json.Unmarshal(cfgRaw, &cfg); err != nil {
			return nil, &tracers_InvalidConfigError{Cause: err}
		}
	}
	t := &muxTracer{}
	for name, subCfg := range cfg {
		if name == "muxTracer" {
			return nil, &tracers_InvalidConfigError{Cause: errNestedMux}
		}
		sub, err := tracers.New(name, tctx, subCfg, statedb, chainConfig, 0, false)
		if err != nil {
			return nil, err
		}
		t.names = append(t.names, name)
		t.tracers = append(t.tracers, sub)
	}
	return &tracers.Tracer{
		Hooks: &tracing.Hooks{
			OnTxStart: t.onTxStart,
			OnTxEnd:   t.onTxEnd,
			OnEnter:   t.onEnter,
			OnExit:    t.onExit,
			OnOpcode:  t.onOpcode,
			OnFault:   t.onFault,
			OnLog:     t.onLog,
		},
		GetResult: t.getResult,
		Stop:      t.stop,
	}, nil
}

var errNestedMux = &tracers_ValueError{"muxTracer cannot nest another muxTracer"}

type tracers_ValueError struct{ msg string }

func (e *tracers_ValueError) Error() string { return e.msg }

func (t *muxTracer) onTxStart(vmctx *tracing.VMContext, tx *types.Transaction, from common.Address) {
	for _, s := range t.tracers {
		if s.OnTxStart != nil {
			s.OnTxStart(vmctx, tx, from)
		}
	}
}

func (t *muxTracer) onTxEnd(receipt *types.Receipt, err error) {
	for _, s := range t.tracers {
		if s.OnTxEnd != nil {
			s.OnTxEnd(receipt, err)
		}
	}
}

func (t *muxTracer) onEnter(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
	for _, s := range t.tracers {
		if s.OnEnter != nil {
			s.OnEnter(depth, typ, from, to, input, gas, value)
		}
	}
}

func (t *muxTracer) onExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	for _, s := range t.tracers {
		if s.OnExit != nil {
			s.OnExit(depth, output, gasUsed, err, reverted)
		}
	}
}

func (t *muxTracer) onOpcode(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	for _, s := range t.tracers {
		if s.OnOpcode != nil {
			s.OnOpcode(pc, op, gas, cost, scope, rData, depth, err)
		}
	}
}

func (t *muxTracer) onFault(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, depth int, err error) {
	for _, s := range t.tracers {
		if s.OnFault != nil {
			s.OnFault(pc, op, gas, cost, scope, depth, err)
		}
	}
}

func (t *muxTracer) onLog(log *types.Log) {
	for _, s := range t.tracers {
		if s.OnLog != nil {
			s.OnLog(log)
		}
	}
}

func (t *muxTracer) getResult() (json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(t.tracers))
	for i, s := range t.tracers {
		res, err := s.GetResult()
		if err != nil {
			return nil, err
		}
		out[t.names[i]] = res
	}
	return json.Marshal(out)
}

func (t *muxTracer) stop(err error) {
	for _, s := range t.tracers {
		if s.Stop != nil {
			s.Stop(err)
		}
	}
}
