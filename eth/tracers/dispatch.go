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

package tracers

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/params"

	"github.com/ethtrace/debugtrace/eth/tracers/logger"
)

// execPath distinguishes the two kinds of execution New can be invoked for:
// replaying a real transaction within block context (where FlatCall has
// everything it needs) versus a synthetic call with no concrete transaction
// hash (where FlatCall's trace-address bookkeeping has nothing to anchor
// to). New rejects FlatCall under pathSyntheticCall; the API's own traceTx
// passes pathTransaction for every execution, synthetic calls included.
type execPath int

const (
	pathTransaction execPath = iota
	pathSyntheticCall
)

// New constructs the inspector named by name, the single entry point both
// the API layer and the muxTracer's sub-tracer fan-out go through. cfgRaw
// is the tracer's own config slice, unparsed; statedb is the cache overlay
// the traced execution is about to run against.
func New(name string, tctx *Context, cfgRaw json.RawMessage, statedb *state.StateDB, chainConfig *params.ChainConfig, path execPath, scriptingEnabled bool) (*Tracer, error) {
	kind := ParseSelector(name)
	switch kind {
	case KindStructLog:
		cfg, err := parseStructLogConfig(cfgRaw)
		if err != nil {
			return nil, &InvalidTracerConfigError{Tracer: "structLogger", Cause: err}
		}
		l := logger.NewStructLogger(cfg)
		return &Tracer{Hooks: l.Hooks(), GetResult: l.GetResult, Stop: l.Stop}, nil

	case KindFlatCall:
		if path == pathSyntheticCall {
			// Open question #1: FlatCall on the synthetic-call path needs a
			// concrete transaction hash it cannot obtain from a pure call.
			// Reported as unsupported rather than guessed at.
			return nil, unsupported("flatCallTracer is not supported on the call-trace path")
		}
		return newRegisteredTracer(name, tctx, cfgRaw, statedb, chainConfig)

	case KindScripted:
		if !scriptingEnabled {
			return nil, unsupported("scripted tracing is not enabled")
		}
		return newRegisteredScriptedTracer(name, tctx, cfgRaw, statedb, chainConfig)

	default:
		return newRegisteredTracer(name, tctx, cfgRaw, statedb, chainConfig)
	}
}

// newRegisteredTracer looks up a constructor registered by the native
// package's init() (see tracers.go's registry) and invokes it.
func newRegisteredTracer(name string, tctx *Context, cfgRaw json.RawMessage, statedb *state.StateDB, chainConfig *params.ChainConfig) (*Tracer, error) {
	ctor, ok := lookup(name)
	if !ok {
		return nil, unsupported("%s is not registered", name)
	}
	t, err := ctor(tctx, cfgRaw, statedb, chainConfig)
	if err != nil {
		return nil, &InvalidTracerConfigError{Tracer: name, Cause: err}
	}
	return t, nil
}

func newRegisteredScriptedTracer(name string, tctx *Context, cfgRaw json.RawMessage, statedb *state.StateDB, chainConfig *params.ChainConfig) (*Tracer, error) {
	ctor, ok := lookup(ScriptedConstructorName)
	if !ok {
		return nil, unsupported("scripted tracing is not available in this build")
	}
	cfg := scriptedConfig{Source: name, Config: cfgRaw}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	t, err := ctor(tctx, raw, statedb, chainConfig)
	if err != nil {
		return nil, &InvalidTracerConfigError{Tracer: "scripted", Cause: err}
	}
	return t, nil
}

// scriptedConfig is the envelope passed to the js package's registered
// constructor: the caller-supplied JS source plus that tracer's own raw
// config object.
type scriptedConfig struct {
	Source string          `json:"source"`
	Config json.RawMessage `json:"config"`
}

func parseStructLogConfig(raw json.RawMessage) (*logger.Config, error) {
	cfg := new(logger.Config)
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
