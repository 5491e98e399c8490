// Copyright 2017 The go-ethereum Authors
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
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/params"
)

// Context carries the in-block coordinates of the transaction being traced,
// threaded through to inspectors that need them (FlatCall, Mux sub-tracers).
type Context struct {
	BlockHash   common.Hash
	BlockNumber *big.Int
	TxIndex     int
	TxHash      common.Hash
}

// Tracer bundles the live EVM hooks an inspector wants called with the two
// lifecycle functions every inspector needs regardless of which hooks it
// subscribes to. A *Tracer, not an interface, is what every constructor in
// this package — builtin or registered — produces: a value vm.Config plugs
// directly into its Tracer field.
type Tracer struct {
	*tracing.Hooks
	// GetResult collects the inspector's accumulated observations into the
	// tracer-specific JSON shape the RPC layer returns.
	GetResult func() (json.RawMessage, error)
	// Stop terminates execution at the next opportunity. err becomes the
	// error GetResult returns if the trace was cut short.
	Stop func(err error)
}

// Kind is the closed set of tracer variants this service knows how to run.
// It is a tagged enum, not an open plugin registry: adding a variant means
// adding a case to dispatch.go's New and to this list.
type Kind int

const (
	// KindStructLog is the default when no tracer is requested: per-opcode
	// step records.
	KindStructLog Kind = iota
	KindFourByte
	KindCall
	KindPreState
	KindMux
	KindNoop
	KindFlatCall
	KindKeccak256Preimage
	KindScripted
)

// builtin maps the RPC-facing tracer name to its Kind. An absent (empty)
// name is handled by the caller as KindStructLog.
var builtin = map[string]Kind{
	"4byteTracer":             KindFourByte,
	"callTracer":              KindCall,
	"prestateTracer":          KindPreState,
	"muxTracer":               KindMux,
	"noopTracer":              KindNoop,
	"flatCallTracer":          KindFlatCall,
	"keccak256PreimageTracer": KindKeccak256Preimage,
}

// ParseSelector resolves an RPC tracer name into a Kind. A name outside the
// built-in set is treated as scripted source code (KindScripted) — the
// caller is expected to check the scripted-tracer feature gate before
// constructing one.
func ParseSelector(name string) Kind {
	if name == "" {
		return KindStructLog
	}
	if kind, ok := builtin[name]; ok {
		return kind
	}
	return KindScripted
}

func (k Kind) String() string {
	switch k {
	case KindStructLog:
		return "structLogger"
	case KindFourByte:
		return "4byteTracer"
	case KindCall:
		return "callTracer"
	case KindPreState:
		return "prestateTracer"
	case KindMux:
		return "muxTracer"
	case KindNoop:
		return "noopTracer"
	case KindFlatCall:
		return "flatCallTracer"
	case KindKeccak256Preimage:
		return "keccak256PreimageTracer"
	case KindScripted:
		return "scripted"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ctorFn constructs a concrete inspector given the in-block context, its
// raw JSON config, the cache overlay the upcoming transaction will run
// against, and the chain configuration active at that point. statedb is
// nil on paths where no overlay exists yet.
type ctorFn func(tctx *Context, cfgRaw json.RawMessage, statedb *state.StateDB, chainConfig *params.ChainConfig) (*Tracer, error)

// registry decouples this package from the concrete inspector packages
// (native, js): those packages import tracers for the Tracer and Context
// types and register their constructors from a package-level init().
// tracers itself never imports them back, which is what avoids the import
// cycle — a binary that wants the native/js families available
// blank-imports them once (see the module root's register.go).
var (
	registryMu sync.RWMutex
	registry   = make(map[string]ctorFn)
)

// Register adds a named constructor to the registry. Intended to be called
// from a package-level init() in eth/tracers/native, eth/tracers/js, etc.
// A second registration under the same name replaces the first.
func Register(name string, ctor ctorFn) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// ScriptedConstructorName is the registry key the js package registers its
// scripted-tracer constructor under. Any RPC tracer name that fails
// ParseSelector's builtin lookup is routed here, with the caller's name
// carried through as JS source code.
const ScriptedConstructorName = "__scripted__"

func lookup(name string) (ctorFn, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ctor, ok := registry[name]
	return ctor, ok
}
