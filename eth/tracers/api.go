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

// Package tracers implements the debug tracing RPC surface: replaying
// historical transactions and blocks, speculative calls, and execution
// witness generation, all driven through a closed family of EVM
// inspectors (see Kind in tracers.go).
package tracers

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethtrace/debugtrace/eth/tracers/logger"
	"github.com/ethtrace/debugtrace/internal/ethapi"
)

const (
	// defaultTraceTimeout bounds how long a single transaction trace may
	// run before being forcefully aborted. Only enforced for tracers that
	// cooperate with cancellation (structlog, native); scripted tracers
	// must additionally honor it themselves (see js package).
	defaultTraceTimeout = 5 * time.Second

	// defaultTraceReexec is how many blocks the engine is willing to
	// re-execute to reconstruct state that isn't cached on disk.
	defaultTraceReexec = uint64(128)

	// defaultTraceConcurrency bounds how many blocking traces may run at
	// once — the admission gate's default capacity.
	defaultTraceConcurrency = 16
)

// Config holds the tunables for an API instance. Zero-value fields fall
// back to the defaults above.
type Config struct {
	// Concurrency is the admission gate's capacity.
	Concurrency int
	// Timeout is the default per-trace wall-clock budget, overridable per
	// request via TraceConfig.Timeout.
	Timeout time.Duration
	// Reexec is the default historical-state reconstruction depth.
	Reexec uint64
	// EnableScriptedTracer feature-gates the goja-backed scripted tracer.
	// Scripted tracers run caller-supplied code; disabling this is a
	// deployment's call, not a compile-time one.
	EnableScriptedTracer bool
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = defaultTraceTimeout
	}
	if c.Reexec == 0 {
		c.Reexec = defaultTraceReexec
	}
	if c.Concurrency == 0 {
		c.Concurrency = defaultTraceConcurrency
	}
	return c
}

// TraceConfig holds extra parameters for block/transaction trace calls.
type TraceConfig struct {
	*logger.Config
	Tracer       *string
	TracerConfig json.RawMessage
	Timeout      *string
	Reexec       *uint64
}

// TraceCallConfig adds call-specific overlays on top of TraceConfig, for
// debug_traceCall and debug_traceCallMany.
type TraceCallConfig struct {
	TraceConfig
	StateOverrides *ethapi.StateOverride
	BlockOverrides *ethapi.BlockOverrides
}

// StdTraceConfig holds extra parameters for standard-json trace dumps of
// an entire block, filterable down to a single transaction.
type StdTraceConfig struct {
	logger.Config
	Reexec *uint64
	TxHash common.Hash
}

// API exposes the debug namespace's tracing methods. It is immutable after
// construction and cheap to copy by reference into the closures dispatched
// to the blocking worker pool — see DESIGN.md "C1/C9".
type API struct {
	backend Backend
	gate    *admissionGate
	cfg     Config
	log     log.Logger
}

// NewAPI constructs a tracing API bound to backend with default tunables.
func NewAPI(backend Backend) *API {
	return NewAPIWithConfig(backend, Config{})
}

// NewAPIWithConfig constructs a tracing API with explicit tunables.
func NewAPIWithConfig(backend Backend, cfg Config) *API {
	cfg = cfg.withDefaults()
	logger := log.New("module", "debugtrace")
	return &API{
		backend: backend,
		gate:    newAdmissionGate(cfg.Concurrency, logger),
		cfg:     cfg,
		log:     logger,
	}
}
