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

// Package debugtrace wires a debug tracing RPC service on top of any
// client backend implementing tracers.Backend.
package debugtrace

import (
	"github.com/ethtrace/debugtrace/eth/tracers"

	// Blank-imported so their init() functions populate the tracer
	// registry (see tracers.Register). This package never calls into
	// native or js directly — it only needs their registration side
	// effect, the same blank-import pattern go-ethereum's own cmd/geth
	// uses to wire up its tracer families.
	_ "github.com/ethtrace/debugtrace/eth/tracers/js"
	_ "github.com/ethtrace/debugtrace/eth/tracers/native"
)

// NewAPI constructs the debug namespace's tracing API bound to backend,
// with default tunables.
func NewAPI(backend tracers.Backend) *tracers.API {
	return tracers.NewAPI(backend)
}

// NewAPIWithConfig constructs the debug namespace's tracing API with
// explicit tunables.
func NewAPIWithConfig(backend tracers.Backend, cfg tracers.Config) *tracers.API {
	return tracers.NewAPIWithConfig(backend, cfg)
}
