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

package tracers

import (
	"context"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/semaphore"
)

// admissionGate bounds the number of blocking EVM replays running at once.
// EVM replay is CPU-bound; without a cap, a burst of trace requests would
// starve the async reactor and blow up memory on simultaneous cache
// overlays. This is the Go analogue of a counting permit held for the
// lifetime of one trace: see reth's tokio Semaphore-backed
// BlockingTaskGuard in original_source's debug.rs.
type admissionGate struct {
	sem *semaphore.Weighted
	log log.Logger
}

func newAdmissionGate(capacity int, logger log.Logger) *admissionGate {
	if capacity <= 0 {
		capacity = 1
	}
	return &admissionGate{sem: semaphore.NewWeighted(int64(capacity)), log: logger}
}

// permit is held for the duration of one blocking trace. release is
// idempotent-safe to call via defer on every exit path.
type permit struct {
	gate *admissionGate
}

func (p *permit) release() {
	if p == nil || p.gate == nil {
		return
	}
	p.gate.sem.Release(1)
	p.gate = nil
}

// acquire blocks until a slot is free or ctx is cancelled. Cancellation
// before a slot frees up surrenders the wait without consuming a permit.
func (g *admissionGate) acquire(ctx context.Context) (*permit, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		g.log.Warn("trace permit acquisition cancelled", "err", err)
		return nil, err
	}
	g.log.Debug("trace permit acquired")
	return &permit{gate: g}, nil
}
