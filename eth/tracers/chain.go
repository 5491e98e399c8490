// Copyright 2022 The go-ethereum Authors
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
	"sync"

	"github.com/ethereum/go-ethereum/rpc"
)

// chainTraceThreads bounds how many blocks of a debug_traceChain range hold
// a live parent-state reference at once. The upstream subscription-
// streaming variant of this call belongs to the JSON-RPC transport, which
// this package treats as an external collaborator (see Backend) — callers
// here get the full range back as one batch instead of one notification
// per block.
const chainTraceThreads = 4

// ChainTraceResult is one block's outcome within a debug_traceChain range.
type ChainTraceResult struct {
	Block  uint64         `json:"block"`
	Traces []*TraceResult `json:"traces,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// TraceChain replays every block in (start, end], in ascending order.
// Workers acquire parent state for their block concurrently, up to
// chainTraceThreads in flight, but a stateTracker forces the releases back
// into block-number order — the same release discipline the original
// streaming endpoint applied to keep the underlying state cache from
// thrashing when a later block finishes before an earlier one.
func (api *API) TraceChain(ctx context.Context, start, end rpc.BlockNumber, config *TraceConfig) ([]*ChainTraceResult, error) {
	from, err := api.blockByNumber(ctx, start)
	if err != nil {
		return nil, err
	}
	to, err := api.blockByNumber(ctx, end)
	if err != nil {
		return nil, err
	}
	if from.NumberU64() >= to.NumberU64() {
		return nil, invalidParams("end block (#%d) needs to come after start block (#%d)", to.NumberU64(), from.NumberU64())
	}

	numbers := make([]uint64, 0, to.NumberU64()-from.NumberU64())
	for n := from.NumberU64() + 1; n <= to.NumberU64(); n++ {
		numbers = append(numbers, n)
	}
	results := make([]*ChainTraceResult, len(numbers))

	tracker := newStateTracker(chainTraceThreads, numbers[0])
	var (
		wg   sync.WaitGroup
		sem  = make(chan struct{}, chainTraceThreads)
		once sync.Once
		bail error
	)
	for i, number := range numbers {
		i, number := i, number
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = api.traceChainBlock(ctx, number, config, tracker, &once, &bail)
		}()
	}
	wg.Wait()
	if bail != nil {
		return nil, bail
	}
	return results, nil
}

// traceChainBlock fetches number's parent state, replays its transactions,
// and hands the parent-state release to tracker so it fires only once every
// lower-numbered block's release has already fired.
func (api *API) traceChainBlock(ctx context.Context, number uint64, config *TraceConfig, tracker *stateTracker, once *sync.Once, bail *error) *ChainTraceResult {
	permit, err := api.gate.acquire(ctx)
	if err != nil {
		once.Do(func() { *bail = err })
		tracker.releaseState(number, func() {})
		return nil
	}
	defer permit.release()

	block, err := api.blockByNumber(ctx, rpc.BlockNumber(number))
	if err != nil {
		once.Do(func() { *bail = err })
		tracker.releaseState(number, func() {})
		return nil
	}
	parent, err := api.backend.BlockByHash(ctx, block.ParentHash())
	if err != nil || parent == nil {
		tracker.releaseState(number, func() {})
		return &ChainTraceResult{Block: number, Error: headerNotFound(block.ParentHash().Hex()).Error()}
	}
	statedb, release, err := api.backend.StateAtBlock(ctx, parent, api.cfg.Reexec, nil, true, false)
	if err != nil {
		tracker.releaseState(number, func() {})
		return &ChainTraceResult{Block: number, Error: err.Error()}
	}

	traces, traceErr := api.traceBlockWithState(ctx, block, statedb, config)
	tracker.releaseState(number, release)
	if traceErr != nil {
		return &ChainTraceResult{Block: number, Error: traceErr.Error()}
	}
	return &ChainTraceResult{Block: number, Traces: traces}
}
