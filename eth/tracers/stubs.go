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
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// BadBlockArgs mirrors the shape callers of debug_getBadBlocks expect back:
// the block's RLP alongside the reason it was rejected. This package never
// tracks bad blocks itself — that bookkeeping lives in the chain store the
// Backend wraps — so the list is always empty.
type BadBlockArgs struct {
	Hash  string        `json:"hash"`
	Block hexutil.Bytes `json:"rlp"`
	Error string        `json:"error"`
}

// GetBadBlocks returns the chain's recently rejected blocks. This engine
// has no bad-block store of its own; it always reports none.
func (api *API) GetBadBlocks(ctx context.Context) ([]*BadBlockArgs, error) {
	return []*BadBlockArgs{}, nil
}

// Preimage returns the preimage for a keccak256 digest, if the node kept
// one. Preimage retention is a state-store policy this package does not
// configure or query; compatibility clients get an empty answer rather
// than a transport error.
func (api *API) Preimage(ctx context.Context, hash hexutil.Bytes) (hexutil.Bytes, error) {
	return hexutil.Bytes{}, nil
}

// SetHead rewinds the chain head to number. This package only ever reads
// chain state through Backend; it has no authority to mutate the canonical
// chain, so the request is reported as an internal error rather than
// silently ignored.
func (api *API) SetHead(ctx context.Context, number hexutil.Uint64) error {
	return internalError("setHead: not implemented by the tracing service")
}

// StartCPUProfile, StopCPUProfile, WriteMemProfile, GcStats and
// FreeOSMemory are runtime-profiling compatibility endpoints carried over
// from the wider debug namespace. They have no bearing on tracing and are
// kept only so a client probing the full debug surface does not trip over
// a missing method.
func (api *API) StartCPUProfile(ctx context.Context, file string) error { return nil }
func (api *API) StopCPUProfile(ctx context.Context) error               { return nil }
func (api *API) WriteMemProfile(ctx context.Context, file string) error { return nil }
func (api *API) FreeOSMemory(ctx context.Context)                       {}
func (api *API) SetGCPercent(ctx context.Context, v int) int            { return v }

// GCStats reports runtime garbage-collector statistics. The tracing
// service does not instrument the runtime itself, so every field is
// reported as its zero value.
type GCStats struct {
	LastGC     int64   `json:"lastGC"`
	NumGC      int64   `json:"numGC"`
	PauseTotal int64   `json:"pauseTotal"`
	Pause      []int64 `json:"pause,omitempty"`
	PauseEnd   []int64 `json:"pauseEnd,omitempty"`
}

func (api *API) GcStats(ctx context.Context) (*GCStats, error) {
	return &GCStats{}, nil
}

// AncientInspect reports per-table size statistics of the frozen ancient
// store. Ancient-store layout is entirely a ChainDb concern; this package
// only ever opens it for reads through Backend, so it is reported empty.
func (api *API) AncientInspect(ctx context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

// Chaindbcompact and Chaindbproperty query/administer the underlying
// key-value store directly. Both are compatibility-only — they do not
// touch anything the replay kernel, the speculative executor, or the
// witness accumulator depend on.
func (api *API) Chaindbcompact(ctx context.Context) error { return nil }
func (api *API) Chaindbproperty(ctx context.Context, property string) (string, error) {
	return "", nil
}

// SeedHash is a long-deprecated Ethash compatibility endpoint, kept only
// because some old clients still probe for it.
func (api *API) SeedHash(ctx context.Context, number uint64) (string, error) {
	return "", internalError("seedHash: not implemented by the tracing service")
}

// StandardTraceBlockToFile mirrors debug_standardTraceBlockToFile: dumping
// one standard-json trace file per transaction of the named block. This
// package's Backend never exposes a local filesystem to write those files
// through (every result here is returned to the caller, not persisted), so
// the request is reported as an internal error rather than silently
// returning an empty file list.
func (api *API) StandardTraceBlockToFile(ctx context.Context, hash common.Hash, config *StdTraceConfig) ([]string, error) {
	api.log.Warn("standardTraceBlockToFile: not implemented by the tracing service", "hash", hash)
	return nil, internalError("standardTraceBlockToFile: not implemented by the tracing service")
}
