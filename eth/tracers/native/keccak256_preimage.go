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

package native

import (
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"

	"github.com/ethtrace/debugtrace/eth/tracers"
)

func init() {
	tracers.Register("keccak256PreimageTracer", newKeccak256PreimageTracer)
}

// keccak256PreimageTracer records, for every KECCAK256 opcode the
// interpreter executes, the digest it produced and the raw bytes that were
// hashed to get there — useful for reconstructing mapping/array storage
// slots whose keys never appear anywhere else in a trace.
type keccak256PreimageTracer struct {
	mu     sync.Mutex
	hashes map[common.Hash]hexutil.Bytes
}

func newKeccak256PreimageTracer(tctx *tracers.Context, cfgRaw json.RawMessage, statedb *state.StateDB, chainConfig *params.ChainConfig) (*tracers.Tracer, error) {
	t := &keccak256PreimageTracer{hashes: make(map[common.Hash]hexutil.Bytes)}
	return &tracers.Tracer{
		Hooks:     &tracing.Hooks{OnOpcode: t.onOpcode},
		GetResult: t.getResult,
		Stop:      t.stop,
	}, nil
}

// onOpcode only cares about KECCAK256; the offset and length it hashed sit
// at the top two stack words, exactly as the interpreter itself reads them
// before dispatching to the opcode.
func (t *keccak256PreimageTracer) onOpcode(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	if vm.OpCode(op) != vm.KECCAK256 {
		return
	}
	stack := scope.StackData()
	if len(stack) < 2 {
		return
	}
	offset := stack[len(stack)-1]
	length := stack[len(stack)-2]

	data := readMemory(scope.MemoryData(), offset.Uint64(), length.Uint64())
	hash := crypto.Keccak256Hash(data)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.hashes[hash] = hexutil.Bytes(data)
}

// readMemory copies [offset, offset+length) out of mem, zero-padding any
// portion that runs past the end — the same convention the EVM's own
// memory reads use for out-of-bounds access.
func readMemory(mem []byte, offset, length uint64) []byte {
	out := make([]byte, length)
	if offset >= uint64(len(mem)) {
		return out
	}
	end := offset + length
	if end > uint64(len(mem)) {
		end = uint64(len(mem))
	}
	copy(out, mem[offset:end])
	return out
}

func (t *keccak256PreimageTracer) getResult() (json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return json.Marshal(t.hashes)
}

func (t *keccak256PreimageTracer) stop(err error) {}
