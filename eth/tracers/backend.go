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
	"github.com/ethereum/go-ethereum/consensus"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
)

// StateReleaseFunc releases a state view acquired from Backend.StateAtBlock
// or StateAtTransaction. It must be invoked exactly once, on every exit
// path, regardless of whether the trace that requested the state
// succeeded, failed, or was cancelled.
type StateReleaseFunc func()

// Backend groups every external collaborator the tracing engine consumes:
// the chain state store, the block/header/receipt provider, the EVM
// configurator/executor, and the trie witness generator. The transport,
// the EVM interpreter itself, trie computation and RLP codecs all live
// behind this interface — this package never constructs them directly.
type Backend interface {
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	HeaderByNumber(ctx context.Context, number rpc.BlockNumber) (*types.Header, error)
	BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error)
	BlockByNumber(ctx context.Context, number rpc.BlockNumber) (*types.Block, error)
	GetTransaction(ctx context.Context, txHash common.Hash) (tx *types.Transaction, blockHash common.Hash, blockNumber uint64, index uint64, err error)

	RPCGasCap() uint64
	ChainConfig() *params.ChainConfig
	Engine() consensus.Engine
	ChainDb() ethdb.Database

	// StateAtBlock returns a state view pinned to the post-state of block,
	// re-executing up to reexec ancestor blocks if the state isn't
	// directly available. The returned release must be called once the
	// caller is done with the view.
	StateAtBlock(ctx context.Context, block *types.Block, reexec uint64, base *state.StateDB, readOnly bool, preferDisk bool) (*state.StateDB, StateReleaseFunc, error)

	// StateAtTransaction returns the state immediately before txIndex in
	// block, along with the execution message and block context needed to
	// run that transaction, by replaying the block's prefix on the
	// parent's post-state.
	StateAtTransaction(ctx context.Context, block *types.Block, txIndex int, reexec uint64) (*core.Message, vm.BlockContext, *state.StateDB, StateReleaseFunc, error)

	// StateWitness asks the trie layer for a state witness sufficient to
	// re-derive the post-state root from the pre-state root, given the
	// hashed-state changes accumulated during a block replay.
	StateWitness(ctx context.Context, preRoot common.Hash, hashedState *HashedStateSet) ([]byte, error)
}
