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
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
)

// environment is the (cfg, blockCtx) pair the EVM is configured with for a
// given block. It must be bit-identical to the snapshot the block was
// originally sealed under — the Replay Kernel relies on that to reproduce
// historical execution deterministically.
type environment struct {
	chainConfig *params.ChainConfig
	blockCtx    vm.BlockContext
}

// blockByNumber resolves an rpc.BlockNumber tag to a sealed block.
func (api *API) blockByNumber(ctx context.Context, number rpc.BlockNumber) (*types.Block, error) {
	block, err := api.backend.BlockByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, headerNotFound(number.String())
	}
	return block, nil
}

// blockByHash resolves a block hash to a sealed block.
func (api *API) blockByHash(ctx context.Context, hash common.Hash) (*types.Block, error) {
	block, err := api.backend.BlockByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, headerNotFound(hash.Hex())
	}
	return block, nil
}

// blockByNumberOrHash resolves either discriminant of rpc.BlockNumberOrHash.
func (api *API) blockByNumberOrHash(ctx context.Context, sel rpc.BlockNumberOrHash) (*types.Block, error) {
	if hash, ok := sel.Hash(); ok {
		return api.blockByHash(ctx, hash)
	}
	if number, ok := sel.Number(); ok {
		return api.blockByNumber(ctx, number)
	}
	return nil, invalidParams("invalid block selector")
}

// chainContext adapts Backend to core.ChainContext, the narrow capability
// the EVM block-context builder needs to resolve ancestor blockhashes and
// the active consensus engine.
type chainContext struct {
	backend Backend
}

func newChainContext(backend Backend) *chainContext {
	return &chainContext{backend: backend}
}

func (c *chainContext) Engine() consensus.Engine {
	return c.backend.Engine()
}

func (c *chainContext) GetHeader(hash common.Hash, number uint64) *types.Header {
	header, err := c.backend.HeaderByHash(context.Background(), hash)
	if err != nil || header == nil || header.Number.Uint64() != number {
		return nil
	}
	return header
}

// envForBlock builds the execution environment under which block was
// originally sealed: the chain-wide configuration and a block context
// derived from its header. It is the deterministic reconstruction the
// Replay Kernel depends on — block's transactions are replayed against it
// in strict order.
func (api *API) envForBlock(block *types.Block) environment {
	api.log.Debug("building execution environment", "number", block.NumberU64(), "hash", block.Hash())
	return api.envForRawHeader(block.Header())
}

// envForRawHeader builds a snapshot from a decoded header alone, used when
// the caller supplies the block directly (debug_traceBlock's rlp path).
func (api *API) envForRawHeader(header *types.Header) environment {
	return environment{
		chainConfig: api.backend.ChainConfig(),
		blockCtx:    core.NewEVMBlockContext(header, newChainContext(api.backend), nil),
	}
}

// recoverSenders resolves the signer of every transaction in txs under the
// fork rules active at (blockNumber, blockTime). Recovery failure anywhere
// in the list fails the whole call: block replay has no per-transaction
// tolerance. Before Homestead the signer applies relaxed s-value rules;
// types.MakeSigner selects that for us from the fork schedule.
func recoverSenders(chainConfig *params.ChainConfig, blockNumber *big.Int, blockTime uint64, txs []*types.Transaction) error {
	signer := types.MakeSigner(chainConfig, blockNumber, blockTime)
	for _, tx := range txs {
		if _, err := types.Sender(signer, tx); err != nil {
			return &InvalidSignatureError{TxHash: tx.Hash().Hex(), Cause: err}
		}
	}
	return nil
}
