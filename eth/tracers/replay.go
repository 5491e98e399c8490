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
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ethtrace/debugtrace/eth/tracers/logger"
)

var errTraceTimeout = errors.New("trace timed out")

// TraceBlockByHash replays every transaction of the block identified by
// hash, returning one TraceResult per transaction in block order.
func (api *API) TraceBlockByHash(ctx context.Context, hash common.Hash, config *TraceConfig) ([]*TraceResult, error) {
	block, err := api.blockByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	return api.traceBlock(ctx, block, config)
}

// TraceBlockByNumber replays every transaction of the block identified by
// number or tag.
func (api *API) TraceBlockByNumber(ctx context.Context, number rpc.BlockNumber, config *TraceConfig) ([]*TraceResult, error) {
	block, err := api.blockByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return api.traceBlock(ctx, block, config)
}

// TraceBlock replays every transaction of a caller-supplied RLP-encoded
// block, resolved against the parent the caller claims it was sealed on.
func (api *API) TraceBlock(ctx context.Context, blob hexutil.Bytes, config *TraceConfig) ([]*TraceResult, error) {
	var block types.Block
	if err := rlp.DecodeBytes(blob, &block); err != nil {
		return nil, fmt.Errorf("could not decode block: %v", err)
	}
	return api.traceBlock(ctx, &block, config)
}

// TraceTransaction replays the prefix of hash's block up to and including
// hash, returning only that transaction's frame. Prefix equivalence (see
// testable property 2) holds against TraceBlockByHash's k-th element for
// the same tracer.
func (api *API) TraceTransaction(ctx context.Context, hash common.Hash, config *TraceConfig) (GethTrace, error) {
	tx, blockHash, blockNumber, index, err := api.backend.GetTransaction(ctx, hash)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, errTxNotFound
	}
	if blockNumber == 0 {
		return nil, errGenesisTraceable
	}
	block, err := api.blockByHash(ctx, blockHash)
	if err != nil {
		return nil, err
	}

	permit, err := api.gate.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer permit.release()

	reexec := api.cfg.Reexec
	if config != nil && config.Reexec != nil {
		reexec = *config.Reexec
	}
	msg, blockCtx, statedb, release, err := api.backend.StateAtTransaction(ctx, block, int(index), reexec)
	if err != nil {
		return nil, err
	}
	defer release()

	txctx := &Context{
		BlockHash:   blockHash,
		BlockNumber: block.Number(),
		TxIndex:     int(index),
		TxHash:      hash,
	}
	return api.traceTx(ctx, tx, msg, txctx, blockCtx, statedb, config)
}

// traceBlock is the Replay Kernel (C4): it reconstructs block's execution
// environment, acquires a state view pinned to the parent's post-state,
// and deterministically re-applies every transaction in body order,
// committing each transaction's delta before the next runs.
func (api *API) traceBlock(ctx context.Context, block *types.Block, config *TraceConfig) ([]*TraceResult, error) {
	if block.NumberU64() == 0 {
		return nil, errGenesisTraceable
	}
	if len(block.Transactions()) == 0 {
		return []*TraceResult{}, nil
	}

	permit, err := api.gate.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer permit.release()

	parent, err := api.backend.BlockByHash(ctx, block.ParentHash())
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, headerNotFound(block.ParentHash().Hex())
	}
	reexec := api.cfg.Reexec
	if config != nil && config.Reexec != nil {
		reexec = *config.Reexec
	}
	statedb, release, err := api.backend.StateAtBlock(ctx, parent, reexec, nil, true, false)
	if err != nil {
		return nil, err
	}
	defer release()

	return api.traceBlockWithState(ctx, block, statedb, config)
}

// traceBlockWithState replays block's transactions against an
// already-acquired statedb (the parent's post-state), without touching the
// admission gate or the Backend's state lifecycle itself — callers that
// manage their own acquire/release ordering (debug_traceChain's worker
// pool, see chain.go) call this directly instead of traceBlock.
func (api *API) traceBlockWithState(ctx context.Context, block *types.Block, statedb *state.StateDB, config *TraceConfig) ([]*TraceResult, error) {
	txs := block.Transactions()
	if len(txs) == 0 {
		return []*TraceResult{}, nil
	}
	if err := recoverSenders(api.backend.ChainConfig(), block.Number(), block.Time(), txs); err != nil {
		return nil, err
	}

	env := api.envForBlock(block)
	signer := types.MakeSigner(env.chainConfig, block.Number(), block.Time())

	results := make([]*TraceResult, len(txs))
	for i, tx := range txs {
		from, _ := types.Sender(signer, tx)
		msg := &core.Message{
			From:              from,
			To:                tx.To(),
			Nonce:             tx.Nonce(),
			Value:             tx.Value(),
			GasLimit:          tx.Gas(),
			GasPrice:          tx.GasPrice(),
			GasFeeCap:         tx.GasFeeCap(),
			GasTipCap:         tx.GasTipCap(),
			Data:              tx.Data(),
			AccessList:        tx.AccessList(),
			BlobHashes:        tx.BlobHashes(),
			BlobGasFeeCap:     tx.BlobGasFeeCap(),
			SkipAccountChecks: false,
		}
		txctx := &Context{
			BlockHash:   block.Hash(),
			BlockNumber: block.Number(),
			TxIndex:     i,
			TxHash:      tx.Hash(),
		}
		frame, traceErr := api.traceTx(ctx, tx, msg, txctx, env.blockCtx, statedb, config)
		if traceErr != nil {
			return nil, traceErr
		}
		results[i] = &TraceResult{TxHash: tx.Hash(), Result: frame}

		// traceTx has already applied tx to statedb; finalise its delta so
		// the next transaction runs on top of it.
		if i < len(txs)-1 {
			statedb.Finalise(env.chainConfig.IsEIP158(block.Number()))
		}
	}
	return results, nil
}

// traceTx executes msg under the inspector chosen by config, applying the
// per-trace wall-clock budget. It is the single point both the block-replay
// path and the transaction path above funnel through. It always constructs
// named tracers with pathTransaction, including for the synthetic calls of
// TraceCall and TraceCallMany, so flatCallTracer is built on those paths too.
func (api *API) traceTx(ctx context.Context, tx *types.Transaction, msg *core.Message, txctx *Context, blockCtx vm.BlockContext, statedb *state.StateDB, config *TraceConfig) (GethTrace, error) {
	chainConfig := api.backend.ChainConfig()

	var (
		tracer *Tracer
		err    error
	)
	if config != nil && config.Tracer != nil && *config.Tracer != "" {
		tracer, err = New(*config.Tracer, txctx, config.TracerConfig, statedb, chainConfig, pathTransaction, api.cfg.EnableScriptedTracer)
		if err != nil {
			return nil, err
		}
	} else {
		// No tracer requested: the default is Structlog, whose knobs live
		// inline on TraceConfig (disableStack, limit, ...) rather than in
		// the opaque TracerConfig bag.
		lcfg := new(logger.Config)
		if config != nil && config.Config != nil {
			lcfg = config.Config
		}
		l := logger.NewStructLogger(lcfg)
		tracer = &Tracer{Hooks: l.Hooks(), GetResult: l.GetResult, Stop: l.Stop}
	}

	timeout := api.cfg.Timeout
	if config != nil && config.Timeout != nil {
		d, err := time.ParseDuration(*config.Timeout)
		if err != nil {
			return nil, err
		}
		timeout = d
	}
	txCtx := core.NewEVMTxContext(msg)
	statedb.SetTxContext(txctx.TxHash, txctx.TxIndex)
	vmenv := vm.NewEVM(blockCtx, txCtx, statedb, chainConfig, vm.Config{Tracer: tracer.Hooks})

	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		<-deadlineCtx.Done()
		if errors.Is(deadlineCtx.Err(), context.DeadlineExceeded) {
			tracer.Stop(errTraceTimeout)
			vmenv.Cancel()
		}
	}()

	if tracer.OnTxStart != nil {
		tracer.OnTxStart(vmenv.GetVMContext(), tx, msg.From)
	}
	result, err := core.ApplyMessage(vmenv, msg, new(core.GasPool).AddGas(msg.GasLimit))
	if tracer.OnTxEnd != nil {
		var receipt *types.Receipt
		if result != nil {
			receipt = &types.Receipt{GasUsed: result.UsedGas}
			if result.Err != nil {
				receipt.Status = types.ReceiptStatusFailed
			} else {
				receipt.Status = types.ReceiptStatusSuccessful
			}
		}
		tracer.OnTxEnd(receipt, err)
	}
	if err != nil {
		return nil, fmt.Errorf("tracing failed: %w", err)
	}
	return tracer.GetResult()
}
