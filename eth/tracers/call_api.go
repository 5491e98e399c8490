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

	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ethtrace/debugtrace/internal/ethapi"
)

// bundleAdvanceTime is the synthetic per-bundle clock advance traceCallMany
// applies between bundles (testable property 4: bundle time advance).
const bundleAdvanceTime = 12

// TraceCall is the Speculative Executor's (C6) single-transaction entry
// point. at defaults to latest; both state and block overrides are applied
// before the synthetic transaction runs. Unlike eth_call, base-fee checks
// stay enabled (vm.Config.NoBaseFee is never set here).
func (api *API) TraceCall(ctx context.Context, args ethapi.TransactionArgs, at rpc.BlockNumberOrHash, config *TraceCallConfig) (GethTrace, error) {
	if at.BlockNumber == nil && at.BlockHash == nil {
		latest := rpc.LatestBlockNumber
		at = rpc.BlockNumberOrHash{BlockNumber: &latest}
	}
	block, err := api.blockByNumberOrHash(ctx, at)
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
	statedb, release, err := api.backend.StateAtBlock(ctx, block, reexec, nil, true, false)
	if err != nil {
		return nil, err
	}
	defer release()

	env := api.envForBlock(block)
	var traceConfig *TraceConfig
	if config != nil {
		if config.BlockOverrides != nil {
			config.BlockOverrides.Apply(&env.blockCtx)
		}
		if config.StateOverrides != nil {
			if err := config.StateOverrides.Apply(statedb); err != nil {
				return nil, invalidParams("%v", err)
			}
		}
		traceConfig = &config.TraceConfig
	}

	msg, err := args.ToMessage(api.backend.RPCGasCap(), env.blockCtx.BaseFee)
	if err != nil {
		return nil, err
	}
	tx := syntheticTx(msg)
	txctx := &Context{
		BlockHash:   block.Hash(),
		BlockNumber: block.Number(),
		TxIndex:     len(block.Transactions()),
		TxHash:      tx.Hash(),
	}
	return api.traceTx(ctx, tx, msg, txctx, env.blockCtx, statedb, traceConfig)
}

// TraceCallMany is the Speculative Executor's bundle entry point. Every
// bundle's transactions build on a common base resolved from stateCtx; the
// state overrides, if any, apply only to the first transaction of the
// first bundle (testable property 5).
func (api *API) TraceCallMany(ctx context.Context, bundles []Bundle, stateCtx *StateContext, config *TraceCallConfig) ([][]GethTrace, error) {
	if len(bundles) == 0 {
		return nil, invalidParams("bundles are empty.")
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
	statedb, blockCtx, block, release, err := api.baseForStateContext(ctx, stateCtx, reexec)
	if err != nil {
		return nil, err
	}
	defer release()

	chainConfig := api.backend.ChainConfig()
	var traceConfig *TraceConfig
	if config != nil {
		traceConfig = &config.TraceConfig
		if config.StateOverrides != nil {
			if err := config.StateOverrides.Apply(statedb); err != nil {
				return nil, invalidParams("%v", err)
			}
		}
	}

	results := make([][]GethTrace, len(bundles))
	for b, bundle := range bundles {
		if bundle.BlockOverride != nil {
			bundle.BlockOverride.Apply(&blockCtx)
		}
		frames := make([]GethTrace, len(bundle.Transactions))
		for i, args := range bundle.Transactions {
			msg, err := args.ToMessage(api.backend.RPCGasCap(), blockCtx.BaseFee)
			if err != nil {
				return nil, err
			}
			tx := syntheticTx(msg)
			txctx := &Context{
				BlockHash:   block.Hash(),
				BlockNumber: blockCtx.BlockNumber,
				TxIndex:     i,
				TxHash:      tx.Hash(),
			}
			frame, err := api.traceTx(ctx, tx, msg, txctx, blockCtx, statedb, traceConfig)
			if err != nil {
				return nil, err
			}
			frames[i] = frame

			// traceTx has already applied msg to statedb; finalise its delta
			// so the next transaction runs on top of it.
			if i < len(bundle.Transactions)-1 || b < len(bundles)-1 {
				statedb.Finalise(chainConfig.IsEIP158(blockCtx.BlockNumber))
			}
		}
		results[b] = frames

		blockCtx.BlockNumber = new(big.Int).Add(blockCtx.BlockNumber, big.NewInt(1))
		blockCtx.Time += bundleAdvanceTime
	}
	return results, nil
}

// baseForStateContext resolves the replay-prefix base state and block
// context stateCtx identifies (see TraceCallMany's contract): the
// post-block state directly when the index is the full transaction count
// of a non-pending block, otherwise the parent state replayed up to index.
// A pending block with the full transaction count is rejected with
// errPendingNotTraceable.
func (api *API) baseForStateContext(ctx context.Context, stateCtx *StateContext, reexec uint64) (*state.StateDB, vm.BlockContext, *types.Block, StateReleaseFunc, error) {
	latest := rpc.LatestBlockNumber
	at := rpc.BlockNumberOrHash{BlockNumber: &latest}
	if stateCtx != nil && stateCtx.BlockNumber != nil {
		at = *stateCtx.BlockNumber
	}
	block, err := api.blockByNumberOrHash(ctx, at)
	if err != nil {
		return nil, vm.BlockContext{}, nil, nil, err
	}

	txCount := len(block.Transactions())
	idx := txCount
	if stateCtx != nil && stateCtx.TxIndex != nil {
		idx = int(*stateCtx.TxIndex)
	}

	if idx == txCount {
		if number, ok := at.Number(); ok && number == rpc.PendingBlockNumber {
			// Open question #2: pending state cannot be materialized from
			// a pure selector.
			return nil, vm.BlockContext{}, nil, nil, errPendingNotTraceable
		}
		statedb, release, err := api.backend.StateAtBlock(ctx, block, reexec, nil, true, false)
		if err != nil {
			return nil, vm.BlockContext{}, nil, nil, err
		}
		env := api.envForBlock(block)
		// The bundle base sits one block past the fully-replayed target:
		// advance once before any bundle runs, same rule as the
		// inter-bundle advance.
		env.blockCtx.BlockNumber = new(big.Int).Add(env.blockCtx.BlockNumber, big.NewInt(1))
		env.blockCtx.Time += bundleAdvanceTime
		return statedb, env.blockCtx, block, release, nil
	}

	if idx < 0 || idx > txCount {
		return nil, vm.BlockContext{}, nil, nil, invalidParams("transaction index %d out of range for block %s", idx, block.Hash().Hex())
	}
	_, blockCtx, statedb, release, err := api.backend.StateAtTransaction(ctx, block, idx, reexec)
	if err != nil {
		return nil, vm.BlockContext{}, nil, nil, err
	}
	return statedb, blockCtx, block, release, nil
}

// syntheticTx wraps a synthetic call's message in an unsigned transaction
// envelope purely so inspectors that read From/To/Value/Input off a
// *types.Transaction (callTracer, 4byteTracer) have something to read —
// it is never submitted or hashed against a signer.
func syntheticTx(msg *core.Message) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    msg.Nonce,
		To:       msg.To,
		Value:    msg.Value,
		Gas:      msg.GasLimit,
		GasPrice: msg.GasPrice,
		Data:     msg.Data,
	})
}
