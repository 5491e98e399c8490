// Copyright 2024 The go-ethereum Authors
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
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/rpc"
)

// AccountSummary is the post-execution snapshot of one account recorded in
// a HashedStateSet: enough to re-derive the account's trie leaf.
type AccountSummary struct {
	Balance  *big.Int
	Nonce    uint64
	CodeHash common.Hash
}

// HashedStateSet is the hashed-state buffer the Witness Accumulator (C7)
// builds while walking a block replay's touched accounts and storage
// slots: every key is the keccak256 of the raw address or slot, never the
// raw value itself — that is what the provider's trie layer indexes by.
type HashedStateSet struct {
	Accounts  map[common.Hash]*AccountSummary
	Storage   map[common.Hash]map[common.Hash]common.Hash
	Destructs map[common.Hash]bool
}

func newHashedStateSet() *HashedStateSet {
	return &HashedStateSet{
		Accounts:  make(map[common.Hash]*AccountSummary),
		Storage:   make(map[common.Hash]map[common.Hash]common.Hash),
		Destructs: make(map[common.Hash]bool),
	}
}

// ExecutionWitness is the public result of debug_executionWitness: the
// provider-derived witness bytes, plus the preimage map when requested.
// The map is nil (absent), not empty, when preimages were not requested.
type ExecutionWitness struct {
	Witness   hexutil.Bytes               `json:"witness"`
	Preimages map[common.Hash]hexutil.Bytes `json:"preimages,omitempty"`
}

// witnessCollector accumulates touched accounts and storage slots as the
// EVM runs, via the same tracing.Hooks plumbing the Inspector Set uses —
// it is not itself a registered tracer (it is not part of the closed
// Kind family) but reuses the identical state-change hooks.
type witnessCollector struct {
	mu             sync.Mutex
	includePreimage bool
	set            *HashedStateSet
	preimages      map[common.Hash]hexutil.Bytes
}

func newWitnessCollector(includePreimage bool) *witnessCollector {
	c := &witnessCollector{
		includePreimage: includePreimage,
		set:             newHashedStateSet(),
	}
	if includePreimage {
		c.preimages = make(map[common.Hash]hexutil.Bytes)
	}
	return c
}

func (c *witnessCollector) hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnBalanceChange: c.onBalanceChange,
		OnNonceChange:   c.onNonceChange,
		OnCodeChange:    c.onCodeChange,
		OnStorageChange: c.onStorageChange,
	}
}

func (c *witnessCollector) account(addr common.Address) *AccountSummary {
	hashed := crypto.Keccak256Hash(addr.Bytes())
	acc, ok := c.set.Accounts[hashed]
	if !ok {
		acc = &AccountSummary{Balance: new(big.Int)}
		c.set.Accounts[hashed] = acc
		if c.includePreimage {
			if enc, err := rlp.EncodeToBytes(addr); err == nil {
				c.preimages[hashed] = enc
			}
		}
	}
	return acc
}

func (c *witnessCollector) onBalanceChange(addr common.Address, prev, new *big.Int, reason tracing.BalanceChangeReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account(addr).Balance = new
	if reason == tracing.BalanceDecreaseSelfdestruct {
		c.set.Destructs[crypto.Keccak256Hash(addr.Bytes())] = true
	}
}

func (c *witnessCollector) onNonceChange(addr common.Address, prev, new uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account(addr).Nonce = new
}

func (c *witnessCollector) onCodeChange(addr common.Address, prevCodeHash common.Hash, prevCode []byte, codeHash common.Hash, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.account(addr).CodeHash = codeHash
}

func (c *witnessCollector) onStorageChange(addr common.Address, slot common.Hash, prev, new common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hashedAddr := crypto.Keccak256Hash(addr.Bytes())
	c.account(addr) // ensure the account itself is recorded too
	hashedSlot := crypto.Keccak256Hash(slot.Bytes())
	slots, ok := c.set.Storage[hashedAddr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		c.set.Storage[hashedAddr] = slots
	}
	slots[hashedSlot] = new
	if c.includePreimage {
		if enc, err := rlp.EncodeToBytes(slot); err == nil {
			c.preimages[hashedSlot] = enc
		}
	}
}

// ExecutionWitness is the Witness Accumulator's (C7) RPC entry point:
// re-executes tag's block under a state-change-recording overlay, having
// first applied the EIP-4788 beacon-root and EIP-2935 blockhash pre-block
// system calls, then asks the provider for a witness over the resulting
// hashed-state buffer.
func (api *API) ExecutionWitness(ctx context.Context, tag rpc.BlockNumberOrHash, includePreimages bool) (*ExecutionWitness, error) {
	block, err := api.blockByNumberOrHash(ctx, tag)
	if err != nil {
		api.log.Warn("execution witness: block resolution failed", "tag", tag, "err", err)
		return nil, err
	}
	if block.NumberU64() == 0 {
		return nil, errGenesisTraceable
	}
	api.log.Debug("generating execution witness", "number", block.NumberU64(), "hash", block.Hash(), "preimages", includePreimages)

	permit, err := api.gate.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer permit.release()

	txs := block.Transactions()
	if err := recoverSenders(api.backend.ChainConfig(), block.Number(), block.Time(), txs); err != nil {
		return nil, err
	}

	parent, err := api.backend.BlockByHash(ctx, block.ParentHash())
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, headerNotFound(block.ParentHash().Hex())
	}
	statedb, release, err := api.backend.StateAtBlock(ctx, parent, api.cfg.Reexec, nil, true, false)
	if err != nil {
		return nil, err
	}
	defer release()

	env := api.envForBlock(block)
	header := block.Header()
	collector := newWitnessCollector(includePreimages)

	preRoot := parent.Root()

	// EIP-4788/EIP-2935 pre-block system calls, executed ahead of every
	// transaction in the block, exactly as they ran when the block was
	// originally sealed.
	sysEVM := vm.NewEVM(env.blockCtx, vm.TxContext{}, statedb, env.chainConfig, vm.Config{Tracer: collector.hooks()})
	if header.ParentBeaconRoot != nil {
		core.ProcessBeaconBlockRoot(*header.ParentBeaconRoot, sysEVM)
	}
	if env.chainConfig.IsPrague(header.Number, header.Time) {
		core.ProcessParentBlockHash(header.ParentHash, sysEVM)
	}

	signer := types.MakeSigner(env.chainConfig, block.Number(), block.Time())
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
			SkipAccountChecks: true,
		}
		statedb.SetTxContext(tx.Hash(), i)
		vmenv := vm.NewEVM(env.blockCtx, core.NewEVMTxContext(msg), statedb, env.chainConfig, vm.Config{Tracer: collector.hooks()})
		if _, err := core.ApplyMessage(vmenv, msg, new(core.GasPool).AddGas(msg.GasLimit)); err != nil {
			return nil, err
		}
		statedb.Finalise(vmenv.ChainConfig().IsEIP158(block.Number()))
	}

	witnessBytes, err := api.backend.StateWitness(ctx, preRoot, collector.set)
	if err != nil {
		api.log.Error("execution witness: provider failed", "number", block.NumberU64(), "err", err)
		return nil, err
	}
	api.log.Debug("execution witness complete", "number", block.NumberU64(), "bytes", len(witnessBytes))
	return &ExecutionWitness{Witness: witnessBytes, Preimages: collector.preimages}, nil
}
