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

// Package ethapi holds the request/response shapes shared between the RPC
// transport and the tracing engine: synthetic call arguments and the state
// and block overlays a speculative execution may apply. It mirrors
// go-ethereum's internal/ethapi package, trimmed to what tracing needs.
package ethapi

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// TransactionArgs represents the arguments to construct a new transaction
// or a synthetic message for a call/trace.
type TransactionArgs struct {
	From                 *common.Address `json:"from"`
	To                   *common.Address `json:"to"`
	Gas                  *hexutil.Uint64 `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                *hexutil.Uint64 `json:"nonce"`

	Data  *hexutil.Bytes `json:"data"`
	Input *hexutil.Bytes `json:"input"`

	AccessList *types.AccessList `json:"accessList,omitempty"`
	ChainID    *hexutil.Big      `json:"chainId,omitempty"`

	BlobFeeCap *hexutil.Big   `json:"maxFeePerBlobGas,omitempty"`
	BlobHashes []common.Hash  `json:"blobVersionedHashes,omitempty"`
}

// data returns the calldata, preferring Input over the deprecated Data field.
func (args *TransactionArgs) data() []byte {
	if args.Input != nil {
		return *args.Input
	}
	if args.Data != nil {
		return *args.Data
	}
	return nil
}

// ToMessage converts the transaction arguments into a synthetic EVM message
// runnable against the given base fee and gas cap. An unset gas value falls
// back to the gas cap, mirroring debug_traceCall's lax gas estimation.
func (args *TransactionArgs) ToMessage(globalGasCap uint64, baseFee *big.Int) (*core.Message, error) {
	if args.Gas == nil && globalGasCap == 0 {
		return nil, errors.New("gas must be specified")
	}
	var from common.Address
	if args.From != nil {
		from = *args.From
	}
	gas := globalGasCap
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	}
	if globalGasCap != 0 && globalGasCap < gas {
		gas = globalGasCap
	}
	value := new(big.Int)
	if args.Value != nil {
		value = args.Value.ToInt()
	}
	var (
		gasPrice  *big.Int
		gasFeeCap *big.Int
		gasTipCap *big.Int
	)
	if baseFee == nil {
		gasPrice = big.NewInt(0)
		if args.GasPrice != nil {
			gasPrice = args.GasPrice.ToInt()
		}
		gasFeeCap, gasTipCap = gasPrice, gasPrice
	} else {
		if args.GasPrice != nil {
			gasPrice = args.GasPrice.ToInt()
			gasFeeCap, gasTipCap = gasPrice, gasPrice
		} else {
			gasFeeCap = big.NewInt(0)
			if args.MaxFeePerGas != nil {
				gasFeeCap = args.MaxFeePerGas.ToInt()
			}
			gasTipCap = big.NewInt(0)
			if args.MaxPriorityFeePerGas != nil {
				gasTipCap = args.MaxPriorityFeePerGas.ToInt()
			}
			gasPrice = new(big.Int)
			if gasFeeCap.BitLen() > 0 || gasTipCap.BitLen() > 0 {
				gasPrice = math.BigMin(new(big.Int).Add(gasTipCap, baseFee), gasFeeCap)
			}
		}
	}
	var accessList types.AccessList
	if args.AccessList != nil {
		accessList = *args.AccessList
	}
	return &core.Message{
		From:              from,
		To:                args.To,
		Value:             value,
		GasLimit:          gas,
		GasPrice:          gasPrice,
		GasFeeCap:         gasFeeCap,
		GasTipCap:         gasTipCap,
		Data:              args.data(),
		AccessList:        accessList,
		SkipAccountChecks: true,
	}, nil
}

// OverrideAccount describes the state modifications to apply to a single
// account before execution. State replaces all storage; StateDiff merges
// individual slots. Supplying both is an invalid configuration — the
// replay kernel rejects it before applying either.
type OverrideAccount struct {
	Nonce     *hexutil.Uint64              `json:"nonce"`
	Code      *hexutil.Bytes               `json:"code"`
	Balance   **hexutil.Big                `json:"balance"`
	State     *map[common.Hash]common.Hash `json:"state"`
	StateDiff *map[common.Hash]common.Hash `json:"stateDiff"`
}

// StateOverride is a set of per-account overrides, applied once before the
// first transaction of a speculative execution.
type StateOverride map[common.Address]OverrideAccount

// Apply writes every account override into statedb. Supplying both State
// and StateDiff for the same account is rejected outright — one replaces
// the account's storage wholesale, the other merges individual slots, and
// applying both in sequence would make the result order-dependent.
func (diff *StateOverride) Apply(statedb *state.StateDB) error {
	if diff == nil {
		return nil
	}
	for addr, account := range *diff {
		if account.State != nil && account.StateDiff != nil {
			return fmt.Errorf("account %s has both 'state' and 'stateDiff'", addr.Hex())
		}
		if !statedb.Exist(addr) {
			statedb.CreateAccount(addr)
		}
		if account.Balance != nil {
			balance, _ := uint256.FromBig((*account.Balance).ToInt())
			statedb.SetBalance(addr, balance, tracing.BalanceChangeUnspecified)
		}
		if account.Nonce != nil {
			statedb.SetNonce(addr, uint64(*account.Nonce))
		}
		if account.Code != nil {
			statedb.SetCode(addr, *account.Code)
		}
		// Replace entire state if caller requires.
		if account.State != nil {
			statedb.SetStorage(addr, *account.State)
		}
		// Apply individual state overrides on top, carefully handling
		// the case where both Code and State are set.
		if account.StateDiff != nil {
			for key, value := range *account.StateDiff {
				statedb.SetState(addr, key, value)
			}
		}
	}
	return nil
}

// BlockOverrides customizes the block environment a synthetic call or
// bundle executes under.
type BlockOverrides struct {
	Number      *hexutil.Big    `json:"number"`
	Time        *hexutil.Uint64 `json:"time"`
	GasLimit    *hexutil.Uint64 `json:"gasLimit"`
	FeeRecipient *common.Address `json:"feeRecipient"`
	PrevRandao  *common.Hash    `json:"prevRandao"`
	BaseFee     *hexutil.Big    `json:"baseFeePerGas"`
}

// Apply mutates blockCtx in place according to the overrides that were set.
func (o *BlockOverrides) Apply(blockCtx *vm.BlockContext) {
	if o == nil {
		return
	}
	if o.Number != nil {
		blockCtx.BlockNumber = o.Number.ToInt()
	}
	if o.Time != nil {
		blockCtx.Time = uint64(*o.Time)
	}
	if o.GasLimit != nil {
		blockCtx.GasLimit = uint64(*o.GasLimit)
	}
	if o.FeeRecipient != nil {
		blockCtx.Coinbase = *o.FeeRecipient
	}
	if o.PrevRandao != nil {
		blockCtx.Random = o.PrevRandao
	}
	if o.BaseFee != nil {
		blockCtx.BaseFee = o.BaseFee.ToInt()
	}
}

// ChainIDOrDefault returns the explicit chain id if set, else the chain's.
func (args *TransactionArgs) ChainIDOrDefault(cfg *params.ChainConfig) *big.Int {
	if args.ChainID != nil {
		return args.ChainID.ToInt()
	}
	return cfg.ChainID
}
