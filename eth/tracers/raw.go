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
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/rpc"
)

// GetRawHeader returns the RLP encoding of the header identified by
// blockNrOrHash, or the empty byte string if it cannot be resolved — list-
// shaped raw accessors never error on a missing selector.
func (api *API) GetRawHeader(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	header, err := api.headerByNumberOrHash(ctx, blockNrOrHash)
	if err != nil || header == nil {
		return hexutil.Bytes{}, nil
	}
	return rlp.EncodeToBytes(header)
}

// GetRawBlock returns the RLP encoding of the block identified by
// blockNrOrHash. Unlike GetRawHeader, a missing block is an error: a block
// is a point lookup a caller expects to exist.
func (api *API) GetRawBlock(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	block, err := api.blockByNumberOrHash(ctx, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(block)
}

// GetRawTransaction returns the envelope-encoded transaction identified by
// hash, or nil if it is not part of the canonical chain. For pooled
// EIP-4844 transactions, the blob sidecar — when the provider still holds
// one — travels along inside the same encoding.
func (api *API) GetRawTransaction(ctx context.Context, hash common.Hash) (hexutil.Bytes, error) {
	tx, _, _, _, err := api.backend.GetTransaction(ctx, hash)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, nil
	}
	return tx.MarshalBinary()
}

// GetRawTransactions returns every transaction of blockNrOrHash's block,
// envelope-encoded in body order. An empty list, not an error, is returned
// for an unresolved selector.
func (api *API) GetRawTransactions(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) ([]hexutil.Bytes, error) {
	block, err := api.blockByNumberOrHash(ctx, blockNrOrHash)
	if err != nil || block == nil {
		return []hexutil.Bytes{}, nil
	}
	txs := block.Transactions()
	out := make([]hexutil.Bytes, len(txs))
	for i, tx := range txs {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return out, nil
}

// GetRawReceipts returns blockNrOrHash's receipts, bloom-augmented and
// envelope-encoded in the same order as GetRawTransactions.
func (api *API) GetRawReceipts(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) ([]hexutil.Bytes, error) {
	block, err := api.blockByNumberOrHash(ctx, blockNrOrHash)
	if err != nil || block == nil {
		return []hexutil.Bytes{}, nil
	}
	receipts := rawdb.ReadReceipts(api.backend.ChainDb(), block.Hash(), block.NumberU64(), block.Time(), api.backend.ChainConfig())
	if receipts == nil {
		return []hexutil.Bytes{}, nil
	}
	out := make([]hexutil.Bytes, len(receipts))
	for i, receipt := range receipts {
		raw, err := receipt.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return out, nil
}

// headerByNumberOrHash resolves either discriminant of
// rpc.BlockNumberOrHash directly to a header, without loading the full
// block body — GetRawHeader's only caller needs nothing more.
func (api *API) headerByNumberOrHash(ctx context.Context, sel rpc.BlockNumberOrHash) (*types.Header, error) {
	if hash, ok := sel.Hash(); ok {
		return api.backend.HeaderByHash(ctx, hash)
	}
	if number, ok := sel.Number(); ok {
		return api.backend.HeaderByNumber(ctx, number)
	}
	return nil, invalidParams("invalid block selector")
}
