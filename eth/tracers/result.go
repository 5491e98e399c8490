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
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ethtrace/debugtrace/internal/ethapi"
)

// GethTrace is the opaque, tracer-specific frame one transaction trace
// produces. Its concrete shape depends entirely on which tracer ran; the
// RPC layer forwards it to the caller untouched.
type GethTrace = json.RawMessage

// TraceResult is the per-transaction outcome of a block replay: either the
// tracer's frame tagged with the originating transaction hash, or an error
// message tagged the same way. A transaction that reverted inside the EVM
// is still a Success — Error here means the replay itself could not be
// carried out.
type TraceResult struct {
	TxHash common.Hash `json:"txHash"`
	Result GethTrace   `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Bundle is one group of synthetic transactions sharing a block-override,
// replayed atop a common base in traceCallMany.
type Bundle struct {
	Transactions  []ethapi.TransactionArgs `json:"transactions"`
	BlockOverride *ethapi.BlockOverrides   `json:"blockOverride"`
}

// StateContext identifies the replay prefix within a target block that
// traceCallMany's bundles build on top of. A nil BlockNumber defaults to
// latest; a nil TxIndex defaults to the full block (index == len(txs)).
type StateContext struct {
	BlockNumber *rpc.BlockNumberOrHash `json:"blockNumber"`
	TxIndex     *hexutil.Uint          `json:"txIndex"`
}
