// Copyright 2019 The go-ethereum Authors
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
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/params"

	"github.com/ethtrace/debugtrace/eth/tracers"
)

func init() {
	tracers.Register("4byteTracer", newFourByteTracer)
}

// fourByteTracer counts the number of times a function selector + calldata
// size pair was invoked: a fingerprint of ABI usage across a transaction
// without decoding a single argument.
type fourByteTracer struct {
	mu  sync.Mutex
	ids map[string]int
}

func newFourByteTracer(tctx *tracers.Context, cfgRaw json.RawMessage, statedb *state.StateDB, chainConfig *params.ChainConfig) (*tracers.Tracer, error) {
	t := &fourByteTracer{ids: make(map[string]int)}
	return &tracers.Tracer{
		Hooks:     &tracing.Hooks{OnEnter: t.onEnter},
		GetResult: t.getResult,
		Stop:      t.stop,
	}, nil
}

func (t *fourByteTracer) onEnter(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
	if len(input) < 4 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	key := fmt.Sprintf("%#x-%d", input[:4], len(input)-4)
	t.ids[key]++
}

func (t *fourByteTracer) getResult() (json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return json.Marshal(t.ids)
}

func (t *fourByteTracer) stop(err error) {}
