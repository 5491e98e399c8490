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
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"

	"github.com/ethtrace/debugtrace/eth/tracers"
)

func newTestPrestateTracer(t *testing.T, diffMode bool) *tracers.Tracer {
	t.Helper()
	cfgRaw, err := json.Marshal(PrestateConfig{DiffMode: diffMode})
	require.NoError(t, err)
	tracer, err := newPrestateTracer(&tracers.Context{}, cfgRaw, nil, params.MainnetChainConfig)
	require.NoError(t, err)
	return tracer
}

func TestPrestateTracerPlainModeRecordsStorage(t *testing.T) {
	tracer := newTestPrestateTracer(t, false)
	addr := common.Address{1}
	slot := common.Hash{2}

	tracer.Hooks.OnEnter(0, 0, common.Address{}, addr, nil, 0, nil)
	tracer.Hooks.OnStorageChange(addr, slot, common.Hash{}, common.Hash{9})

	res, err := tracer.GetResult()
	require.NoError(t, err)

	var out prestateResult
	require.NoError(t, json.Unmarshal(res, &out))
	require.Contains(t, out, addr)
	require.Equal(t, common.Hash{}, out[addr].Storage[slot])
}

func TestPrestateTracerDiffModeRecordsPreAndPost(t *testing.T) {
	tracer := newTestPrestateTracer(t, true)
	addr := common.Address{1}
	slot := common.Hash{2}

	tracer.Hooks.OnEnter(0, 0, common.Address{}, addr, nil, 0, nil)
	tracer.Hooks.OnStorageChange(addr, slot, common.Hash{}, common.Hash{9})
	tracer.Hooks.OnTxEnd(nil, nil)

	res, err := tracer.GetResult()
	require.NoError(t, err)

	var out diffResult
	require.NoError(t, json.Unmarshal(res, &out))
	require.Equal(t, common.Hash{}, out.Pre[addr].Storage[slot])
	require.Equal(t, common.Hash{9}, out.Post[addr].Storage[slot])
}

func TestPrestateTracerDiffModeFirstWriteIsPreValue(t *testing.T) {
	tracer := newTestPrestateTracer(t, true)
	addr := common.Address{1}
	slot := common.Hash{2}

	tracer.Hooks.OnEnter(0, 0, common.Address{}, addr, nil, 0, nil)
	tracer.Hooks.OnStorageChange(addr, slot, common.Hash{5}, common.Hash{6})
	tracer.Hooks.OnStorageChange(addr, slot, common.Hash{6}, common.Hash{7})
	tracer.Hooks.OnTxEnd(nil, nil)

	res, err := tracer.GetResult()
	require.NoError(t, err)

	var out diffResult
	require.NoError(t, json.Unmarshal(res, &out))
	require.Equal(t, common.Hash{5}, out.Pre[addr].Storage[slot])
	require.Equal(t, common.Hash{7}, out.Post[addr].Storage[slot])
}
