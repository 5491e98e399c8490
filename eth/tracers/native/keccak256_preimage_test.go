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

package native_test

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/ethtrace/debugtrace/eth/tracers"
	_ "github.com/ethtrace/debugtrace/eth/tracers/native"
)

// mockOpContext implements tracing.OpContext for testing.
type mockOpContext struct {
	memory []byte
	stack  []uint256.Int
}

var _ tracing.OpContext = (*mockOpContext)(nil)

func (m *mockOpContext) MemoryData() []byte         { return m.memory }
func (m *mockOpContext) StackData() []uint256.Int   { return m.stack }
func (m *mockOpContext) Address() common.Address    { return common.Address{} }
func (m *mockOpContext) Caller() common.Address      { return common.Address{} }
func (m *mockOpContext) CallValue() *uint256.Int     { return uint256.NewInt(0) }
func (m *mockOpContext) CallInput() []byte           { return []byte{} }
func (m *mockOpContext) ContractCode() []byte        { return []byte{} }

func newKeccakTracer(t *testing.T) *tracers.Tracer {
	t.Helper()
	tracer, err := tracers.New("keccak256PreimageTracer", &tracers.Context{}, nil, nil, params.MainnetChainConfig, 0, false)
	require.NoError(t, err)
	require.NotNil(t, tracer)
	return tracer
}

func TestKeccak256PreimageTracerCreation(t *testing.T) {
	tracer := newKeccakTracer(t)
	require.NotNil(t, tracer.Hooks)
	require.NotNil(t, tracer.Hooks.OnOpcode)
	require.NotNil(t, tracer.GetResult)
}

func TestKeccak256PreimageTracerInitialResult(t *testing.T) {
	tracer := newKeccakTracer(t)

	result, err := tracer.GetResult()
	require.NoError(t, err)

	var hashes map[common.Hash]hexutil.Bytes
	require.NoError(t, json.Unmarshal(result, &hashes))
	require.Empty(t, hashes)
}

func TestKeccak256PreimageTracerSingleKeccak(t *testing.T) {
	tracer := newKeccakTracer(t)

	testData := []byte("hello world")
	memory := make([]byte, 32)
	copy(memory, testData)

	stack := []uint256.Int{
		*uint256.NewInt(11), // length
		*uint256.NewInt(0),  // offset (top of stack)
	}
	mockScope := &mockOpContext{memory: memory, stack: stack}

	tracer.OnOpcode(0, byte(vm.KECCAK256), 0, 0, mockScope, nil, 0, nil)

	result, err := tracer.GetResult()
	require.NoError(t, err)

	var hashes map[common.Hash]hexutil.Bytes
	require.NoError(t, json.Unmarshal(result, &hashes))

	expectedHash := crypto.Keccak256Hash(testData)
	require.Len(t, hashes, 1)
	require.Contains(t, hashes, expectedHash)
	require.Equal(t, hexutil.Bytes(testData), hashes[expectedHash])
}

func TestKeccak256PreimageTracerMultipleKeccak(t *testing.T) {
	tracer := newKeccakTracer(t)

	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"hello", []byte("hello")},
		{"world", []byte("world")},
		{"long_data", make([]byte, 100)},
	}
	for i := range testCases[3].data {
		testCases[3].data[i] = byte(i % 256)
	}

	expectedHashes := make(map[common.Hash]hexutil.Bytes)
	for _, tc := range testCases {
		memory := make([]byte, max(len(tc.data), 1))
		copy(memory, tc.data)

		stack := []uint256.Int{
			*uint256.NewInt(uint64(len(tc.data))),
			*uint256.NewInt(0),
		}
		mockScope := &mockOpContext{memory: memory, stack: stack}

		tracer.OnOpcode(0, byte(vm.KECCAK256), 0, 0, mockScope, nil, 0, nil)
		expectedHashes[crypto.Keccak256Hash(tc.data)] = hexutil.Bytes(tc.data)
	}

	result, err := tracer.GetResult()
	require.NoError(t, err)

	var hashes map[common.Hash]hexutil.Bytes
	require.NoError(t, json.Unmarshal(result, &hashes))
	require.Equal(t, expectedHashes, hashes)
}

func TestKeccak256PreimageTracerNonKeccakOpcodes(t *testing.T) {
	tracer := newKeccakTracer(t)

	testData := []byte("should not be recorded")
	memory := make([]byte, 32)
	copy(memory, testData)

	stack := []uint256.Int{
		*uint256.NewInt(uint64(len(testData))),
		*uint256.NewInt(0),
	}
	mockScope := &mockOpContext{memory: memory, stack: stack}

	nonKeccakOpcodes := []vm.OpCode{
		vm.ADD, vm.MUL, vm.SUB, vm.DIV, vm.SDIV, vm.MOD, vm.SMOD,
		vm.ADDMOD, vm.MULMOD, vm.EXP, vm.SIGNEXTEND, vm.SLOAD,
		vm.SSTORE, vm.MLOAD, vm.MSTORE, vm.CALL, vm.RETURN,
	}
	for _, opcode := range nonKeccakOpcodes {
		tracer.OnOpcode(0, byte(opcode), 0, 0, mockScope, nil, 0, nil)
	}

	result, err := tracer.GetResult()
	require.NoError(t, err)

	var hashes map[common.Hash]hexutil.Bytes
	require.NoError(t, json.Unmarshal(result, &hashes))
	require.Empty(t, hashes)
}

func TestKeccak256PreimageTracerMemoryOffset(t *testing.T) {
	tracer := newKeccakTracer(t)

	prefix := []byte("prefix_data_")
	testData := []byte("target_data")
	memory := make([]byte, len(prefix)+len(testData)+10)
	copy(memory, prefix)
	copy(memory[len(prefix):], testData)

	stack := []uint256.Int{
		*uint256.NewInt(uint64(len(testData))),
		*uint256.NewInt(uint64(len(prefix))),
	}
	mockScope := &mockOpContext{memory: memory, stack: stack}

	tracer.OnOpcode(0, byte(vm.KECCAK256), 0, 0, mockScope, nil, 0, nil)

	result, err := tracer.GetResult()
	require.NoError(t, err)

	var hashes map[common.Hash]hexutil.Bytes
	require.NoError(t, json.Unmarshal(result, &hashes))

	expectedHash := crypto.Keccak256Hash(testData)
	require.Len(t, hashes, 1)
	require.Contains(t, hashes, expectedHash)
	require.Equal(t, hexutil.Bytes(testData), hashes[expectedHash])
}

func TestKeccak256PreimageTracerMemoryPadding(t *testing.T) {
	tracer := newKeccakTracer(t)

	testData := []byte("short")
	memory := make([]byte, len(testData))
	copy(memory, testData)

	requestedLength := len(testData) + 5
	stack := []uint256.Int{
		*uint256.NewInt(uint64(requestedLength)),
		*uint256.NewInt(0),
	}
	mockScope := &mockOpContext{memory: memory, stack: stack}

	tracer.OnOpcode(0, byte(vm.KECCAK256), 0, 0, mockScope, nil, 0, nil)

	result, err := tracer.GetResult()
	require.NoError(t, err)

	var hashes map[common.Hash]hexutil.Bytes
	require.NoError(t, json.Unmarshal(result, &hashes))

	expectedData := make([]byte, requestedLength)
	copy(expectedData, testData)

	expectedHash := crypto.Keccak256Hash(expectedData)
	require.Len(t, hashes, 1)
	require.Contains(t, hashes, expectedHash)
	require.Equal(t, hexutil.Bytes(expectedData), hashes[expectedHash])
}

func TestKeccak256PreimageTracerDuplicateHashes(t *testing.T) {
	tracer := newKeccakTracer(t)

	testData := []byte("duplicate_test")
	memory := make([]byte, len(testData))
	copy(memory, testData)

	stack := []uint256.Int{
		*uint256.NewInt(uint64(len(testData))),
		*uint256.NewInt(0),
	}
	mockScope := &mockOpContext{memory: memory, stack: stack}

	for i := 0; i < 3; i++ {
		tracer.OnOpcode(0, byte(vm.KECCAK256), 0, 0, mockScope, nil, 0, nil)
	}

	result, err := tracer.GetResult()
	require.NoError(t, err)

	var hashes map[common.Hash]hexutil.Bytes
	require.NoError(t, json.Unmarshal(result, &hashes))

	expectedHash := crypto.Keccak256Hash(testData)
	require.Len(t, hashes, 1)
	require.Contains(t, hashes, expectedHash)
	require.Equal(t, hexutil.Bytes(testData), hashes[expectedHash])
}

func TestKeccak256PreimageTracerWithExecutionError(t *testing.T) {
	tracer := newKeccakTracer(t)

	testData := []byte("error_test")
	memory := make([]byte, len(testData))
	copy(memory, testData)

	stack := []uint256.Int{
		*uint256.NewInt(uint64(len(testData))),
		*uint256.NewInt(0),
	}
	mockScope := &mockOpContext{memory: memory, stack: stack}

	tracer.OnOpcode(0, byte(vm.KECCAK256), 0, 0, mockScope, nil, 0, vm.ErrOutOfGas)

	result, err := tracer.GetResult()
	require.NoError(t, err)

	var hashes map[common.Hash]hexutil.Bytes
	require.NoError(t, json.Unmarshal(result, &hashes))

	expectedHash := crypto.Keccak256Hash(testData)
	require.Len(t, hashes, 1)
	require.Contains(t, hashes, expectedHash)
	require.Equal(t, hexutil.Bytes(testData), hashes[expectedHash])
}

func TestKeccak256PreimageTracerInsufficientStack(t *testing.T) {
	tracer := newKeccakTracer(t)

	testData := []byte("test")
	memory := make([]byte, len(testData))
	copy(memory, testData)

	stack := []uint256.Int{
		*uint256.NewInt(0), // only one item, KECCAK256 needs two
	}
	mockScope := &mockOpContext{memory: memory, stack: stack}

	tracer.OnOpcode(0, byte(vm.KECCAK256), 0, 0, mockScope, nil, 0, nil)
}

func TestKeccak256PreimageTracerLargeData(t *testing.T) {
	tracer := newKeccakTracer(t)

	largeData := make([]byte, 1024)
	for i := range largeData {
		largeData[i] = byte(i % 256)
	}
	memory := make([]byte, len(largeData))
	copy(memory, largeData)

	stack := []uint256.Int{
		*uint256.NewInt(uint64(len(largeData))),
		*uint256.NewInt(0),
	}
	mockScope := &mockOpContext{memory: memory, stack: stack}

	tracer.OnOpcode(0, byte(vm.KECCAK256), 0, 0, mockScope, nil, 0, nil)

	result, err := tracer.GetResult()
	require.NoError(t, err)

	var hashes map[common.Hash]hexutil.Bytes
	require.NoError(t, json.Unmarshal(result, &hashes))

	expectedHash := crypto.Keccak256Hash(largeData)
	require.Len(t, hashes, 1)
	require.Contains(t, hashes, expectedHash)
	require.Equal(t, hexutil.Bytes(largeData), hashes[expectedHash])
}
