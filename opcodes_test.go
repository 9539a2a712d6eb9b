// Copyright 2025 The go-ethereum Authors
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

package erc7562

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/stretchr/testify/require"
)

func TestOpcodeClassification(t *testing.T) {
	for _, op := range []vm.OpCode{vm.EXTCODESIZE, vm.EXTCODEHASH, vm.EXTCODECOPY} {
		require.True(t, isEXT(op), "%v", op)
		require.True(t, isEXTorCALL(op), "%v", op)
		require.False(t, isCall(op), "%v", op)
	}
	for _, op := range []vm.OpCode{vm.CALL, vm.CALLCODE, vm.DELEGATECALL, vm.STATICCALL} {
		require.True(t, isCall(op), "%v", op)
		require.True(t, isEXTorCALL(op), "%v", op)
		require.False(t, isEXT(op), "%v", op)
	}
	for _, op := range []vm.OpCode{vm.SLOAD, vm.SSTORE, vm.TLOAD, vm.TSTORE} {
		require.True(t, isStorageAccess(op), "%v", op)
		require.False(t, isEXTorCALL(op), "%v", op)
	}
	for _, op := range []vm.OpCode{vm.ADD, vm.GAS, vm.KECCAK256, vm.BALANCE, vm.CREATE} {
		require.False(t, isEXTorCALL(op), "%v", op)
		require.False(t, isStorageAccess(op), "%v", op)
	}
}

func TestAllowedPrecompiles(t *testing.T) {
	for i := byte(1); i <= 9; i++ {
		require.True(t, isAllowedPrecompile(common.BytesToAddress([]byte{i})), "address %d", i)
	}
	require.False(t, isAllowedPrecompile(common.Address{}))
	require.False(t, isAllowedPrecompile(common.BytesToAddress([]byte{10})))
	require.False(t, isAllowedPrecompile(common.HexToAddress("0x0100000000000000000000000000000000000009")))
	require.False(t, isAllowedPrecompile(account))
}

func TestDefaultIgnoredOpcodes(t *testing.T) {
	ignored := make(map[vm.OpCode]struct{})
	for _, op := range defaultIgnoredOpcodes() {
		ignored[vm.OpCode(op)] = struct{}{}
	}
	// The full PUSH/DUP/SWAP range is sequential and covered end to end.
	for op := vm.PUSH0; op <= vm.SWAP16; op++ {
		require.Contains(t, ignored, op, "%v", op)
	}
	for _, op := range []vm.OpCode{vm.POP, vm.ADD, vm.ISZERO, vm.NOT, vm.SHL, vm.SHR} {
		require.Contains(t, ignored, op, "%v", op)
	}
	for _, op := range []vm.OpCode{vm.GAS, vm.CALL, vm.SLOAD, vm.SSTORE, vm.KECCAK256, vm.EXTCODESIZE, vm.LOG0} {
		require.NotContains(t, ignored, op, "%v", op)
	}
	// Raw values stay within the one-byte opcode space.
	for _, op := range defaultIgnoredOpcodes() {
		require.LessOrEqual(t, uint64(op), uint64(0xff))
	}
}
