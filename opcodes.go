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
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

func isEXTorCALL(opcode vm.OpCode) bool {
	return isEXT(opcode) || isCall(opcode)
}

// isEXT reports whether the opcode inspects another account's code
// (size, hash or a copy of it).
func isEXT(opcode vm.OpCode) bool {
	return opcode == vm.EXTCODEHASH ||
		opcode == vm.EXTCODESIZE ||
		opcode == vm.EXTCODECOPY
}

func isCall(opcode vm.OpCode) bool {
	return opcode == vm.CALL ||
		opcode == vm.CALLCODE ||
		opcode == vm.DELEGATECALL ||
		opcode == vm.STATICCALL
}

func isStorageAccess(opcode vm.OpCode) bool {
	return opcode == vm.SLOAD ||
		opcode == vm.SSTORE ||
		opcode == vm.TLOAD ||
		opcode == vm.TSTORE
}

// isAllowedPrecompile reports whether addr is one of the low-numbered
// precompiled contracts (1 through 9). Code inspections of these are
// not interesting to validation rules and are left out of the trace.
func isAllowedPrecompile(addr common.Address) bool {
	n := new(uint256.Int).SetBytes(addr.Bytes())
	return !n.IsZero() && n.LtUint64(10)
}

// defaultIgnoredOpcodes returns the opcodes that are left out of the
// per-frame usage report: stack shuffling and pure data manipulation
// carry no signal for validation rules.
func defaultIgnoredOpcodes() []hexutil.Uint64 {
	ignored := make([]hexutil.Uint64, 0, 96)

	// Allow all PUSHx, DUPx and SWAPx opcodes as they have sequential codes
	for op := vm.PUSH0; op <= vm.SWAP16; op++ {
		ignored = append(ignored, hexutil.Uint64(op))
	}
	for _, op := range []vm.OpCode{
		vm.POP, vm.ADD, vm.SUB, vm.MUL,
		vm.DIV, vm.EQ, vm.LT, vm.GT,
		vm.SLT, vm.SGT, vm.SHL, vm.SHR,
		vm.AND, vm.OR, vm.NOT, vm.ISZERO,
	} {
		ignored = append(ignored, hexutil.Uint64(op))
	}
	return ignored
}
