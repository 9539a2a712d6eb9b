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
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/stretchr/testify/require"
)

func TestProcessOutput(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newCallFrameWithOpcodes(vm.CALL, sender, account, nil, 1000, nil)
		f.processOutput([]byte{0x01, 0x02}, nil, false)
		require.Equal(t, []byte{0x01, 0x02}, f.Output)
		require.Empty(t, f.Error)
		require.False(t, f.failed())
	})

	t.Run("errorWithoutRevertCleared", func(t *testing.T) {
		f := newCallFrameWithOpcodes(vm.CALL, sender, account, nil, 1000, nil)
		f.processOutput([]byte{0x01}, errors.New("contract creation code storage out of gas"), false)
		require.Equal(t, []byte{0x01}, f.Output)
		require.Empty(t, f.Error)
	})

	t.Run("plainError", func(t *testing.T) {
		f := newCallFrameWithOpcodes(vm.CALL, sender, account, nil, 1000, nil)
		f.processOutput(nil, vm.ErrOutOfGas, true)
		require.Equal(t, vm.ErrOutOfGas.Error(), f.Error)
		require.Empty(t, f.Output)
		require.True(t, f.failed())
	})

	t.Run("revertWithReason", func(t *testing.T) {
		f := newCallFrameWithOpcodes(vm.CALL, sender, account, nil, 1000, nil)
		out := revertData("insufficient allowance")
		f.processOutput(out, vm.ErrExecutionReverted, true)
		require.Equal(t, vm.ErrExecutionReverted.Error(), f.Error)
		require.Equal(t, out, f.Output)
		require.Equal(t, "insufficient allowance", f.RevertReason)
	})

	t.Run("revertTooShortForReason", func(t *testing.T) {
		f := newCallFrameWithOpcodes(vm.CALL, sender, account, nil, 1000, nil)
		f.processOutput([]byte{0x08, 0xc3}, vm.ErrExecutionReverted, true)
		require.Equal(t, []byte{0x08, 0xc3}, f.Output)
		require.Empty(t, f.RevertReason)
	})

	t.Run("revertUndecodable", func(t *testing.T) {
		f := newCallFrameWithOpcodes(vm.CALL, sender, account, nil, 1000, nil)
		out := []byte{0xde, 0xad, 0xbe, 0xef, 0x00}
		f.processOutput(out, vm.ErrExecutionReverted, true)
		// Decode failure is not escalated, the raw output stays.
		require.Equal(t, out, f.Output)
		require.Empty(t, f.RevertReason)
		require.Equal(t, vm.ErrExecutionReverted.Error(), f.Error)
	})

	t.Run("createTargetCleared", func(t *testing.T) {
		for _, typ := range []vm.OpCode{vm.CREATE, vm.CREATE2} {
			f := newCallFrameWithOpcodes(typ, sender, account, nil, 1000, big.NewInt(0))
			require.NotNil(t, f.To)
			f.processOutput(nil, vm.ErrExecutionReverted, true)
			require.Nil(t, f.To)

			// The deployed address is unknown even on success.
			f = newCallFrameWithOpcodes(typ, sender, account, nil, 1000, big.NewInt(0))
			f.processOutput(nil, nil, false)
			require.Nil(t, f.To)
		}
	})
}

func TestFrameConstruction(t *testing.T) {
	input := []byte{0xca, 0xfe}
	f := newCallFrameWithOpcodes(vm.DELEGATECALL, sender, account, input, 5000, big.NewInt(3))
	require.Equal(t, "DELEGATECALL", f.TypeString())
	require.Equal(t, input, f.Input)
	// The input is snapshotted, not aliased.
	input[0] = 0x00
	require.Equal(t, byte(0xca), f.Input[0])
	require.NotNil(t, f.AccessedSlots.Reads)
	require.NotNil(t, f.AccessedSlots.Writes)
	require.NotNil(t, f.AccessedSlots.TransientReads)
	require.NotNil(t, f.AccessedSlots.TransientWrites)
	require.NotNil(t, f.UsedOpcodes)
	require.NotNil(t, f.ContractSize)
	require.NotNil(t, f.ExtCodeAccessInfo)
}
