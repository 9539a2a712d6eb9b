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

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm"
)

// contractSizeWithOpcode records the code size observed at an address
// together with the opcode that triggered the lookup.
type contractSizeWithOpcode struct {
	ContractSize int       `json:"contractSize"`
	Opcode       vm.OpCode `json:"opcode"`
}

// accessedSlots tracks the storage slots a frame touched. Persistent
// reads hold the value observed on the first read only; everything
// else is an occurrence count.
type accessedSlots struct {
	Reads           map[common.Hash][]common.Hash `json:"reads"`
	Writes          map[common.Hash]uint64        `json:"writes"`
	TransientReads  map[common.Hash]uint64        `json:"transientReads"`
	TransientWrites map[common.Hash]uint64        `json:"transientWrites"`
}

// callLog is the result of a LOG opCode. Position is the number of
// completed child calls recorded on the frame at the time the log
// fired, matching the callTracer wire convention.
type callLog struct {
	Address  common.Address `json:"address"`
	Topics   []common.Hash  `json:"topics"`
	Data     hexutil.Bytes  `json:"data"`
	Position hexutil.Uint   `json:"position"`
}

// callFrameWithOpcodes is one node of the call tree, a call frame
// annotated with the opcode, storage and external-code bookkeeping
// that validation rules are applied to.
type callFrameWithOpcodes struct {
	Type             vm.OpCode
	From             common.Address
	Gas              uint64
	GasUsed          uint64
	To               *common.Address
	Input            []byte
	Output           []byte
	Error            string
	RevertReason     string
	Logs             []callLog
	Value            *big.Int
	revertedSnapshot bool

	AccessedSlots     accessedSlots
	ExtCodeAccessInfo []common.Address
	UsedOpcodes       map[vm.OpCode]uint64
	ContractSize      map[common.Address]*contractSizeWithOpcode
	OutOfGas          bool
	// Keccak preimages for the whole transaction are stored in the
	// root call frame.
	KeccakPreimages []hexutil.Bytes
	Calls           []callFrameWithOpcodes
}

// newCallFrameWithOpcodes returns a frame with all accumulator maps
// initialized, snapshotting the call's static fields.
func newCallFrameWithOpcodes(typ vm.OpCode, from, to common.Address, input []byte, gas uint64, value *big.Int) callFrameWithOpcodes {
	toCopy := to
	return callFrameWithOpcodes{
		Type:  typ,
		From:  from,
		To:    &toCopy,
		Input: common.CopyBytes(input),
		Gas:   gas,
		Value: value,
		AccessedSlots: accessedSlots{
			Reads:           map[common.Hash][]common.Hash{},
			Writes:          map[common.Hash]uint64{},
			TransientReads:  map[common.Hash]uint64{},
			TransientWrites: map[common.Hash]uint64{},
		},
		ExtCodeAccessInfo: make([]common.Address, 0),
		UsedOpcodes:       map[vm.OpCode]uint64{},
		ContractSize:      map[common.Address]*contractSizeWithOpcode{},
	}
}

func (f callFrameWithOpcodes) TypeString() string {
	return f.Type.String()
}

func (f callFrameWithOpcodes) failed() bool {
	return len(f.Error) > 0 && f.revertedSnapshot
}

// processOutput seals the frame's outcome fields from the raw return
// data and error reported by the EVM. Frames created by CREATE/CREATE2
// lose their to address: the deployed address is not resolvable here.
func (f *callFrameWithOpcodes) processOutput(output []byte, err error, reverted bool) {
	output = common.CopyBytes(output)
	if f.Type == vm.CREATE || f.Type == vm.CREATE2 {
		f.To = nil
	}
	// Clear error if tx wasn't reverted. This happened
	// for pre-homestead contract storage OOG.
	if err != nil && !reverted {
		err = nil
	}
	if err == nil {
		f.Output = output
		return
	}
	f.Error = err.Error()
	f.revertedSnapshot = reverted
	if !errors.Is(err, vm.ErrExecutionReverted) || len(output) == 0 {
		return
	}
	f.Output = output
	if len(output) < 4 {
		return
	}
	if unpacked, err := abi.UnpackRevert(output); err == nil {
		f.RevertReason = unpacked
	}
}
