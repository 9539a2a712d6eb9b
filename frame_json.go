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
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm"
)

// callFrameWithOpcodesJSON is the wire form of callFrameWithOpcodes.
// The call type travels as its mnemonic and opcode histogram keys as
// hex quantities.
type callFrameWithOpcodesJSON struct {
	From              common.Address                             `json:"from"`
	Gas               hexutil.Uint64                             `json:"gas"`
	GasUsed           hexutil.Uint64                             `json:"gasUsed"`
	To                *common.Address                            `json:"to,omitempty"`
	Input             hexutil.Bytes                              `json:"input"`
	Output            hexutil.Bytes                              `json:"output,omitempty"`
	Error             string                                     `json:"error,omitempty"`
	RevertReason      string                                     `json:"revertReason,omitempty"`
	Logs              []callLog                                  `json:"logs,omitempty"`
	Value             *hexutil.Big                               `json:"value,omitempty"`
	AccessedSlots     accessedSlots                              `json:"accessedSlots"`
	ExtCodeAccessInfo []common.Address                           `json:"extCodeAccessInfo"`
	UsedOpcodes       map[hexutil.Uint64]uint64                  `json:"usedOpcodes"`
	ContractSize      map[common.Address]*contractSizeWithOpcode `json:"contractSize"`
	OutOfGas          bool                                       `json:"outOfGas"`
	Keccak            []hexutil.Bytes                            `json:"keccak,omitempty"`
	Calls             []callFrameWithOpcodes                     `json:"calls,omitempty"`
	Type              string                                     `json:"type"`
}

// MarshalJSON marshals as JSON.
func (f callFrameWithOpcodes) MarshalJSON() ([]byte, error) {
	usedOpcodes := make(map[hexutil.Uint64]uint64, len(f.UsedOpcodes))
	for op, count := range f.UsedOpcodes {
		usedOpcodes[hexutil.Uint64(op)] = count
	}
	enc := callFrameWithOpcodesJSON{
		From:              f.From,
		Gas:               hexutil.Uint64(f.Gas),
		GasUsed:           hexutil.Uint64(f.GasUsed),
		To:                f.To,
		Input:             f.Input,
		Output:            f.Output,
		Error:             f.Error,
		RevertReason:      f.RevertReason,
		Logs:              f.Logs,
		Value:             (*hexutil.Big)(f.Value),
		AccessedSlots:     f.AccessedSlots,
		ExtCodeAccessInfo: f.ExtCodeAccessInfo,
		UsedOpcodes:       usedOpcodes,
		ContractSize:      f.ContractSize,
		OutOfGas:          f.OutOfGas,
		Keccak:            f.KeccakPreimages,
		Calls:             f.Calls,
		Type:              f.TypeString(),
	}
	return json.Marshal(&enc)
}

// UnmarshalJSON unmarshals from JSON.
func (f *callFrameWithOpcodes) UnmarshalJSON(input []byte) error {
	var dec callFrameWithOpcodesJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	f.Type = vm.StringToOp(dec.Type)
	f.From = dec.From
	f.Gas = uint64(dec.Gas)
	f.GasUsed = uint64(dec.GasUsed)
	f.To = dec.To
	f.Input = dec.Input
	f.Output = dec.Output
	f.Error = dec.Error
	f.RevertReason = dec.RevertReason
	f.Logs = dec.Logs
	f.Value = (*big.Int)(dec.Value)
	f.AccessedSlots = dec.AccessedSlots
	f.ExtCodeAccessInfo = dec.ExtCodeAccessInfo
	if dec.UsedOpcodes != nil {
		f.UsedOpcodes = make(map[vm.OpCode]uint64, len(dec.UsedOpcodes))
		for op, count := range dec.UsedOpcodes {
			f.UsedOpcodes[vm.OpCode(op)] = count
		}
	}
	f.ContractSize = dec.ContractSize
	f.OutOfGas = dec.OutOfGas
	f.KeccakPreimages = dec.Keccak
	f.Calls = dec.Calls
	return nil
}
