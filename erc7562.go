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

// Package erc7562 implements a native tracer collecting the evidence
// needed to enforce ERC-7562 validation rules: per-frame opcode usage,
// storage slot accesses, external code inspections and keccak
// preimages, arranged as a nested call-frame tree.
package erc7562

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/eth/tracers"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/bundlertools/erc7562/internal"
)

func init() {
	tracers.DefaultDirectory.Register("erc7562Tracer", newErc7562Tracer, false)
}

// errStackUnderflow is surfaced through GetResult when an opcode is
// observed with fewer stack items than the configured snapshot window
// requires. The partial-stack lookback would be meaningless from that
// point on, so the trace is aborted rather than silently truncated.
var errStackUnderflow = errors.New("stack underflow during tracing")

type erc7562TracerConfig struct {
	StackTopItemsSize int              `json:"stackTopItemsSize"`
	IgnoredOpcodes    []hexutil.Uint64 `json:"ignoredOpcodes"` // Opcodes to ignore during OnOpcode hook execution
	WithLog           bool             `json:"withLog"`        // If true, erc7562 tracer will collect event logs
}

// opcodeWithPartialStack is the one-step lookback memory: the previous
// opcode together with a snapshot of the top stack items at the moment
// it executed.
type opcodeWithPartialStack struct {
	opcode        vm.OpCode
	stackTopItems []uint256.Int
}

type erc7562Tracer struct {
	config    erc7562TracerConfig
	gasLimit  uint64
	depth     int
	interrupt atomic.Bool // Atomic flag to signal execution interruption
	reason    error       // Textual reason for the interruption
	state     stateReader

	ignoredOpcodes       map[vm.OpCode]struct{}
	callstackWithOpcodes []callFrameWithOpcodes
	lastOpWithStack      *opcodeWithPartialStack
	keccakPreimages      map[string]struct{}
}

// newErc7562Tracer returns a native go tracer which tracks the call
// frames of a tx along with their opcode-level bookkeeping.
func newErc7562Tracer(ctx *tracers.Context, cfg json.RawMessage, chainConfig *params.ChainConfig) (*tracers.Tracer, error) {
	t, err := newErc7562TracerObject(cfg)
	if err != nil {
		return nil, err
	}
	return &tracers.Tracer{
		Hooks: &tracing.Hooks{
			OnTxStart: t.OnTxStart,
			OnTxEnd:   t.OnTxEnd,
			OnEnter:   t.OnEnter,
			OnExit:    t.OnExit,
			OnOpcode:  t.OnOpcode,
			OnLog:     t.OnLog,
		},
		GetResult: t.GetResult,
		Stop:      t.Stop,
	}, nil
}

func getFullConfiguration(partial erc7562TracerConfig) erc7562TracerConfig {
	config := partial
	if config.IgnoredOpcodes == nil {
		config.IgnoredOpcodes = defaultIgnoredOpcodes()
	}
	if config.StackTopItemsSize == 0 {
		config.StackTopItemsSize = 4
	}
	return config
}

func newErc7562TracerObject(cfg json.RawMessage) (*erc7562Tracer, error) {
	var config erc7562TracerConfig
	if cfg != nil {
		if err := json.Unmarshal(cfg, &config); err != nil {
			return nil, err
		}
	}
	if config.StackTopItemsSize < 0 {
		return nil, fmt.Errorf("invalid stack snapshot size: %d", config.StackTopItemsSize)
	}
	fullConfig := getFullConfiguration(config)
	// Create a map of ignored opcodes for fast lookup
	ignoredOpcodes := make(map[vm.OpCode]struct{}, len(fullConfig.IgnoredOpcodes))
	for _, op := range fullConfig.IgnoredOpcodes {
		if op > 0xff {
			return nil, fmt.Errorf("invalid opcode in ignore list: %#x", uint64(op))
		}
		ignoredOpcodes[vm.OpCode(op)] = struct{}{}
	}
	// First callframe contains tx context info
	// and is populated on start and end.
	return &erc7562Tracer{
		callstackWithOpcodes: make([]callFrameWithOpcodes, 0, 1),
		config:               fullConfig,
		ignoredOpcodes:       ignoredOpcodes,
		keccakPreimages:      make(map[string]struct{}),
		// State lookups fail cleanly until OnTxStart installs the live
		// VM context.
		state: &hookedStateReader{},
	}, nil
}

func (t *erc7562Tracer) OnTxStart(env *tracing.VMContext, tx *types.Transaction, from common.Address) {
	t.gasLimit = tx.Gas()
	t.state = &hookedStateReader{env: env}
}

func (t *erc7562Tracer) OnTxEnd(receipt *types.Receipt, err error) {
	if t.interrupt.Load() {
		return
	}
	// Error happened during tx validation.
	if err != nil {
		return
	}
	if len(t.callstackWithOpcodes) != 1 || receipt == nil {
		return
	}
	t.callstackWithOpcodes[0].GasUsed = receipt.GasUsed
	if t.config.WithLog {
		// Logs are not emitted when the call fails
		clearFailedLogs(&t.callstackWithOpcodes[0], false)
	}
}

// OnEnter is called when the EVM enters a new scope (via call, create or selfdestruct).
func (t *erc7562Tracer) OnEnter(depth int, typ byte, from common.Address, to common.Address, input []byte, gas uint64, value *big.Int) {
	if t.interrupt.Load() {
		return
	}
	call := newCallFrameWithOpcodes(vm.OpCode(typ), from, to, input, gas, value)
	if t.depth == 0 {
		call.Gas = t.gasLimit
	}
	t.callstackWithOpcodes = append(t.callstackWithOpcodes, call)
	t.depth++
}

// OnExit is called when the EVM exits a scope, even if the scope didn't
// execute any code.
func (t *erc7562Tracer) OnExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	if t.interrupt.Load() {
		return
	}
	if depth == 0 {
		t.depth = 0
		t.captureEnd(output, err, reverted)
		return
	}
	size := len(t.callstackWithOpcodes)
	if size <= 1 {
		// Inconsistent event stream from the EVM, nothing to pop into.
		return
	}
	if t.depth > 0 {
		t.depth--
	}
	// Pop call.
	call := t.callstackWithOpcodes[size-1]
	t.callstackWithOpcodes = t.callstackWithOpcodes[:size-1]
	size -= 1

	if errors.Is(err, vm.ErrOutOfGas) || errors.Is(err, vm.ErrCodeStoreOutOfGas) || errors.Is(err, vm.ErrInsufficientBalance) {
		call.OutOfGas = true
	}
	call.GasUsed = gasUsed
	call.processOutput(output, err, reverted)
	// Nest call into parent.
	t.callstackWithOpcodes[size-1].Calls = append(t.callstackWithOpcodes[size-1].Calls, call)
}

func (t *erc7562Tracer) captureEnd(output []byte, err error, reverted bool) {
	if len(t.callstackWithOpcodes) != 1 {
		return
	}
	t.callstackWithOpcodes[0].processOutput(output, err, reverted)
}

func (t *erc7562Tracer) OnOpcode(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	if t.interrupt.Load() {
		return
	}
	if len(t.callstackWithOpcodes) == 0 {
		t.Stop(errors.New("opcode observed before any call scope was entered"))
		return
	}
	var (
		opcode    = vm.OpCode(op)
		stackData = scope.StackData()
	)
	if len(stackData) < t.config.StackTopItemsSize+1 {
		t.Stop(fmt.Errorf("%w: %v has %d stack items, snapshot window needs %d",
			errStackUnderflow, opcode, len(stackData), t.config.StackTopItemsSize+1))
		return
	}
	stackTopItems := make([]uint256.Int, t.config.StackTopItemsSize)
	for i := range stackTopItems {
		stackTopItems[i] = *internal.StackBack(stackData, i)
	}
	currentCallFrame := &t.callstackWithOpcodes[len(t.callstackWithOpcodes)-1]
	if t.lastOpWithStack != nil {
		t.handleExtOpcodes(opcode, currentCallFrame)
	}
	t.handleReturnRevert(opcode)
	t.handleAccessedContractSize(opcode, stackData, currentCallFrame)
	if t.lastOpWithStack != nil {
		t.handleGasObserved(opcode, currentCallFrame)
	}
	t.storeUsedOpcode(opcode, currentCallFrame)
	t.handleStorageAccess(opcode, stackData, scope.Address(), currentCallFrame)
	t.storeKeccak(opcode, stackData, scope.MemoryData())
	t.lastOpWithStack = &opcodeWithPartialStack{
		opcode:        opcode,
		stackTopItems: stackTopItems,
	}
}

func (t *erc7562Tracer) OnLog(l *types.Log) {
	// Only logs need to be captured via opcode processing
	if !t.config.WithLog {
		return
	}
	// Skip if tracing was interrupted
	if t.interrupt.Load() {
		return
	}
	if len(t.callstackWithOpcodes) == 0 {
		return
	}
	currentCallFrame := &t.callstackWithOpcodes[len(t.callstackWithOpcodes)-1]
	currentCallFrame.Logs = append(currentCallFrame.Logs, callLog{
		Address:  l.Address,
		Topics:   l.Topics,
		Data:     l.Data,
		Position: hexutil.Uint(len(currentCallFrame.Calls)),
	})
}

// handleReturnRevert drops the lookback memory: the stack the snapshot
// was taken from is about to be invalidated for this frame.
func (t *erc7562Tracer) handleReturnRevert(opcode vm.OpCode) {
	if opcode == vm.REVERT || opcode == vm.RETURN {
		t.lastOpWithStack = nil
	}
}

// handleExtOpcodes records an external code inspection performed by the
// previous opcode. The address operand is only on the stack while that
// opcode executes, so it is resolved from the lookback snapshot. An
// EXTCODESIZE immediately consumed by ISZERO is a pure zero-check and
// not counted as a real inspection.
// [OP-051]
func (t *erc7562Tracer) handleExtOpcodes(opcode vm.OpCode, currentCallFrame *callFrameWithOpcodes) {
	if !isEXT(t.lastOpWithStack.opcode) {
		return
	}
	if t.lastOpWithStack.opcode == vm.EXTCODESIZE && opcode == vm.ISZERO {
		return
	}
	addr := common.Address(t.lastOpWithStack.stackTopItems[0].Bytes20())
	if isAllowedPrecompile(addr) {
		return
	}
	if slices.Contains(currentCallFrame.ExtCodeAccessInfo, addr) {
		return
	}
	currentCallFrame.ExtCodeAccessInfo = append(currentCallFrame.ExtCodeAccessInfo, addr)
}

// handleGasObserved counts a GAS value consumed by anything other than
// immediately forwarding it into a call as an explicit gas observation.
// [OP-012]
func (t *erc7562Tracer) handleGasObserved(opcode vm.OpCode, currentCallFrame *callFrameWithOpcodes) {
	if t.lastOpWithStack.opcode == vm.GAS && !isCall(opcode) {
		currentCallFrame.UsedOpcodes[vm.GAS]++
	}
}

func (t *erc7562Tracer) storeUsedOpcode(opcode vm.OpCode, currentCallFrame *callFrameWithOpcodes) {
	// ignore "unimportant" opcodes
	if opcode != vm.GAS && !t.isIgnoredOpcode(opcode) {
		currentCallFrame.UsedOpcodes[opcode]++
	}
}

// handleAccessedContractSize caches, once per frame and address, the
// code size at the target of an external-code or call-like opcode.
// Call opcodes carry a gas operand on top of the stack, so their
// address sits one item deeper.
// [OP-041]
func (t *erc7562Tracer) handleAccessedContractSize(opcode vm.OpCode, stackData []uint256.Int, currentCallFrame *callFrameWithOpcodes) {
	if !isEXTorCALL(opcode) {
		return
	}
	n := 0
	if !isEXT(opcode) {
		n = 1
	}
	addr := common.Address(internal.StackBack(stackData, n).Bytes20())
	if _, ok := currentCallFrame.ContractSize[addr]; ok {
		return
	}
	if isAllowedPrecompile(addr) {
		return
	}
	code, err := t.state.CodeAt(addr)
	if err != nil {
		return
	}
	currentCallFrame.ContractSize[addr] = &contractSizeWithOpcode{
		ContractSize: len(code),
		Opcode:       opcode,
	}
}

func (t *erc7562Tracer) handleStorageAccess(opcode vm.OpCode, stackData []uint256.Int, addr common.Address, currentCallFrame *callFrameWithOpcodes) {
	if !isStorageAccess(opcode) {
		return
	}
	slot := common.Hash(internal.StackBack(stackData, 0).Bytes32())

	switch opcode {
	case vm.SLOAD:
		// Read slot values before this UserOp was created: a slot that
		// was already read or written in this frame is not re-queried.
		_, read := currentCallFrame.AccessedSlots.Reads[slot]
		_, written := currentCallFrame.AccessedSlots.Writes[slot]
		if !read && !written {
			value, err := t.state.StorageAt(addr, slot)
			if err != nil {
				return
			}
			currentCallFrame.AccessedSlots.Reads[slot] = append(currentCallFrame.AccessedSlots.Reads[slot], value)
		}
	case vm.SSTORE:
		currentCallFrame.AccessedSlots.Writes[slot]++
	case vm.TLOAD:
		currentCallFrame.AccessedSlots.TransientReads[slot]++
	case vm.TSTORE:
		currentCallFrame.AccessedSlots.TransientWrites[slot]++
	}
}

// storeKeccak captures the hashed memory range into the trace-wide
// preimage set.
func (t *erc7562Tracer) storeKeccak(opcode vm.OpCode, stackData []uint256.Int, memory []byte) {
	if opcode != vm.KECCAK256 {
		return
	}
	dataOffset := internal.StackBack(stackData, 0).Uint64()
	dataLength := internal.StackBack(stackData, 1).Uint64()
	preimage, err := internal.GetMemoryCopyPadded(memory, int64(dataOffset), int64(dataLength))
	if err != nil {
		log.Warn("erc7562Tracer: failed to copy keccak preimage from memory", "err", err)
		return
	}
	t.keccakPreimages[string(preimage)] = struct{}{}
}

// isIgnoredOpcode checks if this opcode is ignored for the purposes of
// generating the used opcodes report.
func (t *erc7562Tracer) isIgnoredOpcode(opcode vm.OpCode) bool {
	_, ok := t.ignoredOpcodes[opcode]
	return ok
}

// GetResult returns the json-encoded nested list of call traces, and any
// error arising from the encoding or forceful termination (via `Stop`).
func (t *erc7562Tracer) GetResult() (json.RawMessage, error) {
	if t.interrupt.Load() {
		return nil, t.reason
	}
	if len(t.callstackWithOpcodes) != 1 {
		return nil, errors.New("incorrect number of top-level calls")
	}
	keccak := make([]hexutil.Bytes, 0, len(t.keccakPreimages))
	for preimage := range t.keccakPreimages {
		keccak = append(keccak, hexutil.Bytes(preimage))
	}
	slices.SortFunc(keccak, func(a, b hexutil.Bytes) int {
		return bytes.Compare(a, b)
	})
	t.callstackWithOpcodes[0].KeccakPreimages = keccak

	res, err := json.Marshal(t.callstackWithOpcodes[0])
	if err != nil {
		return nil, err
	}
	return res, t.reason
}

// Stop terminates execution of the tracer at the first opportune moment.
func (t *erc7562Tracer) Stop(err error) {
	t.reason = err
	t.interrupt.Store(true)
}

// clearFailedLogs clears the logs of a callframe and all its children
// in case of execution failure.
func clearFailedLogs(cf *callFrameWithOpcodes, parentFailed bool) {
	failed := cf.failed() || parentFailed
	// Clear own logs
	if failed {
		cf.Logs = nil
	}
	for i := range cf.Calls {
		clearFailedLogs(&cf.Calls[i], failed)
	}
}
