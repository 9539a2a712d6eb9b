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

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
)

// errNoState is returned by the state reader when the tracer has no
// VM context to query. Callers treat a failed lookup as "entry omitted",
// never as a trace failure.
var errNoState = errors.New("tracer state unavailable")

// stateReader is the narrow, read-only view of world state the tracer
// needs while processing opcodes. Lookups are synchronous and may fail
// without terminating the trace.
type stateReader interface {
	CodeAt(addr common.Address) ([]byte, error)
	StorageAt(addr common.Address, slot common.Hash) (common.Hash, error)
}

// hookedStateReader adapts the VM context handed to OnTxStart into a
// stateReader.
type hookedStateReader struct {
	env *tracing.VMContext
}

func (r *hookedStateReader) CodeAt(addr common.Address) ([]byte, error) {
	if r.env == nil || r.env.StateDB == nil {
		return nil, errNoState
	}
	return r.env.StateDB.GetCode(addr), nil
}

func (r *hookedStateReader) StorageAt(addr common.Address, slot common.Hash) (common.Hash, error) {
	if r.env == nil || r.env.StateDB == nil {
		return common.Hash{}, errNoState
	}
	return r.env.StateDB.GetState(addr, slot), nil
}
