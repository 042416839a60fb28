// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mode implements the operation and source mode sub-state-machines
// of a service (VDI/VDE/NAMUR 2658): who may command the service and where
// parameter values originate. Both machines only step between neighbouring
// modes; a parent controller cascades every change synchronously to its
// linked children.
package mode

import (
	"fmt"

	"github.com/looplab/fsm"
)

// OperationMode governs who may issue commands and writes.
type OperationMode string

const (
	OperationOffline   OperationMode = "offline"
	OperationOperator  OperationMode = "operator"
	OperationAutomatic OperationMode = "automatic"
)

// SourceMode governs the origin of parameter values while in automatic mode.
type SourceMode string

const (
	SourceOffline  SourceMode = "offline"
	SourceInternal SourceMode = "internal"
	SourceExternal SourceMode = "external"
)

// Origin identifies the channel a command or write arrived on.
type Origin string

const (
	OriginOperator Origin = "operator"
	OriginInternal Origin = "internal"
	OriginExternal Origin = "external"
)

// operation mode adjacency: offline <-> operator <-> automatic
func operationEvents() []fsm.EventDesc {
	return []fsm.EventDesc{
		{Name: string(OperationOffline), Src: []string{string(OperationOperator)}, Dst: string(OperationOffline)},
		{Name: string(OperationOperator), Src: []string{string(OperationOffline), string(OperationAutomatic)}, Dst: string(OperationOperator)},
		{Name: string(OperationAutomatic), Src: []string{string(OperationOperator)}, Dst: string(OperationAutomatic)},
	}
}

// source mode adjacency: offline <-> internal <-> external
func sourceEvents() []fsm.EventDesc {
	return []fsm.EventDesc{
		{Name: string(SourceOffline), Src: []string{string(SourceInternal)}, Dst: string(SourceOffline)},
		{Name: string(SourceInternal), Src: []string{string(SourceOffline), string(SourceExternal)}, Dst: string(SourceInternal)},
		{Name: string(SourceExternal), Src: []string{string(SourceInternal)}, Dst: string(SourceExternal)},
	}
}

// Permits reports whether a command or write from the given origin is
// allowed under the mode combination: the operator channel needs operator
// mode, the internal and external channels need automatic mode with the
// matching source mode. Offline permits nothing.
func Permits(op OperationMode, src SourceMode, origin Origin) bool {
	switch origin {
	case OriginOperator:
		return op == OperationOperator
	case OriginInternal:
		return op == OperationAutomatic && src == SourceInternal
	case OriginExternal:
		return op == OperationAutomatic && src == SourceExternal
	default:
		return false
	}
}

// derivedSource is the source mode forced by an operation mode change:
// automatic starts out sourcing internally, everything else has no source.
func derivedSource(op OperationMode) SourceMode {
	if op == OperationAutomatic {
		return SourceInternal
	}

	return SourceOffline
}

// ParseOperationMode validates a wire value.
func ParseOperationMode(s string) (OperationMode, error) {
	switch OperationMode(s) {
	case OperationOffline, OperationOperator, OperationAutomatic:
		return OperationMode(s), nil
	default:
		return "", fmt.Errorf("unknown operation mode %q", s)
	}
}

// ParseOrigin validates a wire value.
func ParseOrigin(s string) (Origin, error) {
	switch Origin(s) {
	case OriginOperator, OriginInternal, OriginExternal:
		return Origin(s), nil
	default:
		return "", fmt.Errorf("unknown origin %q", s)
	}
}

// ParseSourceMode validates a wire value.
func ParseSourceMode(s string) (SourceMode, error) {
	switch SourceMode(s) {
	case SourceOffline, SourceInternal, SourceExternal:
		return SourceMode(s), nil
	default:
		return "", fmt.Errorf("unknown source mode %q", s)
	}
}
