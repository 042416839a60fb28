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

// Package standarderrors holds the sentinel errors shared across the PEA core.
// Every rejection is reported synchronously to the caller; none of these
// errors ever terminates the service process.
package standarderrors

import "errors"

var (
	// ErrCommandRejected is returned when a command is not legal for the
	// current state or the current operation/source mode. The state machine
	// is left untouched.
	ErrCommandRejected = errors.New("command rejected")

	// ErrCommandSuperseded is returned for a pending command that lost
	// against a higher-priority command (e.g. ABORT) admitted in the same
	// cycle. Callers must reissue the command themselves if still wanted.
	ErrCommandSuperseded = errors.New("command superseded by higher-priority command")

	// ErrModeTransitionRejected is returned when a mode change would skip
	// the mandated intermediate mode (e.g. Offline directly to Automatic).
	ErrModeTransitionRejected = errors.New("mode transition rejected")

	// ErrProcedureSwitchRejected is returned when a procedure is requested
	// while the service is not in the idle state.
	ErrProcedureSwitchRejected = errors.New("procedure switch rejected")

	// ErrBodyExecutionFailure wraps a fault of a state body (error return,
	// panic or join timeout). It is the only error class that forces an
	// unsolicited transition: the service is driven to aborted and requires
	// an explicit RESET to recover.
	ErrBodyExecutionFailure = errors.New("state body execution failure")

	// ErrBodyJoinTimeout is returned when an outgoing state body does not
	// terminate within the configured join timeout after cancellation.
	ErrBodyJoinTimeout = errors.New("state body did not terminate within join timeout")

	// ErrServiceShuttingDown is returned for requests submitted after the
	// service control plane has begun shutting down.
	ErrServiceShuttingDown = errors.New("service is shutting down")
)
