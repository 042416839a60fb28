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

package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/pea-core/pkg/execution"
	"github.com/united-manufacturing-hub/pea-core/pkg/statemachine"
)

// StateBodies carries the integrator-supplied body for each state of the
// service state machine. Starting, Execute and Completing are mandatory;
// every other body defaults to a no-op that terminates immediately, which
// makes the transient states pass-through and the steady states plain
// resting states.
type StateBodies struct {
	Idle       execution.Body
	Starting   execution.Body
	Execute    execution.Body
	Completing execution.Body
	Completed  execution.Body
	Pausing    execution.Body
	Paused     execution.Body
	Resuming   execution.Body
	Holding    execution.Body
	Held       execution.Body
	Unholding  execution.Body
	Stopping   execution.Body
	Stopped    execution.Body
	Aborting   execution.Body
	Aborted    execution.Body
	Resetting  execution.Body
}

// Validate checks that the mandatory bodies are present. Called once at
// service construction, so a missing body fails fast instead of surfacing
// mid-cycle.
func (b *StateBodies) Validate() error {
	missing := []string{}

	if b.Starting == nil {
		missing = append(missing, string(statemachine.StateStarting))
	}

	if b.Execute == nil {
		missing = append(missing, string(statemachine.StateExecute))
	}

	if b.Completing == nil {
		missing = append(missing, string(statemachine.StateCompleting))
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing mandatory state bodies: %v", missing)
	}

	return nil
}

// bodyFor returns the body for the given state, substituting the default
// no-op where none was supplied.
func (b *StateBodies) bodyFor(state statemachine.State, logger *zap.SugaredLogger) execution.Body {
	var body execution.Body

	switch state {
	case statemachine.StateIdle:
		body = b.Idle
	case statemachine.StateStarting:
		body = b.Starting
	case statemachine.StateExecute:
		body = b.Execute
	case statemachine.StateCompleting:
		body = b.Completing
	case statemachine.StateCompleted:
		body = b.Completed
	case statemachine.StatePausing:
		body = b.Pausing
	case statemachine.StatePaused:
		body = b.Paused
	case statemachine.StateResuming:
		body = b.Resuming
	case statemachine.StateHolding:
		body = b.Holding
	case statemachine.StateHeld:
		body = b.Held
	case statemachine.StateUnholding:
		body = b.Unholding
	case statemachine.StateStopping:
		body = b.Stopping
	case statemachine.StateStopped:
		body = b.Stopped
	case statemachine.StateAborting:
		body = b.Aborting
	case statemachine.StateAborted:
		body = b.Aborted
	case statemachine.StateResetting:
		body = b.Resetting
	}

	if body != nil {
		return body
	}

	return func(_ context.Context, run *execution.Run) error {
		logger.Debugf("No body for state %s, terminating immediately", run.State())

		return nil
	}
}
