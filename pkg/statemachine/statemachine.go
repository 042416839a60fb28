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

// Package statemachine implements the canonical service state machine of
// VDI/VDE/NAMUR 2658: sixteen states, ten commands, table-driven admission.
// Mode gating and worker hand-off live in the service layer; this package
// only answers "is this transition legal and what is the next state".
package statemachine

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/pea-core/pkg/standarderrors"
)

// StateMachine holds the canonical state of one service and its transition
// table. All mutations go through RequestTransition/AdvanceDone, which the
// service serializes on its control plane, so transitions are linearizable.
type StateMachine struct {
	// mu protects heldFrom and the wrapped fsm
	mu sync.RWMutex

	fsm *fsm.FSM

	// heldFrom is the state HOLD was admitted in; UNHOLDING returns there
	heldFrom State

	logger *zap.SugaredLogger
}

// New creates a state machine resting in idle.
func New(logger *zap.SugaredLogger) *StateMachine {
	m := &StateMachine{logger: logger}
	m.fsm = fsm.NewFSM(
		string(StateIdle),
		fsm.Events(buildEvents()),
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				m.logger.Debugf("State changed from %s to %s (event %s)", e.Src, e.Dst, e.Event)
			},
		},
	)

	return m
}

// Current returns the current state.
func (m *StateMachine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return State(m.fsm.Current())
}

// HeldFrom returns the state the service was in when HOLD was admitted,
// or the empty state if the service is not held.
func (m *StateMachine) HeldFrom() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.heldFrom
}

// IsEnabled reports whether the command has a transition table entry for the
// current state. Mode permissions are layered on top by the service.
func (m *StateMachine) IsEnabled(cmd Command) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.fsm.Can(string(cmd))
}

// CommandEnMask returns the CommandEn bitmask of all commands with a table
// entry for the current state.
func (m *StateMachine) CommandEnMask() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var mask int64

	for _, cmd := range AllCommands {
		if m.fsm.Can(string(cmd)) {
			mask |= cmd.Code()
		}
	}

	return mask
}

// EnabledCommands returns all commands with a table entry for the current state.
func (m *StateMachine) EnabledCommands() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var enabled []Command

	for _, cmd := range AllCommands {
		if m.fsm.Can(string(cmd)) {
			enabled = append(enabled, cmd)
		}
	}

	return enabled
}

// RequestTransition applies a command to the state machine. A command with no
// table entry for the current state is rejected without side effects.
func (m *StateMachine) RequestTransition(ctx context.Context, cmd Command) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := State(m.fsm.Current())

	if !cmd.IsValid() {
		return current, fmt.Errorf("%w: unknown command %q", standarderrors.ErrCommandRejected, cmd)
	}

	if !m.fsm.Can(string(cmd)) {
		return current, fmt.Errorf("%w: %s not allowed in state %s", standarderrors.ErrCommandRejected, cmd, current)
	}

	if cmd == CommandHold {
		m.heldFrom = current
	}

	if err := m.fsm.Event(ctx, string(cmd)); err != nil {
		if cmd == CommandHold {
			m.heldFrom = ""
		}

		return current, fmt.Errorf("%w: %s in state %s: %v", standarderrors.ErrCommandRejected, cmd, current, err)
	}

	// leaving the hold complex invalidates the held-from marker
	switch cmd {
	case CommandAbort, CommandStop, CommandReset:
		m.heldFrom = ""
	}

	return State(m.fsm.Current()), nil
}

// AdvanceDone auto-advances a transient state whose body signalled
// completion. Calling it in a steady state is a no-op; the body of a steady
// state returning simply means the service keeps resting there.
func (m *StateMachine) AdvanceDone(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := State(m.fsm.Current())
	if current.IsSteady() {
		return current, nil
	}

	event := doneEvent(current)

	if current == StateUnholding {
		target := m.heldFrom
		if target == "" {
			target = StateExecute
		}

		event = unholdDoneEvent(target)
		m.heldFrom = ""
	}

	if err := m.fsm.Event(ctx, event); err != nil {
		return current, fmt.Errorf("auto-advance from %s failed: %w", current, err)
	}

	return State(m.fsm.Current()), nil
}

// ForceState overrides the current state without consulting the table. This
// is the escape hatch of the fault path only: when even the aborting body
// faults, the service is force-set to aborted.
func (m *StateMachine) ForceState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Warnf("Forcing state from %s to %s", m.fsm.Current(), s)
	m.fsm.SetState(string(s))
	m.heldFrom = ""
}
