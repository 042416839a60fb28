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

package statemachine

// State is a state of the VDI/VDE/NAMUR 2658 service state machine.
type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateExecute    State = "execute"
	StateCompleting State = "completing"
	StateCompleted  State = "completed"
	StatePausing    State = "pausing"
	StatePaused     State = "paused"
	StateResuming   State = "resuming"
	StateHolding    State = "holding"
	StateHeld       State = "held"
	StateUnholding  State = "unholding"
	StateStopping   State = "stopping"
	StateStopped    State = "stopped"
	StateAborting   State = "aborting"
	StateAborted    State = "aborted"
	StateResetting  State = "resetting"
)

// Command is a service command of the VDI/VDE/NAMUR 2658 service state machine.
type Command string

const (
	CommandReset    Command = "reset"
	CommandStart    Command = "start"
	CommandStop     Command = "stop"
	CommandHold     Command = "hold"
	CommandUnhold   Command = "unhold"
	CommandPause    Command = "pause"
	CommandResume   Command = "resume"
	CommandAbort    Command = "abort"
	CommandRestart  Command = "restart"
	CommandComplete Command = "complete"
)

// AllStates lists every state of the service state machine.
var AllStates = []State{
	StateIdle, StateStarting, StateExecute, StateCompleting, StateCompleted,
	StatePausing, StatePaused, StateResuming, StateHolding, StateHeld,
	StateUnholding, StateStopping, StateStopped, StateAborting, StateAborted,
	StateResetting,
}

// AllCommands lists every service command.
var AllCommands = []Command{
	CommandReset, CommandStart, CommandStop, CommandHold, CommandUnhold,
	CommandPause, CommandResume, CommandAbort, CommandRestart, CommandComplete,
}

// stateCodes maps states to the StateCur wire codes of VDI/VDE/NAMUR 2658-4.
var stateCodes = map[State]int64{
	StateStopped:    4,
	StateStarting:   8,
	StateIdle:       16,
	StatePaused:     32,
	StateExecute:    64,
	StateStopping:   128,
	StateAborting:   256,
	StateAborted:    512,
	StateHolding:    1024,
	StateHeld:       2048,
	StateUnholding:  4096,
	StatePausing:    8192,
	StateResuming:   16384,
	StateResetting:  32768,
	StateCompleting: 65536,
	StateCompleted:  131072,
}

// commandCodes maps commands to the CommandOp/Int/Ext wire codes and, at the
// same time, the bit each command occupies in the CommandEn mask.
var commandCodes = map[Command]int64{
	CommandReset:    2,
	CommandStart:    4,
	CommandStop:     8,
	CommandHold:     16,
	CommandUnhold:   32,
	CommandPause:    64,
	CommandResume:   128,
	CommandAbort:    256,
	CommandRestart:  512,
	CommandComplete: 1024,
}

// Code returns the StateCur wire code for the state, 0 for unknown states.
func (s State) Code() int64 {
	return stateCodes[s]
}

// Code returns the command wire code, 0 for unknown commands.
func (c Command) Code() int64 {
	return commandCodes[c]
}

// CommandFromCode resolves a wire code back to a command.
func CommandFromCode(code int64) (Command, bool) {
	for cmd, c := range commandCodes {
		if c == code {
			return cmd, true
		}
	}

	return "", false
}

// IsSteady reports whether the state is a resting state that waits for an
// external command. All other states are transient and auto-advance once
// their body signals completion.
func (s State) IsSteady() bool {
	switch s {
	case StateIdle, StateCompleted, StatePaused, StateHeld, StateStopped, StateAborted:
		return true
	default:
		return false
	}
}

// IsTransient reports whether the state auto-advances on body completion.
func (s State) IsTransient() bool {
	return !s.IsSteady()
}

// IsValid reports whether s is one of the sixteen service states.
func (s State) IsValid() bool {
	_, ok := stateCodes[s]

	return ok
}

// IsValid reports whether c is one of the ten service commands.
func (c Command) IsValid() bool {
	_, ok := commandCodes[c]

	return ok
}
