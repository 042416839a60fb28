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

import (
	"github.com/looplab/fsm"
)

// holdableStates are the states HOLD may be issued from. UNHOLDING returns to
// the exact state the service was held from, so each of these also needs its
// own unholding done event.
var holdableStates = []State{
	StateStarting, StateExecute, StateCompleting, StateCompleted,
	StatePausing, StatePaused, StateResuming,
}

// nonTerminalStates are the states STOP may be issued from.
var nonTerminalStates = []State{
	StateIdle, StateStarting, StateExecute, StateCompleting, StateCompleted,
	StatePausing, StatePaused, StateResuming, StateHolding, StateHeld,
	StateUnholding, StateResetting,
}

// abortableStates are the states ABORT may be issued from.
var abortableStates = []State{
	StateIdle, StateStarting, StateExecute, StateCompleting, StateCompleted,
	StatePausing, StatePaused, StateResuming, StateHolding, StateHeld,
	StateUnholding, StateStopping, StateStopped, StateResetting,
}

// doneTransitions maps each transient state to the destination of its
// auto-advance. UNHOLDING is absent here: its destination depends on the
// state the service was held from and is resolved per instance.
var doneTransitions = map[State]State{
	StateStarting:   StateExecute,
	StateExecute:    StateCompleting,
	StateCompleting: StateCompleted,
	StatePausing:    StatePaused,
	StateResuming:   StateExecute,
	StateHolding:    StateHeld,
	StateStopping:   StateStopped,
	StateAborting:   StateAborted,
	StateResetting:  StateIdle,
}

// doneEvent is the fsm event name for the auto-advance of a transient state.
func doneEvent(s State) string {
	return string(s) + "_done"
}

// unholdDoneEvent is the fsm event name for UNHOLDING auto-advancing to the
// recorded held-from state.
func unholdDoneEvent(target State) string {
	return "unholding_done_" + string(target)
}

func srcs(states []State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}

	return out
}

// buildEvents assembles the full transition table of the standard as
// looplab/fsm event descriptors: one event per command plus one done event
// per transient state. Absent (state, command) pairs simply have no event
// with a matching source, which is what makes admission table-driven.
func buildEvents() []fsm.EventDesc {
	events := []fsm.EventDesc{
		{Name: string(CommandStart), Src: srcs([]State{StateIdle}), Dst: string(StateStarting)},
		{Name: string(CommandRestart), Src: srcs([]State{StateExecute}), Dst: string(StateStarting)},
		{Name: string(CommandComplete), Src: srcs([]State{StateExecute}), Dst: string(StateCompleting)},
		{Name: string(CommandPause), Src: srcs([]State{StateExecute}), Dst: string(StatePausing)},
		{Name: string(CommandResume), Src: srcs([]State{StatePaused}), Dst: string(StateResuming)},
		{Name: string(CommandHold), Src: srcs(holdableStates), Dst: string(StateHolding)},
		{Name: string(CommandUnhold), Src: srcs([]State{StateHeld}), Dst: string(StateUnholding)},
		{Name: string(CommandStop), Src: srcs(nonTerminalStates), Dst: string(StateStopping)},
		{Name: string(CommandAbort), Src: srcs(abortableStates), Dst: string(StateAborting)},
		{Name: string(CommandReset), Src: srcs([]State{StateStopped, StateCompleted, StateAborted}), Dst: string(StateResetting)},
	}

	for state, dst := range doneTransitions {
		events = append(events, fsm.EventDesc{
			Name: doneEvent(state),
			Src:  []string{string(state)},
			Dst:  string(dst),
		})
	}

	for _, target := range holdableStates {
		events = append(events, fsm.EventDesc{
			Name: unholdDoneEvent(target),
			Src:  []string{string(StateUnholding)},
			Dst:  string(target),
		})
	}

	return events
}
