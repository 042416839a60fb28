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
	"errors"
	"fmt"

	"github.com/united-manufacturing-hub/pea-core/pkg/metrics"
	"github.com/united-manufacturing-hub/pea-core/pkg/mode"
	"github.com/united-manufacturing-hub/pea-core/pkg/sentry"
	"github.com/united-manufacturing-hub/pea-core/pkg/standarderrors"
	"github.com/united-manufacturing-hub/pea-core/pkg/statemachine"
)

type requestKind int

const (
	kindCommand requestKind = iota
	kindOperationMode
	kindSourceMode
	kindProcedure
	kindBodyDone
	kindBodyFault
)

// request is one unit of work for the control plane. reply is nil for
// fire-and-forget submissions (wire writes, body notifications).
type request struct {
	kind requestKind

	cmd    statemachine.Command
	origin mode.Origin

	opMode  mode.OperationMode
	srcMode mode.SourceMode

	procedureID int64

	bodyState statemachine.State
	bodyErr   error

	reply chan error
}

// respond delivers the outcome to a waiting caller, or logs it for
// fire-and-forget requests.
func (s *Service) respond(req request, err error) {
	if req.reply != nil {
		req.reply <- err

		return
	}

	if err != nil {
		s.logger.Infof("Request not admitted: %v", err)
	}
}

// dispatch is the control plane loop. One iteration handles one admission
// cycle: everything pending on the queue at that moment is decided together,
// which is what makes command precedence deterministic.
func (s *Service) dispatch() {
	defer close(s.stopped)

	for {
		select {
		case <-s.closing:
			s.drainQueue()

			return
		case req := <-s.requests:
			batch := []request{req}

			// collect everything that arrived before this cycle
		drain:
			for {
				select {
				case r := <-s.requests:
					batch = append(batch, r)
				default:
					break drain
				}
			}

			s.runCycle(batch)
		}
	}
}

// drainQueue rejects everything still pending at shutdown.
func (s *Service) drainQueue() {
	for {
		select {
		case req := <-s.requests:
			s.respond(req, standarderrors.ErrServiceShuttingDown)
		default:
			return
		}
	}
}

// runCycle decides one admission cycle. Faults first (they force the abort
// path and make later decisions moot), then the winning command, then mode
// and procedure changes, then auto-advance notifications.
func (s *Service) runCycle(batch []request) {
	var (
		commands []request
		faults   []request
		dones    []request
		others   []request
	)

	for _, req := range batch {
		switch req.kind {
		case kindCommand:
			commands = append(commands, req)
		case kindBodyFault:
			faults = append(faults, req)
		case kindBodyDone:
			dones = append(dones, req)
		default:
			others = append(others, req)
		}
	}

	for _, req := range faults {
		s.handleBodyFault(req.bodyState, req.bodyErr)
	}

	if len(commands) > 0 {
		pending := make([]statemachine.Command, len(commands))
		for i, req := range commands {
			pending[i] = req.cmd
		}

		winner := s.precedence.Select(pending)

		for i, req := range commands {
			if i == winner {
				s.respond(req, s.handleCommand(req))

				continue
			}

			metrics.IncCommandRejected(s.name, string(req.cmd))
			s.respond(req, fmt.Errorf("%w: %s lost to %s",
				standarderrors.ErrCommandSuperseded, req.cmd, commands[winner].cmd))
		}

		for _, req := range commands {
			s.resetCommandChannel(req.origin)
		}
	}

	for _, req := range others {
		switch req.kind {
		case kindOperationMode:
			s.respond(req, s.handleOperationMode(req.opMode))
		case kindSourceMode:
			s.respond(req, s.handleSourceMode(req.srcMode))
		case kindProcedure:
			s.respond(req, s.handleProcedureRequest(req.origin, req.procedureID))
		}
	}

	for _, req := range dones {
		s.handleBodyDone(req.bodyState)
	}
}

// handleCommand runs the two admission gates (mode, transition table) and on
// success performs the transition and the body hand-off. START and RESTART
// additionally bind the procedure before the state moves, so the starting
// body already sees the committed parameters.
func (s *Service) handleCommand(req request) error {
	if !s.modeCtrl.PermitsOrigin(req.origin) {
		metrics.IncCommandRejected(s.name, string(req.cmd))

		return fmt.Errorf("%w: %s origin not permitted in mode %s/%s",
			standarderrors.ErrCommandRejected, req.origin,
			s.modeCtrl.OperationMode(), s.modeCtrl.SourceMode())
	}

	if !s.machine.IsEnabled(req.cmd) {
		metrics.IncCommandRejected(s.name, string(req.cmd))

		return fmt.Errorf("%w: %s not allowed in state %s",
			standarderrors.ErrCommandRejected, req.cmd, s.machine.Current())
	}

	if req.cmd == statemachine.CommandStart || req.cmd == statemachine.CommandRestart {
		proc, err := s.procs.Commit()
		if err != nil {
			metrics.IncCommandRejected(s.name, string(req.cmd))

			return fmt.Errorf("%w: %v", standarderrors.ErrCommandRejected, err)
		}

		s.currentProc = proc
		s.publishProcedures()
		s.resetProcedureChannels()
	}

	newState, err := s.machine.RequestTransition(context.Background(), req.cmd)
	if err != nil {
		metrics.IncCommandRejected(s.name, string(req.cmd))

		return err
	}

	metrics.IncStateTransition(s.name, string(newState))
	s.afterTransition(newState)

	return nil
}

// handleOperationMode applies an operation mode change. The change cascades
// through the linked element controllers before the reply is sent.
func (s *Service) handleOperationMode(target mode.OperationMode) error {
	if err := s.modeCtrl.SetOperationMode(target); err != nil {
		return err
	}

	s.publishModes()
	s.publishState()

	return nil
}

// handleSourceMode applies a source mode change.
func (s *Service) handleSourceMode(target mode.SourceMode) error {
	if err := s.modeCtrl.SetSourceMode(target); err != nil {
		return err
	}

	s.publishModes()
	s.publishState()

	return nil
}

// handleProcedureRequest selects the procedure for the next cycle, gated by
// the same origin permission as commands.
func (s *Service) handleProcedureRequest(origin mode.Origin, id int64) error {
	if !s.modeCtrl.PermitsOrigin(origin) {
		return fmt.Errorf("%w: %s origin not permitted in mode %s/%s",
			standarderrors.ErrProcedureSwitchRejected, origin,
			s.modeCtrl.OperationMode(), s.modeCtrl.SourceMode())
	}

	if err := s.procs.Request(id); err != nil {
		return err
	}

	s.publishProcedures()

	return nil
}

// handleBodyDone auto-advances a transient state whose body completed. A
// stale notification (the state already moved on) is discarded; a steady
// state simply keeps resting. EXECUTE only advances when the bound procedure
// is self-completing.
func (s *Service) handleBodyDone(bodyState statemachine.State) {
	current := s.machine.Current()
	if current != bodyState {
		s.logger.Debugf("Discarding stale completion of %s body, state is %s", bodyState, current)

		return
	}

	if current.IsSteady() {
		return
	}

	if current == statemachine.StateExecute &&
		(s.currentProc == nil || !s.currentProc.IsSelfCompleting()) {
		s.logger.Debugf("Execute body completed but procedure is not self-completing, resting")

		return
	}

	newState, err := s.machine.AdvanceDone(context.Background())
	if err != nil {
		s.logger.Errorf("Auto-advance from %s failed: %v", current, err)

		return
	}

	metrics.IncStateTransition(s.name, string(newState))
	s.afterTransition(newState)
}

// handleBodyFault drives the service to aborted after a body fault. The
// internal abort bypasses mode gating; a fault of the aborting body itself
// falls through to a forced aborted state.
func (s *Service) handleBodyFault(bodyState statemachine.State, bodyErr error) {
	metrics.IncBodyFailure(s.name, string(bodyState))
	sentry.ReportIssuef(sentry.IssueTypeError, s.logger,
		"Service %s: %s body faulted: %v", s.name, bodyState, bodyErr)

	current := s.machine.Current()
	if current != bodyState {
		s.logger.Warnf("Discarding stale fault of %s body, state is %s", bodyState, current)

		return
	}

	switch current {
	case statemachine.StateAborted:
		return
	case statemachine.StateAborting:
		s.machine.ForceState(statemachine.StateAborted)
		s.afterTransition(statemachine.StateAborted)

		return
	}

	newState, err := s.machine.RequestTransition(context.Background(), statemachine.CommandAbort)
	if err != nil {
		// no table entry left, force the terminal state directly
		s.machine.ForceState(statemachine.StateAborted)
		newState = statemachine.StateAborted
	}

	metrics.IncStateTransition(s.name, string(newState))
	s.afterTransition(newState)
}

// afterTransition publishes the new state and hands the worker slot over to
// the entered state's body. Returning to idle releases the bound procedure
// and re-opens the offline mode; everywhere else offline stays locked.
func (s *Service) afterTransition(newState statemachine.State) {
	if newState == statemachine.StateIdle {
		s.procs.Release()
		s.currentProc = nil
		s.publishProcedures()
		s.modeCtrl.AllowOffline(true)
	} else {
		s.modeCtrl.AllowOffline(false)
	}

	s.publishState()
	s.switchBody(newState)
}

// switchBody hands the worker slot to the entered state's body. A join
// timeout of the outgoing body is a fault: the service is forced to aborted
// and no new body starts while the stuck worker is still alive.
func (s *Service) switchBody(newState statemachine.State) {
	err := s.exec.Switch(newState, s.currentProc, s.bodies.bodyFor(newState, s.logger))
	if err == nil {
		return
	}

	metrics.IncBodyFailure(s.name, string(newState))
	sentry.ReportIssuef(sentry.IssueTypeError, s.logger,
		"Service %s: body hand-off to %s failed: %v", s.name, newState, err)

	if errors.Is(err, standarderrors.ErrBodyJoinTimeout) &&
		s.machine.Current() != statemachine.StateAborted {
		s.machine.ForceState(statemachine.StateAborted)
		s.publishState()
	}
}
