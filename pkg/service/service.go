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

// Package service composes the state machine, the mode controller, the
// procedure controller and the execution controller into one PEA service.
// All mutating requests (commands, mode changes, procedure selection, body
// outcomes) are funnelled through a single dispatcher goroutine, so admission
// decisions and the resulting worker hand-offs are linearizable per service.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/pea-core/pkg/attribute"
	"github.com/united-manufacturing-hub/pea-core/pkg/elements"
	"github.com/united-manufacturing-hub/pea-core/pkg/execution"
	"github.com/united-manufacturing-hub/pea-core/pkg/logger"
	"github.com/united-manufacturing-hub/pea-core/pkg/metrics"
	"github.com/united-manufacturing-hub/pea-core/pkg/mode"
	"github.com/united-manufacturing-hub/pea-core/pkg/procedure"
	"github.com/united-manufacturing-hub/pea-core/pkg/standarderrors"
	"github.com/united-manufacturing-hub/pea-core/pkg/statemachine"
)

const (
	defaultJoinTimeout = 5 * time.Second
	defaultQueueSize   = 32
)

// Config carries the per-service settings.
type Config struct {
	Name        string
	Description string

	// JoinTimeout bounds how long an outgoing state body may take to
	// terminate after cancellation before it is treated as faulted.
	JoinTimeout time.Duration

	// Precedence decides between commands pending in the same admission
	// cycle. Defaults to ABORT > STOP > HOLD > arrival order.
	Precedence statemachine.Precedence

	// QueueSize is the control plane request buffer.
	QueueSize int
}

// Service is one PEA service: a state machine, its mode and procedure
// controllers, the worker slot for state bodies and the attribute set the
// transport layer observes.
type Service struct {
	name        string
	description string

	machine  *statemachine.StateMachine
	modeCtrl *mode.Controller
	procs    *procedure.Controller
	exec     *execution.Controller

	bodies     StateBodies
	precedence statemachine.Precedence

	attrs           *attribute.Registry
	attrStateCur    *attribute.Attribute
	attrCommandEn   *attribute.Attribute
	attrProcReq     *attribute.Attribute
	attrProcCur     *attribute.Attribute
	attrOpMode      *attribute.Attribute
	attrSourceMode  *attribute.Attribute

	// the per-origin command and procedure wire cells, kept for the
	// dispatcher to clear after consumption
	attrCommandChans map[mode.Origin]*attribute.Attribute
	attrProcChans    map[mode.Origin]*attribute.Attribute

	configParams     map[string]elements.Parameter
	configParamOrder []string

	// currentProc is only touched on the dispatcher goroutine
	currentProc *procedure.Procedure

	requests chan request

	// startOnce/stopOnce make Start and Stop idempotent
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	closing   chan struct{}
	stopped   chan struct{}

	logger *zap.SugaredLogger
}

// New creates a service. The mandatory state bodies (starting, execute,
// completing) must be present.
func New(cfg Config, bodies StateBodies) (*Service, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("service name must not be empty")
	}

	if err := bodies.Validate(); err != nil {
		return nil, fmt.Errorf("service %s: %w", cfg.Name, err)
	}

	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = defaultJoinTimeout
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	if cfg.Precedence == nil {
		cfg.Precedence = statemachine.DefaultPrecedence
	}

	log := logger.For(logger.ComponentService).With("service", cfg.Name)

	s := &Service{
		name:         cfg.Name,
		description:  cfg.Description,
		machine:      statemachine.New(log),
		modeCtrl:     mode.NewController(cfg.Name, log),
		procs:        procedure.NewController(log),
		exec:         execution.NewController(cfg.JoinTimeout, log),
		bodies:       bodies,
		precedence:   cfg.Precedence,
		attrs:        attribute.NewRegistry(),
		configParams: make(map[string]elements.Parameter),
		requests:     make(chan request, cfg.QueueSize),
		closing:      make(chan struct{}),
		stopped:      make(chan struct{}),
		logger:       log,
	}

	s.registerAttributes()

	s.procs.SetIdleCheck(func() bool {
		return s.machine.Current() == statemachine.StateIdle
	})

	// configuration parameters latch their requested values when the
	// service leaves offline mode
	s.modeCtrl.AddExitCallback(mode.OperationOffline, s.applyConfigurationParameters)

	s.exec.SetCallbacks(s.notifyBodyDone, s.notifyBodyFault)

	// one worker at a time, so pairing enter and exit with a single slot
	// is enough for the duration observation
	var bodyStart time.Time

	s.exec.SetHooks(
		func(_ statemachine.State, at time.Time) { bodyStart = at },
		func(state statemachine.State, at time.Time) {
			metrics.ObserveBodyDuration(cfg.Name, string(state), at.Sub(bodyStart))
		},
	)

	return s, nil
}

// registerAttributes builds the service-level attribute set. Command and
// procedure channels carry write hooks that feed the control plane; the
// remaining attributes are core-side indications.
func (s *Service) registerAttributes() {
	s.attrStateCur = s.attrs.MustAdd(attribute.New("StateCur", attribute.TypeInt,
		statemachine.StateIdle.Code()))
	s.attrCommandEn = s.attrs.MustAdd(attribute.New("CommandEn", attribute.TypeInt, int64(0)))

	s.attrCommandChans = map[mode.Origin]*attribute.Attribute{
		mode.OriginOperator: s.attrs.MustAdd(attribute.New("CommandOp", attribute.TypeInt, int64(0)).
			WithWriteHook(func(v any) { s.commandFromWire(mode.OriginOperator, v.(int64)) })),
		mode.OriginInternal: s.attrs.MustAdd(attribute.New("CommandInt", attribute.TypeInt, int64(0)).
			WithWriteHook(func(v any) { s.commandFromWire(mode.OriginInternal, v.(int64)) })),
		mode.OriginExternal: s.attrs.MustAdd(attribute.New("CommandExt", attribute.TypeInt, int64(0)).
			WithWriteHook(func(v any) { s.commandFromWire(mode.OriginExternal, v.(int64)) })),
	}

	s.attrProcChans = map[mode.Origin]*attribute.Attribute{
		mode.OriginOperator: s.attrs.MustAdd(attribute.New("ProcedureOp", attribute.TypeInt, int64(0)).
			WithWriteHook(func(v any) { s.procedureFromWire(mode.OriginOperator, v.(int64)) })),
		mode.OriginInternal: s.attrs.MustAdd(attribute.New("ProcedureInt", attribute.TypeInt, int64(0)).
			WithWriteHook(func(v any) { s.procedureFromWire(mode.OriginInternal, v.(int64)) })),
		mode.OriginExternal: s.attrs.MustAdd(attribute.New("ProcedureExt", attribute.TypeInt, int64(0)).
			WithWriteHook(func(v any) { s.procedureFromWire(mode.OriginExternal, v.(int64)) })),
	}

	s.attrProcReq = s.attrs.MustAdd(attribute.New("ProcedureReq", attribute.TypeInt, int64(0)))
	s.attrProcCur = s.attrs.MustAdd(attribute.New("ProcedureCur", attribute.TypeInt, int64(0)))

	s.attrOpMode = s.attrs.MustAdd(attribute.New("OpMode", attribute.TypeString,
		string(mode.OperationOffline)))
	s.attrSourceMode = s.attrs.MustAdd(attribute.New("SourceMode", attribute.TypeString,
		string(mode.SourceOffline)))
}

// Name returns the service name.
func (s *Service) Name() string {
	return s.name
}

// Description returns the service description.
func (s *Service) Description() string {
	return s.description
}

// Attributes returns the service-level attribute set.
func (s *Service) Attributes() *attribute.Registry {
	return s.attrs
}

// ModeController returns the service mode controller.
func (s *Service) ModeController() *mode.Controller {
	return s.modeCtrl
}

// Procedures returns the procedure controller for registration before Start.
func (s *Service) Procedures() *procedure.Controller {
	return s.procs
}

// State returns the current state.
func (s *Service) State() statemachine.State {
	return s.machine.Current()
}

// CommandEn returns the current command enable mask.
func (s *Service) CommandEn() int64 {
	return s.machine.CommandEnMask()
}

// AddConfigurationParameter registers a service-scoped configuration
// parameter and links its mode controller to the service's. Only legal
// before Start.
func (s *Service) AddConfigurationParameter(p elements.Parameter) error {
	if s.started.Load() {
		return fmt.Errorf("service %s: cannot add configuration parameter after start", s.name)
	}

	if _, exists := s.configParams[p.TagName()]; exists {
		return fmt.Errorf("service %s: duplicate configuration parameter %s", s.name, p.TagName())
	}

	s.configParams[p.TagName()] = p
	s.configParamOrder = append(s.configParamOrder, p.TagName())
	s.modeCtrl.AddLinkedChild(p.ModeController())

	return nil
}

// ConfigurationParameters returns the configuration parameters in
// registration order.
func (s *Service) ConfigurationParameters() []elements.Parameter {
	out := make([]elements.Parameter, 0, len(s.configParamOrder))
	for _, name := range s.configParamOrder {
		out = append(out, s.configParams[name])
	}

	return out
}

// applyConfigurationParameters latches the requested value of every
// configuration parameter. Runs inside the mode change leaving offline.
func (s *Service) applyConfigurationParameters() {
	for _, name := range s.configParamOrder {
		s.configParams[name].Apply()
	}
}

// Start freezes the attribute set, publishes the initial indications and
// launches the control plane dispatcher. Idempotent.
func (s *Service) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		s.attrs.Freeze()

		// procedure parameters follow the service mode like configuration
		// parameters do
		for _, proc := range s.procs.Procedures() {
			for _, param := range proc.Parameters() {
				s.modeCtrl.AddLinkedChild(param.ModeController())
			}
		}

		s.publishState()
		s.publishModes()

		s.switchBody(statemachine.StateIdle)

		go s.dispatch()

		s.logger.Infof("Service %s started in state %s", s.name, s.machine.Current())
	})
}

// Stop shuts the control plane down and joins the running body. Requests
// submitted after Stop fail with ErrServiceShuttingDown.
func (s *Service) Stop() error {
	var drainErr error

	s.stopOnce.Do(func() {
		close(s.closing)
		<-s.stopped

		drainErr = s.exec.Drain()
		if drainErr != nil {
			s.logger.Warnf("Body did not terminate during shutdown: %v", drainErr)
		}

		s.logger.Infof("Service %s stopped", s.name)
	})

	return drainErr
}

// Command submits a service command from the given origin and waits for the
// admission decision.
func (s *Service) Command(ctx context.Context, cmd statemachine.Command, origin mode.Origin) error {
	return s.submitWait(ctx, request{
		kind:   kindCommand,
		cmd:    cmd,
		origin: origin,
	})
}

// SetOperationMode changes the service operation mode. Serialized with
// command admission so mode gates never move mid-decision.
func (s *Service) SetOperationMode(ctx context.Context, target mode.OperationMode) error {
	return s.submitWait(ctx, request{kind: kindOperationMode, opMode: target})
}

// SetSourceMode changes the service source mode.
func (s *Service) SetSourceMode(ctx context.Context, target mode.SourceMode) error {
	return s.submitWait(ctx, request{kind: kindSourceMode, srcMode: target})
}

// RequestProcedure selects the procedure for the next cycle from the given
// origin. Rejected outside idle.
func (s *Service) RequestProcedure(ctx context.Context, id int64, origin mode.Origin) error {
	return s.submitWait(ctx, request{kind: kindProcedure, procedureID: id, origin: origin})
}

// commandFromWire is the write hook behind CommandOp/CommandInt/CommandExt.
// Fire and forget: the wire has no reply channel, rejections are logged by
// the dispatcher.
func (s *Service) commandFromWire(origin mode.Origin, code int64) {
	cmd, ok := statemachine.CommandFromCode(code)
	if !ok {
		s.logger.Warnf("Ignoring unknown command code %d on %s channel", code, origin)

		return
	}

	s.submitAsync(request{kind: kindCommand, cmd: cmd, origin: origin})
}

// procedureFromWire is the write hook behind ProcedureOp/Int/Ext.
func (s *Service) procedureFromWire(origin mode.Origin, id int64) {
	s.submitAsync(request{kind: kindProcedure, procedureID: id, origin: origin})
}

// notifyBodyDone feeds a clean body completion into the control plane. Runs
// on the worker goroutine after the worker is observably terminated.
func (s *Service) notifyBodyDone(state statemachine.State) {
	s.submitAsync(request{kind: kindBodyDone, bodyState: state})
}

// notifyBodyFault feeds a body fault into the control plane.
func (s *Service) notifyBodyFault(state statemachine.State, err error) {
	s.submitAsync(request{kind: kindBodyFault, bodyState: state, bodyErr: err})
}

// submitWait enqueues a request and waits for the dispatcher's decision.
func (s *Service) submitWait(ctx context.Context, req request) error {
	// the queue is buffered, so a send could still succeed after the
	// dispatcher exited; check for shutdown first
	select {
	case <-s.closing:
		return standarderrors.ErrServiceShuttingDown
	default:
	}

	req.reply = make(chan error, 1)

	select {
	case s.requests <- req:
	case <-s.closing:
		return standarderrors.ErrServiceShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submitAsync enqueues a request without waiting for the outcome.
func (s *Service) submitAsync(req request) {
	select {
	case <-s.closing:
		s.logger.Debugf("Dropping request during shutdown")

		return
	default:
	}

	select {
	case s.requests <- req:
	case <-s.closing:
		s.logger.Debugf("Dropping request during shutdown")
	}
}

// publishState pushes StateCur and CommandEn to the transport.
func (s *Service) publishState() {
	current := s.machine.Current()

	_ = s.attrStateCur.Set(current.Code())
	_ = s.attrCommandEn.Set(s.machine.CommandEnMask())

	metrics.SetCurrentState(s.name, string(current), current.Code())
}

// publishModes pushes the mode indications to the transport.
func (s *Service) publishModes() {
	_ = s.attrOpMode.Set(string(s.modeCtrl.OperationMode()))
	_ = s.attrSourceMode.Set(string(s.modeCtrl.SourceMode()))
}

// publishProcedures pushes the procedure indications to the transport.
func (s *Service) publishProcedures() {
	_ = s.attrProcReq.Set(s.procs.RequestedID())
	_ = s.attrProcCur.Set(s.procs.CurrentID())
}

// resetCommandChannel clears a command wire cell after its code has been
// consumed. The channels are momentary switches, not latches.
func (s *Service) resetCommandChannel(origin mode.Origin) {
	resetChannel(s.attrCommandChans[origin])
}

// resetProcedureChannels clears the procedure wire cells. Runs when a cycle
// binds its procedure; the requested id survives in ProcedureReq.
func (s *Service) resetProcedureChannels() {
	for _, attr := range s.attrProcChans {
		resetChannel(attr)
	}
}

func resetChannel(attr *attribute.Attribute) {
	if v, ok := attr.Value().(int64); ok && v != 0 {
		_ = attr.Set(int64(0))
	}
}
