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

// Package execution runs the state bodies of a service: exactly one worker
// goroutine per service, torn down before its successor starts. Cancellation
// is cooperative: bodies receive a context and a polled active flag and are
// expected to return promptly once either fires; a body that ignores both
// past the join timeout is treated as faulted.
package execution

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/pea-core/pkg/procedure"
	"github.com/united-manufacturing-hub/pea-core/pkg/standarderrors"
	"github.com/united-manufacturing-hub/pea-core/pkg/statemachine"
)

// Run is the handle a state body receives: the bound procedure (nil while no
// cycle is running) and the polled cancellation flag.
type Run struct {
	state  statemachine.State
	proc   *procedure.Procedure
	active *atomic.Bool
}

// State returns the state this body runs for.
func (r *Run) State() statemachine.State {
	return r.state
}

// Procedure returns the procedure bound for the running cycle, nil outside
// a cycle (e.g. in idle or after abort).
func (r *Run) Procedure() *procedure.Procedure {
	return r.proc
}

// Active reports whether the state machine is still in this body's state.
// Long-running bodies must poll this (or select on the context) at a
// reasonable cadence.
func (r *Run) Active() bool {
	return r.active.Load()
}

// Body is an integrator-supplied state body. A nil error return with the
// body still active signals completion; returning after cancellation (in
// whatever way) is a clean exit; any other error is a body fault.
type Body func(ctx context.Context, run *Run) error

// DoneFunc is called when a body completed without being cancelled.
// FaultFunc is called when a body returned an error or panicked.
// Both run on the worker goroutine after it is observably terminated, so the
// receiver may immediately start a successor body.
type (
	DoneFunc  func(state statemachine.State)
	FaultFunc func(state statemachine.State, err error)
)

// Hook instruments body entry and exit for tests and tracing.
type Hook func(state statemachine.State, at time.Time)

// worker is one running state body.
type worker struct {
	state  statemachine.State
	cancel context.CancelFunc
	active *atomic.Bool
	done   chan struct{}
}

// Controller owns the single worker slot of one service. Switch is only
// called from the service control plane, so calls are already serialized;
// the internal mutex merely guards against misuse.
type Controller struct {
	mu sync.Mutex

	joinTimeout time.Duration

	current *worker

	// generation invalidates callbacks of workers that were abandoned
	// after a join timeout
	generation uint64

	onDone  DoneFunc
	onFault FaultFunc

	enterHook Hook
	exitHook  Hook

	logger *zap.SugaredLogger
}

// NewController creates an execution controller. joinTimeout bounds how long
// an outgoing body may take to terminate after cancellation.
func NewController(joinTimeout time.Duration, logger *zap.SugaredLogger) *Controller {
	return &Controller{
		joinTimeout: joinTimeout,
		logger:      logger,
	}
}

// SetCallbacks wires the completion and fault notifications. Must be called
// before the first Switch.
func (c *Controller) SetCallbacks(onDone DoneFunc, onFault FaultFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onDone = onDone
	c.onFault = onFault
}

// SetHooks attaches body enter/exit instrumentation.
func (c *Controller) SetHooks(enter, exit Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enterHook = enter
	c.exitHook = exit
}

// Switch tears down the current body and starts the body for the entered
// state. It returns only after the outgoing worker has observably
// terminated; if that does not happen within the join timeout, no new body
// is started and ErrBodyJoinTimeout is returned so the caller can drive the
// service to aborted.
func (c *Controller) Switch(state statemachine.State, proc *procedure.Procedure, body Body) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.stopCurrentLocked(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	active := &atomic.Bool{}
	active.Store(true)

	w := &worker{
		state:  state,
		cancel: cancel,
		active: active,
		done:   make(chan struct{}),
	}

	c.current = w
	c.generation++
	generation := c.generation

	run := &Run{state: state, proc: proc, active: active}

	go c.runWorker(ctx, w, run, body, generation)

	return nil
}

// runWorker executes one body and classifies its outcome. The done channel
// is closed before any callback fires, so a callback handler may start the
// next body without deadlocking on this worker.
func (c *Controller) runWorker(ctx context.Context, w *worker, run *Run, body Body, generation uint64) {
	var err error

	if c.enterHook != nil {
		c.enterHook(w.state, time.Now())
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: panic in %s body: %v", standarderrors.ErrBodyExecutionFailure, w.state, r)
			}
		}()

		err = body(ctx, run)
	}()

	cancelled := ctx.Err() != nil || !w.active.Load()

	if c.exitHook != nil {
		c.exitHook(w.state, time.Now())
	}

	close(w.done)

	if !c.isLive(generation) {
		c.logger.Warnf("Abandoned %s body terminated late, outcome discarded", w.state)

		return
	}

	switch {
	case err != nil && !cancelled:
		c.logger.Errorf("Body for state %s faulted: %v", w.state, err)

		if c.onFault != nil {
			c.onFault(w.state, err)
		}
	case err != nil:
		// errors from an already-cancelled body are expected noise
		c.logger.Debugf("Body for state %s returned after cancellation: %v", w.state, err)
	case !cancelled:
		c.logger.Debugf("Body for state %s completed", w.state)

		if c.onDone != nil {
			c.onDone(w.state)
		}
	}
}

// isLive reports whether the worker generation is still the active one.
func (c *Controller) isLive(generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.generation == generation
}

// stopCurrentLocked cancels the running worker and waits for termination.
// Caller holds c.mu.
func (c *Controller) stopCurrentLocked() error {
	w := c.current
	if w == nil {
		return nil
	}

	w.active.Store(false)
	w.cancel()

	select {
	case <-w.done:
		c.current = nil

		return nil
	case <-time.After(c.joinTimeout):
		// the worker stays referenced: a later Switch waits for it again
		// instead of ever running two bodies at once
		c.generation++

		return fmt.Errorf("%w: %s body still running after %s",
			standarderrors.ErrBodyJoinTimeout, w.state, c.joinTimeout)
	}
}

// Running returns the state whose body currently occupies the worker slot.
func (c *Controller) Running() (statemachine.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return "", false
	}

	return c.current.state, true
}

// Drain cancels and joins any running worker. Called on service shutdown.
func (c *Controller) Drain() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.stopCurrentLocked()
	// no successor will start; discard any late outcome
	c.generation++

	return err
}
