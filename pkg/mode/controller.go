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

package mode

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/pea-core/pkg/standarderrors"
)

// Callback is invoked on entering or leaving an operation mode. Callbacks
// run synchronously inside the mode change, in registration order.
type Callback func()

// Controller holds the operation and source mode of one service or element.
// A controller may be linked as a child of another controller: the parent
// then cascades every mode change to the child within the same update, so no
// observer ever reads a child with a stale mode after the parent's setter
// returned.
type Controller struct {
	// mu serializes mode changes and cascades for this controller
	mu sync.RWMutex

	name string

	opFSM  *fsm.FSM
	srcFSM *fsm.FSM

	// offlineAllowed is cleared by the service while a cycle is running
	offlineAllowed bool

	children []*Controller

	enterCallbacks map[OperationMode][]Callback
	exitCallbacks  map[OperationMode][]Callback

	logger *zap.SugaredLogger
}

// NewController creates a controller resting in offline/offline.
func NewController(name string, logger *zap.SugaredLogger) *Controller {
	return &Controller{
		name:           name,
		opFSM:          fsm.NewFSM(string(OperationOffline), fsm.Events(operationEvents()), fsm.Callbacks{}),
		srcFSM:         fsm.NewFSM(string(SourceOffline), fsm.Events(sourceEvents()), fsm.Callbacks{}),
		offlineAllowed: true,
		enterCallbacks: make(map[OperationMode][]Callback),
		exitCallbacks:  make(map[OperationMode][]Callback),
		logger:         logger,
	}
}

// OperationMode returns the current operation mode.
func (c *Controller) OperationMode() OperationMode {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return OperationMode(c.opFSM.Current())
}

// SourceMode returns the current source mode.
func (c *Controller) SourceMode() SourceMode {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return SourceMode(c.srcFSM.Current())
}

// PermitsOrigin reports whether the current mode combination allows the
// given command/write origin.
func (c *Controller) PermitsOrigin(origin Origin) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Permits(OperationMode(c.opFSM.Current()), SourceMode(c.srcFSM.Current()), origin)
}

// AllowOffline enables or disables switching the operation mode to offline.
// The service clears this while a cycle is running and restores it in idle.
func (c *Controller) AllowOffline(allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.offlineAllowed = allowed
}

// AddEnterCallback registers fn to run when the operation mode enters m.
func (c *Controller) AddEnterCallback(m OperationMode, fn Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enterCallbacks[m] = append(c.enterCallbacks[m], fn)
}

// AddExitCallback registers fn to run when the operation mode leaves m.
func (c *Controller) AddExitCallback(m OperationMode, fn Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.exitCallbacks[m] = append(c.exitCallbacks[m], fn)
}

// AddLinkedChild registers a dependent controller and immediately aligns it
// with this controller's current modes. Delivery order on later cascades is
// registration order.
func (c *Controller) AddLinkedChild(child *Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.children = append(c.children, child)
	child.forceModes(OperationMode(c.opFSM.Current()), SourceMode(c.srcFSM.Current()))
}

// SetOperationMode steps the operation mode to target. Skipping the
// intermediate mode is rejected without side effects. On success the source
// mode is derived (automatic sources internally, everything else goes
// offline) and the change cascades to every linked child before returning.
func (c *Controller) SetOperationMode(target OperationMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := OperationMode(c.opFSM.Current())
	if current == target {
		return nil
	}

	if target == OperationOffline && !c.offlineAllowed {
		return fmt.Errorf("%w: %s: offline not allowed while service is not idle",
			standarderrors.ErrModeTransitionRejected, c.name)
	}

	if !c.opFSM.Can(string(target)) {
		return fmt.Errorf("%w: %s: %s -> %s skips the intermediate mode",
			standarderrors.ErrModeTransitionRejected, c.name, current, target)
	}

	if err := c.opFSM.Event(context.Background(), string(target)); err != nil {
		return fmt.Errorf("%w: %s: %v", standarderrors.ErrModeTransitionRejected, c.name, err)
	}

	c.srcFSM.SetState(string(derivedSource(target)))
	c.logger.Debugf("%s: operation mode is now %s", c.name, target)

	c.runCallbacks(current, target)

	for _, child := range c.children {
		child.forceModes(target, derivedSource(target))
	}

	return nil
}

// SetSourceMode steps the source mode to target. Source modes are only
// switchable in automatic operation mode, and only between neighbours.
func (c *Controller) SetSourceMode(target SourceMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if OperationMode(c.opFSM.Current()) != OperationAutomatic {
		return fmt.Errorf("%w: %s: source mode requires automatic operation mode",
			standarderrors.ErrModeTransitionRejected, c.name)
	}

	current := SourceMode(c.srcFSM.Current())
	if current == target {
		return nil
	}

	if !c.srcFSM.Can(string(target)) {
		return fmt.Errorf("%w: %s: %s -> %s skips the intermediate mode",
			standarderrors.ErrModeTransitionRejected, c.name, current, target)
	}

	if err := c.srcFSM.Event(context.Background(), string(target)); err != nil {
		return fmt.Errorf("%w: %s: %v", standarderrors.ErrModeTransitionRejected, c.name, err)
	}

	c.logger.Debugf("%s: source mode is now %s", c.name, target)

	for _, child := range c.children {
		child.forceSource(target)
	}

	return nil
}

// forceModes aligns this controller with a parent's cascade. The cascade is
// authoritative: adjacency is not re-checked, callbacks still run.
func (c *Controller) forceModes(op OperationMode, src SourceMode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := OperationMode(c.opFSM.Current())

	c.opFSM.SetState(string(op))
	c.srcFSM.SetState(string(src))

	if previous != op {
		c.logger.Debugf("%s: operation mode cascaded to %s", c.name, op)
		c.runCallbacks(previous, op)
	}

	for _, child := range c.children {
		child.forceModes(op, src)
	}
}

// forceSource aligns the source mode with a parent's cascade.
func (c *Controller) forceSource(src SourceMode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.srcFSM.SetState(string(src))

	for _, child := range c.children {
		child.forceSource(src)
	}
}

// runCallbacks fires exit callbacks for the mode being left and enter
// callbacks for the mode being entered. Caller holds c.mu.
func (c *Controller) runCallbacks(from, to OperationMode) {
	for _, fn := range c.exitCallbacks[from] {
		fn()
	}

	for _, fn := range c.enterCallbacks[to] {
		fn()
	}
}
