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

package procedure

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/pea-core/pkg/standarderrors"
)

// IdleCheck reports whether the owning service currently rests in idle.
// Injected by the service so the controller does not depend on the state
// machine package.
type IdleCheck func() bool

// Controller manages procedure selection and binding for one service.
// Requested may change while the service is idle; current is committed on
// the idle->starting transition and stays bound until the cycle returns to
// idle.
type Controller struct {
	// mu protects requested/current and the registry
	mu sync.RWMutex

	procedures map[int64]*Procedure
	order      []int64
	defaultID  int64

	requestedID int64
	currentID   int64

	isIdle IdleCheck

	logger *zap.SugaredLogger
}

// NewController creates an empty procedure controller.
func NewController(logger *zap.SugaredLogger) *Controller {
	return &Controller{
		procedures: make(map[int64]*Procedure),
		isIdle:     func() bool { return true },
		logger:     logger,
	}
}

// SetIdleCheck wires the service's idle predicate. Must be called before
// the system starts.
func (c *Controller) SetIdleCheck(check IdleCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isIdle = check
}

// Register adds a procedure to the controller. Ids are unique and at most
// one procedure may be flagged as default.
func (c *Controller) Register(p *Procedure) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.procedures[p.ID()]; exists {
		return fmt.Errorf("duplicate procedure id %d", p.ID())
	}

	if p.IsDefault() {
		if c.defaultID != 0 {
			return fmt.Errorf("procedure %d: default procedure already registered (id %d)", p.ID(), c.defaultID)
		}

		c.defaultID = p.ID()
	}

	c.procedures[p.ID()] = p
	c.order = append(c.order, p.ID())

	return nil
}

// Procedures returns all registered procedures in registration order.
func (c *Controller) Procedures() []*Procedure {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Procedure, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.procedures[id])
	}

	return out
}

// Get returns a procedure by id.
func (c *Controller) Get(id int64) (*Procedure, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.procedures[id]

	return p, ok
}

// Request selects the procedure for the next cycle. Only legal while the
// service is idle; otherwise rejected without mutation.
func (c *Controller) Request(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isIdle() {
		return fmt.Errorf("%w: service is not idle", standarderrors.ErrProcedureSwitchRejected)
	}

	if _, exists := c.procedures[id]; !exists {
		return fmt.Errorf("%w: unknown procedure id %d", standarderrors.ErrProcedureSwitchRejected, id)
	}

	c.requestedID = id
	c.logger.Debugf("Procedure %d requested", id)

	return nil
}

// RequestedID returns the currently requested procedure id, 0 if none.
func (c *Controller) RequestedID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.requestedID
}

// CurrentID returns the bound procedure id, 0 outside a cycle.
func (c *Controller) CurrentID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.currentID
}

// Current returns the bound procedure.
func (c *Controller) Current() (*Procedure, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.procedures[c.currentID]

	return p, ok
}

// Commit binds the requested procedure (or the default if none is
// requested) for the starting cycle and applies its parameters. Called by
// the service on the idle->starting transition.
func (c *Controller) Commit() (*Procedure, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.requestedID
	if id == 0 {
		id = c.defaultID
	}

	p, exists := c.procedures[id]
	if !exists {
		return nil, fmt.Errorf("no procedure requested and no default procedure registered")
	}

	c.currentID = id
	p.applyParameters()
	c.logger.Debugf("Procedure %d committed", id)

	return p, nil
}

// Release unbinds the current procedure when the cycle returns to idle.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentID = 0
}
