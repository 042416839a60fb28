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

package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zaptest"

	"github.com/united-manufacturing-hub/pea-core/pkg/standarderrors"
	"github.com/united-manufacturing-hub/pea-core/pkg/statemachine"
)

func TestExecution(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Execution Suite")
}

// recorder collects body enter/exit events for overlap checks.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) enter(state statemachine.State, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, "enter:"+string(state))
}

func (r *recorder) exit(state statemachine.State, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, "exit:"+string(state))
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string{}, r.events...)
}

var _ = Describe("Controller", func() {
	var (
		c   *Controller
		rec *recorder

		doneMu sync.Mutex
		dones  []statemachine.State
		faults []error
	)

	blockingBody := func(ctx context.Context, _ *Run) error {
		<-ctx.Done()

		return ctx.Err()
	}

	BeforeEach(func() {
		rec = &recorder{}
		dones = nil
		faults = nil

		c = NewController(time.Second, zaptest.NewLogger(GinkgoT()).Sugar())
		c.SetCallbacks(
			func(state statemachine.State) {
				doneMu.Lock()
				defer doneMu.Unlock()

				dones = append(dones, state)
			},
			func(_ statemachine.State, err error) {
				doneMu.Lock()
				defer doneMu.Unlock()

				faults = append(faults, err)
			},
		)
		c.SetHooks(rec.enter, rec.exit)
	})

	AfterEach(func() {
		_ = c.Drain()
	})

	getDones := func() []statemachine.State {
		doneMu.Lock()
		defer doneMu.Unlock()

		return append([]statemachine.State{}, dones...)
	}

	getFaults := func() []error {
		doneMu.Lock()
		defer doneMu.Unlock()

		return append([]error{}, faults...)
	}

	It("reports a completed body via the done callback", func() {
		body := func(_ context.Context, _ *Run) error { return nil }

		Expect(c.Switch(statemachine.StateStarting, nil, body)).To(Succeed())
		Eventually(getDones).Should(ConsistOf(statemachine.StateStarting))
		Expect(getFaults()).To(BeEmpty())
	})

	It("does not report a cancelled body as done", func() {
		Expect(c.Switch(statemachine.StateExecute, nil, blockingBody)).To(Succeed())
		Expect(c.Switch(statemachine.StatePausing, nil,
			func(_ context.Context, _ *Run) error { return nil })).To(Succeed())

		Eventually(getDones).Should(ConsistOf(statemachine.StatePausing))
		Consistently(getFaults, 100*time.Millisecond).Should(BeEmpty())
	})

	It("never runs two bodies at once", func() {
		states := []statemachine.State{
			statemachine.StateStarting,
			statemachine.StateExecute,
			statemachine.StatePausing,
			statemachine.StatePaused,
			statemachine.StateStopping,
		}

		for _, s := range states {
			Expect(c.Switch(s, nil, blockingBody)).To(Succeed())
		}

		Expect(c.Drain()).To(Succeed())

		events := rec.snapshot()
		Expect(events).To(HaveLen(2 * len(states)))

		depth := 0
		for _, e := range events {
			if e[:5] == "enter" {
				depth++
			} else {
				depth--
			}

			Expect(depth).To(BeNumerically("<=", 1), "overlapping bodies: %v", events)
			Expect(depth).To(BeNumerically(">=", 0))
		}
	})

	It("exposes the running state", func() {
		_, ok := c.Running()
		Expect(ok).To(BeFalse())

		Expect(c.Switch(statemachine.StateExecute, nil, blockingBody)).To(Succeed())

		state, ok := c.Running()
		Expect(ok).To(BeTrue())
		Expect(state).To(Equal(statemachine.StateExecute))
	})

	Describe("faults", func() {
		It("reports a body error", func() {
			bodyErr := errors.New("valve stuck")
			body := func(_ context.Context, _ *Run) error { return bodyErr }

			Expect(c.Switch(statemachine.StateExecute, nil, body)).To(Succeed())
			Eventually(getFaults).Should(ConsistOf(bodyErr))
			Expect(getDones()).To(BeEmpty())
		})

		It("recovers a body panic into a fault", func() {
			body := func(_ context.Context, _ *Run) error { panic("boom") }

			Expect(c.Switch(statemachine.StateExecute, nil, body)).To(Succeed())

			Eventually(getFaults).Should(HaveLen(1))
			Expect(getFaults()[0]).To(MatchError(standarderrors.ErrBodyExecutionFailure))
		})

		It("swallows errors from an already-cancelled body", func() {
			Expect(c.Switch(statemachine.StateExecute, nil, blockingBody)).To(Succeed())
			Expect(c.Drain()).To(Succeed())

			Consistently(getFaults, 100*time.Millisecond).Should(BeEmpty())
		})
	})

	Describe("join timeout", func() {
		var release chan struct{}

		stubborn := func(_ context.Context, _ *Run) error {
			<-release

			return nil
		}

		BeforeEach(func() {
			release = make(chan struct{})
			c = NewController(50*time.Millisecond, zaptest.NewLogger(GinkgoT()).Sugar())
			c.SetCallbacks(nil, nil)
		})

		AfterEach(func() {
			close(release)
			_ = c.Drain()
		})

		It("refuses the hand-off while the old body is stuck", func() {
			Expect(c.Switch(statemachine.StateExecute, nil, stubborn)).To(Succeed())

			err := c.Switch(statemachine.StateStopping, nil, blockingBody)
			Expect(err).To(MatchError(standarderrors.ErrBodyJoinTimeout))

			// still refused on retry, the worker has not terminated
			err = c.Switch(statemachine.StateStopping, nil, blockingBody)
			Expect(err).To(MatchError(standarderrors.ErrBodyJoinTimeout))
		})

		It("allows the hand-off once the stuck body terminated", func() {
			Expect(c.Switch(statemachine.StateExecute, nil, stubborn)).To(Succeed())
			Expect(c.Switch(statemachine.StateStopping, nil, blockingBody)).
				To(MatchError(standarderrors.ErrBodyJoinTimeout))

			close(release)
			release = make(chan struct{})

			Eventually(func() error {
				return c.Switch(statemachine.StateStopping, nil, blockingBody)
			}).Should(Succeed())
		})
	})

	Describe("Run", func() {
		It("hands the bound procedure and the active flag to the body", func() {
			seen := make(chan bool, 1)

			body := func(_ context.Context, run *Run) error {
				seen <- run.Active() && run.Procedure() == nil &&
					run.State() == statemachine.StateExecute

				return nil
			}

			Expect(c.Switch(statemachine.StateExecute, nil, body)).To(Succeed())
			Eventually(seen).Should(Receive(BeTrue()))
		})

		It("clears the active flag on cancellation", func() {
			active := make(chan bool, 1)

			body := func(ctx context.Context, run *Run) error {
				<-ctx.Done()
				active <- run.Active()

				return ctx.Err()
			}

			Expect(c.Switch(statemachine.StateExecute, nil, body)).To(Succeed())
			Expect(c.Drain()).To(Succeed())
			Eventually(active).Should(Receive(BeFalse()))
		})
	})
})
