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
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/pea-core/pkg/elements"
	"github.com/united-manufacturing-hub/pea-core/pkg/execution"
	"github.com/united-manufacturing-hub/pea-core/pkg/logger"
	"github.com/united-manufacturing-hub/pea-core/pkg/mode"
	"github.com/united-manufacturing-hub/pea-core/pkg/procedure"
	"github.com/united-manufacturing-hub/pea-core/pkg/standarderrors"
	"github.com/united-manufacturing-hub/pea-core/pkg/statemachine"
)

func TestService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Service Suite")
}

var _ = Describe("Service", func() {
	var (
		svc *Service
		ctx context.Context

		// executeRelease unblocks the execute body; executeFail makes it
		// return an error instead
		executeRelease chan struct{}
		executeFail    chan error
	)

	newTestService := func(selfCompleting bool) *Service {
		bodies := StateBodies{
			Starting: func(_ context.Context, _ *execution.Run) error { return nil },
			Execute: func(bodyCtx context.Context, _ *execution.Run) error {
				select {
				case <-executeRelease:
					return nil
				case err := <-executeFail:
					return err
				case <-bodyCtx.Done():
					return bodyCtx.Err()
				}
			},
			Completing: func(_ context.Context, _ *execution.Run) error { return nil },
		}

		s, err := New(Config{Name: "test", JoinTimeout: time.Second}, bodies)
		Expect(err).ToNot(HaveOccurred())

		proc, err := procedure.New(1, "default", "", selfCompleting, true)
		Expect(err).ToNot(HaveOccurred())
		Expect(s.Procedures().Register(proc)).To(Succeed())

		return s
	}

	// toOperator walks the service into operator mode
	toOperator := func(s *Service) {
		Expect(s.SetOperationMode(ctx, mode.OperationOperator)).To(Succeed())
	}

	// toExecute starts a cycle and waits for the execute body to be running
	toExecute := func(s *Service) {
		Expect(s.Command(ctx, statemachine.CommandStart, mode.OriginOperator)).To(Succeed())
		Eventually(s.State).Should(Equal(statemachine.StateExecute))
	}

	BeforeEach(func() {
		ctx = context.Background()
		executeRelease = make(chan struct{})
		executeFail = make(chan error)

		svc = newTestService(true)
		svc.Start()
	})

	AfterEach(func() {
		_ = svc.Stop()
	})

	Describe("construction", func() {
		It("fails fast on missing mandatory bodies", func() {
			_, err := New(Config{Name: "broken"}, StateBodies{
				Execute: func(_ context.Context, _ *execution.Run) error { return nil },
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("starting"))
			Expect(err.Error()).To(ContainSubstring("completing"))
		})

		It("requires a name", func() {
			_, err := New(Config{}, StateBodies{})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("command admission", func() {
		It("rejects every command while offline", func() {
			err := svc.Command(ctx, statemachine.CommandStart, mode.OriginOperator)
			Expect(err).To(MatchError(standarderrors.ErrCommandRejected))
			Expect(svc.State()).To(Equal(statemachine.StateIdle))
		})

		It("rejects external commands in operator mode", func() {
			toOperator(svc)

			err := svc.Command(ctx, statemachine.CommandStart, mode.OriginExternal)
			Expect(err).To(MatchError(standarderrors.ErrCommandRejected))
		})

		It("accepts external commands in automatic/external", func() {
			toOperator(svc)
			Expect(svc.SetOperationMode(ctx, mode.OperationAutomatic)).To(Succeed())
			Expect(svc.SetSourceMode(ctx, mode.SourceExternal)).To(Succeed())

			Expect(svc.Command(ctx, statemachine.CommandStart, mode.OriginExternal)).To(Succeed())
		})

		It("rejects commands without a table entry", func() {
			toOperator(svc)

			err := svc.Command(ctx, statemachine.CommandResume, mode.OriginOperator)
			Expect(err).To(MatchError(standarderrors.ErrCommandRejected))
		})
	})

	Describe("the production cycle", func() {
		BeforeEach(func() {
			toOperator(svc)
		})

		It("auto-advances through starting into execute", func() {
			Expect(svc.Command(ctx, statemachine.CommandStart, mode.OriginOperator)).To(Succeed())
			Eventually(svc.State).Should(Equal(statemachine.StateExecute))
		})

		It("completes a self-completing procedure without a COMPLETE command", func() {
			toExecute(svc)

			close(executeRelease)
			Eventually(svc.State).Should(Equal(statemachine.StateCompleted))
		})

		It("accepts COMPLETE during execute", func() {
			toExecute(svc)

			Expect(svc.Command(ctx, statemachine.CommandComplete, mode.OriginOperator)).To(Succeed())
			Eventually(svc.State).Should(Equal(statemachine.StateCompleted))
		})

		It("returns to idle on RESET and releases the procedure", func() {
			toExecute(svc)
			close(executeRelease)
			Eventually(svc.State).Should(Equal(statemachine.StateCompleted))

			Expect(svc.Procedures().CurrentID()).To(Equal(int64(1)))

			Expect(svc.Command(ctx, statemachine.CommandReset, mode.OriginOperator)).To(Succeed())
			Eventually(svc.State).Should(Equal(statemachine.StateIdle))
			Expect(svc.Procedures().CurrentID()).To(BeZero())
		})

		It("pauses and resumes", func() {
			toExecute(svc)

			Expect(svc.Command(ctx, statemachine.CommandPause, mode.OriginOperator)).To(Succeed())
			Eventually(svc.State).Should(Equal(statemachine.StatePaused))

			Expect(svc.Command(ctx, statemachine.CommandResume, mode.OriginOperator)).To(Succeed())
			Eventually(svc.State).Should(Equal(statemachine.StateExecute))
		})

		It("returns to the held-from state after unhold", func() {
			toExecute(svc)

			Expect(svc.Command(ctx, statemachine.CommandPause, mode.OriginOperator)).To(Succeed())
			Eventually(svc.State).Should(Equal(statemachine.StatePaused))

			Expect(svc.Command(ctx, statemachine.CommandHold, mode.OriginOperator)).To(Succeed())
			Eventually(svc.State).Should(Equal(statemachine.StateHeld))

			Expect(svc.Command(ctx, statemachine.CommandUnhold, mode.OriginOperator)).To(Succeed())
			Eventually(svc.State).Should(Equal(statemachine.StatePaused))
		})

		It("stops mid-cycle", func() {
			toExecute(svc)

			Expect(svc.Command(ctx, statemachine.CommandStop, mode.OriginOperator)).To(Succeed())
			Eventually(svc.State).Should(Equal(statemachine.StateStopped))
		})
	})

	Describe("non-self-completing procedures", func() {
		BeforeEach(func() {
			_ = svc.Stop()

			svc = newTestService(false)
			svc.Start()
			toOperator(svc)
		})

		It("rests in execute when the body returns", func() {
			toExecute(svc)

			close(executeRelease)
			Consistently(svc.State, 200*time.Millisecond).Should(Equal(statemachine.StateExecute))

			Expect(svc.Command(ctx, statemachine.CommandComplete, mode.OriginOperator)).To(Succeed())
			Eventually(svc.State).Should(Equal(statemachine.StateCompleted))
		})
	})

	Describe("command precedence", func() {
		BeforeEach(func() {
			toOperator(svc)
			toExecute(svc)
		})

		It("lets ABORT win a shared admission cycle and supersedes the loser", func() {
			pauseReply := make(chan error, 1)
			abortReply := make(chan error, 1)

			svc.runCycle([]request{
				{kind: kindCommand, cmd: statemachine.CommandPause, origin: mode.OriginOperator, reply: pauseReply},
				{kind: kindCommand, cmd: statemachine.CommandAbort, origin: mode.OriginOperator, reply: abortReply},
			})

			Expect(<-abortReply).To(Succeed())
			Expect(<-pauseReply).To(MatchError(standarderrors.ErrCommandSuperseded))

			Eventually(svc.State).Should(Equal(statemachine.StateAborted))
		})

		It("lets STOP win over HOLD", func() {
			holdReply := make(chan error, 1)
			stopReply := make(chan error, 1)

			svc.runCycle([]request{
				{kind: kindCommand, cmd: statemachine.CommandHold, origin: mode.OriginOperator, reply: holdReply},
				{kind: kindCommand, cmd: statemachine.CommandStop, origin: mode.OriginOperator, reply: stopReply},
			})

			Expect(<-stopReply).To(Succeed())
			Expect(<-holdReply).To(MatchError(standarderrors.ErrCommandSuperseded))

			Eventually(svc.State).Should(Equal(statemachine.StateStopped))
		})
	})

	Describe("faults", func() {
		BeforeEach(func() {
			toOperator(svc)
		})

		It("drives a body error to aborted", func() {
			toExecute(svc)

			executeFail <- errors.New("sensor failure")
			Eventually(svc.State).Should(Equal(statemachine.StateAborted))

			// recovery requires an explicit reset
			Expect(svc.Command(ctx, statemachine.CommandReset, mode.OriginOperator)).To(Succeed())
			Eventually(svc.State).Should(Equal(statemachine.StateIdle))
		})
	})

	Describe("join timeout", func() {
		It("forces aborted when the outgoing body ignores cancellation", func() {
			release := make(chan struct{})
			bodies := StateBodies{
				Starting: func(_ context.Context, _ *execution.Run) error { return nil },
				Execute: func(_ context.Context, _ *execution.Run) error {
					<-release

					return nil
				},
				Completing: func(_ context.Context, _ *execution.Run) error { return nil },
			}

			stuck, err := New(Config{Name: "stuck", JoinTimeout: 50 * time.Millisecond}, bodies)
			Expect(err).ToNot(HaveOccurred())

			proc, err := procedure.New(1, "default", "", true, true)
			Expect(err).ToNot(HaveOccurred())
			Expect(stuck.Procedures().Register(proc)).To(Succeed())

			stuck.Start()
			defer func() {
				close(release)
				_ = stuck.Stop()
			}()

			Expect(stuck.SetOperationMode(ctx, mode.OperationOperator)).To(Succeed())
			Expect(stuck.Command(ctx, statemachine.CommandStart, mode.OriginOperator)).To(Succeed())
			Eventually(stuck.State).Should(Equal(statemachine.StateExecute))

			Expect(stuck.Command(ctx, statemachine.CommandStop, mode.OriginOperator)).To(Succeed())
			Eventually(stuck.State).Should(Equal(statemachine.StateAborted))
		})
	})

	Describe("wire channels", func() {
		BeforeEach(func() {
			toOperator(svc)
		})

		It("clears a command channel once the code is consumed", func() {
			commandOp, ok := svc.Attributes().Get("CommandOp")
			Expect(ok).To(BeTrue())

			Expect(commandOp.Write(statemachine.CommandStart.Code())).To(Succeed())
			Eventually(svc.State).Should(Equal(statemachine.StateExecute))
			Eventually(commandOp.Value).Should(Equal(int64(0)))
		})

		It("clears the procedure channels when the cycle binds", func() {
			procedureOp, ok := svc.Attributes().Get("ProcedureOp")
			Expect(ok).To(BeTrue())

			Expect(procedureOp.Write(int64(1))).To(Succeed())
			Expect(procedureOp.Value()).To(Equal(int64(1)))

			Expect(svc.Command(ctx, statemachine.CommandStart, mode.OriginOperator)).To(Succeed())
			Eventually(procedureOp.Value).Should(Equal(int64(0)))
			Eventually(svc.State).Should(Equal(statemachine.StateExecute))
		})
	})

	Describe("procedure selection", func() {
		BeforeEach(func() {
			proc, err := procedure.New(2, "alternative", "", true, false)
			Expect(err).ToNot(HaveOccurred())

			_ = svc.Stop()
			svc = newTestService(true)
			Expect(svc.Procedures().Register(proc)).To(Succeed())
			svc.Start()
			toOperator(svc)
		})

		It("binds the requested procedure on START", func() {
			Expect(svc.RequestProcedure(ctx, 2, mode.OriginOperator)).To(Succeed())

			toExecute(svc)
			Expect(svc.Procedures().CurrentID()).To(Equal(int64(2)))
		})

		It("rejects procedure requests outside idle", func() {
			toExecute(svc)

			err := svc.RequestProcedure(ctx, 2, mode.OriginOperator)
			Expect(err).To(MatchError(standarderrors.ErrProcedureSwitchRejected))
		})

		It("rejects procedure requests from an impermissible origin", func() {
			err := svc.RequestProcedure(ctx, 2, mode.OriginExternal)
			Expect(err).To(MatchError(standarderrors.ErrProcedureSwitchRejected))
		})
	})

	Describe("mode interlocks", func() {
		BeforeEach(func() {
			toOperator(svc)
		})

		It("locks offline while a cycle is running", func() {
			toExecute(svc)

			err := svc.SetOperationMode(ctx, mode.OperationOffline)
			Expect(err).To(MatchError(standarderrors.ErrModeTransitionRejected))

			close(executeRelease)
			Eventually(svc.State).Should(Equal(statemachine.StateCompleted))

			Expect(svc.Command(ctx, statemachine.CommandReset, mode.OriginOperator)).To(Succeed())
			Eventually(svc.State).Should(Equal(statemachine.StateIdle))

			Expect(svc.SetOperationMode(ctx, mode.OperationOffline)).To(Succeed())
		})
	})

	Describe("configuration parameters", func() {
		It("applies requested values when the service leaves offline", func() {
			_ = svc.Stop()
			svc = newTestService(true)

			param := elements.NewAnaServParam("MaxVolume", "", 0, 1000, 0, 1000, 0, 100,
				logger.For(logger.ComponentService))
			Expect(svc.AddConfigurationParameter(param)).To(Succeed())
			svc.Start()

			toOperator(svc)

			vop, _ := param.Attributes().Get("VOp")
			Expect(vop.Write(500.0)).To(Succeed())
			Expect(param.Out()).To(Equal(float64(100)))

			Expect(svc.SetOperationMode(ctx, mode.OperationOffline)).To(Succeed())
			Expect(svc.SetOperationMode(ctx, mode.OperationOperator)).To(Succeed())
			Expect(param.Out()).To(Equal(float64(500)))
		})

		It("rejects registration after start", func() {
			param := elements.NewAnaServParam("Late", "", 0, 1, 0, 1, 0, 0,
				logger.For(logger.ComponentService))

			err := svc.AddConfigurationParameter(param)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("after start"))
		})
	})

	Describe("shutdown", func() {
		It("rejects requests after stop", func() {
			Expect(svc.Stop()).To(Succeed())

			err := svc.Command(ctx, statemachine.CommandStart, mode.OriginOperator)
			Expect(err).To(MatchError(standarderrors.ErrServiceShuttingDown))
		})

		It("publishes StateCur and CommandEn through the attribute set", func() {
			stateCur, ok := svc.Attributes().Get("StateCur")
			Expect(ok).To(BeTrue())
			Expect(stateCur.Value()).To(Equal(statemachine.StateIdle.Code()))

			commandEn, ok := svc.Attributes().Get("CommandEn")
			Expect(ok).To(BeTrue())
			Expect(commandEn.Value()).To(Equal(
				statemachine.CommandStart.Code() |
					statemachine.CommandStop.Code() |
					statemachine.CommandAbort.Code()))
		})
	})
})
