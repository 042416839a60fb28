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

// pea-core runs a PEA with a demo dosing service: two procedures, a
// configuration parameter and simulated process values. Replace
// buildDosingService with real equipment bindings for production use.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/united-manufacturing-hub/pea-core/pkg/config"
	"github.com/united-manufacturing-hub/pea-core/pkg/elements"
	"github.com/united-manufacturing-hub/pea-core/pkg/execution"
	"github.com/united-manufacturing-hub/pea-core/pkg/logger"
	"github.com/united-manufacturing-hub/pea-core/pkg/metrics"
	"github.com/united-manufacturing-hub/pea-core/pkg/pea"
	"github.com/united-manufacturing-hub/pea-core/pkg/procedure"
	"github.com/united-manufacturing-hub/pea-core/pkg/sentry"
	"github.com/united-manufacturing-hub/pea-core/pkg/service"
	"github.com/united-manufacturing-hub/pea-core/pkg/transport/httpgateway"
)

// appVersion is set via ldflags in release builds.
var appVersion = "0.0.0-dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Initialize()
		logger.GetSugaredLogger().Fatalf("Failed to load configuration: %v", err)
	}

	logger.InitializeWithConfig(cfg.Logging.Level,
		logger.LogFormat(strings.ToUpper(cfg.Logging.Format)))

	log := logger.For(logger.ComponentCore)
	log.Infof("pea-core %s starting", appVersion)

	sentry.Init(cfg.Sentry.DSN, appVersion)

	defer func() {
		sentry.Flush(2 * time.Second)
		_ = logger.Sync()
	}()

	p := pea.New(cfg.PEA.Name, cfg.PEA.Description)

	svc, err := buildDosingService(cfg)
	if err != nil {
		log.Fatalf("Failed to build dosing service: %v", err)
	}

	if err := p.AddService(svc); err != nil {
		log.Fatalf("Failed to register dosing service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.Run(gctx)
	})

	if cfg.Gateway.Enabled {
		gateway := httpgateway.New(p)

		g.Go(func() error {
			return gateway.Run(gctx, cfg.Gateway.Address)
		})
	}

	if cfg.Metrics.Enabled {
		metricsServer := metrics.SetupMetricsEndpoint(cfg.Metrics.Address)
		log.Infof("Metrics endpoint listening on %s", cfg.Metrics.Address)

		g.Go(func() error {
			<-gctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "pea-core terminated: %v", err)
		os.Exit(1)
	}

	log.Info("pea-core stopped")
}

// buildDosingService assembles the demo service: a simulated dosing unit
// with a self-completing volume procedure and a non-completing continuous
// procedure.
func buildDosingService(cfg config.Config) (*service.Service, error) {
	log := logger.For(logger.ComponentService).With("service", "dose")

	// volume procedure elements
	setVolume := elements.NewAnaServParam("SetVolume", "Target dose volume",
		0, 100, 0, 100, 1997, 10, log)
	volumeFlow := elements.NewAnaServParam("VolumeFlow", "Dosing flow rate",
		0.1, 10, 0, 10, 1998, 1, log)
	dosedVolume := elements.NewAnaView("DosedVolume", "Volume dosed in the running cycle", 0)

	// continuous procedure elements
	contFlow := elements.NewAnaServParam("ContFlow", "Continuous flow rate",
		0.1, 10, 0, 10, 1998, 1, log)
	totalVolume := elements.NewAnaView("TotalVolume", "Volume dosed since start", 0)

	// dosed is only touched by state bodies, which never overlap
	var dosed float64

	bodies := service.StateBodies{
		Starting: func(_ context.Context, _ *execution.Run) error {
			dosed = 0

			return dosedVolume.Set(0.0)
		},
		Execute: func(ctx context.Context, run *execution.Run) error {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()

			proc := run.Procedure()
			if proc == nil {
				return nil
			}

			for run.Active() {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}

				switch proc.TagName() {
				case "volume":
					dosed += volumeFlow.Out() * 0.1
					_ = dosedVolume.Set(dosed)

					if dosed >= setVolume.Out() {
						return nil
					}
				case "continuous":
					dosed += contFlow.Out() * 0.1
					_ = totalVolume.Set(dosed)
				}
			}

			return nil
		},
		Completing: func(_ context.Context, _ *execution.Run) error {
			return dosedVolume.Set(dosed)
		},
	}

	svc, err := service.New(service.Config{
		Name:        "dose",
		Description: "Simulated dosing unit",
		JoinTimeout: cfg.Execution.JoinTimeout,
		Precedence:  cfg.Precedence(),
		QueueSize:   cfg.Execution.QueueSize,
	}, bodies)
	if err != nil {
		return nil, err
	}

	maxVolume := elements.NewAnaServParam("MaxVolume", "Hard volume limit",
		0, 1000, 0, 1000, 1997, 100, log)
	if err := svc.AddConfigurationParameter(maxVolume); err != nil {
		return nil, err
	}

	volumeProc, err := procedure.New(1, "volume", "Dose until the target volume is reached", true, true)
	if err != nil {
		return nil, err
	}

	for _, step := range []error{
		volumeProc.AddParameter(setVolume),
		volumeProc.AddParameter(volumeFlow),
		volumeProc.AddReportValue(dosedVolume),
	} {
		if step != nil {
			return nil, step
		}
	}

	contProc, err := procedure.New(2, "continuous", "Dose until commanded to complete", false, false)
	if err != nil {
		return nil, err
	}

	for _, step := range []error{
		contProc.AddParameter(contFlow),
		contProc.AddProcessValueOut(totalVolume),
	} {
		if step != nil {
			return nil, step
		}
	}

	if err := svc.Procedures().Register(volumeProc); err != nil {
		return nil, err
	}

	if err := svc.Procedures().Register(contProc); err != nil {
		return nil, err
	}

	return svc, nil
}
