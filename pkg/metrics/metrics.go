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

// Package metrics exposes the Prometheus instrumentation of the PEA core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Namespace and subsystem for all metrics.
	namespace = "pea"
	subsystem = "core"

	// State transitions per service and target state.
	stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Total number of state transitions by service and entered state",
		},
		[]string{"service", "state"},
	)

	// Rejected and superseded commands.
	commandsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_rejected_total",
			Help:      "Total number of rejected or superseded commands by service and command",
		},
		[]string{"service", "command"},
	)

	// Current state as the StateCur wire code.
	serviceCurrentState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "service_current_state",
			Help:      "Current state of a service as its StateCur wire code",
		},
		[]string{"service", "state"},
	)

	// State body runtime.
	bodyDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "body_duration_milliseconds",
			Help:      "Runtime of state bodies (in milliseconds)",
			Objectives: map[float64]float64{
				0.5:  0.01, // 50th percentile with 1% error
				0.9:  0.01, // 90th percentile with 1% error
				0.95: 0.01, // 95th percentile with 1% error
				0.99: 0.01, // 99th percentile with 1% error
			},
		},
		[]string{"service", "state"},
	)

	// Body faults (error returns, panics, join timeouts).
	bodyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "body_failures_total",
			Help:      "Total number of state body faults by service and state",
		},
		[]string{"service", "state"},
	)
)

// IncStateTransition counts a transition into the given state.
func IncStateTransition(service, state string) {
	stateTransitions.WithLabelValues(service, state).Inc()
}

// IncCommandRejected counts a rejected or superseded command.
func IncCommandRejected(service, command string) {
	commandsRejected.WithLabelValues(service, command).Inc()
}

// SetCurrentState updates the current state gauge. The previous state label
// is reset so only one series per service carries a non-zero value.
func SetCurrentState(service, state string, code int64) {
	serviceCurrentState.DeletePartialMatch(prometheus.Labels{"service": service})
	serviceCurrentState.WithLabelValues(service, state).Set(float64(code))
}

// ObserveBodyDuration records the runtime of a terminated state body.
func ObserveBodyDuration(service, state string, duration time.Duration) {
	bodyDuration.WithLabelValues(service, state).Observe(float64(duration.Milliseconds()))
}

// IncBodyFailure counts a state body fault.
func IncBodyFailure(service, state string) {
	bodyFailures.WithLabelValues(service, state).Inc()
}

// SetupMetricsEndpoint starts an HTTP server exposing /metrics on addr.
// The caller owns the returned server and shuts it down on exit.
func SetupMetricsEndpoint(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()

	return server
}
