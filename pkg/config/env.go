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

package config

import (
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Environment overrides, applied after the file. Deployment tooling sets
// these; the file stays the human-edited source.
const (
	envPEAName        = "PEA_NAME"
	envLogLevel       = "PEA_LOG_LEVEL"
	envLogFormat      = "PEA_LOG_FORMAT"
	envGatewayAddress = "PEA_GATEWAY_ADDRESS"
	envMetricsAddress = "PEA_METRICS_ADDRESS"
	envSentryDSN      = "PEA_SENTRY_DSN"
	envJoinTimeout    = "PEA_JOIN_TIMEOUT"
)

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envPEAName); v != "" {
		cfg.PEA.Name = v
	}

	if v := os.Getenv(envLogLevel); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv(envLogFormat); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv(envGatewayAddress); v != "" {
		cfg.Gateway.Address = v
	}

	if v := os.Getenv(envMetricsAddress); v != "" {
		cfg.Metrics.Address = v
	}

	if v := os.Getenv(envSentryDSN); v != "" {
		cfg.Sentry.DSN = v
	}

	if v := os.Getenv(envJoinTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			// also accept plain seconds
			if secs, convErr := strconv.Atoi(v); convErr == nil {
				d = time.Duration(secs) * time.Second
				err = nil
			}
		}

		if err != nil {
			zap.S().Warnf("Ignoring invalid %s value %q: %v", envJoinTimeout, v, err)
		} else {
			cfg.Execution.JoinTimeout = d
		}
	}
}
