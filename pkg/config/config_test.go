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
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/pea-core/pkg/statemachine"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Load", func() {
	writeFile := func(content string) string {
		path := filepath.Join(GinkgoT().TempDir(), "config.yaml")
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())

		return path
	}

	It("returns defaults when the file does not exist", func() {
		cfg, err := Load(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.PEA.Name).To(Equal("pea"))
		Expect(cfg.Execution.JoinTimeout).To(Equal(5 * time.Second))
		Expect(cfg.Gateway.Enabled).To(BeTrue())
	})

	It("overlays file values on the defaults", func() {
		path := writeFile(`
pea:
  name: dosing-skid
logging:
  level: debug
execution:
  joinTimeout: 2s
`)

		cfg, err := Load(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.PEA.Name).To(Equal("dosing-skid"))
		Expect(cfg.Logging.Level).To(Equal("debug"))
		Expect(cfg.Execution.JoinTimeout).To(Equal(2 * time.Second))
		// untouched sections keep their defaults
		Expect(cfg.Gateway.Address).To(Equal(":8105"))
	})

	It("rejects malformed YAML", func() {
		path := writeFile("pea: [")

		_, err := Load(path)
		Expect(err).To(HaveOccurred())
	})

	It("applies environment overrides on top of the file", func() {
		GinkgoT().Setenv(envPEAName, "env-name")
		GinkgoT().Setenv(envJoinTimeout, "30s")

		path := writeFile(`
pea:
  name: file-name
`)

		cfg, err := Load(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.PEA.Name).To(Equal("env-name"))
		Expect(cfg.Execution.JoinTimeout).To(Equal(30 * time.Second))
	})

	It("accepts plain seconds for the join timeout override", func() {
		GinkgoT().Setenv(envJoinTimeout, "7")

		cfg, err := Load(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Execution.JoinTimeout).To(Equal(7 * time.Second))
	})
})

var _ = Describe("Validate", func() {
	It("requires abort to rank first in the precedence", func() {
		cfg := DefaultConfig()
		cfg.Execution.CommandPrecedence = []string{"stop", "abort"}

		Expect(cfg.Validate()).ToNot(Succeed())
	})

	It("rejects unknown commands in the precedence", func() {
		cfg := DefaultConfig()
		cfg.Execution.CommandPrecedence = []string{"abort", "explode"}

		Expect(cfg.Validate()).ToNot(Succeed())
	})

	It("rejects a non-positive join timeout", func() {
		cfg := DefaultConfig()
		cfg.Execution.JoinTimeout = 0

		Expect(cfg.Validate()).ToNot(Succeed())
	})

	It("accepts the defaults", func() {
		cfg := DefaultConfig()
		Expect(cfg.Validate()).To(Succeed())
	})
})

var _ = Describe("Precedence", func() {
	It("converts the configured order", func() {
		cfg := DefaultConfig()
		cfg.Execution.CommandPrecedence = []string{"abort", "stop"}

		Expect(cfg.Precedence()).To(Equal(statemachine.Precedence{
			statemachine.CommandAbort, statemachine.CommandStop,
		}))
	})

	It("falls back to the default order when unset", func() {
		cfg := DefaultConfig()
		cfg.Execution.CommandPrecedence = nil

		Expect(cfg.Precedence()).To(Equal(statemachine.DefaultPrecedence))
	})
})
