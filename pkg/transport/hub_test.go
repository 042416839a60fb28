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

package transport

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zaptest"

	"github.com/united-manufacturing-hub/pea-core/pkg/attribute"
)

func TestTransport(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Transport Suite")
}

var _ = Describe("Hub", func() {
	var h *Hub

	BeforeEach(func() {
		h = NewHub(zaptest.NewLogger(GinkgoT()).Sugar())
	})

	It("delivers updates to all subscribers", func() {
		first, cancelFirst := h.Subscribe(4)
		defer cancelFirst()

		second, cancelSecond := h.Subscribe(4)
		defer cancelSecond()

		h.Publish(Update{Service: "dose", Attribute: "StateCur", Value: int64(64)})

		Eventually(first).Should(Receive(WithTransform(
			func(u Update) any { return u.Value }, Equal(int64(64)))))
		Eventually(second).Should(Receive())
	})

	It("stops delivering after cancel", func() {
		ch, cancel := h.Subscribe(4)
		cancel()

		// channel is closed, not left dangling
		Eventually(ch).Should(BeClosed())
	})

	It("drops updates instead of blocking on a full subscriber", func() {
		ch, cancel := h.Subscribe(1)
		defer cancel()

		done := make(chan struct{})

		go func() {
			defer close(done)

			for i := 0; i < 10; i++ {
				h.Publish(Update{Service: "dose", Attribute: "CommandEn", Value: int64(i)})
			}
		}()

		Eventually(done).Should(BeClosed())
		Expect(len(ch)).To(Equal(1))
	})

	It("publishes attribute changes once attached", func() {
		attrs := attribute.NewRegistry()
		attr := attrs.MustAdd(attribute.New("V", attribute.TypeFloat, 0))

		h.Attach("dose", "DosedVolume", attrs)

		ch, cancel := h.Subscribe(4)
		defer cancel()

		Expect(attr.Set(2.5)).To(Succeed())

		var update Update

		Eventually(ch).Should(Receive(&update))
		Expect(update.Service).To(Equal("dose"))
		Expect(update.Element).To(Equal("DosedVolume"))
		Expect(update.Attribute).To(Equal("V"))
		Expect(update.Value).To(Equal(2.5))
		Expect(update.Timestamp).ToNot(BeZero())
	})
})
