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

package attribute

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestAttribute(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Attribute Suite")
}

var _ = Describe("Attribute", func() {
	It("coerces the initial value to the declared type", func() {
		a := New("V", TypeFloat, 5)
		Expect(a.Value()).To(Equal(float64(5)))

		b := New("V", TypeInt, 3.7)
		Expect(b.Value()).To(Equal(int64(3)))
	})

	It("falls back to the zero value for an incompatible initial value", func() {
		a := New("V", TypeInt, "not a number")
		Expect(a.Value()).To(Equal(int64(0)))
	})

	Describe("Set", func() {
		It("stores and publishes without running the write hook", func() {
			hookCalls := 0
			var published any

			a := New("V", TypeFloat, 0).WithWriteHook(func(any) { hookCalls++ })
			a.AttachPublisher(func(_ string, value any) { published = value })

			Expect(a.Set(1.5)).To(Succeed())
			Expect(a.Value()).To(Equal(1.5))
			Expect(published).To(Equal(1.5))
			Expect(hookCalls).To(BeZero())
		})

		It("rejects incompatible values", func() {
			a := New("V", TypeBool, false)
			Expect(a.Set(12)).ToNot(Succeed())
			Expect(a.Value()).To(Equal(false))
		})
	})

	Describe("Write", func() {
		It("stores, runs the hook and publishes", func() {
			var hooked, published any

			a := New("V", TypeInt, 0).WithWriteHook(func(v any) { hooked = v })
			a.AttachPublisher(func(_ string, v any) { published = v })

			Expect(a.Write(7)).To(Succeed())
			Expect(hooked).To(Equal(int64(7)))
			Expect(published).To(Equal(int64(7)))
		})

		It("coerces numeric kinds before the hook sees them", func() {
			var hooked any

			a := New("V", TypeFloat, 0).WithWriteHook(func(v any) { hooked = v })

			Expect(a.Write(int64(4))).To(Succeed())
			Expect(hooked).To(Equal(float64(4)))
		})
	})

	Describe("Writable", func() {
		It("reflects the presence of a write hook", func() {
			Expect(New("V", TypeInt, 0).Writable()).To(BeFalse())
			Expect(New("V", TypeInt, 0).WithWriteHook(func(any) {}).Writable()).To(BeTrue())
		})
	})

	Describe("Coerce", func() {
		It("parses bools from strings", func() {
			v, err := Coerce("true", TypeBool)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(true))
		})

		It("maps nil to the zero value", func() {
			v, err := Coerce(nil, TypeString)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(""))
		})

		It("rejects cross-kind conversions", func() {
			_, err := Coerce(true, TypeFloat)
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("Registry", func() {
	var r *Registry

	BeforeEach(func() {
		r = NewRegistry()
	})

	It("preserves registration order", func() {
		r.MustAdd(New("B", TypeInt, 0))
		r.MustAdd(New("A", TypeInt, 0))
		r.MustAdd(New("C", TypeInt, 0))

		names := []string{}
		for _, a := range r.All() {
			names = append(names, a.Name())
		}

		Expect(names).To(Equal([]string{"B", "A", "C"}))
	})

	It("rejects duplicate names", func() {
		Expect(r.Add(New("V", TypeInt, 0))).To(Succeed())
		Expect(r.Add(New("V", TypeFloat, 0))).ToNot(Succeed())
	})

	It("rejects additions after freeze", func() {
		r.Freeze()
		Expect(r.Add(New("V", TypeInt, 0))).ToNot(Succeed())
	})

	It("looks attributes up by name", func() {
		r.MustAdd(New("V", TypeInt, 42))

		a, ok := r.Get("V")
		Expect(ok).To(BeTrue())
		Expect(a.Value()).To(Equal(int64(42)))

		_, ok = r.Get("missing")
		Expect(ok).To(BeFalse())
	})
})
