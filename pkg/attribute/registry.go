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
	"fmt"
	"sync"
)

// Registry is a name-keyed set of attributes with deterministic iteration
// order. Names are unique; registration is rejected once the registry has
// been frozen (the system is running).
type Registry struct {
	mu     sync.RWMutex
	attrs  map[string]*Attribute
	order  []string
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{attrs: make(map[string]*Attribute)}
}

// Add registers an attribute. Duplicate names and additions after Freeze
// are rejected.
func (r *Registry) Add(a *Attribute) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot add attribute %s", a.Name())
	}

	if _, exists := r.attrs[a.Name()]; exists {
		return fmt.Errorf("duplicate attribute name %s", a.Name())
	}

	r.attrs[a.Name()] = a
	r.order = append(r.order, a.Name())

	return nil
}

// MustAdd registers an attribute and panics on duplicate names. Used during
// construction where a duplicate is a programming error.
func (r *Registry) MustAdd(a *Attribute) *Attribute {
	if err := r.Add(a); err != nil {
		panic(err)
	}

	return a
}

// Get returns the attribute with the given name.
func (r *Registry) Get(name string) (*Attribute, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.attrs[name]

	return a, ok
}

// Freeze rejects any further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frozen = true
}

// All returns the attributes in registration order.
func (r *Registry) All() []*Attribute {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Attribute, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.attrs[name])
	}

	return out
}
