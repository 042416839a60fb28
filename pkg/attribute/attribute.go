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

// Package attribute provides the observable read/write cells that make up
// the transport boundary of a PEA: every state, mode, parameter and report
// value is exposed as a named, typed attribute. The transport layer attaches
// a publisher to be notified of core-side changes and forwards external
// writes into Write, which triggers the core-side write hook.
package attribute

import (
	"fmt"
	"strconv"
	"sync"
)

// DataType is the declared type of an attribute value.
type DataType string

const (
	TypeBool   DataType = "bool"
	TypeInt    DataType = "int"
	TypeFloat  DataType = "float"
	TypeString DataType = "string"
)

// WriteHook is the core-side reaction to a write, invoked after the value
// has been stored. This is where external writes are routed into command
// execution, mode setters and parameter setters.
type WriteHook func(value any)

// Publisher is the transport-side notification of a value change.
type Publisher func(name string, value any)

// Attribute is a single observable cell.
type Attribute struct {
	// mu protects value, writeHook and publisher
	mu sync.RWMutex

	name      string
	dataType  DataType
	initValue any
	value     any

	writeHook WriteHook
	publisher Publisher
}

// New creates an attribute with the given name, type and initial value.
// The initial value is coerced to the declared type; an incompatible initial
// value falls back to the type's zero value.
func New(name string, dataType DataType, initValue any) *Attribute {
	coerced, err := Coerce(initValue, dataType)
	if err != nil {
		coerced = zeroValue(dataType)
	}

	return &Attribute{
		name:      name,
		dataType:  dataType,
		initValue: coerced,
		value:     coerced,
	}
}

// WithWriteHook attaches the core-side write hook and returns the attribute
// for chaining during construction.
func (a *Attribute) WithWriteHook(hook WriteHook) *Attribute {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.writeHook = hook

	return a
}

// AttachPublisher attaches the transport-side change notification.
func (a *Attribute) AttachPublisher(publisher Publisher) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.publisher = publisher
}

// Name returns the attribute name.
func (a *Attribute) Name() string {
	return a.name
}

// Type returns the declared data type.
func (a *Attribute) Type() DataType {
	return a.dataType
}

// InitValue returns the coerced initial value.
func (a *Attribute) InitValue() any {
	return a.initValue
}

// Value returns the current value.
func (a *Attribute) Value() any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.value
}

// Writable reports whether a write hook is attached, i.e. whether external
// writes to this attribute have any effect beyond storing the value.
func (a *Attribute) Writable() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.writeHook != nil
}

// Set stores a core-side value change and notifies the publisher. The write
// hook is not invoked; use Write for externally originated values.
func (a *Attribute) Set(value any) error {
	coerced, err := Coerce(value, a.dataType)
	if err != nil {
		return fmt.Errorf("attribute %s: %w", a.name, err)
	}

	a.mu.Lock()
	a.value = coerced
	publisher := a.publisher
	a.mu.Unlock()

	if publisher != nil {
		publisher(a.name, coerced)
	}

	return nil
}

// Write stores an externally originated value and routes it into the core
// via the write hook, then notifies the publisher.
func (a *Attribute) Write(value any) error {
	coerced, err := Coerce(value, a.dataType)
	if err != nil {
		return fmt.Errorf("attribute %s: %w", a.name, err)
	}

	a.mu.Lock()
	a.value = coerced
	hook := a.writeHook
	publisher := a.publisher
	a.mu.Unlock()

	if hook != nil {
		hook(coerced)
	}

	if publisher != nil {
		publisher(a.name, coerced)
	}

	return nil
}

// Coerce converts value to the declared data type. Bools are stored as bool,
// ints as int64, floats as float64, strings as string. Conversions between
// numeric kinds are allowed; everything else is an error.
func Coerce(value any, dataType DataType) (any, error) {
	if value == nil {
		return zeroValue(dataType), nil
	}

	switch dataType {
	case TypeBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("cannot coerce %q to bool", v)
			}

			return b, nil
		}
	case TypeInt:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			return int64(v), nil
		case float32:
			return int64(v), nil
		}
	case TypeFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case TypeString:
		if v, ok := value.(string); ok {
			return v, nil
		}
	}

	return nil, fmt.Errorf("cannot coerce %T to %s", value, dataType)
}

func zeroValue(dataType DataType) any {
	switch dataType {
	case TypeBool:
		return false
	case TypeInt:
		return int64(0)
	case TypeFloat:
		return float64(0)
	case TypeString:
		return ""
	default:
		return nil
	}
}
