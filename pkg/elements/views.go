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

package elements

import (
	"github.com/united-manufacturing-hub/pea-core/pkg/attribute"
)

// View is a read-only indicator element (VDI/VDE/NAMUR 2658-3 view
// elements): report values and process value outs written by state bodies
// and observed by the transport layer.
type View struct {
	DataAssembly

	v *attribute.Attribute
}

func newView(tagName, description string, dataType attribute.DataType, initValue any) *View {
	view := &View{DataAssembly: newDataAssembly(tagName, description)}
	view.v = view.Attributes().MustAdd(attribute.New("V", dataType, initValue))

	return view
}

// NewAnaView creates an analog indicator element.
func NewAnaView(tagName, description string, initValue float64) *View {
	return newView(tagName, description, attribute.TypeFloat, initValue)
}

// NewDIntView creates an integer indicator element.
func NewDIntView(tagName, description string, initValue int64) *View {
	return newView(tagName, description, attribute.TypeInt, initValue)
}

// NewBinView creates a binary indicator element.
func NewBinView(tagName, description string, initValue bool) *View {
	return newView(tagName, description, attribute.TypeBool, initValue)
}

// NewStringView creates a string indicator element.
func NewStringView(tagName, description, initValue string) *View {
	return newView(tagName, description, attribute.TypeString, initValue)
}

// Set writes the indicated value. State bodies call this to publish report
// values.
func (v *View) Set(value any) error {
	return v.v.Set(value)
}

// Value returns the current indicated value.
func (v *View) Value() any {
	return v.v.Value()
}
