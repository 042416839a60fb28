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

// Package elements provides the standard data assemblies bound to services
// and procedures (VDI/VDE/NAMUR 2658-3): operation elements carrying
// writable setpoints with bounds and source gating, and indicator elements
// carrying read-only report values.
package elements

import (
	"github.com/united-manufacturing-hub/pea-core/pkg/attribute"
	"github.com/united-manufacturing-hub/pea-core/pkg/mode"
)

// Roles describe the structural position of an element for the manifest
// exporter boundary.
const (
	RoleConfigurationParameter = "configuration_parameter"
	RoleProcedureParameter     = "procedure_parameter"
	RoleReportValue            = "report_value"
	RoleProcessValueOut        = "process_value_out"
)

// Element is any data assembly exposed through the attribute set.
type Element interface {
	TagName() string
	Description() string
	Attributes() *attribute.Registry
}

// Parameter is a writable operation element. Writes arrive source-gated on
// the operator/internal/external channels and land on the requested value;
// Apply moves the requested value to the output, which is what the running
// state body reads.
type Parameter interface {
	Element

	// ModeController returns the element's own mode controller, linked as a
	// child of the owning service's controller.
	ModeController() *mode.Controller

	// Apply commits the requested value to VOut (procedure commit, or
	// configuration parameter application when leaving offline mode).
	Apply()
}

// ReportValue is a read-only indicator element written by state bodies.
type ReportValue interface {
	Element

	Set(value any) error
	Value() any
}

// DataAssembly is the common base: a tag, a description and a name-keyed
// attribute set.
type DataAssembly struct {
	tagName     string
	description string
	attrs       *attribute.Registry
}

func newDataAssembly(tagName, description string) DataAssembly {
	return DataAssembly{
		tagName:     tagName,
		description: description,
		attrs:       attribute.NewRegistry(),
	}
}

// TagName returns the unique tag of the data assembly.
func (d *DataAssembly) TagName() string {
	return d.tagName
}

// Description returns the human-readable description.
func (d *DataAssembly) Description() string {
	return d.description
}

// Attributes returns the attribute set of the data assembly.
func (d *DataAssembly) Attributes() *attribute.Registry {
	return d.attrs
}
