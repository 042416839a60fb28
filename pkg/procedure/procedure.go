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

// Package procedure implements procedures (the operating variants of a
// service) and the procedure controller that binds one of them to a running
// service cycle.
package procedure

import (
	"fmt"

	"github.com/united-manufacturing-hub/pea-core/pkg/elements"
)

// Procedure is a named operating variant of a service with its own
// parameters, report values and process value outs. Procedures are declared
// before the system starts and immutable afterwards.
type Procedure struct {
	id          int64
	tagName     string
	description string

	// isSelfCompleting decides whether execute auto-advances to completing
	// when the body signals completion
	isSelfCompleting bool
	isDefault        bool

	parameters     map[string]elements.Parameter
	parameterOrder []string

	reportValues     map[string]elements.ReportValue
	reportValueOrder []string

	processValueOuts     map[string]elements.ReportValue
	processValueOutOrder []string
}

// New creates a procedure. The id must be positive; id 0 is the "nothing
// requested" marker on the wire.
func New(id int64, tagName, description string, isSelfCompleting, isDefault bool) (*Procedure, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%s: procedure id must be positive, got %d", tagName, id)
	}

	return &Procedure{
		id:               id,
		tagName:          tagName,
		description:      description,
		isSelfCompleting: isSelfCompleting,
		isDefault:        isDefault,
		parameters:       make(map[string]elements.Parameter),
		reportValues:     make(map[string]elements.ReportValue),
		processValueOuts: make(map[string]elements.ReportValue),
	}, nil
}

// ID returns the procedure id.
func (p *Procedure) ID() int64 {
	return p.id
}

// TagName returns the procedure tag.
func (p *Procedure) TagName() string {
	return p.tagName
}

// Description returns the procedure description.
func (p *Procedure) Description() string {
	return p.description
}

// IsSelfCompleting reports whether execute auto-advances on body completion.
func (p *Procedure) IsSelfCompleting() bool {
	return p.isSelfCompleting
}

// IsDefault reports whether this procedure is used when none is requested.
func (p *Procedure) IsDefault() bool {
	return p.isDefault
}

// AddParameter registers a procedure parameter. Names are unique per
// procedure.
func (p *Procedure) AddParameter(param elements.Parameter) error {
	if _, exists := p.parameters[param.TagName()]; exists {
		return fmt.Errorf("procedure %s: duplicate parameter %s", p.tagName, param.TagName())
	}

	p.parameters[param.TagName()] = param
	p.parameterOrder = append(p.parameterOrder, param.TagName())

	return nil
}

// AddReportValue registers a report value. Names are unique per procedure.
func (p *Procedure) AddReportValue(rv elements.ReportValue) error {
	if _, exists := p.reportValues[rv.TagName()]; exists {
		return fmt.Errorf("procedure %s: duplicate report value %s", p.tagName, rv.TagName())
	}

	p.reportValues[rv.TagName()] = rv
	p.reportValueOrder = append(p.reportValueOrder, rv.TagName())

	return nil
}

// AddProcessValueOut registers a process value out. Names are unique per
// procedure.
func (p *Procedure) AddProcessValueOut(pv elements.ReportValue) error {
	if _, exists := p.processValueOuts[pv.TagName()]; exists {
		return fmt.Errorf("procedure %s: duplicate process value out %s", p.tagName, pv.TagName())
	}

	p.processValueOuts[pv.TagName()] = pv
	p.processValueOutOrder = append(p.processValueOutOrder, pv.TagName())

	return nil
}

// Parameter returns a parameter by tag name.
func (p *Procedure) Parameter(name string) (elements.Parameter, bool) {
	param, ok := p.parameters[name]

	return param, ok
}

// Parameters returns all parameters in registration order.
func (p *Procedure) Parameters() []elements.Parameter {
	out := make([]elements.Parameter, 0, len(p.parameterOrder))
	for _, name := range p.parameterOrder {
		out = append(out, p.parameters[name])
	}

	return out
}

// ReportValue returns a report value by tag name.
func (p *Procedure) ReportValue(name string) (elements.ReportValue, bool) {
	rv, ok := p.reportValues[name]

	return rv, ok
}

// ReportValues returns all report values in registration order.
func (p *Procedure) ReportValues() []elements.ReportValue {
	out := make([]elements.ReportValue, 0, len(p.reportValueOrder))
	for _, name := range p.reportValueOrder {
		out = append(out, p.reportValues[name])
	}

	return out
}

// ProcessValueOuts returns all process value outs in registration order.
func (p *Procedure) ProcessValueOuts() []elements.ReportValue {
	out := make([]elements.ReportValue, 0, len(p.processValueOutOrder))
	for _, name := range p.processValueOutOrder {
		out = append(out, p.processValueOuts[name])
	}

	return out
}

// applyParameters commits the requested value of every parameter to its
// output. Called on procedure commit.
func (p *Procedure) applyParameters() {
	for _, name := range p.parameterOrder {
		p.parameters[name].Apply()
	}
}
