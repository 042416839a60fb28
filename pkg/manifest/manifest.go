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

// Package manifest exports the static structure of a PEA: its services,
// their elements and procedures, down to the attribute level. Orchestration
// layers consume this to discover what the PEA offers before talking to it.
package manifest

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/united-manufacturing-hub/pea-core/pkg/attribute"
	"github.com/united-manufacturing-hub/pea-core/pkg/elements"
	"github.com/united-manufacturing-hub/pea-core/pkg/service"
)

// Attribute describes one observable cell of an element or service.
type Attribute struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Value    any    `json:"value"`
	Writable bool   `json:"writable"`
}

// Element describes one data assembly.
type Element struct {
	LinkID      string      `json:"linkId"`
	TagName     string      `json:"tagName"`
	Description string      `json:"description,omitempty"`
	Role        string      `json:"role"`
	Attributes  []Attribute `json:"attributes"`
}

// Procedure describes one operating variant of a service.
type Procedure struct {
	LinkID           string    `json:"linkId"`
	ID               int64     `json:"id"`
	TagName          string    `json:"tagName"`
	Description      string    `json:"description,omitempty"`
	IsSelfCompleting bool      `json:"isSelfCompleting"`
	IsDefault        bool      `json:"isDefault"`
	Parameters       []Element `json:"parameters"`
	ReportValues     []Element `json:"reportValues"`
	ProcessValueOuts []Element `json:"processValueOuts"`
}

// Service describes one service of the PEA.
type Service struct {
	LinkID                  string      `json:"linkId"`
	Name                    string      `json:"name"`
	Description             string      `json:"description,omitempty"`
	Attributes              []Attribute `json:"attributes"`
	ConfigurationParameters []Element   `json:"configurationParameters"`
	Procedures              []Procedure `json:"procedures"`
}

// Manifest is the exported structure of one PEA.
type Manifest struct {
	LinkID      string    `json:"linkId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
	Services    []Service `json:"services"`
}

// Build walks the given services and produces the manifest. Link ids are
// fresh UUIDs per build; they identify nodes within one manifest, not across
// rebuilds.
func Build(name, description string, services []*service.Service) *Manifest {
	m := &Manifest{
		LinkID:      uuid.NewString(),
		Name:        name,
		Description: description,
		GeneratedAt: time.Now().UTC(),
	}

	for _, svc := range services {
		m.Services = append(m.Services, buildService(svc))
	}

	return m
}

// JSON encodes the manifest.
func (m *Manifest) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func buildService(svc *service.Service) Service {
	out := Service{
		LinkID:      uuid.NewString(),
		Name:        svc.Name(),
		Description: svc.Description(),
		Attributes:  buildAttributes(svc.Attributes()),
	}

	for _, p := range svc.ConfigurationParameters() {
		out.ConfigurationParameters = append(out.ConfigurationParameters,
			buildElement(p, elements.RoleConfigurationParameter))
	}

	for _, proc := range svc.Procedures().Procedures() {
		p := Procedure{
			LinkID:           uuid.NewString(),
			ID:               proc.ID(),
			TagName:          proc.TagName(),
			Description:      proc.Description(),
			IsSelfCompleting: proc.IsSelfCompleting(),
			IsDefault:        proc.IsDefault(),
		}

		for _, param := range proc.Parameters() {
			p.Parameters = append(p.Parameters, buildElement(param, elements.RoleProcedureParameter))
		}

		for _, rv := range proc.ReportValues() {
			p.ReportValues = append(p.ReportValues, buildElement(rv, elements.RoleReportValue))
		}

		for _, pv := range proc.ProcessValueOuts() {
			p.ProcessValueOuts = append(p.ProcessValueOuts, buildElement(pv, elements.RoleProcessValueOut))
		}

		out.Procedures = append(out.Procedures, p)
	}

	return out
}

func buildElement(e elements.Element, role string) Element {
	return Element{
		LinkID:      uuid.NewString(),
		TagName:     e.TagName(),
		Description: e.Description(),
		Role:        role,
		Attributes:  buildAttributes(e.Attributes()),
	}
}

func buildAttributes(attrs *attribute.Registry) []Attribute {
	out := make([]Attribute, 0, len(attrs.All()))
	for _, a := range attrs.All() {
		out = append(out, Attribute{
			Name:     a.Name(),
			Type:     string(a.Type()),
			Value:    a.Value(),
			Writable: a.Writable(),
		})
	}

	return out
}
