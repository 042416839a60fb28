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

// Package pea aggregates services into one process equipment assembly and
// owns their shared transport hub and lifecycle.
package pea

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/united-manufacturing-hub/pea-core/pkg/logger"
	"github.com/united-manufacturing-hub/pea-core/pkg/manifest"
	"github.com/united-manufacturing-hub/pea-core/pkg/service"
	"github.com/united-manufacturing-hub/pea-core/pkg/transport"
)

// PEA is one process equipment assembly: a named set of services behind a
// common transport hub.
type PEA struct {
	name        string
	description string

	// mu protects services/order during assembly
	mu       sync.RWMutex
	services map[string]*service.Service
	order    []string

	hub *transport.Hub

	logger *zap.SugaredLogger
}

// New creates an empty PEA.
func New(name, description string) *PEA {
	log := logger.For(logger.ComponentPEA).With("pea", name)

	return &PEA{
		name:        name,
		description: description,
		services:    make(map[string]*service.Service),
		hub:         transport.NewHub(log),
		logger:      log,
	}
}

// Name returns the PEA name.
func (p *PEA) Name() string {
	return p.name
}

// Description returns the PEA description.
func (p *PEA) Description() string {
	return p.description
}

// Hub returns the shared transport hub.
func (p *PEA) Hub() *transport.Hub {
	return p.hub
}

// AddService registers a fully assembled service and wires its attribute
// tree to the transport hub. Called before Run; service names are unique.
func (p *PEA) AddService(svc *service.Service) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := svc.Name()
	if _, exists := p.services[name]; exists {
		return fmt.Errorf("duplicate service name %s", name)
	}

	p.hub.Attach(name, "", svc.Attributes())

	for _, param := range svc.ConfigurationParameters() {
		p.hub.Attach(name, param.TagName(), param.Attributes())
	}

	for _, proc := range svc.Procedures().Procedures() {
		for _, param := range proc.Parameters() {
			p.hub.Attach(name, param.TagName(), param.Attributes())
		}

		for _, rv := range proc.ReportValues() {
			p.hub.Attach(name, rv.TagName(), rv.Attributes())
		}

		for _, pv := range proc.ProcessValueOuts() {
			p.hub.Attach(name, pv.TagName(), pv.Attributes())
		}
	}

	p.services[name] = svc
	p.order = append(p.order, name)

	return nil
}

// Service returns a service by name.
func (p *PEA) Service(name string) (*service.Service, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	svc, ok := p.services[name]

	return svc, ok
}

// Services returns all services in registration order.
func (p *PEA) Services() []*service.Service {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*service.Service, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.services[name])
	}

	return out
}

// Manifest builds the structure export of this PEA.
func (p *PEA) Manifest() *manifest.Manifest {
	return manifest.Build(p.name, p.description, p.Services())
}

// Run starts every service, blocks until the context is cancelled and then
// stops them. Services stop concurrently; the first drain error is returned
// after all of them have terminated.
func (p *PEA) Run(ctx context.Context) error {
	services := p.Services()

	for _, svc := range services {
		svc.Start()
	}

	p.logger.Infof("PEA %s running with %d services", p.name, len(services))

	<-ctx.Done()

	p.logger.Infof("PEA %s shutting down", p.name)

	var g errgroup.Group

	for _, svc := range services {
		g.Go(svc.Stop)
	}

	return g.Wait()
}
