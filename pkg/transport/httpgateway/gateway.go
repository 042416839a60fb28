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

// Package httpgateway exposes a PEA over HTTP: discovery via the manifest,
// observation via the attribute stream and actuation via command, mode,
// procedure and parameter endpoints.
package httpgateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/pea-core/pkg/attribute"
	"github.com/united-manufacturing-hub/pea-core/pkg/elements"
	"github.com/united-manufacturing-hub/pea-core/pkg/logger"
	"github.com/united-manufacturing-hub/pea-core/pkg/manifest"
	"github.com/united-manufacturing-hub/pea-core/pkg/mode"
	"github.com/united-manufacturing-hub/pea-core/pkg/service"
	"github.com/united-manufacturing-hub/pea-core/pkg/standarderrors"
	"github.com/united-manufacturing-hub/pea-core/pkg/statemachine"
	"github.com/united-manufacturing-hub/pea-core/pkg/transport"
)

// Directory is what the gateway needs from the PEA aggregate.
type Directory interface {
	Name() string
	Service(name string) (*service.Service, bool)
	Services() []*service.Service
	Manifest() *manifest.Manifest
	Hub() *transport.Hub
}

// Gateway serves the HTTP API of one PEA.
type Gateway struct {
	dir    Directory
	engine *gin.Engine

	logger *zap.SugaredLogger
}

// New creates a gateway for the given PEA directory.
func New(dir Directory) *Gateway {
	gin.SetMode(gin.ReleaseMode)

	g := &Gateway{
		dir:    dir,
		engine: gin.New(),
		logger: logger.For(logger.ComponentGateway),
	}

	g.engine.Use(gin.Recovery())
	g.routes()

	return g
}

func (g *Gateway) routes() {
	g.engine.GET("/health", g.handleHealth)

	api := g.engine.Group("/api/v1")
	api.GET("/manifest", g.handleManifest)
	api.GET("/updates", g.handleUpdates)
	api.GET("/services", g.handleListServices)
	api.GET("/services/:name", g.handleGetService)
	api.POST("/services/:name/commands", g.handleCommand)
	api.POST("/services/:name/operation-mode", g.handleOperationMode)
	api.POST("/services/:name/source-mode", g.handleSourceMode)
	api.POST("/services/:name/procedure", g.handleProcedure)
	api.POST("/services/:name/elements/:element/attributes/:attr", g.handleWriteAttribute)
}

// Handler returns the HTTP handler, for embedding into another server.
func (g *Gateway) Handler() http.Handler {
	return g.engine
}

// Run serves the API on addr until the context is cancelled.
func (g *Gateway) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:        addr,
		Handler:     g.engine,
		ReadTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- server.ListenAndServe()
	}()

	g.logger.Infof("HTTP gateway listening on %s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}
}

func (g *Gateway) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "pea": g.dir.Name()})
}

func (g *Gateway) handleManifest(c *gin.Context) {
	data, err := g.dir.Manifest().JSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.Data(http.StatusOK, "application/json", data)
}

// handleUpdates streams attribute changes as server-sent events.
func (g *Gateway) handleUpdates(c *gin.Context) {
	updates, cancel := g.dir.Hub().Subscribe(256)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	c.Stream(func(_ io.Writer) bool {
		select {
		case update, ok := <-updates:
			if !ok {
				return false
			}

			c.SSEvent("update", update)

			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (g *Gateway) handleListServices(c *gin.Context) {
	services := g.dir.Services()
	out := make([]gin.H, 0, len(services))

	for _, svc := range services {
		out = append(out, serviceSummary(svc))
	}

	c.JSON(http.StatusOK, gin.H{"services": out})
}

func (g *Gateway) handleGetService(c *gin.Context) {
	svc, ok := g.dir.Service(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service"})

		return
	}

	summary := serviceSummary(svc)

	attrs := gin.H{}
	for _, a := range svc.Attributes().All() {
		attrs[a.Name()] = a.Value()
	}

	summary["attributes"] = attrs

	c.JSON(http.StatusOK, summary)
}

func serviceSummary(svc *service.Service) gin.H {
	mc := svc.ModeController()

	return gin.H{
		"name":        svc.Name(),
		"description": svc.Description(),
		"state":       string(svc.State()),
		"stateCode":   svc.State().Code(),
		"commandEn":   svc.CommandEn(),
		"opMode":      string(mc.OperationMode()),
		"sourceMode":  string(mc.SourceMode()),
	}
}

type commandRequest struct {
	Command string `json:"command" binding:"required"`
	Origin  string `json:"origin"`
}

func (g *Gateway) handleCommand(c *gin.Context) {
	svc, ok := g.dir.Service(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service"})

		return
	}

	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	cmd := statemachine.Command(req.Command)
	if !cmd.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown command " + req.Command})

		return
	}

	origin, err := parseOrigin(req.Origin)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if err := svc.Command(c.Request.Context(), cmd, origin); err != nil {
		g.renderError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"state": string(svc.State())})
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (g *Gateway) handleOperationMode(c *gin.Context) {
	svc, ok := g.dir.Service(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service"})

		return
	}

	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	target, err := mode.ParseOperationMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if err := svc.SetOperationMode(c.Request.Context(), target); err != nil {
		g.renderError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"opMode": string(svc.ModeController().OperationMode())})
}

func (g *Gateway) handleSourceMode(c *gin.Context) {
	svc, ok := g.dir.Service(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service"})

		return
	}

	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	target, err := mode.ParseSourceMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if err := svc.SetSourceMode(c.Request.Context(), target); err != nil {
		g.renderError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"sourceMode": string(svc.ModeController().SourceMode())})
}

type procedureRequest struct {
	ID     int64  `json:"id" binding:"required"`
	Origin string `json:"origin"`
}

func (g *Gateway) handleProcedure(c *gin.Context) {
	svc, ok := g.dir.Service(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service"})

		return
	}

	var req procedureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	origin, err := parseOrigin(req.Origin)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if err := svc.RequestProcedure(c.Request.Context(), req.ID, origin); err != nil {
		g.renderError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"requested": req.ID})
}

type writeRequest struct {
	Value any `json:"value"`
}

// handleWriteAttribute routes an external write onto an element attribute.
// Only attributes carrying a write hook accept external writes; the hook
// carries the value through mode gating into the element, so an impermissible
// write lands nowhere. Indicator attributes are owned by the core and
// rejected outright.
func (g *Gateway) handleWriteAttribute(c *gin.Context) {
	svc, ok := g.dir.Service(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service"})

		return
	}

	attr, ok := findElementAttribute(svc, c.Param("element"), c.Param("attr"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown element or attribute"})

		return
	}

	if !attr.Writable() {
		c.JSON(http.StatusForbidden, gin.H{"error": "attribute " + attr.Name() + " is read-only"})

		return
	}

	var req writeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if err := attr.Write(req.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{"value": attr.Value()})
}

// parseOrigin resolves the origin field of a request, defaulting to the
// operator channel when the caller left it out.
func parseOrigin(raw string) (mode.Origin, error) {
	if raw == "" {
		return mode.OriginOperator, nil
	}

	return mode.ParseOrigin(raw)
}

// findElementAttribute searches configuration parameters and all procedure
// elements for the addressed attribute.
func findElementAttribute(svc *service.Service, element, attrName string) (*attribute.Attribute, bool) {
	var candidates []elements.Element

	for _, p := range svc.ConfigurationParameters() {
		candidates = append(candidates, p)
	}

	for _, proc := range svc.Procedures().Procedures() {
		for _, p := range proc.Parameters() {
			candidates = append(candidates, p)
		}

		for _, rv := range proc.ReportValues() {
			candidates = append(candidates, rv)
		}

		for _, pv := range proc.ProcessValueOuts() {
			candidates = append(candidates, pv)
		}
	}

	for _, e := range candidates {
		if e.TagName() != element {
			continue
		}

		return e.Attributes().Get(attrName)
	}

	return nil, false
}

// renderError maps admission errors onto HTTP statuses.
func (g *Gateway) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, standarderrors.ErrCommandRejected),
		errors.Is(err, standarderrors.ErrCommandSuperseded),
		errors.Is(err, standarderrors.ErrModeTransitionRejected),
		errors.Is(err, standarderrors.ErrProcedureSwitchRejected):
		status = http.StatusConflict
	case errors.Is(err, standarderrors.ErrServiceShuttingDown):
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
