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
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/pea-core/pkg/attribute"
	"github.com/united-manufacturing-hub/pea-core/pkg/mode"
)

// AnaServParam is an analog service parameter (Table 40, VDI/VDE/NAMUR
// 2658-3): a float setpoint with scale bounds, writable on the VOp/VInt/VExt
// channels according to the element's mode, committed to VOut via Apply.
type AnaServParam struct {
	DataAssembly

	opMode *mode.Controller

	vMin, vMax float64

	vReq *attribute.Attribute
	vOut *attribute.Attribute
	vFbk *attribute.Attribute

	logger *zap.SugaredLogger
}

// NewAnaServParam creates an analog parameter with the given bounds, scale
// and unit code.
func NewAnaServParam(tagName, description string, vMin, vMax, vSclMin, vSclMax float64,
	vUnit int64, initValue float64, logger *zap.SugaredLogger) *AnaServParam {
	p := &AnaServParam{
		DataAssembly: newDataAssembly(tagName, description),
		opMode:       mode.NewController(tagName, logger),
		vMin:         vMin,
		vMax:         vMax,
		logger:       logger,
	}

	attrs := p.Attributes()
	attrs.MustAdd(attribute.New("VOp", attribute.TypeFloat, initValue).
		WithWriteHook(func(v any) { p.setFrom(mode.OriginOperator, v.(float64)) }))
	attrs.MustAdd(attribute.New("VInt", attribute.TypeFloat, initValue).
		WithWriteHook(func(v any) { p.setFrom(mode.OriginInternal, v.(float64)) }))
	attrs.MustAdd(attribute.New("VExt", attribute.TypeFloat, initValue).
		WithWriteHook(func(v any) { p.setFrom(mode.OriginExternal, v.(float64)) }))
	p.vReq = attrs.MustAdd(attribute.New("VReq", attribute.TypeFloat, initValue))
	p.vOut = attrs.MustAdd(attribute.New("VOut", attribute.TypeFloat, initValue))
	p.vFbk = attrs.MustAdd(attribute.New("VFbk", attribute.TypeFloat, initValue))
	attrs.MustAdd(attribute.New("VMin", attribute.TypeFloat, vMin))
	attrs.MustAdd(attribute.New("VMax", attribute.TypeFloat, vMax))
	attrs.MustAdd(attribute.New("VSclMin", attribute.TypeFloat, vSclMin))
	attrs.MustAdd(attribute.New("VSclMax", attribute.TypeFloat, vSclMax))
	attrs.MustAdd(attribute.New("VUnit", attribute.TypeInt, vUnit))

	return p
}

// ModeController returns the element's mode controller.
func (p *AnaServParam) ModeController() *mode.Controller {
	return p.opMode
}

func (p *AnaServParam) setFrom(origin mode.Origin, value float64) {
	if !p.opMode.PermitsOrigin(origin) {
		p.logger.Debugf("%s: write from %s channel ignored in mode %s/%s",
			p.TagName(), origin, p.opMode.OperationMode(), p.opMode.SourceMode())

		return
	}

	if value < p.vMin || value > p.vMax {
		p.logger.Warnf("%s: value %v out of range (%v - %v)", p.TagName(), value, p.vMin, p.vMax)

		return
	}

	_ = p.vReq.Set(value)
}

// Apply commits the requested value to VOut and mirrors it to VFbk.
func (p *AnaServParam) Apply() {
	v := p.vReq.Value()
	_ = p.vOut.Set(v)
	_ = p.vFbk.Set(v)
}

// Out returns the committed output value state bodies read.
func (p *AnaServParam) Out() float64 {
	return p.vOut.Value().(float64)
}

// DIntServParam is a discrete integer service parameter (Table 42,
// VDI/VDE/NAMUR 2658-3).
type DIntServParam struct {
	DataAssembly

	opMode *mode.Controller

	vMin, vMax int64

	vReq *attribute.Attribute
	vOut *attribute.Attribute
	vFbk *attribute.Attribute

	logger *zap.SugaredLogger
}

// NewDIntServParam creates an integer parameter with the given bounds, scale
// and unit code.
func NewDIntServParam(tagName, description string, vMin, vMax, vSclMin, vSclMax int64,
	vUnit int64, initValue int64, logger *zap.SugaredLogger) *DIntServParam {
	p := &DIntServParam{
		DataAssembly: newDataAssembly(tagName, description),
		opMode:       mode.NewController(tagName, logger),
		vMin:         vMin,
		vMax:         vMax,
		logger:       logger,
	}

	attrs := p.Attributes()
	attrs.MustAdd(attribute.New("VOp", attribute.TypeInt, initValue).
		WithWriteHook(func(v any) { p.setFrom(mode.OriginOperator, v.(int64)) }))
	attrs.MustAdd(attribute.New("VInt", attribute.TypeInt, initValue).
		WithWriteHook(func(v any) { p.setFrom(mode.OriginInternal, v.(int64)) }))
	attrs.MustAdd(attribute.New("VExt", attribute.TypeInt, initValue).
		WithWriteHook(func(v any) { p.setFrom(mode.OriginExternal, v.(int64)) }))
	p.vReq = attrs.MustAdd(attribute.New("VReq", attribute.TypeInt, initValue))
	p.vOut = attrs.MustAdd(attribute.New("VOut", attribute.TypeInt, initValue))
	p.vFbk = attrs.MustAdd(attribute.New("VFbk", attribute.TypeInt, initValue))
	attrs.MustAdd(attribute.New("VMin", attribute.TypeInt, vMin))
	attrs.MustAdd(attribute.New("VMax", attribute.TypeInt, vMax))
	attrs.MustAdd(attribute.New("VSclMin", attribute.TypeInt, vSclMin))
	attrs.MustAdd(attribute.New("VSclMax", attribute.TypeInt, vSclMax))
	attrs.MustAdd(attribute.New("VUnit", attribute.TypeInt, vUnit))

	return p
}

// ModeController returns the element's mode controller.
func (p *DIntServParam) ModeController() *mode.Controller {
	return p.opMode
}

func (p *DIntServParam) setFrom(origin mode.Origin, value int64) {
	if !p.opMode.PermitsOrigin(origin) {
		p.logger.Debugf("%s: write from %s channel ignored in mode %s/%s",
			p.TagName(), origin, p.opMode.OperationMode(), p.opMode.SourceMode())

		return
	}

	if value < p.vMin || value > p.vMax {
		p.logger.Warnf("%s: value %v out of range (%v - %v)", p.TagName(), value, p.vMin, p.vMax)

		return
	}

	_ = p.vReq.Set(value)
}

// Apply commits the requested value to VOut and mirrors it to VFbk.
func (p *DIntServParam) Apply() {
	v := p.vReq.Value()
	_ = p.vOut.Set(v)
	_ = p.vFbk.Set(v)
}

// Out returns the committed output value state bodies read.
func (p *DIntServParam) Out() int64 {
	return p.vOut.Value().(int64)
}

// BinServParam is a binary service parameter (Table 44, VDI/VDE/NAMUR
// 2658-3) with display texts for both states.
type BinServParam struct {
	DataAssembly

	opMode *mode.Controller

	vReq *attribute.Attribute
	vOut *attribute.Attribute
	vFbk *attribute.Attribute

	logger *zap.SugaredLogger
}

// NewBinServParam creates a binary parameter; vState0/vState1 are the
// display texts for false and true.
func NewBinServParam(tagName, description, vState0, vState1 string, initValue bool,
	logger *zap.SugaredLogger) *BinServParam {
	p := &BinServParam{
		DataAssembly: newDataAssembly(tagName, description),
		opMode:       mode.NewController(tagName, logger),
		logger:       logger,
	}

	attrs := p.Attributes()
	attrs.MustAdd(attribute.New("VOp", attribute.TypeBool, initValue).
		WithWriteHook(func(v any) { p.setFrom(mode.OriginOperator, v.(bool)) }))
	attrs.MustAdd(attribute.New("VInt", attribute.TypeBool, initValue).
		WithWriteHook(func(v any) { p.setFrom(mode.OriginInternal, v.(bool)) }))
	attrs.MustAdd(attribute.New("VExt", attribute.TypeBool, initValue).
		WithWriteHook(func(v any) { p.setFrom(mode.OriginExternal, v.(bool)) }))
	p.vReq = attrs.MustAdd(attribute.New("VReq", attribute.TypeBool, initValue))
	p.vOut = attrs.MustAdd(attribute.New("VOut", attribute.TypeBool, initValue))
	p.vFbk = attrs.MustAdd(attribute.New("VFbk", attribute.TypeBool, initValue))
	attrs.MustAdd(attribute.New("VState0", attribute.TypeString, vState0))
	attrs.MustAdd(attribute.New("VState1", attribute.TypeString, vState1))

	return p
}

// ModeController returns the element's mode controller.
func (p *BinServParam) ModeController() *mode.Controller {
	return p.opMode
}

func (p *BinServParam) setFrom(origin mode.Origin, value bool) {
	if !p.opMode.PermitsOrigin(origin) {
		p.logger.Debugf("%s: write from %s channel ignored in mode %s/%s",
			p.TagName(), origin, p.opMode.OperationMode(), p.opMode.SourceMode())

		return
	}

	_ = p.vReq.Set(value)
}

// Apply commits the requested value to VOut and mirrors it to VFbk.
func (p *BinServParam) Apply() {
	v := p.vReq.Value()
	_ = p.vOut.Set(v)
	_ = p.vFbk.Set(v)
}

// Out returns the committed output value state bodies read.
func (p *BinServParam) Out() bool {
	return p.vOut.Value().(bool)
}
