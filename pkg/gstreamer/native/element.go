// Copyright 2023 LiveKit, Inc.
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

package native

import (
	"fmt"

	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
)

type Element struct {
	maker *Maker
	el    *gst.Element
}

func (e *Element) Native() *gst.Element {
	return e.el
}

func (e *Element) GetName() string {
	return e.el.GetName()
}

func (e *Element) GetFactoryName() string {
	if f := e.el.GetFactory(); f != nil {
		return f.GetName()
	}
	return ""
}

func (e *Element) GetKlass() string {
	if f := e.el.GetFactory(); f != nil {
		return f.GetMetadata(gst.ElementMetadataKlass)
	}
	return ""
}

func (e *Element) GetParent() gstreamer.Element {
	parent := e.el.GetParent()
	if parent == nil {
		return nil
	}
	return e.maker.wrap(gst.ToElement(parent))
}

func (e *Element) HasProperty(name string) bool {
	_, err := e.el.GetPropertyType(name)
	return err == nil
}

func (e *Element) SetProperty(name string, value any) error {
	v, err := toNative(value)
	if err != nil {
		return err
	}
	return e.el.SetProperty(name, v)
}

func (e *Element) GetProperty(name string) (any, error) {
	v, err := e.el.GetProperty(name)
	if err != nil {
		return nil, err
	}
	return e.maker.fromNative(v), nil
}

func (e *Element) SetState(state gstreamer.State) error {
	if err := e.el.SetState(toState(state)); err != nil {
		return errors.ErrStateChangeFailed(e.GetName(), state.String())
	}
	return nil
}

func (e *Element) GetCurrentState() gstreamer.State {
	return fromState(e.el.GetCurrentState())
}

func (e *Element) SyncStateWithParent() error {
	if !e.el.SyncStateWithParent() {
		return errors.ErrStateChangeFailed(e.GetName(), "parent")
	}
	return nil
}

func (e *Element) SetLockedState(locked bool) {
	e.el.SetLockedState(locked)
}

func (e *Element) GetStaticPad(name string) gstreamer.Pad {
	return e.maker.wrapPad(e.el.GetStaticPad(name))
}

func (e *Element) GetRequestPad(template string) gstreamer.Pad {
	return e.maker.wrapPad(e.el.GetRequestPad(template))
}

func (e *Element) ReleaseRequestPad(pad gstreamer.Pad) {
	p := unwrapPad(pad)
	if p == nil {
		return
	}
	e.el.ReleaseRequestPad(p)

	e.maker.mu.Lock()
	delete(e.maker.pads, p.Unsafe())
	e.maker.mu.Unlock()
}

func (e *Element) SetContext(ctx *gstreamer.Context) {
	if c, ok := ctx.Value.(*gst.Context); ok {
		e.el.SetContext(c)
	}
}

// Connect adapts handlers written against the gstreamer interfaces to the
// native signal signatures.
func (e *Element) Connect(signal string, f any) (gstreamer.SignalHandle, error) {
	m := e.maker
	var handler any

	switch h := f.(type) {
	case func(gstreamer.Element):
		handler = func(self *gst.Element) {
			h(m.wrap(self))
		}
	case func(gstreamer.Element, gstreamer.Pad):
		handler = func(self *gst.Element, pad *gst.Pad) {
			h(m.wrap(self), m.wrapPad(pad))
		}
	case func(gstreamer.Element, gstreamer.Element):
		handler = func(self *gst.Element, child *gst.Element) {
			h(m.wrap(self), m.wrap(child))
		}
	default:
		if signal != "autoplug-select" {
			return 0, errors.ErrNotSupported(fmt.Sprintf("signal %s with %T", signal, f))
		}
		if handler = m.autoplugSelect(f); handler == nil {
			return 0, errors.ErrNotSupported(fmt.Sprintf("signal %s with %T", signal, f))
		}
	}

	handle, err := e.el.Connect(signal, handler)
	if err != nil {
		return 0, errors.ErrGstPipelineError(err)
	}
	return gstreamer.SignalHandle(handle), nil
}

func (e *Element) Disconnect(handle gstreamer.SignalHandle) {
	e.el.HandlerDisconnect(glib.SignalHandle(handle))
}

func (e *Element) String() string {
	return e.GetName()
}

type Bin struct {
	*Element
	bin *gst.Bin
}

func (b *Bin) Add(elements ...gstreamer.Element) error {
	for _, el := range elements {
		native := unwrapElement(el)
		if native == nil {
			return errors.ErrGstPipelineError(fmt.Errorf("%s is not a native element", el.GetName()))
		}
		if err := b.bin.Add(native); err != nil {
			return errors.ErrGstPipelineError(err)
		}
	}
	return nil
}

func (b *Bin) Remove(elements ...gstreamer.Element) error {
	for _, el := range elements {
		native := unwrapElement(el)
		if native == nil {
			continue
		}
		if err := b.bin.Remove(native); err != nil {
			return errors.ErrGstPipelineError(err)
		}
		b.maker.forget(native)
	}
	return nil
}

func (b *Bin) NewGhostPad(name string, target gstreamer.Pad, direction gstreamer.PadDirection) (gstreamer.GhostPad, error) {
	var ghost *gst.GhostPad
	if t := unwrapPad(target); t != nil {
		ghost = gst.NewGhostPad(name, t)
	} else {
		ghost = gst.NewGhostPadNoTarget(name, toDirection(direction))
	}
	if ghost == nil {
		return nil, errors.ErrGstPipelineError(fmt.Errorf("failed to create ghost pad %s", name))
	}
	if !b.bin.AddPad(ghost.Pad) {
		return nil, errors.ErrGstPipelineError(fmt.Errorf("failed to add ghost pad %s", name))
	}
	return b.maker.wrapGhostPad(ghost), nil
}

func (b *Bin) RemovePad(pad gstreamer.Pad) error {
	p := unwrapPad(pad)
	if p == nil {
		return nil
	}
	if !b.el.RemovePad(p) {
		return errors.ErrGstPipelineError(fmt.Errorf("failed to remove pad %s", pad.GetName()))
	}

	b.maker.mu.Lock()
	delete(b.maker.pads, p.Unsafe())
	b.maker.mu.Unlock()
	return nil
}

func unwrapElement(el gstreamer.Element) *gst.Element {
	switch e := el.(type) {
	case *Element:
		return e.el
	case *Bin:
		return e.el
	default:
		return nil
	}
}
