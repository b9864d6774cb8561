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

package mock

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/livekit/playback/pkg/gstreamer"
)

type signalHandler struct {
	handle gstreamer.SignalHandle
	f      any
}

type Element struct {
	mu sync.Mutex

	name    string
	factory string
	spec    *FactorySpec
	maker   *Maker
	parent  gstreamer.Element
	self    gstreamer.Element

	props   map[string]any
	state   gstreamer.State
	locked  bool
	pads    []*Pad
	padIdx  map[string]int
	signals map[string][]signalHandler
	setHist []gstreamer.State
	ctxs    map[string]*gstreamer.Context
}

func newElement(m *Maker, factory, name string, spec *FactorySpec) *Element {
	e := &Element{
		name:    name,
		factory: factory,
		spec:    spec,
		maker:   m,
		props:   make(map[string]any),
		state:   gstreamer.StateNull,
		padIdx:  make(map[string]int),
		signals: make(map[string][]signalHandler),
	}
	for k, v := range spec.Properties {
		e.props[k] = v
	}
	for _, t := range spec.Pads {
		if t.Presence == PresenceAlways {
			e.pads = append(e.pads, newPad(e, t.Name, t.Direction, t.Caps))
		}
	}
	return e
}

func (e *Element) element() gstreamer.Element {
	if e.self != nil {
		return e.self
	}
	return e
}

func (e *Element) GetName() string {
	return e.name
}

func (e *Element) GetFactoryName() string {
	return e.factory
}

func (e *Element) GetKlass() string {
	return e.spec.Klass
}

func (e *Element) GetParent() gstreamer.Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.parent
}

func (e *Element) setParent(p gstreamer.Element) {
	e.mu.Lock()
	e.parent = p
	e.mu.Unlock()
}

func (e *Element) HasProperty(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.props[name]
	return ok
}

func (e *Element) SetProperty(name string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.props[name]; !ok {
		return fmt.Errorf("%s has no property %s", e.name, name)
	}
	e.props[name] = value
	return nil
}

func (e *Element) GetProperty(name string) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.props[name]
	if !ok {
		return nil, fmt.Errorf("%s has no property %s", e.name, name)
	}
	return v, nil
}

// Property returns a property value, nil when unset.
func (e *Element) Property(name string) any {
	v, _ := e.GetProperty(name)
	return v
}

func (e *Element) SetState(state gstreamer.State) error {
	e.mu.Lock()
	if state >= gstreamer.StateReady && e.state == gstreamer.StateNull && e.maker.failsReady(e.factory) {
		e.mu.Unlock()
		return fmt.Errorf("%s failed to go to ready", e.name)
	}
	e.state = state
	e.setHist = append(e.setHist, state)
	e.mu.Unlock()
	return nil
}

func (e *Element) GetCurrentState() gstreamer.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// StateHistory returns every state the element was set to.
func (e *Element) StateHistory() []gstreamer.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]gstreamer.State(nil), e.setHist...)
}

func (e *Element) SyncStateWithParent() error {
	p := e.GetParent()
	if p == nil {
		return nil
	}
	return e.SetState(p.GetCurrentState())
}

func (e *Element) SetLockedState(locked bool) {
	e.mu.Lock()
	e.locked = locked
	e.mu.Unlock()
}

func (e *Element) IsLockedState() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locked
}

func (e *Element) GetStaticPad(name string) gstreamer.Pad {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.pads {
		if p.name == name {
			return p.self()
		}
	}
	return nil
}

// Pad returns the mock pad by name.
func (e *Element) Pad(name string) *Pad {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.pads {
		if p.name == name {
			return p
		}
	}
	return nil
}

func (e *Element) Pads() []*Pad {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Pad(nil), e.pads...)
}

func (e *Element) GetRequestPad(template string) gstreamer.Pad {
	e.mu.Lock()
	var tmpl *PadTemplate
	for i := range e.spec.Pads {
		if e.spec.Pads[i].Name == template && e.spec.Pads[i].Presence == PresenceRequest {
			tmpl = &e.spec.Pads[i]
			break
		}
	}
	if tmpl == nil {
		e.mu.Unlock()
		return nil
	}

	name := template
	if strings.Contains(template, "%u") {
		idx := e.padIdx[template]
		e.padIdx[template] = idx + 1
		name = strings.Replace(template, "%u", fmt.Sprint(idx), 1)
	}
	pad := newPad(e, name, tmpl.Direction, tmpl.Caps)
	pad.request = true
	e.pads = append(e.pads, pad)
	onRequest := e.spec.OnRequestPad
	e.mu.Unlock()

	if onRequest != nil {
		onRequest(e, pad)
	}
	return pad
}

func (e *Element) ReleaseRequestPad(pad gstreamer.Pad) {
	e.mu.Lock()
	var removed *Pad
	for i, p := range e.pads {
		if p.self() == pad || p == pad {
			removed = p
			e.pads = append(e.pads[:i], e.pads[i+1:]...)
			break
		}
	}
	onRelease := e.spec.OnReleasePad
	e.mu.Unlock()

	if removed != nil {
		if peer := removed.GetPeer(); peer != nil {
			if removed.direction == gstreamer.PadDirectionSource {
				removed.Unlink(peer)
			} else {
				peer.Unlink(removed)
			}
		}
		removed.released.Store(true)
		if onRelease != nil {
			onRelease(e, removed)
		}
	}
}

// AddPad adds a sometimes pad and emits pad-added.
func (e *Element) AddPad(name string, direction gstreamer.PadDirection, caps string, streamID string) *Pad {
	pad := newPad(e, name, direction, caps)
	pad.streamID = streamID
	e.mu.Lock()
	e.pads = append(e.pads, pad)
	e.mu.Unlock()
	e.Emit("pad-added", e.element(), gstreamer.Pad(pad))
	return pad
}

// RemovePadByName removes a sometimes pad and emits pad-removed.
func (e *Element) RemovePadByName(name string) {
	e.mu.Lock()
	var removed *Pad
	for i, p := range e.pads {
		if p.name == name {
			removed = p
			e.pads = append(e.pads[:i], e.pads[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
	if removed != nil {
		e.Emit("pad-removed", e.element(), gstreamer.Pad(removed))
	}
}

func (e *Element) addPadDirect(p *Pad) {
	e.mu.Lock()
	e.pads = append(e.pads, p)
	e.mu.Unlock()
}

func (e *Element) removePadDirect(p gstreamer.Pad) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.pads {
		if existing.self() == p || existing == p {
			e.pads = append(e.pads[:i], e.pads[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Element) Connect(signal string, f any) (gstreamer.SignalHandle, error) {
	if reflect.TypeOf(f).Kind() != reflect.Func {
		return 0, fmt.Errorf("handler for %s is not a function", signal)
	}
	h := gstreamer.SignalHandle(e.maker.nextID())
	e.mu.Lock()
	e.signals[signal] = append(e.signals[signal], signalHandler{handle: h, f: f})
	e.mu.Unlock()
	return h, nil
}

func (e *Element) Disconnect(handle gstreamer.SignalHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for signal, handlers := range e.signals {
		for i, h := range handlers {
			if h.handle == handle {
				e.signals[signal] = append(handlers[:i], handlers[i+1:]...)
				return
			}
		}
	}
}

// HandlerCount returns the number of handlers connected to a signal.
func (e *Element) HandlerCount(signal string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.signals[signal])
}

// Emit calls every handler of a signal and returns the first result of the last handler.
func (e *Element) Emit(signal string, args ...any) any {
	e.mu.Lock()
	handlers := append([]signalHandler(nil), e.signals[signal]...)
	e.mu.Unlock()

	var ret any
	for _, h := range handlers {
		fv := reflect.ValueOf(h.f)
		ft := fv.Type()
		in := make([]reflect.Value, ft.NumIn())
		for i := range in {
			if i < len(args) && args[i] != nil {
				in[i] = reflect.ValueOf(args[i])
			} else {
				in[i] = reflect.Zero(ft.In(i))
			}
		}
		out := fv.Call(in)
		if len(out) > 0 {
			ret = out[0].Interface()
		}
	}
	return ret
}

func (e *Element) SetContext(ctx *gstreamer.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctxs == nil {
		e.ctxs = make(map[string]*gstreamer.Context)
	}
	e.ctxs[ctx.Type] = ctx
}

// Context returns the context set for a type, nil if none.
func (e *Element) Context(contextType string) *gstreamer.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctxs[contextType]
}

func (e *Element) String() string {
	return e.name
}
