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
	"sync"
	"unsafe"

	"github.com/go-gst/go-gst/gst"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
)

var initOnce sync.Once

// Init initializes gstreamer once per process.
func Init() {
	initOnce.Do(func() {
		gst.Init(nil)
	})
}

// Maker creates gstreamer elements and keeps one wrapper per native object,
// so wrappers can be compared by identity.
type Maker struct {
	mu       sync.Mutex
	registry *gstreamer.Registry
	elements map[unsafe.Pointer]gstreamer.Element
	pads     map[unsafe.Pointer]gstreamer.Pad
}

// NewRegistry returns a registry backed by gstreamer, seeded with factories.
func NewRegistry(factories ...*gstreamer.Factory) (*gstreamer.Registry, *Maker, error) {
	Init()
	m := &Maker{
		elements: make(map[unsafe.Pointer]gstreamer.Element),
		pads:     make(map[unsafe.Pointer]gstreamer.Pad),
	}
	m.registry = gstreamer.NewRegistry(m)
	if len(factories) > 0 {
		if err := m.registry.Register(factories...); err != nil {
			return nil, nil, err
		}
	}
	return m.registry, m, nil
}

func (m *Maker) MakeElement(factory, name string) (gstreamer.Element, error) {
	if factory == "bin" {
		bin := gst.NewBin(name)
		if bin == nil {
			return nil, errors.ErrMissingElement(factory)
		}
		return m.wrapBin(bin), nil
	}

	el, err := gst.NewElementWithName(factory, name)
	if err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}
	return m.wrap(el), nil
}

// wrap returns the wrapper of el, creating it on first use.
func (m *Maker) wrap(el *gst.Element) gstreamer.Element {
	if el == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := el.Unsafe()
	if w, ok := m.elements[key]; ok {
		return w
	}
	w := &Element{maker: m, el: el}
	m.elements[key] = w
	return w
}

func (m *Maker) wrapBin(bin *gst.Bin) *Bin {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := bin.Element.Unsafe()
	if w, ok := m.elements[key].(*Bin); ok {
		return w
	}
	w := &Bin{Element: &Element{maker: m, el: bin.Element}, bin: bin}
	m.elements[key] = w
	return w
}

func (m *Maker) wrapPad(pad *gst.Pad) gstreamer.Pad {
	if pad == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := pad.Unsafe()
	if w, ok := m.pads[key]; ok {
		return w
	}
	w := &Pad{maker: m, pad: pad}
	m.pads[key] = w
	return w
}

func (m *Maker) wrapGhostPad(pad *gst.GhostPad) *GhostPad {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pad.Pad.Unsafe()
	if w, ok := m.pads[key].(*GhostPad); ok {
		return w
	}
	w := &GhostPad{Pad: &Pad{maker: m, pad: pad.Pad}, ghost: pad}
	m.pads[key] = w
	return w
}

// forget drops the wrappers of an element and its pads once it leaves the graph.
func (m *Maker) forget(el *gst.Element) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.elements, el.Unsafe())
	if pads, err := el.GetPads(); err == nil {
		for _, pad := range pads {
			delete(m.pads, pad.Unsafe())
		}
	}
}

// factory resolves a native factory to the registry entry of the same name.
func (m *Maker) factory(f *gst.ElementFactory) *gstreamer.Factory {
	if f == nil {
		return nil
	}
	return m.registry.Find(f.GetName())
}
