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
	"strings"
	"sync"

	"github.com/livekit/playback/pkg/gstreamer"
)

type Presence int

const (
	PresenceAlways Presence = iota
	PresenceRequest
)

type PadTemplate struct {
	Name      string
	Direction gstreamer.PadDirection
	Presence  Presence
	Caps      string
}

type FactorySpec struct {
	Klass      string
	Properties map[string]any
	Pads       []PadTemplate
	Bin        bool

	OnRequestPad func(el *Element, pad *Pad)
	OnReleasePad func(el *Element, pad *Pad)
}

// Maker creates mock elements from registered factory specs.
type Maker struct {
	mu        sync.Mutex
	specs     map[string]*FactorySpec
	created   map[string][]gstreamer.Element
	failReady map[string]bool
	names     map[string]int
	id        uint64
}

func NewMaker() *Maker {
	return &Maker{
		specs:     make(map[string]*FactorySpec),
		created:   make(map[string][]gstreamer.Element),
		failReady: make(map[string]bool),
		names:     make(map[string]int),
	}
}

func (m *Maker) Add(factory string, spec *FactorySpec) {
	m.mu.Lock()
	m.specs[factory] = spec
	m.mu.Unlock()
}

func (m *Maker) Delete(factory string) {
	m.mu.Lock()
	delete(m.specs, factory)
	m.mu.Unlock()
}

func (m *Maker) SetFailReady(factory string, fail bool) {
	m.mu.Lock()
	m.failReady[factory] = fail
	m.mu.Unlock()
}

func (m *Maker) failsReady(factory string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failReady[factory]
}

func (m *Maker) nextID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id++
	return m.id
}

func (m *Maker) MakeElement(factory, name string) (gstreamer.Element, error) {
	m.mu.Lock()
	spec, ok := m.specs[factory]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("no such element factory %s", factory)
	}
	if name == "" {
		name = fmt.Sprintf("%s%d", strings.ReplaceAll(factory, "-", ""), m.names[factory])
		m.names[factory]++
	}
	m.mu.Unlock()

	var el gstreamer.Element
	if spec.Bin {
		el = newBin(m, factory, name, spec)
	} else {
		el = newElement(m, factory, name, spec)
	}

	m.mu.Lock()
	m.created[factory] = append(m.created[factory], el)
	m.mu.Unlock()
	return el, nil
}

// Created returns every element made from factory, in creation order.
func (m *Maker) Created(factory string) []gstreamer.Element {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]gstreamer.Element(nil), m.created[factory]...)
}

func (m *Maker) Count(factory string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created[factory])
}

// Last returns the most recent element made from factory.
func (m *Maker) Last(factory string) gstreamer.Element {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.created[factory]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// AsElement returns the mock element behind a framework element.
func AsElement(el gstreamer.Element) *Element {
	switch v := el.(type) {
	case *Element:
		return v
	case *Bin:
		return v.Element
	default:
		panic(fmt.Sprintf("not a mock element: %T", el))
	}
}

func AsBin(el gstreamer.Element) *Bin {
	b, ok := el.(*Bin)
	if !ok {
		panic(fmt.Sprintf("not a mock bin: %T", el))
	}
	return b
}
