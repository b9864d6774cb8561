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

	"github.com/livekit/playback/pkg/gstreamer"
)

type Bin struct {
	*Element

	children []gstreamer.Element
}

func newBin(m *Maker, factory, name string, spec *FactorySpec) *Bin {
	b := &Bin{Element: newElement(m, factory, name, spec)}
	b.self = b
	return b
}

func (b *Bin) Add(elements ...gstreamer.Element) error {
	for _, el := range elements {
		if el.GetParent() != nil {
			return fmt.Errorf("%s already has a parent", el.GetName())
		}
	}
	b.mu.Lock()
	b.children = append(b.children, elements...)
	b.mu.Unlock()
	for _, el := range elements {
		setParent(el, b)
	}
	return nil
}

func (b *Bin) Remove(elements ...gstreamer.Element) error {
	for _, el := range elements {
		b.mu.Lock()
		found := false
		for i, c := range b.children {
			if c == el {
				b.children = append(b.children[:i], b.children[i+1:]...)
				found = true
				break
			}
		}
		b.mu.Unlock()
		if !found {
			return fmt.Errorf("%s is not a child of %s", el.GetName(), b.name)
		}
		unlinkAll(el)
		setParent(el, nil)
	}
	return nil
}

func (b *Bin) Children() []gstreamer.Element {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]gstreamer.Element(nil), b.children...)
}

// Contains reports whether el is a direct child.
func (b *Bin) Contains(el gstreamer.Element) bool {
	for _, c := range b.Children() {
		if c == el {
			return true
		}
	}
	return false
}

func (b *Bin) SetState(state gstreamer.State) error {
	if err := b.Element.SetState(state); err != nil {
		return err
	}
	for _, c := range b.Children() {
		if locked, ok := c.(interface{ IsLockedState() bool }); ok && locked.IsLockedState() {
			continue
		}
		if err := c.SetState(state); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bin) NewGhostPad(name string, target gstreamer.Pad, direction gstreamer.PadDirection) (gstreamer.GhostPad, error) {
	if target != nil {
		direction = target.GetDirection()
	}
	g := &GhostPad{Pad: newPad(b.Element, name, direction, "")}
	g.outer = g
	g.target = target
	b.addPadDirect(g.Pad)
	return g, nil
}

func (b *Bin) RemovePad(pad gstreamer.Pad) error {
	if peer := pad.GetPeer(); peer != nil {
		if pad.GetDirection() == gstreamer.PadDirectionSource {
			pad.Unlink(peer)
		} else {
			peer.Unlink(pad)
		}
	}
	if !b.removePadDirect(pad) {
		return fmt.Errorf("%s has no pad %s", b.name, pad.GetName())
	}
	return nil
}

// unlinkAll drops every link of el's pads, as removing from a bin does.
func unlinkAll(el gstreamer.Element) {
	for _, p := range AsElement(el).Pads() {
		peer := p.GetPeer()
		if peer == nil {
			continue
		}
		if p.GetDirection() == gstreamer.PadDirectionSource {
			p.Unlink(peer)
		} else {
			peer.Unlink(p.self())
		}
	}
}

func setParent(el gstreamer.Element, parent gstreamer.Element) {
	switch v := el.(type) {
	case *Element:
		v.setParent(parent)
	case *Bin:
		v.setParent(parent)
	}
}

func (b *Bin) SyncStateWithParent() error {
	p := b.GetParent()
	if p == nil {
		return nil
	}
	return b.SetState(p.GetCurrentState())
}
