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
	"sync"

	"go.uber.org/atomic"

	"github.com/livekit/playback/pkg/gstreamer"
)

type Pad struct {
	mu sync.Mutex

	name      string
	direction gstreamer.PadDirection
	parent    *Element
	outer     gstreamer.Pad
	request   bool
	released  atomic.Bool

	peer      gstreamer.Pad
	caps      *gstreamer.Caps
	template  *gstreamer.Caps
	streamID  string
	groupID   uint32
	hasGroup  bool
	probes    map[gstreamer.ProbeID]*probe
	capsNotes map[gstreamer.SignalHandle]func(gstreamer.Pad)
	nextID    uint64
}

type probe struct {
	f     func(gstreamer.Pad)
	fired bool
}

func newPad(parent *Element, name string, direction gstreamer.PadDirection, caps string) *Pad {
	p := &Pad{
		name:      name,
		direction: direction,
		parent:    parent,
		probes:    make(map[gstreamer.ProbeID]*probe),
		capsNotes: make(map[gstreamer.SignalHandle]func(gstreamer.Pad)),
	}
	if caps != "" {
		p.template = gstreamer.MustParseCaps(caps)
	}
	return p
}

func (p *Pad) self() gstreamer.Pad {
	if p.outer != nil {
		return p.outer
	}
	return p
}

func (p *Pad) GetName() string {
	return p.name
}

func (p *Pad) GetDirection() gstreamer.PadDirection {
	return p.direction
}

func (p *Pad) GetParentElement() gstreamer.Element {
	if p.parent == nil {
		return nil
	}
	return p.parent.element()
}

// IsRequest reports whether the pad was created from a request template.
func (p *Pad) IsRequest() bool {
	return p.request
}

func (p *Pad) IsReleased() bool {
	return p.released.Load()
}

func (p *Pad) Link(sink gstreamer.Pad) error {
	if sink == nil {
		return fmt.Errorf("no sink pad")
	}
	if p.direction != gstreamer.PadDirectionSource || sink.GetDirection() != gstreamer.PadDirectionSink {
		return fmt.Errorf("wrong direction")
	}
	if p.IsLinked() || sink.IsLinked() {
		return fmt.Errorf("was linked")
	}
	srcCaps := gstreamer.PadCaps(p.self())
	sinkCaps := gstreamer.PadCaps(sink)
	if srcCaps != nil && sinkCaps != nil && !srcCaps.CanIntersect(sinkCaps) {
		return fmt.Errorf("no format")
	}
	p.setPeer(sink)
	asMock(sink).setPeer(p.self())
	return nil
}

func (p *Pad) Unlink(sink gstreamer.Pad) bool {
	if sink == nil || p.GetPeer() != sink {
		return false
	}
	p.setPeer(nil)
	asMock(sink).setPeer(nil)
	return true
}

func (p *Pad) setPeer(peer gstreamer.Pad) {
	p.mu.Lock()
	p.peer = peer
	p.mu.Unlock()
}

func (p *Pad) IsLinked() bool {
	return p.GetPeer() != nil
}

func (p *Pad) GetPeer() gstreamer.Pad {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer
}

func (p *Pad) GetCurrentCaps() *gstreamer.Caps {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.caps
}

func (p *Pad) QueryCaps(_ *gstreamer.Caps) *gstreamer.Caps {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.caps != nil {
		return p.caps
	}
	return p.template
}

func (p *Pad) GetStreamID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamID
}

func (p *Pad) SetStreamID(id string) {
	p.mu.Lock()
	p.streamID = id
	p.mu.Unlock()
}

func (p *Pad) GetGroupID() (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.groupID, p.hasGroup
}

// SetGroupID sets the group id carried by the stream-start event.
func (p *Pad) SetGroupID(id uint32) {
	p.mu.Lock()
	p.groupID, p.hasGroup = id, true
	p.mu.Unlock()
}

// SetCaps sets the negotiated caps and fires caps notifications from a streaming goroutine.
func (p *Pad) SetCaps(caps string) {
	p.mu.Lock()
	p.caps = gstreamer.MustParseCaps(caps)
	notes := make([]func(gstreamer.Pad), 0, len(p.capsNotes))
	for _, f := range p.capsNotes {
		notes = append(notes, f)
	}
	p.mu.Unlock()

	for _, f := range notes {
		streaming(func() { f(p.self()) })
	}
}

func (p *Pad) AddBlockProbe(onBlocked func(gstreamer.Pad)) gstreamer.ProbeID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := gstreamer.ProbeID(p.nextID)
	p.probes[id] = &probe{f: onBlocked}
	return id
}

func (p *Pad) RemoveProbe(id gstreamer.ProbeID) {
	p.mu.Lock()
	delete(p.probes, id)
	p.mu.Unlock()
}

// IsBlocked reports whether any block probe is installed.
func (p *Pad) IsBlocked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.probes) > 0
}

// FireBlocked runs every pending block callback once, each on its own
// streaming goroutine, and waits for them.
func (p *Pad) FireBlocked() int {
	p.mu.Lock()
	var pending []func(gstreamer.Pad)
	for _, pr := range p.probes {
		if !pr.fired {
			pr.fired = true
			pending = append(pending, pr.f)
		}
	}
	p.mu.Unlock()

	for _, f := range pending {
		streaming(func() { f(p.self()) })
	}
	return len(pending)
}

func (p *Pad) NotifyCaps(f func(gstreamer.Pad)) gstreamer.SignalHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	h := gstreamer.SignalHandle(p.nextID)
	p.capsNotes[h] = f
	return h
}

func (p *Pad) Disconnect(handle gstreamer.SignalHandle) {
	p.mu.Lock()
	delete(p.capsNotes, handle)
	p.mu.Unlock()
}

func (p *Pad) String() string {
	if p.parent == nil {
		return p.name
	}
	return p.parent.name + ":" + p.name
}

// GhostPad proxies a target pad on a bin.
type GhostPad struct {
	*Pad
	target gstreamer.Pad
}

func (g *GhostPad) SetTarget(target gstreamer.Pad) error {
	if target != nil && target.GetDirection() != g.direction {
		return fmt.Errorf("ghost pad direction mismatch")
	}
	g.mu.Lock()
	g.target = target
	g.mu.Unlock()
	return nil
}

func (g *GhostPad) GetTarget() gstreamer.Pad {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.target
}

func (g *GhostPad) GetCurrentCaps() *gstreamer.Caps {
	if caps := g.Pad.GetCurrentCaps(); caps != nil {
		return caps
	}
	if t := g.GetTarget(); t != nil {
		return t.GetCurrentCaps()
	}
	return nil
}

func (g *GhostPad) QueryCaps(filter *gstreamer.Caps) *gstreamer.Caps {
	if caps := g.Pad.GetCurrentCaps(); caps != nil {
		return caps
	}
	if t := g.GetTarget(); t != nil {
		return t.QueryCaps(filter)
	}
	return nil
}

// AsPad returns the mock pad behind a framework pad.
func AsPad(p gstreamer.Pad) *Pad {
	return asMock(p)
}

func asMock(p gstreamer.Pad) *Pad {
	switch v := p.(type) {
	case *Pad:
		return v
	case *GhostPad:
		return v.Pad
	default:
		panic(fmt.Sprintf("not a mock pad: %T", p))
	}
}

func streaming(f func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		f()
	}()
	<-done
}
