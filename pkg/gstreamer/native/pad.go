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
	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
)

type Pad struct {
	maker *Maker
	pad   *gst.Pad
}

func (p *Pad) GetName() string {
	return p.pad.GetName()
}

func (p *Pad) GetDirection() gstreamer.PadDirection {
	switch p.pad.GetDirection() {
	case gst.PadDirectionSource:
		return gstreamer.PadDirectionSource
	case gst.PadDirectionSink:
		return gstreamer.PadDirectionSink
	default:
		return gstreamer.PadDirectionUnknown
	}
}

func (p *Pad) GetParentElement() gstreamer.Element {
	return p.maker.wrap(p.pad.GetParentElement())
}

func (p *Pad) Link(sink gstreamer.Pad) error {
	s := unwrapPad(sink)
	if s == nil {
		return errors.ErrPadLinkFailed(p.GetName(), "<nil>", "missing sink pad")
	}
	if ret := p.pad.Link(s); ret != gst.PadLinkOK {
		return errors.ErrPadLinkFailed(p.GetName(), sink.GetName(), ret.String())
	}
	return nil
}

func (p *Pad) Unlink(sink gstreamer.Pad) bool {
	s := unwrapPad(sink)
	if s == nil {
		return false
	}
	return p.pad.Unlink(s)
}

func (p *Pad) IsLinked() bool {
	return p.pad.IsLinked()
}

func (p *Pad) GetPeer() gstreamer.Pad {
	return p.maker.wrapPad(p.pad.GetPeer())
}

func (p *Pad) GetCurrentCaps() *gstreamer.Caps {
	return fromCaps(p.pad.GetCurrentCaps())
}

func (p *Pad) QueryCaps(filter *gstreamer.Caps) *gstreamer.Caps {
	return fromCaps(p.pad.QueryCaps(toCaps(filter)))
}

func (p *Pad) GetStreamID() string {
	return p.pad.GetStreamID()
}

func (p *Pad) GetGroupID() (uint32, bool) {
	ev := p.pad.GetStickyEvent(gst.EventTypeStreamStart, 0)
	if ev == nil {
		return 0, false
	}
	ok, id := ev.ParseGroupID()
	return uint32(id), ok
}

// AddBlockProbe installs a blocking probe. The callback is dispatched on its
// own goroutine so it never runs inside the caller.
func (p *Pad) AddBlockProbe(onBlocked func(gstreamer.Pad)) gstreamer.ProbeID {
	id := p.pad.AddProbe(gst.PadProbeTypeBlockDownstream, func(pad *gst.Pad, _ *gst.PadProbeInfo) gst.PadProbeReturn {
		go onBlocked(p)
		return gst.PadProbeOK
	})
	return gstreamer.ProbeID(id)
}

func (p *Pad) RemoveProbe(id gstreamer.ProbeID) {
	p.pad.RemoveProbe(uint64(id))
}

func (p *Pad) NotifyCaps(f func(gstreamer.Pad)) gstreamer.SignalHandle {
	handle, err := p.pad.Connect("notify::caps", func(*gst.Pad) {
		f(p)
	})
	if err != nil {
		return 0
	}
	return gstreamer.SignalHandle(handle)
}

func (p *Pad) Disconnect(handle gstreamer.SignalHandle) {
	p.pad.HandlerDisconnect(glib.SignalHandle(handle))
}

func (p *Pad) String() string {
	return p.GetName()
}

type GhostPad struct {
	*Pad
	ghost *gst.GhostPad
}

func (g *GhostPad) SetTarget(target gstreamer.Pad) error {
	if !g.ghost.SetTarget(unwrapPad(target)) {
		return errors.ErrPadLinkFailed(g.GetName(), "target", "could not retarget ghost pad")
	}
	return nil
}

func (g *GhostPad) GetTarget() gstreamer.Pad {
	return g.maker.wrapPad(g.ghost.GetTarget())
}

func unwrapPad(pad gstreamer.Pad) *gst.Pad {
	switch p := pad.(type) {
	case *Pad:
		return p.pad
	case *GhostPad:
		return p.pad
	default:
		return nil
	}
}
