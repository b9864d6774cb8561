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

package playbin

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/types"
	"github.com/livekit/playback/pkg/util"
)

// sourceGroup is one of the two double-buffered sources. The current group
// is linked into the playsink, the next one holds the media queued after it.
type sourceGroup struct {
	lock gstreamer.RecMutex
	slot int

	uri    string
	suburi string

	valid                bool
	active               bool
	playing              bool
	streamChangedPending bool
	pendingAboutToFinish bool

	frontEnd    gstreamer.Element
	subFrontEnd gstreamer.Element
	handles     []gstreamer.SignalHandle
	subHandles  []gstreamer.SignalHandle

	combines [types.MediaLast]*sourceCombine
	padTypes map[gstreamer.Pad]types.MediaType
	flushing []flushingPad
	sinks    [types.MediaLast]gstreamer.Element

	collection *gstreamer.StreamCollection
	selected   []string
	present    types.StreamType

	groupID    uint32
	hasGroupID bool

	pendingBuffering *gstreamer.Message
}

// flushingPad keeps a pad that appeared during shutdown from erroring as not linked.
type flushingPad struct {
	src  gstreamer.Pad
	sink gstreamer.Pad
}

func newSourceGroup(slot int) *sourceGroup {
	return &sourceGroup{
		slot:     slot,
		padTypes: make(map[gstreamer.Pad]types.MediaType),
	}
}

func (g *sourceGroup) String() string {
	return fmt.Sprintf("group%d", g.slot)
}

// owns reports whether el belongs to the group's decoding front ends.
func (g *sourceGroup) owns(el gstreamer.Element) bool {
	return gstreamer.HasAncestor(el, g.frontEnd) || g.ownsSubtitle(el)
}

func (g *sourceGroup) ownsSubtitle(el gstreamer.Element) bool {
	return gstreamer.HasAncestor(el, g.subFrontEnd)
}

// SetURI queues the media played once the current media finishes, or on
// the next transition to paused.
func (pb *PlayBin) SetURI(uri string) error {
	if uri == "" {
		return errors.ErrInvalidConfig("uri", uri)
	}

	pb.lock.Lock()
	defer pb.lock.Unlock()

	g := pb.next
	g.lock.Lock()
	g.uri = uri
	g.valid = true
	g.lock.Unlock()

	pb.logger.Debugw("set new uri", "uri", util.RedactURI(uri), "group", g)
	return nil
}

func (pb *PlayBin) GetURI() string {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	return pb.next.uri
}

// SetSubURI queues a subtitle uri with the next media.
func (pb *PlayBin) SetSubURI(suburi string) {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	g := pb.next
	g.lock.Lock()
	g.suburi = suburi
	g.lock.Unlock()

	pb.logger.Debugw("set new suburi", "suburi", util.RedactURI(suburi), "group", g)
}

func (pb *PlayBin) GetSubURI() string {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	return pb.next.suburi
}

func (pb *PlayBin) GetCurrentURI() string {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	if !pb.curr.valid {
		return ""
	}
	return pb.curr.uri
}

func (pb *PlayBin) GetCurrentSubURI() string {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	if !pb.curr.valid {
		return ""
	}
	return pb.curr.suburi
}

// activateNext swaps the next group in and activates it. The previous
// group is deactivated first so at most one group is ever active.
func (pb *PlayBin) activateNext(target gstreamer.State) (gstreamer.StateChangeReturn, error) {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	next := pb.next
	if !next.valid {
		if next.uri == "" {
			return gstreamer.StateChangeFailure, errors.ErrNoURI
		}
		return gstreamer.StateChangeFailure, errors.ErrNoNextGroup
	}

	old := pb.curr
	if old.valid && old.active {
		next.streamChangedPending = true
		pb.deactivateGroup(old)
		old.valid = false
	}

	pb.curr, pb.next = next, old

	ret, err := pb.activateGroup(next, target)
	if err != nil {
		next.streamChangedPending = false
		next.valid = false
		return gstreamer.StateChangeFailure, err
	}
	return ret, nil
}

// saveCurrentAsNext deactivates the current group and queues it again so
// the same media plays on restart.
func (pb *PlayBin) saveCurrentAsNext() {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	curr := pb.curr
	if curr.valid && curr.active {
		pb.deactivateGroup(curr)
	}
	pb.curr, pb.next = pb.next, curr
	pb.logger.Debugw("saved current group", "next", curr, "uri", util.RedactURI(curr.uri))
}

func (pb *PlayBin) activateGroup(g *sourceGroup, target gstreamer.State) (gstreamer.StateChangeReturn, error) {
	_, span := tracer.Start(context.Background(), "PlayBin.activateGroup", trace.WithAttributes(
		attribute.Int("slot", g.slot),
		attribute.String("target", target.String()),
	))
	defer span.End()

	ret, err := pb.doActivateGroup(g, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return ret, err
}

func (pb *PlayBin) doActivateGroup(g *sourceGroup, target gstreamer.State) (gstreamer.StateChangeReturn, error) {
	g.lock.Lock()
	defer g.lock.Unlock()

	if !g.valid {
		return gstreamer.StateChangeFailure, errors.ErrGroupNotValid
	}
	if g.active {
		return gstreamer.StateChangeSuccess, nil
	}

	dec := g.frontEnd
	if dec == nil {
		var err error
		if dec, err = pb.registry.Make(types.FactoryURIDecodeBin, fmt.Sprintf("uridecodebin%d", g.slot)); err != nil {
			return gstreamer.StateChangeFailure, err
		}
		g.frontEnd = dec
	}
	pb.configureFrontEnd(dec, g.uri)
	g.handles = pb.connectFrontEnd(g, dec, false)
	if err := pb.bin.Add(dec); err != nil {
		pb.disconnect(dec, g.handles)
		g.handles = nil
		return gstreamer.StateChangeFailure, errors.ErrGstPipelineError(err)
	}
	pb.callbacks.OnElementSetup(dec)

	if g.suburi != "" {
		if err := pb.addSubtitleBranch(g); err != nil {
			pb.postWarning(errors.ErrSubtitleBranch(err))
		}
	}

	if pb.shutdown.Load() {
		pb.logger.Debugw("shutting down, not activating group", "group", g)
		pb.removeFrontEnds(g)
		return gstreamer.StateChangeFailure, errors.ErrShutdown
	}

	g.active = true
	if err := dec.SetState(target); err != nil {
		pb.logger.Warnw("failed to activate group", err, "group", g, "uri", util.RedactURI(g.uri))
		g.active = false
		pb.removeFrontEnds(g)
		_ = dec.SetState(gstreamer.StateNull)
		g.frontEnd = nil
		return gstreamer.StateChangeFailure, errors.ErrStateChangeFailed(dec.GetName(), target.String())
	}
	if sub := g.subFrontEnd; sub != nil {
		if err := sub.SetState(target); err != nil {
			pb.postWarning(errors.ErrSubtitleBranch(err))
			pb.removeSubtitleBranch(g)
		}
	}

	pb.logger.Infow("activated group", "group", g, "uri", util.RedactURI(g.uri), "suburi", util.RedactURI(g.suburi))
	return gstreamer.StateChangeSuccess, nil
}

func (pb *PlayBin) addSubtitleBranch(g *sourceGroup) error {
	sub := g.subFrontEnd
	if sub == nil {
		var err error
		if sub, err = pb.registry.Make(types.FactoryURIDecodeBin, fmt.Sprintf("suburidecodebin%d", g.slot)); err != nil {
			return err
		}
		g.subFrontEnd = sub
	}
	pb.configureFrontEnd(sub, g.suburi)
	g.subHandles = pb.connectFrontEnd(g, sub, true)
	if err := pb.bin.Add(sub); err != nil {
		pb.disconnect(sub, g.subHandles)
		g.subHandles = nil
		g.subFrontEnd = nil
		return err
	}
	return nil
}

func (pb *PlayBin) configureFrontEnd(dec gstreamer.Element, uri string) {
	flags := pb.playsink.GetFlags()
	props := []struct {
		name  string
		value any
	}{
		{"uri", uri},
		{"connection-speed", pb.connectionSpeed},
		{"buffer-size", pb.bufferSize},
		{"buffer-duration", int64(pb.bufferDuration)},
		{"ring-buffer-max-size", pb.ringBufferMaxSize},
		{"subtitle-encoding", pb.subtitleEncoding},
		{"download", flags.Has(types.FlagDownload)},
		{"use-buffering", flags.Has(types.FlagBuffering)},
	}
	for _, p := range props {
		if !dec.HasProperty(p.name) {
			continue
		}
		if err := dec.SetProperty(p.name, p.value); err != nil {
			pb.logger.Debugw("could not set front end property", "property", p.name, "error", err)
		}
	}
}

// connectFrontEnd registers the decoding callbacks. Signals the back end
// cannot deliver are skipped.
func (pb *PlayBin) connectFrontEnd(g *sourceGroup, dec gstreamer.Element, subtitle bool) []gstreamer.SignalHandle {
	handlers := map[string]any{
		"pad-added": func(_ gstreamer.Element, pad gstreamer.Pad) {
			pb.onPadAdded(g, pad, subtitle)
		},
		"pad-removed": func(_ gstreamer.Element, pad gstreamer.Pad) {
			pb.onPadRemoved(g, pad)
		},
		"autoplug-select": func(_ gstreamer.Element, _ gstreamer.Pad, caps *gstreamer.Caps, factory *gstreamer.Factory) AutoplugSelect {
			return pb.autoplugSelect(g, caps, factory)
		},
		"autoplug-factories": func(_ gstreamer.Element, _ gstreamer.Pad, caps *gstreamer.Caps) []*gstreamer.Factory {
			return pb.autoplugFactories(caps)
		},
	}
	if !subtitle {
		handlers["no-more-pads"] = func(gstreamer.Element) {
			pb.onNoMorePads(g)
		}
		handlers["about-to-finish"] = func(gstreamer.Element) {
			pb.onAboutToFinish(g)
		}
		handlers["source-setup"] = func(_ gstreamer.Element, source gstreamer.Element) {
			pb.callbacks.OnSourceSetup(source)
		}
	}

	var handles []gstreamer.SignalHandle
	for _, signal := range []string{"pad-added", "pad-removed", "no-more-pads", "about-to-finish", "source-setup", "autoplug-select", "autoplug-factories"} {
		f, ok := handlers[signal]
		if !ok {
			continue
		}
		h, err := dec.Connect(signal, f)
		if err != nil {
			pb.logger.Debugw("signal not connected", "element", dec.GetName(), "signal", signal, "error", err)
			continue
		}
		handles = append(handles, h)
	}
	return handles
}

func (pb *PlayBin) disconnect(el gstreamer.Element, handles []gstreamer.SignalHandle) {
	for _, h := range handles {
		el.Disconnect(h)
	}
}

// removeFrontEnds takes the group's decoding front ends out of the playbin.
// The elements stay cached on the group for the next activation.
func (pb *PlayBin) removeFrontEnds(g *sourceGroup) {
	if dec := g.frontEnd; dec != nil {
		pb.disconnect(dec, g.handles)
		g.handles = nil
		if dec.GetParent() == gstreamer.Element(pb.bin) {
			_ = pb.bin.Remove(dec)
		}
		_ = dec.SetState(gstreamer.StateNull)
	}
	if sub := g.subFrontEnd; sub != nil {
		pb.disconnect(sub, g.subHandles)
		g.subHandles = nil
		if sub.GetParent() == gstreamer.Element(pb.bin) {
			_ = pb.bin.Remove(sub)
		}
		_ = sub.SetState(gstreamer.StateNull)
	}
}

// removeSubtitleBranch drops a failed subtitle front end and its pads while
// the main media keeps playing.
func (pb *PlayBin) removeSubtitleBranch(g *sourceGroup) {
	pb.lock.Lock()
	defer pb.lock.Unlock()
	g.lock.Lock()
	defer g.lock.Unlock()

	sub := g.subFrontEnd
	if sub == nil {
		return
	}
	pb.disconnect(sub, g.subHandles)
	g.subHandles = nil

	for pad, mediaType := range g.padTypes {
		if gstreamer.HasAncestor(pad.GetParentElement(), sub) {
			pb.removeInput(g, pad, mediaType)
		}
	}

	if sub.GetParent() == gstreamer.Element(pb.bin) {
		_ = pb.bin.Remove(sub)
	}
	_ = sub.SetState(gstreamer.StateNull)
	g.subFrontEnd = nil
	g.suburi = ""
	pb.logger.Infow("removed subtitle branch", "group", g)
}

// deactivateGroup unlinks the group from the playsink and removes its front
// ends. The group keeps its uri.
func (pb *PlayBin) deactivateGroup(g *sourceGroup) {
	g.lock.Lock()
	defer g.lock.Unlock()

	if !g.active {
		return
	}
	pb.logger.Debugw("deactivating group", "group", g)
	g.active = false
	g.playing = false

	for _, c := range g.combines {
		if c != nil {
			pb.freeCombine(g, c)
		}
	}
	for _, f := range g.flushing {
		f.src.Unlink(f.sink)
		pb.playsink.ReleasePad(f.sink)
	}
	g.flushing = nil
	g.padTypes = make(map[gstreamer.Pad]types.MediaType)

	for i, sink := range g.sinks {
		if sink == nil {
			continue
		}
		if !gstreamer.HasAncestor(sink, pb.playsink.Bin()) {
			_ = sink.SetState(gstreamer.StateNull)
		}
		if pb.sinks[i] == nil && pb.playsink.GetSink(types.MediaType(i)) == sink {
			pb.playsink.SetSink(types.MediaType(i), nil)
		}
		g.sinks[i] = nil
	}

	pb.removeFrontEnds(g)

	g.collection = nil
	g.selected = nil
	g.present = 0
	g.hasGroupID = false
	g.pendingAboutToFinish = false
	g.pendingBuffering = nil
}

// release drops the cached front ends.
func (g *sourceGroup) release() error {
	g.lock.Lock()
	defer g.lock.Unlock()

	var err error
	for _, el := range []gstreamer.Element{g.frontEnd, g.subFrontEnd} {
		if el == nil {
			continue
		}
		if e := el.SetState(gstreamer.StateNull); e != nil && err == nil {
			err = errors.ErrStateChangeFailed(el.GetName(), gstreamer.StateNull.String())
		}
	}
	g.frontEnd = nil
	g.subFrontEnd = nil
	return err
}

func (pb *PlayBin) onAboutToFinish(g *sourceGroup) {
	g.lock.Lock()
	g.pendingAboutToFinish = true
	g.lock.Unlock()

	pb.logger.Debugw("about to finish", "group", g)

	// the application may queue the next uri from the callback
	pb.callbacks.OnAboutToFinish()

	if _, err := pb.activateNext(pb.target()); err != nil {
		pb.logger.Debugw("no next group to play", "error", err)
	}
}

func (pb *PlayBin) onNoMorePads(g *sourceGroup) {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	if g != pb.curr || !g.active {
		return
	}
	pb.doAsyncDone()
}
