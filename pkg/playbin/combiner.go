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
	"strings"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/types"
)

// sourceCombine feeds the streams of one media type into a playsink pad,
// either through a custom combiner or by linking one stream directly.
type sourceCombine struct {
	mediaType types.MediaType
	combiner  gstreamer.Element
	srcPad    gstreamer.Pad
	sinkPad   gstreamer.Pad
	sinkType  types.SinkType
	inputs    []*combineInput
	streams   []*gstreamer.Stream

	activePadHandle gstreamer.SignalHandle
}

// combineInput is one decoded stream entering a combine.
type combineInput struct {
	pad      gstreamer.Pad
	channel  gstreamer.Pad
	streamID string
}

// isActive reports whether the output is linked into the playsink.
func (c *sourceCombine) isActive() bool {
	return c.srcPad != nil && c.sinkPad != nil && c.srcPad.GetPeer() == c.sinkPad
}

func (c *sourceCombine) input(pad gstreamer.Pad) (int, *combineInput) {
	for i, in := range c.inputs {
		if in.pad == pad {
			return i, in
		}
	}
	return -1, nil
}

var mediaPrefixes = []struct {
	prefix    string
	mediaType types.MediaType
}{
	{"audio/", types.MediaAudio},
	{"video/", types.MediaVideo},
	{"image/", types.MediaVideo},
	{"text/", types.MediaText},
	{"application/x-subtitle", types.MediaText},
	{"application/x-ssa", types.MediaText},
	{"application/x-ass", types.MediaText},
	{"subpicture/", types.MediaText},
	{"subtitle/", types.MediaText},
	{"closedcaption/", types.MediaText},
}

// classify maps pad caps to a media type by their first structure name.
func classify(caps *gstreamer.Caps) (types.MediaType, bool) {
	names := caps.MediaTypes()
	if len(names) == 0 {
		return types.MediaLast, false
	}
	for _, p := range mediaPrefixes {
		if strings.HasPrefix(names[0], p.prefix) {
			return p.mediaType, true
		}
	}
	return types.MediaLast, false
}

func sinkTypeFor(mediaType types.MediaType, caps *gstreamer.Caps) types.SinkType {
	switch mediaType {
	case types.MediaAudio:
		if caps.IsRawAudio() {
			return types.SinkTypeAudioRaw
		}
		return types.SinkTypeAudio
	case types.MediaVideo:
		if caps.IsRawVideo() {
			return types.SinkTypeVideoRaw
		}
		return types.SinkTypeVideo
	default:
		return types.SinkTypeText
	}
}

func (pb *PlayBin) onPadAdded(g *sourceGroup, pad gstreamer.Pad, subtitle bool) {
	pb.lock.Lock()
	defer pb.lock.Unlock()
	g.lock.Lock()
	defer g.lock.Unlock()

	caps := gstreamer.PadCaps(pad)
	mediaType, ok := classify(caps)
	if !ok || (subtitle && mediaType != types.MediaText) {
		pb.logger.Debugw("ignoring pad", "pad", pad.GetName(), "caps", caps, "error", errors.ErrStreamTypeUnresolvable(pad.GetName()))
		return
	}
	if id, ok := pad.GetGroupID(); ok && !subtitle {
		g.groupID, g.hasGroupID = id, true
	}

	if pb.shutdown.Load() || !g.active {
		pb.flushPad(g, pad)
		return
	}

	c := g.combine(mediaType)
	in := &combineInput{pad: pad, streamID: pad.GetStreamID()}
	c.inputs = append(c.inputs, in)
	g.padTypes[pad] = mediaType
	g.present |= mediaType.StreamType()

	if err := pb.attachInput(g, c, in, caps); err != nil {
		pb.logger.Warnw("failed to link pad", err, "pad", pad.GetName(), "group", g)
		pb.postError(err)
		return
	}
	pb.logger.Debugw("pad added", "pad", pad.GetName(), "type", mediaType, "stream", in.streamID, "group", g)
	pb.callbacks.OnStreamChanged(mediaType)
}

func (pb *PlayBin) onPadRemoved(g *sourceGroup, pad gstreamer.Pad) {
	pb.lock.Lock()
	defer pb.lock.Unlock()
	g.lock.Lock()
	defer g.lock.Unlock()

	for i, f := range g.flushing {
		if f.src == pad {
			f.src.Unlink(f.sink)
			pb.playsink.ReleasePad(f.sink)
			g.flushing = append(g.flushing[:i], g.flushing[i+1:]...)
			return
		}
	}

	mediaType, ok := g.padTypes[pad]
	if !ok {
		return
	}
	pb.removeInput(g, pad, mediaType)
	pb.logger.Debugw("pad removed", "pad", pad.GetName(), "type", mediaType, "group", g)
	pb.callbacks.OnStreamChanged(mediaType)
}

// flushPad links a pad appearing during shutdown to a flushing playsink pad.
func (pb *PlayBin) flushPad(g *sourceGroup, pad gstreamer.Pad) {
	sink, err := pb.playsink.RequestPad(types.SinkTypeFlushing)
	if err != nil {
		pb.logger.Debugw("no flushing pad", "error", err)
		return
	}
	if err = gstreamer.LinkPads(pad.GetName(), pad, sink.GetName(), sink); err != nil {
		pb.playsink.ReleasePad(sink)
		pb.logger.Debugw("could not link flushing pad", "error", err)
		return
	}
	g.flushing = append(g.flushing, flushingPad{src: pad, sink: sink})
}

// combine returns the group's combine for a type, creating it on first use.
func (g *sourceGroup) combine(mediaType types.MediaType) *sourceCombine {
	if c := g.combines[mediaType]; c != nil {
		return c
	}
	c := &sourceCombine{
		mediaType: mediaType,
		streams:   streamsOf(g.collection, mediaType),
	}
	g.combines[mediaType] = c
	return c
}

func (pb *PlayBin) attachInput(g *sourceGroup, c *sourceCombine, in *combineInput, caps *gstreamer.Caps) error {
	if combiner := pb.combiners[c.mediaType]; combiner != nil {
		if c.combiner == nil {
			if err := pb.addCombiner(c, combiner); err != nil {
				return err
			}
		}
		in.channel = c.combiner.GetRequestPad("sink_%u")
		if err := gstreamer.LinkPads(in.pad.GetName(), in.pad, c.combiner.GetName(), in.channel); err != nil {
			return err
		}
		if err := pb.linkOutput(g, c, caps); err != nil {
			return err
		}
		pb.applySelection(g, c)
		return nil
	}

	// pass-through links only the selected stream, or the first one when
	// the stream is not in the collection
	known := false
	for _, s := range c.streams {
		if s.ID == in.streamID {
			known = true
			break
		}
	}
	switch {
	case known && !g.isSelected(in.streamID):
		return nil
	case !known && c.srcPad != nil:
		return nil
	}
	if c.srcPad != nil && c.isActive() {
		c.srcPad.Unlink(c.sinkPad)
	}
	c.srcPad = in.pad
	return pb.linkOutput(g, c, caps)
}

func (pb *PlayBin) addCombiner(c *sourceCombine, combiner gstreamer.Element) error {
	if err := pb.bin.Add(combiner); err != nil {
		return errors.ErrGstPipelineError(err)
	}
	if err := combiner.SyncStateWithParent(); err != nil {
		_ = pb.bin.Remove(combiner)
		return errors.ErrStateChangeFailed(combiner.GetName(), pb.target().String())
	}
	c.combiner = combiner
	c.srcPad = combiner.GetStaticPad("src")
	if combiner.HasProperty("active-pad") {
		h, err := combiner.Connect("notify::active-pad", func(gstreamer.Element) {
			pb.onActivePadChanged(c)
		})
		if err == nil {
			c.activePadHandle = h
		}
	}
	return nil
}

// linkOutput requests the playsink pad for the combine and links the output to it.
func (pb *PlayBin) linkOutput(g *sourceGroup, c *sourceCombine, caps *gstreamer.Caps) error {
	sinkType := sinkTypeFor(c.mediaType, caps)
	if c.sinkPad != nil && c.sinkType != sinkType {
		if c.isActive() {
			c.srcPad.Unlink(c.sinkPad)
		}
		pb.playsink.ReleasePad(c.sinkPad)
		c.sinkPad = nil
	}

	if c.sinkPad == nil {
		if pb.sinks[c.mediaType] == nil && g.sinks[c.mediaType] != nil {
			pb.playsink.SetSink(c.mediaType, g.sinks[c.mediaType])
		}
		sinkPad, err := pb.playsink.RequestPad(sinkType)
		if err != nil {
			return err
		}
		c.sinkPad, c.sinkType = sinkPad, sinkType
	}

	if c.isActive() {
		return nil
	}
	if peer := c.srcPad.GetPeer(); peer != nil {
		c.srcPad.Unlink(peer)
	}
	if err := gstreamer.LinkPads(c.srcPad.GetName(), c.srcPad, c.sinkPad.GetName(), c.sinkPad); err != nil {
		return errors.ErrChainLink(c.mediaType.String()+" combiner", err)
	}
	return nil
}

// removeInput drops a stream from its combine. An emptied combine is freed.
func (pb *PlayBin) removeInput(g *sourceGroup, pad gstreamer.Pad, mediaType types.MediaType) {
	delete(g.padTypes, pad)
	c := g.combines[mediaType]
	if c == nil {
		return
	}
	i, in := c.input(pad)
	if in == nil {
		return
	}
	c.inputs = append(c.inputs[:i], c.inputs[i+1:]...)

	if in.channel != nil {
		in.pad.Unlink(in.channel)
		c.combiner.ReleaseRequestPad(in.channel)
	}
	if len(c.inputs) == 0 {
		pb.freeCombine(g, c)
		return
	}
	if in.channel == nil && c.srcPad == pad {
		if c.isActive() {
			c.srcPad.Unlink(c.sinkPad)
		}
		c.srcPad = nil
		pb.applySelection(g, c)
	}
}

// freeCombine unlinks a combine from the playsink and releases its elements.
func (pb *PlayBin) freeCombine(g *sourceGroup, c *sourceCombine) {
	if c.isActive() {
		c.srcPad.Unlink(c.sinkPad)
	}
	if c.sinkPad != nil {
		pb.playsink.ReleasePad(c.sinkPad)
	}
	if combiner := c.combiner; combiner != nil {
		for _, in := range c.inputs {
			if in.channel != nil {
				in.pad.Unlink(in.channel)
				combiner.ReleaseRequestPad(in.channel)
			}
		}
		if c.activePadHandle != 0 {
			combiner.Disconnect(c.activePadHandle)
		}
		_ = combiner.SetState(gstreamer.StateNull)
		_ = pb.bin.Remove(combiner)
	}
	g.combines[c.mediaType] = nil
}

// reselect runs the selection on the group's collection. A changed
// selection relinks the combines and reconfigures the playsink.
func (pb *PlayBin) reselect(g *sourceGroup) bool {
	var custom [types.MediaLast]bool
	for i, combiner := range pb.combiners {
		custom[i] = combiner != nil
	}
	selected := Select(g.collection, pb.current, custom)
	if sameSelection(selected, g.selected) {
		return false
	}
	g.selected = selected
	pb.logger.Debugw("streams selected", "streams", selected, "group", g)

	relinked := false
	for _, c := range g.combines {
		if c != nil && c.sinkPad != nil {
			pb.applySelection(g, c)
			relinked = true
		}
	}
	if relinked {
		pb.playsink.RequestReconfigure()
	}
	return true
}

// applySelection points a combine at its selected stream.
func (pb *PlayBin) applySelection(g *sourceGroup, c *sourceCombine) {
	want := pb.wantedInput(g, c)
	if want == nil {
		return
	}

	if c.combiner != nil {
		if want.channel != nil && c.combiner.HasProperty("active-pad") {
			if err := c.combiner.SetProperty("active-pad", want.channel); err != nil {
				pb.logger.Debugw("could not set active pad", "error", err)
			}
		}
		return
	}

	if c.srcPad == want.pad && c.isActive() {
		return
	}
	if c.srcPad != nil && c.isActive() {
		c.srcPad.Unlink(c.sinkPad)
	}
	c.srcPad = want.pad
	if err := pb.linkOutput(g, c, gstreamer.PadCaps(want.pad)); err != nil {
		pb.logger.Warnw("failed to switch stream", err, "type", c.mediaType)
	}
}

// wantedInput returns the input of the selected stream, falling back to the
// requested index and then to the first input.
func (pb *PlayBin) wantedInput(g *sourceGroup, c *sourceCombine) *combineInput {
	if len(c.inputs) == 0 {
		return nil
	}
	if c.combiner == nil && len(c.streams) > 0 {
		for _, in := range c.inputs {
			if g.isSelected(in.streamID) {
				return in
			}
		}
	}

	idx := pb.current[c.mediaType]
	if len(c.streams) > 0 {
		if idx < 0 || idx >= len(c.streams) {
			idx = 0
		}
		for _, in := range c.inputs {
			if in.streamID == c.streams[idx].ID {
				return in
			}
		}
	}
	if idx < 0 || idx >= len(c.inputs) {
		idx = 0
	}
	return c.inputs[idx]
}

func (g *sourceGroup) isSelected(streamID string) bool {
	for _, id := range g.selected {
		if id == streamID {
			return true
		}
	}
	return false
}

// onCollection rebuilds every stream view from a new collection.
func (pb *PlayBin) onCollection(g *sourceGroup, collection *gstreamer.StreamCollection) {
	pb.lock.Lock()
	defer pb.lock.Unlock()
	g.lock.Lock()
	defer g.lock.Unlock()

	changed := !sameSelection(g.collection.IDs(), collection.IDs())
	g.collection = collection
	for _, c := range g.combines {
		if c != nil {
			c.streams = streamsOf(collection, c.mediaType)
		}
	}

	counts := make(map[types.MediaType]int)
	for _, t := range types.MediaTypes {
		streams := streamsOf(collection, t)
		counts[t] = len(streams)
		for i, s := range streams {
			if len(s.Tags) > 0 {
				pb.callbacks.OnTagsChanged(t, i)
			}
		}
	}
	pb.monitor.SetStreamCounts(counts)

	if changed || g.selected == nil {
		pb.reselect(g)
	}
}

func (pb *PlayBin) onActivePadChanged(c *sourceCombine) {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	if c.combiner == nil {
		return
	}
	v, err := c.combiner.GetProperty("active-pad")
	if err != nil {
		return
	}
	active, ok := v.(gstreamer.Pad)
	if !ok || active == nil {
		return
	}
	for i, in := range c.inputs {
		if in.channel != active {
			continue
		}
		idx := i
		for j, s := range c.streams {
			if s.ID == in.streamID {
				idx = j
				break
			}
		}
		if pb.current[c.mediaType] != idx {
			pb.current[c.mediaType] = idx
			pb.logger.Debugw("active stream changed", "type", c.mediaType, "index", idx)
			pb.callbacks.OnStreamChanged(c.mediaType)
		}
		return
	}
}
