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
	"sort"

	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/types"
)

// AutoplugSelect is the answer to a decoder's autoplug-select signal.
type AutoplugSelect int

const (
	AutoplugTry AutoplugSelect = iota
	AutoplugExpose
	AutoplugSkip
)

func (a AutoplugSelect) String() string {
	switch a {
	case AutoplugTry:
		return "try"
	case AutoplugExpose:
		return "expose"
	default:
		return "skip"
	}
}

var (
	rawAudioCaps = gstreamer.NewSimpleCaps(types.MimeTypeRawAudio)
	rawVideoCaps = gstreamer.NewSimpleCaps(types.MimeTypeRawVideo)
)

// avElement pairs a decoder with a sink its output can feed.
type avElement struct {
	dec      *gstreamer.Factory
	sink     *gstreamer.Factory
	features int
}

func (a avElement) rank() int {
	return a.dec.Rank * a.sink.Rank
}

// elementLists is derived from the registry and rebuilt when its cookie changes.
type elementLists struct {
	elements  []*gstreamer.Factory
	aelements []avElement
	velements []avElement
}

func buildElementLists(r *gstreamer.Registry) *elementLists {
	l := &elementLists{
		elements: r.List(func(f *gstreamer.Factory) bool {
			return f.IsDecoder() || f.HasKlass("Demuxer") || f.HasKlass("Parser") || f.HasKlass("Depayloader") || f.IsSink()
		}),
	}
	l.aelements = pairElements(r, func(f *gstreamer.Factory) bool { return f.IsAudio() })
	l.velements = pairElements(r, func(f *gstreamer.Factory) bool { return f.IsVideo() })
	return l
}

func pairElements(r *gstreamer.Registry, media func(*gstreamer.Factory) bool) []avElement {
	decoders := r.List(func(f *gstreamer.Factory) bool {
		return f.IsDecoder() && media(f) && f.Rank > gstreamer.RankNone
	})
	sinks := r.List(func(f *gstreamer.Factory) bool {
		return f.IsSink() && media(f) && f.Rank > gstreamer.RankNone
	})

	var pairs []avElement
	for _, dec := range decoders {
		for _, sink := range sinks {
			if n := commonFeatures(dec.GetSrcCaps(), sink.GetSinkCaps()); n > 0 {
				pairs = append(pairs, avElement{dec: dec, sink: sink, features: n})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.rank() != b.rank() {
			return a.rank() > b.rank()
		}
		if a.features != b.features {
			return a.features > b.features
		}
		if a.sink.Name != b.sink.Name {
			return a.sink.Name < b.sink.Name
		}
		return a.dec.Name < b.dec.Name
	})
	return pairs
}

// commonFeatures counts the src structures the sink can accept.
func commonFeatures(src, sink *gstreamer.Caps) int {
	n := 0
	for i := 0; i < src.GetSize(); i++ {
		if gstreamer.NewCaps(src.GetStructureAt(i)).CanIntersect(sink) {
			n++
		}
	}
	return n
}

func (l *elementLists) pairs(dec *gstreamer.Factory) []avElement {
	list := l.velements
	if dec.IsAudio() {
		list = l.aelements
	}
	var pairs []avElement
	for _, ave := range list {
		if ave.dec.Name == dec.Name {
			pairs = append(pairs, ave)
		}
	}
	return pairs
}

// autoplugFactories lists the factories able to handle caps. Decoders are
// ordered by their best decoder and sink pairing.
func (pb *PlayBin) autoplugFactories(caps *gstreamer.Caps) []*gstreamer.Factory {
	if caps == nil {
		caps = gstreamer.NewAnyCaps()
	}
	lists := pb.elements.Get(pb.registry)
	flags := pb.GetFlags()

	var factories []*gstreamer.Factory
	for _, f := range lists.elements {
		if f.IsSink() || !f.CanSinkCaps(caps) {
			continue
		}
		if flags.Has(types.FlagForceSwDecoders) && f.HasKlass("Hardware") {
			continue
		}
		factories = append(factories, f)
	}

	best := func(f *gstreamer.Factory) int {
		if !f.IsDecoder() {
			return f.Rank
		}
		rank := 0
		for _, ave := range lists.pairs(f) {
			if r := ave.rank(); r > rank {
				rank = r
			}
		}
		if rank == 0 {
			return f.Rank
		}
		return rank
	}
	sort.SliceStable(factories, func(i, j int) bool {
		return best(factories[i]) > best(factories[j])
	})
	return factories
}

// autoplugSelect decides whether a factory may be plugged for caps. Decoders
// must be able to feed the fixed sink of their media type. A group without
// a fixed sink gets one created from the best pairing.
func (pb *PlayBin) autoplugSelect(g *sourceGroup, caps *gstreamer.Caps, factory *gstreamer.Factory) AutoplugSelect {
	if factory == nil {
		return AutoplugSkip
	}
	if factory.IsSink() {
		return pb.autoplugSink(g, factory)
	}

	isAudio := factory.IsDecoder() && factory.IsAudio()
	isVideo := factory.IsDecoder() && factory.IsVideo()
	if !isAudio && !isVideo {
		return AutoplugTry
	}
	mediaType := types.MediaVideo
	if isAudio {
		mediaType = types.MediaAudio
	}

	pb.lock.Lock()
	defer pb.lock.Unlock()
	g.lock.Lock()
	defer g.lock.Unlock()

	pairs := pb.elements.Get(pb.registry).pairs(factory)
	if len(pairs) == 0 {
		pairs = []avElement{{dec: factory}}
	}

	for _, ave := range pairs {
		created := false
		if pb.fixedSink(g, mediaType) == nil && ave.sink != nil {
			sink, err := gstreamer.TryMake(pb.registry, ave.sink.Name, "")
			if err != nil {
				pb.logger.Debugw("could not activate sink", "sink", ave.sink.Name, "error", err)
				continue
			}
			g.sinks[mediaType] = sink
			created = true
		}

		sink := pb.fixedSink(g, mediaType)
		if sink == nil || pb.canFeed(factory, sink, mediaType) {
			return AutoplugTry
		}
		pb.logger.Debugw("decoder not compatible with the fixed sink", "decoder", factory.Name, "sink", sink.GetName())
		if !created {
			return AutoplugSkip
		}
		_ = sink.SetState(gstreamer.StateNull)
		g.sinks[mediaType] = nil
	}
	return AutoplugTry
}

// autoplugSink probes a sink offered by the decoder and keeps it for the group.
func (pb *PlayBin) autoplugSink(g *sourceGroup, factory *gstreamer.Factory) AutoplugSelect {
	var mediaType types.MediaType
	switch {
	case factory.IsAudio():
		mediaType = types.MediaAudio
	case factory.IsVideo():
		mediaType = types.MediaVideo
	case factory.HasKlass("Subtitle"):
		mediaType = types.MediaText
	default:
		return AutoplugSkip
	}

	pb.lock.Lock()
	defer pb.lock.Unlock()
	g.lock.Lock()
	defer g.lock.Unlock()

	if pb.fixedSink(g, mediaType) != nil {
		return AutoplugSkip
	}
	sink, err := gstreamer.TryMake(pb.registry, factory.Name, "")
	if err != nil {
		return AutoplugSkip
	}
	g.sinks[mediaType] = sink
	return AutoplugExpose
}

// canFeed checks a decoder against a sink. A sink accepting raw media is
// assumed to sit behind converters, so any raw output is good enough.
func (pb *PlayBin) canFeed(dec *gstreamer.Factory, sink gstreamer.Element, mediaType types.MediaType) bool {
	pad := sink.GetStaticPad("sink")
	if pad == nil {
		return false
	}
	sinkCaps := pad.QueryCaps(nil)
	if sinkCaps == nil {
		return true
	}

	flags := pb.GetFlags()
	raw, native := rawVideoCaps, flags.Has(types.FlagNativeVideo)
	if mediaType == types.MediaAudio {
		raw, native = rawAudioCaps, flags.Has(types.FlagNativeAudio)
	}
	if !native && sinkCaps.CanIntersect(raw) {
		return dec.CanSrcAnyCaps(raw) || dec.CanSrcAnyCaps(sinkCaps)
	}
	return dec.CanSrcAnyCaps(sinkCaps)
}

// fixedSink returns the application sink for a type, else the group's own.
func (pb *PlayBin) fixedSink(g *sourceGroup, mediaType types.MediaType) gstreamer.Element {
	if sink := pb.sinks[mediaType]; sink != nil {
		return sink
	}
	return g.sinks[mediaType]
}
