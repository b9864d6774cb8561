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
	"strings"

	"github.com/livekit/playback/pkg/gstreamer"
)

const (
	rawAudio = "audio/x-raw"
	rawVideo = "video/x-raw"
	rawText  = "text/x-raw"
)

func filter(sink, src string) []PadTemplate {
	return []PadTemplate{
		{Name: "sink", Direction: gstreamer.PadDirectionSink, Caps: sink},
		{Name: "src", Direction: gstreamer.PadDirectionSource, Caps: src},
	}
}

func sinkPad(caps string) []PadTemplate {
	return []PadTemplate{{Name: "sink", Direction: gstreamer.PadDirectionSink, Caps: caps}}
}

func sinkProps(extra map[string]any) map[string]any {
	props := map[string]any{
		"async":       true,
		"sync":        true,
		"ts-offset":   int64(0),
		"last-sample": nil,
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

type entry struct {
	factory *gstreamer.Factory
	spec    *FactorySpec
}

func defaultEntries() []entry {
	return []entry{
		{&gstreamer.Factory{Name: "bin", Klass: "Generic/Bin"}, &FactorySpec{Klass: "Generic/Bin", Bin: true, Properties: map[string]any{}}},
		{&gstreamer.Factory{Name: "queue", Klass: "Generic"}, &FactorySpec{
			Klass:      "Generic",
			Properties: map[string]any{"max-size-buffers": uint(200), "max-size-bytes": uint(10485760), "max-size-time": uint64(1000000000), "silent": false},
			Pads:       filter("", ""),
		}},
		{&gstreamer.Factory{Name: "identity", Klass: "Generic"}, &FactorySpec{
			Klass:      "Generic",
			Properties: map[string]any{"silent": true, "sync": false},
			Pads:       filter("", ""),
		}},
		{&gstreamer.Factory{Name: "audioconvert", Klass: "Filter/Converter/Audio", SinkCaps: rawAudio, SrcCaps: rawAudio}, &FactorySpec{
			Klass: "Filter/Converter/Audio",
			Pads:  filter(rawAudio, rawAudio),
		}},
		{&gstreamer.Factory{Name: "audioresample", Klass: "Filter/Converter/Audio", SinkCaps: rawAudio, SrcCaps: rawAudio}, &FactorySpec{
			Klass: "Filter/Converter/Audio",
			Pads:  filter(rawAudio, rawAudio),
		}},
		{&gstreamer.Factory{Name: "videoconvert", Klass: "Filter/Converter/Video", SinkCaps: rawVideo, SrcCaps: rawVideo}, &FactorySpec{
			Klass:      "Filter/Converter/Video",
			Properties: map[string]any{"qos": true},
			Pads:       filter(rawVideo, rawVideo),
		}},
		{&gstreamer.Factory{Name: "volume", Klass: "Filter/Effect/Audio", SinkCaps: rawAudio, SrcCaps: rawAudio}, &FactorySpec{
			Klass:      "Filter/Effect/Audio",
			Properties: map[string]any{"volume": 1.0, "mute": false},
			Pads:       filter(rawAudio, rawAudio),
		}},
		{&gstreamer.Factory{Name: "deinterlace", Klass: "Filter/Effect/Video/Deinterlace", SinkCaps: rawVideo, SrcCaps: rawVideo}, &FactorySpec{
			Klass: "Filter/Effect/Video/Deinterlace",
			Pads:  filter(rawVideo, rawVideo),
		}},
		{&gstreamer.Factory{Name: "autoaudiosink", Rank: gstreamer.RankPrimary, Klass: "Sink/Audio", SinkCaps: rawAudio}, &FactorySpec{
			Klass:      "Sink/Audio",
			Properties: sinkProps(nil),
			Pads:       sinkPad(rawAudio),
		}},
		{&gstreamer.Factory{Name: "alsasink", Rank: gstreamer.RankSecondary, Klass: "Sink/Audio", SinkCaps: rawAudio}, &FactorySpec{
			Klass:      "Sink/Audio",
			Properties: sinkProps(nil),
			Pads:       sinkPad(rawAudio),
		}},
		{&gstreamer.Factory{Name: "pulsesink", Rank: gstreamer.RankPrimary + 10, Klass: "Sink/Audio", SinkCaps: rawAudio}, &FactorySpec{
			Klass:      "Sink/Audio",
			Properties: sinkProps(map[string]any{"volume": 1.0, "mute": false}),
			Pads:       sinkPad(rawAudio),
		}},
		{&gstreamer.Factory{Name: "autovideosink", Rank: gstreamer.RankPrimary, Klass: "Sink/Video", SinkCaps: rawVideo}, &FactorySpec{
			Klass:      "Sink/Video",
			Properties: sinkProps(map[string]any{"force-aspect-ratio": true}),
			Pads:       sinkPad(rawVideo),
		}},
		{&gstreamer.Factory{Name: "xvimagesink", Rank: gstreamer.RankSecondary, Klass: "Sink/Video", SinkCaps: rawVideo}, &FactorySpec{
			Klass:      "Sink/Video",
			Properties: sinkProps(map[string]any{"force-aspect-ratio": true}),
			Pads:       sinkPad(rawVideo),
		}},
		{&gstreamer.Factory{Name: "vaapisink", Rank: gstreamer.RankPrimary + 1, Klass: "Sink/Video", SinkCaps: "video/x-raw(memory:VASurface); video/x-raw"}, &FactorySpec{
			Klass:      "Sink/Video",
			Properties: sinkProps(nil),
			Pads:       sinkPad("video/x-raw(memory:VASurface); video/x-raw"),
		}},
		{&gstreamer.Factory{Name: "fakesink", Klass: "Sink"}, &FactorySpec{
			Klass:      "Sink",
			Properties: sinkProps(nil),
			Pads:       sinkPad(""),
		}},
		{&gstreamer.Factory{Name: "goom", Rank: gstreamer.RankNone, Klass: "Visualization", SinkCaps: rawAudio, SrcCaps: rawVideo}, &FactorySpec{
			Klass: "Visualization",
			Pads:  filter(rawAudio, rawVideo),
		}},
		{&gstreamer.Factory{Name: "subtitleoverlay", Klass: "Video/Overlay/Subtitle"}, &FactorySpec{
			Klass:      "Video/Overlay/Subtitle",
			Bin:        true,
			Properties: map[string]any{"silent": false, "subtitle-encoding": "", "font-desc": "", "subtitle-ts-offset": int64(0)},
			Pads: []PadTemplate{
				{Name: "video_sink", Direction: gstreamer.PadDirectionSink, Caps: rawVideo},
				{Name: "subtitle_sink", Direction: gstreamer.PadDirectionSink},
				{Name: "src", Direction: gstreamer.PadDirectionSource, Caps: rawVideo},
			},
		}},
		{&gstreamer.Factory{Name: "tee", Klass: "Generic"}, &FactorySpec{
			Klass:      "Generic",
			Properties: map[string]any{"allow-not-linked": false},
			Pads: []PadTemplate{
				{Name: "sink", Direction: gstreamer.PadDirectionSink},
				{Name: "src_%u", Direction: gstreamer.PadDirectionSource, Presence: PresenceRequest},
			},
		}},
		{&gstreamer.Factory{Name: "streamsynchronizer", Klass: "Generic"}, &FactorySpec{
			Klass: "Generic",
			Pads: []PadTemplate{
				{Name: "sink_%u", Direction: gstreamer.PadDirectionSink, Presence: PresenceRequest},
				{Name: "src_%u", Direction: gstreamer.PadDirectionSource, Presence: PresenceRequest},
			},
			OnRequestPad: func(el *Element, pad *Pad) {
				if pad.direction != gstreamer.PadDirectionSink {
					return
				}
				src := newPad(el, strings.Replace(pad.name, "sink", "src", 1), gstreamer.PadDirectionSource, "")
				el.addPadDirect(src)
			},
			OnReleasePad: func(el *Element, pad *Pad) {
				if src := el.Pad(strings.Replace(pad.name, "sink", "src", 1)); src != nil {
					if peer := src.GetPeer(); peer != nil {
						src.Unlink(peer)
					}
					el.removePadDirect(src)
				}
			},
		}},
		{&gstreamer.Factory{Name: "uridecodebin", Klass: "Generic/Bin/Decoder"}, &FactorySpec{
			Klass: "Generic/Bin/Decoder",
			Bin:   true,
			Properties: map[string]any{
				"uri":                  "",
				"connection-speed":     uint64(0),
				"buffer-size":          int(-1),
				"buffer-duration":      int64(-1),
				"ring-buffer-max-size": uint64(0),
				"subtitle-encoding":    "",
				"download":             false,
				"use-buffering":        false,
			},
		}},
		{&gstreamer.Factory{Name: "input-selector", Klass: "Generic"}, &FactorySpec{
			Klass:      "Generic",
			Properties: map[string]any{"active-pad": nil, "sync-streams": true},
			Pads: []PadTemplate{
				{Name: "sink_%u", Direction: gstreamer.PadDirectionSink, Presence: PresenceRequest},
				{Name: "src", Direction: gstreamer.PadDirectionSource},
			},
		}},
		{&gstreamer.Factory{Name: "audiomixer", Klass: "Generic/Audio"}, &FactorySpec{
			Klass: "Generic/Audio",
			Pads: []PadTemplate{
				{Name: "sink_%u", Direction: gstreamer.PadDirectionSink, Presence: PresenceRequest, Caps: rawAudio},
				{Name: "src", Direction: gstreamer.PadDirectionSource, Caps: rawAudio},
			},
		}},
		{&gstreamer.Factory{Name: "avdec_h264", Rank: gstreamer.RankPrimary, Klass: "Codec/Decoder/Video", SinkCaps: "video/x-h264", SrcCaps: rawVideo}, &FactorySpec{
			Klass: "Codec/Decoder/Video",
			Pads:  filter("video/x-h264", rawVideo),
		}},
		{&gstreamer.Factory{Name: "vaapih264dec", Rank: gstreamer.RankPrimary + 1, Klass: "Codec/Decoder/Video/Hardware", SinkCaps: "video/x-h264", SrcCaps: "video/x-raw(memory:VASurface)"}, &FactorySpec{
			Klass: "Codec/Decoder/Video/Hardware",
			Pads:  filter("video/x-h264", "video/x-raw(memory:VASurface)"),
		}},
		{&gstreamer.Factory{Name: "avdec_aac", Rank: gstreamer.RankPrimary, Klass: "Codec/Decoder/Audio", SinkCaps: "audio/mpeg", SrcCaps: rawAudio}, &FactorySpec{
			Klass: "Codec/Decoder/Audio",
			Pads:  filter("audio/mpeg", rawAudio),
		}},
	}
}

// NewDefaultMaker returns a maker knowing the elements used by playback.
func NewDefaultMaker() *Maker {
	m := NewMaker()
	for _, e := range defaultEntries() {
		m.Add(e.factory.Name, e.spec)
	}
	return m
}

// NewRegistry returns a registry backed by a default maker.
func NewRegistry() (*gstreamer.Registry, *Maker) {
	m := NewDefaultMaker()
	r := gstreamer.NewRegistry(m)
	factories := make([]*gstreamer.Factory, 0)
	for _, e := range defaultEntries() {
		factories = append(factories, e.factory)
	}
	if err := r.Register(factories...); err != nil {
		panic(err)
	}
	return r, m
}

// Remove drops a factory from both the maker and the registry.
func Remove(r *gstreamer.Registry, m *Maker, factory string) {
	m.Delete(factory)
	r.Unregister(factory)
}
