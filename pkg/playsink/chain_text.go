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

package playsink

import (
	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/types"
)

const (
	textQueueMaxTime = uint64(1000000000)
)

type textChain struct {
	chain

	// video passes from videoSinkPad to srcPad, subtitles enter at textSinkPad
	videoSinkPad gstreamer.GhostPad
	textSinkPad  gstreamer.GhostPad

	queue    gstreamer.Element
	overlay  gstreamer.Element
	identity gstreamer.Element
	sink     gstreamer.Element
}

// buildTextChain renders subtitles either through a configured text sink,
// with video passed through an identity, or through an overlay compositing
// subtitles onto the video. Identity passthrough is the last resort.
func (ps *PlaySink) buildTextChain() (*textChain, error) {
	c, err := newChain(ps, "tbin", true)
	if err != nil {
		return nil, err
	}
	tc := &textChain{chain: *c}

	var videoSink, textSink, src gstreamer.Pad
	if ps.textSink != nil {
		textSink = ps.tryTextSink(tc)
	}

	if textSink == nil && !ps.flags.Has(types.FlagNativeVideo) {
		videoSink, textSink, src = ps.tryOverlay(tc)
	}

	if videoSink == nil {
		identity, err := ps.registry.Make(types.FactoryIdentity, "tidentity")
		if err != nil {
			tc.free()
			return nil, errors.Fatal(err)
		}
		_ = identity.SetProperty("silent", true)
		if err = tc.bin.Add(identity); err != nil {
			return nil, errors.ErrGstPipelineError(err)
		}
		tc.identity = identity
		videoSink, src = identity.GetStaticPad("sink"), identity.GetStaticPad("src")
	}

	if textSink == nil {
		// nothing can render text, drop it
		if fakesink, err := ps.registry.Make("fakesink", "textsink"); err == nil {
			_ = fakesink.SetProperty("sync", false)
			_ = fakesink.SetProperty("async", false)
			if err = tc.bin.Add(fakesink); err == nil {
				textSink = fakesink.GetStaticPad("sink")
			}
		}
	}

	if tc.videoSinkPad, err = tc.bin.NewGhostPad("sink", videoSink, gstreamer.PadDirectionSink); err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}
	tc.sinkPad = tc.videoSinkPad
	if textSink != nil {
		if tc.textSinkPad, err = tc.bin.NewGhostPad("text_sink", textSink, gstreamer.PadDirectionSink); err != nil {
			return nil, errors.ErrGstPipelineError(err)
		}
	}
	if err = tc.ghostSrc(src); err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}

	ps.monitor.IncChainBuild("text")
	return tc, nil
}

// tryTextSink adds the configured text sink to the chain when it is usable
// and returns its sink pad.
func (ps *PlaySink) tryTextSink(tc *textChain) gstreamer.Pad {
	sink := ps.textSink
	usable := false
	var pad gstreamer.Pad
	if err := gstreamer.TryElement(sink); err == nil {
		if el := gstreamer.FindProperty(sink, "async"); el != nil {
			_ = el.SetProperty("async", false)
			if pad = sink.GetStaticPad("sink"); pad != nil {
				if el = gstreamer.FindProperty(sink, "sync"); el != nil {
					_ = el.SetProperty("sync", true)
				}
				usable = true
			}
		}
	}
	if !usable {
		_ = sink.SetState(gstreamer.StateNull)
		ps.postWarning(errors.ErrSinkActivation(sink.GetName()))
		return nil
	}
	if err := tc.bin.Add(sink); err != nil {
		ps.postWarning(errors.ErrGstPipelineError(err))
		return nil
	}
	tc.sink = sink
	return pad
}

// tryOverlay builds vqueue ! subtitleoverlay with subtitles through a
// separate queue. It returns nil pads when the overlay is unavailable.
func (ps *PlaySink) tryOverlay(tc *textChain) (videoSink, textSink, src gstreamer.Pad) {
	overlay, err := ps.registry.Make(types.FactorySubtitleOverlay, "suboverlay")
	if err != nil {
		ps.postWarning(err)
		return nil, nil, nil
	}
	queue, err := gstreamer.BuildQueue(ps.registry, "vqueue", videoQueueMaxBuffers, 0)
	if err != nil {
		ps.postWarning(err)
		return nil, nil, nil
	}
	textQueue, err := gstreamer.BuildQueue(ps.registry, "subqueue", 0, textQueueMaxTime)
	if err != nil {
		ps.postWarning(err)
		return nil, nil, nil
	}

	_ = overlay.SetProperty("silent", false)
	if ps.fontDesc != "" {
		_ = overlay.SetProperty("font-desc", ps.fontDesc)
	}
	if ps.subtitleEncoding != "" {
		_ = overlay.SetProperty("subtitle-encoding", ps.subtitleEncoding)
	}

	if err = tc.bin.Add(queue, textQueue, overlay); err != nil {
		ps.postWarning(errors.ErrGstPipelineError(err))
		return nil, nil, nil
	}
	if err = gstreamer.LinkPads(queue.GetName(), queue.GetStaticPad("src"), overlay.GetName(), overlay.GetStaticPad("video_sink")); err == nil {
		err = gstreamer.LinkPads(textQueue.GetName(), textQueue.GetStaticPad("src"), overlay.GetName(), overlay.GetStaticPad("subtitle_sink"))
	}
	if err != nil {
		ps.postWarning(err)
		_ = tc.bin.Remove(queue, textQueue, overlay)
		return nil, nil, nil
	}

	tc.queue, tc.overlay = queue, overlay
	return queue.GetStaticPad("sink"), textQueue.GetStaticPad("sink"), overlay.GetStaticPad("src")
}
