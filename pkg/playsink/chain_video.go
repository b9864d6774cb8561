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
	videoQueueMaxBuffers = 3
)

type videoChain struct {
	chain

	async bool

	queue    gstreamer.Element
	conv     gstreamer.Element
	filter   gstreamer.Element
	sink     gstreamer.Element
	tsOffset gstreamer.Element
}

// buildVideoChain creates the video output: queue ! [videoconvert ! filter] ! sink.
func (ps *PlaySink) buildVideoChain(raw, async bool) (*videoChain, error) {
	c, err := newChain(ps, "vbin", raw)
	if err != nil {
		return nil, err
	}
	vc := &videoChain{chain: *c}

	vc.sink, err = ps.trySink(types.MediaVideo, ps.videoSink, "videosink", types.FactoryAutoVideoSink, types.FactoryDefaultVideoSink)
	if err != nil {
		return nil, err
	}

	// without a queue the sink links directly
	var elements []gstreamer.Element
	if vc.queue, err = gstreamer.BuildQueue(ps.registry, "vqueue", videoQueueMaxBuffers, 0); err != nil {
		ps.postWarning(err)
	} else {
		elements = append(elements, vc.queue)
	}

	if raw && !ps.flags.Has(types.FlagNativeVideo) {
		if vc.conv, err = ps.registry.Make(types.FactoryVideoConvert, "vconv"); err != nil {
			ps.postWarning(err)
		} else {
			elements = append(elements, vc.conv)
		}
		if ps.videoFilter != nil {
			vc.filter = ps.videoFilter
			elements = append(elements, vc.filter)
		}
	}
	elements = append(elements, vc.sink)

	if err = vc.bin.Add(elements...); err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}
	if err = gstreamer.LinkElements(elements...); err != nil {
		vc.free()
		return nil, errors.ErrChainLink("video sink", err)
	}
	if err = vc.ghostSink(elements[0].GetStaticPad("sink")); err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}

	vc.setAsync(async)
	vc.tsOffset = gstreamer.FindProperty(vc.sink, "ts-offset")

	ps.monitor.IncChainBuild("video")
	return vc, nil
}

func (vc *videoChain) setAsync(async bool) {
	if el := gstreamer.FindProperty(vc.sink, "async"); el != nil {
		_ = el.SetProperty("async", async)
		vc.async = async
	} else {
		vc.async = true
	}
}

// setupVideoChain tries to reuse the existing video chain. It returns
// false when the chain must be rebuilt.
func (ps *PlaySink) setupVideoChain(raw, async bool) bool {
	vc := ps.videoChain
	if vc.raw != raw {
		return false
	}
	if vc.activated {
		return true
	}
	if err := gstreamer.TryElement(vc.sink); err != nil {
		return false
	}
	vc.setAsync(async)
	vc.tsOffset = gstreamer.FindProperty(vc.sink, "ts-offset")
	return true
}

// buildDeinterlaceChain creates videoconvert ! deinterlace. It returns nil
// when deinterlacing is unavailable.
func (ps *PlaySink) buildDeinterlaceChain() *chain {
	c, err := newChain(ps, "dbin", true)
	if err != nil {
		ps.postWarning(err)
		return nil
	}

	deinterlace, err := ps.registry.Make(types.FactoryDeinterlace, "deinterlace")
	if err != nil {
		ps.postWarning(err)
		return nil
	}
	elements := []gstreamer.Element{deinterlace}
	if conv, err := ps.registry.Make(types.FactoryVideoConvert, "dconv"); err != nil {
		ps.postWarning(err)
	} else {
		elements = append([]gstreamer.Element{conv}, elements...)
	}

	if err = c.bin.Add(elements...); err != nil {
		ps.postWarning(errors.ErrGstPipelineError(err))
		return nil
	}
	if err = gstreamer.LinkElements(elements...); err != nil {
		c.free()
		ps.postWarning(errors.ErrChainLink("deinterlacer", err))
		return nil
	}
	if err = c.ghostSink(elements[0].GetStaticPad("sink")); err != nil {
		return nil
	}
	if err = c.ghostSrc(deinterlace.GetStaticPad("src")); err != nil {
		return nil
	}

	ps.monitor.IncChainBuild("deinterlace")
	return c
}
