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

type visChain struct {
	chain

	queue    gstreamer.Element
	conv     gstreamer.Element
	resample gstreamer.Element
	vis      gstreamer.Element
}

// buildVisChain creates queue ! audioconvert ! audioresample ! vis. The
// configured plugin is used when it accepts Ready, else goom.
func (ps *PlaySink) buildVisChain() (*visChain, error) {
	c, err := newChain(ps, "visbin", true)
	if err != nil {
		return nil, err
	}
	vc := &visChain{chain: *c}

	if vc.queue, err = ps.registry.Make(types.FactoryQueue, "visqueue"); err != nil {
		return nil, err
	}
	if vc.conv, err = ps.registry.Make(types.FactoryAudioConvert, "aconv"); err != nil {
		return nil, err
	}
	if vc.resample, err = ps.registry.Make(types.FactoryAudioResample, "aresample"); err != nil {
		return nil, err
	}

	if ps.visPlugin != nil {
		if err = gstreamer.TryElement(ps.visPlugin); err == nil {
			vc.vis = ps.visPlugin
		}
	}
	if vc.vis == nil {
		if vc.vis, err = ps.registry.Make(types.FactoryDefaultVis, "vis"); err != nil {
			return nil, err
		}
	}

	elements := []gstreamer.Element{vc.queue, vc.conv, vc.resample, vc.vis}
	if err = vc.bin.Add(elements...); err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}
	if err = gstreamer.LinkElements(elements...); err != nil {
		vc.free()
		return nil, errors.ErrChainLink("visualization", err)
	}
	if err = vc.ghostSink(vc.queue.GetStaticPad("sink")); err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}
	if err = vc.ghostSrc(vc.vis.GetStaticPad("src")); err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}

	ps.monitor.IncChainBuild("vis")
	return vc, nil
}
