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
	"github.com/livekit/protocol/logger"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/types"
)

type audioChain struct {
	chain

	queue    gstreamer.Element
	conv     gstreamer.Element
	resample gstreamer.Element
	filter   gstreamer.Element
	sink     gstreamer.Element

	// volume and mute may be the sink itself or a soft volume element
	volume     gstreamer.Element
	mute       gstreamer.Element
	sinkVolume bool
	tsOffset   gstreamer.Element
}

// buildAudioChain creates the audio output: [queue] ! [audioconvert !
// audioresample ! volume ! filter] ! sink. The bracketed raw part is only
// present when the input is raw and native audio is not requested.
func (ps *PlaySink) buildAudioChain(raw, queue bool) (*audioChain, error) {
	c, err := newChain(ps, "abin", raw)
	if err != nil {
		return nil, err
	}
	ac := &audioChain{chain: *c}

	ac.sink, err = ps.trySink(types.MediaAudio, ps.audioSink, "audiosink", types.FactoryAutoAudioSink, types.FactoryDefaultAudioSink)
	if err != nil {
		return nil, err
	}

	var elements []gstreamer.Element
	if queue {
		if ac.queue, err = ps.registry.Make(types.FactoryQueue, "aqueue"); err != nil {
			ps.postWarning(err)
		} else {
			elements = append(elements, ac.queue)
		}
	}

	if el := gstreamer.FindProperty(ac.sink, "volume"); el != nil {
		ac.volume = el
		ac.sinkVolume = true
		ac.mute = gstreamer.FindProperty(ac.sink, "mute")
	}

	if raw && !ps.flags.Has(types.FlagNativeAudio) {
		if ac.conv, err = ps.registry.Make(types.FactoryAudioConvert, "aconv"); err != nil {
			ps.postWarning(err)
		} else {
			elements = append(elements, ac.conv)
		}
		if ac.resample, err = ps.registry.Make(types.FactoryAudioResample, "aresample"); err != nil {
			ps.postWarning(err)
		} else {
			elements = append(elements, ac.resample)
		}

		if ac.volume == nil && ps.flags.Has(types.FlagSoftVolume) {
			vol, err := ps.registry.Make(types.FactoryVolume, "volume")
			if err != nil {
				ps.postWarning(err)
			} else {
				ac.volume, ac.mute = vol, vol
				elements = append(elements, vol)
			}
		}

		if ps.audioFilter != nil {
			ac.filter = ps.audioFilter
			elements = append(elements, ac.filter)
		}
	}
	elements = append(elements, ac.sink)

	if err = ac.bin.Add(elements...); err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}
	if err = gstreamer.LinkElements(elements...); err != nil {
		ac.free()
		return nil, errors.ErrChainLink("audio sink", err)
	}
	if err = ac.ghostSink(elements[0].GetStaticPad("sink")); err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}

	if ac.volume == nil {
		logger.Warnw("no volume control found", nil, "sink", ac.sink.GetName())
	} else {
		ps.applyVolume(ac)
	}
	ac.tsOffset = gstreamer.FindProperty(ac.sink, "ts-offset")

	ps.monitor.IncChainBuild("audio")
	return ac, nil
}

// setupAudioChain tries to reuse the existing audio chain for raw. It
// returns false when the chain must be rebuilt.
func (ps *PlaySink) setupAudioChain(raw bool) bool {
	ac := ps.audioChain
	if ac.raw != raw {
		return false
	}
	if ac.activated {
		return true
	}
	if err := gstreamer.TryElement(ac.sink); err != nil {
		return false
	}

	switch el := gstreamer.FindProperty(ac.sink, "volume"); {
	case el != nil:
		ac.volume = el
		ac.sinkVolume = true
		ac.mute = gstreamer.FindProperty(ac.sink, "mute")
	case !raw:
		ac.volume, ac.mute = nil, nil
	case ac.volume == nil:
		return false
	}

	if ac.volume != nil {
		ps.applyVolume(ac)
	}
	ac.tsOffset = gstreamer.FindProperty(ac.sink, "ts-offset")
	return true
}

// applyVolume pushes cached volume and mute values into the chain.
func (ps *PlaySink) applyVolume(ac *audioChain) {
	volume := ps.volume
	if ps.mute && ac.mute == nil {
		volume = 0
	}
	if ps.volumeChanged || volume != ps.volume || !ac.sinkVolume {
		_ = ac.volume.SetProperty("volume", volume)
	}
	if ac.mute != nil && (ps.muteChanged || !ac.sinkVolume) {
		_ = ac.mute.SetProperty("mute", ps.mute)
	}
	ps.volumeChanged, ps.muteChanged = false, false
}
