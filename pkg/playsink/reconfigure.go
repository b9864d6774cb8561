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
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/types"
)

// outputs is the set of chains a configuration requires.
type outputs struct {
	audio       bool
	video       bool
	text        bool
	vis         bool
	deinterlace bool
}

// Reconfigure rebuilds the outputs to match the flags and the requested
// pads. Calling it again without changes is a no-op.
func (ps *PlaySink) Reconfigure() error {
	_, span := tracer.Start(context.Background(), "PlaySink.Reconfigure")
	defer span.End()

	start := time.Now()
	ps.lock.Lock()
	defer ps.lock.Unlock()

	out, err := ps.reconfigure()
	span.SetAttributes(
		attribute.Bool("audio", out.audio),
		attribute.Bool("video", out.video),
		attribute.Bool("text", out.text),
		attribute.Bool("vis", out.vis),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ps.monitor.ObserveReconfigure("failure", time.Since(start))
		ps.postError(err)
		return err
	}

	ps.monitor.ObserveReconfigure("success", time.Since(start))
	return nil
}

// Outputs reports which chains are currently linked in.
func (ps *PlaySink) Outputs() (audio, video, text, vis bool) {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	return ps.audioChain != nil && ps.audioChain.activated,
		ps.videoChain != nil && ps.videoChain.activated,
		ps.textChain != nil && ps.textChain.activated,
		ps.visChain != nil && ps.visChain.activated
}

func (ps *PlaySink) reconfigure() (outputs, error) {
	out, err := ps.requiredOutputs()
	if err != nil {
		return out, err
	}
	ps.logger.Debugw("reconfiguring outputs",
		"flags", ps.flags,
		"audio", out.audio,
		"video", out.video,
		"text", out.text,
		"vis", out.vis,
		"deinterlace", out.deinterlace,
	)

	if out.vis && ps.visChain == nil {
		vc, err := ps.buildVisChain()
		if err != nil {
			// visualization only: keep playing audio
			ps.monitor.IncDemotedError("vis")
			ps.postWarning(errors.ErrVisUnavailable(err))
			out = withoutVis(out)
		} else {
			ps.visChain = vc
		}
	}

	// video first, vis and text attach to the video chain
	if err = ps.reconfigureVideo(out); err != nil {
		return out, err
	}
	if err = ps.reconfigureVis(out); err != nil {
		return out, err
	}
	if err = ps.reconfigureText(out); err != nil {
		return out, err
	}
	if err = ps.reconfigureAudio(out); err != nil {
		return out, err
	}
	if out.video {
		if err = ps.wireVideo(out); err != nil {
			return out, err
		}
	}

	ps.updateAVOffset()
	ps.updateTextOffset()
	ps.doAsyncDone()
	return out, nil
}

func (ps *PlaySink) requiredOutputs() (outputs, error) {
	var out outputs
	flags := ps.flags
	audio := ps.inputs[types.MediaAudio]
	video := ps.inputs[types.MediaVideo]
	text := ps.inputs[types.MediaText]

	// text counts as requested when a text pad exists or text is the only output asked for
	textRequested := flags.Has(types.FlagText) &&
		(text != nil || (!flags.Has(types.FlagAudio) && !flags.Has(types.FlagVideo)))

	switch {
	case textRequested && video == nil && audio != nil:
		ps.monitor.IncDemotedError("text-without-video")
		ps.postWarning(errors.ErrConfigInconsistent("Can't display text without video, disabling text."))
	case textRequested && video == nil && text != nil:
		return out, errors.ErrConfigInconsistent("Can't play a text file without video or audio.")
	case textRequested && video != nil && text != nil:
		out.text = true
		out.video = true
	}

	if !out.video && flags.Has(types.FlagVideo) && video != nil {
		out.video = true
	}

	if audio != nil {
		if flags.Has(types.FlagAudio) {
			out.audio = true
		}
		if audio.raw && flags.Has(types.FlagVis) && !out.video {
			out.video = true
			out.vis = true
		}
	}

	out.deinterlace = out.video && !out.vis && video != nil && video.raw &&
		flags.Has(types.FlagDeinterlace) && !flags.Has(types.FlagNativeVideo)
	return out, nil
}

// withoutVis drops visualization. Vis is only chosen when nothing else
// asked for video, so the video chain goes with it.
func withoutVis(out outputs) outputs {
	out.vis = false
	out.video = false
	out.deinterlace = false
	return out
}

func (ps *PlaySink) reconfigureVideo(out outputs) error {
	video := ps.inputs[types.MediaVideo]
	if !out.video {
		if vc := ps.videoChain; vc != nil {
			ps.detach(&vc.chain)
			_ = ps.addChain(&vc.chain, false)
		}
		if dc := ps.deinterlaceChain; dc != nil {
			ps.detach(dc)
			_ = ps.addChain(dc, false)
		}
		ps.releaseSyncPair(types.MediaVideo)
		if video != nil {
			_ = video.pad.SetTarget(nil)
		}
		return nil
	}

	raw := out.vis || (video != nil && video.raw)
	async := !out.vis
	if ps.videoChain != nil && !ps.setupVideoChain(raw, async) {
		ps.logger.Debugw("video chain not reusable", "raw", raw, "async", async)
		ps.detach(&ps.videoChain.chain)
		_ = ps.addChain(&ps.videoChain.chain, false)
		ps.videoChain.free()
		ps.videoChain = nil
	}
	if ps.videoChain == nil {
		vc, err := ps.buildVideoChain(raw, async)
		if err != nil {
			return err
		}
		ps.videoChain = vc
	}
	if err := ps.addChain(&ps.videoChain.chain, true); err != nil {
		return errors.ErrGstPipelineError(err)
	}
	ps.activateChain(&ps.videoChain.chain, true)

	if out.deinterlace {
		if ps.deinterlaceChain == nil {
			ps.deinterlaceChain = ps.buildDeinterlaceChain()
		}
		if dc := ps.deinterlaceChain; dc != nil {
			if err := ps.addChain(dc, true); err != nil {
				return errors.ErrGstPipelineError(err)
			}
			ps.activateChain(dc, true)
		}
	} else if dc := ps.deinterlaceChain; dc != nil {
		ps.detach(dc)
		_ = ps.addChain(dc, false)
	}

	if out.vis && video != nil {
		_ = video.pad.SetTarget(nil)
	}
	return nil
}

func (ps *PlaySink) reconfigureVis(out outputs) error {
	if !out.vis {
		ps.releaseTeePad(&ps.teeVisSrc)
		if vc := ps.visChain; vc != nil {
			ps.detach(&vc.chain)
			_ = ps.addChain(&vc.chain, false)
		}
		return nil
	}

	if err := ps.addChain(&ps.visChain.chain, true); err != nil {
		return errors.ErrGstPipelineError(err)
	}
	ps.activateChain(&ps.visChain.chain, true)

	src, err := ps.teePad(ps.teeVisSrc)
	if err != nil {
		return err
	}
	ps.teeVisSrc = src
	return relink("audiotee", src, ps.visChain.sinkPad)
}

func (ps *PlaySink) reconfigureText(out outputs) error {
	text := ps.inputs[types.MediaText]
	// with a text pad present, video keeps flowing through a silenced chain
	keep := !out.text && out.video && !out.vis && text != nil && ps.textChain != nil

	if !out.text && !keep {
		if tc := ps.textChain; tc != nil {
			ps.detach(&tc.chain)
			_ = ps.addChain(&tc.chain, false)
		}
		ps.releaseSyncPair(types.MediaText)
		if text != nil {
			_ = text.pad.SetTarget(nil)
		}
		return nil
	}

	if ps.textChain == nil {
		tc, err := ps.buildTextChain()
		if err != nil {
			return err
		}
		ps.textChain = tc
	}
	tc := ps.textChain
	if err := ps.addChain(&tc.chain, true); err != nil {
		return errors.ErrGstPipelineError(err)
	}
	ps.activateChain(&tc.chain, true)
	if tc.overlay != nil {
		_ = tc.overlay.SetProperty("silent", !out.text)
	}

	if tc.textSinkPad == nil {
		_ = text.pad.SetTarget(nil)
		return nil
	}
	return ps.feed(types.MediaText, ghostInlet(text.pad), tc.textSinkPad)
}

func (ps *PlaySink) reconfigureAudio(out outputs) error {
	if !out.audio {
		ps.releaseTeePad(&ps.teeAudioSrc)
		if ac := ps.audioChain; ac != nil {
			if ac.sinkVolume && ac.volume != nil {
				if v, err := ac.volume.GetProperty("volume"); err == nil {
					if f, ok := v.(float64); ok && !ps.mute {
						ps.volume = f
					}
				}
				ac.volume, ac.mute = nil, nil
				ps.volumeChanged, ps.muteChanged = true, true
			}
			ps.detach(&ac.chain)
			_ = ps.addChain(&ac.chain, false)
		}
		ps.releaseSyncPair(types.MediaAudio)
		return nil
	}

	raw := ps.inputs[types.MediaAudio].raw
	queue := out.vis && ps.videoChain != nil && ps.videoChain.async
	if ps.audioChain != nil && !ps.setupAudioChain(raw) {
		ps.logger.Debugw("audio chain not reusable", "raw", raw)
		ps.releaseTeePad(&ps.teeAudioSrc)
		ps.detach(&ps.audioChain.chain)
		_ = ps.addChain(&ps.audioChain.chain, false)
		ps.audioChain.free()
		ps.audioChain = nil
	}
	if ps.audioChain == nil {
		ac, err := ps.buildAudioChain(raw, queue)
		if err != nil {
			return err
		}
		ps.audioChain = ac
	}
	if err := ps.addChain(&ps.audioChain.chain, true); err != nil {
		return errors.ErrGstPipelineError(err)
	}
	ps.activateChain(&ps.audioChain.chain, true)

	src, err := ps.teePad(ps.teeAudioSrc)
	if err != nil {
		return err
	}
	ps.teeAudioSrc = src
	return ps.feed(types.MediaAudio, srcInlet("audiotee", src), ps.audioChain.sinkPad)
}

// wireVideo links the video path: input or vis, synchronizer, optional
// deinterlacer, optional text chain, video chain.
func (ps *PlaySink) wireVideo(out outputs) error {
	var down gstreamer.Pad = ps.videoChain.sinkPad
	if tc := ps.textChain; tc != nil && tc.added {
		if err := relink("tbin", tc.srcPad, down); err != nil {
			return errors.ErrChainLink("text chain", err)
		}
		down = tc.videoSinkPad
	}
	if dc := ps.deinterlaceChain; dc != nil && dc.added {
		if err := relink("dbin", dc.srcPad, down); err != nil {
			return errors.ErrChainLink("deinterlacer", err)
		}
		down = dc.sinkPad
	}

	var up inlet
	if out.vis {
		up = srcInlet("visbin", ps.visChain.srcPad)
	} else {
		up = ghostInlet(ps.inputs[types.MediaVideo].pad)
	}
	return ps.feed(types.MediaVideo, up, down)
}

// detach unlinks every external pad of a chain and resets input pads
// targeting it.
func (ps *PlaySink) detach(c *chain) {
	pads := []gstreamer.Pad{c.sinkPad, c.srcPad}
	if ps.textChain != nil && c == &ps.textChain.chain && ps.textChain.textSinkPad != nil {
		pads = append(pads, ps.textChain.textSinkPad)
	}
	for _, pad := range pads {
		if pad == nil {
			continue
		}
		unlinkPad(pad)
		for _, in := range ps.inputs {
			if in != nil && samePad(in.pad.GetTarget(), pad) {
				_ = in.pad.SetTarget(ps.ghostTarget(in))
			}
		}
	}
}

func (ps *PlaySink) releaseTeePad(pad *gstreamer.Pad) {
	if *pad == nil {
		return
	}
	unlinkPad(*pad)
	if ps.audioTee != nil {
		ps.audioTee.ReleaseRequestPad(*pad)
	}
	*pad = nil
}
