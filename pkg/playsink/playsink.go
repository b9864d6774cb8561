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
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/stats"
	"github.com/livekit/playback/pkg/types"
)

const (
	MaxVolume = 10.0
)

var tracer = otel.Tracer("github.com/livekit/playback/pkg/playsink")

// PlaySink renders the streams fed into its request pads. Output chains are
// built lazily and cached across reconfigurations.
type PlaySink struct {
	lock     gstreamer.RecMutex
	registry *gstreamer.Registry
	bin      gstreamer.Bin
	bus      gstreamer.Bus
	monitor  *stats.Monitor
	logger   logger.Logger

	converter gstreamer.Converter

	flags       types.PlayFlags
	targetState gstreamer.State

	volume        float64
	volumeChanged bool
	mute          bool
	muteChanged   bool
	avOffset      time.Duration
	textOffset    time.Duration

	fontDesc         string
	subtitleEncoding string

	// configured elements
	audioSink   gstreamer.Element
	videoSink   gstreamer.Element
	textSink    gstreamer.Element
	visPlugin   gstreamer.Element
	audioFilter gstreamer.Element
	videoFilter gstreamer.Element

	audioChain       *audioChain
	videoChain       *videoChain
	visChain         *visChain
	textChain        *textChain
	deinterlaceChain *chain

	streamSync        gstreamer.Element
	streamSyncMissing bool
	syncPairs         map[types.MediaType]*syncPair

	audioTee    gstreamer.Element
	teeAudioSrc gstreamer.Pad
	teeVisSrc   gstreamer.Pad

	inputs        [types.MediaLast]*input
	pending       atomic.Uint32
	flushingPads  []gstreamer.GhostPad
	flushingCount int

	needAsyncStart bool
	asyncPending   bool
}

func New(registry *gstreamer.Registry, bus gstreamer.Bus, monitor *stats.Monitor) (*PlaySink, error) {
	el, err := registry.Make("bin", "playsink")
	if err != nil {
		return nil, err
	}
	bin, ok := el.(gstreamer.Bin)
	if !ok {
		return nil, errNotBin("playsink")
	}

	return &PlaySink{
		registry:       registry,
		bin:            bin,
		bus:            bus,
		monitor:        monitor,
		logger:         logger.GetLogger().WithValues("component", "playsink"),
		flags:          types.DefaultFlags,
		targetState:    gstreamer.StateNull,
		volume:         1.0,
		syncPairs:      make(map[types.MediaType]*syncPair),
		needAsyncStart: true,
	}, nil
}

func errNotBin(name string) error {
	return errors.ErrGstPipelineError(fmt.Errorf("%s is not a bin", name))
}

func (ps *PlaySink) Bin() gstreamer.Bin {
	return ps.bin
}

func (ps *PlaySink) SetBus(bus gstreamer.Bus) {
	ps.lock.Lock()
	ps.bus = bus
	ps.lock.Unlock()
}

func (ps *PlaySink) SetConverter(c gstreamer.Converter) {
	ps.lock.Lock()
	ps.converter = c
	ps.lock.Unlock()
}

// SetFlags stores the flags. They take effect on the next reconfigure.
func (ps *PlaySink) SetFlags(flags types.PlayFlags) {
	ps.lock.Lock()
	ps.flags = flags
	ps.lock.Unlock()
}

func (ps *PlaySink) GetFlags() types.PlayFlags {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	return ps.flags
}

func (ps *PlaySink) SetVolume(volume float64) {
	if volume < 0 {
		volume = 0
	} else if volume > MaxVolume {
		volume = MaxVolume
	}

	ps.lock.Lock()
	defer ps.lock.Unlock()

	ps.volume = volume
	c := ps.audioChain
	if c != nil && c.volume != nil {
		// a mute emulated through the volume wins until unmuted
		if !ps.mute || c.mute != nil {
			if err := c.volume.SetProperty("volume", volume); err != nil {
				ps.logger.Debugw("failed to set volume", "error", err)
			}
		}
	} else {
		ps.volumeChanged = true
	}
}

func (ps *PlaySink) GetVolume() float64 {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	c := ps.audioChain
	if c != nil && c.volume != nil && (!ps.mute || c.mute != nil) {
		if v, err := c.volume.GetProperty("volume"); err == nil {
			if f, ok := v.(float64); ok {
				ps.volume = f
			}
		}
	}
	return ps.volume
}

func (ps *PlaySink) SetMute(mute bool) {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	ps.mute = mute
	c := ps.audioChain
	switch {
	case c != nil && c.mute != nil:
		_ = c.mute.SetProperty("mute", mute)
	case c != nil && c.volume != nil:
		volume := ps.volume
		if mute {
			volume = 0
		}
		_ = c.volume.SetProperty("volume", volume)
	default:
		ps.muteChanged = true
	}
}

func (ps *PlaySink) GetMute() bool {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	if c := ps.audioChain; c != nil && c.mute != nil {
		if v, err := c.mute.GetProperty("mute"); err == nil {
			if m, ok := v.(bool); ok {
				ps.mute = m
			}
		}
	}
	return ps.mute
}

// SetAVOffset shifts audio against video. Positive values delay video.
func (ps *PlaySink) SetAVOffset(offset time.Duration) {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	ps.avOffset = offset
	ps.updateAVOffset()
}

func (ps *PlaySink) GetAVOffset() time.Duration {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	return ps.avOffset
}

func (ps *PlaySink) SetTextOffset(offset time.Duration) {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	ps.textOffset = offset
	ps.updateTextOffset()
}

func (ps *PlaySink) GetTextOffset() time.Duration {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	return ps.textOffset
}

func (ps *PlaySink) updateAVOffset() {
	offset := ps.avOffset.Nanoseconds()
	if c := ps.videoChain; c != nil && c.tsOffset != nil {
		_ = c.tsOffset.SetProperty("ts-offset", max(0, offset))
	}
	if c := ps.audioChain; c != nil && c.tsOffset != nil {
		_ = c.tsOffset.SetProperty("ts-offset", max(0, -offset))
	}
}

func (ps *PlaySink) updateTextOffset() {
	c := ps.textChain
	if c == nil {
		return
	}
	offset := ps.textOffset.Nanoseconds()
	switch {
	case c.overlay != nil && c.overlay.HasProperty("subtitle-ts-offset"):
		_ = c.overlay.SetProperty("subtitle-ts-offset", offset)
	case c.sink != nil:
		if el := gstreamer.FindProperty(c.sink, "ts-offset"); el != nil {
			_ = el.SetProperty("ts-offset", offset)
		}
	}
}

func (ps *PlaySink) SetFontDesc(desc string) {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	ps.fontDesc = desc
	if c := ps.textChain; c != nil && c.overlay != nil {
		_ = c.overlay.SetProperty("font-desc", desc)
	}
}

func (ps *PlaySink) GetFontDesc() string {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	if c := ps.textChain; c != nil && c.overlay != nil {
		if v, err := c.overlay.GetProperty("font-desc"); err == nil {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ps.fontDesc
}

func (ps *PlaySink) SetSubtitleEncoding(encoding string) {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	ps.subtitleEncoding = encoding
	if c := ps.textChain; c != nil && c.overlay != nil {
		_ = c.overlay.SetProperty("subtitle-encoding", encoding)
	}
}

func (ps *PlaySink) GetSubtitleEncoding() string {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	return ps.subtitleEncoding
}

// SetSink configures the sink used for a media type. It is picked up by
// the next chain build.
func (ps *PlaySink) SetSink(mediaType types.MediaType, sink gstreamer.Element) {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	switch mediaType {
	case types.MediaAudio:
		ps.audioSink = sink
	case types.MediaVideo:
		ps.videoSink = sink
	case types.MediaText:
		ps.textSink = sink
	}
}

// GetSink returns the sink of the chain when one exists, else the
// configured sink.
func (ps *PlaySink) GetSink(mediaType types.MediaType) gstreamer.Element {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	switch mediaType {
	case types.MediaAudio:
		if ps.audioChain != nil && ps.audioChain.sink != nil {
			return ps.audioChain.sink
		}
		return ps.audioSink
	case types.MediaVideo:
		if ps.videoChain != nil && ps.videoChain.sink != nil {
			return ps.videoChain.sink
		}
		return ps.videoSink
	case types.MediaText:
		if ps.textChain != nil && ps.textChain.sink != nil {
			return ps.textChain.sink
		}
		return ps.textSink
	default:
		return nil
	}
}

func (ps *PlaySink) SetVisPlugin(vis gstreamer.Element) {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	ps.visPlugin = vis
}

func (ps *PlaySink) GetVisPlugin() gstreamer.Element {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	if ps.visChain != nil && ps.visChain.vis != nil {
		return ps.visChain.vis
	}
	return ps.visPlugin
}

func (ps *PlaySink) SetFilter(mediaType types.MediaType, filter gstreamer.Element) {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	switch mediaType {
	case types.MediaAudio:
		ps.audioFilter = filter
	case types.MediaVideo:
		ps.videoFilter = filter
	}
}

func (ps *PlaySink) GetFilter(mediaType types.MediaType) gstreamer.Element {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	switch mediaType {
	case types.MediaAudio:
		return ps.audioFilter
	case types.MediaVideo:
		return ps.videoFilter
	default:
		return nil
	}
}

// GetLastSample returns the last buffer rendered by the video sink, or by
// the text sink when there is no active video chain.
func (ps *PlaySink) GetLastSample() (*gstreamer.Sample, error) {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	var sink gstreamer.Element
	switch {
	case ps.videoChain != nil && ps.videoChain.activated:
		sink = ps.videoChain.sink
	case ps.textChain != nil && ps.textChain.activated && ps.textChain.sink != nil:
		sink = ps.textChain.sink
	default:
		return nil, errors.ErrNoVideoChain
	}

	el := gstreamer.FindProperty(sink, "last-sample")
	if el == nil {
		return nil, errors.ErrNoSample
	}
	v, err := el.GetProperty("last-sample")
	if err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}
	sample, ok := v.(*gstreamer.Sample)
	if !ok || sample == nil {
		return nil, errors.ErrNoSample
	}
	return sample, nil
}

// ConvertSample returns the last sample in the requested format. A nil
// format returns the sample unchanged.
func (ps *PlaySink) ConvertSample(to *gstreamer.Caps) (*gstreamer.Sample, error) {
	sample, err := ps.GetLastSample()
	if err != nil {
		return nil, err
	}
	if to == nil || to.IsAny() || (sample.Caps != nil && sample.Caps.IsSubsetOf(to)) {
		return sample, nil
	}

	ps.lock.Lock()
	converter := ps.converter
	ps.lock.Unlock()
	if converter == nil {
		return nil, errors.ErrNotSupported("sample conversion")
	}
	return converter.ConvertSample(sample, to)
}

// ChangeState performs one state transition of the playsink bin.
func (ps *PlaySink) ChangeState(from, to gstreamer.State) (gstreamer.StateChangeReturn, error) {
	_, span := tracer.Start(context.Background(), "PlaySink.ChangeState")
	defer span.End()

	ps.lock.Lock()
	defer ps.lock.Unlock()

	ret := gstreamer.StateChangeSuccess
	switch {
	case from == gstreamer.StateReady && to == gstreamer.StatePaused:
		ps.doAsyncStart()
		if ps.asyncPending {
			ret = gstreamer.StateChangeAsync
		}
	case from == gstreamer.StatePlaying && to == gstreamer.StatePaused:
		ps.needAsyncStart = true
	}

	ps.targetState = to
	if err := ps.bin.SetState(to); err != nil {
		return gstreamer.StateChangeFailure, errors.ErrStateChangeFailed(ps.bin.GetName(), to.String())
	}

	switch {
	case from == gstreamer.StatePaused && to == gstreamer.StateReady,
		from == gstreamer.StateReady && to == gstreamer.StateNull:
		ps.teardown(to == gstreamer.StateNull)
		ps.doAsyncDone()
	}
	return ret, nil
}

func (ps *PlaySink) teardown(free bool) {
	if c := ps.audioChain; c != nil && c.sinkVolume && c.volume != nil {
		// keep the sink volume so a rebuilt chain restores it
		if v, err := c.volume.GetProperty("volume"); err == nil {
			if f, ok := v.(float64); ok && !ps.mute {
				ps.volume = f
			}
		}
		c.volume, c.mute = nil, nil
		ps.volumeChanged, ps.muteChanged = true, true
	}

	for _, c := range ps.chains() {
		ps.detach(c)
		_ = ps.addChain(c, false)
	}
	ps.releaseTeePads()
	for _, t := range types.MediaTypes {
		ps.releaseSyncPair(t)
	}
	for _, in := range ps.inputs {
		if in != nil {
			_ = in.pad.SetTarget(ps.ghostTarget(in))
		}
	}

	if free {
		for _, c := range ps.chains() {
			c.free()
		}
		ps.audioChain, ps.videoChain, ps.visChain, ps.textChain, ps.deinterlaceChain = nil, nil, nil, nil, nil
	}
}

// chains returns every built chain.
func (ps *PlaySink) chains() []*chain {
	var chains []*chain
	if ps.videoChain != nil {
		chains = append(chains, &ps.videoChain.chain)
	}
	if ps.deinterlaceChain != nil {
		chains = append(chains, ps.deinterlaceChain)
	}
	if ps.textChain != nil {
		chains = append(chains, &ps.textChain.chain)
	}
	if ps.visChain != nil {
		chains = append(chains, &ps.visChain.chain)
	}
	if ps.audioChain != nil {
		chains = append(chains, &ps.audioChain.chain)
	}
	return chains
}

// Valid reports whether every chain satisfies activated => added => built.
func (ps *PlaySink) Valid() bool {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	for _, c := range ps.chains() {
		if !c.valid() {
			return false
		}
	}
	return true
}

func (ps *PlaySink) doAsyncStart() {
	if !ps.needAsyncStart {
		return
	}
	ps.asyncPending = true
	ps.post(gstreamer.NewAsyncStartMessage(ps.bin))
}

func (ps *PlaySink) doAsyncDone() {
	if ps.asyncPending {
		ps.post(gstreamer.NewAsyncDoneMessage(ps.bin))
		ps.asyncPending = false
	}
	ps.needAsyncStart = false
}

func (ps *PlaySink) post(msg *gstreamer.Message) {
	if ps.bus != nil {
		ps.bus.Post(msg)
	}
}

func (ps *PlaySink) postWarning(err error) {
	ps.logger.Warnw("playsink warning", err)
	ps.post(gstreamer.NewWarningMessage(ps.bin, err, ""))
}

func (ps *PlaySink) postError(err error) {
	ps.logger.Errorw("playsink error", err)
	ps.post(gstreamer.NewErrorMessage(ps.bin, err, ""))
}
