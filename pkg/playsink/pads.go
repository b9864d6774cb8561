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
	"fmt"
	"strings"

	"github.com/livekit/protocol/logger"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/types"
)

// input is a sink pad requested by the application. Data on it stays
// blocked until every existing input is blocked and the outputs have been
// reconfigured.
type input struct {
	mediaType types.MediaType
	sinkType  types.SinkType
	pad       gstreamer.GhostPad
	raw       bool

	probe      gstreamer.ProbeID
	blocked    bool
	capsHandle gstreamer.SignalHandle
}

// pendingBit is one bit per pad kind.
func pendingBit(t types.SinkType) uint32 {
	return 1 << uint(t)
}

func (ps *PlaySink) setPending(t types.SinkType) {
	for {
		old := ps.pending.Load()
		if ps.pending.CompareAndSwap(old, old|pendingBit(t)) {
			return
		}
	}
}

func (ps *PlaySink) clearPending(t types.SinkType) {
	for {
		old := ps.pending.Load()
		if ps.pending.CompareAndSwap(old, old&^pendingBit(t)) {
			return
		}
	}
}

// PendingBlocks returns the media types whose block has not completed yet.
func (ps *PlaySink) PendingBlocks() []types.MediaType {
	bits := ps.pending.Load()
	var pending []types.MediaType
	for t := types.SinkTypeAudio; t < types.SinkTypeLast; t++ {
		if bits&pendingBit(t) == 0 {
			continue
		}
		if m, ok := t.MediaType(); ok {
			pending = append(pending, m)
		}
	}
	return pending
}

// RequestPad creates the sink pad for a stream type. Audio, video and text
// pads are returned blocked.
func (ps *PlaySink) RequestPad(sinkType types.SinkType) (gstreamer.Pad, error) {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	var mediaType types.MediaType
	var name string
	var target gstreamer.Pad
	raw := false

	switch sinkType {
	case types.SinkTypeAudio, types.SinkTypeAudioRaw:
		mediaType = types.MediaAudio
		if in := ps.inputs[mediaType]; in != nil {
			return in.pad, nil
		}
		tee, err := ps.registry.Make(types.FactoryTee, "audiotee")
		if err != nil {
			return nil, err
		}
		if err = ps.bin.Add(tee); err != nil {
			return nil, errors.ErrGstPipelineError(err)
		}
		_ = tee.SetState(gstreamer.StatePaused)
		ps.audioTee = tee
		target = tee.GetStaticPad("sink")
		raw = sinkType == types.SinkTypeAudioRaw
		name = "audio_sink"
		if raw {
			name = "audio_raw_sink"
		}

	case types.SinkTypeVideo, types.SinkTypeVideoRaw:
		mediaType = types.MediaVideo
		if in := ps.inputs[mediaType]; in != nil {
			return in.pad, nil
		}
		raw = sinkType == types.SinkTypeVideoRaw
		name = "video_sink"
		if raw {
			name = "video_raw_sink"
		}

	case types.SinkTypeText:
		mediaType = types.MediaText
		if in := ps.inputs[mediaType]; in != nil {
			return in.pad, nil
		}
		name = "text_sink"

	case types.SinkTypeFlushing:
		name = fmt.Sprintf("flushing_%d", ps.flushingCount)
		ps.flushingCount++
		pad, err := ps.bin.NewGhostPad(name, nil, gstreamer.PadDirectionSink)
		if err != nil {
			return nil, errors.ErrGstPipelineError(err)
		}
		ps.flushingPads = append(ps.flushingPads, pad)
		return pad, nil

	default:
		return nil, errors.ErrNotSupported(fmt.Sprintf("%s sink pad", sinkType))
	}

	pad, err := ps.bin.NewGhostPad(name, target, gstreamer.PadDirectionSink)
	if err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}

	in := &input{
		mediaType: mediaType,
		sinkType:  sinkType,
		pad:       pad,
		raw:       raw,
	}
	ps.inputs[mediaType] = in
	if mediaType != types.MediaText {
		in.capsHandle = pad.NotifyCaps(ps.onCapsChanged)
	}
	ps.block(in)

	ps.logger.Debugw("requested pad", "pad", name, "raw", raw)
	return pad, nil
}

// ReleasePad unblocks and removes a requested pad, then reconfigures the
// outputs unless other pads are still waiting for their block.
func (ps *PlaySink) ReleasePad(pad gstreamer.Pad) {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	for i, flushing := range ps.flushingPads {
		if samePad(flushing, pad) {
			_ = ps.bin.RemovePad(flushing)
			ps.flushingPads = append(ps.flushingPads[:i], ps.flushingPads[i+1:]...)
			return
		}
	}

	var in *input
	for _, candidate := range ps.inputs {
		if candidate != nil && samePad(candidate.pad, pad) {
			in = candidate
			break
		}
	}
	if in == nil {
		ps.logger.Debugw("release of unknown pad", "pad", pad.GetName())
		return
	}

	ps.unblock(in)
	if in.capsHandle != 0 {
		in.pad.Disconnect(in.capsHandle)
	}
	_ = in.pad.SetTarget(nil)
	if err := ps.bin.RemovePad(in.pad); err != nil {
		ps.logger.Debugw("failed to remove pad", "pad", in.pad.GetName(), "error", err)
	}
	ps.inputs[in.mediaType] = nil

	if in.mediaType == types.MediaAudio && ps.audioTee != nil {
		ps.releaseTeePads()
		_ = ps.audioTee.SetState(gstreamer.StateNull)
		_ = ps.bin.Remove(ps.audioTee)
		ps.audioTee = nil
	}

	if ps.pending.Load() == 0 {
		if err := ps.Reconfigure(); err != nil {
			ps.logger.Debugw("reconfigure after release failed", "error", err)
		}
	}
}

// RequestReconfigure blocks every input. The outputs are reconfigured once
// all blocks complete.
func (ps *PlaySink) RequestReconfigure() {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	ps.blockAll()
}

func (ps *PlaySink) block(in *input) {
	if in.probe != 0 {
		return
	}
	ps.setPending(in.sinkType)
	in.blocked = false
	in.probe = in.pad.AddBlockProbe(func(gstreamer.Pad) {
		ps.onBlocked(in)
	})
}

func (ps *PlaySink) blockAll() {
	for _, in := range ps.inputs {
		if in != nil {
			ps.block(in)
		}
	}
}

func (ps *PlaySink) unblock(in *input) {
	if in.probe != 0 {
		in.pad.RemoveProbe(in.probe)
		in.probe = 0
	}
	in.blocked = false
	ps.clearPending(in.sinkType)
}

func (ps *PlaySink) onBlocked(in *input) {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	if ps.inputs[in.mediaType] != in || in.probe == 0 {
		return
	}
	in.blocked = true
	ps.clearPending(in.sinkType)
	logger.Debugw("pad blocked", "pad", in.pad.GetName())

	for _, other := range ps.inputs {
		if other != nil && !other.blocked {
			return
		}
	}

	if err := ps.Reconfigure(); err != nil {
		logger.Debugw("reconfigure on block failed", "error", err)
	}
	for _, other := range ps.inputs {
		if other != nil {
			ps.unblock(other)
		}
	}
}

func (ps *PlaySink) onCapsChanged(pad gstreamer.Pad) {
	caps := pad.GetCurrentCaps()

	ps.lock.Lock()
	defer ps.lock.Unlock()

	var in *input
	for _, candidate := range ps.inputs {
		if candidate != nil && samePad(candidate.pad, pad) {
			in = candidate
			break
		}
	}
	if in == nil {
		return
	}

	var raw bool
	switch in.mediaType {
	case types.MediaAudio:
		raw = caps.IsRawAudio()
	case types.MediaVideo:
		raw = caps.IsRawVideo()
	default:
		return
	}
	if raw == in.raw {
		return
	}

	ps.logger.Debugw("raw format changed", "pad", pad.GetName(), "raw", raw)
	in.raw = raw
	if ps.hasChain(in.mediaType) {
		ps.blockAll()
	}
}

func (ps *PlaySink) hasChain(t types.MediaType) bool {
	switch t {
	case types.MediaAudio:
		return ps.audioChain != nil || ps.visChain != nil
	case types.MediaVideo:
		return ps.videoChain != nil
	default:
		return ps.textChain != nil
	}
}

// ghostTarget is the resting target of an input pad when no output is
// linked to it.
func (ps *PlaySink) ghostTarget(in *input) gstreamer.Pad {
	if in.mediaType == types.MediaAudio && ps.audioTee != nil {
		return ps.audioTee.GetStaticPad("sink")
	}
	return nil
}

type syncPair struct {
	sink gstreamer.Pad
	src  gstreamer.Pad
}

// syncPair returns the stream synchronizer pads for a media type. It
// returns nil when no synchronizer is available; streams are then wired
// directly.
func (ps *PlaySink) syncPair(t types.MediaType) (*syncPair, error) {
	if pair := ps.syncPairs[t]; pair != nil {
		return pair, nil
	}
	if ps.streamSync == nil {
		if ps.streamSyncMissing {
			return nil, nil
		}
		el, err := ps.registry.Make(types.FactoryStreamSynchronizer, "streamsynchronizer")
		if err != nil {
			ps.streamSyncMissing = true
			ps.postWarning(err)
			return nil, nil
		}
		if err = ps.bin.Add(el); err != nil {
			return nil, errors.ErrGstPipelineError(err)
		}
		_ = el.SyncStateWithParent()
		ps.streamSync = el
	}

	sink := ps.streamSync.GetRequestPad("sink_%u")
	if sink == nil {
		return nil, errors.ErrPadLinkFailed("streamsynchronizer", t.String(), "no request pad")
	}
	src := ps.streamSync.GetStaticPad(strings.Replace(sink.GetName(), "sink", "src", 1))
	if src == nil {
		ps.streamSync.ReleaseRequestPad(sink)
		return nil, errors.ErrPadLinkFailed("streamsynchronizer", t.String(), "missing src pad")
	}

	pair := &syncPair{sink: sink, src: src}
	ps.syncPairs[t] = pair
	return pair, nil
}

func (ps *PlaySink) releaseSyncPair(t types.MediaType) {
	pair := ps.syncPairs[t]
	if pair == nil {
		return
	}
	unlinkPad(pair.src)
	unlinkPad(pair.sink)
	for _, in := range ps.inputs {
		if in != nil && samePad(in.pad.GetTarget(), pair.sink) {
			_ = in.pad.SetTarget(ps.ghostTarget(in))
		}
	}
	ps.streamSync.ReleaseRequestPad(pair.sink)
	delete(ps.syncPairs, t)
}

func (ps *PlaySink) teePad(existing gstreamer.Pad) (gstreamer.Pad, error) {
	if existing != nil {
		return existing, nil
	}
	if ps.audioTee == nil {
		return nil, errors.ErrPadLinkFailed("audiotee", "output", "no audio tee")
	}
	pad := ps.audioTee.GetRequestPad("src_%u")
	if pad == nil {
		return nil, errors.ErrPadLinkFailed("audiotee", "output", "no request pad")
	}
	return pad, nil
}

func (ps *PlaySink) releaseTeePads() {
	ps.releaseTeePad(&ps.teeAudioSrc)
	ps.releaseTeePad(&ps.teeVisSrc)
}

// inlet is an upstream output that can be pointed at a sink pad, either a
// ghost pad retarget or a src pad link.
type inlet func(sink gstreamer.Pad) error

func ghostInlet(g gstreamer.GhostPad) inlet {
	return func(sink gstreamer.Pad) error {
		if samePad(g.GetTarget(), sink) {
			return nil
		}
		return g.SetTarget(sink)
	}
}

func srcInlet(name string, src gstreamer.Pad) inlet {
	return func(sink gstreamer.Pad) error {
		return relink(name, src, sink)
	}
}

// feed connects upstream to downstream through the synchronizer pair of t.
func (ps *PlaySink) feed(t types.MediaType, upstream inlet, downstream gstreamer.Pad) error {
	pair, err := ps.syncPair(t)
	if err != nil {
		return err
	}
	if pair == nil {
		return upstream(downstream)
	}
	if err = upstream(pair.sink); err != nil {
		return err
	}
	return relink("streamsynchronizer", pair.src, downstream)
}

// relink links src to sink, dropping any other peer either side had.
func relink(name string, src, sink gstreamer.Pad) error {
	if src == nil || sink == nil {
		return gstreamer.LinkPads(name, src, "output", sink)
	}
	if samePad(src.GetPeer(), sink) {
		return nil
	}
	unlinkPad(src)
	unlinkPad(sink)
	return gstreamer.LinkPads(name, src, padName(sink), sink)
}

func unlinkPad(pad gstreamer.Pad) {
	if pad == nil {
		return
	}
	peer := pad.GetPeer()
	if peer == nil {
		return
	}
	if pad.GetDirection() == gstreamer.PadDirectionSource {
		pad.Unlink(peer)
	} else {
		peer.Unlink(pad)
	}
}

func samePad(a, b gstreamer.Pad) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a == b {
		return true
	}
	if a.GetName() != b.GetName() {
		return false
	}
	pa, pb := a.GetParentElement(), b.GetParentElement()
	return pa != nil && pb != nil && pa.GetName() == pb.GetName() && pa.GetParent() == pb.GetParent()
}

func padName(pad gstreamer.Pad) string {
	if parent := pad.GetParentElement(); parent != nil {
		return parent.GetName() + ":" + pad.GetName()
	}
	return pad.GetName()
}
