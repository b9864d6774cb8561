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
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/gstreamer/mock"
	"github.com/livekit/playback/pkg/stats"
	"github.com/livekit/playback/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type messages struct {
	mu   sync.Mutex
	msgs []*gstreamer.Message
}

func (b *messages) Post(msg *gstreamer.Message) bool {
	b.mu.Lock()
	b.msgs = append(b.msgs, msg)
	b.mu.Unlock()
	return true
}

func (b *messages) count(t gstreamer.MessageType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, msg := range b.msgs {
		if msg.Type == t {
			n++
		}
	}
	return n
}

type testSink struct {
	*PlaySink
	registry *gstreamer.Registry
	maker    *mock.Maker
	bus      *messages
	monitor  *stats.Monitor
	metrics  *prometheus.Registry
}

func newTestSink(t *testing.T, flags types.PlayFlags) *testSink {
	r, m := mock.NewRegistry()
	bus := &messages{}
	metrics := prometheus.NewRegistry()
	monitor := stats.NewMonitor(metrics, "PL_test")
	ps, err := New(r, bus, monitor)
	require.NoError(t, err)
	ps.SetFlags(flags)
	return &testSink{PlaySink: ps, registry: r, maker: m, bus: bus, monitor: monitor, metrics: metrics}
}

func (ts *testSink) request(t *testing.T, sinkType types.SinkType) gstreamer.GhostPad {
	pad, err := ts.RequestPad(sinkType)
	require.NoError(t, err)
	return pad.(gstreamer.GhostPad)
}

func (ts *testSink) elementCount() int {
	n := 0
	for _, f := range ts.registry.List(nil) {
		n += ts.maker.Count(f.Name)
	}
	return n
}

func (ts *testSink) reconfigures(t *testing.T, status string) float64 {
	families, err := ts.metrics.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "livekit_playback_reconfigures" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" && l.GetValue() == status {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestScenarioAudioVideo(t *testing.T) {
	ps := newTestSink(t, types.FlagAudio|types.FlagVideo|types.FlagSoftVolume)
	audio := ps.request(t, types.SinkTypeAudioRaw)
	video := ps.request(t, types.SinkTypeVideoRaw)

	require.NoError(t, ps.Reconfigure())

	hasAudio, hasVideo, hasText, hasVis := ps.Outputs()
	require.True(t, hasAudio)
	require.True(t, hasVideo)
	require.False(t, hasText)
	require.False(t, hasVis)
	require.True(t, ps.Valid())

	require.True(t, ps.audioChain.added)
	require.True(t, ps.videoChain.added)
	require.True(t, ps.videoChain.raw)

	// input -> synchronizer -> chain
	videoPair := ps.syncPairs[types.MediaVideo]
	require.NotNil(t, videoPair)
	require.Equal(t, videoPair.sink, video.GetTarget())
	require.Equal(t, gstreamer.Pad(ps.videoChain.sinkPad), videoPair.src.GetPeer())

	audioPair := ps.syncPairs[types.MediaAudio]
	require.NotNil(t, audioPair)
	require.Equal(t, ps.audioTee.GetStaticPad("sink"), audio.GetTarget())
	require.Equal(t, audioPair.sink, ps.teeAudioSrc.GetPeer())
	require.Equal(t, gstreamer.Pad(ps.audioChain.sinkPad), audioPair.src.GetPeer())

	// soft volume since autoaudiosink has no volume
	require.NotNil(t, ps.audioChain.volume)
	require.Equal(t, "volume", ps.audioChain.volume.GetFactoryName())
	require.Equal(t, 1, ps.maker.Count(types.FactoryStreamSynchronizer))
}

func TestScenarioVisualization(t *testing.T) {
	ps := newTestSink(t, types.FlagAudio|types.FlagVideo|types.FlagVis)
	ps.request(t, types.SinkTypeAudioRaw)

	require.NoError(t, ps.Reconfigure())

	hasAudio, hasVideo, _, hasVis := ps.Outputs()
	require.True(t, hasAudio)
	require.True(t, hasVideo)
	require.True(t, hasVis)

	require.True(t, ps.videoChain.raw)
	require.False(t, ps.videoChain.async)
	require.Equal(t, false, mock.AsElement(ps.videoChain.sink).Property("async"))
	require.Equal(t, "goom", ps.visChain.vis.GetFactoryName())

	// tee -> vis -> synchronizer -> video chain
	require.Equal(t, gstreamer.Pad(ps.visChain.sinkPad), ps.teeVisSrc.GetPeer())
	pair := ps.syncPairs[types.MediaVideo]
	require.Equal(t, pair.sink, ps.visChain.srcPad.GetPeer())
	require.Equal(t, gstreamer.Pad(ps.videoChain.sinkPad), pair.src.GetPeer())

	t.Run("VisRequiresRawAudio", func(t *testing.T) {
		ps := newTestSink(t, types.FlagAudio|types.FlagVis)
		ps.request(t, types.SinkTypeAudio)
		require.NoError(t, ps.Reconfigure())
		_, hasVideo, _, hasVis := ps.Outputs()
		require.False(t, hasVideo)
		require.False(t, hasVis)
	})
}

func TestVisMissing(t *testing.T) {
	ps := newTestSink(t, types.FlagAudio|types.FlagVideo|types.FlagVis|types.FlagSoftVolume)
	mock.Remove(ps.registry, ps.maker, types.FactoryDefaultVis)
	audio := ps.request(t, types.SinkTypeAudioRaw)

	require.NoError(t, ps.Reconfigure())
	require.Equal(t, 1, ps.bus.count(gstreamer.MessageWarning))
	require.Zero(t, ps.bus.count(gstreamer.MessageError))

	hasAudio, hasVideo, _, hasVis := ps.Outputs()
	require.True(t, hasAudio)
	require.False(t, hasVideo)
	require.False(t, hasVis)
	require.Nil(t, ps.videoChain)
	require.Nil(t, ps.visChain)
	require.True(t, ps.Valid())

	// audio plays through the tee
	require.Equal(t, ps.audioTee.GetStaticPad("sink"), audio.GetTarget())
	require.Equal(t, gstreamer.Pad(ps.audioChain.sinkPad), ps.syncPairs[types.MediaAudio].src.GetPeer())
	require.Nil(t, ps.teeVisSrc)

}

func TestTextWithoutVideo(t *testing.T) {
	t.Run("DemotedWithAudio", func(t *testing.T) {
		ps := newTestSink(t, types.FlagText)
		ps.request(t, types.SinkTypeAudioRaw)

		require.NoError(t, ps.Reconfigure())
		require.Equal(t, 1, ps.bus.count(gstreamer.MessageWarning))
		require.Zero(t, ps.bus.count(gstreamer.MessageError))

		hasAudio, hasVideo, hasText, _ := ps.Outputs()
		require.False(t, hasAudio)
		require.False(t, hasVideo)
		require.False(t, hasText)
	})

	t.Run("FatalWithoutAudio", func(t *testing.T) {
		ps := newTestSink(t, types.FlagText)
		ps.request(t, types.SinkTypeText)

		err := ps.Reconfigure()
		require.Error(t, err)
		require.Equal(t, errors.KindConfiguration, errors.KindOf(err))
		require.Equal(t, 1, ps.bus.count(gstreamer.MessageError))
	})

	t.Run("DefaultFlagsAudioOnly", func(t *testing.T) {
		ps := newTestSink(t, types.DefaultFlags)
		ps.request(t, types.SinkTypeAudioRaw)

		require.NoError(t, ps.Reconfigure())
		require.Zero(t, ps.bus.count(gstreamer.MessageWarning))
		hasAudio, _, _, _ := ps.Outputs()
		require.True(t, hasAudio)
	})
}

func TestReconfigureIdempotent(t *testing.T) {
	ps := newTestSink(t, types.FlagAudio|types.FlagVideo|types.FlagText)
	ps.request(t, types.SinkTypeAudioRaw)
	video := ps.request(t, types.SinkTypeVideoRaw)
	ps.request(t, types.SinkTypeText)

	require.NoError(t, ps.Reconfigure())
	created := ps.elementCount()
	target := video.GetTarget()
	videoPeer := ps.syncPairs[types.MediaVideo].src.GetPeer()

	require.NoError(t, ps.Reconfigure())
	require.Equal(t, created, ps.elementCount())
	require.Equal(t, target, video.GetTarget())
	require.Equal(t, videoPeer, ps.syncPairs[types.MediaVideo].src.GetPeer())
	require.True(t, ps.Valid())
}

func TestSinkFallback(t *testing.T) {
	t.Run("SecondChoice", func(t *testing.T) {
		ps := newTestSink(t, types.FlagVideo)
		mock.Remove(ps.registry, ps.maker, types.FactoryAutoVideoSink)
		ps.request(t, types.SinkTypeVideoRaw)

		require.NoError(t, ps.Reconfigure())
		require.Equal(t, types.FactoryDefaultVideoSink, ps.GetSink(types.MediaVideo).GetFactoryName())
		count, err := testutil.GatherAndCount(ps.metrics, "livekit_playback_sink_fallbacks")
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})

	t.Run("FirstNotWorking", func(t *testing.T) {
		ps := newTestSink(t, types.FlagVideo)
		ps.maker.SetFailReady(types.FactoryAutoVideoSink, true)
		ps.request(t, types.SinkTypeVideoRaw)

		require.NoError(t, ps.Reconfigure())
		require.Equal(t, types.FactoryDefaultVideoSink, ps.GetSink(types.MediaVideo).GetFactoryName())
	})

	t.Run("BothMissing", func(t *testing.T) {
		ps := newTestSink(t, types.FlagVideo)
		mock.Remove(ps.registry, ps.maker, types.FactoryAutoVideoSink)
		mock.Remove(ps.registry, ps.maker, types.FactoryDefaultVideoSink)
		ps.request(t, types.SinkTypeVideoRaw)

		err := ps.Reconfigure()
		require.Error(t, err)
		require.Equal(t, errors.KindMissingElement, errors.KindOf(err))
		require.Contains(t, err.Error(), "Both autovideosink and xvimagesink elements are missing.")
	})

	t.Run("BothNotWorking", func(t *testing.T) {
		ps := newTestSink(t, types.FlagAudio)
		ps.maker.SetFailReady(types.FactoryAutoAudioSink, true)
		ps.maker.SetFailReady(types.FactoryDefaultAudioSink, true)
		ps.request(t, types.SinkTypeAudioRaw)

		err := ps.Reconfigure()
		require.Error(t, err)
		require.Equal(t, errors.KindSinkActivation, errors.KindOf(err))
	})

	t.Run("ConfiguredSink", func(t *testing.T) {
		ps := newTestSink(t, types.FlagAudio)
		sink, err := ps.registry.Make("pulsesink", "mysink")
		require.NoError(t, err)
		ps.SetSink(types.MediaAudio, sink)
		ps.request(t, types.SinkTypeAudioRaw)

		require.NoError(t, ps.Reconfigure())
		require.Equal(t, sink, ps.GetSink(types.MediaAudio))
		require.True(t, ps.audioChain.sinkVolume)
		require.Zero(t, ps.maker.Count(types.FactoryVolume))
	})
}

func TestConfiguredSinkRebuild(t *testing.T) {
	ps := newTestSink(t, types.FlagVideo)
	sink, err := ps.registry.Make("fakesink", "mysink")
	require.NoError(t, err)
	ps.SetSink(types.MediaVideo, sink)
	ps.request(t, types.SinkTypeVideoRaw)

	require.NoError(t, ps.Reconfigure())
	first := ps.videoChain

	_, err = ps.ChangeState(gstreamer.StateReady, gstreamer.StatePaused)
	require.NoError(t, err)
	_, err = ps.ChangeState(gstreamer.StatePaused, gstreamer.StateReady)
	require.NoError(t, err)
	require.False(t, first.added)
	require.False(t, first.activated)

	// reused while the sink still works
	require.NoError(t, ps.Reconfigure())
	require.Same(t, first, ps.videoChain)

	_, err = ps.ChangeState(gstreamer.StateReady, gstreamer.StatePaused)
	require.NoError(t, err)
	_, err = ps.ChangeState(gstreamer.StatePaused, gstreamer.StateReady)
	require.NoError(t, err)

	// a sink failing re-activation drops the chain
	ps.maker.SetFailReady("fakesink", true)
	err = ps.Reconfigure()
	require.Error(t, err)
	require.Equal(t, errors.KindSinkActivation, errors.KindOf(err))
	require.Nil(t, ps.videoChain)
	require.Nil(t, sink.GetParent())

	ps.maker.SetFailReady("fakesink", false)
	require.NoError(t, ps.Reconfigure())
	require.NotSame(t, first, ps.videoChain)
	require.Equal(t, sink, ps.videoChain.sink)
}

func TestPadGate(t *testing.T) {
	ps := newTestSink(t, types.FlagAudio|types.FlagVideo)
	audio := ps.request(t, types.SinkTypeAudioRaw)
	video := ps.request(t, types.SinkTypeVideoRaw)

	require.ElementsMatch(t, []types.MediaType{types.MediaAudio, types.MediaVideo}, ps.PendingBlocks())
	require.True(t, mock.AsPad(audio).IsBlocked())

	require.Equal(t, 1, mock.AsPad(audio).FireBlocked())
	require.Equal(t, []types.MediaType{types.MediaVideo}, ps.PendingBlocks())
	require.Nil(t, ps.audioChain)
	require.Nil(t, ps.videoChain)

	require.Equal(t, 1, mock.AsPad(video).FireBlocked())
	require.Empty(t, ps.PendingBlocks())
	require.False(t, mock.AsPad(audio).IsBlocked())
	require.False(t, mock.AsPad(video).IsBlocked())

	hasAudio, hasVideo, _, _ := ps.Outputs()
	require.True(t, hasAudio)
	require.True(t, hasVideo)

	t.Run("RawChange", func(t *testing.T) {
		first := ps.videoChain
		mock.AsPad(video).SetCaps("video/x-raw, format=I420")
		require.Empty(t, ps.PendingBlocks())

		mock.AsPad(video).SetCaps("video/x-h264")
		require.ElementsMatch(t, []types.MediaType{types.MediaAudio, types.MediaVideo}, ps.PendingBlocks())

		mock.AsPad(audio).FireBlocked()
		mock.AsPad(video).FireBlocked()
		require.Empty(t, ps.PendingBlocks())
		require.False(t, ps.videoChain.raw)
		require.NotSame(t, first, ps.videoChain)
	})

	t.Run("RequestReconfigure", func(t *testing.T) {
		ps.RequestReconfigure()
		require.Len(t, ps.PendingBlocks(), 2)
		mock.AsPad(audio).FireBlocked()
		mock.AsPad(video).FireBlocked()
		require.Empty(t, ps.PendingBlocks())
	})
}

func TestReleasePad(t *testing.T) {
	ps := newTestSink(t, types.FlagAudio|types.FlagVideo)
	audio := ps.request(t, types.SinkTypeAudioRaw)
	video := ps.request(t, types.SinkTypeVideoRaw)
	mock.AsPad(audio).FireBlocked()
	mock.AsPad(video).FireBlocked()

	vc := ps.videoChain
	ps.ReleasePad(video)
	require.Nil(t, ps.inputs[types.MediaVideo])
	require.Nil(t, ps.bin.GetStaticPad("video_raw_sink"))
	require.False(t, vc.added)
	require.False(t, vc.activated)
	require.Nil(t, ps.syncPairs[types.MediaVideo])

	hasAudio, _, _, _ := ps.Outputs()
	require.True(t, hasAudio)

	ps.ReleasePad(audio)
	require.Nil(t, ps.audioTee)
	hasAudio, _, _, _ = ps.Outputs()
	require.False(t, hasAudio)
	require.True(t, ps.Valid())

	t.Run("Flushing", func(t *testing.T) {
		p0, err := ps.RequestPad(types.SinkTypeFlushing)
		require.NoError(t, err)
		p1, err := ps.RequestPad(types.SinkTypeFlushing)
		require.NoError(t, err)
		require.Equal(t, "flushing_0", p0.GetName())
		require.Equal(t, "flushing_1", p1.GetName())
		require.Empty(t, ps.PendingBlocks())

		ps.ReleasePad(p0)
		require.Nil(t, ps.bin.GetStaticPad("flushing_0"))
		require.NotNil(t, ps.bin.GetStaticPad("flushing_1"))
	})
}

func TestTextChain(t *testing.T) {
	t.Run("Overlay", func(t *testing.T) {
		ps := newTestSink(t, types.FlagVideo|types.FlagText)
		ps.request(t, types.SinkTypeVideoRaw)
		text := ps.request(t, types.SinkTypeText)
		ps.SetFontDesc("Sans 24")

		require.NoError(t, ps.Reconfigure())
		tc := ps.textChain
		require.NotNil(t, tc.overlay)
		require.Equal(t, "Sans 24", mock.AsElement(tc.overlay).Property("font-desc"))
		require.Equal(t, false, mock.AsElement(tc.overlay).Property("silent"))

		// synchronizer -> text chain -> video chain
		require.Equal(t, gstreamer.Pad(tc.videoSinkPad), ps.syncPairs[types.MediaVideo].src.GetPeer())
		require.Equal(t, gstreamer.Pad(ps.videoChain.sinkPad), tc.srcPad.GetPeer())
		require.Equal(t, ps.syncPairs[types.MediaText].sink, text.GetTarget())
		require.Equal(t, gstreamer.Pad(tc.textSinkPad), ps.syncPairs[types.MediaText].src.GetPeer())

		// disabling text keeps video flowing through a silent overlay
		ps.SetFlags(types.FlagVideo)
		require.NoError(t, ps.Reconfigure())
		require.True(t, tc.added)
		require.Equal(t, true, mock.AsElement(tc.overlay).Property("silent"))
	})

	t.Run("IdentityFallback", func(t *testing.T) {
		ps := newTestSink(t, types.FlagVideo|types.FlagText)
		mock.Remove(ps.registry, ps.maker, types.FactorySubtitleOverlay)
		ps.request(t, types.SinkTypeVideoRaw)
		ps.request(t, types.SinkTypeText)

		require.NoError(t, ps.Reconfigure())
		require.Nil(t, ps.textChain.overlay)
		require.NotNil(t, ps.textChain.identity)
		require.Equal(t, gstreamer.Pad(ps.videoChain.sinkPad), ps.textChain.srcPad.GetPeer())
	})

	t.Run("NoIdentity", func(t *testing.T) {
		ps := newTestSink(t, types.FlagVideo|types.FlagText)
		mock.Remove(ps.registry, ps.maker, types.FactorySubtitleOverlay)
		mock.Remove(ps.registry, ps.maker, types.FactoryIdentity)
		ps.request(t, types.SinkTypeVideoRaw)
		ps.request(t, types.SinkTypeText)

		err := ps.Reconfigure()
		require.Error(t, err)
		require.True(t, errors.IsFatal(err))
	})

	t.Run("CustomSink", func(t *testing.T) {
		ps := newTestSink(t, types.FlagVideo|types.FlagText)
		sink, err := ps.registry.Make("fakesink", "subsink")
		require.NoError(t, err)
		ps.SetSink(types.MediaText, sink)
		ps.request(t, types.SinkTypeVideoRaw)
		ps.request(t, types.SinkTypeText)

		require.NoError(t, ps.Reconfigure())
		require.Equal(t, sink, ps.textChain.sink)
		require.Equal(t, false, mock.AsElement(sink).Property("async"))
		require.NotNil(t, ps.textChain.identity)
		require.Nil(t, ps.textChain.overlay)
	})
}

func TestDeinterlace(t *testing.T) {
	ps := newTestSink(t, types.FlagVideo|types.FlagDeinterlace)
	ps.request(t, types.SinkTypeVideoRaw)

	require.NoError(t, ps.Reconfigure())
	dc := ps.deinterlaceChain
	require.NotNil(t, dc)
	require.True(t, dc.activated)
	require.Equal(t, gstreamer.Pad(dc.sinkPad), ps.syncPairs[types.MediaVideo].src.GetPeer())
	require.Equal(t, gstreamer.Pad(ps.videoChain.sinkPad), dc.srcPad.GetPeer())

	ps.SetFlags(types.FlagVideo)
	require.NoError(t, ps.Reconfigure())
	require.False(t, dc.added)
	require.Equal(t, gstreamer.Pad(ps.videoChain.sinkPad), ps.syncPairs[types.MediaVideo].src.GetPeer())

	t.Run("Missing", func(t *testing.T) {
		ps := newTestSink(t, types.FlagVideo|types.FlagDeinterlace)
		mock.Remove(ps.registry, ps.maker, types.FactoryDeinterlace)
		ps.request(t, types.SinkTypeVideoRaw)

		require.NoError(t, ps.Reconfigure())
		require.Nil(t, ps.deinterlaceChain)
		require.Equal(t, 1, ps.bus.count(gstreamer.MessageWarning))
	})
}

func TestVolume(t *testing.T) {
	ps := newTestSink(t, types.FlagAudio|types.FlagSoftVolume)
	ps.request(t, types.SinkTypeAudioRaw)

	ps.SetVolume(0.5)
	ps.SetMute(true)
	require.Equal(t, 0.5, ps.GetVolume())
	require.True(t, ps.GetMute())

	require.NoError(t, ps.Reconfigure())
	vol := mock.AsElement(ps.audioChain.volume)
	require.Equal(t, 0.5, vol.Property("volume"))
	require.Equal(t, true, vol.Property("mute"))

	ps.SetVolume(20)
	require.Equal(t, MaxVolume, vol.Property("volume"))
	ps.SetMute(false)
	require.Equal(t, false, vol.Property("mute"))

	t.Run("NoVolumeControl", func(t *testing.T) {
		ps := newTestSink(t, types.FlagAudio)
		ps.request(t, types.SinkTypeAudioRaw)
		require.NoError(t, ps.Reconfigure())
		require.Nil(t, ps.audioChain.volume)

		ps.SetVolume(0.3)
		require.Equal(t, 0.3, ps.GetVolume())
	})
}

func TestAVOffset(t *testing.T) {
	ps := newTestSink(t, types.FlagAudio|types.FlagVideo)
	ps.request(t, types.SinkTypeAudioRaw)
	ps.request(t, types.SinkTypeVideoRaw)
	require.NoError(t, ps.Reconfigure())

	audioSink := mock.AsElement(ps.audioChain.sink)
	videoSink := mock.AsElement(ps.videoChain.sink)

	ps.SetAVOffset(50 * time.Millisecond)
	require.Equal(t, int64(50*time.Millisecond), videoSink.Property("ts-offset"))
	require.Equal(t, int64(0), audioSink.Property("ts-offset"))

	ps.SetAVOffset(-20 * time.Millisecond)
	require.Equal(t, int64(0), videoSink.Property("ts-offset"))
	require.Equal(t, int64(20*time.Millisecond), audioSink.Property("ts-offset"))
	require.Equal(t, -20*time.Millisecond, ps.GetAVOffset())
}

type fakeConverter struct{}

func (fakeConverter) ConvertSample(sample *gstreamer.Sample, to *gstreamer.Caps) (*gstreamer.Sample, error) {
	return &gstreamer.Sample{Caps: to, Data: sample.Data}, nil
}

func TestLastSample(t *testing.T) {
	ps := newTestSink(t, types.FlagVideo)
	_, err := ps.GetLastSample()
	require.ErrorIs(t, err, errors.ErrNoVideoChain)

	ps.request(t, types.SinkTypeVideoRaw)
	require.NoError(t, ps.Reconfigure())
	_, err = ps.GetLastSample()
	require.ErrorIs(t, err, errors.ErrNoSample)

	sample := &gstreamer.Sample{Caps: gstreamer.MustParseCaps("video/x-raw, format=I420"), Data: []byte{1, 2, 3}}
	require.NoError(t, ps.videoChain.sink.SetProperty("last-sample", sample))

	got, err := ps.GetLastSample()
	require.NoError(t, err)
	require.Same(t, sample, got)

	got, err = ps.ConvertSample(gstreamer.MustParseCaps("video/x-raw, format={ I420, NV12 }"))
	require.NoError(t, err)
	require.Same(t, sample, got)

	png := gstreamer.MustParseCaps("image/png")
	_, err = ps.ConvertSample(png)
	require.Error(t, err)

	ps.SetConverter(fakeConverter{})
	got, err = ps.ConvertSample(png)
	require.NoError(t, err)
	require.Equal(t, png, got.Caps)
}

func TestAsyncMessages(t *testing.T) {
	ps := newTestSink(t, types.FlagVideo)
	ps.request(t, types.SinkTypeVideoRaw)

	ret, err := ps.ChangeState(gstreamer.StateNull, gstreamer.StateReady)
	require.NoError(t, err)
	require.Equal(t, gstreamer.StateChangeSuccess, ret)

	ret, err = ps.ChangeState(gstreamer.StateReady, gstreamer.StatePaused)
	require.NoError(t, err)
	require.Equal(t, gstreamer.StateChangeAsync, ret)
	require.Equal(t, 1, ps.bus.count(gstreamer.MessageAsyncStart))

	require.NoError(t, ps.Reconfigure())
	require.Equal(t, 1, ps.bus.count(gstreamer.MessageAsyncDone))
	require.Equal(t, gstreamer.StatePaused, ps.videoChain.bin.GetCurrentState())

	// no second async cycle without a Playing -> Paused transition
	require.NoError(t, ps.Reconfigure())
	require.Equal(t, 1, ps.bus.count(gstreamer.MessageAsyncDone))

	_, err = ps.ChangeState(gstreamer.StatePaused, gstreamer.StatePlaying)
	require.NoError(t, err)
	require.Equal(t, gstreamer.StatePlaying, ps.videoChain.sink.GetCurrentState())

	_, err = ps.ChangeState(gstreamer.StatePlaying, gstreamer.StatePaused)
	require.NoError(t, err)
	_, err = ps.ChangeState(gstreamer.StatePaused, gstreamer.StateReady)
	require.NoError(t, err)
	_, err = ps.ChangeState(gstreamer.StateReady, gstreamer.StateNull)
	require.NoError(t, err)
	require.Nil(t, ps.videoChain)
	require.Empty(t, ps.syncPairs)
}

func TestMissingQueue(t *testing.T) {
	ps := newTestSink(t, types.FlagVideo)
	mock.Remove(ps.registry, ps.maker, types.FactoryQueue)
	ps.request(t, types.SinkTypeVideoRaw)

	require.NoError(t, ps.Reconfigure())
	require.Nil(t, ps.videoChain.queue)
	require.Equal(t, 1, ps.bus.count(gstreamer.MessageWarning))
	require.True(t, ps.videoChain.activated)
}

func TestFlagCombinations(t *testing.T) {
	toggles := []types.PlayFlags{
		types.FlagVideo,
		types.FlagAudio,
		types.FlagText,
		types.FlagVis,
		types.FlagSoftVolume,
		types.FlagNativeAudio,
		types.FlagNativeVideo,
		types.FlagDeinterlace,
	}
	combination := func(mask int) types.PlayFlags {
		var flags types.PlayFlags
		for i, f := range toggles {
			if mask&(1<<i) != 0 {
				flags |= f
			}
		}
		return flags
	}

	t.Run("Fresh", func(t *testing.T) {
		for mask := 0; mask < 1<<len(toggles); mask++ {
			flags := combination(mask)
			ps := newTestSink(t, flags)
			ps.request(t, types.SinkTypeAudioRaw)
			ps.request(t, types.SinkTypeVideoRaw)
			ps.request(t, types.SinkTypeText)

			require.NoError(t, ps.Reconfigure(), "flags %s", flags)
			require.True(t, ps.Valid(), "flags %s", flags)
			created := ps.elementCount()

			require.NoError(t, ps.Reconfigure(), "flags %s", flags)
			require.True(t, ps.Valid(), "flags %s", flags)
			require.Equal(t, created, ps.elementCount(), "flags %s", flags)
		}
	})

	t.Run("Toggled", func(t *testing.T) {
		ps := newTestSink(t, 0)
		ps.request(t, types.SinkTypeAudioRaw)
		ps.request(t, types.SinkTypeVideoRaw)
		ps.request(t, types.SinkTypeText)

		// gray code: one flag changes per step
		for i := 0; i < 1<<len(toggles); i++ {
			flags := combination(i ^ (i >> 1))
			ps.SetFlags(flags)

			require.NoError(t, ps.Reconfigure(), "flags %s", flags)
			require.True(t, ps.Valid(), "flags %s", flags)
			created := ps.elementCount()

			require.NoError(t, ps.Reconfigure(), "flags %s", flags)
			require.Equal(t, created, ps.elementCount(), "flags %s", flags)
		}
	})
}

func TestConcurrentBlocks(t *testing.T) {
	for i := 0; i < 50; i++ {
		ps := newTestSink(t, types.FlagAudio|types.FlagVideo)
		audio := mock.AsPad(ps.request(t, types.SinkTypeAudioRaw))
		video := mock.AsPad(ps.request(t, types.SinkTypeVideoRaw))

		var wg sync.WaitGroup
		for _, pad := range []*mock.Pad{audio, video} {
			wg.Add(1)
			go func(pad *mock.Pad) {
				defer wg.Done()
				pad.FireBlocked()
			}(pad)
		}
		wg.Wait()

		require.Empty(t, ps.PendingBlocks())
		require.Equal(t, float64(1), ps.reconfigures(t, "success"))
		require.False(t, audio.IsBlocked())
		require.False(t, video.IsBlocked())
		require.Equal(t, 1, ps.maker.Count(types.FactoryAutoAudioSink))
		require.Equal(t, 1, ps.maker.Count(types.FactoryAutoVideoSink))
	}
}

func TestPendingPerPadKind(t *testing.T) {
	ps := newTestSink(t, types.FlagAudio|types.FlagVideo)
	ps.request(t, types.SinkTypeAudio)

	require.Equal(t, pendingBit(types.SinkTypeAudio), ps.pending.Load())
	require.Equal(t, []types.MediaType{types.MediaAudio}, ps.PendingBlocks())

	ps.request(t, types.SinkTypeVideoRaw)
	require.Equal(t, pendingBit(types.SinkTypeAudio)|pendingBit(types.SinkTypeVideoRaw), ps.pending.Load())
	require.Equal(t, []types.MediaType{types.MediaAudio, types.MediaVideo}, ps.PendingBlocks())
}
