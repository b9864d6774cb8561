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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livekit/playback/pkg/gstreamer"
)

func TestRequestPads(t *testing.T) {
	m := NewDefaultMaker()
	el, err := m.MakeElement("streamsynchronizer", "")
	require.NoError(t, err)
	require.Equal(t, "streamsynchronizer0", el.GetName())

	sink0 := el.GetRequestPad("sink_%u")
	sink1 := el.GetRequestPad("sink_%u")
	require.Equal(t, "sink_0", sink0.GetName())
	require.Equal(t, "sink_1", sink1.GetName())
	require.NotNil(t, el.GetStaticPad("src_0"))
	require.NotNil(t, el.GetStaticPad("src_1"))

	el.ReleaseRequestPad(sink0)
	require.Nil(t, el.GetStaticPad("sink_0"))
	require.Nil(t, el.GetStaticPad("src_0"))
	require.True(t, AsPad(sink0).IsReleased())

	require.Nil(t, el.GetRequestPad("nosuch_%u"))
}

func TestSignals(t *testing.T) {
	m := NewDefaultMaker()
	el, _ := m.MakeElement("uridecodebin", "")
	dec := AsElement(el)

	var added []string
	h, err := el.Connect("pad-added", func(_ gstreamer.Element, pad gstreamer.Pad) {
		added = append(added, pad.GetName())
	})
	require.NoError(t, err)
	_, err = el.Connect("pad-added", "not a function")
	require.Error(t, err)

	dec.AddPad("src_0", gstreamer.PadDirectionSource, "audio/x-raw", "stream-a")
	require.Equal(t, []string{"src_0"}, added)

	el.Disconnect(h)
	require.Zero(t, dec.HandlerCount("pad-added"))
	dec.AddPad("src_1", gstreamer.PadDirectionSource, "video/x-raw", "stream-v")
	require.Len(t, added, 1)

	_, _ = el.Connect("autoplug-select", func(_ gstreamer.Element, _ gstreamer.Pad, _ *gstreamer.Caps, f *gstreamer.Factory) int {
		if f == nil {
			return -1
		}
		return 2
	})
	require.Equal(t, -1, dec.Emit("autoplug-select", el, nil, nil, nil))
}

func TestBinAndGhostPads(t *testing.T) {
	m := NewDefaultMaker()
	b, _ := m.MakeElement("bin", "outer")
	bin := b.(gstreamer.Bin)
	queue, _ := m.MakeElement("queue", "")
	require.NoError(t, bin.Add(queue))
	require.Error(t, bin.Add(queue))
	require.Equal(t, b, queue.GetParent())

	ghost, err := bin.NewGhostPad("sink", queue.GetStaticPad("sink"), gstreamer.PadDirectionUnknown)
	require.NoError(t, err)
	require.Equal(t, gstreamer.PadDirectionSink, ghost.GetDirection())
	require.Equal(t, ghost, b.GetStaticPad("sink"))
	require.Error(t, ghost.SetTarget(queue.GetStaticPad("src")))

	require.NoError(t, b.SetState(gstreamer.StatePaused))
	require.Equal(t, gstreamer.StatePaused, queue.GetCurrentState())

	queue.SetLockedState(true)
	require.NoError(t, b.SetState(gstreamer.StateReady))
	require.Equal(t, gstreamer.StatePaused, queue.GetCurrentState())

	require.NoError(t, bin.Remove(queue))
	require.Nil(t, queue.GetParent())
	require.Error(t, bin.Remove(queue))
	require.NoError(t, bin.RemovePad(ghost))
	require.Nil(t, b.GetStaticPad("sink"))
}

func TestBinRemoveUnlinks(t *testing.T) {
	m := NewDefaultMaker()
	b, _ := m.MakeElement("bin", "outer")
	bin := b.(gstreamer.Bin)
	conv, _ := m.MakeElement("audioconvert", "")
	sink, _ := m.MakeElement("fakesink", "")
	require.NoError(t, bin.Add(conv, sink))
	require.NoError(t, conv.GetStaticPad("src").Link(sink.GetStaticPad("sink")))

	require.NoError(t, bin.Remove(sink))
	require.False(t, conv.GetStaticPad("src").IsLinked())
	require.False(t, sink.GetStaticPad("sink").IsLinked())

	// relinkable after removal
	require.NoError(t, bin.Add(sink))
	require.NoError(t, conv.GetStaticPad("src").Link(sink.GetStaticPad("sink")))
}

func TestBlockProbe(t *testing.T) {
	m := NewDefaultMaker()
	el, _ := m.MakeElement("identity", "")
	pad := AsPad(el.GetStaticPad("sink"))

	blocked := make(chan gstreamer.Pad, 1)
	id := pad.AddBlockProbe(func(p gstreamer.Pad) {
		blocked <- p
	})
	require.True(t, pad.IsBlocked())
	require.Equal(t, 1, pad.FireBlocked())
	require.Equal(t, gstreamer.Pad(pad), <-blocked)
	require.Equal(t, 0, pad.FireBlocked())

	pad.RemoveProbe(id)
	require.False(t, pad.IsBlocked())

	notified := 0
	pad.NotifyCaps(func(gstreamer.Pad) { notified++ })
	pad.SetCaps("audio/x-raw")
	require.Equal(t, 1, notified)
	require.True(t, pad.GetCurrentCaps().IsRawAudio())
}

func TestReadyFailure(t *testing.T) {
	m := NewDefaultMaker()
	m.SetFailReady("alsasink", true)
	el, _ := m.MakeElement("alsasink", "")
	require.Error(t, el.SetState(gstreamer.StateReady))
	require.Equal(t, gstreamer.StateNull, el.GetCurrentState())

	_, err := m.MakeElement("nosuch", "")
	require.Error(t, err)
	require.Equal(t, 1, m.Count("alsasink"))
}
