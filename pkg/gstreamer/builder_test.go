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

package gstreamer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/gstreamer/mock"
)

func TestBuildQueue(t *testing.T) {
	r, _ := mock.NewRegistry()
	queue, err := gstreamer.BuildQueue(r, "vqueue", 3, 0)
	require.NoError(t, err)

	v, err := queue.GetProperty("max-size-buffers")
	require.NoError(t, err)
	require.Equal(t, uint(3), v)
	v, _ = queue.GetProperty("max-size-bytes")
	require.Equal(t, uint(0), v)
	v, _ = queue.GetProperty("max-size-time")
	require.Equal(t, uint64(0), v)
}

func TestLinkElements(t *testing.T) {
	r, _ := mock.NewRegistry()
	conv, _ := r.Make("audioconvert", "")
	vol, _ := r.Make("volume", "")
	sink, _ := r.Make("autoaudiosink", "")
	require.NoError(t, gstreamer.LinkElements(conv, vol, sink))
	require.True(t, conv.GetStaticPad("src").IsLinked())
	require.Equal(t, sink.GetStaticPad("sink"), vol.GetStaticPad("src").GetPeer())

	t.Run("incompatible", func(t *testing.T) {
		vis, _ := r.Make("goom", "")
		asink, _ := r.Make("alsasink", "")
		err := gstreamer.LinkElements(vis, asink)
		require.Error(t, err)
		require.Equal(t, errors.KindLinkFailure, errors.KindOf(err))
	})

	t.Run("missing pad", func(t *testing.T) {
		err := gstreamer.LinkPads("a", nil, "b", sink.GetStaticPad("sink"))
		require.Error(t, err)
	})
}

func TestTryElement(t *testing.T) {
	r, m := mock.NewRegistry()

	el, err := gstreamer.TryMake(r, "autovideosink", "")
	require.NoError(t, err)
	require.Equal(t, gstreamer.StateReady, el.GetCurrentState())

	m.SetFailReady("xvimagesink", true)
	_, err = gstreamer.TryMake(r, "xvimagesink", "")
	require.Error(t, err)
	require.Equal(t, errors.KindSinkActivation, errors.KindOf(err))
	failed := mock.AsElement(m.Last("xvimagesink"))
	require.Equal(t, gstreamer.StateNull, failed.GetCurrentState())

	_, err = gstreamer.TryMake(r, "nosuchsink", "")
	require.Equal(t, errors.KindMissingElement, errors.KindOf(err))
}

func TestFindProperty(t *testing.T) {
	r, _ := mock.NewRegistry()
	bin, _ := r.Make("bin", "outer")
	sink, _ := r.Make("pulsesink", "")
	require.NoError(t, bin.(gstreamer.Bin).Add(sink))

	require.Equal(t, sink, gstreamer.FindProperty(bin, "volume"))
	require.Nil(t, gstreamer.FindProperty(bin, "brightness"))
	require.True(t, gstreamer.HasAncestor(sink, bin))
}
