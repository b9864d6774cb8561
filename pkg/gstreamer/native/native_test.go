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

package native

import (
	"testing"

	"github.com/go-gst/go-gst/gst"
	"github.com/stretchr/testify/require"

	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/types"
)

func TestStateMapping(t *testing.T) {
	for _, s := range []gstreamer.State{
		gstreamer.StateNull,
		gstreamer.StateReady,
		gstreamer.StatePaused,
		gstreamer.StatePlaying,
	} {
		require.Equal(t, s, fromState(toState(s)), s.String())
	}
	require.Equal(t, gstreamer.StateVoidPending, fromState(toState(gstreamer.StateVoidPending)))
}

func TestStreamTypeMapping(t *testing.T) {
	require.Equal(t, types.StreamTypeAudio, fromStreamType(gst.StreamTypeAudio))
	require.Equal(t, types.StreamTypeAudio|types.StreamTypeVideo, fromStreamType(gst.StreamTypeAudio|gst.StreamTypeVideo))
	require.Equal(t, types.StreamTypeUnknown, fromStreamType(0))
}

func TestPropertyValues(t *testing.T) {
	v, err := toNative(float32(0.5))
	require.NoError(t, err)
	require.Equal(t, 0.5, v)

	v, err = toNative("utf-8")
	require.NoError(t, err)
	require.Equal(t, "utf-8", v)

	_, err = toNative(gstreamer.Element(nil))
	require.NoError(t, err)
}

func TestCapsConversion(t *testing.T) {
	require.Nil(t, fromCaps(nil))
	require.Nil(t, toCaps(nil))
}
