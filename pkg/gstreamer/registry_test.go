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

func TestRegistry(t *testing.T) {
	r, _ := mock.NewRegistry()

	t.Run("find", func(t *testing.T) {
		f := r.Find("autoaudiosink")
		require.NotNil(t, f)
		require.True(t, f.IsSink())
		require.True(t, f.IsAudio())
		require.False(t, f.IsDecoder())
		require.True(t, f.CanSinkCaps(gstreamer.MustParseCaps("audio/x-raw, rate=48000")))
		require.Nil(t, r.Find("nosuchsink"))
	})

	t.Run("list", func(t *testing.T) {
		sinks := r.List(func(f *gstreamer.Factory) bool {
			return f.IsSink() && f.IsAudio()
		})
		names := make([]string, 0, len(sinks))
		for _, f := range sinks {
			names = append(names, f.Name)
		}
		require.Equal(t, []string{"pulsesink", "autoaudiosink", "alsasink"}, names)
	})

	t.Run("make", func(t *testing.T) {
		el, err := r.Make("queue", "q")
		require.NoError(t, err)
		require.Equal(t, "q", el.GetName())
		require.Equal(t, "queue", el.GetFactoryName())

		_, err = r.Make("nosuchelement", "")
		require.Error(t, err)
		require.Equal(t, errors.KindMissingElement, errors.KindOf(err))
	})
}

func TestRegistryCookie(t *testing.T) {
	r, m := mock.NewRegistry()

	builds := 0
	cache := gstreamer.NewFactoryCache(func(r *gstreamer.Registry) []*gstreamer.Factory {
		builds++
		return r.List(func(f *gstreamer.Factory) bool { return f.IsSink() })
	})

	first := cache.Get(r)
	_ = cache.Get(r)
	require.Equal(t, 1, builds)

	cookie := r.Cookie()
	mock.Remove(r, m, "pulsesink")
	require.NotEqual(t, cookie, r.Cookie())

	second := cache.Get(r)
	require.Equal(t, 2, builds)
	require.Len(t, second, len(first)-1)

	require.NoError(t, r.Register(&gstreamer.Factory{Name: "mysink", Rank: 1000, Klass: "Sink/Audio", SinkCaps: "audio/x-raw"}))
	third := cache.Get(r)
	require.Equal(t, 3, builds)
	require.Equal(t, "mysink", third[0].Name)

	cache.Invalidate()
	_ = cache.Get(r)
	require.Equal(t, 4, builds)

	require.Error(t, r.Register(&gstreamer.Factory{Name: "broken", SinkCaps: "nonsense"}))
}
