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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/types"
)

const testConfig = `
logging:
  level: debug
flags: [audio, video, vis]
uri: file:///media/a.mkv
playlist:
  - file:///media/b.mkv
  - file:///media/c.mkv
audio_sink: alsasink
audio_stream_combiner: audiomixer
volume: 0.5
av_offset: 40ms
current_audio: 1
factories:
  - name: mysink
    rank: 300
    klass: Sink/Audio
    sink_caps: audio/x-raw
`

func TestNewPlaybackConfig(t *testing.T) {
	conf, err := NewPlaybackConfig(testConfig)
	require.NoError(t, err)

	require.NotEmpty(t, conf.PlayerID)
	require.Equal(t, types.FlagAudio|types.FlagVideo|types.FlagVis, conf.PlayFlags)
	require.Equal(t, []string{"file:///media/a.mkv", "file:///media/b.mkv", "file:///media/c.mkv"}, conf.URIs())
	require.Equal(t, 0.5, conf.Volume)
	require.Equal(t, 40*time.Millisecond, conf.AVOffset)
	require.Equal(t, 1, conf.CurrentAudio)
	require.Equal(t, -1, conf.CurrentVideo)
	require.Equal(t, -1, conf.BufferSize)
	require.Len(t, conf.Factories, 1)
	require.Equal(t, "Sink/Audio", conf.Factories[0].Klass)
}

func TestDefaults(t *testing.T) {
	conf, err := parsePlaybackConfig("")
	require.NoError(t, err)
	require.Equal(t, types.DefaultFlags, conf.PlayFlags)
	require.Equal(t, defaultVolume, conf.Volume)
	require.Equal(t, time.Duration(-1), conf.BufferDuration)
	require.Empty(t, conf.URIs())
}

func TestInvalidConfig(t *testing.T) {
	t.Run("volume", func(t *testing.T) {
		_, err := parsePlaybackConfig("volume: 11")
		require.Error(t, err)
		require.Equal(t, errors.KindConfiguration, errors.KindOf(err))
	})

	t.Run("flags", func(t *testing.T) {
		_, err := parsePlaybackConfig("flags: [audio, surround]")
		require.Error(t, err)
	})

	t.Run("yaml", func(t *testing.T) {
		_, err := parsePlaybackConfig("volume: [")
		require.Error(t, err)
	})

	t.Run("factory", func(t *testing.T) {
		_, err := parsePlaybackConfig("factories:\n  - rank: 1\n")
		require.Error(t, err)
	})
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playback.yaml")
	require.NoError(t, os.WriteFile(path, []byte("volume: 1"), 0644))

	initial, err := parsePlaybackConfig("volume: 1")
	require.NoError(t, err)
	initial.PlayerID = "PL_watch"

	w := NewWatcher(path, initial)
	w.debounce = 10 * time.Millisecond

	reloaded := make(chan *PlaybackConfig, 1)
	w.OnReload(func(conf *PlaybackConfig) {
		reloaded <- conf
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(path, []byte("volume: 2\nmute: true"), 0644))

	select {
	case conf := <-reloaded:
		require.Equal(t, 2.0, conf.Volume)
		require.True(t, conf.Mute)
		require.Equal(t, "PL_watch", conf.PlayerID)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
	require.Equal(t, 2.0, w.Get().Volume)
}

func TestWatcherReloadError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playback.yaml")
	require.NoError(t, os.WriteFile(path, []byte("volume: 42"), 0644))

	w := NewWatcher(path, nil)
	require.Error(t, w.Reload())
	require.Nil(t, w.Get())
}
