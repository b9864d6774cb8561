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

package player

import (
	"context"
	"fmt"
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/livekit/playback/pkg/config"
	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/gstreamer/mock"
	"github.com/livekit/playback/pkg/types"
)

type testBackend struct {
	registry *gstreamer.Registry
	maker    *mock.Maker
	bus      gstreamer.Bus
	started  atomic.Bool
	stopped  atomic.Bool
}

func newTestBackend() *testBackend {
	r, m := mock.NewRegistry()
	return &testBackend{registry: r, maker: m}
}

func (b *testBackend) Registry() *gstreamer.Registry {
	return b.registry
}

func (b *testBackend) Attach(_ gstreamer.Bin, bus gstreamer.Bus) error {
	b.bus = bus
	return nil
}

func (b *testBackend) Start() error {
	b.started.Store(true)
	return nil
}

func (b *testBackend) Stop() {
	b.stopped.Store(true)
}

func (b *testBackend) DebugDot() string {
	return "digraph pipeline {}"
}

func newTestConfig(t *testing.T, body string) *config.PlaybackConfig {
	conf, err := config.NewPlaybackConfig(body)
	require.NoError(t, err)
	return conf
}

func newTestPlayer(t *testing.T, body string) (*Player, *testBackend) {
	backend := newTestBackend()
	p, err := New(context.Background(), newTestConfig(t, body), backend)
	require.NoError(t, err)
	return p, backend
}

func play(p *Player) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- p.Play(context.Background())
	}()
	return done
}

func waitRunning(t *testing.T, p *Player) {
	require.Eventually(t, func() bool {
		return p.lifecycle.State() == LifecycleRunning
	}, time.Second, 5*time.Millisecond)
}

func TestNew(t *testing.T) {
	t.Run("no uri", func(t *testing.T) {
		_, err := New(context.Background(), newTestConfig(t, ""), newTestBackend())
		require.ErrorIs(t, err, errors.ErrNoURI)
	})

	t.Run("no config", func(t *testing.T) {
		_, err := New(context.Background(), nil, newTestBackend())
		require.ErrorIs(t, err, errors.ErrNoConfig)
	})

	t.Run("missing sink factory", func(t *testing.T) {
		conf := newTestConfig(t, "uri: file:///media/a.mp4\naudio_sink: nosuchsink\n")
		_, err := New(context.Background(), conf, newTestBackend())
		require.Error(t, err)
	})

	t.Run("configured", func(t *testing.T) {
		p, backend := newTestPlayer(t, `
uri: file:///media/a.mp4
suburi: file:///media/a.srt
flags: [audio, video, text, soft-volume]
video_sink: xvimagesink
volume: 0.5
mute: true
av_offset: 20ms
subtitle_encoding: UTF-8
connection_speed: 1000
`)
		pb := p.PlayBin()
		require.Equal(t, "file:///media/a.mp4", pb.GetURI())
		require.Equal(t, "file:///media/a.srt", pb.GetSubURI())
		require.Equal(t, types.FlagAudio|types.FlagVideo|types.FlagText|types.FlagSoftVolume, pb.GetFlags())
		require.Equal(t, 0.5, pb.GetVolume())
		require.True(t, pb.GetMute())
		require.Equal(t, 20*time.Millisecond, pb.GetAVOffset())
		require.Equal(t, "UTF-8", pb.GetSubtitleEncoding())
		require.Equal(t, uint64(1000), pb.GetConnectionSpeed())
		require.Equal(t, backend.maker.Last("xvimagesink"), pb.GetSink(types.MediaVideo))
		require.NotNil(t, backend.bus)
	})
}

func TestPlayUntilEOS(t *testing.T) {
	p, backend := newTestPlayer(t, "uri: file:///media/a.mp4\n")

	eos := atomic.NewInt32(0)
	p.Callbacks().AddOnEOS(func() {
		eos.Inc()
	})

	done := play(p)
	waitRunning(t, p)
	require.True(t, backend.started.Load())
	require.Equal(t, gstreamer.StatePlaying, p.PlayBin().GetState())
	require.Equal(t, "file:///media/a.mp4", p.PlayBin().GetCurrentURI())

	p.PlayBin().Post(&gstreamer.Message{Type: gstreamer.MessageEOS, Source: p.PlayBin().Bin()})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		require.FailNow(t, "player did not stop after eos")
	}
	require.Equal(t, int32(1), eos.Load())
	require.True(t, backend.stopped.Load())
	require.Equal(t, LifecycleFinished, p.lifecycle.State())
	require.Equal(t, gstreamer.StateNull, p.PlayBin().GetState())
}

func TestErrorStopsPlayback(t *testing.T) {
	dir := t.TempDir()
	p, backend := newTestPlayer(t, fmt.Sprintf("uri: file:///media/a.mp4\ndebug:\n  enable_profiling: true\n  path_prefix: %s\n", dir))

	done := play(p)
	waitRunning(t, p)

	p.PlayBin().Post(gstreamer.NewErrorMessage(p.PlayBin().Bin(), errors.New("decoder failed"), "dec.c(42)"))

	select {
	case err := <-done:
		require.Error(t, err)
		require.True(t, errors.IsFatal(err))
		require.Contains(t, err.Error(), "decoder failed")
	case <-time.After(time.Second):
		require.FailNow(t, "player did not stop after error")
	}
	require.True(t, backend.stopped.Load())
	_, failed := p.lifecycle.Since(LifecycleFailed)
	require.True(t, failed)
	require.Equal(t, LifecycleFinished, p.lifecycle.State())

	conf := p.conf
	_, err := os.Stat(path.Join(dir, conf.PlayerID+".dot"))
	require.NoError(t, err)
	_, err = os.Stat(path.Join(dir, conf.PlayerID+".prof"))
	require.NoError(t, err)
}

func TestStop(t *testing.T) {
	p, backend := newTestPlayer(t, "uri: file:///media/a.mp4\n")

	done := play(p)
	waitRunning(t, p)

	p.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		require.FailNow(t, "player did not stop")
	}
	require.True(t, backend.stopped.Load())

	// a stopped player cannot be restarted
	require.ErrorIs(t, p.Play(context.Background()), errors.ErrPlayerClosed)
}

func TestPlaylistAdvance(t *testing.T) {
	p, _ := newTestPlayer(t, `
uri: file:///media/a.mp4
playlist:
  - file:///media/b.mp4
  - file:///media/c.mp4
`)
	require.Equal(t, 3, p.playlist.Len())
	require.Equal(t, "file:///media/a.mp4", p.PlayBin().GetURI())

	p.onAboutToFinish()
	require.Equal(t, "file:///media/b.mp4", p.PlayBin().GetURI())
	require.Equal(t, 1, p.playlist.Position())

	p.onAboutToFinish()
	require.Equal(t, "file:///media/c.mp4", p.PlayBin().GetURI())

	// exhausted, the last uri stays queued
	p.onAboutToFinish()
	require.Equal(t, "file:///media/c.mp4", p.PlayBin().GetURI())
	require.Equal(t, 2, p.playlist.Position())
}

func TestApplyConfig(t *testing.T) {
	p, backend := newTestPlayer(t, "uri: file:///media/a.mp4\n")
	cookie := backend.registry.Cookie()

	conf := newTestConfig(t, `
uri: file:///media/a.mp4
flags: [audio, soft-volume]
volume: 2.0
text_offset: -100ms
subtitle_font_desc: Sans 18
factories:
  - name: fancysink
    rank: 512
    klass: Sink/Video
    sink_caps: video/x-raw
`)
	p.ApplyConfig(conf)

	pb := p.PlayBin()
	require.Equal(t, types.FlagAudio|types.FlagSoftVolume, pb.GetFlags())
	require.Equal(t, 2.0, pb.GetVolume())
	require.Equal(t, -100*time.Millisecond, pb.GetTextOffset())
	require.Equal(t, "Sans 18", pb.GetSubtitleFontDesc())
	require.NotNil(t, backend.registry.Find("fancysink"))
	require.NotEqual(t, cookie, backend.registry.Cookie())
}

func TestPlaylist(t *testing.T) {
	pl := NewPlaylist([]string{"a"})
	uri, ok := pl.Next()
	require.True(t, ok)
	require.Equal(t, "a", uri)

	_, ok = pl.Next()
	require.False(t, ok)

	pl.Append("b")
	uri, ok = pl.Next()
	require.True(t, ok)
	require.Equal(t, "b", uri)
	require.Equal(t, 1, pl.Position())
}
