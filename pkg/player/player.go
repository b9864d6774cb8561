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
	"net/http"

	"github.com/frostbyte73/core"
	"github.com/linkdata/deadlock"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/livekit/playback/pkg/config"
	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/logging"
	"github.com/livekit/playback/pkg/playbin"
	"github.com/livekit/playback/pkg/pprof"
	"github.com/livekit/playback/pkg/stats"
	"github.com/livekit/playback/pkg/types"
	"github.com/livekit/playback/pkg/util"
	"github.com/livekit/protocol/logger"
)

var tracer = otel.Tracer("github.com/livekit/playback/pkg/player")

// Backend provides the element registry and the top level pipeline.
type Backend interface {
	Registry() *gstreamer.Registry
	// Attach places bin under the pipeline and delivers its bus messages to bus.
	Attach(bin gstreamer.Bin, bus gstreamer.Bus) error
	Start() error
	Stop()
	DebugDot() string
}

type Player struct {
	conf      *config.PlaybackConfig
	backend   Backend
	registry  *gstreamer.Registry
	callbacks *gstreamer.Callbacks
	pb        *playbin.PlayBin
	playlist  *Playlist
	events    *logging.MessageLogger
	logger    logger.Logger

	prometheus *prometheus.Registry
	monitor    *stats.Monitor
	promServer *http.Server

	mu        deadlock.Mutex
	lifecycle *Lifecycle
	eos       core.Fuse
	failed    core.Fuse
	stopped   core.Fuse
}

func New(ctx context.Context, conf *config.PlaybackConfig, backend Backend) (*Player, error) {
	_, span := tracer.Start(ctx, "Player.New")
	defer span.End()

	if conf == nil {
		return nil, errors.ErrNoConfig
	}
	uris := conf.URIs()
	if len(uris) == 0 {
		return nil, errors.ErrNoURI
	}

	promRegistry := prometheus.NewRegistry()
	l := logger.GetLogger().WithValues("playerID", conf.PlayerID)
	p := &Player{
		conf:       conf,
		backend:    backend,
		registry:   backend.Registry(),
		callbacks:  &gstreamer.Callbacks{},
		playlist:   NewPlaylist(uris),
		events:     logging.NewMessageLogger(conf.NewEventLogger()),
		logger:     l,
		lifecycle:  NewLifecycle(l),
		prometheus: promRegistry,
		monitor:    stats.NewMonitor(promRegistry, conf.PlayerID),
	}
	p.callbacks.SetOnError(p.OnError)
	p.callbacks.AddOnWarning(func(err error) {
		p.logger.Warnw("playback warning", err)
	})
	p.callbacks.AddOnAboutToFinish(p.onAboutToFinish)
	p.callbacks.AddOnStreamChanged(func(mediaType types.MediaType) {
		p.logger.Debugw("streams changed", "type", mediaType)
	})
	p.callbacks.AddOnTagsChanged(func(mediaType types.MediaType, idx int) {
		p.logger.Debugw("tags changed", "type", mediaType, "stream", idx)
	})

	if len(conf.Factories) > 0 {
		if err := p.registry.Register(conf.Factories...); err != nil {
			return nil, err
		}
	}

	pb, err := playbin.New(p.registry, p, p.callbacks, p.monitor)
	if err != nil {
		return nil, err
	}
	p.pb = pb

	if err = backend.Attach(pb.Bin(), gstreamer.BusFunc(pb.Post)); err != nil {
		return nil, err
	}
	if err = p.configure(conf); err != nil {
		return nil, err
	}

	first, _ := p.playlist.Next()
	if err = pb.SetURI(first); err != nil {
		return nil, err
	}
	if conf.SubURI != "" {
		pb.SetSubURI(conf.SubURI)
	}
	return p, nil
}

func (p *Player) PlayBin() *playbin.PlayBin {
	return p.pb
}

func (p *Player) Callbacks() *gstreamer.Callbacks {
	return p.callbacks
}

func (p *Player) Gatherer() prometheus.Gatherer {
	return p.prometheus
}

// configure builds the configured elements and applies the properties.
func (p *Player) configure(conf *config.PlaybackConfig) error {
	for _, el := range []struct {
		factory   string
		name      string
		mediaType types.MediaType
		set       func(types.MediaType, gstreamer.Element)
	}{
		{conf.AudioSink, "audiosink", types.MediaAudio, p.pb.SetSink},
		{conf.VideoSink, "videosink", types.MediaVideo, p.pb.SetSink},
		{conf.TextSink, "textsink", types.MediaText, p.pb.SetSink},
		{conf.AudioFilter, "audiofilter", types.MediaAudio, p.pb.SetFilter},
		{conf.VideoFilter, "videofilter", types.MediaVideo, p.pb.SetFilter},
		{conf.AudioStreamCombiner, "audiocombiner", types.MediaAudio, p.pb.SetStreamCombiner},
		{conf.VideoStreamCombiner, "videocombiner", types.MediaVideo, p.pb.SetStreamCombiner},
		{conf.TextStreamCombiner, "textcombiner", types.MediaText, p.pb.SetStreamCombiner},
	} {
		if el.factory == "" {
			continue
		}
		e, err := p.registry.Make(el.factory, el.name)
		if err != nil {
			return err
		}
		el.set(el.mediaType, e)
	}

	if conf.VisPlugin != "" {
		vis, err := p.registry.Make(conf.VisPlugin, "vis")
		if err != nil {
			return err
		}
		p.pb.SetVisPlugin(vis)
	}

	p.pb.SetConnectionSpeed(conf.ConnectionSpeed)
	p.pb.SetBufferSize(conf.BufferSize)
	p.pb.SetBufferDuration(conf.BufferDuration)
	p.pb.SetRingBufferMaxSize(conf.RingBufferMaxSize)
	p.applyProperties(conf)
	return nil
}

// ApplyConfig updates a running player from a reloaded config.
func (p *Player) ApplyConfig(conf *config.PlaybackConfig) {
	if conf == nil {
		return
	}

	p.mu.Lock()
	old := p.conf
	p.conf = conf
	p.mu.Unlock()

	if len(conf.Factories) > 0 {
		if err := p.registry.Register(conf.Factories...); err != nil {
			p.logger.Warnw("failed to register factories", err)
		}
	}
	p.applyProperties(conf)

	for _, s := range []struct {
		mediaType types.MediaType
		old, idx  int
	}{
		{types.MediaAudio, old.CurrentAudio, conf.CurrentAudio},
		{types.MediaVideo, old.CurrentVideo, conf.CurrentVideo},
		{types.MediaText, old.CurrentText, conf.CurrentText},
	} {
		if s.old == s.idx {
			continue
		}
		if err := p.pb.SetCurrentStream(s.mediaType, s.idx); err != nil {
			p.logger.Warnw("failed to select stream", err, "type", s.mediaType, "stream", s.idx)
		}
	}
	p.logger.Infow("config applied", "flags", conf.PlayFlags.String(), "volume", conf.Volume)
}

func (p *Player) applyProperties(conf *config.PlaybackConfig) {
	p.pb.SetFlags(conf.PlayFlags)
	p.pb.SetVolume(conf.Volume)
	p.pb.SetMute(conf.Mute)
	p.pb.SetAVOffset(conf.AVOffset)
	p.pb.SetTextOffset(conf.TextOffset)
	if conf.SubtitleEncoding != "" {
		p.pb.SetSubtitleEncoding(conf.SubtitleEncoding)
	}
	if conf.SubtitleFontDesc != "" {
		p.pb.SetSubtitleFontDesc(conf.SubtitleFontDesc)
	}
}

// Play runs until the playlist ends, an error occurs, ctx is done or Stop is called.
func (p *Player) Play(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Player.Play")
	defer span.End()

	defer p.Stop()

	if _, ok := p.lifecycle.Upgrade(LifecycleStarted); !ok {
		return errors.ErrPlayerClosed
	}

	promServer, err := stats.StartServer(p.conf.PrometheusPort, p.prometheus)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.promServer = promServer
	p.mu.Unlock()

	if err = p.backend.Start(); err != nil {
		return err
	}
	if _, err = p.pb.SetState(gstreamer.StatePlaying); err != nil {
		p.OnError(err)
		return p.Err()
	}
	p.lifecycle.Upgrade(LifecycleRunning)
	p.logger.Infow("playing", "uri", util.RedactURI(p.pb.GetURI()))

	select {
	case <-ctx.Done():
		p.logger.Debugw("context done, stopping")
	case <-p.eos.Watch():
		p.lifecycle.Upgrade(LifecycleEOS)
		p.logger.Infow("playback finished")
	case <-p.failed.Watch():
	case <-p.stopped.Watch():
	}
	return p.Err()
}

func (p *Player) Stop() {
	p.stopped.Once(func() {
		p.lifecycle.Upgrade(LifecycleStopping)

		if _, err := p.pb.SetState(gstreamer.StateNull); err != nil {
			p.logger.Warnw("failed to stop playbin", err)
		}
		p.backend.Stop()

		p.mu.Lock()
		promServer := p.promServer
		p.mu.Unlock()
		if promServer != nil {
			_ = promServer.Close()
		}

		if err := p.callbacks.OnStop(); err != nil {
			p.logger.Warnw("stop callback failed", err)
		}
		p.events.Sync()
		p.lifecycle.Upgrade(LifecycleFinished)
	})
}

func (p *Player) Err() error {
	return p.lifecycle.Err()
}

func (p *Player) OnError(err error) {
	p.logger.Errorw("player error", err)

	if !p.lifecycle.Fail(err) {
		return
	}

	p.mu.Lock()
	conf := p.conf
	p.mu.Unlock()

	if conf.Debug.EnableProfiling {
		if _, dbgErr := pprof.WriteDebugInfo(conf.Debug.PathPrefix, conf.PlayerID, p.backend.DebugDot()); dbgErr != nil {
			p.logger.Debugw("debug info incomplete", "error", dbgErr)
		}
	}
	p.failed.Break()
}

// Post receives the messages forwarded by the playbin.
func (p *Player) Post(msg *gstreamer.Message) bool {
	p.events.Log(msg)

	switch msg.Type {
	case gstreamer.MessageError:
		err := msg.Err
		if err == nil {
			err = errors.ErrGstPipelineError(errors.New(msg.Debug))
		}
		p.callbacks.OnError(errors.Fatal(err))

	case gstreamer.MessageWarning:
		if msg.Err != nil {
			p.callbacks.OnWarning(msg.Err)
		}

	case gstreamer.MessageEOS:
		p.callbacks.OnEOS()
		p.eos.Break()
	}
	return true
}

func (p *Player) onAboutToFinish() {
	uri, ok := p.playlist.Next()
	if !ok {
		p.logger.Debugw("playlist exhausted")
		return
	}
	p.logger.Infow("queueing next uri", "uri", util.RedactURI(uri), "position", p.playlist.Position())
	if err := p.pb.SetURI(uri); err != nil {
		p.logger.Warnw("failed to queue next uri", err, "uri", util.RedactURI(uri))
	}
}
