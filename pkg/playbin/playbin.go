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

package playbin

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/livekit/protocol/logger"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/logging"
	"github.com/livekit/playback/pkg/playsink"
	"github.com/livekit/playback/pkg/stats"
	"github.com/livekit/playback/pkg/types"
)

var tracer = otel.Tracer("github.com/livekit/playback/pkg/playbin")

// PlayBin plays a uri through two double-buffered source groups feeding
// one playsink.
type PlayBin struct {
	lock      gstreamer.RecMutex
	registry  *gstreamer.Registry
	bin       gstreamer.Bin
	bus       gstreamer.Bus
	callbacks *gstreamer.Callbacks
	monitor   *stats.Monitor
	logger    logger.Logger
	subLogger logger.Logger

	playsink *playsink.PlaySink
	elements *gstreamer.FactoryCache[*elementLists]

	groups   [2]*sourceGroup
	curr     *sourceGroup
	next     *sourceGroup
	playing  *sourceGroup
	switches uint64

	shutdown     atomic.Bool
	live         atomic.Bool
	state        gstreamer.State
	targetState  gstreamer.State
	asyncPending bool

	// requested stream index per media type, -1 selects automatically
	current   [types.MediaLast]int
	sinks     [types.MediaLast]gstreamer.Element
	combiners [types.MediaLast]gstreamer.Element

	connectionSpeed   uint64
	bufferSize        int
	bufferDuration    time.Duration
	ringBufferMaxSize uint64
	subtitleEncoding  string

	contexts map[string]*gstreamer.Context
}

func New(registry *gstreamer.Registry, bus gstreamer.Bus, callbacks *gstreamer.Callbacks, monitor *stats.Monitor) (*PlayBin, error) {
	el, err := registry.Make("bin", "playbin")
	if err != nil {
		return nil, err
	}
	bin, ok := el.(gstreamer.Bin)
	if !ok {
		return nil, errors.ErrGstPipelineError(fmt.Errorf("playbin is not a bin"))
	}
	if callbacks == nil {
		callbacks = &gstreamer.Callbacks{}
	}

	l := logger.GetLogger().WithValues("component", "playbin")
	pb := &PlayBin{
		registry:       registry,
		bin:            bin,
		bus:            bus,
		callbacks:      callbacks,
		monitor:        monitor,
		logger:         l,
		subLogger:      logging.NewDowngradeLogger(l),
		elements:       gstreamer.NewFactoryCache(buildElementLists),
		state:          gstreamer.StateNull,
		targetState:    gstreamer.StateNull,
		bufferSize:     -1,
		bufferDuration: -1,
		contexts:       make(map[string]*gstreamer.Context),
	}
	for i := range pb.current {
		pb.current[i] = -1
	}
	pb.groups[0], pb.groups[1] = newSourceGroup(0), newSourceGroup(1)
	pb.curr, pb.next = pb.groups[0], pb.groups[1]
	pb.shutdown.Store(true)

	ps, err := playsink.New(registry, gstreamer.BusFunc(pb.Post), monitor)
	if err != nil {
		return nil, err
	}
	// the playsink follows the playbin state explicitly
	ps.Bin().SetLockedState(true)
	if err = bin.Add(ps.Bin()); err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}
	pb.playsink = ps

	return pb, nil
}

func (pb *PlayBin) Bin() gstreamer.Bin {
	return pb.bin
}

func (pb *PlayBin) PlaySink() *playsink.PlaySink {
	return pb.playsink
}

func (pb *PlayBin) Callbacks() *gstreamer.Callbacks {
	return pb.callbacks
}

func (pb *PlayBin) target() gstreamer.State {
	pb.lock.Lock()
	defer pb.lock.Unlock()
	return pb.targetState
}

func (pb *PlayBin) GetState() gstreamer.State {
	pb.lock.Lock()
	defer pb.lock.Unlock()
	return pb.state
}

// SetState walks the playbin through every intermediate state up or down
// to the requested one.
func (pb *PlayBin) SetState(state gstreamer.State) (gstreamer.StateChangeReturn, error) {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	ret := gstreamer.StateChangeSuccess
	for pb.state != state {
		next := pb.state + 1
		if state < pb.state {
			next = pb.state - 1
		}
		r, err := pb.ChangeState(pb.state, next)
		if err != nil {
			return r, err
		}
		if r != gstreamer.StateChangeSuccess {
			ret = r
		}
	}
	return ret, nil
}

// ChangeState performs one state transition.
func (pb *PlayBin) ChangeState(from, to gstreamer.State) (gstreamer.StateChangeReturn, error) {
	_, span := tracer.Start(context.Background(), "PlayBin.ChangeState", trace.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
	defer span.End()

	ret, err := pb.changeState(from, to)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return ret, err
}

func (pb *PlayBin) changeState(from, to gstreamer.State) (gstreamer.StateChangeReturn, error) {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	pb.logger.Debugw("changing state", "from", from, "to", to)
	pb.targetState = to

	switch {
	case from == gstreamer.StateNull && to == gstreamer.StateReady:
		for _, g := range pb.groups {
			g.streamChangedPending = false
		}
	case from == gstreamer.StateReady && to == gstreamer.StatePaused:
		pb.shutdown.Store(false)
		pb.doAsyncStart()
	case from == gstreamer.StatePaused && to == gstreamer.StateReady:
		pb.shutdown.Store(true)
	case from == gstreamer.StateReady && to == gstreamer.StateNull:
		// an aborted start never reached paused to ready
		if !pb.shutdown.Load() {
			pb.shutdown.Store(true)
			pb.saveCurrentAsNext()
		}
	}

	ret, err := pb.playsink.ChangeState(from, to)
	if err == nil {
		if e := pb.bin.SetState(to); e != nil {
			err = errors.ErrStateChangeFailed(pb.bin.GetName(), to.String())
		}
	}
	if err != nil {
		if from == gstreamer.StateReady && to == gstreamer.StatePaused {
			pb.shutdown.Store(true)
			pb.doAsyncDone()
		}
		pb.logger.Warnw("state change failed", err, "from", from, "to", to)
		return gstreamer.StateChangeFailure, err
	}

	switch {
	case from == gstreamer.StateReady && to == gstreamer.StatePaused:
		if _, err = pb.activateNext(gstreamer.StatePaused); err != nil {
			pb.shutdown.Store(true)
			pb.doAsyncDone()
			_, _ = pb.playsink.ChangeState(to, from)
			_ = pb.bin.SetState(from)
			pb.targetState = from
			return gstreamer.StateChangeFailure, err
		}
		ret = gstreamer.StateChangeAsync
	case from == gstreamer.StatePlaying && to == gstreamer.StatePaused:
		pb.doAsyncDone()
	case from == gstreamer.StatePaused && to == gstreamer.StateReady:
		pb.live.Store(false)
		pb.saveCurrentAsNext()
	case from == gstreamer.StateReady && to == gstreamer.StateNull:
		pb.releaseGroups()
	}

	if ret == gstreamer.StateChangeNoPreroll {
		pb.live.Store(true)
	}
	pb.state = to
	return ret, nil
}

// releaseGroups frees the cached front ends of both groups and the
// elements the playbin was configured with.
func (pb *PlayBin) releaseGroups() {
	var eg errgroup.Group
	for _, g := range pb.groups {
		eg.Go(g.release)
	}
	if err := eg.Wait(); err != nil {
		pb.logger.Warnw("failed to release groups", err)
	}

	for _, t := range types.MediaTypes {
		for _, el := range []gstreamer.Element{pb.sinks[t], pb.combiners[t]} {
			if el != nil && el.GetParent() == nil {
				_ = el.SetState(gstreamer.StateNull)
			}
		}
	}

	for name, ctx := range pb.contexts {
		if !ctx.Persistent {
			delete(pb.contexts, name)
		}
	}
}

// SetFlags forwards the flags to the playsink. Download and buffering are
// applied to front ends on their next activation.
func (pb *PlayBin) SetFlags(flags types.PlayFlags) {
	pb.playsink.SetFlags(flags)
	pb.playsink.RequestReconfigure()
}

func (pb *PlayBin) GetFlags() types.PlayFlags {
	return pb.playsink.GetFlags()
}

func (pb *PlayBin) SetVolume(volume float64) {
	pb.playsink.SetVolume(volume)
}

func (pb *PlayBin) GetVolume() float64 {
	return pb.playsink.GetVolume()
}

func (pb *PlayBin) SetMute(mute bool) {
	pb.playsink.SetMute(mute)
}

func (pb *PlayBin) GetMute() bool {
	return pb.playsink.GetMute()
}

func (pb *PlayBin) SetAVOffset(offset time.Duration) {
	pb.playsink.SetAVOffset(offset)
}

func (pb *PlayBin) GetAVOffset() time.Duration {
	return pb.playsink.GetAVOffset()
}

func (pb *PlayBin) SetTextOffset(offset time.Duration) {
	pb.playsink.SetTextOffset(offset)
}

func (pb *PlayBin) GetTextOffset() time.Duration {
	return pb.playsink.GetTextOffset()
}

func (pb *PlayBin) SetSubtitleFontDesc(desc string) {
	pb.playsink.SetFontDesc(desc)
}

func (pb *PlayBin) GetSubtitleFontDesc() string {
	return pb.playsink.GetFontDesc()
}

// SetSubtitleEncoding applies to the playsink and the running front ends.
func (pb *PlayBin) SetSubtitleEncoding(encoding string) {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	pb.subtitleEncoding = encoding
	pb.playsink.SetSubtitleEncoding(encoding)
	for _, g := range pb.groups {
		g.lock.Lock()
		for _, dec := range []gstreamer.Element{g.frontEnd, g.subFrontEnd} {
			if dec != nil && dec.HasProperty("subtitle-encoding") {
				_ = dec.SetProperty("subtitle-encoding", encoding)
			}
		}
		g.lock.Unlock()
	}
}

func (pb *PlayBin) GetSubtitleEncoding() string {
	pb.lock.Lock()
	defer pb.lock.Unlock()
	return pb.subtitleEncoding
}

// SetConnectionSpeed sets the network speed hint in kbps.
func (pb *PlayBin) SetConnectionSpeed(kbps uint64) {
	pb.lock.Lock()
	pb.connectionSpeed = kbps * 1000
	pb.lock.Unlock()
}

func (pb *PlayBin) GetConnectionSpeed() uint64 {
	pb.lock.Lock()
	defer pb.lock.Unlock()
	return pb.connectionSpeed / 1000
}

// SetBufferSize sets the buffering size in bytes, -1 for the default.
func (pb *PlayBin) SetBufferSize(size int) {
	pb.lock.Lock()
	pb.bufferSize = size
	pb.lock.Unlock()
}

func (pb *PlayBin) GetBufferSize() int {
	pb.lock.Lock()
	defer pb.lock.Unlock()
	return pb.bufferSize
}

// SetBufferDuration sets the buffering duration, -1 for the default.
func (pb *PlayBin) SetBufferDuration(d time.Duration) {
	pb.lock.Lock()
	pb.bufferDuration = d
	pb.lock.Unlock()
}

func (pb *PlayBin) GetBufferDuration() time.Duration {
	pb.lock.Lock()
	defer pb.lock.Unlock()
	return pb.bufferDuration
}

func (pb *PlayBin) SetRingBufferMaxSize(size uint64) {
	pb.lock.Lock()
	pb.ringBufferMaxSize = size
	pb.lock.Unlock()
}

func (pb *PlayBin) GetRingBufferMaxSize() uint64 {
	pb.lock.Lock()
	defer pb.lock.Unlock()
	return pb.ringBufferMaxSize
}

// SetSink configures the sink for a media type. A nil sink lets the
// playsink pick one.
func (pb *PlayBin) SetSink(mediaType types.MediaType, sink gstreamer.Element) {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	pb.sinks[mediaType] = sink
	pb.playsink.SetSink(mediaType, sink)
}

// GetSink returns the sink in use, or the configured one.
func (pb *PlayBin) GetSink(mediaType types.MediaType) gstreamer.Element {
	return pb.playsink.GetSink(mediaType)
}

func (pb *PlayBin) SetVisPlugin(vis gstreamer.Element) {
	pb.playsink.SetVisPlugin(vis)
}

func (pb *PlayBin) GetVisPlugin() gstreamer.Element {
	return pb.playsink.GetVisPlugin()
}

func (pb *PlayBin) SetFilter(mediaType types.MediaType, filter gstreamer.Element) {
	pb.playsink.SetFilter(mediaType, filter)
}

func (pb *PlayBin) GetFilter(mediaType types.MediaType) gstreamer.Element {
	return pb.playsink.GetFilter(mediaType)
}

// SetStreamCombiner configures a custom combiner for a media type. It is
// used by combines created after the call.
func (pb *PlayBin) SetStreamCombiner(mediaType types.MediaType, combiner gstreamer.Element) {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	pb.combiners[mediaType] = combiner
}

func (pb *PlayBin) GetStreamCombiner(mediaType types.MediaType) gstreamer.Element {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	return pb.combiners[mediaType]
}

func (pb *PlayBin) GetLastSample() (*gstreamer.Sample, error) {
	return pb.playsink.GetLastSample()
}

func (pb *PlayBin) ConvertSample(to *gstreamer.Caps) (*gstreamer.Sample, error) {
	return pb.playsink.ConvertSample(to)
}
