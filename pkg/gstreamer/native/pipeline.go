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
	"fmt"

	"github.com/frostbyte73/core"
	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/protocol/logger"
)

// Pipeline is the top level native bin. It owns the clock and the bus and
// runs the main loop delivering bus messages.
type Pipeline struct {
	maker    *Maker
	pipeline *gst.Pipeline
	loop     *glib.MainLoop

	started core.Fuse
	stopped core.Fuse
	running chan struct{}
}

func NewPipeline(m *Maker, name string) (*Pipeline, error) {
	pipeline, err := gst.NewPipeline(name)
	if err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}

	return &Pipeline{
		maker:    m,
		pipeline: pipeline,
		loop:     glib.NewMainLoop(glib.MainContextDefault(), false),
		running:  make(chan struct{}),
	}, nil
}

// Add puts bin under the pipeline with its state locked, the caller drives it.
func (p *Pipeline) Add(bin gstreamer.Bin) error {
	el := unwrapElement(bin)
	if el == nil {
		return errors.ErrGstPipelineError(fmt.Errorf("%s is not a native bin", bin.GetName()))
	}
	el.SetLockedState(true)
	if err := p.pipeline.Add(el); err != nil {
		return errors.ErrGstPipelineError(err)
	}
	return nil
}

// SetWatch delivers every bus message to bus, converted.
func (p *Pipeline) SetWatch(bus gstreamer.Bus) {
	p.pipeline.GetPipelineBus().AddWatch(func(msg *gst.Message) bool {
		if m := p.convert(msg); m != nil {
			bus.Post(m)
		}
		return true
	})
}

// Start runs the main loop and moves the pipeline itself to playing.
func (p *Pipeline) Start() error {
	p.started.Once(func() {
		go func() {
			p.loop.Run()
			close(p.running)
		}()
	})
	if err := p.pipeline.SetState(gst.StatePlaying); err != nil {
		return errors.ErrStateChangeFailed(p.pipeline.GetName(), gstreamer.StatePlaying.String())
	}
	return nil
}

func (p *Pipeline) Stop() {
	p.stopped.Once(func() {
		if err := p.pipeline.SetState(gst.StateNull); err != nil {
			logger.Warnw("failed to stop pipeline", err)
		}
		if p.started.IsBroken() {
			p.loop.Quit()
			<-p.running
		}
	})
}

// DebugDot returns the graph of the pipeline in dot format.
func (p *Pipeline) DebugDot() string {
	return p.pipeline.DebugBinToDotData(gst.DebugGraphShowAll)
}

func (p *Pipeline) source(msg *gst.Message) gstreamer.Element {
	name := msg.Source()
	if name == "" {
		return nil
	}
	if name == p.pipeline.GetName() {
		return nil
	}
	el, err := p.pipeline.GetByName(name)
	if err != nil || el == nil {
		return nil
	}
	return p.maker.wrap(el)
}

func (p *Pipeline) convert(msg *gst.Message) *gstreamer.Message {
	m := &gstreamer.Message{Source: p.source(msg)}

	switch msg.Type() {
	case gst.MessageError:
		gErr := msg.ParseError()
		m.Type = gstreamer.MessageError
		m.Err = errors.ErrGstPipelineError(gErr)
		m.Debug = gErr.DebugString()
		m.Details = details(msg.GetStructure())

	case gst.MessageWarning:
		gErr := msg.ParseWarning()
		m.Type = gstreamer.MessageWarning
		m.Err = gErr
		m.Debug = gErr.DebugString()

	case gst.MessageInfo:
		m.Type = gstreamer.MessageInfo

	case gst.MessageEOS:
		m.Type = gstreamer.MessageEOS

	case gst.MessageBuffering:
		m.Type = gstreamer.MessageBuffering
		m.Percent = msg.ParseBuffering()

	case gst.MessageStateChanged:
		oldState, newState := msg.ParseStateChanged()
		m.Type = gstreamer.MessageStateChanged
		m.OldState = fromState(oldState)
		m.NewState = fromState(newState)

	case gst.MessageAsyncStart:
		m.Type = gstreamer.MessageAsyncStart

	case gst.MessageAsyncDone:
		m.Type = gstreamer.MessageAsyncDone

	case gst.MessageStreamStart:
		m.Type = gstreamer.MessageStreamStart
		ok, id := msg.ParseGroupID()
		m.GroupID, m.HasGroupID = uint32(id), ok

	case gst.MessageStreamCollection:
		m.Type = gstreamer.MessageStreamCollection
		m.Collection = fromCollection(msg.ParseStreamCollection())

	case gst.MessageStreamsSelected:
		m.Type = gstreamer.MessageStreamsSelected

	case gst.MessageElement:
		m.Type = gstreamer.MessageElement
		if s := msg.GetStructure(); s != nil {
			m.StructureName = s.Name()
			m.Details = details(s)
		}

	case gst.MessageNeedContext:
		m.Type = gstreamer.MessageNeedContext
		m.ContextType, _ = msg.ParseContextType()

	case gst.MessageHaveContext:
		m.Type = gstreamer.MessageHaveContext
		if ctx := msg.ParseHaveContext(); ctx != nil {
			m.Context = &gstreamer.Context{
				Type:       ctx.GetContextType(),
				Persistent: ctx.IsPersistent(),
				Value:      ctx,
			}
		}

	case gst.MessageResetTime:
		m.Type = gstreamer.MessageResetTime

	case gst.MessageLatency:
		m.Type = gstreamer.MessageLatency

	default:
		return nil
	}
	return m
}

// details flattens the string fields of a structure, including a nested
// details structure as carried by error messages.
func details(s *gst.Structure) map[string]string {
	if s == nil {
		return nil
	}
	out := make(map[string]string)
	for k, v := range s.Values() {
		switch val := v.(type) {
		case string:
			out[k] = val
		case *gst.Structure:
			for dk, dv := range details(val) {
				out[dk] = dv
			}
		}
	}
	if loc, ok := out["new-location"]; ok {
		if _, set := out["redirect-location"]; !set {
			out["redirect-location"] = loc
		}
	}
	return out
}
