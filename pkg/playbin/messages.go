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
	"net/url"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/util"
)

const redirectLocation = "redirect-location"

// Post routes a message posted inside the playbin and forwards what is
// left of it to the application bus.
func (pb *PlayBin) Post(msg *gstreamer.Message) bool {
	if msg == nil {
		return false
	}

	// playsink messages are the playbin's own
	if gstreamer.HasAncestor(msg.Source, pb.playsink.Bin()) {
		pb.forward(msg)
		return true
	}

	out := pb.Route(msg)
	for _, m := range out {
		pb.forward(m)
	}

	if msg.Type == gstreamer.MessageResetTime && pb.live.Load() && pb.target() == gstreamer.StatePlaying {
		pb.resetTime()
	}
	return len(out) > 0
}

// Route applies the group rules to a message. It returns the messages to
// forward, none when the message is consumed.
func (pb *PlayBin) Route(msg *gstreamer.Message) []*gstreamer.Message {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	switch msg.Type {
	case gstreamer.MessageAsyncStart, gstreamer.MessageAsyncDone:
		if g := pb.groupOf(msg.Source); g != nil {
			pb.logger.Debugw("dropping async message from group", "type", msg.Type, "source", msg.SourceName(), "group", g)
			return nil
		}

	case gstreamer.MessageBuffering:
		if g := pb.groupOf(msg.Source); g != nil {
			g.lock.Lock()
			defer g.lock.Unlock()
			if g.streamChangedPending || g != pb.curr {
				if g == pb.curr {
					g.pendingBuffering = msg
				}
				pb.logger.Debugw("holding buffering message", "percent", msg.Percent, "group", g)
				return nil
			}
		}

	case gstreamer.MessageError:
		g := pb.groupOf(msg.Source)
		if g == nil {
			break
		}
		if g.ownsSubtitle(msg.Source) {
			return []*gstreamer.Message{pb.demoteSubtitleError(g, msg)}
		}
		if g == pb.curr && pb.redirect(msg) {
			return nil
		}

	case gstreamer.MessageStreamStart:
		if g := pb.streamStartGroup(msg); g != nil {
			return append([]*gstreamer.Message{msg}, pb.promote(g)...)
		}

	case gstreamer.MessageStreamCollection:
		if g := pb.groupOf(msg.Source); g != nil && msg.Collection != nil {
			pb.onCollection(g, msg.Collection)
		}

	case gstreamer.MessageNeedContext:
		if ctx, ok := pb.contexts[msg.ContextType]; ok {
			if setter, ok := msg.Source.(gstreamer.ContextSetter); ok {
				setter.SetContext(ctx)
				return nil
			}
		}

	case gstreamer.MessageHaveContext:
		if msg.Context != nil {
			pb.contexts[msg.Context.Type] = msg.Context
		}
	}

	return []*gstreamer.Message{msg}
}

// groupOf returns the group owning el, nil when el is outside both groups.
func (pb *PlayBin) groupOf(el gstreamer.Element) *sourceGroup {
	if el == nil {
		return nil
	}
	for _, g := range pb.groups {
		g.lock.Lock()
		owned := g.owns(el)
		g.lock.Unlock()
		if owned {
			return g
		}
	}
	return nil
}

// streamStartGroup matches a stream-start to a group by group id, then by
// source, then falls back to the current group.
func (pb *PlayBin) streamStartGroup(msg *gstreamer.Message) *sourceGroup {
	if msg.HasGroupID {
		for _, g := range pb.groups {
			if g.active && g.hasGroupID && g.groupID == msg.GroupID {
				return g
			}
		}
	}
	if g := pb.groupOf(msg.Source); g != nil {
		return g
	}
	if pb.curr.active {
		return pb.curr
	}
	return nil
}

// promote makes g the playing group and returns the messages held for it.
func (pb *PlayBin) promote(g *sourceGroup) []*gstreamer.Message {
	g.lock.Lock()
	defer g.lock.Unlock()

	if pb.playing != g {
		if old := pb.playing; old != nil {
			old.playing = false
		}
		pb.playing = g
		pb.switches++
		pb.monitor.GroupSwitched(pb.switches)
		pb.logger.Infow("group playing", "group", g, "uri", util.RedactURI(g.uri), "switches", pb.switches)
	}
	g.playing = true
	g.streamChangedPending = false

	var released []*gstreamer.Message
	if g.pendingBuffering != nil {
		released = append(released, g.pendingBuffering)
		g.pendingBuffering = nil
	}
	return released
}

func (pb *PlayBin) demoteSubtitleError(g *sourceGroup, msg *gstreamer.Message) *gstreamer.Message {
	err := errors.ErrSubtitleBranch(msg.Err)
	pb.subLogger.Errorw("subtitle branch failed", err, "source", msg.SourceName(), "group", g)
	pb.monitor.IncDemotedError("subtitle")
	pb.removeSubtitleBranch(g)
	return gstreamer.NewWarningMessage(msg.Source, err, msg.Debug)
}

// redirect queues the redirected uri on the next group and activates it.
func (pb *PlayBin) redirect(msg *gstreamer.Message) bool {
	location := msg.Details[redirectLocation]
	if location == "" {
		return false
	}

	curr := pb.curr
	uri, err := resolveURI(curr.uri, location)
	if err != nil {
		pb.logger.Warnw("invalid redirect location", err, "location", util.RedactURI(location))
		return false
	}
	if uri == curr.uri {
		return false
	}

	next := pb.next
	next.lock.Lock()
	if !next.valid {
		next.uri = uri
		next.suburi = ""
		next.valid = true
	}
	next.lock.Unlock()

	pb.logger.Infow("redirecting", "from", util.RedactURI(curr.uri), "to", util.RedactURI(uri))
	if _, err = pb.activateNext(pb.target()); err != nil {
		pb.logger.Warnw("failed to follow redirect", err, "location", util.RedactURI(uri))
		return false
	}
	return true
}

func resolveURI(base, location string) (string, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(ref).String(), nil
}

// resetTime restarts the clock of a live pipeline by cycling through paused.
func (pb *PlayBin) resetTime() {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	pb.logger.Debugw("resetting running time")
	if err := pb.bin.SetState(gstreamer.StatePaused); err != nil {
		pb.logger.Warnw("failed to reset time", err)
		return
	}
	if err := pb.bin.SetState(gstreamer.StatePlaying); err != nil {
		pb.logger.Warnw("failed to reset time", err)
	}
}

func (pb *PlayBin) doAsyncStart() {
	pb.asyncPending = true
	pb.forward(gstreamer.NewAsyncStartMessage(pb.bin))
}

func (pb *PlayBin) doAsyncDone() {
	if pb.asyncPending {
		pb.asyncPending = false
		pb.forward(gstreamer.NewAsyncDoneMessage(pb.bin))
	}
}

func (pb *PlayBin) forward(msg *gstreamer.Message) {
	pb.callbacks.OnMessage(msg)
	if pb.bus != nil {
		pb.bus.Post(msg)
	}
}

func (pb *PlayBin) postWarning(err error) {
	pb.logger.Warnw("playbin warning", err)
	pb.forward(gstreamer.NewWarningMessage(pb.bin, err, ""))
}

func (pb *PlayBin) postError(err error) {
	pb.logger.Errorw("playbin error", err)
	pb.forward(gstreamer.NewErrorMessage(pb.bin, err, ""))
}
