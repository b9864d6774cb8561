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
	"fmt"

	"golang.org/x/exp/maps"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/types"
)

// NStreams returns the number of streams of a type in the current media.
func (pb *PlayBin) NStreams(mediaType types.MediaType) int {
	pb.lock.Lock()
	defer pb.lock.Unlock()
	g := pb.curr
	g.lock.Lock()
	defer g.lock.Unlock()

	return g.nStreams(mediaType)
}

func (g *sourceGroup) nStreams(mediaType types.MediaType) int {
	if mediaType < 0 || mediaType >= types.MediaLast {
		return 0
	}
	if g.collection != nil {
		return len(streamsOf(g.collection, mediaType))
	}
	if c := g.combines[mediaType]; c != nil {
		return len(c.inputs)
	}
	return 0
}

// GetCurrentStream returns the requested stream index, or the index of the
// stream in use when the choice is automatic. -1 means none.
func (pb *PlayBin) GetCurrentStream(mediaType types.MediaType) int {
	pb.lock.Lock()
	defer pb.lock.Unlock()

	if mediaType < 0 || mediaType >= types.MediaLast {
		return -1
	}
	if idx := pb.current[mediaType]; idx >= 0 {
		return idx
	}

	g := pb.curr
	g.lock.Lock()
	defer g.lock.Unlock()
	c := g.combines[mediaType]
	if c == nil {
		return -1
	}
	for i, s := range c.streams {
		if g.isSelected(s.ID) {
			return i
		}
	}
	if c.combiner == nil {
		if i, _ := c.input(c.srcPad); i >= 0 {
			return i
		}
	}
	return -1
}

// SetCurrentStream requests the stream index to play for a type, -1 to let
// the selection pick it.
func (pb *PlayBin) SetCurrentStream(mediaType types.MediaType, idx int) error {
	if mediaType < 0 || mediaType >= types.MediaLast {
		return errors.ErrInvalidConfig("media type", mediaType)
	}
	if idx < -1 {
		return errors.ErrInvalidConfig(fmt.Sprintf("current-%s", mediaType), idx)
	}

	pb.lock.Lock()
	defer pb.lock.Unlock()
	g := pb.curr
	g.lock.Lock()
	defer g.lock.Unlock()

	if n := g.nStreams(mediaType); n > 0 && idx >= n {
		return errors.ErrInvalidConfig(fmt.Sprintf("current-%s", mediaType), idx)
	}
	if pb.current[mediaType] == idx {
		return nil
	}
	pb.current[mediaType] = idx
	pb.logger.Debugw("current stream requested", "type", mediaType, "index", idx)

	if !g.active {
		return nil
	}
	if !pb.reselect(g) {
		if c := g.combines[mediaType]; c != nil && c.sinkPad != nil {
			pb.applySelection(g, c)
			pb.playsink.RequestReconfigure()
		}
	}
	pb.callbacks.OnStreamChanged(mediaType)
	return nil
}

// GetTags returns the tags of a stream, nil when the index is out of range.
func (pb *PlayBin) GetTags(mediaType types.MediaType, idx int) map[string]string {
	pb.lock.Lock()
	defer pb.lock.Unlock()
	g := pb.curr
	g.lock.Lock()
	defer g.lock.Unlock()

	streams := streamsOf(g.collection, mediaType)
	if idx < 0 || idx >= len(streams) || streams[idx].Tags == nil {
		return nil
	}
	return maps.Clone(streams[idx].Tags)
}

// GetPad returns the pad feeding a stream into its combine.
func (pb *PlayBin) GetPad(mediaType types.MediaType, idx int) gstreamer.Pad {
	pb.lock.Lock()
	defer pb.lock.Unlock()
	g := pb.curr
	g.lock.Lock()
	defer g.lock.Unlock()

	if mediaType < 0 || mediaType >= types.MediaLast || idx < 0 {
		return nil
	}
	c := g.combines[mediaType]
	if c == nil {
		return nil
	}

	var in *combineInput
	if streams := c.streams; len(streams) > 0 {
		if idx >= len(streams) {
			return nil
		}
		for _, i := range c.inputs {
			if i.streamID == streams[idx].ID {
				in = i
				break
			}
		}
	} else if idx < len(c.inputs) {
		in = c.inputs[idx]
	}

	switch {
	case in == nil:
		return nil
	case in.channel != nil:
		return in.channel
	default:
		return in.pad
	}
}

func (pb *PlayBin) GetAudioTags(idx int) map[string]string {
	return pb.GetTags(types.MediaAudio, idx)
}

func (pb *PlayBin) GetVideoTags(idx int) map[string]string {
	return pb.GetTags(types.MediaVideo, idx)
}

func (pb *PlayBin) GetTextTags(idx int) map[string]string {
	return pb.GetTags(types.MediaText, idx)
}

func (pb *PlayBin) GetAudioPad(idx int) gstreamer.Pad {
	return pb.GetPad(types.MediaAudio, idx)
}

func (pb *PlayBin) GetVideoPad(idx int) gstreamer.Pad {
	return pb.GetPad(types.MediaVideo, idx)
}

func (pb *PlayBin) GetTextPad(idx int) gstreamer.Pad {
	return pb.GetPad(types.MediaText, idx)
}
