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
	"github.com/go-gst/go-gst/gst"

	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/types"
)

var streamTags = []gst.Tag{
	gst.TagLanguageCode,
	gst.TagTitle,
	gst.TagCodec,
	gst.TagAudioCodec,
	gst.TagVideoCodec,
}

func fromCollection(c *gst.StreamCollection) *gstreamer.StreamCollection {
	if c == nil {
		return nil
	}
	collection := &gstreamer.StreamCollection{Upstream: c.GetUpstreamID()}
	for i := uint(0); i < c.GetSize(); i++ {
		s := c.GetStreamAt(i)
		if s == nil {
			continue
		}
		stream := &gstreamer.Stream{
			ID:   s.StreamID(),
			Type: fromStreamType(s.StreamType()),
			Caps: fromCaps(s.Caps()),
		}
		if tags := s.Tags(); tags != nil {
			stream.Tags = make(map[string]string)
			for _, tag := range streamTags {
				if v, ok := tags.GetString(tag); ok {
					stream.Tags[string(tag)] = v
				}
			}
		}
		collection.Streams = append(collection.Streams, stream)
	}
	return collection
}

func fromStreamType(t gst.StreamType) types.StreamType {
	var out types.StreamType
	for _, m := range []struct {
		native gst.StreamType
		t      types.StreamType
	}{
		{gst.StreamTypeUnknown, types.StreamTypeUnknown},
		{gst.StreamTypeAudio, types.StreamTypeAudio},
		{gst.StreamTypeVideo, types.StreamTypeVideo},
		{gst.StreamTypeContainer, types.StreamTypeContainer},
		{gst.StreamTypeText, types.StreamTypeText},
	} {
		if t&m.native != 0 {
			out |= m.t
		}
	}
	if out == 0 {
		return types.StreamTypeUnknown
	}
	return out
}
