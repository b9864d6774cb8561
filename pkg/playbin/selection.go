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
	"golang.org/x/exp/slices"

	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/types"
)

// Select returns the ids of the streams to activate, in collection order.
// A type with a custom combiner gets all of its streams. Any other type gets
// the stream at the requested index, or its first stream when the index is
// negative or out of range. Streams of unknown type are never selected.
func Select(collection *gstreamer.StreamCollection, requested [types.MediaLast]int, custom [types.MediaLast]bool) []string {
	chosen := make(map[string]bool)
	for _, t := range types.MediaTypes {
		streams := streamsOf(collection, t)
		if len(streams) == 0 {
			continue
		}
		if custom[t] {
			for _, s := range streams {
				chosen[s.ID] = true
			}
			continue
		}
		idx := requested[t]
		if idx < 0 || idx >= len(streams) {
			idx = 0
		}
		chosen[streams[idx].ID] = true
	}

	selected := make([]string, 0, len(chosen))
	for _, id := range collection.IDs() {
		if chosen[id] {
			selected = append(selected, id)
			delete(chosen, id)
		}
	}
	return selected
}

// streamsOf returns the streams classified as t, in collection order.
func streamsOf(collection *gstreamer.StreamCollection, t types.MediaType) []*gstreamer.Stream {
	if collection == nil {
		return nil
	}
	var streams []*gstreamer.Stream
	for _, s := range collection.Streams {
		if mt, ok := types.MediaTypeOf(s.Type); ok && mt == t {
			streams = append(streams, s)
		}
	}
	return streams
}

func sameSelection(a, b []string) bool {
	return slices.Equal(a, b)
}
