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

	"github.com/go-gst/go-gst/gst"

	"github.com/livekit/playback/pkg/gstreamer"
)

func toState(s gstreamer.State) gst.State {
	switch s {
	case gstreamer.StateNull:
		return gst.StateNull
	case gstreamer.StateReady:
		return gst.StateReady
	case gstreamer.StatePaused:
		return gst.StatePaused
	case gstreamer.StatePlaying:
		return gst.StatePlaying
	default:
		return gst.VoidPending
	}
}

func fromState(s gst.State) gstreamer.State {
	switch s {
	case gst.StateNull:
		return gstreamer.StateNull
	case gst.StateReady:
		return gstreamer.StateReady
	case gst.StatePaused:
		return gstreamer.StatePaused
	case gst.StatePlaying:
		return gstreamer.StatePlaying
	default:
		return gstreamer.StateVoidPending
	}
}

func toDirection(d gstreamer.PadDirection) gst.PadDirection {
	switch d {
	case gstreamer.PadDirectionSource:
		return gst.PadDirectionSource
	case gstreamer.PadDirectionSink:
		return gst.PadDirectionSink
	default:
		return gst.PadDirectionUnknown
	}
}

func fromCaps(c *gst.Caps) *gstreamer.Caps {
	if c == nil {
		return nil
	}
	caps, err := gstreamer.ParseCaps(c.String())
	if err != nil {
		return gstreamer.NewAnyCaps()
	}
	return caps
}

func toCaps(c *gstreamer.Caps) *gst.Caps {
	if c == nil {
		return nil
	}
	return gst.NewCapsFromString(c.String())
}

// toNative converts property values built on the gstreamer interfaces.
func toNative(value any) (any, error) {
	switch v := value.(type) {
	case gstreamer.Element:
		el := unwrapElement(v)
		if el == nil {
			return nil, fmt.Errorf("%s is not a native element", v.GetName())
		}
		return el, nil
	case gstreamer.Pad:
		pad := unwrapPad(v)
		if pad == nil {
			return nil, fmt.Errorf("%s is not a native pad", v.GetName())
		}
		return pad, nil
	case *gstreamer.Caps:
		return toCaps(v), nil
	case float32:
		return float64(v), nil
	default:
		return value, nil
	}
}

func (m *Maker) fromNative(value any) any {
	switch v := value.(type) {
	case *gst.Element:
		return m.wrap(v)
	case *gst.Pad:
		return m.wrapPad(v)
	case *gst.Caps:
		return fromCaps(v)
	case *gst.Sample:
		return fromSample(v)
	default:
		return value
	}
}

func fromSample(s *gst.Sample) *gstreamer.Sample {
	if s == nil {
		return nil
	}
	sample := &gstreamer.Sample{Caps: fromCaps(s.GetCaps())}
	if buf := s.GetBuffer(); buf != nil {
		sample.Data = buf.Bytes()
	}
	return sample
}
