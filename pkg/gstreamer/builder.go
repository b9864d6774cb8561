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

package gstreamer

import (
	"fmt"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/protocol/logger"
)

// BuildQueue creates a decoupling queue capped by buffer count and time. Zero disables a cap.
func BuildQueue(r *Registry, name string, maxBuffers uint, maxTime uint64) (Element, error) {
	queue, err := r.Make("queue", name)
	if err != nil {
		return nil, err
	}
	if err = queue.SetProperty("max-size-buffers", maxBuffers); err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}
	if err = queue.SetProperty("max-size-bytes", uint(0)); err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}
	if err = queue.SetProperty("max-size-time", maxTime); err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}
	return queue, nil
}

func LinkPads(src string, srcPad Pad, sink string, sinkPad Pad) error {
	if srcPad == nil {
		return errors.ErrPadLinkFailed(src, sink, fmt.Sprintf("missing %s pad", src))
	}
	if sinkPad == nil {
		return errors.ErrPadLinkFailed(src, sink, fmt.Sprintf("missing %s pad", sink))
	}
	if err := srcPad.Link(sinkPad); err != nil {
		return errors.ErrPadLinkFailed(src, sink, err.Error())
	}
	return nil
}

// LinkElements links the static src pad of each element to the static sink pad of the next.
func LinkElements(elements ...Element) error {
	for i := 0; i+1 < len(elements); i++ {
		src, sink := elements[i], elements[i+1]
		if err := LinkPads(src.GetName(), src.GetStaticPad("src"), sink.GetName(), sink.GetStaticPad("sink")); err != nil {
			return err
		}
	}
	return nil
}

// TryElement drives an element to Ready to check it works. On failure the
// element is set back to Null and a sink-activation error is returned.
func TryElement(el Element) error {
	if el == nil {
		return errors.ErrMissingElement("<nil>")
	}
	if err := el.SetState(StateReady); err != nil {
		logger.Debugw("element failed readiness probe", "element", el.GetName(), "error", err)
		_ = el.SetState(StateNull)
		return errors.ErrSinkActivation(el.GetName())
	}
	return nil
}

// TryMake creates an element by factory and probes it.
func TryMake(r *Registry, factory, name string) (Element, error) {
	el, err := r.Make(factory, name)
	if err != nil {
		return nil, err
	}
	if err = TryElement(el); err != nil {
		return nil, err
	}
	return el, nil
}

// FindProperty looks for a property on the element or, for bins, on one of its children.
func FindProperty(el Element, name string) Element {
	if el == nil {
		return nil
	}
	if el.HasProperty(name) {
		return el
	}
	if iter, ok := el.(interface{ Children() []Element }); ok {
		for _, child := range iter.Children() {
			if found := FindProperty(child, name); found != nil {
				return found
			}
		}
	}
	return nil
}
