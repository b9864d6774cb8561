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
	"github.com/livekit/playback/pkg/gstreamer"
)

const pipelineName = "pipeline"

// Backend runs a player on real gstreamer elements.
type Backend struct {
	*Pipeline
	registry *gstreamer.Registry
}

func NewBackend(factories ...*gstreamer.Factory) (*Backend, error) {
	registry, maker, err := NewRegistry(factories...)
	if err != nil {
		return nil, err
	}
	p, err := NewPipeline(maker, pipelineName)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Pipeline: p,
		registry: registry,
	}, nil
}

func (b *Backend) Registry() *gstreamer.Registry {
	return b.registry
}

// Attach places bin under the pipeline and routes the pipeline bus through bus.
func (b *Backend) Attach(bin gstreamer.Bin, bus gstreamer.Bus) error {
	if err := b.Add(bin); err != nil {
		return err
	}
	b.SetWatch(bus)
	return nil
}
