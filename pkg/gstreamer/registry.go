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
	"sort"
	"strings"

	"github.com/linkdata/deadlock"
	"go.uber.org/atomic"

	"github.com/livekit/playback/pkg/errors"
)

const (
	RankNone      = 0
	RankMarginal  = 64
	RankSecondary = 128
	RankPrimary   = 256
)

// Factory describes an element that can be instantiated from the registry.
type Factory struct {
	Name     string `yaml:"name"`
	Rank     int    `yaml:"rank"`
	Klass    string `yaml:"klass"`     // e.g. Sink/Audio, Codec/Decoder/Video
	SinkCaps string `yaml:"sink_caps"` // sink template caps
	SrcCaps  string `yaml:"src_caps"`  // src template caps

	sinkCaps *Caps
	srcCaps  *Caps
}

func (f *Factory) parse() error {
	var err error
	if f.sinkCaps, err = ParseCaps(f.SinkCaps); err != nil {
		return err
	}
	f.srcCaps, err = ParseCaps(f.SrcCaps)
	return err
}

func (f *Factory) HasKlass(part string) bool {
	for _, k := range strings.Split(f.Klass, "/") {
		if k == part {
			return true
		}
	}
	return false
}

func (f *Factory) IsSink() bool {
	return f.HasKlass("Sink")
}

func (f *Factory) IsDecoder() bool {
	return f.HasKlass("Decoder")
}

func (f *Factory) IsAudio() bool {
	return f.HasKlass("Audio")
}

func (f *Factory) IsVideo() bool {
	return f.HasKlass("Video") || f.HasKlass("Image")
}

func (f *Factory) GetSinkCaps() *Caps {
	return f.sinkCaps
}

func (f *Factory) GetSrcCaps() *Caps {
	return f.srcCaps
}

// CanSinkCaps reports whether the sink template accepts all of caps.
// ANY templates do not count.
func (f *Factory) CanSinkCaps(caps *Caps) bool {
	return f.sinkCaps != nil && !f.sinkCaps.IsAny() && caps.IsSubsetOf(f.sinkCaps)
}

// CanSrcAnyCaps reports whether the src template can produce any of caps.
func (f *Factory) CanSrcAnyCaps(caps *Caps) bool {
	return f.srcCaps.CanIntersect(caps)
}

// ElementMaker instantiates elements by factory name.
type ElementMaker interface {
	MakeElement(factory, name string) (Element, error)
}

// Registry is an explicitly passed factory registry. Every change bumps the cookie.
type Registry struct {
	mu        deadlock.RWMutex
	maker     ElementMaker
	factories map[string]*Factory
	cookie    atomic.Uint32
}

func NewRegistry(maker ElementMaker) *Registry {
	return &Registry{
		maker:     maker,
		factories: make(map[string]*Factory),
	}
}

func (r *Registry) Register(factories ...*Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range factories {
		if err := f.parse(); err != nil {
			return errors.ErrInvalidConfig("factory caps", f.Name)
		}
		r.factories[f.Name] = f
	}
	r.cookie.Inc()
	return nil
}

func (r *Registry) Unregister(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		delete(r.factories, name)
	}
	r.cookie.Inc()
}

func (r *Registry) Cookie() uint32 {
	return r.cookie.Load()
}

func (r *Registry) Find(name string) *Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.factories[name]
}

// List returns matching factories by rank descending, then name.
func (r *Registry) List(filter func(*Factory) bool) []*Factory {
	r.mu.RLock()
	list := make([]*Factory, 0, len(r.factories))
	for _, f := range r.factories {
		if filter == nil || filter(f) {
			list = append(list, f)
		}
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].Rank != list[j].Rank {
			return list[i].Rank > list[j].Rank
		}
		return list[i].Name < list[j].Name
	})
	return list
}

// Make creates an element, returning a missing-element error when the factory is unavailable.
func (r *Registry) Make(factory, name string) (Element, error) {
	el, err := r.maker.MakeElement(factory, name)
	if err != nil || el == nil {
		return nil, errors.ErrMissingElement(factory)
	}
	return el, nil
}

// FactoryCache holds a value derived from the registry, rebuilt when the cookie changes.
type FactoryCache[T any] struct {
	mu     deadlock.Mutex
	valid  bool
	cookie uint32
	value  T
	build  func(*Registry) T
}

func NewFactoryCache[T any](build func(*Registry) T) *FactoryCache[T] {
	return &FactoryCache[T]{build: build}
}

func (c *FactoryCache[T]) Get(r *Registry) T {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cookie := r.Cookie(); !c.valid || cookie != c.cookie {
		c.value = c.build(r)
		c.cookie = cookie
		c.valid = true
	}
	return c.value
}

func (c *FactoryCache[T]) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}
