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
	"sync"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/types"
)

// Callbacks holds application-facing observers. They may fire from any goroutine.
type Callbacks struct {
	mu sync.RWMutex

	onError   func(error)
	onWarning []func(error)
	onEOS     []func()
	onStop    []func() error

	onAboutToFinish []func()
	onStreamChanged []func(types.MediaType)
	onTagsChanged   []func(types.MediaType, int)
	onSourceSetup   []func(Element)
	onElementSetup  []func(Element)
	onMessage       []func(*Message)
}

func (c *Callbacks) SetOnError(f func(error)) {
	c.mu.Lock()
	c.onError = f
	c.mu.Unlock()
}

func (c *Callbacks) OnError(err error) {
	c.mu.RLock()
	onError := c.onError
	c.mu.RUnlock()
	if onError != nil {
		onError(err)
	}
}

func (c *Callbacks) AddOnWarning(f func(error)) {
	c.mu.Lock()
	c.onWarning = append(c.onWarning, f)
	c.mu.Unlock()
}

func (c *Callbacks) OnWarning(err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, onWarning := range c.onWarning {
		onWarning(err)
	}
}

func (c *Callbacks) AddOnEOS(f func()) {
	c.mu.Lock()
	c.onEOS = append(c.onEOS, f)
	c.mu.Unlock()
}

func (c *Callbacks) OnEOS() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, onEOS := range c.onEOS {
		onEOS()
	}
}

func (c *Callbacks) AddOnStop(f func() error) {
	c.mu.Lock()
	c.onStop = append(c.onStop, f)
	c.mu.Unlock()
}

func (c *Callbacks) OnStop() error {
	errArray := &errors.ErrArray{}
	c.mu.RLock()
	for _, onStop := range c.onStop {
		errArray.Check(onStop())
	}
	c.mu.RUnlock()
	if err := errArray.ToError(); err != nil {
		return err
	}
	return nil
}

// AddOnAboutToFinish registers a handler called synchronously before the
// next group is activated, so it can still set the next uri.
func (c *Callbacks) AddOnAboutToFinish(f func()) {
	c.mu.Lock()
	c.onAboutToFinish = append(c.onAboutToFinish, f)
	c.mu.Unlock()
}

func (c *Callbacks) OnAboutToFinish() {
	c.mu.RLock()
	handlers := append([]func(){}, c.onAboutToFinish...)
	c.mu.RUnlock()
	for _, f := range handlers {
		f()
	}
}

func (c *Callbacks) AddOnStreamChanged(f func(types.MediaType)) {
	c.mu.Lock()
	c.onStreamChanged = append(c.onStreamChanged, f)
	c.mu.Unlock()
}

func (c *Callbacks) OnStreamChanged(t types.MediaType) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, f := range c.onStreamChanged {
		f(t)
	}
}

func (c *Callbacks) AddOnTagsChanged(f func(types.MediaType, int)) {
	c.mu.Lock()
	c.onTagsChanged = append(c.onTagsChanged, f)
	c.mu.Unlock()
}

func (c *Callbacks) OnTagsChanged(t types.MediaType, idx int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, f := range c.onTagsChanged {
		f(t, idx)
	}
}

func (c *Callbacks) AddOnSourceSetup(f func(Element)) {
	c.mu.Lock()
	c.onSourceSetup = append(c.onSourceSetup, f)
	c.mu.Unlock()
}

func (c *Callbacks) OnSourceSetup(source Element) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, f := range c.onSourceSetup {
		f(source)
	}
}

func (c *Callbacks) AddOnElementSetup(f func(Element)) {
	c.mu.Lock()
	c.onElementSetup = append(c.onElementSetup, f)
	c.mu.Unlock()
}

func (c *Callbacks) OnElementSetup(el Element) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, f := range c.onElementSetup {
		f(el)
	}
}

// AddOnMessage registers a handler for messages forwarded to the application.
func (c *Callbacks) AddOnMessage(f func(*Message)) {
	c.mu.Lock()
	c.onMessage = append(c.onMessage, f)
	c.mu.Unlock()
}

func (c *Callbacks) OnMessage(msg *Message) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, f := range c.onMessage {
		f(msg)
	}
}
