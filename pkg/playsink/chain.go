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

package playsink

import (
	"github.com/livekit/protocol/logger"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/playback/pkg/gstreamer"
	"github.com/livekit/playback/pkg/types"
)

// chain is a bin of elements feeding one kind of output. A chain is
// built once, added to the playsink bin when needed, and activated by
// syncing it to the playsink target state. activated implies added.
type chain struct {
	name string
	bin  gstreamer.Bin
	raw  bool

	added     bool
	activated bool

	sinkPad gstreamer.GhostPad
	srcPad  gstreamer.GhostPad
}

func newChain(ps *PlaySink, name string, raw bool) (*chain, error) {
	bin, err := ps.registry.Make("bin", name)
	if err != nil {
		return nil, err
	}
	b, ok := bin.(gstreamer.Bin)
	if !ok {
		return nil, errNotBin(name)
	}
	return &chain{name: name, bin: b, raw: raw}, nil
}

func (c *chain) ghostSink(pad gstreamer.Pad) error {
	g, err := c.bin.NewGhostPad("sink", pad, gstreamer.PadDirectionSink)
	if err != nil {
		return err
	}
	c.sinkPad = g
	return nil
}

func (c *chain) ghostSrc(pad gstreamer.Pad) error {
	g, err := c.bin.NewGhostPad("src", pad, gstreamer.PadDirectionSource)
	if err != nil {
		return err
	}
	c.srcPad = g
	return nil
}

// add inserts or removes the chain bin in the playsink bin. No-op when
// the chain already has the requested membership.
func (ps *PlaySink) addChain(c *chain, add bool) error {
	if c == nil || c.added == add {
		return nil
	}
	if add {
		if err := ps.bin.Add(c.bin); err != nil {
			return err
		}
	} else {
		if c.activated {
			ps.activateChain(c, false)
		}
		if err := ps.bin.Remove(c.bin); err != nil {
			logger.Debugw("failed to remove chain", "chain", c.name, "error", err)
		}
	}
	c.added = add
	return nil
}

// activateChain drives the chain bin to the playsink target state, or to
// Null when deactivating.
func (ps *PlaySink) activateChain(c *chain, activate bool) {
	if c == nil || c.activated == activate {
		return
	}
	state := gstreamer.StateNull
	if activate {
		state = ps.targetState
	}
	if err := c.bin.SetState(state); err != nil {
		logger.Debugw("failed to change chain state", "chain", c.name, "state", state, "error", err)
	}
	c.activated = activate
}

// free drops every element from the chain bin so configured elements can
// be reused by a rebuilt chain.
func (c *chain) free() {
	if c == nil {
		return
	}
	_ = c.bin.SetState(gstreamer.StateNull)
	if children, ok := c.bin.(interface{ Children() []gstreamer.Element }); ok {
		for _, child := range children.Children() {
			_ = child.SetState(gstreamer.StateNull)
			_ = c.bin.Remove(child)
		}
	}
}

func (c *chain) valid() bool {
	return c == nil || !c.activated || c.added
}

// trySink picks the configured sink, else each fallback factory in order,
// returning the first element accepting Ready.
func (ps *PlaySink) trySink(mediaType types.MediaType, configured gstreamer.Element, name string, fallbacks ...string) (gstreamer.Element, error) {
	if configured != nil {
		if err := gstreamer.TryElement(configured); err != nil {
			return nil, err
		}
		return configured, nil
	}

	missing := true
	for i, factory := range fallbacks {
		el, err := gstreamer.TryMake(ps.registry, factory, name)
		if err != nil {
			if errors.KindOf(err) != errors.KindMissingElement {
				missing = false
			}
			continue
		}
		if i > 0 {
			ps.monitor.IncSinkFallback(mediaType, factory)
		}
		return el, nil
	}

	primary, fallback := fallbacks[0], fallbacks[len(fallbacks)-1]
	if missing {
		return nil, errors.ErrMissingElements(primary, fallback)
	}
	return nil, errors.ErrSinksNotWorking(primary, fallback)
}
