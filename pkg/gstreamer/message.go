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

	"github.com/livekit/playback/pkg/types"
)

type MessageType int

const (
	MessageUnknown MessageType = iota
	MessageError
	MessageWarning
	MessageInfo
	MessageEOS
	MessageBuffering
	MessageStateChanged
	MessageAsyncStart
	MessageAsyncDone
	MessageStreamStart
	MessageStreamCollection
	MessageStreamsSelected
	MessageElement
	MessageNeedContext
	MessageHaveContext
	MessageResetTime
	MessageLatency
)

func (t MessageType) String() string {
	switch t {
	case MessageError:
		return "error"
	case MessageWarning:
		return "warning"
	case MessageInfo:
		return "info"
	case MessageEOS:
		return "eos"
	case MessageBuffering:
		return "buffering"
	case MessageStateChanged:
		return "state-changed"
	case MessageAsyncStart:
		return "async-start"
	case MessageAsyncDone:
		return "async-done"
	case MessageStreamStart:
		return "stream-start"
	case MessageStreamCollection:
		return "stream-collection"
	case MessageStreamsSelected:
		return "streams-selected"
	case MessageElement:
		return "element"
	case MessageNeedContext:
		return "need-context"
	case MessageHaveContext:
		return "have-context"
	case MessageResetTime:
		return "reset-time"
	case MessageLatency:
		return "latency"
	default:
		return "unknown"
	}
}

// Context is a shared resource handed between elements, keyed by type.
type Context struct {
	Type       string
	Persistent bool
	Value      any
}

// Message is a bus message. Only the fields relevant to Type are set.
type Message struct {
	Type   MessageType
	Source Element

	Err     error
	Debug   string
	Details map[string]string

	Percent    int
	GroupID    uint32
	HasGroupID bool
	Collection *StreamCollection

	OldState State
	NewState State

	ContextType string
	Context     *Context

	StructureName string
}

func (m *Message) SourceName() string {
	if m.Source == nil {
		return ""
	}
	return m.Source.GetName()
}

func (m *Message) String() string {
	return fmt.Sprintf("%s message from %s", m.Type, m.SourceName())
}

func NewErrorMessage(src Element, err error, debug string) *Message {
	return &Message{Type: MessageError, Source: src, Err: err, Debug: debug}
}

func NewWarningMessage(src Element, err error, debug string) *Message {
	return &Message{Type: MessageWarning, Source: src, Err: err, Debug: debug}
}

func NewBufferingMessage(src Element, percent int) *Message {
	return &Message{Type: MessageBuffering, Source: src, Percent: percent}
}

func NewAsyncStartMessage(src Element) *Message {
	return &Message{Type: MessageAsyncStart, Source: src}
}

func NewAsyncDoneMessage(src Element) *Message {
	return &Message{Type: MessageAsyncDone, Source: src}
}

func NewStreamStartMessage(src Element, groupID uint32, hasGroupID bool) *Message {
	return &Message{Type: MessageStreamStart, Source: src, GroupID: groupID, HasGroupID: hasGroupID}
}

func NewStreamCollectionMessage(src Element, collection *StreamCollection) *Message {
	return &Message{Type: MessageStreamCollection, Source: src, Collection: collection}
}

// Bus receives messages forwarded by the orchestrator.
type Bus interface {
	Post(msg *Message) bool
}

// BusFunc adapts a function to a Bus.
type BusFunc func(msg *Message) bool

func (f BusFunc) Post(msg *Message) bool {
	return f(msg)
}

// Stream describes one elementary stream discovered by a decoding front end.
type Stream struct {
	ID   string
	Type types.StreamType
	Caps *Caps
	Tags map[string]string
}

type StreamCollection struct {
	Upstream string
	Streams  []*Stream
}

func (c *StreamCollection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Streams)
}

// Filter returns the streams matching t, in collection order.
func (c *StreamCollection) Filter(t types.StreamType) []*Stream {
	if c == nil {
		return nil
	}
	var streams []*Stream
	for _, s := range c.Streams {
		if s.Type&t != 0 {
			streams = append(streams, s)
		}
	}
	return streams
}

func (c *StreamCollection) IDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.Streams))
	for _, s := range c.Streams {
		ids = append(ids, s.ID)
	}
	return ids
}
