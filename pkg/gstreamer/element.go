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

type State int

const (
	StateVoidPending State = iota
	StateNull
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return "void-pending"
	}
}

type StateChangeReturn int

const (
	StateChangeFailure StateChangeReturn = iota
	StateChangeSuccess
	StateChangeAsync
	StateChangeNoPreroll
)

func (r StateChangeReturn) String() string {
	switch r {
	case StateChangeSuccess:
		return "success"
	case StateChangeAsync:
		return "async"
	case StateChangeNoPreroll:
		return "no-preroll"
	default:
		return "failure"
	}
}

type PadDirection int

const (
	PadDirectionUnknown PadDirection = iota
	PadDirectionSource
	PadDirectionSink
)

func (d PadDirection) String() string {
	switch d {
	case PadDirectionSource:
		return "src"
	case PadDirectionSink:
		return "sink"
	default:
		return "unknown"
	}
}

type SignalHandle uint64

type ProbeID uint64

// Element is a pluggable processing unit.
type Element interface {
	GetName() string
	GetFactoryName() string
	GetKlass() string
	GetParent() Element

	HasProperty(name string) bool
	SetProperty(name string, value any) error
	GetProperty(name string) (any, error)

	SetState(state State) error
	GetCurrentState() State
	SyncStateWithParent() error
	SetLockedState(locked bool)

	GetStaticPad(name string) Pad
	GetRequestPad(template string) Pad
	ReleaseRequestPad(pad Pad)

	// Connect registers a signal handler. Handlers may run on any goroutine.
	Connect(signal string, f any) (SignalHandle, error)
	Disconnect(handle SignalHandle)
}

// Pad is a typed port on an element.
type Pad interface {
	GetName() string
	GetDirection() PadDirection
	GetParentElement() Element

	Link(sink Pad) error
	Unlink(sink Pad) bool
	IsLinked() bool
	GetPeer() Pad

	GetCurrentCaps() *Caps
	QueryCaps(filter *Caps) *Caps
	GetStreamID() string
	// GetGroupID returns the group id of the sticky stream-start event.
	GetGroupID() (uint32, bool)

	// AddBlockProbe blocks dataflow on the pad. The callback runs once the
	// pad is blocked, on a streaming goroutine, never synchronously.
	AddBlockProbe(onBlocked func(Pad)) ProbeID
	RemoveProbe(id ProbeID)

	// NotifyCaps registers a handler fired when the negotiated caps change.
	NotifyCaps(f func(Pad)) SignalHandle
	Disconnect(handle SignalHandle)
}

// GhostPad proxies a pad of a child element on a bin.
// ContextSetter is implemented by elements that accept a shared context.
type ContextSetter interface {
	SetContext(ctx *Context)
}

type GhostPad interface {
	Pad
	SetTarget(target Pad) error
	GetTarget() Pad
}

// Bin is an element containing other elements.
type Bin interface {
	Element
	Add(elements ...Element) error
	Remove(elements ...Element) error
	NewGhostPad(name string, target Pad, direction PadDirection) (GhostPad, error)
	RemovePad(pad Pad) error
}

// HasAncestor reports whether ancestor is el or one of its parents.
func HasAncestor(el, ancestor Element) bool {
	if el == nil || ancestor == nil {
		return false
	}
	for e := el; e != nil; e = e.GetParent() {
		if e == ancestor {
			return true
		}
	}
	return false
}

// PadCaps returns the negotiated caps of a pad, or the queried caps when not negotiated yet.
func PadCaps(pad Pad) *Caps {
	if pad == nil {
		return nil
	}
	if caps := pad.GetCurrentCaps(); caps != nil {
		return caps
	}
	return pad.QueryCaps(nil)
}
