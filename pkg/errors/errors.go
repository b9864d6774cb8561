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

package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/livekit/psrpc"
)

var (
	ErrNoConfig        = errors.New("missing config")
	ErrNoURI           = errors.New("no uri set")
	ErrNoNextGroup     = errors.New("no next group")
	ErrShutdown        = errors.New("shutting down")
	ErrGroupNotActive  = errors.New("group is not active")
	ErrGroupNotValid   = errors.New("group is not valid")
	ErrChainNotBuilt   = errors.New("chain not built")
	ErrNoVideoChain    = errors.New("no video chain")
	ErrNoSample        = errors.New("no last sample available")
	ErrPlayerClosed    = errors.New("player closed")
	ErrProfileNotFound = errors.New("profile not found")
)

func New(err string) error {
	return errors.New(err)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// Kind classifies failures so callers can decide between fatal and degraded handling.
type Kind int

const (
	KindUnknown Kind = iota
	KindMissingElement
	KindLinkFailure
	KindSinkActivation
	KindStreamType
	KindConfiguration
	KindSubordinate
)

func (k Kind) String() string {
	switch k {
	case KindMissingElement:
		return "missing-element"
	case KindLinkFailure:
		return "link-failure"
	case KindSinkActivation:
		return "sink-activation-failure"
	case KindStreamType:
		return "stream-type-unresolvable"
	case KindConfiguration:
		return "configuration-inconsistency"
	case KindSubordinate:
		return "subordinate-branch-failure"
	default:
		return "unknown"
	}
}

type PlaybackError struct {
	kind Kind
	code psrpc.ErrorCode
	msg  string
	err  error
}

func (e *PlaybackError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *PlaybackError) Unwrap() error {
	return e.err
}

func (e *PlaybackError) Code() psrpc.ErrorCode {
	return e.code
}

func (e *PlaybackError) Kind() Kind {
	return e.kind
}

// KindOf returns the kind of the first PlaybackError in the chain.
func KindOf(err error) Kind {
	var e *PlaybackError
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

func ErrCouldNotParseConfig(err error) error {
	return &PlaybackError{kind: KindConfiguration, code: psrpc.InvalidArgument, msg: "could not parse config", err: err}
}

func ErrInvalidConfig(field string, value any) error {
	return &PlaybackError{kind: KindConfiguration, code: psrpc.InvalidArgument, msg: fmt.Sprintf("invalid value for %s: %v", field, value)}
}

func ErrNotSupported(feature string) error {
	return psrpc.NewErrorf(psrpc.Unimplemented, "%s is not yet supported", feature)
}

func ErrMissingElement(factory string) error {
	return &PlaybackError{kind: KindMissingElement, code: psrpc.NotFound, msg: fmt.Sprintf("missing element '%s'", factory)}
}

func ErrMissingElements(primary, fallback string) error {
	return &PlaybackError{kind: KindMissingElement, code: psrpc.NotFound, msg: fmt.Sprintf("Both %s and %s elements are missing.", primary, fallback)}
}

func ErrPadLinkFailed(src, sink, status string) error {
	return &PlaybackError{kind: KindLinkFailure, code: psrpc.Internal, msg: fmt.Sprintf("failed to link %s to %s: %s", src, sink, status)}
}

func ErrSinkActivation(sink string) error {
	return &PlaybackError{kind: KindSinkActivation, code: psrpc.Unavailable, msg: fmt.Sprintf("Configured sink %s is not working.", sink)}
}

func ErrSinksNotWorking(primary, fallback string) error {
	return &PlaybackError{kind: KindSinkActivation, code: psrpc.Unavailable, msg: fmt.Sprintf("Both %s and %s elements are not working.", primary, fallback)}
}

func ErrChainLink(chain string, err error) error {
	return &PlaybackError{kind: KindLinkFailure, code: psrpc.Internal, msg: fmt.Sprintf("Failed to configure the %s.", chain), err: err}
}

func ErrConfigInconsistent(reason string) error {
	return &PlaybackError{kind: KindConfiguration, code: psrpc.FailedPrecondition, msg: reason}
}

func ErrStreamTypeUnresolvable(pad string) error {
	return &PlaybackError{kind: KindStreamType, code: psrpc.InvalidArgument, msg: fmt.Sprintf("cannot classify stream on pad %s", pad)}
}

func ErrSubtitleBranch(err error) error {
	return &PlaybackError{kind: KindSubordinate, code: psrpc.Unavailable, msg: "subtitle decoding failed", err: err}
}

func ErrVisUnavailable(err error) error {
	return &PlaybackError{kind: KindSubordinate, code: psrpc.Unavailable, msg: "Could not build the visualization, disabling it.", err: err}
}

func ErrGstPipelineError(err error) error {
	return psrpc.NewError(psrpc.Internal, err)
}

func ErrStateChangeFailed(element, state string) error {
	return psrpc.NewErrorf(psrpc.Internal, "failed to change %s state to %s", element, state)
}

type FatalError struct {
	err error
}

func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{err: err}
}

func IsFatal(err error) bool {
	var e *FatalError
	return errors.As(err, &e)
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

type coded interface {
	Code() psrpc.ErrorCode
}

type ErrArray struct {
	errs []error
}

func (e *ErrArray) AppendErr(err error) {
	e.errs = append(e.errs, err)
}

func (e *ErrArray) Check(err error) {
	if err != nil {
		e.errs = append(e.errs, err)
	}
}

func (e *ErrArray) ToError() psrpc.Error {
	if len(e.errs) == 0 {
		return nil
	}

	code := psrpc.Unknown
	msg := make([]string, 0, len(e.errs))
	for _, err := range e.errs {
		if code == psrpc.Unknown {
			var c coded
			if errors.As(err, &c) {
				code = c.Code()
			}
		}
		msg = append(msg, err.Error())
	}

	return psrpc.NewErrorf(code, "%s", strings.Join(msg, "\n"))
}
