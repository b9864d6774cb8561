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
	"strings"
	"testing"

	"github.com/livekit/psrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFatalError(t *testing.T) {
	assert.False(t, IsFatal(ErrNoConfig))
	assert.True(t, IsFatal(Fatal(ErrNoConfig)))
	assert.Equal(t, ErrNoConfig, Fatal(ErrNoConfig).(*FatalError).Unwrap())
	assert.Nil(t, Fatal(nil))
}

func TestKinds(t *testing.T) {
	t.Run("missing element", func(t *testing.T) {
		err := ErrMissingElements("autoaudiosink", "alsasink")
		require.Equal(t, KindMissingElement, KindOf(err))
		require.Equal(t, "Both autoaudiosink and alsasink elements are missing.", err.Error())
	})

	t.Run("wrapped kinds survive", func(t *testing.T) {
		err := Fatal(ErrPadLinkFailed("queue", "sink", "not negotiated"))
		require.Equal(t, KindLinkFailure, KindOf(err))
		require.True(t, IsFatal(err))
	})

	t.Run("subtitle branch", func(t *testing.T) {
		cause := errors.New("could not parse srt")
		err := ErrSubtitleBranch(cause)
		require.Equal(t, KindSubordinate, KindOf(err))
		require.True(t, Is(err, cause))
	})

	t.Run("unknown", func(t *testing.T) {
		require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
		require.Equal(t, "configuration-inconsistency", KindConfiguration.String())
	})
}

func TestErrArray(t *testing.T) {
	err1 := errors.New("error 1")
	err2 := errors.New("error 2")
	err3 := ErrMissingElement("queue")
	err4 := psrpc.NewErrorf(psrpc.Internal, "error 4")

	errArray := &ErrArray{}
	assert.Nil(t, errArray.ToError())

	errArray.Check(nil)
	assert.Nil(t, errArray.ToError())

	errArray.AppendErr(err1)
	assert.Equal(t, psrpc.Unknown, errArray.ToError().Code())
	assert.Equal(t, err1.Error(), errArray.ToError().Error())

	errArray.AppendErr(err2)
	assert.Equal(t, psrpc.Unknown, errArray.ToError().Code())
	assert.Equal(t, 2, len(strings.Split(errArray.ToError().Error(), "\n")))

	errArray.AppendErr(err3)
	assert.Equal(t, psrpc.NotFound, errArray.ToError().Code())
	assert.Equal(t, 3, len(strings.Split(errArray.ToError().Error(), "\n")))

	errArray.Check(err4)
	assert.Equal(t, psrpc.NotFound, errArray.ToError().Code())
	assert.Equal(t, 4, len(strings.Split(errArray.ToError().Error(), "\n")))
}
