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

package pprof

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livekit/playback/pkg/errors"
)

func TestGetProfileData(t *testing.T) {
	b, err := GetProfileData("goroutine", 1)
	require.NoError(t, err)
	require.NotEmpty(t, b)

	_, err = GetProfileData("nope", 0)
	require.ErrorIs(t, err, errors.ErrProfileNotFound)
}

func TestWriteDebugInfo(t *testing.T) {
	dir := t.TempDir()
	written, err := WriteDebugInfo(dir, "PL_test", "digraph pipeline {}")
	require.NoError(t, err)
	require.Len(t, written, 2)
	for _, p := range written {
		_, err = os.Stat(p)
		require.NoError(t, err)
	}
}
