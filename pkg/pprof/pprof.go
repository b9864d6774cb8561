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
	"bytes"
	"fmt"
	"os"
	"path"
	"runtime/pprof"

	"github.com/livekit/playback/pkg/errors"
	"github.com/livekit/protocol/logger"
)

const goroutineProfileName = "goroutine"

func GetProfileData(profileName string, debug int) (b []byte, err error) {
	pp := pprof.Lookup(profileName)
	if pp == nil {
		return nil, errors.ErrProfileNotFound
	}

	buf := &bytes.Buffer{}

	err = pp.WriteTo(buf, debug)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// WriteDebugInfo writes the pipeline graph and a goroutine profile into dir.
// It returns the paths written.
func WriteDebugInfo(dir, playerID, dot string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	errArray := &errors.ErrArray{}
	var written []string

	if dot != "" {
		dotPath := path.Join(dir, fmt.Sprintf("%s.dot", playerID))
		if err := os.WriteFile(dotPath, []byte(dot), 0644); err != nil {
			errArray.AppendErr(err)
		} else {
			written = append(written, dotPath)
		}
	}

	b, err := GetProfileData(goroutineProfileName, 2)
	if err != nil {
		errArray.AppendErr(err)
	} else {
		profPath := path.Join(dir, fmt.Sprintf("%s.prof", playerID))
		if err = os.WriteFile(profPath, b, 0644); err != nil {
			errArray.AppendErr(err)
		} else {
			written = append(written, profPath)
		}
	}

	if err = errArray.ToError(); err != nil {
		logger.Warnw("failed to write debug info", err, "playerID", playerID)
		return written, err
	}
	return written, nil
}
