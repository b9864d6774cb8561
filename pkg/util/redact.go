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

package util

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// rtmp urls carry the stream key as the last path element: rtmp(s)://{host}(/{path})/{app}/{stream_key}( live=1)
var rtmpRegexp = regexp.MustCompile("^(rtmps?:\\/\\/)(.*\\/)(.*\\/)(\\S*)( live=1)?$")

var secretParams = []string{"token", "key", "signature", "sig", "password", "access_token"}

// RedactURI hides credentials in a media uri before it is logged: the user
// info password, rtmp stream keys and secret query parameters.
func RedactURI(uri string) string {
	if redacted, ok := redactStreamKey(uri); ok {
		return redacted
	}

	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		return uri
	}
	changed := false
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			changed = true
		}
	}
	if u.RawQuery != "" {
		q := u.Query()
		for _, p := range secretParams {
			if v := q.Get(p); v != "" {
				q.Set(p, redactKey(v))
				changed = true
			}
		}
		if changed {
			u.RawQuery = q.Encode()
		}
	}
	if !changed {
		return uri
	}
	return u.String()
}

func redactStreamKey(uri string) (string, bool) {
	match := rtmpRegexp.FindStringSubmatch(uri)
	if len(match) != 6 {
		return uri, false
	}

	match[4] = redactKey(match[4])
	return strings.Join(match[1:], ""), true
}

func redactKey(key string) string {
	var prefix, suffix string
	for i := 3; i > 0; i-- {
		if len(key) >= i*3 {
			prefix = key[:i]
			suffix = key[len(key)-i:]
			break
		}
	}

	return fmt.Sprintf("{%s...%s}", prefix, suffix)
}
