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

package player

import (
	"github.com/linkdata/deadlock"
)

// Playlist hands out uris in order. It is safe for concurrent use.
type Playlist struct {
	mu   deadlock.Mutex
	uris []string
	pos  int
}

func NewPlaylist(uris []string) *Playlist {
	return &Playlist{
		uris: append([]string(nil), uris...),
		pos:  -1,
	}
}

// Next advances and returns the next uri, false once the list is exhausted.
func (p *Playlist) Next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pos+1 >= len(p.uris) {
		return "", false
	}
	p.pos++
	return p.uris[p.pos], true
}

// Append adds uris to the end of the list.
func (p *Playlist) Append(uris ...string) {
	p.mu.Lock()
	p.uris = append(p.uris, uris...)
	p.mu.Unlock()
}

func (p *Playlist) Position() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *Playlist) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.uris)
}
