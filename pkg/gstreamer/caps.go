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
	"sort"
	"strings"
)

const (
	capsAny   = "ANY"
	capsEmpty = "EMPTY"

	featureSystemMemory = "memory:SystemMemory"
)

// Structure is one media format entry of a Caps. Field values hold the
// accepted alternatives, a single value for fixed fields.
type Structure struct {
	Name     string
	Features []string
	Fields   map[string][]string
}

// Caps is an immutable capability descriptor.
type Caps struct {
	any        bool
	structures []*Structure
}

func NewAnyCaps() *Caps {
	return &Caps{any: true}
}

func NewEmptyCaps() *Caps {
	return &Caps{}
}

func NewCaps(structures ...*Structure) *Caps {
	return &Caps{structures: structures}
}

// NewSimpleCaps builds single structure caps from a media type name.
func NewSimpleCaps(name string) *Caps {
	return &Caps{structures: []*Structure{{Name: name}}}
}

func MustParseCaps(s string) *Caps {
	c, err := ParseCaps(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseCaps parses the textual caps form, e.g.
// "video/x-raw(memory:GLMemory), format={ RGBA, I420 }; audio/x-raw".
func ParseCaps(s string) (*Caps, error) {
	s = strings.TrimSpace(s)
	switch s {
	case capsAny:
		return NewAnyCaps(), nil
	case "", capsEmpty, "NONE":
		return NewEmptyCaps(), nil
	}

	caps := &Caps{}
	for _, part := range splitTopLevel(s, ';') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		st, err := parseStructure(part)
		if err != nil {
			return nil, err
		}
		caps.structures = append(caps.structures, st)
	}
	return caps, nil
}

func parseStructure(s string) (*Structure, error) {
	fields := splitTopLevel(s, ',')
	head := strings.TrimSpace(fields[0])
	st := &Structure{Fields: make(map[string][]string)}

	if i := strings.IndexByte(head, '('); i >= 0 {
		if !strings.HasSuffix(head, ")") {
			return nil, fmt.Errorf("invalid caps features in %q", head)
		}
		for _, f := range strings.Split(head[i+1:len(head)-1], ",") {
			if f = strings.TrimSpace(f); f != "" {
				st.Features = append(st.Features, f)
			}
		}
		head = head[:i]
	}
	if head == "" || !strings.Contains(head, "/") {
		return nil, fmt.Errorf("invalid media type %q", head)
	}
	st.Name = head

	for _, f := range fields[1:] {
		kv := strings.SplitN(f, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid caps field %q", f)
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		// drop the (type) annotation
		if strings.HasPrefix(value, "(") {
			if end := strings.IndexByte(value, ')'); end > 0 {
				value = strings.TrimSpace(value[end+1:])
			}
		}
		st.Fields[key] = parseValues(value)
	}
	return st, nil
}

func parseValues(v string) []string {
	if (strings.HasPrefix(v, "{") && strings.HasSuffix(v, "}")) ||
		(strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]")) {
		var values []string
		for _, item := range strings.Split(v[1:len(v)-1], ",") {
			if item = strings.TrimSpace(item); item != "" {
				values = append(values, strings.Trim(item, "\""))
			}
		}
		return values
	}
	return []string{strings.Trim(v, "\"")}
}

func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func (c *Caps) IsAny() bool {
	return c != nil && c.any
}

func (c *Caps) IsEmpty() bool {
	return c == nil || (!c.any && len(c.structures) == 0)
}

func (c *Caps) GetSize() int {
	if c == nil {
		return 0
	}
	return len(c.structures)
}

func (c *Caps) GetStructureAt(i int) *Structure {
	if c == nil || i < 0 || i >= len(c.structures) {
		return nil
	}
	return c.structures[i]
}

// MediaTypes returns the structure names in order.
func (c *Caps) MediaTypes() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.structures))
	for _, st := range c.structures {
		names = append(names, st.Name)
	}
	return names
}

// HasPrefix reports whether any structure name starts with prefix.
func (c *Caps) HasPrefix(prefix string) bool {
	if c == nil {
		return false
	}
	for _, st := range c.structures {
		if strings.HasPrefix(st.Name, prefix) {
			return true
		}
	}
	return false
}

// IsRaw reports whether every structure is of the given raw media type.
// Mixed raw and non-raw caps are not raw.
func (c *Caps) IsRaw(mediaType string) bool {
	if c.IsEmpty() || c.IsAny() {
		return false
	}
	for _, st := range c.structures {
		if !strings.HasPrefix(st.Name, mediaType) {
			return false
		}
	}
	return true
}

func (c *Caps) CanIntersect(other *Caps) bool {
	if c.IsEmpty() || other.IsEmpty() {
		return false
	}
	if c.IsAny() || other.IsAny() {
		return true
	}
	for _, a := range c.structures {
		for _, b := range other.structures {
			if a.canIntersect(b) {
				return true
			}
		}
	}
	return false
}

// IsSubsetOf reports whether every format described by c is accepted by superset.
func (c *Caps) IsSubsetOf(superset *Caps) bool {
	if c.IsEmpty() {
		return true
	}
	if superset.IsAny() {
		return true
	}
	if c.IsAny() || superset.IsEmpty() {
		return false
	}
	for _, a := range c.structures {
		found := false
		for _, b := range superset.structures {
			if a.isSubsetOf(b) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (c *Caps) String() string {
	switch {
	case c == nil:
		return capsEmpty
	case c.any:
		return capsAny
	case len(c.structures) == 0:
		return capsEmpty
	}
	parts := make([]string, 0, len(c.structures))
	for _, st := range c.structures {
		parts = append(parts, st.String())
	}
	return strings.Join(parts, "; ")
}

func (s *Structure) features() string {
	if len(s.Features) == 0 {
		return featureSystemMemory
	}
	f := append([]string(nil), s.Features...)
	sort.Strings(f)
	return strings.Join(f, ",")
}

func (s *Structure) canIntersect(o *Structure) bool {
	if s.Name != o.Name || s.features() != o.features() {
		return false
	}
	for key, values := range s.Fields {
		other, ok := o.Fields[key]
		if !ok {
			continue
		}
		if !overlaps(values, other) {
			return false
		}
	}
	return true
}

func (s *Structure) isSubsetOf(o *Structure) bool {
	if s.Name != o.Name || s.features() != o.features() {
		return false
	}
	for key, allowed := range o.Fields {
		values, ok := s.Fields[key]
		if !ok {
			return false
		}
		for _, v := range values {
			if !contains(allowed, v) {
				return false
			}
		}
	}
	return true
}

func (s *Structure) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	if len(s.Features) > 0 {
		b.WriteString("(" + strings.Join(s.Features, ", ") + ")")
	}
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values := s.Fields[k]
		if len(values) == 1 {
			b.WriteString(fmt.Sprintf(", %s=%s", k, values[0]))
		} else {
			b.WriteString(fmt.Sprintf(", %s={ %s }", k, strings.Join(values, ", ")))
		}
	}
	return b.String()
}

func overlaps(a, b []string) bool {
	for _, v := range a {
		if contains(b, v) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (c *Caps) IsRawAudio() bool {
	return c.IsRaw("audio/x-raw")
}

func (c *Caps) IsRawVideo() bool {
	return c.IsRaw("video/x-raw")
}
