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

package native

import (
	"reflect"

	"github.com/go-gst/go-gst/gst"

	"github.com/livekit/playback/pkg/gstreamer"
)

var (
	elementType = reflect.TypeOf((*gstreamer.Element)(nil)).Elem()
	padType     = reflect.TypeOf((*gstreamer.Pad)(nil)).Elem()
	capsType    = reflect.TypeOf((*gstreamer.Caps)(nil))
	factoryType = reflect.TypeOf((*gstreamer.Factory)(nil))
)

// autoplugSelect adapts a func(Element, Pad, *Caps, *Factory) handler with an
// integer result. It returns nil when f has another shape.
func (m *Maker) autoplugSelect(f any) any {
	fv := reflect.ValueOf(f)
	ft := fv.Type()
	if ft.Kind() != reflect.Func || ft.NumIn() != 4 || ft.NumOut() != 1 {
		return nil
	}
	if ft.In(0) != elementType || ft.In(1) != padType || ft.In(2) != capsType || ft.In(3) != factoryType {
		return nil
	}
	if ft.Out(0).Kind() != reflect.Int {
		return nil
	}

	return func(self *gst.Element, pad *gst.Pad, caps *gst.Caps, factory *gst.ElementFactory) int {
		args := []reflect.Value{
			valueOf(elementType, m.wrap(self)),
			valueOf(padType, m.wrapPad(pad)),
			reflect.ValueOf(fromCaps(caps)),
			reflect.ValueOf(m.factory(factory)),
		}
		return int(fv.Call(args)[0].Int())
	}
}

func valueOf(t reflect.Type, v any) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	return reflect.ValueOf(v)
}
