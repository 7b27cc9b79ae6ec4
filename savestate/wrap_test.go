// Copyright 2015 Google Inc. All Rights Reserved.
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

package savestate_test

import (
	"testing"

	"github.com/jacobsa/ios/savestate"
	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
)

func TestWrap(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type WrapTest struct {
}

func init() { RegisterTestSuite(&WrapTest{}) }

type record struct {
	a uint32
	b int64
	c bool
	d string
	e []uint32
	f uint16
	g []byte
}

func (r *record) DoState(p *savestate.Wrap) {
	p.Uint32(&r.a)
	p.Int64(&r.b)
	p.Marker("middle")
	p.Bool(&r.c)
	p.String(&r.d)
	p.Uint32s(&r.e)
	p.Uint16(&r.f)
	p.ByteSlice(&r.g)
}

////////////////////////////////////////////////////////////////////////
// Tests
////////////////////////////////////////////////////////////////////////

func (t *WrapTest) SameMethodSavesAndRestores() {
	in := record{
		a: 0xdeadbeef,
		b: -12345678901,
		c: true,
		d: "/dev/fs",
		e: []uint32{0x1000, 0x2000},
		f: 0xbeef,
		g: []byte("taco"),
	}

	w := savestate.NewWriter()
	in.DoState(w)
	AssertEq(nil, w.Err())

	var out record
	r := savestate.NewReader(w.Data())
	out.DoState(r)

	AssertEq(nil, r.Err())
	ExpectEq(0, len(r.Data()))
	ExpectThat(out, DeepEquals(in))
}

func (t *WrapTest) TruncatedInput() {
	in := record{d: "hello", e: []uint32{1, 2, 3}}

	w := savestate.NewWriter()
	in.DoState(w)
	data := w.Data()

	var out record
	r := savestate.NewReader(data[:len(data)-3])
	out.DoState(r)

	ExpectNe(nil, r.Err())
}

func (t *WrapTest) MarkerMismatch() {
	w := savestate.NewWriter()
	w.Marker("kernel")

	r := savestate.NewReader(w.Data())
	r.Marker("devices")

	ExpectThat(r.Err(), Error(HasSubstr("expected \"devices\"")))
}

func (t *WrapTest) ErrorsAreSticky() {
	r := savestate.NewReader(nil)

	var a uint32 = 17
	var s = "unchanged"
	r.Uint32(&a)
	r.String(&s)

	ExpectNe(nil, r.Err())
	ExpectEq(17, a)
	ExpectEq("unchanged", s)
}
