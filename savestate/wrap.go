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

// Package savestate implements the bidirectional serializer used to capture
// and restore emulator state.
//
// The same DoState method serves both directions: a Wrap in write mode
// appends each visited field to its buffer, and a Wrap in read mode overwrites
// each visited field from its buffer. Fields are encoded with the protobuf
// wire primitives (varints, zigzag, length-delimited bytes) without tags, so
// the layout is defined purely by visit order. Markers catch readers that
// drift out of step with the writer.
package savestate

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

type Mode int

const (
	ModeWrite Mode = iota
	ModeRead
)

func (m Mode) String() string {
	switch m {
	case ModeWrite:
		return "write"
	case ModeRead:
		return "read"
	}

	return fmt.Sprintf("Mode(%d)", int(m))
}

type Wrap struct {
	mode Mode

	// In write mode, everything written so far. In read mode, the bytes not yet
	// consumed.
	buf []byte

	// The first error encountered. Once set, every further visit is a no-op.
	err error
}

// Create a Wrap that records visited fields.
func NewWriter() *Wrap {
	return &Wrap{mode: ModeWrite}
}

// Create a Wrap that restores visited fields from data.
func NewReader(data []byte) *Wrap {
	return &Wrap{mode: ModeRead, buf: data}
}

func (p *Wrap) Mode() Mode {
	return p.mode
}

func (p *Wrap) IsReading() bool {
	return p.mode == ModeRead
}

// In write mode, return the encoded state. In read mode, return the bytes not
// yet consumed.
func (p *Wrap) Data() []byte {
	return p.buf
}

// Return the first encoding error, if any.
func (p *Wrap) Err() error {
	return p.err
}

// Record a failure. Only the first one is kept.
func (p *Wrap) Fail(format string, v ...interface{}) {
	if p.err == nil {
		p.err = fmt.Errorf(format, v...)
	}
}

func (p *Wrap) consumed(n int, what string) bool {
	if n < 0 {
		p.Fail("%s: %v", what, protowire.ParseError(n))
		return false
	}

	p.buf = p.buf[n:]
	return true
}

////////////////////////////////////////////////////////////////////////
// Scalars
////////////////////////////////////////////////////////////////////////

func (p *Wrap) Uint64(v *uint64) {
	if p.err != nil {
		return
	}

	switch p.mode {
	case ModeWrite:
		p.buf = protowire.AppendVarint(p.buf, *v)

	case ModeRead:
		x, n := protowire.ConsumeVarint(p.buf)
		if p.consumed(n, "Uint64") {
			*v = x
		}
	}
}

func (p *Wrap) Int64(v *int64) {
	u := protowire.EncodeZigZag(*v)
	p.Uint64(&u)
	if p.mode == ModeRead && p.err == nil {
		*v = protowire.DecodeZigZag(u)
	}
}

func (p *Wrap) Uint32(v *uint32) {
	u := uint64(*v)
	p.Uint64(&u)
	if p.mode == ModeRead && p.err == nil {
		if u > 0xffffffff {
			p.Fail("Uint32: value out of range: %d", u)
			return
		}

		*v = uint32(u)
	}
}

func (p *Wrap) Int32(v *int32) {
	w := int64(*v)
	p.Int64(&w)
	if p.mode == ModeRead && p.err == nil {
		if int64(int32(w)) != w {
			p.Fail("Int32: value out of range: %d", w)
			return
		}

		*v = int32(w)
	}
}

func (p *Wrap) Uint16(v *uint16) {
	u := uint64(*v)
	p.Uint64(&u)
	if p.mode == ModeRead && p.err == nil {
		if u > 0xffff {
			p.Fail("Uint16: value out of range: %d", u)
			return
		}

		*v = uint16(u)
	}
}

func (p *Wrap) Uint8(v *uint8) {
	u := uint64(*v)
	p.Uint64(&u)
	if p.mode == ModeRead && p.err == nil {
		if u > 0xff {
			p.Fail("Uint8: value out of range: %d", u)
			return
		}

		*v = uint8(u)
	}
}

func (p *Wrap) Bool(v *bool) {
	var u uint64
	if *v {
		u = 1
	}

	p.Uint64(&u)
	if p.mode == ModeRead && p.err == nil {
		if u > 1 {
			p.Fail("Bool: value out of range: %d", u)
			return
		}

		*v = u == 1
	}
}

////////////////////////////////////////////////////////////////////////
// Aggregates
////////////////////////////////////////////////////////////////////////

func (p *Wrap) ByteSlice(v *[]byte) {
	if p.err != nil {
		return
	}

	switch p.mode {
	case ModeWrite:
		p.buf = protowire.AppendBytes(p.buf, *v)

	case ModeRead:
		b, n := protowire.ConsumeBytes(p.buf)
		if p.consumed(n, "ByteSlice") {
			*v = append([]byte(nil), b...)
		}
	}
}

func (p *Wrap) String(v *string) {
	if p.err != nil {
		return
	}

	switch p.mode {
	case ModeWrite:
		p.buf = protowire.AppendString(p.buf, *v)

	case ModeRead:
		s, n := protowire.ConsumeString(p.buf)
		if p.consumed(n, "String") {
			*v = s
		}
	}
}

// Visit a slice of words, length first.
func (p *Wrap) Uint32s(v *[]uint32) {
	n := uint32(len(*v))
	p.Uint32(&n)
	if p.err != nil {
		return
	}

	if p.mode == ModeRead {
		// Each element occupies at least one byte.
		if int(n) > len(p.buf) {
			p.Fail("Uint32s: length %d exceeds remaining input", n)
			return
		}

		*v = make([]uint32, n)
	}

	for i := range *v {
		p.Uint32(&(*v)[i])
	}
}

// Write name, or check that the next thing in the input is name.
func (p *Wrap) Marker(name string) {
	s := name
	p.String(&s)
	if p.mode == ModeRead && p.err == nil && s != name {
		p.Fail("Marker: expected %q, found %q", name, s)
	}
}
