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

package iosops_test

import (
	"testing"

	"github.com/jacobsa/ios/guestmem"
	"github.com/jacobsa/ios/iosops"
	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
)

func TestRequest(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

const (
	blockAddr = 0x1000
	pathAddr  = 0x1100
	tableAddr = 0x1200
)

type RequestTest struct {
	mem *guestmem.RAM
}

func init() { RegisterTestSuite(&RequestTest{}) }

func (t *RequestTest) SetUp(ti *TestInfo) {
	t.mem = guestmem.NewRAM(0x10000, 0x10000)
}

func (t *RequestTest) ioctlv(in []iosops.IOVector, io []iosops.IOVector) *iosops.IOCtlVRequest {
	iosops.EncodeIOCtlV(t.mem, blockAddr, tableAddr, &iosops.IOCtlVRequest{
		Request: iosops.Request{FD: 3},
		Code:    0x21,
		In:      in,
		IO:      io,
	})

	return iosops.Decode(t.mem, blockAddr).(*iosops.IOCtlVRequest)
}

////////////////////////////////////////////////////////////////////////
// Tests
////////////////////////////////////////////////////////////////////////

func (t *RequestTest) OpenRoundTrip() {
	paths := []string{"/dev/fs", "/shared2/sys/SYSCONF", "", "/dev/usb/oh0/57e/308"}
	modes := []iosops.OpenMode{
		iosops.OpenNone,
		iosops.OpenRead,
		iosops.OpenWrite,
		iosops.OpenReadWrite,
	}

	for _, p := range paths {
		for _, m := range modes {
			iosops.EncodeOpen(t.mem, blockAddr, pathAddr, p, m)

			req, ok := iosops.Decode(t.mem, blockAddr).(*iosops.OpenRequest)
			AssertTrue(ok)

			ExpectEq(blockAddr, req.Address)
			ExpectEq(iosops.CommandOpen, req.Command)
			ExpectEq(p, req.Path)
			ExpectEq(m, req.Flags)
		}
	}
}

func (t *RequestTest) ReadWriteAndSeek() {
	iosops.EncodeReadWrite(t.mem, blockAddr, iosops.CommandWrite, 5, 0x2000, 64)

	rw := iosops.Decode(t.mem, blockAddr).(*iosops.ReadWriteRequest)
	ExpectEq(iosops.CommandWrite, rw.Command)
	ExpectEq(5, rw.FD)
	ExpectEq(0x2000, rw.Buffer)
	ExpectEq(64, rw.Size)

	iosops.EncodeSeek(t.mem, blockAddr, 6, 12, iosops.SeekEnd)

	s := iosops.Decode(t.mem, blockAddr).(*iosops.SeekRequest)
	ExpectEq(6, s.FD)
	ExpectEq(12, s.Offset)
	ExpectEq(iosops.SeekEnd, s.Mode)
}

func (t *RequestTest) IOCtl() {
	iosops.EncodeIOCtl(t.mem, blockAddr, &iosops.IOCtlRequest{
		Request:       iosops.Request{FD: 1},
		Code:          0x14,
		BufferIn:      0x2000,
		BufferInSize:  4,
		BufferOut:     0x3000,
		BufferOutSize: 12,
	})

	r := iosops.Decode(t.mem, blockAddr).(*iosops.IOCtlRequest)
	ExpectEq(1, r.FD)
	ExpectEq(0x14, r.Code)
	ExpectEq(0x2000, r.BufferIn)
	ExpectEq(4, r.BufferInSize)
	ExpectEq(0x3000, r.BufferOut)
	ExpectEq(12, r.BufferOutSize)

	ExpectThat(r.Dump(t.mem, "/dev/net/kd/time"), HasSubstr("IOCtl 0x14 on /dev/net/kd/time"))
}

func (t *RequestTest) IOCtlVSplitsVectors() {
	in := []iosops.IOVector{{0x2000, 8}, {0x2100, 16}}
	io := []iosops.IOVector{{0x2200, 4}}

	r := t.ioctlv(in, io)

	ExpectEq(0x21, r.Code)
	ExpectThat(r.In, DeepEquals(in))
	ExpectThat(r.IO, DeepEquals(io))

	ExpectEq(0x2100, r.GetVector(1).Address)
	ExpectEq(0x2200, r.GetVector(2).Address)
	ExpectEq(nil, r.GetVector(3))
	ExpectTrue(r.HasInputVectorWithAddress(0x2100))
	ExpectFalse(r.HasInputVectorWithAddress(0x2200))
}

func (t *RequestTest) HasNumberOfValidVectors_Exact() {
	r := t.ioctlv(
		[]iosops.IOVector{{0x2000, 8}},
		[]iosops.IOVector{{0x2100, 8}, {0x2200, 4}})

	ExpectTrue(r.HasNumberOfValidVectors(1, 2))
	ExpectFalse(r.HasNumberOfValidVectors(1, 1))
	ExpectFalse(r.HasNumberOfValidVectors(2, 2))
	ExpectFalse(r.HasNumberOfValidVectors(0, 3))
}

func (t *RequestTest) HasNumberOfValidVectors_NullWithSize() {
	r := t.ioctlv(
		[]iosops.IOVector{{0, 8}},
		nil)

	ExpectFalse(r.HasNumberOfValidVectors(1, 0))
}

func (t *RequestTest) HasNumberOfValidVectors_NullWithoutSize() {
	r := t.ioctlv(
		nil,
		[]iosops.IOVector{{0x2000, 4}, {0, 0}})

	ExpectTrue(r.HasNumberOfValidVectors(0, 2))
}

func (t *RequestTest) HasNumberOfValidVectors_NullOutput() {
	r := t.ioctlv(
		[]iosops.IOVector{{0x2000, 4}},
		[]iosops.IOVector{{0, 4}})

	ExpectFalse(r.HasNumberOfValidVectors(1, 1))
}

func (t *RequestTest) AbsurdVectorCounts() {
	t.mem.Write32(blockAddr, uint32(iosops.CommandIOCtlV))
	t.mem.Write32(blockAddr+0x10, 0xffffffff)
	t.mem.Write32(blockAddr+0x14, 0xffffffff)
	t.mem.Write32(blockAddr+0x18, tableAddr)

	r := iosops.Decode(t.mem, blockAddr).(*iosops.IOCtlVRequest)
	ExpectEq(0, len(r.In))
	ExpectEq(0, len(r.IO))
	ExpectFalse(r.HasNumberOfValidVectors(0, 0))
}

func (t *RequestTest) UnknownCommandPreserved() {
	t.mem.Write32(blockAddr, 0x2a)
	t.mem.Write32(blockAddr+8, 7)

	o := iosops.Decode(t.mem, blockAddr)
	r, ok := o.(*iosops.Request)
	AssertTrue(ok)

	ExpectEq(0x2a, r.Command)
	ExpectFalse(r.Command.Valid())
	ExpectEq(7, r.FD)
	ExpectEq("Command(0x2a)", r.Command.String())
}

func (t *RequestTest) ReplyDefaults() {
	r := iosops.NewReply(iosops.ENOENT)
	ExpectEq(iosops.ENOENT, r.ReturnValue)
	ExpectEq(iosops.DefaultReplyDelay, r.Delay)
	ExpectEq("ENOENT", r.ReturnValue.String())
}
