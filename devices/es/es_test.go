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

package es_test

import (
	"bytes"
	"testing"

	"github.com/jacobsa/ios/devices/es"
	"github.com/jacobsa/ios/guestmem"
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/iostesting"
	"github.com/jacobsa/ios/savestate"
	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
	"golang.org/x/net/context"
)

func TestES(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

const deviceID = 0x0403ac68

type ESTest struct {
	ctx    context.Context
	kernel *iostesting.FakeKernel
	iosc   *es.IOSC
	dev    *es.Device
}

func init() { RegisterTestSuite(&ESTest{}) }

func (t *ESTest) SetUp(ti *TestInfo) {
	t.ctx = ti.Ctx
	t.kernel = iostesting.NewFakeKernel()
	t.iosc = es.NewIOSC(deviceID)
	t.dev = es.NewDevice(t.kernel, t.iosc)
}

func (t *ESTest) ioctlv(
	code uint32,
	in []iosops.IOVector,
	io []iosops.IOVector) *iosops.Reply {
	return t.dev.IOCtlV(t.ctx, &iosops.IOCtlVRequest{
		Request: iosops.Request{Command: iosops.CommandIOCtlV},
		Code:    code,
		In:      in,
		IO:      io,
	})
}

// Run an encrypt or decrypt with the given key handle, IV and data. Returns
// the reply, the chained IV and the output.
func (t *ESTest) crypt(
	code uint32,
	h es.Handle,
	iv []byte,
	data []byte) (r *iosops.Reply, nextIV []byte, out []byte) {
	m := t.kernel.Mem
	m.Write32(0x1000, uint32(h))
	guestmem.CopyToGuest(m, 0x1100, iv)
	guestmem.CopyToGuest(m, 0x1200, data)

	n := uint32(len(data))
	r = t.ioctlv(
		code,
		[]iosops.IOVector{{Address: 0x1000, Size: 4}, {Address: 0x1100, Size: 16}, {Address: 0x1200, Size: n}},
		[]iosops.IOVector{{Address: 0x2100, Size: 16}, {Address: 0x2200, Size: n}})

	nextIV = guestmem.CopyFromGuest(m, 0x2100, 16)
	out = guestmem.CopyFromGuest(m, 0x2200, n)
	return
}

////////////////////////////////////////////////////////////////////////
// Tests
////////////////////////////////////////////////////////////////////////

func (t *ESTest) GetDeviceID() {
	r := t.ioctlv(es.IOCtlVGetDeviceID, nil, []iosops.IOVector{{Address: 0x1000, Size: 4}})

	ExpectThat(r, iostesting.ReplyIs(iosops.Success))
	ExpectEq(deviceID, t.kernel.Mem.Read32(0x1000))
}

func (t *ESTest) GetDeviceID_BadVectors() {
	r := t.ioctlv(es.IOCtlVGetDeviceID, []iosops.IOVector{{Address: 0x1000, Size: 4}}, nil)
	ExpectThat(r, iostesting.ReplyIs(es.EINVAL))

	r = t.ioctlv(es.IOCtlVGetDeviceID, nil, []iosops.IOVector{{Address: 0, Size: 4}})
	ExpectThat(r, iostesting.ReplyIs(es.EINVAL))
}

func (t *ESTest) GetTitleID() {
	t.dev.SetActiveTitle(0x0001000152534245)

	r := t.ioctlv(es.IOCtlVGetTitleID, nil, []iosops.IOVector{{Address: 0x1000, Size: 8}})
	ExpectThat(r, iostesting.ReplyIs(iosops.Success))
	ExpectEq(0x0001000152534245, t.kernel.Mem.Read64(0x1000))
}

func (t *ESTest) SetUIDAssignsStableUIDs() {
	m := t.kernel.Mem

	m.Write64(0x1000, 0x0001000152534245)
	AssertThat(
		t.ioctlv(es.IOCtlVSetUID, []iosops.IOVector{{Address: 0x1000, Size: 8}}, nil),
		iostesting.ReplyIs(iosops.Success))
	ExpectEq(0x1000, t.kernel.UID)

	m.Write64(0x1000, 0x0001000148414241)
	AssertThat(
		t.ioctlv(es.IOCtlVSetUID, []iosops.IOVector{{Address: 0x1000, Size: 8}}, nil),
		iostesting.ReplyIs(iosops.Success))
	ExpectEq(0x1001, t.kernel.UID)

	m.Write64(0x1000, 0x0001000152534245)
	t.ioctlv(es.IOCtlVSetUID, []iosops.IOVector{{Address: 0x1000, Size: 8}}, nil)
	ExpectEq(0x1000, t.kernel.UID)
}

func (t *ESTest) EncryptDecryptRoundTrip() {
	iv := bytes.Repeat([]byte{0x42}, 16)
	plain := []byte("0123456789abcdef0123456789ABCDEF")

	r, nextIV, cipherText := t.crypt(es.IOCtlVEncrypt, es.HandleSDKey, iv, plain)
	AssertThat(r, iostesting.ReplyIs(iosops.Success))
	ExpectFalse(bytes.Equal(plain, cipherText))
	ExpectThat(nextIV, DeepEquals(cipherText[16:]))

	r, _, out := t.crypt(es.IOCtlVDecrypt, es.HandleSDKey, iv, cipherText)
	AssertThat(r, iostesting.ReplyIs(iosops.Success))
	ExpectThat(out, DeepEquals(plain))
}

func (t *ESTest) EncryptIntoUnmappedBuffer() {
	m := t.kernel.Mem
	m.Write32(0x1000, uint32(es.HandleSDKey))

	// The destination runs past the end of MEM1.
	r := t.ioctlv(
		es.IOCtlVEncrypt,
		[]iosops.IOVector{{Address: 0x1000, Size: 4}, {Address: 0x1100, Size: 16}, {Address: 0x1200, Size: 32}},
		[]iosops.IOVector{{Address: 0x2100, Size: 16}, {Address: 0xffff0, Size: 32}})

	ExpectThat(r, iostesting.ReplyIs(es.EINVAL))
}

func (t *ESTest) EncryptWithKernelOnlyKey() {
	iv := make([]byte, 16)
	r, _, _ := t.crypt(es.IOCtlVEncrypt, es.HandleConsoleKey, iv, make([]byte, 16))
	ExpectThat(r, iostesting.ReplyIs(es.IOSCEACCES))
}

func (t *ESTest) EncryptWithMissingKey() {
	iv := make([]byte, 16)
	r, _, _ := t.crypt(es.IOCtlVEncrypt, 30, iv, make([]byte, 16))
	ExpectThat(r, iostesting.ReplyIs(es.IOSCENOENT))
}

func (t *ESTest) ImportedKeys() {
	h, code := t.iosc.CreateObject(es.ObjectTypeSecretKey, es.ObjectSubTypeAES128)
	AssertEq(iosops.Success, code)

	ExpectEq(iosops.Success, t.iosc.ImportSecretKey(h, bytes.Repeat([]byte{1}, 16)))
	ExpectEq(es.IOSCEINVAL, t.iosc.ImportSecretKey(h, []byte{1}))

	iv := make([]byte, 16)
	r, _, _ := t.crypt(es.IOCtlVEncrypt, h, iv, make([]byte, 16))
	ExpectThat(r, iostesting.ReplyIs(iosops.Success))

	ExpectEq(iosops.Success, t.iosc.DeleteObject(h))
	ExpectEq(es.IOSCENOENT, t.iosc.DeleteObject(h))
	ExpectEq(es.IOSCEACCES, t.iosc.DeleteObject(es.HandleCommonKey))
}

func (t *ESTest) UnknownCode() {
	r := t.ioctlv(0x99, nil, nil)
	ExpectThat(r, iostesting.ReplyIs(iosops.EINVAL))
	ExpectThat(t.kernel.Warnings, ElementsAre(HasSubstr("unknown request")))
}

func (t *ESTest) State() {
	t.dev.SetActiveTitle(17)
	t.dev.UIDFor(100)
	t.dev.UIDFor(200)

	h, _ := t.iosc.CreateObject(es.ObjectTypeSecretKey, es.ObjectSubTypeAES128)
	t.iosc.ImportSecretKey(h, bytes.Repeat([]byte{7}, 16))

	w := savestate.NewWriter()
	t.iosc.DoState(w)
	t.dev.DoState(w)
	AssertEq(nil, w.Err())

	iosc := es.NewIOSC(0)
	dev := es.NewDevice(t.kernel, iosc)

	r := savestate.NewReader(w.Data())
	iosc.DoState(r)
	dev.DoState(r)
	AssertEq(nil, r.Err())

	ExpectEq(deviceID, iosc.DeviceID())
	ExpectEq(17, dev.ActiveTitle())
	ExpectEq(0x1001, dev.UIDFor(200))
	ExpectEq(0x1002, dev.UIDFor(300))

	// The imported key survived.
	a, _, _ := t.iosc.Encrypt(h, make([]byte, 16), make([]byte, 16))
	b, _, _ := iosc.Encrypt(h, make([]byte, 16), make([]byte, 16))
	ExpectThat(b, DeepEquals(a))
}
