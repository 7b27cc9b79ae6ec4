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

package guestmem_test

import (
	"testing"

	"github.com/jacobsa/ios/guestmem"
	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
)

func TestRAM(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type RAMTest struct {
	ram *guestmem.RAM
}

func init() { RegisterTestSuite(&RAMTest{}) }

func (t *RAMTest) SetUp(ti *TestInfo) {
	t.ram = guestmem.NewRAM(0x10000, 0x10000)
}

////////////////////////////////////////////////////////////////////////
// Tests
////////////////////////////////////////////////////////////////////////

func (t *RAMTest) BigEndianWords() {
	t.ram.Write32(0x100, 0x11223344)

	ExpectEq(0x11, t.ram.Read8(0x100))
	ExpectEq(0x1122, t.ram.Read16(0x100))
	ExpectEq(0x3344, t.ram.Read16(0x102))
	ExpectEq(0x11223344, t.ram.Read32(0x100))

	t.ram.Write64(0x200, 0x0102030405060708)
	ExpectEq(0x01020304, t.ram.Read32(0x200))
	ExpectEq(0x0102030405060708, t.ram.Read64(0x200))
}

func (t *RAMTest) EffectiveAddressesAliasPhysical() {
	t.ram.Write32(0x80000010, 0xdeadbeef)
	ExpectEq(0xdeadbeef, t.ram.Read32(0x10))
	ExpectEq(0xdeadbeef, t.ram.Read32(0xc0000010))

	t.ram.Write32(0x90000020, 0xcafebabe)
	ExpectEq(0xcafebabe, t.ram.Read32(0x10000020))
	ExpectEq(0xcafebabe, t.ram.Read32(0xd0000020))
}

func (t *RAMTest) UnmappedAccesses() {
	t.ram.Write32(0x20000, 17)
	ExpectEq(0, t.ram.Read32(0x20000))

	// Straddling the end of MEM1.
	ExpectEq(nil, t.ram.Range(0xfffe, 4))
	ExpectEq(0, t.ram.Read32(0xfffe))
}

func (t *RAMTest) Strings() {
	guestmem.CopyToGuest(t.ram, 0x400, []byte("/dev/fs\x00junk"))
	ExpectEq("/dev/fs", t.ram.ReadString(0x400))

	// A string running off the end of the bank stops there.
	guestmem.CopyToGuest(t.ram, 0xfffd, []byte("abc"))
	ExpectEq("abc", t.ram.ReadString(0xfffd))
}

func (t *RAMTest) CopyAndMemset() {
	t.ram.Memset(0x1000, 0xaa, 4)
	ExpectThat(
		guestmem.CopyFromGuest(t.ram, 0x1000, 5),
		DeepEquals([]byte{0xaa, 0xaa, 0xaa, 0xaa, 0x00}))

	// Partially unmapped copies zero-fill.
	t.ram.Write8(0xffff, 7)
	ExpectThat(
		guestmem.CopyFromGuest(t.ram, 0xffff, 2),
		DeepEquals([]byte{7, 0}))
}

func (t *RAMTest) ValidRange() {
	ExpectTrue(guestmem.ValidRange(t.ram, 0x80000000, 0x10000))
	ExpectTrue(guestmem.ValidRange(t.ram, 0x90000000, 0x10000))

	ExpectFalse(guestmem.ValidRange(t.ram, 0xfffe, 4))
	ExpectFalse(guestmem.ValidRange(t.ram, 0x8f000000, 4))
	ExpectFalse(guestmem.ValidRange(t.ram, 0x80000000, 0xffffffff))

	// Nothing is touched.
	ExpectTrue(guestmem.ValidRange(t.ram, 0x8f000000, 0))
}
