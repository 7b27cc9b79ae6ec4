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

package ios_test

import (
	"github.com/jacobsa/ios"
	"github.com/jacobsa/ios/guestmem"
	"github.com/jacobsa/ios/timing"
	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
)

////////////////////////////////////////////////////////////////////////
// Features
////////////////////////////////////////////////////////////////////////

type VersionsTest struct {
}

func init() { RegisterTestSuite(&VersionsTest{}) }

func (t *VersionsTest) VersionOf() {
	ExpectEq(80, ios.VersionOf(ios.TitleSystemMenuIOS))
	ExpectEq(257, ios.VersionOf(ios.TitleMIOS))
}

func (t *VersionsTest) EveryImageHasTheBasics() {
	for _, v := range []uint32{4, 9, 36, 58, 80} {
		ExpectTrue(ios.HasFeature(v, ios.FeatureCore|ios.FeatureSDIO), "%d", v)
		ExpectTrue(ios.HasFeature(v, ios.FeatureSO|ios.FeatureEthernet), "%d", v)
	}
}

func (t *VersionsTest) OldestImageLacksNetworking() {
	ExpectFalse(ios.HasFeature(4, ios.FeatureKD))
	ExpectFalse(ios.HasFeature(4, ios.FeatureSSL))
	ExpectTrue(ios.HasFeature(9, ios.FeatureKD|ios.FeatureSSL|ios.FeatureWiFi))
}

func (t *VersionsTest) USB() {
	ExpectFalse(ios.HasFeature(56, ios.FeatureNewUSB))
	ExpectTrue(ios.HasFeature(57, ios.FeatureNewUSB))
	ExpectFalse(ios.HasFeature(57, ios.FeatureEHCI))
	ExpectTrue(ios.HasFeature(58, ios.FeatureNewUSB|ios.FeatureEHCI))
	ExpectTrue(ios.HasFeature(59, ios.FeatureWFS))
	ExpectFalse(ios.HasFeature(60, ios.FeatureNewUSB))

	ExpectFalse(ios.HasFeature(29, ios.FeatureUSBKBD))
	ExpectTrue(ios.HasFeature(30, ios.FeatureUSBKBD))
	ExpectFalse(ios.HasFeature(36, ios.FeatureUSBHIDv4))
	ExpectTrue(ios.HasFeature(37, ios.FeatureUSBHIDv4))
	ExpectFalse(ios.HasFeature(58, ios.FeatureUSBHIDv4))
}

func (t *VersionsTest) SDv2() {
	ExpectTrue(ios.HasFeature(48, ios.FeatureSDv2))
	ExpectFalse(ios.HasFeature(53, ios.FeatureSDv2))
	ExpectTrue(ios.HasFeature(80, ios.FeatureSDv2))
}

func (t *VersionsTest) BootTicks() {
	ExpectEq(timing.TimebaseTicks(16000000), ios.BootTicks(27))
	ExpectEq(timing.TimebaseTicks(2600000), ios.BootTicks(28))
	ExpectLt(ios.BootTicks(80), ios.BootTicks(9))
}

////////////////////////////////////////////////////////////////////////
// Memory layout
////////////////////////////////////////////////////////////////////////

const (
	mem1SizeAddr          = 0x3100
	mem2SizeAddr          = 0x3118
	mem2EndAddr           = 0x3120
	mem2ArenaBeginAddr    = 0x3124
	ipcBufferBeginAddr    = 0x3130
	ipcBufferEndAddr      = 0x3134
	iosReservedBeginAddr  = 0x3148
	iosReservedEndAddr    = 0x314c
	ramVendorAddr         = 0x3158
	bootFlagAddr          = 0x315c
	devkitBootProgramAddr = 0x315e
)

type MemoryTest struct {
	kernelFixture
}

func init() { RegisterTestSuite(&MemoryTest{}) }

func (t *MemoryTest) SetUp(ti *TestInfo) {
	t.setUp(ti)
	t.cfg.CoreDevicesOnly = true
}

func (t *MemoryTest) RetailLayout() {
	t.start()
	m := t.mem

	ExpectEq(0x01800000, m.Read32(mem1SizeAddr))
	ExpectEq(0x04000000, m.Read32(mem2SizeAddr))
	ExpectEq(0x93600000, m.Read32(mem2EndAddr))
	ExpectEq(0x935e0000, m.Read32(ipcBufferBeginAddr))
	ExpectEq(0x93600000, m.Read32(ipcBufferEndAddr))
	ExpectEq(0x94000000, m.Read32(iosReservedEndAddr))
	ExpectEq(0x00501b20, m.Read32(iosVersionAddr))
	ExpectEq(0x0000ff16, m.Read32(ramVendorAddr))
	ExpectEq(0xde, m.Read8(bootFlagAddr))
	ExpectEq(0xbeef, m.Read16(devkitBootProgramAddr))
}

func (t *MemoryTest) LegacyLayout() {
	t.cfg.TitleID = 0x0000000100000009
	t.start()

	ExpectEq(0x93400000, t.mem.Read32(mem2EndAddr))
	ExpectEq(0x933e0000, t.mem.Read32(ipcBufferBeginAddr))
	ExpectEq(0x93400000, t.mem.Read32(iosReservedEndAddr))
}

func (t *MemoryTest) ClearsLowMemory() {
	t.mem.Write32(0x100, 0xdeadbeef)
	t.start()

	ExpectEq(0, t.mem.Read32(0x100))
}

func (t *MemoryTest) UnknownImage() {
	t.cfg.TitleID = 0x0000000100000063
	t.mem.Write32(iosVersionAddr, 17)
	t.start()

	ExpectEq(17, t.mem.Read32(iosVersionAddr))
	ExpectThat(t.warnings.String(), HasSubstr("Unknown IOS version"))
}

func (t *MemoryTest) RAMOverride() {
	t.mem = guestmem.NewRAM(0x04000000, 0x08000000)
	t.cfg.Memory = t.mem
	t.cfg.RAMOverride = &ios.RAMOverride{
		Mem1Size: 0x04000000,
		Mem2Size: 0x08000000,
	}

	t.start()
	m := t.mem

	ExpectEq(0x04000000, m.Read32(mem1SizeAddr))
	ExpectEq(0x08000000, m.Read32(mem2SizeAddr))
	ExpectEq(0x90000800, m.Read32(mem2ArenaBeginAddr))

	// The reserved region keeps its retail size of 10 MiB.
	ExpectEq(0x97600000, m.Read32(mem2EndAddr))
	ExpectEq(0x97600000, m.Read32(iosReservedBeginAddr))
	ExpectEq(0x98000000, m.Read32(iosReservedEndAddr))

	// As does the IPC buffer.
	ExpectEq(0x975e0000, m.Read32(ipcBufferBeginAddr))
	ExpectEq(0x97600000, m.Read32(ipcBufferEndAddr))
}

func (t *MemoryTest) RAMOverrideSmallerThanRetail() {
	t.cfg.RAMOverride = &ios.RAMOverride{
		Mem1Size: 0x01800000,
		Mem2Size: 0x00800000,
	}

	k, err := ios.NewKernel(&t.cfg)
	ExpectThat(err, Error(HasSubstr("smaller than retail")))
	ExpectTrue(k == nil)

	// Nothing was claimed.
	t.cfg.RAMOverride = nil
	t.start()
}

func (t *MemoryTest) RAMOverrideLargerThanMemory() {
	t.cfg.RAMOverride = &ios.RAMOverride{
		Mem1Size: 0x01800000,
		Mem2Size: 0x08000000,
	}

	_, err := ios.NewKernel(&t.cfg)
	ExpectThat(err, Error(HasSubstr("exceeds guest memory")))
}

func (t *MemoryTest) ReloadKeepsMEM1() {
	t.start()
	t.mem.Write32(mem1SizeAddr, 0x1234)

	AssertEq(nil, t.k.BootIOS(0x0000000100000009, false, ""))
	t.drain()

	ExpectEq(0x1234, t.mem.Read32(mem1SizeAddr))
	ExpectEq(0x93400000, t.mem.Read32(mem2EndAddr))
	ExpectEq(0x00090000|0x040a, t.mem.Read32(iosVersionAddr))
}
