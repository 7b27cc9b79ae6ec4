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

package ios

import (
	"github.com/jacobsa/ios/timing"
)

// Titles of kernel images with special meaning.
const (
	// The relay image that hands the PPC over to legacy mode. It exposes no
	// IPC devices beyond the core ones.
	TitleMIOS uint64 = 0x0000000100000101

	// The kernel image the system menu runs on.
	TitleSystemMenuIOS uint64 = 0x0000000100000050
)

// Return the version encoded in a kernel image's title ID.
func VersionOf(titleID uint64) uint32 {
	return uint32(titleID)
}

////////////////////////////////////////////////////////////////////////
// Features
////////////////////////////////////////////////////////////////////////

// Feature is a capability a kernel image may provide.
type Feature uint32

const (
	FeatureCore Feature = 1 << iota
	FeatureSDIO
	FeatureSDv2
	FeatureSO
	FeatureSSL
	FeatureNCD
	FeatureWiFi
	FeatureKD
	FeatureEthernet
	FeatureNewUSB
	FeatureEHCI
	FeatureWFS
	FeatureUSBKBD
	FeatureUSBHIDv4
)

// Return the set of features the kernel image with the given version
// provides.
func GetFeatures(version uint32) (f Feature) {
	f = FeatureCore | FeatureSDIO | FeatureSO | FeatureEthernet

	if version != 4 {
		f |= FeatureKD | FeatureSSL | FeatureNCD | FeatureWiFi
	}

	if version == 48 || (version >= 56 && version <= 62) || version == 80 {
		f |= FeatureSDv2
	}

	if version >= 57 && version <= 59 {
		f |= FeatureNewUSB
	}

	if version >= 58 && version <= 59 {
		f |= FeatureEHCI
	}

	if version == 59 {
		f |= FeatureWFS
	}

	if version >= 30 && f&FeatureNewUSB == 0 {
		f |= FeatureUSBKBD
	}

	if version >= 37 && f&FeatureNewUSB == 0 {
		f |= FeatureUSBHIDv4
	}

	return
}

// Does the kernel image with the given version provide every feature in f?
func HasFeature(version uint32, f Feature) bool {
	return GetFeatures(version)&f == f
}

// Return how long the kernel image with the given version takes to boot.
// Images from version 28 on read themselves from flash much faster.
func BootTicks(version uint32) timing.Ticks {
	if version < 28 {
		return timing.TimebaseTicks(16000000)
	}

	return timing.TimebaseTicks(2600000)
}

////////////////////////////////////////////////////////////////////////
// Memory values
////////////////////////////////////////////////////////////////////////

// The memory layout a kernel image advertises to the guest in low MEM1.
type memoryValues struct {
	iosNumber  uint16
	iosVersion uint32
	iosDate    uint32

	mem1PhysicalSize  uint32
	mem1SimulatedSize uint32
	mem1End           uint32
	mem1ArenaBegin    uint32
	mem1ArenaEnd      uint32

	mem2PhysicalSize  uint32
	mem2SimulatedSize uint32
	mem2End           uint32
	mem2ArenaBegin    uint32
	mem2ArenaEnd      uint32

	ipcBufferBegin    uint32
	ipcBufferEnd      uint32
	hollywoodRevision uint32
	ramVendor         uint32
	iosReservedBegin  uint32
	iosReservedEnd    uint32
	sysmenuSync       uint32
}

const (
	mem1Size       = 0x01800000
	mem1End        = 0x81800000
	mem2Size       = 0x04000000
	mem2ArenaBegin = 0x90000800

	hollywoodRevision = 0x00000011
	ramVendor         = 0x0000ff16
	ramVendorMIOS     = 0xcafebabe
)

// Images before 28 share one fixed IPC buffer just below 0x93400000 and
// reserve nothing above it.
func legacyLayout(number uint16, revision uint16, date uint32) memoryValues {
	return memoryValues{
		iosNumber:         number,
		iosVersion:        uint32(number)<<16 | uint32(revision),
		iosDate:           date,
		mem1PhysicalSize:  mem1Size,
		mem1SimulatedSize: mem1Size,
		mem1End:           mem1End,
		mem1ArenaBegin:    0,
		mem1ArenaEnd:      mem1End,
		mem2PhysicalSize:  mem2Size,
		mem2SimulatedSize: mem2Size,
		mem2End:           0x93400000,
		mem2ArenaBegin:    mem2ArenaBegin,
		mem2ArenaEnd:      0x933e0000,
		ipcBufferBegin:    0x933e0000,
		ipcBufferEnd:      0x93400000,
		hollywoodRevision: hollywoodRevision,
		ramVendor:         ramVendor,
		iosReservedBegin:  0x93400000,
		iosReservedEnd:    0x93400000,
	}
}

// Later images move the IPC buffer up and reserve the top of MEM2.
func modernLayout(number uint16, revision uint16, date uint32) memoryValues {
	v := legacyLayout(number, revision, date)
	v.mem2End = 0x93600000
	v.mem2ArenaEnd = 0x935e0000
	v.ipcBufferBegin = 0x935e0000
	v.ipcBufferEnd = 0x93600000
	v.iosReservedBegin = 0x93600000
	v.iosReservedEnd = 0x94000000
	return v
}

// The layouts of the kernel images we know about. Revisions and dates are
// those of the last retail build of each image.
var gMemoryValues = []memoryValues{
	legacyLayout(4, 0xff00, 0x02112006),
	legacyLayout(9, 0x040a, 0x03012010),
	legacyLayout(12, 0x020e, 0x03012010),
	legacyLayout(13, 0x0408, 0x03012010),
	legacyLayout(14, 0x0408, 0x03012010),
	legacyLayout(15, 0x0408, 0x03012010),
	legacyLayout(17, 0x0408, 0x03012010),
	legacyLayout(21, 0x040f, 0x03012010),
	legacyLayout(22, 0x050e, 0x03012010),
	modernLayout(28, 0x070f, 0x03012010),
	modernLayout(30, 0x0b00, 0x06112008),
	modernLayout(31, 0x0e18, 0x03012010),
	modernLayout(33, 0x0e18, 0x03012010),
	modernLayout(34, 0x0e18, 0x03012010),
	modernLayout(35, 0x0e18, 0x03012010),
	modernLayout(36, 0x0e18, 0x03012010),
	modernLayout(37, 0x161f, 0x03032010),
	modernLayout(38, 0x101c, 0x03032010),
	modernLayout(41, 0x0e17, 0x03012010),
	modernLayout(43, 0x0e17, 0x03012010),
	modernLayout(45, 0x0e17, 0x03012010),
	modernLayout(46, 0x0e17, 0x03012010),
	modernLayout(48, 0x101c, 0x03032010),
	modernLayout(53, 0x161f, 0x03032010),
	modernLayout(55, 0x161f, 0x03032010),
	modernLayout(56, 0x161e, 0x03032010),
	modernLayout(57, 0x171f, 0x03032010),
	modernLayout(58, 0x1820, 0x03032010),
	modernLayout(59, 0x1f21, 0x11022010),
	modernLayout(60, 0x1900, 0x11242008),
	modernLayout(61, 0x161e, 0x03032010),
	modernLayout(62, 0x191e, 0x03032010),
	modernLayout(70, 0x1b00, 0x07242009),
	modernLayout(80, 0x1b20, 0x03012010),
	mios(),
}

func mios() memoryValues {
	v := legacyLayout(257, 0, 0x03012010)
	v.ramVendor = ramVendorMIOS
	return v
}

// Find the layout for the image with the given title, if known.
func findMemoryValues(titleID uint64) (v memoryValues, ok bool) {
	number := uint16(titleID & 0xffff)
	for _, candidate := range gMemoryValues {
		if candidate.iosNumber == number {
			v = candidate
			ok = true
			return
		}
	}

	return
}
