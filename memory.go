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
	"github.com/jacobsa/ios/guestmem"
)

// Addresses in low MEM1 where the kernel advertises the memory layout.
const (
	addrMem1Size           = 0x3100
	addrMem1SimSize        = 0x3104
	addrMem1End            = 0x3108
	addrMem1ArenaBegin     = 0x310c
	addrMem1ArenaEnd       = 0x3110
	addrPH1                = 0x3114
	addrMem2Size           = 0x3118
	addrMem2SimSize        = 0x311c
	addrMem2End            = 0x3120
	addrMem2ArenaBegin     = 0x3124
	addrMem2ArenaEnd       = 0x3128
	addrPH2                = 0x312c
	addrIPCBufferBegin     = 0x3130
	addrIPCBufferEnd       = 0x3134
	addrHollywoodRevision  = 0x3138
	addrPH3                = 0x313c
	addrIOSVersion         = 0x3140
	addrIOSDate            = 0x3144
	addrIOSReservedBegin   = 0x3148
	addrIOSReservedEnd     = 0x314c
	addrPH4                = 0x3150
	addrPH5                = 0x3154
	addrRAMVendor          = 0x3158
	addrBootFlag           = 0x315c
	addrApploaderFlag      = 0x315d
	addrDevkitBootProgram  = 0x315e
	addrSysmenuSync        = 0x3160
	placeholder            = 0xdeadbeef
	lowMem1RegionSize      = 0x3fff
	mem2ArenaBeginOverride = guestmem.Mem2Base + 0x800
)

type memorySetupType int

const (
	// Everything, as when the console powers on.
	memorySetupFull memorySetupType = iota

	// Only what a kernel image rewrites when it is reloaded.
	memorySetupIOSReload
)

// Write the memory layout of the kernel image with the given title into low
// MEM1. Returns false, leaving memory untouched, if the image is unknown.
func (k *Kernel) setupMemory(titleID uint64, t memorySetupType) bool {
	v, ok := findMemoryValues(titleID)
	if !ok {
		k.Warnf("Unknown IOS version: %016x", titleID)
		return false
	}

	m := k.mem
	if t == memorySetupIOSReload {
		m.Write32(addrIOSVersion, v.iosVersion)

		// Older images inherit the IPC buffer range rather than writing it, but
		// the range they inherit is the one every newer image sets up before
		// loading them. Writing the right range directly has the same effect.
		m.Write32(addrMem2Size, v.mem2PhysicalSize)
		m.Write32(addrMem2SimSize, v.mem2SimulatedSize)
		m.Write32(addrMem2End, v.mem2End)
		m.Write32(addrMem2ArenaBegin, v.mem2ArenaBegin)
		m.Write32(addrMem2ArenaEnd, v.mem2ArenaEnd)
		m.Write32(addrIPCBufferBegin, v.ipcBufferBegin)
		m.Write32(addrIPCBufferEnd, v.ipcBufferEnd)
		m.Write32(addrIOSReservedBegin, v.iosReservedBegin)
		m.Write32(addrIOSReservedEnd, v.iosReservedEnd)

		k.overrideRAM(t)
		return true
	}

	m.Memset(0, 0, lowMem1RegionSize)

	m.Write32(addrMem1Size, v.mem1PhysicalSize)
	m.Write32(addrMem1SimSize, v.mem1SimulatedSize)
	m.Write32(addrMem1End, v.mem1End)
	m.Write32(addrMem1ArenaBegin, v.mem1ArenaBegin)
	m.Write32(addrMem1ArenaEnd, v.mem1ArenaEnd)
	m.Write32(addrPH1, placeholder)
	m.Write32(addrMem2Size, v.mem2PhysicalSize)
	m.Write32(addrMem2SimSize, v.mem2SimulatedSize)
	m.Write32(addrMem2End, v.mem2End)
	m.Write32(addrMem2ArenaBegin, v.mem2ArenaBegin)
	m.Write32(addrMem2ArenaEnd, v.mem2ArenaEnd)
	m.Write32(addrPH2, placeholder)
	m.Write32(addrIPCBufferBegin, v.ipcBufferBegin)
	m.Write32(addrIPCBufferEnd, v.ipcBufferEnd)
	m.Write32(addrHollywoodRevision, v.hollywoodRevision)
	m.Write32(addrPH3, placeholder)
	m.Write32(addrIOSVersion, v.iosVersion)
	m.Write32(addrIOSDate, v.iosDate)
	m.Write32(addrIOSReservedBegin, v.iosReservedBegin)
	m.Write32(addrIOSReservedEnd, v.iosReservedEnd)
	m.Write32(addrPH4, placeholder)
	m.Write32(addrPH5, placeholder)
	m.Write32(addrRAMVendor, v.ramVendor)
	m.Write8(addrBootFlag, 0xde)
	m.Write8(addrApploaderFlag, 0xad)
	m.Write16(addrDevkitBootProgram, 0xbeef)
	m.Write32(addrSysmenuSync, v.sysmenuSync)

	k.overrideRAM(t)
	return true
}

// If a RAM override is configured, recompute every bound from the real memory
// sizes, keeping the IPC buffer and reserved region sizes the image chose.
// MEM1 fields are left alone on reload since the guest's apploader may have
// changed them.
func (k *Kernel) overrideRAM(t memorySetupType) {
	o := k.cfg.RAMOverride
	if o == nil {
		return
	}

	m := k.mem
	ipcBufferSize := m.Read32(addrIPCBufferEnd) - m.Read32(addrIPCBufferBegin)
	reservedSize := m.Read32(addrIOSReservedEnd) - m.Read32(addrIOSReservedBegin)

	mem1End := guestmem.Mem1Base + o.Mem1Size
	mem2End := guestmem.Mem2Base + o.Mem2Size - reservedSize
	mem2ArenaEnd := mem2End - ipcBufferSize

	if t == memorySetupFull {
		m.Write32(addrMem1Size, o.Mem1Size)
		m.Write32(addrMem1SimSize, o.Mem1Size)
		m.Write32(addrMem1End, mem1End)
		m.Write32(addrMem1ArenaBegin, 0)
		m.Write32(addrMem1ArenaEnd, mem1End)
	}

	m.Write32(addrMem2Size, o.Mem2Size)
	m.Write32(addrMem2SimSize, o.Mem2Size)
	m.Write32(addrMem2End, mem2End)
	m.Write32(addrMem2ArenaBegin, mem2ArenaBeginOverride)
	m.Write32(addrMem2ArenaEnd, mem2ArenaEnd)
	m.Write32(addrIPCBufferBegin, mem2ArenaEnd)
	m.Write32(addrIPCBufferEnd, mem2End)
	m.Write32(addrIOSReservedBegin, mem2End)
	m.Write32(addrIOSReservedEnd, guestmem.Mem2Base+o.Mem2Size)
}
