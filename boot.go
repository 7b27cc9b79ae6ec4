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
	"encoding/binary"
	"fmt"

	"github.com/jacobsa/ios/devices/fs"
	"github.com/jacobsa/ios/timing"
)

// The largest boot content the kernel will read from guest storage.
const maxBootContentSize = 0xb00000

// The PPC starts executing a bootstrapped image here.
const ppcEntryPoint = 0x3400

// A PPC instruction that branches to itself, parked at the reset vector while
// a new kernel image boots.
const ppcHangInstruction = 0x48000000

// Read boot content from guest storage.
func (k *Kernel) readBootContent(path string) (data []byte, err error) {
	data, err = k.fileSystem.ReadWholeFile(path, maxBootContentSize)
	if err != nil {
		err = fmt.Errorf("ReadWholeFile: %v", err)
		return
	}

	return
}

// Return the ELF image embedded in an ARM boot binary. The binary starts
// with big-endian header size, ELF offset and ELF size words; the offset is
// relative to the end of the header.
func parseARMBinary(data []byte) (elf []byte, err error) {
	const minSize = 0x10
	if len(data) < minSize {
		err = ErrBadBinary
		return
	}

	headerSize := uint64(binary.BigEndian.Uint32(data[0:]))
	elfOffset := uint64(binary.BigEndian.Uint32(data[4:]))
	elfSize := uint64(binary.BigEndian.Uint32(data[8:]))

	start := headerSize + elfOffset
	if uint64(len(data)) < start+elfSize {
		err = ErrBadBinary
		return
	}

	elf = data[start : start+elfSize]
	return
}

// Halt the PPC at its reset vector.
func (k *Kernel) resetAndPausePPC() (err error) {
	cpu := k.cfg.CPU
	if cpu == nil {
		err = fmt.Errorf("no CPU configured")
		return
	}

	k.mem.Write32(0, ppcHangInstruction)
	cpu.Reset()
	cpu.SetPC(0)

	return
}

////////////////////////////////////////////////////////////////////////
// Kernel images
////////////////////////////////////////////////////////////////////////

// Switch to the kernel image with the given title. IPC is paused at once and
// stays paused until the new image finishes booting, BootTicks of the
// current image's version later, at which point every device and fd of the
// current image is discarded.
//
// If bootContentPath is non-empty it names an ARM binary in guest storage,
// whose ELF is loaded into MEM1. If hang is set, the PPC is parked for the
// duration.
//
// IPC is not resumed if an error is returned.
func (k *Kernel) BootIOS(
	titleID uint64,
	hang bool,
	bootContentPath string) (err error) {
	k.paused = true

	if bootContentPath != "" {
		if k.cfg.Loader == nil {
			err = fmt.Errorf("BootIOS: no binary loader configured")
			return
		}

		var data, elf []byte
		data, err = k.readBootContent(bootContentPath)
		if err != nil {
			err = fmt.Errorf("BootIOS: %v", err)
			return
		}

		elf, err = parseARMBinary(data)
		if err != nil {
			err = fmt.Errorf("BootIOS: %v", err)
			return
		}

		err = k.cfg.Loader.LoadELF(elf, true)
		if err != nil {
			err = fmt.Errorf("LoadELF: %v", err)
			return
		}
	}

	if hang {
		err = k.resetAndPausePPC()
		if err != nil {
			err = fmt.Errorf("BootIOS: %v", err)
			return
		}
	}

	k.Logf("Booting IOS %016x", titleID)
	k.scheduler.ScheduleEvent(BootTicks(k.Version()), k.finishIOSBoot, titleID)

	return
}

func (k *Kernel) handleFinishIOSBoot(payload interface{}, late timing.Ticks) {
	titleID := payload.(uint64)

	// Unknown images still boot; the guest just sees a stale layout.
	k.setupMemory(titleID, memorySetupIOSReload)
	k.reset(titleID)

	k.Logf("IOS %016x is up", titleID)
}

////////////////////////////////////////////////////////////////////////
// PPC bootstrap
////////////////////////////////////////////////////////////////////////

// Load the DOL at path in guest storage and start the PPC on it once it has
// been read from flash, resetting the memory layout for the active image
// first.
func (k *Kernel) BootstrapPPC(path string) (err error) {
	if k.cfg.Loader == nil {
		err = fmt.Errorf("BootstrapPPC: no binary loader configured")
		return
	}

	dol, err := k.readBootContent(path)
	if err != nil {
		err = fmt.Errorf("BootstrapPPC: %v", err)
		return
	}

	if !k.setupMemory(k.titleID, memorySetupFull) {
		err = ErrUnknownVersion
		return
	}

	err = k.resetAndPausePPC()
	if err != nil {
		err = fmt.Errorf("BootstrapPPC: %v", err)
		return
	}

	err = k.cfg.Loader.LoadDOL(dol)
	if err != nil {
		err = fmt.Errorf("LoadDOL: %v", err)
		return
	}

	k.Logf("BootstrapPPC: %s", path)
	k.scheduler.ScheduleEvent(
		fs.Delay(uint32(len(dol))),
		k.finishPPCBootstrap,
		nil)

	return
}

func (k *Kernel) handleFinishPPCBootstrap(payload interface{}, late timing.Ticks) {
	k.mem.Write32(0, 0)
	k.cfg.CPU.SetPC(ppcEntryPoint)
}
