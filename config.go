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
	"fmt"
	"log"

	"github.com/jacobsa/ios/devices/usb"
	"github.com/jacobsa/ios/guestmem"
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/timing"
	"github.com/jacobsa/timeutil"
	"golang.org/x/net/context"
)

// Notifier is the hardware IPC interface: the registers and interrupt lines
// through which the kernel signals the guest.
type Notifier interface {
	// Has the guest consumed the previous notification?
	IsReady() bool

	// Tell the guest that the request at addr has been picked up.
	GenerateAck(addr uint32)

	// Tell the guest that the request at addr has a reply.
	GenerateReply(addr uint32)

	// Clear the "request pending" flag.
	ClearX1()
}

// CPU is the control surface of the guest processor the kernel needs for
// booting.
type CPU interface {
	// Reset the processor, leaving it halted.
	Reset()

	SetPC(pc uint32)
}

// BinaryLoader places executable images into guest memory.
type BinaryLoader interface {
	// Load the segments of an ELF image. If mem1Only, segments outside MEM1
	// are skipped.
	LoadELF(image []byte, mem1Only bool) error

	// Load the sections of a DOL image.
	LoadDOL(image []byte) error
}

// RAMOverride replaces the retail memory sizes advertised to the guest.
// Neither size may be below retail, and m must map both banks in full.
type RAMOverride struct {
	Mem1Size uint32
	Mem2Size uint32
}

// The kernel's reserved region and IPC buffer are carved out of the top of
// MEM2 with their retail sizes, so a smaller bank would push them out of it.
func (o *RAMOverride) validate(m guestmem.Accessor) (err error) {
	if o.Mem1Size < guestmem.DefaultMem1Size || o.Mem2Size < guestmem.DefaultMem2Size {
		err = fmt.Errorf(
			"RAM override %#x/%#x is smaller than retail %#x/%#x",
			o.Mem1Size,
			o.Mem2Size,
			guestmem.DefaultMem1Size,
			guestmem.DefaultMem2Size)
		return
	}

	if !guestmem.ValidRange(m, guestmem.Mem1Base, o.Mem1Size) ||
		!guestmem.ValidRange(m, guestmem.Mem2Base, o.Mem2Size) {
		err = fmt.Errorf(
			"RAM override %#x/%#x exceeds guest memory",
			o.Mem1Size,
			o.Mem2Size)
		return
	}

	return
}

// Optional configuration accepted by NewKernel and Init.
type Config struct {
	/////////////////////////
	// Collaborators
	/////////////////////////

	// Guest memory. Required.
	Memory guestmem.Accessor

	// The virtual clock. Required.
	Scheduler timing.Scheduler

	// The IPC interrupt interface. Required.
	Notifier Notifier

	// The guest processor. Required for BootIOS with hang set and for
	// BootstrapPPC.
	CPU CPU

	// Required for booting from binaries.
	Loader BinaryLoader

	// The host wall clock, used for diagnostics and for devices that report
	// real time. Defaults to timeutil.RealClock().
	Clock timeutil.Clock

	// The parent context for every device operation. Defaults to
	// context.Background().
	OpContext context.Context

	/////////////////////////
	// Logging
	/////////////////////////

	// If non-nil, a logger for per-request debugging output. Otherwise the
	// --ios.debug flag decides.
	DebugLogger *log.Logger

	// If non-empty, only these command kinds are traced to the debug logger.
	// Otherwise the --ios.debug_commands flag decides when DebugLogger is nil,
	// and every kind is traced when it is set.
	DebugCommands []iosops.Command

	// If non-nil, where to write warnings: unsupported device operations,
	// unknown versions, slow requests.
	ErrorLogger *log.Logger

	/////////////////////////
	// Storage
	/////////////////////////

	// The host directory backing the guest's internal storage. The kernel
	// takes an exclusive lock on it. If empty, a temporary directory is
	// created and removed on Shutdown.
	StorageRoot string

	// The host file backing the SD card. If empty, a file named sd.raw in
	// StorageRoot.
	SDCardImage string

	// Size of the SD card image created when it does not exist. Defaults to
	// 128 MiB.
	SDCardSizeMB uint32

	// Is a card present in the slot at startup?
	SDCardInserted bool

	/////////////////////////
	// Devices
	/////////////////////////

	// Forward bluetooth to a host adapter rather than emulating it.
	BluetoothPassthrough bool

	// USB devices attached to the OH0 bus.
	USBDevices []usb.DeviceID

	// Build only the core devices, for tooling that needs storage access
	// without a running guest.
	CoreDevicesOnly bool

	// Start with devices in deterministic mode.
	WantDeterminism bool

	/////////////////////////
	// Memory
	/////////////////////////

	// Title of the kernel image active at Init. Defaults to the system menu's
	// IOS.
	TitleID uint64

	// If non-nil, advertise these memory sizes instead of the retail ones.
	RAMOverride *RAMOverride
}

func (c *Config) opContext() context.Context {
	if c.OpContext == nil {
		return context.Background()
	}

	return c.OpContext
}

func (c *Config) clock() timeutil.Clock {
	if c.Clock == nil {
		return timeutil.RealClock()
	}

	return c.Clock
}
