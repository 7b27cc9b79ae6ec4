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
	"sync"
	"time"

	"github.com/jacobsa/ios/devices/es"
	"github.com/jacobsa/ios/devices/fs"
	"github.com/jacobsa/ios/guestmem"
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/iosutil"
	"github.com/jacobsa/ios/timing"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
	"golang.org/x/net/context"
)

// The capacity of the fd table.
const MaxFDs = 0x18

// The console ID the key store is seeded with.
const consoleDeviceID = 0x0403ac68

// Commands taking longer than this on the host are logged. The virtual reply
// time is unaffected.
const SlowCommandThreshold = 2 * time.Millisecond

// At most one kernel may exist at a time, since devices own host resources
// such as the storage root.
var (
	gKernelMu     sync.Mutex
	gKernelExists bool // GUARDED_BY(gKernelMu)
)

func acquireKernelSlot() {
	gKernelMu.Lock()
	defer gKernelMu.Unlock()

	if gKernelExists {
		panic(ErrKernelExists)
	}

	gKernelExists = true
}

func releaseKernelSlot() {
	gKernelMu.Lock()
	defer gKernelMu.Unlock()

	gKernelExists = false
}

// Kernel is the IPC kernel. It owns the device registry, the fd table and the
// request and reply queues, and is driven by the scheduler it was created
// with.
//
// Kernel is not safe for concurrent use; see the package documentation.
type Kernel struct {
	/////////////////////////
	// Dependencies
	/////////////////////////

	cfg       Config
	mem       guestmem.Accessor
	scheduler timing.Scheduler
	notifier  Notifier
	clock     timeutil.Clock
	opContext context.Context

	debugLogger *log.Logger
	errorLogger *log.Logger

	// Command kinds written to debugLogger, or nil for all.
	tracedCommands map[iosops.Command]bool

	/////////////////////////
	// Scheduler events
	/////////////////////////

	ipcEvent           *timing.EventType
	sdioEvent          *timing.EventType
	finishIOSBoot      *timing.EventType
	finishPPCBootstrap *timing.EventType

	/////////////////////////
	// Subsystems
	/////////////////////////

	root       *fs.Root
	fileSystem *fs.FileSystem
	iosc       *es.IOSC

	/////////////////////////
	// Mutable state
	/////////////////////////

	// Request and reply addresses waiting for Update, oldest first.
	requestQueue []uint32
	replyQueue   []uint32

	// The tick at which the most recently scheduled reply will be delivered.
	lastReplyTick timing.Ticks

	// Set while a new kernel image boots. Update does nothing meanwhile.
	paused bool

	// The active kernel image.
	titleID uint64

	// Credentials of the PPC process.
	uid uint32
	gid uint16

	wantDeterminism bool

	mu syncutil.InvariantMutex

	// INVARIANT: For each name in registry.names, registry.devices[name] != nil
	// INVARIANT: len(registry.names) == len(registry.devices)
	registry *registry // GUARDED_BY(mu)

	// INVARIANT: No device that disallows concurrent opens occupies two slots
	fds [MaxFDs]iosutil.Device // GUARDED_BY(mu)
}

var _ iosutil.Kernel = &Kernel{}

// Create a kernel running the image named by cfg.TitleID, with memory set up
// as at power on. Panics if another kernel exists; call Shutdown on it first.
func NewKernel(cfg *Config) (k *Kernel, err error) {
	if cfg.Memory == nil || cfg.Scheduler == nil || cfg.Notifier == nil {
		err = fmt.Errorf("NewKernel: Memory, Scheduler and Notifier are required")
		return
	}

	if cfg.RAMOverride != nil {
		if err = cfg.RAMOverride.validate(cfg.Memory); err != nil {
			err = fmt.Errorf("NewKernel: %v", err)
			return
		}
	}

	acquireKernelSlot()

	k = &Kernel{
		cfg:         *cfg,
		mem:         cfg.Memory,
		scheduler:   cfg.Scheduler,
		notifier:    cfg.Notifier,
		clock:       cfg.clock(),
		opContext:   cfg.opContext(),
		debugLogger: cfg.DebugLogger,
		errorLogger: cfg.ErrorLogger,
		titleID:     cfg.TitleID,
		registry:    newRegistry(),
	}

	if k.debugLogger == nil {
		k.debugLogger = getLogger()
		k.tracedCommands = getTracedCommands()
	}

	if len(cfg.DebugCommands) > 0 {
		k.tracedCommands = commandSet(cfg.DebugCommands)
	}

	if k.titleID == 0 {
		k.titleID = TitleSystemMenuIOS
	}

	k.mu = syncutil.NewInvariantMutex(k.checkInvariants)

	k.root, err = fs.OpenRoot(cfg.StorageRoot)
	if err != nil {
		releaseKernelSlot()
		k = nil
		err = fmt.Errorf("OpenRoot: %v", err)
		return
	}

	k.fileSystem = fs.NewFileSystem(k.root.Dir())
	k.iosc = es.NewIOSC(consoleDeviceID)

	k.registerEvents()

	// Power on: the full layout first, then the image itself, as if booted.
	k.setupMemory(k.titleID, memorySetupFull)
	k.reset(k.titleID)
	k.UpdateWantDeterminism(cfg.WantDeterminism)

	return
}

// Cancel outstanding events, close every device and release the storage
// root. The kernel must not be used afterward.
func (k *Kernel) Shutdown() (err error) {
	k.cancelAllEvents()
	k.closeAll()
	k.fileSystem.CloseAll()

	err = k.root.Close()
	releaseKernelSlot()

	if err != nil {
		err = fmt.Errorf("Close: %v", err)
		return
	}

	return
}

func (k *Kernel) checkInvariants() {
	// INVARIANT: For each name in registry.names, registry.devices[name] != nil
	for _, name := range k.registry.names {
		if k.registry.devices[name] == nil {
			panic(fmt.Sprintf("Registry name %q has no device", name))
		}
	}

	// INVARIANT: len(registry.names) == len(registry.devices)
	if len(k.registry.names) != len(k.registry.devices) {
		panic(fmt.Sprintf(
			"Registry has %d names and %d devices",
			len(k.registry.names),
			len(k.registry.devices)))
	}

	// INVARIANT: No device that disallows concurrent opens occupies two slots
	for i, d := range k.fds {
		if d == nil || d.AllowsConcurrentOpens() {
			continue
		}

		for j := i + 1; j < MaxFDs; j++ {
			if k.fds[j] == d {
				panic(fmt.Sprintf("%s occupies fds %d and %d", d.Name(), i, j))
			}
		}
	}
}

////////////////////////////////////////////////////////////////////////
// Accessors
////////////////////////////////////////////////////////////////////////

func (k *Kernel) Memory() guestmem.Accessor {
	return k.mem
}

func (k *Kernel) Ticks() timing.Ticks {
	return k.scheduler.Ticks()
}

// The title of the active kernel image.
func (k *Kernel) TitleID() uint64 {
	return k.titleID
}

func (k *Kernel) Version() uint32 {
	return VersionOf(k.titleID)
}

// Is IPC suspended for a kernel image switch?
func (k *Kernel) Paused() bool {
	return k.paused
}

func (k *Kernel) UIDForPPC() uint32 {
	return k.uid
}

func (k *Kernel) SetUIDForPPC(uid uint32) {
	k.uid = uid
}

func (k *Kernel) GIDForPPC() uint16 {
	return k.gid
}

func (k *Kernel) SetGIDForPPC(gid uint16) {
	k.gid = gid
}

// The filesystem subsystem, for collaborators outside IPC such as save data
// import.
func (k *Kernel) GetFS() *fs.FileSystem {
	return k.fileSystem
}

// The /dev/fs device, or nil if it is not registered.
func (k *Kernel) GetFSDevice() *fs.Device {
	d, _ := k.GetDeviceByName(fs.DeviceName).(*fs.Device)
	return d
}

// The /dev/es device, or nil if it is not registered.
func (k *Kernel) GetES() *es.Device {
	d, _ := k.GetDeviceByName(es.DeviceName).(*es.Device)
	return d
}

func (k *Kernel) GetIOSC() *es.IOSC {
	return k.iosc
}

// The host directory backing guest storage.
func (k *Kernel) StorageRoot() string {
	return k.root.Dir()
}

////////////////////////////////////////////////////////////////////////
// Logging
////////////////////////////////////////////////////////////////////////

func (k *Kernel) Logf(format string, v ...interface{}) {
	const calldepth = 2
	k.debugLogger.Output(calldepth, fmt.Sprintf(format, v...))
}

func (k *Kernel) Warnf(format string, v ...interface{}) {
	if k.errorLogger == nil {
		return
	}

	const calldepth = 2
	k.errorLogger.Output(calldepth, fmt.Sprintf(format, v...))
}
