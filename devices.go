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
	"path/filepath"

	"github.com/jacobsa/ios/devices/bluetooth"
	"github.com/jacobsa/ios/devices/control"
	"github.com/jacobsa/ios/devices/es"
	"github.com/jacobsa/ios/devices/fs"
	"github.com/jacobsa/ios/devices/netkd"
	"github.com/jacobsa/ios/devices/sdio"
	"github.com/jacobsa/ios/devices/stub"
	"github.com/jacobsa/ios/devices/usb"
	"github.com/jacobsa/ios/iosutil"
	"github.com/jacobsa/ios/timing"
)

// registry maps device names to devices, remembering the order in which
// names were first added.
type registry struct {
	names   []string
	devices map[string]iosutil.Device
}

func newRegistry() *registry {
	return &registry{
		devices: make(map[string]iosutil.Device),
	}
}

// Add d, replacing any device of the same name in place.
func (r *registry) add(d iosutil.Device) {
	if _, ok := r.devices[d.Name()]; !ok {
		r.names = append(r.names, d.Name())
	}

	r.devices[d.Name()] = d
}

// Return the devices in order.
func (r *registry) list() (devices []iosutil.Device) {
	devices = make([]iosutil.Device, len(r.names))
	for i, name := range r.names {
		devices[i] = r.devices[name]
	}

	return
}

////////////////////////////////////////////////////////////////////////
// Registry access
////////////////////////////////////////////////////////////////////////

// Register a static device, replacing any existing device of the same name.
// Hosts may use this to install devices of their own.
//
// LOCKS_EXCLUDED(k.mu)
func (k *Kernel) AddDevice(d iosutil.Device) {
	if d.Type() != iosutil.DeviceTypeStatic {
		panic("AddDevice: only static devices may be registered")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.registry.add(d)
}

// Return the registered device with the given name, or nil.
//
// LOCKS_EXCLUDED(k.mu)
func (k *Kernel) GetDeviceByName(name string) iosutil.Device {
	k.mu.Lock()
	defer k.mu.Unlock()

	d, ok := k.registry.devices[name]
	if !ok {
		return nil
	}

	return d
}

// Return the registered devices in registration order.
//
// LOCKS_EXCLUDED(k.mu)
func (k *Kernel) Devices() []iosutil.Device {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.registry.list()
}

////////////////////////////////////////////////////////////////////////
// Building the registry
////////////////////////////////////////////////////////////////////////

// Put the kernel in the state of a freshly booted image with the given title:
// no IPC events outstanding, nothing open, empty queues and a new set of
// devices.
func (k *Kernel) reset(titleID uint64) {
	k.cancelEvents()
	k.closeAll()

	k.fileSystem.CloseAll()
	k.fileSystem = fs.NewFileSystem(k.root.Dir())
	k.iosc = es.NewIOSC(consoleDeviceID)

	k.requestQueue = nil
	k.replyQueue = nil
	k.lastReplyTick = 0
	k.paused = false
	k.titleID = titleID
	k.uid = 0
	k.gid = 0

	k.buildRegistry()
}

// Replace the registry with a fresh set of devices for the active image.
func (k *Kernel) buildRegistry() {
	k.mu.Lock()
	k.registry = newRegistry()
	k.mu.Unlock()

	k.addCoreDevices()
	if !k.cfg.CoreDevicesOnly && k.titleID != TitleMIOS {
		k.addStaticDevices()
	}

	for _, d := range k.Devices() {
		d.UpdateWantDeterminism(k.wantDeterminism)
	}
}

// Close every open fd and empty the table.
//
// LOCKS_EXCLUDED(k.mu)
func (k *Kernel) closeAll() {
	k.mu.Lock()
	fds := k.fds
	k.fds = [MaxFDs]iosutil.Device{}
	k.mu.Unlock()

	for fd, d := range fds {
		if d != nil {
			d.Close(k.opContext, uint32(fd))
		}
	}
}

// Devices every image has, including the relay image.
func (k *Kernel) addCoreDevices() {
	k.AddDevice(fs.NewDevice(k, k.fileSystem))
	k.AddDevice(es.NewDevice(k, k.iosc))
	k.AddDevice(control.NewDevice(k, k.clock))
}

// The devices of a full image, gated by what its version provides.
func (k *Kernel) addStaticDevices() {
	v := k.Version()
	has := func(f Feature) bool { return HasFeature(v, f) }
	addStub := func(name string) { k.AddDevice(stub.New(k, name)) }

	addStub("/dev/usb/oh1")
	if k.cfg.BluetoothPassthrough {
		k.AddDevice(bluetooth.NewPassthrough(k))
	} else {
		k.AddDevice(bluetooth.NewEmu(k))
	}

	addStub("/dev/stm/immediate")
	addStub("/dev/stm/eventhook")
	addStub("/dev/di")

	image := k.cfg.SDCardImage
	if image == "" {
		image = filepath.Join(k.root.Dir(), "sd.raw")
	}

	k.AddDevice(sdio.NewSlot0(k, image, k.cfg.SDCardSizeMB, k.cfg.SDCardInserted))
	addStub("/dev/sdio/slot1")

	if has(FeatureKD) {
		addStub("/dev/net/kd/request")
		k.AddDevice(netkd.NewTime(k, k.clock))
	}

	if has(FeatureNCD) {
		addStub("/dev/net/ncd/manage")
	}

	if has(FeatureWiFi) {
		addStub("/dev/net/wd/command")
	}

	if has(FeatureSO) {
		addStub("/dev/net/ip/top")
	}

	if has(FeatureSSL) {
		addStub("/dev/net/ssl")
	}

	k.AddDevice(usb.NewOH0(k, k.cfg.USBDevices))

	if has(FeatureNewUSB) {
		addStub("/dev/usb/hid")
		addStub("/dev/usb/ven")
	} else {
		if has(FeatureUSBHIDv4) {
			addStub("/dev/usb/hid")
		}

		if has(FeatureUSBKBD) {
			addStub("/dev/usb/kbd")
		}
	}

	if has(FeatureWFS) {
		addStub("/dev/usb/wfssrv")
		addStub("/dev/wfsi")
	}
}

////////////////////////////////////////////////////////////////////////
// Hooks
////////////////////////////////////////////////////////////////////////

// Give every open device its per-tick update, in registration order.
func (k *Kernel) UpdateDevices() {
	for _, d := range k.Devices() {
		if d.IsOpened() {
			d.Update()
		}
	}
}

// Tell every device whether the host is in a mode, such as movie playback or
// netplay, that requires deterministic behaviour.
func (k *Kernel) UpdateWantDeterminism(want bool) {
	k.wantDeterminism = want
	for _, d := range k.Devices() {
		d.UpdateWantDeterminism(want)
	}
}

// Ask the SD slot to re-check its card. Called after the host inserts or
// removes the card.
func (k *Kernel) SDIOEventNotify() {
	k.scheduler.ScheduleEvent(0, k.sdioEvent, nil)
}

func (k *Kernel) handleSDIOEvent(payload interface{}, late timing.Ticks) {
	if slot, ok := k.GetDeviceByName(sdio.Slot0Name).(*sdio.Slot0); ok {
		slot.EventNotify()
	}
}
