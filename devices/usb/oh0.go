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

// Package usb implements the OH0 host controller at /dev/usb/oh0 and the
// per-device nodes opened beneath it.
package usb

import (
	"fmt"
	"sort"

	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/iosutil"
	"github.com/jacobsa/ios/savestate"
	"golang.org/x/net/context"
)

const OH0Name = "/dev/usb/oh0"

// IOCtlV codes understood on the controller.
const (
	IOCtlVGetDeviceList = 0x0c
)

// DeviceID identifies an attached USB device by vendor and product.
type DeviceID struct {
	VID uint16
	PID uint16
}

func (id DeviceID) String() string {
	return fmt.Sprintf("%04x:%04x", id.VID, id.PID)
}

// A key unique to the device for the lifetime of the controller.
func (id DeviceID) key() uint64 {
	return uint64(id.VID)<<16 | uint64(id.PID)
}

// The size of one GETDEVLIST entry: u32 reserved, u16 vid, u16 pid.
const deviceEntrySize = 8

// OH0 is the host controller. It knows which devices are plugged in and which
// of them have a node open.
type OH0 struct {
	iosutil.DeviceBase

	// Sorted by key.
	attached []DeviceID

	// Keys of devices with an open node.
	opened map[uint64]bool
}

var _ iosutil.Device = &OH0{}

func NewOH0(k iosutil.Kernel, attached []DeviceID) (d *OH0) {
	d = &OH0{
		DeviceBase: iosutil.NewDeviceBaseWithType(
			k,
			OH0Name,
			iosutil.DeviceTypeStatic,
			true),
		opened: make(map[uint64]bool),
	}

	for _, id := range attached {
		d.Attach(id)
	}

	return
}

// Plug a device in. Attaching twice is a no-op.
func (d *OH0) Attach(id DeviceID) {
	if d.IsAttached(id) {
		return
	}

	d.attached = append(d.attached, id)
	sort.Slice(d.attached, func(i, j int) bool {
		return d.attached[i].key() < d.attached[j].key()
	})
}

// Unplug a device. An open node for it stays open but its transfers fail.
func (d *OH0) Detach(id DeviceID) {
	for i, a := range d.attached {
		if a == id {
			d.attached = append(d.attached[:i], d.attached[i+1:]...)
			return
		}
	}
}

func (d *OH0) IsAttached(id DeviceID) bool {
	for _, a := range d.attached {
		if a == id {
			return true
		}
	}

	return false
}

// Claim a device for a node. Fails with ENOENT if it is not plugged in and
// EEXIST if another node holds it.
func (d *OH0) OpenDevice(id DeviceID) iosops.ReturnCode {
	if !d.IsAttached(id) {
		return iosops.ENOENT
	}

	if d.opened[id.key()] {
		return iosops.EEXIST
	}

	d.opened[id.key()] = true
	return iosops.Success
}

func (d *OH0) CloseDevice(id DeviceID) {
	delete(d.opened, id.key())
}

// Handle a transfer sent to a device node. No host backend is attached, so a
// transfer to a claimed device completes with nothing moved.
func (d *OH0) deviceTransfer(id DeviceID, code uint32) *iosops.Reply {
	if !d.opened[id.key()] || !d.IsAttached(id) {
		return iosops.NewReply(iosops.ENOENT)
	}

	d.Kernel().Logf("%s: transfer %#x to %v", d.Name(), code, id)
	return iosops.NewReply(iosops.Success)
}

////////////////////////////////////////////////////////////////////////
// Device methods
////////////////////////////////////////////////////////////////////////

func (d *OH0) IOCtlV(
	ctx context.Context,
	req *iosops.IOCtlVRequest) *iosops.Reply {
	switch req.Code {
	case IOCtlVGetDeviceList:
		return d.getDeviceList(req)
	}

	d.DumpUnknown(req.Dump(d.Kernel().Memory(), d.Name()))
	return iosops.NewReply(iosops.EINVAL)
}

// In: max entries (u8), interface class (u8). Out: entry count (u8), entries.
func (d *OH0) getDeviceList(req *iosops.IOCtlVRequest) *iosops.Reply {
	if !req.HasNumberOfValidVectors(2, 2) {
		return iosops.NewReply(iosops.EINVAL)
	}

	m := d.Kernel().Memory()
	limit := uint32(m.Read8(req.In[0].Address))
	if room := req.IO[1].Size / deviceEntrySize; room < limit {
		limit = room
	}

	var n uint32
	for _, id := range d.attached {
		if n >= limit {
			break
		}

		entry := req.IO[1].Address + n*deviceEntrySize
		m.Write32(entry, 0)
		m.Write16(entry+4, id.VID)
		m.Write16(entry+6, id.PID)
		n++
	}

	m.Write8(req.IO[0].Address, uint8(n))
	return iosops.NewReply(iosops.Success)
}

func (d *OH0) DoState(p *savestate.Wrap) {
	d.DeviceBase.DoState(p)

	count := uint32(len(d.attached))
	p.Uint32(&count)
	if p.IsReading() {
		if int(count) > len(p.Data()) {
			p.Fail("OH0: %d attached devices exceeds remaining input", count)
			return
		}

		d.attached = make([]DeviceID, count)
	}

	for i := range d.attached {
		p.Uint16(&d.attached[i].VID)
		p.Uint16(&d.attached[i].PID)
	}

	keys := make([]uint64, 0, len(d.opened))
	for k := range d.opened {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	count = uint32(len(keys))
	p.Uint32(&count)
	if p.IsReading() {
		if int(count) > len(p.Data()) {
			p.Fail("OH0: %d open devices exceeds remaining input", count)
			return
		}

		keys = make([]uint64, count)
	}

	for i := range keys {
		p.Uint64(&keys[i])
	}

	if p.IsReading() {
		d.opened = make(map[uint64]bool)
		for _, k := range keys {
			d.opened[k] = true
		}
	}
}
