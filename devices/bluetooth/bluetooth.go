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

// Package bluetooth implements the Bluetooth adapter node at
// /dev/usb/oh1/57e/305, either emulated or as a passthrough placeholder.
package bluetooth

import (
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/iosutil"
	"github.com/jacobsa/ios/savestate"
	"golang.org/x/net/context"
)

const DeviceName = "/dev/usb/oh1/57e/305"

// IOCtlV codes of the USB v0 interface.
const (
	IOCtlVControlMessage   = 0x00
	IOCtlVBulkMessage      = 0x01
	IOCtlVInterruptMessage = 0x02
)

// Emu is the emulated adapter. It accepts HCI traffic without a radio behind
// it.
type Emu struct {
	iosutil.DeviceBase

	// Update calls since the device was last opened.
	updates uint64

	// HCI messages accepted since the device was last opened.
	messages uint64
}

var _ iosutil.Device = &Emu{}

func NewEmu(k iosutil.Kernel) *Emu {
	return &Emu{
		DeviceBase: iosutil.NewDeviceBase(k, DeviceName),
	}
}

func (d *Emu) Updates() uint64 {
	return d.updates
}

func (d *Emu) Messages() uint64 {
	return d.messages
}

func (d *Emu) Open(
	ctx context.Context,
	req *iosops.OpenRequest) *iosops.Reply {
	d.updates = 0
	d.messages = 0
	return d.DeviceBase.Open(ctx, req)
}

func (d *Emu) IOCtlV(
	ctx context.Context,
	req *iosops.IOCtlVRequest) *iosops.Reply {
	switch req.Code {
	case IOCtlVControlMessage, IOCtlVBulkMessage, IOCtlVInterruptMessage:
		d.messages++
		d.Kernel().Logf(
			"%s: HCI message %#x with %d in, %d out",
			d.Name(),
			req.Code,
			len(req.In),
			len(req.IO))

		return iosops.NewReply(iosops.Success)
	}

	d.DumpUnknown(req.Dump(d.Kernel().Memory(), d.Name()))
	return iosops.NewReply(iosops.EINVAL)
}

func (d *Emu) Update() {
	d.updates++
}

func (d *Emu) DoState(p *savestate.Wrap) {
	d.DeviceBase.DoState(p)
	p.Uint64(&d.updates)
	p.Uint64(&d.messages)
}

// Passthrough stands in for a real adapter handed through from the host,
// which this build cannot drive. It refuses to open.
type Passthrough struct {
	iosutil.DeviceBase
}

var _ iosutil.Device = &Passthrough{}

func NewPassthrough(k iosutil.Kernel) *Passthrough {
	return &Passthrough{
		DeviceBase: iosutil.NewDeviceBase(k, DeviceName),
	}
}

func (d *Passthrough) Open(
	ctx context.Context,
	req *iosops.OpenRequest) *iosops.Reply {
	d.Kernel().Warnf(
		"%s: Bluetooth passthrough is enabled but no host adapter is available",
		d.Name())

	return iosops.NewReply(iosops.ENOENT)
}
