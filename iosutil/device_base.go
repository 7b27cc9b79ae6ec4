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

package iosutil

import (
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/savestate"
	"golang.org/x/net/context"
)

// Embed this within your device type to inherit default implementations of
// all methods: Open and Close count the handles the device is open on and
// succeed, data operations log and reply EINVAL, and Update does nothing.
type DeviceBase struct {
	kernel     Kernel
	name       string
	deviceType DeviceType
	concurrent bool

	// The number of fds the device is open on. At most one unless
	// concurrent.
	opens uint32
}

var _ Device = &DeviceBase{}

// Create a static device base that may be open on only one handle at a time.
func NewDeviceBase(k Kernel, name string) DeviceBase {
	return DeviceBase{
		kernel:     k,
		name:       name,
		deviceType: DeviceTypeStatic,
	}
}

// Create a device base with an explicit type and concurrency policy.
func NewDeviceBaseWithType(
	k Kernel,
	name string,
	t DeviceType,
	concurrent bool) DeviceBase {
	return DeviceBase{
		kernel:     k,
		name:       name,
		deviceType: t,
		concurrent: concurrent,
	}
}

func (d *DeviceBase) Kernel() Kernel {
	return d.kernel
}

func (d *DeviceBase) Name() string {
	return d.name
}

func (d *DeviceBase) Type() DeviceType {
	return d.deviceType
}

func (d *DeviceBase) IsOpened() bool {
	return d.opens > 0
}

func (d *DeviceBase) AllowsConcurrentOpens() bool {
	return d.concurrent
}

// For devices that track their own handles: mark the device open on at
// least one handle, or on none.
func (d *DeviceBase) SetActive(active bool) {
	switch {
	case !active:
		d.opens = 0
	case d.opens == 0:
		d.opens = 1
	}
}

func (d *DeviceBase) Open(
	ctx context.Context,
	req *iosops.OpenRequest) *iosops.Reply {
	d.opens++
	return iosops.NewReply(iosops.Success)
}

func (d *DeviceBase) Close(
	ctx context.Context,
	fd uint32) *iosops.Reply {
	if d.opens > 0 {
		d.opens--
	}

	return iosops.NewReply(iosops.Success)
}

func (d *DeviceBase) Read(
	ctx context.Context,
	req *iosops.ReadWriteRequest) *iosops.Reply {
	return d.Unsupported(req.Command)
}

func (d *DeviceBase) Write(
	ctx context.Context,
	req *iosops.ReadWriteRequest) *iosops.Reply {
	return d.Unsupported(req.Command)
}

func (d *DeviceBase) Seek(
	ctx context.Context,
	req *iosops.SeekRequest) *iosops.Reply {
	return d.Unsupported(req.Command)
}

func (d *DeviceBase) IOCtl(
	ctx context.Context,
	req *iosops.IOCtlRequest) *iosops.Reply {
	return d.Unsupported(req.Command)
}

func (d *DeviceBase) IOCtlV(
	ctx context.Context,
	req *iosops.IOCtlVRequest) *iosops.Reply {
	return d.Unsupported(req.Command)
}

func (d *DeviceBase) Update() {
}

func (d *DeviceBase) UpdateWantDeterminism(want bool) {
}

// Serialize the fields every device has. Devices with private state call this
// from their own DoState before visiting their fields.
func (d *DeviceBase) DoState(p *savestate.Wrap) {
	p.Marker(d.name)
	p.Uint32(&d.opens)
}

// Log that the device does not implement an operation and reply EINVAL.
func (d *DeviceBase) Unsupported(c iosops.Command) *iosops.Reply {
	if d.kernel != nil {
		d.kernel.Warnf("%s does not support %v()", d.name, c)
	}

	return iosops.NewReply(iosops.EINVAL)
}

// Log a request code the device does not recognize, along with a dump of its
// buffers.
func (d *DeviceBase) DumpUnknown(dump string) {
	if d.kernel != nil {
		d.kernel.Warnf("%s: unknown request\n%s", d.name, dump)
	}
}
