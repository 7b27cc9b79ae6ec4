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

package usb

import (
	"fmt"
	"strings"

	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/iosutil"
	"github.com/jacobsa/ios/savestate"
	"golang.org/x/net/context"
)

// OH0Device is the node for one device beneath the controller, created when
// the guest opens "/dev/usb/oh0/<vid>/<pid>" and destroyed when it closes it.
type OH0Device struct {
	iosutil.DeviceBase
	id DeviceID
}

var _ iosutil.Device = &OH0Device{}

// Create a node for the given path. A path that does not name a vid/pid pair
// yields a node whose Open fails.
func NewOH0Device(k iosutil.Kernel, path string) (d *OH0Device) {
	d = &OH0Device{
		DeviceBase: iosutil.NewDeviceBaseWithType(
			k,
			path,
			iosutil.DeviceTypeOH0,
			false),
	}

	d.id, _ = parseDevicePath(path)
	return
}

// Create an empty node to be filled in by DoState.
func NewOH0DeviceForRestore(k iosutil.Kernel) *OH0Device {
	return NewOH0Device(k, "")
}

func parseDevicePath(path string) (id DeviceID, err error) {
	rest := strings.TrimPrefix(path, OH0Name+"/")
	if rest == path {
		err = fmt.Errorf("not beneath %s", OH0Name)
		return
	}

	var extra string
	n, _ := fmt.Sscanf(rest, "%x/%x%s", &id.VID, &id.PID, &extra)
	if n != 2 {
		err = fmt.Errorf("malformed device path %q", path)
		return
	}

	return
}

func (d *OH0Device) ID() DeviceID {
	return d.id
}

func (d *OH0Device) controller() *OH0 {
	oh0, _ := d.Kernel().GetDeviceByName(OH0Name).(*OH0)
	return oh0
}

////////////////////////////////////////////////////////////////////////
// Device methods
////////////////////////////////////////////////////////////////////////

func (d *OH0Device) Open(
	ctx context.Context,
	req *iosops.OpenRequest) *iosops.Reply {
	if _, err := parseDevicePath(d.Name()); err != nil {
		d.Kernel().Warnf("%s: %v", d.Name(), err)
		return iosops.NewReply(iosops.ENOENT)
	}

	oh0 := d.controller()
	if oh0 == nil {
		return iosops.NewReply(iosops.ENOENT)
	}

	if code := oh0.OpenDevice(d.id); code != iosops.Success {
		return iosops.NewReply(code)
	}

	return d.DeviceBase.Open(ctx, req)
}

func (d *OH0Device) Close(
	ctx context.Context,
	fd uint32) *iosops.Reply {
	if oh0 := d.controller(); oh0 != nil {
		oh0.CloseDevice(d.id)
	}

	return d.DeviceBase.Close(ctx, fd)
}

func (d *OH0Device) IOCtl(
	ctx context.Context,
	req *iosops.IOCtlRequest) *iosops.Reply {
	oh0 := d.controller()
	if oh0 == nil {
		return iosops.NewReply(iosops.ENOENT)
	}

	return oh0.deviceTransfer(d.id, req.Code)
}

func (d *OH0Device) IOCtlV(
	ctx context.Context,
	req *iosops.IOCtlVRequest) *iosops.Reply {
	oh0 := d.controller()
	if oh0 == nil {
		return iosops.NewReply(iosops.ENOENT)
	}

	return oh0.deviceTransfer(d.id, req.Code)
}

// The path comes first so that a node created by NewOH0DeviceForRestore can
// take on its identity before the common fields are checked.
func (d *OH0Device) DoState(p *savestate.Wrap) {
	name := d.Name()
	p.String(&name)
	if p.IsReading() && p.Err() == nil {
		d.DeviceBase = iosutil.NewDeviceBaseWithType(
			d.Kernel(),
			name,
			iosutil.DeviceTypeOH0,
			false)
	}

	d.DeviceBase.DoState(p)
	p.Uint16(&d.id.VID)
	p.Uint16(&d.id.PID)

	key := d.id.key()
	p.Uint64(&key)
	if p.IsReading() && p.Err() == nil && key != d.id.key() {
		p.Fail("%s: device id %#x does not match %v", name, key, d.id)
	}
}
