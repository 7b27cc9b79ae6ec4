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

// Package stub provides a device that accepts every request and does nothing.
//
// It stands in for hardware whose behaviour guests depend on only loosely:
// they must be able to open it and issue requests without errors.
package stub

import (
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/iosutil"
	"golang.org/x/net/context"
)

type Device struct {
	iosutil.DeviceBase
}

var _ iosutil.Device = &Device{}

// Create a stub registered under the supplied name. Stubs may be open on any
// number of handles.
func New(k iosutil.Kernel, name string) *Device {
	return &Device{
		DeviceBase: iosutil.NewDeviceBaseWithType(
			k,
			name,
			iosutil.DeviceTypeStatic,
			true),
	}
}

func (d *Device) Open(
	ctx context.Context,
	req *iosops.OpenRequest) *iosops.Reply {
	d.Kernel().Warnf("%s faking Open()", d.Name())
	return d.DeviceBase.Open(ctx, req)
}

func (d *Device) IOCtl(
	ctx context.Context,
	req *iosops.IOCtlRequest) *iosops.Reply {
	d.Kernel().Warnf("%s faking IOCtl(%#x)", d.Name(), req.Code)
	return iosops.NewReply(iosops.Success)
}

func (d *Device) IOCtlV(
	ctx context.Context,
	req *iosops.IOCtlVRequest) *iosops.Reply {
	d.Kernel().Warnf("%s faking IOCtlV(%#x)", d.Name(), req.Code)
	return iosops.NewReply(iosops.Success)
}
