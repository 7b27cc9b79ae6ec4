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

// Package control implements /dev/dolphin, through which homebrew asks the
// host about itself.
package control

import (
	"time"

	"github.com/jacobsa/ios/guestmem"
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/iosutil"
	"github.com/jacobsa/ios/savestate"
	"github.com/jacobsa/ios/timing"
	"github.com/jacobsa/timeutil"
	"golang.org/x/net/context"
)

const DeviceName = "/dev/dolphin"

// IOCtlV codes.
const (
	IOCtlVGetElapsedTime = 0x01
	IOCtlVGetVersion     = 0x02
	IOCtlVGetSpeedLimit  = 0x03
	IOCtlVSetSpeedLimit  = 0x04
	IOCtlVGetCPUSpeed    = 0x05
)

// The emulated PPC clock rate in Hz.
const CPUSpeed = 729000000

// Reported by GET_VERSION.
var Version = "ios-hle-1.0"

type Device struct {
	iosutil.DeviceBase
	clock timeutil.Clock

	// When the device was created, for wall-clock elapsed time.
	start time.Time

	wantDeterminism bool

	// Emulation speed as a percentage. Zero means unlimited.
	speedLimit uint32
}

var _ iosutil.Device = &Device{}

func NewDevice(k iosutil.Kernel, clock timeutil.Clock) *Device {
	return &Device{
		DeviceBase: iosutil.NewDeviceBaseWithType(
			k,
			DeviceName,
			iosutil.DeviceTypeStatic,
			true),
		clock:      clock,
		start:      clock.Now(),
		speedLimit: 100,
	}
}

func (d *Device) SpeedLimit() uint32 {
	return d.speedLimit
}

// Milliseconds since the device was created. Under determinism this is
// derived from emulated time so that it replays identically.
func (d *Device) elapsedMillis() uint32 {
	if d.wantDeterminism {
		return uint32(d.Kernel().Ticks() / timing.Ticks(CPUSpeed/1000))
	}

	return uint32(d.clock.Now().Sub(d.start) / time.Millisecond)
}

////////////////////////////////////////////////////////////////////////
// Device methods
////////////////////////////////////////////////////////////////////////

func (d *Device) IOCtlV(
	ctx context.Context,
	req *iosops.IOCtlVRequest) *iosops.Reply {
	m := d.Kernel().Memory()

	switch req.Code {
	case IOCtlVGetElapsedTime:
		if !req.HasNumberOfValidVectors(0, 1) || req.IO[0].Size < 4 {
			return iosops.NewReply(iosops.EINVAL)
		}

		m.Write32(req.IO[0].Address, d.elapsedMillis())
		return iosops.NewReply(iosops.Success)

	case IOCtlVGetVersion:
		if !req.HasNumberOfValidVectors(0, 1) ||
			!guestmem.ValidRange(m, req.IO[0].Address, req.IO[0].Size) {
			return iosops.NewReply(iosops.EINVAL)
		}

		// NUL terminated, truncated to the buffer.
		out := make([]byte, req.IO[0].Size)
		copy(out, Version)
		if len(out) > 0 {
			out[len(out)-1] = 0
		}

		guestmem.CopyToGuest(m, req.IO[0].Address, out)

		return iosops.NewReply(iosops.Success)

	case IOCtlVGetSpeedLimit:
		if !req.HasNumberOfValidVectors(0, 1) || req.IO[0].Size < 4 {
			return iosops.NewReply(iosops.EINVAL)
		}

		m.Write32(req.IO[0].Address, d.speedLimit)
		return iosops.NewReply(iosops.Success)

	case IOCtlVSetSpeedLimit:
		if !req.HasNumberOfValidVectors(1, 0) || req.In[0].Size != 4 {
			return iosops.NewReply(iosops.EINVAL)
		}

		d.speedLimit = m.Read32(req.In[0].Address)
		d.Kernel().Logf("%s: speed limit now %d%%", d.Name(), d.speedLimit)
		return iosops.NewReply(iosops.Success)

	case IOCtlVGetCPUSpeed:
		if !req.HasNumberOfValidVectors(0, 1) || req.IO[0].Size != 4 {
			return iosops.NewReply(iosops.EINVAL)
		}

		m.Write32(req.IO[0].Address, CPUSpeed)
		return iosops.NewReply(iosops.Success)
	}

	d.DumpUnknown(req.Dump(m, d.Name()))
	return iosops.NewReply(iosops.EINVAL)
}

func (d *Device) UpdateWantDeterminism(want bool) {
	d.wantDeterminism = want
}

func (d *Device) DoState(p *savestate.Wrap) {
	d.DeviceBase.DoState(p)
	p.Uint32(&d.speedLimit)
}
