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

// Package netkd implements /dev/net/kd/time, the clock service used by the
// connection scheduler.
package netkd

import (
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/iosutil"
	"github.com/jacobsa/ios/savestate"
	"github.com/jacobsa/timeutil"
	"golang.org/x/net/context"
)

const TimeName = "/dev/net/kd/time"

// IOCtl codes.
const (
	IOCtlGetUniversalTime = 0x14
	IOCtlSetUniversalTime = 0x15
	IOCtlUnimplemented    = 0x16
	IOCtlSetRTCCounter    = 0x17
	IOCtlGetTimeDiff      = 0x18
)

// Returned for IOCtlUnimplemented.
const ErrUnimplemented iosops.ReturnCode = -9

// Time keeps the guest's idea of UTC as an offset from the host clock.
type Time struct {
	iosutil.DeviceBase
	clock timeutil.Clock

	// Host UTC minus guest UTC, in seconds.
	utcDiff int64

	// The guest's RTC counter at the time it last set it.
	rtc uint32
}

var _ iosutil.Device = &Time{}

func NewTime(k iosutil.Kernel, clock timeutil.Clock) *Time {
	return &Time{
		DeviceBase: iosutil.NewDeviceBaseWithType(
			k,
			TimeName,
			iosutil.DeviceTypeStatic,
			true),
		clock: clock,
	}
}

// The guest's current UTC in seconds since the Unix epoch.
func (d *Time) AdjustedUTC() uint64 {
	return uint64(d.clock.Now().Unix() - d.utcDiff)
}

func (d *Time) setAdjustedUTC(utc uint64) {
	d.utcDiff = d.clock.Now().Unix() - int64(utc)
}

////////////////////////////////////////////////////////////////////////
// Device methods
////////////////////////////////////////////////////////////////////////

// Every code writes a common result word at the start of the output buffer;
// time values follow it.
func (d *Time) IOCtl(
	ctx context.Context,
	req *iosops.IOCtlRequest) *iosops.Reply {
	m := d.Kernel().Memory()
	result := iosops.Success

	switch req.Code {
	case IOCtlGetUniversalTime:
		utc := d.AdjustedUTC()
		m.Write64(req.BufferOut+4, utc)
		d.Kernel().Logf("%s: GET_UNIVERSAL_TIME = %d", d.Name(), utc)

	case IOCtlSetUniversalTime:
		utc := m.Read64(req.BufferIn)
		d.setAdjustedUTC(utc)
		d.Kernel().Logf(
			"%s: SET_UNIVERSAL_TIME(%d, %d)",
			d.Name(),
			utc,
			m.Read32(req.BufferIn+8))

	case IOCtlSetRTCCounter:
		d.rtc = m.Read32(req.BufferIn)
		d.Kernel().Logf(
			"%s: SET_RTC_COUNTER(%d, %d)",
			d.Name(),
			d.rtc,
			m.Read32(req.BufferIn+4))

	case IOCtlGetTimeDiff:
		diff := d.AdjustedUTC() - uint64(d.rtc)
		m.Write64(req.BufferOut+4, diff)
		d.Kernel().Logf("%s: GET_TIME_DIFF = %d", d.Name(), diff)

	case IOCtlUnimplemented:
		result = ErrUnimplemented

	default:
		d.DumpUnknown(req.Dump(m, d.Name()))
	}

	m.Write32(req.BufferOut, 0)
	return iosops.NewReply(result)
}

func (d *Time) DoState(p *savestate.Wrap) {
	d.DeviceBase.DoState(p)
	p.Int64(&d.utcDiff)
	p.Uint32(&d.rtc)
}
