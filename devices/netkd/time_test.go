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

package netkd_test

import (
	"testing"
	"time"

	"github.com/jacobsa/ios/devices/netkd"
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/iostesting"
	"github.com/jacobsa/ios/savestate"
	. "github.com/jacobsa/ogletest"
	"github.com/jacobsa/timeutil"
	"golang.org/x/net/context"
)

func TestNetKD(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

const (
	bufIn  = 0x100
	bufOut = 0x200
)

type TimeTest struct {
	ctx    context.Context
	clock  timeutil.SimulatedClock
	kernel *iostesting.FakeKernel
	dev    *netkd.Time
}

func init() { RegisterTestSuite(&TimeTest{}) }

func (t *TimeTest) SetUp(ti *TestInfo) {
	t.ctx = ti.Ctx
	t.clock.SetTime(time.Unix(1500000000, 0))
	t.kernel = iostesting.NewFakeKernel()
	t.dev = netkd.NewTime(t.kernel, &t.clock)
}

func (t *TimeTest) ioctl(code uint32) *iosops.Reply {
	// Poison the result word so that the tests see it being cleared.
	t.kernel.Mem.Write32(bufOut, 0xffffffff)

	return t.dev.IOCtl(t.ctx, &iosops.IOCtlRequest{
		Code:          code,
		BufferIn:      bufIn,
		BufferInSize:  0x10,
		BufferOut:     bufOut,
		BufferOutSize: 0x0c,
	})
}

////////////////////////////////////////////////////////////////////////
// Tests
////////////////////////////////////////////////////////////////////////

func (t *TimeTest) UniversalTimeFollowsHostClock() {
	r := t.ioctl(netkd.IOCtlGetUniversalTime)

	AssertThat(r, iostesting.ReplyIs(iosops.Success))
	ExpectEq(0, t.kernel.Mem.Read32(bufOut))
	ExpectEq(1500000000, t.kernel.Mem.Read64(bufOut+4))
}

func (t *TimeTest) SetUniversalTime() {
	t.kernel.Mem.Write64(bufIn, 1000)
	AssertThat(t.ioctl(netkd.IOCtlSetUniversalTime), iostesting.ReplyIs(iosops.Success))

	t.clock.AdvanceTime(30 * time.Second)

	t.ioctl(netkd.IOCtlGetUniversalTime)
	ExpectEq(1030, t.kernel.Mem.Read64(bufOut+4))
	ExpectEq(1030, t.dev.AdjustedUTC())
}

func (t *TimeTest) TimeDiff() {
	t.kernel.Mem.Write64(bufIn, 5000)
	t.ioctl(netkd.IOCtlSetUniversalTime)

	t.kernel.Mem.Write32(bufIn, 4000)
	AssertThat(t.ioctl(netkd.IOCtlSetRTCCounter), iostesting.ReplyIs(iosops.Success))

	t.clock.AdvanceTime(10 * time.Second)

	AssertThat(t.ioctl(netkd.IOCtlGetTimeDiff), iostesting.ReplyIs(iosops.Success))
	ExpectEq(0, t.kernel.Mem.Read32(bufOut))
	ExpectEq(1010, t.kernel.Mem.Read64(bufOut+4))
}

func (t *TimeTest) Unimplemented() {
	r := t.ioctl(netkd.IOCtlUnimplemented)
	ExpectThat(r, iostesting.ReplyIs(-9))
	ExpectEq(0, t.kernel.Mem.Read32(bufOut))
}

func (t *TimeTest) UnknownCode() {
	r := t.ioctl(0x99)
	ExpectThat(r, iostesting.ReplyIs(iosops.Success))
	ExpectEq(0, t.kernel.Mem.Read32(bufOut))
	ExpectEq(1, len(t.kernel.Warnings))
}

func (t *TimeTest) State() {
	t.kernel.Mem.Write64(bufIn, 1000)
	t.ioctl(netkd.IOCtlSetUniversalTime)
	t.kernel.Mem.Write32(bufIn, 77)
	t.ioctl(netkd.IOCtlSetRTCCounter)

	w := savestate.NewWriter()
	t.dev.DoState(w)

	other := netkd.NewTime(t.kernel, &t.clock)
	r := savestate.NewReader(w.Data())
	other.DoState(r)
	AssertEq(nil, r.Err())

	ExpectEq(1000, other.AdjustedUTC())

	other.IOCtl(t.ctx, &iosops.IOCtlRequest{
		Code:      netkd.IOCtlGetTimeDiff,
		BufferOut: bufOut,
	})
	ExpectEq(923, t.kernel.Mem.Read64(bufOut+4))
}
