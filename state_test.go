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

package ios_test

import (
	"github.com/jacobsa/ios"
	"github.com/jacobsa/ios/devices/bluetooth"
	"github.com/jacobsa/ios/devices/fs"
	"github.com/jacobsa/ios/devices/sdio"
	"github.com/jacobsa/ios/devices/usb"
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/iosutil"
	"github.com/jacobsa/ios/savestate"
	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
	"github.com/kylelemons/godebug/pretty"
)

type StateTest struct {
	kernelFixture
}

func init() { RegisterTestSuite(&StateTest{}) }

func (t *StateTest) SetUp(ti *TestInfo) {
	t.setUp(ti)
	t.cfg.USBDevices = []usb.DeviceID{{VID: 0x57e, PID: 0x308}}
	t.start()
}

func (t *StateTest) save() []byte {
	p := savestate.NewWriter()
	t.k.DoState(p)
	AssertEq(nil, p.Err())

	return p.Data()
}

func (t *StateTest) restore(data []byte) {
	p := savestate.NewReader(data)
	t.k.DoState(p)
	AssertEq(nil, p.Err())
}

////////////////////////////////////////////////////////////////////////
// Tests
////////////////////////////////////////////////////////////////////////

func (t *StateTest) StaticDevices() {
	AssertEq(0, t.open(fs.DeviceName))
	AssertEq(1, t.open(bluetooth.DeviceName))
	t.k.SetUIDForPPC(0x1234)
	t.k.SetGIDForPPC(7)

	data := t.save()

	AssertEq(iosops.Success, t.close(0))
	AssertEq(iosops.Success, t.close(1))
	t.k.SetUIDForPPC(0)
	t.k.SetGIDForPPC(0)

	t.restore(data)

	names := t.fdNames()
	ExpectEq(fs.DeviceName, names[0])
	ExpectEq(bluetooth.DeviceName, names[1])
	ExpectEq("", pretty.Compare(make([]string, ios.MaxFDs-2), names[2:]))
	ExpectEq(0x1234, t.k.UIDForPPC())
	ExpectEq(7, t.k.GIDForPPC())

	// The restored slots refer to the registered devices.
	ExpectEq(t.k.GetDeviceByName(bluetooth.DeviceName), t.k.FDs()[1])
	ExpectTrue(t.k.FDs()[1].IsOpened())
	ExpectEq(iosops.Success, t.close(1))
}

func (t *StateTest) DynamicDevice() {
	const p = "/dev/usb/oh0/57e/308"
	AssertEq(0, t.open(p))

	data := t.save()
	AssertEq(iosops.Success, t.close(0))

	t.restore(data)

	d := t.k.FDs()[0]
	AssertTrue(d != nil)
	ExpectEq(iosutil.DeviceTypeOH0, d.Type())
	ExpectEq(p, d.Name())

	// The bus remembers the device is open.
	ExpectEq(iosops.EEXIST, t.open(p))
	ExpectEq(iosops.Success, t.close(0))
	ExpectEq(0, t.open(p))
}

func (t *StateTest) OpenFiles() {
	t.writeFile("taco", []byte("burrito"))
	AssertEq(0, t.open("/taco"))

	b := t.block()
	iosops.EncodeReadWrite(t.mem, b, iosops.CommandRead, 0, dataBuffer, 3)
	AssertEq(3, t.call(b))

	data := t.save()
	AssertEq(iosops.Success, t.close(0))

	t.restore(data)

	b = t.block()
	iosops.EncodeReadWrite(t.mem, b, iosops.CommandRead, 0, dataBuffer, 16)
	AssertEq(4, t.call(b))
	ExpectEq("rito", string(t.mem.Range(dataBuffer, 4)))
}

func (t *StateTest) QueuesAndPause() {
	AssertEq(nil, t.k.BootIOS(ios.TitleSystemMenuIOS, false, ""))

	b := t.block()
	t.k.EnqueueIPCRequest(b)
	t.scheduler.Advance(ios.AcknowledgementDelay)

	data := t.save()

	// Let the boot finish, which empties the queue.
	t.drain()
	AssertFalse(t.k.Paused())

	t.restore(data)
	ExpectTrue(t.k.Paused())
}

func (t *StateTest) OtherImage() {
	data := t.save()

	AssertEq(nil, t.k.BootIOS(ios.TitleMIOS, false, ""))
	t.drain()
	AssertEq(nil, t.k.GetDeviceByName(sdio.Slot0Name))

	t.restore(data)

	ExpectEq(ios.TitleSystemMenuIOS, t.k.TitleID())
	ExpectNe(nil, t.k.GetDeviceByName(sdio.Slot0Name))
}

func (t *StateTest) MIOS() {
	AssertEq(nil, t.k.BootIOS(ios.TitleMIOS, false, ""))
	t.drain()
	AssertEq(0, t.open(fs.DeviceName))

	data := t.save()
	AssertEq(iosops.Success, t.close(0))

	// Open devices are not part of the relay image's state.
	t.restore(data)
	ExpectEq("", t.fdNames()[0])
}

func (t *StateTest) Truncated() {
	AssertEq(0, t.open(fs.DeviceName))
	data := t.save()

	p := savestate.NewReader(data[:len(data)-1])
	ExpectThat(func() { t.k.DoState(p) }, Panics(HasSubstr("DoState")))
}

func (t *StateTest) Garbage() {
	p := savestate.NewReader([]byte("taco"))
	ExpectThat(func() { t.k.DoState(p) }, Panics(HasSubstr("DoState")))
}
