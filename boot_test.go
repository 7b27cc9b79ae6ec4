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
	"errors"

	"github.com/jacobsa/ios"
	"github.com/jacobsa/ios/devices/fs"
	"github.com/jacobsa/oglemock"
	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
	"github.com/kylelemons/godebug/pretty"
)

type BootTest struct {
	kernelFixture
}

func init() { RegisterTestSuite(&BootTest{}) }

func (t *BootTest) SetUp(ti *TestInfo) {
	t.setUp(ti)
	t.start()
}

// An ARM binary with a 0x10 byte header wrapping the supplied ELF image.
func armBinary(elf []byte) (b []byte) {
	b = []byte{
		0x00, 0x00, 0x00, 0x10,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, byte(len(elf)),
		0x00, 0x00, 0x00, 0x00,
	}

	b = append(b, elf...)
	return
}

const iosVersionAddr = 0x3140

////////////////////////////////////////////////////////////////////////
// Tests
////////////////////////////////////////////////////////////////////////

func (t *BootTest) PausesUntilBooted() {
	const title = 0x0000000100000024
	start := t.scheduler.Ticks()

	AssertEq(nil, t.k.BootIOS(title, false, ""))
	ExpectTrue(t.k.Paused())
	ExpectEq(ios.TitleSystemMenuIOS, t.k.TitleID())

	// The boot time is that of the outgoing image.
	t.scheduler.Advance(ios.BootTicks(80) - 1)
	ExpectTrue(t.k.Paused())

	t.scheduler.Advance(1)
	ExpectFalse(t.k.Paused())
	ExpectEq(title, t.k.TitleID())
	ExpectEq(36, t.k.Version())
	ExpectEq(start+ios.BootTicks(80), t.scheduler.Ticks())
	ExpectEq(0x00240e18, t.mem.Read32(iosVersionAddr))
}

func (t *BootTest) RequestsWaitWhilePaused() {
	AssertEq(nil, t.k.BootIOS(ios.TitleSystemMenuIOS, false, ""))

	b := t.block()
	t.k.EnqueueIPCRequest(b)
	t.scheduler.Advance(ios.AcknowledgementDelay)

	ExpectEq(0, len(t.notifier.Notifications))
}

func (t *BootTest) RebootDiscardsOpenFiles() {
	AssertEq(0, t.open(fs.DeviceName))
	AssertEq(1, t.open(fs.DeviceName))
	t.k.SetUIDForPPC(0x1000)

	AssertEq(nil, t.k.BootIOS(ios.TitleSystemMenuIOS, false, ""))
	t.drain()

	ExpectEq("", pretty.Compare(make([]string, ios.MaxFDs), t.fdNames()))
	ExpectEq(0, t.k.UIDForPPC())
	ExpectEq(0, t.open(fs.DeviceName))
}

func (t *BootTest) MIOSHasOnlyCoreDevices() {
	AssertEq(nil, t.k.BootIOS(ios.TitleMIOS, false, ""))
	t.drain()

	ExpectThat(
		deviceNames(t.k.Devices()),
		ElementsAre(fs.DeviceName, "/dev/es", "/dev/dolphin"))

	ExpectEq(0x01010000, t.mem.Read32(iosVersionAddr))
}

func (t *BootTest) UnknownImageStillBoots() {
	const title = 0x0000000100000063

	AssertEq(nil, t.k.BootIOS(title, false, ""))
	t.drain()

	ExpectFalse(t.k.Paused())
	ExpectEq(title, t.k.TitleID())
	ExpectThat(t.warnings.String(), HasSubstr("Unknown IOS version"))
}

func (t *BootTest) HangParksThePPC() {
	AssertEq(nil, t.k.BootIOS(ios.TitleSystemMenuIOS, true, ""))

	ExpectEq(1, t.cpu.Resets)
	ExpectEq(0, t.cpu.PC)
	ExpectEq(0x48000000, t.mem.Read32(0))
}

func (t *BootTest) LoadsELFFromBinary() {
	elf := []byte("\x7fELF taco")
	t.writeFile("boot.bin", armBinary(elf))

	ExpectCall(t.loader, "LoadELF")(DeepEquals(elf), true).
		WillOnce(oglemock.Return(nil))

	AssertEq(nil, t.k.BootIOS(ios.TitleSystemMenuIOS, false, "/boot.bin"))
	ExpectTrue(t.k.Paused())
}

func (t *BootTest) MissingBinary() {
	err := t.k.BootIOS(ios.TitleSystemMenuIOS, false, "/taco.bin")

	ExpectThat(err, Error(HasSubstr("taco.bin")))
	ExpectTrue(t.k.Paused())
	ExpectEq(0, t.scheduler.Pending())
}

func (t *BootTest) TruncatedBinary() {
	b := armBinary([]byte("\x7fELF"))
	t.writeFile("boot.bin", b[:len(b)-1])

	err := t.k.BootIOS(ios.TitleSystemMenuIOS, false, "/boot.bin")
	ExpectThat(err, Error(HasSubstr(ios.ErrBadBinary.Error())))
}

func (t *BootTest) BinaryShorterThanHeader() {
	t.writeFile("boot.bin", []byte{0, 0, 0, 0x10})

	err := t.k.BootIOS(ios.TitleSystemMenuIOS, false, "/boot.bin")
	ExpectThat(err, Error(HasSubstr(ios.ErrBadBinary.Error())))
}

func (t *BootTest) LoaderFails() {
	t.writeFile("boot.bin", armBinary([]byte("\x7fELF")))

	ExpectCall(t.loader, "LoadELF")(Any(), Any()).
		WillOnce(oglemock.Return(errors.New("taco")))

	err := t.k.BootIOS(ios.TitleSystemMenuIOS, false, "/boot.bin")
	ExpectThat(err, Error(HasSubstr("taco")))
	ExpectEq(0, t.scheduler.Pending())
}

func (t *BootTest) BootstrapPPC() {
	dol := make([]byte, 0x100)
	t.writeFile("boot.dol", dol)

	ExpectCall(t.loader, "LoadDOL")(DeepEquals(dol)).
		WillOnce(oglemock.Return(nil))

	start := t.scheduler.Ticks()
	AssertEq(nil, t.k.BootstrapPPC("/boot.dol"))

	ExpectEq(1, t.cpu.Resets)
	ExpectEq(0, t.cpu.PC)
	ExpectEq(0x48000000, t.mem.Read32(0))
	ExpectFalse(t.k.Paused())

	t.drain()
	ExpectEq(0x3400, t.cpu.PC)
	ExpectEq(0, t.mem.Read32(0))
	ExpectEq(start+fs.Delay(0x100), t.scheduler.Ticks())
}

func (t *BootTest) BootstrapPPCResetsMemoryLayout() {
	t.writeFile("boot.dol", make([]byte, 4))
	t.mem.Write32(iosVersionAddr, 0)

	ExpectCall(t.loader, "LoadDOL")(Any()).
		WillOnce(oglemock.Return(nil))

	AssertEq(nil, t.k.BootstrapPPC("/boot.dol"))
	ExpectEq(0x00501b20, t.mem.Read32(iosVersionAddr))
}

func (t *BootTest) BootstrapPPCUnknownVersion() {
	AssertEq(nil, t.k.BootIOS(0x0000000100000063, false, ""))
	t.drain()

	t.writeFile("boot.dol", make([]byte, 4))
	err := t.k.BootstrapPPC("/boot.dol")

	ExpectEq(ios.ErrUnknownVersion, err)
	ExpectEq(0, t.cpu.Resets)
}
