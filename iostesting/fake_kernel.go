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

// Package iostesting contains fakes and matchers for testing the IPC kernel
// and its devices.
package iostesting

import (
	"fmt"

	"github.com/jacobsa/ios/guestmem"
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/iosutil"
	"github.com/jacobsa/ios/timing"
)

// A reply recorded by FakeKernel.
type Reply struct {
	Request iosops.Request
	Value   iosops.ReturnCode
	Delay   timing.Ticks
}

// FakeKernel is an iosutil.Kernel for exercising a device in isolation. Its
// exported fields may be inspected and modified freely.
type FakeKernel struct {
	Mem       *guestmem.RAM
	Scheduler *timing.Simulated
	Devices   map[string]iosutil.Device

	IOSVersion uint32
	UID        uint32
	GID        uint16

	// Replies passed to EnqueueIPCReply, in order.
	Replies []Reply

	// Messages passed to Warnf.
	Warnings []string
}

var _ iosutil.Kernel = &FakeKernel{}

// Create a fake kernel with 1 MiB banks of zeroed memory and a simulated
// scheduler at tick zero.
func NewFakeKernel() *FakeKernel {
	return &FakeKernel{
		Mem:        guestmem.NewRAM(1<<20, 1<<20),
		Scheduler:  timing.NewSimulated(),
		Devices:    make(map[string]iosutil.Device),
		IOSVersion: 80,
	}
}

func (k *FakeKernel) Memory() guestmem.Accessor {
	return k.Mem
}

func (k *FakeKernel) Ticks() timing.Ticks {
	return k.Scheduler.Ticks()
}

func (k *FakeKernel) GetDeviceByName(name string) iosutil.Device {
	return k.Devices[name]
}

// Record the reply and write it into the command block as the kernel would.
func (k *FakeKernel) EnqueueIPCReply(
	req *iosops.Request,
	v iosops.ReturnCode,
	delay timing.Ticks) {
	k.Mem.Write32(req.Address+4, uint32(v))
	k.Mem.Write32(req.Address+8, uint32(req.Command))
	k.Mem.Write32(req.Address, uint32(iosops.CommandReply))

	k.Replies = append(k.Replies, Reply{*req, v, delay})
}

func (k *FakeKernel) UIDForPPC() uint32       { return k.UID }
func (k *FakeKernel) SetUIDForPPC(uid uint32) { k.UID = uid }
func (k *FakeKernel) GIDForPPC() uint16       { return k.GID }
func (k *FakeKernel) SetGIDForPPC(gid uint16) { k.GID = gid }
func (k *FakeKernel) Version() uint32         { return k.IOSVersion }

func (k *FakeKernel) Logf(format string, v ...interface{}) {
}

func (k *FakeKernel) Warnf(format string, v ...interface{}) {
	k.Warnings = append(k.Warnings, fmt.Sprintf(format, v...))
}
