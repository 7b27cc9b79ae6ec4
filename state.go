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

package ios

import (
	"fmt"

	"github.com/jacobsa/ios/devices/usb"
	"github.com/jacobsa/ios/iosutil"
	"github.com/jacobsa/ios/savestate"
	"github.com/jacobsa/ios/timing"
)

// Save or restore the kernel: queues, credentials, the key store, the
// filesystem, every registered device and the fd table. Devices open at save
// time are reopened by name, or rebuilt from their own state if they were
// created on demand.
//
// Errors while saving are recorded in p. A restore that fails partway leaves
// the kernel in no usable state, so it panics.
func (k *Kernel) DoState(p *savestate.Wrap) {
	k.doState(p)

	if p.IsReading() && p.Err() != nil {
		panic(fmt.Sprintf("DoState: %v", p.Err()))
	}
}

func (k *Kernel) doState(p *savestate.Wrap) {
	p.Marker("kernel")

	p.Uint32s(&k.requestQueue)
	p.Uint32s(&k.replyQueue)

	lastReplyTick := int64(k.lastReplyTick)
	p.Int64(&lastReplyTick)
	k.lastReplyTick = timing.Ticks(lastReplyTick)

	p.Bool(&k.paused)

	titleID := k.titleID
	p.Uint64(&titleID)
	p.Uint32(&k.uid)
	p.Uint16(&k.gid)

	if p.Err() != nil {
		return
	}

	// The state belongs to another image, whose device set differs.
	if p.IsReading() && titleID != k.titleID {
		k.closeAll()
		k.titleID = titleID
		k.buildRegistry()
	}

	k.iosc.DoState(p)
	k.fileSystem.DoState(p)

	if k.titleID == TitleMIOS {
		return
	}

	for _, d := range k.Devices() {
		d.DoState(p)
	}

	p.Marker("fds")
	if p.IsReading() {
		k.mu.Lock()
		k.fds = [MaxFDs]iosutil.Device{}
		k.mu.Unlock()
	}

	for fd := uint32(0); fd < MaxFDs && p.Err() == nil; fd++ {
		k.fdDoState(p, fd)
	}
}

func (k *Kernel) fdDoState(p *savestate.Wrap, fd uint32) {
	k.mu.Lock()
	d := k.fds[fd]
	k.mu.Unlock()

	exists := d != nil
	p.Bool(&exists)
	if !exists {
		return
	}

	var t uint32
	if d != nil {
		t = uint32(d.Type())
	}

	p.Uint32(&t)

	switch iosutil.DeviceType(t) {
	case iosutil.DeviceTypeStatic:
		var name string
		if d != nil {
			name = d.Name()
		}

		p.String(&name)
		if !p.IsReading() || p.Err() != nil {
			return
		}

		d = k.GetDeviceByName(name)
		if d == nil {
			p.Fail("fd %d: no device named %q", fd, name)
			return
		}

	case iosutil.DeviceTypeOH0:
		if p.IsReading() {
			d = usb.NewOH0DeviceForRestore(k)
		}

		d.DoState(p)

	default:
		p.Fail("fd %d: unknown device type %d", fd, t)
		return
	}

	if p.IsReading() && p.Err() == nil {
		k.setFD(fd, d)
	}
}

// LOCKS_EXCLUDED(k.mu)
func (k *Kernel) setFD(fd uint32, d iosutil.Device) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.fds[fd] = d
}
