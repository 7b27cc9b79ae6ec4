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

// Package es implements /dev/es, the title and security management device,
// and the key store behind it.
package es

import (
	"crypto/aes"
	"sort"

	"github.com/jacobsa/ios/guestmem"
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/iosutil"
	"github.com/jacobsa/ios/savestate"
	"golang.org/x/net/context"
)

const DeviceName = "/dev/es"

// IOCtlV codes understood on /dev/es.
const (
	IOCtlVGetDeviceID = 0x07
	IOCtlVGetTitleID  = 0x20
	IOCtlVSetUID      = 0x21
	IOCtlVEncrypt     = 0x2c
	IOCtlVDecrypt     = 0x2d
)

// Returned for malformed requests.
const EINVAL iosops.ReturnCode = -1017

// The first uid handed out to a title.
const firstUID = 0x1000

type Device struct {
	iosutil.DeviceBase
	iosc *IOSC

	// The title the PPC is running, as set by title launch logic.
	activeTitle uint64

	// uids assigned to titles so far.
	uids    map[uint64]uint32
	nextUID uint32
}

var _ iosutil.Device = &Device{}

func NewDevice(k iosutil.Kernel, iosc *IOSC) *Device {
	return &Device{
		DeviceBase: iosutil.NewDeviceBaseWithType(
			k,
			DeviceName,
			iosutil.DeviceTypeStatic,
			true),
		iosc:    iosc,
		uids:    make(map[uint64]uint32),
		nextUID: firstUID,
	}
}

// Record the title now running on the PPC.
func (d *Device) SetActiveTitle(titleID uint64) {
	d.activeTitle = titleID
}

func (d *Device) ActiveTitle() uint64 {
	return d.activeTitle
}

// Return the uid assigned to a title, assigning the next free one if needed.
func (d *Device) UIDFor(titleID uint64) uint32 {
	uid, ok := d.uids[titleID]
	if !ok {
		uid = d.nextUID
		d.nextUID++
		d.uids[titleID] = uid
	}

	return uid
}

////////////////////////////////////////////////////////////////////////
// Device methods
////////////////////////////////////////////////////////////////////////

func (d *Device) IOCtlV(
	ctx context.Context,
	req *iosops.IOCtlVRequest) *iosops.Reply {
	switch req.Code {
	case IOCtlVGetDeviceID:
		return d.getDeviceID(req)

	case IOCtlVGetTitleID:
		return d.getTitleID(req)

	case IOCtlVSetUID:
		return d.setUID(req)

	case IOCtlVEncrypt:
		return d.crypt(req, d.iosc.Encrypt)

	case IOCtlVDecrypt:
		return d.crypt(req, d.iosc.Decrypt)
	}

	d.DumpUnknown(req.Dump(d.Kernel().Memory(), d.Name()))
	return iosops.NewReply(iosops.EINVAL)
}

func (d *Device) getDeviceID(req *iosops.IOCtlVRequest) *iosops.Reply {
	if !req.HasNumberOfValidVectors(0, 1) || req.IO[0].Size < 4 {
		return iosops.NewReply(EINVAL)
	}

	d.Kernel().Memory().Write32(req.IO[0].Address, d.iosc.DeviceID())
	return iosops.NewReply(iosops.Success)
}

func (d *Device) getTitleID(req *iosops.IOCtlVRequest) *iosops.Reply {
	if !req.HasNumberOfValidVectors(0, 1) || req.IO[0].Size < 8 {
		return iosops.NewReply(EINVAL)
	}

	d.Kernel().Memory().Write64(req.IO[0].Address, d.activeTitle)
	return iosops.NewReply(iosops.Success)
}

func (d *Device) setUID(req *iosops.IOCtlVRequest) *iosops.Reply {
	if !req.HasNumberOfValidVectors(1, 0) || req.In[0].Size != 8 {
		return iosops.NewReply(EINVAL)
	}

	titleID := d.Kernel().Memory().Read64(req.In[0].Address)
	uid := d.UIDFor(titleID)

	d.Kernel().SetUIDForPPC(uid)
	d.Kernel().Logf("ES: SetUID(%016x) -> %#x", titleID, uid)
	return iosops.NewReply(iosops.Success)
}

// Shared by encrypt and decrypt. Inputs: key handle, IV, source. Outputs: the
// chained IV, destination.
func (d *Device) crypt(
	req *iosops.IOCtlVRequest,
	op func(Handle, []byte, []byte) ([]byte, []byte, iosops.ReturnCode)) *iosops.Reply {
	if !req.HasNumberOfValidVectors(3, 2) ||
		req.In[0].Size != 4 ||
		req.In[1].Size != aes.BlockSize ||
		req.IO[0].Size != aes.BlockSize ||
		req.IO[1].Size < req.In[2].Size {
		return iosops.NewReply(EINVAL)
	}

	m := d.Kernel().Memory()
	for _, v := range append(append([]iosops.IOVector(nil), req.In...), req.IO...) {
		if !guestmem.ValidRange(m, v.Address, v.Size) {
			return iosops.NewReply(EINVAL)
		}
	}

	h := Handle(m.Read32(req.In[0].Address))
	iv := guestmem.CopyFromGuest(m, req.In[1].Address, aes.BlockSize)
	src := guestmem.CopyFromGuest(m, req.In[2].Address, req.In[2].Size)

	dst, nextIV, code := op(h, iv, src)
	if code != iosops.Success {
		return iosops.NewReply(code)
	}

	guestmem.CopyToGuest(m, req.IO[0].Address, nextIV)
	guestmem.CopyToGuest(m, req.IO[1].Address, dst)
	return iosops.NewReply(iosops.Success)
}

func (d *Device) DoState(p *savestate.Wrap) {
	d.DeviceBase.DoState(p)
	p.Uint64(&d.activeTitle)
	p.Uint32(&d.nextUID)

	titles := make([]uint64, 0, len(d.uids))
	for t := range d.uids {
		titles = append(titles, t)
	}

	sort.Slice(titles, func(i, j int) bool { return titles[i] < titles[j] })

	count := uint32(len(titles))
	p.Uint32(&count)

	if p.IsReading() {
		d.uids = make(map[uint64]uint32)
		for i := uint32(0); i < count && p.Err() == nil; i++ {
			var t uint64
			var uid uint32
			p.Uint64(&t)
			p.Uint32(&uid)
			d.uids[t] = uid
		}

		return
	}

	for _, t := range titles {
		uid := d.uids[t]
		p.Uint64(&t)
		p.Uint32(&uid)
	}
}
