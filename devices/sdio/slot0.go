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

// Package sdio implements /dev/sdio/slot0, the front SD card slot, backed by
// a raw image file on the host.
package sdio

import (
	"fmt"
	"os"

	"github.com/detailyang/go-fallocate"
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/iosutil"
	"github.com/jacobsa/ios/savestate"
	"golang.org/x/net/context"
)

const Slot0Name = "/dev/sdio/slot0"

// The size of a card image created when none exists.
const DefaultSizeMB = 128

// IOCtl codes.
const (
	IOCtlWriteHCR  = 0x01
	IOCtlReadHCR   = 0x02
	IOCtlResetCard = 0x04
	IOCtlSetClock  = 0x06
	IOCtlSendCmd   = 0x07
	IOCtlGetStatus = 0x0b
	IOCtlGetOCR    = 0x0c
)

// IOCtlV codes.
const (
	IOCtlVSendCmd = 0x07
)

// Card commands carried by SENDCMD.
const (
	cmdGoIdleState      = 0
	cmdAllSendCID       = 2
	cmdSendRelativeAddr = 3
	cmdSetBusWidth      = 6
	cmdSelectCard       = 7
	cmdSendIfCond       = 8
	cmdSendCSD          = 9
	cmdSendCID          = 10
	cmdSetBlockLen      = 16
	cmdReadSingleBlock  = 17
	cmdReadMultiBlock   = 18
	cmdWriteBlock       = 24
	cmdWriteMultiBlock  = 25
	cmdSendOpCond       = 41
	cmdAppCmdNext       = 55

	CmdEventRegister   = 0x40
	CmdEventUnregister = 0x41
)

// Bits of the GETSTATUS word.
const (
	StatusCardNotExist    = 0x00000
	StatusCardInserted    = 0x00001
	StatusCardInitialized = 0x10000
)

// Events a guest can wait for with EVENT_REGISTER. The value is also the
// return value of the deferred reply.
const (
	EventNone    = 0
	EventInsert  = 1
	EventRemove  = 2
	EventInvalid = 0xc210000
)

// Results of a card command.
const (
	resultOK   iosops.ReturnCode = 0
	resultFail iosops.ReturnCode = 1
)

// Host controller register offsets with side effects.
const (
	hcrClockControl  = 0x2c
	hcrSoftwareReset = 0x2f

	numHCR = 0x100
)

const ocr = 0x80ff8000

// Slot0 is the SD slot. The card image is opened when the guest opens the
// device and closed when it closes it.
type Slot0 struct {
	iosutil.DeviceBase

	imagePath string
	sizeMB    uint32
	inserted  bool

	// nil when the device is closed or the image could not be opened.
	card *os.File

	status      uint32
	blockLength uint32
	busWidth    uint32

	// Host controller registers, indexed by byte offset.
	hcr []uint32

	// The request waiting on a card event, if any.
	event     *iosops.Request
	eventType uint32
}

var _ iosutil.Device = &Slot0{}

// Create the slot. The image is created with the given size the first time
// the device is opened if it does not exist.
func NewSlot0(
	k iosutil.Kernel,
	imagePath string,
	sizeMB uint32,
	inserted bool) *Slot0 {
	if sizeMB == 0 {
		sizeMB = DefaultSizeMB
	}

	return &Slot0{
		DeviceBase: iosutil.NewDeviceBase(k, Slot0Name),
		imagePath:  imagePath,
		sizeMB:     sizeMB,
		inserted:   inserted,
		hcr:        make([]uint32, numHCR),
	}
}

func (d *Slot0) CardInserted() bool {
	return d.inserted
}

// Change whether a card is in the slot. The caller should follow up with
// EventNotify so that a waiting guest hears about it.
func (d *Slot0) SetCardInserted(inserted bool) {
	d.inserted = inserted
}

// Complete the pending event request if the card state now matches what it
// is waiting for.
func (d *Slot0) EventNotify() {
	if d.event == nil {
		return
	}

	if (d.inserted && d.eventType == EventInsert) ||
		(!d.inserted && d.eventType == EventRemove) {
		d.Kernel().EnqueueIPCReply(d.event, iosops.ReturnCode(d.eventType), 0)
		d.event = nil
		d.eventType = EventNone
	}
}

// Open the image, creating and preallocating it if it does not exist.
func (d *Slot0) openCard() (f *os.File, err error) {
	f, err = os.OpenFile(d.imagePath, os.O_RDWR, 0)
	if err == nil || !os.IsNotExist(err) {
		return
	}

	d.Kernel().Warnf(
		"%s: no image at %s, creating one of %d MB",
		d.Name(),
		d.imagePath,
		d.sizeMB)

	f, err = os.OpenFile(d.imagePath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		err = fmt.Errorf("OpenFile: %v", err)
		return
	}

	size := int64(d.sizeMB) << 20
	if err = fallocate.Fallocate(f, 0, size); err != nil {
		f.Close()
		os.Remove(d.imagePath)
		err = fmt.Errorf("Fallocate: %v", err)
		return
	}

	return
}

////////////////////////////////////////////////////////////////////////
// Device methods
////////////////////////////////////////////////////////////////////////

func (d *Slot0) Open(
	ctx context.Context,
	req *iosops.OpenRequest) *iosops.Reply {
	if d.card == nil {
		card, err := d.openCard()
		if err != nil {
			d.Kernel().Warnf("%s: could not open card image: %v", d.Name(), err)
		}

		d.card = card
	}

	return d.DeviceBase.Open(ctx, req)
}

func (d *Slot0) Close(
	ctx context.Context,
	fd uint32) *iosops.Reply {
	if d.card != nil {
		d.card.Close()
		d.card = nil
	}

	d.blockLength = 0
	d.busWidth = 0

	return d.DeviceBase.Close(ctx, fd)
}

func (d *Slot0) IOCtl(
	ctx context.Context,
	req *iosops.IOCtlRequest) *iosops.Reply {
	m := d.Kernel().Memory()
	m.Memset(req.BufferOut, 0, req.BufferOutSize)

	switch req.Code {
	case IOCtlWriteHCR:
		reg := m.Read32(req.BufferIn)
		val := m.Read32(req.BufferIn + 16)
		if reg >= numHCR {
			return iosops.NewReply(iosops.EINVAL)
		}

		switch {
		case reg == hcrClockControl && val&1 != 0:
			// An oscillating clock is reported stable at once.
			d.hcr[reg] = val | 2

		case reg == hcrSoftwareReset && val != 0:
			d.hcr[reg] = 0

		default:
			d.hcr[reg] = val
		}

		return iosops.NewReply(iosops.Success)

	case IOCtlReadHCR:
		reg := m.Read32(req.BufferIn)
		if reg >= numHCR {
			return iosops.NewReply(iosops.EINVAL)
		}

		m.Write32(req.BufferOut, d.hcr[reg])
		return iosops.NewReply(iosops.Success)

	case IOCtlResetCard:
		if d.card != nil {
			d.status |= StatusCardInitialized
		}

		// 16 bit RCA, then 16 bits of zero for success.
		m.Write32(req.BufferOut, 0x9f620000)
		return iosops.NewReply(iosops.Success)

	case IOCtlSetClock:
		if clock := m.Read32(req.BufferIn); clock != 1 {
			d.Kernel().Logf("%s: clock divisor %d", d.Name(), clock)
		}

		return iosops.NewReply(iosops.Success)

	case IOCtlSendCmd:
		return d.sendCommand(
			&req.Request,
			req.BufferIn,
			req.BufferOut)

	case IOCtlGetStatus:
		if d.inserted {
			d.status |= StatusCardInserted
		} else {
			d.status = StatusCardNotExist
		}

		m.Write32(req.BufferOut, d.status)
		return iosops.NewReply(iosops.Success)

	case IOCtlGetOCR:
		m.Write32(req.BufferOut, ocr)
		return iosops.NewReply(iosops.Success)
	}

	d.DumpUnknown(req.Dump(m, d.Name()))
	return iosops.NewReply(iosops.Success)
}

func (d *Slot0) IOCtlV(
	ctx context.Context,
	req *iosops.IOCtlVRequest) *iosops.Reply {
	m := d.Kernel().Memory()
	for _, v := range req.IO {
		m.Memset(v.Address, 0, v.Size)
	}

	switch req.Code {
	case IOCtlVSendCmd:
		if !req.HasNumberOfValidVectors(2, 1) {
			return iosops.NewReply(iosops.EINVAL)
		}

		return d.sendCommand(&req.Request, req.In[0].Address, req.IO[0].Address)
	}

	d.DumpUnknown(req.Dump(m, d.Name()))
	return iosops.NewReply(iosops.Success)
}

// Run the card command described at in, writing the response at out. A nil
// reply means the request now waits on a card event.
func (d *Slot0) sendCommand(
	req *iosops.Request,
	in uint32,
	out uint32) *iosops.Reply {
	m := d.Kernel().Memory()

	command := m.Read32(in)
	arg := m.Read32(in + 12)
	blocks := m.Read32(in + 16)
	blockSize := m.Read32(in + 20)
	addr := m.Read32(in + 24)

	result := resultOK
	switch command {
	case cmdGoIdleState:
		// Nothing to do.

	case cmdSendRelativeAddr:
		m.Write32(out, 0x9f62)

	case cmdSelectCard:
		// A select carries an RCA; a deselect does not.
		if arg>>16 != 0 {
			m.Write32(out, 0x700)
		} else {
			m.Write32(out, 0x900)
		}

	case cmdSendIfCond:
		m.Write32(out, arg)

	case cmdSendCSD:
		m.Write32(out, 0x80168000)
		m.Write32(out+4, 0xa9ffffff)
		m.Write32(out+8, 0x325b5a83)
		m.Write32(out+12, 0x00002e00)

	case cmdAllSendCID, cmdSendCID:
		m.Write32(out, 0x80114d1c)
		m.Write32(out+4, 0x80080000)
		m.Write32(out+8, 0x8007b520)
		m.Write32(out+12, 0x80080000)

	case cmdSetBlockLen:
		d.blockLength = arg
		m.Write32(out, 0x900)

	case cmdAppCmdNext:
		m.Write32(out, 0x920)

	case cmdSetBusWidth:
		d.busWidth = arg & 3
		m.Write32(out, 0x920)

	case cmdSendOpCond:
		m.Write32(out, ocr)

	case cmdReadSingleBlock, cmdReadMultiBlock:
		if command == cmdReadSingleBlock {
			blocks = 1
		}

		result = d.transfer(false, arg, addr, blocks*blockSize)
		m.Write32(out, 0x900)

	case cmdWriteBlock, cmdWriteMultiBlock:
		if command == cmdWriteBlock {
			blocks = 1
		}

		result = d.transfer(true, arg, addr, blocks*blockSize)
		m.Write32(out, 0x900)

	case CmdEventRegister:
		d.event = req
		d.eventType = arg

		// The condition may already hold.
		d.EventNotify()
		return nil

	case CmdEventUnregister:
		if d.event != nil {
			d.Kernel().EnqueueIPCReply(d.event, EventInvalid, 0)
		}

		d.event = nil
		d.eventType = EventNone

	default:
		d.Kernel().Warnf("%s: unknown card command %#x", d.Name(), command)
	}

	return iosops.NewReply(result)
}

// Move n bytes between the card at offset and guest memory at addr.
func (d *Slot0) transfer(
	write bool,
	offset uint32,
	addr uint32,
	n uint32) iosops.ReturnCode {
	if d.card == nil {
		return resultFail
	}

	buf := d.Kernel().Memory().Range(addr, n)
	if buf == nil {
		d.Kernel().Warnf("%s: bad buffer %#08x+%#x", d.Name(), addr, n)
		return resultFail
	}

	var err error
	if write {
		_, err = d.card.WriteAt(buf, int64(offset))
	} else {
		_, err = d.card.ReadAt(buf, int64(offset))
	}

	if err != nil {
		d.Kernel().Warnf("%s: transfer failed: %v", d.Name(), err)
		return resultFail
	}

	return resultOK
}

func (d *Slot0) DoState(p *savestate.Wrap) {
	d.DeviceBase.DoState(p)
	p.Bool(&d.inserted)
	p.Uint32(&d.status)
	p.Uint32(&d.blockLength)
	p.Uint32(&d.busWidth)
	p.Uint32s(&d.hcr)

	hasEvent := d.event != nil
	var eventReq iosops.Request
	if hasEvent {
		eventReq = *d.event
	}

	command := uint32(eventReq.Command)
	p.Bool(&hasEvent)
	p.Uint32(&eventReq.Address)
	p.Uint32(&command)
	p.Uint32(&eventReq.FD)
	p.Uint32(&d.eventType)

	if !p.IsReading() || p.Err() != nil {
		return
	}

	if len(d.hcr) != numHCR {
		p.Fail("%s: %d registers", d.Name(), len(d.hcr))
		return
	}

	d.event = nil
	if hasEvent {
		eventReq.Command = iosops.Command(command)
		d.event = &eventReq
	}

	// The image is a host resource; reacquire it if the restored device is
	// open.
	if d.IsOpened() && d.card == nil {
		card, err := d.openCard()
		if err != nil {
			d.Kernel().Warnf("%s: could not reopen card image: %v", d.Name(), err)
		}

		d.card = card
	} else if !d.IsOpened() && d.card != nil {
		d.card.Close()
		d.card = nil
	}
}
