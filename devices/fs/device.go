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

package fs

import (
	"sort"

	"github.com/jacobsa/ios/guestmem"
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/iosutil"
	"github.com/jacobsa/ios/savestate"
	"github.com/jacobsa/ios/timing"
	"golang.org/x/net/context"
)

// IOCtl codes understood on /dev/fs.
const (
	IOCtlCreateDir    = 0x03
	IOCtlDelete       = 0x07
	IOCtlRename       = 0x08
	IOCtlCreateFile   = 0x09
	IOCtlGetFileStats = 0x0b
)

// The guest name of the filesystem device.
const DeviceName = "/dev/fs"

// Offset of the path within the attribute block CreateDir and CreateFile
// take: a u32 owner and a u16 group come first.
const attrPathOffset = 6

// Delay returns the approximate cost of touching flash, plus a little per
// byte moved.
func Delay(bytes uint32) timing.Ticks {
	return timing.TimebaseTicks(2700 + int64(bytes)/16)
}

// Device is /dev/fs. Opening /dev/fs itself yields a handle for namespace
// operations; opening any other absolute path yields a file handle.
type Device struct {
	iosutil.DeviceBase
	fs *FileSystem

	// fds open on /dev/fs itself.
	managers map[uint32]bool
}

var _ iosutil.Device = &Device{}

func NewDevice(k iosutil.Kernel, fs *FileSystem) *Device {
	return &Device{
		DeviceBase: iosutil.NewDeviceBaseWithType(
			k,
			DeviceName,
			iosutil.DeviceTypeStatic,
			true),
		fs:       fs,
		managers: make(map[uint32]bool),
	}
}

func (d *Device) FileSystem() *FileSystem {
	return d.fs
}

// Read a NUL-terminated path from a fixed-size guest buffer.
func readPath(m guestmem.Accessor, addr uint32) string {
	b := guestmem.CopyFromGuest(m, addr, MaxPathLength)
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}

	return string(b)
}

////////////////////////////////////////////////////////////////////////
// Device methods
////////////////////////////////////////////////////////////////////////

func (d *Device) Open(
	ctx context.Context,
	req *iosops.OpenRequest) *iosops.Reply {
	if req.Path == DeviceName {
		d.managers[req.FD] = true
		d.SetActive(true)
		return iosops.NewReplyWithDelay(iosops.Success, Delay(0))
	}

	code := d.fs.OpenFile(req.FD, req.Path, req.Flags)
	if code == iosops.Success {
		d.SetActive(true)
	}

	d.Kernel().Logf("FS: Open(%q, %v) as fd %d: %v", req.Path, req.Flags, req.FD, code)
	return iosops.NewReplyWithDelay(code, Delay(0))
}

func (d *Device) Close(
	ctx context.Context,
	fd uint32) *iosops.Reply {
	code := iosops.Success
	if d.managers[fd] {
		delete(d.managers, fd)
	} else {
		code = d.fs.CloseFile(fd)
	}

	if len(d.managers) == 0 && !d.fs.anyOpen() {
		d.SetActive(false)
	}

	return iosops.NewReplyWithDelay(code, Delay(0))
}

func (d *Device) Read(
	ctx context.Context,
	req *iosops.ReadWriteRequest) *iosops.Reply {
	if !guestmem.ValidRange(d.Kernel().Memory(), req.Buffer, req.Size) {
		d.Kernel().Warnf("FS: Read into bad buffer %#08x+%#x", req.Buffer, req.Size)
		return iosops.NewReply(EINVAL)
	}

	data, code := d.fs.ReadFile(req.FD, req.Size)
	if code >= 0 {
		guestmem.CopyToGuest(d.Kernel().Memory(), req.Buffer, data)
	}

	return iosops.NewReplyWithDelay(code, Delay(uint32(len(data))))
}

func (d *Device) Write(
	ctx context.Context,
	req *iosops.ReadWriteRequest) *iosops.Reply {
	if !guestmem.ValidRange(d.Kernel().Memory(), req.Buffer, req.Size) {
		d.Kernel().Warnf("FS: Write from bad buffer %#08x+%#x", req.Buffer, req.Size)
		return iosops.NewReply(EINVAL)
	}

	data := guestmem.CopyFromGuest(d.Kernel().Memory(), req.Buffer, req.Size)
	code := d.fs.WriteFile(req.FD, data)
	return iosops.NewReplyWithDelay(code, Delay(req.Size))
}

func (d *Device) Seek(
	ctx context.Context,
	req *iosops.SeekRequest) *iosops.Reply {
	code := d.fs.SeekFile(req.FD, req.Offset, req.Mode)
	return iosops.NewReplyWithDelay(code, Delay(0))
}

func (d *Device) IOCtl(
	ctx context.Context,
	req *iosops.IOCtlRequest) *iosops.Reply {
	m := d.Kernel().Memory()

	// Stats are the only thing a file handle supports.
	if !d.managers[req.FD] {
		if req.Code != IOCtlGetFileStats {
			d.DumpUnknown(req.Dump(m, d.Name()))
			return iosops.NewReply(EINVAL)
		}

		size, pos, code := d.fs.GetFileStatus(req.FD)
		if code == iosops.Success {
			m.Write32(req.BufferOut, size)
			m.Write32(req.BufferOut+4, pos)
		}

		return iosops.NewReplyWithDelay(code, Delay(0))
	}

	var code iosops.ReturnCode
	switch req.Code {
	case IOCtlCreateDir:
		code = d.fs.CreateDirectory(readPath(m, req.BufferIn+attrPathOffset))

	case IOCtlCreateFile:
		code = d.fs.CreateFile(readPath(m, req.BufferIn+attrPathOffset))

	case IOCtlDelete:
		code = d.fs.Delete(readPath(m, req.BufferIn))

	case IOCtlRename:
		code = d.fs.Rename(
			readPath(m, req.BufferIn),
			readPath(m, req.BufferIn+MaxPathLength))

	default:
		d.DumpUnknown(req.Dump(m, d.Name()))
		code = EINVAL
	}

	return iosops.NewReplyWithDelay(code, Delay(0))
}

func (d *Device) DoState(p *savestate.Wrap) {
	d.DeviceBase.DoState(p)

	fds := make([]uint32, 0, len(d.managers))
	for fd := range d.managers {
		fds = append(fds, fd)
	}

	sort.Slice(fds, func(i, j int) bool { return fds[i] < fds[j] })
	p.Uint32s(&fds)

	if p.IsReading() {
		d.managers = make(map[uint32]bool)
		for _, fd := range fds {
			d.managers[fd] = true
		}
	}
}
