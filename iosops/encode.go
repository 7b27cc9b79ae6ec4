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

package iosops

import (
	"github.com/jacobsa/ios/guestmem"
)

// Helpers for building command blocks in guest memory, the way guest code
// does before ringing the IPC doorbell. The return value word is cleared.

func writeHeader(m guestmem.Accessor, addr uint32, c Command, fd uint32) {
	m.Memset(addr, 0, 0x20)
	m.Write32(addr, uint32(c))
	m.Write32(addr+8, fd)
}

// Write an Open block at addr, storing the NUL-terminated path at pathAddr.
func EncodeOpen(
	m guestmem.Accessor,
	addr uint32,
	pathAddr uint32,
	path string,
	mode OpenMode) {
	guestmem.CopyToGuest(m, pathAddr, append([]byte(path), 0))

	writeHeader(m, addr, CommandOpen, 0)
	m.Write32(addr+0x0c, pathAddr)
	m.Write32(addr+0x10, uint32(mode))
}

func EncodeClose(m guestmem.Accessor, addr uint32, fd uint32) {
	writeHeader(m, addr, CommandClose, fd)
}

// c must be CommandRead or CommandWrite.
func EncodeReadWrite(
	m guestmem.Accessor,
	addr uint32,
	c Command,
	fd uint32,
	buffer uint32,
	size uint32) {
	writeHeader(m, addr, c, fd)
	m.Write32(addr+0x0c, buffer)
	m.Write32(addr+0x10, size)
}

func EncodeSeek(
	m guestmem.Accessor,
	addr uint32,
	fd uint32,
	offset uint32,
	mode SeekMode) {
	writeHeader(m, addr, CommandSeek, fd)
	m.Write32(addr+0x0c, offset)
	m.Write32(addr+0x10, uint32(mode))
}

func EncodeIOCtl(m guestmem.Accessor, addr uint32, r *IOCtlRequest) {
	writeHeader(m, addr, CommandIOCtl, r.FD)
	m.Write32(addr+0x0c, r.Code)
	m.Write32(addr+0x10, r.BufferIn)
	m.Write32(addr+0x14, r.BufferInSize)
	m.Write32(addr+0x18, r.BufferOut)
	m.Write32(addr+0x1c, r.BufferOutSize)
}

// Write an IOCtlV block at addr, with its vector table at tableAddr.
func EncodeIOCtlV(
	m guestmem.Accessor,
	addr uint32,
	tableAddr uint32,
	r *IOCtlVRequest) {
	writeHeader(m, addr, CommandIOCtlV, r.FD)
	m.Write32(addr+0x0c, r.Code)
	m.Write32(addr+0x10, uint32(len(r.In)))
	m.Write32(addr+0x14, uint32(len(r.IO)))
	m.Write32(addr+0x18, tableAddr)

	for i, v := range append(append([]IOVector(nil), r.In...), r.IO...) {
		m.Write32(tableAddr+8*uint32(i), v.Address)
		m.Write32(tableAddr+8*uint32(i)+4, v.Size)
	}
}
