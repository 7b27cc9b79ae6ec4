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

// Op is implemented by every typed request.
type Op interface {
	// The fields common to all requests.
	Header() *Request
}

// Request holds the fields every command block starts with. A bare *Request
// is what Decode returns for Close and for unrecognized command words.
type Request struct {
	// Guest address of the command block.
	Address uint32

	// The command word, preserved even when it is not a known kind.
	Command Command

	// The handle the request targets. Meaningless for Open until the kernel
	// assigns one.
	FD uint32
}

func (r *Request) Header() *Request {
	return r
}

type OpenRequest struct {
	Request
	Path  string
	Flags OpenMode

	// Credentials of the calling PPC process, filled in by the kernel.
	UID uint32
	GID uint16
}

type ReadWriteRequest struct {
	Request
	Buffer uint32
	Size   uint32
}

type SeekRequest struct {
	Request
	Offset uint32
	Mode   SeekMode
}

type IOCtlRequest struct {
	Request
	Code          uint32
	BufferIn      uint32
	BufferInSize  uint32
	BufferOut     uint32
	BufferOutSize uint32
}

// IOVector is one (address, size) entry of an IOCtlV vector table.
type IOVector struct {
	Address uint32
	Size    uint32
}

type IOCtlVRequest struct {
	Request
	Code uint32

	// Vectors the device reads from, then vectors it writes to.
	In []IOVector
	IO []IOVector

	// Set when the vector counts were too large to decode.
	malformed bool
}

// The most vectors a single IOCtlV may carry. Larger counts are treated as a
// corrupt block.
const MaxVectors = 0x100

// Decode the header of the command block at addr.
func NewRequest(m guestmem.Accessor, addr uint32) Request {
	return Request{
		Address: addr,
		Command: Command(m.Read32(addr)),
		FD:      m.Read32(addr + 8),
	}
}

// Decode the command block at addr into the typed request matching its
// command word. Close and unknown command words yield a bare *Request; the
// caller decides what to do with the latter.
func Decode(m guestmem.Accessor, addr uint32) (o Op) {
	r := NewRequest(m, addr)

	switch r.Command {
	case CommandOpen:
		o = &OpenRequest{
			Request: r,
			Path:    m.ReadString(m.Read32(addr + 0x0c)),
			Flags:   OpenMode(m.Read32(addr + 0x10)),
		}

	case CommandRead, CommandWrite:
		o = &ReadWriteRequest{
			Request: r,
			Buffer:  m.Read32(addr + 0x0c),
			Size:    m.Read32(addr + 0x10),
		}

	case CommandSeek:
		o = &SeekRequest{
			Request: r,
			Offset:  m.Read32(addr + 0x0c),
			Mode:    SeekMode(m.Read32(addr + 0x10)),
		}

	case CommandIOCtl:
		o = &IOCtlRequest{
			Request:       r,
			Code:          m.Read32(addr + 0x0c),
			BufferIn:      m.Read32(addr + 0x10),
			BufferInSize:  m.Read32(addr + 0x14),
			BufferOut:     m.Read32(addr + 0x18),
			BufferOutSize: m.Read32(addr + 0x1c),
		}

	case CommandIOCtlV:
		o = decodeIOCtlV(m, r)

	default:
		o = &r
	}

	return
}

func decodeIOCtlV(m guestmem.Accessor, r Request) (req *IOCtlVRequest) {
	addr := r.Address
	req = &IOCtlVRequest{
		Request: r,
		Code:    m.Read32(addr + 0x0c),
	}

	inCount := m.Read32(addr + 0x10)
	ioCount := m.Read32(addr + 0x14)
	table := m.Read32(addr + 0x18)

	readVector := func(i uint32) IOVector {
		return IOVector{
			Address: m.Read32(table + 8*i),
			Size:    m.Read32(table + 8*i + 4),
		}
	}

	// The counts come straight from the guest. An oversized table is left
	// empty and HasNumberOfValidVectors rejects it.
	if uint64(inCount)+uint64(ioCount) > MaxVectors {
		req.malformed = true
		return
	}

	req.In = make([]IOVector, inCount)
	for i := range req.In {
		req.In[i] = readVector(uint32(i))
	}

	req.IO = make([]IOVector, ioCount)
	for i := range req.IO {
		req.IO[i] = readVector(inCount + uint32(i))
	}

	return
}

// Return the i'th vector counting inputs first, or nil if out of range.
func (r *IOCtlVRequest) GetVector(i int) *IOVector {
	switch {
	case i < 0:
		return nil
	case i < len(r.In):
		return &r.In[i]
	case i < len(r.In)+len(r.IO):
		return &r.IO[i-len(r.In)]
	}

	return nil
}

// Return true iff the request has exactly in input vectors and io output
// vectors, and every vector of non-zero size has a non-null address.
func (r *IOCtlVRequest) HasNumberOfValidVectors(in int, io int) bool {
	if r.malformed || len(r.In) != in || len(r.IO) != io {
		return false
	}

	for _, vs := range [][]IOVector{r.In, r.IO} {
		for _, v := range vs {
			if v.Size != 0 && v.Address == 0 {
				return false
			}
		}
	}

	return true
}

// Return true if some input vector has the given address.
func (r *IOCtlVRequest) HasInputVectorWithAddress(addr uint32) bool {
	for _, v := range r.In {
		if v.Address == addr {
			return true
		}
	}

	return false
}
