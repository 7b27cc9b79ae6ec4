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

// Package guestmem provides access to the emulated console's address space.
//
// The guest is a big-endian PowerPC. Its main memory is split into two
// physically separate banks: MEM1 at physical address zero and MEM2 at
// physical address 0x10000000. Effective addresses in the cached and uncached
// windows (0x8xxxxxxx, 0xCxxxxxxx, 0x9xxxxxxx, 0xDxxxxxxx) map onto the same
// banks.
package guestmem

import (
	"encoding/binary"
	"fmt"
)

// Accessor is the view of guest memory used by the IPC kernel and its
// devices. Accesses to unmapped addresses read as zero and writes to them are
// dropped, matching the behaviour of the memory-mapping layer the kernel is
// embedded in.
type Accessor interface {
	Read8(addr uint32) uint8
	Read16(addr uint32) uint16
	Read32(addr uint32) uint32
	Read64(addr uint32) uint64

	Write8(addr uint32, v uint8)
	Write16(addr uint32, v uint16)
	Write32(addr uint32, v uint32)
	Write64(addr uint32, v uint64)

	// Read a NUL-terminated string starting at addr. Reading stops at the first
	// unmapped byte.
	ReadString(addr uint32) string

	// Return a slice aliasing n bytes of guest memory starting at addr, or nil
	// if any part of the range is unmapped.
	Range(addr uint32, n uint32) []byte

	// Fill n bytes starting at addr with v.
	Memset(addr uint32, v byte, n uint32)
}

// Copy n bytes of guest memory starting at addr into a fresh slice. Unmapped
// bytes read as zero.
func CopyFromGuest(m Accessor, addr uint32, n uint32) (b []byte) {
	b = make([]byte, n)
	if r := m.Range(addr, n); r != nil {
		copy(b, r)
		return
	}

	for i := range b {
		b[i] = m.Read8(addr + uint32(i))
	}

	return
}

// Is every byte of the n bytes starting at addr mapped? An empty range always
// is. Devices check guest-supplied buffers with this before touching them.
func ValidRange(m Accessor, addr uint32, n uint32) bool {
	return n == 0 || m.Range(addr, n) != nil
}

// Copy b into guest memory starting at addr.
func CopyToGuest(m Accessor, addr uint32, b []byte) {
	if r := m.Range(addr, uint32(len(b))); r != nil {
		copy(r, b)
		return
	}

	for i, c := range b {
		m.Write8(addr+uint32(i), c)
	}
}

////////////////////////////////////////////////////////////////////////
// RAM
////////////////////////////////////////////////////////////////////////

const (
	// Physical base of the second bank.
	Mem2Physical = 0x10000000

	// Effective base addresses of the two banks in the cached window.
	Mem1Base = 0x80000000
	Mem2Base = 0x90000000

	// Default bank sizes of retail hardware.
	DefaultMem1Size = 0x01800000
	DefaultMem2Size = 0x04000000
)

// RAM is an Accessor backed by two byte slices. It is not safe for
// concurrent use; like the rest of the kernel it expects a single driving
// goroutine.
type RAM struct {
	mem1 []byte
	mem2 []byte
}

var _ Accessor = &RAM{}

// Create zeroed RAM with the supplied bank sizes.
func NewRAM(mem1Size uint32, mem2Size uint32) (r *RAM) {
	if mem1Size > Mem2Physical {
		panic(fmt.Sprintf("MEM1 size too large: %#x", mem1Size))
	}

	r = &RAM{
		mem1: make([]byte, mem1Size),
		mem2: make([]byte, mem2Size),
	}

	return
}

func (r *RAM) Mem1Size() uint32 {
	return uint32(len(r.mem1))
}

func (r *RAM) Mem2Size() uint32 {
	return uint32(len(r.mem2))
}

// Map an address range onto a bank. Returns nil if the range is not entirely
// within one bank.
func (r *RAM) translate(addr uint32, n uint32) []byte {
	p := uint64(addr & 0x1fffffff)
	end := p + uint64(n)

	switch {
	case end <= uint64(len(r.mem1)):
		return r.mem1[p:end]

	case p >= Mem2Physical && end-Mem2Physical <= uint64(len(r.mem2)):
		return r.mem2[p-Mem2Physical : end-Mem2Physical]
	}

	return nil
}

func (r *RAM) Range(addr uint32, n uint32) []byte {
	return r.translate(addr, n)
}

func (r *RAM) Read8(addr uint32) uint8 {
	if b := r.translate(addr, 1); b != nil {
		return b[0]
	}

	return 0
}

func (r *RAM) Read16(addr uint32) uint16 {
	if b := r.translate(addr, 2); b != nil {
		return binary.BigEndian.Uint16(b)
	}

	return 0
}

func (r *RAM) Read32(addr uint32) uint32 {
	if b := r.translate(addr, 4); b != nil {
		return binary.BigEndian.Uint32(b)
	}

	return 0
}

func (r *RAM) Read64(addr uint32) uint64 {
	if b := r.translate(addr, 8); b != nil {
		return binary.BigEndian.Uint64(b)
	}

	return 0
}

func (r *RAM) Write8(addr uint32, v uint8) {
	if b := r.translate(addr, 1); b != nil {
		b[0] = v
	}
}

func (r *RAM) Write16(addr uint32, v uint16) {
	if b := r.translate(addr, 2); b != nil {
		binary.BigEndian.PutUint16(b, v)
	}
}

func (r *RAM) Write32(addr uint32, v uint32) {
	if b := r.translate(addr, 4); b != nil {
		binary.BigEndian.PutUint32(b, v)
	}
}

func (r *RAM) Write64(addr uint32, v uint64) {
	if b := r.translate(addr, 8); b != nil {
		binary.BigEndian.PutUint64(b, v)
	}
}

func (r *RAM) ReadString(addr uint32) string {
	var s []byte
	for {
		b := r.translate(addr, 1)
		if b == nil || b[0] == 0 {
			break
		}

		s = append(s, b[0])
		addr++
	}

	return string(s)
}

func (r *RAM) Memset(addr uint32, v byte, n uint32) {
	if b := r.translate(addr, n); b != nil {
		for i := range b {
			b[i] = v
		}

		return
	}

	for i := uint32(0); i < n; i++ {
		r.Write8(addr+i, v)
	}
}
