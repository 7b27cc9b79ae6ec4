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

package es

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/savestate"
	"github.com/jacobsa/syncutil"
)

// Result codes of the key subsystem.
const (
	IOSCEACCES iosops.ReturnCode = -2000
	IOSCEEXIST iosops.ReturnCode = -2001
	IOSCEINVAL iosops.ReturnCode = -2002
	IOSCEMAX   iosops.ReturnCode = -2003
	IOSCENOENT iosops.ReturnCode = -2004
)

// Handle names an object in the key table.
type Handle uint32

// Objects present from boot.
const (
	HandleConsoleKey Handle = iota
	HandleConsoleID
	HandleFSKey
	HandleFSMAC
	HandleCommonKey
	HandlePRNGKey
	HandleSDKey

	numDefaultHandles
)

// The capacity of the key table.
const MaxObjects = 32

type ObjectType uint8

const (
	ObjectTypeSecretKey ObjectType = 0
	ObjectTypePublicKey ObjectType = 1
	ObjectTypeData      ObjectType = 3
)

type ObjectSubType uint8

const (
	ObjectSubTypeAES128 ObjectSubType = 0
	ObjectSubTypeMAC    ObjectSubType = 1
	ObjectSubTypeData   ObjectSubType = 4
)

// Owner masks. The PPC is process 15.
const (
	ownerKernel uint32 = 1 << 0
	ownerPPC    uint32 = 1 << 15
	ownerAll    uint32 = 0xffffffff
)

type object struct {
	inUse   bool
	typ     ObjectType
	subtype ObjectSubType
	data    []byte
	misc    uint32
	owners  uint32
}

// IOSC is the kernel's key store. Secret key material never leaves it; callers
// refer to keys by handle.
type IOSC struct {
	mu syncutil.InvariantMutex

	// INVARIANT: For each in-use secret AES key, len(data) == aes.BlockSize
	objects [MaxObjects]object // GUARDED_BY(mu)
}

// Create a key store holding the default objects of a console with the given
// device ID. The key material is derived from the ID; no real console secrets
// are involved.
func NewIOSC(deviceID uint32) (c *IOSC) {
	c = &IOSC{}
	c.mu = syncutil.NewInvariantMutex(c.checkInvariants)
	c.reset(deviceID)
	return
}

func (c *IOSC) checkInvariants() {
	for i, o := range c.objects {
		if o.inUse && o.typ == ObjectTypeSecretKey &&
			o.subtype == ObjectSubTypeAES128 && len(o.data) != aes.BlockSize {
			panic(fmt.Sprintf("Object %d: AES key of %d bytes", i, len(o.data)))
		}
	}
}

func derivedKey(deviceID uint32, salt uint32) []byte {
	k := make([]byte, aes.BlockSize)
	x := deviceID ^ salt*0x9e3779b9
	for i := 0; i < len(k); i += 4 {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		binary.BigEndian.PutUint32(k[i:], x)
	}

	return k
}

func (c *IOSC) reset(deviceID uint32) {
	c.objects = [MaxObjects]object{}

	aesKey := func(h Handle) object {
		return object{
			inUse:   true,
			typ:     ObjectTypeSecretKey,
			subtype: ObjectSubTypeAES128,
			data:    derivedKey(deviceID, uint32(h)),
			owners:  ownerAll,
		}
	}

	id := make([]byte, 4)
	binary.BigEndian.PutUint32(id, deviceID)

	c.objects[HandleConsoleKey] = object{
		inUse:   true,
		typ:     ObjectTypeSecretKey,
		subtype: ObjectSubTypeMAC,
		data:    derivedKey(deviceID, 0xecc),
		owners:  ownerKernel,
	}
	c.objects[HandleConsoleID] = object{
		inUse:   true,
		typ:     ObjectTypeData,
		subtype: ObjectSubTypeData,
		data:    id,
		misc:    deviceID,
		owners:  ownerAll,
	}
	c.objects[HandleFSKey] = aesKey(HandleFSKey)
	c.objects[HandleFSMAC] = object{
		inUse:   true,
		typ:     ObjectTypeSecretKey,
		subtype: ObjectSubTypeMAC,
		data:    derivedKey(deviceID, 0x3ac),
		owners:  ownerKernel,
	}
	c.objects[HandleCommonKey] = aesKey(HandleCommonKey)
	c.objects[HandlePRNGKey] = aesKey(HandlePRNGKey)
	c.objects[HandleSDKey] = aesKey(HandleSDKey)
}

////////////////////////////////////////////////////////////////////////
// Objects
////////////////////////////////////////////////////////////////////////

// LOCKS_EXCLUDED(c.mu)
func (c *IOSC) DeviceID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.objects[HandleConsoleID].misc
}

// Allocate an empty object owned by the PPC.
//
// LOCKS_EXCLUDED(c.mu)
func (c *IOSC) CreateObject(
	typ ObjectType,
	subtype ObjectSubType) (h Handle, code iosops.ReturnCode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := numDefaultHandles; i < MaxObjects; i++ {
		if !c.objects[i].inUse {
			c.objects[i] = object{
				inUse:   true,
				typ:     typ,
				subtype: subtype,
				owners:  ownerPPC,
			}

			h = i
			return
		}
	}

	code = IOSCEMAX
	return
}

// LOCKS_EXCLUDED(c.mu)
func (c *IOSC) DeleteObject(h Handle) (code iosops.ReturnCode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h < numDefaultHandles {
		code = IOSCEACCES
		return
	}

	if h >= MaxObjects || !c.objects[h].inUse {
		code = IOSCENOENT
		return
	}

	c.objects[h] = object{}
	return
}

// Store AES key material in an object created with CreateObject.
//
// LOCKS_EXCLUDED(c.mu)
func (c *IOSC) ImportSecretKey(h Handle, key []byte) (code iosops.ReturnCode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h >= MaxObjects || !c.objects[h].inUse {
		code = IOSCENOENT
		return
	}

	o := &c.objects[h]
	if o.owners&ownerPPC == 0 {
		code = IOSCEACCES
		return
	}

	if o.typ != ObjectTypeSecretKey || o.subtype != ObjectSubTypeAES128 ||
		len(key) != aes.BlockSize {
		code = IOSCEINVAL
		return
	}

	o.data = append([]byte(nil), key...)
	return
}

// LOCKS_REQUIRED(c.mu)
func (c *IOSC) blockCipher(h Handle) (b cipher.Block, code iosops.ReturnCode) {
	if h >= MaxObjects || !c.objects[h].inUse {
		code = IOSCENOENT
		return
	}

	o := &c.objects[h]
	if o.owners&ownerPPC == 0 {
		code = IOSCEACCES
		return
	}

	if o.typ != ObjectTypeSecretKey || o.subtype != ObjectSubTypeAES128 ||
		len(o.data) != aes.BlockSize {
		code = IOSCEINVAL
		return
	}

	b, err := aes.NewCipher(o.data)
	if err != nil {
		code = IOSCEINVAL
		return
	}

	return
}

// AES-128-CBC encrypt src with the key at h. The IV to chain into the next
// call is returned alongside the ciphertext.
//
// LOCKS_EXCLUDED(c.mu)
func (c *IOSC) Encrypt(
	h Handle,
	iv []byte,
	src []byte) (dst []byte, nextIV []byte, code iosops.ReturnCode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(iv) != aes.BlockSize || len(src)%aes.BlockSize != 0 {
		code = IOSCEINVAL
		return
	}

	b, code := c.blockCipher(h)
	if code != iosops.Success {
		return
	}

	dst = make([]byte, len(src))
	cipher.NewCBCEncrypter(b, iv).CryptBlocks(dst, src)

	nextIV = append([]byte(nil), iv...)
	if len(dst) > 0 {
		nextIV = append([]byte(nil), dst[len(dst)-aes.BlockSize:]...)
	}

	return
}

// The inverse of Encrypt.
//
// LOCKS_EXCLUDED(c.mu)
func (c *IOSC) Decrypt(
	h Handle,
	iv []byte,
	src []byte) (dst []byte, nextIV []byte, code iosops.ReturnCode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(iv) != aes.BlockSize || len(src)%aes.BlockSize != 0 {
		code = IOSCEINVAL
		return
	}

	b, code := c.blockCipher(h)
	if code != iosops.Success {
		return
	}

	dst = make([]byte, len(src))
	cipher.NewCBCDecrypter(b, iv).CryptBlocks(dst, src)

	nextIV = append([]byte(nil), iv...)
	if len(src) > 0 {
		nextIV = append([]byte(nil), src[len(src)-aes.BlockSize:]...)
	}

	return
}

// LOCKS_EXCLUDED(c.mu)
func (c *IOSC) DoState(p *savestate.Wrap) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p.Marker("iosc")
	for i := range c.objects {
		o := &c.objects[i]
		typ := uint8(o.typ)
		subtype := uint8(o.subtype)

		p.Bool(&o.inUse)
		p.Uint8(&typ)
		p.Uint8(&subtype)
		p.ByteSlice(&o.data)
		p.Uint32(&o.misc)
		p.Uint32(&o.owners)

		o.typ = ObjectType(typ)
		o.subtype = ObjectSubType(subtype)
	}
}
