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

// Package iosutil defines the contract between the IPC kernel and the devices
// it dispatches to, along with a base type supplying default behaviour.
package iosutil

import (
	"fmt"

	"github.com/jacobsa/ios/guestmem"
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/savestate"
	"github.com/jacobsa/ios/timing"
	"golang.org/x/net/context"
)

// DeviceType says how a device came to exist, which decides how an fd that
// refers to it is serialized.
type DeviceType uint32

const (
	// Created when the registry is built and looked up by name.
	DeviceTypeStatic DeviceType = iota

	// Created for a single Open of a bus subpath and destroyed on Close.
	DeviceTypeOH0
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeStatic:
		return "static"
	case DeviceTypeOH0:
		return "OH0"
	}

	return fmt.Sprintf("DeviceType(%d)", uint32(t))
}

// Device is a named endpoint in the kernel's namespace. Embed DeviceBase to
// inherit the default behaviour for operations a device does not support.
//
// Every operation returns either a reply or nil. A nil reply means the device
// has taken responsibility for the request and will complete it later through
// Kernel.EnqueueIPCReply.
//
// Devices are driven from a single goroutine and need no locking of their own
// against the kernel.
type Device interface {
	Name() string
	Type() DeviceType

	// Is the device currently open on at least one handle?
	IsOpened() bool

	// May the device occupy more than one fd slot at a time?
	AllowsConcurrentOpens() bool

	Open(ctx context.Context, req *iosops.OpenRequest) *iosops.Reply
	Close(ctx context.Context, fd uint32) *iosops.Reply
	Read(ctx context.Context, req *iosops.ReadWriteRequest) *iosops.Reply
	Write(ctx context.Context, req *iosops.ReadWriteRequest) *iosops.Reply
	Seek(ctx context.Context, req *iosops.SeekRequest) *iosops.Reply
	IOCtl(ctx context.Context, req *iosops.IOCtlRequest) *iosops.Reply
	IOCtlV(ctx context.Context, req *iosops.IOCtlVRequest) *iosops.Reply

	// Called once per external tick while the device is open.
	Update()

	// Called when the host enters or leaves a mode (movie, netplay) in which
	// every device must behave deterministically.
	UpdateWantDeterminism(want bool)

	// Save or restore all device-private state.
	DoState(p *savestate.Wrap)
}

// Kernel is the part of the IPC kernel devices may call back into.
type Kernel interface {
	Memory() guestmem.Accessor

	// Current virtual time.
	Ticks() timing.Ticks

	// Look up a registered device, returning nil if there is none.
	GetDeviceByName(name string) Device

	// Complete a request a device answered with a nil reply.
	EnqueueIPCReply(req *iosops.Request, v iosops.ReturnCode, delay timing.Ticks)

	// Credentials of the PPC process.
	UIDForPPC() uint32
	SetUIDForPPC(uid uint32)
	GIDForPPC() uint16
	SetGIDForPPC(gid uint16)

	// The active kernel image's version.
	Version() uint32

	// Write to the debug log.
	Logf(format string, v ...interface{})

	// Write to the error log.
	Warnf(format string, v ...interface{})
}
