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
	"strings"

	"github.com/jacobsa/ios/devices/fs"
	"github.com/jacobsa/ios/devices/usb"
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/iosutil"
	"github.com/jacobsa/reqtrace"
	"golang.org/x/net/context"
)

// Subpaths of the OH0 bus name individual USB devices, which are created on
// demand.
const oh0DevicePrefix = usb.OH0Name + "/"

// Decode and execute the command block at addr, enqueueing its reply unless
// the device defers it.
func (k *Kernel) ExecuteIPCCommand(addr uint32) {
	op := iosops.Decode(k.mem, addr)
	req := op.Header()

	if !req.Command.Valid() {
		k.Warnf("Unknown IPC command %v at %#08x", req.Command, addr)
		k.EnqueueIPCReply(req, iosops.EINVAL, iosops.UnknownCommandDelay)
		return
	}

	k.traceRequest(op)

	ctx, report := reqtrace.StartSpan(k.opContext, req.Command.String())
	start := k.clock.Now()

	var reply *iosops.Reply
	if typed, ok := op.(*iosops.OpenRequest); ok {
		reply = k.handleOpen(ctx, typed)
	} else {
		reply = k.handleCommand(ctx, op)
	}

	if d := k.clock.Now().Sub(start); d > SlowCommandThreshold {
		k.Warnf("%v at %#08x took %v on the host", req.Command, addr, d)
	}

	// The device will call EnqueueIPCReply itself.
	if reply == nil {
		report(nil)
		k.traceReply(req.Command, nil)
		return
	}

	report(replyError(reply.ReturnValue))
	k.traceReply(req.Command, reply)
	k.EnqueueIPCReply(req, reply.ReturnValue, reply.Delay)
}

// Return the error to record in a trace span for the given return value.
func replyError(v iosops.ReturnCode) error {
	if v >= 0 {
		return nil
	}

	return fmt.Errorf("%v", v)
}

// Find the device a path names, creating it if it is a USB device on the OH0
// bus. Returns nil if nothing matches.
func (k *Kernel) resolveDevice(path string) iosutil.Device {
	switch {
	case strings.HasPrefix(path, oh0DevicePrefix) &&
		k.GetDeviceByName(path) == nil &&
		!HasFeature(k.Version(), FeatureNewUSB):
		return usb.NewOH0Device(k, path)

	case strings.HasPrefix(path, "/dev/"):
		return k.GetDeviceByName(path)

	// A bare filesystem path.
	case strings.HasPrefix(path, "/"):
		return k.GetDeviceByName(fs.DeviceName)
	}

	return nil
}

// Return the lowest free fd, or false if the table is full.
//
// LOCKS_EXCLUDED(k.mu)
func (k *Kernel) freeFD() (fd uint32, ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for i, d := range k.fds {
		if d == nil {
			fd = uint32(i)
			ok = true
			return
		}
	}

	return
}

// Is d exclusive and already open in some slot?
//
// LOCKS_EXCLUDED(k.mu)
func (k *Kernel) exclusivelyHeld(d iosutil.Device) bool {
	if d.AllowsConcurrentOpens() {
		return false
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	for _, other := range k.fds {
		if other == d {
			return true
		}
	}

	return false
}

func (k *Kernel) handleOpen(
	ctx context.Context,
	req *iosops.OpenRequest) *iosops.Reply {
	fd, ok := k.freeFD()
	if !ok {
		k.Warnf("Couldn't get a free fd for %q: too many open files", req.Path)
		return iosops.NewReplyWithDelay(iosops.EMAX, iosops.TableFullDelay)
	}

	req.FD = fd
	req.UID = k.uid
	req.GID = k.gid

	d := k.resolveDevice(req.Path)
	if d == nil {
		k.Warnf("Unknown device: %q", req.Path)
		return iosops.NewReplyWithDelay(iosops.ENOENT, iosops.NotFoundDelay)
	}

	if k.exclusivelyHeld(d) {
		k.Logf("%s is already open", d.Name())
		return iosops.NewReply(iosops.EACCES)
	}

	reply := d.Open(ctx, req)
	if reply == nil {
		k.Warnf("%s deferred an open, which is unsupported", d.Name())
		return iosops.NewReply(iosops.EINVAL)
	}

	if reply.ReturnValue < iosops.Success {
		return reply
	}

	k.mu.Lock()
	k.fds[fd] = d
	k.mu.Unlock()

	return iosops.NewReplyWithDelay(iosops.ReturnCode(fd), reply.Delay)
}

// Dispatch any command other than Open to the device holding its fd.
func (k *Kernel) handleCommand(
	ctx context.Context,
	op iosops.Op) *iosops.Reply {
	req := op.Header()

	var d iosutil.Device
	k.mu.Lock()
	if req.FD < MaxFDs {
		d = k.fds[req.FD]
	}
	k.mu.Unlock()

	if d == nil {
		return iosops.NewReplyWithDelay(iosops.EINVAL, iosops.BadFDDelay)
	}

	switch typed := op.(type) {
	case *iosops.ReadWriteRequest:
		if typed.Command == iosops.CommandRead {
			return d.Read(ctx, typed)
		}

		return d.Write(ctx, typed)

	case *iosops.SeekRequest:
		return d.Seek(ctx, typed)

	case *iosops.IOCtlRequest:
		return d.IOCtl(ctx, typed)

	case *iosops.IOCtlVRequest:
		return d.IOCtlV(ctx, typed)

	case *iosops.Request:
		// Close. A dynamic device is dropped along with its slot.
		k.mu.Lock()
		k.fds[req.FD] = nil
		k.mu.Unlock()

		return d.Close(ctx, req.FD)
	}

	panic(fmt.Sprintf("Unexpected op: %T", op))
}

// Return the device in each fd slot, nil for free slots.
//
// LOCKS_EXCLUDED(k.mu)
func (k *Kernel) FDs() (fds [MaxFDs]iosutil.Device) {
	k.mu.Lock()
	defer k.mu.Unlock()

	fds = k.fds
	return
}
