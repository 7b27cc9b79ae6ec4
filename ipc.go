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
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/timing"
)

// How long after the guest rings the doorbell the kernel picks a request up.
var AcknowledgementDelay = timing.TimebaseTicks(500)

// The scheduler event names the kernel registers. Hosts restoring a savestate
// written by another process must register callbacks under the same names
// before the restore, which NewKernel does.
const (
	ipcEventName                = "IPCEvent"
	sdioEventName               = "SDIO_EventNotify"
	finishIOSBootEventName      = "FinishIOSBoot"
	finishPPCBootstrapEventName = "FinishPPCBootstrap"
)

type ipcEventKind int

const (
	ipcRequest ipcEventKind = iota
	ipcReply
)

// The payload of ipcEvent.
type ipcEventPayload struct {
	kind    ipcEventKind
	address uint32
}

func (k *Kernel) registerEvents() {
	k.ipcEvent = k.scheduler.RegisterEvent(ipcEventName, k.handleIPCEvent)
	k.sdioEvent = k.scheduler.RegisterEvent(sdioEventName, k.handleSDIOEvent)
	k.finishIOSBoot = k.scheduler.RegisterEvent(
		finishIOSBootEventName,
		k.handleFinishIOSBoot)
	k.finishPPCBootstrap = k.scheduler.RegisterEvent(
		finishPPCBootstrapEventName,
		k.handleFinishPPCBootstrap)
}

// Cancel outstanding request, reply and SD events. Boot events survive, since
// the reset they trigger is what calls this.
func (k *Kernel) cancelEvents() {
	k.scheduler.RemoveAllEvents(k.ipcEvent)
	k.scheduler.RemoveAllEvents(k.sdioEvent)
}

// Cancel every event the kernel scheduled.
func (k *Kernel) cancelAllEvents() {
	k.cancelEvents()
	k.scheduler.RemoveAllEvents(k.finishIOSBoot)
	k.scheduler.RemoveAllEvents(k.finishPPCBootstrap)
}

func (k *Kernel) handleIPCEvent(payload interface{}, late timing.Ticks) {
	e := payload.(ipcEventPayload)
	switch e.kind {
	case ipcRequest:
		k.requestQueue = append(k.requestQueue, e.address)

	case ipcReply:
		k.replyQueue = append(k.replyQueue, e.address)
	}

	k.Update()
}

////////////////////////////////////////////////////////////////////////
// Queues
////////////////////////////////////////////////////////////////////////

// Accept the command block at addr from the guest. It is acknowledged and
// executed by Update once AcknowledgementDelay has passed.
func (k *Kernel) EnqueueIPCRequest(addr uint32) {
	k.scheduler.ScheduleEvent(
		AcknowledgementDelay,
		k.ipcEvent,
		ipcEventPayload{ipcRequest, addr})
}

// Complete req with the return value v. The block is filled in now; the
// guest is notified no sooner than delay ticks from now, and never before a
// reply enqueued earlier.
func (k *Kernel) EnqueueIPCReply(
	req *iosops.Request,
	v iosops.ReturnCode,
	delay timing.Ticks) {
	m := k.mem
	m.Write32(req.Address+4, uint32(v))
	m.Write32(req.Address+8, uint32(req.Command))
	m.Write32(req.Address, uint32(iosops.CommandReply))

	now := k.scheduler.Ticks()
	when := now + delay
	if when <= k.lastReplyTick {
		when = k.lastReplyTick + delay
	}

	k.lastReplyTick = when

	if k.tracing(req.Command) {
		k.Logf(
			"Reply to %#08x (%v): %v at tick %d",
			req.Address,
			req.Command,
			v,
			when)
	}

	k.scheduler.ScheduleEvent(
		when-now,
		k.ipcEvent,
		ipcEventPayload{ipcReply, req.Address})
}

// Make progress on the queues: execute one pending request, or failing that
// raise one pending reply. Does nothing while a new image boots or while the
// guest has yet to consume the previous notification.
//
// The host calls this whenever the notification line becomes ready.
func (k *Kernel) Update() {
	if k.paused || !k.notifier.IsReady() {
		return
	}

	if len(k.requestQueue) > 0 {
		addr := k.requestQueue[0]
		k.requestQueue = k.requestQueue[1:]

		k.notifier.ClearX1()
		k.notifier.GenerateAck(addr)
		k.ExecuteIPCCommand(addr)
		return
	}

	if len(k.replyQueue) > 0 {
		addr := k.replyQueue[0]
		k.replyQueue = k.replyQueue[1:]

		k.notifier.GenerateReply(addr)
		return
	}
}
