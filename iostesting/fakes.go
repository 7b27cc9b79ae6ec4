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

package iostesting

import (
	"github.com/jacobsa/ios/timing"
)

// An event observed by FakeNotifier.
type Notification struct {
	// "ack" or "reply".
	Kind    string
	Address uint32
	Tick    timing.Ticks
}

// FakeNotifier records the notifications the kernel raises. It implements
// ios.Notifier.
type FakeNotifier struct {
	// Used to timestamp notifications. May be nil.
	Scheduler timing.Scheduler

	// Returned by IsReady.
	Ready bool

	Notifications []Notification
	X1Clears      int
}

func NewFakeNotifier(s timing.Scheduler) *FakeNotifier {
	return &FakeNotifier{
		Scheduler: s,
		Ready:     true,
	}
}

func (n *FakeNotifier) now() (t timing.Ticks) {
	if n.Scheduler != nil {
		t = n.Scheduler.Ticks()
	}

	return
}

func (n *FakeNotifier) IsReady() bool {
	return n.Ready
}

func (n *FakeNotifier) GenerateAck(addr uint32) {
	n.Notifications = append(n.Notifications, Notification{"ack", addr, n.now()})
}

func (n *FakeNotifier) GenerateReply(addr uint32) {
	n.Notifications = append(n.Notifications, Notification{"reply", addr, n.now()})
}

func (n *FakeNotifier) ClearX1() {
	n.X1Clears++
}

// Return the addresses of reply notifications, in order.
func (n *FakeNotifier) Replies() (addrs []uint32) {
	for _, e := range n.Notifications {
		if e.Kind == "reply" {
			addrs = append(addrs, e.Address)
		}
	}

	return
}

// Return the tick at which the reply for addr was raised, or -1.
func (n *FakeNotifier) ReplyTick(addr uint32) timing.Ticks {
	for _, e := range n.Notifications {
		if e.Kind == "reply" && e.Address == addr {
			return e.Tick
		}
	}

	return -1
}

// FakeCPU implements ios.CPU.
type FakeCPU struct {
	Resets int
	PC     uint32
}

func (c *FakeCPU) Reset() {
	c.Resets++
	c.PC = 0
}

func (c *FakeCPU) SetPC(pc uint32) {
	c.PC = pc
}
