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
	"fmt"

	"github.com/jacobsa/ios/timing"
)

// Latencies observed on hardware. They are approximate and only their
// relative order matters to guests; tune freely.
var (
	DefaultReplyDelay = timing.TimebaseTicks(4000)

	// Replies the kernel itself produces without reaching a device.
	UnknownCommandDelay = timing.TimebaseTicks(978)
	BadFDDelay          = timing.TimebaseTicks(550)
	TableFullDelay      = timing.TimebaseTicks(5000)
	NotFoundDelay       = timing.TimebaseTicks(3700)
)

// Reply is the outcome of one device operation: the value to write into the
// command block and how long after dispatch the guest should see it.
type Reply struct {
	ReturnValue ReturnCode
	Delay       timing.Ticks
}

// Create a reply with the default delay.
func NewReply(v ReturnCode) *Reply {
	return &Reply{
		ReturnValue: v,
		Delay:       DefaultReplyDelay,
	}
}

// Create a reply with an explicit delay.
func NewReplyWithDelay(v ReturnCode, delay timing.Ticks) *Reply {
	return &Reply{
		ReturnValue: v,
		Delay:       delay,
	}
}

func (r *Reply) String() string {
	return fmt.Sprintf("%v after %d ticks", r.ReturnValue, r.Delay)
}
