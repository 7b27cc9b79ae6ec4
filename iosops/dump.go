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
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jacobsa/ios/guestmem"
	"github.com/kylelemons/godebug/pretty"
)

var describeConfig = &pretty.Config{Compact: true}

// Return a one-line description of a decoded request, for debug logs.
func Describe(o Op) string {
	return describeConfig.Sprint(o)
}

// Cap on the number of bytes of any one buffer included in a dump.
const maxDumpBytes = 0x100

func dumpBuffer(m guestmem.Accessor, what string, addr uint32, size uint32) string {
	n := size
	if n > maxDumpBytes {
		n = maxDumpBytes
	}

	b := guestmem.CopyFromGuest(m, addr, n)
	return fmt.Sprintf(
		"%s (%#08x, %d bytes):\n%s",
		what,
		addr,
		size,
		strings.TrimRight(hex.Dump(b), "\n"))
}

// Return a hex dump of the request's buffers, for diagnosing devices whose
// protocol is not fully understood.
func (r *IOCtlRequest) Dump(m guestmem.Accessor, device string) string {
	lines := []string{
		fmt.Sprintf("IOCtl %#x on %s (fd %d)", r.Code, device, r.FD),
		dumpBuffer(m, "in", r.BufferIn, r.BufferInSize),
		dumpBuffer(m, "out", r.BufferOut, r.BufferOutSize),
	}

	return strings.Join(lines, "\n")
}

func (r *IOCtlVRequest) Dump(m guestmem.Accessor, device string) string {
	lines := []string{
		fmt.Sprintf(
			"IOCtlV %#x on %s (fd %d): %d in, %d io",
			r.Code,
			device,
			r.FD,
			len(r.In),
			len(r.IO)),
	}

	for i, v := range r.In {
		lines = append(lines, dumpBuffer(m, fmt.Sprintf("in[%d]", i), v.Address, v.Size))
	}

	for i, v := range r.IO {
		lines = append(lines, dumpBuffer(m, fmt.Sprintf("io[%d]", i), v.Address, v.Size))
	}

	return strings.Join(lines, "\n")
}
