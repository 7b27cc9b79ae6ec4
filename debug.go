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
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/jacobsa/ios/iosops"
)

var fEnableDebug = flag.Bool(
	"ios.debug",
	false,
	"Write IPC kernel debugging messages to stderr.")

var fDebugCommands = flag.String(
	"ios.debug_commands",
	"",
	"Comma-separated command kinds to trace with --ios.debug, e.g. "+
		"\"open,ioctlv\". Empty means all of them.")

var gLogger *log.Logger
var gTracedCommands map[iosops.Command]bool
var gLoggerOnce sync.Once

func initLogger() {
	if !flag.Parsed() {
		panic("initLogger called before flags available.")
	}

	var err error
	gTracedCommands, err = parseCommands(*fDebugCommands)
	if err != nil {
		panic(fmt.Sprintf("--ios.debug_commands: %v", err))
	}

	var writer io.Writer = ioutil.Discard
	if *fEnableDebug {
		writer = os.Stderr
	}

	const flags = log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	gLogger = log.New(writer, "ios: ", flags)
}

func getLogger() *log.Logger {
	gLoggerOnce.Do(initLogger)
	return gLogger
}

// The commands named by --ios.debug_commands, or nil for all of them.
func getTracedCommands() map[iosops.Command]bool {
	gLoggerOnce.Do(initLogger)
	return gTracedCommands
}

// Parse a comma-separated list of command names, ignoring case. An empty
// list yields nil.
func parseCommands(s string) (cmds map[iosops.Command]bool, err error) {
	if s == "" {
		return
	}

	cmds = make(map[iosops.Command]bool)
	for _, name := range strings.Split(s, ",") {
		c, ok := commandNamed(strings.TrimSpace(name))
		if !ok {
			err = fmt.Errorf("unknown command %q", name)
			return
		}

		cmds[c] = true
	}

	return
}

func commandNamed(name string) (c iosops.Command, ok bool) {
	for c = iosops.CommandOpen; c.Valid(); c++ {
		if strings.EqualFold(c.String(), name) {
			ok = true
			return
		}
	}

	return
}

// A set holding exactly cmds, or nil if there are none.
func commandSet(cmds []iosops.Command) (set map[iosops.Command]bool) {
	if len(cmds) == 0 {
		return
	}

	set = make(map[iosops.Command]bool)
	for _, c := range cmds {
		set[c] = true
	}

	return
}

////////////////////////////////////////////////////////////////////////
// Command tracing
////////////////////////////////////////////////////////////////////////

// Are commands of kind c written to the debug logger?
func (k *Kernel) tracing(c iosops.Command) bool {
	return k.tracedCommands == nil || k.tracedCommands[c]
}

// Log an incoming request, stamped with the virtual time.
func (k *Kernel) traceRequest(op iosops.Op) {
	if !k.tracing(op.Header().Command) {
		return
	}

	const calldepth = 2
	k.debugLogger.Output(
		calldepth,
		fmt.Sprintf("[%d] <- %s", k.scheduler.Ticks(), iosops.Describe(op)))
}

// Log the reply a device returned for a request of kind c. A nil reply was
// deferred by the device.
func (k *Kernel) traceReply(c iosops.Command, reply *iosops.Reply) {
	if !k.tracing(c) {
		return
	}

	desc := "deferred"
	if reply != nil {
		desc = reply.String()
	}

	const calldepth = 2
	k.debugLogger.Output(
		calldepth,
		fmt.Sprintf("[%d] -> (%v) %s", k.scheduler.Ticks(), c, desc))
}
