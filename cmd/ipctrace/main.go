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

// A tool that runs the IPC kernel against simulated hardware and replays a
// short filesystem session, printing every notification the kernel raises
// along with the virtual time at which it happened. Useful for checking
// latencies and storage roots without a guest.
//
// Usage:
//
//     ipctrace --storage_root /path/to/nand --file /ipctrace.txt --contents taco
//
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/jacobsa/ios"
	"github.com/jacobsa/ios/devices/fs"
	"github.com/jacobsa/ios/guestmem"
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/timing"
)

var fStorageRoot = flag.String("storage_root", "", "Host directory backing guest storage. A temporary one if empty.")
var fTitle = flag.String("title", "0x0000000100000050", "Title of the kernel image to start with.")
var fReload = flag.String("reload", "", "If set, the title of a kernel image to switch to at the end.")
var fFile = flag.String("file", "/ipctrace.txt", "Guest path of the file to create, write and read back.")
var fContents = flag.String("contents", "hello from ipctrace\n", "What to write.")
var fList = flag.Bool("list", false, "List the registered devices.")

// Addresses of the command block, its attached path and attribute blocks and
// the data buffer the tool uses.
const (
	blockAddr  = 0x80010000
	pathAddr   = 0x80010040
	attrAddr   = 0x80010100
	bufferAddr = 0x80020000
)

// A notifier that is always ready and prints what it is told.
type traceNotifier struct {
	scheduler timing.Scheduler
}

func (n *traceNotifier) IsReady() bool {
	return true
}

func (n *traceNotifier) GenerateAck(addr uint32) {
	fmt.Printf("%12d  ack    %#08x\n", n.scheduler.Ticks(), addr)
}

func (n *traceNotifier) GenerateReply(addr uint32) {
	fmt.Printf("%12d  reply  %#08x\n", n.scheduler.Ticks(), addr)
}

func (n *traceNotifier) ClearX1() {
}

////////////////////////////////////////////////////////////////////////
// Session
////////////////////////////////////////////////////////////////////////

type session struct {
	k         *ios.Kernel
	mem       *guestmem.RAM
	scheduler *timing.Simulated
}

// Run the scheduler until nothing is pending.
func (s *session) drain() {
	for {
		when, ok := s.scheduler.NextEvent()
		if !ok {
			return
		}

		s.scheduler.Advance(when - s.scheduler.Ticks())
	}
}

// Submit the block at blockAddr and wait for its reply. Negative results
// become errors.
func (s *session) call(desc string) (v iosops.ReturnCode, err error) {
	s.k.EnqueueIPCRequest(blockAddr)
	s.drain()

	v = iosops.ReturnCode(s.mem.Read32(blockAddr + 4))
	fmt.Printf("%12d  %s -> %v\n", s.scheduler.Ticks(), desc, v)

	if v < 0 {
		err = fmt.Errorf("%s: %v", desc, v)
		return
	}

	return
}

func (s *session) open(p string, mode iosops.OpenMode) (fd uint32, err error) {
	iosops.EncodeOpen(s.mem, blockAddr, pathAddr, p, mode)
	v, err := s.call(fmt.Sprintf("Open(%q)", p))
	fd = uint32(v)
	return
}

func (s *session) close(fd uint32) (err error) {
	iosops.EncodeClose(s.mem, blockAddr, fd)
	_, err = s.call("Close")
	return
}

// Create the file through a manager handle, replacing any existing one.
func (s *session) create(p string) (err error) {
	manager, err := s.open(fs.DeviceName, iosops.OpenNone)
	if err != nil {
		return
	}

	// Owner and group come before the path.
	s.mem.Memset(attrAddr, 0, 6)
	guestmem.CopyToGuest(s.mem, attrAddr+6, append([]byte(p), 0))
	guestmem.CopyToGuest(s.mem, pathAddr, append([]byte(p), 0))

	ioctl := func(code uint32, in uint32) *iosops.IOCtlRequest {
		return &iosops.IOCtlRequest{
			Request:      iosops.Request{FD: manager},
			Code:         code,
			BufferIn:     in,
			BufferInSize: 0x100,
		}
	}

	// A missing file is fine.
	iosops.EncodeIOCtl(s.mem, blockAddr, ioctl(fs.IOCtlDelete, pathAddr))
	s.call("Delete")

	iosops.EncodeIOCtl(s.mem, blockAddr, ioctl(fs.IOCtlCreateFile, attrAddr))
	if _, err = s.call("CreateFile"); err != nil {
		return
	}

	err = s.close(manager)
	return
}

func (s *session) writeAndReadBack(p string, contents []byte) (err error) {
	if err = s.create(p); err != nil {
		return
	}

	fd, err := s.open(p, iosops.OpenReadWrite)
	if err != nil {
		return
	}

	n := uint32(len(contents))
	guestmem.CopyToGuest(s.mem, bufferAddr, contents)
	iosops.EncodeReadWrite(s.mem, blockAddr, iosops.CommandWrite, fd, bufferAddr, n)
	if _, err = s.call("Write"); err != nil {
		return
	}

	iosops.EncodeSeek(s.mem, blockAddr, fd, 0, iosops.SeekSet)
	if _, err = s.call("Seek"); err != nil {
		return
	}

	s.mem.Memset(bufferAddr, 0, n)
	iosops.EncodeReadWrite(s.mem, blockAddr, iosops.CommandRead, fd, bufferAddr, n)
	v, err := s.call("Read")
	if err != nil {
		return
	}

	fmt.Printf("%q\n", guestmem.CopyFromGuest(s.mem, bufferAddr, uint32(v)))

	err = s.close(fd)
	return
}

////////////////////////////////////////////////////////////////////////
// main
////////////////////////////////////////////////////////////////////////

func parseTitle(s string) (title uint64, err error) {
	title, err = strconv.ParseUint(s, 0, 64)
	if err != nil {
		err = fmt.Errorf("ParseUint(%q): %v", s, err)
		return
	}

	return
}

func run() (err error) {
	title, err := parseTitle(*fTitle)
	if err != nil {
		return
	}

	s := &session{
		mem:       guestmem.NewRAM(guestmem.DefaultMem1Size, guestmem.DefaultMem2Size),
		scheduler: timing.NewSimulated(),
	}

	cfg := &ios.Config{
		Memory:      s.mem,
		Scheduler:   s.scheduler,
		Notifier:    &traceNotifier{scheduler: s.scheduler},
		ErrorLogger: log.New(os.Stderr, "warning: ", 0),
		StorageRoot: *fStorageRoot,
		TitleID:     title,
	}

	err = ios.Init(cfg)
	if err != nil {
		err = fmt.Errorf("Init: %v", err)
		return
	}

	defer func() {
		if shutdownErr := ios.Shutdown(); shutdownErr != nil && err == nil {
			err = fmt.Errorf("Shutdown: %v", shutdownErr)
		}
	}()

	s.k = ios.Current()
	fmt.Printf("IOS%d, storage in %s\n", s.k.Version(), s.k.StorageRoot())

	if *fList {
		for _, d := range s.k.Devices() {
			fmt.Println(d.Name())
		}
	}

	err = s.writeAndReadBack(*fFile, []byte(*fContents))
	if err != nil {
		return
	}

	if *fReload != "" {
		var next uint64
		next, err = parseTitle(*fReload)
		if err != nil {
			return
		}

		err = s.k.BootIOS(next, false, "")
		if err != nil {
			err = fmt.Errorf("BootIOS: %v", err)
			return
		}

		s.drain()
		fmt.Printf("%12d  now IOS%d\n", s.scheduler.Ticks(), s.k.Version())
	}

	return
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}
}
