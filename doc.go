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

// Package ios emulates the IPC kernel of the console's security processor.
//
// Guest code talks to the kernel by writing a command block (see package
// iosops) into memory and writing its address to an IPC register. The kernel
// acknowledges the request, decodes it, dispatches it to the device the
// request's fd refers to, and delivers the reply after a delay that models
// real hardware latency. Replies are always delivered in the order their
// requests were dispatched.
//
// The primary elements of interest are:
//
//  *  Init and Shutdown, which manage the single process-wide Kernel.
//
//  *  Kernel.EnqueueIPCRequest, called by the IPC register-write trap.
//
//  *  Kernel.BootIOS, called by title launch logic to switch kernel images.
//
//  *  Kernel.DoState, called by the savestate subsystem.
//
// Devices implement iosutil.Device; the concrete ones live under devices/.
//
// Kernel methods are not safe for concurrent use by multiple goroutines. A
// host that runs CPU emulation and IPC processing on separate threads must
// hold one coarse lock around every call into the kernel.
package ios
