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

// Package iosops contains the wire-level vocabulary of the IPC protocol:
// command kinds, return codes, the typed requests decoded from guest command
// blocks, and the replies devices produce.
//
// A command block is a run of big-endian words in guest memory:
//
//     +0x00  command kind (rewritten to CommandReply on completion)
//     +0x04  return value
//     +0x08  fd (Close and every other reply echo the command kind here)
//     +0x0c  command-specific arguments
//
package iosops
