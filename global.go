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
	"sync"
)

var (
	gCurrentMu sync.Mutex
	gCurrent   *Kernel // GUARDED_BY(gCurrentMu)
)

// Create the process-wide kernel, for hosts that reach it through Current
// rather than threading a *Kernel around.
func Init(cfg *Config) (err error) {
	k, err := NewKernel(cfg)
	if err != nil {
		err = fmt.Errorf("NewKernel: %v", err)
		return
	}

	gCurrentMu.Lock()
	gCurrent = k
	gCurrentMu.Unlock()

	return
}

// Shut down the kernel created by Init, if any.
func Shutdown() (err error) {
	gCurrentMu.Lock()
	k := gCurrent
	gCurrent = nil
	gCurrentMu.Unlock()

	if k == nil {
		return
	}

	err = k.Shutdown()
	return
}

// Return the kernel created by Init, or nil.
func Current() *Kernel {
	gCurrentMu.Lock()
	defer gCurrentMu.Unlock()

	return gCurrent
}
