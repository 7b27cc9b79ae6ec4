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

//go:build !linux && !darwin

package fs

import (
	"fmt"
	"os"
)

// No advisory locking here; ownership is not enforced across processes.
func lockDir(dir string) (f *os.File, err error) {
	f, err = os.Open(dir)
	if err != nil {
		err = fmt.Errorf("Open: %v", err)
		return
	}

	return
}
