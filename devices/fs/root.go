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

package fs

import (
	"fmt"
	"io/ioutil"
	"os"
)

// Root is the host directory backing the guest's internal storage. Exactly
// one Root may be open on a directory at a time, across all processes on the
// host.
type Root struct {
	dir       string
	temporary bool
	lock      *os.File
}

// Take ownership of dir. If dir is empty, a fresh temporary directory is used
// and removed again on Close.
func OpenRoot(dir string) (r *Root, err error) {
	r = &Root{dir: dir}

	if dir == "" {
		r.dir, err = ioutil.TempDir("", "ios_root")
		if err != nil {
			err = fmt.Errorf("TempDir: %v", err)
			return
		}

		r.temporary = true
	} else {
		err = os.MkdirAll(dir, 0700)
		if err != nil {
			err = fmt.Errorf("MkdirAll: %v", err)
			return
		}
	}

	r.lock, err = lockDir(r.dir)
	if err != nil {
		if r.temporary {
			os.RemoveAll(r.dir)
		}

		err = fmt.Errorf("lockDir: %v", err)
		return
	}

	return
}

func (r *Root) Dir() string {
	return r.dir
}

// Release the directory, deleting it if it was temporary.
func (r *Root) Close() (err error) {
	err = r.lock.Close()
	if err != nil {
		err = fmt.Errorf("Close: %v", err)
		return
	}

	if r.temporary {
		err = os.RemoveAll(r.dir)
		if err != nil {
			err = fmt.Errorf("RemoveAll: %v", err)
			return
		}
	}

	return
}
