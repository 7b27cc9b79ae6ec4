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

// Package fs implements the guest's internal storage on top of a host
// directory, and the /dev/fs device through which guests reach it.
package fs

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/ios/savestate"
	"github.com/jacobsa/syncutil"
)

// The most files that may be open at once.
const MaxHandles = 16

// The longest path the guest may name.
const MaxPathLength = 64

// FileSystem maps guest paths onto files below a host directory. Open files
// are identified by the IPC fd the guest opened them with.
type FileSystem struct {
	/////////////////////////
	// Constant data
	/////////////////////////

	root string

	/////////////////////////
	// Mutable state
	/////////////////////////

	mu syncutil.InvariantMutex

	// INVARIANT: len(handles) <= MaxHandles
	// INVARIANT: For each h, h.file != nil
	handles map[uint32]*handle // GUARDED_BY(mu)
}

type handle struct {
	path string
	mode iosops.OpenMode
	file *os.File
	pos  uint32
}

// Create a file system rooted at the supplied host directory, which must
// exist.
func NewFileSystem(root string) (fs *FileSystem) {
	fs = &FileSystem{
		root:    root,
		handles: make(map[uint32]*handle),
	}

	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)
	return
}

func (fs *FileSystem) checkInvariants() {
	if len(fs.handles) > MaxHandles {
		panic(fmt.Sprintf("Too many handles: %d", len(fs.handles)))
	}

	for fd, h := range fs.handles {
		if h.file == nil {
			panic(fmt.Sprintf("Handle %d has no file", fd))
		}
	}
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// Map a guest path to a host path. Guest paths are absolute; "." and ".."
// components are resolved lexically so they cannot escape the root.
func (fs *FileSystem) hostPath(p string) (hp string, code iosops.ReturnCode) {
	if !strings.HasPrefix(p, "/") || strings.ContainsRune(p, 0) {
		code = EINVAL
		return
	}

	if len(p) > MaxPathLength {
		code = ENAMELEN
		return
	}

	hp = filepath.Join(fs.root, filepath.FromSlash(path.Clean(p)))
	return
}

// Convert a host error to a result code.
func resultFor(err error) iosops.ReturnCode {
	switch {
	case err == nil:
		return iosops.Success
	case errors.Is(err, os.ErrNotExist):
		return ENOENT
	case errors.Is(err, os.ErrExist):
		return EEXIST
	case errors.Is(err, os.ErrPermission):
		return EACCESS
	}

	return ECORRUPT
}

// LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) closeAllLocked() {
	for fd, h := range fs.handles {
		h.file.Close()
		delete(fs.handles, fd)
	}
}

////////////////////////////////////////////////////////////////////////
// Files
////////////////////////////////////////////////////////////////////////

// Open the file at p on behalf of the supplied IPC fd.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *FileSystem) OpenFile(
	fd uint32,
	p string,
	mode iosops.OpenMode) (code iosops.ReturnCode) {
	hp, code := fs.hostPath(p)
	if code != iosops.Success {
		return
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.handles[fd]; ok {
		code = EBUSY
		return
	}

	if len(fs.handles) >= MaxHandles {
		code = EFDEXHAUSTED
		return
	}

	fi, err := os.Stat(hp)
	if err != nil {
		code = resultFor(err)
		return
	}

	if fi.IsDir() {
		code = EACCESS
		return
	}

	flags := os.O_RDONLY
	if mode&iosops.OpenWrite != 0 {
		flags = os.O_RDWR
	}

	f, err := os.OpenFile(hp, flags, 0)
	if err != nil {
		code = resultFor(err)
		return
	}

	fs.handles[fd] = &handle{
		path: p,
		mode: mode,
		file: f,
	}

	return
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FileSystem) CloseFile(fd uint32) (code iosops.ReturnCode) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	h, ok := fs.handles[fd]
	if !ok {
		code = EINVAL
		return
	}

	delete(fs.handles, fd)
	code = resultFor(h.file.Close())
	return
}

// Is fd a file opened through this file system?
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *FileSystem) IsFile(fd uint32) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, ok := fs.handles[fd]
	return ok
}

// Read up to n bytes at the handle's position, advancing it. On success the
// code is the number of bytes read.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *FileSystem) ReadFile(
	fd uint32,
	n uint32) (data []byte, code iosops.ReturnCode) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	h, ok := fs.handles[fd]
	if !ok {
		code = EINVAL
		return
	}

	if h.mode&iosops.OpenRead == 0 {
		code = EACCESS
		return
	}

	data = make([]byte, n)
	m, err := h.file.ReadAt(data, int64(h.pos))
	if err != nil && err != io.EOF {
		data = nil
		code = resultFor(err)
		return
	}

	data = data[:m]
	h.pos += uint32(m)
	code = iosops.ReturnCode(m)
	return
}

// Write data at the handle's position, advancing it. On success the code is
// the number of bytes written.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *FileSystem) WriteFile(
	fd uint32,
	data []byte) (code iosops.ReturnCode) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	h, ok := fs.handles[fd]
	if !ok {
		code = EINVAL
		return
	}

	if h.mode&iosops.OpenWrite == 0 {
		code = EACCESS
		return
	}

	m, err := h.file.WriteAt(data, int64(h.pos))
	if err != nil {
		code = resultFor(err)
		return
	}

	h.pos += uint32(m)
	code = iosops.ReturnCode(m)
	return
}

// Move the handle's position. Seeking past the end of the file is an error.
// On success the code is the new position.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *FileSystem) SeekFile(
	fd uint32,
	offset uint32,
	mode iosops.SeekMode) (code iosops.ReturnCode) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	h, ok := fs.handles[fd]
	if !ok {
		code = EINVAL
		return
	}

	fi, err := h.file.Stat()
	if err != nil {
		code = resultFor(err)
		return
	}

	size := fi.Size()

	var pos int64
	switch mode {
	case iosops.SeekSet:
		pos = int64(offset)
	case iosops.SeekCur:
		pos = int64(h.pos) + int64(int32(offset))
	case iosops.SeekEnd:
		pos = size + int64(int32(offset))
	default:
		code = EINVAL
		return
	}

	if pos < 0 || pos > size {
		code = EINVAL
		return
	}

	h.pos = uint32(pos)
	code = iosops.ReturnCode(pos)
	return
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FileSystem) GetFileStatus(
	fd uint32) (size uint32, pos uint32, code iosops.ReturnCode) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	h, ok := fs.handles[fd]
	if !ok {
		code = EINVAL
		return
	}

	fi, err := h.file.Stat()
	if err != nil {
		code = resultFor(err)
		return
	}

	size = uint32(fi.Size())
	pos = h.pos
	return
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FileSystem) anyOpen() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return len(fs.handles) > 0
}

// Close every open file.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *FileSystem) CloseAll() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.closeAllLocked()
}

////////////////////////////////////////////////////////////////////////
// Namespace
////////////////////////////////////////////////////////////////////////

func (fs *FileSystem) CreateFile(p string) (code iosops.ReturnCode) {
	hp, code := fs.hostPath(p)
	if code != iosops.Success {
		return
	}

	f, err := os.OpenFile(hp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		code = resultFor(err)
		return
	}

	code = resultFor(f.Close())
	return
}

func (fs *FileSystem) CreateDirectory(p string) (code iosops.ReturnCode) {
	hp, code := fs.hostPath(p)
	if code != iosops.Success {
		return
	}

	code = resultFor(os.Mkdir(hp, 0700))
	return
}

// Delete a file, or a directory and everything below it.
func (fs *FileSystem) Delete(p string) (code iosops.ReturnCode) {
	hp, code := fs.hostPath(p)
	if code != iosops.Success {
		return
	}

	if hp == fs.root {
		code = EACCESS
		return
	}

	if _, err := os.Lstat(hp); err != nil {
		code = resultFor(err)
		return
	}

	code = resultFor(os.RemoveAll(hp))
	return
}

func (fs *FileSystem) Rename(oldPath string, newPath string) (code iosops.ReturnCode) {
	oldHP, code := fs.hostPath(oldPath)
	if code != iosops.Success {
		return
	}

	newHP, code := fs.hostPath(newPath)
	if code != iosops.Success {
		return
	}

	code = resultFor(os.Rename(oldHP, newHP))
	return
}

// Read an entire file, for collaborators such as the boot loader that are
// not guests.
func (fs *FileSystem) ReadWholeFile(
	p string,
	maxSize int64) (data []byte, err error) {
	hp, code := fs.hostPath(p)
	if code != iosops.Success {
		err = fmt.Errorf("hostPath(%q): %v", p, code)
		return
	}

	f, err := os.Open(hp)
	if err != nil {
		err = fmt.Errorf("Open: %v", err)
		return
	}

	defer f.Close()

	data, err = ioutil.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		err = fmt.Errorf("ReadAll: %v", err)
		return
	}

	if int64(len(data)) > maxSize {
		data = nil
		err = fmt.Errorf("%q is larger than %d bytes", p, maxSize)
		return
	}

	return
}

////////////////////////////////////////////////////////////////////////
// State
////////////////////////////////////////////////////////////////////////

// Save or restore the set of open files and their positions. Files that can
// no longer be opened on restore are dropped, and their fds then behave as
// closed.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *FileSystem) DoState(p *savestate.Wrap) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p.Marker("fs")

	fds := make([]uint32, 0, len(fs.handles))
	for fd := range fs.handles {
		fds = append(fds, fd)
	}

	sort.Slice(fds, func(i, j int) bool { return fds[i] < fds[j] })

	count := uint32(len(fds))
	p.Uint32(&count)

	if !p.IsReading() {
		for _, fd := range fds {
			h := fs.handles[fd]
			mode := uint32(h.mode)
			p.Uint32(&fd)
			p.String(&h.path)
			p.Uint32(&mode)
			p.Uint32(&h.pos)
		}

		return
	}

	fs.closeAllLocked()
	for i := uint32(0); i < count && p.Err() == nil; i++ {
		var fd, mode, pos uint32
		var gp string
		p.Uint32(&fd)
		p.String(&gp)
		p.Uint32(&mode)
		p.Uint32(&pos)

		if p.Err() != nil || len(fs.handles) >= MaxHandles {
			continue
		}

		hp, code := fs.hostPath(gp)
		if code != iosops.Success {
			continue
		}

		flags := os.O_RDONLY
		if iosops.OpenMode(mode)&iosops.OpenWrite != 0 {
			flags = os.O_RDWR
		}

		f, err := os.OpenFile(hp, flags, 0)
		if err != nil {
			continue
		}

		fs.handles[fd] = &handle{
			path: gp,
			mode: iosops.OpenMode(mode),
			file: f,
			pos:  pos,
		}
	}
}
