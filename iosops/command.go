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

import "fmt"

// Command is the first word of a command block.
type Command uint32

const (
	CommandOpen   Command = 1
	CommandClose  Command = 2
	CommandRead   Command = 3
	CommandWrite  Command = 4
	CommandSeek   Command = 5
	CommandIOCtl  Command = 6
	CommandIOCtlV Command = 7

	// Written over the command word once a reply is delivered.
	CommandReply Command = 8
)

// Is c one of the seven request kinds?
func (c Command) Valid() bool {
	return c >= CommandOpen && c <= CommandIOCtlV
}

func (c Command) String() string {
	switch c {
	case CommandOpen:
		return "Open"
	case CommandClose:
		return "Close"
	case CommandRead:
		return "Read"
	case CommandWrite:
		return "Write"
	case CommandSeek:
		return "Seek"
	case CommandIOCtl:
		return "IOCtl"
	case CommandIOCtlV:
		return "IOCtlV"
	case CommandReply:
		return "Reply"
	}

	return fmt.Sprintf("Command(%#x)", uint32(c))
}

// ReturnCode is the value a reply writes into a command block. Negative values
// are errors; non-negative values carry a result such as an fd or a byte
// count.
type ReturnCode int32

const (
	Success    ReturnCode = 0
	EACCES     ReturnCode = -1
	EEXIST     ReturnCode = -2
	EINVAL     ReturnCode = -4
	EMAX       ReturnCode = -5
	ENOENT     ReturnCode = -6
	EQUEUEFULL ReturnCode = -8
	EIO        ReturnCode = -12
	ENOMEM     ReturnCode = -22
)

func (c ReturnCode) String() string {
	switch c {
	case Success:
		return "Success"
	case EACCES:
		return "EACCES"
	case EEXIST:
		return "EEXIST"
	case EINVAL:
		return "EINVAL"
	case EMAX:
		return "EMAX"
	case ENOENT:
		return "ENOENT"
	case EQUEUEFULL:
		return "EQUEUEFULL"
	case EIO:
		return "EIO"
	case ENOMEM:
		return "ENOMEM"
	}

	return fmt.Sprintf("%d", int32(c))
}

// OpenMode is the access mode passed to Open.
type OpenMode uint32

const (
	OpenNone      OpenMode = 0
	OpenRead      OpenMode = 1
	OpenWrite     OpenMode = 2
	OpenReadWrite OpenMode = OpenRead | OpenWrite
)

func (m OpenMode) String() string {
	switch m {
	case OpenNone:
		return "none"
	case OpenRead:
		return "read"
	case OpenWrite:
		return "write"
	case OpenReadWrite:
		return "read/write"
	}

	return fmt.Sprintf("OpenMode(%d)", uint32(m))
}

// SeekMode is the whence argument of Seek.
type SeekMode uint32

const (
	SeekSet SeekMode = 0
	SeekCur SeekMode = 1
	SeekEnd SeekMode = 2
)
