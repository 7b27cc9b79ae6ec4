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

import "errors"

var (
	// A boot or bootstrap was requested for a title whose version has no
	// memory layout.
	ErrUnknownVersion = errors.New("unknown IOS version")

	// A boot binary was too small to contain its own header, or its header
	// pointed outside the file.
	ErrBadBinary = errors.New("malformed boot binary")

	// A second kernel was constructed while one already exists.
	ErrKernelExists = errors.New("an IPC kernel already exists")
)
