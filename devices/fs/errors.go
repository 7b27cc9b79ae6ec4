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

import "github.com/jacobsa/ios/iosops"

// Result codes specific to the filesystem devices.
const (
	EINVAL        iosops.ReturnCode = -101
	EACCESS       iosops.ReturnCode = -102
	ECORRUPT      iosops.ReturnCode = -103
	EEXIST        iosops.ReturnCode = -105
	ENOENT        iosops.ReturnCode = -106
	ENFILE        iosops.ReturnCode = -107
	EFBIG         iosops.ReturnCode = -108
	EFDEXHAUSTED  iosops.ReturnCode = -109
	ENAMELEN      iosops.ReturnCode = -110
	EDIREXHAUSTED iosops.ReturnCode = -111
	EDIRDEPTH     iosops.ReturnCode = -116
	EBUSY         iosops.ReturnCode = -118
	EFATAL        iosops.ReturnCode = -119
)
