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

package iostesting

import (
	"fmt"
	"reflect"

	"github.com/jacobsa/ios/guestmem"
	"github.com/jacobsa/ios/iosops"
	"github.com/jacobsa/oglematchers"
)

// Match command block addresses whose block in m has been completed with the
// given return value.
func RepliedWith(m guestmem.Accessor, v iosops.ReturnCode) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return repliedWith(m, c, v) },
		fmt.Sprintf("command block replied with %v", v))
}

func repliedWith(m guestmem.Accessor, c interface{}, v iosops.ReturnCode) error {
	var addr uint32
	switch typed := c.(type) {
	case uint32:
		addr = typed
	case int:
		addr = uint32(typed)
	default:
		return fmt.Errorf("which is of type %v", reflect.TypeOf(c))
	}

	if cmd := iosops.Command(m.Read32(addr)); cmd != iosops.CommandReply {
		return fmt.Errorf("whose command word is %v", cmd)
	}

	if got := iosops.ReturnCode(m.Read32(addr + 4)); got != v {
		return fmt.Errorf("which replied with %v", got)
	}

	return nil
}

// Match *iosops.Reply values with the given return value.
func ReplyIs(v iosops.ReturnCode) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return replyIs(c, v) },
		fmt.Sprintf("reply with %v", v))
}

func replyIs(c interface{}, v iosops.ReturnCode) error {
	r, ok := c.(*iosops.Reply)
	if !ok {
		return fmt.Errorf("which is of type %v", reflect.TypeOf(c))
	}

	if r == nil {
		return fmt.Errorf("which is a deferred reply")
	}

	if r.ReturnValue != v {
		return fmt.Errorf("which has return value %v", r.ReturnValue)
	}

	return nil
}
