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

// This file was auto-generated using createmock. See the following page for
// more information:
//
//     https://github.com/jacobsa/oglemock
//

package iostesting

import (
	fmt "fmt"
	oglemock "github.com/jacobsa/oglemock"
	runtime "runtime"
	unsafe "unsafe"
)

// MockBinaryLoader implements ios.BinaryLoader.
type MockBinaryLoader interface {
	LoadELF(p0 []uint8, p1 bool) error
	LoadDOL(p0 []uint8) error
	oglemock.MockObject
}

type mockBinaryLoader struct {
	controller  oglemock.Controller
	description string
}

func NewMockBinaryLoader(
	c oglemock.Controller,
	desc string) MockBinaryLoader {
	return &mockBinaryLoader{
		controller:  c,
		description: desc,
	}
}

func (m *mockBinaryLoader) Oglemock_Id() uintptr {
	return uintptr(unsafe.Pointer(m))
}

func (m *mockBinaryLoader) Oglemock_Description() string {
	return m.description
}

func (m *mockBinaryLoader) LoadDOL(p0 []uint8) (o0 error) {
	// Get a file name and line number for the caller.
	_, file, line, _ := runtime.Caller(1)

	// Hand the call off to the controller, which does most of the work.
	retVals := m.controller.HandleMethodCall(
		m,
		"LoadDOL",
		file,
		line,
		[]interface{}{p0})

	if len(retVals) != 1 {
		panic(fmt.Sprintf("mockBinaryLoader.LoadDOL: invalid return values: %v", retVals))
	}

	// o0 error
	if retVals[0] != nil {
		o0 = retVals[0].(error)
	}

	return
}

func (m *mockBinaryLoader) LoadELF(p0 []uint8, p1 bool) (o0 error) {
	// Get a file name and line number for the caller.
	_, file, line, _ := runtime.Caller(1)

	// Hand the call off to the controller, which does most of the work.
	retVals := m.controller.HandleMethodCall(
		m,
		"LoadELF",
		file,
		line,
		[]interface{}{p0, p1})

	if len(retVals) != 1 {
		panic(fmt.Sprintf("mockBinaryLoader.LoadELF: invalid return values: %v", retVals))
	}

	// o0 error
	if retVals[0] != nil {
		o0 = retVals[0].(error)
	}

	return
}
