/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package reactor

import "fmt"

// FaultError describes a value recovered from a panicking Callback. On
// such a panic the reactor logs the recovered value, drops the fd's
// registration and hands the value to the registration's onFault hook
// (closing the fd is left to that hook); Run itself never returns
// because of it.
type FaultError struct {
	Fd        int
	Recovered any
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("reactor: callback for fd %d panicked: %v", e.Fd, e.Recovered)
}

// AlreadyRegisteredError is returned by Add when fd already has a
// registration: at most one registration per fd is allowed.
type AlreadyRegisteredError struct{ Fd int }

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("reactor: fd %d is already registered", e.Fd)
}
