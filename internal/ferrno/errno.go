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

// Package ferrno centralizes the errno taxonomy that crosses the wire
// between the daemon and the shim. Every failure that a handler or the
// codec can produce is one of these values; nothing here is free-form.
package ferrno

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Error is a negative-errno result carried across the wire. The wire only
// ever transmits the numeric errno; Msg is local context kept for logging
// and is never serialized.
type Error struct {
	Errno unix.Errno
	Msg   string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Errno.Error()
	}
	return fmt.Sprintf("%s: %s", e.Msg, e.Errno.Error())
}

// Wire returns the value to place in a reply frame's result field: the
// negative errno, per spec.
func (e *Error) Wire() int32 {
	return -int32(e.Errno)
}

func New(errno unix.Errno, msg string) *Error {
	return &Error{Errno: errno, Msg: msg}
}

func Wrap(errno unix.Errno, format string, args ...interface{}) *Error {
	return &Error{Errno: errno, Msg: fmt.Sprintf(format, args...)}
}

// FromWire reconstructs an *Error from a reply frame's signed result field.
// A non-negative result is not an error and FromWire should not be called
// for it.
func FromWire(result int32) *Error {
	return &Error{Errno: unix.Errno(-result)}
}

// As maps an arbitrary error from the native client collaborator onto an
// errno, defaulting to EIO when the error carries none.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if fe, ok := err.(*Error); ok {
		return fe
	}
	var errno unix.Errno
	if e, ok := err.(unix.Errno); ok {
		errno = e
	} else {
		errno = unix.EIO
	}
	return &Error{Errno: errno, Msg: err.Error()}
}

// Named taxonomy entries from spec.md section 7, given names so call sites
// read like the condition they signal rather than a bare syscall constant.
var (
	ErrFramingTruncated  = New(unix.ENODATA, "truncated frame")
	ErrFramingOversize   = New(unix.ENOBUFS, "frame exceeds receive buffer capacity")
	ErrOpcodeOutOfRange  = New(unix.ENOSYS, "opcode out of range")
	ErrOpcodeUnhandled   = New(unix.EOPNOTSUPP, "opcode registered but not implemented")
	ErrHandleMisaligned  = New(unix.EFAULT, "handle fails alignment or top-byte check")
	ErrHandleBadParity   = New(unix.EFAULT, "handle fails parity check")
	ErrConfigAfterMount  = New(unix.EISCONN, "configuration call after mount")
	ErrNotMounted        = New(unix.ENOTCONN, "instance is not mounted")
	ErrTooManySymlinks   = New(unix.ELOOP, "too many levels of symbolic links")
	ErrConnectionClosed  = New(unix.ENOTCONN, "connection is not usable")
	ErrProtocolMismatch  = New(unix.ENOTSUP, "incompatible protocol version")
)
