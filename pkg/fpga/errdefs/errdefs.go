// Copyright 2026 Intel Corporation. All Rights Reserved.
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

// Package errdefs defines the closed set of failure kinds reported by the
// FPGA card management packages.
package errdefs

import (
	"fmt"
	"io"
	"sync"
	"syscall"

	"github.com/pkg/errors"
)

// Kind classifies a failure.
type Kind int

// Failure kinds.
const (
	Unknown Kind = iota
	// InvalidArgument is reported before any side effect takes place.
	InvalidArgument
	// BadDescriptor is an open or close failure of a device node.
	BadDescriptor
	// IO is a read, write or ioctl failure.
	IO
	// Format is a parse failure of a sysfs or driver text field.
	Format
	// OutOfMemory is an allocation failure.
	OutOfMemory
	// UnexpectedReturn is reported when a callee returns an unexpected result.
	UnexpectedReturn
	// NotFound means no matching device or file.
	NotFound
	// VersionMismatch means the driver API is not compatible.
	VersionMismatch
)

var kindNames = map[Kind]string{
	Unknown:          "unknown error",
	InvalidArgument:  "invalid argument",
	BadDescriptor:    "bad descriptor",
	IO:               "i/o error",
	Format:           "format error",
	OutOfMemory:      "out of memory",
	UnexpectedReturn: "unexpected return",
	NotFound:         "not found",
	VersionMismatch:  "version mismatch",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a failure of a known Kind. The wrapped error carries the context
// (file, errno) and the stack of the place where it was created.
type Error struct {
	err  error
	Kind Kind
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.err }

// Cause returns the underlying error for errors.Cause.
func (e *Error) Cause() error { return e.err }

// Format prints the stack of the underlying error with %+v.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s: %+v", e.Kind, e.err)
			return
		}

		fallthrough
	case 's':
		_, _ = io.WriteString(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

// New returns an error of the given kind.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, err: errors.Errorf(format, args...)}
}

// Wrap annotates err with a message and classifies it. An error that is
// already classified is returned unchanged so that context is never added
// twice. Wrap returns nil if err is nil.
func Wrap(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	return &Error{Kind: kind, err: errors.Wrapf(err, format, args...)}
}

// Reclassify annotates err with a message under kind even when err already
// carries a kind. The original kind stays reachable through Unwrap.
func Reclassify(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, err: errors.Wrapf(err, format, args...)}
}

// KindOf returns the kind of err, or Unknown if it was not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return Unknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Errno returns the system error number carried by err, or 0.
func Errno(err error) syscall.Errno {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	return 0
}

// Recorder keeps the most recent failure for callers that want to report it
// separately from the call that produced it. It is owned by the caller; the
// packages never record into a shared instance.
type Recorder struct {
	last error
	mu   sync.Mutex
}

// Record stores err if it is not nil and returns it unchanged.
func (r *Recorder) Record(err error) error {
	if err == nil {
		return nil
	}

	r.mu.Lock()
	r.last = err
	r.mu.Unlock()

	return err
}

// Last returns the most recently recorded error.
func (r *Recorder) Last() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.last
}

// String returns the formatted context of the last error or an empty string.
func (r *Recorder) String() string {
	if err := r.Last(); err != nil {
		return err.Error()
	}

	return ""
}
