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

package errdefs

import (
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/pkg/errors"
)

func TestWrap(t *testing.T) {
	if Wrap(IO, nil, "nothing") != nil {
		t.Error("wrapping nil must return nil")
	}

	_, statErr := os.Stat("/this/path/does/not/exist")

	err := Wrap(IO, statErr, "reading %s", "sensor")
	if !Is(err, IO) {
		t.Errorf("expected IO kind, got %s", KindOf(err))
	}

	if Errno(err) != syscall.ENOENT {
		t.Errorf("expected ENOENT, got %v", Errno(err))
	}

	if !strings.Contains(err.Error(), "reading sensor") {
		t.Errorf("context missing from %q", err.Error())
	}

	// Already classified errors keep their kind and context.
	again := Wrap(Format, errors.WithMessage(err, "outer"), "ignored")
	if KindOf(again) != IO {
		t.Errorf("expected IO kind to survive, got %s", KindOf(again))
	}
}

func TestReclassify(t *testing.T) {
	if Reclassify(IO, nil, "nothing") != nil {
		t.Error("reclassifying nil must return nil")
	}

	inner := Wrap(BadDescriptor, syscall.ENOENT, "opening node")

	err := Reclassify(IO, inner, "reset aborted")
	if KindOf(err) != IO {
		t.Errorf("expected IO kind, got %s", KindOf(err))
	}

	if !errors.Is(err, inner) {
		t.Error("original error is not reachable")
	}

	if Errno(err) != syscall.ENOENT {
		t.Errorf("expected ENOENT, got %v", Errno(err))
	}

	if !strings.Contains(err.Error(), "reset aborted") {
		t.Errorf("context missing from %q", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	tcases := []struct {
		err      error
		expected Kind
	}{
		{err: nil, expected: Unknown},
		{err: errors.New("plain"), expected: Unknown},
		{err: New(NotFound, "no device"), expected: NotFound},
		{err: errors.Wrap(New(VersionMismatch, "1.0 vs 2.0"), "find"), expected: VersionMismatch},
	}

	for _, tc := range tcases {
		if k := KindOf(tc.err); k != tc.expected {
			t.Errorf("%v: expected %s, got %s", tc.err, tc.expected, k)
		}
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder

	if r.String() != "" || r.Last() != nil {
		t.Error("new recorder must be empty")
	}

	if r.Record(nil) != nil || r.Last() != nil {
		t.Error("nil must not be recorded")
	}

	err := New(Format, "bad line %d", 3)
	if r.Record(err) != err {
		t.Error("Record must return its argument")
	}

	if r.String() != "format error: bad line 3" {
		t.Errorf("unexpected last error string %q", r.String())
	}
}
