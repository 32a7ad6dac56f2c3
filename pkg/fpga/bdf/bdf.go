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

// Package bdf converts PCI Bus:Device.Function addresses between their
// textual form and a packed 16-bit identifier.
package bdf

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/intel/intel-fpga-card-tools/pkg/fpga/errdefs"
)

// Optional 4-digit domain, then bus, optional device and optional function.
const bdfRegex = `^(?:[[:xdigit:]]{4}:)?([[:xdigit:]]{1,2})(?::([[:xdigit:]]{1,2})(?:\.([0-7]))?)?$`

var bdfRE = regexp.MustCompile(bdfRegex)

// ID is a packed PCI address: bus in bits 15-8, device in bits 7-3 and
// function in bits 2-0. The PCI domain is not represented.
type ID uint16

// New packs bus, device and function numbers into an ID.
func New(bus, dev, fn uint8) ID {
	return ID(uint16(bus)<<8 | uint16(dev&0x1f)<<3 | uint16(fn&0x7))
}

// Bus returns the bus number.
func (id ID) Bus() uint8 { return uint8(id >> 8) }

// Device returns the device number.
func (id ID) Device() uint8 { return uint8(id>>3) & 0x1f }

// Function returns the function number.
func (id ID) Function() uint8 { return uint8(id) & 0x7 }

// String formats the ID as "bb:dd.f".
func (id ID) String() string {
	return fmt.Sprintf("%02x:%02x.%x", id.Bus(), id.Device(), id.Function())
}

// Format is the inverse of Parse for fully specified addresses.
func Format(id ID) string {
	return id.String()
}

// Parse converts a possibly partial BDF string into an ID. Accepted forms are
// "bb", "bb:dd" and "bb:dd.f", each optionally prefixed with a "dddd:" domain
// which is discarded. Fields that are not present default to zero. Empty or
// unparsable input yields the zero ID.
func Parse(text string) ID {
	id, err := ParseStrict(text)
	if err != nil {
		return 0
	}

	return id
}

// ParseStrict is like Parse but reports unparsable input as an error.
func ParseStrict(text string) (ID, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, errdefs.New(errdefs.InvalidArgument, "empty BDF string")
	}

	subs := bdfRE.FindStringSubmatch(strings.ToLower(text))
	if subs == nil {
		return 0, errdefs.New(errdefs.InvalidArgument, "invalid BDF %q", text)
	}

	var fields [3]uint8

	for i, s := range subs[1:] {
		if s == "" {
			continue
		}

		v, err := strconv.ParseUint(s, 16, 8)
		if err != nil {
			return 0, errdefs.Wrap(errdefs.InvalidArgument, err, "invalid BDF %q", text)
		}

		fields[i] = uint8(v)
	}

	if fields[1] > 0x1f {
		return 0, errdefs.New(errdefs.InvalidArgument, "device number out of range in %q", text)
	}

	return New(fields[0], fields[1], fields[2]), nil
}
