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

// Package sensors discovers the hwmon sensors of a card and resolves their
// readings.
//
// A card exposes every measured quantity as a set of hwmon attribute files
// (temp1_input, in2_status, ...). Discovery collects the files of one
// (quantity, id) pair into a Record and groups the records that share a
// label into a named Sensor, so that "vccint" may carry a temperature, a
// current and a voltage record at the same time.
package sensors

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/intel/intel-fpga-card-tools/pkg/fpga/errdefs"
)

// Quantity is the physical quantity measured by a record.
type Quantity int

// Supported quantities.
const (
	Temperature Quantity = iota
	Current
	Voltage
	Power
	numQuantities
)

// Quantities lists all quantities in display order.
var Quantities = []Quantity{Temperature, Current, Voltage, Power}

var quantityNames = [numQuantities]string{"temperature", "current", "voltage", "power"}

// hwmon file name prefixes.
var quantityPrefixes = [numQuantities]string{"temp", "curr", "in", "power"}

func (q Quantity) String() string {
	if q < 0 || q >= numQuantities {
		return fmt.Sprintf("quantity(%d)", int(q))
	}

	return quantityNames[q]
}

// Unit returns the fixed unit modifier of the quantity.
func (q Quantity) Unit() Unit {
	if q == Power {
		return Micro
	}

	return Milli
}

// Unit is a power of ten applied to a raw reading.
type Unit int8

// Unit modifiers used by hwmon.
const (
	Micro Unit = -6
	Milli Unit = -3
	None  Unit = 0
)

// Scale converts a raw reading to the base unit.
func (u Unit) Scale(raw int64) float64 {
	if u < 0 {
		return float64(raw) / math.Pow10(-int(u))
	}

	return float64(raw) * math.Pow10(int(u))
}

func (u Unit) String() string {
	switch u {
	case Micro:
		return "micro"
	case Milli:
		return "milli"
	case None:
		return ""
	}

	return fmt.Sprintf("1e%d", int(u))
}

// AttrKind identifies an attribute slot of a record.
type AttrKind int

// Attribute kinds.
const (
	AttrName AttrKind = iota
	AttrStatus
	AttrValue
	AttrAverage
	AttrMax
	AttrWarnLimit
	AttrCritLimit
	AttrFatalLimit
	numAttrs
)

var attrNames = [numAttrs]string{"name", "status", "value", "average", "max", "warn limit", "critical limit", "fatal limit"}

func (k AttrKind) String() string {
	if k < 0 || k >= numAttrs {
		return fmt.Sprintf("attr(%d)", int(k))
	}

	return attrNames[k]
}

// Status is the closed set of sensor states reported by the driver.
type Status int

// Sensor states. StatusUnknown means the status was not read.
const (
	StatusUnknown Status = iota
	StatusInvalid
	StatusNotPresent
	StatusOK
	StatusNoData
	StatusCachedOK
	StatusNotApplicable
)

var statusNames = map[Status]string{
	StatusUnknown:       "unknown",
	StatusInvalid:       "invalid",
	StatusNotPresent:    "not present",
	StatusOK:            "ok",
	StatusNoData:        "no data",
	StatusCachedOK:      "ok (cached)",
	StatusNotApplicable: "n/a",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}

	return statusNames[StatusInvalid]
}

// ParseStatus maps a driver status string to a Status. Unknown strings
// map to StatusInvalid.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "not present", "not_present":
		return StatusNotPresent
	case "ok", "present":
		return StatusOK
	case "no data", "no_data", "unavailable":
		return StatusNoData
	case "cached ok", "cached_ok", "cached":
		return StatusCachedOK
	case "n/a", "na", "not applicable", "not_applicable":
		return StatusNotApplicable
	}

	return StatusInvalid
}

// Attribute is one hwmon file of a record.
type Attribute struct {
	// Path of the backing hwmon file.
	Path string
	// Valid is set if the hardware exposes this attribute.
	Valid bool

	raw int64
	str string
}

// Record holds the attributes of one (quantity, id) pair.
type Record struct {
	Name     string
	Quantity Quantity
	ID       int
	Unit     Unit

	attrs [numAttrs]Attribute
}

// Has reports whether the hardware exposes attribute k.
func (r *Record) Has(k AttrKind) bool {
	return k >= 0 && k < numAttrs && r.attrs[k].Valid
}

// Attr returns attribute slot k.
func (r *Record) Attr(k AttrKind) *Attribute {
	return &r.attrs[k]
}

// Sensor is a named group of records, at most one per quantity.
type Sensor struct {
	Name string
	// record index + 1 into the tree arena, 0 if absent.
	records [numQuantities]int
}

type lookupCache struct {
	name  string
	index int
	valid bool
}

// Tree is the result of sensor discovery for one card. Records live in a
// single arena that the named sensors index into.
type Tree struct {
	records []Record
	sensors []Sensor
	last    lookupCache
}

// Len returns the number of named sensors.
func (t *Tree) Len() int {
	return len(t.sensors)
}

// NumRecords returns the number of discovered records.
func (t *Tree) NumRecords() int {
	return len(t.records)
}

// Names returns sensor names in discovery order.
func (t *Tree) Names() []string {
	names := make([]string, 0, len(t.sensors))
	for _, s := range t.sensors {
		names = append(names, s.Name)
	}

	return names
}

// Records returns the records of the named sensor in Quantities order.
func (t *Tree) Records(name string) []*Record {
	idx := t.find(name)
	if idx < 0 {
		return nil
	}

	var recs []*Record

	for _, ri := range t.sensors[idx].records {
		if ri > 0 {
			recs = append(recs, &t.records[ri-1])
		}
	}

	return recs
}

// Record returns the record of quantity q within the named sensor.
func (t *Tree) Record(name string, q Quantity) (*Record, error) {
	if q < 0 || q >= numQuantities {
		return nil, errdefs.New(errdefs.InvalidArgument, "invalid quantity %d", int(q))
	}

	idx := t.find(name)
	if idx < 0 {
		return nil, errdefs.New(errdefs.NotFound, "no sensor named %q", name)
	}

	ri := t.sensors[idx].records[q]
	if ri == 0 {
		return nil, errdefs.New(errdefs.NotFound, "sensor %q has no %s record", name, q)
	}

	return &t.records[ri-1], nil
}

// find returns the index of the named sensor or -1. The last successful
// lookup is remembered to make repeated reads of one sensor cheap.
func (t *Tree) find(name string) int {
	if t.last.valid && t.last.name == name {
		return t.last.index
	}

	for i := range t.sensors {
		if t.sensors[i].Name == name {
			t.last = lookupCache{name: name, index: i, valid: true}
			return i
		}
	}

	return -1
}

// group assigns every record to the sensor named after its label. A record
// whose label and quantity are already taken is renamed after its file
// prefix so that it stays reachable.
func (t *Tree) group() {
	for i := range t.records {
		rec := &t.records[i]

		if t.slot(rec.Name, rec.Quantity) != 0 {
			name := quantityPrefixes[rec.Quantity] + strconv.Itoa(rec.ID)
			klog.Warningf("%s: label %q is already used by another %s record, renaming", name, rec.Name, rec.Quantity)

			if name == rec.Name || t.slot(name, rec.Quantity) != 0 {
				klog.Warningf("%s: %s record %d is not reachable", rec.Name, rec.Quantity, rec.ID)
				continue
			}

			rec.Name = name
		}

		idx := t.find(rec.Name)
		if idx < 0 {
			t.sensors = append(t.sensors, Sensor{Name: rec.Name})
			idx = len(t.sensors) - 1
		}

		t.sensors[idx].records[rec.Quantity] = i + 1
	}
}

// slot returns the record slot of the named sensor for q, or 0 if it is free.
func (t *Tree) slot(name string, q Quantity) int {
	idx := t.find(name)
	if idx < 0 {
		return 0
	}

	return t.sensors[idx].records[q]
}
