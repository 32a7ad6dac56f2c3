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

package sensors

import (
	"path/filepath"
	"time"

	"github.com/intel/intel-fpga-card-tools/pkg/fpga/errdefs"
)

// Querier reads a value and its status in one driver round trip.
type Querier interface {
	QuerySensor(q Quantity, channel uint32) (value int64, status string, fresh bool, err error)
}

// Reading is a single resolved sensor reading. Status is StatusUnknown
// unless the status was requested.
type Reading struct {
	Raw    int64
	Unit   Unit
	Status Status
}

// Float returns the reading in the base unit of its quantity.
func (r Reading) Float() float64 {
	return r.Unit.Scale(r.Raw)
}

// Resolver resolves readings of the sensors in a tree.
type Resolver struct {
	tree *Tree
	dev  Querier
}

// NewResolver returns a resolver for t. dev may be nil, in which case
// status is read from the hwmon status file.
func NewResolver(t *Tree, dev Querier) *Resolver {
	return &Resolver{tree: t, dev: dev}
}

// Channel returns the driver channel of a record.
func Channel(rec *Record) (uint32, error) {
	if rec.Quantity == Voltage {
		return uint32(rec.ID), nil
	}

	if rec.ID < 1 {
		return 0, errdefs.New(errdefs.InvalidArgument, "%s%d: no driver channel", quantityPrefixes[rec.Quantity], rec.ID)
	}

	return uint32(rec.ID - 1), nil
}

func (r *Resolver) attr(name string, q Quantity, k AttrKind) (*Record, *Attribute, error) {
	rec, err := r.tree.Record(name, q)
	if err != nil {
		return nil, nil, err
	}

	if !rec.Has(k) {
		return nil, nil, errdefs.New(errdefs.NotFound, "sensor %q has no %s %s", name, q, k)
	}

	return rec, rec.Attr(k), nil
}

// Value reads the instantaneous value of the named sensor. If withStatus
// is set, the value and status are fetched together from the driver when
// the resolver has one, and read one after the other otherwise.
func (r *Resolver) Value(name string, q Quantity, withStatus bool) (Reading, error) {
	if withStatus {
		return r.ValueAndStatus(name, q, r.dev != nil)
	}

	return r.read(name, q, AttrValue)
}

// ValueAndStatus reads the value and status of the named sensor. With
// atomic set both come from a single driver query; otherwise the hwmon
// value and status files are read separately and may disagree.
func (r *Resolver) ValueAndStatus(name string, q Quantity, atomic bool) (Reading, error) {
	if atomic {
		if r.dev == nil {
			return Reading{}, errdefs.New(errdefs.InvalidArgument, "atomic read of %q without a device", name)
		}

		rec, _, err := r.attr(name, q, AttrValue)
		if err != nil {
			return Reading{}, err
		}

		return r.query(rec)
	}

	reading, err := r.read(name, q, AttrValue)
	if err != nil {
		return Reading{}, err
	}

	reading.Status, err = r.Status(name, q)
	if err != nil {
		return Reading{}, err
	}

	return reading, nil
}

func (r *Resolver) query(rec *Record) (Reading, error) {
	ch, err := Channel(rec)
	if err != nil {
		return Reading{}, err
	}

	raw, str, fresh, err := r.dev.QuerySensor(rec.Quantity, ch)
	if err != nil {
		return Reading{}, err
	}

	status := ParseStatus(str)
	if status == StatusOK && !fresh {
		status = StatusCachedOK
	}

	rec.attrs[AttrValue].raw = raw
	rec.attrs[AttrStatus].str = str

	return Reading{Raw: raw, Unit: rec.Unit, Status: status}, nil
}

// Status reads the hwmon status file of the named sensor.
func (r *Resolver) Status(name string, q Quantity) (Status, error) {
	_, attr, err := r.attr(name, q, AttrStatus)
	if err != nil {
		return StatusUnknown, err
	}

	str, err := readString(attr.Path)
	if err != nil {
		return StatusUnknown, err
	}

	attr.str = str

	return ParseStatus(str), nil
}

// Average reads the average value of the named sensor.
func (r *Resolver) Average(name string, q Quantity) (Reading, error) {
	return r.read(name, q, AttrAverage)
}

// Max reads the highest value seen by the named sensor.
func (r *Resolver) Max(name string, q Quantity) (Reading, error) {
	return r.read(name, q, AttrMax)
}

func (r *Resolver) read(name string, q Quantity, k AttrKind) (Reading, error) {
	rec, attr, err := r.attr(name, q, k)
	if err != nil {
		return Reading{}, err
	}

	raw, err := readInt(attr.Path)
	if err != nil {
		return Reading{}, err
	}

	attr.raw = raw

	return Reading{Raw: raw, Unit: rec.Unit}, nil
}

// Limit returns a warning, critical or fatal limit of the named sensor.
// Limits are read once and served from the cache afterwards. A zero
// cached value is treated as not yet read.
func (r *Resolver) Limit(name string, q Quantity, k AttrKind) (Reading, error) {
	switch k {
	case AttrWarnLimit, AttrCritLimit, AttrFatalLimit:
	default:
		return Reading{}, errdefs.New(errdefs.InvalidArgument, "%s is not a limit", k)
	}

	rec, attr, err := r.attr(name, q, k)
	if err != nil {
		return Reading{}, err
	}

	if attr.raw == 0 {
		raw, err := readInt(attr.Path)
		if err != nil {
			return Reading{}, err
		}

		attr.raw = raw
	}

	return Reading{Raw: attr.raw, Unit: rec.Unit}, nil
}

// WarnLimit returns the warning limit of the named sensor.
func (r *Resolver) WarnLimit(name string, q Quantity) (Reading, error) {
	return r.Limit(name, q, AttrWarnLimit)
}

// CritLimit returns the critical limit of the named sensor.
func (r *Resolver) CritLimit(name string, q Quantity) (Reading, error) {
	return r.Limit(name, q, AttrCritLimit)
}

// FatalLimit returns the fatal limit of the named sensor.
func (r *Resolver) FatalLimit(name string, q Quantity) (Reading, error) {
	return r.Limit(name, q, AttrFatalLimit)
}

// UpdateInterval reads the driver sensor refresh interval from an hwmon
// directory.
func UpdateInterval(dir string) (time.Duration, error) {
	fname := filepath.Join(dir, "update_interval")

	ms, err := readInt(fname)
	if err != nil {
		return 0, err
	}

	if ms < 0 {
		return 0, errdefs.New(errdefs.Format, "%s: negative interval %d", fname, ms)
	}

	return time.Duration(ms) * time.Millisecond, nil
}
