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
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/intel/intel-fpga-card-tools/pkg/fpga/errdefs"
)

var suffixKinds = map[string]AttrKind{
	"label":   AttrName,
	"input":   AttrValue,
	"highest": AttrMax,
	"average": AttrAverage,
	"status":  AttrStatus,
	"max":     AttrWarnLimit,
	"lcrit":   AttrCritLimit,
	"crit":    AttrFatalLimit,
}

type recordKey struct {
	q  Quantity
	id int
}

// Discover builds a sensor tree from the hwmon attribute files in dir.
func Discover(dir string) (*Tree, error) {
	var files []string

	for _, prefix := range []string{"temp", "power", "in", "curr"} {
		matches, err := filepath.Glob(filepath.Join(dir, prefix+"[0-9]*"))
		if err != nil {
			return nil, errdefs.Wrap(errdefs.IO, err, "%s: can't list hwmon attributes", dir)
		}

		files = append(files, matches...)
	}

	if len(files) == 0 {
		return nil, errdefs.New(errdefs.NotFound, "%s: no hwmon attributes", dir)
	}

	t := &Tree{}
	index := make(map[recordKey]int)

	for _, fname := range files {
		fi, err := os.Stat(fname)
		if err != nil {
			return nil, errdefs.Wrap(errdefs.IO, err, "%s: stat", fname)
		}

		if !fi.Mode().IsRegular() {
			klog.V(4).Infof("%s: not a regular file, skipping", fname)
			continue
		}

		q, id, suffix, err := parseAttrName(filepath.Base(fname))
		if err != nil {
			return nil, err
		}

		kind, ok := suffixKinds[suffix]
		if !ok {
			klog.V(4).Infof("%s: unsupported attribute, skipping", fname)
			continue
		}

		key := recordKey{q: q, id: id}

		ri, ok := index[key]
		if !ok {
			t.records = append(t.records, Record{Quantity: q, ID: id, Unit: q.Unit()})
			ri = len(t.records) - 1
			index[key] = ri
		}

		rec := &t.records[ri]
		rec.attrs[kind] = Attribute{Path: fname, Valid: true}

		if kind == AttrName {
			label, err := readString(fname)
			if err != nil {
				return nil, err
			}

			rec.Name = label
			rec.attrs[kind].str = label
		}
	}

	for i := range t.records {
		if t.records[i].Name == "" {
			rec := &t.records[i]
			rec.Name = quantityPrefixes[rec.Quantity] + strconv.Itoa(rec.ID)
		}
	}

	t.group()

	klog.V(3).Infof("%s: discovered %d sensors from %d records", dir, len(t.sensors), len(t.records))

	return t, nil
}

// parseAttrName splits an hwmon attribute file name such as
// "temp1_input_highest" into its quantity, id and last suffix.
func parseAttrName(name string) (Quantity, int, string, error) {
	var q Quantity

	switch name[0] {
	case 't':
		q = Temperature
	case 'c':
		q = Current
	case 'i':
		q = Voltage
	case 'p':
		q = Power
	default:
		return 0, 0, "", errdefs.New(errdefs.Format, "%s: unknown sensor type", name)
	}

	start := strings.IndexAny(name, "0123456789")
	if start < 0 {
		return 0, 0, "", errdefs.New(errdefs.Format, "%s: no sensor id", name)
	}

	end := start
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}

	id, err := strconv.Atoi(name[start:end])
	if err != nil {
		return 0, 0, "", errdefs.Wrap(errdefs.Format, err, "%s: bad sensor id", name)
	}

	sep := strings.LastIndexByte(name, '_')
	if sep < end || name[end] != '_' {
		return 0, 0, "", errdefs.New(errdefs.Format, "%s: no attribute suffix", name)
	}

	return q, id, name[sep+1:], nil
}

func readString(fname string) (string, error) {
	data, err := os.ReadFile(fname)
	if err != nil {
		return "", errdefs.Wrap(errdefs.IO, err, "can't read %s", fname)
	}

	return strings.TrimSpace(string(data)), nil
}

func readInt(fname string) (int64, error) {
	s, err := readString(fname)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errdefs.Wrap(errdefs.Format, err, "%s: bad value %q", fname, s)
	}

	return v, nil
}
