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

package fpga

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/intel/intel-fpga-card-tools/pkg/fpga/errdefs"
)

// Info holds the sysfs attributes of a card.
type Info struct {
	BDF          string   `json:"bdf"`
	DevNode      string   `json:"devNode"`
	Driver       string   `json:"driver,omitempty"`
	LogicUUID    string   `json:"logicUuid,omitempty"`
	Vendor       string   `json:"vendor"`
	Device       string   `json:"device"`
	NUMANode     string   `json:"numaNode,omitempty"`
	CPUs         string   `json:"cpus,omitempty"`
	State        string   `json:"state,omitempty"`
	Name         string   `json:"name,omitempty"`
	AMCVersion   string   `json:"amcVersion,omitempty"`
	LinkSpeed    string   `json:"linkSpeed,omitempty"`
	LinkSpeedMax string   `json:"linkSpeedMax,omitempty"`
	LinkWidth    string   `json:"linkWidth,omitempty"`
	LinkWidthMax string   `json:"linkWidthMax,omitempty"`
	AMC          *Version `json:"-"`
}

// Info reads the sysfs attributes of the card. Attributes the driver does
// not expose are left empty.
func (d *Device) Info() (*Info, error) {
	if d.deleted {
		return nil, errdefs.New(errdefs.InvalidArgument, "%s: device was deleted", d.bdf)
	}

	info := &Info{
		BDF:     d.bdf.String(),
		DevNode: d.DevNode(),
		Driver:  driverName(d.SysfsPath()),
	}

	attrs := map[string]*string{
		"logic_uuid":         &info.LogicUUID,
		"vendor":             &info.Vendor,
		"device":             &info.Device,
		"numa_node":          &info.NUMANode,
		"local_cpulist":      &info.CPUs,
		"dev_state":          &info.State,
		"dev_name":           &info.Name,
		"amc_version":        &info.AMCVersion,
		"current_link_speed": &info.LinkSpeed,
		"max_link_speed":     &info.LinkSpeedMax,
		"current_link_width": &info.LinkWidth,
		"max_link_width":     &info.LinkWidthMax,
	}

	dir := d.SysfsPath()
	if err := readAttributes(attrs, dir); err != nil {
		return nil, err
	}

	if info.Vendor == "" || info.Device == "" {
		return nil, errdefs.New(errdefs.Format, "%s: vendor or device id can't be empty (%q/%q)", dir, info.Vendor, info.Device)
	}

	if info.AMCVersion != "" {
		v, err := parseVersion(info.AMCVersion, amcCommitBits)
		if err != nil {
			return nil, err
		}

		info.AMC = v
	}

	return info, nil
}

// driverName returns the driver the PCI function at dir is bound to, or
// an empty string.
func driverName(dir string) string {
	link, err := os.Readlink(filepath.Join(dir, "driver"))
	if err != nil {
		return ""
	}

	return filepath.Base(link)
}

// readAttributes reads several sysfs attributes of dir into the provided
// variables. Missing attributes are skipped.
func readAttributes(attrs map[string]*string, dir string) error {
	for name, v := range attrs {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return errdefs.Wrap(errdefs.IO, err, "%s: unable to read %q", dir, name)
		}

		*v = strings.TrimSpace(string(b))
	}

	return nil
}
