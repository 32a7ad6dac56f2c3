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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/intel/intel-fpga-card-tools/pkg/fpga/bdf"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/config"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/errdefs"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/linux"
)

// Any matches every value of a Filter field.
const Any = -1

// Filter selects devices by PCI address. Fields set to Any match all values.
type Filter struct {
	Bus      int
	Device   int
	Function int
}

// AnyDevice matches every device.
var AnyDevice = Filter{Bus: Any, Device: Any, Function: Any}

// FilterFor matches exactly id.
func FilterFor(id bdf.ID) Filter {
	return Filter{Bus: int(id.Bus()), Device: int(id.Device()), Function: int(id.Function())}
}

// Match reports whether id passes the filter.
func (f Filter) Match(id bdf.ID) bool {
	return (f.Bus == Any || f.Bus == int(id.Bus())) &&
		(f.Device == Any || f.Device == int(id.Device())) &&
		(f.Function == Any || f.Function == int(id.Function()))
}

// how often WaitForDevice rechecks the device map between devfs events.
var waitRecheckInterval = 100 * time.Millisecond

type mapEntry struct {
	id       bdf.ID
	devNum   int
	hwmonNum int
}

// Registry enumerates the cards bound to the driver.
type Registry struct {
	cfg   *config.Config
	ioctl ioctlFunc
}

// NewRegistry returns a registry for the driver layout described by cfg.
// A nil cfg means the default layout.
func NewRegistry(cfg *config.Config) *Registry {
	if cfg == nil {
		cfg = config.Default()
	}

	return &Registry{
		cfg:   cfg,
		ioctl: linux.Ioctl,
	}
}

// Config returns the configuration of the registry.
func (r *Registry) Config() *config.Config {
	return r.cfg
}

// DriverVersion reads the version of the loaded driver.
func (r *Registry) DriverVersion() (*Version, error) {
	fname := r.cfg.VersionFile()

	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.IO, err, "can't read driver version")
	}

	v, err := ParseVersion(string(data))
	if err != nil {
		return nil, errdefs.Wrap(errdefs.Format, err, "%s", fname)
	}

	return v, nil
}

func (r *Registry) checkVersion() error {
	v, err := r.DriverVersion()
	if err != nil {
		return err
	}

	if !v.Compatible() {
		return errdefs.New(errdefs.VersionMismatch, "driver version %s, expected %d.%d.x",
			v, APIVersion.Major(), APIVersion.Minor())
	}

	return nil
}

// readDeviceMap parses the driver device list: a line with the number of
// devices followed by one "bb:dd.f devnum hwmonnum" line per device.
func (r *Registry) readDeviceMap() ([]mapEntry, error) {
	fname := r.cfg.DeviceMapFile()

	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.IO, err, "can't read device list")
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")

	var count int
	if _, err := fmt.Sscanf(lines[0], "%d", &count); err != nil || count < 0 {
		return nil, errdefs.New(errdefs.Format, "%s: bad device count %q", fname, lines[0])
	}

	if len(lines)-1 < count {
		return nil, errdefs.New(errdefs.Format, "%s: %d devices listed, expected %d", fname, len(lines)-1, count)
	}

	entries := make([]mapEntry, 0, count)

	for i, line := range lines[1 : count+1] {
		var (
			addr string
			e    mapEntry
		)

		if n, _ := fmt.Sscanf(line, "%s %d %d", &addr, &e.devNum, &e.hwmonNum); n != 3 {
			return nil, errdefs.New(errdefs.Format, "%s: bad line %d: %q", fname, i+2, line)
		}

		id, err := bdf.ParseStrict(addr)
		if err != nil {
			return nil, errdefs.New(errdefs.Format, "%s: bad address on line %d: %q", fname, i+2, addr)
		}

		e.id = id
		entries = append(entries, e)
	}

	return entries, nil
}

// FindNext returns the first device after prev that passes filter. prev
// may be nil to start from the beginning. The returned device is registered
// with the driver and must be deleted by the caller.
func (r *Registry) FindNext(filter Filter, prev *Device) (*Device, error) {
	if err := r.checkVersion(); err != nil {
		return nil, err
	}

	entries, err := r.readDeviceMap()
	if err != nil {
		return nil, err
	}

	past := prev == nil

	for _, e := range entries {
		if !past {
			past = e.devNum == prev.devNum
			continue
		}

		if !filter.Match(e.id) {
			continue
		}

		klog.V(4).Infof("%s: matched device %d, hwmon %d", e.id, e.devNum, e.hwmonNum)

		return newDevice(r.cfg, r.ioctl, e.id, e.devNum, e.hwmonNum)
	}

	return nil, errdefs.New(errdefs.NotFound, "no more devices matching %+v", filter)
}

// Find returns the device at id.
func (r *Registry) Find(id bdf.ID) (*Device, error) {
	return r.FindNext(FilterFor(id), nil)
}

// List returns all devices. On failure no device is left registered.
func (r *Registry) List() ([]*Device, error) {
	var (
		devs []*Device
		prev *Device
	)

	for {
		d, err := r.FindNext(AnyDevice, prev)
		if errdefs.Is(err, errdefs.NotFound) {
			return devs, nil
		}

		if err != nil {
			for _, d := range devs {
				d.Delete()
			}

			return nil, err
		}

		devs = append(devs, d)
		prev = d
	}
}

// WaitForDevice waits until the device at id is listed by the driver and
// returns it. The device directory is watched for new nodes and the list is
// rechecked on every change.
func (r *Registry) WaitForDevice(id bdf.ID, timeout time.Duration) (*Device, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errdefs.Wrap(errdefs.IO, errors.WithStack(err), "can't create watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(r.cfg.DevfsRoot); err != nil {
		return nil, errdefs.Wrap(errdefs.IO, errors.WithStack(err), "can't watch %s", r.cfg.DevfsRoot)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	recheck := time.NewTicker(waitRecheckInterval)
	defer recheck.Stop()

	for {
		d, err := r.Find(id)
		if err == nil {
			return d, nil
		}

		if !errdefs.Is(err, errdefs.NotFound) && !errdefs.Is(err, errdefs.IO) {
			return nil, err
		}

		klog.V(4).Infof("%s: not there yet: %v", id, err)

		select {
		case ev := <-watcher.Events:
			klog.V(4).Infof("%s: %s", ev.Name, ev.Op)
		case err := <-watcher.Errors:
			return nil, errdefs.Wrap(errdefs.IO, errors.WithStack(err), "watching %s", r.cfg.DevfsRoot)
		case <-recheck.C:
		case <-deadline.C:
			return nil, errdefs.New(errdefs.NotFound, "%s: device did not appear within %v", id, timeout)
		}
	}
}
