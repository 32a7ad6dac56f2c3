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

// Package config holds the filesystem layout of the kernel driver and the
// tunables of the reset state machines.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"

	"github.com/intel/intel-fpga-card-tools/pkg/fpga/bdf"
)

const (
	// DefaultFile is read by the tool unless another file is given.
	DefaultFile = "/etc/fpga-tool.conf"
	// DefaultDriver is the name of the PCI driver the cards are bound to.
	DefaultDriver = "ami"

	// Delays of the hot reset sequence. They are empirical values needed by
	// some host and card combinations.
	DefaultRemoveDelay    = 1 * time.Millisecond
	DefaultSbrAssertDelay = 2 * time.Millisecond
	DefaultSettleDelay    = 4000 * time.Millisecond
)

// Config describes where the driver exposes its files and how resets behave.
type Config struct {
	// Driver is the kernel driver name, used for /sys/bus/pci/drivers/<Driver>
	// and /dev/<Driver><N>.
	Driver string
	// SysfsRoot is normally "/sys".
	SysfsRoot string
	// DevfsRoot is normally "/dev".
	DevfsRoot string
	// CapOverride requests elevated driver access on every opened device.
	CapOverride bool
	Reset       Reset
}

// Reset holds the hot reset timing.
type Reset struct {
	// RemoveDelay is slept after removing the device and before asserting SBR.
	RemoveDelay time.Duration
	// SbrAssertDelay is how long the secondary bus reset bit is held.
	SbrAssertDelay time.Duration
	// SettleDelay lets the new configuration image initialize.
	SettleDelay time.Duration
	// RebindTimeout, if positive, waits for the device node to reappear
	// after a rescan instead of looking it up once.
	RebindTimeout time.Duration
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Driver:    DefaultDriver,
		SysfsRoot: "/sys",
		DevfsRoot: "/dev",
		Reset: Reset{
			RemoveDelay:    DefaultRemoveDelay,
			SbrAssertDelay: DefaultSbrAssertDelay,
			SettleDelay:    DefaultSettleDelay,
		},
	}
}

// Load reads an INI file on top of the defaults. A missing file is not an
// error.
func Load(fname string) (*Config, error) {
	cfg := Default()

	f, err := ini.LooseLoad(fname)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse %s", fname)
	}

	drv := f.Section("driver")
	cfg.Driver = drv.Key("name").MustString(cfg.Driver)
	cfg.SysfsRoot = drv.Key("sysfs_root").MustString(cfg.SysfsRoot)
	cfg.DevfsRoot = drv.Key("devfs_root").MustString(cfg.DevfsRoot)
	cfg.CapOverride = drv.Key("cap_override").MustBool(cfg.CapOverride)

	rst := f.Section("reset")
	cfg.Reset.RemoveDelay = rst.Key("remove_delay").MustDuration(cfg.Reset.RemoveDelay)
	cfg.Reset.SbrAssertDelay = rst.Key("sbr_assert_delay").MustDuration(cfg.Reset.SbrAssertDelay)
	cfg.Reset.SettleDelay = rst.Key("settle_delay").MustDuration(cfg.Reset.SettleDelay)
	cfg.Reset.RebindTimeout = rst.Key("rebind_timeout").MustDuration(cfg.Reset.RebindTimeout)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "%s", fname)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Driver == "" {
		return errors.New("driver name can't be empty")
	}

	for name, d := range map[string]time.Duration{
		"remove_delay":     c.Reset.RemoveDelay,
		"sbr_assert_delay": c.Reset.SbrAssertDelay,
		"settle_delay":     c.Reset.SettleDelay,
		"rebind_timeout":   c.Reset.RebindTimeout,
	} {
		if d < 0 {
			return errors.Errorf("%s can't be negative: %v", name, d)
		}
	}

	return nil
}

// WithPrefix returns a copy of c with sysfs and devfs moved under prefix.
func (c *Config) WithPrefix(prefix string) *Config {
	n := *c
	n.SysfsRoot = filepath.Join(prefix, c.SysfsRoot)
	n.DevfsRoot = filepath.Join(prefix, c.DevfsRoot)

	return &n
}

// DriverDir is the driver's sysfs directory.
func (c *Config) DriverDir() string {
	return filepath.Join(c.SysfsRoot, "bus/pci/drivers", c.Driver)
}

// VersionFile holds "major.minor.patch +commits *modified".
func (c *Config) VersionFile() string {
	return filepath.Join(c.DriverDir(), "version")
}

// DeviceMapFile lists the devices bound to the driver.
func (c *Config) DeviceMapFile() string {
	return filepath.Join(c.DriverDir(), "devices")
}

// PCIDeviceDir is the sysfs directory of a PCI function in domain 0.
func (c *Config) PCIDeviceDir(id bdf.ID) string {
	return filepath.Join(c.SysfsRoot, "bus/pci/devices", "0000:"+id.String())
}

// RescanFile triggers a rescan of all PCI buses.
func (c *Config) RescanFile() string {
	return filepath.Join(c.SysfsRoot, "bus/pci/rescan")
}

// DevNode is the character device of device number n.
func (c *Config) DevNode(n int) string {
	return filepath.Join(c.DevfsRoot, fmt.Sprintf("%s%d", c.Driver, n))
}
