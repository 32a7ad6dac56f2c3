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
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"unsafe"

	"k8s.io/klog/v2"

	"github.com/intel/intel-fpga-card-tools/pkg/fpga/bdf"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/config"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/errdefs"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/linux"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/sensors"
)

type ioctlFunc func(fd uintptr, request uintptr, arg unsafe.Pointer) error

// FPTHeader describes the flash partition table of a card.
type FPTHeader struct {
	Version    uint8 `json:"version"`
	HeaderSize uint8 `json:"headerSize"`
	EntrySize  uint8 `json:"entrySize"`
	NumEntries uint8 `json:"numEntries"`
}

// FPTPartition is one entry of the flash partition table.
type FPTPartition struct {
	Index    uint32 `json:"index"`
	Type     uint32 `json:"type"`
	BaseAddr uint32 `json:"baseAddr"`
	Size     uint32 `json:"size"`
}

// Device is a handle to one card bound to the driver. The character device
// is opened on first use. A Device must be deleted before the card is
// removed from the bus.
type Device struct {
	cfg     *config.Config
	file    *os.File
	sensors *sensors.Tree
	ioctl   ioctlFunc

	bdf      bdf.ID
	devNum   int
	hwmonNum int

	capOverride bool
	registered  bool
	deleted     bool
}

func newDevice(cfg *config.Config, ioctl ioctlFunc, id bdf.ID, devNum, hwmonNum int) (*Device, error) {
	d := &Device{
		cfg:         cfg,
		ioctl:       ioctl,
		bdf:         id,
		devNum:      devNum,
		hwmonNum:    hwmonNum,
		capOverride: cfg.CapOverride,
	}

	if err := d.Open(); err != nil {
		return nil, err
	}

	if err := d.ioctl(d.file.Fd(), linux.AMI_IOC_APP_REGISTER, nil); err != nil {
		d.Close()
		return nil, errdefs.Wrap(errdefs.IO, err, "%s: can't register with the driver", id)
	}

	d.registered = true

	klog.V(3).Infof("%s: registered %s", id, cfg.DevNode(devNum))

	return d, nil
}

// Open opens the character device. Open is a no-op on an open device.
func (d *Device) Open() error {
	if d.deleted {
		return errdefs.New(errdefs.InvalidArgument, "%s: device was deleted", d.bdf)
	}

	if d.file != nil {
		return nil
	}

	f, err := os.OpenFile(d.cfg.DevNode(d.devNum), os.O_RDWR, 0)
	if err != nil {
		return errdefs.Wrap(errdefs.BadDescriptor, err, "%s: can't open device node", d.bdf)
	}

	d.file = f

	return nil
}

// Close closes the character device. Close is a no-op on a closed device.
func (d *Device) Close() error {
	if d.file == nil {
		return nil
	}

	err := d.file.Close()
	d.file = nil

	return errdefs.Wrap(errdefs.BadDescriptor, err, "%s: can't close device node", d.bdf)
}

// Delete deregisters from the driver, closes the device and drops the
// sensor tree. The Device can't be used afterwards.
func (d *Device) Delete() error {
	if d.deleted {
		return errdefs.New(errdefs.InvalidArgument, "%s: device was deleted", d.bdf)
	}

	if d.registered {
		if err := d.Open(); err == nil {
			if err := d.ioctl(d.file.Fd(), linux.AMI_IOC_APP_DEREGISTER, nil); err != nil {
				klog.Warningf("%s: can't deregister: %v", d.bdf, err)
			}
		}

		d.registered = false
	}

	err := d.Close()
	d.sensors = nil
	d.deleted = true

	klog.V(3).Infof("%s: deleted", d.bdf)

	return err
}

// RequestElevatedAccess asks the driver to skip its permission checks on
// restricted operations issued through this handle.
func (d *Device) RequestElevatedAccess() {
	d.capOverride = true
}

func (d *Device) capFlag() uint8 {
	if d.capOverride {
		return 1
	}

	return 0
}

// BDF returns the PCI address of the card.
func (d *Device) BDF() bdf.ID {
	return d.bdf
}

// DevNum returns the number of the character device.
func (d *Device) DevNum() int {
	return d.devNum
}

// HwmonNum returns the number of the hwmon node.
func (d *Device) HwmonNum() int {
	return d.hwmonNum
}

// DevNode returns the path of the character device.
func (d *Device) DevNode() string {
	return d.cfg.DevNode(d.devNum)
}

// SysfsPath returns the PCI sysfs directory of the card.
func (d *Device) SysfsPath() string {
	return d.cfg.PCIDeviceDir(d.bdf)
}

// HwmonPath returns the hwmon directory of the card.
func (d *Device) HwmonPath() string {
	return filepath.Join(d.SysfsPath(), "hwmon", fmt.Sprintf("hwmon%d", d.hwmonNum))
}

func (d *Device) call(name string, request uintptr, arg unsafe.Pointer) error {
	if err := d.Open(); err != nil {
		return err
	}

	if err := d.ioctl(d.file.Fd(), request, arg); err != nil {
		return errdefs.Wrap(errdefs.IO, err, "%s: %s failed", d.bdf, name)
	}

	return nil
}

// DiscoverSensors scans the hwmon directory and replaces the sensor tree.
// On failure the previous tree is kept.
func (d *Device) DiscoverSensors() error {
	if d.deleted {
		return errdefs.New(errdefs.InvalidArgument, "%s: device was deleted", d.bdf)
	}

	tree, err := sensors.Discover(d.HwmonPath())
	if err != nil {
		return err
	}

	d.sensors = tree

	return nil
}

// Sensors returns the discovered sensor tree or nil.
func (d *Device) Sensors() *sensors.Tree {
	return d.sensors
}

// Resolver returns a resolver reading the discovered sensors of d.
func (d *Device) Resolver() (*sensors.Resolver, error) {
	if d.sensors == nil {
		return nil, errdefs.New(errdefs.NotFound, "%s: sensors were not discovered", d.bdf)
	}

	return sensors.NewResolver(d.sensors, d), nil
}

var sensorTypes = map[sensors.Quantity]uint32{
	sensors.Temperature: linux.SensorTypeTemp,
	sensors.Voltage:     linux.SensorTypeVoltage,
	sensors.Current:     linux.SensorTypeCurrent,
	sensors.Power:       linux.SensorTypePower,
}

// QuerySensor reads a sensor value together with its status.
func (d *Device) QuerySensor(q sensors.Quantity, channel uint32) (int64, string, bool, error) {
	t, ok := sensorTypes[q]
	if !ok {
		return 0, "", false, errdefs.New(errdefs.InvalidArgument, "unknown quantity %s", q)
	}

	p := linux.SensorPayload{Type: t, Channel: channel}
	if err := d.call("sensor query", linux.AMI_IOC_GET_SENSOR, unsafe.Pointer(&p)); err != nil {
		return 0, "", false, err
	}

	status := strings.TrimRight(string(p.Status[:]), "\x00")

	return p.Value, status, p.Fresh != 0, nil
}

// SetSensorRefresh changes how often the driver refreshes sensor values.
func (d *Device) SetSensorRefresh(interval time.Duration) error {
	ms := interval.Milliseconds()
	if ms <= 0 || ms > 0xffff {
		return errdefs.New(errdefs.InvalidArgument, "refresh interval %v out of range", interval)
	}

	p := linux.RefreshPayload{IntervalMs: uint16(ms)}

	return d.call("sensor refresh", linux.AMI_IOC_SET_SENSOR_REFR, unsafe.Pointer(&p))
}

// BarReadRange reads len(buf) 32-bit words from a BAR.
func (d *Device) BarReadRange(bar uint8, offset uint32, buf []uint32) error {
	return d.barAccess("BAR read", linux.AMI_IOC_READ_BAR, bar, offset, buf)
}

// BarWriteRange writes buf to a BAR.
func (d *Device) BarWriteRange(bar uint8, offset uint32, buf []uint32) error {
	return d.barAccess("BAR write", linux.AMI_IOC_WRITE_BAR, bar, offset, buf)
}

// BarRead reads one 32-bit word from a BAR.
func (d *Device) BarRead(bar uint8, offset uint32) (uint32, error) {
	buf := make([]uint32, 1)
	if err := d.BarReadRange(bar, offset, buf); err != nil {
		return 0, err
	}

	return buf[0], nil
}

// BarWrite writes one 32-bit word to a BAR.
func (d *Device) BarWrite(bar uint8, offset uint32, val uint32) error {
	return d.BarWriteRange(bar, offset, []uint32{val})
}

func (d *Device) barAccess(name string, request uintptr, bar uint8, offset uint32, buf []uint32) error {
	if len(buf) == 0 {
		return errdefs.New(errdefs.InvalidArgument, "%s: empty %s", d.bdf, name)
	}

	p := linux.BarPayload{
		Addr:        uint64(uintptr(unsafe.Pointer(&buf[0]))),
		Offset:      offset,
		Num:         uint32(len(buf)),
		Bar:         bar,
		CapOverride: d.capFlag(),
	}
	err := d.call(name, request, unsafe.Pointer(&p))
	runtime.KeepAlive(buf)

	return err
}

// DownloadPDI writes an image to a flash partition. Progress is signalled
// on eventFd, pass linux.NoEventFd to disable it.
func (d *Device) DownloadPDI(image []byte, partition uint32, eventFd int32) error {
	if len(image) == 0 {
		return errdefs.New(errdefs.InvalidArgument, "%s: empty image", d.bdf)
	}

	p := linux.PDIPayload{
		Addr:        uint64(uintptr(unsafe.Pointer(&image[0]))),
		Size:        uint32(len(image)),
		Partition:   partition,
		EventFd:     eventFd,
		CapOverride: d.capFlag(),
	}
	err := d.call("PDI download", linux.AMI_IOC_DOWNLOAD_PDI, unsafe.Pointer(&p))
	runtime.KeepAlive(image)

	return err
}

// CopyPartition copies one flash partition to another.
func (d *Device) CopyPartition(src, dst uint32, eventFd int32) error {
	p := linux.CopyPayload{
		Src:         src,
		Dst:         dst,
		EventFd:     eventFd,
		CapOverride: d.capFlag(),
	}

	return d.call("partition copy", linux.AMI_IOC_COPY_PARTITION, unsafe.Pointer(&p))
}

// FPTHeader reads the flash partition table header.
func (d *Device) FPTHeader() (FPTHeader, error) {
	var p linux.FptHeaderPayload
	if err := d.call("FPT header read", linux.AMI_IOC_GET_FPT_HDR, unsafe.Pointer(&p)); err != nil {
		return FPTHeader{}, err
	}

	return FPTHeader{
		Version:    p.Version,
		HeaderSize: p.HeaderSize,
		EntrySize:  p.EntrySize,
		NumEntries: p.NumEntries,
	}, nil
}

// FPTPartition reads one flash partition table entry.
func (d *Device) FPTPartition(index uint32) (FPTPartition, error) {
	p := linux.FptPartitionPayload{Index: index}
	if err := d.call("FPT partition read", linux.AMI_IOC_GET_FPT_PART, unsafe.Pointer(&p)); err != nil {
		return FPTPartition{}, err
	}

	return FPTPartition{
		Index:    index,
		Type:     p.Type,
		BaseAddr: p.BaseAddr,
		Size:     p.Size,
	}, nil
}

// BootPartition selects the partition the card boots from on the next
// reset.
func (d *Device) BootPartition(partition uint32) error {
	p := linux.BootPayload{Partition: partition}

	return d.call("boot partition select", linux.AMI_IOC_DEVICE_BOOT, unsafe.Pointer(&p))
}
