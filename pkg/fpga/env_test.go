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
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	"github.com/intel/intel-fpga-card-tools/pkg/fpga/bdf"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/config"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/linux"
)

const portDir = "sys/devices/pci0000:00/0000:00:01.1"

func init() {
	klog.InitFlags(nil)
	_ = flag.Set("v", "4")
}

// fakeDriver stands in for the kernel driver behind the ioctl interface.
type fakeDriver struct {
	fail     map[uintptr]error
	calls    []uintptr
	bar      []linux.BarPayload
	barData  [][]uint32
	sensor   linux.SensorPayload
	pdi      []linux.PDIPayload
	copies   []linux.CopyPayload
	refresh  []uint16
	boot     []uint32
	fptParts map[uint32]linux.FptPartitionPayload
	mu       sync.Mutex
}

func (f *fakeDriver) ioctl(fd uintptr, request uintptr, arg unsafe.Pointer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, request)

	if err, ok := f.fail[request]; ok {
		return err
	}

	switch request {
	case linux.AMI_IOC_READ_BAR, linux.AMI_IOC_WRITE_BAR:
		p := (*linux.BarPayload)(arg)
		data := unsafe.Slice((*uint32)(unsafe.Pointer(uintptr(p.Addr))), p.Num)

		if request == linux.AMI_IOC_READ_BAR {
			for i := range data {
				data[i] = p.Offset + uint32(i)
			}
		}

		f.bar = append(f.bar, *p)
		f.barData = append(f.barData, append([]uint32(nil), data...))
	case linux.AMI_IOC_GET_SENSOR:
		p := (*linux.SensorPayload)(arg)
		typ, ch := p.Type, p.Channel
		*p = f.sensor
		p.Type, p.Channel = typ, ch
	case linux.AMI_IOC_SET_SENSOR_REFR:
		f.refresh = append(f.refresh, (*linux.RefreshPayload)(arg).IntervalMs)
	case linux.AMI_IOC_DOWNLOAD_PDI:
		f.pdi = append(f.pdi, *(*linux.PDIPayload)(arg))
	case linux.AMI_IOC_COPY_PARTITION:
		f.copies = append(f.copies, *(*linux.CopyPayload)(arg))
	case linux.AMI_IOC_GET_FPT_HDR:
		*(*linux.FptHeaderPayload)(arg) = linux.FptHeaderPayload{
			Version: 1, HeaderSize: 16, EntrySize: 16, NumEntries: uint8(len(f.fptParts)),
		}
	case linux.AMI_IOC_GET_FPT_PART:
		p := (*linux.FptPartitionPayload)(arg)

		part, ok := f.fptParts[p.Index]
		if !ok {
			return unix.EINVAL
		}

		*p = part
	case linux.AMI_IOC_DEVICE_BOOT:
		f.boot = append(f.boot, (*linux.BootPayload)(arg).Partition)
	}

	return nil
}

func (f *fakeDriver) count(request uintptr) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0

	for _, c := range f.calls {
		if c == request {
			n++
		}
	}

	return n
}

type testCard struct {
	addr     string
	devNum   int
	hwmonNum int
	hwmon    map[string]string
}

type testEnv struct {
	root   string
	cfg    *config.Config
	drv    *fakeDriver
	reg    *Registry
	sleeps []time.Duration
}

func writeTestFile(t *testing.T, fname, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(fname), 0755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(fname, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// newTestEnv lays out a fake sysfs and devfs tree under a temporary root.
// All cards sit behind the same upstream port.
func newTestEnv(t *testing.T, driverVersion string, cards ...testCard) *testEnv {
	t.Helper()

	root := t.TempDir()

	cfg := config.Default().WithPrefix(root)
	cfg.Reset = config.Reset{
		RemoveDelay:    config.DefaultRemoveDelay,
		SbrAssertDelay: config.DefaultSbrAssertDelay,
		SettleDelay:    config.DefaultSettleDelay,
	}

	if driverVersion != "" {
		writeTestFile(t, cfg.VersionFile(), driverVersion+"\n")
	}

	writeTestFile(t, cfg.RescanFile(), "")
	writeTestFile(t, filepath.Join(root, portDir, "config"), string(make([]byte, 256)))

	if err := os.MkdirAll(filepath.Join(cfg.SysfsRoot, "bus/pci/devices"), 0755); err != nil {
		t.Fatal(err)
	}

	for _, c := range cards {
		id := bdf.Parse(c.addr)
		devDir := filepath.Join(root, portDir, "0000:"+id.String())

		writeTestFile(t, filepath.Join(devDir, "vendor"), "0x10ee\n")
		writeTestFile(t, filepath.Join(devDir, "device"), "0x50b4\n")
		writeTestFile(t, filepath.Join(devDir, "remove"), "")

		for name, content := range c.hwmon {
			writeTestFile(t, filepath.Join(devDir, "hwmon", fmt.Sprintf("hwmon%d", c.hwmonNum), name), content)
		}

		if err := os.Symlink(devDir, cfg.PCIDeviceDir(id)); err != nil {
			t.Fatal(err)
		}

		writeTestFile(t, cfg.DevNode(c.devNum), "")
	}

	env := &testEnv{
		root: root,
		cfg:  cfg,
		drv:  &fakeDriver{},
	}
	env.setDeviceMap(t, cards...)

	env.reg = NewRegistry(cfg)
	env.reg.ioctl = env.drv.ioctl

	return env
}

func (env *testEnv) setDeviceMap(t *testing.T, cards ...testCard) {
	t.Helper()

	content := fmt.Sprintf("%d\n", len(cards))
	for _, c := range cards {
		content += fmt.Sprintf("%s %d %d\n", c.addr, c.devNum, c.hwmonNum)
	}

	writeTestFile(t, env.cfg.DeviceMapFile(), content)
}

func (env *testEnv) resetter() *Resetter {
	r := NewResetter(env.reg)
	r.sleep = func(d time.Duration) {
		env.sleeps = append(env.sleeps, d)
	}

	return r
}

func (env *testEnv) portControl(t *testing.T) uint16 {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(env.root, portDir, "config"))
	if err != nil {
		t.Fatal(err)
	}

	return uint16(data[bridgeControlOffset]) | uint16(data[bridgeControlOffset+1])<<8
}

func bdfOf(c testCard) bdf.ID {
	return bdf.Parse(c.addr)
}
