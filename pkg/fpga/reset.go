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
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"k8s.io/klog/v2"

	"github.com/intel/intel-fpga-card-tools/pkg/fpga/bdf"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/errdefs"
)

// Step is a state reached by a reset sequence.
type Step int

// Reset sequence states in the order they are reached.
const (
	StepGpioSet Step = iota + 1
	StepHandleTornDown
	StepRemoved
	StepSbrAsserted
	StepSbrCleared
	StepRescanned
	StepRebound
)

var stepNames = map[Step]string{
	StepGpioSet:        "gpio set",
	StepHandleTornDown: "handle torn down",
	StepRemoved:        "removed",
	StepSbrAsserted:    "sbr asserted",
	StepSbrCleared:     "sbr cleared",
	StepRescanned:      "rescanned",
	StepRebound:        "rebound",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}

	return "unknown"
}

const (
	// The management controller is told about an imminent reset through
	// a GPIO register in BAR 0.
	resetGpioBar    uint8  = 0
	resetGpioOffset uint32 = 0x1040000
	resetGpioValue  uint32 = 0x1

	// Bridge control register and its secondary bus reset bit.
	bridgeControlOffset int64  = 0x3e
	bridgeControlSbr    uint16 = 0x40
)

// Resetter removes cards from the PCI tree and brings them back.
type Resetter struct {
	reg     *Registry
	sleep   func(time.Duration)
	observe func(Step)
}

// NewResetter returns a Resetter that looks devices up through reg.
func NewResetter(reg *Registry) *Resetter {
	return &Resetter{
		reg:   reg,
		sleep: time.Sleep,
	}
}

// OnStep registers fn to be called on every state transition.
func (r *Resetter) OnStep(fn func(Step)) {
	r.observe = fn
}

func (r *Resetter) step(id bdf.ID, s Step) {
	klog.V(2).Infof("%s: %s", id, s)

	if r.observe != nil {
		r.observe(s)
	}
}

func writeOne(fname string) error {
	f, err := os.OpenFile(fname, os.O_WRONLY, 0)
	if err != nil {
		return errdefs.Wrap(errdefs.IO, err, "can't open %s", fname)
	}

	_, err = f.Write([]byte("1"))
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	return errdefs.Wrap(errdefs.IO, err, "can't write %s", fname)
}

// Reload removes a card from the PCI tree and rescans the bus. Exactly
// one of dev and addr must be given. If dev is given it is deleted first
// and a new handle for the same card is returned; otherwise the caller
// must have deleted every handle of the card and nil is returned.
func (r *Resetter) Reload(dev *Device, addr string) (*Device, error) {
	if (dev == nil) == (addr == "") {
		return nil, errdefs.New(errdefs.InvalidArgument, "reload needs either a device or an address")
	}

	var (
		id         bdf.ID
		hadSensors bool
		err        error
	)

	if dev != nil {
		id = dev.bdf
		hadSensors = dev.sensors != nil

		dev.Delete()
		r.step(id, StepHandleTornDown)
	} else if id, err = bdf.ParseStrict(addr); err != nil {
		return nil, err
	}

	cfg := r.reg.Config()

	if err := writeOne(filepath.Join(cfg.PCIDeviceDir(id), "remove")); err != nil {
		return nil, err
	}

	r.step(id, StepRemoved)

	if err := writeOne(cfg.RescanFile()); err != nil {
		return nil, err
	}

	r.step(id, StepRescanned)

	if dev == nil {
		return nil, nil
	}

	return r.rebind(id, hadSensors)
}

func (r *Resetter) rebind(id bdf.ID, hadSensors bool) (*Device, error) {
	var (
		d   *Device
		err error
	)

	if timeout := r.reg.Config().Reset.RebindTimeout; timeout > 0 {
		d, err = r.reg.WaitForDevice(id, timeout)
	} else {
		d, err = r.reg.Find(id)
	}

	if err != nil {
		return nil, err
	}

	if hadSensors {
		if err := d.DiscoverSensors(); err != nil {
			klog.Warningf("%s: sensors unavailable after reset: %v", id, err)
		}
	}

	r.step(id, StepRebound)

	return d, nil
}

// HotReset resets a card through a secondary bus reset of its upstream
// bridge, which reloads the card configuration image. dev is always
// deleted; on success a new handle for the card is returned.
func (r *Resetter) HotReset(dev *Device) (*Device, error) {
	if dev == nil {
		return nil, errdefs.New(errdefs.InvalidArgument, "hot reset needs a device")
	}

	id := dev.bdf
	hadSensors := dev.sensors != nil
	cfg := r.reg.Config()
	delays := cfg.Reset

	var ctl *os.File

	abort := func(err error) (*Device, error) {
		if ctl != nil {
			ctl.Close()
		}

		if !dev.deleted {
			dev.Delete()
		}

		return nil, errdefs.Reclassify(errdefs.IO, err, "%s: hot reset aborted", id)
	}

	devDir, err := filepath.EvalSymlinks(cfg.PCIDeviceDir(id))
	if err != nil {
		return abort(err)
	}

	port := filepath.Dir(devDir)

	ctl, err = os.OpenFile(filepath.Join(port, "config"), os.O_RDWR, 0)
	if err != nil {
		return abort(err)
	}

	klog.V(2).Infof("%s: upstream port %s", id, filepath.Base(port))

	if err := dev.BarWrite(resetGpioBar, resetGpioOffset, resetGpioValue); err != nil {
		return abort(err)
	}

	r.step(id, StepGpioSet)

	dev.Delete()
	r.step(id, StepHandleTornDown)

	if err := writeOne(filepath.Join(devDir, "remove")); err != nil {
		return abort(err)
	}

	r.step(id, StepRemoved)
	r.sleep(delays.RemoveDelay)

	var buf [2]byte
	if _, err := ctl.ReadAt(buf[:], bridgeControlOffset); err != nil {
		return abort(err)
	}

	control := binary.LittleEndian.Uint16(buf[:])

	binary.LittleEndian.PutUint16(buf[:], control|bridgeControlSbr)

	if _, err := ctl.WriteAt(buf[:], bridgeControlOffset); err != nil {
		return abort(err)
	}

	r.step(id, StepSbrAsserted)
	r.sleep(delays.SbrAssertDelay)

	binary.LittleEndian.PutUint16(buf[:], control&^bridgeControlSbr)

	if _, err := ctl.WriteAt(buf[:], bridgeControlOffset); err != nil {
		return abort(err)
	}

	r.step(id, StepSbrCleared)
	r.sleep(delays.SettleDelay)

	if err := ctl.Close(); err != nil {
		klog.Warningf("%s: closing %s: %v", id, ctl.Name(), err)
	}

	ctl = nil

	if err := writeOne(cfg.RescanFile()); err != nil {
		return abort(err)
	}

	r.step(id, StepRescanned)

	return r.rebind(id, hadSensors)
}
