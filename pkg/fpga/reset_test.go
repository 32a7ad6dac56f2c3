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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"

	"github.com/intel/intel-fpga-card-tools/pkg/fpga/config"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/errdefs"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/linux"
)

func readTestFile(t *testing.T, fname string) string {
	t.Helper()

	data, err := os.ReadFile(fname)
	if err != nil {
		t.Fatal(err)
	}

	return string(data)
}

func TestReloadArguments(t *testing.T) {
	env := newTestEnv(t, "1.0.0", card0)
	d := findCard(t, env, card0)
	defer d.Delete()

	r := env.resetter()

	if _, err := r.Reload(nil, ""); !errdefs.Is(err, errdefs.InvalidArgument) {
		t.Errorf("neither: expected invalid argument, got %v", err)
	}

	if _, err := r.Reload(d, card0.addr); !errdefs.Is(err, errdefs.InvalidArgument) {
		t.Errorf("both: expected invalid argument, got %v", err)
	}

	if _, err := r.Reload(nil, "zz:zz"); !errdefs.Is(err, errdefs.InvalidArgument) {
		t.Errorf("bad address: expected invalid argument, got %v", err)
	}

	if readTestFile(t, filepath.Join(env.cfg.PCIDeviceDir(bdfOf(card0)), "remove")) != "" {
		t.Error("device removed on invalid arguments")
	}
}

func TestReloadByAddress(t *testing.T) {
	env := newTestEnv(t, "1.0.0", card0)

	var steps []Step

	r := env.resetter()
	r.OnStep(func(s Step) { steps = append(steps, s) })

	d, err := r.Reload(nil, "0000:"+card0.addr)
	if err != nil {
		t.Fatal(err)
	}

	if d != nil {
		t.Error("unexpected device for address reload")
	}

	if diff := cmp.Diff([]Step{StepRemoved, StepRescanned}, steps); diff != "" {
		t.Errorf("unexpected steps (-want +got):\n%s", diff)
	}

	if readTestFile(t, filepath.Join(env.cfg.PCIDeviceDir(bdfOf(card0)), "remove")) != "1" {
		t.Error("device was not removed")
	}

	if readTestFile(t, env.cfg.RescanFile()) != "1" {
		t.Error("bus was not rescanned")
	}
}

func TestReloadByHandle(t *testing.T) {
	c := card1
	c.hwmon = hwmonFiles

	env := newTestEnv(t, "1.0.0", c)
	d := findCard(t, env, c)

	if err := d.DiscoverSensors(); err != nil {
		t.Fatal(err)
	}

	nd, err := env.resetter().Reload(d, "")
	if err != nil {
		t.Fatal(err)
	}
	defer nd.Delete()

	if !d.deleted {
		t.Error("old handle was not deleted")
	}

	if nd.BDF() != bdfOf(c) || nd.Sensors() == nil || nd.Sensors().Len() != 2 {
		t.Errorf("unexpected rebound device %s", nd.BDF())
	}
}

func TestReloadRescanFailure(t *testing.T) {
	env := newTestEnv(t, "1.0.0", card0)

	if err := os.Remove(env.cfg.RescanFile()); err != nil {
		t.Fatal(err)
	}

	if _, err := env.resetter().Reload(nil, card0.addr); !errdefs.Is(err, errdefs.IO) {
		t.Errorf("expected i/o error, got %v", err)
	}
}

func TestHotReset(t *testing.T) {
	c := card1
	c.hwmon = hwmonFiles

	env := newTestEnv(t, "1.0.0", c)
	d := findCard(t, env, c)

	if err := d.DiscoverSensors(); err != nil {
		t.Fatal(err)
	}

	var (
		steps    []Step
		controls []uint16
	)

	r := env.resetter()
	r.OnStep(func(s Step) {
		steps = append(steps, s)
		controls = append(controls, env.portControl(t))
	})

	nd, err := r.HotReset(d)
	if err != nil {
		t.Fatal(err)
	}
	defer nd.Delete()

	expectedSteps := []Step{
		StepGpioSet, StepHandleTornDown, StepRemoved,
		StepSbrAsserted, StepSbrCleared, StepRescanned, StepRebound,
	}
	if diff := cmp.Diff(expectedSteps, steps); diff != "" {
		t.Errorf("unexpected steps (-want +got):\n%s", diff)
	}

	if controls[3] != bridgeControlSbr || controls[4] != 0 {
		t.Errorf("unexpected control register history %v", controls)
	}

	expectedSleeps := []time.Duration{config.DefaultRemoveDelay, config.DefaultSbrAssertDelay, config.DefaultSettleDelay}
	if diff := cmp.Diff(expectedSleeps, env.sleeps); diff != "" {
		t.Errorf("unexpected delays (-want +got):\n%s", diff)
	}

	gpio := env.drv.bar[0]
	if gpio.Bar != resetGpioBar || gpio.Offset != resetGpioOffset || env.drv.barData[0][0] != resetGpioValue {
		t.Errorf("unexpected gpio write %+v", gpio)
	}

	if !d.deleted || nd.Sensors() == nil {
		t.Error("handle was not rebuilt with sensors")
	}
}

func TestHotResetAbort(t *testing.T) {
	tcases := []struct {
		name          string
		prepare       func(t *testing.T, env *testEnv)
		expectedSteps []Step
	}{
		{
			name: "gpio write refused",
			prepare: func(t *testing.T, env *testEnv) {
				env.drv.fail = map[uintptr]error{linux.AMI_IOC_WRITE_BAR: unix.EPERM}
			},
		},
		{
			name: "no bridge config space",
			prepare: func(t *testing.T, env *testEnv) {
				if err := os.Remove(filepath.Join(env.root, portDir, "config")); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "device node gone",
			prepare: func(t *testing.T, env *testEnv) {
				if err := os.Remove(env.cfg.DevNode(card0.devNum)); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "rescan refused",
			prepare: func(t *testing.T, env *testEnv) {
				if err := os.Remove(env.cfg.RescanFile()); err != nil {
					t.Fatal(err)
				}
			},
			expectedSteps: []Step{StepGpioSet, StepHandleTornDown, StepRemoved, StepSbrAsserted, StepSbrCleared},
		},
		{
			name: "control register unreadable",
			prepare: func(t *testing.T, env *testEnv) {
				writeTestFile(t, filepath.Join(env.root, portDir, "config"), string(make([]byte, 0x20)))
			},
			expectedSteps: []Step{StepGpioSet, StepHandleTornDown, StepRemoved},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, "1.0.0", card0)
			d := findCard(t, env, card0)

			if err := d.Close(); err != nil {
				t.Fatal(err)
			}

			tc.prepare(t, env)

			var steps []Step

			r := env.resetter()
			r.OnStep(func(s Step) { steps = append(steps, s) })

			nd, err := r.HotReset(d)
			if !errdefs.Is(err, errdefs.IO) {
				t.Fatalf("expected i/o error, got %v", err)
			}

			if nd != nil {
				t.Error("unexpected device after abort")
			}

			if !d.deleted {
				t.Error("handle survived an aborted reset")
			}

			if diff := cmp.Diff(tc.expectedSteps, steps); diff != "" {
				t.Errorf("unexpected steps (-want +got):\n%s", diff)
			}

			cfgSpace, err := os.ReadFile(filepath.Join(env.root, portDir, "config"))
			if err != nil {
				return
			}

			for _, b := range cfgSpace {
				if b != 0 {
					t.Fatal("bridge config space was written")
				}
			}
		})
	}
}
