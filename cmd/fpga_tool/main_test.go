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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/common/expfmt"
	"sigs.k8s.io/yaml"

	"github.com/intel/intel-fpga-card-tools/pkg/fpga/errdefs"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/sensors"
)

func TestValidateFlags(t *testing.T) {
	tcases := []struct {
		name        string
		cmd         string
		opts        options
		expectedErr bool
	}{
		{
			name: "list needs nothing",
			cmd:  "list",
			opts: options{output: "text"},
		},
		{
			name:        "info without device",
			cmd:         "info",
			opts:        options{output: "text"},
			expectedErr: true,
		},
		{
			name: "sensors as prometheus",
			cmd:  "sensors",
			opts: options{output: "prometheus", device: "c1:00.0"},
		},
		{
			name:        "prometheus for info",
			cmd:         "info",
			opts:        options{output: "prometheus", device: "c1:00.0"},
			expectedErr: true,
		},
		{
			name:        "program without image",
			cmd:         "program",
			opts:        options{output: "text", device: "c1:00.0"},
			expectedErr: true,
		},
		{
			name: "program",
			cmd:  "program",
			opts: options{output: "text", device: "0000:c1:00.0", image: "design.pdi"},
		},
		{
			name:        "bad address",
			cmd:         "hotreset",
			opts:        options{output: "text", device: "c1:99.9"},
			expectedErr: true,
		},
		{
			name:        "unknown output",
			cmd:         "list",
			opts:        options{output: "json"},
			expectedErr: true,
		},
		{
			name:        "unknown command",
			cmd:         "flash",
			opts:        options{output: "text", device: "c1:00.0"},
			expectedErr: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateFlags(tc.cmd, &tc.opts)
			if tc.expectedErr && err == nil {
				t.Error("no error returned")
			}

			if !tc.expectedErr && err != nil {
				t.Errorf("unexpected error: %+v", err)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tcases := map[errdefs.Kind]int{
		errdefs.InvalidArgument: 2,
		errdefs.NotFound:        3,
		errdefs.VersionMismatch: 4,
		errdefs.IO:              1,
	}

	for kind, expected := range tcases {
		if code := exitCode(kind); code != expected {
			t.Errorf("%s: expected %d, got %d", kind, expected, code)
		}
	}
}

func testReports(t *testing.T) []sensorReport {
	t.Helper()

	dir := t.TempDir()

	for name, content := range map[string]string{
		"temp1_label":  "fpga\n",
		"temp1_input":  "45000\n",
		"temp1_max":    "85000\n",
		"temp1_status": "ok\n",
		"in0_label":    "vccint\n",
		"in0_input":    "bogus\n",
		"power1_label": "board\n",
		"power1_input": "75500000\n",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	tree, err := sensors.Discover(dir)
	if err != nil {
		t.Fatal(err)
	}

	return collectSensors(tree, sensors.NewResolver(tree, nil), false)
}

func TestCollectSensors(t *testing.T) {
	reports := testReports(t)

	if len(reports) != 3 {
		t.Fatalf("expected 3 sensors, got %d", len(reports))
	}

	fpgaTemp := reports[0].Readings[0]
	if reports[0].Name != "fpga" || fpgaTemp.Value == nil || *fpgaTemp.Value != 45 || fpgaTemp.Status != "ok" {
		t.Errorf("unexpected fpga reading %+v", fpgaTemp)
	}

	if fpgaTemp.Warn == nil || *fpgaTemp.Warn != 85 || fpgaTemp.Fatal != nil {
		t.Errorf("unexpected fpga limits %+v", fpgaTemp)
	}

	var vccint readingReport

	for _, s := range reports {
		if s.Name == "vccint" {
			vccint = s.Readings[0]
		}
	}

	if vccint.Value != nil || !strings.Contains(vccint.Error, "format error") {
		t.Errorf("expected a per record error, got %+v", vccint)
	}

	var buf bytes.Buffer

	writeSensorTable(&buf, reports)

	if lines := strings.Split(strings.TrimSpace(buf.String()), "\n"); len(lines) != 4 {
		t.Errorf("expected header and 3 rows, got %q", buf.String())
	}

	data, err := yaml.Marshal(reports)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(string(data), "name: board") {
		t.Errorf("unexpected yaml %s", data)
	}
}

func TestWriteMetrics(t *testing.T) {
	var buf bytes.Buffer

	if err := writeMetrics(&buf, sensorFamilies("c1:00.0", testReports(t))); err != nil {
		t.Fatal(err)
	}

	var parser expfmt.TextParser

	parsed, err := parser.TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("output is not valid exposition text: %v", err)
	}

	value, ok := parsed["fpga_sensor_value"]
	if !ok || len(value.GetMetric()) != 2 {
		t.Fatalf("expected 2 value samples, got %v", value)
	}

	for _, m := range value.GetMetric() {
		labels := map[string]string{}
		for _, l := range m.GetLabel() {
			labels[l.GetName()] = l.GetValue()
		}

		if labels["device"] != "c1:00.0" {
			t.Errorf("unexpected labels %v", labels)
		}

		if labels["sensor"] == "board" && m.GetGauge().GetValue() != 75.5 {
			t.Errorf("unexpected power %v", m.GetGauge().GetValue())
		}
	}

	if _, ok := parsed["fpga_sensor_fatal_limit"]; ok {
		t.Error("empty family exported")
	}
}
