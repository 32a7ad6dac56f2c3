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
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/intel/intel-fpga-card-tools/pkg/fpga"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/sensors"
)

var unitSymbols = map[sensors.Quantity]string{
	sensors.Temperature: "C",
	sensors.Current:     "A",
	sensors.Voltage:     "V",
	sensors.Power:       "W",
}

type readingReport struct {
	Quantity string   `json:"quantity"`
	Unit     string   `json:"unit"`
	Status   string   `json:"status,omitempty"`
	Error    string   `json:"error,omitempty"`
	Value    *float64 `json:"value,omitempty"`
	Average  *float64 `json:"average,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Warn     *float64 `json:"warn,omitempty"`
	Crit     *float64 `json:"crit,omitempty"`
	Fatal    *float64 `json:"fatal,omitempty"`
}

type sensorReport struct {
	Name     string          `json:"name"`
	Readings []readingReport `json:"readings"`
}

func optional(rd sensors.Reading, err error) *float64 {
	if err != nil {
		return nil
	}

	v := rd.Float()

	return &v
}

// collectSensors reads every record of the tree. Read failures are
// reported per record and don't stop the walk.
func collectSensors(tree *sensors.Tree, r *sensors.Resolver, atomic bool) []sensorReport {
	var reports []sensorReport

	for _, name := range tree.Names() {
		s := sensorReport{Name: name}

		for _, rec := range tree.Records(name) {
			q := rec.Quantity
			rr := readingReport{Quantity: q.String(), Unit: unitSymbols[q]}

			if rec.Has(sensors.AttrValue) {
				var (
					rd  sensors.Reading
					err error
				)

				switch {
				case atomic:
					rd, err = r.ValueAndStatus(name, q, true)
				case rec.Has(sensors.AttrStatus):
					rd, err = r.ValueAndStatus(name, q, false)
				default:
					rd, err = r.Value(name, q, false)
				}

				if err != nil {
					rr.Error = err.Error()
				} else {
					v := rd.Float()
					rr.Value = &v

					if rd.Status != sensors.StatusUnknown {
						rr.Status = rd.Status.String()
					}
				}
			}

			rr.Average = optional(r.Average(name, q))
			rr.Max = optional(r.Max(name, q))
			rr.Warn = optional(r.WarnLimit(name, q))
			rr.Crit = optional(r.CritLimit(name, q))
			rr.Fatal = optional(r.FatalLimit(name, q))

			s.Readings = append(s.Readings, rr)
		}

		reports = append(reports, s)
	}

	return reports
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}

	return fmt.Sprintf("%.3f", *v)
}

func writeSensorTable(w io.Writer, reports []sensorReport) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)

	fmt.Fprintln(tw, "NAME\tQUANTITY\tVALUE\tUNIT\tSTATUS\tAVG\tMAX\tWARN\tCRIT\tFATAL")

	for _, s := range reports {
		for _, rr := range s.Readings {
			status := rr.Status
			if rr.Error != "" {
				status = rr.Error
			}

			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				s.Name, rr.Quantity, formatOptional(rr.Value), rr.Unit, status,
				formatOptional(rr.Average), formatOptional(rr.Max),
				formatOptional(rr.Warn), formatOptional(rr.Crit), formatOptional(rr.Fatal))
		}
	}

	tw.Flush()
}

func (t *tool) sensors(dev *fpga.Device) error {
	if err := dev.DiscoverSensors(); err != nil {
		return err
	}

	r, err := dev.Resolver()
	if err != nil {
		return err
	}

	if interval, err := sensors.UpdateInterval(dev.HwmonPath()); err == nil {
		fmt.Fprintf(t.out, "# refresh interval %v\n", interval)
	}

	reports := collectSensors(dev.Sensors(), r, t.opts.atomic)

	switch t.opts.output {
	case "prometheus":
		return writeMetrics(t.out, sensorFamilies(dev.BDF().String(), reports))
	case "yaml":
		return t.print(reports, nil)
	}

	writeSensorTable(t.out, reports)

	return nil
}
