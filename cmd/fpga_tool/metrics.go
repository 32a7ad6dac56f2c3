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
	"io"
	"sort"

	"github.com/pkg/errors"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

const metricPrefix = "fpga_sensor_"

type family struct {
	name string
	help string
	get  func(rr readingReport) *float64
}

var families = []family{
	{"value", "Current sensor reading in base units.", func(rr readingReport) *float64 { return rr.Value }},
	{"average", "Average sensor reading in base units.", func(rr readingReport) *float64 { return rr.Average }},
	{"max", "Highest sensor reading in base units.", func(rr readingReport) *float64 { return rr.Max }},
	{"warn_limit", "Warning limit in base units.", func(rr readingReport) *float64 { return rr.Warn }},
	{"crit_limit", "Critical limit in base units.", func(rr readingReport) *float64 { return rr.Crit }},
	{"fatal_limit", "Fatal limit in base units.", func(rr readingReport) *float64 { return rr.Fatal }},
}

func labelPair(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}

// sensorFamilies converts sensor reports to gauge metric families. Families
// without samples are left out.
func sensorFamilies(device string, reports []sensorReport) []*dto.MetricFamily {
	var mfs []*dto.MetricFamily

	for _, f := range families {
		mf := &dto.MetricFamily{
			Name: proto.String(metricPrefix + f.name),
			Help: proto.String(f.help),
			Type: dto.MetricType_GAUGE.Enum(),
		}

		for _, s := range reports {
			for _, rr := range s.Readings {
				v := f.get(rr)
				if v == nil {
					continue
				}

				mf.Metric = append(mf.Metric, &dto.Metric{
					Label: []*dto.LabelPair{
						labelPair("device", device),
						labelPair("quantity", rr.Quantity),
						labelPair("sensor", s.Name),
					},
					Gauge: &dto.Gauge{Value: proto.Float64(*v)},
				})
			}
		}

		if len(mf.Metric) > 0 {
			mfs = append(mfs, mf)
		}
	}

	sort.Slice(mfs, func(i, j int) bool { return mfs[i].GetName() < mfs[j].GetName() })

	return mfs
}

func writeMetrics(w io.Writer, mfs []*dto.MetricFamily) error {
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return errors.Wrapf(err, "can't write %s", mf.GetName())
		}
	}

	return nil
}
