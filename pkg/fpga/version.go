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
	"strings"

	"k8s.io/apimachinery/pkg/util/version"

	"github.com/intel/intel-fpga-card-tools/pkg/fpga/errdefs"
)

// APIVersion is the driver interface version this package speaks. A driver
// is usable if its major and minor numbers match.
var APIVersion = version.MustParseGeneric("1.0.0")

// Version is a driver or management controller version as reported in
// sysfs: "major.minor.patch +commits *modified".
type Version struct {
	*version.Version
	// DevCommits counts commits on top of the release tag.
	DevCommits int
	// Modified is set for builds from a dirty tree.
	Modified bool
}

// ParseVersion parses a sysfs version string. The commit count and
// modified flag are optional.
func ParseVersion(s string) (*Version, error) {
	return parseVersion(s, driverCommitBits)
}

// Widths of the signed commit counters printed by the driver and by the
// management controller firmware.
const (
	driverCommitBits = 32
	amcCommitBits    = 16
)

func parseVersion(s string, commitBits int) (*Version, error) {
	var (
		major, minor, patch uint
		commits             int64
		modified            int
	)

	s = strings.TrimSpace(s)

	n, _ := fmt.Sscanf(s, "%d.%d.%d +%d *%d", &major, &minor, &patch, &commits, &modified)
	if n < 3 {
		return nil, errdefs.New(errdefs.Format, "bad version %q", s)
	}

	if commits < 0 || commits >= 1<<(commitBits-1) {
		return nil, errdefs.New(errdefs.Format, "bad commit count in version %q", s)
	}

	v, err := version.ParseGeneric(fmt.Sprintf("%d.%d.%d", major, minor, patch))
	if err != nil {
		return nil, errdefs.Wrap(errdefs.Format, err, "bad version %q", s)
	}

	return &Version{
		Version:    v,
		DevCommits: int(commits),
		Modified:   modified != 0,
	}, nil
}

// Compatible reports whether v can be driven by this package.
func (v *Version) Compatible() bool {
	return v.Major() == APIVersion.Major() && v.Minor() == APIVersion.Minor()
}

func (v *Version) String() string {
	s := v.Version.String()
	if v.DevCommits > 0 {
		s += fmt.Sprintf("+%d", v.DevCommits)
	}

	if v.Modified {
		s += "*"
	}

	return s
}
