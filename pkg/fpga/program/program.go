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

// Package program writes images to the flash of a card, copies partitions
// and selects the boot partition.
package program

import (
	"fmt"
	"io"
	"os"
	"strings"

	"k8s.io/klog/v2"

	"github.com/intel/intel-fpga-card-tools/pkg/fpga"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/errdefs"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/event"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/linux"
)

// Card is the part of a device handle used for programming.
type Card interface {
	DownloadPDI(image []byte, partition uint32, eventFd int32) error
	CopyPartition(src, dst uint32, eventFd int32) error
	FPTHeader() (fpga.FPTHeader, error)
	FPTPartition(index uint32) (fpga.FPTPartition, error)
}

// Booter selects the boot partition of a card.
type Booter interface {
	BootPartition(partition uint32) error
}

// Resetter resets a card and returns the handle that replaces dev.
type Resetter[D Booter] interface {
	HotReset(dev D) (D, error)
}

// State tracks the progress of a long running operation. Written is only
// updated from the progress callback.
type State struct {
	ToWrite uint64
	Written uint64
	spin    int
}

// Percent returns the completed share of the operation, or 0 if the size
// is unknown.
func (s *State) Percent() float64 {
	if s.ToWrite == 0 {
		return 0
	}

	if s.Written >= s.ToWrite {
		return 100
	}

	return float64(s.Written) * 100 / float64(s.ToWrite)
}

// ProgressFunc is called on every progress event.
type ProgressFunc func(s *State)

const barWidth = 40

var spinner = []byte(`|/-\`)

// NewProgressBar returns a ProgressFunc that draws a one line progress bar
// on w. Operations of unknown size only animate the spinner.
func NewProgressBar(w io.Writer) ProgressFunc {
	return func(s *State) {
		tok := spinner[s.spin%len(spinner)]

		if s.ToWrite == 0 {
			fmt.Fprintf(w, "\r%c working", tok)
			return
		}

		pct := s.Percent()
		n := int(pct * barWidth / 100)

		fmt.Fprintf(w, "\r[%s%s] %3.0f%% %c", strings.Repeat("=", n), strings.Repeat(" ", barWidth-n), pct, tok)
	}
}

// watch starts an event watcher feeding st into progress. Without a
// progress function no watcher is started and linux.NoEventFd is returned.
func watch(st *State, progress ProgressFunc, countBytes bool) (*event.Watcher, int32, error) {
	if progress == nil {
		return nil, linux.NoEventFd, nil
	}

	w, err := event.Start(func(res event.Result, ctr uint64) {
		if res == event.Ok && countBytes {
			st.Written += ctr
		}

		st.spin++
		progress(st)
	})
	if err != nil {
		return nil, 0, errdefs.Wrap(errdefs.IO, err, "can't watch progress")
	}

	return w, int32(w.Fd()), nil
}

func readImage(fname string) ([]byte, error) {
	fi, err := os.Stat(fname)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.InvalidArgument, err, "%s: stat error", fname)
	}

	if !fi.Mode().IsRegular() || fi.Size() == 0 {
		return nil, errdefs.New(errdefs.InvalidArgument, "%s: not a regular non-empty file", fname)
	}

	image, err := os.ReadFile(fname)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.IO, err, "%s: read error", fname)
	}

	return image, nil
}

// DownloadImage writes the image in fname to a flash partition. progress
// may be nil.
func DownloadImage(dev Card, fname string, partition uint32, progress ProgressFunc) error {
	image, err := readImage(fname)
	if err != nil {
		return err
	}

	st := &State{ToWrite: uint64(len(image))}

	w, fd, err := watch(st, progress, true)
	if err != nil {
		return err
	}

	err = dev.DownloadPDI(image, partition, fd)

	w.Stop()

	if err != nil {
		return err
	}

	klog.V(2).Infof("%s: %d bytes written to partition %#x", fname, len(image), partition)

	return nil
}

// UpdateFPT writes an image that also carries a new flash partition table.
func UpdateFPT(dev Card, fname string, progress ProgressFunc) error {
	return DownloadImage(dev, fname, linux.FptUpdateMagic, progress)
}

// CopyPartition copies one flash partition to another. The driver does not
// report the copied size, so progress only shows that the copy is alive.
func CopyPartition(dev Card, src, dst uint32, progress ProgressFunc) error {
	if src == dst {
		return errdefs.New(errdefs.InvalidArgument, "source and destination partition are both %d", src)
	}

	st := &State{}

	w, fd, err := watch(st, progress, false)
	if err != nil {
		return err
	}

	err = dev.CopyPartition(src, dst, fd)

	w.Stop()

	if err != nil {
		return err
	}

	klog.V(2).Infof("partition %d copied to %d", src, dst)

	return nil
}

// SetBootPartition selects the boot partition and resets the card so the
// selection takes effect. dev is replaced by the returned handle.
func SetBootPartition[D Booter](r Resetter[D], dev D, partition uint32) (D, error) {
	if err := dev.BootPartition(partition); err != nil {
		var none D
		return none, err
	}

	klog.V(2).Infof("boot partition %d selected, resetting", partition)

	return r.HotReset(dev)
}

// FPT is the flash partition table of a card.
type FPT struct {
	Header     fpga.FPTHeader      `json:"header"`
	Partitions []fpga.FPTPartition `json:"partitions"`
}

// ReadFPT reads the header and all partitions of the flash partition table.
func ReadFPT(dev Card) (*FPT, error) {
	hdr, err := dev.FPTHeader()
	if err != nil {
		return nil, err
	}

	fpt := &FPT{Header: hdr}

	for i := uint32(0); i < uint32(hdr.NumEntries); i++ {
		part, err := dev.FPTPartition(i)
		if err != nil {
			return nil, err
		}

		fpt.Partitions = append(fpt.Partitions, part)
	}

	return fpt, nil
}
