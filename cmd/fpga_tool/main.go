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
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"

	"github.com/intel/intel-fpga-card-tools/pkg/fpga"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/bdf"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/config"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/errdefs"
	"github.com/intel/intel-fpga-card-tools/pkg/fpga/program"
)

const commands = "version, list, info, sensors, reload, hotreset, program, fptupdate, fpt, copy, boot"

type options struct {
	configFile string
	prefix     string
	device     string
	output     string
	image      string
	partition  uint
	src        uint
	dst        uint
	elevated   bool
	atomic     bool
	noProgress bool
}

type tool struct {
	reg  *fpga.Registry
	out  io.Writer
	opts options
}

func main() {
	var opts options

	klog.InitFlags(nil)

	flag.StringVar(&opts.configFile, "config", config.DefaultFile, "Path to the configuration file")
	flag.StringVar(&opts.prefix, "prefix", "", "Prefix for sysfs and devfs paths")
	flag.StringVar(&opts.device, "d", "", "PCI address of the card (bb:dd.f)")
	flag.StringVar(&opts.output, "o", "text", "Output format: text, yaml or prometheus")
	flag.StringVar(&opts.image, "i", "", "Path to the PDI image")
	flag.UintVar(&opts.partition, "p", 0, "Flash partition")
	flag.UintVar(&opts.src, "src", 0, "Source partition for copy")
	flag.UintVar(&opts.dst, "dst", 1, "Destination partition for copy")
	flag.BoolVar(&opts.elevated, "elevated", false, "Request elevated driver access")
	flag.BoolVar(&opts.atomic, "atomic", false, "Read sensor value and status in one driver call")
	flag.BoolVar(&opts.noProgress, "no-progress", false, "Don't draw a progress bar")

	flag.Parse()

	if flag.NArg() < 1 {
		klog.Fatal("Please provide command: ", commands)
	}

	cmd := flag.Arg(0)
	if err := validateFlags(cmd, &opts); err != nil {
		klog.Fatalf("Invalid arguments: %+v", err)
	}

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		klog.Fatalf("%+v", err)
	}

	if opts.prefix != "" {
		cfg = cfg.WithPrefix(opts.prefix)
	}

	t := &tool{
		reg:  fpga.NewRegistry(cfg),
		out:  os.Stdout,
		opts: opts,
	}

	var rec errdefs.Recorder
	if rec.Record(t.run(cmd)) != nil {
		klog.V(1).Infof("%+v", rec.Last())
		fmt.Fprintf(os.Stderr, "%s: %s\n", cmd, rec.String())
		klog.Flush()
		os.Exit(exitCode(errdefs.KindOf(rec.Last())))
	}

	klog.Flush()
}

// exitCode maps a failure kind to the process exit status.
func exitCode(kind errdefs.Kind) int {
	switch kind {
	case errdefs.InvalidArgument:
		return 2
	case errdefs.NotFound:
		return 3
	case errdefs.VersionMismatch:
		return 4
	}

	return 1
}

func validateFlags(cmd string, opts *options) error {
	switch opts.output {
	case "text", "yaml", "prometheus":
	default:
		return errors.Errorf("unknown output format %q", opts.output)
	}

	switch cmd {
	case "version", "list":
		return nil
	case "info", "sensors", "reload", "hotreset", "fpt", "copy", "boot":
		if opts.device == "" {
			return errors.New("device address is missing")
		}
	case "program", "fptupdate":
		if opts.device == "" {
			return errors.New("device address is missing")
		}

		if opts.image == "" {
			return errors.New("image filename is missing")
		}
	default:
		return errors.Errorf("unknown command %q, expected one of: %s", cmd, commands)
	}

	if _, err := bdf.ParseStrict(opts.device); err != nil {
		return err
	}

	if opts.output == "prometheus" && cmd != "sensors" {
		return errors.Errorf("prometheus output is only supported by sensors")
	}

	return nil
}

func (t *tool) run(cmd string) error {
	switch cmd {
	case "version":
		return t.version()
	case "list":
		return t.list()
	}

	dev, err := t.open()
	if err != nil {
		return err
	}

	// Reset commands replace the handle; dev is deleted by them.
	switch cmd {
	case "reload":
		return t.reset(fpga.NewResetter(t.reg).Reload(dev, ""))
	case "hotreset":
		return t.reset(fpga.NewResetter(t.reg).HotReset(dev))
	case "boot":
		return t.boot(dev)
	}

	defer dev.Delete()

	switch cmd {
	case "info":
		return t.info(dev)
	case "sensors":
		return t.sensors(dev)
	case "program":
		return t.finishProgress(program.DownloadImage(dev, t.opts.image, uint32(t.opts.partition), t.progress()))
	case "fptupdate":
		return t.finishProgress(program.UpdateFPT(dev, t.opts.image, t.progress()))
	case "fpt":
		return t.fpt(dev)
	case "copy":
		return t.finishProgress(program.CopyPartition(dev, uint32(t.opts.src), uint32(t.opts.dst), t.progress()))
	}

	return errors.Errorf("unknown command %q", cmd)
}

func (t *tool) open() (*fpga.Device, error) {
	id, err := bdf.ParseStrict(t.opts.device)
	if err != nil {
		return nil, err
	}

	dev, err := t.reg.Find(id)
	if err != nil {
		return nil, err
	}

	if t.opts.elevated {
		dev.RequestElevatedAccess()
	}

	return dev, nil
}

func (t *tool) progress() program.ProgressFunc {
	if t.opts.noProgress {
		return nil
	}

	return program.NewProgressBar(os.Stderr)
}

func (t *tool) finishProgress(err error) error {
	if !t.opts.noProgress {
		fmt.Fprintln(os.Stderr)
	}

	if err == nil {
		fmt.Fprintln(t.out, "done")
	}

	return err
}

func (t *tool) print(v interface{}, text func(w io.Writer)) error {
	if t.opts.output == "yaml" {
		data, err := yaml.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "can't marshal output")
		}

		_, err = t.out.Write(data)

		return err
	}

	text(t.out)

	return nil
}

func (t *tool) version() error {
	v, err := t.reg.DriverVersion()
	if err != nil {
		return err
	}

	report := map[string]string{
		"driver": v.String(),
		"api":    fpga.APIVersion.String(),
	}

	return t.print(report, func(w io.Writer) {
		fmt.Fprintf(w, "Driver version : %s\n", v)
		fmt.Fprintf(w, "API version    : %s\n", fpga.APIVersion)

		if !v.Compatible() {
			fmt.Fprintln(w, "Driver is not compatible")
		}
	})
}

func (t *tool) list() error {
	devs, err := t.reg.List()
	if err != nil {
		return err
	}

	defer func() {
		for _, d := range devs {
			d.Delete()
		}
	}()

	var infos []*fpga.Info

	for _, d := range devs {
		info, err := d.Info()
		if err != nil {
			return err
		}

		infos = append(infos, info)
	}

	return t.print(infos, func(w io.Writer) {
		for _, info := range infos {
			fmt.Fprintf(w, "%s  %s  %s:%s  %s\n", info.BDF, info.DevNode, info.Vendor, info.Device, info.Name)
		}
	})
}

func (t *tool) info(dev *fpga.Device) error {
	info, err := dev.Info()
	if err != nil {
		return err
	}

	return t.print(info, func(w io.Writer) {
		fmt.Fprintf(w, "BDF            : %s\n", info.BDF)
		fmt.Fprintf(w, "Device node    : %s\n", info.DevNode)
		fmt.Fprintf(w, "Driver         : %s\n", info.Driver)
		fmt.Fprintf(w, "Name           : %s\n", info.Name)
		fmt.Fprintf(w, "Vendor/Device  : %s/%s\n", info.Vendor, info.Device)
		fmt.Fprintf(w, "Logic UUID     : %s\n", info.LogicUUID)
		fmt.Fprintf(w, "State          : %s\n", info.State)
		fmt.Fprintf(w, "AMC version    : %s\n", info.AMCVersion)
		fmt.Fprintf(w, "NUMA node      : %s\n", info.NUMANode)
		fmt.Fprintf(w, "CPUs           : %s\n", info.CPUs)
		fmt.Fprintf(w, "Link speed     : %s (max %s)\n", info.LinkSpeed, info.LinkSpeedMax)
		fmt.Fprintf(w, "Link width     : %s (max %s)\n", info.LinkWidth, info.LinkWidthMax)
	})
}

func (t *tool) fpt(dev *fpga.Device) error {
	fpt, err := program.ReadFPT(dev)
	if err != nil {
		return err
	}

	return t.print(fpt, func(w io.Writer) {
		fmt.Fprintf(w, "FPT version %d, %d partitions\n", fpt.Header.Version, fpt.Header.NumEntries)

		for _, p := range fpt.Partitions {
			fmt.Fprintf(w, "  %2d  type %#04x  base %#010x  size %#010x\n", p.Index, p.Type, p.BaseAddr, p.Size)
		}
	})
}

func (t *tool) boot(dev *fpga.Device) error {
	nd, err := program.SetBootPartition[*fpga.Device](fpga.NewResetter(t.reg), dev, uint32(t.opts.partition))
	if err != nil && nd == nil {
		// The handle survives a refused boot selection.
		dev.Delete()
	}

	return t.reset(nd, err)
}

func (t *tool) reset(dev *fpga.Device, err error) error {
	if err != nil {
		return err
	}
	defer dev.Delete()

	fmt.Fprintf(t.out, "%s is back as %s\n", dev.BDF(), dev.DevNode())

	return nil
}
