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

//go:build linux
// +build linux

package linux

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux ioctl request encoding, see include/uapi/asm-generic/ioctl.h.
const (
	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	// Type character of the card management driver.
	iocMagic = 'a'
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<iocDirShift | iocMagic<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

func ioNone(nr uintptr) uintptr { return ioc(iocNone, nr, 0) }

func iow(nr uintptr) uintptr { return ioc(iocWrite, nr, ptrSize) }

func iowr(nr uintptr) uintptr { return ioc(iocRead|iocWrite, nr, ptrSize) }

const ptrSize = unsafe.Sizeof(uintptr(0))

// Request numbers of the driver. Payloads are passed by pointer, so the
// encoded size is the size of a pointer, matching the driver headers.
var (
	AMI_IOC_APP_REGISTER    = ioNone(0x00)
	AMI_IOC_APP_DEREGISTER  = ioNone(0x01)
	AMI_IOC_READ_BAR        = iowr(0x02)
	AMI_IOC_WRITE_BAR       = iow(0x03)
	AMI_IOC_GET_SENSOR      = iowr(0x04)
	AMI_IOC_SET_SENSOR_REFR = iow(0x05)
	AMI_IOC_DOWNLOAD_PDI    = iow(0x06)
	AMI_IOC_COPY_PARTITION  = iow(0x07)
	AMI_IOC_GET_FPT_HDR     = iowr(0x08)
	AMI_IOC_GET_FPT_PART    = iowr(0x09)
	AMI_IOC_DEVICE_BOOT     = iow(0x0a)
)

// Ioctl issues request on fd with a pointer argument.
func Ioctl(fd uintptr, request uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, request, uintptr(arg))
	if errno != 0 {
		return errno
	}

	return nil
}
