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

package linux

// Sensor types understood by AMI_IOC_GET_SENSOR.
const (
	SensorTypeTemp    uint32 = 0
	SensorTypeVoltage uint32 = 1
	SensorTypeCurrent uint32 = 2
	SensorTypePower   uint32 = 3
)

const (
	// NoEventFd is passed instead of an eventfd when no progress is wanted.
	NoEventFd int32 = -1
	// FptUpdateMagic as PDI partition means the image carries a new
	// flash partition table.
	FptUpdateMagic uint32 = 0xBEEF
	// SensorStatusLen is the size of the status string buffer.
	SensorStatusLen = 32
)

// BarPayload is used by AMI_IOC_READ_BAR and AMI_IOC_WRITE_BAR.
// Addr points to Num 32-bit words.
type BarPayload struct {
	Addr        uint64
	Offset      uint32
	Num         uint32
	Bar         uint8
	CapOverride uint8
	_           [6]byte
}

// SensorPayload is used by AMI_IOC_GET_SENSOR. Type and Channel are
// inputs; the driver fills the rest.
type SensorPayload struct {
	Type    uint32
	Channel uint32
	Value   int64
	Fresh   uint8
	_       [7]byte
	Status  [SensorStatusLen]byte
}

// RefreshPayload is used by AMI_IOC_SET_SENSOR_REFR.
type RefreshPayload struct {
	IntervalMs uint16
	_          [6]byte
}

// PDIPayload is used by AMI_IOC_DOWNLOAD_PDI.
type PDIPayload struct {
	Addr        uint64
	Size        uint32
	Partition   uint32
	EventFd     int32
	CapOverride uint8
	_           [3]byte
}

// CopyPayload is used by AMI_IOC_COPY_PARTITION.
type CopyPayload struct {
	Src         uint32
	Dst         uint32
	EventFd     int32
	CapOverride uint8
	_           [3]byte
}

// FptHeaderPayload is filled by AMI_IOC_GET_FPT_HDR.
type FptHeaderPayload struct {
	Version    uint8
	HeaderSize uint8
	EntrySize  uint8
	NumEntries uint8
}

// FptPartitionPayload is used by AMI_IOC_GET_FPT_PART. Index is the input.
type FptPartitionPayload struct {
	Index    uint32
	Type     uint32
	BaseAddr uint32
	Size     uint32
}

// BootPayload is used by AMI_IOC_DEVICE_BOOT.
type BootPayload struct {
	Partition uint32
}
