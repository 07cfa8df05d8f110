package uapi

import (
	"fmt"
	"unsafe"
)

// ZoneGetReport is the legacy BLKREPORT request. It is packed in C and
// overlays the start of the report buffer.
//
//	struct bdev_zone_get_report {
//	  __u64 zone_locator_lba;   // starting lba for first zone
//	  __u32 return_page_count;  // number of *bytes* allocated for result
//	  __u8  report_option;      // see zone_report_option
//	  __u8  force_unit_access;  // newer revision only
//	} __packed;
type ZoneGetReport struct {
	ZoneLocatorLBA  uint64
	ReturnPageCount uint32
	ReportOption    uint8
	ForceUnitAccess uint8
}

// ZoneReport is the 64-byte header of a legacy report response
type ZoneReport struct {
	DescriptorCount uint32    // number of descriptors that follow
	SameField       uint8     // bits 0-3: same code
	Reserved1       [3]uint8  // padding
	MaximumLBA      uint64    // last LBA of the device
	Reserved2       [48]uint8 // padding
}

// Compile-time size check
var _ [ZoneReportHeaderSize]byte = [unsafe.Sizeof(ZoneReport{})]byte{}

// ZoneDescriptor is one legacy report descriptor (64 bytes, big-endian on
// the wire by definition)
type ZoneDescriptor struct {
	Type      uint8     // low nibble: zone type
	Flags     uint8     // bit 0 reset, bit 1 non-seq, bits 4-7 condition
	Reserved1 [6]uint8  // padding
	Length    uint64    // zone length in sectors
	LBAStart  uint64    // first lba of the zone
	LBAWptr   uint64    // write pointer lba
	Reserved  [32]uint8 // padding
}

// Compile-time size check
var _ [ZoneDescriptorSize]byte = [unsafe.Sizeof(ZoneDescriptor{})]byte{}

// Condition extracts the zone condition from Flags
func (d *ZoneDescriptor) Condition() uint8 {
	return (d.Flags & ZFLAG_COND_MASK) >> ZFLAG_COND_SHIFT
}

// BlkZoneReport is the mainline BLKREPORTZONE header
//
//	struct blk_zone_report {
//	  __u64 sector;
//	  __u32 nr_zones;
//	  __u32 flags;
//	  struct blk_zone zones[0];
//	};
type BlkZoneReport struct {
	Sector  uint64
	NrZones uint32
	Flags   uint32
}

// Compile-time size check
var _ [BlkZoneReportHeaderSize]byte = [unsafe.Sizeof(BlkZoneReport{})]byte{}

// BlkZone is the mainline zone descriptor (native byte order)
type BlkZone struct {
	Start    uint64    // zone start sector
	Len      uint64    // zone length in sectors
	WP       uint64    // write pointer sector
	Type     uint8     // zone type
	Cond     uint8     // zone condition
	NonSeq   uint8     // non-sequential write resources active
	Reset    uint8     // reset write pointer recommended
	Resv     [4]uint8  // padding
	Capacity uint64    // writable sectors, valid with BLK_ZONE_REP_CAPACITY
	Reserved [24]uint8 // padding
}

// Compile-time size check
var _ [BlkZoneSize]byte = [unsafe.Sizeof(BlkZone{})]byte{}

// ZoneAction is the structured legacy action request (packed, 14 bytes)
//
//	struct bdev_zone_action {
//	  __u64 zone_locator_lba;
//	  __u32 action;
//	  __u8  all_zones;
//	  __u8  force_unit_access;
//	} __packed;
type ZoneAction struct {
	ZoneLocatorLBA  uint64
	Action          uint32
	AllZones        uint8
	ForceUnitAccess uint8
}

// BlkZoneRange is the mainline range request used by the reset, open,
// close and finish ioctls
type BlkZoneRange struct {
	Sector    uint64
	NrSectors uint64
}

// Compile-time size check
var _ [BlkZoneRangeSize]byte = [unsafe.Sizeof(BlkZoneRange{})]byte{}

// Command is a single device-channel exchange: an encoded ioctl number, the
// direction of the exchange and either an in/out buffer or a scalar argument.
type Command struct {
	Op   uint32    // encoded ioctl request number
	Dir  Direction // direction of Buf
	Buf  []byte    // request buffer; the response is written in place
	Arg  uint64    // scalar argument when Buf is nil
	Name string    // symbolic name used in logs and errors
}

// HasBuffer reports whether the command carries a buffer argument
func (c *Command) HasBuffer() bool {
	return c.Buf != nil
}

func (c *Command) String() string {
	if c.HasBuffer() {
		return fmt.Sprintf("%s(0x%08x, %s, %d bytes)", c.Name, c.Op, c.Dir, len(c.Buf))
	}
	return fmt.Sprintf("%s(0x%08x, arg=0x%x)", c.Name, c.Op, c.Arg)
}

// Device file paths
const (
	SysBlockRoot = "/sys/block"
)

// SysBlockPath returns the sysfs directory of a whole disk
func SysBlockPath(root, disk string) string {
	if root == "" {
		root = SysBlockRoot
	}
	return root + "/" + disk
}
