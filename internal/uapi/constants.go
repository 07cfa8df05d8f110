// Package uapi provides the Linux block-layer UAPI definitions used by zoned
// block device tooling: ioctl numbers and the binary records exchanged with
// the kernel across the historical zone interfaces.
package uapi

// Block ioctl type ("magic") shared by every BLK* command
const BLK_IOCTL_TYPE = 0x12

// Legacy zone report options (report_option byte of BLKREPORT)
const (
	ZOPT_NON_SEQ_AND_RESET = 0x00
	ZOPT_ZC1_EMPTY         = 0x01
	ZOPT_ZC2_OPEN_IMPLICIT = 0x02
	ZOPT_ZC3_OPEN_EXPLICIT = 0x03
	ZOPT_ZC4_CLOSED        = 0x04
	ZOPT_ZC5_FULL          = 0x05
	ZOPT_ZC6_READ_ONLY     = 0x06
	ZOPT_ZC7_OFFLINE       = 0x07
	ZOPT_RESET             = 0x10
	ZOPT_NON_SEQ           = 0x11
	ZOPT_NON_WP_ZONES      = 0x3f
	ZOPT_RESERVED          = 0x40 // rejected by devices
	ZOPT_USE_ATA_PASS      = 0x80 // kernel-side flag, not a filter
)

// Zone types as reported in descriptors (all variants)
const (
	ZTYP_RESERVED            = 0
	ZTYP_CONVENTIONAL        = 1
	ZTYP_SEQ_WRITE_REQUIRED  = 2
	ZTYP_SEQ_WRITE_PREFERRED = 3
)

// Zone conditions as reported in descriptors (all variants).
// 0x5 to 0xC are reserved.
const (
	ZCOND_NOT_WP            = 0x0
	ZCOND_ZC1_EMPTY         = 0x1
	ZCOND_ZC2_OPEN_IMPLICIT = 0x2
	ZCOND_ZC3_OPEN_EXPLICIT = 0x3
	ZCOND_ZC4_CLOSED        = 0x4
	ZCOND_ZC6_READ_ONLY     = 0xd
	ZCOND_ZC5_FULL          = 0xe
	ZCOND_ZC7_OFFLINE       = 0xf
)

// Report "same" codes (low nibble of same_field)
const (
	ZS_ALL_DIFFERENT       = 0
	ZS_ALL_SAME            = 1
	ZS_LAST_DIFFERS        = 2
	ZS_SAME_LEN_DIFF_TYPES = 3
)

// Legacy descriptor flag bits
const (
	ZFLAG_RESET_RECOMMENDED = 0x01
	ZFLAG_NON_SEQ           = 0x02
	ZFLAG_COND_SHIFT        = 4
	ZFLAG_COND_MASK         = 0xf0
)

// Structured zone action codes (ZBC service actions)
const (
	ZONE_ACTION_CLOSE  = 0x01
	ZONE_ACTION_FINISH = 0x02
	ZONE_ACTION_OPEN   = 0x03
	ZONE_ACTION_RESET  = 0x04
)

// blk_zone_report flags
const (
	BLK_ZONE_REP_CAPACITY = 1 << 0
)

// Record sizes
const (
	ZoneReportHeaderSize    = 64 // struct bdev_zone_report
	ZoneDescriptorSize      = 64 // struct bdev_zone_descriptor
	ZoneGetReportSize       = 13 // struct bdev_zone_get_report (packed)
	ZoneGetReportFUASize    = 14 // struct bdev_zone_get_report with force_unit_access
	BlkZoneReportHeaderSize = 16 // struct blk_zone_report
	BlkZoneSize             = 64 // struct blk_zone
	ZoneActionSize          = 14 // struct bdev_zone_action (packed)
	BlkZoneRangeSize        = 16 // struct blk_zone_range
	ZoneReportIOSize        = ZoneReportHeaderSize
	SectorShift             = 9
	SectorSize              = 1 << SectorShift
)

// ioctl encoding constants
const (
	_IOC_NONE      = 0
	_IOC_WRITE     = 1
	_IOC_READ      = 2
	_IOC_SIZEBITS  = 14
	_IOC_DIRBITS   = 2
	_IOC_TYPEBITS  = 8
	_IOC_NRBITS    = 8
	_IOC_NRSHIFT   = 0
	_IOC_TYPESHIFT = _IOC_NRSHIFT + _IOC_NRBITS
	_IOC_SIZESHIFT = _IOC_TYPESHIFT + _IOC_TYPEBITS
	_IOC_DIRSHIFT  = _IOC_SIZESHIFT + _IOC_SIZEBITS
)

// IoctlEncode creates an ioctl command number
func IoctlEncode(dir, typ, nr, size uint32) uint32 {
	return (dir << _IOC_DIRSHIFT) |
		(size << _IOC_SIZESHIFT) |
		(typ << _IOC_TYPESHIFT) |
		(nr << _IOC_NRSHIFT)
}

// IoctlDir extracts the direction bits of an encoded ioctl number
func IoctlDir(cmd uint32) uint32 {
	return (cmd >> _IOC_DIRSHIFT) & ((1 << _IOC_DIRBITS) - 1)
}

// IoctlSize extracts the argument size of an encoded ioctl number
func IoctlSize(cmd uint32) uint32 {
	return (cmd >> _IOC_SIZESHIFT) & ((1 << _IOC_SIZEBITS) - 1)
}

// IoctlNr extracts the command number of an encoded ioctl number
func IoctlNr(cmd uint32) uint32 {
	return (cmd >> _IOC_NRSHIFT) & ((1 << _IOC_NRBITS) - 1)
}

func _IO(nr uint32) uint32 {
	return IoctlEncode(_IOC_NONE, BLK_IOCTL_TYPE, nr, 0)
}

func _IOW(nr, size uint32) uint32 {
	return IoctlEncode(_IOC_WRITE, BLK_IOCTL_TYPE, nr, size)
}

func _IOWR(nr, size uint32) uint32 {
	return IoctlEncode(_IOC_READ|_IOC_WRITE, BLK_IOCTL_TYPE, nr, size)
}

// Legacy (out-of-tree blkzoned_api.h) zone ioctls
var (
	BLKREPORT     = _IOWR(130, ZoneReportIOSize)
	BLKZONEACTION = _IOW(131, ZoneActionSize)

	// Opcode-per-action encoding; the zone LBA is the scalar argument.
	BLKOPENZONE_LEGACY   = _IO(131)
	BLKCLOSEZONE_LEGACY  = _IO(132)
	BLKRESETZONE_LEGACY  = _IO(133)
	BLKFINISHZONE_LEGACY = _IO(134)
)

// Mainline (linux/blkzoned.h) zone ioctls
var (
	BLKREPORTZONE = _IOWR(130, BlkZoneReportHeaderSize)
	BLKRESETZONE  = _IOW(131, BlkZoneRangeSize)
	BLKOPENZONE   = _IOW(134, BlkZoneRangeSize)
	BLKCLOSEZONE  = _IOW(135, BlkZoneRangeSize)
	BLKFINISHZONE = _IOW(136, BlkZoneRangeSize)
)

// Direction of a channel exchange, as seen from user space
type Direction uint8

const (
	DirNone Direction = iota
	DirWrite
	DirRead
	DirReadWrite
)

func (d Direction) String() string {
	switch d {
	case DirNone:
		return "none"
	case DirWrite:
		return "write"
	case DirRead:
		return "read"
	case DirReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

// DirectionOf derives the exchange direction from an encoded ioctl number
func DirectionOf(cmd uint32) Direction {
	switch IoctlDir(cmd) {
	case _IOC_WRITE:
		return DirWrite
	case _IOC_READ:
		return DirRead
	case _IOC_READ | _IOC_WRITE:
		return DirReadWrite
	default:
		return DirNone
	}
}
