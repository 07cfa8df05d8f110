package action

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/ehrlich-b/go-zoned/internal/uapi"
)

var (
	// ErrUnknownZoneSize means the device did not report a zone size. Range
	// actions cannot be built without one.
	ErrUnknownZoneSize = errors.New("zone size unknown")

	ErrMisaligned  = errors.New("start not aligned")
	ErrOutOfRange  = errors.New("range beyond end of device")
	ErrInvalidSize = errors.New("zone size is not a power of two")
	ErrZeroCount   = errors.New("zone count must be at least 1")
)

// Geometry is what a range action needs to know about the device
type Geometry struct {
	ZoneSectors   uint64 // zone size in 512-byte sectors; 0 means unknown
	DeviceSectors uint64 // device size in 512-byte sectors
}

// GeometryFromBytes converts a byte size as returned by BLKGETSIZE64
func GeometryFromBytes(zoneSectors, deviceBytes uint64) Geometry {
	return Geometry{
		ZoneSectors:   zoneSectors,
		DeviceSectors: deviceBytes >> uapi.SectorShift,
	}
}

var rangeOpcodes = map[Action]struct {
	op   uint32
	name string
}{
	Open:   {uapi.BLKOPENZONE, "BLKOPENZONE"},
	Close:  {uapi.BLKCLOSEZONE, "BLKCLOSEZONE"},
	Reset:  {uapi.BLKRESETZONE, "BLKRESETZONE"},
	Finish: {uapi.BLKFINISHZONE, "BLKFINISHZONE"},
}

// BuildRange encodes an action over count zones starting at sector start.
//
// start must be zone aligned and inside the device. A range running past
// the end of the device is shortened only when the overshoot lies inside
// a smaller last zone; any other overshoot is rejected.
func BuildRange(a Action, start, count uint64, g Geometry) (*uapi.Command, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAction, uint32(a))
	}
	if g.ZoneSectors == 0 {
		return nil, ErrUnknownZoneSize
	}
	if bits.OnesCount64(g.ZoneSectors) != 1 {
		return nil, fmt.Errorf("%w: %d sectors", ErrInvalidSize, g.ZoneSectors)
	}
	if count == 0 {
		return nil, ErrZeroCount
	}
	if start&(g.ZoneSectors-1) != 0 {
		return nil, fmt.Errorf("%w: sector %d, zone size %d", ErrMisaligned, start, g.ZoneSectors)
	}
	if start >= g.DeviceSectors {
		return nil, fmt.Errorf("%w: sector %d, device has %d", ErrOutOfRange, start, g.DeviceSectors)
	}

	hi, n := bits.Mul64(count, g.ZoneSectors)
	end, carry := bits.Add64(start, n, 0)
	if hi != 0 || carry != 0 {
		return nil, fmt.Errorf("%w: %d zones from sector %d", ErrOutOfRange, count, start)
	}
	if end > g.DeviceSectors {
		// the last zone of the device may be a runt
		if end-g.DeviceSectors >= g.ZoneSectors {
			return nil, fmt.Errorf("%w: %d zones from sector %d, device has %d sectors",
				ErrOutOfRange, count, start, g.DeviceSectors)
		}
		n = g.DeviceSectors - start
	}

	oc := rangeOpcodes[a]
	return &uapi.Command{
		Op:   oc.op,
		Dir:  uapi.DirWrite,
		Buf:  uapi.Marshal(&uapi.BlkZoneRange{Sector: start, NrSectors: n}),
		Name: oc.name,
	}, nil
}

// CheckLBA validates a single-zone target against the device: the byte
// offset of lba must be aligned to the logical block size and lie inside
// the device.
func CheckLBA(lba uint64, logicalBlockSize uint32, deviceBytes uint64) error {
	if logicalBlockSize == 0 {
		return nil
	}
	off := lba << uapi.SectorShift
	if off>>uapi.SectorShift != lba || off >= deviceBytes {
		return fmt.Errorf("%w: lba 0x%x, device has %d bytes", ErrOutOfRange, lba, deviceBytes)
	}
	if off%uint64(logicalBlockSize) != 0 {
		return fmt.Errorf("%w: lba 0x%x, logical block size %d", ErrMisaligned, lba, logicalBlockSize)
	}
	return nil
}
