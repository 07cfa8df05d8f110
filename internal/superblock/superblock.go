// Package superblock decodes and validates the zoned device mapper (ZDM)
// superblock that marks a zoned device as managed by a zone-management layer.
//
// The record lives at byte 0 of the device and is little-endian on disk.
// Natural C alignment leaves two 4-byte holes (after version and after
// label); they are part of the checksummed region.
package superblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/google/uuid"
)

// Record geometry
const (
	Size      = 176  // sizeof(struct zdm_super_block)
	Offset    = 0    // byte offset on the device
	MinDevice = 4096 // smaller devices are never probed

	offCRC           = 0
	offReserved      = 4
	offMagic         = 8
	offUUID          = 24
	offVersion       = 40
	offSectStart     = 48
	offSectSize      = 56
	offMetadataZones = 64
	offOverProvision = 68
	offManagedBlocks = 72
	offDiscard       = 80
	offDiskType      = 84
	offZacZbc        = 88
	offLabel         = 92
	offDataStart     = 160
	offZoneSize      = 168

	LabelSize = 64
)

// Magic identifies a ZDM superblock; it sits at byte offset 8 of the record.
var Magic = [16]byte{
	0x7a, 0x6f, 0x6e, 0x65, 0x63, 0x44, 0x45, 0x56,
	0x82, 0x65, 0xf5, 0x7f, 0x48, 0xba, 0x6d, 0x81,
}

var (
	// ErrNotFound means the bytes do not hold a valid superblock. It is the
	// expected outcome on unmanaged devices.
	ErrNotFound = errors.New("zdm superblock not found")

	// ErrShortBuffer means the caller passed fewer than Size bytes.
	ErrShortBuffer = errors.New("buffer smaller than zdm superblock")
)

// Superblock is a decoded ZDM superblock
type Superblock struct {
	Checksum           uint32
	Reserved           uint32
	Magic              [16]byte
	UUID               uuid.UUID
	Version            Version
	SectorStart        uint64
	SectorSize         uint64
	MetadataZoneCount  uint32
	OverProvisionZones uint32
	ManagedBlockCount  uint64
	DiscardEnabled     uint32
	DiskType           uint32
	ZacZbcMode         uint32
	RawLabel           [LabelSize]byte
	DataStartZone      uint64
	ZoneSizeSectors    uint64

	// holes left by C alignment, kept so a re-encoded record checksums the same
	pad0 [4]byte
	pad1 [4]byte
}

// Version is the packed 0xMMMMmmpt version word
type Version uint32

func (v Version) Major() uint16 { return uint16(v >> 16) }
func (v Version) Minor() uint8  { return uint8(v >> 8) }
func (v Version) Patch() uint8  { return uint8(v>>4) & 0xf }
func (v Version) Type() uint8   { return uint8(v) & 0xf }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d-%d", v.Major(), v.Minor(), v.Patch(), v.Type())
}

// Label returns the label up to the first NUL; the on-disk field is not
// guaranteed to be terminated.
func (sb *Superblock) Label() string {
	if i := bytes.IndexByte(sb.RawLabel[:], 0); i >= 0 {
		return string(sb.RawLabel[:i])
	}
	return string(sb.RawLabel[:])
}

// SetLabel stores a label, truncating it to the field size
func (sb *Superblock) SetLabel(label string) {
	sb.RawLabel = [LabelSize]byte{}
	copy(sb.RawLabel[:], label)
}

// checksum computes the CRC-32 of the first Size bytes of data with the
// checksum field treated as zero. This is crc32(~0, data) ^ ~0 with the
// reflected IEEE polynomial. Callers check len(data) >= Size.
func checksum(data []byte) uint32 {
	var zero [4]byte
	h := crc32.NewIEEE()
	h.Write(zero[:])
	h.Write(data[offReserved:Size])
	return h.Sum32()
}

// Decode validates and parses a superblock. It returns ErrNotFound (wrapped)
// when the magic or the checksum does not match.
func Decode(data []byte) (*Superblock, error) {
	if len(data) < Size {
		return nil, fmt.Errorf("%w: %d < %d", ErrShortBuffer, len(data), Size)
	}

	if !bytes.Equal(data[offMagic:offMagic+16], Magic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrNotFound)
	}

	stored := binary.LittleEndian.Uint32(data[offCRC:])
	if calc := checksum(data); calc != stored {
		return nil, fmt.Errorf("%w: checksum 0x%08x, stored 0x%08x", ErrNotFound, calc, stored)
	}

	le := binary.LittleEndian
	sb := &Superblock{
		Checksum:           stored,
		Reserved:           le.Uint32(data[offReserved:]),
		Version:            Version(le.Uint32(data[offVersion:])),
		SectorStart:        le.Uint64(data[offSectStart:]),
		SectorSize:         le.Uint64(data[offSectSize:]),
		MetadataZoneCount:  le.Uint32(data[offMetadataZones:]),
		OverProvisionZones: le.Uint32(data[offOverProvision:]),
		ManagedBlockCount:  le.Uint64(data[offManagedBlocks:]),
		DiscardEnabled:     le.Uint32(data[offDiscard:]),
		DiskType:           le.Uint32(data[offDiskType:]),
		ZacZbcMode:         le.Uint32(data[offZacZbc:]),
		DataStartZone:      le.Uint64(data[offDataStart:]),
		ZoneSizeSectors:    le.Uint64(data[offZoneSize:]),
	}
	copy(sb.Magic[:], data[offMagic:offMagic+16])
	copy(sb.UUID[:], data[offUUID:offUUID+16])
	copy(sb.RawLabel[:], data[offLabel:offLabel+LabelSize])
	copy(sb.pad0[:], data[offVersion+4:offSectStart])
	copy(sb.pad1[:], data[offLabel+LabelSize:offDataStart])

	return sb, nil
}

// MarshalBinary encodes the record and fills in the checksum. An unset magic
// is replaced by Magic.
func (sb *Superblock) MarshalBinary() ([]byte, error) {
	buf := make([]byte, Size)
	le := binary.LittleEndian

	magic := sb.Magic
	if magic == ([16]byte{}) {
		magic = Magic
	}

	le.PutUint32(buf[offReserved:], sb.Reserved)
	copy(buf[offMagic:], magic[:])
	copy(buf[offUUID:], sb.UUID[:])
	le.PutUint32(buf[offVersion:], uint32(sb.Version))
	copy(buf[offVersion+4:], sb.pad0[:])
	le.PutUint64(buf[offSectStart:], sb.SectorStart)
	le.PutUint64(buf[offSectSize:], sb.SectorSize)
	le.PutUint32(buf[offMetadataZones:], sb.MetadataZoneCount)
	le.PutUint32(buf[offOverProvision:], sb.OverProvisionZones)
	le.PutUint64(buf[offManagedBlocks:], sb.ManagedBlockCount)
	le.PutUint32(buf[offDiscard:], sb.DiscardEnabled)
	le.PutUint32(buf[offDiskType:], sb.DiskType)
	le.PutUint32(buf[offZacZbc:], sb.ZacZbcMode)
	copy(buf[offLabel:], sb.RawLabel[:])
	copy(buf[offLabel+LabelSize:], sb.pad1[:])
	le.PutUint64(buf[offDataStart:], sb.DataStartZone)
	le.PutUint64(buf[offZoneSize:], sb.ZoneSizeSectors)

	le.PutUint32(buf[offCRC:], checksum(buf))
	return buf, nil
}

// Probe reads the superblock region of a device of the given size. Devices
// smaller than MinDevice and short reads at the end of the device are
// reported as ErrNotFound.
func Probe(r io.ReaderAt, size int64) (*Superblock, error) {
	if size >= 0 && size < MinDevice {
		return nil, fmt.Errorf("%w: device too small (%d bytes)", ErrNotFound, size)
	}

	buf := make([]byte, Size)
	n, err := r.ReadAt(buf, Offset)
	if n < Size {
		if err == nil || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: short read (%d bytes)", ErrNotFound, n)
		}
		return nil, fmt.Errorf("read superblock: %w", err)
	}

	return Decode(buf)
}
