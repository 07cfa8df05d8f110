package report

import (
	"encoding/binary"
	"fmt"

	"github.com/ehrlich-b/go-zoned/internal/uapi"
)

// canonicalZoneLengths are zone sizes, in sectors, seen on real host-managed
// and host-aware drives: 256 MiB, 512 MiB, 1 GiB, 1.5 GiB, 2 GiB and 4 GiB.
var canonicalZoneLengths = map[uint64]struct{}{
	0x080000: {},
	0x100000: {},
	0x200000: {},
	0x300000: {},
	0x400000: {},
	0x800000: {},
}

// DetectByteOrder guesses the byte order of a legacy report response.
//
// The legacy format is big-endian by definition, but some HBA and driver
// combinations hand back native little-endian data. The first descriptor's
// length is read as big-endian; if it is one of the canonical zone sizes the
// response is big-endian, otherwise it is taken as little-endian. This is a
// heuristic matched to observed hardware, not a protocol rule.
func DetectByteOrder(buf []byte) binary.ByteOrder {
	off := uapi.ZoneReportHeaderSize + 8
	if len(buf) < off+8 {
		return binary.LittleEndian
	}
	if _, ok := canonicalZoneLengths[binary.BigEndian.Uint64(buf[off:off+8])]; ok {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Header is the response metadata
type Header struct {
	Variant   Variant
	ByteOrder binary.ByteOrder // byte order the descriptors were decoded with
	Stated    uint32           // descriptor count claimed by the device
	Fits      uint32           // descriptors the buffer capacity can hold
	Truncated bool             // Stated > Fits
	Same      Same             // variants A and B
	MaxLBA    uint64           // variants A and B, low 48 bits
	Sector    uint64           // variant C: echoed start sector
	Flags     uint32           // variant C: report flags
}

// BigEndian reports whether the descriptors were decoded as big-endian
func (h Header) BigEndian() bool {
	return h.ByteOrder == binary.BigEndian
}

// Limit is the number of descriptors the scanner will look at
func (h Header) Limit() uint32 {
	if h.Stated < h.Fits {
		return h.Stated
	}
	return h.Fits
}

// Scanner walks the descriptors of a response buffer once. It stops at the
// first zero-length descriptor, after Header.Limit() descriptors, or at the
// first malformed descriptor.
type Scanner struct {
	hdr   Header
	buf   []byte
	next  uint32
	zone  Descriptor
	err   error
	done  bool
	count int
}

// Decode parses the response header and returns a scanner over its
// descriptors. capacity is the size of the buffer handed to the device; the
// scanner never reads past it. Legacy variants have their byte order
// detected with DetectByteOrder.
func Decode(v Variant, buf []byte, capacity int) (*Scanner, error) {
	return DecodeWithOrder(v, buf, capacity, nil)
}

// DecodeWithOrder is Decode with an explicit byte order for legacy
// variants; a nil order means detect. The order is ignored for variant C.
func DecodeWithOrder(v Variant, buf []byte, capacity int, order binary.ByteOrder) (*Scanner, error) {
	if !v.Legacy() && v != VariantC {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariant, int(v))
	}
	if capacity > len(buf) {
		return nil, fmt.Errorf("%w: capacity %d exceeds buffer of %d bytes", ErrShortBuffer, capacity, len(buf))
	}
	if capacity < v.HeaderSize() {
		return nil, fmt.Errorf("%w: %d bytes, header needs %d", ErrShortBuffer, capacity, v.HeaderSize())
	}

	buf = buf[:capacity]
	hdr := Header{
		Variant: v,
		Fits:    uint32(v.Fits(capacity)),
	}

	if v.Legacy() {
		if order == nil {
			order = DetectByteOrder(buf)
		}
		rep, err := uapi.ParseZoneReport(buf, order)
		if err != nil {
			return nil, err
		}
		hdr.ByteOrder = order
		hdr.Stated = rep.DescriptorCount
		hdr.Same = Same(rep.SameField & 0x0f)
		hdr.MaxLBA = rep.MaximumLBA & (^uint64(0) >> 16)
	} else {
		var rep uapi.BlkZoneReport
		if err := uapi.Unmarshal(buf, &rep); err != nil {
			return nil, err
		}
		hdr.ByteOrder = binary.NativeEndian
		hdr.Stated = rep.NrZones
		hdr.Sector = rep.Sector
		hdr.Flags = rep.Flags
	}
	hdr.Truncated = hdr.Stated > hdr.Fits

	return &Scanner{hdr: hdr, buf: buf}, nil
}

// Header returns the response metadata
func (s *Scanner) Header() Header {
	return s.hdr
}

// Next advances to the next descriptor
func (s *Scanner) Next() bool {
	if s.done {
		return false
	}
	if s.next >= s.hdr.Limit() {
		s.done = true
		return false
	}

	off := s.hdr.Variant.HeaderSize() + int(s.next)*s.hdr.Variant.DescriptorSize()
	raw := s.buf[off : off+s.hdr.Variant.DescriptorSize()]
	s.next++

	var d Descriptor
	if s.hdr.Variant.Legacy() {
		d = s.legacy(raw)
	} else {
		d = s.mainline(raw)
	}

	if d.Length == 0 {
		s.done = true
		return false
	}
	if err := d.Validate(); err != nil {
		s.err = fmt.Errorf("descriptor %d: %w", s.next-1, err)
		s.done = true
		return false
	}

	s.zone = d
	s.count++
	return true
}

func (s *Scanner) legacy(raw []byte) Descriptor {
	e, _ := uapi.ParseZoneDescriptor(raw, s.hdr.ByteOrder)
	return Descriptor{
		Type:                  ZoneType(e.Type & 0x0f),
		Condition:             Condition(e.Condition()),
		Start:                 e.LBAStart,
		Length:                e.Length,
		WritePointer:          e.LBAWptr,
		Capacity:              e.Length,
		ResetRecommended:      e.Flags&uapi.ZFLAG_RESET_RECOMMENDED != 0,
		NonSeqResourcesActive: e.Flags&uapi.ZFLAG_NON_SEQ != 0,
	}
}

func (s *Scanner) mainline(raw []byte) Descriptor {
	z, _ := uapi.ParseBlkZone(raw)
	d := Descriptor{
		Type:                  ZoneType(z.Type),
		Condition:             Condition(z.Cond),
		Start:                 z.Start,
		Length:                z.Len,
		WritePointer:          z.WP,
		Capacity:              z.Len,
		ResetRecommended:      z.Reset != 0,
		NonSeqResourcesActive: z.NonSeq != 0,
	}
	if s.hdr.Flags&uapi.BLK_ZONE_REP_CAPACITY != 0 {
		d.Capacity = z.Capacity
	}
	return d
}

// Zone returns the descriptor found by the last successful Next
func (s *Scanner) Zone() Descriptor {
	return s.zone
}

// Err returns the error that stopped the scan, if any
func (s *Scanner) Err() error {
	return s.err
}

// Count is the number of descriptors produced so far
func (s *Scanner) Count() int {
	return s.count
}

// All drains the scanner
func (s *Scanner) All() ([]Descriptor, error) {
	zones := make([]Descriptor, 0, s.hdr.Limit())
	for s.Next() {
		zones = append(zones, s.Zone())
	}
	return zones, s.Err()
}
