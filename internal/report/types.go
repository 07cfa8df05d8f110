// Package report builds zone report requests and decodes zone report
// responses for the three historical report interfaces.
//
// Variant A and B are the out-of-tree BLKREPORT interface: a 64-byte header
// followed by 64-byte descriptors whose multi-byte fields are big-endian by
// definition. B differs from A only by a force_unit_access byte in the
// request. Variant C is mainline BLKREPORTZONE: a 16-byte header and native
// byte order descriptors with unpacked type/condition fields.
package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ehrlich-b/go-zoned/internal/constants"
	"github.com/ehrlich-b/go-zoned/internal/uapi"
)

var (
	ErrInvalidFilter     = errors.New("invalid report filter")
	ErrInvalidLength     = errors.New("invalid report buffer length")
	ErrUnsupported       = errors.New("option not supported by report variant")
	ErrShortBuffer       = errors.New("report buffer too small")
	ErrMalformedResponse = errors.New("malformed zone descriptor")
	ErrUnknownVariant    = errors.New("unknown report variant")
)

// Report buffer length policy, in bytes
const (
	MinLength = constants.MinReportLength
	MaxLength = constants.MaxReportLength
)

// Variant selects one of the historical report wire formats
type Variant int

const (
	VariantA Variant = iota // BLKREPORT
	VariantB                // BLKREPORT with force_unit_access
	VariantC                // BLKREPORTZONE
)

func (v Variant) String() string {
	switch v {
	case VariantA:
		return "a"
	case VariantB:
		return "b"
	case VariantC:
		return "c"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant accepts "a", "b" or "c" (case-insensitive)
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a":
		return VariantA, nil
	case "b":
		return VariantB, nil
	case "c":
		return VariantC, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

// Legacy reports whether the variant uses the BLKREPORT layout
func (v Variant) Legacy() bool {
	return v == VariantA || v == VariantB
}

// HeaderSize is the size of the response header
func (v Variant) HeaderSize() int {
	if v == VariantC {
		return uapi.BlkZoneReportHeaderSize
	}
	return uapi.ZoneReportHeaderSize
}

// DescriptorSize is the size of one response descriptor
func (v Variant) DescriptorSize() int {
	if v == VariantC {
		return uapi.BlkZoneSize
	}
	return uapi.ZoneDescriptorSize
}

// Fits returns how many descriptors a buffer of capacity bytes can hold
func (v Variant) Fits(capacity int) int {
	if capacity < v.HeaderSize() {
		return 0
	}
	return (capacity - v.HeaderSize()) / v.DescriptorSize()
}

// Filter is a report option selecting which zones the device reports
type Filter uint8

const (
	FilterAll              Filter = uapi.ZOPT_NON_SEQ_AND_RESET
	FilterEmpty            Filter = uapi.ZOPT_ZC1_EMPTY
	FilterImplicitOpen     Filter = uapi.ZOPT_ZC2_OPEN_IMPLICIT
	FilterExplicitOpen     Filter = uapi.ZOPT_ZC3_OPEN_EXPLICIT
	FilterClosed           Filter = uapi.ZOPT_ZC4_CLOSED
	FilterFull             Filter = uapi.ZOPT_ZC5_FULL
	FilterReadOnly         Filter = uapi.ZOPT_ZC6_READ_ONLY
	FilterOffline          Filter = uapi.ZOPT_ZC7_OFFLINE
	FilterResetRecommended Filter = uapi.ZOPT_RESET
	FilterNonSeq           Filter = uapi.ZOPT_NON_SEQ
	FilterNoWritePointer   Filter = uapi.ZOPT_NON_WP_ZONES
)

// ParseFilter validates a raw report option. Valid values are 0..7, 0x10,
// 0x11 and 0x3f. 0x40 is reserved; everything else is rejected.
func ParseFilter(v uint64) (Filter, error) {
	switch {
	case v <= uapi.ZOPT_ZC7_OFFLINE,
		v == uapi.ZOPT_RESET,
		v == uapi.ZOPT_NON_SEQ,
		v == uapi.ZOPT_NON_WP_ZONES:
		return Filter(v), nil
	case v == uapi.ZOPT_RESERVED:
		return 0, fmt.Errorf("%w: 0x%x is reserved", ErrInvalidFilter, v)
	default:
		return 0, fmt.Errorf("%w: 0x%x", ErrInvalidFilter, v)
	}
}

// Valid reports whether f is an accepted report option
func (f Filter) Valid() bool {
	_, err := ParseFilter(uint64(f))
	return err == nil
}

func (f Filter) String() string {
	switch f {
	case FilterAll:
		return "all"
	case FilterEmpty:
		return "empty"
	case FilterImplicitOpen:
		return "implicit-open"
	case FilterExplicitOpen:
		return "explicit-open"
	case FilterClosed:
		return "closed"
	case FilterFull:
		return "full"
	case FilterReadOnly:
		return "read-only"
	case FilterOffline:
		return "offline"
	case FilterResetRecommended:
		return "reset"
	case FilterNonSeq:
		return "non-seq"
	case FilterNoWritePointer:
		return "non-wp"
	default:
		return fmt.Sprintf("0x%02x", uint8(f))
	}
}

// ZoneType is the wire value of a descriptor's zone type
type ZoneType uint8

const (
	TypeReserved          ZoneType = uapi.ZTYP_RESERVED
	TypeConventional      ZoneType = uapi.ZTYP_CONVENTIONAL
	TypeSeqWriteRequired  ZoneType = uapi.ZTYP_SEQ_WRITE_REQUIRED
	TypeSeqWritePreferred ZoneType = uapi.ZTYP_SEQ_WRITE_PREFERRED
)

var typeNames = [...]string{
	"RESERVED",
	"CONVENTIONAL",
	"SEQ_WRITE_REQUIRED",
	"SEQ_WRITE_PREFERRED",
}

func (t ZoneType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("TYPE_0x%x", uint8(t))
}

// Condition is the wire value of a descriptor's zone condition. Values
// 0x5-0xC are reserved and are kept as-is.
type Condition uint8

const (
	CondNotWP        Condition = uapi.ZCOND_NOT_WP
	CondEmpty        Condition = uapi.ZCOND_ZC1_EMPTY
	CondImplicitOpen Condition = uapi.ZCOND_ZC2_OPEN_IMPLICIT
	CondExplicitOpen Condition = uapi.ZCOND_ZC3_OPEN_EXPLICIT
	CondClosed       Condition = uapi.ZCOND_ZC4_CLOSED
	CondReadOnly     Condition = uapi.ZCOND_ZC6_READ_ONLY
	CondFull         Condition = uapi.ZCOND_ZC5_FULL
	CondOffline      Condition = uapi.ZCOND_ZC7_OFFLINE
)

var condNames = [16]string{
	"cv", "e0", "Oi", "Oe", "Cl",
	"x5", "x6", "x7", "x8", "x9", "xA", "xB", "xC",
	"ro", "fu", "OL",
}

// Short returns the two-letter condition code
func (c Condition) Short() string {
	return condNames[c&0x0f]
}

func (c Condition) String() string {
	switch c {
	case CondNotWP:
		return "not-write-pointer"
	case CondEmpty:
		return "empty"
	case CondImplicitOpen:
		return "implicit-open"
	case CondExplicitOpen:
		return "explicit-open"
	case CondClosed:
		return "closed"
	case CondReadOnly:
		return "read-only"
	case CondFull:
		return "full"
	case CondOffline:
		return "offline"
	default:
		return fmt.Sprintf("reserved-0x%x", uint8(c))
	}
}

// Known reports whether c is one of the defined conditions
func (c Condition) Known() bool {
	return c <= CondClosed || (c >= CondReadOnly && c <= CondOffline)
}

// Open reports whether the zone is implicitly or explicitly open
func (c Condition) Open() bool {
	return c == CondImplicitOpen || c == CondExplicitOpen
}

// Same is the "same" code of a legacy report header
type Same uint8

var sameText = [...]string{
	"all zones are different",
	"all zones are same size",
	"last zone differs by size",
	"all zones same size - different types",
}

func (s Same) String() string {
	if int(s) < len(sameText) {
		return sameText[s]
	}
	return fmt.Sprintf("same code %d", uint8(s))
}

// Descriptor is one decoded zone
type Descriptor struct {
	Type                  ZoneType
	Condition             Condition
	Start                 uint64 // first sector of the zone
	Length                uint64 // zone length in sectors
	WritePointer          uint64 // meaningless when the zone has no write pointer
	Capacity              uint64 // writable sectors; equals Length unless reported
	ResetRecommended      bool
	NonSeqResourcesActive bool
}

// HasWritePointer reports whether WritePointer carries a meaningful value
func (d *Descriptor) HasWritePointer() bool {
	switch d.Condition {
	case CondEmpty, CondImplicitOpen, CondExplicitOpen, CondClosed, CondFull:
		return d.Type != TypeConventional
	default:
		return false
	}
}

// End returns the first sector after the zone
func (d *Descriptor) End() uint64 {
	return d.Start + d.Length
}

// Written returns the number of sectors written in the zone, or 0 when the
// zone has no write pointer.
func (d *Descriptor) Written() uint64 {
	if !d.HasWritePointer() || d.WritePointer < d.Start {
		return 0
	}
	return d.WritePointer - d.Start
}

// Validate checks the descriptor invariants: a write pointer never lies
// before the zone start.
func (d *Descriptor) Validate() error {
	if d.HasWritePointer() && d.WritePointer < d.Start {
		return fmt.Errorf("%w: zone 0x%x write pointer 0x%x before start",
			ErrMalformedResponse, d.Start, d.WritePointer)
	}
	return nil
}
