package uapi

import (
	"encoding/binary"
)

// Marshal converts a request struct to bytes using the system's native byte
// order. Packed C records are written field by field so the padding Go would
// insert never reaches the kernel.
func Marshal(v interface{}) []byte {
	switch val := v.(type) {
	case *ZoneGetReport:
		return marshalGetReport(val, true)
	case *ZoneAction:
		return marshalZoneAction(val)
	case *BlkZoneReport:
		return marshalBlkZoneReport(val)
	case *BlkZoneRange:
		return marshalBlkZoneRange(val)
	default:
		return nil
	}
}

// Unmarshal converts native-order bytes back to a request struct
func Unmarshal(data []byte, v interface{}) error {
	switch val := v.(type) {
	case *ZoneGetReport:
		return unmarshalGetReport(data, val)
	case *ZoneAction:
		return unmarshalZoneAction(data, val)
	case *BlkZoneReport:
		return unmarshalBlkZoneReport(data, val)
	case *BlkZoneRange:
		return unmarshalBlkZoneRange(data, val)
	default:
		return ErrInvalidType
	}
}

// MarshalGetReport writes a legacy report request. withFUA selects the
// 14-byte revision that carries the force_unit_access byte.
func MarshalGetReport(req *ZoneGetReport, withFUA bool) []byte {
	return marshalGetReport(req, withFUA)
}

func marshalGetReport(req *ZoneGetReport, withFUA bool) []byte {
	size := ZoneGetReportSize
	if withFUA {
		size = ZoneGetReportFUASize
	}
	buf := make([]byte, size)

	binary.NativeEndian.PutUint64(buf[0:8], req.ZoneLocatorLBA)
	binary.NativeEndian.PutUint32(buf[8:12], req.ReturnPageCount)
	buf[12] = req.ReportOption
	if withFUA {
		buf[13] = req.ForceUnitAccess
	}

	return buf
}

func unmarshalGetReport(data []byte, req *ZoneGetReport) error {
	if len(data) < ZoneGetReportSize {
		return ErrInsufficientData
	}

	req.ZoneLocatorLBA = binary.NativeEndian.Uint64(data[0:8])
	req.ReturnPageCount = binary.NativeEndian.Uint32(data[8:12])
	req.ReportOption = data[12]
	if len(data) >= ZoneGetReportFUASize {
		req.ForceUnitAccess = data[13]
	}

	return nil
}

func marshalZoneAction(act *ZoneAction) []byte {
	buf := make([]byte, ZoneActionSize)

	binary.NativeEndian.PutUint64(buf[0:8], act.ZoneLocatorLBA)
	binary.NativeEndian.PutUint32(buf[8:12], act.Action)
	buf[12] = act.AllZones
	buf[13] = act.ForceUnitAccess

	return buf
}

func unmarshalZoneAction(data []byte, act *ZoneAction) error {
	if len(data) < ZoneActionSize {
		return ErrInsufficientData
	}

	act.ZoneLocatorLBA = binary.NativeEndian.Uint64(data[0:8])
	act.Action = binary.NativeEndian.Uint32(data[8:12])
	act.AllZones = data[12]
	act.ForceUnitAccess = data[13]

	return nil
}

func marshalBlkZoneReport(rep *BlkZoneReport) []byte {
	buf := make([]byte, BlkZoneReportHeaderSize)
	PutBlkZoneReport(buf, rep)
	return buf
}

func unmarshalBlkZoneReport(data []byte, rep *BlkZoneReport) error {
	if len(data) < BlkZoneReportHeaderSize {
		return ErrInsufficientData
	}

	rep.Sector = binary.NativeEndian.Uint64(data[0:8])
	rep.NrZones = binary.NativeEndian.Uint32(data[8:12])
	rep.Flags = binary.NativeEndian.Uint32(data[12:16])

	return nil
}

// PutBlkZoneReport writes a mainline report header into the start of buf
func PutBlkZoneReport(buf []byte, rep *BlkZoneReport) {
	binary.NativeEndian.PutUint64(buf[0:8], rep.Sector)
	binary.NativeEndian.PutUint32(buf[8:12], rep.NrZones)
	binary.NativeEndian.PutUint32(buf[12:16], rep.Flags)
}

func marshalBlkZoneRange(r *BlkZoneRange) []byte {
	buf := make([]byte, BlkZoneRangeSize)

	binary.NativeEndian.PutUint64(buf[0:8], r.Sector)
	binary.NativeEndian.PutUint64(buf[8:16], r.NrSectors)

	return buf
}

func unmarshalBlkZoneRange(data []byte, r *BlkZoneRange) error {
	if len(data) < BlkZoneRangeSize {
		return ErrInsufficientData
	}

	r.Sector = binary.NativeEndian.Uint64(data[0:8])
	r.NrSectors = binary.NativeEndian.Uint64(data[8:16])

	return nil
}

// ParseZoneReport reads a legacy report header with the given byte order
func ParseZoneReport(data []byte, order binary.ByteOrder) (*ZoneReport, error) {
	if len(data) < ZoneReportHeaderSize {
		return nil, ErrInsufficientData
	}

	rep := &ZoneReport{}
	rep.DescriptorCount = order.Uint32(data[0:4])
	rep.SameField = data[4]
	copy(rep.Reserved1[:], data[5:8])
	rep.MaximumLBA = order.Uint64(data[8:16])
	copy(rep.Reserved2[:], data[16:64])

	return rep, nil
}

// PutZoneReport writes a legacy report header with the given byte order
func PutZoneReport(buf []byte, rep *ZoneReport, order binary.ByteOrder) {
	order.PutUint32(buf[0:4], rep.DescriptorCount)
	buf[4] = rep.SameField
	copy(buf[5:8], rep.Reserved1[:])
	order.PutUint64(buf[8:16], rep.MaximumLBA)
	copy(buf[16:64], rep.Reserved2[:])
}

// ParseZoneDescriptor reads one legacy descriptor with the given byte order
func ParseZoneDescriptor(data []byte, order binary.ByteOrder) (*ZoneDescriptor, error) {
	if len(data) < ZoneDescriptorSize {
		return nil, ErrInsufficientData
	}

	d := &ZoneDescriptor{}
	d.Type = data[0]
	d.Flags = data[1]
	copy(d.Reserved1[:], data[2:8])
	d.Length = order.Uint64(data[8:16])
	d.LBAStart = order.Uint64(data[16:24])
	d.LBAWptr = order.Uint64(data[24:32])
	copy(d.Reserved[:], data[32:64])

	return d, nil
}

// PutZoneDescriptor writes one legacy descriptor with the given byte order
func PutZoneDescriptor(buf []byte, d *ZoneDescriptor, order binary.ByteOrder) {
	buf[0] = d.Type
	buf[1] = d.Flags
	copy(buf[2:8], d.Reserved1[:])
	order.PutUint64(buf[8:16], d.Length)
	order.PutUint64(buf[16:24], d.LBAStart)
	order.PutUint64(buf[24:32], d.LBAWptr)
	copy(buf[32:64], d.Reserved[:])
}

// ParseBlkZone reads one mainline descriptor in native byte order
func ParseBlkZone(data []byte) (*BlkZone, error) {
	if len(data) < BlkZoneSize {
		return nil, ErrInsufficientData
	}

	z := &BlkZone{}
	z.Start = binary.NativeEndian.Uint64(data[0:8])
	z.Len = binary.NativeEndian.Uint64(data[8:16])
	z.WP = binary.NativeEndian.Uint64(data[16:24])
	z.Type = data[24]
	z.Cond = data[25]
	z.NonSeq = data[26]
	z.Reset = data[27]
	copy(z.Resv[:], data[28:32])
	z.Capacity = binary.NativeEndian.Uint64(data[32:40])
	copy(z.Reserved[:], data[40:64])

	return z, nil
}

// PutBlkZone writes one mainline descriptor in native byte order
func PutBlkZone(buf []byte, z *BlkZone) {
	binary.NativeEndian.PutUint64(buf[0:8], z.Start)
	binary.NativeEndian.PutUint64(buf[8:16], z.Len)
	binary.NativeEndian.PutUint64(buf[16:24], z.WP)
	buf[24] = z.Type
	buf[25] = z.Cond
	buf[26] = z.NonSeq
	buf[27] = z.Reset
	copy(buf[28:32], z.Resv[:])
	binary.NativeEndian.PutUint64(buf[32:40], z.Capacity)
	copy(buf[40:64], z.Reserved[:])
}

// Error definitions
type MarshalError string

func (e MarshalError) Error() string {
	return string(e)
}

const (
	ErrInsufficientData MarshalError = "insufficient data for unmarshaling"
	ErrInvalidType      MarshalError = "invalid type for marshaling"
)
