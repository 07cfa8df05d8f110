package report

import (
	"fmt"

	"github.com/ehrlich-b/go-zoned/internal/uapi"
)

// Request describes a zone report query
type Request struct {
	StartLBA       uint64 // zone locator: first sector to report from
	Capacity       uint32 // response buffer size in bytes
	Filter         Filter // report option (variants A and B)
	Force          bool   // force media access (variant B only)
	ATAPassthrough bool   // ask the kernel to use ATA pass-through (variants A and B)
}

// ValidateLength checks the response buffer length policy. Lengths are
// rejected, never rounded or clamped.
func ValidateLength(capacity uint32) error {
	if capacity < MinLength || capacity > MaxLength {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidLength, capacity, MinLength, MaxLength)
	}
	if capacity%uapi.SectorSize != 0 {
		return fmt.Errorf("%w: %d is not a multiple of %d", ErrInvalidLength, capacity, uapi.SectorSize)
	}
	return nil
}

// Build serializes a report request for the selected variant. The returned
// command owns a buffer of req.Capacity bytes with the request at its start;
// the device overwrites it with the response.
func Build(v Variant, req Request) (*uapi.Command, error) {
	if !req.Filter.Valid() {
		return nil, fmt.Errorf("%w: 0x%x", ErrInvalidFilter, uint8(req.Filter))
	}
	if err := ValidateLength(req.Capacity); err != nil {
		return nil, err
	}

	buf := make([]byte, req.Capacity)

	switch v {
	case VariantA, VariantB:
		if v == VariantA && req.Force {
			return nil, fmt.Errorf("%w: variant a has no force flag", ErrUnsupported)
		}

		in := &uapi.ZoneGetReport{
			ZoneLocatorLBA:  req.StartLBA,
			ReturnPageCount: req.Capacity,
			ReportOption:    uint8(req.Filter),
		}
		if req.ATAPassthrough {
			in.ReportOption |= uapi.ZOPT_USE_ATA_PASS
		}
		if req.Force {
			in.ForceUnitAccess = 1
		}
		copy(buf, uapi.MarshalGetReport(in, v == VariantB))

		return &uapi.Command{
			Op:   uapi.BLKREPORT,
			Dir:  uapi.DirReadWrite,
			Buf:  buf,
			Name: "BLKREPORT",
		}, nil

	case VariantC:
		if req.Filter != FilterAll {
			return nil, fmt.Errorf("%w: variant c reports all zones (filter %s)", ErrUnsupported, req.Filter)
		}
		if req.Force || req.ATAPassthrough {
			return nil, fmt.Errorf("%w: variant c has no force or pass-through flag", ErrUnsupported)
		}

		uapi.PutBlkZoneReport(buf, &uapi.BlkZoneReport{
			Sector:  req.StartLBA,
			NrZones: uint32(v.Fits(int(req.Capacity))),
		})

		return &uapi.Command{
			Op:   uapi.BLKREPORTZONE,
			Dir:  uapi.DirReadWrite,
			Buf:  buf,
			Name: "BLKREPORTZONE",
		}, nil
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownVariant, int(v))
}
