// Package action builds zone action requests: open, close, finish and reset.
//
// Three encodings exist. Structured is the out-of-tree BLKZONEACTION ioctl
// taking a packed struct bdev_zone_action. Opcode is the older interface
// with one ioctl per action and the zone LBA passed as the scalar argument.
// Range is mainline BLKRESETZONE and friends, which take a sector range
// instead of a single zone.
package action

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ehrlich-b/go-zoned/internal/uapi"
)

var (
	ErrAllZonesWithLBA = errors.New("all_zones requires a zero start lba")
	ErrUnknownAction   = errors.New("unknown zone action")
	ErrUnknownVariant  = errors.New("unknown action variant")
	ErrUnsupported     = errors.New("option not supported by action variant")
)

// AllZonesLBA is the scalar the opcode encoding uses to address every zone
const AllZonesLBA = ^uint64(0)

// Action is a zone state transition
type Action uint32

const (
	Close  Action = uapi.ZONE_ACTION_CLOSE
	Finish Action = uapi.ZONE_ACTION_FINISH
	Open   Action = uapi.ZONE_ACTION_OPEN
	Reset  Action = uapi.ZONE_ACTION_RESET
)

func (a Action) String() string {
	switch a {
	case Open:
		return "open"
	case Close:
		return "close"
	case Finish:
		return "finish"
	case Reset:
		return "reset"
	default:
		return fmt.Sprintf("action(%d)", uint32(a))
	}
}

// Valid reports whether a is one of the four defined actions
func (a Action) Valid() bool {
	return a >= Close && a <= Reset
}

// ParseAction accepts the action names printed by String
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return Open, nil
	case "close":
		return Close, nil
	case "finish":
		return Finish, nil
	case "reset":
		return Reset, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Variant selects the action wire encoding
type Variant int

const (
	VariantStructured Variant = iota // BLKZONEACTION with struct bdev_zone_action
	VariantOpcode                    // one _IO opcode per action, lba as argument
	VariantRange                     // BLK*ZONE with struct blk_zone_range
)

func (v Variant) String() string {
	switch v {
	case VariantStructured:
		return "structured"
	case VariantOpcode:
		return "opcode"
	case VariantRange:
		return "range"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant accepts "a"/"structured", "b"/"opcode" or "range"
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "structured":
		return VariantStructured, nil
	case "b", "opcode":
		return VariantOpcode, nil
	case "range":
		return VariantRange, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

// Request describes a single-zone or all-zones action
type Request struct {
	StartLBA       uint64
	Action         Action
	AllZones       bool
	Force          bool // force_unit_access (structured only)
	ATAPassthrough bool // alternate addressing mode (opcode only)
}

func (r *Request) validate() error {
	if !r.Action.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownAction, uint32(r.Action))
	}
	if r.AllZones && r.StartLBA != 0 {
		return fmt.Errorf("%w: lba 0x%x", ErrAllZonesWithLBA, r.StartLBA)
	}
	return nil
}

// Build encodes a single-zone or all-zones action for the structured or
// opcode variant. Range actions need zone geometry; use BuildRange.
func Build(v Variant, req Request) (*uapi.Command, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	switch v {
	case VariantStructured:
		return buildStructured(req)
	case VariantOpcode:
		return buildOpcode(req)
	case VariantRange:
		return nil, fmt.Errorf("%w: range actions need zone geometry", ErrUnsupported)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownVariant, int(v))
}

func buildStructured(req Request) (*uapi.Command, error) {
	if req.ATAPassthrough {
		return nil, fmt.Errorf("%w: structured actions have no addressing mode bit", ErrUnsupported)
	}

	za := &uapi.ZoneAction{
		ZoneLocatorLBA: req.StartLBA,
		Action:         uint32(req.Action),
	}
	if req.AllZones {
		za.AllZones = 1
	}
	if req.Force {
		za.ForceUnitAccess = 1
	}

	return &uapi.Command{
		Op:   uapi.BLKZONEACTION,
		Dir:  uapi.DirWrite,
		Buf:  uapi.Marshal(za),
		Name: "BLKZONEACTION",
	}, nil
}

var opcodes = map[Action]struct {
	op   uint32
	name string
}{
	Open:   {uapi.BLKOPENZONE_LEGACY, "BLKOPENZONE"},
	Close:  {uapi.BLKCLOSEZONE_LEGACY, "BLKCLOSEZONE"},
	Reset:  {uapi.BLKRESETZONE_LEGACY, "BLKRESETZONE"},
	Finish: {uapi.BLKFINISHZONE_LEGACY, "BLKFINISHZONE"},
}

// OpcodeLBA applies the legacy addressing-mode quirk: the low bit of the
// zone LBA is set to request ATA pass-through and cleared otherwise. Zone
// starts are always even, so the bit is free to carry the mode.
func OpcodeLBA(lba uint64, ata bool) uint64 {
	if ata {
		return lba | 1
	}
	return lba &^ 1
}

func buildOpcode(req Request) (*uapi.Command, error) {
	if req.Force {
		return nil, fmt.Errorf("%w: opcode actions have no force flag", ErrUnsupported)
	}

	oc := opcodes[req.Action]
	lba := req.StartLBA
	if req.AllZones {
		lba = AllZonesLBA
	}

	return &uapi.Command{
		Op:   oc.op,
		Dir:  uapi.DirNone,
		Arg:  OpcodeLBA(lba, req.ATAPassthrough),
		Name: oc.name,
	}, nil
}
