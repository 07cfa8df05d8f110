package zoned

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"syscall"

	"github.com/ehrlich-b/go-zoned/internal/action"
	"github.com/ehrlich-b/go-zoned/internal/channel"
	"github.com/ehrlich-b/go-zoned/internal/report"
	"github.com/ehrlich-b/go-zoned/internal/superblock"
	"github.com/ehrlich-b/go-zoned/internal/uapi"
)

// EmulatedZone is the state of one zone of an EmulatedDevice
type EmulatedZone struct {
	Type             report.ZoneType
	Condition        report.Condition
	Start            uint64
	Length           uint64
	WritePointer     uint64
	ResetRecommended bool
	NonSeq           bool
}

// EmulatedConfig describes the device an EmulatedDevice pretends to be
type EmulatedConfig struct {
	Path             string
	ZoneSectors      uint64 // default 0x80000 (256 MiB)
	Zones            int    // default 16
	Conventional     int    // leading conventional zones
	RuntSectors      uint64 // when set, the last zone has this length
	LogicalBlockSize uint32 // default 512

	// LittleEndian makes legacy reports come back in native little-endian
	// order, like the HBAs that ignore the big-endian wire format.
	LittleEndian bool

	// ReportCapacity sets BLK_ZONE_REP_CAPACITY on mainline reports
	ReportCapacity bool
}

// EmulatedDevice is an in-memory zoned block device. It answers every
// report and action encoding the codecs produce, applies actions with the
// zone condition state machine and serves a superblock region for probes.
// It implements the channel interfaces and the topology source, so it can
// stand in for a real device in tests.
type EmulatedDevice struct {
	mu     sync.Mutex
	cfg    EmulatedConfig
	zones  []EmulatedZone
	data   []byte // first SuperblockProbeSize bytes of the device
	closed bool

	failures map[uint32]syscall.Errno
	calls    map[string]int
	last     uapi.Command
}

// NewEmulatedDevice creates an emulated device. Zero config fields take
// their defaults.
func NewEmulatedDevice(cfg EmulatedConfig) *EmulatedDevice {
	if cfg.Path == "" {
		cfg.Path = "/dev/zbd-emulated"
	}
	if cfg.ZoneSectors == 0 {
		cfg.ZoneSectors = 0x80000
	}
	if cfg.Zones == 0 {
		cfg.Zones = 16
	}
	if cfg.LogicalBlockSize == 0 {
		cfg.LogicalBlockSize = DefaultLogicalBlockSize
	}

	zones := make([]EmulatedZone, cfg.Zones)
	for i := range zones {
		z := &zones[i]
		z.Start = uint64(i) * cfg.ZoneSectors
		z.Length = cfg.ZoneSectors
		if i == cfg.Zones-1 && cfg.RuntSectors != 0 {
			z.Length = cfg.RuntSectors
		}
		if i < cfg.Conventional {
			z.Type = report.TypeConventional
			z.Condition = report.CondNotWP
		} else {
			z.Type = report.TypeSeqWriteRequired
			z.Condition = report.CondEmpty
			z.WritePointer = z.Start
		}
	}

	return &EmulatedDevice{
		cfg:      cfg,
		zones:    zones,
		data:     make([]byte, SuperblockProbeSize),
		failures: make(map[uint32]syscall.Errno),
		calls:    make(map[string]int),
	}
}

// Sectors is the device size in 512-byte sectors
func (e *EmulatedDevice) Sectors() uint64 {
	last := e.zones[len(e.zones)-1]
	return last.Start + last.Length
}

// Path implements NamedChannel
func (e *EmulatedDevice) Path() string {
	return e.cfg.Path
}

// Size implements SizedChannel
func (e *EmulatedDevice) Size() (int64, error) {
	return int64(e.Sectors() << uapi.SectorShift), nil
}

// LogicalBlockSize implements SizedChannel
func (e *EmulatedDevice) LogicalBlockSize() (uint32, error) {
	return e.cfg.LogicalBlockSize, nil
}

// ZoneSectors implements TopologySource
func (e *EmulatedDevice) ZoneSectors(string) (uint64, error) {
	return e.cfg.ZoneSectors, nil
}

// ReadAt implements ReaderChannel. Everything past the superblock region
// reads as zeros.
func (e *EmulatedDevice) ReadAt(p []byte, off int64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls["read"]++

	if e.closed {
		return 0, channel.ErrClosed
	}
	size, _ := e.Size()
	if off >= size {
		return 0, io.EOF
	}

	n := len(p)
	if int64(n) > size-off {
		n = int(size - off)
	}
	for i := 0; i < n; i++ {
		p[i] = 0
	}
	if off < int64(len(e.data)) {
		copy(p[:n], e.data[off:])
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteSuperblock stores sb at the start of the device
func (e *EmulatedDevice) WriteSuperblock(sb *superblock.Superblock) error {
	raw, err := sb.MarshalBinary()
	if err != nil {
		return err
	}
	e.WriteData(superblock.Offset, raw)
	return nil
}

// WriteData overwrites part of the superblock region
func (e *EmulatedDevice) WriteData(off int64, p []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if off < int64(len(e.data)) {
		copy(e.data[off:], p)
	}
}

// InjectError makes every command with the given ioctl number fail with
// errno until ClearErrors is called.
func (e *EmulatedDevice) InjectError(op uint32, errno syscall.Errno) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[op] = errno
}

// ClearErrors removes every injected error
func (e *EmulatedDevice) ClearErrors() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = make(map[uint32]syscall.Errno)
}

// Calls returns how many times a command name (or "read") was submitted
func (e *EmulatedDevice) Calls(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[name]
}

// LastCommand returns a copy of the last submitted command, as sent
func (e *EmulatedDevice) LastCommand() uapi.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Zones returns a copy of the zone table
func (e *EmulatedDevice) Zones() []EmulatedZone {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EmulatedZone, len(e.zones))
	copy(out, e.zones)
	return out
}

// SetZone replaces the state of zone i
func (e *EmulatedDevice) SetZone(i int, z EmulatedZone) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.zones[i] = z
}

// Close implements Channel
func (e *EmulatedDevice) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Submit implements Channel
func (e *EmulatedDevice) Submit(ctx context.Context, cmd *uapi.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return channel.ErrClosed
	}

	e.calls[cmd.Name]++
	e.last = *cmd
	if cmd.Buf != nil {
		e.last.Buf = append([]byte(nil), cmd.Buf...)
	}

	if errno, ok := e.failures[cmd.Op]; ok {
		return &channel.CommandError{Cmd: cmd.Name, Op: cmd.Op, Errno: errno}
	}

	var errno syscall.Errno
	switch cmd.Op {
	case uapi.BLKREPORT:
		errno = e.reportLegacy(cmd.Buf)
	case uapi.BLKREPORTZONE:
		errno = e.reportMainline(cmd.Buf)
	case uapi.BLKZONEACTION:
		var za uapi.ZoneAction
		if err := uapi.Unmarshal(cmd.Buf, &za); err != nil {
			errno = syscall.EINVAL
			break
		}
		errno = e.structuredAction(&za)
	case uapi.BLKOPENZONE_LEGACY:
		errno = e.opcodeAction(action.Open, cmd.Arg)
	case uapi.BLKCLOSEZONE_LEGACY:
		errno = e.opcodeAction(action.Close, cmd.Arg)
	case uapi.BLKRESETZONE_LEGACY:
		errno = e.opcodeAction(action.Reset, cmd.Arg)
	case uapi.BLKFINISHZONE_LEGACY:
		errno = e.opcodeAction(action.Finish, cmd.Arg)
	case uapi.BLKOPENZONE:
		errno = e.rangeAction(action.Open, cmd.Buf)
	case uapi.BLKCLOSEZONE:
		errno = e.rangeAction(action.Close, cmd.Buf)
	case uapi.BLKRESETZONE:
		errno = e.rangeAction(action.Reset, cmd.Buf)
	case uapi.BLKFINISHZONE:
		errno = e.rangeAction(action.Finish, cmd.Buf)
	default:
		errno = syscall.ENOTTY
	}

	if errno != 0 {
		return &channel.CommandError{Cmd: cmd.Name, Op: cmd.Op, Errno: errno}
	}
	return nil
}

// matches reports whether z is selected by a report option
func matches(z *EmulatedZone, f report.Filter) bool {
	switch f {
	case report.FilterAll:
		return true
	case report.FilterEmpty:
		return z.Condition == report.CondEmpty
	case report.FilterImplicitOpen:
		return z.Condition == report.CondImplicitOpen
	case report.FilterExplicitOpen:
		return z.Condition == report.CondExplicitOpen
	case report.FilterClosed:
		return z.Condition == report.CondClosed
	case report.FilterFull:
		return z.Condition == report.CondFull
	case report.FilterReadOnly:
		return z.Condition == report.CondReadOnly
	case report.FilterOffline:
		return z.Condition == report.CondOffline
	case report.FilterResetRecommended:
		return z.ResetRecommended
	case report.FilterNonSeq:
		return z.NonSeq
	case report.FilterNoWritePointer:
		return z.Condition == report.CondNotWP
	}
	return false
}

// selectZones returns the zones at or after lba that pass the filter
func (e *EmulatedDevice) selectZones(lba uint64, f report.Filter) []EmulatedZone {
	var out []EmulatedZone
	for i := range e.zones {
		z := &e.zones[i]
		if z.Start+z.Length <= lba {
			continue
		}
		if matches(z, f) {
			out = append(out, *z)
		}
	}
	return out
}

// same computes the legacy header "same" code over the whole device
func (e *EmulatedDevice) same() uint8 {
	n := len(e.zones)
	if n < 2 {
		return uapi.ZS_ALL_SAME
	}
	lengths, types := true, true
	for i := 1; i < n; i++ {
		if e.zones[i].Length != e.zones[0].Length {
			lengths = false
		}
		if e.zones[i].Type != e.zones[0].Type {
			types = false
		}
	}
	switch {
	case lengths && types:
		return uapi.ZS_ALL_SAME
	case lengths:
		return uapi.ZS_SAME_LEN_DIFF_TYPES
	}
	for i := 1; i < n-1; i++ {
		if e.zones[i].Length != e.zones[0].Length {
			return uapi.ZS_ALL_DIFFERENT
		}
	}
	return uapi.ZS_LAST_DIFFERS
}

func (e *EmulatedDevice) reportLegacy(buf []byte) syscall.Errno {
	var req uapi.ZoneGetReport
	if err := uapi.Unmarshal(buf, &req); err != nil {
		return syscall.EINVAL
	}
	f, err := report.ParseFilter(uint64(req.ReportOption &^ uapi.ZOPT_USE_ATA_PASS))
	if err != nil {
		return syscall.EINVAL
	}
	capacity := len(buf)
	if req.ReturnPageCount == 0 {
		return syscall.EINVAL
	}
	if int(req.ReturnPageCount) < capacity {
		capacity = int(req.ReturnPageCount)
	}

	var order binary.ByteOrder = binary.BigEndian
	if e.cfg.LittleEndian {
		order = binary.LittleEndian
	}

	zones := e.selectZones(req.ZoneLocatorLBA, f)
	for i := range buf {
		buf[i] = 0
	}
	uapi.PutZoneReport(buf, &uapi.ZoneReport{
		DescriptorCount: uint32(len(zones)),
		SameField:       e.same(),
		MaximumLBA:      e.Sectors() - 1,
	}, order)

	fits := report.VariantA.Fits(capacity)
	for i := 0; i < len(zones) && i < fits; i++ {
		z := &zones[i]
		var flags uint8
		if z.ResetRecommended {
			flags |= uapi.ZFLAG_RESET_RECOMMENDED
		}
		if z.NonSeq {
			flags |= uapi.ZFLAG_NON_SEQ
		}
		flags |= uint8(z.Condition) << uapi.ZFLAG_COND_SHIFT
		off := uapi.ZoneReportHeaderSize + i*uapi.ZoneDescriptorSize
		uapi.PutZoneDescriptor(buf[off:], &uapi.ZoneDescriptor{
			Type:     uint8(z.Type),
			Flags:    flags,
			Length:   z.Length,
			LBAStart: z.Start,
			LBAWptr:  z.WritePointer,
		}, order)
	}
	return 0
}

func (e *EmulatedDevice) reportMainline(buf []byte) syscall.Errno {
	var req uapi.BlkZoneReport
	if err := uapi.Unmarshal(buf, &req); err != nil {
		return syscall.EINVAL
	}

	n := report.VariantC.Fits(len(buf))
	if int(req.NrZones) < n {
		n = int(req.NrZones)
	}
	zones := e.selectZones(req.Sector, report.FilterAll)
	if len(zones) < n {
		n = len(zones)
	}

	for i := range buf {
		buf[i] = 0
	}
	rep := uapi.BlkZoneReport{Sector: req.Sector, NrZones: uint32(n)}
	if e.cfg.ReportCapacity {
		rep.Flags = uapi.BLK_ZONE_REP_CAPACITY
	}
	uapi.PutBlkZoneReport(buf, &rep)

	for i := 0; i < n; i++ {
		z := &zones[i]
		bz := uapi.BlkZone{
			Start: z.Start,
			Len:   z.Length,
			WP:    z.WritePointer,
			Type:  uint8(z.Type),
			Cond:  uint8(z.Condition),
		}
		if z.NonSeq {
			bz.NonSeq = 1
		}
		if z.ResetRecommended {
			bz.Reset = 1
		}
		if e.cfg.ReportCapacity {
			bz.Capacity = z.Length
		}
		off := uapi.BlkZoneReportHeaderSize + i*uapi.BlkZoneSize
		uapi.PutBlkZone(buf[off:], &bz)
	}
	return 0
}

func (e *EmulatedDevice) structuredAction(za *uapi.ZoneAction) syscall.Errno {
	a := action.Action(za.Action)
	if !a.Valid() {
		return syscall.EINVAL
	}
	if za.AllZones != 0 {
		return e.applyAll(a)
	}
	return e.applyAt(a, za.ZoneLocatorLBA)
}

func (e *EmulatedDevice) opcodeAction(a action.Action, arg uint64) syscall.Errno {
	// the low bit carries the pass-through mode, not the address
	if arg|1 == action.AllZonesLBA {
		return e.applyAll(a)
	}
	return e.applyAt(a, arg&^1)
}

func (e *EmulatedDevice) rangeAction(a action.Action, buf []byte) syscall.Errno {
	var r uapi.BlkZoneRange
	if err := uapi.Unmarshal(buf, &r); err != nil {
		return syscall.EINVAL
	}
	end := r.Sector + r.NrSectors
	if r.NrSectors == 0 || end < r.Sector || end > e.Sectors() {
		return syscall.EINVAL
	}
	for i := range e.zones {
		z := &e.zones[i]
		if z.Start+z.Length <= r.Sector || z.Start >= end {
			continue
		}
		if z.Start < r.Sector {
			return syscall.EINVAL
		}
		if errno := transition(z, a); errno != 0 {
			return errno
		}
	}
	return 0
}

func (e *EmulatedDevice) applyAt(a action.Action, lba uint64) syscall.Errno {
	for i := range e.zones {
		if e.zones[i].Start == lba {
			return transition(&e.zones[i], a)
		}
	}
	return syscall.EINVAL
}

// applyAll skips zones an action cannot apply to, like a device does for
// the all-zones bit
func (e *EmulatedDevice) applyAll(a action.Action) syscall.Errno {
	for i := range e.zones {
		z := &e.zones[i]
		if z.Type == report.TypeConventional || z.Condition == report.CondReadOnly || z.Condition == report.CondOffline {
			continue
		}
		if a == action.Open && z.Condition == report.CondEmpty {
			continue
		}
		if errno := transition(z, a); errno != 0 {
			return errno
		}
	}
	return 0
}

// transition applies a to one zone
func transition(z *EmulatedZone, a action.Action) syscall.Errno {
	if z.Type == report.TypeConventional {
		return syscall.EINVAL
	}
	switch z.Condition {
	case report.CondReadOnly, report.CondOffline:
		return syscall.EIO
	}

	switch a {
	case action.Open:
		switch z.Condition {
		case report.CondEmpty, report.CondImplicitOpen, report.CondClosed:
			z.Condition = report.CondExplicitOpen
		}
	case action.Close:
		if z.Condition.Open() {
			if z.WritePointer == z.Start {
				z.Condition = report.CondEmpty
			} else {
				z.Condition = report.CondClosed
			}
		}
	case action.Finish:
		z.Condition = report.CondFull
		z.WritePointer = z.Start + z.Length
	case action.Reset:
		z.Condition = report.CondEmpty
		z.WritePointer = z.Start
		z.ResetRecommended = false
	default:
		return syscall.EINVAL
	}
	return 0
}
