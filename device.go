// Package zoned reads and manages zoned block devices: it probes for a ZDM
// superblock, reports zones through the three historical report
// interfaces and issues open, close, finish and reset zone actions.
package zoned

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ehrlich-b/go-zoned/internal/action"
	"github.com/ehrlich-b/go-zoned/internal/channel"
	"github.com/ehrlich-b/go-zoned/internal/interfaces"
	"github.com/ehrlich-b/go-zoned/internal/logging"
	"github.com/ehrlich-b/go-zoned/internal/report"
	"github.com/ehrlich-b/go-zoned/internal/superblock"
	"github.com/ehrlich-b/go-zoned/internal/topology"
	"github.com/ehrlich-b/go-zoned/internal/uapi"
)

// Public names for the codec types
type (
	Descriptor    = report.Descriptor
	ReportHeader  = report.Header
	Filter        = report.Filter
	ReportVariant = report.Variant
	Action        = action.Action
	ActionVariant = action.Variant
	ActionRequest = action.Request
	Superblock    = superblock.Superblock
)

const (
	ReportVariantA = report.VariantA
	ReportVariantB = report.VariantB
	ReportVariantC = report.VariantC

	ActionStructured = action.VariantStructured
	ActionOpcode     = action.VariantOpcode
	ActionRange      = action.VariantRange

	OpenZone   = action.Open
	CloseZone  = action.Close
	FinishZone = action.Finish
	ResetZone  = action.Reset
)

// Device is a zoned block device reached through a channel
type Device struct {
	// Path is the device node, or whatever name the channel reports
	Path string

	ch            interfaces.Channel
	reportVariant report.Variant
	actionVariant action.Variant
	topology      interfaces.TopologySource
	reader        io.ReaderAt

	logger   *logging.Logger
	metrics  *Metrics
	observer Observer
}

// Options contains additional options for opening a device
type Options struct {
	// Logger for debug/info messages (if nil, uses logging.Default())
	Logger *logging.Logger

	// Observer for metrics collection (if nil, records to Device.Metrics())
	Observer Observer

	// Wire encodings; the zero values are report variant A and structured
	// actions
	ReportVariant report.Variant
	ActionVariant action.Variant

	// Topology answers zone size queries for range actions (if nil, uses
	// sysfs)
	Topology interfaces.TopologySource

	// Reader replaces the channel's ReadAt for superblock probes, e.g. an
	// io_uring backed reader
	Reader io.ReaderAt

	// ReadOnly opens the node read-only; zone actions will then fail
	ReadOnly bool

	// AllowRegular accepts regular files (images) for probing
	AllowRegular bool
}

// Open opens a device node and wraps it in a Device
func Open(path string, options *Options) (*Device, error) {
	if options == nil {
		options = &Options{}
	}
	ch, err := channel.Open(path, channel.Options{
		ReadOnly:     options.ReadOnly,
		AllowRegular: options.AllowRegular,
	})
	if err != nil {
		return nil, wrapDeviceError("OPEN", path, 0, err)
	}
	return New(ch, options), nil
}

// New wraps an already open channel
func New(ch interfaces.Channel, options *Options) *Device {
	if options == nil {
		options = &Options{}
	}

	d := &Device{
		ch:            ch,
		reportVariant: options.ReportVariant,
		actionVariant: options.ActionVariant,
		topology:      options.Topology,
		reader:        options.Reader,
		logger:        options.Logger,
		metrics:       NewMetrics(),
	}
	if named, ok := ch.(interfaces.NamedChannel); ok {
		d.Path = named.Path()
	}
	if d.logger == nil {
		d.logger = logging.Default()
	}
	d.logger = d.logger.WithDevice(d.Path)

	if options.Observer != nil {
		d.observer = options.Observer
	} else {
		d.observer = NewMetricsObserver(d.metrics)
	}
	if d.topology == nil {
		d.topology = topology.NewOS()
	}
	if d.reader == nil {
		if r, ok := ch.(interfaces.ReaderChannel); ok {
			d.reader = r
		}
	}
	return d
}

// ReportVariant returns the report encoding in use
func (d *Device) ReportVariant() report.Variant {
	return d.reportVariant
}

// ActionVariant returns the action encoding in use
func (d *Device) ActionVariant() action.Variant {
	return d.actionVariant
}

// Size returns the device size in bytes, or an error when the channel
// cannot tell
func (d *Device) Size() (int64, error) {
	sized, ok := d.ch.(interfaces.SizedChannel)
	if !ok {
		return 0, NewDeviceError("SIZE", d.Path, ErrCodeNotSupported, "channel has no size")
	}
	size, err := sized.Size()
	if err != nil {
		return 0, wrapDeviceError("SIZE", d.Path, 0, err)
	}
	return size, nil
}

// geometry returns the logical block size and byte size, or zeros when the
// channel does not know them
func (d *Device) geometry() (uint32, uint64) {
	sized, ok := d.ch.(interfaces.SizedChannel)
	if !ok {
		return 0, 0
	}
	size, err := sized.Size()
	if err != nil || size <= 0 {
		return 0, 0
	}
	lbs, err := sized.LogicalBlockSize()
	if err != nil || lbs == 0 {
		lbs = DefaultLogicalBlockSize
	}
	return lbs, uint64(size)
}

func (d *Device) submit(ctx context.Context, cmd *uapi.Command) error {
	if err := d.ch.Submit(ctx, cmd); err != nil {
		if ctx.Err() == nil {
			d.observer.ObserveChannelError()
		}
		return err
	}
	return nil
}

// ReportRequest is a zone report query
type ReportRequest struct {
	StartLBA       uint64        // first sector to report from
	Length         uint32        // response buffer size; 0 means DefaultReportLength
	Filter         report.Filter // report option (variants A and B)
	Force          bool          // force media access (variant B)
	ATAPassthrough bool          // use ATA pass-through (variants A and B)
}

// Report is a decoded zone report
type Report struct {
	Header report.Header
	Zones  []report.Descriptor
}

// Truncated reports whether the device had more zones than fit the buffer
func (r *Report) Truncated() bool {
	return r.Header.Truncated
}

// ReportZones queries the device for its zones. StartLBA must be aligned to
// the logical block size and inside the device when the channel knows its
// geometry.
//
// When a descriptor is malformed, the zones before it are returned along
// with the error.
func (d *Device) ReportZones(ctx context.Context, req ReportRequest) (*Report, error) {
	start := time.Now()
	log := d.logger.WithOp("report").WithZone(req.StartLBA)

	rep, err := d.reportZones(ctx, req)

	out := ReportOutcome{Legacy: d.reportVariant.Legacy()}
	if rep != nil {
		out.Zones = len(rep.Zones)
		out.Truncated = rep.Truncated()
		out.BigEndian = rep.Header.BigEndian()
	}
	d.observer.ObserveReport(out, uint64(time.Since(start).Nanoseconds()), err == nil)

	if err != nil {
		log.WithError(err).Debug("report failed")
		return rep, wrapDeviceError("REPORT", d.Path, req.StartLBA, err)
	}

	log.Debug("report",
		"variant", d.reportVariant.String(),
		"zones", len(rep.Zones),
		"stated", rep.Header.Stated,
		"truncated", rep.Truncated(),
		"big_endian", rep.Header.BigEndian())
	return rep, nil
}

func (d *Device) reportZones(ctx context.Context, req ReportRequest) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Length == 0 {
		req.Length = DefaultReportLength
	}
	if lbs, size := d.geometry(); size != 0 {
		if err := action.CheckLBA(req.StartLBA, lbs, size); err != nil {
			return nil, err
		}
	}

	cmd, err := report.Build(d.reportVariant, report.Request{
		StartLBA:       req.StartLBA,
		Capacity:       req.Length,
		Filter:         req.Filter,
		Force:          req.Force,
		ATAPassthrough: req.ATAPassthrough,
	})
	if err != nil {
		return nil, err
	}

	if err := d.submit(ctx, cmd); err != nil {
		return nil, err
	}

	sc, err := report.Decode(d.reportVariant, cmd.Buf, len(cmd.Buf))
	if err != nil {
		return nil, err
	}
	zones, err := sc.All()
	rep := &Report{Header: sc.Header(), Zones: zones}
	if err != nil {
		return rep, err
	}
	return rep, nil
}

// ZoneAction opens, closes, finishes or resets one zone or all zones.
//
// With the range encoding a single zone becomes a one-zone range and all
// zones become a range over the whole device; both need the zone size from
// the topology source.
func (d *Device) ZoneAction(ctx context.Context, req action.Request) error {
	start := time.Now()
	log := d.logger.WithOp(req.Action.String())
	if !req.AllZones {
		log = log.WithZone(req.StartLBA)
	}

	err := d.zoneAction(ctx, req)
	d.observer.ObserveAction(req.Action, uint64(time.Since(start).Nanoseconds()), err == nil)

	if err != nil {
		log.WithError(err).Debug("zone action failed")
		return wrapDeviceError(actionOp(req.Action), d.Path, req.StartLBA, err)
	}
	log.Debug("zone action", "variant", d.actionVariant.String(), "all", req.AllZones)
	return nil
}

func actionOp(a action.Action) string {
	if !a.Valid() {
		return "ZONE_ACTION"
	}
	return strings.ToUpper(a.String()) + "_ZONE"
}

func (d *Device) zoneAction(ctx context.Context, req action.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if d.actionVariant == action.VariantRange {
		if req.AllZones && req.StartLBA != 0 {
			return action.ErrAllZonesWithLBA
		}
		if req.Force || req.ATAPassthrough {
			return fmt.Errorf("%w: range actions have no force or pass-through flag", action.ErrUnsupported)
		}
		g, err := d.rangeGeometry()
		if err != nil {
			return err
		}
		count := uint64(1)
		if req.AllZones {
			count = (g.DeviceSectors + g.ZoneSectors - 1) / g.ZoneSectors
		}
		cmd, err := action.BuildRange(req.Action, req.StartLBA, count, g)
		if err != nil {
			return err
		}
		return d.submit(ctx, cmd)
	}

	cmd, err := action.Build(d.actionVariant, req)
	if err != nil {
		return err
	}
	if !req.AllZones {
		if lbs, size := d.geometry(); size != 0 {
			if err := action.CheckLBA(req.StartLBA, lbs, size); err != nil {
				return err
			}
		}
	}
	return d.submit(ctx, cmd)
}

// rangeGeometry combines the topology zone size with the device size
func (d *Device) rangeGeometry() (action.Geometry, error) {
	_, size := d.geometry()
	if size == 0 {
		return action.Geometry{}, fmt.Errorf("%w: device size unknown", action.ErrUnknownZoneSize)
	}
	zs, err := d.topology.ZoneSectors(d.Path)
	if err != nil {
		return action.Geometry{}, err
	}
	if zs == 0 {
		return action.Geometry{}, fmt.Errorf("%w: no zone size for %s", action.ErrUnknownZoneSize, d.Path)
	}
	return action.GeometryFromBytes(zs, size), nil
}

// ZoneRange applies an action to count zones starting at sector start,
// with the range encoding, regardless of the configured action variant
func (d *Device) ZoneRange(ctx context.Context, a action.Action, start, count uint64) error {
	begin := time.Now()
	log := d.logger.WithOp(a.String()).WithZone(start)

	err := d.zoneRange(ctx, a, start, count)
	d.observer.ObserveAction(a, uint64(time.Since(begin).Nanoseconds()), err == nil)

	if err != nil {
		log.WithError(err).Debug("range action failed", "count", count)
		return wrapDeviceError(actionOp(a), d.Path, start, err)
	}
	log.Debug("range action", "count", count)
	return nil
}

func (d *Device) zoneRange(ctx context.Context, a action.Action, start, count uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g, err := d.rangeGeometry()
	if err != nil {
		return err
	}
	cmd, err := action.BuildRange(a, start, count, g)
	if err != nil {
		return err
	}
	return d.submit(ctx, cmd)
}

// ResetZones resets the write pointers of count zones starting at sector
// start
func (d *Device) ResetZones(ctx context.Context, start, count uint64) error {
	return d.ZoneRange(ctx, action.Reset, start, count)
}

// ProbeSuperblock looks for a ZDM superblock at the start of the device.
// A device without one yields an error matching ErrNotFound.
func (d *Device) ProbeSuperblock(ctx context.Context) (*superblock.Superblock, error) {
	start := time.Now()
	log := d.logger.WithOp("probe")

	sb, err := d.probe(ctx)
	found := err == nil
	success := found || errors.Is(err, superblock.ErrNotFound)
	d.observer.ObserveProbe(found, uint64(time.Since(start).Nanoseconds()), success)

	if err != nil {
		log.WithError(err).Debug("no superblock")
		return nil, wrapDeviceError("PROBE", d.Path, 0, err)
	}
	log.Debug("superblock found", "uuid", sb.UUID.String(), "version", sb.Version.String())
	return sb, nil
}

func (d *Device) probe(ctx context.Context) (*superblock.Superblock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.reader == nil {
		return nil, fmt.Errorf("%w: channel cannot read the device", channel.ErrUnsupported)
	}
	size := int64(-1)
	if _, n := d.geometry(); n != 0 {
		size = int64(n)
	}
	sb, err := superblock.Probe(d.reader, size)
	if err != nil && !errors.Is(err, superblock.ErrNotFound) && ctx.Err() == nil {
		d.observer.ObserveChannelError()
	}
	return sb, err
}

// DeviceInfo describes a device for display
type DeviceInfo struct {
	Path             string `json:"path" yaml:"path"`
	Size             int64  `json:"size" yaml:"size"`
	LogicalBlockSize uint32 `json:"logical_block_size" yaml:"logical_block_size"`
	ZoneSectors      uint64 `json:"zone_sectors" yaml:"zone_sectors"`
	ReportVariant    string `json:"report_variant" yaml:"report_variant"`
	ActionVariant    string `json:"action_variant" yaml:"action_variant"`
}

// Info returns what is known about the device. Unknown values are zero.
func (d *Device) Info() DeviceInfo {
	info := DeviceInfo{
		Path:          d.Path,
		ReportVariant: d.reportVariant.String(),
		ActionVariant: d.actionVariant.String(),
	}
	lbs, size := d.geometry()
	info.Size = int64(size)
	info.LogicalBlockSize = lbs
	if zs, err := d.topology.ZoneSectors(d.Path); err == nil {
		info.ZoneSectors = zs
	}
	return info
}

// Metrics returns the built-in metrics. They stay at zero when a custom
// Observer is set.
func (d *Device) Metrics() *Metrics {
	if d == nil {
		return nil
	}
	return d.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of device metrics
func (d *Device) MetricsSnapshot() MetricsSnapshot {
	if d == nil || d.metrics == nil {
		return MetricsSnapshot{}
	}
	return d.metrics.Snapshot()
}

// Close releases the channel. A Reader passed in Options is left open.
func (d *Device) Close() error {
	d.metrics.Stop()
	return d.ch.Close()
}
