// Package topology answers zone geometry questions from sysfs.
//
// Reads go through an afero.Fs so the same code runs against /sys and
// against an in-memory tree in tests.
package topology

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/afero"

	"github.com/ehrlich-b/go-zoned/internal/uapi"
)

// Model is the zoned model of a disk as reported by queue/zoned
type Model string

const (
	ModelNone        Model = "none"
	ModelHostAware   Model = "host-aware"
	ModelHostManaged Model = "host-managed"
	ModelUnknown     Model = ""
)

// Zoned reports whether the disk exposes zones
func (m Model) Zoned() bool {
	return m == ModelHostAware || m == ModelHostManaged
}

// Topology is what sysfs knows about a disk. Zero values mean the
// attribute is missing.
type Topology struct {
	Disk             string
	Model            Model
	ZoneSectors      uint64 // queue/chunk_sectors
	NrZones          uint64 // queue/nr_zones
	LogicalBlockSize uint32 // queue/logical_block_size
	MaxOpenZones     uint64 // queue/max_open_zones
	MaxActiveZones   uint64 // queue/max_active_zones
}

// Source reads topology from a sysfs tree
type Source struct {
	fs   afero.Fs
	root string
}

// New returns a Source reading the block directory root of fs. An empty
// root means uapi.SysBlockRoot.
func New(fs afero.Fs, root string) *Source {
	if root == "" {
		root = uapi.SysBlockRoot
	}
	return &Source{fs: fs, root: root}
}

// NewOS returns a Source over the real sysfs
func NewOS() *Source {
	return New(afero.NewReadOnlyFs(afero.NewOsFs()), "")
}

// DiskName maps a device node or name to its whole-disk sysfs name:
// /dev/sdb1 -> sdb, nvme0n1p2 -> nvme0n1, mmcblk0p1 -> mmcblk0.
func DiskName(device string) string {
	name := path.Base(device)
	if strings.HasPrefix(name, "dm-") {
		return name
	}

	// names whose whole-disk form ends in a digit carry partitions as pN
	if strings.HasPrefix(name, "nvme") || strings.HasPrefix(name, "mmcblk") ||
		strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "nbd") {
		if i := strings.LastIndexByte(name, 'p'); i > 0 && i < len(name)-1 && allDigits(name[i+1:]) &&
			unicode.IsDigit(rune(name[i-1])) {
			return name[:i]
		}
		return name
	}

	return strings.TrimRightFunc(name, unicode.IsDigit)
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

func (s *Source) attr(disk, name string) (string, error) {
	p := path.Join(uapi.SysBlockPath(s.root, disk), "queue", name)
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", p, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Source) uintAttr(disk, name string) (uint64, error) {
	v, err := s.attr(disk, name)
	if err != nil || v == "" {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s/queue/%s: %w", disk, name, err)
	}
	return n, nil
}

// ZoneSectors returns the zone size of device in 512-byte sectors, or 0
// when sysfs does not know it.
func (s *Source) ZoneSectors(device string) (uint64, error) {
	return s.uintAttr(DiskName(device), "chunk_sectors")
}

// Lookup collects every known attribute of device
func (s *Source) Lookup(device string) (*Topology, error) {
	disk := DiskName(device)
	if ok, err := afero.DirExists(s.fs, uapi.SysBlockPath(s.root, disk)); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%s: %w", uapi.SysBlockPath(s.root, disk), os.ErrNotExist)
	}

	t := &Topology{Disk: disk}

	model, err := s.attr(disk, "zoned")
	if err != nil {
		return nil, err
	}
	t.Model = Model(model)

	for _, a := range []struct {
		name string
		dst  *uint64
	}{
		{"chunk_sectors", &t.ZoneSectors},
		{"nr_zones", &t.NrZones},
		{"max_open_zones", &t.MaxOpenZones},
		{"max_active_zones", &t.MaxActiveZones},
	} {
		if *a.dst, err = s.uintAttr(disk, a.name); err != nil {
			return nil, err
		}
	}

	lbs, err := s.uintAttr(disk, "logical_block_size")
	if err != nil {
		return nil, err
	}
	t.LogicalBlockSize = uint32(lbs)

	return t, nil
}
