package topology

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sysfs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content+"\n"), 0o444))
	}
	return fs
}

func TestDiskName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/dev/sdb", "sdb"},
		{"/dev/sdb1", "sdb"},
		{"sdaa12", "sdaa"},
		{"/dev/nvme0n1", "nvme0n1"},
		{"/dev/nvme0n1p2", "nvme0n1"},
		{"/dev/mmcblk0", "mmcblk0"},
		{"/dev/mmcblk0p1", "mmcblk0"},
		{"/dev/loop0", "loop0"},
		{"/dev/loop3p1", "loop3"},
		{"/dev/dm-0", "dm-0"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DiskName(tt.in))
		})
	}
}

func TestZoneSectors(t *testing.T) {
	fs := sysfs(t, map[string]string{
		"/sys/block/sdb/queue/chunk_sectors": "524288",
		"/sys/block/sdc/queue/chunk_sectors": "0",
		"/sys/block/sdd/queue/chunk_sectors": "lots",
	})
	src := New(fs, "")

	n, err := src.ZoneSectors("/dev/sdb1")
	require.NoError(t, err)
	assert.Equal(t, uint64(524288), n)

	n, err = src.ZoneSectors("/dev/sdc")
	require.NoError(t, err)
	assert.Zero(t, n, "conventional disks report 0")

	n, err = src.ZoneSectors("/dev/sde")
	require.NoError(t, err)
	assert.Zero(t, n, "missing attribute means unknown")

	_, err = src.ZoneSectors("/dev/sdd")
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	fs := sysfs(t, map[string]string{
		"/tmp/sys/block/nvme0n2/queue/zoned":              "host-managed",
		"/tmp/sys/block/nvme0n2/queue/chunk_sectors":      "2097152",
		"/tmp/sys/block/nvme0n2/queue/nr_zones":           "3688",
		"/tmp/sys/block/nvme0n2/queue/logical_block_size": "4096",
		"/tmp/sys/block/nvme0n2/queue/max_open_zones":     "14",
	})
	src := New(fs, "/tmp/sys/block")

	topo, err := src.Lookup("/dev/nvme0n2")
	require.NoError(t, err)
	assert.Equal(t, &Topology{
		Disk:             "nvme0n2",
		Model:            ModelHostManaged,
		ZoneSectors:      2097152,
		NrZones:          3688,
		LogicalBlockSize: 4096,
		MaxOpenZones:     14,
	}, topo)
	assert.True(t, topo.Model.Zoned())

	_, err = src.Lookup("/dev/sdz")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestModel(t *testing.T) {
	assert.True(t, ModelHostAware.Zoned())
	assert.False(t, ModelNone.Zoned())
	assert.False(t, ModelUnknown.Zoned())
}
