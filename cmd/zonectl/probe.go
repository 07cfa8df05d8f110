package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/go-zoned"
)

var probeURing bool

var probeCmd = &cobra.Command{
	Use:   "probe <device|image>",
	Short: "Look for a ZDM superblock",
	Long: `Read the start of a device or image and decode the ZDM superblock.

Exits non-zero when no superblock is present. --uring reads through an
io_uring instead of pread.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().BoolVar(&probeURing, "uring", false, "read through io_uring")
	rootCmd.AddCommand(probeCmd)
}

type superblockView struct {
	Device             string `json:"device" yaml:"device"`
	UUID               string `json:"uuid" yaml:"uuid"`
	Version            string `json:"version" yaml:"version"`
	Label              string `json:"label" yaml:"label"`
	SectorStart        uint64 `json:"sector_start" yaml:"sector_start"`
	SectorSize         uint64 `json:"sector_size" yaml:"sector_size"`
	ZoneSizeSectors    uint64 `json:"zone_size_sectors" yaml:"zone_size_sectors"`
	DataStartZone      uint64 `json:"data_start_zone" yaml:"data_start_zone"`
	MetadataZoneCount  uint32 `json:"metadata_zone_count" yaml:"metadata_zone_count"`
	OverProvisionZones uint32 `json:"over_provision_zones" yaml:"over_provision_zones"`
	ManagedBlockCount  uint64 `json:"managed_block_count" yaml:"managed_block_count"`
	DiscardEnabled     bool   `json:"discard_enabled" yaml:"discard_enabled"`
	DiskType           uint32 `json:"disk_type" yaml:"disk_type"`
	ZacZbcMode         uint32 `json:"zac_zbc_mode" yaml:"zac_zbc_mode"`
	Checksum           string `json:"checksum" yaml:"checksum"`
}

func runProbe(cmd *cobra.Command, args []string) error {
	s, err := openSession(args, zoned.Options{}, true, probeURing)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := commandContext()
	defer cancel()

	sb, err := s.dev.ProbeSuperblock(ctx)
	if errors.Is(err, zoned.ErrNotFound) {
		return fmt.Errorf("%s: no ZDM superblock", s.dev.Path)
	}
	if err != nil {
		return err
	}

	v := superblockView{
		Device:             s.dev.Path,
		UUID:               sb.UUID.String(),
		Version:            sb.Version.String(),
		Label:              sb.Label(),
		SectorStart:        sb.SectorStart,
		SectorSize:         sb.SectorSize,
		ZoneSizeSectors:    sb.ZoneSizeSectors,
		DataStartZone:      sb.DataStartZone,
		MetadataZoneCount:  sb.MetadataZoneCount,
		OverProvisionZones: sb.OverProvisionZones,
		ManagedBlockCount:  sb.ManagedBlockCount,
		DiscardEnabled:     sb.DiscardEnabled != 0,
		DiskType:           sb.DiskType,
		ZacZbcMode:         sb.ZacZbcMode,
		Checksum:           fmt.Sprintf("0x%08x", sb.Checksum),
	}
	return render(cmd.OutOrStdout(), v, func(w io.Writer) error {
		fmt.Fprintf(w, "Device: %s\n", v.Device)
		fmt.Fprintf(w, "  UUID:             %s\n", v.UUID)
		fmt.Fprintf(w, "  Version:          %s\n", v.Version)
		fmt.Fprintf(w, "  Label:            %q\n", v.Label)
		fmt.Fprintf(w, "  Sector start:     %d\n", v.SectorStart)
		fmt.Fprintf(w, "  Sector size:      %d\n", v.SectorSize)
		fmt.Fprintf(w, "  Zone size:        0x%x sectors\n", v.ZoneSizeSectors)
		fmt.Fprintf(w, "  Data start zone:  %d\n", v.DataStartZone)
		fmt.Fprintf(w, "  Metadata zones:   %d\n", v.MetadataZoneCount)
		fmt.Fprintf(w, "  Over-provision:   %d zones\n", v.OverProvisionZones)
		fmt.Fprintf(w, "  Managed blocks:   %d\n", v.ManagedBlockCount)
		fmt.Fprintf(w, "  Discard:          %t\n", v.DiscardEnabled)
		fmt.Fprintf(w, "  Disk type:        %d (zac/zbc mode %d)\n", v.DiskType, v.ZacZbcMode)
		_, err := fmt.Fprintf(w, "  Checksum:         %s\n", v.Checksum)
		return err
	})
}
