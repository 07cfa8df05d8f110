package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/go-zoned"
)

var (
	rangeZone  string
	rangeCount uint64
)

var resetRangeCmd = &cobra.Command{
	Use:   "reset-range <device>",
	Short: "Reset a run of consecutive zones",
	Long: `Reset --count zones starting at the zone-aligned sector --zone.

The zone size comes from sysfs (or --zone-sectors). A run ending inside a
short last zone is clamped to the end of the device.

Examples:
  zonectl reset-range /dev/sdb --zone 0x100000 --count 4`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResetRange,
}

func init() {
	resetRangeCmd.Flags().StringVarP(&rangeZone, "zone", "z", "", "first sector of the run")
	resetRangeCmd.Flags().Uint64VarP(&rangeCount, "count", "c", 1, "number of zones")
	resetRangeCmd.MarkFlagRequired("zone")
	rootCmd.AddCommand(resetRangeCmd)
}

func runResetRange(cmd *cobra.Command, args []string) error {
	start, err := parseNumber(rangeZone)
	if err != nil {
		return fmt.Errorf("--zone: %w", err)
	}

	s, err := openSession(args, zoned.Options{ActionVariant: zoned.ActionRange}, false, false)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := commandContext()
	defer cancel()

	if err := s.dev.ResetZones(ctx, start, rangeCount); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: reset %d zone(s) from 0x%x\n", s.dev.Path, rangeCount, start)
	return nil
}
