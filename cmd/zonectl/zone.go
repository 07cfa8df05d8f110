package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/go-zoned"
	"github.com/ehrlich-b/go-zoned/internal/action"
)

var (
	zoneLBA     string
	zoneAll     bool
	zoneATA     bool
	zoneForce   bool
	zoneVariant string
)

var zoneCmd = &cobra.Command{
	Use:   "zone",
	Short: "Open, close, finish or reset zones",
	Long: `Send a zone action to one zone, or to every zone with --all.

The structured variant (BLKZONEACTION) accepts --force, the opcode variant
accepts --ata, and the range variant (mainline BLK*ZONE) accepts neither.

Examples:
  zonectl zone reset /dev/sdb --zone 0x80000
  zonectl zone finish /dev/sdb --all --variant structured`,
}

func newActionCommand(a action.Action) *cobra.Command {
	return &cobra.Command{
		Use:   a.String() + " <device>",
		Short: fmt.Sprintf("%s %s", capitalize(a.String()), "one zone or all zones"),
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runZoneAction(cmd, args, a)
		},
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

func init() {
	zoneCmd.PersistentFlags().StringVarP(&zoneLBA, "zone", "z", "", "first sector of the target zone")
	zoneCmd.PersistentFlags().BoolVar(&zoneAll, "all", false, "act on every zone")
	zoneCmd.PersistentFlags().BoolVar(&zoneATA, "ata", false, "use ATA addressing (opcode variant)")
	zoneCmd.PersistentFlags().BoolVar(&zoneForce, "force", false, "force unit access (structured variant)")
	zoneCmd.PersistentFlags().StringVar(&zoneVariant, "variant", "", "action interface: structured, opcode or range (default from config)")
	zoneCmd.MarkFlagsMutuallyExclusive("zone", "all")
	zoneCmd.MarkFlagsOneRequired("zone", "all")

	for _, a := range []action.Action{action.Open, action.Close, action.Finish, action.Reset} {
		zoneCmd.AddCommand(newActionCommand(a))
	}
	rootCmd.AddCommand(zoneCmd)
}

func runZoneAction(cmd *cobra.Command, args []string, a action.Action) error {
	name := cfg.ActionVariant
	if cmd.Flags().Changed("variant") {
		name = zoneVariant
	}
	variant, err := action.ParseVariant(name)
	if err != nil {
		return err
	}

	req := zoned.ActionRequest{
		Action:         a,
		AllZones:       zoneAll,
		Force:          zoneForce,
		ATAPassthrough: zoneATA,
	}
	if !zoneAll {
		if req.StartLBA, err = parseNumber(zoneLBA); err != nil {
			return fmt.Errorf("--zone: %w", err)
		}
	}

	s, err := openSession(args, zoned.Options{ActionVariant: variant}, false, false)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := commandContext()
	defer cancel()

	if err := s.dev.ZoneAction(ctx, req); err != nil {
		return err
	}

	target := fmt.Sprintf("zone 0x%x", req.StartLBA)
	if zoneAll {
		target = "all zones"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s\n", s.dev.Path, a, target)
	return nil
}
