package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/go-zoned"
	"github.com/ehrlich-b/go-zoned/internal/action"
)

var infoCmd = &cobra.Command{
	Use:   "info <device>",
	Short: "Show device geometry",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rv, _, err := cfg.ReportRequest()
		if err != nil {
			return err
		}
		av, err := action.ParseVariant(cfg.ActionVariant)
		if err != nil {
			return err
		}
		s, err := openSession(args, zoned.Options{ReportVariant: rv, ActionVariant: av}, true, false)
		if err != nil {
			return err
		}
		defer s.Close()

		info := s.dev.Info()
		return render(cmd.OutOrStdout(), info, func(w io.Writer) error {
			fmt.Fprintf(w, "Device: %s\n", info.Path)
			fmt.Fprintf(w, "  Size:               %d bytes\n", info.Size)
			fmt.Fprintf(w, "  Logical block size: %d\n", info.LogicalBlockSize)
			if info.ZoneSectors != 0 {
				fmt.Fprintf(w, "  Zone size:          0x%x sectors\n", info.ZoneSectors)
			} else {
				fmt.Fprintf(w, "  Zone size:          unknown\n")
			}
			_, err := fmt.Fprintf(w, "  Variants:           report %s, action %s\n", info.ReportVariant, info.ActionVariant)
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
