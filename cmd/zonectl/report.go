package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/go-zoned"
	"github.com/ehrlich-b/go-zoned/internal/report"
)

var (
	reportZone    string
	reportLength  uint32
	reportOption  string
	reportATA     bool
	reportForce   bool
	reportVariant string
)

var reportCmd = &cobra.Command{
	Use:   "report <device>",
	Short: "Report the zones of a device",
	Long: `Report zones starting at --zone.

Variant a and b use the BLKREPORT interface with big-endian descriptors
(little-endian answers from quirky HBAs are detected). Variant c uses the
mainline BLKREPORTZONE interface. --option selects zones by condition;
variant c always reports all zones and rejects any other option, as it
rejects --force and --ata.

Examples:
  zonectl report /dev/sdb
  zonectl report /dev/sdb --variant a --option full
  zonectl report /dev/sdb --zone 0x80000 --length 131072 -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportZone, "zone", "z", "0", "first sector to report from")
	reportCmd.Flags().Uint32VarP(&reportLength, "length", "l", 0, "response buffer size in bytes (default from config)")
	reportCmd.Flags().StringVar(&reportOption, "option", "", "report option: a number or all, empty, implicit-open, explicit-open, closed, full, read-only, offline, reset, non-seq, non-wp")
	reportCmd.Flags().BoolVar(&reportATA, "ata", false, "use ATA pass-through")
	reportCmd.Flags().BoolVar(&reportForce, "force", false, "force media access (variant b)")
	reportCmd.Flags().StringVar(&reportVariant, "variant", "", "report interface: a, b or c (default from config)")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	variant, filter, err := cfg.ReportRequest()
	if err != nil {
		return err
	}
	req := zoned.ReportRequest{
		Length:         cfg.ReportLength,
		Filter:         filter,
		ATAPassthrough: cfg.ATAPassthrough,
		Force:          reportForce,
	}

	flags := cmd.Flags()
	if flags.Changed("variant") {
		if variant, err = report.ParseVariant(reportVariant); err != nil {
			return err
		}
	}
	if flags.Changed("option") {
		if req.Filter, err = parseFilter(reportOption); err != nil {
			return err
		}
	}
	if flags.Changed("length") {
		req.Length = reportLength
	}
	if flags.Changed("ata") {
		req.ATAPassthrough = reportATA
	}
	if req.StartLBA, err = parseNumber(reportZone); err != nil {
		return err
	}

	s, err := openSession(args, zoned.Options{ReportVariant: variant}, true, false)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := commandContext()
	defer cancel()

	rep, err := s.dev.ReportZones(ctx, req)
	if err != nil {
		if rep == nil {
			return err
		}
		logger.Warn("partial report", "error", err, "zones", len(rep.Zones))
	}

	path := s.dev.Path
	if werr := render(cmd.OutOrStdout(), newReportView(path, rep), func(w io.Writer) error {
		return writeReportText(w, path, rep)
	}); werr != nil {
		return werr
	}
	return err
}
