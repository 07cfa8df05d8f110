package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ehrlich-b/go-zoned"
	"github.com/ehrlich-b/go-zoned/internal/capture"
	"github.com/ehrlich-b/go-zoned/internal/channel"
	"github.com/ehrlich-b/go-zoned/internal/config"
	"github.com/ehrlich-b/go-zoned/internal/interfaces"
	"github.com/ehrlich-b/go-zoned/internal/logging"
	"github.com/ehrlich-b/go-zoned/internal/ringio"
	"github.com/ehrlich-b/go-zoned/internal/topology"
)

var (
	// Global flags
	cfgFile      string
	verbose      bool
	outputFormat string
	recordFile   string
	replayFile   string
	zoneSectors  uint64

	cfg    *config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "zonectl",
	Short: "Report and manage the zones of a zoned block device",
	Long: `zonectl talks to host-managed and host-aware zoned block devices.

It reports zones through any of the three historical report interfaces,
opens, closes, finishes and resets zones, and probes for a ZDM superblock.

Commands:
  report       Report zones
  zone         Open, close, finish or reset one zone or all zones
  reset-range  Reset a range of zones
  probe        Look for a ZDM superblock
  info         Show device geometry`,
	Version:      "0.1.0-dev",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentPreRunE = loadConfig
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./zonectl.yaml, $HOME/.zonectl/zonectl.yaml or /etc/zonectl/zonectl.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", config.OutputText, "output format (text, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&recordFile, "record", "", "record device exchanges to a transcript file")
	rootCmd.PersistentFlags().StringVar(&replayFile, "replay", "", "answer from a transcript file instead of a device")
	rootCmd.PersistentFlags().Uint64Var(&zoneSectors, "zone-sectors", 0, "zone size in sectors (default: read from sysfs)")
	rootCmd.MarkFlagsMutuallyExclusive("record", "replay")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	v := config.New(nil)
	if err := v.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output")); err != nil {
		return err
	}
	if verbose {
		v.Set("log.level", "debug")
	}

	c, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = c
	logger = cfg.Logger()
	logging.SetDefault(logger)
	logger.Debug("config loaded", "file", v.ConfigFileUsed(), "output", cfg.Output)
	return nil
}

// commandContext is canceled on SIGINT/SIGTERM or after the default timeout
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, zoned.DefaultCommandTimeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// fixedTopology answers every zone size query with one value
type fixedTopology uint64

func (f fixedTopology) ZoneSectors(string) (uint64, error) { return uint64(f), nil }

// session is an open device plus whatever must be flushed or released
// when the command ends
type session struct {
	dev *zoned.Device
	rec *capture.Recorder
	raw *channel.Device
	rdr *ringio.Reader
}

func deviceArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if replayFile != "" {
		return "", nil
	}
	return "", fmt.Errorf("a device path is required")
}

// openSession opens the device named on the command line, or the replay
// transcript. readOnly is honored for real devices only.
func openSession(args []string, opts zoned.Options, readOnly, uring bool) (*session, error) {
	path, err := deviceArg(args)
	if err != nil {
		return nil, err
	}

	opts.Logger = logger
	if zoneSectors != 0 {
		opts.Topology = fixedTopology(zoneSectors)
	} else {
		opts.Topology = topology.New(afero.NewReadOnlyFs(afero.NewOsFs()), cfg.SysfsRoot)
	}

	s := &session{}
	var ch interfaces.Channel

	if replayFile != "" {
		if uring {
			return nil, fmt.Errorf("--uring reads the device and cannot be replayed")
		}
		f, err := os.Open(replayFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		rp, err := capture.Load(f)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", replayFile, err)
		}
		logger.Debug("replaying transcript", "file", replayFile, "device", rp.Path(), "exchanges", rp.Remaining())
		ch = rp
	} else {
		raw, err := channel.Open(path, channel.Options{ReadOnly: readOnly, AllowRegular: true})
		if err != nil {
			return nil, zoned.WrapError("OPEN", err)
		}
		s.raw = raw
		ch = raw

		if uring {
			r, err := ringio.New(raw.Fd(), ringio.DefaultEntries)
			if err != nil {
				raw.Close()
				return nil, err
			}
			s.rdr = r
			opts.Reader = r
		}
		if recordFile != "" {
			s.rec = capture.NewRecorder(raw)
			ch = s.rec
		}
	}

	s.dev = zoned.New(ch, &opts)
	return s, nil
}

// Close releases the device and writes the transcript when recording
func (s *session) Close() error {
	if s.rdr != nil {
		s.rdr.Close()
	}
	var werr error
	if s.rec != nil {
		werr = writeTranscript(s.rec, recordFile)
	}
	if err := s.dev.Close(); err != nil {
		return err
	}
	return werr
}

func writeTranscript(rec *capture.Recorder, file string) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	n, err := rec.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	logger.Debug("transcript written", "file", file, "bytes", n)
	return nil
}
