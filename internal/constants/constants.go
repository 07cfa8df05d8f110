package constants

import "time"

// Default configuration constants
const (
	// DefaultReportLength is the default report buffer size in bytes (64KB,
	// room for 1023 legacy or 1023 mainline descriptors)
	DefaultReportLength = 64 << 10

	// MinReportLength is the smallest report buffer accepted
	MinReportLength = 512

	// MaxReportLength is the largest report buffer accepted (512KB)
	MaxReportLength = 512 << 10

	// DefaultLogicalBlockSize is the logical block size assumed when the
	// channel cannot report one
	DefaultLogicalBlockSize = 512

	// SuperblockProbeSize is how much of a device is read when probing for
	// a superblock
	SuperblockProbeSize = 4096

	// DefaultRingEntries is the io_uring size used for superblock probes
	DefaultRingEntries = 8
)

// Timing constants
const (
	// DefaultCommandTimeout bounds a single CLI command when no deadline is
	// set by the caller
	DefaultCommandTimeout = 30 * time.Second
)
