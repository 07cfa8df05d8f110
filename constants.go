package zoned

import "github.com/ehrlich-b/go-zoned/internal/constants"

// Re-export constants for public API
const (
	DefaultReportLength     = constants.DefaultReportLength
	MinReportLength         = constants.MinReportLength
	MaxReportLength         = constants.MaxReportLength
	DefaultLogicalBlockSize = constants.DefaultLogicalBlockSize
	SuperblockProbeSize     = constants.SuperblockProbeSize
	DefaultRingEntries      = constants.DefaultRingEntries
	DefaultCommandTimeout   = constants.DefaultCommandTimeout
)
