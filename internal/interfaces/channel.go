// Package interfaces holds the contracts between the zone codecs and the
// outside world: the device channel that carries encoded commands and the
// topology source that knows a device's zone geometry.
package interfaces

import (
	"context"

	"github.com/ehrlich-b/go-zoned/internal/uapi"
)

// Channel carries encoded zone commands to a device.
//
// Submit hands cmd to the device. When cmd.Buf is set the device reads the
// request from it and, for read and read-write commands, writes the
// response back in place. Otherwise cmd.Arg is the scalar argument. Submit
// never retries; a device failure is returned as is, with the errno kept
// when there is one.
//
// Implementations must not retain cmd.Buf after Submit returns.
type Channel interface {
	Submit(ctx context.Context, cmd *uapi.Command) error

	// Close releases the channel. No other method may be called afterwards.
	Close() error
}

// SizedChannel is an optional interface for channels that know the
// device geometry.
type SizedChannel interface {
	Channel

	// Size returns the device size in bytes (BLKGETSIZE64).
	Size() (int64, error)

	// LogicalBlockSize returns the logical block size in bytes (BLKSSZGET).
	LogicalBlockSize() (uint32, error)
}

// ReaderChannel is an optional interface for channels that can read the
// device contents, used to probe for a superblock.
type ReaderChannel interface {
	Channel

	// ReadAt follows the io.ReaderAt contract.
	ReadAt(p []byte, off int64) (n int, err error)
}

// NamedChannel is an optional interface for channels bound to a device
// node; Path is used for logging and topology lookups.
type NamedChannel interface {
	Channel

	Path() string
}

// TopologySource answers geometry questions about a device.
type TopologySource interface {
	// ZoneSectors returns the zone size of device in 512-byte sectors.
	// Zero means the size is unknown, which range operations treat as fatal.
	ZoneSectors(device string) (uint64, error)
}
