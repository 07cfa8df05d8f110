// Package channel is the block device channel: it submits encoded zone
// commands to a device node with ioctl(2) and reads device contents for
// superblock probing.
package channel

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/ehrlich-b/go-zoned/internal/uapi"
)

var (
	ErrClosed         = errors.New("channel closed")
	ErrNotBlockDevice = errors.New("not a block device")
	ErrEmptyBuffer    = errors.New("command buffer is empty")
	ErrUnsupported    = errors.New("block device channel not supported on this platform")
)

// Options control how a device node is opened
type Options struct {
	// ReadOnly opens the node O_RDONLY. Report and probe need nothing more;
	// zone actions need write access.
	ReadOnly bool

	// AllowRegular accepts regular files, which is only useful for probing
	// images; zone ioctls on them fail with ENOTTY.
	AllowRegular bool
}

// CommandError is a failed ioctl. Errno is the kernel's answer, kept as is.
type CommandError struct {
	Cmd   string
	Op    uint32
	Errno syscall.Errno
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s (0x%08x): %v", e.Cmd, e.Op, e.Errno)
}

func (e *CommandError) Unwrap() error {
	return e.Errno
}

func commandError(cmd *uapi.Command, errno syscall.Errno) error {
	return &CommandError{Cmd: cmd.Name, Op: cmd.Op, Errno: errno}
}
