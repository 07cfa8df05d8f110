//go:build linux

package channel

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-zoned/internal/logging"
	"github.com/ehrlich-b/go-zoned/internal/uapi"
)

// Device is an open block device node
type Device struct {
	mu     sync.RWMutex
	fd     int
	path   string
	logger *logging.Logger
}

// Open opens a block device node
func Open(path string, opts Options) (*Device, error) {
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if opts.ReadOnly {
		flags = unix.O_RDONLY | unix.O_CLOEXEC
	}

	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFBLK:
	case unix.S_IFREG:
		if !opts.AllowRegular {
			unix.Close(fd)
			return nil, fmt.Errorf("%s: %w", path, ErrNotBlockDevice)
		}
	default:
		unix.Close(fd)
		return nil, fmt.Errorf("%s: %w", path, ErrNotBlockDevice)
	}

	d := &Device{
		fd:     fd,
		path:   path,
		logger: logging.Default().WithDevice(path),
	}
	d.logger.Debug("device opened", "read_only", opts.ReadOnly)
	return d, nil
}

// Path returns the device node path
func (d *Device) Path() string {
	return d.path
}

// Submit issues cmd as an ioctl on the device
func (d *Device) Submit(ctx context.Context, cmd *uapi.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.fd < 0 {
		return ErrClosed
	}

	arg := uintptr(cmd.Arg)
	if cmd.HasBuffer() {
		if len(cmd.Buf) == 0 {
			return ErrEmptyBuffer
		}
		arg = uintptr(unsafe.Pointer(&cmd.Buf[0]))
	}

	d.logger.Debug("submitting command", "cmd", cmd.String())

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(cmd.Op), arg)
	runtime.KeepAlive(cmd.Buf)
	if errno != 0 {
		d.logger.WithOp(cmd.Name).Debug("command failed", "errno", int(errno))
		return commandError(cmd, errno)
	}
	return nil
}

// Size returns the device size in bytes
func (d *Device) Size() (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.fd < 0 {
		return 0, ErrClosed
	}

	var st unix.Stat_t
	if err := unix.Fstat(d.fd, &st); err == nil && st.Mode&unix.S_IFMT == unix.S_IFREG {
		return st.Size, nil
	}

	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(unix.BLKGETSIZE64), uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, &CommandError{Cmd: "BLKGETSIZE64", Op: uint32(unix.BLKGETSIZE64), Errno: errno}
	}
	return int64(size), nil
}

// LogicalBlockSize returns the logical block size in bytes
func (d *Device) LogicalBlockSize() (uint32, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.fd < 0 {
		return 0, ErrClosed
	}

	var st unix.Stat_t
	if err := unix.Fstat(d.fd, &st); err == nil && st.Mode&unix.S_IFMT == unix.S_IFREG {
		return uapi.SectorSize, nil
	}

	n, err := unix.IoctlGetInt(d.fd, unix.BLKSSZGET)
	if err != nil {
		return 0, fmt.Errorf("BLKSSZGET: %w", err)
	}
	return uint32(n), nil
}

// ReadAt reads from the device with pread(2)
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.fd < 0 {
		return 0, ErrClosed
	}

	total := 0
	for total < len(p) {
		n, err := unix.Pread(d.fd, p[total:], off+int64(total))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
		total += n
	}
	return total, nil
}

// Fd returns the raw descriptor, for io_uring reads
func (d *Device) Fd() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fd
}

// Close closes the device node
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	d.logger.Debug("device closed")
	return err
}
