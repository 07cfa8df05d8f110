//go:build !linux

package channel

import (
	"context"

	"github.com/ehrlich-b/go-zoned/internal/uapi"
)

// Device is an open block device node
type Device struct{}

// Open is not supported on this platform
func Open(path string, opts Options) (*Device, error) {
	return nil, ErrUnsupported
}

func (d *Device) Path() string { return "" }

func (d *Device) Submit(ctx context.Context, cmd *uapi.Command) error {
	return ErrUnsupported
}

func (d *Device) Size() (int64, error)              { return 0, ErrUnsupported }
func (d *Device) LogicalBlockSize() (uint32, error) { return 0, ErrUnsupported }
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	return 0, ErrUnsupported
}
func (d *Device) Fd() int      { return -1 }
func (d *Device) Close() error { return nil }
