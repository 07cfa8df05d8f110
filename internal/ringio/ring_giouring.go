//go:build linux && giouring

package ringio

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
)

// Available reports whether New can succeed
const Available = true

// Reader is an io.ReaderAt that issues IORING_OP_READ on a file descriptor.
// Reads are serialized; the ring is small and each read waits for its own
// completion.
type Reader struct {
	mu   sync.Mutex
	ring *giouring.Ring
	fd   int
}

// New creates a ring with the given number of entries over fd. The caller
// keeps ownership of fd.
func New(fd int, entries uint32) (*Reader, error) {
	if entries == 0 {
		entries = DefaultEntries
	}
	ring, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("create ring: %w", err)
	}
	return &Reader{ring: ring, fd: fd}, nil
}

func (r *Reader) readOnce(p []byte, off int64) (int, error) {
	sqe := r.ring.GetSQE()
	if sqe == nil {
		return 0, fmt.Errorf("submission queue full")
	}
	sqe.PrepareRead(r.fd, uintptr(unsafe.Pointer(&p[0])), uint32(len(p)), uint64(off))

	if _, err := r.ring.SubmitAndWait(1); err != nil {
		return 0, fmt.Errorf("submit read: %w", err)
	}
	cqe, err := r.ring.WaitCQE()
	if err != nil {
		return 0, fmt.Errorf("wait read: %w", err)
	}
	res := cqe.Res
	r.ring.CQESeen(cqe)
	runtime.KeepAlive(p)

	if res < 0 {
		return 0, syscall.Errno(-res)
	}
	return int(res), nil
}

// ReadAt follows the io.ReaderAt contract
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ring == nil {
		return 0, io.ErrClosedPipe
	}

	total := 0
	for total < len(p) {
		n, err := r.readOnce(p[total:], off+int64(total))
		if err == syscall.EINTR || err == syscall.EAGAIN {
			continue
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
		total += n
	}
	return total, nil
}

// Close tears the ring down
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ring != nil {
		r.ring.QueueExit()
		r.ring = nil
	}
	return nil
}
