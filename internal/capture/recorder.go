package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/ehrlich-b/go-zoned/internal/interfaces"
	"github.com/ehrlich-b/go-zoned/internal/uapi"
)

// Recorder is a Channel that forwards to another channel and keeps a copy
// of every exchange
type Recorder struct {
	mu     sync.Mutex
	inner  interfaces.Channel
	header Header
	log    []Exchange
}

// NewRecorder wraps ch. Device geometry is captured up front when ch
// implements interfaces.SizedChannel.
func NewRecorder(ch interfaces.Channel) *Recorder {
	r := &Recorder{
		inner: ch,
		header: Header{
			Version: FormatVersion,
			Created: time.Now().UTC(),
		},
	}
	if nc, ok := ch.(interfaces.NamedChannel); ok {
		r.header.Device = nc.Path()
	}
	if sc, ok := ch.(interfaces.SizedChannel); ok {
		if n, err := sc.Size(); err == nil {
			r.header.Size = n
		}
		if n, err := sc.LogicalBlockSize(); err == nil {
			r.header.LogicalBlockSize = n
		}
	}
	return r
}

func errnoOf(err error) uint32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}
	return 0
}

// Submit forwards cmd and records the request and response buffers
func (r *Recorder) Submit(ctx context.Context, cmd *uapi.Command) error {
	ex := Exchange{
		Kind: KindIoctl,
		Name: cmd.Name,
		Op:   cmd.Op,
		Dir:  uint8(cmd.Dir),
		Arg:  cmd.Arg,
	}
	if cmd.HasBuffer() {
		ex.Request = bytes.Clone(cmd.Buf)
	}

	err := r.inner.Submit(ctx, cmd)
	if err != nil && ctx.Err() != nil {
		// the device never saw it
		return err
	}

	if err == nil && cmd.HasBuffer() && cmd.Dir != uapi.DirWrite && cmd.Dir != uapi.DirNone {
		ex.Response = bytes.Clone(cmd.Buf)
	}
	ex.Errno = errnoOf(err)
	if err != nil && ex.Errno == 0 {
		ex.Errno = uint32(syscall.EIO)
	}

	r.mu.Lock()
	r.log = append(r.log, ex)
	r.mu.Unlock()
	return err
}

// ReadAt forwards to the wrapped channel when it can read
func (r *Recorder) ReadAt(p []byte, off int64) (int, error) {
	rc, ok := r.inner.(interfaces.ReaderChannel)
	if !ok {
		return 0, errors.ErrUnsupported
	}

	n, err := rc.ReadAt(p, off)
	ex := Exchange{
		Kind:     KindRead,
		Arg:      uint64(len(p)),
		Offset:   off,
		Response: bytes.Clone(p[:n]),
		Errno:    errnoOf(err),
		EOF:      errors.Is(err, io.EOF),
	}
	if err != nil && !ex.EOF && ex.Errno == 0 {
		ex.Errno = uint32(syscall.EIO)
	}

	r.mu.Lock()
	r.log = append(r.log, ex)
	r.mu.Unlock()
	return n, err
}

// Size reports the size captured when the recorder was created
func (r *Recorder) Size() (int64, error) {
	if sc, ok := r.inner.(interfaces.SizedChannel); ok {
		return sc.Size()
	}
	return 0, errors.ErrUnsupported
}

// LogicalBlockSize reports the logical block size of the wrapped channel
func (r *Recorder) LogicalBlockSize() (uint32, error) {
	if sc, ok := r.inner.(interfaces.SizedChannel); ok {
		return sc.LogicalBlockSize()
	}
	return 0, errors.ErrUnsupported
}

// Path returns the recorded device path
func (r *Recorder) Path() string {
	return r.header.Device
}

// Transcript returns a snapshot of everything recorded so far
func (r *Recorder) Transcript() *Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &Transcript{Header: r.header}
	t.Exchanges = append(t.Exchanges, r.log...)
	return t
}

// WriteTo encodes the transcript to w
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	err := r.Transcript().Encode(cw)
	return cw.n, err
}

// Close closes the wrapped channel
func (r *Recorder) Close() error {
	return r.inner.Close()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
