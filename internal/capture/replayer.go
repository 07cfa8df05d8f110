package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"syscall"

	"github.com/ehrlich-b/go-zoned/internal/channel"
	"github.com/ehrlich-b/go-zoned/internal/uapi"
)

// Replayer is a Channel that answers from a transcript, in order. Every
// call must match the next recorded exchange.
type Replayer struct {
	mu   sync.Mutex
	t    *Transcript
	next int
}

// NewReplayer returns a replayer over t
func NewReplayer(t *Transcript) *Replayer {
	return &Replayer{t: t}
}

// Load decodes a transcript from r and returns a replayer over it
func Load(r io.Reader) (*Replayer, error) {
	t, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return NewReplayer(t), nil
}

func (p *Replayer) take(kind Kind) (*Exchange, error) {
	if p.next >= len(p.t.Exchanges) {
		return nil, fmt.Errorf("%w after %d exchanges", ErrTranscriptExhausted, p.next)
	}
	ex := &p.t.Exchanges[p.next]
	if ex.Kind != kind {
		return nil, fmt.Errorf("%w: exchange %d is %s, got %s", ErrTranscriptMismatch, p.next, ex.Kind, kind)
	}
	p.next++
	return ex, nil
}

// Submit replays the next ioctl exchange into cmd
func (p *Replayer) Submit(ctx context.Context, cmd *uapi.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.next
	ex, err := p.take(KindIoctl)
	if err != nil {
		return err
	}

	var req []byte
	if cmd.HasBuffer() {
		req = cmd.Buf
	}
	if ex.Op != cmd.Op || ex.Arg != cmd.Arg || !bytes.Equal(ex.Request, req) {
		p.next = idx
		return fmt.Errorf("%w: exchange %d is %s, got %s", ErrTranscriptMismatch, idx, ex.Name, cmd)
	}

	if ex.Errno != 0 {
		return &channel.CommandError{Cmd: cmd.Name, Op: cmd.Op, Errno: syscall.Errno(ex.Errno)}
	}
	copy(cmd.Buf, ex.Response)
	return nil
}

// ReadAt replays the next read exchange
func (p *Replayer) ReadAt(b []byte, off int64) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.next
	ex, err := p.take(KindRead)
	if err != nil {
		return 0, err
	}
	if ex.Offset != off || ex.Arg != uint64(len(b)) {
		p.next = idx
		return 0, fmt.Errorf("%w: exchange %d reads %d bytes at %d, got %d at %d",
			ErrTranscriptMismatch, idx, ex.Arg, ex.Offset, len(b), off)
	}

	n := copy(b, ex.Response)
	switch {
	case ex.Errno != 0:
		return n, syscall.Errno(ex.Errno)
	case ex.EOF:
		return n, io.EOF
	}
	return n, nil
}

// Size returns the recorded device size
func (p *Replayer) Size() (int64, error) {
	return p.t.Header.Size, nil
}

// LogicalBlockSize returns the recorded logical block size
func (p *Replayer) LogicalBlockSize() (uint32, error) {
	return p.t.Header.LogicalBlockSize, nil
}

// Path returns the recorded device path
func (p *Replayer) Path() string {
	return p.t.Header.Device
}

// Remaining is the number of exchanges not yet replayed
func (p *Replayer) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.t.Exchanges) - p.next
}

// Close is a no-op
func (p *Replayer) Close() error {
	return nil
}
