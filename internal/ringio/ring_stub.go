//go:build !linux || !giouring

package ringio

// Available reports whether New can succeed
const Available = false

// Reader is unavailable in this build
type Reader struct{}

// New always fails with ErrUnavailable
func New(fd int, entries uint32) (*Reader, error) {
	return nil, ErrUnavailable
}

func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	return 0, ErrUnavailable
}

func (r *Reader) Close() error { return nil }
