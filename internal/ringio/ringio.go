// Package ringio reads device contents through io_uring.
//
// The ring-backed reader is built only with the giouring tag on Linux; other
// builds get a stub whose New fails with ErrUnavailable, and callers fall
// back to pread(2).
package ringio

import "errors"

// ErrUnavailable means the binary was built without io_uring support
var ErrUnavailable = errors.New("io_uring reader not built in (build with -tags giouring)")

// DefaultEntries is the submission queue size used by callers that don't care
const DefaultEntries = 8
