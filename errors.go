package zoned

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/ehrlich-b/go-zoned/internal/action"
	"github.com/ehrlich-b/go-zoned/internal/capture"
	"github.com/ehrlich-b/go-zoned/internal/channel"
	"github.com/ehrlich-b/go-zoned/internal/report"
	"github.com/ehrlich-b/go-zoned/internal/superblock"
)

// Error represents a structured zoned error with context and errno mapping
type Error struct {
	Op     string         // Operation that failed (e.g., "REPORT", "RESET")
	Device string         // Device path ("" if not applicable)
	Zone   uint64         // Zone start LBA (0 if not applicable)
	Code   ZonedErrorCode // High-level error category
	Errno  syscall.Errno  // Kernel errno (0 if not applicable)
	Msg    string         // Human-readable message
	Inner  error          // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Device != "" {
		parts = append(parts, fmt.Sprintf("dev=%s", e.Device))
	}
	if e.Zone != 0 {
		parts = append(parts, fmt.Sprintf("zone=0x%x", e.Zone))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", int(e.Errno)))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		s := parts[0]
		for _, p := range parts[1:] {
			s += ", " + p
		}
		return fmt.Sprintf("zoned: %s (%s)", msg, s)
	}

	return fmt.Sprintf("zoned: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches legacy ZonedError sentinels and other *Error values by code
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if ze, ok := target.(ZonedError); ok {
		return e.Code == ZonedErrorCode(ze)
	}

	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}

	return false
}

// ZonedErrorCode represents high-level error categories
type ZonedErrorCode string

const (
	ErrCodeNotFound          ZonedErrorCode = "not found"
	ErrCodeInvalidArgument   ZonedErrorCode = "invalid argument"
	ErrCodeChannelFailure    ZonedErrorCode = "channel failure"
	ErrCodeMalformedResponse ZonedErrorCode = "malformed response"
	ErrCodeNotSupported      ZonedErrorCode = "not supported"
	ErrCodePermissionDenied  ZonedErrorCode = "permission denied"
	ErrCodeDeviceBusy        ZonedErrorCode = "device busy"
	ErrCodeUnknownZoneSize   ZonedErrorCode = "unknown zone size"
	ErrCodeCanceled          ZonedErrorCode = "operation canceled"
)

// ZonedError is a plain string sentinel; a structured *Error matches the
// sentinel that carries its code.
type ZonedError string

func (e ZonedError) Error() string {
	return string(e)
}

const (
	ErrNotFound          ZonedError = ZonedError(ErrCodeNotFound)
	ErrInvalidArgument   ZonedError = ZonedError(ErrCodeInvalidArgument)
	ErrChannelFailure    ZonedError = ZonedError(ErrCodeChannelFailure)
	ErrMalformedResponse ZonedError = ZonedError(ErrCodeMalformedResponse)
	ErrNotSupported      ZonedError = ZonedError(ErrCodeNotSupported)
	ErrPermissionDenied  ZonedError = ZonedError(ErrCodePermissionDenied)
	ErrDeviceBusy        ZonedError = ZonedError(ErrCodeDeviceBusy)
	ErrUnknownZoneSize   ZonedError = ZonedError(ErrCodeUnknownZoneSize)
	ErrCanceled          ZonedError = ZonedError(ErrCodeCanceled)
)

// NewError creates a new structured error
func NewError(op string, code ZonedErrorCode, msg string) *Error {
	return &Error{
		Op:   op,
		Code: code,
		Msg:  msg,
	}
}

// NewErrorWithErrno creates a new structured error with errno
func NewErrorWithErrno(op string, code ZonedErrorCode, errno syscall.Errno) *Error {
	return &Error{
		Op:    op,
		Code:  code,
		Errno: errno,
		Msg:   errno.Error(),
	}
}

// NewDeviceError creates a new device-specific error
func NewDeviceError(op, device string, code ZonedErrorCode, msg string) *Error {
	return &Error{
		Op:     op,
		Device: device,
		Code:   code,
		Msg:    msg,
	}
}

// sentinelCodes maps package sentinels to error codes. Order matters only
// for errors that wrap more than one sentinel.
var sentinelCodes = []struct {
	err  error
	code ZonedErrorCode
}{
	{context.Canceled, ErrCodeCanceled},
	{context.DeadlineExceeded, ErrCodeCanceled},

	{superblock.ErrNotFound, ErrCodeNotFound},
	{superblock.ErrShortBuffer, ErrCodeInvalidArgument},

	{report.ErrInvalidFilter, ErrCodeInvalidArgument},
	{report.ErrInvalidLength, ErrCodeInvalidArgument},
	{report.ErrUnknownVariant, ErrCodeInvalidArgument},
	{report.ErrUnsupported, ErrCodeNotSupported},
	{report.ErrShortBuffer, ErrCodeMalformedResponse},
	{report.ErrMalformedResponse, ErrCodeMalformedResponse},

	{action.ErrUnknownZoneSize, ErrCodeUnknownZoneSize},
	{action.ErrAllZonesWithLBA, ErrCodeInvalidArgument},
	{action.ErrUnknownAction, ErrCodeInvalidArgument},
	{action.ErrUnknownVariant, ErrCodeInvalidArgument},
	{action.ErrMisaligned, ErrCodeInvalidArgument},
	{action.ErrOutOfRange, ErrCodeInvalidArgument},
	{action.ErrInvalidSize, ErrCodeInvalidArgument},
	{action.ErrZeroCount, ErrCodeInvalidArgument},
	{action.ErrUnsupported, ErrCodeNotSupported},

	{channel.ErrUnsupported, ErrCodeNotSupported},
	{channel.ErrNotBlockDevice, ErrCodeInvalidArgument},
	{channel.ErrEmptyBuffer, ErrCodeInvalidArgument},
	{channel.ErrClosed, ErrCodeChannelFailure},

	{capture.ErrTranscriptExhausted, ErrCodeChannelFailure},
	{capture.ErrTranscriptMismatch, ErrCodeChannelFailure},
	{capture.ErrBadTranscript, ErrCodeChannelFailure},

	{os.ErrNotExist, ErrCodeNotFound},
	{os.ErrPermission, ErrCodePermissionDenied},
}

// WrapError wraps an existing error with zoned context
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	// If it's already a structured error, just update the operation
	var ze *Error
	if errors.As(inner, &ze) {
		return &Error{
			Op:     op,
			Device: ze.Device,
			Zone:   ze.Zone,
			Code:   ze.Code,
			Errno:  ze.Errno,
			Msg:    ze.Msg,
			Inner:  ze.Inner,
		}
	}

	// A failed ioctl keeps the kernel's errno
	var ce *channel.CommandError
	if errors.As(inner, &ce) {
		return &Error{
			Op:    op,
			Code:  ErrCodeChannelFailure,
			Errno: ce.Errno,
			Msg:   inner.Error(),
			Inner: inner,
		}
	}

	for _, s := range sentinelCodes {
		if errors.Is(inner, s.err) {
			e := &Error{
				Op:    op,
				Code:  s.code,
				Msg:   inner.Error(),
				Inner: inner,
			}
			var errno syscall.Errno
			if errors.As(inner, &errno) {
				e.Errno = errno
			}
			return e
		}
	}

	// Map common syscall errors to zoned error codes
	var errno syscall.Errno
	if errors.As(inner, &errno) {
		return &Error{
			Op:    op,
			Code:  mapErrnoToCode(errno),
			Errno: errno,
			Msg:   inner.Error(),
			Inner: inner,
		}
	}

	return &Error{
		Op:    op,
		Code:  ErrCodeChannelFailure,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// wrapDeviceError is WrapError with the device and zone filled in
func wrapDeviceError(op, device string, zone uint64, inner error) *Error {
	e := WrapError(op, inner)
	if e == nil {
		return nil
	}
	if e.Device == "" {
		e.Device = device
	}
	if e.Zone == 0 {
		e.Zone = zone
	}
	return e
}

// mapErrnoToCode maps errnos that do not come from a failed ioctl
func mapErrnoToCode(errno syscall.Errno) ZonedErrorCode {
	switch errno {
	case syscall.ENOENT, syscall.ENXIO, syscall.ENODEV:
		return ErrCodeNotFound
	case syscall.EBUSY:
		return ErrCodeDeviceBusy
	case syscall.EINVAL, syscall.E2BIG, syscall.ERANGE:
		return ErrCodeInvalidArgument
	case syscall.ENOSYS, syscall.EOPNOTSUPP, syscall.ENOTTY:
		return ErrCodeNotSupported
	case syscall.EPERM, syscall.EACCES, syscall.EROFS:
		return ErrCodePermissionDenied
	default:
		return ErrCodeChannelFailure
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ZonedErrorCode) bool {
	var zerr *Error
	if errors.As(err, &zerr) {
		return zerr.Code == code
	}
	return false
}

// IsErrno checks if an error matches a specific errno
func IsErrno(err error, errno syscall.Errno) bool {
	var zerr *Error
	if errors.As(err, &zerr) {
		return zerr.Errno == errno
	}
	return false
}
