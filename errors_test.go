package zoned

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/ehrlich-b/go-zoned/internal/action"
	"github.com/ehrlich-b/go-zoned/internal/channel"
	"github.com/ehrlich-b/go-zoned/internal/report"
	"github.com/ehrlich-b/go-zoned/internal/superblock"
)

func TestStructuredError(t *testing.T) {
	err := NewError("REPORT", ErrCodeInvalidArgument, "length not a multiple of 512")

	if err.Op != "REPORT" {
		t.Errorf("Expected Op=REPORT, got %s", err.Op)
	}

	if err.Code != ErrCodeInvalidArgument {
		t.Errorf("Expected Code=ErrCodeInvalidArgument, got %s", err.Code)
	}

	expected := "zoned: length not a multiple of 512 (op=REPORT)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}

	dev := NewDeviceError("RESET", "/dev/sdb", ErrCodeDeviceBusy, "")
	dev.Zone = 0x80000
	expected = "zoned: device busy (op=RESET, dev=/dev/sdb, zone=0x80000)"
	if dev.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, dev.Error())
	}
}

func TestWrapError(t *testing.T) {
	err := WrapError("OPEN", syscall.ENOENT)

	if err.Code != ErrCodeNotFound {
		t.Errorf("Expected Code=ErrCodeNotFound, got %s", err.Code)
	}

	if err.Errno != syscall.ENOENT {
		t.Errorf("Expected Errno=ENOENT, got %v", err.Errno)
	}

	if !errors.Is(err, syscall.ENOENT) {
		t.Error("Expected wrapped error to satisfy errors.Is for ENOENT")
	}

	if WrapError("OPEN", nil) != nil {
		t.Error("WrapError(nil) should be nil")
	}

	again := WrapError("PROBE", err)
	if again.Op != "PROBE" || again.Code != ErrCodeNotFound || again.Errno != syscall.ENOENT {
		t.Errorf("rewrapping lost context: %+v", again)
	}
}

func TestWrapCodecErrors(t *testing.T) {
	testCases := []struct {
		inner error
		code  ZonedErrorCode
	}{
		{fmt.Errorf("probe: %w", superblock.ErrNotFound), ErrCodeNotFound},
		{fmt.Errorf("%w: 0x40 is reserved", report.ErrInvalidFilter), ErrCodeInvalidArgument},
		{report.ErrInvalidLength, ErrCodeInvalidArgument},
		{report.ErrUnsupported, ErrCodeNotSupported},
		{fmt.Errorf("descriptor 2: %w", report.ErrMalformedResponse), ErrCodeMalformedResponse},
		{action.ErrAllZonesWithLBA, ErrCodeInvalidArgument},
		{action.ErrUnknownZoneSize, ErrCodeUnknownZoneSize},
		{action.ErrOutOfRange, ErrCodeInvalidArgument},
		{channel.ErrClosed, ErrCodeChannelFailure},
		{context.Canceled, ErrCodeCanceled},
		{errors.New("something else"), ErrCodeChannelFailure},
	}

	for _, tc := range testCases {
		err := WrapError("TEST", tc.inner)
		if err.Code != tc.code {
			t.Errorf("WrapError(%v).Code = %s, want %s", tc.inner, err.Code, tc.code)
		}
		if !errors.Is(err, tc.inner) {
			t.Errorf("WrapError(%v) does not unwrap to its cause", tc.inner)
		}
	}
}

func TestWrapCommandError(t *testing.T) {
	inner := fmt.Errorf("report: %w", &channel.CommandError{Cmd: "BLKREPORT", Op: 0xc0101283, Errno: syscall.ENOTTY})
	err := WrapError("REPORT", inner)

	if err.Code != ErrCodeChannelFailure {
		t.Errorf("Expected Code=ErrCodeChannelFailure, got %s", err.Code)
	}
	if !IsErrno(err, syscall.ENOTTY) {
		t.Errorf("Expected errno ENOTTY, got %v", err.Errno)
	}
	if !errors.Is(err, ErrChannelFailure) {
		t.Error("command failure should match ErrChannelFailure")
	}
}

func TestSentinelErrors(t *testing.T) {
	var sentinelErr error = ErrNotFound

	structuredErr := &Error{Code: ErrCodeNotFound}

	if !errors.Is(structuredErr, ErrNotFound) {
		t.Error("Structured error should match sentinel via errors.Is")
	}
	if errors.Is(structuredErr, ErrDeviceBusy) {
		t.Error("Structured error should not match another sentinel")
	}

	if sentinelErr.Error() != "not found" {
		t.Errorf("Expected sentinel error message, got %q", sentinelErr.Error())
	}

	wrappedErr := WrapError("PROBE", fmt.Errorf("probe: %w", superblock.ErrNotFound))
	if !errors.Is(wrappedErr, ErrNotFound) {
		t.Error("Wrapped superblock.ErrNotFound should match ErrNotFound")
	}
	if !errors.Is(wrappedErr, superblock.ErrNotFound) {
		t.Error("Wrapped error should still match the package sentinel")
	}
}

func TestIsCode(t *testing.T) {
	err := NewError("TEST", ErrCodeUnknownZoneSize, "chunk_sectors is 0")

	if !IsCode(err, ErrCodeUnknownZoneSize) {
		t.Error("IsCode should return true for matching code")
	}

	if IsCode(err, ErrCodeChannelFailure) {
		t.Error("IsCode should return false for non-matching code")
	}

	if IsCode(nil, ErrCodeUnknownZoneSize) {
		t.Error("IsCode should return false for nil error")
	}

	if !IsCode(fmt.Errorf("outer: %w", err), ErrCodeUnknownZoneSize) {
		t.Error("IsCode should look through wrapping")
	}
}

func TestIsErrno(t *testing.T) {
	err := WrapError("TEST", syscall.EIO)

	if !IsErrno(err, syscall.EIO) {
		t.Error("IsErrno should return true for matching errno")
	}

	if IsErrno(err, syscall.EPERM) {
		t.Error("IsErrno should return false for non-matching errno")
	}

	if IsErrno(nil, syscall.EIO) {
		t.Error("IsErrno should return false for nil error")
	}
}

func TestErrnoMapping(t *testing.T) {
	testCases := []struct {
		errno    syscall.Errno
		expected ZonedErrorCode
	}{
		{syscall.ENOENT, ErrCodeNotFound},
		{syscall.ENXIO, ErrCodeNotFound},
		{syscall.EBUSY, ErrCodeDeviceBusy},
		{syscall.EINVAL, ErrCodeInvalidArgument},
		{syscall.EPERM, ErrCodePermissionDenied},
		{syscall.EROFS, ErrCodePermissionDenied},
		{syscall.ENOTTY, ErrCodeNotSupported},
		{syscall.EIO, ErrCodeChannelFailure},
	}

	for _, tc := range testCases {
		code := mapErrnoToCode(tc.errno)
		if code != tc.expected {
			t.Errorf("mapErrnoToCode(%v) = %s, want %s", tc.errno, code, tc.expected)
		}
	}
}
