package transport

import (
	"context"
	"errors"
	"strings"

	"github.com/dschultz-j2534/op2534/internal/ptmsg"
)

// MapError classifies a transport-layer failure into the J2534 error code
// a caller would get back. gousb does not expose one tidy typed error for
// every libusb failure mode the way a C binding does, so — following the
// same technique the rest of this codebase's ancestry uses to classify
// shell/process failures it cannot type-switch on — unrecognised errors
// are classified by matching known substrings.
func MapError(err error) ptmsg.Error {
	if err == nil {
		return ptmsg.NoError
	}
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return ptmsg.Error(devErr.Code)
	}
	var code ptmsg.Error
	if errors.As(err, &code) {
		return code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ptmsg.ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "no device", "not found", "no such device", "disconnected", "i/o error", "input/output error"):
		return ptmsg.ErrDeviceNotConnected
	case containsAny(msg, "busy", "access denied", "permission denied", "in use"):
		return ptmsg.ErrDeviceInUse
	case containsAny(msg, "timeout", "timed out"):
		return ptmsg.ErrTimeout
	case containsAny(msg, "overflow"):
		return ptmsg.ErrBufferOverflow
	case containsAny(msg, "no memory", "out of memory", "insufficient"):
		return ptmsg.ErrExceededLimit
	case containsAny(msg, "not supported"):
		return ptmsg.ErrNotSupported
	default:
		return ptmsg.ErrFailed
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
