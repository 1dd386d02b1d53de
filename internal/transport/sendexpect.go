package transport

import (
	"fmt"
	"time"

	"github.com/dschultz-j2534/op2534/internal/ptmsg"
	"github.com/dschultz-j2534/op2534/internal/support"
)

// ackLine is the device's generic acknowledgement for commands that
// don't carry their own reply payload.
var ackLine = []byte("aro\r\n")

// DeviceError is returned when the device reports a numeric error on an
// "ar\x65" framed reply line.
type DeviceError struct {
	Code int
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device reported error %d", e.Code)
}

// SendExpect writes out (if non-empty) to the OUT endpoint, then, unless
// timeout is zero, reads from the IN endpoint until it sees a device
// error line, the expect pattern (or the generic ack if expect is nil),
// or runs out of time. It returns the bytes read so far, which may
// contain the matched pattern plus any additional framed data that
// arrived in the same chunk (the caller's parser is responsible for
// picking that apart).
func SendExpect(port Port, out []byte, capacity int, timeout time.Duration, expect []byte) ([]byte, error) {
	if len(out) > 0 {
		if _, err := port.Write(out, timeout); err != nil {
			return nil, MapError(err)
		}
	}
	if timeout == 0 {
		return nil, nil
	}

	pattern := expect
	if pattern == nil {
		pattern = ackLine
	}

	deadline := time.Now().Add(timeout)
	var collected []byte
	buf := make([]byte, capacity)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return collected, ptmsg.ErrTimeout
		}
		n, err := port.Read(buf, remaining)
		if err != nil {
			if len(collected) > 0 {
				return collected, nil
			}
			return nil, MapError(err)
		}
		if n == 0 {
			continue
		}
		chunk := buf[:n]
		collected = append(collected, chunk...)

		if idx := errorLineIndex(collected); idx >= 0 {
			code, ok := parseErrorLine(collected[idx:])
			if ok {
				return collected, &DeviceError{Code: code}
			}
		}
		if support.PatternSearch(collected, pattern) >= 0 {
			return collected, nil
		}
	}
}

// errorLineIndex finds the offset of a device error frame: the same
// "ar" prefix every reply uses, with its 3rd byte set to 0x65 ('e')
// instead of a channel-family byte or 'o'.
func errorLineIndex(data []byte) int {
	for i := 0; i+3 <= len(data); i++ {
		if data[i] == 'a' && data[i+1] == 'r' && data[i+2] == 0x65 {
			return i
		}
	}
	return -1
}

// parseErrorLine reads the decimal error code that starts two bytes
// after an "ar\x65" prefix (byte 3 of the frame is a length/type byte
// the code itself doesn't need), stopping at the first non-digit.
func parseErrorLine(line []byte) (int, bool) {
	if len(line) < 5 {
		return 0, false
	}
	digits := line[4:]
	end := 0
	for end < len(digits) && digits[end] >= '0' && digits[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	v, ok := support.ParseUint32(string(digits[:end]))
	if !ok {
		return 0, false
	}
	return int(v), true
}
