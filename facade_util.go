package op2534

import (
	"bytes"
	"strings"

	"github.com/dschultz-j2534/op2534/internal/support"
)

func indexOf(data []byte, s string) int {
	return bytes.Index(data, []byte(s))
}

func indexOfAny(data []byte, chars string) int {
	return bytes.IndexAny(data, chars)
}

func fieldsOf(data []byte) [][]byte {
	return bytes.Fields(data)
}

func parseLast(fields [][]byte) (uint32, bool) {
	return support.ParseUint32(string(fields[len(fields)-1]))
}

// parseFirmware extracts the firmware identifier from an "ari <text>"
// reply: the token after the last ':' on the ari line, trimmed of the
// line terminator.
func parseFirmware(reply []byte) string {
	idx := indexOf(reply, "ari ")
	if idx < 0 {
		return ""
	}
	line := reply[idx:]
	if end := indexOfAny(line, "\r\n"); end >= 0 {
		line = line[:end]
	}
	s := string(line)
	if i := bytes.LastIndexByte(line, ':'); i >= 0 {
		s = string(line[i+1:])
	}
	return strings.TrimSpace(s)
}
