package protocol

import "fmt"

// The device accepts ASCII command lines terminated \r\n, some of which
// are followed immediately by a raw binary payload on the same bulk-OUT
// transfer.

// BuildATI builds the device-identification request.
func BuildATI() []byte { return []byte("ati\r\n") }

// BuildATA builds the interface-activate request, sent once after open.
func BuildATA() []byte { return []byte("ata\r\n") }

// BuildATZ builds the interface-deactivate request, sent before close.
func BuildATZ() []byte { return []byte("atz\r\n") }

// BuildATO builds a channel-open request for the given protocol id.
func BuildATO(protocolID, flags, baud uint32) []byte {
	return []byte(fmt.Sprintf("ato%d %d %d 0\r\n", protocolID, flags, baud))
}

// BuildATC builds a channel-close request.
func BuildATC(channel uint32) []byte {
	return []byte(fmt.Sprintf("atc%d\r\n", channel))
}

// BuildATT builds a transmit request for one message: the ascii header
// followed immediately by the raw payload bytes.
func BuildATT(channel, txFlags uint32, payload []byte) []byte {
	head := fmt.Sprintf("att%d %d %d\r\n", channel, len(payload), txFlags)
	buf := make([]byte, 0, len(head)+len(payload))
	buf = append(buf, head...)
	buf = append(buf, payload...)
	return buf
}

// BuildATF builds a filter-install request: header, mask bytes, pattern
// bytes, and (for flow-control filters) the flow message bytes.
func BuildATF(channel, filterType, txFlags uint32, mask, pattern, flow []byte) []byte {
	head := fmt.Sprintf("atf%d %d %d %d\r\n", channel, filterType, txFlags, len(mask))
	buf := make([]byte, 0, len(head)+len(mask)+len(pattern)+len(flow))
	buf = append(buf, head...)
	buf = append(buf, mask...)
	buf = append(buf, pattern...)
	buf = append(buf, flow...)
	return buf
}

// BuildATK builds a filter-remove request.
func BuildATK(channel, filterID uint32) []byte {
	return []byte(fmt.Sprintf("atk%d %d\r\n", channel, filterID))
}

// BuildATG builds a get-config request for one parameter.
func BuildATG(channel, param uint32) []byte {
	return []byte(fmt.Sprintf("atg%d %d\r\n", channel, param))
}

// BuildATS builds a set-config request for one parameter.
func BuildATS(channel, param, value uint32) []byte {
	return []byte(fmt.Sprintf("ats%d %d %d\r\n", channel, param, value))
}

// BuildATR builds a read-voltage request for the given pin.
func BuildATR(pin uint32) []byte {
	return []byte(fmt.Sprintf("atr %d\r\n", pin))
}

// BuildATY builds a fast-init request: header followed by the raw
// payload bytes.
func BuildATY(channel uint32, payload []byte) []byte {
	head := fmt.Sprintf("aty%d %d 0\r\n", channel, len(payload))
	buf := make([]byte, 0, len(head)+len(payload))
	buf = append(buf, head...)
	buf = append(buf, payload...)
	return buf
}
