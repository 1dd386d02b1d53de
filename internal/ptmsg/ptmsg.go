// Package ptmsg defines the J2534 04.04 wire data types: the PASSTHRU_MSG
// record, the SCONFIG parameter pair, and the error/ioctl/filter/protocol
// id enumerations used throughout the driver.
package ptmsg

// PMDataLen is the maximum number of payload bytes a PASSTHRU_MSG can hold.
const PMDataLen = 4128

// PASSTHRU_MSG is the fixed-layout message record exchanged with callers.
type PASSTHRU_MSG struct {
	ProtocolID     uint32
	RxStatus       uint32
	TxFlags        uint32
	Timestamp      uint32
	DataSize       uint32
	ExtraDataIndex uint32
	Data           [PMDataLen]byte
}

// SCONFIG is one configuration parameter/value pair.
type SCONFIG struct {
	Parameter uint32
	Value     uint32
}

// SCONFIGList is a caller-owned list of SCONFIG entries, used by the
// GET_CONFIG and SET_CONFIG ioctls.
type SCONFIGList struct {
	Params []SCONFIG
}

// Protocol ids, as passed to PassThruConnect.
const (
	ProtocolJ1850VPW uint32 = 1
	ProtocolJ1850PWM uint32 = 2
	ProtocolISO9141  uint32 = 3
	ProtocolISO14230 uint32 = 4
	ProtocolCAN      uint32 = 5
	ProtocolISO15765 uint32 = 6
)

// RxStatus bit values used by the receive parser.
const (
	RxStatusNormal       uint32 = 0x00
	RxStatusTxMsgType    uint32 = 0x01
	RxStatusStartOfMsg   uint32 = 0x02
	RxStatusTxDone       uint32 = 0x08
	RxStatusTxIndication uint32 = 0x09
)

// Filter types, as passed to PassThruStartMsgFilter.
const (
	PassFilter uint32 = iota + 1
	BlockFilter
	FlowControlFilter
)

// Ioctl subcommand ids, as passed to PassThruIoctl.
const (
	GetConfig uint32 = iota + 1
	SetConfig
	ReadVBatt
	FiveBaudInit
	FastInit
	_ // reserved, matches the gap left by the original enum
	ClearTxBuffer
	ClearRxBuffer
	ClearPeriodicMsgs
	ClearMsgFilters
	ClearFunctMsgLookupTable
	AddToFunctMsgLookupTable
	DeleteFromFunctMsgLookupTable
	ReadProgVoltage
)

// Error is a J2534 result code. NoError (0) indicates success.
type Error int32

const (
	NoError Error = iota
	ErrNotSupported
	ErrInvalidChannelID
	ErrInvalidProtocolID
	ErrNullParameter
	ErrInvalidIoctlValue
	ErrInvalidFlags
	ErrFailed
	ErrDeviceNotConnected
	ErrTimeout
	ErrInvalidMsg
	ErrInvalidTimeInterval
	ErrExceededLimit
	ErrInvalidMsgID
	ErrDeviceInUse
	ErrInvalidIoctlID
	ErrBufferEmpty
	ErrBufferFull
	ErrBufferOverflow
	ErrPinInvalid
	ErrChannelInUse
	ErrMsgProtocolID
	ErrInvalidFilterID
	ErrNoFlowControl
	ErrNotUnique
	ErrInvalidBaudrate
	ErrInvalidDeviceID
)

var errorText = map[Error]string{
	NoError:                "no error",
	ErrNotSupported:        "function not supported",
	ErrInvalidChannelID:    "invalid channel id",
	ErrInvalidProtocolID:   "invalid protocol id",
	ErrNullParameter:       "null parameter",
	ErrInvalidIoctlValue:   "invalid ioctl value",
	ErrInvalidFlags:        "invalid flags",
	ErrFailed:              "failed",
	ErrDeviceNotConnected:  "device not connected",
	ErrTimeout:             "timeout",
	ErrInvalidMsg:          "invalid message",
	ErrInvalidTimeInterval: "invalid time interval",
	ErrExceededLimit:       "exceeded limit",
	ErrInvalidMsgID:        "invalid message id",
	ErrDeviceInUse:         "device in use",
	ErrInvalidIoctlID:      "invalid ioctl id",
	ErrBufferEmpty:         "buffer empty",
	ErrBufferFull:          "buffer full",
	ErrBufferOverflow:      "buffer overflow",
	ErrPinInvalid:          "invalid pin",
	ErrChannelInUse:        "channel in use",
	ErrMsgProtocolID:       "message protocol id mismatch",
	ErrInvalidFilterID:     "invalid filter id",
	ErrNoFlowControl:       "no flow control",
	ErrNotUnique:           "not unique",
	ErrInvalidBaudrate:     "invalid baud rate",
	ErrInvalidDeviceID:     "invalid device id",
}

func (e Error) String() string {
	if s, ok := errorText[e]; ok {
		return s
	}
	return "unknown error"
}

func (e Error) Error() string { return e.String() }

// DLLVersion and APIVersion are reported by PassThruReadVersion.
const (
	DLLVersion = "3.0.0"
	APIVersion = "04.04"
)

// Channel-family bytes used on the wire to tag a bulk-IN frame.
const (
	FamilyISO9141  byte = 0x33
	FamilyISO14230 byte = 0x34
	FamilyCAN      byte = 0x35
	FamilyISO15765 byte = 0x36
)

// FamilyForProtocol maps a J2534 protocol id to the device's wire family
// byte. ok is false for protocols this device does not implement.
func FamilyForProtocol(protocolID uint32) (family byte, ok bool) {
	switch protocolID {
	case ProtocolISO9141:
		return FamilyISO9141, true
	case ProtocolISO14230:
		return FamilyISO14230, true
	case ProtocolCAN:
		return FamilyCAN, true
	case ProtocolISO15765:
		return FamilyISO15765, true
	default:
		return 0, false
	}
}

// IsKLineFamily reports whether family is one of the single-wire K-line
// protocols, which fragment messages across multiple frames instead of
// delivering one frame per message like CAN does.
func IsKLineFamily(family byte) bool {
	return family == FamilyISO9141 || family == FamilyISO14230
}
