// Package op2534 implements the J2534 04.04 PassThru API for a USB
// vehicle diagnostic interface (vendor 0x0403, product 0xcc4d). It
// translates the standard Open/Connect/Read/Write/Ioctl call surface
// into the device's ASCII-command-plus-binary-frame USB protocol.
//
// This package is the engine a thin cgo export shim would sit on top of
// to produce a platform DLL/shared object; building that shim is outside
// this package's scope.
package op2534

import (
	"time"

	"github.com/dschultz-j2534/op2534/internal/log"
	"github.com/dschultz-j2534/op2534/internal/protocol"
	"github.com/dschultz-j2534/op2534/internal/ptmsg"
	"github.com/dschultz-j2534/op2534/internal/session"
	"github.com/dschultz-j2534/op2534/internal/transport"
)

// Re-exported wire types so callers only need to import this package.
type (
	PassThruMsg = ptmsg.PASSTHRU_MSG
	SConfig     = ptmsg.SCONFIG
	SConfigList = ptmsg.SCONFIGList
)

// Re-exported constants.
const (
	PMDataLen = ptmsg.PMDataLen

	ProtocolISO9141  = ptmsg.ProtocolISO9141
	ProtocolISO14230 = ptmsg.ProtocolISO14230
	ProtocolCAN      = ptmsg.ProtocolCAN
	ProtocolISO15765 = ptmsg.ProtocolISO15765

	PassFilter        = ptmsg.PassFilter
	BlockFilter       = ptmsg.BlockFilter
	FlowControlFilter = ptmsg.FlowControlFilter

	GetConfig     = ptmsg.GetConfig
	SetConfig     = ptmsg.SetConfig
	ReadVBatt     = ptmsg.ReadVBatt
	FastInit      = ptmsg.FastInit
	ClearTxBuffer = ptmsg.ClearTxBuffer
	ClearRxBuffer = ptmsg.ClearRxBuffer

	DLLVersion = ptmsg.DLLVersion
	APIVersion = ptmsg.APIVersion
)

const (
	openTimeout  = 2 * time.Second
	ctrlTimeout  = 1 * time.Second
	readChunkCap = 4096
)

// openPort discovers and opens the device's USB transport. It is a
// package-level variable, rather than a direct call to
// transport.OpenUSBPort, so tests can substitute a fake port and drive
// PassThruOpen without real hardware.
var openPort = func() (transport.Port, int, error) {
	return transport.OpenUSBPort()
}

func fail(s *session.Session, code ptmsg.Error, text string) int32 {
	if s != nil {
		s.SetLastError(text)
	}
	log.Errorf("%s", text)
	return int32(code)
}

// PassThruOpen discovers and opens the device, claims its bulk
// interface, and brings its firmware online. name is accepted for API
// compatibility but unused — this driver targets exactly one device.
func PassThruOpen(name string, deviceID *uint32) int32 {
	if deviceID == nil {
		return fail(nil, ptmsg.ErrNullParameter, "PassThruOpen: deviceID is nil")
	}
	if session.Current() != nil {
		return fail(nil, ptmsg.ErrDeviceInUse, "PassThruOpen: a device is already open")
	}

	port, addr, err := openPort()
	if err != nil {
		return fail(nil, transport.MapError(err), "PassThruOpen: "+err.Error())
	}

	s := &session.Session{Port: port, DeviceID: addr, FIFO: protocol.NewQueue()}

	reply, err := transport.SendExpect(port, protocol.BuildATI(), readChunkCap, openTimeout, []byte("ari "))
	if err != nil {
		port.Close()
		return fail(s, transport.MapError(err), "PassThruOpen: ati failed: "+err.Error())
	}
	s.Firmware = parseFirmware(reply)
	if _, err := transport.SendExpect(port, protocol.BuildATA(), readChunkCap, openTimeout, nil); err != nil {
		port.Close()
		return fail(s, transport.MapError(err), "PassThruOpen: ata failed: "+err.Error())
	}

	if err := session.Open(s); err != nil {
		port.Close()
		return fail(nil, ptmsg.ErrDeviceInUse, err.Error())
	}

	*deviceID = uint32(addr)
	log.Infof("PassThruOpen: opened device id=%d", addr)
	return int32(ptmsg.NoError)
}

// PassThruClose deactivates and releases the device.
func PassThruClose(deviceID uint32) int32 {
	s := session.Current()
	if s == nil {
		return int32(ptmsg.ErrDeviceNotConnected)
	}
	if uint32(s.DeviceID) != deviceID {
		return fail(s, ptmsg.ErrInvalidDeviceID, "PassThruClose: deviceID mismatch")
	}
	transport.SendExpect(s.Port, protocol.BuildATZ(), readChunkCap, ctrlTimeout, nil)
	s.Port.Close()
	session.Close()
	log.Infof("PassThruClose: closed device id=%d", deviceID)
	return int32(ptmsg.NoError)
}

// PassThruConnect opens a logical channel on the given protocol.
func PassThruConnect(deviceID, protocolID, flags, baud uint32, channelID *uint32) int32 {
	s := session.Current()
	if s == nil {
		return int32(ptmsg.ErrDeviceNotConnected)
	}
	if channelID == nil {
		return fail(s, ptmsg.ErrNullParameter, "PassThruConnect: channelID is nil")
	}
	family, ok := ptmsg.FamilyForProtocol(protocolID)
	if !ok {
		return fail(s, ptmsg.ErrInvalidProtocolID, "PassThruConnect: unsupported protocol id")
	}
	if _, err := transport.SendExpect(s.Port, protocol.BuildATO(protocolID, flags, baud), readChunkCap, ctrlTimeout, []byte("aro")); err != nil {
		return fail(s, transport.MapError(err), "PassThruConnect: "+err.Error())
	}
	s.Family = family
	s.ProtocolID = protocolID
	s.Connected = true
	s.Parser = protocol.NewParser(family, protocolID)
	*channelID = protocolID
	log.Infof("PassThruConnect: protocol=%d baud=%d channel=%d", protocolID, baud, protocolID)
	return int32(ptmsg.NoError)
}

func checkChannel(s *session.Session, channelID uint32) int32 {
	if s == nil {
		return int32(ptmsg.ErrDeviceNotConnected)
	}
	if !s.Connected || s.ProtocolID != channelID {
		return fail(s, ptmsg.ErrInvalidChannelID, "invalid channel id")
	}
	return int32(ptmsg.NoError)
}

// PassThruDisconnect closes a logical channel and flushes its FIFO.
func PassThruDisconnect(channelID uint32) int32 {
	s := session.Current()
	if rc := checkChannel(s, channelID); rc != int32(ptmsg.NoError) {
		return rc
	}
	transport.SendExpect(s.Port, protocol.BuildATC(channelID), readChunkCap, ctrlTimeout, nil)
	s.FIFO.Flush()
	s.Connected = false
	s.Parser = nil
	log.Infof("PassThruDisconnect: channel=%d", channelID)
	return int32(ptmsg.NoError)
}

// PassThruReadMsgs fills pMsg with up to *numMsgs messages, draining the
// FIFO first and then the USB stream.
func PassThruReadMsgs(channelID uint32, pMsg []ptmsg.PASSTHRU_MSG, numMsgs *uint32, timeout uint32) int32 {
	s := session.Current()
	if rc := checkChannel(s, channelID); rc != int32(ptmsg.NoError) {
		return rc
	}
	if numMsgs == nil {
		return fail(s, ptmsg.ErrNullParameter, "PassThruReadMsgs: numMsgs is nil")
	}
	want := int(*numMsgs)
	if want > len(pMsg) {
		want = len(pMsg)
	}

	n := 0
	for n < want {
		msg, ok := s.FIFO.Dequeue()
		if !ok {
			break
		}
		pMsg[n] = msg
		n++
	}

	if n < want {
		if s.Parser == nil {
			s.Parser = protocol.NewParser(s.Family, s.ProtocolID)
		}
		buf := make([]byte, readChunkCap)
		readLen, err := s.Port.Read(buf, time.Duration(timeout)*time.Millisecond)
		if err != nil {
			*numMsgs = uint32(n)
			if n > 0 {
				return int32(ptmsg.NoError)
			}
			return fail(s, transport.MapError(err), "PassThruReadMsgs: "+err.Error())
		}
		log.Tracef("PassThruReadMsgs: bulk-in % x", buf[:readLen])
		idx := n
		fifoBefore := s.FIFO.Len()
		s.Parser.ParseChunk(buf[:readLen], func(msg ptmsg.PASSTHRU_MSG) bool {
			if idx >= want {
				return false
			}
			pMsg[idx] = msg
			idx++
			return true
		}, s.FIFO)
		n = idx
		if spilled := s.FIFO.Len() - fifoBefore; spilled > 0 {
			s.Stats.AddOverflow(uint64(spilled))
		}
	}

	s.Stats.AddRx(uint64(n))
	*numMsgs = uint32(n)
	log.Infof("PassThruReadMsgs: channel=%d returned %d", channelID, n)
	return int32(ptmsg.NoError)
}

// PassThruWriteMsgs transmits each of pMsg in turn.
func PassThruWriteMsgs(channelID uint32, pMsg []ptmsg.PASSTHRU_MSG, numMsgs *uint32, timeInterval uint32) int32 {
	s := session.Current()
	if rc := checkChannel(s, channelID); rc != int32(ptmsg.NoError) {
		return rc
	}
	if numMsgs == nil {
		return fail(s, ptmsg.ErrNullParameter, "PassThruWriteMsgs: numMsgs is nil")
	}
	want := int(*numMsgs)
	if want > len(pMsg) {
		want = len(pMsg)
	}

	sent := 0
	for i := 0; i < want; i++ {
		m := pMsg[i]
		if m.DataSize == 0 || m.DataSize > ptmsg.PMDataLen {
			break
		}
		payload := m.Data[:m.DataSize]
		cmd := protocol.BuildATT(channelID, m.TxFlags, payload)
		if _, err := transport.SendExpect(s.Port, cmd, readChunkCap, time.Duration(timeInterval)*time.Millisecond, nil); err != nil {
			*numMsgs = uint32(sent)
			return fail(s, transport.MapError(err), "PassThruWriteMsgs: "+err.Error())
		}
		sent++
	}
	s.Stats.AddTx(uint64(sent))
	*numMsgs = uint32(sent)
	log.Infof("PassThruWriteMsgs: channel=%d sent %d", channelID, sent)
	return int32(ptmsg.NoError)
}

// PassThruStartPeriodicMsg is not supported by this device.
func PassThruStartPeriodicMsg(channelID uint32, pMsg *ptmsg.PASSTHRU_MSG, msgID *uint32, timeInterval uint32) int32 {
	return int32(ptmsg.ErrNotSupported)
}

// PassThruStopPeriodicMsg is not supported by this device.
func PassThruStopPeriodicMsg(channelID, msgID uint32) int32 {
	return int32(ptmsg.ErrNotSupported)
}

// PassThruSetProgrammingVoltage is not supported by this device.
func PassThruSetProgrammingVoltage(deviceID, pin, voltage uint32) int32 {
	return int32(ptmsg.ErrNotSupported)
}

// PassThruReadVersion reports the firmware, DLL, and API version
// strings.
func PassThruReadVersion(deviceID uint32, apiVersion, dllVersion, firmwareVersion *[80]byte) int32 {
	s := session.Current()
	if s == nil {
		return int32(ptmsg.ErrDeviceNotConnected)
	}
	if apiVersion == nil || dllVersion == nil || firmwareVersion == nil {
		return fail(s, ptmsg.ErrNullParameter, "PassThruReadVersion: nil output pointer")
	}
	copyString(apiVersion, ptmsg.APIVersion)
	copyString(dllVersion, ptmsg.DLLVersion)
	copyString(firmwareVersion, s.Firmware)
	return int32(ptmsg.NoError)
}

func copyString(dst *[80]byte, s string) {
	if len(s) > len(dst)-1 {
		s = s[:len(dst)-1]
	}
	copy(dst[:], s)
	dst[len(s)] = 0
}

// PassThruGetLastError reports the most recent failure's description.
func PassThruGetLastError(errorDescription *[80]byte) int32 {
	if errorDescription == nil {
		return int32(ptmsg.ErrNullParameter)
	}
	s := session.Current()
	text := ""
	if s != nil {
		text = s.LastError()
	}
	copyString(errorDescription, text)
	return int32(ptmsg.NoError)
}

// PassThruStartMsgFilter installs a filter on channelID and returns its
// id in msgID.
func PassThruStartMsgFilter(channelID, filterType uint32, maskMsg, patternMsg, flowControlMsg *ptmsg.PASSTHRU_MSG, msgID *uint32) int32 {
	s := session.Current()
	if rc := checkChannel(s, channelID); rc != int32(ptmsg.NoError) {
		return rc
	}
	if maskMsg == nil || patternMsg == nil || msgID == nil {
		return fail(s, ptmsg.ErrNullParameter, "PassThruStartMsgFilter: nil mask/pattern/msgID")
	}
	if maskMsg.DataSize != patternMsg.DataSize || maskMsg.TxFlags != patternMsg.TxFlags {
		return fail(s, ptmsg.ErrInvalidMsg, "PassThruStartMsgFilter: mask/pattern size or flags mismatch")
	}
	if maskMsg.DataSize > 12 {
		return fail(s, ptmsg.ErrInvalidMsg, "PassThruStartMsgFilter: mask too large")
	}
	isFlowControl := filterType == ptmsg.FlowControlFilter
	if isFlowControl && flowControlMsg == nil {
		return fail(s, ptmsg.ErrNoFlowControl, "PassThruStartMsgFilter: flow control filter requires a flow message")
	}
	if !isFlowControl && flowControlMsg != nil {
		return fail(s, ptmsg.ErrInvalidMsg, "PassThruStartMsgFilter: flow message not allowed for this filter type")
	}

	var flow []byte
	if isFlowControl {
		flow = flowControlMsg.Data[:flowControlMsg.DataSize]
	}
	cmd := protocol.BuildATF(channelID, filterType, maskMsg.TxFlags, maskMsg.Data[:maskMsg.DataSize], patternMsg.Data[:patternMsg.DataSize], flow)
	reply, err := transport.SendExpect(s.Port, cmd, readChunkCap, ctrlTimeout, []byte("arf"))
	if err != nil {
		return fail(s, transport.MapError(err), "PassThruStartMsgFilter: "+err.Error())
	}
	id, ok := parseTrailingUint(reply, "arf")
	if !ok {
		return fail(s, ptmsg.ErrFailed, "PassThruStartMsgFilter: could not parse filter id")
	}
	*msgID = id
	log.Infof("PassThruStartMsgFilter: channel=%d type=%d id=%d", channelID, filterType, id)
	return int32(ptmsg.NoError)
}

// PassThruStopMsgFilter removes a previously installed filter.
func PassThruStopMsgFilter(channelID, msgID uint32) int32 {
	s := session.Current()
	if rc := checkChannel(s, channelID); rc != int32(ptmsg.NoError) {
		return rc
	}
	if _, err := transport.SendExpect(s.Port, protocol.BuildATK(channelID, msgID), readChunkCap, ctrlTimeout, nil); err != nil {
		return fail(s, transport.MapError(err), "PassThruStopMsgFilter: "+err.Error())
	}
	return int32(ptmsg.NoError)
}

// PassThruIoctl dispatches device configuration and maintenance requests.
func PassThruIoctl(channelID, ioctlID uint32, input, output any) int32 {
	s := session.Current()
	if s == nil {
		return int32(ptmsg.ErrDeviceNotConnected)
	}
	log.Infof("PassThruIoctl: channel=%d id=%d", channelID, ioctlID)

	switch ioctlID {
	case ptmsg.GetConfig:
		list, ok := output.(*ptmsg.SCONFIGList)
		if !ok || list == nil {
			return fail(s, ptmsg.ErrNullParameter, "PassThruIoctl GET_CONFIG: invalid output")
		}
		for i := range list.Params {
			reply, err := transport.SendExpect(s.Port, protocol.BuildATG(channelID, list.Params[i].Parameter), readChunkCap, ctrlTimeout, []byte("arg"))
			if err != nil {
				return fail(s, transport.MapError(err), "PassThruIoctl GET_CONFIG: "+err.Error())
			}
			v, ok := parseTrailingUint(reply, "arg")
			if !ok {
				return fail(s, ptmsg.ErrFailed, "PassThruIoctl GET_CONFIG: malformed reply")
			}
			list.Params[i].Value = v
		}
		return int32(ptmsg.NoError)

	case ptmsg.SetConfig:
		list, ok := input.(*ptmsg.SCONFIGList)
		if !ok || list == nil {
			return fail(s, ptmsg.ErrNullParameter, "PassThruIoctl SET_CONFIG: invalid input")
		}
		for _, p := range list.Params {
			if _, err := transport.SendExpect(s.Port, protocol.BuildATS(channelID, p.Parameter, p.Value), readChunkCap, ctrlTimeout, nil); err != nil {
				return fail(s, transport.MapError(err), "PassThruIoctl SET_CONFIG: "+err.Error())
			}
		}
		return int32(ptmsg.NoError)

	case ptmsg.ReadVBatt:
		vBatt, ok := output.(*uint32)
		if !ok || vBatt == nil {
			return fail(s, ptmsg.ErrNullParameter, "PassThruIoctl READ_VBATT: invalid output")
		}
		reply, err := transport.SendExpect(s.Port, protocol.BuildATR(16), readChunkCap, ctrlTimeout, []byte("arr"))
		if err != nil {
			return fail(s, transport.MapError(err), "PassThruIoctl READ_VBATT: "+err.Error())
		}
		v, ok := parseTrailingUint(reply, "arr")
		if !ok {
			return fail(s, ptmsg.ErrFailed, "PassThruIoctl READ_VBATT: malformed reply")
		}
		*vBatt = v
		return int32(ptmsg.NoError)

	case ptmsg.FastInit:
		in, ok := input.(*ptmsg.PASSTHRU_MSG)
		out, ok2 := output.(*ptmsg.PASSTHRU_MSG)
		if !ok || !ok2 || in == nil || out == nil {
			return fail(s, ptmsg.ErrNullParameter, "PassThruIoctl FAST_INIT: invalid input/output")
		}
		cmd := protocol.BuildATY(channelID, in.Data[:in.DataSize])
		reply, err := transport.SendExpect(s.Port, cmd, readChunkCap, ctrlTimeout, []byte("ary"))
		if err != nil {
			return fail(s, transport.MapError(err), "PassThruIoctl FAST_INIT: "+err.Error())
		}
		respLen, ok := parseTrailingUint(reply, "ary")
		if !ok {
			return fail(s, ptmsg.ErrFailed, "PassThruIoctl FAST_INIT: malformed reply")
		}
		buf := make([]byte, readChunkCap)
		n, err := s.Port.Read(buf, 500*time.Millisecond)
		if err != nil {
			return fail(s, transport.MapError(err), "PassThruIoctl FAST_INIT: response read failed: "+err.Error())
		}
		if uint32(n) > respLen {
			n = int(respLen)
		}
		out.ProtocolID = s.ProtocolID
		out.DataSize = uint32(copy(out.Data[:], buf[:n]))
		out.ExtraDataIndex = out.DataSize
		return int32(ptmsg.NoError)

	case ptmsg.ClearTxBuffer:
		return int32(ptmsg.NoError)

	case ptmsg.ClearRxBuffer:
		s.FIFO.Flush()
		return int32(ptmsg.NoError)

	default:
		return int32(ptmsg.ErrNotSupported)
	}
}

func parseTrailingUint(reply []byte, prefix string) (uint32, bool) {
	idx := indexOf(reply, prefix)
	if idx < 0 {
		return 0, false
	}
	line := reply[idx:]
	end := indexOfAny(line, "\r\n")
	if end >= 0 {
		line = line[:end]
	}
	fields := fieldsOf(line)
	if len(fields) == 0 {
		return 0, false
	}
	return parseLast(fields)
}
