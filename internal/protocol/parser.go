package protocol

import (
	"github.com/dschultz-j2534/op2534/internal/log"
	"github.com/dschultz-j2534/op2534/internal/ptmsg"
	"github.com/dschultz-j2534/op2534/internal/support"
)

// Packet types tagging a binary frame's byte 4, as reported by the
// device on the bulk-IN stream.
const (
	pktNormal             byte = 0x00
	pktTxDone             byte = 0x10
	pktTxLoopback         byte = 0x20
	pktRxEndInd           byte = 0x40
	pktExtAddrEndInd      byte = 0x44
	pktLoopbackEndInd     byte = 0x60
	pktNormalStartInd     byte = 0x80
	pktTxLoopbackStartInd byte = 0xA0
)

type frameKind int

const (
	kindFragment frameKind = iota
	kindStart
	kindEnd
	kindUnknown
)

type frameInfo struct {
	kind       frameKind
	isLoopback bool
	rxStatus   uint32
}

func classify(pkt byte) frameInfo {
	switch pkt {
	case pktNormal:
		return frameInfo{kind: kindFragment, isLoopback: false, rxStatus: ptmsg.RxStatusNormal}
	case pktTxLoopback:
		return frameInfo{kind: kindFragment, isLoopback: true, rxStatus: ptmsg.RxStatusTxMsgType}
	case pktNormalStartInd:
		return frameInfo{kind: kindStart, isLoopback: false}
	case pktTxLoopbackStartInd:
		return frameInfo{kind: kindStart, isLoopback: true}
	case pktTxDone:
		return frameInfo{kind: kindEnd, isLoopback: false, rxStatus: ptmsg.RxStatusTxDone}
	case pktRxEndInd, pktExtAddrEndInd:
		return frameInfo{kind: kindEnd, isLoopback: false, rxStatus: ptmsg.RxStatusNormal}
	case pktLoopbackEndInd:
		return frameInfo{kind: kindEnd, isLoopback: true, rxStatus: ptmsg.RxStatusTxMsgType}
	default:
		return frameInfo{kind: kindUnknown}
	}
}

func startRxStatus(family byte) uint32 {
	if ptmsg.IsKLineFamily(family) {
		return ptmsg.RxStatusStartOfMsg
	}
	return ptmsg.RxStatusTxIndication
}

func hasTimestamp(pkt byte, family byte) bool {
	if !ptmsg.IsKLineFamily(family) {
		return true
	}
	switch pkt {
	case pktTxDone, pktRxEndInd, pktExtAddrEndInd, pktLoopbackEndInd:
		return true
	default:
		return false
	}
}

// slot is an in-progress (possibly multi-fragment) message accumulator.
type slot struct {
	active bool
	msg    ptmsg.PASSTHRU_MSG
}

// Parser turns raw bulk-IN chunks into PASSTHRU_MSG records, tracking
// per-channel fragment state across calls (needed for K-line messages,
// which can arrive split across several USB reads).
type Parser struct {
	family     byte
	protocolID uint32
	norm, loop slot
}

// NewParser creates a parser bound to one channel's bus family and
// protocol id.
func NewParser(family byte, protocolID uint32) *Parser {
	return &Parser{family: family, protocolID: protocolID}
}

func (p *Parser) slotFor(loopback bool) *slot {
	if loopback {
		return &p.loop
	}
	return &p.norm
}

func (p *Parser) ensure(loopback bool, rxStatus uint32) *slot {
	s := p.slotFor(loopback)
	if !s.active {
		s.active = true
		s.msg = ptmsg.PASSTHRU_MSG{ProtocolID: p.protocolID, RxStatus: rxStatus}
	}
	return s
}

func (p *Parser) appendPayload(s *slot, payload []byte) {
	n := copy(s.msg.Data[s.msg.DataSize:], payload)
	s.msg.DataSize += uint32(n)
}

func (p *Parser) finalize(s *slot, ts uint32, hasTS bool) ptmsg.PASSTHRU_MSG {
	if hasTS {
		s.msg.Timestamp = ts
	}
	s.msg.ExtraDataIndex = s.msg.DataSize
	out := s.msg
	*s = slot{}
	return out
}

// ParseChunk consumes as many complete frames as are present in chunk,
// invoking emit for each finished PASSTHRU_MSG and enqueuing anything
// emit declines to accept (emit returns false when the caller's output
// array is full) into overflow. It returns the number of bytes consumed;
// a trailing partial frame is left unconsumed (chunked/partial bulk-IN
// transfers are not expected from this device in practice, but the
// parser does not assume it).
func (p *Parser) ParseChunk(chunk []byte, emit func(ptmsg.PASSTHRU_MSG) bool, overflow *Queue) int {
	pos := 0
	for pos+5 <= len(chunk) {
		if chunk[pos] != 'a' || chunk[pos+1] != 'r' {
			break
		}
		chByte := chunk[pos+2]
		length := int(chunk[pos+3])
		pkt := chunk[pos+4]

		if chByte == 'o' {
			pos += 5
			continue
		}

		frameLen := length + 4
		if frameLen < 5 || pos+frameLen > len(chunk) {
			break
		}
		extra := chunk[pos+5 : pos+frameLen]

		info := classify(pkt)
		if info.kind == kindUnknown {
			log.Tracef("parser: skipping unrecognised packet type 0x%02x", pkt)
			pos += frameLen
			continue
		}

		withTS := hasTimestamp(pkt, p.family)
		var ts uint32
		var payload []byte
		if withTS {
			if len(extra) < 4 {
				log.Tracef("parser: skipping frame too short for a timestamp (L=%d)", length)
				pos += frameLen
				continue
			}
			ts = support.ParseTimestamp(extra[:4])
			payload = extra[4:]
		} else {
			payload = extra
		}

		// CAN/ISO15765 never fragments: every payload-bearing frame is a
		// complete single-frame message and advances to the next slot
		// right away. Only the K-line families (which split one message
		// across a start indication, fragments, and an end indication)
		// wait for a kindEnd frame before finalising.
		isSingleFrame := !ptmsg.IsKLineFamily(p.family)

		switch info.kind {
		case kindStart:
			s := p.ensure(info.isLoopback, startRxStatus(p.family))
			p.appendPayload(s, payload)
			if isSingleFrame {
				msg := p.finalize(s, ts, withTS)
				if !emit(msg) {
					overflow.Enqueue(msg)
				}
			}
		case kindFragment:
			s := p.ensure(info.isLoopback, info.rxStatus)
			p.appendPayload(s, payload)
			if isSingleFrame {
				msg := p.finalize(s, ts, withTS)
				if !emit(msg) {
					overflow.Enqueue(msg)
				}
			}
		case kindEnd:
			s := p.ensure(info.isLoopback, info.rxStatus)
			p.appendPayload(s, payload)
			msg := p.finalize(s, ts, withTS)
			if !emit(msg) {
				overflow.Enqueue(msg)
			}
		}

		pos += frameLen
	}
	return pos
}
