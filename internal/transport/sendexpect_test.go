package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/dschultz-j2534/op2534/internal/ptmsg"
)

// fakePort is a Port that replays a scripted sequence of reads and
// records writes, so the send/expect state machine can be exercised
// without real USB hardware.
type fakePort struct {
	writes   [][]byte
	reads    [][]byte
	readIdx  int
	readErr  error
	writeErr error
}

func (p *fakePort) Write(data []byte, timeout time.Duration) (int, error) {
	p.writes = append(p.writes, append([]byte(nil), data...))
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return len(data), nil
}

func (p *fakePort) Read(buf []byte, timeout time.Duration) (int, error) {
	if len(p.reads) == 0 {
		if p.readErr != nil {
			return 0, p.readErr
		}
		return 0, ptmsg.ErrTimeout
	}
	// Reads beyond the scripted sequence replay the last chunk, so a
	// caller waiting on a pattern that never arrives spins until its
	// own deadline trips instead of getting a synthetic read error.
	idx := p.readIdx
	if idx >= len(p.reads) {
		idx = len(p.reads) - 1
	}
	chunk := p.reads[idx]
	p.readIdx++
	return copy(buf, chunk), nil
}

func (p *fakePort) Close() error { return nil }

func TestSendExpectGenericAck(t *testing.T) {
	port := &fakePort{reads: [][]byte{[]byte("aro\r\n")}}
	reply, err := SendExpect(port, []byte("ata\r\n"), 64, time.Second, nil)
	if err != nil {
		t.Fatalf("SendExpect error: %v", err)
	}
	if string(reply) != "aro\r\n" {
		t.Errorf("reply = %q, want %q", reply, "aro\r\n")
	}
	if len(port.writes) != 1 || string(port.writes[0]) != "ata\r\n" {
		t.Errorf("writes = %v, want one write of %q", port.writes, "ata\r\n")
	}
}

func TestSendExpectExplicitPattern(t *testing.T) {
	port := &fakePort{reads: [][]byte{[]byte("ari device:v1.2.3\r\n")}}
	reply, err := SendExpect(port, []byte("ati\r\n"), 64, time.Second, []byte("ari "))
	if err != nil {
		t.Fatalf("SendExpect error: %v", err)
	}
	if !contains(reply, "ari ") {
		t.Errorf("reply = %q, does not contain pattern", reply)
	}
}

func TestSendExpectAccumulatesAcrossMultipleReads(t *testing.T) {
	port := &fakePort{reads: [][]byte{[]byte("ar"), []byte("g 1 500000\r\n")}}
	reply, err := SendExpect(port, nil, 64, time.Second, []byte("arg"))
	if err != nil {
		t.Fatalf("SendExpect error: %v", err)
	}
	if !contains(reply, "arg 1 500000") {
		t.Errorf("reply = %q, want to contain arg 1 500000", reply)
	}
}

func TestSendExpectDeviceErrorLine(t *testing.T) {
	// Device error frames share the "ar" prefix of every other reply,
	// with byte 2 set to 0x65 ('e') and the decimal code starting at
	// byte 4 (byte 3 is a length/type byte the parser doesn't need).
	port := &fakePort{reads: [][]byte{{'a', 'r', 0x65, 0x00, '9'}}}
	_, err := SendExpect(port, nil, 64, time.Second, []byte("aro"))
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("err = %v, want *DeviceError", err)
	}
	if devErr.Code != 9 {
		t.Errorf("devErr.Code = %d, want 9", devErr.Code)
	}
}

func TestSendExpectSkipsSendWhenOutEmpty(t *testing.T) {
	port := &fakePort{reads: [][]byte{[]byte("aro\r\n")}}
	if _, err := SendExpect(port, nil, 64, time.Second, nil); err != nil {
		t.Fatalf("SendExpect error: %v", err)
	}
	if len(port.writes) != 0 {
		t.Errorf("writes = %v, want none", port.writes)
	}
}

func TestSendExpectZeroTimeoutSkipsRead(t *testing.T) {
	port := &fakePort{reads: [][]byte{[]byte("aro\r\n")}}
	reply, err := SendExpect(port, []byte("atz\r\n"), 64, 0, nil)
	if err != nil {
		t.Fatalf("SendExpect error: %v", err)
	}
	if reply != nil {
		t.Errorf("reply = %v, want nil (no read performed)", reply)
	}
	if port.readIdx != 0 {
		t.Errorf("read was performed despite zero timeout")
	}
}

func TestSendExpectWriteErrorIsMapped(t *testing.T) {
	port := &fakePort{writeErr: errors.New("no such device")}
	_, err := SendExpect(port, []byte("ati\r\n"), 64, time.Second, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if MapError(err) != ptmsg.ErrDeviceNotConnected {
		t.Errorf("MapError(err) = %v, want ErrDeviceNotConnected", MapError(err))
	}
}

func TestSendExpectTimesOutWhenPatternNeverArrives(t *testing.T) {
	port := &fakePort{reads: [][]byte{[]byte("unrelated data\r\n")}}
	_, err := SendExpect(port, nil, 64, 10*time.Millisecond, []byte("arg"))
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

func contains(data []byte, s string) bool {
	return indexOf(data, s) >= 0
}

func indexOf(data []byte, s string) int {
	for i := 0; i+len(s) <= len(data); i++ {
		if string(data[i:i+len(s)]) == s {
			return i
		}
	}
	return -1
}
