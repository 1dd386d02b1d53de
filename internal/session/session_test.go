package session

import (
	"testing"
	"time"

	"github.com/dschultz-j2534/op2534/internal/protocol"
)

type noopPort struct{}

func (noopPort) Write(data []byte, timeout time.Duration) (int, error) { return len(data), nil }
func (noopPort) Read(buf []byte, timeout time.Duration) (int, error)   { return 0, nil }
func (noopPort) Close() error                                          { return nil }

func TestOpenRejectsSecondSessionWhileOneIsOpen(t *testing.T) {
	defer Close()

	s1 := &Session{Port: noopPort{}, FIFO: protocol.NewQueue()}
	if err := Open(s1); err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	s2 := &Session{Port: noopPort{}, FIFO: protocol.NewQueue()}
	if err := Open(s2); err == nil {
		t.Fatal("second Open succeeded while a session was already open, want error")
	}
	if Current() != s1 {
		t.Error("Current() changed after a rejected second Open")
	}
}

func TestCloseClearsCurrentSession(t *testing.T) {
	s := &Session{Port: noopPort{}, FIFO: protocol.NewQueue()}
	if err := Open(s); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	Close()
	if Current() != nil {
		t.Error("Current() is non-nil after Close")
	}
}

func TestLastErrorTruncatesToEightyChars(t *testing.T) {
	s := &Session{}
	long := ""
	for i := 0; i < 200; i++ {
		long += "x"
	}
	s.SetLastError(long)
	if got := s.LastError(); len(got) != lastErrorMaxLen {
		t.Errorf("len(LastError()) = %d, want %d", len(got), lastErrorMaxLen)
	}
}

func TestLastErrorShortStringUnchanged(t *testing.T) {
	s := &Session{}
	s.SetLastError("device not connected")
	if got := s.LastError(); got != "device not connected" {
		t.Errorf("LastError() = %q, want %q", got, "device not connected")
	}
}

func TestStatsSnapshot(t *testing.T) {
	var st Stats
	st.AddRx(3)
	st.AddTx(2)
	st.AddOverflow(1)
	snap := st.Snapshot()
	if snap.MessagesRx != 3 || snap.MessagesTx != 2 || snap.FIFOOverflow != 1 {
		t.Errorf("Snapshot = %+v, want {3 2 1}", snap)
	}
}
