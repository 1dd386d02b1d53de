// Package session holds the single open device session this driver
// supports: the USB port, the active channel's bus family and protocol
// id, the firmware version string, the last-error string, and the
// receive statistics the diagnostic tooling surfaces.
package session

import (
	"fmt"
	"sync"

	"github.com/dschultz-j2534/op2534/internal/protocol"
	"github.com/dschultz-j2534/op2534/internal/transport"
)

const lastErrorMaxLen = 80

// Stats tracks receive/transmit counters for diagnostics. Mirrors the
// mutex-guarded counters the rest of this codebase's device layer keeps
// alongside its backend handle.
type Stats struct {
	mu           sync.RWMutex
	MessagesRx   uint64
	MessagesTx   uint64
	FIFOOverflow uint64
}

// AddRx records n received messages.
func (s *Stats) AddRx(n uint64) {
	s.mu.Lock()
	s.MessagesRx += n
	s.mu.Unlock()
}

// AddTx records n transmitted messages.
func (s *Stats) AddTx(n uint64) {
	s.mu.Lock()
	s.MessagesTx += n
	s.mu.Unlock()
}

// AddOverflow records n messages spilled into the FIFO.
func (s *Stats) AddOverflow(n uint64) {
	s.mu.Lock()
	s.FIFOOverflow += n
	s.mu.Unlock()
}

// Snapshot is a copy-safe view of Stats.
type Snapshot struct {
	MessagesRx   uint64
	MessagesTx   uint64
	FIFOOverflow uint64
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{MessagesRx: s.MessagesRx, MessagesTx: s.MessagesTx, FIFOOverflow: s.FIFOOverflow}
}

// Session is the process-wide device session. One driver process ever
// has at most one of these alive, enforced at the package level by Open.
type Session struct {
	Port     transport.Port
	DeviceID int
	Firmware string

	Family     byte
	ProtocolID uint32
	Connected  bool

	FIFO   *protocol.Queue
	Parser *protocol.Parser

	lastError string
	mu        sync.Mutex

	Stats Stats
}

var (
	current   *Session
	currentMu sync.Mutex
)

// Open installs s as the current session. It fails if a session is
// already open, since this driver supports exactly one device at a time.
func Open(s *Session) error {
	currentMu.Lock()
	defer currentMu.Unlock()
	if current != nil {
		return fmt.Errorf("session already open")
	}
	current = s
	return nil
}

// Current returns the open session, or nil if none is open.
func Current() *Session {
	currentMu.Lock()
	defer currentMu.Unlock()
	return current
}

// Close tears down the current session.
func Close() {
	currentMu.Lock()
	defer currentMu.Unlock()
	current = nil
}

// SetLastError records text as the session's last-error string, truncated
// to lastErrorMaxLen characters.
func (s *Session) SetLastError(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(text) > lastErrorMaxLen {
		text = text[:lastErrorMaxLen]
	}
	s.lastError = text
}

// LastError returns the session's last-error string.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}
