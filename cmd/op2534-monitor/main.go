// Command op2534-monitor is a terminal dashboard for a live J2534 session:
// it opens the device, connects a protocol, streams PassThruReadMsgs
// output, and shows session stats and the last error.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	psutil "github.com/shirou/gopsutil/v3/cpu"
	psmem "github.com/shirou/gopsutil/v3/mem"

	"github.com/dschultz-j2534/op2534"
	"github.com/dschultz-j2534/op2534/internal/ptmsg"
	"github.com/dschultz-j2534/op2534/internal/session"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#7DD3FC")).
			Padding(0, 2).
			Bold(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#4B5563")).
			Padding(0, 2)

	logViewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#9CA3AF"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	copyNoticeStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#10B981")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 2).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF")).
			Italic(true)
)

func protocolByName(name string) (uint32, bool) {
	switch name {
	case "iso9141":
		return op2534.ProtocolISO9141, true
	case "iso14230":
		return op2534.ProtocolISO14230, true
	case "can":
		return op2534.ProtocolCAN, true
	case "iso15765":
		return op2534.ProtocolISO15765, true
	default:
		return 0, false
	}
}

func main() {
	protoFlag := flag.String("protocol", "can", "protocol to connect: iso9141, iso14230, can, iso15765")
	baudFlag := flag.Uint("baud", 500000, "baud rate")
	flag.Parse()

	protocolID, ok := protocolByName(*protoFlag)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown protocol %q\n", *protoFlag)
		os.Exit(2)
	}

	var deviceID uint32
	if rc := op2534.PassThruOpen("", &deviceID); rc != int32(ptmsg.NoError) {
		fmt.Fprintf(os.Stderr, "PassThruOpen failed: rc=%d (%s)\n", rc, ptmsg.Error(rc))
		os.Exit(1)
	}
	defer op2534.PassThruClose(deviceID)

	var channelID uint32
	if rc := op2534.PassThruConnect(deviceID, protocolID, 0, uint32(*baudFlag), &channelID); rc != int32(ptmsg.NoError) {
		fmt.Fprintf(os.Stderr, "PassThruConnect failed: rc=%d (%s)\n", rc, ptmsg.Error(rc))
		os.Exit(1)
	}
	defer op2534.PassThruDisconnect(channelID)

	m := newModel(deviceID, channelID, *protoFlag)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor exited: %v\n", err)
		os.Exit(1)
	}
}

// frameMsg carries one decoded frame's summary line from the read loop to
// the UI, bubbletea's standard external-command channel pattern.
type frameMsg string

type resourceMsg string

type hideCopyNoticeMsg struct{}

func waitForFrame(ch <-chan string) tea.Cmd {
	return func() tea.Msg { return frameMsg(<-ch) }
}

func pollResourceData() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		cpuPercent, _ := psutil.Percent(0, false)
		memInfo, _ := psmem.VirtualMemory()
		cpu := 0.0
		if len(cpuPercent) > 0 {
			cpu = cpuPercent[0]
		}
		return resourceMsg(fmt.Sprintf("CPU: %.1f%% | RAM: %.1f%% | Go: %s", cpu, memInfo.UsedPercent, runtime.Version()))
	})
}

func hideCopyNoticeAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return hideCopyNoticeMsg{} })
}

// readLoop runs the facade's blocking read on its own goroutine, forwarding
// each decoded message to the UI over frames. It owns no UI state.
func readLoop(channelID uint32, frames chan<- string, done <-chan struct{}) {
	buf := make([]op2534.PassThruMsg, 16)
	for {
		select {
		case <-done:
			return
		default:
		}
		numMsgs := uint32(len(buf))
		if rc := op2534.PassThruReadMsgs(channelID, buf, &numMsgs, 250); rc == int32(ptmsg.NoError) {
			for i := uint32(0); i < numMsgs; i++ {
				frames <- formatFrame(buf[i])
			}
		}
	}
}

func formatFrame(m op2534.PassThruMsg) string {
	return fmt.Sprintf("[%s] rxstatus=%d size=%d % X",
		time.Now().Format("15:04:05.000"), m.RxStatus, m.DataSize, m.Data[:m.DataSize])
}

type model struct {
	deviceID  uint32
	channelID uint32
	protocol  string

	frames    []string
	lastFrame string
	log       viewport.Model

	resourceData   string
	showCopyNotice bool

	frameCh chan string
	done    chan struct{}

	width, height int
}

func newModel(deviceID, channelID uint32, protocol string) model {
	log := viewport.New(78, 16)
	log.Style = logViewStyle
	return model{
		deviceID:  deviceID,
		channelID: channelID,
		protocol:  protocol,
		log:       log,
		frameCh:   make(chan string, 64),
		done:      make(chan struct{}),
		width:     80,
		height:    24,
	}
}

func (m model) Init() tea.Cmd {
	go readLoop(m.channelID, m.frameCh, m.done)
	return tea.Batch(tea.ClearScreen, waitForFrame(m.frameCh), pollResourceData())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.log.Width = m.width - 4
		m.log.Height = m.height - 8
		m.updateLogView()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			close(m.done)
			return m, tea.Quit
		case "e":
			if s := session.Current(); s != nil && s.LastError() != "" {
				if err := clipboard.WriteAll(s.LastError()); err == nil {
					m.showCopyNotice = true
					cmds = append(cmds, hideCopyNoticeAfter(2*time.Second))
				}
			}
		case "f":
			if m.lastFrame != "" {
				if err := clipboard.WriteAll(m.lastFrame); err == nil {
					m.showCopyNotice = true
					cmds = append(cmds, hideCopyNoticeAfter(2*time.Second))
				}
			}
		}

	case frameMsg:
		m.lastFrame = string(msg)
		m.frames = append(m.frames, string(msg))
		if len(m.frames) > 500 {
			m.frames = m.frames[len(m.frames)-500:]
		}
		m.updateLogView()
		cmds = append(cmds, waitForFrame(m.frameCh))

	case resourceMsg:
		m.resourceData = string(msg)
		cmds = append(cmds, pollResourceData())

	case hideCopyNoticeMsg:
		m.showCopyNotice = false
	}

	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// updateLogView refreshes the log pane, word-wrapping each frame line to
// the viewport width so long hex dumps stay readable.
func (m *model) updateLogView() {
	wrapped := make([]string, len(m.frames))
	for i, f := range m.frames {
		wrapped[i] = ansi.Wordwrap(f, m.log.Width, " \t")
	}
	m.log.SetContent(strings.Join(wrapped, "\n"))
	m.log.GotoBottom()
}

func (m model) View() string {
	s := session.Current()
	connected := s != nil && s.Connected

	header := headerStyle.Width(m.width).Render(fmt.Sprintf(
		" op2534 monitor | device=%d channel=%d protocol=%s | connected=%v",
		m.deviceID, m.channelID, m.protocol, connected))

	var stats, lastErr string
	if s != nil {
		snap := s.Stats.Snapshot()
		stats = fmt.Sprintf("rx=%d tx=%d overflow=%d", snap.MessagesRx, snap.MessagesTx, snap.FIFOOverflow)
		lastErr = s.LastError()
	}

	var errLine string
	if lastErr != "" {
		errLine = errorStyle.Render("last error: "+lastErr) + "\n"
	}

	footerText := fmt.Sprintf("%s | %s", m.resourceData, stats)
	if m.showCopyNotice {
		footerText += " " + copyNoticeStyle.Render("copied to clipboard")
	}
	footer := footerStyle.Width(m.width).Render(footerText)

	help := helpStyle.Render("e: copy last error   f: copy last frame   q: quit")

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		errLine+m.log.View(),
		footer,
		help,
	)
}
